package app

import (
	"context"
	"database/sql"
	"time"

	"dealline/internal/config"
	"dealline/internal/db"
	"dealline/internal/migrate"
	"dealline/internal/repo"
)

// Bootstrap opens the workspace database, applies migrations, loads
// the workspace config (falling back to defaults when dealline.yml is
// absent), and makes sure the acting identity exists.
func Bootstrap(ctx context.Context, workspace, actorID string) (*sql.DB, *config.Config, error) {
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		return nil, nil, err
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, nil, err
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, nil, err
	}
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		conn.Close()
		return nil, nil, err
	}
	if actorID != "" {
		r := repo.Repo{DB: conn}
		now := time.Now().UTC().Format(time.RFC3339)
		if err := r.EnsureActor(ctx, nil, actorID, now); err != nil {
			conn.Close()
			return nil, nil, err
		}
	}
	return conn, cfg, nil
}
