package repo

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"dealline/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

func (r Repo) InsertCampaign(ctx context.Context, c domain.Campaign) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO campaigns(id,owner_id,name,status,created_at) VALUES (?,?,?,?,?)`,
		c.ID, c.OwnerID, c.Name, c.Status, c.CreatedAt)
	return err
}

func (r Repo) GetCampaign(ctx context.Context, id string) (domain.Campaign, error) {
	var c domain.Campaign
	err := r.DB.QueryRowContext(ctx, `SELECT id,owner_id,name,status,created_at FROM campaigns WHERE id=?`, id).
		Scan(&c.ID, &c.OwnerID, &c.Name, &c.Status, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	return c, err
}

func (r Repo) ListCampaigns(ctx context.Context) ([]domain.Campaign, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,owner_id,name,status,created_at FROM campaigns ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Campaign
	for rows.Next() {
		var c domain.Campaign
		if err := rows.Scan(&c.ID, &c.OwnerID, &c.Name, &c.Status, &c.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func (r Repo) InsertEngagementTx(ctx context.Context, tx *sql.Tx, e domain.Engagement) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO engagements(id,campaign_id,creator_id,state,version,created_at,updated_at) VALUES (?,?,?,?,?,?,?)`,
		e.ID, e.CampaignID, e.CreatorID, e.State, e.Version, e.CreatedAt, e.UpdatedAt)
	return err
}

func scanEngagement(row *sql.Row) (domain.Engagement, error) {
	var e domain.Engagement
	err := row.Scan(&e.ID, &e.CampaignID, &e.CreatorID, &e.State, &e.Version, &e.CreatedAt, &e.UpdatedAt)
	if err == sql.ErrNoRows {
		return e, ErrNotFound
	}
	return e, err
}

func (r Repo) GetEngagement(ctx context.Context, id string) (domain.Engagement, error) {
	return scanEngagement(r.DB.QueryRowContext(ctx, `SELECT id,campaign_id,creator_id,state,version,created_at,updated_at FROM engagements WHERE id=?`, id))
}

// GetEngagementTx reads the row inside the caller's transaction so the
// version check and the update see the same state.
func (r Repo) GetEngagementTx(ctx context.Context, tx *sql.Tx, id string) (domain.Engagement, error) {
	return scanEngagement(tx.QueryRowContext(ctx, `SELECT id,campaign_id,creator_id,state,version,created_at,updated_at FROM engagements WHERE id=?`, id))
}

// UpdateEngagementTx advances the projection guarded by the version it
// was read at. Zero rows affected means a concurrent writer won.
func (r Repo) UpdateEngagementTx(ctx context.Context, tx *sql.Tx, e domain.Engagement, priorVersion int64) error {
	res, err := tx.ExecContext(ctx, `UPDATE engagements SET state=?, version=?, updated_at=? WHERE id=? AND version=?`,
		e.State, e.Version, e.UpdatedAt, e.ID, priorVersion)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type EngagementFilters struct {
	CampaignID string
	CreatorID  string
	State      string
	Limit      int
}

func (r Repo) ListEngagements(ctx context.Context, f EngagementFilters) ([]domain.Engagement, error) {
	var clauses []string
	var args []any
	if f.CampaignID != "" {
		clauses = append(clauses, "campaign_id=?")
		args = append(args, f.CampaignID)
	}
	if f.CreatorID != "" {
		clauses = append(clauses, "creator_id=?")
		args = append(args, f.CreatorID)
	}
	if f.State != "" {
		clauses = append(clauses, "state=?")
		args = append(args, f.State)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT id,campaign_id,creator_id,state,version,created_at,updated_at FROM engagements ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Engagement
	for rows.Next() {
		var e domain.Engagement
		if err := rows.Scan(&e.ID, &e.CampaignID, &e.CreatorID, &e.State, &e.Version, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func (r Repo) InsertDeliverableTx(ctx context.Context, tx *sql.Tx, d domain.Deliverable) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO deliverables(id,engagement_id,content_ref,review_state,reviewer_notes,submitted_at,reviewed_at) VALUES (?,?,?,?,?,?,?)`,
		d.ID, d.EngagementID, d.ContentRef, d.ReviewState, nullableStringPtr(d.ReviewerNotes), d.SubmittedAt, nullableStringPtr(d.ReviewedAt))
	return err
}

// LatestPendingDeliverableTx returns the newest pending deliverable, if any.
func (r Repo) LatestPendingDeliverableTx(ctx context.Context, tx *sql.Tx, engagementID string) (domain.Deliverable, error) {
	row := tx.QueryRowContext(ctx, `SELECT id,engagement_id,content_ref,review_state,reviewer_notes,submitted_at,reviewed_at
FROM deliverables WHERE engagement_id=? AND review_state='pending' ORDER BY submitted_at DESC, id DESC LIMIT 1`, engagementID)
	return scanDeliverable(row)
}

func scanDeliverable(row *sql.Row) (domain.Deliverable, error) {
	var d domain.Deliverable
	var notes, reviewedAt sql.NullString
	err := row.Scan(&d.ID, &d.EngagementID, &d.ContentRef, &d.ReviewState, &notes, &d.SubmittedAt, &reviewedAt)
	if err == sql.ErrNoRows {
		return d, ErrNotFound
	}
	if err != nil {
		return d, err
	}
	if notes.Valid {
		d.ReviewerNotes = &notes.String
	}
	if reviewedAt.Valid {
		d.ReviewedAt = &reviewedAt.String
	}
	return d, nil
}

// ReviewDeliverableTx moves a pending deliverable to approved or
// rejected. Review states never reverse, so a non-pending row is left
// untouched and reported as not found.
func (r Repo) ReviewDeliverableTx(ctx context.Context, tx *sql.Tx, id, reviewState string, notes *string, reviewedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE deliverables SET review_state=?, reviewer_notes=?, reviewed_at=? WHERE id=? AND review_state='pending'`,
		reviewState, nullableStringPtr(notes), reviewedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) ListDeliverables(ctx context.Context, engagementID string) ([]domain.Deliverable, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,engagement_id,content_ref,review_state,reviewer_notes,submitted_at,reviewed_at
FROM deliverables WHERE engagement_id=? ORDER BY submitted_at DESC, id DESC`, engagementID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Deliverable
	for rows.Next() {
		var d domain.Deliverable
		var notes, reviewedAt sql.NullString
		if err := rows.Scan(&d.ID, &d.EngagementID, &d.ContentRef, &d.ReviewState, &notes, &d.SubmittedAt, &reviewedAt); err != nil {
			return nil, err
		}
		if notes.Valid {
			d.ReviewerNotes = &notes.String
		}
		if reviewedAt.Valid {
			d.ReviewedAt = &reviewedAt.String
		}
		res = append(res, d)
	}
	return res, rows.Err()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}
