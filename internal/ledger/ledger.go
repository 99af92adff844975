package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"dealline/internal/domain"
)

var ErrEmptyLedger = errors.New("no events for engagement")

// Reader answers queries over the transition ledger.
type Reader struct {
	DB *sql.DB
}

func scanEvents(rows *sql.Rows) ([]domain.TransitionEvent, error) {
	defer rows.Close()
	var res []domain.TransitionEvent
	for rows.Next() {
		var e domain.TransitionEvent
		var prior, payload sql.NullString
		if err := rows.Scan(&e.ID, &e.EngagementID, &e.Transition, &prior, &e.NewState, &e.Version, &e.ActorID, &e.TS, &payload); err != nil {
			return nil, err
		}
		if prior.Valid {
			e.PriorState = prior.String
		}
		if payload.Valid {
			e.Payload = payload.String
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// ByEngagement returns an engagement's events in version order.
func (r Reader) ByEngagement(ctx context.Context, engagementID string) ([]domain.TransitionEvent, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,engagement_id,transition,prior_state,new_state,version,actor_id,ts,payload_json
FROM transition_events WHERE engagement_id=? ORDER BY version ASC`, engagementID)
	if err != nil {
		return nil, err
	}
	return scanEvents(rows)
}

// After returns events with IDs greater than the cursor in ascending order.
func (r Reader) After(ctx context.Context, limit int, cursor int64) ([]domain.TransitionEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT id,engagement_id,transition,prior_state,new_state,version,actor_id,ts,payload_json
FROM transition_events WHERE id>? ORDER BY id ASC LIMIT ?`, cursor, limit)
	if err != nil {
		return nil, err
	}
	return scanEvents(rows)
}

// Latest returns the most recent events, newest first.
func (r Reader) Latest(ctx context.Context, limit int, engagementID string) ([]domain.TransitionEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id,engagement_id,transition,prior_state,new_state,version,actor_id,ts,payload_json FROM transition_events`
	var args []any
	if engagementID != "" {
		query += ` WHERE engagement_id=?`
		args = append(args, engagementID)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return scanEvents(rows)
}

// LatestEventID returns the highest event ID, 0 for an empty ledger.
func (r Reader) LatestEventID(ctx context.Context) (int64, error) {
	var id int64
	err := r.DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(id),0) FROM transition_events`).Scan(&id)
	return id, err
}

// Replay folds an engagement's events into the projection they imply.
// The ledger is the source of truth; the engagements table is a cache
// of exactly this fold.
func (r Reader) Replay(ctx context.Context, engagementID string) (domain.Engagement, error) {
	events, err := r.ByEngagement(ctx, engagementID)
	if err != nil {
		return domain.Engagement{}, err
	}
	return Fold(engagementID, events)
}

// Fold applies events in order, checking ledger integrity as it goes.
func Fold(engagementID string, events []domain.TransitionEvent) (domain.Engagement, error) {
	if len(events) == 0 {
		return domain.Engagement{}, ErrEmptyLedger
	}
	var e domain.Engagement
	e.ID = engagementID
	for i, evt := range events {
		if evt.Version != int64(i)+1 {
			return domain.Engagement{}, fmt.Errorf("ledger gap for %s: event %d has version %d, want %d", engagementID, evt.ID, evt.Version, i+1)
		}
		if i == 0 {
			if evt.PriorState != "" {
				return domain.Engagement{}, fmt.Errorf("ledger for %s does not start at creation", engagementID)
			}
			e.CreatedAt = evt.TS
		} else if evt.PriorState != e.State {
			return domain.Engagement{}, fmt.Errorf("ledger fork for %s at version %d: prior %q, projected %q", engagementID, evt.Version, evt.PriorState, e.State)
		}
		e.State = evt.NewState
		e.Version = evt.Version
		e.UpdatedAt = evt.TS
	}
	return e, nil
}

// Verify replays the ledger and compares it against the stored
// projection. Used at recovery and from the CLI.
func (r Reader) Verify(ctx context.Context, stored domain.Engagement) error {
	replayed, err := r.Replay(ctx, stored.ID)
	if err != nil {
		return err
	}
	if replayed.State != stored.State || replayed.Version != stored.Version {
		return fmt.Errorf("projection drift for %s: ledger says (%s, v%d), row says (%s, v%d)",
			stored.ID, replayed.State, replayed.Version, stored.State, stored.Version)
	}
	return nil
}
