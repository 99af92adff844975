package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"dealline/internal/domain"
)

// Writer appends transition events. Appends always happen inside the
// caller's transaction so the event and the projection update commit
// or roll back together.
type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

type Payload map[string]any

// Append writes one immutable transition event. The UNIQUE
// (engagement_id, version) constraint makes a duplicate version a hard
// failure rather than a silent fork of the ledger.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, evt domain.TransitionEvent, payload Payload) error {
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	ts := evt.TS
	if ts == "" {
		ts = now().UTC().Format(time.RFC3339)
	}
	if payload == nil {
		payload = Payload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO transition_events(engagement_id,transition,prior_state,new_state,version,actor_id,ts,payload_json) VALUES (?,?,?,?,?,?,?,?)`,
		evt.EngagementID, evt.Transition, nullable(evt.PriorState), evt.NewState, evt.Version, evt.ActorID, ts, string(data))
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
