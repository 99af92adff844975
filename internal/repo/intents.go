package repo

import (
	"context"
	"database/sql"
	"time"

	"dealline/internal/domain"
)

// EnqueueIntentTx inserts a pending payment intent as part of the
// approval transaction. The deterministic primary key plus ON CONFLICT
// DO NOTHING makes retries land on the existing row instead of
// double-enqueueing.
func (r Repo) EnqueueIntentTx(ctx context.Context, tx *sql.Tx, in domain.PaymentIntent) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO payment_intents(id,engagement_id,version,amount_cents,status,attempts,created_at,updated_at)
VALUES (?,?,?,?,?,0,?,?) ON CONFLICT(id) DO NOTHING`,
		in.ID, in.EngagementID, in.Version, in.AmountCents, in.Status, in.CreatedAt, in.UpdatedAt)
	return err
}

func scanIntent(row *sql.Row) (domain.PaymentIntent, error) {
	var in domain.PaymentIntent
	var ref, lastErr sql.NullString
	err := row.Scan(&in.ID, &in.EngagementID, &in.Version, &in.AmountCents, &in.Status, &ref, &in.Attempts, &lastErr, &in.CreatedAt, &in.UpdatedAt)
	if err == sql.ErrNoRows {
		return in, ErrNotFound
	}
	if err != nil {
		return in, err
	}
	if ref.Valid {
		in.ProcessorRef = &ref.String
	}
	if lastErr.Valid {
		in.LastError = &lastErr.String
	}
	return in, nil
}

const intentColumns = `id,engagement_id,version,amount_cents,status,processor_ref,attempts,last_error,created_at,updated_at`

func (r Repo) GetIntent(ctx context.Context, id string) (domain.PaymentIntent, error) {
	return scanIntent(r.DB.QueryRowContext(ctx, `SELECT `+intentColumns+` FROM payment_intents WHERE id=?`, id))
}

// GetIntentForVersion returns the intent created at an engagement's
// approval version, if one exists.
func (r Repo) GetIntentForVersion(ctx context.Context, engagementID string, version int64) (domain.PaymentIntent, error) {
	return scanIntent(r.DB.QueryRowContext(ctx, `SELECT `+intentColumns+` FROM payment_intents WHERE engagement_id=? AND version=?`, engagementID, version))
}

// LatestIntent returns the newest intent for an engagement.
func (r Repo) LatestIntent(ctx context.Context, engagementID string) (domain.PaymentIntent, error) {
	return scanIntent(r.DB.QueryRowContext(ctx, `SELECT `+intentColumns+` FROM payment_intents WHERE engagement_id=? ORDER BY version DESC LIMIT 1`, engagementID))
}

// MarkIntentSubmitted records a processor acceptance of the submission.
// Guarded on pending so a late duplicate submission cannot regress a
// confirmed or failed intent.
func (r Repo) MarkIntentSubmitted(ctx context.Context, id string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := r.DB.ExecContext(ctx, `UPDATE payment_intents SET status='submitted', attempts=attempts+1, updated_at=? WHERE id=? AND status='pending'`, now, id)
	return err
}

// RecordIntentAttempt bumps the attempt counter after a failed
// submission, leaving the intent pending for the sweep.
func (r Repo) RecordIntentAttempt(ctx context.Context, id string, lastError string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := r.DB.ExecContext(ctx, `UPDATE payment_intents SET attempts=attempts+1, last_error=?, updated_at=? WHERE id=? AND status IN ('pending','submitted')`, nullable(lastError), now, id)
	return err
}

// ResolveIntent finalizes an intent as confirmed or failed. Terminal
// statuses are sticky: once confirmed or failed, later callbacks are
// ignored.
func (r Repo) ResolveIntent(ctx context.Context, id, status string, processorRef *string) (bool, error) {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := r.DB.ExecContext(ctx, `UPDATE payment_intents SET status=?, processor_ref=COALESCE(?, processor_ref), updated_at=? WHERE id=? AND status IN ('pending','submitted')`,
		status, nullableStringPtr(processorRef), now, id)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// VoidIntentTx fails any open intent for an engagement inside the
// caller's transaction. Used when an approved engagement is cancelled.
func (r Repo) VoidIntentTx(ctx context.Context, tx *sql.Tx, engagementID, reason, now string) error {
	_, err := tx.ExecContext(ctx, `UPDATE payment_intents SET status='failed', last_error=?, updated_at=? WHERE engagement_id=? AND status IN ('pending','submitted')`,
		reason, now, engagementID)
	return err
}

// ListOpenIntents returns pending/submitted intents not updated since
// the given cutoff, oldest first. The coordinator sweep feeds on this.
func (r Repo) ListOpenIntents(ctx context.Context, updatedBefore string, limit int) ([]domain.PaymentIntent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT `+intentColumns+` FROM payment_intents
WHERE status IN ('pending','submitted') AND updated_at < ? ORDER BY updated_at ASC LIMIT ?`, updatedBefore, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.PaymentIntent
	for rows.Next() {
		var in domain.PaymentIntent
		var ref, lastErr sql.NullString
		if err := rows.Scan(&in.ID, &in.EngagementID, &in.Version, &in.AmountCents, &in.Status, &ref, &in.Attempts, &lastErr, &in.CreatedAt, &in.UpdatedAt); err != nil {
			return nil, err
		}
		if ref.Valid {
			in.ProcessorRef = &ref.String
		}
		if lastErr.Valid {
			in.LastError = &lastErr.String
		}
		res = append(res, in)
	}
	return res, rows.Err()
}

// ListIntents returns intents, optionally filtered by status.
func (r Repo) ListIntents(ctx context.Context, status string, limit int) ([]domain.PaymentIntent, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + intentColumns + ` FROM payment_intents`
	var args []any
	if status != "" {
		query += ` WHERE status=?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.PaymentIntent
	for rows.Next() {
		var in domain.PaymentIntent
		var ref, lastErr sql.NullString
		if err := rows.Scan(&in.ID, &in.EngagementID, &in.Version, &in.AmountCents, &in.Status, &ref, &in.Attempts, &lastErr, &in.CreatedAt, &in.UpdatedAt); err != nil {
			return nil, err
		}
		if ref.Valid {
			in.ProcessorRef = &ref.String
		}
		if lastErr.Valid {
			in.LastError = &lastErr.String
		}
		res = append(res, in)
	}
	return res, rows.Err()
}
