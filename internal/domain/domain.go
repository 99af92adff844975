package domain

import (
	"fmt"

	"github.com/google/uuid"
)

// Engagement states.
const (
	StateApplied    = "applied"
	StateAccepted   = "accepted"
	StateInProgress = "in_progress"
	StateSubmitted  = "submitted"
	StateApproved   = "approved"
	StatePaid       = "paid"
	StateRejected   = "rejected"
	StateCancelled  = "cancelled"
)

// Payment intent statuses.
const (
	IntentPending   = "pending"
	IntentSubmitted = "submitted"
	IntentConfirmed = "confirmed"
	IntentFailed    = "failed"
)

// Deliverable review states.
const (
	ReviewPending  = "pending"
	ReviewApproved = "approved"
	ReviewRejected = "rejected"
)

// TerminalState reports whether no further transitions are possible.
func TerminalState(s string) bool {
	return s == StatePaid || s == StateRejected || s == StateCancelled
}

type Campaign struct {
	ID        string `json:"id"`
	OwnerID   string `json:"owner_id"`
	Name      string `json:"name"`
	Status    string `json:"status" enum:"active,archived"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// Engagement is one creator's participation in one campaign. The row is
// a projection over the transition ledger; Version is the optimistic
// concurrency token and increases by exactly one per accepted transition.
type Engagement struct {
	ID         string `json:"id"`
	CampaignID string `json:"campaign_id"`
	CreatorID  string `json:"creator_id"`
	State      string `json:"state" enum:"applied,accepted,in_progress,submitted,approved,paid,rejected,cancelled"`
	Version    int64  `json:"version"`
	CreatedAt  string `json:"created_at" format:"date-time"`
	UpdatedAt  string `json:"updated_at" format:"date-time"`
}

type Deliverable struct {
	ID            string  `json:"id"`
	EngagementID  string  `json:"engagement_id"`
	ContentRef    string  `json:"content_ref"`
	ReviewState   string  `json:"review_state" enum:"pending,approved,rejected"`
	ReviewerNotes *string `json:"reviewer_notes,omitempty"`
	SubmittedAt   string  `json:"submitted_at" format:"date-time"`
	ReviewedAt    *string `json:"reviewed_at,omitempty" format:"date-time"`
}

// PaymentIntent is one attempted release of funds for an engagement.
// The ID is deterministic over (engagement ID, version at approval) so
// retries after a crash land on the same row.
type PaymentIntent struct {
	ID           string  `json:"id"`
	EngagementID string  `json:"engagement_id"`
	Version      int64   `json:"version"`
	AmountCents  int64   `json:"amount_cents"`
	Status       string  `json:"status" enum:"pending,submitted,confirmed,failed"`
	ProcessorRef *string `json:"processor_ref,omitempty"`
	Attempts     int     `json:"attempts"`
	LastError    *string `json:"last_error,omitempty"`
	CreatedAt    string  `json:"created_at" format:"date-time"`
	UpdatedAt    string  `json:"updated_at" format:"date-time"`
}

// TransitionEvent is an immutable ledger record. The ledger is the
// source of truth; engagement rows are rebuildable by replay.
type TransitionEvent struct {
	ID           int64  `json:"id"`
	EngagementID string `json:"engagement_id"`
	Transition   string `json:"transition"`
	PriorState   string `json:"prior_state,omitempty"`
	NewState     string `json:"new_state"`
	Version      int64  `json:"version"`
	ActorID      string `json:"actor_id"`
	TS           string `json:"ts" format:"date-time"`
	Payload      string `json:"payload_json,omitempty"`
}

// Lease is a time-bounded exclusive admission token for one engagement.
type Lease struct {
	EngagementID string `json:"engagement_id"`
	OwnerID      string `json:"owner_id"`
	AcquiredAt   string `json:"acquired_at" format:"date-time"`
	ExpiresAt    string `json:"expires_at" format:"date-time"`
}

// IntentID derives the deterministic payment-intent ID for an
// engagement at the version its approval produced. Re-deriving the ID
// from the same inputs always yields the same UUID.
func IntentID(engagementID string, version int64) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("intent|%s|%d", engagementID, version))).String()
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
