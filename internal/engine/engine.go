package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"dealline/internal/config"
	"dealline/internal/domain"
	"dealline/internal/ledger"
	"dealline/internal/repo"
)

// Transition names.
const (
	TransitionApply          = "apply"
	TransitionAccept         = "accept"
	TransitionReject         = "reject"
	TransitionStart          = "start"
	TransitionSubmit         = "submit"
	TransitionRequestChanges = "request_changes"
	TransitionApprove        = "approve"
	TransitionPay            = "pay"
	TransitionCancel         = "cancel"
)

// Roles a transition may require. Owner and creator are resolved
// against the campaign row and the engagement row; system is the
// payment coordinator identity from config; participant is either
// owner or creator.
const (
	RoleOwner       = "campaign owner"
	RoleCreator     = "assigned creator"
	RoleSystem      = "payment coordinator"
	RoleParticipant = "campaign owner or assigned creator"
)

type transitionKey struct {
	State      string
	Transition string
}

type transitionRule struct {
	To   string
	Role string
}

// transitionTable is the single authority on legal state changes. Any
// (state, transition) pair not present fails InvalidTransition.
var transitionTable = map[transitionKey]transitionRule{
	{domain.StateApplied, TransitionAccept}:           {domain.StateAccepted, RoleOwner},
	{domain.StateApplied, TransitionReject}:           {domain.StateRejected, RoleOwner},
	{domain.StateAccepted, TransitionStart}:           {domain.StateInProgress, RoleCreator},
	{domain.StateAccepted, TransitionSubmit}:          {domain.StateSubmitted, RoleCreator},
	{domain.StateInProgress, TransitionSubmit}:        {domain.StateSubmitted, RoleCreator},
	{domain.StateSubmitted, TransitionRequestChanges}: {domain.StateInProgress, RoleOwner},
	{domain.StateSubmitted, TransitionReject}:         {domain.StateRejected, RoleOwner},
	{domain.StateSubmitted, TransitionApprove}:        {domain.StateApproved, RoleOwner},
	{domain.StateApproved, TransitionPay}:             {domain.StatePaid, RoleSystem},
}

func init() {
	// cancel is legal from every non-terminal state.
	for _, s := range []string{
		domain.StateApplied, domain.StateAccepted, domain.StateInProgress,
		domain.StateSubmitted, domain.StateApproved,
	} {
		transitionTable[transitionKey{s, TransitionCancel}] = transitionRule{domain.StateCancelled, RoleParticipant}
	}
}

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Ledger ledger.Writer
	Reader ledger.Reader
	Config *config.Config
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Ledger: ledger.Writer{DB: db},
		Reader: ledger.Reader{DB: db},
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// CreateCampaign inserts a campaign owned by ownerID.
func (e Engine) CreateCampaign(ctx context.Context, id, ownerID, name string) (domain.Campaign, error) {
	if id == "" {
		return domain.Campaign{}, ValidationError{Field: "id", Reason: "required"}
	}
	if ownerID == "" {
		return domain.Campaign{}, ValidationError{Field: "owner_id", Reason: "required"}
	}
	if name == "" {
		name = id
	}
	now := e.now().UTC().Format(time.RFC3339)
	c := domain.Campaign{ID: id, OwnerID: ownerID, Name: name, Status: "active", CreatedAt: now}
	if err := e.Repo.EnsureActor(ctx, nil, ownerID, now); err != nil {
		return domain.Campaign{}, err
	}
	if err := e.Repo.InsertCampaign(ctx, c); err != nil {
		return domain.Campaign{}, fmt.Errorf("insert campaign: %w", err)
	}
	return c, nil
}

// CreateEngagement records a creator's application to a campaign. This
// is the only way an engagement comes to exist: state applied, version
// 1, with the creation event as the first ledger record.
func (e Engine) CreateEngagement(ctx context.Context, campaignID, creatorID, actorID string) (domain.Engagement, error) {
	if campaignID == "" {
		return domain.Engagement{}, ValidationError{Field: "campaign_id", Reason: "required"}
	}
	if creatorID == "" {
		return domain.Engagement{}, ValidationError{Field: "creator_id", Reason: "required"}
	}
	c, err := e.Repo.GetCampaign(ctx, campaignID)
	if err != nil {
		return domain.Engagement{}, err
	}
	if c.Status != "active" {
		return domain.Engagement{}, ValidationError{Field: "campaign_id", Reason: "campaign is not active"}
	}
	if actorID != creatorID && actorID != c.OwnerID {
		return domain.Engagement{}, AuthorizationDeniedError{ActorID: actorID, Transition: TransitionApply, Required: RoleParticipant}
	}
	now := e.now().UTC().Format(time.RFC3339)
	eng := domain.Engagement{
		ID:         uuid.NewSHA1(uuid.NameSpaceOID, []byte(campaignID+"|"+creatorID)).String(),
		CampaignID: campaignID,
		CreatorID:  creatorID,
		State:      domain.StateApplied,
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Engagement{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.EnsureActor(ctx, tx, creatorID, now); err != nil {
		return domain.Engagement{}, err
	}
	if err := e.Repo.InsertEngagementTx(ctx, tx, eng); err != nil {
		return domain.Engagement{}, fmt.Errorf("insert engagement: %w", err)
	}
	evt := domain.TransitionEvent{
		EngagementID: eng.ID,
		Transition:   TransitionApply,
		NewState:     domain.StateApplied,
		Version:      1,
		ActorID:      actorID,
		TS:           now,
	}
	if err := e.Ledger.Append(ctx, tx, evt, ledger.Payload{"campaign_id": campaignID, "creator_id": creatorID}); err != nil {
		return domain.Engagement{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Engagement{}, err
	}
	return eng, nil
}

// ApplyOptions are the parameters of one transition request.
type ApplyOptions struct {
	EngagementID    string
	Transition      string
	ActorID         string
	ExpectedVersion int64

	// Transition payload. ContentRef is required by submit, AmountCents
	// by approve; Notes rides along on review and cancel transitions.
	ContentRef  string
	AmountCents int64
	Notes       string
}

// Apply validates and applies one transition. On success the transition
// event, the projection update, and any payment-intent enqueue commit
// as a single transaction; on any error nothing is written.
func (e Engine) Apply(ctx context.Context, opts ApplyOptions) (domain.Engagement, error) {
	if e.Config == nil {
		return domain.Engagement{}, errors.New("config not loaded")
	}
	if opts.ActorID == "" {
		return domain.Engagement{}, ValidationError{Field: "actor_id", Reason: "required"}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Engagement{}, err
	}
	defer tx.Rollback()

	eng, err := e.Repo.GetEngagementTx(ctx, tx, opts.EngagementID)
	if err != nil {
		return domain.Engagement{}, err
	}
	if opts.ExpectedVersion != eng.Version {
		return eng, VersionConflictError{EngagementID: eng.ID, Expected: opts.ExpectedVersion, Actual: eng.Version}
	}
	rule, ok := transitionTable[transitionKey{eng.State, opts.Transition}]
	if !ok {
		return eng, InvalidTransitionError{State: eng.State, Transition: opts.Transition}
	}
	if err := e.authorize(ctx, eng, opts.Transition, rule.Role, opts.ActorID); err != nil {
		return eng, err
	}

	now := e.now().UTC().Format(time.RFC3339)
	payload := ledger.Payload{}
	if opts.Notes != "" {
		payload["notes"] = opts.Notes
	}
	priorVersion := eng.Version
	priorState := eng.State
	eng.State = rule.To
	eng.Version = priorVersion + 1
	eng.UpdatedAt = now

	switch opts.Transition {
	case TransitionSubmit:
		if opts.ContentRef == "" {
			return eng, ValidationError{Field: "content_ref", Reason: "required for submit"}
		}
		d := domain.Deliverable{
			ID:           uuid.New().String(),
			EngagementID: eng.ID,
			ContentRef:   opts.ContentRef,
			ReviewState:  domain.ReviewPending,
			SubmittedAt:  now,
		}
		if err := e.Repo.InsertDeliverableTx(ctx, tx, d); err != nil {
			return eng, fmt.Errorf("insert deliverable: %w", err)
		}
		payload["deliverable_id"] = d.ID
		payload["content_ref"] = d.ContentRef
	case TransitionRequestChanges:
		if err := e.reviewPendingDeliverable(ctx, tx, eng.ID, domain.ReviewRejected, opts.Notes, now, payload); err != nil {
			return eng, err
		}
	case TransitionReject:
		// Rejecting an application has no deliverable attached; rejecting
		// submitted work reviews the pending deliverable.
		if priorState == domain.StateSubmitted {
			if err := e.reviewPendingDeliverable(ctx, tx, eng.ID, domain.ReviewRejected, opts.Notes, now, payload); err != nil {
				return eng, err
			}
		}
	case TransitionApprove:
		if opts.AmountCents <= 0 {
			return eng, ValidationError{Field: "amount_cents", Reason: "must be positive for approve"}
		}
		if err := e.reviewPendingDeliverable(ctx, tx, eng.ID, domain.ReviewApproved, opts.Notes, now, payload); err != nil {
			return eng, err
		}
		intent := domain.PaymentIntent{
			ID:           domain.IntentID(eng.ID, eng.Version),
			EngagementID: eng.ID,
			Version:      eng.Version,
			AmountCents:  opts.AmountCents,
			Status:       domain.IntentPending,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := e.Repo.EnqueueIntentTx(ctx, tx, intent); err != nil {
			return eng, fmt.Errorf("enqueue payment intent: %w", err)
		}
		payload["intent_id"] = intent.ID
		payload["amount_cents"] = intent.AmountCents
	case TransitionPay:
		intent, err := e.Repo.GetIntentForVersion(ctx, eng.ID, priorVersion)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return eng, ValidationError{Field: "intent", Reason: "no payment intent for engagement"}
			}
			return eng, err
		}
		if intent.Status != domain.IntentConfirmed {
			return eng, ValidationError{Field: "intent", Reason: fmt.Sprintf("intent %s is %s, not confirmed", intent.ID, intent.Status)}
		}
		payload["intent_id"] = intent.ID
	case TransitionCancel:
		if err := e.Repo.VoidIntentTx(ctx, tx, eng.ID, "engagement cancelled", now); err != nil {
			return eng, err
		}
	}

	if err := e.Repo.UpdateEngagementTx(ctx, tx, eng, priorVersion); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			// Lease-bypassing callers can still race; the guarded
			// update is the second line of defense.
			return eng, VersionConflictError{EngagementID: eng.ID, Expected: opts.ExpectedVersion, Actual: eng.Version}
		}
		return eng, err
	}
	evt := domain.TransitionEvent{
		EngagementID: eng.ID,
		Transition:   opts.Transition,
		PriorState:   priorState,
		NewState:     eng.State,
		Version:      eng.Version,
		ActorID:      opts.ActorID,
		TS:           now,
	}
	if err := e.Ledger.Append(ctx, tx, evt, payload); err != nil {
		return eng, err
	}
	if err := tx.Commit(); err != nil {
		return eng, err
	}
	return eng, nil
}

func (e Engine) reviewPendingDeliverable(ctx context.Context, tx *sql.Tx, engagementID, reviewState, notes, now string, payload ledger.Payload) error {
	d, err := e.Repo.LatestPendingDeliverableTx(ctx, tx, engagementID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ValidationError{Field: "deliverable", Reason: "no pending deliverable to review"}
		}
		return err
	}
	var notesPtr *string
	if notes != "" {
		notesPtr = &notes
	}
	if err := e.Repo.ReviewDeliverableTx(ctx, tx, d.ID, reviewState, notesPtr, now); err != nil {
		return err
	}
	payload["deliverable_id"] = d.ID
	payload["review_state"] = reviewState
	return nil
}

func (e Engine) authorize(ctx context.Context, eng domain.Engagement, transition, required, actorID string) error {
	var allowed bool
	switch required {
	case RoleCreator:
		allowed = actorID == eng.CreatorID
	case RoleSystem:
		allowed = actorID == e.Config.Payments.SystemActorID
	case RoleOwner, RoleParticipant:
		c, err := e.Repo.GetCampaign(ctx, eng.CampaignID)
		if err != nil {
			return err
		}
		allowed = actorID == c.OwnerID
		if required == RoleParticipant {
			allowed = allowed || actorID == eng.CreatorID
		}
	}
	if !allowed {
		return AuthorizationDeniedError{ActorID: actorID, Transition: transition, Required: required}
	}
	return nil
}

// VerifyProjections replays every engagement's ledger and reports the
// first drift found. Run at startup recovery and from the CLI.
func (e Engine) VerifyProjections(ctx context.Context) (int, error) {
	engs, err := e.Repo.ListEngagements(ctx, repo.EngagementFilters{})
	if err != nil {
		return 0, err
	}
	for _, eng := range engs {
		if err := e.Reader.Verify(ctx, eng); err != nil {
			return len(engs), err
		}
	}
	return len(engs), nil
}
