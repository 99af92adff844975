package payments

import (
	"context"
	"errors"
	"log"
	"time"

	"dealline/internal/config"
	"dealline/internal/domain"
	"dealline/internal/engine"
	"dealline/internal/repo"
)

// Coordinator drives payment intents from pending to a terminal status
// and advances the engagement to paid once the processor confirms. All
// of its entry points are idempotent: re-running any of them against an
// already-settled intent is a no-op.
type Coordinator struct {
	Engine    engine.Engine
	Repo      repo.Repo
	Config    *config.Config
	Processor Processor
	Now       func() time.Time
}

func NewCoordinator(e engine.Engine, cfg *config.Config, p Processor) *Coordinator {
	return &Coordinator{
		Engine:    e,
		Repo:      e.Repo,
		Config:    cfg,
		Processor: p,
		Now:       time.Now,
	}
}

func (c *Coordinator) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// Release submits a pending intent to the processor. Safe to call any
// number of times: a submitted intent falls through to reconciliation,
// a terminal intent is returned unchanged.
func (c *Coordinator) Release(ctx context.Context, intentID string) (domain.PaymentIntent, error) {
	intent, err := c.Repo.GetIntent(ctx, intentID)
	if err != nil {
		return intent, err
	}
	switch intent.Status {
	case domain.IntentConfirmed, domain.IntentFailed:
		return intent, nil
	case domain.IntentSubmitted:
		return c.Reconcile(ctx, intentID)
	}
	if intent.Attempts >= c.Config.Payments.MaxAttempts {
		return c.exhaust(ctx, intent)
	}
	result, err := c.Processor.SubmitRelease(ctx, ReleaseRequest{
		IntentID:     intent.ID,
		EngagementID: intent.EngagementID,
		AmountCents:  intent.AmountCents,
		Currency:     c.Config.Payments.Currency,
	})
	if err != nil {
		if recErr := c.Repo.RecordIntentAttempt(ctx, intent.ID, err.Error()); recErr != nil {
			return intent, recErr
		}
		return c.Repo.GetIntent(ctx, intentID)
	}
	return c.apply(ctx, intent, result)
}

// Reconcile asks the processor for the authoritative status of an
// intent and settles it accordingly. Used for submitted intents whose
// callback never arrived.
func (c *Coordinator) Reconcile(ctx context.Context, intentID string) (domain.PaymentIntent, error) {
	intent, err := c.Repo.GetIntent(ctx, intentID)
	if err != nil {
		return intent, err
	}
	if intent.Status == domain.IntentConfirmed || intent.Status == domain.IntentFailed {
		return intent, nil
	}
	result, err := c.Processor.CheckRelease(ctx, intent.ID)
	if err != nil {
		if recErr := c.Repo.RecordIntentAttempt(ctx, intent.ID, err.Error()); recErr != nil {
			return intent, recErr
		}
		updated, getErr := c.Repo.GetIntent(ctx, intentID)
		if getErr != nil {
			return intent, getErr
		}
		// A spent budget fails the intent; leaving it submitted would
		// have the sweep re-driving it forever.
		if updated.Attempts >= c.Config.Payments.MaxAttempts {
			return c.exhaust(ctx, updated)
		}
		return updated, nil
	}
	return c.apply(ctx, intent, result)
}

// HandleCallback processes an asynchronous processor notification.
// Terminal statuses are sticky, so replayed or out-of-order callbacks
// cannot regress an intent.
func (c *Coordinator) HandleCallback(ctx context.Context, intentID, status, processorRef string) (domain.PaymentIntent, error) {
	intent, err := c.Repo.GetIntent(ctx, intentID)
	if err != nil {
		return intent, err
	}
	var ref *string
	if processorRef != "" {
		ref = &processorRef
	}
	switch status {
	case domain.IntentConfirmed:
		changed, err := c.Repo.ResolveIntent(ctx, intentID, domain.IntentConfirmed, ref)
		if err != nil {
			return intent, err
		}
		if changed {
			if err := c.settle(ctx, intent); err != nil {
				return intent, err
			}
		}
	case domain.IntentFailed:
		if _, err := c.Repo.ResolveIntent(ctx, intentID, domain.IntentFailed, ref); err != nil {
			return intent, err
		}
	}
	return c.Repo.GetIntent(ctx, intentID)
}

func (c *Coordinator) apply(ctx context.Context, intent domain.PaymentIntent, result ReleaseResult) (domain.PaymentIntent, error) {
	switch result.Status {
	case domain.IntentConfirmed:
		var ref *string
		if result.ProcessorRef != "" {
			ref = &result.ProcessorRef
		}
		changed, err := c.Repo.ResolveIntent(ctx, intent.ID, domain.IntentConfirmed, ref)
		if err != nil {
			return intent, err
		}
		if changed {
			if err := c.settle(ctx, intent); err != nil {
				return intent, err
			}
		}
	case domain.IntentFailed:
		reason := result.Reason
		if reason == "" {
			reason = "rejected by processor"
		}
		if err := c.Repo.RecordIntentAttempt(ctx, intent.ID, reason); err != nil {
			return intent, err
		}
		if _, err := c.Repo.ResolveIntent(ctx, intent.ID, domain.IntentFailed, nil); err != nil {
			return intent, err
		}
	default:
		if err := c.Repo.MarkIntentSubmitted(ctx, intent.ID); err != nil {
			return intent, err
		}
	}
	return c.Repo.GetIntent(ctx, intent.ID)
}

// settle moves the engagement to paid once its intent confirmed. The
// intent's version is the engagement version at approval, which is the
// expected version for the pay transition.
func (c *Coordinator) settle(ctx context.Context, intent domain.PaymentIntent) error {
	_, err := c.Engine.Apply(ctx, engine.ApplyOptions{
		EngagementID:    intent.EngagementID,
		Transition:      "pay",
		ActorID:         c.Config.Payments.SystemActorID,
		ExpectedVersion: intent.Version,
	})
	if err == nil {
		return nil
	}
	var conflict engine.VersionConflictError
	if errors.As(err, &conflict) {
		// The engagement moved past approval (cancelled, or already
		// paid by a concurrent settle). The ledger has the answer.
		eng, getErr := c.Repo.GetEngagement(ctx, intent.EngagementID)
		if getErr != nil {
			return getErr
		}
		if eng.State == domain.StatePaid || eng.State == domain.StateCancelled {
			return nil
		}
	}
	return err
}

func (c *Coordinator) exhaust(ctx context.Context, intent domain.PaymentIntent) (domain.PaymentIntent, error) {
	if _, err := c.Repo.ResolveIntent(ctx, intent.ID, domain.IntentFailed, nil); err != nil {
		return intent, err
	}
	updated, err := c.Repo.GetIntent(ctx, intent.ID)
	if err != nil {
		return intent, err
	}
	return updated, ReconciliationExhaustedError{IntentID: intent.ID, Attempts: intent.Attempts}
}

// StartSweep launches the background loop that re-drives stale open
// intents after crashes and lost callbacks. Stops when ctx is done.
func (c *Coordinator) StartSweep(ctx context.Context) {
	interval := time.Duration(c.Config.Payments.SweepIntervalSeconds) * time.Second
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			c.SweepOnce(ctx)
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
	}()
}

// SweepOnce re-drives every open intent untouched since the staleness
// cutoff: pending intents are resubmitted, submitted ones reconciled.
func (c *Coordinator) SweepOnce(ctx context.Context) {
	cutoff := c.now().UTC().Add(-time.Duration(c.Config.Payments.StaleAfterSeconds) * time.Second).Format(time.RFC3339)
	intents, err := c.Repo.ListOpenIntents(ctx, cutoff, 100)
	if err != nil {
		log.Printf("sweep: list open intents failed: %v", err)
		return
	}
	for _, intent := range intents {
		var err error
		switch intent.Status {
		case domain.IntentPending:
			_, err = c.Release(ctx, intent.ID)
		case domain.IntentSubmitted:
			_, err = c.Reconcile(ctx, intent.ID)
		}
		if err != nil {
			log.Printf("sweep: intent %s: %v", intent.ID, err)
		}
	}
}
