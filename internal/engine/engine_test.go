package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"dealline/internal/config"
	"dealline/internal/db"
	"dealline/internal/domain"
	"dealline/internal/engine"
	"dealline/internal/migrate"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default()
	eng := engine.New(conn, cfg)
	eng.Now = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }
	ctx := context.Background()
	if _, err := eng.CreateCampaign(ctx, "camp-1", "owner-1", "Test Campaign"); err != nil {
		t.Fatalf("create campaign: %v", err)
	}
	return testEnv{Engine: eng, Ctx: ctx}
}

func mustApply(t *testing.T, env testEnv, opts engine.ApplyOptions) domain.Engagement {
	t.Helper()
	eng, err := env.Engine.Apply(env.Ctx, opts)
	if err != nil {
		t.Fatalf("apply %s: %v", opts.Transition, err)
	}
	return eng
}

func newEngagement(t *testing.T, env testEnv) domain.Engagement {
	t.Helper()
	eng, err := env.Engine.CreateEngagement(env.Ctx, "camp-1", "creator-1", "creator-1")
	if err != nil {
		t.Fatalf("create engagement: %v", err)
	}
	return eng
}

func TestLifecycleHappyPath(t *testing.T) {
	env := newTestEnv(t)
	eng := newEngagement(t, env)
	if eng.State != domain.StateApplied || eng.Version != 1 {
		t.Fatalf("unexpected initial state %s v%d", eng.State, eng.Version)
	}

	eng = mustApply(t, env, engine.ApplyOptions{EngagementID: eng.ID, Transition: "accept", ActorID: "owner-1", ExpectedVersion: 1})
	if eng.State != domain.StateAccepted || eng.Version != 2 {
		t.Fatalf("after accept: %s v%d", eng.State, eng.Version)
	}
	eng = mustApply(t, env, engine.ApplyOptions{EngagementID: eng.ID, Transition: "start", ActorID: "creator-1", ExpectedVersion: 2})
	if eng.State != domain.StateInProgress {
		t.Fatalf("after start: %s", eng.State)
	}
	eng = mustApply(t, env, engine.ApplyOptions{EngagementID: eng.ID, Transition: "submit", ActorID: "creator-1", ExpectedVersion: 3, ContentRef: "https://cdn.example.com/v/abc"})
	if eng.State != domain.StateSubmitted {
		t.Fatalf("after submit: %s", eng.State)
	}
	eng = mustApply(t, env, engine.ApplyOptions{EngagementID: eng.ID, Transition: "approve", ActorID: "owner-1", ExpectedVersion: 4, AmountCents: 250000})
	if eng.State != domain.StateApproved || eng.Version != 5 {
		t.Fatalf("after approve: %s v%d", eng.State, eng.Version)
	}

	// approval enqueued a pending intent at the approval version
	intentID := domain.IntentID(eng.ID, 5)
	intent, err := env.Engine.Repo.GetIntent(env.Ctx, intentID)
	if err != nil {
		t.Fatalf("get intent: %v", err)
	}
	if intent.Status != domain.IntentPending || intent.AmountCents != 250000 {
		t.Fatalf("unexpected intent %s amount %d", intent.Status, intent.AmountCents)
	}

	// pay requires a confirmed intent
	_, err = env.Engine.Apply(env.Ctx, engine.ApplyOptions{EngagementID: eng.ID, Transition: "pay", ActorID: "payment-coordinator", ExpectedVersion: 5})
	var ve engine.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := env.Engine.Repo.ResolveIntent(env.Ctx, intentID, domain.IntentConfirmed, nil); err != nil {
		t.Fatalf("resolve intent: %v", err)
	}
	eng = mustApply(t, env, engine.ApplyOptions{EngagementID: eng.ID, Transition: "pay", ActorID: "payment-coordinator", ExpectedVersion: 5})
	if eng.State != domain.StatePaid || eng.Version != 6 {
		t.Fatalf("after pay: %s v%d", eng.State, eng.Version)
	}

	// paid is terminal
	_, err = env.Engine.Apply(env.Ctx, engine.ApplyOptions{EngagementID: eng.ID, Transition: "cancel", ActorID: "owner-1", ExpectedVersion: 6})
	var it engine.InvalidTransitionError
	if !errors.As(err, &it) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
}

func TestInvalidTransition(t *testing.T) {
	env := newTestEnv(t)
	eng := newEngagement(t, env)
	_, err := env.Engine.Apply(env.Ctx, engine.ApplyOptions{EngagementID: eng.ID, Transition: "submit", ActorID: "creator-1", ExpectedVersion: 1, ContentRef: "x"})
	var it engine.InvalidTransitionError
	if !errors.As(err, &it) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
	if it.State != domain.StateApplied || it.Transition != "submit" {
		t.Fatalf("unexpected error payload %+v", it)
	}
}

func TestVersionConflict(t *testing.T) {
	env := newTestEnv(t)
	eng := newEngagement(t, env)
	mustApply(t, env, engine.ApplyOptions{EngagementID: eng.ID, Transition: "accept", ActorID: "owner-1", ExpectedVersion: 1})
	// second writer still holds version 1
	_, err := env.Engine.Apply(env.Ctx, engine.ApplyOptions{EngagementID: eng.ID, Transition: "reject", ActorID: "owner-1", ExpectedVersion: 1})
	var vc engine.VersionConflictError
	if !errors.As(err, &vc) {
		t.Fatalf("expected version conflict, got %v", err)
	}
	if vc.Expected != 1 || vc.Actual != 2 {
		t.Fatalf("unexpected versions %+v", vc)
	}
}

func TestRoleGating(t *testing.T) {
	env := newTestEnv(t)
	eng := newEngagement(t, env)
	// creator cannot accept their own application
	_, err := env.Engine.Apply(env.Ctx, engine.ApplyOptions{EngagementID: eng.ID, Transition: "accept", ActorID: "creator-1", ExpectedVersion: 1})
	var ad engine.AuthorizationDeniedError
	if !errors.As(err, &ad) {
		t.Fatalf("expected authorization denied, got %v", err)
	}
	eng = mustApply(t, env, engine.ApplyOptions{EngagementID: eng.ID, Transition: "accept", ActorID: "owner-1", ExpectedVersion: 1})
	// owner cannot start work on the creator's behalf
	_, err = env.Engine.Apply(env.Ctx, engine.ApplyOptions{EngagementID: eng.ID, Transition: "start", ActorID: "owner-1", ExpectedVersion: 2})
	if !errors.As(err, &ad) {
		t.Fatalf("expected authorization denied, got %v", err)
	}
	// a stranger cannot cancel
	_, err = env.Engine.Apply(env.Ctx, engine.ApplyOptions{EngagementID: eng.ID, Transition: "cancel", ActorID: "rando", ExpectedVersion: 2})
	if !errors.As(err, &ad) {
		t.Fatalf("expected authorization denied, got %v", err)
	}
	// ordinary actors cannot pay
	_, err = env.Engine.Apply(env.Ctx, engine.ApplyOptions{EngagementID: eng.ID, Transition: "pay", ActorID: "owner-1", ExpectedVersion: 2})
	var it engine.InvalidTransitionError
	if !errors.As(err, &it) {
		t.Fatalf("expected invalid transition from accepted, got %v", err)
	}
}

func TestRejectApplication(t *testing.T) {
	env := newTestEnv(t)
	eng := newEngagement(t, env)
	// rejecting a bare application has no deliverable to review
	eng = mustApply(t, env, engine.ApplyOptions{EngagementID: eng.ID, Transition: "reject", ActorID: "owner-1", ExpectedVersion: 1, Notes: "not a fit"})
	if eng.State != domain.StateRejected || eng.Version != 2 {
		t.Fatalf("after reject: %s v%d", eng.State, eng.Version)
	}
	_, err := env.Engine.Apply(env.Ctx, engine.ApplyOptions{EngagementID: eng.ID, Transition: "accept", ActorID: "owner-1", ExpectedVersion: 2})
	var it engine.InvalidTransitionError
	if !errors.As(err, &it) {
		t.Fatalf("rejected is terminal, got %v", err)
	}
}

func TestSubmitRequiresContentRef(t *testing.T) {
	env := newTestEnv(t)
	eng := newEngagement(t, env)
	eng = mustApply(t, env, engine.ApplyOptions{EngagementID: eng.ID, Transition: "accept", ActorID: "owner-1", ExpectedVersion: 1})
	_, err := env.Engine.Apply(env.Ctx, engine.ApplyOptions{EngagementID: eng.ID, Transition: "submit", ActorID: "creator-1", ExpectedVersion: 2})
	var ve engine.ValidationError
	if !errors.As(err, &ve) || ve.Field != "content_ref" {
		t.Fatalf("expected content_ref validation error, got %v", err)
	}
}

func TestApproveRequiresPositiveAmount(t *testing.T) {
	env := newTestEnv(t)
	eng := newEngagement(t, env)
	eng = mustApply(t, env, engine.ApplyOptions{EngagementID: eng.ID, Transition: "accept", ActorID: "owner-1", ExpectedVersion: 1})
	eng = mustApply(t, env, engine.ApplyOptions{EngagementID: eng.ID, Transition: "submit", ActorID: "creator-1", ExpectedVersion: 2, ContentRef: "ref"})
	_, err := env.Engine.Apply(env.Ctx, engine.ApplyOptions{EngagementID: eng.ID, Transition: "approve", ActorID: "owner-1", ExpectedVersion: 3})
	var ve engine.ValidationError
	if !errors.As(err, &ve) || ve.Field != "amount_cents" {
		t.Fatalf("expected amount_cents validation error, got %v", err)
	}
}

func TestRequestChangesReopensWork(t *testing.T) {
	env := newTestEnv(t)
	eng := newEngagement(t, env)
	eng = mustApply(t, env, engine.ApplyOptions{EngagementID: eng.ID, Transition: "accept", ActorID: "owner-1", ExpectedVersion: 1})
	eng = mustApply(t, env, engine.ApplyOptions{EngagementID: eng.ID, Transition: "submit", ActorID: "creator-1", ExpectedVersion: 2, ContentRef: "v1"})
	eng = mustApply(t, env, engine.ApplyOptions{EngagementID: eng.ID, Transition: "request_changes", ActorID: "owner-1", ExpectedVersion: 3, Notes: "too short"})
	if eng.State != domain.StateInProgress {
		t.Fatalf("after request_changes: %s", eng.State)
	}
	// the reviewed deliverable is rejected; a new submission works
	items, err := env.Engine.Repo.ListDeliverables(env.Ctx, eng.ID)
	if err != nil {
		t.Fatalf("list deliverables: %v", err)
	}
	if len(items) != 1 || items[0].ReviewState != domain.ReviewRejected {
		t.Fatalf("unexpected deliverables %+v", items)
	}
	eng = mustApply(t, env, engine.ApplyOptions{EngagementID: eng.ID, Transition: "submit", ActorID: "creator-1", ExpectedVersion: 4, ContentRef: "v2"})
	if eng.State != domain.StateSubmitted {
		t.Fatalf("after resubmit: %s", eng.State)
	}
}

func TestCancelVoidsOpenIntent(t *testing.T) {
	env := newTestEnv(t)
	eng := newEngagement(t, env)
	eng = mustApply(t, env, engine.ApplyOptions{EngagementID: eng.ID, Transition: "accept", ActorID: "owner-1", ExpectedVersion: 1})
	eng = mustApply(t, env, engine.ApplyOptions{EngagementID: eng.ID, Transition: "submit", ActorID: "creator-1", ExpectedVersion: 2, ContentRef: "ref"})
	eng = mustApply(t, env, engine.ApplyOptions{EngagementID: eng.ID, Transition: "approve", ActorID: "owner-1", ExpectedVersion: 3, AmountCents: 1000})
	eng = mustApply(t, env, engine.ApplyOptions{EngagementID: eng.ID, Transition: "cancel", ActorID: "owner-1", ExpectedVersion: 4})
	if eng.State != domain.StateCancelled {
		t.Fatalf("after cancel: %s", eng.State)
	}
	intent, err := env.Engine.Repo.GetIntent(env.Ctx, domain.IntentID(eng.ID, 4))
	if err != nil {
		t.Fatalf("get intent: %v", err)
	}
	if intent.Status != domain.IntentFailed {
		t.Fatalf("expected voided intent, got %s", intent.Status)
	}
}

func TestApproveIdempotentIntentEnqueue(t *testing.T) {
	env := newTestEnv(t)
	eng := newEngagement(t, env)
	eng = mustApply(t, env, engine.ApplyOptions{EngagementID: eng.ID, Transition: "accept", ActorID: "owner-1", ExpectedVersion: 1})
	eng = mustApply(t, env, engine.ApplyOptions{EngagementID: eng.ID, Transition: "submit", ActorID: "creator-1", ExpectedVersion: 2, ContentRef: "ref"})
	eng = mustApply(t, env, engine.ApplyOptions{EngagementID: eng.ID, Transition: "approve", ActorID: "owner-1", ExpectedVersion: 3, AmountCents: 500})
	// a retried approve with the stale version conflicts instead of
	// double-enqueueing
	_, err := env.Engine.Apply(env.Ctx, engine.ApplyOptions{EngagementID: eng.ID, Transition: "approve", ActorID: "owner-1", ExpectedVersion: 3, AmountCents: 500})
	var vc engine.VersionConflictError
	if !errors.As(err, &vc) {
		t.Fatalf("expected version conflict, got %v", err)
	}
	intents, err := env.Engine.Repo.ListIntents(env.Ctx, "", 10)
	if err != nil {
		t.Fatalf("list intents: %v", err)
	}
	if len(intents) != 1 {
		t.Fatalf("expected single intent, got %d", len(intents))
	}
}

func TestDuplicateApplicationRejected(t *testing.T) {
	env := newTestEnv(t)
	newEngagement(t, env)
	if _, err := env.Engine.CreateEngagement(env.Ctx, "camp-1", "creator-1", "creator-1"); err == nil {
		t.Fatalf("expected duplicate application to fail")
	}
}

func TestLedgerAndProjectionStayConsistent(t *testing.T) {
	env := newTestEnv(t)
	eng := newEngagement(t, env)
	eng = mustApply(t, env, engine.ApplyOptions{EngagementID: eng.ID, Transition: "accept", ActorID: "owner-1", ExpectedVersion: 1})
	eng = mustApply(t, env, engine.ApplyOptions{EngagementID: eng.ID, Transition: "start", ActorID: "creator-1", ExpectedVersion: 2})

	events, err := env.Engine.Reader.ByEngagement(env.Ctx, eng.ID)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	for i, evt := range events {
		if evt.Version != int64(i)+1 {
			t.Fatalf("event %d has version %d", i, evt.Version)
		}
	}
	replayed, err := env.Engine.Reader.Replay(env.Ctx, eng.ID)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if replayed.State != eng.State || replayed.Version != eng.Version {
		t.Fatalf("replay mismatch: (%s, v%d) vs (%s, v%d)", replayed.State, replayed.Version, eng.State, eng.Version)
	}
	if n, err := env.Engine.VerifyProjections(env.Ctx); err != nil || n != 1 {
		t.Fatalf("verify: n=%d err=%v", n, err)
	}
}

func TestFailedTransitionLeavesNoTrace(t *testing.T) {
	env := newTestEnv(t)
	eng := newEngagement(t, env)
	eng = mustApply(t, env, engine.ApplyOptions{EngagementID: eng.ID, Transition: "accept", ActorID: "owner-1", ExpectedVersion: 1})
	// submit without content fails after the engine already opened a tx
	_, err := env.Engine.Apply(env.Ctx, engine.ApplyOptions{EngagementID: eng.ID, Transition: "submit", ActorID: "creator-1", ExpectedVersion: 2})
	if err == nil {
		t.Fatalf("expected failure")
	}
	events, err := env.Engine.Reader.ByEngagement(env.Ctx, eng.ID)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("rejected transition must not append, have %d events", len(events))
	}
	stored, err := env.Engine.Repo.GetEngagement(env.Ctx, eng.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Version != 2 || stored.State != domain.StateAccepted {
		t.Fatalf("projection moved on failure: %s v%d", stored.State, stored.Version)
	}
}
