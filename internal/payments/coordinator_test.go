package payments_test

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
	"dealline/internal/payments"
)

// fakeProcessor scripts SubmitRelease/CheckRelease responses and counts
// calls.
type fakeProcessor struct {
	submitResult payments.ReleaseResult
	submitErr    error
	checkResult  payments.ReleaseResult
	checkErr     error
	submits      int
	checks       int
}

func (f *fakeProcessor) SubmitRelease(ctx context.Context, req payments.ReleaseRequest) (payments.ReleaseResult, error) {
	f.submits++
	return f.submitResult, f.submitErr
}

func (f *fakeProcessor) CheckRelease(ctx context.Context, intentID string) (payments.ReleaseResult, error) {
	f.checks++
	return f.checkResult, f.checkErr
}

type testEnv struct {
	Engine      engine.Engine
	Coordinator *payments.Coordinator
	Processor   *fakeProcessor
	Ctx         context.Context
}

// newTestEnv drives a fresh engagement to approved, leaving a pending
// intent at version 4.
func newTestEnv(t *testing.T) (testEnv, domain.PaymentIntent) {
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
	cfg.Payments.MaxAttempts = 3
	e := engine.New(conn, cfg)
	ctx := context.Background()
	if _, err := e.CreateCampaign(ctx, "camp-1", "owner-1", ""); err != nil {
		t.Fatalf("campaign: %v", err)
	}
	eng, err := e.CreateEngagement(ctx, "camp-1", "creator-1", "creator-1")
	if err != nil {
		t.Fatalf("engagement: %v", err)
	}
	steps := []engine.ApplyOptions{
		{EngagementID: eng.ID, Transition: "accept", ActorID: "owner-1", ExpectedVersion: 1},
		{EngagementID: eng.ID, Transition: "submit", ActorID: "creator-1", ExpectedVersion: 2, ContentRef: "ref"},
		{EngagementID: eng.ID, Transition: "approve", ActorID: "owner-1", ExpectedVersion: 3, AmountCents: 10000},
	}
	for _, s := range steps {
		if _, err := e.Apply(ctx, s); err != nil {
			t.Fatalf("apply %s: %v", s.Transition, err)
		}
	}
	proc := &fakeProcessor{}
	c := payments.NewCoordinator(e, cfg, proc)
	intent, err := e.Repo.GetIntent(ctx, domain.IntentID(eng.ID, 4))
	if err != nil {
		t.Fatalf("intent: %v", err)
	}
	return testEnv{Engine: e, Coordinator: c, Processor: proc, Ctx: ctx}, intent
}

func requireState(t *testing.T, env testEnv, engagementID, want string) {
	t.Helper()
	eng, err := env.Engine.Repo.GetEngagement(env.Ctx, engagementID)
	if err != nil {
		t.Fatalf("get engagement: %v", err)
	}
	if eng.State != want {
		t.Fatalf("engagement state %s, want %s", eng.State, want)
	}
}

func TestReleaseConfirmsAndSettles(t *testing.T) {
	env, intent := newTestEnv(t)
	env.Processor.submitResult = payments.ReleaseResult{Status: domain.IntentConfirmed, ProcessorRef: "tx-1"}
	got, err := env.Coordinator.Release(env.Ctx, intent.ID)
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if got.Status != domain.IntentConfirmed {
		t.Fatalf("intent status %s", got.Status)
	}
	if got.ProcessorRef == nil || *got.ProcessorRef != "tx-1" {
		t.Fatalf("missing processor ref")
	}
	requireState(t, env, intent.EngagementID, domain.StatePaid)

	// releasing again is a no-op, the processor is not called twice
	if _, err := env.Coordinator.Release(env.Ctx, intent.ID); err != nil {
		t.Fatalf("second release: %v", err)
	}
	if env.Processor.submits != 1 {
		t.Fatalf("expected 1 submit, got %d", env.Processor.submits)
	}
}

func TestAsyncCallbackSettles(t *testing.T) {
	env, intent := newTestEnv(t)
	env.Processor.submitResult = payments.ReleaseResult{Status: domain.IntentSubmitted}
	got, err := env.Coordinator.Release(env.Ctx, intent.ID)
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if got.Status != domain.IntentSubmitted {
		t.Fatalf("intent status %s", got.Status)
	}
	requireState(t, env, intent.EngagementID, domain.StateApproved)

	got, err = env.Coordinator.HandleCallback(env.Ctx, intent.ID, domain.IntentConfirmed, "tx-9")
	if err != nil {
		t.Fatalf("callback: %v", err)
	}
	if got.Status != domain.IntentConfirmed {
		t.Fatalf("intent status %s", got.Status)
	}
	requireState(t, env, intent.EngagementID, domain.StatePaid)

	// a late contradictory callback cannot regress the terminal status
	got, err = env.Coordinator.HandleCallback(env.Ctx, intent.ID, domain.IntentFailed, "")
	if err != nil {
		t.Fatalf("replayed callback: %v", err)
	}
	if got.Status != domain.IntentConfirmed {
		t.Fatalf("terminal status regressed to %s", got.Status)
	}
}

func TestProcessorOutageLeavesIntentOpen(t *testing.T) {
	env, intent := newTestEnv(t)
	env.Processor.submitErr = payments.ProcessorUnavailableError{Cause: errors.New("connection refused")}
	got, err := env.Coordinator.Release(env.Ctx, intent.ID)
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if got.Status != domain.IntentPending {
		t.Fatalf("intent status %s, want pending", got.Status)
	}
	if got.Attempts != 1 {
		t.Fatalf("attempts %d, want 1", got.Attempts)
	}
	if got.LastError == nil {
		t.Fatalf("last error not recorded")
	}
	requireState(t, env, intent.EngagementID, domain.StateApproved)
}

func TestAttemptBudgetExhaustion(t *testing.T) {
	env, intent := newTestEnv(t)
	env.Coordinator.Config.Payments.MaxAttempts = 2
	env.Processor.submitErr = payments.ProcessorUnavailableError{Cause: errors.New("down")}
	for i := 0; i < 2; i++ {
		if _, err := env.Coordinator.Release(env.Ctx, intent.ID); err != nil {
			t.Fatalf("release %d: %v", i, err)
		}
	}
	got, err := env.Coordinator.Release(env.Ctx, intent.ID)
	var re payments.ReconciliationExhaustedError
	if !errors.As(err, &re) {
		t.Fatalf("expected exhaustion, got %v", err)
	}
	if got.Status != domain.IntentFailed {
		t.Fatalf("intent status %s, want failed", got.Status)
	}
}

func TestReconcileBudgetExhaustionFailsIntent(t *testing.T) {
	env, intent := newTestEnv(t)
	env.Processor.submitResult = payments.ReleaseResult{Status: domain.IntentSubmitted}
	if _, err := env.Coordinator.Release(env.Ctx, intent.ID); err != nil {
		t.Fatalf("release: %v", err)
	}
	// submission consumed one attempt; two failed checks spend the rest
	env.Processor.checkErr = payments.ProcessorUnavailableError{Cause: errors.New("down")}
	if _, err := env.Coordinator.Reconcile(env.Ctx, intent.ID); err != nil {
		t.Fatalf("first reconcile: %v", err)
	}
	got, err := env.Coordinator.Reconcile(env.Ctx, intent.ID)
	var re payments.ReconciliationExhaustedError
	if !errors.As(err, &re) {
		t.Fatalf("expected exhaustion, got %v", err)
	}
	if got.Status != domain.IntentFailed {
		t.Fatalf("intent status %s, want failed", got.Status)
	}
	requireState(t, env, intent.EngagementID, domain.StateApproved)

	// the failed intent is terminal: no more processor calls
	checks := env.Processor.checks
	if _, err := env.Coordinator.Reconcile(env.Ctx, intent.ID); err != nil {
		t.Fatalf("reconcile after failure: %v", err)
	}
	env.Coordinator.SweepOnce(env.Ctx)
	if env.Processor.checks != checks {
		t.Fatalf("failed intent was re-driven, checks %d -> %d", checks, env.Processor.checks)
	}
}

func TestReconcileSettlesSubmitted(t *testing.T) {
	env, intent := newTestEnv(t)
	env.Processor.submitResult = payments.ReleaseResult{Status: domain.IntentSubmitted}
	if _, err := env.Coordinator.Release(env.Ctx, intent.ID); err != nil {
		t.Fatalf("release: %v", err)
	}
	env.Processor.checkResult = payments.ReleaseResult{Status: domain.IntentConfirmed, ProcessorRef: "tx-2"}
	got, err := env.Coordinator.Reconcile(env.Ctx, intent.ID)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if got.Status != domain.IntentConfirmed {
		t.Fatalf("intent status %s", got.Status)
	}
	requireState(t, env, intent.EngagementID, domain.StatePaid)
}

func TestFailedReleaseDoesNotPay(t *testing.T) {
	env, intent := newTestEnv(t)
	env.Processor.submitResult = payments.ReleaseResult{Status: domain.IntentFailed, Reason: "account closed"}
	got, err := env.Coordinator.Release(env.Ctx, intent.ID)
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if got.Status != domain.IntentFailed {
		t.Fatalf("intent status %s", got.Status)
	}
	requireState(t, env, intent.EngagementID, domain.StateApproved)
}

func TestSweepRedrivesStaleIntents(t *testing.T) {
	env, intent := newTestEnv(t)
	env.Processor.submitResult = payments.ReleaseResult{Status: domain.IntentConfirmed, ProcessorRef: "tx-3"}
	// make every open intent look stale
	env.Coordinator.Now = func() time.Time {
		return time.Now().Add(time.Duration(env.Coordinator.Config.Payments.StaleAfterSeconds+60) * time.Second)
	}
	env.Coordinator.SweepOnce(env.Ctx)
	got, err := env.Engine.Repo.GetIntent(env.Ctx, intent.ID)
	if err != nil {
		t.Fatalf("intent: %v", err)
	}
	if got.Status != domain.IntentConfirmed {
		t.Fatalf("sweep did not settle, status %s", got.Status)
	}
	requireState(t, env, intent.EngagementID, domain.StatePaid)
}
