package gate_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"dealline/internal/config"
	"dealline/internal/gate"
)

func newTestGate(t *testing.T, limit, windowSec, ttlSec int) (*gate.Gate, *time.Time) {
	t.Helper()
	cfg := config.Default()
	cfg.Gate.RequestsPerWindow = limit
	cfg.Gate.WindowSeconds = windowSec
	cfg.Gate.LeaseTTLSeconds = ttlSec
	g := gate.New(cfg)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	g.Now = func() time.Time { return now }
	return g, &now
}

func TestSlidingWindowLimit(t *testing.T) {
	g, now := newTestGate(t, 3, 60, 30)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := g.Admit(ctx, "actor-1", ""); err != nil {
			t.Fatalf("admit %d: %v", i, err)
		}
	}
	err := g.Admit(ctx, "actor-1", "")
	var rl gate.RateLimitedError
	if !errors.As(err, &rl) {
		t.Fatalf("expected rate limited, got %v", err)
	}
	if rl.RetryAfter <= 0 || rl.RetryAfter > time.Minute {
		t.Fatalf("unexpected retry-after %s", rl.RetryAfter)
	}
	// other actors are not affected
	if err := g.Admit(ctx, "actor-2", ""); err != nil {
		t.Fatalf("independent actor: %v", err)
	}
	// once the window slides past the oldest request, a slot opens
	*now = now.Add(61 * time.Second)
	if err := g.Admit(ctx, "actor-1", ""); err != nil {
		t.Fatalf("admit after window: %v", err)
	}
}

func TestDeniedAttemptsDoNotExtendWindow(t *testing.T) {
	g, now := newTestGate(t, 1, 60, 30)
	ctx := context.Background()
	if err := g.Admit(ctx, "actor-1", ""); err != nil {
		t.Fatalf("first admit: %v", err)
	}
	for i := 0; i < 5; i++ {
		*now = now.Add(10 * time.Second)
		if err := g.Admit(ctx, "actor-1", ""); err == nil {
			t.Fatalf("expected denial at %s", now)
		}
	}
	// 61s after the only counted request the window is clear, even
	// though denials kept arriving
	*now = now.Add(11 * time.Second)
	if err := g.Admit(ctx, "actor-1", ""); err != nil {
		t.Fatalf("admit after window: %v", err)
	}
}

func TestLeaseExclusivity(t *testing.T) {
	g, _ := newTestGate(t, 100, 60, 30)
	ctx := context.Background()
	if err := g.Admit(ctx, "actor-1", "eng-1"); err != nil {
		t.Fatalf("first lease: %v", err)
	}
	// another actor is shut out while the lease is held
	if err := g.Admit(ctx, "actor-2", "eng-1"); !errors.Is(err, gate.ErrAlreadyInFlight) {
		t.Fatalf("expected in-flight error, got %v", err)
	}
	// so is a duplicate request from the holder itself
	if err := g.Admit(ctx, "actor-1", "eng-1"); !errors.Is(err, gate.ErrAlreadyInFlight) {
		t.Fatalf("expected in-flight error for duplicate, got %v", err)
	}
	// a different engagement is independent
	if err := g.Admit(ctx, "actor-2", "eng-2"); err != nil {
		t.Fatalf("other engagement: %v", err)
	}
	// release frees the lease for others
	g.Release("actor-1", "eng-1")
	if err := g.Admit(ctx, "actor-2", "eng-1"); err != nil {
		t.Fatalf("after release: %v", err)
	}
}

func TestLeaseExpiry(t *testing.T) {
	g, now := newTestGate(t, 100, 60, 30)
	ctx := context.Background()
	if err := g.Admit(ctx, "actor-1", "eng-1"); err != nil {
		t.Fatalf("lease: %v", err)
	}
	*now = now.Add(31 * time.Second)
	if err := g.Admit(ctx, "actor-2", "eng-1"); err != nil {
		t.Fatalf("expected lapsed lease to be claimable: %v", err)
	}
}

func TestReleaseByNonOwnerIgnored(t *testing.T) {
	g, _ := newTestGate(t, 100, 60, 30)
	ctx := context.Background()
	if err := g.Admit(ctx, "actor-1", "eng-1"); err != nil {
		t.Fatalf("lease: %v", err)
	}
	g.Release("actor-2", "eng-1")
	if err := g.Admit(ctx, "actor-2", "eng-1"); !errors.Is(err, gate.ErrAlreadyInFlight) {
		t.Fatalf("lease should still be held, got %v", err)
	}
}

func TestPruneDropsExpiredLeases(t *testing.T) {
	g, now := newTestGate(t, 100, 60, 30)
	ctx := context.Background()
	if err := g.Admit(ctx, "actor-1", "eng-1"); err != nil {
		t.Fatalf("lease: %v", err)
	}
	*now = now.Add(31 * time.Second)
	g.Prune()
	if err := g.Admit(ctx, "actor-2", "eng-1"); err != nil {
		t.Fatalf("after prune: %v", err)
	}
}
