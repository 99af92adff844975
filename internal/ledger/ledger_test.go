package ledger_test

import (
	"errors"
	"strings"
	"testing"

	"dealline/internal/domain"
	"dealline/internal/ledger"
)

func evt(version int64, prior, next string) domain.TransitionEvent {
	return domain.TransitionEvent{
		EngagementID: "eng-1",
		Transition:   "t",
		PriorState:   prior,
		NewState:     next,
		Version:      version,
		ActorID:      "a",
		TS:           "2026-01-01T00:00:00Z",
	}
}

func TestFoldHappyPath(t *testing.T) {
	events := []domain.TransitionEvent{
		evt(1, "", domain.StateApplied),
		evt(2, domain.StateApplied, domain.StateAccepted),
		evt(3, domain.StateAccepted, domain.StateInProgress),
	}
	e, err := ledger.Fold("eng-1", events)
	if err != nil {
		t.Fatalf("fold: %v", err)
	}
	if e.State != domain.StateInProgress || e.Version != 3 {
		t.Fatalf("unexpected projection %s v%d", e.State, e.Version)
	}
}

func TestFoldEmptyLedger(t *testing.T) {
	if _, err := ledger.Fold("eng-1", nil); !errors.Is(err, ledger.ErrEmptyLedger) {
		t.Fatalf("expected ErrEmptyLedger, got %v", err)
	}
}

func TestFoldDetectsVersionGap(t *testing.T) {
	events := []domain.TransitionEvent{
		evt(1, "", domain.StateApplied),
		evt(3, domain.StateApplied, domain.StateAccepted),
	}
	_, err := ledger.Fold("eng-1", events)
	if err == nil || !strings.Contains(err.Error(), "gap") {
		t.Fatalf("expected gap error, got %v", err)
	}
}

func TestFoldDetectsFork(t *testing.T) {
	events := []domain.TransitionEvent{
		evt(1, "", domain.StateApplied),
		evt(2, domain.StateAccepted, domain.StateInProgress),
	}
	_, err := ledger.Fold("eng-1", events)
	if err == nil || !strings.Contains(err.Error(), "fork") {
		t.Fatalf("expected fork error, got %v", err)
	}
}

func TestFoldRequiresCreationFirst(t *testing.T) {
	events := []domain.TransitionEvent{
		evt(1, domain.StateApplied, domain.StateAccepted),
	}
	if _, err := ledger.Fold("eng-1", events); err == nil {
		t.Fatalf("expected creation error")
	}
}
