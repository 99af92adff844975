package engine

import "fmt"

// InvalidTransitionError reports a (state, transition) pair absent from
// the transition table. Caller error, never retried.
type InvalidTransitionError struct {
	State      string
	Transition string
}

func (e InvalidTransitionError) Error() string {
	return fmt.Sprintf("transition %s not allowed from state %s", e.Transition, e.State)
}

// VersionConflictError reports a stale expected version. The caller
// must re-read and retry; the engine never retries on its behalf.
type VersionConflictError struct {
	EngagementID string
	Expected     int64
	Actual       int64
}

func (e VersionConflictError) Error() string {
	return fmt.Sprintf("version conflict on %s: expected %d, have %d", e.EngagementID, e.Expected, e.Actual)
}

// AuthorizationDeniedError reports an actor lacking the role a
// transition requires.
type AuthorizationDeniedError struct {
	ActorID    string
	Transition string
	Required   string
}

func (e AuthorizationDeniedError) Error() string {
	return fmt.Sprintf("actor %s is not the %s required for transition %s", e.ActorID, e.Required, e.Transition)
}

// ValidationError reports a malformed transition payload.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
