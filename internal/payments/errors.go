package payments

import "fmt"

// ProcessorUnavailableError wraps a transport or 5xx failure talking to
// the payment processor. The intent stays open for the sweep.
type ProcessorUnavailableError struct {
	Cause error
}

func (e ProcessorUnavailableError) Error() string {
	return fmt.Sprintf("payment processor unavailable: %v", e.Cause)
}

func (e ProcessorUnavailableError) Unwrap() error { return e.Cause }

// ReconciliationExhaustedError means an intent hit the attempt budget
// without reaching a terminal status. Operator attention required.
type ReconciliationExhaustedError struct {
	IntentID string
	Attempts int
}

func (e ReconciliationExhaustedError) Error() string {
	return fmt.Sprintf("intent %s unresolved after %d attempts", e.IntentID, e.Attempts)
}
