package gate

import (
	"errors"
	"fmt"
	"time"
)

// ErrAlreadyInFlight means another actor holds the engagement lease.
var ErrAlreadyInFlight = errors.New("another request for this engagement is in flight")

// RateLimitedError reports a full admission window. RetryAfter is the
// time until the oldest counted request leaves the window.
type RateLimitedError struct {
	ActorID    string
	RetryAfter time.Duration
}

func (e RateLimitedError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s, retry in %s", e.ActorID, e.RetryAfter.Round(time.Second))
}
