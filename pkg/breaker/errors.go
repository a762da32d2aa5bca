package breaker

import (
	"errors"
	"fmt"
	"time"
)

// ErrOpen is the sentinel matched by errors.Is for rejections raised by an
// open breaker. The concrete error is always *OpenError.
var ErrOpen = errors.New("circuit breaker is open")

// OpenError is returned when a call is rejected because the breaker is OPEN.
// It is synthesized by the breaker itself and never originates from the
// wrapped call; callers should treat it as "try later".
type OpenError struct {
	Service      string
	FailureCount int
	LastFailure  time.Time

	since time.Duration
}

// NewOpenError builds the rejection error on a breaker's behalf, for
// callers that consult CanExecute and skip the call themselves. since is
// the age of the breaker's last recorded failure at rejection time.
func NewOpenError(service string, failureCount int, lastFailure time.Time, since time.Duration) *OpenError {
	return &OpenError{
		Service:      service,
		FailureCount: failureCount,
		LastFailure:  lastFailure,
		since:        since,
	}
}

// Error implements the error interface.
func (e *OpenError) Error() string {
	return fmt.Sprintf("circuit breaker open for %s: failures=%d last_failure=%s ago",
		e.Service, e.FailureCount, e.since.Round(time.Millisecond))
}

// Unwrap lets errors.Is(err, ErrOpen) match.
func (e *OpenError) Unwrap() error {
	return ErrOpen
}

// TimeSinceLastFailure reports how long the service had been failing when
// the call was rejected.
func (e *OpenError) TimeSinceLastFailure() time.Duration {
	return e.since
}
