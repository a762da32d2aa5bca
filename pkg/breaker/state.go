// Package breaker implements a three-state circuit breaker with
// performance-based opening and a named-breaker manager.
//
// A Breaker guards calls to one remote service. While CLOSED all calls pass
// through; consecutive monitored failures (or a high slow-call rate) trip the
// breaker to OPEN, where calls fail fast with *OpenError. After the recovery
// timeout the next call attempt promotes the breaker to HALF_OPEN, and a run
// of consecutive successes closes it again.
package breaker

// State is the current position of the breaker state machine.
// Transitions never skip a state: OPEN must pass through HALF_OPEN
// before reaching CLOSED.
type State int

const (
	// StateClosed permits all calls.
	StateClosed State = iota
	// StateOpen rejects all calls until the recovery timeout elapses.
	StateOpen
	// StateHalfOpen permits trial calls while the service proves itself.
	StateHalfOpen
)

// String returns the lowercase state name used in logs and API responses.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}
