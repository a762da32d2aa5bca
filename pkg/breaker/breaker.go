package breaker

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Stats are cumulative per-breaker counters. TotalCalls counts completed
// attempts only, so SuccessfulCalls + FailedCalls == TotalCalls; rejected
// calls are counted in BlockedCalls instead.
type Stats struct {
	TotalCalls      int64 `json:"total_calls"`
	SuccessfulCalls int64 `json:"successful_calls"`
	FailedCalls     int64 `json:"failed_calls"`
	BlockedCalls    int64 `json:"blocked_calls"`
	StateChanges    int64 `json:"state_changes"`
}

// Snapshot is an internally consistent read of a breaker taken under its
// mutex. Safe to hold after the breaker has moved on.
type Snapshot struct {
	Name                 string        `json:"name"`
	State                State         `json:"-"`
	StateName            string        `json:"state"`
	FailureCount         int           `json:"failure_count"`
	SuccessCount         int           `json:"success_count"`
	TimeSinceLastFailure time.Duration `json:"time_since_last_failure"`
	TimeInState          time.Duration `json:"time_in_state"`
	CanExecute           bool          `json:"can_execute"`
	Config               ConfigView    `json:"config"`
	Stats                Stats         `json:"stats"`
	RecentPerformance    Performance   `json:"recent_performance"`
}

// Breaker is the state machine guarding calls to one named service.
// All state transitions are serialized under one mutex; Execute may be
// called concurrently from any number of goroutines.
type Breaker struct {
	name string
	cfg  Config

	mu              sync.Mutex
	state           State
	failureCount    int
	successCount    int
	lastFailureTime time.Time
	stateChangedAt  time.Time
	hist            *history
	stats           Stats
	pending         []stateChange

	now           func() time.Time
	onStateChange func(name string, from, to State)
}

// stateChange is a transition queued under the mutex and delivered to the
// listener after it is released, so listeners can call back into the breaker.
type stateChange struct {
	from, to State
}

// flushNotifications delivers queued transitions to the state-change
// listener. Must be called without the mutex held.
func (b *Breaker) flushNotifications() {
	b.mu.Lock()
	pending := b.pending
	b.pending = nil
	cb := b.onStateChange
	b.mu.Unlock()

	if cb == nil {
		return
	}
	for _, ch := range pending {
		cb(b.name, ch.from, ch.to)
	}
}

// New creates a breaker for the named service. The config is validated and
// defaulted; an invalid config returns an error.
func New(name string, cfg Config) (*Breaker, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("breaker %q: %w", name, err)
	}

	b := &Breaker{
		name: name,
		cfg:  cfg,
		hist: newHistory(cfg.MaxHistory),
		now:  time.Now,
	}
	b.stateChangedAt = b.now()
	return b, nil
}

// Name returns the service name the breaker was created with.
func (b *Breaker) Name() string {
	return b.name
}

// Config returns a copy of the effective configuration.
func (b *Breaker) Config() Config {
	return b.cfg
}

// Execute runs fn through the breaker.
//
// If the breaker is OPEN and the recovery timeout has not elapsed, fn is
// never invoked and Execute returns *OpenError immediately. Otherwise fn
// runs in its own goroutine under a context carrying the configured call
// timeout; a blocking fn cannot hold the caller past the deadline, and a
// cooperative fn observes cancellation through its context. Errors from fn
// are classified, recorded, and returned to the caller unchanged; the
// breaker never swallows an error.
func (b *Breaker) Execute(ctx context.Context, fn func(context.Context) (any, error)) (any, error) {
	err := b.acquire()
	b.flushNotifications() // lazy OPEN→HALF_OPEN promotion may have fired
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, b.cfg.CallTimeout)
	defer cancel()

	start := b.now()

	type outcome struct {
		value any
		err   error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("panic in wrapped call: %v", r)}
			}
		}()
		v, err := fn(callCtx)
		done <- outcome{value: v, err: err}
	}()

	select {
	case out := <-done:
		elapsed := b.now().Sub(start)
		if out.err != nil {
			b.recordFailure(out.err, elapsed)
			return nil, out.err
		}
		b.recordSuccess(elapsed)
		return out.value, nil

	case <-callCtx.Done():
		elapsed := b.now().Sub(start)
		err := callCtx.Err()
		if ctx.Err() != nil {
			// Caller went away; not the service's fault.
			b.recordFailure(ctx.Err(), elapsed)
			return nil, ctx.Err()
		}
		b.recordTimeout(elapsed)
		return nil, fmt.Errorf("%s: call timed out after %s: %w", b.name, b.cfg.CallTimeout, err)
	}
}

// Do runs an error-only fn through the breaker.
func (b *Breaker) Do(ctx context.Context, fn func(context.Context) error) error {
	_, err := b.Execute(ctx, func(ctx context.Context) (any, error) {
		return nil, fn(ctx)
	})
	return err
}

// acquire decides execution eligibility, performing the lazy OPEN→HALF_OPEN
// promotion. It returns *OpenError when the call must be rejected.
func (b *Breaker) acquire() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	b.maybePromoteFromOpen(now)

	if b.state == StateOpen {
		b.stats.BlockedCalls++
		return &OpenError{
			Service:      b.name,
			FailureCount: b.failureCount,
			LastFailure:  b.lastFailureTime,
			since:        now.Sub(b.lastFailureTime),
		}
	}
	return nil
}

// maybePromoteFromOpen moves OPEN to HALF_OPEN once the recovery timeout has
// elapsed. Must be called with the mutex held. Kept as its own method so the
// lazy-promotion rule is testable in isolation.
func (b *Breaker) maybePromoteFromOpen(now time.Time) {
	if b.state != StateOpen {
		return
	}
	if now.Sub(b.lastFailureTime) >= b.cfg.RecoveryTimeout {
		b.transition(StateHalfOpen, now)
		b.successCount = 0
	}
}

// CanExecute reports whether a call attempted now would be permitted.
// Unlike a real call attempt it does not mutate state: an OPEN breaker whose
// recovery timeout has elapsed reports true without being promoted.
func (b *Breaker) CanExecute() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.canExecuteLocked(b.now())
}

func (b *Breaker) canExecuteLocked(now time.Time) bool {
	if b.state != StateOpen {
		return true
	}
	return now.Sub(b.lastFailureTime) >= b.cfg.RecoveryTimeout
}

func (b *Breaker) recordSuccess(elapsed time.Duration) {
	b.mu.Lock()

	now := b.now()
	b.stats.TotalCalls++
	b.stats.SuccessfulCalls++
	b.hist.append(CallRecord{Timestamp: now, Duration: elapsed, Success: true})

	switch b.state {
	case StateClosed:
		if b.failureCount > 0 {
			// Gradual decay rather than instant reset, so one fluke
			// failure between successes does not flap the count.
			b.failureCount--
		}
		b.evaluatePerformance(now)
	case StateHalfOpen:
		b.successCount++
		if b.successCount >= b.cfg.SuccessThreshold {
			b.transition(StateClosed, now)
			b.failureCount = 0
			b.successCount = 0
		}
	}

	b.mu.Unlock()
	b.flushNotifications()
}

func (b *Breaker) recordFailure(err error, elapsed time.Duration) {
	kind := b.cfg.Classify(err)
	if kind == "" {
		kind = KindUnknown
	}
	b.record(kind, elapsed)
}

func (b *Breaker) recordTimeout(elapsed time.Duration) {
	b.record(KindTimeout, elapsed)
}

func (b *Breaker) record(kind FailureKind, elapsed time.Duration) {
	b.mu.Lock()

	now := b.now()
	b.stats.TotalCalls++
	b.stats.FailedCalls++
	b.hist.append(CallRecord{Timestamp: now, Duration: elapsed, Kind: kind})

	if b.monitored(kind) {
		b.lastFailureTime = now

		switch b.state {
		case StateClosed:
			b.failureCount++
			if b.failureCount >= b.cfg.FailureThreshold {
				b.transition(StateOpen, now)
			} else {
				b.evaluatePerformance(now)
			}
		case StateHalfOpen:
			// No partial credit: any failure while probing reopens.
			b.successCount = 0
			b.transition(StateOpen, now)
		}
	}

	b.mu.Unlock()
	b.flushNotifications()
}

// monitored reports whether a failure kind counts toward the threshold.
// Timeouts always count; explicit non-monitored kinds never do.
func (b *Breaker) monitored(kind FailureKind) bool {
	if kind == KindTimeout {
		return true
	}
	if b.cfg.NonMonitoredKinds[kind] {
		return false
	}
	return b.cfg.MonitoredKinds[kind]
}

// evaluatePerformance applies the slow-call trip rule. Only meaningful in
// CLOSED; it captures "alive but degraded" without waiting for errors.
func (b *Breaker) evaluatePerformance(now time.Time) {
	if b.state != StateClosed || b.cfg.SlowCallThreshold <= 0 {
		return
	}

	perf := b.hist.evaluate(now, b.cfg.EvaluationWindow, b.cfg.SlowCallThreshold)
	if perf.CallCount < b.cfg.MinCallsForEvaluation {
		return
	}
	if perf.SlowCallRate >= b.cfg.SlowCallRateThreshold {
		b.lastFailureTime = now
		b.transition(StateOpen, now)
	}
}

// transition moves the state machine. Must be called with the mutex held.
// stateChangedAt updates on every transition and only on transitions.
func (b *Breaker) transition(to State, now time.Time) {
	if b.state == to {
		return
	}
	from := b.state
	b.state = to
	b.stateChangedAt = now
	b.stats.StateChanges++

	if b.onStateChange != nil {
		b.pending = append(b.pending, stateChange{from: from, to: to})
	}
}

// Snapshot returns a consistent view of the breaker. Safe to call
// concurrently with in-flight Execute invocations.
func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	snap := Snapshot{
		Name:         b.name,
		State:        b.state,
		StateName:    b.state.String(),
		FailureCount: b.failureCount,
		SuccessCount: b.successCount,
		TimeInState:  now.Sub(b.stateChangedAt),
		CanExecute:   b.canExecuteLocked(now),
		Config:       b.cfg.View(),
		Stats:        b.stats,
		RecentPerformance: b.hist.evaluate(now,
			b.cfg.EvaluationWindow, b.cfg.SlowCallThreshold),
	}
	if !b.lastFailureTime.IsZero() {
		snap.TimeSinceLastFailure = now.Sub(b.lastFailureTime)
	}
	return snap
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// History returns the call records currently retained, oldest first.
func (b *Breaker) History() []CallRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.hist.snapshot()
}

// Reset clears counts and history and forces the breaker CLOSED. Cumulative
// call statistics are zeroed; StateChanges survives and counts the reset as
// one more change. Identity (name, config) is preserved.
func (b *Breaker) Reset() {
	b.mu.Lock()

	now := b.now()
	from := b.state
	b.state = StateClosed
	b.stateChangedAt = now
	b.failureCount = 0
	b.successCount = 0
	b.lastFailureTime = time.Time{}
	b.hist.reset()

	changes := b.stats.StateChanges + 1
	b.stats = Stats{StateChanges: changes}

	if b.onStateChange != nil && from != StateClosed {
		b.pending = append(b.pending, stateChange{from: from, to: StateClosed})
	}

	b.mu.Unlock()
	b.flushNotifications()
}
