package breaker

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Config holds the tunables for one breaker. The zero value is not usable;
// start from DefaultConfig (or a preset) and override fields as needed.
// A Config is copied into the breaker at construction and never mutated.
type Config struct {
	// FailureThreshold is the consecutive monitored-failure count that
	// trips the breaker from CLOSED to OPEN. Must be > 0.
	FailureThreshold int
	// RecoveryTimeout is how long the breaker stays OPEN before the next
	// call attempt may promote it to HALF_OPEN.
	RecoveryTimeout time.Duration
	// SuccessThreshold is the consecutive HALF_OPEN successes required to
	// close the breaker. Must be > 0.
	SuccessThreshold int
	// CallTimeout is the per-call deadline applied to every wrapped call.
	// Must be > 0.
	CallTimeout time.Duration

	// MonitoredKinds lists failure kinds that count toward
	// FailureThreshold. KindTimeout is always monitored.
	MonitoredKinds map[FailureKind]bool
	// NonMonitoredKinds lists failure kinds that are explicitly exempt
	// (input validation, caller cancellation). They propagate to the
	// caller untouched and never affect circuit state.
	NonMonitoredKinds map[FailureKind]bool
	// Classify maps call errors onto failure kinds. Defaults to
	// DefaultClassify.
	Classify func(error) FailureKind

	// SlowCallThreshold is the duration above which a call counts as slow.
	SlowCallThreshold time.Duration
	// SlowCallRateThreshold in [0,1] is the slow-call fraction that forces
	// an OPEN transition even without outright errors.
	SlowCallRateThreshold float64
	// MinCallsForEvaluation is the minimum number of recent calls before
	// the slow-call rule is evaluated.
	MinCallsForEvaluation int
	// EvaluationWindow bounds how far back the slow-call rule looks.
	EvaluationWindow time.Duration

	// MaxHistory caps the call-record ring. Oldest records evicted first.
	MaxHistory int
}

// DefaultConfig provides balanced settings for most services.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		RecoveryTimeout:  60 * time.Second,
		SuccessThreshold: 2,
		CallTimeout:      30 * time.Second,
		MonitoredKinds: map[FailureKind]bool{
			KindTimeout:    true,
			KindConnection: true,
		},
		NonMonitoredKinds: map[FailureKind]bool{
			KindValidation: true,
			KindCanceled:   true,
		},
		Classify:              DefaultClassify,
		SlowCallThreshold:     5 * time.Second,
		SlowCallRateThreshold: 0.8,
		MinCallsForEvaluation: 10,
		EvaluationWindow:      60 * time.Second,
		MaxHistory:            100,
	}
}

// HTTPServiceConfig is tuned for external HTTP health probes: fast failure
// detection with a short per-call deadline.
func HTTPServiceConfig() Config {
	c := DefaultConfig()
	c.FailureThreshold = 3
	c.RecoveryTimeout = 30 * time.Second
	c.CallTimeout = 10 * time.Second
	c.SlowCallThreshold = 2 * time.Second
	return c
}

// RedisServiceConfig is tuned for ping-style liveness checks, which should
// answer in milliseconds when the service is healthy.
func RedisServiceConfig() Config {
	c := DefaultConfig()
	c.FailureThreshold = 3
	c.RecoveryTimeout = 15 * time.Second
	c.CallTimeout = 3 * time.Second
	c.SlowCallThreshold = 500 * time.Millisecond
	return c
}

// Validate checks all tunables and returns an error listing every invalid
// field, or nil.
func (c Config) Validate() error {
	var bad []string

	if c.FailureThreshold <= 0 {
		bad = append(bad, "FailureThreshold must be > 0")
	}
	if c.RecoveryTimeout < 0 {
		bad = append(bad, "RecoveryTimeout must be >= 0")
	}
	if c.SuccessThreshold <= 0 {
		bad = append(bad, "SuccessThreshold must be > 0")
	}
	if c.CallTimeout <= 0 {
		bad = append(bad, "CallTimeout must be > 0")
	}
	if c.SlowCallRateThreshold < 0 || c.SlowCallRateThreshold > 1 {
		bad = append(bad, "SlowCallRateThreshold must be in [0,1]")
	}
	if c.MinCallsForEvaluation <= 0 {
		bad = append(bad, "MinCallsForEvaluation must be > 0")
	}
	if c.MaxHistory <= 0 {
		bad = append(bad, "MaxHistory must be > 0")
	}

	if len(bad) > 0 {
		return fmt.Errorf("invalid breaker config: %s", strings.Join(bad, "; "))
	}

	return nil
}

// ConfigView is the serializable form of a Config carried in snapshots.
// The Classify function is dropped and the kind sets are flattened to
// sorted name lists.
type ConfigView struct {
	FailureThreshold      int           `json:"failure_threshold"`
	RecoveryTimeout       time.Duration `json:"recovery_timeout"`
	SuccessThreshold      int           `json:"success_threshold"`
	CallTimeout           time.Duration `json:"call_timeout"`
	MonitoredKinds        []string      `json:"monitored_kinds"`
	NonMonitoredKinds     []string      `json:"non_monitored_kinds"`
	SlowCallThreshold     time.Duration `json:"slow_call_threshold"`
	SlowCallRateThreshold float64       `json:"slow_call_rate_threshold"`
	MinCallsForEvaluation int           `json:"min_calls_for_evaluation"`
	EvaluationWindow      time.Duration `json:"evaluation_window"`
	MaxHistory            int           `json:"max_history"`
}

// View flattens the config for snapshot serialization.
func (c Config) View() ConfigView {
	return ConfigView{
		FailureThreshold:      c.FailureThreshold,
		RecoveryTimeout:       c.RecoveryTimeout,
		SuccessThreshold:      c.SuccessThreshold,
		CallTimeout:           c.CallTimeout,
		MonitoredKinds:        kindNames(c.MonitoredKinds),
		NonMonitoredKinds:     kindNames(c.NonMonitoredKinds),
		SlowCallThreshold:     c.SlowCallThreshold,
		SlowCallRateThreshold: c.SlowCallRateThreshold,
		MinCallsForEvaluation: c.MinCallsForEvaluation,
		EvaluationWindow:      c.EvaluationWindow,
		MaxHistory:            c.MaxHistory,
	}
}

func kindNames(kinds map[FailureKind]bool) []string {
	names := make([]string, 0, len(kinds))
	for k, on := range kinds {
		if on {
			names = append(names, string(k))
		}
	}
	sort.Strings(names)
	return names
}

// withDefaults fills unset optional fields so a partially built Config
// behaves sensibly.
func (c Config) withDefaults() Config {
	if c.Classify == nil {
		c.Classify = DefaultClassify
	}
	if c.MonitoredKinds == nil {
		c.MonitoredKinds = map[FailureKind]bool{
			KindTimeout:    true,
			KindConnection: true,
		}
	}
	if c.NonMonitoredKinds == nil {
		c.NonMonitoredKinds = map[FailureKind]bool{
			KindValidation: true,
			KindCanceled:   true,
		}
	}
	if c.MaxHistory <= 0 {
		c.MaxHistory = 100
	}
	if c.EvaluationWindow <= 0 {
		c.EvaluationWindow = 60 * time.Second
	}
	return c
}
