package biz

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-kratos/kratos/v2/log"

	"github.com/mrveiss/autobot-sentinel/internal/conf"
	"github.com/mrveiss/autobot-sentinel/pkg/breaker"
)

// ServiceStatus is the health status of one monitored service.
type ServiceStatus string

const (
	StatusOnline               ServiceStatus = "online"
	StatusOffline              ServiceStatus = "offline"
	StatusDegraded             ServiceStatus = "degraded"
	StatusUnknown              ServiceStatus = "unknown"
	StatusIntentionallyOffline ServiceStatus = "intentionally_offline"
)

// Service types supported by the prober factory.
const (
	TypeHTTP  = "http"
	TypeRedis = "redis"
)

// ValidServiceTypes lists the accepted service type identifiers.
func ValidServiceTypes() []string {
	return []string{TypeHTTP, TypeRedis}
}

// Overall health rollup values reported by StatusSummary.
const (
	HealthHealthy   = "healthy"
	HealthDegraded  = "degraded"
	HealthUnhealthy = "unhealthy"
)

// ServiceConfig describes one monitored remote service.
type ServiceConfig struct {
	Name       string        `json:"name"`
	Type       string        `json:"type"`
	Host       string        `json:"host"`
	Port       int           `json:"port"`
	HealthPath string        `json:"health_path,omitempty"`
	Timeout    time.Duration `json:"timeout"`
	Critical   bool          `json:"critical"`
	Optional   bool          `json:"optional"`
	ProxyURL   string        `json:"-"`
}

// Addr returns the host:port address of the service.
func (c ServiceConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// serviceState is the mutable per-service record. It is created at registry
// construction and lives for the whole process; all mutation happens under
// the registry mutex.
type serviceState struct {
	cfg    ServiceConfig
	prober Prober
	br     *breaker.Breaker

	status              ServiceStatus
	lastCheck           time.Time
	lastSuccess         time.Time
	lastError           string
	consecutiveFailures int
	wasOffline          bool
	offlineReason       string

	// log suppression bookkeeping
	suppressedUntil    time.Time
	lastFailureLog     time.Time
	errorsSinceLastLog int
}

// ServiceView is the JSON-serializable snapshot of one service's state.
type ServiceView struct {
	Name                string        `json:"name"`
	Type                string        `json:"type"`
	Host                string        `json:"host"`
	Port                int           `json:"port"`
	Status              ServiceStatus `json:"status"`
	Critical            bool          `json:"critical"`
	Optional            bool          `json:"optional"`
	LastCheck           time.Time     `json:"last_check"`
	LastSuccess         time.Time     `json:"last_success"`
	LastError           string        `json:"last_error,omitempty"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
	Reason              string        `json:"reason,omitempty"`
}

func (s *serviceState) view() *ServiceView {
	return &ServiceView{
		Name:                s.cfg.Name,
		Type:                s.cfg.Type,
		Host:                s.cfg.Host,
		Port:                s.cfg.Port,
		Status:              s.status,
		Critical:            s.cfg.Critical,
		Optional:            s.cfg.Optional,
		LastCheck:           s.lastCheck,
		LastSuccess:         s.lastSuccess,
		LastError:           s.lastError,
		ConsecutiveFailures: s.consecutiveFailures,
		Reason:              s.offlineReason,
	}
}

// Summary is the consolidated status view served on the hot read path.
type Summary struct {
	Status    string                      `json:"status"`
	Timestamp time.Time                   `json:"timestamp"`
	Services  map[string]*ServiceView     `json:"services"`
	Breakers  map[string]breaker.Snapshot `json:"breakers"`
}

// UnknownServiceError is returned for a service name that is not configured.
type UnknownServiceError struct {
	Name  string
	Valid []string
}

func (e *UnknownServiceError) Error() string {
	return fmt.Sprintf("unknown service %q (valid services: %s)", e.Name, strings.Join(e.Valid, ", "))
}

type statusChange struct {
	name   string
	from   ServiceStatus
	to     ServiceStatus
	reason string
}

// ServiceRegistry wraps the configured remote services, owning one circuit
// breaker per service, and runs the periodic health monitoring loop.
type ServiceRegistry struct {
	mu       sync.Mutex
	services map[string]*serviceState

	mgr      *breaker.Manager
	recorder EventRecorder
	cache    SummaryCache

	listenerMu sync.RWMutex
	listeners  []StatusListener

	checkInterval       time.Duration
	errorRecoveryDelay  time.Duration
	suppressThreshold   int
	suppressDuration    time.Duration
	suppressLogInterval time.Duration

	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup

	now func() time.Time
	log *log.Helper
}

// NewServiceRegistry builds the registry from the bootstrap configuration,
// constructing one prober and one circuit breaker per configured service.
// Breaker state transitions are forwarded to the event recorder.
func NewServiceRegistry(c *conf.Bootstrap, factory ProberFactory, mgr *breaker.Manager, recorder EventRecorder, cache SummaryCache, logger log.Logger) (*ServiceRegistry, error) {
	helper := log.NewHelper(logger)
	rc := c.Registry

	r := &ServiceRegistry{
		services:            make(map[string]*serviceState),
		mgr:                 mgr,
		recorder:            recorder,
		cache:               cache,
		checkInterval:       rc.HealthCheckInterval.AsDuration(),
		errorRecoveryDelay:  rc.ErrorRecoveryDelay.AsDuration(),
		suppressThreshold:   rc.LogSuppressionThreshold,
		suppressDuration:    rc.LogSuppressionDuration.AsDuration(),
		suppressLogInterval: rc.LogIntervalDuringSuppression.AsDuration(),
		now:                 time.Now,
		log:                 helper,
	}

	for _, s := range rc.Services {
		cfg := ServiceConfig{
			Name:       s.Name,
			Type:       s.Type,
			Host:       s.Host,
			Port:       s.Port,
			HealthPath: s.HealthPath,
			Timeout:    time.Duration(s.TimeoutSec) * time.Second,
			Critical:   s.Critical,
			Optional:   s.Optional,
			ProxyURL:   s.ProxyURL,
		}
		if _, dup := r.services[cfg.Name]; dup {
			return nil, fmt.Errorf("duplicate service name %q", cfg.Name)
		}

		prober, err := factory.New(cfg)
		if err != nil {
			return nil, fmt.Errorf("service %q: %w", cfg.Name, err)
		}

		bcfg := breakerConfigFor(cfg)
		br, err := mgr.GetBreaker(cfg.Name, &bcfg)
		if err != nil {
			return nil, fmt.Errorf("service %q: %w", cfg.Name, err)
		}

		r.services[cfg.Name] = &serviceState{
			cfg:    cfg,
			prober: prober,
			br:     br,
			status: StatusUnknown,
		}
	}

	mgr.OnStateChange(func(name string, from, to breaker.State) {
		helper.Infof("circuit breaker %s: %s -> %s", name, from, to)
		recorder.RecordBreakerEvent(context.Background(), name, from.String(), to.String())
	})

	helper.Infof("service registry initialized with %d services, check interval %s", len(r.services), r.checkInterval)
	return r, nil
}

// breakerConfigFor derives the per-service breaker configuration from the
// type preset, with the service's own probe timeout applied.
func breakerConfigFor(cfg ServiceConfig) breaker.Config {
	var bcfg breaker.Config
	switch cfg.Type {
	case TypeRedis:
		bcfg = breaker.RedisServiceConfig()
	default:
		bcfg = breaker.HTTPServiceConfig()
	}
	if cfg.Timeout > 0 {
		bcfg.CallTimeout = cfg.Timeout
	}
	return bcfg
}

// Manager returns the breaker manager shared by all services.
func (r *ServiceRegistry) Manager() *breaker.Manager {
	return r.mgr
}

// AddStatusListener registers a listener for service status transitions.
func (r *ServiceRegistry) AddStatusListener(l StatusListener) {
	r.listenerMu.Lock()
	defer r.listenerMu.Unlock()
	r.listeners = append(r.listeners, l)
}

func (r *ServiceRegistry) notify(changes []statusChange) {
	if len(changes) == 0 {
		return
	}
	r.listenerMu.RLock()
	listeners := make([]StatusListener, len(r.listeners))
	copy(listeners, r.listeners)
	r.listenerMu.RUnlock()

	for _, ch := range changes {
		r.recorder.RecordServiceEvent(context.Background(), ch.name, string(ch.from), string(ch.to), ch.reason)
		for _, l := range listeners {
			func() {
				defer func() {
					if p := recover(); p != nil {
						r.log.Errorf("status listener panic for %s: %v", ch.name, p)
					}
				}()
				l.OnStatusChange(ch.name, ch.from, ch.to)
			}()
		}
	}
}

// CheckService force-probes one service by name. An explicit check is an
// administrative action: it clears a sticky INTENTIONALLY_OFFLINE override
// before probing. Unknown names return an UnknownServiceError.
func (r *ServiceRegistry) CheckService(ctx context.Context, name string) (*ServiceView, error) {
	r.mu.Lock()
	st, ok := r.services[name]
	if !ok {
		valid := r.namesLocked()
		r.mu.Unlock()
		return nil, &UnknownServiceError{Name: name, Valid: valid}
	}
	r.mu.Unlock()

	return r.check(ctx, st, true), nil
}

// check runs one probe cycle for a service. The probe itself executes outside
// the registry lock so a slow endpoint cannot stall the other services.
func (r *ServiceRegistry) check(ctx context.Context, st *serviceState, force bool) *ServiceView {
	r.mu.Lock()
	if st.status == StatusIntentionallyOffline && !force {
		view := st.view()
		r.mu.Unlock()
		return view
	}
	br := st.br
	prober := st.prober
	r.mu.Unlock()

	// Breaker OPEN short-circuits to OFFLINE without touching the network.
	if !br.CanExecute() {
		snap := br.Snapshot()
		err := breaker.NewOpenError(st.cfg.Name, snap.FailureCount,
			r.now().Add(-snap.TimeSinceLastFailure), snap.TimeSinceLastFailure)
		return r.applyResult(st, err, true)
	}

	err := br.Do(ctx, func(ctx context.Context) error {
		return prober.Probe(ctx)
	})
	return r.applyResult(st, err, false)
}

// applyResult folds one probe outcome into the service state and fires
// status-change notifications outside the lock.
func (r *ServiceRegistry) applyResult(st *serviceState, err error, shortCircuit bool) *ServiceView {
	now := r.now()

	r.mu.Lock()
	prev := st.status
	st.lastCheck = now

	if err == nil {
		st.lastSuccess = now
		st.lastError = ""
		st.consecutiveFailures = 0
		st.errorsSinceLastLog = 0
		st.suppressedUntil = time.Time{}
		st.offlineReason = ""

		st.status = StatusOnline
		if st.br.State() == breaker.StateHalfOpen {
			// Breaker is still proving recovery.
			st.status = StatusDegraded
		}
		if st.wasOffline {
			r.log.Infof("service %s recovered, back online", st.cfg.Name)
		}
		st.wasOffline = false
	} else {
		st.lastError = err.Error()
		st.consecutiveFailures++
		st.wasOffline = true
		st.status = StatusOffline
		r.logProbeFailure(st, now, err, shortCircuit)
	}

	var changes []statusChange
	if prev != st.status {
		changes = append(changes, statusChange{name: st.cfg.Name, from: prev, to: st.status, reason: st.lastError})
	}
	view := st.view()
	r.mu.Unlock()

	r.notify(changes)
	return view
}

// logProbeFailure applies the log-suppression algorithm: the first
// suppressThreshold consecutive failures always log; further failures are
// suppressed for suppressDuration, surfacing once per suppressLogInterval
// with a count of what was swallowed, then a fresh window begins.
// Called with the registry lock held.
func (r *ServiceRegistry) logProbeFailure(st *serviceState, now time.Time, err error, shortCircuit bool) {
	msg := fmt.Sprintf("health check failed for %s: %v", st.cfg.Name, err)
	if shortCircuit {
		msg = fmt.Sprintf("skipping probe for %s: %v", st.cfg.Name, err)
	}

	if st.consecutiveFailures <= r.suppressThreshold {
		r.logFailureAt(st, err, shortCircuit, msg)
		st.lastFailureLog = now
		st.errorsSinceLastLog = 0
		if st.consecutiveFailures == r.suppressThreshold {
			st.suppressedUntil = now.Add(r.suppressDuration)
		}
		return
	}

	inWindow := now.Before(st.suppressedUntil)
	if inWindow && now.Sub(st.lastFailureLog) < r.suppressLogInterval {
		st.errorsSinceLastLog++
		return
	}

	if st.errorsSinceLastLog > 0 {
		msg = fmt.Sprintf("%s (%d similar errors suppressed)", msg, st.errorsSinceLastLog)
	}
	r.logFailureAt(st, err, shortCircuit, msg)
	st.lastFailureLog = now
	st.errorsSinceLastLog = 0
	if !inWindow {
		st.suppressedUntil = now.Add(r.suppressDuration)
	}
}

// logFailureAt picks the severity: connection-level trouble on an optional
// service is expected noise and logs as a warning, while critical services
// and unexpected failure kinds log as errors.
func (r *ServiceRegistry) logFailureAt(st *serviceState, err error, shortCircuit bool, msg string) {
	if shortCircuit {
		r.log.Warn(msg)
		return
	}
	kind := breaker.DefaultClassify(err)
	expected := kind == breaker.KindConnection || kind == breaker.KindTimeout
	if st.cfg.Critical || !expected {
		r.log.Error(msg)
		return
	}
	r.log.Warn(msg)
}

// CheckAll probes every configured service concurrently. A failing or
// panicking probe never escapes its goroutine: the offending service is
// reported as UNKNOWN and the result always has one entry per service.
func (r *ServiceRegistry) CheckAll(ctx context.Context) map[string]*ServiceView {
	r.mu.Lock()
	states := make([]*serviceState, 0, len(r.services))
	for _, st := range r.services {
		states = append(states, st)
	}
	r.mu.Unlock()

	results := make(map[string]*ServiceView, len(states))
	var resMu sync.Mutex
	var wg sync.WaitGroup

	for _, st := range states {
		wg.Add(1)
		go func(st *serviceState) {
			defer wg.Done()
			view := r.safeCheck(ctx, st)
			resMu.Lock()
			results[st.cfg.Name] = view
			resMu.Unlock()
		}(st)
	}
	wg.Wait()
	return results
}

func (r *ServiceRegistry) safeCheck(ctx context.Context, st *serviceState) (view *ServiceView) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Errorf("health check panic for %s: %v", st.cfg.Name, p)
			r.mu.Lock()
			st.status = StatusUnknown
			st.lastError = fmt.Sprintf("health check panic: %v", p)
			view = st.view()
			r.mu.Unlock()
		}
	}()
	return r.check(ctx, st, false)
}

// MarkIntentionallyOffline sets a sticky operator override. Automatic health
// checks skip the service until an explicit CheckService or MarkOnline.
func (r *ServiceRegistry) MarkIntentionallyOffline(name, reason string) (*ServiceView, error) {
	r.mu.Lock()
	st, ok := r.services[name]
	if !ok {
		valid := r.namesLocked()
		r.mu.Unlock()
		return nil, &UnknownServiceError{Name: name, Valid: valid}
	}
	prev := st.status
	st.status = StatusIntentionallyOffline
	st.offlineReason = reason
	st.lastError = ""
	view := st.view()
	var changes []statusChange
	if prev != StatusIntentionallyOffline {
		changes = append(changes, statusChange{name: name, from: prev, to: StatusIntentionallyOffline, reason: reason})
	}
	r.mu.Unlock()

	r.log.Warnf("service %s marked intentionally offline: %s", name, reason)
	r.notify(changes)
	return view, nil
}

// MarkOnline clears an intentional-offline override. The service returns to
// UNKNOWN until the next probe decides its real status.
func (r *ServiceRegistry) MarkOnline(name string) (*ServiceView, error) {
	r.mu.Lock()
	st, ok := r.services[name]
	if !ok {
		valid := r.namesLocked()
		r.mu.Unlock()
		return nil, &UnknownServiceError{Name: name, Valid: valid}
	}
	prev := st.status
	st.status = StatusUnknown
	st.offlineReason = ""
	st.consecutiveFailures = 0
	view := st.view()
	var changes []statusChange
	if prev != StatusUnknown {
		changes = append(changes, statusChange{name: name, from: prev, to: StatusUnknown})
	}
	r.mu.Unlock()

	r.log.Infof("service %s cleared for monitoring", name)
	r.notify(changes)
	return view, nil
}

// Service returns the current view of one service.
func (r *ServiceRegistry) Service(name string) (*ServiceView, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.services[name]
	if !ok {
		return nil, &UnknownServiceError{Name: name, Valid: r.namesLocked()}
	}
	return st.view(), nil
}

// AvailableServices lists the services currently usable by callers, sorted.
func (r *ServiceRegistry) AvailableServices() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var names []string
	for name, st := range r.services {
		if st.status == StatusOnline || st.status == StatusDegraded {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// CriticalServices returns the views of all critical services.
func (r *ServiceRegistry) CriticalServices() map[string]*ServiceView {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]*ServiceView)
	for name, st := range r.services {
		if st.cfg.Critical {
			out[name] = st.view()
		}
	}
	return out
}

// StatusSummary builds the consolidated view: overall rollup, per-service
// states, and breaker snapshots. Results are cached briefly for dashboard
// polling when a cache is configured.
func (r *ServiceRegistry) StatusSummary() *Summary {
	if r.cache != nil {
		if s, ok := r.cache.Get(); ok {
			return s
		}
	}

	r.mu.Lock()
	views := make(map[string]*ServiceView, len(r.services))
	for name, st := range r.services {
		views[name] = st.view()
	}
	now := r.now()
	r.mu.Unlock()

	s := &Summary{
		Status:    rollup(views),
		Timestamp: now,
		Services:  views,
		Breakers:  r.mgr.Snapshots(),
	}
	if r.cache != nil {
		r.cache.Set(s)
	}
	return s
}

// Health computes the current rollup without consulting the summary cache.
func (r *ServiceRegistry) Health() string {
	r.mu.Lock()
	views := make(map[string]*ServiceView, len(r.services))
	for name, st := range r.services {
		views[name] = st.view()
	}
	r.mu.Unlock()
	return rollup(views)
}

// rollup computes the overall health: unhealthy when a critical service is
// offline and nothing is online at all, degraded when anything is offline
// but the system is partially up, healthy otherwise.
func rollup(views map[string]*ServiceView) string {
	var anyOnline, anyOffline, criticalOffline bool
	for _, v := range views {
		switch v.Status {
		case StatusOnline, StatusDegraded:
			anyOnline = true
		case StatusOffline:
			anyOffline = true
			if v.Critical {
				criticalOffline = true
			}
		case StatusIntentionallyOffline:
			anyOffline = true
		}
	}
	switch {
	case criticalOffline && !anyOnline:
		return HealthUnhealthy
	case anyOffline:
		return HealthDegraded
	default:
		return HealthHealthy
	}
}

func (r *ServiceRegistry) namesLocked() []string {
	names := make([]string, 0, len(r.services))
	for name := range r.services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Names lists all configured service names, sorted.
func (r *ServiceRegistry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.namesLocked()
}

// Start launches the background monitoring loop. Idempotent.
func (r *ServiceRegistry) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = true
	r.stopCh = make(chan struct{})
	stopCh := r.stopCh
	r.mu.Unlock()

	r.wg.Add(1)
	go r.monitorLoop(ctx, stopCh)
	r.log.Info("health monitoring started")
	return nil
}

// Stop terminates the monitoring loop and waits for it to exit. Idempotent.
func (r *ServiceRegistry) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	close(r.stopCh)
	r.mu.Unlock()

	r.wg.Wait()
	r.log.Info("health monitoring stopped")
}

func (r *ServiceRegistry) monitorLoop(ctx context.Context, stopCh chan struct{}) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.checkInterval)
	defer ticker.Stop()

	r.runCycle(ctx, stopCh)
	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.runCycle(ctx, stopCh)
		}
	}
}

// runCycle runs one fan-out check. An unexpected panic pauses the loop for
// the configured recovery delay instead of killing the monitor goroutine.
func (r *ServiceRegistry) runCycle(ctx context.Context, stopCh chan struct{}) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Errorf("monitoring cycle failed: %v, pausing for %s", p, r.errorRecoveryDelay)
			select {
			case <-time.After(r.errorRecoveryDelay):
			case <-stopCh:
			}
		}
	}()
	r.CheckAll(ctx)
}
