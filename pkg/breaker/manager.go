package breaker

import (
	"sort"
	"sync"
)

// StateChangeListener is notified after a breaker changes state. Listeners
// run outside the breaker mutex and may call back into the manager.
type StateChangeListener func(name string, from, to State)

// Manager is a named registry of breakers with lazy creation. A breaker is
// created once per unique service name; concurrent first calls for the same
// name never produce two distinct instances.
type Manager struct {
	mu        sync.RWMutex
	breakers  map[string]*Breaker
	defaults  Config
	listeners []StateChangeListener
}

// NewManager creates a manager. defaults is used when GetBreaker is called
// without an explicit config.
func NewManager(defaults Config) *Manager {
	return &Manager{
		breakers: make(map[string]*Breaker),
		defaults: defaults.withDefaults(),
	}
}

// GetBreaker returns the breaker for name, creating it on first use. The
// config is first-writer-wins: once a breaker exists for a name, later calls
// ignore a differing cfg. Pass nil to use the manager defaults.
func (m *Manager) GetBreaker(name string, cfg *Config) (*Breaker, error) {
	m.mu.RLock()
	b, ok := m.breakers[name]
	m.mu.RUnlock()
	if ok {
		return b, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Double-check after acquiring the write lock.
	if b, ok = m.breakers[name]; ok {
		return b, nil
	}

	effective := m.defaults
	if cfg != nil {
		effective = *cfg
	}

	b, err := New(name, effective)
	if err != nil {
		return nil, err
	}
	b.onStateChange = m.notify
	m.breakers[name] = b
	return b, nil
}

// Get returns the breaker for name, or nil if it was never created.
func (m *Manager) Get(name string) *Breaker {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.breakers[name]
}

// Names returns the registered breaker names, sorted.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.breakers))
	for name := range m.breakers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Snapshots returns a consistent snapshot of every registered breaker.
func (m *Manager) Snapshots() map[string]Snapshot {
	m.mu.RLock()
	breakers := make([]*Breaker, 0, len(m.breakers))
	for _, b := range m.breakers {
		breakers = append(breakers, b)
	}
	m.mu.RUnlock()

	out := make(map[string]Snapshot, len(breakers))
	for _, b := range breakers {
		out[b.Name()] = b.Snapshot()
	}
	return out
}

// Reset resets the named breaker. It reports whether the breaker existed.
func (m *Manager) Reset(name string) bool {
	b := m.Get(name)
	if b == nil {
		return false
	}
	b.Reset()
	return true
}

// ResetAll resets every registered breaker.
func (m *Manager) ResetAll() {
	m.mu.RLock()
	breakers := make([]*Breaker, 0, len(m.breakers))
	for _, b := range m.breakers {
		breakers = append(breakers, b)
	}
	m.mu.RUnlock()

	for _, b := range breakers {
		b.Reset()
	}
}

// OnStateChange registers a listener invoked for every breaker transition.
func (m *Manager) OnStateChange(listener StateChangeListener) {
	if listener == nil {
		return
	}
	m.mu.Lock()
	m.listeners = append(m.listeners, listener)
	m.mu.Unlock()
}

// notify fans a transition out to listeners. Listener panics are contained
// so a broken observer cannot take down the call path.
func (m *Manager) notify(name string, from, to State) {
	m.mu.RLock()
	listeners := make([]StateChangeListener, len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.RUnlock()

	for _, l := range listeners {
		func() {
			defer func() { _ = recover() }()
			l(name, from, to)
		}()
	}
}
