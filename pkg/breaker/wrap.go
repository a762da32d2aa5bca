package breaker

import "context"

// Wrapped binds a function to a named breaker at construction time, the
// explicit-construction replacement for decorator-style binding. Every Call
// is routed through the bound breaker.
type Wrapped struct {
	breaker *Breaker
	fn      func(context.Context) (any, error)
}

// Wrap binds fn to the breaker registered under name, creating the breaker
// if needed (manager defaults apply when cfg is nil).
func (m *Manager) Wrap(name string, cfg *Config, fn func(context.Context) (any, error)) (*Wrapped, error) {
	b, err := m.GetBreaker(name, cfg)
	if err != nil {
		return nil, err
	}
	return &Wrapped{breaker: b, fn: fn}, nil
}

// Call invokes the bound function through the breaker.
func (w *Wrapped) Call(ctx context.Context) (any, error) {
	return w.breaker.Execute(ctx, w.fn)
}

// Breaker exposes the underlying breaker for introspection.
func (w *Wrapped) Breaker() *Breaker {
	return w.breaker
}
