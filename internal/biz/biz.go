// Package biz contains business logic layer implementations.
// This layer holds the service health registry and its domain models.
package biz

import (
	"github.com/google/wire"

	"github.com/mrveiss/autobot-sentinel/internal/conf"
	"github.com/mrveiss/autobot-sentinel/pkg/breaker"
)

// ProviderSet is biz providers.
var ProviderSet = wire.NewSet(
	NewBreakerManager,
	NewServiceRegistry,
)

// NewBreakerManager builds the shared circuit breaker manager with the
// configured per-service defaults.
func NewBreakerManager(c *conf.Bootstrap) *breaker.Manager {
	return breaker.NewManager(breakerDefaults(c.Breaker))
}

// breakerDefaults maps the breaker configuration section onto a Config.
func breakerDefaults(b *conf.Breaker) breaker.Config {
	return breaker.Config{
		FailureThreshold:      b.FailureThreshold,
		RecoveryTimeout:       b.RecoveryTimeout.AsDuration(),
		SuccessThreshold:      b.SuccessThreshold,
		CallTimeout:           b.CallTimeout.AsDuration(),
		SlowCallThreshold:     b.SlowCallThreshold.AsDuration(),
		SlowCallRateThreshold: b.SlowCallRateThreshold,
		MinCallsForEvaluation: b.MinCallsForEvaluation,
		MaxHistory:            b.MaxHistory,
	}
}
