// Package data provides data access layer implementations: the health
// probers, the event history writer, and the status cache.
package data

import (
	"github.com/google/wire"

	"github.com/mrveiss/autobot-sentinel/internal/biz"
)

// ProviderSet is data providers.
var ProviderSet = wire.NewSet(
	NewMySQLClient,
	NewEventLog,
	NewStatusCache,
	NewProberFactory,
	// Bind data layer implementations to biz layer interfaces
	wire.Bind(new(biz.ProberFactory), new(*ProberFactory)),
	wire.Bind(new(biz.EventRecorder), new(*EventLog)),
	wire.Bind(new(biz.SummaryCache), new(*StatusCache)),
)
