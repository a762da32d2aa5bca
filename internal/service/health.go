package service

import (
	"github.com/go-kratos/kratos/v2/log"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/mrveiss/autobot-sentinel/internal/biz"
)

// HealthSyncer mirrors registry statuses into the standard gRPC health
// service, one entry per monitored service plus the overall rollup on the
// empty service name.
type HealthSyncer struct {
	server   *health.Server
	registry *biz.ServiceRegistry
	logger   *log.Helper
}

// NewHealthSyncer creates the syncer and subscribes it to registry status
// changes. All services start as SERVICE_UNKNOWN until the first probe.
func NewHealthSyncer(registry *biz.ServiceRegistry, logger log.Logger) *HealthSyncer {
	h := &HealthSyncer{
		server:   health.NewServer(),
		registry: registry,
		logger:   log.NewHelper(logger),
	}

	for _, name := range registry.Names() {
		h.server.SetServingStatus(name, healthpb.HealthCheckResponse_SERVICE_UNKNOWN)
	}
	h.server.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	registry.AddStatusListener(h)
	return h
}

// Server returns the underlying gRPC health implementation for transport
// registration.
func (h *HealthSyncer) Server() *health.Server {
	return h.server
}

// OnStatusChange implements biz.StatusListener.
func (h *HealthSyncer) OnStatusChange(service string, _, to biz.ServiceStatus) {
	h.server.SetServingStatus(service, servingStatus(to))

	overall := healthpb.HealthCheckResponse_SERVING
	if h.registry.Health() == biz.HealthUnhealthy {
		overall = healthpb.HealthCheckResponse_NOT_SERVING
	}
	h.server.SetServingStatus("", overall)
}

func servingStatus(s biz.ServiceStatus) healthpb.HealthCheckResponse_ServingStatus {
	switch s {
	case biz.StatusOnline, biz.StatusDegraded:
		return healthpb.HealthCheckResponse_SERVING
	case biz.StatusOffline, biz.StatusIntentionallyOffline:
		return healthpb.HealthCheckResponse_NOT_SERVING
	default:
		return healthpb.HealthCheckResponse_SERVICE_UNKNOWN
	}
}
