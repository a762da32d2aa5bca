package server

import (
	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/middleware/recovery"
	"github.com/go-kratos/kratos/v2/transport/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/mrveiss/autobot-sentinel/internal/conf"
	"github.com/mrveiss/autobot-sentinel/internal/service"
)

// NewGRPCServer new a gRPC server exposing the standard grpc.health.v1
// service, fed by the registry through the health syncer.
func NewGRPCServer(c *conf.Server, healthSyncer *service.HealthSyncer, logger log.Logger) *grpc.Server {
	var opts = []grpc.ServerOption{
		grpc.Middleware(
			recovery.Recovery(),
		),
		// The registry drives health statuses; disable the transport's
		// built-in health service so ours can register.
		grpc.CustomHealth(),
	}
	if c.Grpc.Network != "" {
		opts = append(opts, grpc.Network(c.Grpc.Network))
	}
	if c.Grpc.Addr != "" {
		opts = append(opts, grpc.Address(c.Grpc.Addr))
	}
	if c.Grpc.Timeout != nil {
		opts = append(opts, grpc.Timeout(c.Grpc.Timeout.AsDuration()))
	}
	srv := grpc.NewServer(opts...)

	healthpb.RegisterHealthServer(srv, healthSyncer.Server())

	return srv
}
