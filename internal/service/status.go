// Package service exposes the registry and breaker surfaces over HTTP and
// keeps the gRPC health service in sync.
package service

import (
	"errors"
	"fmt"
	"strings"

	kerrors "github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
	khttp "github.com/go-kratos/kratos/v2/transport/http"

	"github.com/mrveiss/autobot-sentinel/internal/biz"
)

// StatusService serves the dashboard-facing status API.
type StatusService struct {
	registry *biz.ServiceRegistry
	logger   *log.Helper
}

// NewStatusService creates a new StatusService instance.
func NewStatusService(registry *biz.ServiceRegistry, logger log.Logger) *StatusService {
	return &StatusService{
		registry: registry,
		logger:   log.NewHelper(logger),
	}
}

// RegisterRoutes mounts the status API on the HTTP server router. The fixed
// /breakers/reset route is registered before the parameterized reset route
// so it cannot be captured as a breaker name.
func (s *StatusService) RegisterRoutes(srv *khttp.Server) {
	r := srv.Route("/")
	r.GET("/status", s.getStatus)
	r.GET("/status/{service}", s.getService)
	r.POST("/check-all", s.checkAll)
	r.POST("/check/{service}", s.checkService)
	r.POST("/mark-offline/{service}", s.markOffline)
	r.POST("/mark-online/{service}", s.markOnline)
	r.GET("/available", s.getAvailable)
	r.GET("/critical", s.getCritical)
	r.GET("/breakers", s.getBreakers)
	r.POST("/breakers/reset", s.resetAllBreakers)
	r.POST("/breakers/{name}/reset", s.resetBreaker)
}

// asAPIError maps registry errors onto transport errors. Unknown service
// names become a 404 whose message lists the valid names.
func asAPIError(err error) error {
	var unknown *biz.UnknownServiceError
	if errors.As(err, &unknown) {
		return kerrors.NotFound("SERVICE_NOT_FOUND", err.Error())
	}
	return err
}

func (s *StatusService) getStatus(ctx khttp.Context) error {
	return ctx.Result(200, s.registry.StatusSummary())
}

func (s *StatusService) getService(ctx khttp.Context) error {
	view, err := s.registry.Service(ctx.Vars().Get("service"))
	if err != nil {
		return asAPIError(err)
	}
	return ctx.Result(200, view)
}

func (s *StatusService) checkService(ctx khttp.Context) error {
	name := ctx.Vars().Get("service")
	s.logger.Infow("msg", "force check requested", "service", name)

	view, err := s.registry.CheckService(ctx, name)
	if err != nil {
		return asAPIError(err)
	}
	return ctx.Result(200, view)
}

func (s *StatusService) checkAll(ctx khttp.Context) error {
	return ctx.Result(200, s.registry.CheckAll(ctx))
}

type markOfflineRequest struct {
	Reason string `json:"reason"`
}

func (s *StatusService) markOffline(ctx khttp.Context) error {
	name := ctx.Vars().Get("service")

	var req markOfflineRequest
	if err := ctx.Bind(&req); err != nil {
		return kerrors.BadRequest("INVALID_BODY", err.Error())
	}

	view, err := s.registry.MarkIntentionallyOffline(name, req.Reason)
	if err != nil {
		return asAPIError(err)
	}
	return ctx.Result(200, view)
}

func (s *StatusService) markOnline(ctx khttp.Context) error {
	view, err := s.registry.MarkOnline(ctx.Vars().Get("service"))
	if err != nil {
		return asAPIError(err)
	}
	return ctx.Result(200, view)
}

func (s *StatusService) getAvailable(ctx khttp.Context) error {
	names := s.registry.AvailableServices()
	if names == nil {
		names = []string{}
	}
	return ctx.Result(200, map[string][]string{"available": names})
}

func (s *StatusService) getCritical(ctx khttp.Context) error {
	return ctx.Result(200, s.registry.CriticalServices())
}

func (s *StatusService) getBreakers(ctx khttp.Context) error {
	return ctx.Result(200, s.registry.Manager().Snapshots())
}

func (s *StatusService) resetBreaker(ctx khttp.Context) error {
	name := ctx.Vars().Get("name")
	mgr := s.registry.Manager()

	if !mgr.Reset(name) {
		return kerrors.NotFound("BREAKER_NOT_FOUND",
			fmt.Sprintf("unknown breaker %q (known breakers: %s)", name, strings.Join(mgr.Names(), ", ")))
	}
	s.logger.Warnw("msg", "circuit breaker manually reset", "breaker", name)
	return ctx.Result(200, mgr.Get(name).Snapshot())
}

func (s *StatusService) resetAllBreakers(ctx khttp.Context) error {
	mgr := s.registry.Manager()
	mgr.ResetAll()
	s.logger.Warn("all circuit breakers manually reset")
	return ctx.Result(200, mgr.Snapshots())
}
