//go:build wireinject
// +build wireinject

// The build tag makes sure the stub is not built in the final build.

package main

import (
	"github.com/go-kratos/kratos/v2"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/wire"

	"github.com/mrveiss/autobot-sentinel/internal/biz"
	"github.com/mrveiss/autobot-sentinel/internal/conf"
	"github.com/mrveiss/autobot-sentinel/internal/data"
	"github.com/mrveiss/autobot-sentinel/internal/server"
	"github.com/mrveiss/autobot-sentinel/internal/service"
)

// wireApp init kratos application.
func wireApp(*conf.Bootstrap, *conf.Server, *conf.Data, log.Logger) (*kratos.App, func(), error) {
	panic(wire.Build(
		data.ProviderSet,
		biz.ProviderSet,
		service.ProviderSet,
		server.ProviderSet,
		newApp,
	))
}
