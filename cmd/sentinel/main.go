// Package main is the entry point of the sentinel service.
// It initializes the Kratos application with gRPC and HTTP servers.
package main

import (
	"context"
	"flag"
	"os"

	"github.com/go-kratos/kratos/v2"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/transport/grpc"
	"github.com/go-kratos/kratos/v2/transport/http"
	"github.com/robfig/cron/v3"

	"github.com/mrveiss/autobot-sentinel/internal/biz"
	"github.com/mrveiss/autobot-sentinel/internal/conf"
	"github.com/mrveiss/autobot-sentinel/internal/data"
	zapLogger "github.com/mrveiss/autobot-sentinel/pkg/log"

	_ "go.uber.org/automaxprocs"
)

// go build -ldflags "-X main.Version=x.y.z"
var (
	// Name is the name of the compiled software.
	Name = "autobot-sentinel"
	// Version is the version of the compiled software.
	Version string
	// flagconf is the config flag.
	flagconf string

	id, _ = os.Hostname()
)

func init() {
	flag.StringVar(&flagconf, "conf", "../../configs/config.yaml", "config path, eg: -conf config.yaml")
}

func newApp(bc *conf.Bootstrap, logger log.Logger, gs *grpc.Server, hs *http.Server, registry *biz.ServiceRegistry, events *data.EventLog) *kratos.App {
	var purgeCron *cron.Cron

	return kratos.New(
		kratos.ID(id),
		kratos.Name(Name),
		kratos.Version(Version),
		kratos.Metadata(map[string]string{}),
		kratos.Logger(logger),
		kratos.Server(
			gs,
			hs,
		),
		kratos.BeforeStart(func(context.Context) error {
			purgeCron = StartEventPurgeCron(bc, events, logger)
			// The monitoring loop outlives the hook context.
			return registry.Start(context.Background())
		}),
		kratos.BeforeStop(func(context.Context) error {
			registry.Stop()
			if purgeCron != nil {
				purgeCron.Stop()
			}
			return nil
		}),
	)
}

func main() {
	flag.Parse()

	// Load configuration using Viper with environment variable support
	bc, err := conf.NewBootstrap(flagconf)
	if err != nil {
		// Use fallback logger before Zap is initialized
		log.Fatalf("failed to load configuration: %v", err)
	}

	// Initialize Zap logger from configuration
	zapLog, err := zapLogger.NewZapLogger(bc.Log)
	if err != nil {
		log.Fatalf("failed to initialize zap logger: %v", err)
	}
	defer zapLog.Sync()

	// Create Kratos adapter for Zap logger
	logger := zapLogger.NewKratosAdapter(zapLog)

	// Add context fields to logger
	logger = log.With(logger,
		"service.id", id,
		"service.name", Name,
		"service.version", Version,
	)

	// Log startup configuration
	log.NewHelper(logger).Infow(
		"msg", "sentinel service starting",
		"log.level", bc.Log.Level,
		"log.format", bc.Log.Format,
		"log.output_file", bc.Log.OutputFile,
		"services", len(bc.Registry.Services),
	)

	app, cleanup, err := wireApp(bc, bc.Server, bc.Data, logger)
	if err != nil {
		panic(err)
	}
	defer cleanup()

	// start and wait for stop signal
	if err := app.Run(); err != nil {
		panic(err)
	}
}
