// Package conf provides configuration management using Viper.
// It supports loading configuration from YAML files and environment
// variables, with sensible defaults for every tunable.
package conf

import (
	"google.golang.org/protobuf/types/known/durationpb"
)

// Bootstrap is the root configuration of the sentinel service.
type Bootstrap struct {
	Server   *Server
	Data     *Data
	Breaker  *Breaker
	Registry *Registry
	Log      *Log
}

// Server holds transport configuration.
type Server struct {
	Http *ServerHTTP
	Grpc *ServerGRPC
}

// ServerHTTP configures the HTTP status API transport.
type ServerHTTP struct {
	Network string
	Addr    string
	Timeout *durationpb.Duration
}

// ServerGRPC configures the gRPC health transport.
type ServerGRPC struct {
	Network string
	Addr    string
	Timeout *durationpb.Duration
}

// Data holds data layer configuration. Both sections are optional: the
// service degrades gracefully without MySQL (no event history), and the
// Redis section only supplies connection defaults for redis-type service
// probes.
type Data struct {
	Database *Database
	Redis    *Redis
}

// Database configures the MySQL event log.
type Database struct {
	Driver string
	Source string
	// EventRetentionDays controls how long breaker/service events are
	// kept before the nightly purge removes them.
	EventRetentionDays int
}

// Redis supplies shared connection defaults (network, credentials,
// deadlines) applied to every redis-type service prober.
type Redis struct {
	Network      string
	Addr         string
	Password     string
	ReadTimeout  *durationpb.Duration
	WriteTimeout *durationpb.Duration
}

// Breaker holds the default circuit breaker tunables applied to services
// that do not override them.
type Breaker struct {
	FailureThreshold      int
	RecoveryTimeout       *durationpb.Duration
	SuccessThreshold      int
	CallTimeout           *durationpb.Duration
	SlowCallThreshold     *durationpb.Duration
	SlowCallRateThreshold float64
	MinCallsForEvaluation int
	MaxHistory            int
}

// Registry holds the health registry configuration.
type Registry struct {
	HealthCheckInterval *durationpb.Duration
	// ErrorRecoveryDelay is slept after an unexpected monitoring-cycle
	// error before the loop continues.
	ErrorRecoveryDelay *durationpb.Duration

	// Log suppression tunables (see biz.ServiceRegistry).
	LogSuppressionThreshold      int
	LogSuppressionDuration       *durationpb.Duration
	LogIntervalDuringSuppression *durationpb.Duration

	Services []*Service
}

// Service describes one monitored remote service.
type Service struct {
	Name       string `mapstructure:"name"`
	Type       string `mapstructure:"type"` // "http" or "redis"
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	HealthPath string `mapstructure:"health_path"`
	TimeoutSec int    `mapstructure:"timeout_sec"`
	Critical   bool   `mapstructure:"critical"`
	Optional   bool   `mapstructure:"optional"`
	ProxyURL   string `mapstructure:"proxy_url"`
}

// Log configures the Zap logger.
type Log struct {
	Level      string
	Format     string
	OutputFile string
}
