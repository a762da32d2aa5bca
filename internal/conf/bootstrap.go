package conf

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"google.golang.org/protobuf/types/known/durationpb"
)

// NewBootstrap creates and initializes a Bootstrap configuration.
// It loads configuration from the specified config file path, applies
// defaults, and allows overrides from environment variables prefixed with
// SENTINEL_.
//
// Configuration priority: Environment variables > Config file > Defaults
//
// Optional environment variables:
//   - MYSQL_DSN or SENTINEL_DATA_DATABASE_SOURCE: MySQL connection string
//     for the event log (omit to run without event history)
//   - SENTINEL_DATA_REDIS_ADDR: Redis address for the status cache
func NewBootstrap(configPath string) (*Bootstrap, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("SENTINEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	_ = v.BindEnv("data.database.source", "MYSQL_DSN", "SENTINEL_DATA_DATABASE_SOURCE")
	_ = v.BindEnv("data.redis.addr", "SENTINEL_DATA_REDIS_ADDR")

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		}
	}

	var services []*Service
	if err := v.UnmarshalKey("registry.services", &services); err != nil {
		return nil, fmt.Errorf("failed to parse registry.services: %w", err)
	}

	bc := &Bootstrap{
		Server: &Server{
			Http: &ServerHTTP{
				Network: v.GetString("server.http.network"),
				Addr:    v.GetString("server.http.addr"),
				Timeout: durationpb.New(v.GetDuration("server.http.timeout")),
			},
			Grpc: &ServerGRPC{
				Network: v.GetString("server.grpc.network"),
				Addr:    v.GetString("server.grpc.addr"),
				Timeout: durationpb.New(v.GetDuration("server.grpc.timeout")),
			},
		},
		Data: &Data{
			Database: &Database{
				Driver:             v.GetString("data.database.driver"),
				Source:             v.GetString("data.database.source"),
				EventRetentionDays: v.GetInt("data.database.event_retention_days"),
			},
			Redis: &Redis{
				Network:      v.GetString("data.redis.network"),
				Addr:         v.GetString("data.redis.addr"),
				Password:     v.GetString("data.redis.password"),
				ReadTimeout:  durationpb.New(v.GetDuration("data.redis.read_timeout")),
				WriteTimeout: durationpb.New(v.GetDuration("data.redis.write_timeout")),
			},
		},
		Breaker: &Breaker{
			FailureThreshold:      v.GetInt("breaker.failure_threshold"),
			RecoveryTimeout:       durationpb.New(v.GetDuration("breaker.recovery_timeout")),
			SuccessThreshold:      v.GetInt("breaker.success_threshold"),
			CallTimeout:           durationpb.New(v.GetDuration("breaker.call_timeout")),
			SlowCallThreshold:     durationpb.New(v.GetDuration("breaker.slow_call_threshold")),
			SlowCallRateThreshold: v.GetFloat64("breaker.slow_call_rate_threshold"),
			MinCallsForEvaluation: v.GetInt("breaker.min_calls_for_evaluation"),
			MaxHistory:            v.GetInt("breaker.max_history"),
		},
		Registry: &Registry{
			HealthCheckInterval:          durationpb.New(v.GetDuration("registry.health_check_interval")),
			ErrorRecoveryDelay:           durationpb.New(v.GetDuration("registry.error_recovery_delay")),
			LogSuppressionThreshold:      v.GetInt("registry.log_suppression_threshold"),
			LogSuppressionDuration:       durationpb.New(v.GetDuration("registry.log_suppression_duration")),
			LogIntervalDuringSuppression: durationpb.New(v.GetDuration("registry.log_interval_during_suppression")),
			Services:                     services,
		},
		Log: &Log{
			Level:      v.GetString("log.level"),
			Format:     v.GetString("log.format"),
			OutputFile: v.GetString("log.output_file"),
		},
	}

	if err := Validate(bc); err != nil {
		return nil, err
	}

	return bc, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.http.network", "tcp")
	v.SetDefault("server.http.addr", ":8085")
	v.SetDefault("server.http.timeout", 30*time.Second)

	v.SetDefault("server.grpc.network", "tcp")
	v.SetDefault("server.grpc.addr", ":9085")
	v.SetDefault("server.grpc.timeout", 30*time.Second)

	// Data defaults: both backends optional
	v.SetDefault("data.database.driver", "mysql")
	v.SetDefault("data.database.event_retention_days", 14)

	v.SetDefault("data.redis.network", "tcp")
	v.SetDefault("data.redis.read_timeout", 200*time.Millisecond)
	v.SetDefault("data.redis.write_timeout", 200*time.Millisecond)

	// Breaker defaults
	v.SetDefault("breaker.failure_threshold", 5)
	v.SetDefault("breaker.recovery_timeout", 60*time.Second)
	v.SetDefault("breaker.success_threshold", 2)
	v.SetDefault("breaker.call_timeout", 30*time.Second)
	v.SetDefault("breaker.slow_call_threshold", 5*time.Second)
	v.SetDefault("breaker.slow_call_rate_threshold", 0.8)
	v.SetDefault("breaker.min_calls_for_evaluation", 10)
	v.SetDefault("breaker.max_history", 100)

	// Registry defaults
	v.SetDefault("registry.health_check_interval", 30*time.Second)
	v.SetDefault("registry.error_recovery_delay", 5*time.Second)
	v.SetDefault("registry.log_suppression_threshold", 3)
	v.SetDefault("registry.log_suppression_duration", 300*time.Second)
	v.SetDefault("registry.log_interval_during_suppression", 60*time.Second)

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Validate checks that the configuration is coherent. It returns an error
// listing every problem found, not just the first.
func Validate(bc *Bootstrap) error {
	var problems []string

	if bc.Breaker.FailureThreshold <= 0 {
		problems = append(problems, "breaker.failure_threshold must be > 0")
	}
	if bc.Breaker.SuccessThreshold <= 0 {
		problems = append(problems, "breaker.success_threshold must be > 0")
	}
	if bc.Breaker.CallTimeout.AsDuration() <= 0 {
		problems = append(problems, "breaker.call_timeout must be > 0")
	}
	if r := bc.Breaker.SlowCallRateThreshold; r < 0 || r > 1 {
		problems = append(problems, "breaker.slow_call_rate_threshold must be in [0,1]")
	}
	if bc.Registry.HealthCheckInterval.AsDuration() <= 0 {
		problems = append(problems, "registry.health_check_interval must be > 0")
	}
	if bc.Registry.LogSuppressionThreshold <= 0 {
		problems = append(problems, "registry.log_suppression_threshold must be > 0")
	}

	seen := make(map[string]bool)
	for i, svc := range bc.Registry.Services {
		prefix := fmt.Sprintf("registry.services[%d]", i)
		if svc.Name == "" {
			problems = append(problems, prefix+".name is required")
		} else if seen[svc.Name] {
			problems = append(problems, prefix+": duplicate service name "+svc.Name)
		} else {
			seen[svc.Name] = true
		}
		if svc.Type != "http" && svc.Type != "redis" {
			problems = append(problems, fmt.Sprintf("%s.type %q is invalid (valid values: http, redis)", prefix, svc.Type))
		}
		if svc.Host == "" {
			problems = append(problems, prefix+".host is required")
		}
		if svc.Port <= 0 || svc.Port > 65535 {
			problems = append(problems, fmt.Sprintf("%s.port %d is out of range", prefix, svc.Port))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, ", "))
	}

	return nil
}
