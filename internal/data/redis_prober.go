package data

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/mrveiss/autobot-sentinel/internal/biz"
	"github.com/mrveiss/autobot-sentinel/internal/conf"
)

// RedisProber probes a service with a PING round trip.
type RedisProber struct {
	client *redis.Client
}

// NewRedisProber builds a prober with its own client for the service address.
func NewRedisProber(cfg biz.ServiceConfig, defaults *conf.Redis) *RedisProber {
	return &RedisProber{
		client: newServiceRedisClient(cfg.Addr(), cfg.Timeout, defaults),
	}
}

// Probe implements biz.Prober.
func (p *RedisProber) Probe(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// Close releases the client's connection pool.
func (p *RedisProber) Close() error {
	return p.client.Close()
}
