package data

import (
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mrveiss/autobot-sentinel/internal/conf"
)

// newServiceRedisClient builds a small-footprint Redis client for liveness
// probing one monitored service. Credentials and read/write deadlines fall
// back to the shared Redis defaults when the service does not carry its own.
func newServiceRedisClient(addr string, timeout time.Duration, defaults *conf.Redis) *redis.Client {
	opts := &redis.Options{
		Addr:        addr,
		DB:          0,
		PoolSize:    2, // one probe in flight at a time
		DialTimeout: timeout,
		ReadTimeout: timeout,
		// Idle probes should not pin connections to a possibly-dead host.
		ConnMaxIdleTime: time.Minute,
	}
	if defaults != nil {
		opts.Network = defaults.Network
		opts.Password = defaults.Password
		if opts.ReadTimeout == 0 {
			opts.ReadTimeout = defaults.ReadTimeout.AsDuration()
		}
		if wt := defaults.WriteTimeout.AsDuration(); wt > 0 {
			opts.WriteTimeout = wt
		}
	}
	if opts.DialTimeout == 0 {
		opts.DialTimeout = 3 * time.Second
	}
	return redis.NewClient(opts)
}
