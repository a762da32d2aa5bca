package data

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/mrveiss/autobot-sentinel/internal/biz"
	"github.com/mrveiss/autobot-sentinel/internal/conf"
)

const summaryKey = "summary"

// StatusCache holds the most recent status summary for the hot GET /status
// path. Dashboards poll aggressively; the TTL bounds how stale an answer
// can be to a fraction of the health-check interval.
type StatusCache struct {
	lru *expirable.LRU[string, *biz.Summary]
}

// NewStatusCache sizes the cache from the registry check interval.
func NewStatusCache(c *conf.Bootstrap) *StatusCache {
	ttl := 3 * time.Second
	if c.Registry != nil {
		if interval := c.Registry.HealthCheckInterval.AsDuration(); interval > 0 {
			ttl = interval / 10
			if ttl < time.Second {
				ttl = time.Second
			}
		}
	}
	return &StatusCache{
		lru: expirable.NewLRU[string, *biz.Summary](4, nil, ttl),
	}
}

// Get implements biz.SummaryCache.
func (c *StatusCache) Get() (*biz.Summary, bool) {
	return c.lru.Get(summaryKey)
}

// Set implements biz.SummaryCache.
func (c *StatusCache) Set(s *biz.Summary) {
	c.lru.Add(summaryKey, s)
}
