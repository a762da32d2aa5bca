package data

import (
	"fmt"
	"strings"

	"github.com/mrveiss/autobot-sentinel/internal/biz"
	"github.com/mrveiss/autobot-sentinel/internal/conf"
)

// ProberFactory builds the protocol-appropriate prober for each configured
// service.
type ProberFactory struct {
	redisDefaults *conf.Redis
}

// NewProberFactory creates the factory. Shared Redis defaults are optional.
func NewProberFactory(c *conf.Bootstrap) *ProberFactory {
	f := &ProberFactory{}
	if c.Data != nil {
		f.redisDefaults = c.Data.Redis
	}
	return f
}

// New implements biz.ProberFactory.
func (f *ProberFactory) New(cfg biz.ServiceConfig) (biz.Prober, error) {
	switch cfg.Type {
	case biz.TypeHTTP:
		return NewHTTPProber(cfg)
	case biz.TypeRedis:
		return NewRedisProber(cfg, f.redisDefaults), nil
	default:
		return nil, fmt.Errorf("service type %q is invalid (valid values: %s)",
			cfg.Type, strings.Join(biz.ValidServiceTypes(), ", "))
	}
}
