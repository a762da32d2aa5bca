package data

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/durationpb"

	"github.com/mrveiss/autobot-sentinel/internal/biz"
	"github.com/mrveiss/autobot-sentinel/internal/conf"
)

func testDataBootstrap() *conf.Bootstrap {
	return &conf.Bootstrap{}
}

func redisServiceConfig(t *testing.T, addr string) biz.ServiceConfig {
	t.Helper()
	host, portStr, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	return biz.ServiceConfig{
		Name:    "redis-vm",
		Type:    biz.TypeRedis,
		Host:    host,
		Port:    port,
		Timeout: time.Second,
	}
}

func TestRedisProberPing(t *testing.T) {
	mr := miniredis.RunT(t)

	p := NewRedisProber(redisServiceConfig(t, mr.Addr()), nil)
	defer p.Close()

	assert.NoError(t, p.Probe(context.Background()))
}

func TestRedisProberDownServer(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := redisServiceConfig(t, mr.Addr())
	mr.Close()

	p := NewRedisProber(cfg, nil)
	defer p.Close()

	assert.Error(t, p.Probe(context.Background()))
}

func TestServiceRedisClientAppliesDefaults(t *testing.T) {
	cl := newServiceRedisClient("127.0.0.1:6379", 0, &conf.Redis{
		Network:      "tcp",
		Password:     "secret",
		ReadTimeout:  durationpb.New(2 * time.Second),
		WriteTimeout: durationpb.New(1 * time.Second),
	})
	defer cl.Close()

	opts := cl.Options()
	assert.Equal(t, "tcp", opts.Network)
	assert.Equal(t, "secret", opts.Password)
	assert.Equal(t, 2*time.Second, opts.ReadTimeout)
	assert.Equal(t, 1*time.Second, opts.WriteTimeout)
	// Nil defaults must not panic and leave library fallbacks in place.
	cl2 := newServiceRedisClient("127.0.0.1:6379", time.Second, nil)
	defer cl2.Close()
	assert.Equal(t, time.Second, cl2.Options().ReadTimeout)
}

func TestProberFactorySelectsByType(t *testing.T) {
	f := NewProberFactory(testDataBootstrap())

	p, err := f.New(biz.ServiceConfig{Name: "a", Type: biz.TypeHTTP, Host: "localhost", Port: 8080, Timeout: time.Second})
	require.NoError(t, err)
	assert.IsType(t, &HTTPProber{}, p)

	p, err = f.New(biz.ServiceConfig{Name: "b", Type: biz.TypeRedis, Host: "localhost", Port: 6379, Timeout: time.Second})
	require.NoError(t, err)
	assert.IsType(t, &RedisProber{}, p)

	_, err = f.New(biz.ServiceConfig{Name: "c", Type: "ftp", Host: "localhost", Port: 21})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "valid values: http, redis")
}
