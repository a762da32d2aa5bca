package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	khttp "github.com/go-kratos/kratos/v2/transport/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/durationpb"

	"github.com/mrveiss/autobot-sentinel/internal/biz"
	"github.com/mrveiss/autobot-sentinel/internal/conf"
)

// fakeProber flips between healthy and failing.
type fakeProber struct {
	mu  sync.Mutex
	err error
}

func (p *fakeProber) Probe(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *fakeProber) setErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

type fakeFactory struct {
	probers map[string]*fakeProber
}

func (f *fakeFactory) New(cfg biz.ServiceConfig) (biz.Prober, error) {
	p := &fakeProber{}
	f.probers[cfg.Name] = p
	return p, nil
}

func newTestAPI(t *testing.T, services ...*conf.Service) (*httptest.Server, *fakeFactory, *biz.ServiceRegistry) {
	t.Helper()

	c := &conf.Bootstrap{
		Breaker: &conf.Breaker{
			FailureThreshold:      5,
			RecoveryTimeout:       durationpb.New(60 * time.Second),
			SuccessThreshold:      2,
			CallTimeout:           durationpb.New(5 * time.Second),
			SlowCallThreshold:     durationpb.New(5 * time.Second),
			SlowCallRateThreshold: 0.8,
			MinCallsForEvaluation: 100,
			MaxHistory:            100,
		},
		Registry: &conf.Registry{
			HealthCheckInterval:          durationpb.New(30 * time.Second),
			ErrorRecoveryDelay:           durationpb.New(time.Second),
			LogSuppressionThreshold:      3,
			LogSuppressionDuration:       durationpb.New(300 * time.Second),
			LogIntervalDuringSuppression: durationpb.New(60 * time.Second),
			Services:                     services,
		},
	}

	factory := &fakeFactory{probers: make(map[string]*fakeProber)}
	registry, err := biz.NewServiceRegistry(c, factory, biz.NewBreakerManager(c), biz.NopEventRecorder{}, nil, log.DefaultLogger)
	require.NoError(t, err)

	srv := khttp.NewServer()
	NewStatusService(registry, log.DefaultLogger).RegisterRoutes(srv)

	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return ts, factory, registry
}

func apiService(name string, critical bool) *conf.Service {
	return &conf.Service{
		Name:       name,
		Type:       "http",
		Host:       "127.0.0.1",
		Port:       8080,
		HealthPath: "/health",
		TimeoutSec: 5,
		Critical:   critical,
	}
}

func doJSON(t *testing.T, method, url string, body any) (int, map[string]json.RawMessage) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(buf)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	fields := map[string]json.RawMessage{}
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &fields), "body: %s", raw)
	}
	return resp.StatusCode, fields
}

func TestGetStatus(t *testing.T) {
	ts, _, registry := newTestAPI(t, apiService("ai-stack", true), apiService("browser-vm", false))
	registry.CheckAll(context.Background())

	code, fields := doJSON(t, http.MethodGet, ts.URL+"/status", nil)
	require.Equal(t, http.StatusOK, code)

	assert.JSONEq(t, `"healthy"`, string(fields["status"]))
	var services map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(fields["services"], &services))
	assert.Len(t, services, 2)
	var breakers map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(fields["breakers"], &breakers))
	assert.Contains(t, breakers, "ai-stack")
}

func TestGetServiceNotFoundListsValidNames(t *testing.T) {
	ts, _, _ := newTestAPI(t, apiService("ai-stack", true))

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/status/nope", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	raw, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(raw), "ai-stack")
}

func TestForceCheckService(t *testing.T) {
	ts, _, _ := newTestAPI(t, apiService("ai-stack", true))

	code, fields := doJSON(t, http.MethodPost, ts.URL+"/check/ai-stack", nil)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `"online"`, string(fields["status"]))
}

func TestCheckAllEndpoint(t *testing.T) {
	ts, factory, _ := newTestAPI(t, apiService("a", false), apiService("b", false))
	factory.probers["b"].setErr(errors.New("down"))

	code, fields := doJSON(t, http.MethodPost, ts.URL+"/check-all", nil)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `"online"`, string(mustField(t, fields["a"], "status")))
	assert.JSONEq(t, `"offline"`, string(mustField(t, fields["b"], "status")))
}

func mustField(t *testing.T, raw json.RawMessage, key string) json.RawMessage {
	t.Helper()
	var m map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &m))
	return m[key]
}

func TestMarkOfflineAndOnline(t *testing.T) {
	ts, _, _ := newTestAPI(t, apiService("browser-vm", false))

	code, fields := doJSON(t, http.MethodPost, ts.URL+"/mark-offline/browser-vm", markOfflineRequest{Reason: "maintenance window"})
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `"intentionally_offline"`, string(fields["status"]))
	assert.JSONEq(t, `"maintenance window"`, string(fields["reason"]))

	code, fields = doJSON(t, http.MethodPost, ts.URL+"/mark-online/browser-vm", nil)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `"unknown"`, string(fields["status"]))
}

func TestAvailableEndpoint(t *testing.T) {
	ts, factory, registry := newTestAPI(t, apiService("a", false), apiService("b", false))
	factory.probers["b"].setErr(errors.New("down"))
	registry.CheckAll(context.Background())

	code, fields := doJSON(t, http.MethodGet, ts.URL+"/available", nil)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `["a"]`, string(fields["available"]))
}

func TestCriticalEndpoint(t *testing.T) {
	ts, _, registry := newTestAPI(t, apiService("a", true), apiService("b", false))
	registry.CheckAll(context.Background())

	code, fields := doJSON(t, http.MethodGet, ts.URL+"/critical", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, fields, "a")
	assert.NotContains(t, fields, "b")
}

func TestBreakerEndpoints(t *testing.T) {
	ts, factory, registry := newTestAPI(t, apiService("a", false))
	factory.probers["a"].setErr(fmt.Errorf("connect: connection refused"))
	registry.CheckAll(context.Background())

	code, fields := doJSON(t, http.MethodGet, ts.URL+"/breakers", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, fields, "a")

	// Each snapshot must expose the breaker's tunables to the dashboard.
	var snap map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(fields["a"], &snap))
	assert.Contains(t, snap, "config")

	code, fields = doJSON(t, http.MethodPost, ts.URL+"/breakers/a/reset", nil)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `"closed"`, string(fields["state"]))

	code, _ = doJSON(t, http.MethodPost, ts.URL+"/breakers/reset", nil)
	assert.Equal(t, http.StatusOK, code)

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/breakers/ghost/reset", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
