package data

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/mrveiss/autobot-sentinel/internal/biz"
	"github.com/mrveiss/autobot-sentinel/pkg/netutil"
)

// HTTPProber probes a service by GETting its health endpoint. Any answer
// below 500 counts as healthy; the service is up even when it is unhappy
// about the request itself.
type HTTPProber struct {
	url    string
	client *http.Client
}

// NewHTTPProber builds the prober, routing through the service's proxy when
// one is configured.
func NewHTTPProber(cfg biz.ServiceConfig) (*HTTPProber, error) {
	client, err := netutil.NewProbeClient(cfg.ProxyURL, cfg.Timeout)
	if err != nil {
		return nil, fmt.Errorf("probe client: %w", err)
	}

	path := cfg.HealthPath
	if path == "" {
		path = "/health"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	return &HTTPProber{
		url:    fmt.Sprintf("http://%s%s", cfg.Addr(), path),
		client: client,
	}, nil
}

// Probe implements biz.Prober.
func (p *HTTPProber) Probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	// Drain a bounded amount so the connection can be reused.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("health endpoint %s returned %d", p.url, resp.StatusCode)
	}
	return nil
}
