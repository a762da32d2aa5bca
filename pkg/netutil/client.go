// Package netutil builds the HTTP clients used by health probes. AutoBot VM
// services are often reachable only through a jump proxy, so the client
// supports SOCKS5 and HTTP/HTTPS proxies in addition to direct dialing.
package netutil

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/net/proxy"
)

// NewProbeClient creates an HTTP client for health probing. proxyURL may be
// empty (direct), socks5://, http:// or https://. The client keeps small
// connection pools: probes are periodic, not high-throughput.
func NewProbeClient(proxyURL string, timeout time.Duration) (*http.Client, error) {
	if proxyURL == "" {
		return &http.Client{
			Transport: probeTransport(nil),
			Timeout:   timeout,
		}, nil
	}

	parsed, err := url.Parse(proxyURL)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy URL: %w", err)
	}

	switch parsed.Scheme {
	case "socks5":
		return newSOCKS5Client(parsed, timeout)
	case "http", "https":
		return &http.Client{
			Transport: probeTransport(http.ProxyURL(parsed)),
			Timeout:   timeout,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported proxy scheme: %s", parsed.Scheme)
	}
}

func newSOCKS5Client(proxyURL *url.URL, timeout time.Duration) (*http.Client, error) {
	var auth *proxy.Auth
	if proxyURL.User != nil {
		password, _ := proxyURL.User.Password()
		auth = &proxy.Auth{
			User:     proxyURL.User.Username(),
			Password: password,
		}
	}

	dialer, err := proxy.SOCKS5("tcp", proxyURL.Host, auth, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
	}

	transport := probeTransport(nil)
	transport.DialContext = nil // Transport prefers DialContext; the SOCKS5 dialer only offers Dial
	transport.Dial = dialer.Dial //nolint:staticcheck

	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}, nil
}

func probeTransport(proxyFn func(*http.Request) (*url.URL, error)) *http.Transport {
	return &http.Transport{
		Proxy: proxyFn,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        4,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     90 * time.Second,
	}
}
