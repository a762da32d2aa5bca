package breaker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeNetError struct {
	timeout bool
}

func (e *fakeNetError) Error() string   { return "fake net error" }
func (e *fakeNetError) Timeout() bool   { return e.timeout }
func (e *fakeNetError) Temporary() bool { return false }

var _ net.Error = (*fakeNetError)(nil)

func TestDefaultClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want FailureKind
	}{
		{"nil", nil, ""},
		{"deadline exceeded", context.DeadlineExceeded, KindTimeout},
		{"wrapped deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), KindTimeout},
		{"canceled", context.Canceled, KindCanceled},
		{"validation sentinel", fmt.Errorf("bad port: %w", ErrValidation), KindValidation},
		{"net timeout", &fakeNetError{timeout: true}, KindTimeout},
		{"net non-timeout", &fakeNetError{}, KindConnection},
		{"conn refused", fmt.Errorf("dial: %w", syscall.ECONNREFUSED), KindConnection},
		{"conn reset", syscall.ECONNRESET, KindConnection},
		{"host unreachable", syscall.EHOSTUNREACH, KindConnection},
		{"unexpected eof", io.ErrUnexpectedEOF, KindProtocol},
		{"eof", io.EOF, KindProtocol},
		{"plain error", errors.New("something else"), KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DefaultClassify(tt.err))
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := DefaultConfig()
	assert.NoError(t, valid.Validate())

	bad := DefaultConfig()
	bad.FailureThreshold = 0
	bad.SuccessThreshold = -1
	bad.CallTimeout = 0
	bad.SlowCallRateThreshold = 1.5

	err := bad.Validate()
	assert.Error(t, err)
	// Every invalid field is listed, not just the first.
	assert.Contains(t, err.Error(), "FailureThreshold")
	assert.Contains(t, err.Error(), "SuccessThreshold")
	assert.Contains(t, err.Error(), "CallTimeout")
	assert.Contains(t, err.Error(), "SlowCallRateThreshold")
}

func TestConfig_Presets(t *testing.T) {
	for name, cfg := range map[string]Config{
		"default": DefaultConfig(),
		"http":    HTTPServiceConfig(),
		"redis":   RedisServiceConfig(),
	} {
		t.Run(name, func(t *testing.T) {
			assert.NoError(t, cfg.Validate())
			assert.True(t, cfg.MonitoredKinds[KindTimeout])
			assert.True(t, cfg.NonMonitoredKinds[KindValidation])
		})
	}
}

func TestConfig_WithDefaultsFillsOptionalFields(t *testing.T) {
	c := Config{
		FailureThreshold:      1,
		SuccessThreshold:      1,
		CallTimeout:           time.Second,
		SlowCallRateThreshold: 0.5,
		MinCallsForEvaluation: 1,
	}.withDefaults()

	assert.NotNil(t, c.Classify)
	assert.NotNil(t, c.MonitoredKinds)
	assert.NotNil(t, c.NonMonitoredKinds)
	assert.Greater(t, c.MaxHistory, 0)
	assert.Greater(t, c.EvaluationWindow, time.Duration(0))
}
