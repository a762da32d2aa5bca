package breaker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_GetBreakerLazyCreation(t *testing.T) {
	m := NewManager(DefaultConfig())

	b1, err := m.GetBreaker("redis-vm", nil)
	require.NoError(t, err)
	b2, err := m.GetBreaker("redis-vm", nil)
	require.NoError(t, err)
	assert.Same(t, b1, b2)

	assert.Equal(t, []string{"redis-vm"}, m.Names())
}

func TestManager_FirstWriterWinsConfig(t *testing.T) {
	m := NewManager(DefaultConfig())

	first := testConfig()
	first.FailureThreshold = 7
	b1, err := m.GetBreaker("npu-worker", &first)
	require.NoError(t, err)

	second := testConfig()
	second.FailureThreshold = 99
	b2, err := m.GetBreaker("npu-worker", &second)
	require.NoError(t, err)

	assert.Same(t, b1, b2)
	assert.Equal(t, 7, b2.Config().FailureThreshold)
}

func TestManager_ConcurrentCreationYieldsOneInstance(t *testing.T) {
	m := NewManager(DefaultConfig())

	const goroutines = 32
	results := make([]*Breaker, goroutines)

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func(i int) {
			defer wg.Done()
			b, err := m.GetBreaker("ai-stack", nil)
			assert.NoError(t, err)
			results[i] = b
		}(i)
	}
	wg.Wait()

	for i := 1; i < goroutines; i++ {
		assert.Same(t, results[0], results[i])
	}
}

func TestManager_InvalidConfigRejected(t *testing.T) {
	m := NewManager(DefaultConfig())

	bad := testConfig()
	bad.FailureThreshold = 0
	_, err := m.GetBreaker("broken", &bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FailureThreshold")

	assert.Nil(t, m.Get("broken"))
}

func TestManager_SnapshotsAndResetAll(t *testing.T) {
	m := NewManager(testConfig())

	a, err := m.GetBreaker("svc-a", nil)
	require.NoError(t, err)
	_, err = m.GetBreaker("svc-b", nil)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, _ = a.Execute(context.Background(), failConn)
	}
	require.Equal(t, StateOpen, a.State())

	snaps := m.Snapshots()
	require.Len(t, snaps, 2)
	assert.Equal(t, "open", snaps["svc-a"].StateName)
	assert.Equal(t, "closed", snaps["svc-b"].StateName)

	m.ResetAll()
	assert.Equal(t, StateClosed, a.State())
}

func TestManager_ResetByName(t *testing.T) {
	m := NewManager(testConfig())
	_, err := m.GetBreaker("svc", nil)
	require.NoError(t, err)

	assert.True(t, m.Reset("svc"))
	assert.False(t, m.Reset("no-such-service"))
}

func TestManager_StateChangeListener(t *testing.T) {
	m := NewManager(testConfig())
	b, err := m.GetBreaker("svc", nil)
	require.NoError(t, err)

	var mu sync.Mutex
	var transitions []string
	m.OnStateChange(func(name string, from, to State) {
		mu.Lock()
		transitions = append(transitions, name+":"+from.String()+"->"+to.String())
		mu.Unlock()
	})

	for i := 0; i < 3; i++ {
		_, _ = b.Execute(context.Background(), failConn)
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, transitions, 1)
	assert.Equal(t, "svc:closed->open", transitions[0])
}

func TestManager_ListenerPanicIsContained(t *testing.T) {
	m := NewManager(testConfig())
	b, err := m.GetBreaker("svc", nil)
	require.NoError(t, err)

	m.OnStateChange(func(name string, from, to State) {
		panic("bad listener")
	})

	assert.NotPanics(t, func() {
		for i := 0; i < 3; i++ {
			_, _ = b.Execute(context.Background(), failConn)
		}
	})
	assert.Equal(t, StateOpen, b.State())
}

func TestWrap_RoutesThroughBoundBreaker(t *testing.T) {
	m := NewManager(testConfig())

	calls := 0
	w, err := m.Wrap("browser-vm", nil, func(ctx context.Context) (any, error) {
		calls++
		return calls, nil
	})
	require.NoError(t, err)

	v, err := w.Call(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	// The wrapped callable exposes its breaker for introspection.
	require.NotNil(t, w.Breaker())
	assert.Equal(t, "browser-vm", w.Breaker().Name())
	assert.Same(t, m.Get("browser-vm"), w.Breaker())
}

func TestWrap_OpenBreakerBlocksCall(t *testing.T) {
	cfg := testConfig()
	cfg.RecoveryTimeout = time.Hour
	m := NewManager(cfg)

	w, err := m.Wrap("svc", nil, failConn)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, _ = w.Call(context.Background())
	}

	_, err = w.Call(context.Background())
	assert.ErrorIs(t, err, ErrOpen)
}
