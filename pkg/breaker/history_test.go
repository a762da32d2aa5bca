package breaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func rec(ts time.Time, d time.Duration, ok bool) CallRecord {
	return CallRecord{Timestamp: ts, Duration: d, Success: ok}
}

func TestHistory_FIFOEviction(t *testing.T) {
	h := newHistory(3)
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		h.append(rec(base.Add(time.Duration(i)*time.Second), time.Millisecond, true))
	}

	assert.Equal(t, 3, h.len())
	snap := h.snapshot()
	// Oldest entries evicted first: records 2, 3, 4 remain, oldest-first.
	assert.Equal(t, base.Add(2*time.Second), snap[0].Timestamp)
	assert.Equal(t, base.Add(4*time.Second), snap[2].Timestamp)
}

func TestHistory_RecentWindow(t *testing.T) {
	h := newHistory(10)
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	h.append(rec(base, time.Millisecond, true))
	h.append(rec(base.Add(30*time.Second), time.Millisecond, true))
	h.append(rec(base.Add(90*time.Second), time.Millisecond, true))

	now := base.Add(100 * time.Second)
	recents := h.recent(now, 60*time.Second)
	assert.Len(t, recents, 2)
}

func TestHistory_Evaluate(t *testing.T) {
	h := newHistory(10)
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	// 3 fast successes, 1 slow failure.
	h.append(rec(base.Add(1*time.Second), 100*time.Millisecond, true))
	h.append(rec(base.Add(2*time.Second), 200*time.Millisecond, true))
	h.append(rec(base.Add(3*time.Second), 300*time.Millisecond, true))
	h.append(CallRecord{Timestamp: base.Add(4 * time.Second), Duration: 3 * time.Second, Kind: KindTimeout})

	perf := h.evaluate(base.Add(5*time.Second), time.Minute, time.Second)
	assert.Equal(t, 4, perf.CallCount)
	assert.InDelta(t, 0.75, perf.SuccessRate, 1e-9)
	assert.InDelta(t, 0.25, perf.SlowCallRate, 1e-9)
	assert.Equal(t, 900*time.Millisecond, perf.AvgDuration)
	assert.Equal(t, 3*time.Second, perf.P95Duration)
}

func TestHistory_EvaluateEmpty(t *testing.T) {
	h := newHistory(4)
	perf := h.evaluate(time.Now(), time.Minute, time.Second)
	assert.Equal(t, 0, perf.CallCount)
	assert.Zero(t, perf.SuccessRate)
	assert.Zero(t, perf.P95Duration)
}

func TestHistory_Reset(t *testing.T) {
	h := newHistory(4)
	h.append(rec(time.Now(), time.Millisecond, true))
	h.reset()
	assert.Equal(t, 0, h.len())
	assert.Empty(t, h.snapshot())
}
