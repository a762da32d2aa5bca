package breaker

import (
	"sort"
	"time"
)

// CallRecord is one completed call attempt: success, failure, or timeout.
// Records feed the rolling performance evaluation only; the state machine
// itself never depends on them for correctness.
type CallRecord struct {
	Timestamp time.Time     `json:"timestamp"`
	Duration  time.Duration `json:"duration"`
	Success   bool          `json:"success"`
	Kind      FailureKind   `json:"kind,omitempty"`
}

// Performance summarizes the calls inside the evaluation window.
type Performance struct {
	CallCount    int           `json:"call_count"`
	SuccessRate  float64       `json:"success_rate"`
	SlowCallRate float64       `json:"slow_call_rate"`
	AvgDuration  time.Duration `json:"avg_duration"`
	P95Duration  time.Duration `json:"p95_duration"`
}

// history is a fixed-capacity FIFO ring of call records. Not safe for
// concurrent use; the owning breaker's mutex guards it.
type history struct {
	records []CallRecord
	next    int
	full    bool
}

func newHistory(capacity int) *history {
	return &history{records: make([]CallRecord, capacity)}
}

func (h *history) append(rec CallRecord) {
	h.records[h.next] = rec
	h.next++
	if h.next == len(h.records) {
		h.next = 0
		h.full = true
	}
}

func (h *history) reset() {
	h.next = 0
	h.full = false
}

func (h *history) len() int {
	if h.full {
		return len(h.records)
	}
	return h.next
}

// snapshot returns records oldest-first.
func (h *history) snapshot() []CallRecord {
	out := make([]CallRecord, 0, h.len())
	if h.full {
		out = append(out, h.records[h.next:]...)
	}
	out = append(out, h.records[:h.next]...)
	return out
}

// recent returns the records whose timestamps fall inside [now-window, now].
func (h *history) recent(now time.Time, window time.Duration) []CallRecord {
	cutoff := now.Add(-window)
	all := h.snapshot()

	out := all[:0]
	for _, rec := range all {
		if !rec.Timestamp.Before(cutoff) {
			out = append(out, rec)
		}
	}
	return out
}

// evaluate computes the rolling performance summary for records inside the
// window.
func (h *history) evaluate(now time.Time, window, slowThreshold time.Duration) Performance {
	recs := h.recent(now, window)
	perf := Performance{CallCount: len(recs)}
	if len(recs) == 0 {
		return perf
	}

	var (
		successes int
		slow      int
		total     time.Duration
		durations = make([]time.Duration, 0, len(recs))
	)

	for _, rec := range recs {
		if rec.Success {
			successes++
		}
		if slowThreshold > 0 && rec.Duration >= slowThreshold {
			slow++
		}
		total += rec.Duration
		durations = append(durations, rec.Duration)
	}

	perf.SuccessRate = float64(successes) / float64(len(recs))
	perf.SlowCallRate = float64(slow) / float64(len(recs))
	perf.AvgDuration = total / time.Duration(len(recs))

	sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })
	idx := (len(durations)*95 + 99) / 100
	if idx > 0 {
		idx--
	}
	perf.P95Duration = durations[idx]

	return perf
}
