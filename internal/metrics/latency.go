package metrics

import (
	"sort"
	"sync"
	"time"
)

// LatencySnapshot summarizes the recent round trips for one operation.
type LatencySnapshot struct {
	Count       int           `yaml:"count" json:"count"`
	SuccessRate float64       `yaml:"success_rate" json:"success_rate"`
	Min         time.Duration `yaml:"min" json:"min"`
	Max         time.Duration `yaml:"max" json:"max"`
	Avg         time.Duration `yaml:"avg" json:"avg"`
	P50         time.Duration `yaml:"p50" json:"p50"`
	P95         time.Duration `yaml:"p95" json:"p95"`
	P99         time.Duration `yaml:"p99" json:"p99"`
}

type latencySample struct {
	duration time.Duration
	success  bool
}

// latencyWindow is a fixed size ring of the most recent samples.
type latencyWindow struct {
	samples []latencySample
	next    int
	full    bool
}

func (w *latencyWindow) add(sample latencySample) {
	w.samples[w.next] = sample
	w.next++

	if w.next == len(w.samples) {
		w.next = 0
		w.full = true
	}
}

func (w *latencyWindow) size() int {
	if w.full {
		return len(w.samples)
	}

	return w.next
}

// LatencyTracker keeps a sliding window of call latencies per operation and
// serves percentile summaries. Windows are bounded so long sessions never
// grow memory.
type LatencyTracker struct {
	windowSize int
	ops        map[string]*latencyWindow

	mu sync.Mutex
}

// NewLatencyTracker creates a tracker holding windowSize samples per
// operation.
func NewLatencyTracker(windowSize int) *LatencyTracker {
	if windowSize <= 0 {
		windowSize = 1024
	}

	return &LatencyTracker{
		windowSize: windowSize,
		ops:        make(map[string]*latencyWindow),
		mu:         sync.Mutex{},
	}
}

// Observe records one call outcome for the operation.
func (t *LatencyTracker) Observe(op string, duration time.Duration, success bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	window, ok := t.ops[op]
	if !ok {
		window = &latencyWindow{
			samples: make([]latencySample, t.windowSize),
			next:    0,
			full:    false,
		}
		t.ops[op] = window
	}

	window.add(latencySample{duration: duration, success: success})
}

// Snapshot returns the summary for one operation. A zero snapshot is
// returned for operations never observed.
func (t *LatencyTracker) Snapshot(op string) LatencySnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	window, ok := t.ops[op]
	if !ok {
		return LatencySnapshot{} //nolint:exhaustruct // zero snapshot
	}

	return summarize(window)
}

// SnapshotAll returns summaries for every observed operation.
func (t *LatencyTracker) SnapshotAll() map[string]LatencySnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	result := make(map[string]LatencySnapshot, len(t.ops))
	for op, window := range t.ops {
		result[op] = summarize(window)
	}

	return result
}

func summarize(window *latencyWindow) LatencySnapshot {
	size := window.size()
	if size == 0 {
		return LatencySnapshot{} //nolint:exhaustruct // zero snapshot
	}

	durations := make([]time.Duration, 0, size)
	successes := 0

	var total time.Duration

	for i := 0; i < size; i++ {
		sample := window.samples[i]
		durations = append(durations, sample.duration)
		total += sample.duration

		if sample.success {
			successes++
		}
	}

	sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })

	return LatencySnapshot{
		Count:       size,
		SuccessRate: float64(successes) / float64(size),
		Min:         durations[0],
		Max:         durations[size-1],
		Avg:         total / time.Duration(size),
		P50:         percentile(durations, 50),
		P95:         percentile(durations, 95),
		P99:         percentile(durations, 99),
	}
}

// percentile returns the nearest rank percentile of sorted durations.
func percentile(sorted []time.Duration, p int) time.Duration {
	if len(sorted) == 0 {
		return 0
	}

	rank := (p*len(sorted) + 99) / 100
	if rank < 1 {
		rank = 1
	}

	if rank > len(sorted) {
		rank = len(sorted)
	}

	return sorted[rank-1]
}
