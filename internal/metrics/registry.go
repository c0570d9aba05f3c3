package metrics

import (
	"sync"
	"time"
)

// Counter names shared across the engine. Kept as constants so the ops
// surface stays stable.
const (
	CounterOrdersSubmitted     = "orders_submitted"
	CounterOrdersFilled        = "orders_filled"
	CounterOrdersRejected      = "orders_rejected"
	CounterOrdersCancelled     = "orders_cancelled"
	CounterOrdersExpired       = "orders_expired"
	CounterValidationFailures  = "validation_failures"
	CounterKillSwitchBlocks    = "kill_switch_blocks"
	CounterKillSwitchActivated = "kill_switch_activations"
	CounterBrokerRetries       = "broker_retries"
	CounterExecutionExceptions = "execution_exceptions"
	CounterFillsApplied        = "fills_applied"
	CounterReconcileDrifts     = "reconcile_drifts"
	CounterRiskWarnings        = "risk_warnings"
)

// Snapshot is the full metrics state served by the ops endpoint.
type Snapshot struct {
	Uptime    time.Duration              `yaml:"uptime" json:"uptime"`
	Counters  map[string]int64           `yaml:"counters" json:"counters"`
	Latencies map[string]LatencySnapshot `yaml:"latencies" json:"latencies"`
	Time      time.Time                  `yaml:"time" json:"time"`
}

// Registry tracks engine counters and broker call latencies in real-time.
type Registry struct {
	counters map[string]int64
	latency  *LatencyTracker
	started  time.Time

	mu sync.Mutex
}

// NewRegistry creates a new Registry instance.
func NewRegistry(latencyWindowSize int) *Registry {
	return &Registry{
		counters: make(map[string]int64),
		latency:  NewLatencyTracker(latencyWindowSize),
		started:  time.Now(),
		mu:       sync.Mutex{},
	}
}

// Inc increments a counter by one.
func (r *Registry) Inc(name string) {
	r.Add(name, 1)
}

// Add increments a counter by delta.
func (r *Registry) Add(name string, delta int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.counters[name] += delta
}

// Counter returns the current value of a counter.
func (r *Registry) Counter(name string) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.counters[name]
}

// Latency returns the latency tracker.
func (r *Registry) Latency() *LatencyTracker {
	return r.latency
}

// Snapshot returns a copy of all counters and latency summaries.
func (r *Registry) Snapshot() Snapshot {
	r.mu.Lock()

	counters := make(map[string]int64, len(r.counters))
	for name, value := range r.counters {
		counters[name] = value
	}

	started := r.started
	r.mu.Unlock()

	return Snapshot{
		Uptime:    time.Since(started),
		Counters:  counters,
		Latencies: r.latency.SnapshotAll(),
		Time:      time.Now(),
	}
}
