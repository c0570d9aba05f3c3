package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type MetricsTestSuite struct {
	suite.Suite
}

func TestMetricsSuite(t *testing.T) {
	suite.Run(t, new(MetricsTestSuite))
}

func (suite *MetricsTestSuite) TestObserveAndSnapshot() {
	tracker := NewLatencyTracker(100)

	for i := 1; i <= 100; i++ {
		tracker.Observe("execute_market_order", time.Duration(i)*time.Millisecond, true)
	}

	snapshot := tracker.Snapshot("execute_market_order")
	suite.Equal(100, snapshot.Count)
	suite.Equal(1.0, snapshot.SuccessRate)
	suite.Equal(1*time.Millisecond, snapshot.Min)
	suite.Equal(100*time.Millisecond, snapshot.Max)
	suite.Equal(50*time.Millisecond, snapshot.P50)
	suite.Equal(95*time.Millisecond, snapshot.P95)
	suite.Equal(99*time.Millisecond, snapshot.P99)
}

func (suite *MetricsTestSuite) TestSuccessRate() {
	tracker := NewLatencyTracker(10)

	tracker.Observe("get_prices", time.Millisecond, true)
	tracker.Observe("get_prices", time.Millisecond, true)
	tracker.Observe("get_prices", time.Millisecond, false)
	tracker.Observe("get_prices", time.Millisecond, true)

	snapshot := tracker.Snapshot("get_prices")
	suite.Equal(4, snapshot.Count)
	suite.InDelta(0.75, snapshot.SuccessRate, 1e-9)
}

func (suite *MetricsTestSuite) TestWindowWrapsAround() {
	tracker := NewLatencyTracker(4)

	// First four all failures, then four successes push them out
	for i := 0; i < 4; i++ {
		tracker.Observe("op", time.Millisecond, false)
	}

	for i := 0; i < 4; i++ {
		tracker.Observe("op", 2*time.Millisecond, true)
	}

	snapshot := tracker.Snapshot("op")
	suite.Equal(4, snapshot.Count)
	suite.Equal(1.0, snapshot.SuccessRate)
	suite.Equal(2*time.Millisecond, snapshot.Min)
}

func (suite *MetricsTestSuite) TestSnapshotUnknownOp() {
	tracker := NewLatencyTracker(10)

	snapshot := tracker.Snapshot("never_called")
	suite.Equal(0, snapshot.Count)
	suite.Equal(time.Duration(0), snapshot.P99)
}

func (suite *MetricsTestSuite) TestSnapshotAll() {
	tracker := NewLatencyTracker(10)
	tracker.Observe("a", time.Millisecond, true)
	tracker.Observe("b", time.Millisecond, true)

	all := tracker.SnapshotAll()
	suite.Len(all, 2)
	suite.Contains(all, "a")
	suite.Contains(all, "b")
}

func (suite *MetricsTestSuite) TestSingleSamplePercentiles() {
	tracker := NewLatencyTracker(10)
	tracker.Observe("op", 7*time.Millisecond, true)

	snapshot := tracker.Snapshot("op")
	suite.Equal(7*time.Millisecond, snapshot.P50)
	suite.Equal(7*time.Millisecond, snapshot.P95)
	suite.Equal(7*time.Millisecond, snapshot.P99)
}

func (suite *MetricsTestSuite) TestRegistryCounters() {
	registry := NewRegistry(16)

	registry.Inc(CounterOrdersSubmitted)
	registry.Inc(CounterOrdersSubmitted)
	registry.Add(CounterOrdersFilled, 3)

	suite.Equal(int64(2), registry.Counter(CounterOrdersSubmitted))
	suite.Equal(int64(3), registry.Counter(CounterOrdersFilled))
	suite.Equal(int64(0), registry.Counter(CounterOrdersRejected))
}

func (suite *MetricsTestSuite) TestRegistrySnapshot() {
	registry := NewRegistry(16)
	registry.Inc(CounterOrdersSubmitted)
	registry.Latency().Observe("execute_market_order", 5*time.Millisecond, true)

	snapshot := registry.Snapshot()
	suite.Equal(int64(1), snapshot.Counters[CounterOrdersSubmitted])
	suite.Contains(snapshot.Latencies, "execute_market_order")
	suite.False(snapshot.Time.IsZero())
}

func (suite *MetricsTestSuite) TestRegistrySnapshotIsCopy() {
	registry := NewRegistry(16)
	registry.Inc(CounterOrdersSubmitted)

	snapshot := registry.Snapshot()
	snapshot.Counters[CounterOrdersSubmitted] = 99

	suite.Equal(int64(1), registry.Counter(CounterOrdersSubmitted))
}
