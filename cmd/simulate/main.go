package main

import (
	"context"
	"fmt"
	"log"
	"math"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/moznion/go-optional"
	"github.com/schollz/progressbar/v3"
	"github.com/shopspring/decimal"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap/zapcore"

	"github.com/jthadison/tmt-sub003/internal/brokertest"
	"github.com/jthadison/tmt-sub003/internal/config"
	"github.com/jthadison/tmt-sub003/internal/engine"
	enginev1 "github.com/jthadison/tmt-sub003/internal/engine/engine_v1"
	"github.com/jthadison/tmt-sub003/internal/logger"
	"github.com/jthadison/tmt-sub003/internal/metrics"
	"github.com/jthadison/tmt-sub003/internal/types"
	"github.com/jthadison/tmt-sub003/mocks"
	"github.com/jthadison/tmt-sub003/pkg/errors"
)

const (
	simulateAccount = "101-001-0000001-001"
	simulateToken   = "simulate-token"

	// readyTimeout bounds the wait for the first reconcile pass.
	readyTimeout = 5 * time.Second
)

// kindStats tracks submit durations and failures for one order kind.
// Workers record concurrently.
type kindStats struct {
	mu        sync.Mutex
	name      string
	durations []time.Duration
	failures  int
}

// record adds one submit measurement.
func (ks *kindStats) record(d time.Duration, success bool) {
	ks.mu.Lock()
	defer ks.mu.Unlock()

	ks.durations = append(ks.durations, d)
	if !success {
		ks.failures++
	}
}

// calculate computes latency statistics from the recorded durations.
// Returns min, max, mean, median, 95th percentile, and 99th percentile.
func (ks *kindStats) calculate() (min, max, mean, median, p95, p99 time.Duration) {
	if len(ks.durations) == 0 {
		return 0, 0, 0, 0, 0, 0
	}

	sort.Slice(ks.durations, func(i, j int) bool {
		return ks.durations[i] < ks.durations[j]
	})

	min = ks.durations[0]
	max = ks.durations[len(ks.durations)-1]

	var sum time.Duration
	for _, d := range ks.durations {
		sum += d
	}
	mean = sum / time.Duration(len(ks.durations))

	median = ks.durations[len(ks.durations)/2]

	p95idx := int(math.Ceil(float64(len(ks.durations))*0.95)) - 1
	p99idx := int(math.Ceil(float64(len(ks.durations))*0.99)) - 1
	p95 = ks.durations[p95idx]
	p99 = ks.durations[p99idx]

	return min, max, mean, median, p95, p99
}

// outcomeCounts tallies submit outcomes by status or refusal code.
type outcomeCounts struct {
	mu     sync.Mutex
	counts map[string]int
}

func newOutcomeCounts() *outcomeCounts {
	return &outcomeCounts{
		mu:     sync.Mutex{},
		counts: make(map[string]int),
	}
}

func (oc *outcomeCounts) bump(label string) {
	oc.mu.Lock()
	defer oc.mu.Unlock()

	oc.counts[label]++
}

// simulateAction boots the broker double and an in-process engine, pushes the
// generated flow through submit workers, and prints the latency report.
func simulateAction(ctx context.Context, cmd *cli.Command) error {
	orders := int(cmd.Int("orders"))
	workers := int(cmd.Int("workers"))
	marketRatio := cmd.Float("market-ratio")
	seed := int64(cmd.Int("seed"))
	journalPath := cmd.String("journal")

	if orders <= 0 || workers <= 0 {
		return fmt.Errorf("orders and workers must be positive")
	}

	server := brokertest.NewServer(brokertest.Config{
		AccountID:  simulateAccount,
		Currency:   "USD",
		Token:      simulateToken,
		Balance:    decimal.NewFromInt(1000000),
		Commission: decimal.NewFromFloat(0.5),
		Quotes:     nil,
	})
	if err := server.Start(""); err != nil {
		return fmt.Errorf("failed to start broker double: %w", err)
	}

	appLogger, err := logger.NewLoggerWithLevel(zapcore.ErrorLevel)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = appLogger.Sync() }()

	eng, err := enginev1.NewExecutionEngineV1(simulationConfig(server.BaseURL(), journalPath, workers, orders), appLogger)
	if err != nil {
		return fmt.Errorf("failed to build engine: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	runErr := make(chan error, 1)
	go func() {
		runErr <- eng.Run(runCtx)
	}()

	if err := waitReady(runCtx, eng); err != nil {
		return err
	}

	gen := mocks.NewFlowGenerator(seed)
	flowCfg := mocks.DefaultFlowConfig()
	flowCfg.AccountID = simulateAccount
	flowCfg.Count = orders
	flowCfg.MarketRatio = marketRatio

	requests := gen.Generate(flowCfg)

	fmt.Printf("Submitting %d orders (%d workers, market ratio %.2f, seed %d)\n",
		len(requests), workers, marketRatio, seed)

	marketStats := &kindStats{name: "MARKET", mu: sync.Mutex{}, durations: nil, failures: 0}
	limitStats := &kindStats{name: "LIMIT", mu: sync.Mutex{}, durations: nil, failures: 0}
	outcomes := newOutcomeCounts()

	bar := progressbar.NewOptions(len(requests), progressbar.OptionSetDescription("Submitting orders"), progressbar.OptionShowCount())

	reqChan := make(chan *types.OrderRequest, len(requests))
	for i := range requests {
		reqChan <- &requests[i]
	}
	close(reqChan)

	started := time.Now()

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			for req := range reqChan {
				stats := marketStats
				if req.Kind == types.OrderKindLimit {
					stats = limitStats
				}

				start := time.Now()
				result, submitErr := eng.SubmitOrder(runCtx, req)
				elapsed := time.Since(start)

				switch {
				case submitErr != nil:
					stats.record(elapsed, false)
					outcomes.bump("refused " + string(errors.GetCode(submitErr)))
				case result.Success:
					stats.record(elapsed, true)
					outcomes.bump(string(result.Status))
				default:
					stats.record(elapsed, false)
					outcomes.bump(string(result.Status))
				}

				bar.Add(1)
			}
		}()
	}

	wg.Wait()
	bar.Finish()

	elapsed := time.Since(started)

	// Gather the final state before the engine stops.
	snapshot := eng.GetMetrics()
	active := eng.GetActiveOrders(runCtx, optional.Some(simulateAccount))
	positions, _ := eng.GetOpenPositions(runCtx, simulateAccount)
	summary, summaryErr := eng.GetAccountSummary(runCtx, simulateAccount)

	printLatencyReport([]*kindStats{marketStats, limitStats})
	printOutcomes(outcomes)
	printBrokerLatency(snapshot.Latencies)
	printCounters(snapshot.Counters)

	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION SUMMARY")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Orders submitted : %d in %s (%.0f orders/sec)\n",
		len(requests), elapsed.Round(time.Millisecond), float64(len(requests))/elapsed.Seconds())
	fmt.Printf("Resting orders   : %d\n", len(active))
	fmt.Printf("Open positions   : %d\n", len(positions))

	for _, position := range positions {
		fmt.Printf("  %-10s units=%s avg=%s unrealized=%s\n",
			position.Instrument, position.Units, position.AvgPrice, position.UnrealizedPnL)
	}

	if summaryErr == nil {
		fmt.Printf("Balance          : %s %s\n", summary.Balance, summary.Currency)
		fmt.Printf("NAV              : %s\n", summary.NAV)
		fmt.Printf("Margin used      : %s\n", summary.MarginUsed)
	}

	fmt.Println(strings.Repeat("=", 80))

	cancel()

	if err := <-runErr; err != nil && err != context.Canceled {
		return fmt.Errorf("engine error: %w", err)
	}

	if err := eng.Close(); err != nil {
		return fmt.Errorf("failed to close engine: %w", err)
	}

	if err := server.Stop(); err != nil {
		return fmt.Errorf("failed to stop broker double: %w", err)
	}

	return nil
}

// waitReady polls until the first reconcile pass has seeded the ledger.
func waitReady(ctx context.Context, eng engine.ExecutionEngine) error {
	deadline := time.Now().Add(readyTimeout)

	for {
		if _, err := eng.GetAccountSummary(ctx, simulateAccount); err == nil {
			return nil
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("engine not ready after %s", readyTimeout)
		}

		time.Sleep(20 * time.Millisecond)
	}
}

// simulationConfig tunes the engine for throughput against the local broker
// double: generous risk limits, fast background loops, no ops listener.
func simulationConfig(baseURL, journalPath string, workers, orders int) *config.Config {
	return &config.Config{
		Broker: config.BrokerConfig{
			Environment:        config.EnvironmentPractice,
			APIToken:           simulateToken,
			AccountID:          simulateAccount,
			BaseURL:            baseURL,
			AllowLive:          false,
			TimeoutMs:          5000,
			MaxConnections:     16,
			RateLimitPerSecond: 10000,
			RateBurst:          1000,
			MaxRetries:         2,
			RetryWaitMinMs:     10,
			RetryWaitMaxMs:     100,
			LatencyWindow:      4096,
		},
		Engine: config.EngineConfig{
			Workers:           workers,
			QueueSize:         256,
			PriceRefreshMs:    100,
			ReconcileMs:       1000,
			SummaryRefreshMs:  500,
			ExpirySweepMs:     1000,
			MarketTimeoutMs:   5000,
			CompletedTTLMs:    600000,
			CompletedCapacity: orders + 1,
		},
		Risk: config.RiskConfig{
			Limits:        simulationLimits(),
			AccountLimits: nil,
			MonitorMs:     1000,
		},
		Journal: config.JournalConfig{
			Path:      journalPath,
			ExportDir: "",
		},
		Ops: config.OpsConfig{
			Enabled: false,
			Listen:  "",
		},
		Logging: config.LoggingConfig{
			Level: "error",
		},
	}
}

// simulationLimits returns risk limits loose enough that the flow exercises
// execution rather than the risk ceilings. The position size cap still
// reflects runaway one-sided flow.
func simulationLimits() types.RiskLimits {
	return types.RiskLimits{
		MaxPositionSize:           decimal.NewFromInt(1000000),
		MaxPositionsPerInstrument: 8,
		MaxOpenPositions:          16,
		MaxLeverage:               decimal.NewFromInt(100),
		MaxDailyLoss:              decimal.NewFromInt(1000000),
		MaxWeeklyLoss:             decimal.NewFromInt(5000000),
		MaxDrawdown:               decimal.Zero,
		MinMarginRatio:            decimal.Zero,
		MaxOrdersPerMinute:        0,
		WarnRatio:                 decimal.Zero,
		Instruments:               nil,
		KillSwitchTriggers:        nil,
		Version:                   "",
		UpdatedAt:                 time.Time{},
	}
}

// printLatencyReport outputs submit latency statistics per order kind.
func printLatencyReport(stats []*kindStats) {
	fmt.Println("\nSubmit latency")
	fmt.Println(strings.Repeat("-", 96))
	fmt.Printf("%-10s %8s %8s %10s %10s %10s %10s %10s %10s\n",
		"Kind", "Calls", "Errors", "Min", "Max", "Mean", "Median", "P95", "P99")
	fmt.Println(strings.Repeat("-", 96))

	for _, ks := range stats {
		if len(ks.durations) == 0 {
			continue
		}

		min, max, mean, median, p95, p99 := ks.calculate()
		fmt.Printf("%-10s %8d %8d %10s %10s %10s %10s %10s %10s\n",
			ks.name,
			len(ks.durations),
			ks.failures,
			min.Round(time.Microsecond),
			max.Round(time.Microsecond),
			mean.Round(time.Microsecond),
			median.Round(time.Microsecond),
			p95.Round(time.Microsecond),
			p99.Round(time.Microsecond))
	}

	fmt.Println(strings.Repeat("-", 96))
}

// printOutcomes outputs how many submissions landed on each outcome.
func printOutcomes(outcomes *outcomeCounts) {
	fmt.Println("\nOutcome distribution")
	fmt.Println(strings.Repeat("-", 40))

	labels := make([]string, 0, len(outcomes.counts))
	for label := range outcomes.counts {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	for _, label := range labels {
		fmt.Printf("%-28s %d\n", label, outcomes.counts[label])
	}
}

// printBrokerLatency outputs the engine's own per-operation broker latency
// percentiles, the same numbers the ops listener serves.
func printBrokerLatency(latencies map[string]metrics.LatencySnapshot) {
	fmt.Println("\nBroker call latency")
	fmt.Println(strings.Repeat("-", 96))
	fmt.Printf("%-20s %8s %9s %10s %10s %10s %10s\n",
		"Operation", "Calls", "Success", "Avg", "P50", "P95", "P99")
	fmt.Println(strings.Repeat("-", 96))

	operations := make([]string, 0, len(latencies))
	for operation := range latencies {
		operations = append(operations, operation)
	}
	sort.Strings(operations)

	for _, operation := range operations {
		ls := latencies[operation]
		fmt.Printf("%-20s %8d %8.1f%% %10s %10s %10s %10s\n",
			operation,
			ls.Count,
			ls.SuccessRate*100,
			ls.Avg.Round(time.Microsecond),
			ls.P50.Round(time.Microsecond),
			ls.P95.Round(time.Microsecond),
			ls.P99.Round(time.Microsecond))
	}

	fmt.Println(strings.Repeat("-", 96))
}

// printCounters outputs the engine counters.
func printCounters(counters map[string]int64) {
	fmt.Println("\nEngine counters")
	fmt.Println(strings.Repeat("-", 40))

	names := make([]string, 0, len(counters))
	for name := range counters {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		fmt.Printf("%-28s %d\n", name, counters[name])
	}
}

func main() {
	cmd := &cli.Command{
		Name:  "simulate",
		Usage: "Drive generated order flow through an in-process engine and report latency",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "orders",
				Aliases: []string{"n"},
				Usage:   "Number of orders to submit",
				Value:   500,
			},
			&cli.IntFlag{
				Name:    "workers",
				Aliases: []string{"w"},
				Usage:   "Concurrent submitters",
				Value:   4,
			},
			&cli.FloatFlag{
				Name:  "market-ratio",
				Usage: "Fraction of market orders, the rest rest as limits",
				Value: 0.7,
			},
			&cli.IntFlag{
				Name:  "seed",
				Usage: "Flow generator seed, fixed seeds replay the same flow",
				Value: 42,
			},
			&cli.StringFlag{
				Name:  "journal",
				Usage: "Journal database file, empty runs in memory",
				Value: "",
			},
		},
		Action: simulateAction,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
