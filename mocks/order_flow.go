package mocks

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/moznion/go-optional"
	"github.com/shopspring/decimal"

	"github.com/jthadison/tmt-sub003/internal/types"
)

// FlowGenerator generates realistic order flow for load tests and
// benchmarking.
type FlowGenerator struct {
	rng *rand.Rand
	seq int
}

// NewFlowGenerator creates a new FlowGenerator with the given seed.
// Use a fixed seed for reproducible results in tests.
func NewFlowGenerator(seed int64) *FlowGenerator {
	return &FlowGenerator{
		rng: rand.New(rand.NewSource(seed)),
		seq: 0,
	}
}

// FlowConfig configures how order flow is generated.
type FlowConfig struct {
	// AccountID is stamped on every request.
	AccountID string
	// Instruments are the instruments orders are spread across.
	Instruments []string
	// ReferencePrices maps each instrument to its current mid price;
	// resting order prices are offset from it.
	ReferencePrices map[string]decimal.Decimal
	// Count is the number of requests to generate.
	Count int
	// MarketRatio is the fraction of market orders (0.0 to 1.0).
	MarketRatio float64
	// MinUnits is the smallest order size.
	MinUnits int64
	// MaxUnits is the largest order size.
	MaxUnits int64
	// MaxOffsetBps is the farthest a resting price sits from the reference,
	// in basis points.
	MaxOffsetBps int
}

// DefaultFlowConfig returns a sensible default configuration.
func DefaultFlowConfig() FlowConfig {
	return FlowConfig{
		AccountID:   "101-001-0000001-001",
		Instruments: []string{"EUR_USD"},
		ReferencePrices: map[string]decimal.Decimal{
			"EUR_USD": decimal.RequireFromString("1.1000"),
		},
		Count:        1000,
		MarketRatio:  0.7, // mostly market orders
		MinUnits:     100,
		MaxUnits:     5000,
		MaxOffsetBps: 50,
	}
}

// Generate creates a slice of order requests based on the configuration.
// Buys and sells mix evenly. Limit orders rest passively: buys below the
// reference price, sells above it. Every request carries a unique client
// order id so replays of the same flow stay distinguishable from duplicates.
func (g *FlowGenerator) Generate(config FlowConfig) []types.OrderRequest {
	requests := make([]types.OrderRequest, config.Count)

	for i := 0; i < config.Count; i++ {
		instrument := config.Instruments[g.rng.Intn(len(config.Instruments))]

		units := decimal.NewFromInt(g.unitsBetween(config.MinUnits, config.MaxUnits))
		buy := g.rng.Intn(2) == 0

		if !buy {
			units = units.Neg()
		}

		req := types.OrderRequest{
			AccountID:     config.AccountID,
			Instrument:    instrument,
			Units:         units,
			Kind:          types.OrderKindMarket,
			TimeInForce:   types.TimeInForceFOK,
			Price:         optional.None[decimal.Decimal](),
			PriceBound:    optional.None[decimal.Decimal](),
			GTDTime:       optional.None[time.Time](),
			ClientOrderID: optional.Some(fmt.Sprintf("flow-%d", g.seq)),
			StopLoss:      optional.None[types.BracketSpec](),
			TakeProfit:    optional.None[types.BracketSpec](),
			Metadata:      nil,
		}
		g.seq++

		if g.rng.Float64() >= config.MarketRatio {
			req.Kind = types.OrderKindLimit
			req.TimeInForce = types.TimeInForceGTC
			req.Price = optional.Some(g.restingPrice(config, instrument, buy))
		}

		requests[i] = req
	}

	return requests
}

// unitsBetween draws an order size in [minUnits, maxUnits].
func (g *FlowGenerator) unitsBetween(minUnits, maxUnits int64) int64 {
	if maxUnits <= minUnits {
		return minUnits
	}

	return minUnits + g.rng.Int63n(maxUnits-minUnits+1)
}

// restingPrice offsets the instrument's reference price by a random number of
// basis points, down for buys and up for sells.
func (g *FlowGenerator) restingPrice(config FlowConfig, instrument string, buy bool) decimal.Decimal {
	reference := config.ReferencePrices[instrument]

	bps := 1
	if config.MaxOffsetBps > 1 {
		bps += g.rng.Intn(config.MaxOffsetBps)
	}

	offset := reference.Mul(decimal.NewFromInt(int64(bps))).Div(decimal.NewFromInt(10000))

	price := reference.Sub(offset)
	if !buy {
		price = reference.Add(offset)
	}

	price = price.Round(5)
	if !price.IsPositive() {
		price = reference // prevent non-positive prices
	}

	return price
}

// GenerateBurst is a convenience function to generate count requests against
// the default instrument for benchmarking.
func GenerateBurst(accountID string, count int) []types.OrderRequest {
	gen := NewFlowGenerator(42) // Fixed seed for reproducibility
	config := DefaultFlowConfig()
	config.AccountID = accountID
	config.Count = count

	return gen.Generate(config)
}
