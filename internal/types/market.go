package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Price is a two-sided quote for an instrument.
type Price struct {
	Instrument string          `yaml:"instrument" json:"instrument"`
	Bid        decimal.Decimal `yaml:"bid" json:"bid"`
	Ask        decimal.Decimal `yaml:"ask" json:"ask"`
	Time       time.Time       `yaml:"time" json:"time"`
	Tradeable  bool            `yaml:"tradeable" json:"tradeable"`
}

// Mid returns the midpoint of the quote.
func (p Price) Mid() decimal.Decimal {
	return p.Bid.Add(p.Ask).Div(decimal.NewFromInt(2))
}

// Spread returns ask minus bid.
func (p Price) Spread() decimal.Decimal {
	return p.Ask.Sub(p.Bid)
}

// ExecutionPrice returns the side of the quote a new trade would cross:
// buys lift the ask, sells hit the bid.
func (p Price) ExecutionPrice(side OrderSide) decimal.Decimal {
	if side == OrderSideSell {
		return p.Bid
	}

	return p.Ask
}

// Instrument carries the broker's tradeable instrument metadata.
type Instrument struct {
	Name        string `yaml:"name" json:"name"`
	DisplayName string `yaml:"display_name" json:"display_name"`
	// PipLocation is the power of ten of one pip, e.g. -4 for EUR_USD.
	PipLocation int             `yaml:"pip_location" json:"pip_location"`
	MarginRate  decimal.Decimal `yaml:"margin_rate" json:"margin_rate"`
	MinUnits    decimal.Decimal `yaml:"min_units" json:"min_units"`
	MaxUnits    decimal.Decimal `yaml:"max_units" json:"max_units"`
	Tradeable   bool            `yaml:"tradeable" json:"tradeable"`
}
