package position

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"github.com/jthadison/tmt-sub003/internal/logger"
	"github.com/jthadison/tmt-sub003/internal/metrics"
	"github.com/jthadison/tmt-sub003/internal/types"
	"github.com/jthadison/tmt-sub003/mocks"
	"github.com/jthadison/tmt-sub003/pkg/errors"
)

// PriceRefresherTestSuite drives the refresher loop against a strict mock so
// the retry sequence after a pricing outage is pinned down call by call.
type PriceRefresherTestSuite struct {
	suite.Suite
	ctrl    *gomock.Controller
	gateway *mocks.MockGateway
	manager *Manager
}

func (suite *PriceRefresherTestSuite) SetupTest() {
	suite.ctrl = gomock.NewController(suite.T())
	suite.gateway = mocks.NewMockGateway(suite.ctrl)
	suite.manager = New(testEngineConfig(), positionTestAccount, suite.gateway, nil,
		logger.NewNopLogger(), metrics.NewRegistry(64))
}

func TestPriceRefresherTestSuite(t *testing.T) {
	suite.Run(t, new(PriceRefresherTestSuite))
}

func (suite *PriceRefresherTestSuite) openPosition(instrument string, units, price float64) {
	_, err := suite.manager.ApplyFill(context.Background(), types.Fill{
		OrderID:    "refresh-" + instrument,
		AccountID:  positionTestAccount,
		Instrument: instrument,
		Units:      decimal.NewFromFloat(units),
		Price:      decimal.NewFromFloat(price),
		Commission: decimal.Zero,
		Time:       time.Now(),
	})
	suite.Require().NoError(err)
}

func (suite *PriceRefresherTestSuite) TestRefresherRecoversAfterOutage() {
	suite.openPosition("EUR_USD", 1000, 1.1000)

	quote := types.Price{
		Instrument: "EUR_USD",
		Bid:        decimal.NewFromFloat(1.2000),
		Ask:        decimal.NewFromFloat(1.2002),
		Time:       time.Now(),
		Tradeable:  true,
	}

	recovered := make(chan struct{})

	// Two refresh passes fail, the third succeeds, later passes repeat the
	// same quote. Declaration order pins the sequence.
	suite.gateway.EXPECT().
		GetPrices(gomock.Any(), positionTestAccount, []string{"EUR_USD"}).
		Return(nil, errors.New(errors.ErrCodeBrokerError, "pricing down")).
		Times(2)
	suite.gateway.EXPECT().
		GetPrices(gomock.Any(), positionTestAccount, []string{"EUR_USD"}).
		DoAndReturn(func(context.Context, string, []string) ([]types.Price, error) {
			close(recovered)

			return []types.Price{quote}, nil
		})
	suite.gateway.EXPECT().
		GetPrices(gomock.Any(), positionTestAccount, []string{"EUR_USD"}).
		Return([]types.Price{quote}, nil).
		AnyTimes()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() { done <- suite.manager.RunPriceRefresher(ctx) }()

	select {
	case <-recovered:
	case <-time.After(5 * time.Second):
		suite.FailNow("refresher never recovered from the outage")
	}

	// The successful pass marks the long at the fresh bid.
	suite.Require().Eventually(func() bool {
		pos, err := suite.manager.Position(positionTestAccount, "EUR_USD")

		return err == nil && pos.CurrentPrice.Equal(quote.Bid)
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	suite.ErrorIs(<-done, context.Canceled)
}

func (suite *PriceRefresherTestSuite) TestRefresherIdlesWithoutPositions() {
	// No GetPrices expectation: a pass over an empty ledger must not reach
	// the broker.
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() { done <- suite.manager.RunPriceRefresher(ctx) }()

	time.Sleep(50 * time.Millisecond)

	cancel()
	suite.ErrorIs(<-done, context.Canceled)
}
