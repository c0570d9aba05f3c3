package brokertest

import (
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
)

type ServerTestSuite struct {
	suite.Suite
	server *Server
}

func TestServerSuite(t *testing.T) {
	suite.Run(t, new(ServerTestSuite))
}

func (suite *ServerTestSuite) SetupTest() {
	suite.server = NewServer(Config{})
}

func (suite *ServerTestSuite) assertDecimal(expected string, actual decimal.Decimal) {
	suite.True(actual.Equal(decimal.RequireFromString(expected)),
		"expected %s, got %s", expected, actual)
}

func d(value string) decimal.Decimal {
	return decimal.RequireFromString(value)
}

// Ledger arithmetic

func (suite *ServerTestSuite) TestApplyFill_OpensPosition() {
	realized := suite.server.applyFill("EUR_USD", d("1000"), d("1.1000"))
	suite.assertDecimal("0", realized)

	units, avgPrice := suite.server.Position("EUR_USD")
	suite.assertDecimal("1000", units)
	suite.assertDecimal("1.1000", avgPrice)
}

func (suite *ServerTestSuite) TestApplyFill_PyramidWeightsAverage() {
	suite.server.applyFill("EUR_USD", d("1000"), d("1.10"))
	realized := suite.server.applyFill("EUR_USD", d("3000"), d("1.11"))
	suite.assertDecimal("0", realized)

	units, avgPrice := suite.server.Position("EUR_USD")
	suite.assertDecimal("4000", units)
	suite.assertDecimal("1.1075", avgPrice)
}

func (suite *ServerTestSuite) TestApplyFill_ReduceKeepsAverageAndRealizes() {
	suite.server.applyFill("EUR_USD", d("1000"), d("1.1000"))
	realized := suite.server.applyFill("EUR_USD", d("-400"), d("1.1050"))
	suite.assertDecimal("2", realized)

	units, avgPrice := suite.server.Position("EUR_USD")
	suite.assertDecimal("600", units)
	suite.assertDecimal("1.1000", avgPrice)
}

func (suite *ServerTestSuite) TestApplyFill_FullCloseRemovesPosition() {
	suite.server.applyFill("EUR_USD", d("-1000"), d("1.1000"))
	realized := suite.server.applyFill("EUR_USD", d("1000"), d("1.0950"))
	suite.assertDecimal("5", realized)

	units, _ := suite.server.Position("EUR_USD")
	suite.assertDecimal("0", units)
}

func (suite *ServerTestSuite) TestApplyFill_ReversalRebooksAtFillPrice() {
	suite.server.applyFill("EUR_USD", d("1000"), d("1.1000"))
	realized := suite.server.applyFill("EUR_USD", d("-1500"), d("1.1050"))
	suite.assertDecimal("5", realized)

	units, avgPrice := suite.server.Position("EUR_USD")
	suite.assertDecimal("-500", units)
	suite.assertDecimal("1.1050", avgPrice)
}

// Resting order handles

func (suite *ServerTestSuite) TestFillOrder_BooksRestingOrder() {
	suite.server.orders["5001"] = &order{
		id:         "5001",
		kind:       "LIMIT",
		instrument: "EUR_USD",
		units:      d("1000"),
		price:      d("1.0900"),
		hasPrice:   true,
		state:      "PENDING",
		createTime: time.Now(),
	}

	suite.Require().NoError(suite.server.FillOrder("5001"))

	units, avgPrice := suite.server.Position("EUR_USD")
	suite.assertDecimal("1000", units)
	suite.assertDecimal("1.0900", avgPrice)
	suite.Equal("FILLED", suite.server.orders["5001"].state)

	suite.Error(suite.server.FillOrder("5001"), "filled orders cannot fill again")
}

func (suite *ServerTestSuite) TestPartialFillOrder_TracksFilledUnits() {
	suite.server.orders["5002"] = &order{
		id:         "5002",
		kind:       "LIMIT",
		instrument: "EUR_USD",
		units:      d("1000"),
		price:      d("1.0900"),
		hasPrice:   true,
		state:      "PENDING",
		createTime: time.Now(),
	}

	suite.Require().NoError(suite.server.PartialFillOrder("5002", d("400")))
	suite.assertDecimal("400", suite.server.orders["5002"].filledUnits)
	suite.Equal("PENDING", suite.server.orders["5002"].state)

	suite.Error(suite.server.PartialFillOrder("5002", d("700")), "cannot overfill")
}

// HTTP surface

func (suite *ServerTestSuite) TestHTTPRoundTrip() {
	server := NewServer(Config{Token: "secret"})
	suite.Require().NoError(server.Start(""))
	defer func() { suite.NoError(server.Stop()) }()

	client := &http.Client{Timeout: 5 * time.Second}
	url := server.BaseURL() + "/v3/accounts/101-001-0000001-001/summary"

	req, err := http.NewRequest(http.MethodGet, url, nil)
	suite.Require().NoError(err)
	req.Header.Set("Authorization", "Bearer secret")

	resp, err := client.Do(req)
	suite.Require().NoError(err)

	body, err := io.ReadAll(resp.Body)
	suite.Require().NoError(err)
	suite.Require().NoError(resp.Body.Close())
	suite.Equal(http.StatusOK, resp.StatusCode)

	var decoded struct {
		Account struct {
			ID      string `json:"id"`
			Balance string `json:"balance"`
		} `json:"account"`
	}
	suite.Require().NoError(json.Unmarshal(body, &decoded))
	suite.Equal("101-001-0000001-001", decoded.Account.ID)
	suite.Equal("100000", decoded.Account.Balance)

	suite.Equal(1, server.CallCount("summary"))
}

func (suite *ServerTestSuite) TestHTTPRejectsBadToken() {
	server := NewServer(Config{Token: "secret"})
	suite.Require().NoError(server.Start(""))
	defer func() { suite.NoError(server.Stop()) }()

	client := &http.Client{Timeout: 5 * time.Second}
	url := server.BaseURL() + "/v3/accounts/101-001-0000001-001/summary"

	req, err := http.NewRequest(http.MethodGet, url, nil)
	suite.Require().NoError(err)
	req.Header.Set("Authorization", "Bearer wrong")

	resp, err := client.Do(req)
	suite.Require().NoError(err)
	suite.Require().NoError(resp.Body.Close())
	suite.Equal(http.StatusUnauthorized, resp.StatusCode)
}

func (suite *ServerTestSuite) TestHTTPInjectedFailure() {
	server := NewServer(Config{})
	suite.Require().NoError(server.Start(""))
	defer func() { suite.NoError(server.Stop()) }()

	server.FailNext(1, http.StatusServiceUnavailable)

	client := &http.Client{Timeout: 5 * time.Second}
	url := server.BaseURL() + "/v3/accounts/101-001-0000001-001/summary"

	resp, err := client.Get(url)
	suite.Require().NoError(err)
	suite.Require().NoError(resp.Body.Close())
	suite.Equal(http.StatusServiceUnavailable, resp.StatusCode)

	resp, err = client.Get(url)
	suite.Require().NoError(err)
	suite.Require().NoError(resp.Body.Close())
	suite.Equal(http.StatusOK, resp.StatusCode)
}
