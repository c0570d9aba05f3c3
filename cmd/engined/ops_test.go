package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"github.com/jthadison/tmt-sub003/internal/metrics"
	"github.com/jthadison/tmt-sub003/mocks"
)

type OpsServerTestSuite struct {
	suite.Suite
	ctrl   *gomock.Controller
	engine *mocks.MockExecutionEngine
	router http.Handler
}

func (suite *OpsServerTestSuite) SetupTest() {
	suite.ctrl = gomock.NewController(suite.T())
	suite.engine = mocks.NewMockExecutionEngine(suite.ctrl)
	suite.router = opsRouter(suite.engine)
}

func TestOpsServerTestSuite(t *testing.T) {
	suite.Run(t, new(OpsServerTestSuite))
}

func (suite *OpsServerTestSuite) TestHealthz() {
	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodGet, "/healthz", nil)

	suite.router.ServeHTTP(recorder, request)

	suite.Equal(http.StatusOK, recorder.Code)
	suite.Equal("application/json", recorder.Header().Get("Content-Type"))

	var body map[string]string
	suite.Require().NoError(json.Unmarshal(recorder.Body.Bytes(), &body))
	suite.Equal("ok", body["status"])
}

func (suite *OpsServerTestSuite) TestMetricsServesSnapshot() {
	snapshot := metrics.Snapshot{
		Uptime: 90 * time.Second,
		Counters: map[string]int64{
			metrics.CounterOrdersSubmitted: 12,
			metrics.CounterOrdersFilled:    11,
		},
		Latencies: map[string]metrics.LatencySnapshot{},
		Time:      time.Now().UTC(),
	}
	suite.engine.EXPECT().GetMetrics().Return(snapshot)

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodGet, "/metrics", nil)

	suite.router.ServeHTTP(recorder, request)

	suite.Equal(http.StatusOK, recorder.Code)

	var body metrics.Snapshot
	suite.Require().NoError(json.Unmarshal(recorder.Body.Bytes(), &body))
	suite.Equal(snapshot.Uptime, body.Uptime)
	suite.Equal(snapshot.Counters, body.Counters)
}

func (suite *OpsServerTestSuite) TestMetricsRejectsPost() {
	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodPost, "/metrics", nil)

	suite.router.ServeHTTP(recorder, request)

	suite.Equal(http.StatusMethodNotAllowed, recorder.Code)
}
