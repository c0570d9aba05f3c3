package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"github.com/jthadison/tmt-sub003/pkg/errors"
)

type ConfigTestSuite struct {
	suite.Suite

	dir string
}

func TestConfigSuite(t *testing.T) {
	suite.Run(t, new(ConfigTestSuite))
}

func (suite *ConfigTestSuite) SetupTest() {
	suite.dir = suite.T().TempDir()

	for _, key := range []string{
		"BROKER_ENVIRONMENT", "BROKER_API_TOKEN", "BROKER_ACCOUNT_ID",
		"BROKER_BASE_URL", "BROKER_ALLOW_LIVE", "JOURNAL_PATH", "OPS_LISTEN", "LOG_LEVEL",
	} {
		suite.T().Setenv(key, "")
		os.Unsetenv(key)
	}
}

func (suite *ConfigTestSuite) writeConfig(content string) string {
	path := filepath.Join(suite.dir, "config.yaml")
	suite.Require().NoError(os.WriteFile(path, []byte(content), 0o600))

	return path
}

const minimalConfig = `
broker:
  environment: practice
  api_token: test-token
  account_id: "001-001-1234567-001"
risk:
  limits:
    max_position_size: "100000"
    max_leverage: "20"
    max_daily_loss: "1000"
    version: "0.3.0"
`

func (suite *ConfigTestSuite) TestLoadMinimal() {
	cfg, err := Load(suite.writeConfig(minimalConfig))
	suite.Require().NoError(err)

	suite.Equal("practice", cfg.Broker.Environment)
	suite.Equal("test-token", cfg.Broker.APIToken)
	suite.True(cfg.Risk.Limits.MaxPositionSize.Equal(decimal.NewFromInt(100000)))
}

func (suite *ConfigTestSuite) TestDefaultsApplied() {
	cfg, err := Load(suite.writeConfig(minimalConfig))
	suite.Require().NoError(err)

	suite.Equal(4, cfg.Engine.Workers)
	suite.Equal(64, cfg.Engine.QueueSize)
	suite.Equal(30, cfg.Broker.RateLimitPerSecond)
	suite.Equal(3, cfg.Broker.MaxRetries)
	suite.Equal(":8086", cfg.Ops.Listen)
	suite.Equal("info", cfg.Logging.Level)
}

func (suite *ConfigTestSuite) TestMissingFile() {
	_, err := Load(filepath.Join(suite.dir, "missing.yaml"))
	suite.Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidConfiguration))
}

func (suite *ConfigTestSuite) TestInvalidYAML() {
	_, err := Load(suite.writeConfig("broker: [not a map"))
	suite.Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidConfiguration))
}

func (suite *ConfigTestSuite) TestMissingToken() {
	content := `
broker:
  environment: practice
  account_id: "001-001-1234567-001"
`
	_, err := Load(suite.writeConfig(content))
	suite.Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidConfiguration))
}

func (suite *ConfigTestSuite) TestLiveRequiresOptIn() {
	content := `
broker:
  environment: live
  api_token: test-token
  account_id: "001-001-1234567-001"
`
	_, err := Load(suite.writeConfig(content))
	suite.Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidConfiguration))
}

func (suite *ConfigTestSuite) TestLiveWithOptIn() {
	content := `
broker:
  environment: live
  api_token: test-token
  account_id: "001-001-1234567-001"
  allow_live: true
`
	cfg, err := Load(suite.writeConfig(content))
	suite.Require().NoError(err)
	suite.Equal("https://api-fxtrade.oanda.com", cfg.BrokerBaseURL())
}

func (suite *ConfigTestSuite) TestEnvOverrides() {
	suite.T().Setenv("BROKER_API_TOKEN", "env-token")
	suite.T().Setenv("BROKER_BASE_URL", "http://127.0.0.1:9999")
	suite.T().Setenv("LOG_LEVEL", "debug")

	cfg, err := Load(suite.writeConfig(minimalConfig))
	suite.Require().NoError(err)

	suite.Equal("env-token", cfg.Broker.APIToken)
	suite.Equal("http://127.0.0.1:9999", cfg.BrokerBaseURL())
	suite.Equal("debug", cfg.Logging.Level)
}

func (suite *ConfigTestSuite) TestBaseURLDefaults() {
	cfg, err := Load(suite.writeConfig(minimalConfig))
	suite.Require().NoError(err)
	suite.Equal("https://api-fxpractice.oanda.com", cfg.BrokerBaseURL())
}

func (suite *ConfigTestSuite) TestInvalidLimits() {
	content := `
broker:
  environment: practice
  api_token: test-token
  account_id: "001-001-1234567-001"
risk:
  limits:
    max_position_size: "-5"
`
	_, err := Load(suite.writeConfig(content))
	suite.Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidConfiguration))
}

func (suite *ConfigTestSuite) TestDurationAccessors() {
	cfg, err := Load(suite.writeConfig(minimalConfig))
	suite.Require().NoError(err)

	suite.Equal(int64(5000), cfg.Broker.Timeout().Milliseconds())
	suite.Equal(int64(1000), cfg.Engine.PriceRefreshInterval().Milliseconds())
	suite.Equal(int64(2000), cfg.Risk.MonitorInterval().Milliseconds())
}
