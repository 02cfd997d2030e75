package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
binance:
  api_key: key
  api_secret: secret
  testnet: true
trading:
  symbols:
    - BTCUSDT
    - ETHUSDT
  interval: 5m
  leverage: 10
  risk_per_trade: 0.02
  max_position_size: 250
buffer:
  capacity: 300
strategy:
  mode: technical
storage:
  enabled: true
  url: http://localhost:8086
  token: token
  organization: org
  bucket: bucket
logging:
  level: debug
  console: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "key", cfg.Binance.APIKey)
	assert.True(t, cfg.Binance.Testnet)
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, cfg.Trading.Symbols)
	assert.Equal(t, "5m", cfg.Trading.Interval)
	assert.Equal(t, 10, cfg.Trading.Leverage)
	assert.Equal(t, 0.02, cfg.Trading.RiskPerTrade)
	assert.Equal(t, 300, cfg.Buffer.Capacity)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
trading:
  symbols:
    - BTCUSDT
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "1m", cfg.Trading.Interval)
	assert.Equal(t, 1, cfg.Trading.Leverage)
	assert.Equal(t, 0.01, cfg.Trading.RiskPerTrade)
	assert.Equal(t, 100, cfg.Trading.HistoryLimit)
	assert.Equal(t, 500, cfg.Buffer.Capacity)
	assert.Equal(t, 256, cfg.Bus.QueueCapacity)
	assert.Equal(t, "technical", cfg.Strategy.Mode)
	assert.Equal(t, 14, cfg.Strategy.Technical.RSIPeriod)
	assert.Equal(t, 26, cfg.Strategy.Technical.MACDSlow)
	assert.Equal(t, 50.0, cfg.Strategy.Technical.ThresholdBuy)
	assert.Equal(t, -50.0, cfg.Strategy.Technical.ThresholdSell)
	assert.Equal(t, 20, cfg.Strategy.VolumeDelta.Lookback)
	assert.Equal(t, 40.0, cfg.Strategy.VolumeDelta.EntryThreshold)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeConfig(t, "trading: [broken")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() Config {
		c := Config{}
		c.Trading.Symbols = []string{"BTCUSDT"}
		c.applyDefaults()
		return c
	}

	t.Run("valid", func(t *testing.T) {
		c := base()
		assert.NoError(t, c.Validate())
	})

	t.Run("no symbols", func(t *testing.T) {
		c := base()
		c.Trading.Symbols = nil
		assert.Error(t, c.Validate())
	})

	t.Run("empty symbol", func(t *testing.T) {
		c := base()
		c.Trading.Symbols = []string{"BTCUSDT", ""}
		assert.Error(t, c.Validate())
	})

	t.Run("bad leverage", func(t *testing.T) {
		c := base()
		c.Trading.Leverage = 0
		assert.Error(t, c.Validate())
	})

	t.Run("risk above one", func(t *testing.T) {
		c := base()
		c.Trading.RiskPerTrade = 1.5
		assert.Error(t, c.Validate())
	})

	t.Run("unknown strategy mode", func(t *testing.T) {
		c := base()
		c.Strategy.Mode = "astrology"
		assert.Error(t, c.Validate())
	})

	t.Run("storage enabled without url", func(t *testing.T) {
		c := base()
		c.Storage.Enabled = true
		c.Storage.URL = ""
		assert.Error(t, c.Validate())
	})
}
