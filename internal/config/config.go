package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"

	"github.com/skalibog/bftp/pkg/logger"
)

// Config представляет полную конфигурацию приложения
type Config struct {
	Binance  BinanceConfig  `yaml:"binance"`
	Trading  TradingConfig  `yaml:"trading"`
	Buffer   BufferConfig   `yaml:"buffer"`
	Bus      BusConfig      `yaml:"bus"`
	Strategy StrategyConfig `yaml:"strategy"`
	Storage  StorageConfig  `yaml:"storage"`
	Logging  logger.Config  `yaml:"logging"`
}

// BinanceConfig содержит настройки подключения к Binance
type BinanceConfig struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	Testnet   bool   `yaml:"testnet"`
}

// TradingConfig содержит настройки торговли
type TradingConfig struct {
	Symbols         []string `yaml:"symbols"`
	Interval        string   `yaml:"interval"`
	Leverage        int      `yaml:"leverage"`
	RiskPerTrade    float64  `yaml:"risk_per_trade"`
	MaxPositionSize float64  `yaml:"max_position_size"`
	HistoryLimit    int      `yaml:"history_limit"`
}

// BufferConfig настройки буфера свечей
type BufferConfig struct {
	Capacity int `yaml:"capacity"`
}

// BusConfig настройки шины событий
type BusConfig struct {
	QueueCapacity int `yaml:"queue_capacity"`
}

// StrategyConfig настройки торговой стратегии
type StrategyConfig struct {
	Mode        string            `yaml:"mode"`
	Technical   TechnicalConfig   `yaml:"technical"`
	VolumeDelta VolumeDeltaConfig `yaml:"volume_delta"`
}

// TechnicalConfig настройки стратегии технического анализа
type TechnicalConfig struct {
	RSIPeriod     int     `yaml:"rsi_period"`
	BBPeriod      int     `yaml:"bb_period"`
	MACDFast      int     `yaml:"macd_fast"`
	MACDSlow      int     `yaml:"macd_slow"`
	MACDSignal    int     `yaml:"macd_signal"`
	ATRPeriod     int     `yaml:"atr_period"`
	ATRTakeProfit float64 `yaml:"atr_take_profit"`
	ATRStopLoss   float64 `yaml:"atr_stop_loss"`
	RSIWeight     float64 `yaml:"rsi_weight"`
	MACDWeight    float64 `yaml:"macd_weight"`
	BBWeight      float64 `yaml:"bb_weight"`
	ThresholdBuy  float64 `yaml:"threshold_buy"`
	ThresholdSell float64 `yaml:"threshold_sell"`
}

// VolumeDeltaConfig настройки стратегии дельты объемов
type VolumeDeltaConfig struct {
	Lookback              int     `yaml:"lookback"`
	SignificanceThreshold float64 `yaml:"significance_threshold"`
	EntryThreshold        float64 `yaml:"entry_threshold"`
	TakeProfitPct         float64 `yaml:"take_profit_pct"`
	StopLossPct           float64 `yaml:"stop_loss_pct"`
}

// StorageConfig настройки хранения данных
type StorageConfig struct {
	Enabled      bool   `yaml:"enabled"`
	URL          string `yaml:"url"`
	Token        string `yaml:"token"`
	Organization string `yaml:"organization"`
	Bucket       string `yaml:"bucket"`
}

// Load загружает конфигурацию из файла и применяет значения по умолчанию
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения файла конфигурации %s: %w", path, err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("ошибка разбора файла конфигурации %s: %w", path, err)
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// applyDefaults заполняет незаданные параметры значениями по умолчанию
func (c *Config) applyDefaults() {
	if c.Trading.Interval == "" {
		c.Trading.Interval = "1m"
	}
	if c.Trading.Leverage == 0 {
		c.Trading.Leverage = 1
	}
	if c.Trading.RiskPerTrade == 0 {
		c.Trading.RiskPerTrade = 0.01
	}
	if c.Trading.MaxPositionSize == 0 {
		c.Trading.MaxPositionSize = 1000
	}
	if c.Trading.HistoryLimit == 0 {
		c.Trading.HistoryLimit = 100
	}
	if c.Buffer.Capacity == 0 {
		c.Buffer.Capacity = 500
	}
	if c.Bus.QueueCapacity == 0 {
		c.Bus.QueueCapacity = 256
	}
	if c.Strategy.Mode == "" {
		c.Strategy.Mode = "technical"
	}

	t := &c.Strategy.Technical
	if t.RSIPeriod == 0 {
		t.RSIPeriod = 14
	}
	if t.BBPeriod == 0 {
		t.BBPeriod = 20
	}
	if t.MACDFast == 0 {
		t.MACDFast = 12
	}
	if t.MACDSlow == 0 {
		t.MACDSlow = 26
	}
	if t.MACDSignal == 0 {
		t.MACDSignal = 9
	}
	if t.ATRPeriod == 0 {
		t.ATRPeriod = 14
	}
	if t.ATRTakeProfit == 0 {
		t.ATRTakeProfit = 3.0
	}
	if t.ATRStopLoss == 0 {
		t.ATRStopLoss = 1.5
	}
	if t.RSIWeight == 0 && t.MACDWeight == 0 && t.BBWeight == 0 {
		t.RSIWeight = 0.4
		t.MACDWeight = 0.4
		t.BBWeight = 0.2
	}
	// Композитная оценка стратегий лежит в диапазоне -100..100
	if t.ThresholdBuy == 0 {
		t.ThresholdBuy = 50
	}
	if t.ThresholdSell == 0 {
		t.ThresholdSell = -50
	}

	v := &c.Strategy.VolumeDelta
	if v.Lookback == 0 {
		v.Lookback = 20
	}
	if v.SignificanceThreshold == 0 {
		v.SignificanceThreshold = 1.5
	}
	if v.EntryThreshold == 0 {
		v.EntryThreshold = 40
	}
	if v.TakeProfitPct == 0 {
		v.TakeProfitPct = 0.02
	}
	if v.StopLossPct == 0 {
		v.StopLossPct = 0.01
	}
}

// Validate проверяет корректность конфигурации
func (c *Config) Validate() error {
	if len(c.Trading.Symbols) == 0 {
		return fmt.Errorf("не задан список торговых символов")
	}
	for _, s := range c.Trading.Symbols {
		if s == "" {
			return fmt.Errorf("пустой символ в списке торговых символов")
		}
	}
	if c.Trading.Leverage < 1 {
		return fmt.Errorf("некорректное плечо %d: должно быть не меньше 1", c.Trading.Leverage)
	}
	if c.Trading.RiskPerTrade <= 0 || c.Trading.RiskPerTrade > 1 {
		return fmt.Errorf("некорректная доля риска на сделку %v: должна быть в диапазоне (0, 1]", c.Trading.RiskPerTrade)
	}
	if c.Trading.MaxPositionSize <= 0 {
		return fmt.Errorf("некорректный максимальный размер позиции %v", c.Trading.MaxPositionSize)
	}
	switch c.Strategy.Mode {
	case "technical", "volumedelta":
	default:
		return fmt.Errorf("неизвестный режим стратегии %q", c.Strategy.Mode)
	}
	if c.Storage.Enabled && c.Storage.URL == "" {
		return fmt.Errorf("не задан адрес хранилища при включенном хранении")
	}
	return nil
}
