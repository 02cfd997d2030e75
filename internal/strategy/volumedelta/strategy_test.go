package volumedelta

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skalibog/bftp/internal/buffer"
	"github.com/skalibog/bftp/internal/config"
	"github.com/skalibog/bftp/pkg/models"
)

func testConfig() config.VolumeDeltaConfig {
	return config.VolumeDeltaConfig{
		Lookback:              20,
		SignificanceThreshold: 1.5,
		EntryThreshold:        40,
		TakeProfitPct:         0.02,
		StopLossPct:           0.01,
	}
}

// bull и bear строят свечи с одинаковым объемом, различающиеся направлением
func bull(seq int) models.Candle {
	return models.Candle{
		Symbol:    "BTCUSDT",
		Interval:  "1m",
		OpenTime:  time.Unix(int64(seq*60), 0),
		CloseTime: time.Unix(int64(seq*60+59), 0),
		Open:      decimal.NewFromInt(100),
		High:      decimal.NewFromInt(102),
		Low:       decimal.NewFromInt(99),
		Close:     decimal.NewFromInt(101),
		Volume:    decimal.NewFromInt(10),
		IsClosed:  true,
	}
}

func bear(seq int) models.Candle {
	return models.Candle{
		Symbol:    "BTCUSDT",
		Interval:  "1m",
		OpenTime:  time.Unix(int64(seq*60), 0),
		CloseTime: time.Unix(int64(seq*60+59), 0),
		Open:      decimal.NewFromInt(101),
		High:      decimal.NewFromInt(102),
		Low:       decimal.NewFromInt(99),
		Close:     decimal.NewFromInt(100),
		Volume:    decimal.NewFromInt(10),
		IsClosed:  true,
	}
}

func analyze(t *testing.T, candles []models.Candle) *models.Signal {
	t.Helper()
	store := buffer.NewStore(100)
	for _, c := range candles {
		store.Put(c)
	}
	s := New(testConfig(), store)
	sig, err := s.Analyze(context.Background(), candles[len(candles)-1])
	require.NoError(t, err)
	return sig
}

func TestAnalyzeInsufficientHistory(t *testing.T) {
	candles := make([]models.Candle, 10)
	for i := range candles {
		candles[i] = bull(i)
	}
	assert.Nil(t, analyze(t, candles))
}

func TestAnalyzeStrongBuyPressure(t *testing.T) {
	candles := make([]models.Candle, 20)
	for i := range candles {
		candles[i] = bull(i)
	}

	sig := analyze(t, candles)
	require.NotNil(t, sig)
	assert.Equal(t, models.SignalLongEntry, sig.Type)
	assert.Equal(t, "BTCUSDT", sig.Symbol)
	// Цели в процентах от закрытия 101
	assert.True(t, sig.EntryPrice.Equal(decimal.NewFromInt(101)), "вход %s", sig.EntryPrice)
	assert.True(t, sig.TakeProfit.Equal(decimal.NewFromFloat(103.02)), "тейк %s", sig.TakeProfit)
	assert.True(t, sig.StopLoss.Equal(decimal.NewFromFloat(99.99)), "стоп %s", sig.StopLoss)
}

func TestAnalyzeStrongSellPressure(t *testing.T) {
	candles := make([]models.Candle, 20)
	for i := range candles {
		candles[i] = bear(i)
	}

	sig := analyze(t, candles)
	require.NotNil(t, sig)
	assert.Equal(t, models.SignalShortEntry, sig.Type)
	assert.True(t, sig.TakeProfit.Equal(decimal.NewFromInt(98)), "тейк %s", sig.TakeProfit)
	assert.True(t, sig.StopLoss.Equal(decimal.NewFromInt(101)), "стоп %s", sig.StopLoss)
}

func TestAnalyzeModerateBuyPressureClosesShort(t *testing.T) {
	// Восемь старых медвежьих и двенадцать свежих бычьих свечей дают
	// умеренную положительную дельту между половиной порога и порогом
	candles := make([]models.Candle, 0, 20)
	for i := 0; i < 8; i++ {
		candles = append(candles, bear(i))
	}
	for i := 8; i < 20; i++ {
		candles = append(candles, bull(i))
	}

	sig := analyze(t, candles)
	require.NotNil(t, sig)
	assert.Equal(t, models.SignalCloseShort, sig.Type)
	assert.True(t, sig.EntryPrice.IsZero())
}

func TestAnalyzeModerateSellPressureClosesLong(t *testing.T) {
	candles := make([]models.Candle, 0, 20)
	for i := 0; i < 8; i++ {
		candles = append(candles, bull(i))
	}
	for i := 8; i < 20; i++ {
		candles = append(candles, bear(i))
	}

	sig := analyze(t, candles)
	require.NotNil(t, sig)
	assert.Equal(t, models.SignalCloseLong, sig.Type)
}

func TestAnalyzeBalancedFlowNoSignal(t *testing.T) {
	candles := make([]models.Candle, 20)
	for i := range candles {
		if i%2 == 0 {
			candles[i] = bull(i)
		} else {
			candles[i] = bear(i)
		}
	}
	assert.Nil(t, analyze(t, candles))
}

func TestName(t *testing.T) {
	assert.Equal(t, "volumedelta", New(testConfig(), buffer.NewStore(100)).Name())
}
