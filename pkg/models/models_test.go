package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validCandle() Candle {
	return Candle{
		Symbol:    "BTCUSDT",
		Interval:  "1m",
		OpenTime:  time.Unix(1700000000, 0),
		CloseTime: time.Unix(1700000059, 0),
		Open:      decimal.NewFromInt(100),
		High:      decimal.NewFromInt(102),
		Low:       decimal.NewFromInt(99),
		Close:     decimal.NewFromInt(101),
		Volume:    decimal.NewFromInt(10),
		IsClosed:  true,
	}
}

func TestCandleValidate(t *testing.T) {
	require.NoError(t, validCandle().Validate())

	tests := []struct {
		name   string
		mutate func(*Candle)
	}{
		{"пустой символ", func(c *Candle) { c.Symbol = "" }},
		{"пустой интервал", func(c *Candle) { c.Interval = "" }},
		{"закрытие не позже открытия", func(c *Candle) { c.CloseTime = c.OpenTime }},
		{"high ниже тела", func(c *Candle) { c.High = decimal.NewFromInt(100) }},
		{"low выше тела", func(c *Candle) { c.Low = decimal.NewFromInt(101) }},
		{"отрицательный объем", func(c *Candle) { c.Volume = decimal.NewFromInt(-1) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			candle := validCandle()
			tt.mutate(&candle)
			assert.Error(t, candle.Validate())
		})
	}
}

// Свеча с равными open и close валидна: high и low сравниваются с телом
func TestCandleValidateDoji(t *testing.T) {
	candle := validCandle()
	candle.Close = candle.Open
	require.NoError(t, candle.Validate())
}

func TestSignalTypeIsEntry(t *testing.T) {
	assert.True(t, SignalLongEntry.IsEntry())
	assert.True(t, SignalShortEntry.IsEntry())
	assert.False(t, SignalCloseLong.IsEntry())
	assert.False(t, SignalCloseShort.IsEntry())
}
