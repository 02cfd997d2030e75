package volumedelta

import (
	"context"
	"math"

	"github.com/shopspring/decimal"

	"github.com/skalibog/bftp/internal/buffer"
	"github.com/skalibog/bftp/internal/config"
	"github.com/skalibog/bftp/pkg/models"
)

// Strategy вырабатывает сигналы по дельте объемов. Дельта оценивается
// по направлению свечей: объем бычьей свечи считается покупками,
// объем медвежьей продажами. Композит из накопленной дельты, объемных
// импульсов и соотношения объема с ценой лежит в диапазоне -100..100.
type Strategy struct {
	config config.VolumeDeltaConfig
	store  *buffer.Store
}

// New создает стратегию дельты объемов
func New(cfg config.VolumeDeltaConfig, store *buffer.Store) *Strategy {
	return &Strategy{
		config: cfg,
		store:  store,
	}
}

// Name возвращает имя стратегии
func (s *Strategy) Name() string {
	return "volumedelta"
}

// Analyze оценивает давление покупок и продаж по истории свечи.
// Сильная дельта дает вход по ее направлению, умеренная дельта
// закрывает позицию противоположного направления.
func (s *Strategy) Analyze(ctx context.Context, candle models.Candle) (*models.Signal, error) {
	candles := s.store.Snapshot(candle.Symbol, candle.Interval)
	if len(candles) < s.config.Lookback {
		return nil, nil
	}

	score := s.scoreCumulativeDelta(candles)*0.5 +
		s.scoreImpulses(candles)*0.3 +
		s.scoreVolumePrice(candles)*0.2
	if math.IsNaN(score) {
		return nil, nil
	}

	threshold := s.config.EntryThreshold
	switch {
	case score >= threshold:
		return s.entrySignal(candle, models.SignalLongEntry), nil
	case score <= -threshold:
		return s.entrySignal(candle, models.SignalShortEntry), nil
	case score >= threshold/2:
		return &models.Signal{Symbol: candle.Symbol, Type: models.SignalCloseShort}, nil
	case score <= -threshold/2:
		return &models.Signal{Symbol: candle.Symbol, Type: models.SignalCloseLong}, nil
	}
	return nil, nil
}

// entrySignal строит сигнал входа с процентными целями
func (s *Strategy) entrySignal(candle models.Candle, sigType models.SignalType) *models.Signal {
	entry := candle.Close
	tpOffset := entry.Mul(decimal.NewFromFloat(s.config.TakeProfitPct))
	slOffset := entry.Mul(decimal.NewFromFloat(s.config.StopLossPct))

	var takeProfit, stopLoss decimal.Decimal
	if sigType == models.SignalLongEntry {
		takeProfit = entry.Add(tpOffset)
		stopLoss = entry.Sub(slOffset)
	} else {
		takeProfit = entry.Sub(tpOffset)
		stopLoss = entry.Add(slOffset)
	}
	if !takeProfit.IsPositive() || !stopLoss.IsPositive() {
		return nil
	}

	return &models.Signal{
		Symbol:     candle.Symbol,
		Type:       sigType,
		EntryPrice: entry,
		TakeProfit: takeProfit,
		StopLoss:   stopLoss,
	}
}

// scoreCumulativeDelta оценивает накопленную дельту объемов за окно
// наблюдения, недавние свечи весят сильнее
func (s *Strategy) scoreCumulativeDelta(candles []models.Candle) float64 {
	lookback := s.config.Lookback
	if lookback > len(candles) {
		lookback = len(candles)
	}

	var cumulativeDelta, totalVolume float64
	for i := 0; i < lookback; i++ {
		// candles упорядочены от старых к новым, идем от самой свежей
		c := candles[len(candles)-1-i]

		delta := c.Volume.InexactFloat64()
		if c.Close.Cmp(c.Open) < 0 {
			delta = -delta
		}

		weight := 1.0 - float64(i)/float64(lookback)
		cumulativeDelta += delta * weight
		totalVolume += math.Abs(delta) * weight
	}

	if totalVolume == 0 {
		return 0
	}
	return cumulativeDelta / totalVolume * 100
}

// scoreImpulses ищет всплески объема относительно среднего
func (s *Strategy) scoreImpulses(candles []models.Candle) float64 {
	if len(candles) < 30 {
		return 0
	}

	var totalVolume float64
	for i := 0; i < 30; i++ {
		totalVolume += candles[len(candles)-1-i].Volume.InexactFloat64()
	}
	avgVolume := totalVolume / 30
	if avgVolume == 0 {
		return 0
	}

	var impulseSignal float64
	for i := 0; i < 10; i++ {
		c := candles[len(candles)-1-i]
		volumeRatio := c.Volume.InexactFloat64() / avgVolume
		if volumeRatio < s.config.SignificanceThreshold {
			continue
		}

		impulseStrength := (volumeRatio - 1.0) * 10
		if impulseStrength > s.config.SignificanceThreshold*10 {
			impulseStrength = s.config.SignificanceThreshold * 10
		}

		if c.Close.Cmp(c.Open) > 0 {
			impulseSignal += impulseStrength
		} else {
			impulseSignal -= impulseStrength
		}
	}

	return math.Max(math.Min(impulseSignal, 100), -100)
}

// scoreVolumePrice ищет расхождения между изменением объема и цены
func (s *Strategy) scoreVolumePrice(candles []models.Candle) float64 {
	lookback := s.config.Lookback
	if lookback > len(candles) {
		lookback = len(candles)
	}

	var signal float64
	for i := 1; i < lookback; i++ {
		current := candles[len(candles)-i]
		previous := candles[len(candles)-1-i]

		prevVolume := previous.Volume.InexactFloat64()
		prevClose := previous.Close.InexactFloat64()
		if prevVolume == 0 || prevClose == 0 {
			continue
		}

		volumeChange := (current.Volume.InexactFloat64() - prevVolume) / prevVolume
		priceChange := (current.Close.InexactFloat64() - prevClose) / prevClose

		if math.Abs(volumeChange) <= 0.1 {
			continue
		}
		switch {
		case priceChange > 0 && volumeChange > 0.1:
			// Рост цены на растущем объеме подтверждает движение
			signal += 10
		case priceChange < 0 && volumeChange > 0.1:
			// Падение цены на растущем объеме усиливает давление вниз
			signal -= 20
		case priceChange > 0 && volumeChange < -0.1:
			// Рост без объема слабый
			signal -= 5
		case priceChange < 0 && volumeChange < -0.1:
			// Падение на затухающем объеме близко к развороту
			signal += 10
		}
	}

	return math.Max(math.Min(signal, 100), -100)
}
