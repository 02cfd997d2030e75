package technical

import (
	"context"
	"math"

	"github.com/markcheno/go-talib"
	"github.com/shopspring/decimal"

	"github.com/skalibog/bftp/internal/buffer"
	"github.com/skalibog/bftp/internal/config"
	"github.com/skalibog/bftp/pkg/models"
)

// Strategy вырабатывает сигналы по композиту технических индикаторов.
// Оценки RSI, MACD и полос Боллинджера нормализуются к диапазону
// -100..100 и складываются с весами из конфигурации, цели входа
// выводятся из ATR.
type Strategy struct {
	config config.TechnicalConfig
	store  *buffer.Store
}

// New создает стратегию технического анализа
func New(cfg config.TechnicalConfig, store *buffer.Store) *Strategy {
	return &Strategy{
		config: cfg,
		store:  store,
	}
}

// Name возвращает имя стратегии
func (s *Strategy) Name() string {
	return "technical"
}

// Analyze выполняет технический анализ по истории свечи из буфера.
// Оценка за порогом дает вход по ее направлению, оценка в половинной
// зоне порога закрывает позицию противоположного направления.
// Недостаточная история не считается ошибкой, сигнал не вырабатывается.
func (s *Strategy) Analyze(ctx context.Context, candle models.Candle) (*models.Signal, error) {
	candles := s.store.Snapshot(candle.Symbol, candle.Interval)
	if len(candles) < s.minHistory() {
		return nil, nil
	}

	// Индикаторы считаются по хронологическому ряду от старых свечей к новым
	closes := make([]float64, len(candles))
	highs := make([]float64, len(candles))
	lows := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close.InexactFloat64()
		highs[i] = c.High.InexactFloat64()
		lows[i] = c.Low.InexactFloat64()
	}

	// Рынок без волатильности не торгуется
	atrValues := talib.Atr(highs, lows, closes, s.config.ATRPeriod)
	atr := atrValues[len(atrValues)-1]
	if math.IsNaN(atr) || atr <= 0 {
		return nil, nil
	}

	score := s.scoreRSI(closes)*s.config.RSIWeight +
		s.scoreMACD(closes)*s.config.MACDWeight +
		s.scoreBollinger(closes)*s.config.BBWeight
	if math.IsNaN(score) {
		return nil, nil
	}

	switch {
	case score >= s.config.ThresholdBuy:
		return s.entrySignal(candle, models.SignalLongEntry, atr), nil
	case score <= s.config.ThresholdSell:
		return s.entrySignal(candle, models.SignalShortEntry, atr), nil
	case score >= s.config.ThresholdBuy/2:
		return &models.Signal{Symbol: candle.Symbol, Type: models.SignalCloseShort}, nil
	case score <= s.config.ThresholdSell/2:
		return &models.Signal{Symbol: candle.Symbol, Type: models.SignalCloseLong}, nil
	}
	return nil, nil
}

// minHistory минимальное число свечей для расчета всех индикаторов
func (s *Strategy) minHistory() int {
	min := s.config.MACDSlow + s.config.MACDSignal
	for _, p := range []int{s.config.RSIPeriod + 1, s.config.BBPeriod + 1, s.config.ATRPeriod + 1} {
		if p > min {
			min = p
		}
	}
	return min
}

// entrySignal строит сигнал входа с целями, выведенными из ATR
func (s *Strategy) entrySignal(candle models.Candle, sigType models.SignalType, atr float64) *models.Signal {
	entry := candle.Close
	tpOffset := decimal.NewFromFloat(atr * s.config.ATRTakeProfit)
	slOffset := decimal.NewFromFloat(atr * s.config.ATRStopLoss)

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

// scoreRSI нормализует RSI к диапазону -100..100
func (s *Strategy) scoreRSI(closes []float64) float64 {
	rsi := talib.Rsi(closes, s.config.RSIPeriod)
	lastRSI := rsi[len(rsi)-1]

	// RSI ниже 30 означает перепроданность, выше 70 перекупленность
	switch {
	case lastRSI < 30:
		return 100 * (30 - lastRSI) / 30
	case lastRSI > 70:
		return -100 * (lastRSI - 70) / 30
	default:
		return (50 - lastRSI) * 2
	}
}

// scoreMACD нормализует гистограмму MACD к диапазону -100..100
func (s *Strategy) scoreMACD(closes []float64) float64 {
	macd, signal, hist := talib.Macd(
		closes,
		s.config.MACDFast,
		s.config.MACDSlow,
		s.config.MACDSignal,
	)

	lastMACD := macd[len(macd)-1]
	lastSignal := signal[len(signal)-1]
	lastHist := hist[len(hist)-1]

	// Сила сигнала определяется гистограммой относительно ее максимума
	maxHist := 0.0
	for _, h := range hist {
		if !math.IsNaN(h) && math.Abs(h) > maxHist {
			maxHist = math.Abs(h)
		}
	}
	if maxHist == 0 {
		return 0
	}

	normHist := math.Abs(lastHist) / maxHist * 100
	if lastMACD > lastSignal {
		return normHist
	}
	return -normHist
}

// scoreBollinger нормализует положение цены в полосах Боллинджера
func (s *Strategy) scoreBollinger(closes []float64) float64 {
	upper, middle, lower := talib.BBands(
		closes,
		s.config.BBPeriod,
		2.0,
		2.0,
		0,
	)

	lastUpper := upper[len(upper)-1]
	lastMiddle := middle[len(middle)-1]
	lastLower := lower[len(lower)-1]
	lastClose := closes[len(closes)-1]

	if lastUpper == lastLower || lastMiddle == 0 {
		return 0
	}

	// Ширина полосы как доля средней линии
	bandwidth := (lastUpper - lastLower) / lastMiddle
	// Позиция цены в полосе: 0 нижняя граница, 1 верхняя
	percentB := (lastClose - lastLower) / (lastUpper - lastLower)

	switch {
	case percentB > 1:
		return -100
	case percentB < 0:
		return 100
	case percentB > 0.8:
		return -80 * bandwidth
	case percentB < 0.2:
		return 80 * bandwidth
	default:
		return (0.5 - percentB) * 100 * bandwidth
	}
}
