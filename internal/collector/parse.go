package collector

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/skalibog/bftp/pkg/models"
)

// errSkipMessage сообщение потока не относится к свечам
var errSkipMessage = errors.New("сообщение не относится к свечам")

// klineEvent конверт события kline потока Binance
type klineEvent struct {
	EventType string       `json:"e"`
	EventTime int64        `json:"E"`
	Symbol    string       `json:"s"`
	Kline     klinePayload `json:"k"`
}

// klinePayload полезная нагрузка события kline. Цены и объем приходят
// строками, признак x означает закрытие свечи.
type klinePayload struct {
	OpenTime  int64  `json:"t"`
	CloseTime int64  `json:"T"`
	Symbol    string `json:"s"`
	Interval  string `json:"i"`
	Open      string `json:"o"`
	Close     string `json:"c"`
	High      string `json:"h"`
	Low       string `json:"l"`
	Volume    string `json:"v"`
	IsClosed  bool   `json:"x"`
}

// parseKlineEvent разбирает сообщение потока в свечу
func parseKlineEvent(raw []byte) (models.Candle, error) {
	var event klineEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		return models.Candle{}, fmt.Errorf("ошибка разбора сообщения потока: %w", err)
	}
	if event.EventType != "kline" {
		return models.Candle{}, fmt.Errorf("%w: тип события %q", errSkipMessage, event.EventType)
	}

	k := event.Kline
	if k.Symbol == "" || k.Interval == "" {
		return models.Candle{}, fmt.Errorf("в событии kline нет символа или интервала")
	}

	open, err := parsePrice(k.Open, "open")
	if err != nil {
		return models.Candle{}, err
	}
	high, err := parsePrice(k.High, "high")
	if err != nil {
		return models.Candle{}, err
	}
	low, err := parsePrice(k.Low, "low")
	if err != nil {
		return models.Candle{}, err
	}
	closePrice, err := parsePrice(k.Close, "close")
	if err != nil {
		return models.Candle{}, err
	}
	volume, err := parsePrice(k.Volume, "volume")
	if err != nil {
		return models.Candle{}, err
	}

	return models.Candle{
		Symbol:    k.Symbol,
		Interval:  k.Interval,
		OpenTime:  time.UnixMilli(k.OpenTime),
		CloseTime: time.UnixMilli(k.CloseTime),
		Open:      open,
		High:      high,
		Low:       low,
		Close:     closePrice,
		Volume:    volume,
		IsClosed:  k.IsClosed,
	}, nil
}

// parseHistoricalKlines разбирает ответ исторического эндпоинта: массив
// записей фиксированных позиций, используются первые семь. Возвращает
// свечи, число пропущенных некорректных записей и ошибку формата пакета.
func parseHistoricalKlines(raw []byte, symbol, interval string) ([]models.Candle, int, error) {
	var rows [][]interface{}
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, 0, fmt.Errorf("ошибка разбора исторических свечей: %w", err)
	}

	candles := make([]models.Candle, 0, len(rows))
	skipped := 0
	for _, row := range rows {
		candle, err := parseHistoricalRow(row, symbol, interval)
		if err != nil {
			skipped++
			continue
		}
		candles = append(candles, candle)
	}
	return candles, skipped, nil
}

// parseHistoricalRow разбирает одну запись истории:
// [openTime, open, high, low, close, volume, closeTime, ...]
func parseHistoricalRow(row []interface{}, symbol, interval string) (models.Candle, error) {
	if len(row) < 7 {
		return models.Candle{}, fmt.Errorf("запись истории содержит %d полей вместо 7", len(row))
	}

	openTime, ok := row[0].(float64)
	if !ok {
		return models.Candle{}, fmt.Errorf("время открытия не число: %v", row[0])
	}
	closeTime, ok := row[6].(float64)
	if !ok {
		return models.Candle{}, fmt.Errorf("время закрытия не число: %v", row[6])
	}

	open, err := parseRawPrice(row[1], "open")
	if err != nil {
		return models.Candle{}, err
	}
	high, err := parseRawPrice(row[2], "high")
	if err != nil {
		return models.Candle{}, err
	}
	low, err := parseRawPrice(row[3], "low")
	if err != nil {
		return models.Candle{}, err
	}
	closePrice, err := parseRawPrice(row[4], "close")
	if err != nil {
		return models.Candle{}, err
	}
	volume, err := parseRawPrice(row[5], "volume")
	if err != nil {
		return models.Candle{}, err
	}

	// Исторические записи описывают только завершенные свечи
	return models.Candle{
		Symbol:    symbol,
		Interval:  interval,
		OpenTime:  time.UnixMilli(int64(openTime)),
		CloseTime: time.UnixMilli(int64(closeTime)),
		Open:      open,
		High:      high,
		Low:       low,
		Close:     closePrice,
		Volume:    volume,
		IsClosed:  true,
	}, nil
}

// parsePrice разбирает строковое числовое поле
func parsePrice(value, name string) (decimal.Decimal, error) {
	if value == "" {
		return decimal.Zero, fmt.Errorf("пустое поле %s", name)
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("поле %s не число %q: %w", name, value, err)
	}
	return d, nil
}

// parseRawPrice разбирает строковое числовое поле записи истории
func parseRawPrice(value interface{}, name string) (decimal.Decimal, error) {
	s, ok := value.(string)
	if !ok {
		return decimal.Zero, fmt.Errorf("поле %s не строка: %v", name, value)
	}
	return parsePrice(s, name)
}
