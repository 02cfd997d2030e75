package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// SignalType тип торгового сигнала
type SignalType string

const (
	SignalLongEntry  SignalType = "LONG_ENTRY"
	SignalShortEntry SignalType = "SHORT_ENTRY"
	SignalCloseLong  SignalType = "CLOSE_LONG"
	SignalCloseShort SignalType = "CLOSE_SHORT"
)

// IsEntry сообщает, открывает ли сигнал новую позицию
func (t SignalType) IsEntry() bool {
	return t == SignalLongEntry || t == SignalShortEntry
}

// PositionSide направление открытой позиции
type PositionSide string

const (
	PositionLong  PositionSide = "LONG"
	PositionShort PositionSide = "SHORT"
)

// OrderSide сторона ордера
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// Candle представляет свечу
type Candle struct {
	Symbol    string
	Interval  string
	OpenTime  time.Time
	CloseTime time.Time
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Volume    decimal.Decimal
	IsClosed  bool
}

// Validate проверяет внутренние инварианты свечи
func (c Candle) Validate() error {
	if c.Symbol == "" {
		return fmt.Errorf("пустой символ")
	}
	if c.Interval == "" {
		return fmt.Errorf("пустой интервал")
	}
	if !c.CloseTime.After(c.OpenTime) {
		return fmt.Errorf("время закрытия %s не позже времени открытия %s", c.CloseTime, c.OpenTime)
	}
	maxBody := decimal.Max(c.Open, c.Close)
	minBody := decimal.Min(c.Open, c.Close)
	if c.High.LessThan(maxBody) {
		return fmt.Errorf("high %s ниже тела свечи %s", c.High, maxBody)
	}
	if c.Low.GreaterThan(minBody) {
		return fmt.Errorf("low %s выше тела свечи %s", c.Low, minBody)
	}
	if c.Volume.IsNegative() {
		return fmt.Errorf("отрицательный объем %s", c.Volume)
	}
	return nil
}

// Signal представляет торговый сигнал стратегии
type Signal struct {
	Symbol     string
	Type       SignalType
	EntryPrice decimal.Decimal
	TakeProfit decimal.Decimal
	StopLoss   decimal.Decimal
}

// Position представляет открытую позицию на бирже
type Position struct {
	Symbol     string
	Side       PositionSide
	Quantity   decimal.Decimal
	EntryPrice decimal.Decimal
}

// Статусы заявок биржи. Принятая заявка еще не означает исполненную.
const (
	OrderStatusNew    = "NEW"
	OrderStatusFilled = "FILLED"
)

// Order представляет выставленный ордер
type Order struct {
	OrderID       int64
	ClientOrderID string
	Symbol        string
	Side          OrderSide
	Quantity      decimal.Decimal
	Price         decimal.Decimal
	Status        string
	ReduceOnly    bool
}
