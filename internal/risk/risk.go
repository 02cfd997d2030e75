package risk

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/skalibog/bftp/pkg/models"
)

// Validate проверяет сигнал против текущей позиции по символу. Функция
// чистая: ничего не вызывает и не меняет, nil означает допуск сигнала
// к исполнению, ошибка содержит причину отказа.
func Validate(sig models.Signal, pos *models.Position) error {
	switch sig.Type {
	case models.SignalLongEntry:
		if pos != nil {
			return fmt.Errorf("вход в лонг по %s отклонен: уже открыта позиция %s", sig.Symbol, pos.Side)
		}
		if !sig.EntryPrice.IsPositive() {
			return fmt.Errorf("вход в лонг по %s отклонен: некорректная цена входа %s", sig.Symbol, sig.EntryPrice)
		}
		if sig.TakeProfit.Cmp(sig.EntryPrice) <= 0 {
			return fmt.Errorf("вход в лонг по %s отклонен: тейк-профит %s не выше входа %s", sig.Symbol, sig.TakeProfit, sig.EntryPrice)
		}
		if sig.StopLoss.Cmp(sig.EntryPrice) >= 0 {
			return fmt.Errorf("вход в лонг по %s отклонен: стоп-лосс %s не ниже входа %s", sig.Symbol, sig.StopLoss, sig.EntryPrice)
		}
	case models.SignalShortEntry:
		if pos != nil {
			return fmt.Errorf("вход в шорт по %s отклонен: уже открыта позиция %s", sig.Symbol, pos.Side)
		}
		if !sig.EntryPrice.IsPositive() {
			return fmt.Errorf("вход в шорт по %s отклонен: некорректная цена входа %s", sig.Symbol, sig.EntryPrice)
		}
		if sig.TakeProfit.Cmp(sig.EntryPrice) >= 0 {
			return fmt.Errorf("вход в шорт по %s отклонен: тейк-профит %s не ниже входа %s", sig.Symbol, sig.TakeProfit, sig.EntryPrice)
		}
		if sig.StopLoss.Cmp(sig.EntryPrice) <= 0 {
			return fmt.Errorf("вход в шорт по %s отклонен: стоп-лосс %s не выше входа %s", sig.Symbol, sig.StopLoss, sig.EntryPrice)
		}
	case models.SignalCloseLong:
		if pos == nil {
			return fmt.Errorf("закрытие лонга по %s отклонено: позиция не открыта", sig.Symbol)
		}
		if pos.Side != models.PositionLong {
			return fmt.Errorf("закрытие лонга по %s отклонено: открыта позиция %s", sig.Symbol, pos.Side)
		}
	case models.SignalCloseShort:
		if pos == nil {
			return fmt.Errorf("закрытие шорта по %s отклонено: позиция не открыта", sig.Symbol)
		}
		if pos.Side != models.PositionShort {
			return fmt.Errorf("закрытие шорта по %s отклонено: открыта позиция %s", sig.Symbol, pos.Side)
		}
	default:
		return fmt.Errorf("неизвестный тип сигнала %q по %s", sig.Type, sig.Symbol)
	}
	return nil
}

// PositionSize вычисляет размер позиции исходя из баланса и доли риска
// на сделку. Сумма под риском равна balance * riskPerTrade, размер позиции
// равен сумме риска, деленной на расстояние до стопа, с учетом плеча.
// Результат ограничивается maxPositionSize. Невозможность рассчитать размер
// всегда возвращается ошибкой, а не нулевым значением.
func PositionSize(balance, entry, stop decimal.Decimal, leverage int, riskPerTrade, maxPositionSize decimal.Decimal) (decimal.Decimal, error) {
	if !balance.IsPositive() {
		return decimal.Zero, fmt.Errorf("расчет размера позиции: неположительный баланс %s", balance)
	}
	if !entry.IsPositive() {
		return decimal.Zero, fmt.Errorf("расчет размера позиции: неположительная цена входа %s", entry)
	}
	if !stop.IsPositive() {
		return decimal.Zero, fmt.Errorf("расчет размера позиции: неположительный стоп-лосс %s", stop)
	}
	if !riskPerTrade.IsPositive() {
		return decimal.Zero, fmt.Errorf("расчет размера позиции: неположительная доля риска %s", riskPerTrade)
	}
	if leverage < 1 {
		return decimal.Zero, fmt.Errorf("расчет размера позиции: некорректное плечо %d", leverage)
	}

	stopDistance := entry.Sub(stop).Abs()
	if stopDistance.IsZero() {
		return decimal.Zero, fmt.Errorf("расчет размера позиции: цена входа %s совпадает со стоп-лоссом", entry)
	}

	riskAmount := balance.Mul(riskPerTrade)
	size := riskAmount.Div(stopDistance).Mul(decimal.NewFromInt(int64(leverage)))

	if maxPositionSize.IsPositive() && size.GreaterThan(maxPositionSize) {
		size = maxPositionSize
	}
	return size, nil
}
