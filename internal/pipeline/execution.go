package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/skalibog/bftp/internal/bus"
	"github.com/skalibog/bftp/internal/config"
	"github.com/skalibog/bftp/internal/exchange"
	"github.com/skalibog/bftp/internal/risk"
	"github.com/skalibog/bftp/pkg/models"
)

// Executor операции биржи, нужные стадии исполнения
type Executor interface {
	GetPosition(ctx context.Context, symbol string) (*models.Position, error)
	GetBalance(ctx context.Context) (decimal.Decimal, error)
	Execute(ctx context.Context, sig models.Signal, quantity decimal.Decimal) (*models.Order, error)
}

// ExecutionStage стадия исполнения сигналов. Подписана на очередь signal,
// проводит сигнал через проверку позиции, валидацию риска, проверку
// баланса и расчет размера, затем размещает заявки. Последовательность
// по одному символу сериализуется, запрос позиции и размещение заявки
// не могут перемежаться для одного символа.
type ExecutionStage struct {
	executor        Executor
	bus             *bus.Bus
	logger          *zap.Logger
	leverage        int
	riskPerTrade    decimal.Decimal
	maxPositionSize decimal.Decimal

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewExecutionStage создает стадию исполнения
func NewExecutionStage(executor Executor, eventBus *bus.Bus, cfg config.TradingConfig, logger *zap.Logger) *ExecutionStage {
	return &ExecutionStage{
		executor:        executor,
		bus:             eventBus,
		logger:          logger.Named("execution"),
		leverage:        cfg.Leverage,
		riskPerTrade:    decimal.NewFromFloat(cfg.RiskPerTrade),
		maxPositionSize: decimal.NewFromFloat(cfg.MaxPositionSize),
		locks:           make(map[string]*sync.Mutex),
	}
}

// symbolLock возвращает мьютекс символа, создавая его при первом обращении
func (s *ExecutionStage) symbolLock(symbol string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.locks[symbol]
	if !ok {
		l = &sync.Mutex{}
		s.locks[symbol] = l
	}
	return l
}

// Handle обрабатывает событие очереди signal
func (s *ExecutionStage) Handle(e bus.Event) error {
	sig, ok := e.Payload.(models.Signal)
	if !ok {
		return fmt.Errorf("в очереди signal не сигнал: %T", e.Payload)
	}

	lock := s.symbolLock(sig.Symbol)
	lock.Lock()
	defer lock.Unlock()

	// Размещение заявки не прерывается отменой: начатое исполнение
	// доводится до ответа биржи даже при остановке конвейера
	ctx := context.Background()

	position, err := s.executor.GetPosition(ctx, sig.Symbol)
	if err != nil {
		return fmt.Errorf("сигнал %s по %s отброшен, позиция неизвестна: %w", sig.Type, sig.Symbol, err)
	}

	if err := risk.Validate(sig, position); err != nil {
		s.logger.Warn("Сигнал отклонен валидацией риска",
			zap.String("symbol", sig.Symbol),
			zap.String("type", string(sig.Type)),
			zap.String("trace_id", e.TraceID),
			zap.Error(err))
		return nil
	}

	var quantity decimal.Decimal
	if sig.Type.IsEntry() {
		balance, err := s.executor.GetBalance(ctx)
		if err != nil {
			return fmt.Errorf("сигнал %s по %s отброшен, баланс неизвестен: %w", sig.Type, sig.Symbol, err)
		}
		if !balance.IsPositive() {
			s.logger.Warn("Сигнал отброшен: баланс не положителен",
				zap.String("symbol", sig.Symbol),
				zap.String("balance", balance.String()),
				zap.String("trace_id", e.TraceID))
			return nil
		}

		quantity, err = risk.PositionSize(balance, sig.EntryPrice, sig.StopLoss,
			s.leverage, s.riskPerTrade, s.maxPositionSize)
		if err != nil {
			return fmt.Errorf("сигнал %s по %s отброшен: %w", sig.Type, sig.Symbol, err)
		}
	} else {
		quantity = position.Quantity
	}

	order, err := s.executor.Execute(ctx, sig, quantity)
	if err != nil {
		if exchange.IsRejection(err) {
			s.logger.Warn("Биржа отклонила исполнение сигнала",
				zap.String("symbol", sig.Symbol),
				zap.String("type", string(sig.Type)),
				zap.String("quantity", quantity.String()),
				zap.String("trace_id", e.TraceID),
				zap.Error(err))
		}
		return fmt.Errorf("ошибка исполнения сигнала %s по %s: %w", sig.Type, sig.Symbol, err)
	}

	s.logger.Info("Заявка размещена",
		zap.Int64("order_id", order.OrderID),
		zap.String("symbol", order.Symbol),
		zap.String("side", string(order.Side)),
		zap.String("quantity", order.Quantity.String()),
		zap.String("status", order.Status),
		zap.String("trace_id", e.TraceID))

	event := bus.Event{Type: bus.EventOrder, Payload: *order, TraceID: e.TraceID}
	if err := s.bus.Publish(bus.QueueOrder, event); err != nil {
		return fmt.Errorf("ошибка публикации заявки по %s: %w", order.Symbol, err)
	}
	return nil
}
