package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/skalibog/bftp/internal/bus"
	"github.com/skalibog/bftp/internal/storage"
	"github.com/skalibog/bftp/internal/strategy"
	"github.com/skalibog/bftp/pkg/models"
)

// SignalStage стадия выработки сигналов. Подписана на очередь data,
// передает закрытые свечи стратегии и публикует ее сигналы в очередь
// signal с тем же идентификатором трассировки.
type SignalStage struct {
	strategy strategy.Strategy
	bus      *bus.Bus
	archive  storage.Storage
	logger   *zap.Logger
}

// NewSignalStage создает стадию выработки сигналов
func NewSignalStage(strat strategy.Strategy, eventBus *bus.Bus, archive storage.Storage, logger *zap.Logger) *SignalStage {
	return &SignalStage{
		strategy: strat,
		bus:      eventBus,
		archive:  archive,
		logger:   logger.Named("signal"),
	}
}

// Handle обрабатывает событие очереди data
func (s *SignalStage) Handle(e bus.Event) error {
	candle, ok := e.Payload.(models.Candle)
	if !ok {
		return fmt.Errorf("в очереди data не свеча: %T", e.Payload)
	}
	if !candle.IsClosed {
		s.logger.Debug("Незакрытая свеча пропущена",
			zap.String("symbol", candle.Symbol),
			zap.String("trace_id", e.TraceID))
		return nil
	}

	sig, err := s.strategy.Analyze(context.Background(), candle)
	if err != nil {
		return fmt.Errorf("ошибка стратегии %s по %s: %w", s.strategy.Name(), candle.Symbol, err)
	}
	if sig == nil {
		s.logger.Debug("Сигнал не выработан",
			zap.String("symbol", candle.Symbol),
			zap.String("strategy", s.strategy.Name()),
			zap.String("trace_id", e.TraceID))
		return nil
	}

	s.logger.Info("Выработан сигнал",
		zap.String("symbol", sig.Symbol),
		zap.String("type", string(sig.Type)),
		zap.String("entry", sig.EntryPrice.String()),
		zap.String("take_profit", sig.TakeProfit.String()),
		zap.String("stop_loss", sig.StopLoss.String()),
		zap.String("strategy", s.strategy.Name()),
		zap.String("trace_id", e.TraceID))

	if err := s.archive.SaveSignal(context.Background(), *sig, e.TraceID); err != nil {
		s.logger.Warn("Ошибка архивирования сигнала",
			zap.String("symbol", sig.Symbol),
			zap.Error(err))
	}

	event := bus.Event{Type: bus.EventSignal, Payload: *sig, TraceID: e.TraceID}
	if err := s.bus.Publish(bus.QueueSignal, event); err != nil {
		return fmt.Errorf("ошибка публикации сигнала по %s: %w", sig.Symbol, err)
	}
	return nil
}
