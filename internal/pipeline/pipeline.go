package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/skalibog/bftp/internal/bus"
	"github.com/skalibog/bftp/internal/config"
	"github.com/skalibog/bftp/internal/storage"
	"github.com/skalibog/bftp/internal/strategy"
)

// Pipeline связывает стадии конвейера с очередями шины. Сам конвейер
// бизнес-логики не содержит, вся работа происходит в стадиях.
type Pipeline struct {
	bus    *bus.Bus
	logger *zap.Logger
}

// New создает конвейер и подписывает стадии на очереди
func New(eventBus *bus.Bus, strat strategy.Strategy, executor Executor, archive storage.Storage, cfg config.TradingConfig, logger *zap.Logger) (*Pipeline, error) {
	signalStage := NewSignalStage(strat, eventBus, archive, logger)
	executionStage := NewExecutionStage(executor, eventBus, cfg, logger)
	fillStage := NewFillStage(archive, logger)

	if err := eventBus.Subscribe(bus.QueueData, signalStage.Handle); err != nil {
		return nil, fmt.Errorf("ошибка подписки стадии сигналов: %w", err)
	}
	if err := eventBus.Subscribe(bus.QueueSignal, executionStage.Handle); err != nil {
		return nil, fmt.Errorf("ошибка подписки стадии исполнения: %w", err)
	}
	if err := eventBus.Subscribe(bus.QueueOrder, fillStage.Handle); err != nil {
		return nil, fmt.Errorf("ошибка подписки завершающей стадии: %w", err)
	}

	return &Pipeline{
		bus:    eventBus,
		logger: logger.Named("pipeline"),
	}, nil
}

// Start запускает диспетчеры шины и вместе с ними конвейер
func (p *Pipeline) Start(ctx context.Context) {
	p.bus.Start(ctx)
	p.logger.Info("Конвейер запущен")
}

// Close останавливает конвейер, дорабатывая накопленные события
func (p *Pipeline) Close() {
	p.bus.Close()
	p.logger.Info("Конвейер остановлен")
}
