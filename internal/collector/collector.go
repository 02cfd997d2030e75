package collector

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/skalibog/bftp/internal/buffer"
	"github.com/skalibog/bftp/internal/bus"
	"github.com/skalibog/bftp/internal/storage"
	"github.com/skalibog/bftp/pkg/models"
)

// HistoricalSource источник сырого JSON исторических свечей
type HistoricalSource interface {
	HistoricalKlines(ctx context.Context, symbol, interval string, limit int) ([]byte, error)
}

// Collector принимает рыночные данные из потока и истории, наполняет
// буфер свечей и публикует закрытые свечи в очередь data. Разбор сырого
// JSON биржи целиком лежит на коллекторе.
type Collector struct {
	store   *buffer.Store
	bus     *bus.Bus
	archive storage.Storage
	source  HistoricalSource
	logger  *zap.Logger

	connected atomic.Bool
	stopped   atomic.Bool
}

// New создает коллектор рыночных данных
func New(store *buffer.Store, eventBus *bus.Bus, archive storage.Storage, source HistoricalSource, logger *zap.Logger) *Collector {
	return &Collector{
		store:   store,
		bus:     eventBus,
		archive: archive,
		source:  source,
		logger:  logger.Named("collector"),
	}
}

// HandleMessage разбирает сообщение потока. Сообщения других типов и
// некорректные сообщения пропускаются, поток обработки не прерывается.
func (c *Collector) HandleMessage(raw []byte) {
	if c.stopped.Load() {
		return
	}

	candle, err := parseKlineEvent(raw)
	if err != nil {
		if errors.Is(err, errSkipMessage) {
			c.logger.Debug("Сообщение потока пропущено", zap.Error(err))
		} else {
			c.logger.Warn("Некорректное сообщение потока",
				zap.Error(err),
				zap.ByteString("raw", raw))
		}
		return
	}

	c.ingest(context.Background(), candle)
}

// HandleConnect отмечает установленное соединение с потоком
func (c *Collector) HandleConnect() {
	c.connected.Store(true)
	c.logger.Info("Коллектор подключен к потоку данных")
}

// HandleDisconnect отмечает потерю соединения с потоком
func (c *Collector) HandleDisconnect(err error) {
	c.connected.Store(false)
	if err != nil {
		c.logger.Warn("Коллектор отключен от потока данных", zap.Error(err))
		return
	}
	c.logger.Info("Поток данных остановлен")
}

// Connected сообщает состояние соединения с потоком
func (c *Collector) Connected() bool {
	return c.connected.Load()
}

// Stop останавливает прием данных. Вызов безопасен из любого состояния
// и повторно.
func (c *Collector) Stop() {
	if c.stopped.CompareAndSwap(false, true) {
		c.logger.Info("Коллектор остановлен")
	}
}

// Backfill загружает историю свечей и проводит ее тем же путем, что и
// поток: в буфер и в очередь data. Некорректные записи пропускаются
// поштучно, пакет не прерывается.
func (c *Collector) Backfill(ctx context.Context, symbol, interval string, limit int) error {
	raw, err := c.source.HistoricalKlines(ctx, symbol, interval, limit)
	if err != nil {
		return fmt.Errorf("ошибка загрузки истории %s %s: %w", symbol, interval, err)
	}

	candles, skipped, err := parseHistoricalKlines(raw, symbol, interval)
	if err != nil {
		return fmt.Errorf("ошибка разбора истории %s %s: %w", symbol, interval, err)
	}
	if skipped > 0 {
		c.logger.Warn("Часть исторических записей пропущена",
			zap.String("symbol", symbol),
			zap.String("interval", interval),
			zap.Int("skipped", skipped))
	}

	for _, candle := range candles {
		c.ingest(ctx, candle)
	}

	c.logger.Info("История свечей загружена",
		zap.String("symbol", symbol),
		zap.String("interval", interval),
		zap.Int("candles", len(candles)))
	return nil
}

// ingest проводит свечу по конвейеру данных: валидация, буфер и,
// для закрытых свечей, архив с публикацией
func (c *Collector) ingest(ctx context.Context, candle models.Candle) {
	if err := candle.Validate(); err != nil {
		c.logger.Warn("Свеча нарушает инварианты и пропущена",
			zap.String("symbol", candle.Symbol),
			zap.String("interval", candle.Interval),
			zap.Error(err))
		return
	}

	c.store.Put(candle)
	if !candle.IsClosed {
		return
	}

	if err := c.archive.SaveCandle(ctx, candle); err != nil {
		c.logger.Warn("Ошибка архивирования свечи",
			zap.String("symbol", candle.Symbol),
			zap.Error(err))
	}

	event := bus.Event{
		Type:    bus.EventCandle,
		Payload: candle,
		TraceID: uuid.NewString(),
	}
	if err := c.bus.Publish(bus.QueueData, event); err != nil {
		c.logger.Error("Ошибка публикации свечи",
			zap.String("symbol", candle.Symbol),
			zap.Error(err))
	}
}
