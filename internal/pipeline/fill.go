package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/skalibog/bftp/internal/bus"
	"github.com/skalibog/bftp/internal/storage"
	"github.com/skalibog/bftp/pkg/models"
)

// FillStage завершающая стадия конвейера. Подписана на очередь order,
// протоколирует судьбу заявок и архивирует их. Принятая биржей заявка
// и исполненная заявка различаются по статусу.
type FillStage struct {
	archive storage.Storage
	logger  *zap.Logger
}

// NewFillStage создает завершающую стадию
func NewFillStage(archive storage.Storage, logger *zap.Logger) *FillStage {
	return &FillStage{
		archive: archive,
		logger:  logger.Named("fill"),
	}
}

// Handle обрабатывает событие очереди order
func (s *FillStage) Handle(e bus.Event) error {
	order, ok := e.Payload.(models.Order)
	if !ok {
		return fmt.Errorf("в очереди order не заявка: %T", e.Payload)
	}

	fields := []zap.Field{
		zap.Int64("order_id", order.OrderID),
		zap.String("client_order_id", order.ClientOrderID),
		zap.String("symbol", order.Symbol),
		zap.String("side", string(order.Side)),
		zap.String("quantity", order.Quantity.String()),
		zap.String("price", order.Price.String()),
		zap.String("status", order.Status),
		zap.Bool("reduce_only", order.ReduceOnly),
		zap.String("trace_id", e.TraceID),
	}

	switch order.Status {
	case models.OrderStatusFilled:
		s.logger.Info("Заявка исполнена", fields...)
	case models.OrderStatusNew:
		s.logger.Info("Заявка принята биржей, ожидает исполнения", fields...)
	default:
		s.logger.Info("Заявка в промежуточном статусе", fields...)
	}

	if err := s.archive.SaveOrder(context.Background(), order, e.TraceID); err != nil {
		s.logger.Warn("Ошибка архивирования заявки",
			zap.Int64("order_id", order.OrderID),
			zap.String("symbol", order.Symbol),
			zap.Error(err))
	}
	return nil
}
