package storage

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/skalibog/bftp/internal/config"
	"github.com/skalibog/bftp/pkg/models"
)

// InfluxDBStorage реализует архив рыночных данных поверх InfluxDB.
// Архив пишется в одну сторону: конвейер никогда не читает из него.
type InfluxDBStorage struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	org      string
	bucket   string
}

// NewInfluxDBStorage создает хранилище InfluxDB и проверяет доступность базы
func NewInfluxDBStorage(ctx context.Context, cfg config.StorageConfig) (*InfluxDBStorage, error) {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)

	health, err := client.Health(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка соединения с InfluxDB: %w", err)
	}
	if health == nil || health.Status != "pass" {
		return nil, fmt.Errorf("InfluxDB не в состоянии 'pass': %+v", health)
	}

	return &InfluxDBStorage{
		client:   client,
		writeAPI: client.WriteAPI(cfg.Organization, cfg.Bucket),
		org:      cfg.Organization,
		bucket:   cfg.Bucket,
	}, nil
}

// Close закрывает соединение с базой данных
func (s *InfluxDBStorage) Close() {
	s.writeAPI.Flush()
	s.client.Close()
}

// SaveCandle сохраняет закрытую свечу
func (s *InfluxDBStorage) SaveCandle(ctx context.Context, candle models.Candle) error {
	point := influxdb2.NewPoint(
		"candles",
		map[string]string{
			"symbol":   candle.Symbol,
			"interval": candle.Interval,
		},
		map[string]interface{}{
			"open":   candle.Open.InexactFloat64(),
			"high":   candle.High.InexactFloat64(),
			"low":    candle.Low.InexactFloat64(),
			"close":  candle.Close.InexactFloat64(),
			"volume": candle.Volume.InexactFloat64(),
		},
		candle.OpenTime,
	)

	s.writeAPI.WritePoint(point)
	s.writeAPI.Flush()

	return nil
}

// SaveSignal сохраняет выработанный сигнал
func (s *InfluxDBStorage) SaveSignal(ctx context.Context, signal models.Signal, traceID string) error {
	point := influxdb2.NewPoint(
		"signals",
		map[string]string{
			"symbol": signal.Symbol,
			"type":   string(signal.Type),
		},
		map[string]interface{}{
			"entry_price": signal.EntryPrice.InexactFloat64(),
			"take_profit": signal.TakeProfit.InexactFloat64(),
			"stop_loss":   signal.StopLoss.InexactFloat64(),
			"trace_id":    traceID,
		},
		time.Now(),
	)

	s.writeAPI.WritePoint(point)
	s.writeAPI.Flush()

	return nil
}

// SaveOrder сохраняет размещенную заявку
func (s *InfluxDBStorage) SaveOrder(ctx context.Context, order models.Order, traceID string) error {
	point := influxdb2.NewPoint(
		"orders",
		map[string]string{
			"symbol": order.Symbol,
			"side":   string(order.Side),
			"status": order.Status,
		},
		map[string]interface{}{
			"order_id":        order.OrderID,
			"client_order_id": order.ClientOrderID,
			"quantity":        order.Quantity.InexactFloat64(),
			"price":           order.Price.InexactFloat64(),
			"reduce_only":     order.ReduceOnly,
			"trace_id":        traceID,
		},
		time.Now(),
	)

	s.writeAPI.WritePoint(point)
	s.writeAPI.Flush()

	return nil
}

// Storage интерфейс архива рыночных данных
type Storage interface {
	SaveCandle(ctx context.Context, candle models.Candle) error
	SaveSignal(ctx context.Context, signal models.Signal, traceID string) error
	SaveOrder(ctx context.Context, order models.Order, traceID string) error
	Close()
}
