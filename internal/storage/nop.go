package storage

import (
	"context"

	"github.com/skalibog/bftp/pkg/models"
)

// Nop хранилище-заглушка для запуска без архива
type Nop struct{}

func (Nop) SaveCandle(ctx context.Context, candle models.Candle) error { return nil }

func (Nop) SaveSignal(ctx context.Context, signal models.Signal, traceID string) error { return nil }

func (Nop) SaveOrder(ctx context.Context, order models.Order, traceID string) error { return nil }

func (Nop) Close() {}
