package strategy

import (
	"context"
	"fmt"

	"github.com/skalibog/bftp/internal/buffer"
	"github.com/skalibog/bftp/internal/config"
	"github.com/skalibog/bftp/internal/strategy/technical"
	"github.com/skalibog/bftp/internal/strategy/volumedelta"
	"github.com/skalibog/bftp/pkg/models"
)

// Strategy вырабатывает торговые сигналы по закрытым свечам.
// Возврат nil-сигнала без ошибки означает отсутствие сигнала
// и является нормальным исходом анализа.
type Strategy interface {
	Name() string
	Analyze(ctx context.Context, candle models.Candle) (*models.Signal, error)
}

// Build создает стратегию по режиму из конфигурации
func Build(cfg config.StrategyConfig, store *buffer.Store) (Strategy, error) {
	switch cfg.Mode {
	case "technical":
		return technical.New(cfg.Technical, store), nil
	case "volumedelta":
		return volumedelta.New(cfg.VolumeDelta, store), nil
	default:
		return nil, fmt.Errorf("неизвестный режим стратегии %q", cfg.Mode)
	}
}
