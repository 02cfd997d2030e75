package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/skalibog/bftp/internal/buffer"
	"github.com/skalibog/bftp/internal/bus"
	"github.com/skalibog/bftp/internal/collector"
	"github.com/skalibog/bftp/internal/config"
	"github.com/skalibog/bftp/internal/exchange"
	"github.com/skalibog/bftp/internal/pipeline"
	"github.com/skalibog/bftp/internal/storage"
	"github.com/skalibog/bftp/internal/strategy"
	"github.com/skalibog/bftp/pkg/logger"
)

func main() {
	// Обработка флагов командной строки
	configPath := flag.String("config", "config.yaml", "путь к файлу конфигурации")
	flag.Parse()

	if _, err := os.Stat(*configPath); os.IsNotExist(err) {
		log.Fatalf("Файл конфигурации не найден: %s", *configPath)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	zlog, err := logger.New(cfg.Logging)
	if err != nil {
		log.Fatalf("Ошибка инициализации логгера: %v", err)
	}
	defer zlog.Sync()

	// Контекст процесса, отменяется сигналом завершения
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		zlog.Info("Получен сигнал завершения", zap.String("signal", sig.String()))
		cancel()
	}()

	client, err := exchange.NewClient(ctx, cfg.Binance, zlog)
	if err != nil {
		zlog.Fatal("Ошибка инициализации клиента биржи", zap.Error(err))
	}

	for _, symbol := range cfg.Trading.Symbols {
		if err := client.SetLeverage(ctx, symbol, cfg.Trading.Leverage); err != nil {
			zlog.Fatal("Ошибка установки плеча",
				zap.String("symbol", symbol),
				zap.Int("leverage", cfg.Trading.Leverage),
				zap.Error(err))
		}
	}

	var archive storage.Storage = storage.Nop{}
	if cfg.Storage.Enabled {
		influx, err := storage.NewInfluxDBStorage(ctx, cfg.Storage)
		if err != nil {
			zlog.Fatal("Ошибка инициализации хранилища", zap.Error(err))
		}
		archive = influx
	}

	store := buffer.NewStore(cfg.Buffer.Capacity)
	eventBus := bus.New(zlog, cfg.Bus.QueueCapacity)

	strat, err := strategy.Build(cfg.Strategy, store)
	if err != nil {
		zlog.Fatal("Ошибка инициализации стратегии", zap.Error(err))
	}

	pipe, err := pipeline.New(eventBus, strat, client, archive, cfg.Trading, zlog)
	if err != nil {
		zlog.Fatal("Ошибка сборки конвейера", zap.Error(err))
	}
	pipe.Start(ctx)

	coll := collector.New(store, eventBus, archive, client, zlog)

	// Прогрев буферов историей до подписки на поток
	for _, symbol := range cfg.Trading.Symbols {
		if err := coll.Backfill(ctx, symbol, cfg.Trading.Interval, cfg.Trading.HistoryLimit); err != nil {
			zlog.Warn("Ошибка загрузки истории",
				zap.String("symbol", symbol),
				zap.Error(err))
		}
	}

	stream := exchange.NewKlineStream(cfg.Binance, cfg.Trading.Symbols, cfg.Trading.Interval, coll, zlog)
	stream.Start(ctx)

	zlog.Info("Конвейер запущен",
		zap.Strings("symbols", cfg.Trading.Symbols),
		zap.String("interval", cfg.Trading.Interval),
		zap.String("strategy", strat.Name()))

	<-ctx.Done()

	// Порядок остановки: сначала источник данных, затем конвейер, затем архив
	stream.Stop()
	coll.Stop()
	pipe.Close()
	archive.Close()

	zlog.Info("Завершение работы")
}
