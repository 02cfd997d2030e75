package exchange

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"
	"go.uber.org/zap"

	"github.com/skalibog/bftp/internal/config"
)

const (
	wsMainnetURL = "wss://fstream.binance.com"
	wsTestnetURL = "wss://stream.binancefuture.com"

	// Биржа пингует соединение примерно раз в три минуты,
	// отсутствие трафика дольше лимита означает мертвое соединение
	readTimeout      = 5 * time.Minute
	handshakeTimeout = 10 * time.Second
)

// StreamHandler потребитель потока рыночных данных
type StreamHandler interface {
	HandleMessage(raw []byte)
	HandleConnect()
	HandleDisconnect(err error)
}

// KlineStream поток свечей Binance по веб-сокету. Подписывается на
// комбинированный поток по всем символам, переподключается с растущей
// задержкой и передает сырые сообщения обработчику.
type KlineStream struct {
	wsURL   string
	handler StreamHandler
	logger  *zap.Logger

	mu      sync.Mutex
	started bool
	stopped bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewKlineStream создает поток свечей по символам и интервалу
func NewKlineStream(cfg config.BinanceConfig, symbols []string, interval string, handler StreamHandler, logger *zap.Logger) *KlineStream {
	streams := make([]string, len(symbols))
	for i, s := range symbols {
		streams[i] = strings.ToLower(s) + "@kline_" + interval
	}

	base := wsMainnetURL
	if cfg.Testnet {
		base = wsTestnetURL
	}

	return &KlineStream{
		wsURL:   base + "/stream?streams=" + strings.Join(streams, "/"),
		handler: handler,
		logger:  logger.Named("stream"),
		done:    make(chan struct{}),
	}
}

// Start запускает цикл чтения потока в отдельной горутине
func (s *KlineStream) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started || s.stopped {
		s.mu.Unlock()
		return
	}
	s.started = true
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()

	go s.run(runCtx)
}

// Stop останавливает поток. Вызов безопасен из любого состояния
// и повторно.
func (s *KlineStream) Stop() {
	s.mu.Lock()
	if s.stopped {
		started := s.started
		s.mu.Unlock()
		if started {
			<-s.done
		}
		return
	}
	s.stopped = true
	started := s.started
	cancel := s.cancel
	s.mu.Unlock()

	if !started {
		return
	}
	cancel()
	<-s.done
}

// run подключается к потоку и переподключается при обрывах
func (s *KlineStream) run(ctx context.Context) {
	defer close(s.done)

	retry := &backoff.Backoff{
		Min:    time.Second,
		Max:    time.Minute,
		Factor: 2,
		Jitter: true,
	}
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}

	for {
		if ctx.Err() != nil {
			return
		}

		conn, _, err := dialer.DialContext(ctx, s.wsURL, nil)
		if err != nil {
			delay := retry.Duration()
			s.logger.Warn("Ошибка подключения к потоку свечей",
				zap.String("url", s.wsURL),
				zap.Duration("retry_in", delay),
				zap.Error(err))
			select {
			case <-time.After(delay):
				continue
			case <-ctx.Done():
				return
			}
		}

		retry.Reset()
		s.logger.Info("Поток свечей подключен", zap.String("url", s.wsURL))
		s.handler.HandleConnect()

		err = s.readLoop(ctx, conn)
		conn.Close()

		if ctx.Err() != nil {
			s.handler.HandleDisconnect(nil)
			return
		}

		s.handler.HandleDisconnect(err)
		delay := retry.Duration()
		s.logger.Warn("Поток свечей оборван, переподключение",
			zap.Duration("retry_in", delay),
			zap.Error(err))
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		}
	}
}

// readLoop читает сообщения соединения до ошибки или отмены контекста
func (s *KlineStream) readLoop(ctx context.Context, conn *websocket.Conn) error {
	watchdogStop := make(chan struct{})
	defer close(watchdogStop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-watchdogStop:
		}
	}()

	for {
		if err := conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
			return err
		}
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		s.handler.HandleMessage(unwrapCombined(raw))
	}
}

// unwrapCombined извлекает полезную нагрузку из конверта комбинированного
// потока. Сообщения без конверта проходят как есть.
func unwrapCombined(raw []byte) []byte {
	var envelope struct {
		Stream string          `json:"stream"`
		Data   json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil && len(envelope.Data) > 0 {
		return envelope.Data
	}
	return raw
}
