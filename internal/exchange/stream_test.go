package exchange

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/skalibog/bftp/internal/config"
)

// recordingHandler накапливает события потока для проверок
type recordingHandler struct {
	mu          sync.Mutex
	messages    [][]byte
	connects    int
	disconnects int
	received    chan struct{}
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{received: make(chan struct{}, 64)}
}

func (h *recordingHandler) HandleMessage(raw []byte) {
	h.mu.Lock()
	h.messages = append(h.messages, append([]byte(nil), raw...))
	h.mu.Unlock()
	h.received <- struct{}{}
}

func (h *recordingHandler) HandleConnect() {
	h.mu.Lock()
	h.connects++
	h.mu.Unlock()
}

func (h *recordingHandler) HandleDisconnect(err error) {
	h.mu.Lock()
	h.disconnects++
	h.mu.Unlock()
}

func (h *recordingHandler) snapshot() ([][]byte, int, int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	msgs := make([][]byte, len(h.messages))
	copy(msgs, h.messages)
	return msgs, h.connects, h.disconnects
}

func TestStreamURL(t *testing.T) {
	s := NewKlineStream(config.BinanceConfig{}, []string{"BTCUSDT", "ETHUSDT"}, "1m", newRecordingHandler(), zap.NewNop())
	assert.Equal(t, "wss://fstream.binance.com/stream?streams=btcusdt@kline_1m/ethusdt@kline_1m", s.wsURL)

	testnet := NewKlineStream(config.BinanceConfig{Testnet: true}, []string{"BTCUSDT"}, "5m", newRecordingHandler(), zap.NewNop())
	assert.Equal(t, "wss://stream.binancefuture.com/stream?streams=btcusdt@kline_5m", testnet.wsURL)
}

func TestUnwrapCombined(t *testing.T) {
	enveloped := []byte(`{"stream":"btcusdt@kline_1m","data":{"e":"kline","s":"BTCUSDT"}}`)
	assert.JSONEq(t, `{"e":"kline","s":"BTCUSDT"}`, string(unwrapCombined(enveloped)))

	plain := []byte(`{"e":"kline","s":"BTCUSDT"}`)
	assert.Equal(t, plain, unwrapCombined(plain))

	garbage := []byte(`not json`)
	assert.Equal(t, garbage, unwrapCombined(garbage))
}

func TestStreamDeliversMessages(t *testing.T) {
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		payloads := []string{
			`{"stream":"btcusdt@kline_1m","data":{"e":"kline","s":"BTCUSDT","n":1}}`,
			`{"e":"kline","s":"BTCUSDT","n":2}`,
		}
		for _, p := range payloads {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(p)); err != nil {
				return
			}
		}
		// Держим соединение открытым до закрытия клиентом
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	handler := newRecordingHandler()
	stream := &KlineStream{
		wsURL:   "ws" + strings.TrimPrefix(server.URL, "http"),
		handler: handler,
		logger:  zap.NewNop(),
		done:    make(chan struct{}),
	}

	stream.Start(context.Background())
	for i := 0; i < 2; i++ {
		select {
		case <-handler.received:
		case <-time.After(5 * time.Second):
			t.Fatal("сообщение потока не получено")
		}
	}
	stream.Stop()

	msgs, connects, disconnects := handler.snapshot()
	require.Len(t, msgs, 2)
	assert.JSONEq(t, `{"e":"kline","s":"BTCUSDT","n":1}`, string(msgs[0]))
	assert.JSONEq(t, `{"e":"kline","s":"BTCUSDT","n":2}`, string(msgs[1]))
	assert.GreaterOrEqual(t, connects, 1)
	assert.GreaterOrEqual(t, disconnects, 1)
}

func TestStreamStopWithoutStart(t *testing.T) {
	s := NewKlineStream(config.BinanceConfig{}, []string{"BTCUSDT"}, "1m", newRecordingHandler(), zap.NewNop())
	s.Stop()
	s.Stop()
}

func TestStreamStartAfterStopNoop(t *testing.T) {
	handler := newRecordingHandler()
	s := NewKlineStream(config.BinanceConfig{}, []string{"BTCUSDT"}, "1m", handler, zap.NewNop())
	s.Stop()
	s.Start(context.Background())

	// Остановленный поток не запускается и не подключается
	time.Sleep(50 * time.Millisecond)
	_, connects, _ := handler.snapshot()
	assert.Equal(t, 0, connects)
}
