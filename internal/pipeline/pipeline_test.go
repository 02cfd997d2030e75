package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/skalibog/bftp/internal/buffer"
	"github.com/skalibog/bftp/internal/bus"
	"github.com/skalibog/bftp/internal/config"
	"github.com/skalibog/bftp/internal/exchange"
	"github.com/skalibog/bftp/internal/strategy/volumedelta"
	"github.com/skalibog/bftp/pkg/models"
)

// stubStrategy стратегия с заранее заданным ответом
type stubStrategy struct {
	mu    sync.Mutex
	sig   *models.Signal
	err   error
	calls int
}

func (s *stubStrategy) Name() string { return "stub" }

func (s *stubStrategy) Analyze(ctx context.Context, candle models.Candle) (*models.Signal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if s.sig == nil {
		return nil, nil
	}
	copied := *s.sig
	return &copied, nil
}

func (s *stubStrategy) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// stubExecutor биржа с заранее заданными ответами
type stubExecutor struct {
	mu          sync.Mutex
	position    *models.Position
	positionErr error
	balance     decimal.Decimal
	balanceErr  error
	order       *models.Order
	executeErr  error

	balanceCalls int
	executed     []executedCall

	delay     time.Duration
	inFlight  int
	maxInside int
}

type executedCall struct {
	sig models.Signal
	qty decimal.Decimal
}

// GetPosition дополнительно отслеживает число одновременных входов:
// при работающей блокировке по символу оно не превышает единицы.
func (e *stubExecutor) GetPosition(ctx context.Context, symbol string) (*models.Position, error) {
	e.mu.Lock()
	e.inFlight++
	if e.inFlight > e.maxInside {
		e.maxInside = e.inFlight
	}
	pos, err := e.position, e.positionErr
	e.mu.Unlock()

	if e.delay > 0 {
		time.Sleep(e.delay)
	}

	e.mu.Lock()
	e.inFlight--
	e.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if pos == nil {
		return nil, nil
	}
	copied := *pos
	return &copied, nil
}

func (e *stubExecutor) maxConcurrent() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.maxInside
}

func (e *stubExecutor) GetBalance(ctx context.Context) (decimal.Decimal, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.balanceCalls++
	return e.balance, e.balanceErr
}

func (e *stubExecutor) Execute(ctx context.Context, sig models.Signal, quantity decimal.Decimal) (*models.Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.executeErr != nil {
		return nil, e.executeErr
	}
	e.executed = append(e.executed, executedCall{sig: sig, qty: quantity})
	if e.order != nil {
		copied := *e.order
		return &copied, nil
	}
	return &models.Order{
		OrderID:  int64(len(e.executed)),
		Symbol:   sig.Symbol,
		Side:     models.OrderSideBuy,
		Quantity: quantity,
		Price:    sig.EntryPrice,
		Status:   models.OrderStatusNew,
	}, nil
}

func (e *stubExecutor) executedCalls() []executedCall {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]executedCall, len(e.executed))
	copy(out, e.executed)
	return out
}

// archiveRecorder архив, накапливающий записи
type archiveRecorder struct {
	mu      sync.Mutex
	signals []models.Signal
	orders  []models.Order
	failing bool
}

func (a *archiveRecorder) SaveCandle(ctx context.Context, candle models.Candle) error { return nil }

func (a *archiveRecorder) SaveSignal(ctx context.Context, signal models.Signal, traceID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.failing {
		return errors.New("архив недоступен")
	}
	a.signals = append(a.signals, signal)
	return nil
}

func (a *archiveRecorder) SaveOrder(ctx context.Context, order models.Order, traceID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.failing {
		return errors.New("архив недоступен")
	}
	a.orders = append(a.orders, order)
	return nil
}

func (a *archiveRecorder) Close() {}

func (a *archiveRecorder) savedSignals() []models.Signal {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]models.Signal, len(a.signals))
	copy(out, a.signals)
	return out
}

func (a *archiveRecorder) savedOrders() []models.Order {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]models.Order, len(a.orders))
	copy(out, a.orders)
	return out
}

func tradingConfig() config.TradingConfig {
	return config.TradingConfig{
		Symbols:         []string{"BTCUSDT"},
		Interval:        "1m",
		Leverage:        1,
		RiskPerTrade:    0.01,
		MaxPositionSize: 1000,
	}
}

func bullCandle(seq int) models.Candle {
	return models.Candle{
		Symbol:    "BTCUSDT",
		Interval:  "1m",
		OpenTime:  time.Unix(int64(seq*60), 0),
		CloseTime: time.Unix(int64(seq*60+59), 0),
		Open:      decimal.NewFromInt(100),
		High:      decimal.NewFromInt(102),
		Low:       decimal.NewFromInt(99),
		Close:     decimal.NewFromInt(101),
		Volume:    decimal.NewFromInt(10),
		IsClosed:  true,
	}
}

func collectQueue(t *testing.T, b *bus.Bus, queue string) chan bus.Event {
	t.Helper()
	ch := make(chan bus.Event, 64)
	require.NoError(t, b.Subscribe(queue, func(e bus.Event) error {
		ch <- e
		return nil
	}))
	return ch
}

// Сквозной сценарий: закрытая свеча проходит конвейер целиком и
// превращается ровно в одну заявку положительного размера.
func TestPipelineCandleBecomesOrder(t *testing.T) {
	store := buffer.NewStore(100)
	for i := 0; i < 20; i++ {
		store.Put(bullCandle(i))
	}

	strat := volumedelta.New(config.VolumeDeltaConfig{
		Lookback:              20,
		SignificanceThreshold: 1.5,
		EntryThreshold:        40,
		TakeProfitPct:         0.02,
		StopLossPct:           0.01,
	}, store)

	executor := &stubExecutor{balance: decimal.NewFromInt(10000)}
	archive := &archiveRecorder{}
	b := bus.New(zap.NewNop(), 64)

	_, err := New(b, strat, executor, archive, tradingConfig(), zap.NewNop())
	require.NoError(t, err)
	orders := collectQueue(t, b, bus.QueueOrder)

	b.Start(context.Background())
	require.NoError(t, b.Publish(bus.QueueData, bus.Event{
		Type:    bus.EventCandle,
		Payload: bullCandle(19),
		TraceID: "trace-e2e",
	}))

	select {
	case e := <-orders:
		order, ok := e.Payload.(models.Order)
		require.True(t, ok)
		assert.Equal(t, "BTCUSDT", order.Symbol)
		assert.True(t, order.Quantity.IsPositive(), "объем %s", order.Quantity)
		assert.Equal(t, "trace-e2e", e.TraceID)
	case <-time.After(3 * time.Second):
		t.Fatal("заявка не дошла до очереди order")
	}

	b.Close()
	assert.Len(t, orders, 0)

	calls := executor.executedCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, models.SignalLongEntry, calls[0].sig.Type)
	assert.Len(t, archive.savedSignals(), 1)
	assert.Len(t, archive.savedOrders(), 1)
}

// Сквозной сценарий с отказывающей биржей: заявки не появляются,
// конвейер продолжает обрабатывать следующие свечи.
func TestPipelineRejectingExecutor(t *testing.T) {
	sig := models.Signal{
		Symbol:     "BTCUSDT",
		Type:       models.SignalLongEntry,
		EntryPrice: decimal.NewFromInt(50000),
		TakeProfit: decimal.NewFromInt(52000),
		StopLoss:   decimal.NewFromInt(49000),
	}
	strat := &stubStrategy{sig: &sig}
	executor := &stubExecutor{
		balance:    decimal.NewFromInt(10000),
		executeErr: &exchange.RejectionError{Code: -2019, Message: "Margin is insufficient."},
	}
	archive := &archiveRecorder{}
	b := bus.New(zap.NewNop(), 64)

	_, err := New(b, strat, executor, archive, tradingConfig(), zap.NewNop())
	require.NoError(t, err)
	orders := collectQueue(t, b, bus.QueueOrder)

	b.Start(context.Background())
	for i := 0; i < 2; i++ {
		require.NoError(t, b.Publish(bus.QueueData, bus.Event{
			Type:    bus.EventCandle,
			Payload: bullCandle(i),
		}))
	}
	b.Close()

	assert.Equal(t, 2, strat.callCount())
	assert.Empty(t, orders)
	assert.Empty(t, archive.savedOrders())
	assert.Empty(t, executor.executedCalls())
}
