package bus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Имена очередей шины событий
const (
	QueueData   = "data"
	QueueSignal = "signal"
	QueueOrder  = "order"
)

// Типы событий
const (
	EventCandle = "candle"
	EventSignal = "signal"
	EventOrder  = "order"
)

// Event представляет событие, проходящее через шину
type Event struct {
	Type    string
	Payload interface{}
	TraceID string
	At      time.Time
}

// Handler обрабатывает событие очереди. Ошибка логируется шиной,
// доставка остальным обработчикам и последующих событий продолжается.
type Handler func(Event) error

// queue именованная очередь с набором обработчиков
type queue struct {
	name     string
	ch       chan Event
	handlers []Handler
}

// Bus шина событий с фиксированным набором очередей. Каждую очередь
// обслуживает собственный диспетчер, события внутри очереди доставляются
// в порядке публикации.
type Bus struct {
	logger  *zap.Logger
	mu      sync.RWMutex
	queues  map[string]*queue
	started bool
	closed  bool
	stopped chan struct{}
	wg      sync.WaitGroup
}

// New создает шину с очередями data, signal и order заданной емкости
func New(logger *zap.Logger, capacity int) *Bus {
	if capacity <= 0 {
		capacity = 256
	}
	b := &Bus{
		logger:  logger.Named("bus"),
		queues:  make(map[string]*queue),
		stopped: make(chan struct{}),
	}
	for _, name := range []string{QueueData, QueueSignal, QueueOrder} {
		b.queues[name] = &queue{name: name, ch: make(chan Event, capacity)}
	}
	return b
}

// Subscribe регистрирует обработчик очереди. Подписка возможна только
// до запуска шины.
func (b *Bus) Subscribe(queueName string, h Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.started {
		return fmt.Errorf("подписка на очередь %q после запуска шины", queueName)
	}
	q, ok := b.queues[queueName]
	if !ok {
		return fmt.Errorf("неизвестная очередь %q", queueName)
	}
	q.handlers = append(q.handlers, h)
	return nil
}

// Publish помещает событие в очередь. Публикация не ждет обработки:
// событие доставляется обработчикам асинхронно. При заполненной очереди
// вызов блокируется до освобождения места, события не теряются.
func (b *Bus) Publish(queueName string, e Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return fmt.Errorf("публикация в очередь %q: шина остановлена", queueName)
	}
	q, ok := b.queues[queueName]
	if !ok {
		return fmt.Errorf("неизвестная очередь %q", queueName)
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	q.ch <- e
	return nil
}

// Start запускает диспетчеры очередей. Отмена контекста останавливает шину.
func (b *Bus) Start(ctx context.Context) {
	b.mu.Lock()
	if b.started || b.closed {
		b.mu.Unlock()
		return
	}
	b.started = true
	b.mu.Unlock()

	for _, q := range b.queues {
		b.wg.Add(1)
		go b.dispatch(q)
	}

	go func() {
		select {
		case <-ctx.Done():
			b.Close()
		case <-b.stopped:
		}
	}()
}

// dispatch доставляет события очереди ее обработчикам по одному
func (b *Bus) dispatch(q *queue) {
	defer b.wg.Done()
	for e := range q.ch {
		for _, h := range q.handlers {
			b.invoke(q.name, h, e)
		}
	}
}

// invoke вызывает обработчик, изолируя его сбои от диспетчера
func (b *Bus) invoke(queueName string, h Handler, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Паника в обработчике события",
				zap.String("queue", queueName),
				zap.String("type", e.Type),
				zap.String("trace_id", e.TraceID),
				zap.Any("panic", r))
		}
	}()

	if err := h(e); err != nil {
		b.logger.Error("Ошибка обработчика события",
			zap.String("queue", queueName),
			zap.String("type", e.Type),
			zap.String("trace_id", e.TraceID),
			zap.Error(err))
	}
}

// Close останавливает шину: новые публикации отклоняются, диспетчеры
// дорабатывают накопленные события и завершаются. Повторные вызовы безопасны.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.mu.Unlock()

	close(b.stopped)
	for _, q := range b.queues {
		close(q.ch)
	}
	b.wg.Wait()
}

// Wait блокируется до завершения всех диспетчеров
func (b *Bus) Wait() {
	b.wg.Wait()
}
