package buffer

import (
	"sync"

	"github.com/skalibog/bftp/pkg/models"
)

const (
	// DefaultCapacity емкость буфера по умолчанию
	DefaultCapacity = 500
	// MaxCapacity жесткий предел емкости буфера
	MaxCapacity = 1000
)

// key идентифицирует буфер по паре символ-интервал
type key struct {
	symbol   string
	interval string
}

// ring кольцевой буфер свечей фиксированной емкости
type ring struct {
	data  []models.Candle
	start int
	count int
}

func (r *ring) put(c models.Candle) {
	capacity := len(r.data)
	if r.count < capacity {
		r.data[(r.start+r.count)%capacity] = c
		r.count++
		return
	}
	// Буфер полон, самая старая свеча вытесняется
	r.data[r.start] = c
	r.start = (r.start + 1) % capacity
}

func (r *ring) snapshot() []models.Candle {
	out := make([]models.Candle, r.count)
	capacity := len(r.data)
	for i := 0; i < r.count; i++ {
		out[i] = r.data[(r.start+i)%capacity]
	}
	return out
}

// Store хранит свечи по парам символ-интервал в кольцевых буферах
type Store struct {
	mu       sync.RWMutex
	capacity int
	rings    map[key]*ring
}

// NewStore создает хранилище свечей. Емкость вне допустимых границ
// приводится к значению по умолчанию либо к жесткому пределу.
func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if capacity > MaxCapacity {
		capacity = MaxCapacity
	}
	return &Store{
		capacity: capacity,
		rings:    make(map[key]*ring),
	}
}

// Capacity возвращает емкость буферов хранилища
func (s *Store) Capacity() int {
	return s.capacity
}

// Put добавляет свечу в буфер пары символ-интервал
func (s *Store) Put(c models.Candle) {
	k := key{symbol: c.Symbol, interval: c.Interval}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rings[k]
	if !ok {
		r = &ring{data: make([]models.Candle, s.capacity)}
		s.rings[k] = r
	}
	r.put(c)
}

// Snapshot возвращает копию содержимого буфера от старых свечей к новым.
// Для неизвестной пары возвращается пустой срез.
func (s *Store) Snapshot(symbol, interval string) []models.Candle {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rings[key{symbol: symbol, interval: interval}]
	if !ok {
		return []models.Candle{}
	}
	return r.snapshot()
}

// Len возвращает число свечей в буфере пары символ-интервал
func (s *Store) Len(symbol, interval string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rings[key{symbol: symbol, interval: interval}]
	if !ok {
		return 0
	}
	return r.count
}
