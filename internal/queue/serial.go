// Package queue provides the ordering primitive behind the connection
// lifecycle queue and the per-table action queues.
package queue

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// ErrClosed is returned when pushing to a queue that has been closed.
var ErrClosed = errors.New("queue closed")

// Serial runs submitted items one at a time, in submission order, on a
// single goroutine. Push never blocks; the backlog is unbounded.
type Serial[T any] struct {
	name    string
	handle  func(T)
	logger  *zap.Logger
	mu      sync.Mutex
	cond    *sync.Cond
	items   []T
	closed  bool
	done    chan struct{}
	onPanic func(T, any)
}

// Option customises a Serial queue.
type Option[T any] func(*Serial[T])

// WithPanicHandler is called with the item and the recovered value when the
// handler panics. The queue keeps running either way.
func WithPanicHandler[T any](fn func(item T, recovered any)) Option[T] {
	return func(s *Serial[T]) {
		s.onPanic = fn
	}
}

// NewSerial starts a queue that calls handle for each pushed item.
func NewSerial[T any](name string, handle func(T), logger *zap.Logger, opts ...Option[T]) *Serial[T] {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Serial[T]{
		name:   name,
		handle: handle,
		logger: logger,
		done:   make(chan struct{}),
	}
	s.cond = sync.NewCond(&s.mu)
	for _, opt := range opts {
		opt(s)
	}
	go s.run()
	return s
}

// Push appends an item to the queue.
func (s *Serial[T]) Push(item T) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("%s: %w", s.name, ErrClosed)
	}
	s.items = append(s.items, item)
	s.cond.Signal()
	return nil
}

// Len returns the number of items waiting to be processed.
func (s *Serial[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Close stops accepting items. Items already queued are still processed.
func (s *Serial[T]) Close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		s.cond.Broadcast()
	}
	s.mu.Unlock()
}

// Done is closed once the queue is closed and drained.
func (s *Serial[T]) Done() <-chan struct{} {
	return s.done
}

func (s *Serial[T]) run() {
	defer close(s.done)
	for {
		s.mu.Lock()
		for len(s.items) == 0 && !s.closed {
			s.cond.Wait()
		}
		if len(s.items) == 0 {
			s.mu.Unlock()
			return
		}
		item := s.items[0]
		var zero T
		s.items[0] = zero
		s.items = s.items[1:]
		s.mu.Unlock()

		s.process(item)
	}
}

func (s *Serial[T]) process(item T) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("queue item panicked",
				zap.String("queue", s.name),
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
			if s.onPanic != nil {
				s.onPanic(item, r)
			}
		}
	}()
	s.handle(item)
}
