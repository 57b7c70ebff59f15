package workers

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

type Handler[T any] func(ctx context.Context, event T) error

// Broadcaster fans events out to every subscriber. Each subscriber has its own
// unbounded queue and goroutine: Publish never blocks, and a subscriber that
// fails or panics only loses its own event.
type Broadcaster[T any] struct {
	mu     sync.RWMutex
	subs   []*subscriber[T]
	wg     sync.WaitGroup
	logger *zap.SugaredLogger
}

type subscriber[T any] struct {
	name    string
	handler Handler[T]

	mu     sync.Mutex
	queue  []T
	notify chan struct{}
}

func NewBroadcaster[T any](logger *zap.SugaredLogger) *Broadcaster[T] {
	return &Broadcaster[T]{logger: logger.Named("pubsub")}
}

// Subscribe registers handler and starts delivering to it until ctx is done.
// Events are handed to one subscriber in publish order.
func (b *Broadcaster[T]) Subscribe(ctx context.Context, name string, handler Handler[T]) {
	s := &subscriber[T]{
		name:    name,
		handler: handler,
		notify:  make(chan struct{}, 1),
	}

	b.mu.Lock()
	b.subs = append(b.subs, s)
	b.mu.Unlock()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.deliver(ctx, s)
	}()
}

func (b *Broadcaster[T]) Publish(event T) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, s := range b.subs {
		s.mu.Lock()
		s.queue = append(s.queue, event)
		s.mu.Unlock()

		select {
		case s.notify <- struct{}{}:
		default:
		}
	}
}

// Wait blocks until every subscriber goroutine has returned
func (b *Broadcaster[T]) Wait() {
	b.wg.Wait()
}

func (b *Broadcaster[T]) deliver(ctx context.Context, s *subscriber[T]) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.notify:
		}

		for {
			s.mu.Lock()
			if len(s.queue) == 0 {
				s.mu.Unlock()
				break
			}
			event := s.queue[0]
			var zero T
			s.queue[0] = zero
			s.queue = s.queue[1:]
			s.mu.Unlock()

			if err := b.call(ctx, s, event); err != nil {
				b.logger.Errorw("subscriber failed", "subscriber", s.name, "error", err)
			}
			if ctx.Err() != nil {
				return
			}
		}
	}
}

func (b *Broadcaster[T]) call(ctx context.Context, s *subscriber[T], event T) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf("panic: %v", r)
		}
	}()
	return s.handler(ctx, event)
}
