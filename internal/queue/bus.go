// Package queue fans engine events out to their consumers: the in-process
// analytics subscriber, RabbitMQ and Redis pub/sub.
package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/unclebandit/creator-outreach/internal/event"
)

const (
	DefaultMaxRetries = 3
	DefaultBackoff    = 500 * time.Millisecond
)

var ErrBusClosed = errors.New("event bus is closed")

// Handler consumes one event. A returned error schedules a retry.
type Handler func(ctx context.Context, e event.Event) error

// Bus is an in-memory publisher with per-subscriber retry. Handlers run in their own
// goroutines, so a slow consumer never holds up the job loop that published.
type Bus struct {
	mu         sync.RWMutex
	handlers   map[string][]Handler
	all        []Handler
	closed     bool
	wg         sync.WaitGroup
	maxRetries int
	backoff    time.Duration
}

type BusOption func(*Bus)

// WithRetry sets how often a failing handler is retried and the base backoff,
// which grows linearly with each attempt.
func WithRetry(maxRetries int, backoff time.Duration) BusOption {
	return func(b *Bus) {
		b.maxRetries = maxRetries
		b.backoff = backoff
	}
}

func NewBus(opts ...BusOption) *Bus {
	b := &Bus{
		handlers:   make(map[string][]Handler),
		maxRetries: DefaultMaxRetries,
		backoff:    DefaultBackoff,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers h for one event type, e.g. event.TypeInvitationSent.
func (b *Bus) Subscribe(eventType string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], h)
}

// SubscribeAll registers h for every event type.
func (b *Bus) SubscribeAll(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.all = append(b.all, h)
}

// Publish hands e to every matching subscriber and returns without waiting for them.
func (b *Bus) Publish(ctx context.Context, e event.Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrBusClosed
	}

	handlers := make([]Handler, 0, len(b.handlers[e.Type()])+len(b.all))
	handlers = append(handlers, b.handlers[e.Type()]...)
	handlers = append(handlers, b.all...)

	detached := context.WithoutCancel(ctx)
	for _, h := range handlers {
		b.wg.Add(1)
		go b.process(detached, h, e)
	}
	return nil
}

func (b *Bus) process(ctx context.Context, h Handler, e event.Event) {
	defer b.wg.Done()

	for attempt := 0; ; attempt++ {
		err := b.invoke(ctx, h, e)
		if err == nil {
			return
		}
		if attempt >= b.maxRetries {
			log.Error().Err(err).
				Str("event", e.Type()).
				Int("campaign_id", e.Campaign()).
				Int("attempts", attempt+1).
				Msg("event handler permanently failed")
			return
		}
		log.Warn().Err(err).
			Str("event", e.Type()).
			Int("attempt", attempt+1).
			Int("max_retries", b.maxRetries).
			Msg("event handler failed, retrying")
		time.Sleep(time.Duration(attempt+1) * b.backoff)
	}
}

func (b *Bus) invoke(ctx context.Context, h Handler, e event.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("event", e.Type()).Msg("event handler panicked")
			err = nil
		}
	}()
	return h(ctx, e)
}

// Close rejects further events and waits for in-flight handlers to finish.
func (b *Bus) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	b.wg.Wait()
}

var _ event.Publisher = (*Bus)(nil)
