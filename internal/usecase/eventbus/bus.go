// Package eventbus is the in-process publish/subscribe hub for turn events.
package eventbus

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"yinsen/internal/domain"
)

// defaultMailbox is the per-subscriber buffer. A subscriber that falls this
// far behind loses events rather than stalling the publisher.
const defaultMailbox = 64

type delivery struct {
	ctx   context.Context
	event domain.Event
}

type subscription struct {
	id      uint64
	typ     domain.EventType // empty for SubscribeAll
	handler domain.EventHandler
	mailbox chan delivery
	stop    chan struct{}
	once    sync.Once
}

// Bus is an in-process, goroutine-safe event bus. Each subscriber has its own
// goroutine and receives events in publish order.
type Bus struct {
	mu      sync.RWMutex
	subs    map[uint64]*subscription
	nextID  atomic.Uint64
	logger  *slog.Logger
	wg      sync.WaitGroup
	closed  atomic.Bool
	mailbox int
	dropped atomic.Uint64
}

// New creates an event bus.
func New(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		subs:    make(map[uint64]*subscription),
		logger:  logger,
		mailbox: defaultMailbox,
	}
}

// Publish queues event for every matching subscriber. Handlers run with a
// context that is not cancelled when the publisher's context ends.
func (b *Bus) Publish(ctx context.Context, event domain.Event) {
	if b.closed.Load() {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	d := delivery{ctx: context.WithoutCancel(ctx), event: event}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if sub.typ != "" && sub.typ != event.Type {
			continue
		}
		select {
		case sub.mailbox <- d:
		default:
			b.dropped.Add(1)
			b.logger.Warn("event dropped, subscriber too slow",
				"event", string(event.Type), "subscription", sub.id)
		}
	}
}

// PublishPayload marshals payload into an event of the given type.
func (b *Bus) PublishPayload(ctx context.Context, eventType domain.EventType, turnID string, payload any) {
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			b.logger.Warn("event payload dropped", "event", string(eventType), "error", err)
		} else {
			raw = data
		}
	}
	b.Publish(ctx, domain.Event{
		Type:      eventType,
		Timestamp: time.Now(),
		TurnID:    turnID,
		Payload:   raw,
	})
}

// Dropped returns how many deliveries were discarded because a mailbox was full.
func (b *Bus) Dropped() uint64 { return b.dropped.Load() }

// Subscribe registers a handler for a specific event type.
// Returns an unsubscribe function.
func (b *Bus) Subscribe(eventType domain.EventType, handler domain.EventHandler) func() {
	return b.add(eventType, handler)
}

// SubscribeAll registers a handler that receives every event.
// Returns an unsubscribe function.
func (b *Bus) SubscribeAll(handler domain.EventHandler) func() {
	return b.add("", handler)
}

func (b *Bus) add(eventType domain.EventType, handler domain.EventHandler) func() {
	sub := &subscription{
		id:      b.nextID.Add(1),
		typ:     eventType,
		handler: handler,
		mailbox: make(chan delivery, b.mailbox),
		stop:    make(chan struct{}),
	}

	b.mu.Lock()
	b.subs[sub.id] = sub
	b.mu.Unlock()

	b.wg.Add(1)
	go b.run(sub)

	return func() {
		b.mu.Lock()
		delete(b.subs, sub.id)
		b.mu.Unlock()
		sub.once.Do(func() { close(sub.stop) })
	}
}

// run delivers queued events until the subscription stops. On stop, events
// already queued are still delivered.
func (b *Bus) run(sub *subscription) {
	defer b.wg.Done()
	for {
		select {
		case d := <-sub.mailbox:
			b.deliver(sub, d)
		case <-sub.stop:
			for {
				select {
				case d := <-sub.mailbox:
					b.deliver(sub, d)
				default:
					return
				}
			}
		}
	}
}

func (b *Bus) deliver(sub *subscription, d delivery) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				"event", string(d.event.Type),
				"panic", r,
			)
		}
	}()
	sub.handler(d.ctx, d.event)
}

// Close prevents new publishes and waits for all in-flight handlers to finish.
// Close is idempotent and safe to call multiple times.
func (b *Bus) Close() {
	if b.closed.Swap(true) {
		return
	}
	b.mu.Lock()
	subs := make([]*subscription, 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		s.once.Do(func() { close(s.stop) })
	}
	b.wg.Wait()
}
