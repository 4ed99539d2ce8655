package domain

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"regportal.io/automation/internal/pkg/logger"
)

// EventHandler receives an engine event. Handlers run synchronously on the
// publishing goroutine and must not block for long.
type EventHandler func(ctx context.Context, event Event)

type subscription struct {
	id      uint64
	types   map[EventType]struct{}
	handler EventHandler
}

// EventBus is a fire-and-forget publish/subscribe channel for engine events.
type EventBus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   []subscription
}

// NewEventBus creates an EventBus with no subscribers.
func NewEventBus() *EventBus {
	return &EventBus{}
}

// Subscribe registers handler for the given event types, or for every event
// when none are given. The returned func removes the subscription and is safe
// to call more than once.
func (b *EventBus) Subscribe(handler EventHandler, types ...EventType) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := subscription{id: b.nextID, handler: handler}
	if len(types) > 0 {
		sub.types = make(map[EventType]struct{}, len(types))
		for _, t := range types {
			sub.types[t] = struct{}{}
		}
	}
	b.subs = append(b.subs, sub)

	id := sub.id
	var once sync.Once
	return func() {
		once.Do(func() { b.remove(id) })
	}
}

func (b *EventBus) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return
		}
	}
}

// Subscribers returns the current subscription count.
func (b *EventBus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Publish delivers event to every matching subscriber in registration order.
// A panicking handler is logged and skipped; the rest still run.
func (b *EventBus) Publish(ctx context.Context, event Event) {
	b.mu.RLock()
	subs := make([]subscription, 0, len(b.subs))
	for _, s := range b.subs {
		if s.types == nil {
			subs = append(subs, s)
			continue
		}
		if _, ok := s.types[event.Type]; ok {
			subs = append(subs, s)
		}
	}
	b.mu.RUnlock()

	for _, s := range subs {
		b.deliver(ctx, s, event)
	}
}

func (b *EventBus) deliver(ctx context.Context, s subscription, event Event) {
	defer func() {
		if p := recover(); p != nil {
			logger.Error("Event handler panicked",
				zap.String("event_type", string(event.Type)),
				zap.Any("panic", p),
			)
		}
	}()
	s.handler(ctx, event)
}
