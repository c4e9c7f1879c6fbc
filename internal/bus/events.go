package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Event is anything with a name. Domain events satisfy it.
type Event interface {
	EventName() string
}

type EventHandler func(ctx context.Context, e Event) error

// Wildcard subscribes to every event.
const Wildcard = "*"

type subscription struct {
	id      uint64
	handler EventHandler
}

// EventBus delivers events synchronously to subscribers in the order they
// subscribed. Wildcard subscribers run after name-specific ones.
type EventBus struct {
	mu     sync.RWMutex
	subs   map[string][]subscription
	nextID uint64
}

func NewEventBus() *EventBus {
	return &EventBus{subs: make(map[string][]subscription)}
}

// Subscribe registers h for events called name (or Wildcard) and returns a
// function that removes the subscription.
func (b *EventBus) Subscribe(name string, h EventHandler) (unsubscribe func()) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[name] = append(b.subs[name], subscription{id: id, handler: h})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(name, id) })
	}
}

func (b *EventBus) remove(name string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.subs[name]
	for i, s := range list {
		if s.id == id {
			next := make([]subscription, 0, len(list)-1)
			next = append(next, list[:i]...)
			next = append(next, list[i+1:]...)
			if len(next) == 0 {
				delete(b.subs, name)
			} else {
				b.subs[name] = next
			}
			return
		}
	}
}

// Publish calls every subscriber, even when earlier ones fail, and returns
// their errors joined. A panicking subscriber is reported as an error.
func (b *EventBus) Publish(ctx context.Context, e Event) error {
	b.mu.RLock()
	named := b.subs[e.EventName()]
	wild := b.subs[Wildcard]
	handlers := make([]EventHandler, 0, len(named)+len(wild))
	for _, s := range named {
		handlers = append(handlers, s.handler)
	}
	for _, s := range wild {
		handlers = append(handlers, s.handler)
	}
	b.mu.RUnlock()

	var errs []error
	for _, h := range handlers {
		if err := safeCall(ctx, h, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SubscriberCount reports how many subscribers would receive an event called name.
func (b *EventBus) SubscriberCount(name string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := len(b.subs[name])
	if name != Wildcard {
		n += len(b.subs[Wildcard])
	}
	return n
}

func safeCall(ctx context.Context, h EventHandler, e Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("bus: subscriber panic on %s: %v", e.EventName(), r)
		}
	}()
	return h(ctx, e)
}
