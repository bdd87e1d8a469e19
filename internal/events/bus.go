package events

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

type Handler func(Event)

type subscription struct {
	id      uint64
	kind    Kind
	all     bool
	handler Handler
}

// Bus delivers events synchronously, in publish order, to the handlers
// registered at publish time. A panicking handler is logged and skipped.
type Bus struct {
	mu     sync.RWMutex
	nextId uint64
	subs   []subscription
}

func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers handler for one kind and returns its unsubscribe func.
func (b *Bus) Subscribe(kind Kind, handler Handler) func() {
	return b.add(subscription{kind: kind, handler: handler})
}

// SubscribeAll registers handler for every kind.
func (b *Bus) SubscribeAll(handler Handler) func() {
	return b.add(subscription{all: true, handler: handler})
}

func (b *Bus) add(sub subscription) func() {
	b.mu.Lock()
	b.nextId++
	sub.id = b.nextId
	b.subs = append(b.subs, sub)
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(sub.id) })
	}
}

func (b *Bus) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, sub := range b.subs {
		if sub.id == id {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return
		}
	}
}

func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	targets := make([]Handler, 0, len(b.subs))
	for _, sub := range b.subs {
		if sub.all || sub.kind == event.Kind() {
			targets = append(targets, sub.handler)
		}
	}
	b.mu.RUnlock()

	for _, handler := range targets {
		dispatch(handler, event)
	}
}

// SubscriberCount reports the handlers that would receive kind.
func (b *Bus) SubscriberCount(kind Kind) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := 0
	for _, sub := range b.subs {
		if sub.all || sub.kind == kind {
			n++
		}
	}
	return n
}

func dispatch(handler Handler, event Event) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("Event handler panicked",
				zap.String("kind", string(event.Kind())),
				zap.String("panic", fmt.Sprint(r)))
		}
	}()
	handler(event)
}
