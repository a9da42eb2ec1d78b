package events

import (
	"context"
	"log"
	"runtime/debug"
	"sync"

	"github.com/bundlebooth/bdb-3.0-sub000/internal/observability"
)

// LocalBus dispatches synchronously to in-process subscribers.
type LocalBus struct {
	mu     sync.RWMutex
	subs   map[string]map[uint64]Handler
	nextID uint64
}

// NewLocalBus returns an empty LocalBus.
func NewLocalBus() *LocalBus {
	return &LocalBus{subs: make(map[string]map[uint64]Handler)}
}

// Publish delivers e to the subscribers registered at the time of the call.
func (b *LocalBus) Publish(ctx context.Context, e Event) error {
	observability.BusEvents.WithLabelValues(e.Name, "local").Inc()
	b.dispatch(ctx, e)
	return nil
}

func (b *LocalBus) dispatch(ctx context.Context, e Event) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subs[e.Name])+len(b.subs[Wildcard]))
	for _, h := range b.subs[e.Name] {
		handlers = append(handlers, h)
	}
	for _, h := range b.subs[Wildcard] {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("PANIC in %s handler: %v\n%s", e.Name, r, debug.Stack())
				}
			}()
			h(ctx, e)
		}()
	}
}

// Subscribe registers h for name (or Wildcard) until unsubscribe is called.
func (b *LocalBus) Subscribe(name string, h Handler) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	m, ok := b.subs[name]
	if !ok {
		m = make(map[uint64]Handler)
		b.subs[name] = m
	}
	m[id] = h
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs[name], id)
			if len(b.subs[name]) == 0 {
				delete(b.subs, name)
			}
			b.mu.Unlock()
		})
	}
}
