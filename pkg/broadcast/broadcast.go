// Package broadcast carries session signals between execution contexts that
// share a persisted store. There is one topic and, today, one message kind.
// Delivery is best-effort and unordered with respect to other contexts'
// local state changes.
package broadcast

import (
	"context"
	"sync"
)

// DefaultTopic is the channel name every session context listens on.
const DefaultTopic = "auth"

// KindSignOut asks every other context to drop its session.
const KindSignOut = "signOut"

// Message is a signal published on the topic. Origin identifies the
// publishing execution context so it can ignore its own echo.
type Message struct {
	Kind   string `json:"kind"`
	Origin string `json:"origin"`
}

// Handler receives messages. It must not block for long.
type Handler func(Message)

// Channel is a pub/sub topic shared by execution contexts.
type Channel interface {
	Publish(ctx context.Context, msg Message) error

	// Subscribe registers fn and returns a function that removes it.
	Subscribe(ctx context.Context, fn Handler) (cancel func(), err error)
}

// Hub is an in-process Channel. Publish delivers synchronously to every
// current subscriber, outside the hub's lock, so handlers may publish or
// unsubscribe themselves.
type Hub struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]Handler
}

var _ Channel = (*Hub)(nil)

func NewHub() *Hub {
	return &Hub{subs: make(map[int]Handler)}
}

func (h *Hub) Publish(_ context.Context, msg Message) error {
	h.mu.Lock()
	handlers := make([]Handler, 0, len(h.subs))
	for _, fn := range h.subs {
		handlers = append(handlers, fn)
	}
	h.mu.Unlock()

	for _, fn := range handlers {
		fn(msg)
	}
	return nil
}

func (h *Hub) Subscribe(_ context.Context, fn Handler) (func(), error) {
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = fn
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
		})
	}, nil
}

// Len reports the number of live subscriptions.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
