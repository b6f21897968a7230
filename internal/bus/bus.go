// Package bus provides a minimal in-process publish/subscribe broker. It
// decouples the gate from any specific host transport: producers publish to
// a topic and every subscribed handler receives the payload, fire-and-forget.
package bus

import (
	"sync"

	"github.com/developingchet/sessiongate/internal/metrics"
)

// Handler receives a published payload. Handlers run on their own goroutine
// and must not assume ordering across topics.
type Handler func(payload any)

// Bus is a topic-keyed broadcast broker safe for concurrent use.
type Bus struct {
	mu   sync.RWMutex
	subs map[string][]Handler
}

// New returns an empty Bus.
func New() *Bus {
	return &Bus{subs: make(map[string][]Handler)}
}

// Subscribe registers h for every future publish on topic.
func (b *Bus) Subscribe(topic string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[topic] = append(b.subs[topic], h)
}

// Publish delivers payload to every subscriber of topic. Delivery is
// asynchronous; there is no acknowledgement and no error surface.
func (b *Bus) Publish(topic string, payload any) {
	b.mu.RLock()
	handlers := b.subs[topic]
	b.mu.RUnlock()

	metrics.BusPublished.WithLabelValues(topic).Inc()
	for _, h := range handlers {
		go h(payload)
	}
}

// PublishSync delivers payload to every subscriber on the caller's
// goroutine, in subscription order. Used by transports that need the
// handler's side effects to complete before responding.
func (b *Bus) PublishSync(topic string, payload any) {
	b.mu.RLock()
	handlers := b.subs[topic]
	b.mu.RUnlock()

	metrics.BusPublished.WithLabelValues(topic).Inc()
	for _, h := range handlers {
		h(payload)
	}
}
