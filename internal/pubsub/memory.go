package pubsub

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryPubsub is an in-process Pubsub implementation used in tests and
// single-process setups. Delivery is synchronous within Publish.
type MemoryPubsub struct {
	mu        sync.Mutex
	listeners map[string]map[uuid.UUID]Listener
}

func NewMemory() *MemoryPubsub {
	return &MemoryPubsub{
		listeners: make(map[string]map[uuid.UUID]Listener),
	}
}

func (m *MemoryPubsub) Subscribe(channel string, listener Listener) (cancel func(), err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	channelListeners, ok := m.listeners[channel]
	if !ok {
		channelListeners = make(map[uuid.UUID]Listener)
		m.listeners[channel] = channelListeners
	}

	id := uuid.New()
	channelListeners[id] = listener

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()

		delete(m.listeners[channel], id)
		if len(m.listeners[channel]) == 0 {
			delete(m.listeners, channel)
		}
	}, nil
}

func (m *MemoryPubsub) Publish(ctx context.Context, channel string, payload []byte) error {
	m.mu.Lock()
	listeners := make([]Listener, 0, len(m.listeners[channel]))
	for _, listener := range m.listeners[channel] {
		listeners = append(listeners, listener)
	}
	m.mu.Unlock()

	for _, listener := range listeners {
		listener(ctx, payload)
	}

	return nil
}

func (m *MemoryPubsub) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.listeners = make(map[string]map[uuid.UUID]Listener)
	return nil
}
