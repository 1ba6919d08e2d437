package bus

import (
	"context"
	"sync"

	"github.com/yungbote/notebook-backend/internal/realtime"
)

// localBus is the single-replica fallback used when redis is not
// configured: publishes loop straight back to the local forwarders.
type localBus struct {
	mu        sync.RWMutex
	listeners []func(realtime.SSEMessage)
	closed    bool
}

func NewLocalBus() Bus { return &localBus{} }

func (b *localBus) Publish(_ context.Context, msg realtime.SSEMessage) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil
	}
	for _, fn := range b.listeners {
		fn(msg)
	}
	return nil
}

func (b *localBus) StartForwarder(_ context.Context, onMsg func(m realtime.SSEMessage)) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = append(b.listeners, onMsg)
	return nil
}

func (b *localBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.listeners = nil
	return nil
}
