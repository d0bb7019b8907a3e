package bus

import (
	"context"
	"sync"

	"github.com/yungbote/docsearch-backend/internal/realtime"
)

type Bus interface {
	Publish(ctx context.Context, ev realtime.Event) error
	StartForwarder(ctx context.Context, onEvent func(ev realtime.Event)) error
	Close() error
}

// MemoryBus delivers events to in-process subscribers synchronously.
type MemoryBus struct {
	mu   sync.RWMutex
	subs map[int]func(realtime.Event)
	next int
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: map[int]func(realtime.Event){}}
}

func (b *MemoryBus) Publish(ctx context.Context, ev realtime.Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, fn := range b.subs {
		fn(ev)
	}
	return nil
}

// StartForwarder registers onEvent until ctx is done.
func (b *MemoryBus) StartForwarder(ctx context.Context, onEvent func(ev realtime.Event)) error {
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = onEvent
	b.mu.Unlock()
	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}()
	return nil
}

func (b *MemoryBus) Close() error { return nil }
