package clicks

import (
	"errors"
	"sync"

	"github.com/edgelink/shortener/internal/model"
)

var (
	ErrBufferFull   = errors.New("click buffer is full")
	ErrBufferClosed = errors.New("click buffer is closed")
)

// Buffer is a channel-based event queue for non-blocking click ingestion.
// Send and Close are serialized, so every accepted event is in the channel
// before readers see the buffer closed.
type Buffer struct {
	mu       sync.RWMutex
	events   chan model.ClickEvent
	closed   chan struct{}
	isClosed bool
}

func NewBuffer(capacity int) *Buffer {
	return &Buffer{
		events: make(chan model.ClickEvent, capacity),
		closed: make(chan struct{}),
	}
}

// Send performs a non-blocking send.
func (b *Buffer) Send(event model.ClickEvent) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.isClosed {
		return ErrBufferClosed
	}

	select {
	case b.events <- event:
		return nil
	default:
		return ErrBufferFull
	}
}

// Len returns the number of events currently waiting.
func (b *Buffer) Len() int {
	return len(b.events)
}

// Close stops the buffer from accepting events. It is safe to call multiple
// times.
func (b *Buffer) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.isClosed {
		b.isClosed = true
		close(b.closed)
	}
}
