package eventbus

import (
	"maps"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]chan *Event
	now         func() time.Time
}

func New() *Bus {
	return &Bus{
		subscribers: make(map[string]chan *Event),
		now:         time.Now,
	}
}

func (b *Bus) Subscribe(bufSize int) (string, <-chan *Event) {
	id := ulid.Make().String()
	ch := make(chan *Event, bufSize)
	b.mu.Lock()
	b.subscribers[id] = ch
	b.mu.Unlock()
	return id, ch
}

func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	if ch, ok := b.subscribers[id]; ok {
		close(ch)
		delete(b.subscribers, id)
	}
	b.mu.Unlock()
}

// Publish never blocks: subscribers whose buffer is full miss the event.
func (b *Bus) Publish(event *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
}

func (b *Bus) PublishNew(eventType EventType, resourceID, title string, metadata map[string]string) {
	b.Publish(&Event{
		ID:         ulid.Make().String(),
		Type:       eventType,
		ResourceID: resourceID,
		Title:      title,
		Metadata:   maps.Clone(metadata),
		CreatedAt:  b.now(),
	})
}
