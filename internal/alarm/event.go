package alarm

import (
	"context"

	"github.com/infinitech/infinitask/internal/eventbus"
	"github.com/infinitech/infinitask/internal/task"
)

type Publisher interface {
	PublishNew(eventType eventbus.EventType, resourceID, title string, metadata map[string]string)
}

// Event announces the alarm on the event bus, where web push picks it up.
type Event struct {
	pub Publisher
}

func NewEvent(pub Publisher) *Event {
	return &Event{pub: pub}
}

func (e *Event) Ring(_ context.Context, t task.Task) error {
	e.pub.PublishNew(eventbus.EventTaskAlarm, t.ID, t.Title, map[string]string{"deadline": t.Deadline})
	return nil
}
