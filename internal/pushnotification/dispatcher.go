package pushnotification

import (
	"context"
	"log/slog"

	"github.com/infinitech/infinitask/internal/eventbus"
)

type Dispatcher struct {
	sender *Sender
}

func NewDispatcher(sender *Sender) *Dispatcher {
	return &Dispatcher{sender: sender}
}

// Start forwards task alarms and overdue transitions read from ch to every
// push subscription until ctx is done.
func (d *Dispatcher) Start(ctx context.Context, ch <-chan *eventbus.Event) {
	slog.InfoContext(ctx, "push notification dispatcher started")
	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "push notification dispatcher stopped")
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			if payload := payloadFor(event); payload != nil {
				d.sender.SendToAll(ctx, payload)
			}
		}
	}
}

func payloadFor(event *eventbus.Event) *NotificationPayload {
	var title string
	switch event.Type {
	case eventbus.EventTaskAlarm:
		title = "Task due in 1 minute"
	case eventbus.EventTaskOverdue:
		title = "Task overdue"
	default:
		return nil
	}
	body := event.Title
	if body == "" {
		body = "Task " + event.ResourceID
	}
	return &NotificationPayload{
		Title: title,
		Body:  body,
		URL:   "/todolist",
		Tag:   string(event.Type) + ":" + event.ResourceID,
	}
}
