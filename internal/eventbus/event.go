package eventbus

import "time"

type EventType string

const (
	EventTaskOverdue         EventType = "task_overdue"
	EventTaskAlarm           EventType = "task_alarm"
	EventOverdueUpdateFailed EventType = "overdue_update_failed"
	EventTasksRefreshed      EventType = "tasks_refreshed"
)

type Event struct {
	ID         string            `json:"id"`
	Type       EventType         `json:"type"`
	ResourceID string            `json:"resource_id,omitempty"`
	Title      string            `json:"title,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}
