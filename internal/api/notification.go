package api

import (
	"context"
	"net/http"
	"net/url"
)

type Notification struct {
	ID        string `json:"id"`
	Message   string `json:"message"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at,omitempty"`
}

func (n Notification) Unread() bool {
	return n.Status == "unread"
}

type notificationList struct {
	Notifications []notificationWire `json:"notifications"`
}

type notificationWire struct {
	ID        idString `json:"id"`
	Message   string   `json:"message"`
	Status    string   `json:"status"`
	CreatedAt string   `json:"created_at"`
}

func (c *Client) ListNotifications(ctx context.Context, ownerKey string) ([]Notification, error) {
	var list notificationList
	q := url.Values{"authToken": {ownerKey}}
	if err := c.do(ctx, http.MethodGet, "/notifications?"+q.Encode(), nil, &list); err != nil {
		return nil, err
	}
	out := make([]Notification, 0, len(list.Notifications))
	for _, n := range list.Notifications {
		out = append(out, Notification{
			ID:        string(n.ID),
			Message:   n.Message,
			Status:    n.Status,
			CreatedAt: n.CreatedAt,
		})
	}
	return out, nil
}

func (c *Client) MarkNotificationRead(ctx context.Context, id string) error {
	if id == "" {
		return errEmptyID()
	}
	return c.do(ctx, http.MethodPut, "/notifications/"+url.PathEscape(id)+"/markAsRead", nil, nil)
}

func (c *Client) MarkAllNotificationsRead(ctx context.Context, ownerKey string) error {
	q := url.Values{"authToken": {ownerKey}}
	return c.do(ctx, http.MethodPut, "/notifications/markAllAsRead?"+q.Encode(), nil, nil)
}
