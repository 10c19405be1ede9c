package gateway

import (
	"context"
	"sync"

	"ticketing/entity"
)

type NotificationsMock struct {
	mock sync.Mutex

	Sent map[string]entity.Notification
}

func (c *NotificationsMock) Send(ctx context.Context, notification entity.Notification) error {
	c.mock.Lock()
	defer c.mock.Unlock()

	if c.Sent == nil {
		c.Sent = make(map[string]entity.Notification)
	}

	c.Sent[notification.IdempotencyKey] = notification

	return nil
}

func (c *NotificationsMock) Notifications() map[string]entity.Notification {
	c.mock.Lock()
	defer c.mock.Unlock()

	sent := make(map[string]entity.Notification, len(c.Sent))
	for k, v := range c.Sent {
		sent[k] = v
	}
	return sent
}
