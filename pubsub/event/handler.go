package event

import (
	"context"

	"ticketing/entity"
)

type Notifier interface {
	Send(ctx context.Context, notification entity.Notification) error
}

type Handler struct {
	notifier Notifier
}

func NewHandler(notifier Notifier) Handler {
	if notifier == nil {
		panic("missing notifier")
	}

	return Handler{notifier: notifier}
}
