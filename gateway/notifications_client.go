package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"ticketing/entity"
)

type NotificationsClient struct {
	baseURL string
	client  *http.Client
}

func NewNotificationsClient(baseURL string) NotificationsClient {
	if baseURL == "" {
		panic("missing notifications url")
	}

	return NotificationsClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  newHTTPClient(5 * time.Second),
	}
}

// Send delivers a notification. The service deduplicates on the idempotency key,
// so re-delivered events do not send twice.
func (c NotificationsClient) Send(ctx context.Context, notification entity.Notification) error {
	payload, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("could not marshal notification: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, c.baseURL+"/notifications", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("could not create notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", notification.IdempotencyKey)

	if _, err := do(ctx, c.client, req, nil); err != nil {
		return fmt.Errorf("could not send notification: %w", err)
	}

	return nil
}
