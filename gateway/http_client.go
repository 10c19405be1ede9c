package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport),
		Timeout:   timeout,
	}
}

// do sends req and decodes a successful JSON response into dst.
func do(ctx context.Context, client *http.Client, req *http.Request, dst any) (int, error) {
	req.Header.Set("Correlation-ID", log.CorrelationIDFromContext(ctx))

	resp, err := client.Do(req.WithContext(ctx))
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return resp.StatusCode, fmt.Errorf("unexpected status code for %s %s: %d: %s", req.Method, req.URL.Path, resp.StatusCode, body)
	}

	if dst == nil {
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return resp.StatusCode, fmt.Errorf("could not decode response of %s %s: %w", req.Method, req.URL.Path, err)
	}

	return resp.StatusCode, nil
}
