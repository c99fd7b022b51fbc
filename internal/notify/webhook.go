// Package notify posts render summaries to a configured webhook.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"

	"github.com/gifscribe/gifscribe-agent/internal/logging"
	"github.com/gifscribe/gifscribe-agent/internal/pipeline"
)

const (
	EventRenderCompleted = "render.completed"
	EventRenderFailed    = "render.failed"
)

// WebhookError represents a non-2xx response from the webhook endpoint.
type WebhookError struct {
	StatusCode int
	Body       string
}

func (e *WebhookError) Error() string {
	return fmt.Sprintf("webhook failed: HTTP %d: %s", e.StatusCode, e.Body)
}

// IsRetryable returns true for server errors (5xx) and 429.
// Other client errors are considered permanent.
func (e *WebhookError) IsRetryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// Event is the JSON body delivered to the webhook.
type Event struct {
	ID     string           `json:"id"`
	Event  string           `json:"event"`
	SentAt time.Time        `json:"sent_at"`
	Render pipeline.Summary `json:"render"`
}

type WebhookClient struct {
	url        string
	token      string
	httpClient *http.Client
	logger     *slog.Logger

	maxTries uint
	interval time.Duration

	wg sync.WaitGroup
}

func NewWebhookClient(url, token string, logger *slog.Logger) *WebhookClient {
	if logger == nil {
		logger = logging.Discard()
	}
	return &WebhookClient{
		url:   url,
		token: token,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		logger:   logging.WithComponent(logger, "notify"),
		maxTries: 3,
		interval: time.Second,
	}
}

// Notify delivers one event. It does not retry.
func (c *WebhookClient) Notify(ctx context.Context, s pipeline.Summary) error {
	ev := Event{
		ID:     uuid.NewString(),
		Event:  EventRenderCompleted,
		SentAt: time.Now().UTC(),
		Render: s,
	}
	if s.Failed {
		ev.Event = EventRenderFailed
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal webhook event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Gifscribe-Event", ev.Event)
	req.Header.Set("X-Gifscribe-Delivery", ev.ID)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		c.logger.Info("webhook delivered",
			"event", ev.Event,
			"render_id", s.RenderID,
			"status", resp.StatusCode,
		)
		return nil
	}
	return &WebhookError{StatusCode: resp.StatusCode, Body: string(respBody)}
}

// Deliver retries Notify on network errors and retryable statuses.
func (c *WebhookClient) Deliver(ctx context.Context, s pipeline.Summary) error {
	operation := func() (struct{}, error) {
		err := c.Notify(ctx, s)
		if err == nil {
			return struct{}{}, nil
		}
		if whErr, ok := err.(*WebhookError); ok && !whErr.IsRetryable() {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.interval
	_, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(c.maxTries),
		backoff.WithMaxElapsedTime(time.Minute),
	)
	return err
}

// Hook returns a completion hook that delivers in the background so the
// render response is not held up by the webhook.
func (c *WebhookClient) Hook() func(pipeline.Summary) {
	return func(s pipeline.Summary) {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()
			if err := c.Deliver(ctx, s); err != nil {
				c.logger.Warn("webhook delivery failed",
					"render_id", s.RenderID,
					"url", logging.SanitizeURL(c.url),
					"error", err,
				)
			}
		}()
	}
}

// Wait blocks until background deliveries have finished.
func (c *WebhookClient) Wait() {
	c.wg.Wait()
}
