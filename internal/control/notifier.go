package control

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/GoSim-25-26J-441/co2sim-core/pkg/logger"
	"github.com/GoSim-25-26J-441/co2sim-core/pkg/utils"
)

// NotificationPayload is the JSON body posted to the callback URL when a run ends
type NotificationPayload struct {
	// DeliveryID is the same for every retry of one notification
	DeliveryID      string      `json:"delivery_id"`
	RunID           string      `json:"run_id"`
	Kind            Kind        `json:"kind"`
	Status          Status      `json:"status"`
	CreatedAtUnixMs int64       `json:"created_at_unix_ms"`
	StartedAtUnixMs int64       `json:"started_at_unix_ms,omitempty"`
	EndedAtUnixMs   int64       `json:"ended_at_unix_ms,omitempty"`
	Error           string      `json:"error,omitempty"`
	Summary         *RunSummary `json:"summary,omitempty"`
	Timestamp       int64       `json:"timestamp"`
}

// Notifier posts run completion callbacks with retries
type Notifier struct {
	callbackURL string
	httpClient  *http.Client
	maxRetries  int
	backoff     utils.BackoffStrategy
}

// NewNotifier creates a notifier for callbackURL. "{run_id}" in the URL is
// replaced with the run's id. A nil backoff retries after one second.
func NewNotifier(callbackURL string, maxRetries int, backoff utils.BackoffStrategy, timeout time.Duration) *Notifier {
	if backoff == nil {
		backoff = utils.ConstantBackoff{Delay: time.Second}
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Notifier{
		callbackURL: callbackURL,
		httpClient:  &http.Client{Timeout: timeout},
		maxRetries:  maxRetries,
		backoff:     backoff,
	}
}

// Enabled reports whether a callback URL is configured
func (n *Notifier) Enabled() bool {
	return n != nil && n.callbackURL != ""
}

// Notify sends the run's notification in the background
func (n *Notifier) Notify(rec RunRecord) {
	if !n.Enabled() {
		return
	}
	go func() {
		if err := n.Send(context.Background(), rec); err != nil {
			logger.Error("failed to send notification after retries",
				"run_id", rec.ID,
				"status", rec.Status,
				"max_retries", n.maxRetries,
				"error", err)
		}
	}()
}

// Send posts the notification, retrying non-2xx answers and transport errors
func (n *Notifier) Send(ctx context.Context, rec RunRecord) error {
	url := strings.ReplaceAll(n.callbackURL, "{run_id}", rec.ID)
	deliveryID := utils.GenerateID()
	body, err := json.Marshal(NotificationPayload{
		DeliveryID:      deliveryID,
		RunID:           rec.ID,
		Kind:            rec.Kind,
		Status:          rec.Status,
		CreatedAtUnixMs: rec.CreatedAtUnixMs,
		StartedAtUnixMs: rec.StartedAtUnixMs,
		EndedAtUnixMs:   rec.EndedAtUnixMs,
		Error:           rec.Error,
		Summary:         rec.Summary,
		Timestamp:       time.Now().UTC().UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= n.maxRetries; attempt++ {
		if attempt > 0 {
			delay := n.backoff.NextDelay(attempt - 1)
			logger.Debug("retrying notification", "run_id", rec.ID, "attempt", attempt, "delay", delay)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		lastErr = n.post(ctx, url, deliveryID, body)
		if lastErr == nil {
			logger.Info("notification sent", "run_id", rec.ID, "status", rec.Status)
			return nil
		}
		logger.Warn("notification attempt failed", "run_id", rec.ID, "attempt", attempt+1, "error", lastErr)
	}
	return lastErr
}

func (n *Notifier) post(ctx context.Context, url, deliveryID string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "co2sim-core/1.0")
	req.Header.Set("X-Delivery-ID", deliveryID)

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
	return fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
}
