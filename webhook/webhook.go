package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/use-agent/provas/models"
)

// Event types.
const (
	EventRunCompleted = "run.completed"
	EventRunFailed    = "run.failed"
)

// SignatureHeader carries "sha256=<hex>" of the body when a secret is set.
const SignatureHeader = "X-Provas-Signature"

// Event is the payload sent to webhook endpoints.
type Event struct {
	Type        string            `json:"type"`
	ExecutionID string            `json:"executionId"`
	Timestamp   int64             `json:"timestamp"`
	Report      *models.RunReport `json:"report"`
}

// RetryDelays are the waits before each redelivery attempt.
var RetryDelays = []time.Duration{1 * time.Second, 5 * time.Second, 30 * time.Second}

// NewRunEvent wraps a finished run report.
func NewRunEvent(r *models.RunReport) *Event {
	typ := EventRunCompleted
	if r.Error != "" {
		typ = EventRunFailed
	}
	return &Event{
		Type:        typ,
		ExecutionID: r.ExecutionID,
		Timestamp:   r.FinishedAt.Unix(),
		Report:      r,
	}
}

// Sign returns the signature header value for body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Deliver sends a webhook event synchronously.
// The request body is signed with HMAC-SHA256 if secret is non-empty.
func Deliver(ctx context.Context, url, secret string, event *Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("webhook: marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Provas-Webhook/1.0")

	if secret != "" {
		req.Header.Set(SignatureHeader, Sign(secret, body))
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: deliver: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook: endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

// DeliverWithRetry sends event, retrying after each of RetryDelays.
// It returns the last error once every attempt has failed.
func DeliverWithRetry(ctx context.Context, url, secret string, event *Event) error {
	delays := append([]time.Duration{0}, RetryDelays...)
	var err error
	for attempt, delay := range delays {
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		attemptCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err = Deliver(attemptCtx, url, secret, event)
		cancel()
		if err == nil {
			slog.Info("webhook delivered",
				"url", url,
				"event", event.Type,
				"executionId", event.ExecutionID,
				"attempt", attempt+1,
			)
			return nil
		}
		slog.Warn("webhook delivery failed",
			"url", url,
			"event", event.Type,
			"executionId", event.ExecutionID,
			"attempt", attempt+1,
			"error", err,
		)
	}
	slog.Error("webhook delivery exhausted all retries",
		"url", url,
		"event", event.Type,
		"executionId", event.ExecutionID,
	)
	return err
}
