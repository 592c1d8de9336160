// Package webhooks delivers signed event notifications to an external
// HTTP endpoint. The only producer today is the usage meter, which
// fires an event when a tenant crosses its quota alert threshold.
package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/vberkoz/kvgate/pkg/observability"
)

// EventType identifies what happened.
type EventType string

const (
	EventUsageThreshold EventType = "usage.threshold"
)

// SignatureHeader carries the HMAC-SHA256 signature of the request body
// when the endpoint is configured with a shared secret.
const SignatureHeader = "X-KVGate-Signature"

// Event is the delivery payload.
type Event struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data"`
}

// Sender posts events to one endpoint, retrying transient failures with
// exponential backoff. Delivery is best effort: the caller decides
// whether a final failure matters.
type Sender struct {
	url    string
	secret string
	client *http.Client
	policy *RetryPolicy
	logger *observability.Logger
}

// NewSender creates a sender for one endpoint. An empty secret disables
// signing.
func NewSender(url, secret string, logger *observability.Logger) *Sender {
	return &Sender{
		url:    url,
		secret: secret,
		client: &http.Client{Timeout: 10 * time.Second},
		policy: NewRetryPolicy(DefaultRetryConfig()),
		logger: logger,
	}
}

// Send delivers one event, blocking through retries until success, the
// retry budget runs out, or the context is done.
func (s *Sender) Send(ctx context.Context, event *Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	var lastErr error
	for attempt := 1; ; attempt++ {
		lastErr = s.deliver(ctx, payload)
		if lastErr == nil {
			return nil
		}
		if !s.policy.ShouldRetry(attempt, lastErr) {
			break
		}

		s.logger.WithError(lastErr).WithFields(map[string]interface{}{
			"url":     s.url,
			"attempt": attempt,
		}).Warn("webhook delivery failed, retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.policy.NextRetryDelay(attempt)):
		}
	}
	return fmt.Errorf("webhook delivery to %s: %w", s.url, lastErr)
}

func (s *Sender) deliver(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.secret != "" {
		req.Header.Set(SignatureHeader, Sign(payload, s.secret))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("endpoint returned %d", resp.StatusCode)
	}
	return nil
}

// Sign computes the body signature a receiver should expect.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a received signature in constant time.
func VerifySignature(payload []byte, signature, secret string) bool {
	return hmac.Equal([]byte(Sign(payload, secret)), []byte(signature))
}
