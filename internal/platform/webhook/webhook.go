// Package webhook delivers signed event notifications to a single configured
// destination. Payloads are signed with HMAC-SHA256 so the receiver can
// verify the sender; failed deliveries are retried with increasing delays.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// SignPayload computes an HMAC-SHA256 signature of the payload using the
// given secret, returning the hex-encoded result.
func SignPayload(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature returns true when the hex-encoded signature matches the
// HMAC-SHA256 of payload under the given secret.
func VerifySignature(payload []byte, secret, signature string) bool {
	expected := SignPayload(payload, secret)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// NotifierOption configures a Notifier.
type NotifierOption func(*Notifier)

// WithHTTPClient overrides the default HTTP client used for deliveries.
func WithHTTPClient(c *http.Client) NotifierOption {
	return func(n *Notifier) { n.httpClient = c }
}

// WithRetryDelays overrides the delays between delivery attempts. The number
// of delays determines the number of retries.
func WithRetryDelays(delays []time.Duration) NotifierOption {
	return func(n *Notifier) { n.retryDelays = delays }
}

// Notifier posts signed JSON events to one destination URL. A nil Notifier
// is valid and drops every event, so callers can wire it unconditionally.
type Notifier struct {
	url         string
	secret      string
	httpClient  *http.Client
	retryDelays []time.Duration
	logger      zerolog.Logger
}

// NewNotifier creates a Notifier for the given destination. An empty URL
// returns nil, which disables delivery.
func NewNotifier(url, secret string, logger zerolog.Logger, opts ...NotifierOption) *Notifier {
	if url == "" {
		return nil
	}
	n := &Notifier{
		url:    url,
		secret: secret,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		retryDelays: []time.Duration{1 * time.Second, 30 * time.Second},
		logger:      logger.With().Str("component", "webhook").Logger(),
	}
	for _, o := range opts {
		o(n)
	}
	return n
}

// Enabled reports whether events will actually be delivered.
func (n *Notifier) Enabled() bool {
	return n != nil
}

// Notify marshals payload and posts it to the destination, retrying on
// failure. The last error is returned when every attempt fails.
func (n *Notifier) Notify(ctx context.Context, event string, payload any) error {
	if n == nil {
		return nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= len(n.retryDelays); attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(n.retryDelays[attempt-1]):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		lastErr = n.deliver(ctx, event, body)
		if lastErr == nil {
			return nil
		}
		n.logger.Warn().
			Err(lastErr).
			Str("event", event).
			Int("attempt", attempt+1).
			Msg("webhook delivery failed")
	}
	return fmt.Errorf("webhook delivery exhausted retries: %w", lastErr)
}

func (n *Notifier) deliver(ctx context.Context, event string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Event", event)
	req.Header.Set("X-Webhook-Timestamp", time.Now().UTC().Format(time.RFC3339))
	if n.secret != "" {
		req.Header.Set("X-Webhook-Signature", "sha256="+SignPayload(body, n.secret))
	}

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook endpoint returned status %d", resp.StatusCode)
	}
	return nil
}
