// Package slack delivers run summaries to a Slack incoming webhook.
// Delivery is fire-and-forget: failures are reported to the caller for
// logging but must never fail a run.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
)

// Notifier posts prebuilt messages to a webhook. A Notifier with an
// empty webhook URL is valid and drops every message.
type Notifier struct {
	webhookURL string
	client     *http.Client
}

// Option configures the Notifier.
type Option func(*Notifier)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(n *Notifier) { n.client = hc }
}

// New creates a Notifier for the given webhook URL.
func New(webhookURL string, opts ...Option) *Notifier {
	n := &Notifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Notify posts a message with a bold header line. A disabled notifier
// returns nil without sending.
func (n *Notifier) Notify(ctx context.Context, header, message string) error {
	if n.webhookURL == "" {
		return nil
	}

	payload := map[string]string{
		"text": fmt.Sprintf("*%s*\n\n%s", header, message),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return eris.Wrap(err, "slack: marshal payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return eris.Wrap(err, "slack: build request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "slack: send")
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 512))

	if resp.StatusCode >= 300 {
		return eris.Errorf("slack: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
