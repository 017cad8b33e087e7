package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

var severityColor = map[Severity]int{
	SeverityInfo:     3447003,  // blue
	SeverityNormal:   3066993,  // green
	SeverityWarning:  15844367, // yellow
	SeverityCritical: 15158332, // red
	SeverityResolved: 3066993,  // green
}

// WebhookSink posts Discord-compatible embeds to an https:// URL
// (spec.md §9, grounded on the original's requests.post payload shape).
type WebhookSink struct {
	URL    string
	client *http.Client
}

// NewWebhookSink builds a sink bound to a single https:// URL.
func NewWebhookSink(url string, timeout time.Duration) *WebhookSink {
	return &WebhookSink{URL: url, client: &http.Client{Timeout: timeout}}
}

type embedPayload struct {
	Embeds []embed `json:"embeds"`
}

type embed struct {
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Color       int          `json:"color"`
	Footer      embedFooter  `json:"footer"`
	Timestamp   string       `json:"timestamp"`
}

type embedFooter struct {
	Text string `json:"text"`
}

// Send posts one message as a Discord embed.
func (w *WebhookSink) Send(ctx context.Context, title, avatarURL string, msg Message) error {
	color, ok := severityColor[msg.Severity]
	if !ok {
		color = severityColor[SeverityNormal]
	}
	if title == "" {
		title = "UPS Monitor Alert"
	}
	payload := embedPayload{Embeds: []embed{{
		Title:       title,
		Description: msg.Body,
		Color:       color,
		Footer:      embedFooter{Text: msg.CreatedAt.Format("2006-01-02 15:04:05 MST")},
		Timestamp:   msg.CreatedAt.UTC().Format("2006-01-02T15:04:05.000Z"),
	}}}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook responded with status %d", resp.StatusCode)
	}
	return nil
}
