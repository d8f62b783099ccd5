package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Shivanand-hulikatti/course-seat-watcher/internal/model"
)

// maxContentLength is Discord's message content limit.
const maxContentLength = 2000

// AllowedMentions restricts which mentions in the content ping anyone.
type AllowedMentions struct {
	Parse []string `json:"parse"`
}

// WebhookPayload is the body of a Discord webhook execution.
type WebhookPayload struct {
	Content         string          `json:"content"`
	Username        string          `json:"username,omitempty"`
	AllowedMentions AllowedMentions `json:"allowed_mentions"`
}

// Webhook posts notifications to a Discord channel webhook.
type Webhook struct {
	URL      string
	Username string
	Client   *http.Client
	Timeout  time.Duration
}

// NewWebhook constructs a Webhook with a 30 second timeout.
func NewWebhook(url, username string) *Webhook {
	return &Webhook{
		URL:      url,
		Username: username,
		Client:   http.DefaultClient,
		Timeout:  30 * time.Second,
	}
}

// Contents renders n as one or more message bodies within Discord's content
// limit. The first body carries the text; mentions that do not fit spill into
// follow-up bodies so every subscriber is tagged.
func Contents(n model.Notification) []string {
	var parts []string
	cur := truncate(n.Text, maxContentLength)
	for _, m := range n.Mentions {
		m = truncate(m, maxContentLength)
		switch {
		case cur == "":
			cur = m
		case len(cur)+1+len(m) <= maxContentLength:
			cur += " " + m
		default:
			parts = append(parts, cur)
			cur = m
		}
	}
	return append(parts, cur)
}

// Deliver posts n to the webhook, one request per body from Contents.
func (w *Webhook) Deliver(ctx context.Context, n model.Notification) error {
	parts := Contents(n)
	for i, content := range parts {
		if err := w.post(ctx, content); err != nil {
			if len(parts) > 1 {
				return fmt.Errorf("part %d of %d: %w", i+1, len(parts), err)
			}
			return err
		}
	}
	slog.Debug("webhook delivered", "id", n.ID, "parts", len(parts), "url", truncate(w.URL, 50))
	return nil
}

func (w *Webhook) post(ctx context.Context, content string) error {
	payload := WebhookPayload{
		Content:         content,
		Username:        w.Username,
		AllowedMentions: AllowedMentions{Parse: []string{"users", "roles"}},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, w.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.Client.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook: %w", err)
	}
	defer resp.Body.Close()

	// Drain the body so the connection can be reused.
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	return nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen - 3
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
