// Package notify delivers backup completion and failure events.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/miketropi/wp-backup/internal/backup"
	"github.com/miketropi/wp-backup/internal/platform"
)

// Webhook POSTs events as JSON.
type Webhook struct {
	url      string
	template string
	client   *http.Client
}

// NewWebhook creates a Webhook. template is "generic" or "slack".
func NewWebhook(url, template string) *Webhook {
	return &Webhook{
		url:      url,
		template: template,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

// Notify sends one event.
func (w *Webhook) Notify(ctx context.Context, ev backup.Event) error {
	var body []byte
	var err error

	switch w.template {
	case "slack":
		body, err = buildSlackPayload(ev)
	default:
		body, err = buildGenericPayload(ev)
	}
	if err != nil {
		return fmt.Errorf("build webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook POST to %s: %w", w.url, err)
	}
	defer func() { io.Copy(io.Discard, resp.Body); resp.Body.Close() }()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return fmt.Errorf("webhook returned %d", resp.StatusCode)
}

// GenericPayload is the default JSON body.
type GenericPayload struct {
	ID      string             `json:"id"`
	Event   string             `json:"event"`
	Backup  any                `json:"backup"`
	Context backup.StepContext `json:"context"`
}

func buildGenericPayload(ev backup.Event) ([]byte, error) {
	return json.Marshal(GenericPayload{
		ID:      platform.NewID(),
		Event:   ev.Kind,
		Backup:  ev.Job,
		Context: ev.Context,
	})
}

// buildSlackPayload creates a Slack Block Kit message.
func buildSlackPayload(ev backup.Event) ([]byte, error) {
	emoji := ":white_check_mark:"
	headline := "Backup completed"
	if ev.Kind == backup.EventFailed {
		emoji = ":rotating_light:"
		headline = "Backup failed"
	}

	fields := []map[string]interface{}{
		{"type": "mrkdwn", "text": fmt.Sprintf("*Status:* %s", ev.Job.Status)},
		{"type": "mrkdwn", "text": fmt.Sprintf("*Types:* %s", ev.Job.Types)},
		{"type": "mrkdwn", "text": fmt.Sprintf("*Size:* %s", ev.Job.Size)},
		{"type": "mrkdwn", "text": fmt.Sprintf("*Site:* %s", ev.Job.SiteURL)},
	}

	blocks := []map[string]interface{}{
		{
			"type": "header",
			"text": map[string]string{"type": "plain_text", "text": headline},
		},
		{
			"type": "section",
			"text": map[string]string{"type": "mrkdwn", "text": fmt.Sprintf("%s *%s*", emoji, ev.Job.Name)},
		},
		{
			"type":   "section",
			"fields": fields,
		},
	}

	if ev.Context.Error != "" {
		blocks = append(blocks, map[string]interface{}{
			"type": "section",
			"text": map[string]string{"type": "mrkdwn", "text": fmt.Sprintf("```%s```", ev.Context.Error)},
		})
	}

	return json.Marshal(map[string]interface{}{"blocks": blocks})
}
