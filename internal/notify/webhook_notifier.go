package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// WebhookNotifier POSTs a terminal-state event as JSON to a configured
// URL. It is always wrapped in a CircuitBreakerNotifier so a dead or slow
// endpoint never backs up job completion.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

func NewWebhookNotifier(url string, client *http.Client) *WebhookNotifier {
	if client == nil {
		client = http.DefaultClient
	}
	return &WebhookNotifier{url: url, client: client}
}

type webhookBody struct {
	JobID    string `json:"job_id"`
	TaskName string `json:"task_name"`
	Status   string `json:"status"`
	Attempts int    `json:"attempts"`
	Error    string `json:"error,omitempty"`
}

func (n *WebhookNotifier) Notify(ctx context.Context, evt Event) error {
	body, err := json.Marshal(webhookBody{
		JobID:    evt.JobID,
		TaskName: evt.TaskName,
		Status:   string(evt.Status),
		Attempts: evt.Attempts,
		Error:    evt.Error,
	})
	if err != nil {
		return fmt.Errorf("notify: encode webhook body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notify: build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("notify: webhook request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("notify: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
