package alert

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

// Discord embed colors per severity.
const (
	colorInfo     = 0x3498db
	colorWarning  = 0xf1c40f
	colorCritical = 0xe74c3c
)

// WebhookSink posts alerts to a Discord-compatible webhook. Delivery
// failures are logged and swallowed so alerting can never stall the
// pipeline.
type WebhookSink struct {
	webhookURL string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewWebhookSink creates a webhook-backed sink.
func NewWebhookSink(webhookURL string, logger *zap.Logger) *WebhookSink {
	return &WebhookSink{
		webhookURL: webhookURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// Notify posts the event as a webhook embed.
func (s *WebhookSink) Notify(ctx context.Context, ev Event) {
	if err := s.post(ctx, ev); err != nil {
		AlertDeliveryErrorsTotal.Inc()
		s.logger.Warn("alert-delivery-failed",
			zap.String("title", ev.Title),
			zap.Error(err))
		return
	}
	AlertsSentTotal.Inc()
}

func (s *WebhookSink) post(ctx context.Context, ev Event) error {
	color := colorInfo
	switch ev.Severity {
	case SeverityWarning:
		color = colorWarning
	case SeverityCritical:
		color = colorCritical
	}

	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}

	payload := map[string]any{
		"embeds": []map[string]any{
			{
				"title":       ev.Title,
				"description": ev.Message,
				"color":       color,
				"footer": map[string]string{
					"text": "polysentry",
				},
				"timestamp": at.Format(time.RFC3339),
			},
		},
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewBuffer(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
