// Package alert pushes operator alerts for failed background work.
package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Alert describes one failure worth an operator's attention
type Alert struct {
	Source    string    `json:"source"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	ErrorType string    `json:"errorType,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Alerter delivers alerts
type Alerter interface {
	Alert(ctx context.Context, a Alert) error
}

// LogAlerter writes alerts to the log only
type LogAlerter struct {
	logger *zap.Logger
}

// NewLogAlerter creates a log-only alerter
func NewLogAlerter(logger *zap.Logger) *LogAlerter {
	return &LogAlerter{logger: logger}
}

// Alert implements Alerter
func (l *LogAlerter) Alert(_ context.Context, a Alert) error {
	l.logger.Error("alert",
		zap.String("source", a.Source),
		zap.String("title", a.Title),
		zap.String("message", a.Message),
		zap.String("error_type", a.ErrorType))
	return nil
}

// WebhookAlerter posts alerts as JSON and always logs them
type WebhookAlerter struct {
	url    string
	client *http.Client
	log    *LogAlerter
}

// NewWebhookAlerter creates an alerter posting to url
func NewWebhookAlerter(url string, client *http.Client, logger *zap.Logger) *WebhookAlerter {
	return &WebhookAlerter{
		url:    url,
		client: client,
		log:    NewLogAlerter(logger),
	}
}

// Alert implements Alerter
func (w *WebhookAlerter) Alert(ctx context.Context, a Alert) error {
	_ = w.log.Alert(ctx, a)

	body, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode alert: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build alert request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("post alert: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("alert webhook returned %s", resp.Status)
	}
	return nil
}

// New returns a WebhookAlerter when url is set, otherwise a LogAlerter
func New(url string, client *http.Client, logger *zap.Logger) Alerter {
	if url == "" {
		return NewLogAlerter(logger)
	}
	return NewWebhookAlerter(url, client, logger)
}
