package diagnostics

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"
)

// Send posts a JSON payload to url once. Non-2xx responses are errors.
func (p *Prober) Send(ctx context.Context, url string, payload []byte, diagnostic bool) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if diagnostic {
		req.Header.Set(HeaderDiagnosticMode, "true")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("send to %s: %w", url, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, fmt.Errorf("send to %s: %s", url, resp.Status)
	}
	p.logger.Info("payload delivered", zap.String("url", url), zap.Int("status", resp.StatusCode))
	return resp.StatusCode, nil
}
