// Package webbook pulls rows from the spreadsheet-backed web book and feeds
// them to the import pipeline on a fixed interval.
package webbook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/matanuska/fleetsync/services"
	"go.uber.org/zap"
)

// DefaultMaxBytes caps a buffered web book response
const DefaultMaxBytes = 32 << 20

// Fetcher performs one GET per call. It never retries; the next tick does.
type Fetcher struct {
	client   *http.Client
	maxBytes int64
	logger   *zap.Logger
}

// NewFetcher creates a fetcher
func NewFetcher(client *http.Client, logger *zap.Logger) *Fetcher {
	return &Fetcher{
		client:   client,
		maxBytes: DefaultMaxBytes,
		logger:   logger,
	}
}

// Fetch downloads url and decodes a JSON array of rows
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]any, error) {
	if url == "" {
		return nil, services.ErrSourceDisabled
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, services.ErrUpstreamFetch.Wrapf(err, "failed to build web book request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, services.ErrUpstreamFetch.Wrapf(err, "failed to fetch from web book")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, services.ErrUpstreamFetch.Wrapf(nil, "web book returned %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, services.ErrUpstreamFetch.Wrapf(err, "failed to read web book response")
	}
	if int64(len(body)) > f.maxBytes {
		return nil, services.ErrUpstreamFetch.Wrapf(nil, "web book response exceeds %d bytes", f.maxBytes)
	}

	var rows []any
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, services.ErrUpstreamFetch.Wrapf(err, "web book response is not a JSON array")
	}

	f.logger.Debug("web book fetched",
		zap.String("url", url),
		zap.Int("rows", len(rows)),
		zap.Int("bytes", len(body)))
	return rows, nil
}
