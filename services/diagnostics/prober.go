// Package diagnostics probes the import webhooks with marked test traffic and
// keeps a short history of the results.
package diagnostics

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/matanuska/fleetsync/internal/observability"
	"github.com/matanuska/fleetsync/utils"
	"go.uber.org/zap"
)

const (
	// LogSize is how many results the prober keeps
	LogSize = 20

	// HeaderDiagnosticMode marks probe requests
	HeaderDiagnosticMode = "X-Diagnostic-Mode"

	// ConnectivityTestEvent is the eventType sent by probes
	ConnectivityTestEvent = "webhook.connectivity_test"
)

// Endpoints probed by CheckAll, relative to the base URL
var Endpoints = []string{
	"/importTripsWebhook",
	"/importDriverBehaviorWebhook",
}

// Result is the outcome of one probe
type Result struct {
	Timestamp    time.Time `json:"timestamp"`
	Success      bool      `json:"success"`
	StatusCode   int       `json:"statusCode,omitempty"`
	Endpoint     string    `json:"endpoint"`
	DurationMs   int64     `json:"duration"`
	ErrorDetails string    `json:"errorDetails,omitempty"`
	ResponseSize int       `json:"responseSize,omitempty"`
}

// Report summarizes the probe log
type Report struct {
	TotalCalls         int            `json:"totalCalls"`
	SuccessRate        float64        `json:"successRate"`
	AvgResponseTimeMs  float64        `json:"avgResponseTime"`
	FailuresByEndpoint map[string]int `json:"failuresByEndpoint"`
	Recommendations    []string       `json:"recommendations"`
}

// Prober sends diagnostic requests. Safe for concurrent use.
type Prober struct {
	client *http.Client
	logger *zap.Logger
	now    func() time.Time

	mu   sync.Mutex
	log  [LogSize]Result
	next int
	size int
}

// NewProber creates a prober
func NewProber(client *http.Client, logger *zap.Logger) *Prober {
	return &Prober{
		client: client,
		logger: logger,
		now:    time.Now,
	}
}

// TestEndpoint posts a connectivity test payload to url and records the result.
// Transport failures are reported in the result, never as an error.
func (p *Prober) TestEndpoint(ctx context.Context, url string) Result {
	start := p.now()
	res := Result{Endpoint: url}

	body, _ := json.Marshal(map[string]any{
		"eventType":      ConnectivityTestEvent,
		"timestamp":      start.UTC().Format(time.RFC3339Nano),
		"diagnosticMode": true,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		res.ErrorDetails = fmt.Sprintf("Network error: %v", err)
		return p.finish(res, start)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderDiagnosticMode, "true")

	resp, err := p.client.Do(req)
	if err != nil {
		res.ErrorDetails = fmt.Sprintf("Network error: %v", err)
		return p.finish(res, start)
	}
	defer resp.Body.Close()

	n, _ := io.Copy(io.Discard, io.LimitReader(resp.Body, utils.MaxBodyBytes))
	res.ResponseSize = int(n)
	res.StatusCode = resp.StatusCode
	res.Success = resp.StatusCode >= 200 && resp.StatusCode <= 299
	if !res.Success {
		res.ErrorDetails = fmt.Sprintf("HTTP error: %s", resp.Status)
	}
	return p.finish(res, start)
}

func (p *Prober) finish(res Result, start time.Time) Result {
	elapsed := p.now().Sub(start)
	res.Timestamp = p.now().UTC()
	res.DurationMs = elapsed.Milliseconds()

	observability.RecordProbe(res.Endpoint, res.StatusCode, elapsed)
	p.logger.Info("diagnostic probe recorded",
		zap.String("endpoint", res.Endpoint),
		zap.Bool("success", res.Success),
		zap.Int("status", res.StatusCode),
		zap.Int64("duration_ms", res.DurationMs))

	p.record(res)
	return res
}

func (p *Prober) record(res Result) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.log[p.next] = res
	p.next = (p.next + 1) % LogSize
	if p.size < LogSize {
		p.size++
	}
}

// Log returns the recorded results, oldest first
func (p *Prober) Log() []Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Result, 0, p.size)
	start := (p.next - p.size + LogSize) % LogSize
	for i := 0; i < p.size; i++ {
		out = append(out, p.log[(start+i)%LogSize])
	}
	return out
}

// CheckAll probes every import endpoint under baseURL in turn
func (p *Prober) CheckAll(ctx context.Context, baseURL string) map[string]Result {
	base := strings.TrimRight(baseURL, "/")
	results := make(map[string]Result, len(Endpoints))
	for _, ep := range Endpoints {
		if ctx.Err() != nil {
			break
		}
		results[ep] = p.TestEndpoint(ctx, base+ep)
	}
	return results
}

// HealthReport summarizes the log and suggests follow-ups
func (p *Prober) HealthReport() Report {
	entries := p.Log()
	report := Report{FailuresByEndpoint: map[string]int{}}

	if len(entries) == 0 {
		report.Recommendations = []string{"No webhook calls recorded yet. Run diagnostics first."}
		return report
	}

	var ok, forbidden, serverErr int
	var total int64
	for _, r := range entries {
		total += r.DurationMs
		if r.Success {
			ok++
		} else {
			report.FailuresByEndpoint[r.Endpoint]++
		}
		switch r.StatusCode {
		case http.StatusForbidden:
			forbidden++
		case http.StatusInternalServerError:
			serverErr++
		}
	}

	report.TotalCalls = len(entries)
	report.SuccessRate = float64(ok) / float64(len(entries)) * 100
	report.AvgResponseTimeMs = float64(total) / float64(len(entries))

	var recs []string
	if report.SuccessRate < 90 {
		recs = append(recs, "Webhook success rate is below 90%. Check network connectivity and authentication.")
	}
	if report.AvgResponseTimeMs > 2000 {
		recs = append(recs, "Average response time exceeds 2 seconds. Consider optimizing import execution time.")
	}
	if forbidden > 0 {
		recs = append(recs, "Received 403 Forbidden errors. Verify authentication credentials and permissions.")
	}
	if serverErr > 0 {
		recs = append(recs, "Received 500 Internal Server errors. Check service logs for exceptions.")
	}
	if len(recs) == 0 && report.SuccessRate > 98 {
		recs = append(recs, "Webhook system appears healthy. No immediate actions required.")
	}
	report.Recommendations = recs
	return report
}

// MissingFields returns the required fields that are absent or null in payload, sorted
func MissingFields(payload map[string]any, required ...string) []string {
	if len(required) == 0 {
		required = []string{"eventType", "timestamp"}
	}
	var missing []string
	for _, f := range required {
		if v, ok := payload[f]; !ok || v == nil {
			missing = append(missing, f)
		}
	}
	sort.Strings(missing)
	return missing
}
