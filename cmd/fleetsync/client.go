package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/matanuska/fleetsync/internal/observability"
	"github.com/matanuska/fleetsync/services/diagnostics"
	"github.com/matanuska/fleetsync/utils"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const defaultClientTimeout = 15 * time.Second

type probeOptions struct {
	baseURL string
	timeout time.Duration
}

func newProbeCmd() *cobra.Command {
	opts := &probeOptions{}
	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Probe the webhook endpoints of a running instance",
		Long: `Send a diagnostic request to every webhook endpoint under --base-url and
print the per-endpoint results with a health report as JSON.

Diagnostic requests are never written to the store.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProbe(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}
	cmd.Flags().StringVar(&opts.baseURL, "base-url", envOr("DIAGNOSTICS_BASE_URL", "http://localhost:8080"), "base URL of the instance to probe")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", defaultClientTimeout, "per-request timeout")
	return cmd
}

func runProbe(ctx context.Context, out io.Writer, opts *probeOptions) error {
	if opts.baseURL == "" {
		return fmt.Errorf("--base-url is required")
	}
	logger, err := cliLogger()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	prober := diagnostics.NewProber(utils.NewHTTPClient(opts.timeout), logger)
	results := prober.CheckAll(ctx, strings.TrimRight(opts.baseURL, "/"))

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]any{
		"results": results,
		"report":  prober.HealthReport(),
	})
}

type sendOptions struct {
	url        string
	file       string
	diagnostic bool
	force      bool
	timeout    time.Duration
}

func newSendCmd() *cobra.Command {
	opts := &sendOptions{}
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Replay a JSON payload against a webhook with retries",
		Long: `Post the JSON payload in --file to --url. Failed sends are retried three
times with a doubling backoff starting at one second.

Targets outside localhost, or any target while ENVIRONMENT=production,
are refused unless --force is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSend(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}
	cmd.Flags().StringVar(&opts.url, "url", "", "webhook URL to post to")
	cmd.Flags().StringVarP(&opts.file, "file", "f", "", "JSON payload file (- for stdin)")
	cmd.Flags().BoolVar(&opts.diagnostic, "diagnostic", false, "mark the request as diagnostic so nothing is written")
	cmd.Flags().BoolVar(&opts.force, "force", false, "allow production targets")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", defaultClientTimeout, "per-request timeout")
	_ = cmd.MarkFlagRequired("url")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func runSend(ctx context.Context, out io.Writer, opts *sendOptions) error {
	if err := guardTarget(opts.url, os.Getenv("ENVIRONMENT"), opts.force); err != nil {
		return err
	}

	payload, err := readPayload(opts.file)
	if err != nil {
		return err
	}
	if !json.Valid(payload) {
		return fmt.Errorf("%s does not contain valid JSON", opts.file)
	}

	logger, err := cliLogger()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	prober := diagnostics.NewProber(utils.NewHTTPClient(opts.timeout), logger)

	var status int
	err = diagnostics.Retry(ctx, func() error {
		code, sendErr := prober.Send(ctx, opts.url, payload, opts.diagnostic)
		status = code
		if sendErr != nil {
			logger.Warn("send attempt failed", zap.Error(sendErr))
		}
		return sendErr
	})
	if err != nil {
		return fmt.Errorf("send failed after %d attempts: %w", diagnostics.RetryAttempts, err)
	}

	_, err = fmt.Fprintf(out, "delivered to %s (%d)\n", opts.url, status)
	return err
}

// guardTarget refuses anything but a local target unless forced
func guardTarget(target, environment string, force bool) error {
	u, err := url.Parse(target)
	if err != nil || u.Host == "" {
		return fmt.Errorf("invalid url %q", target)
	}
	if force {
		return nil
	}
	if strings.EqualFold(environment, "production") {
		return fmt.Errorf("refusing to send while ENVIRONMENT=production, pass --force to override")
	}
	switch u.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return nil
	}
	return fmt.Errorf("refusing to send to non-local host %s, pass --force to override", u.Hostname())
}

func readPayload(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}
	return b, nil
}

func cliLogger() (*zap.Logger, error) {
	return observability.NewLogger(envOr("LOG_LEVEL", "warn"), envOr("LOG_FORMAT", "console"))
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
