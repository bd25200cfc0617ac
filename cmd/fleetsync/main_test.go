package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/matanuska/fleetsync/services/diagnostics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	os.Setenv("ENVIRONMENT", "test")
	os.Setenv("LOG_LEVEL", "error")
	os.Exit(m.Run())
}

func TestRootCommands(t *testing.T) {
	root := newRootCmd()

	names := make([]string, 0)
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"serve", "probe", "send"}, names)

	send, _, err := root.Find([]string{"send"})
	require.NoError(t, err)
	assert.NotNil(t, send.Flags().Lookup("force"))
	assert.NotNil(t, send.Flags().Lookup("diagnostic"))
}

func TestSendRequiresFlags(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"send"})
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
}

func TestGuardTarget(t *testing.T) {
	tests := []struct {
		name    string
		target  string
		env     string
		force   bool
		wantErr bool
	}{
		{"localhost", "http://localhost:8080/importTripsWebhook", "development", false, false},
		{"loopback ip", "http://127.0.0.1:9000/x", "", false, false},
		{"remote host", "https://hooks.example.com/importTripsWebhook", "development", false, true},
		{"remote host forced", "https://hooks.example.com/importTripsWebhook", "development", true, false},
		{"production env", "http://localhost:8080/x", "production", false, true},
		{"production env forced", "http://localhost:8080/x", "production", true, false},
		{"not a url", "importTripsWebhook", "", true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := guardTarget(tt.target, tt.env, tt.force)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRunProbe(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		assert.Equal(t, "true", r.Header.Get(diagnostics.HeaderDiagnosticMode))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"imported":0,"skipped":0,"message":"diagnostic"}`))
	}))
	defer srv.Close()

	var out bytes.Buffer
	require.NoError(t, runProbe(context.Background(), &out, &probeOptions{baseURL: srv.URL + "/", timeout: defaultClientTimeout}))

	var body struct {
		Results map[string]diagnostics.Result `json:"results"`
		Report  diagnostics.Report            `json:"report"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &body))
	assert.Len(t, body.Results, len(diagnostics.Endpoints))
	assert.Equal(t, len(diagnostics.Endpoints), body.Report.TotalCalls)
	assert.Equal(t, float64(100), body.Report.SuccessRate)
	assert.Equal(t, int32(len(diagnostics.Endpoints)), atomic.LoadInt32(&hits))
}

func TestRunSend(t *testing.T) {
	payload := filepath.Join(t.TempDir(), "trips.json")
	require.NoError(t, os.WriteFile(payload, []byte(`{"trips":[{"loadRef":"LR-1"}]}`), 0o600))

	t.Run("retries until delivered", func(t *testing.T) {
		var calls int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			b, _ := io.ReadAll(r.Body)
			assert.JSONEq(t, `{"trips":[{"loadRef":"LR-1"}]}`, string(b))
			if atomic.AddInt32(&calls, 1) == 1 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		var out bytes.Buffer
		err := runSend(context.Background(), &out, &sendOptions{url: srv.URL + "/importTripsWebhook", file: payload, timeout: defaultClientTimeout})
		require.NoError(t, err)
		assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
		assert.Contains(t, out.String(), "(200)")
	})

	t.Run("diagnostic header", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "true", r.Header.Get(diagnostics.HeaderDiagnosticMode))
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		err := runSend(context.Background(), io.Discard, &sendOptions{url: srv.URL, file: payload, diagnostic: true, timeout: defaultClientTimeout})
		require.NoError(t, err)
	})

	t.Run("invalid json", func(t *testing.T) {
		bad := filepath.Join(t.TempDir(), "bad.json")
		require.NoError(t, os.WriteFile(bad, []byte(`{"trips":`), 0o600))

		err := runSend(context.Background(), io.Discard, &sendOptions{url: "http://localhost:1", file: bad})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "valid JSON")
	})

	t.Run("remote target refused", func(t *testing.T) {
		err := runSend(context.Background(), io.Discard, &sendOptions{url: "https://hooks.example.com/importTripsWebhook", file: payload})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "--force")
	})
}
