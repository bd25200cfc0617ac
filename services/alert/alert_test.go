package alert

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestWebhookAlerter(t *testing.T) {
	var got Alert
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	a := New(srv.URL, srv.Client(), zap.NewNop())
	require.IsType(t, &WebhookAlerter{}, a)

	err := a.Alert(context.Background(), Alert{
		Source:    "webbook.trips",
		Title:     "scheduled import failed",
		Message:   "web book returned 503",
		ErrorType: "upstream",
		Timestamp: time.Now(),
	})
	require.NoError(t, err)
	assert.Equal(t, "webbook.trips", got.Source)
	assert.Equal(t, "upstream", got.ErrorType)
}

func TestWebhookAlerter_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewWebhookAlerter(srv.URL, srv.Client(), zap.NewNop()).Alert(context.Background(), Alert{Title: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestNew_FallsBackToLog(t *testing.T) {
	a := New("", http.DefaultClient, zap.NewNop())
	require.IsType(t, &LogAlerter{}, a)
	assert.NoError(t, a.Alert(context.Background(), Alert{Title: "x"}))
}
