package observability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name    string
		level   string
		format  string
		enabled zapcore.Level
		wantErr bool
	}{
		{name: "json info", level: "info", format: "json", enabled: zapcore.InfoLevel},
		{name: "console debug", level: "DEBUG", format: "console", enabled: zapcore.DebugLevel},
		{name: "default format", level: "warn", format: "", enabled: zapcore.WarnLevel},
		{name: "bad level", level: "loud", format: "json", wantErr: true},
		{name: "bad format", level: "info", format: "xml", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := NewLogger(tt.level, tt.format)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, logger.Core().Enabled(tt.enabled))
			assert.False(t, logger.Core().Enabled(tt.enabled-1))
		})
	}
}

func TestRecorders_DoNotPanic(t *testing.T) {
	assert.NotPanics(t, func() {
		RecordRows("trips", "webhook", "imported", 2)
		RecordRows("trips", "webhook", "skipped", 0)
		ObserveImport("trips", "webhook", 15*time.Millisecond)
		RecordImportFailure("trips", "internal")
		RecordDiagnosticRequest()
		RecordFetch("trips", "error")
		RecordAlert("trips")
		RecordProbe("/importTripsWebhook", 200, time.Second)
	})
}
