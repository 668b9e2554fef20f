package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarkyaio/tarka/pkg/ingest"
	"github.com/tarkyaio/tarka/pkg/models"
)

type stubProcessor struct {
	stats    models.IngestStats
	err      error
	payloads []*ingest.WebhookPayload
	window   string
}

func (s *stubProcessor) Process(_ context.Context, payload *ingest.WebhookPayload, window string) (models.IngestStats, error) {
	s.payloads = append(s.payloads, payload)
	s.window = window
	return s.stats, s.err
}

type stubQueue struct{ connected bool }

func (s stubQueue) IsConnected() bool { return s.connected }

const webhookBody = `{
	"status": "firing",
	"alerts": [
		{
			"status": "firing",
			"labels": {"alertname": "KubernetesPodCrashLooping", "namespace": "payments", "pod": "api-1"},
			"fingerprint": "abc123"
		}
	]
}`

func TestWebhook_ReturnsStats(t *testing.T) {
	proc := &stubProcessor{stats: models.IngestStats{Received: 1, ProcessedFiring: 1, StoredNew: 1}}
	srv := NewServer(proc, stubQueue{connected: true}, "15m", slog.Default())

	req := httptest.NewRequest(http.MethodPost, "/webhook/alertmanager", strings.NewReader(webhookBody))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var stats models.IngestStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.StoredNew)
	require.Len(t, proc.payloads, 1)
	assert.Equal(t, "firing", proc.payloads[0].Status)
	assert.Equal(t, "15m", proc.window)
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}

func TestWebhook_EnqueueFailureIs503(t *testing.T) {
	proc := &stubProcessor{err: errors.New("nats down")}
	srv := NewServer(proc, stubQueue{connected: true}, "15m", slog.Default())

	req := httptest.NewRequest(http.MethodPost, "/webhook/alertmanager", strings.NewReader(webhookBody))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code, "Alertmanager must retry the delivery")
}

func TestWebhook_BadPayloadIs400(t *testing.T) {
	srv := NewServer(&stubProcessor{}, stubQueue{connected: true}, "15m", slog.Default())

	req := httptest.NewRequest(http.MethodPost, "/webhook/alertmanager", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealth(t *testing.T) {
	t.Run("healthy when queue connected", func(t *testing.T) {
		srv := NewServer(&stubProcessor{}, stubQueue{connected: true}, "15m", slog.Default())
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("unhealthy when queue disconnected", func(t *testing.T) {
		srv := NewServer(&stubProcessor{}, stubQueue{connected: false}, "15m", slog.Default())
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}
