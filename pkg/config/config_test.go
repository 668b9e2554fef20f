package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueFromEnv_Defaults(t *testing.T) {
	cfg, err := QueueFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "nats://127.0.0.1:4222", cfg.URL)
	assert.Equal(t, "TARKA", cfg.Stream)
	assert.Equal(t, "tarka.alerts", cfg.Subject)
	assert.Equal(t, "WORKERS", cfg.Durable)
	assert.Equal(t, 5, cfg.MaxDeliver)
	assert.Equal(t, 1800*time.Second, cfg.AckWait)
	assert.Equal(t, "tarka.dlq", cfg.DLQSubject)
	assert.Equal(t, time.Hour, cfg.DuplicateWindow)
}

func TestQueueFromEnv_Backoff(t *testing.T) {
	t.Setenv("JETSTREAM_BACKOFF_SECONDS", "5, 30, 120")
	cfg, err := QueueFromEnv()
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{5 * time.Second, 30 * time.Second, 120 * time.Second}, cfg.Backoff)
}

func TestQueueFromEnv_InvalidBackoff(t *testing.T) {
	t.Setenv("JETSTREAM_BACKOFF_SECONDS", "5,nope")
	_, err := QueueFromEnv()
	assert.Error(t, err)
}

func TestWorkerFromEnv_Bounds(t *testing.T) {
	t.Setenv("WORKER_CONCURRENCY", "0")
	cfg := WorkerFromEnv()
	assert.Equal(t, 1, cfg.Concurrency, "concurrency is floored at 1")
}

func TestIngestConfig_Allows(t *testing.T) {
	cfg := DefaultIngestConfig()
	assert.True(t, cfg.Allows("Anything"), "empty allowlist allows all")

	cfg.Allowlist = []string{"KubeJobFailed"}
	assert.True(t, cfg.Allows("KubeJobFailed"))
	assert.False(t, cfg.Allows("HighErrorRate"))
}

func TestIngestConfig_TTLFor(t *testing.T) {
	cfg := DefaultIngestConfig()
	assert.Equal(t, time.Hour, cfg.TTLFor(false))
	assert.Equal(t, 2*time.Hour, cfg.TTLFor(true))
}
