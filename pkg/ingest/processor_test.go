package ingest

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tarkyaio/tarka/pkg/config"
	"github.com/tarkyaio/tarka/pkg/models"
)

type fakeStore struct {
	exists       bool
	lastModified *time.Time
	err          error
	headCalls    int
}

func (f *fakeStore) Head(_ context.Context, _ string) (bool, *time.Time, error) {
	f.headCalls++
	return f.exists, f.lastModified, f.err
}

func (f *fakeStore) PutMarkdown(_ context.Context, _, _ string) error { return nil }

func (f *fakeStore) PutJSON(_ context.Context, _ string, _ []byte) error { return nil }

type fakeQueue struct {
	jobs   []models.AlertJob
	msgIDs []string
	err    error
}

func (f *fakeQueue) Enqueue(_ context.Context, job models.AlertJob, msgID string) error {
	if f.err != nil {
		return f.err
	}
	f.jobs = append(f.jobs, job)
	f.msgIDs = append(f.msgIDs, msgID)
	return nil
}

func newTestProcessor(t *testing.T, store *fakeStore, queue *fakeQueue) *Processor {
	t.Helper()
	p := NewProcessor(config.DefaultIngestConfig(), store, queue, slog.Default())
	p.now = func() time.Time { return time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC) }
	return p
}

func crashloopAlert(pod string) WebhookAlert {
	return WebhookAlert{
		Status:      "firing",
		Fingerprint: "fp-" + pod,
		Labels: map[string]string{
			"alertname": "KubernetesPodCrashLooping",
			"namespace": "payments",
			"pod":       pod,
		},
		StartsAt: "2026-08-26T09:30:00Z",
	}
}

func TestProcess_DuplicateCopiesCollapseInBatch(t *testing.T) {
	store := &fakeStore{}
	queue := &fakeQueue{}
	p := newTestProcessor(t, store, queue)

	// Alertmanager redelivers: three identical copies in one batch.
	a := crashloopAlert("api-1")
	stats, err := p.Process(context.Background(), &WebhookPayload{
		Status: "firing",
		Alerts: []WebhookAlert{a, a, a},
	}, "1h")

	require.NoError(t, err)
	assert.Equal(t, 3, stats.Received)
	assert.Equal(t, 3, stats.ProcessedFiring)
	assert.Equal(t, 1, stats.StoredNew)
	assert.Equal(t, 2, stats.SkippedAlreadyExists)
	require.Len(t, queue.jobs, 1)
}

func TestProcess_ResolvedNeverInvestigated(t *testing.T) {
	store := &fakeStore{}
	queue := &fakeQueue{}
	p := newTestProcessor(t, store, queue)

	a := crashloopAlert("api-1")
	a.Status = "resolved"
	a.EndsAt = "2026-08-26T09:45:00Z"
	stats, err := p.Process(context.Background(), &WebhookPayload{
		Status: "firing",
		Alerts: []WebhookAlert{a},
	}, "1h")

	require.NoError(t, err)
	assert.Equal(t, 1, stats.SkippedResolved)
	assert.Zero(t, stats.ProcessedFiring)
	assert.Empty(t, queue.jobs)
	assert.Zero(t, store.headCalls, "resolved alerts skip the freshness gate entirely")
}

func TestProcess_PerAlertEndsAtWinsOverBatchStatus(t *testing.T) {
	store := &fakeStore{}
	queue := &fakeQueue{}
	p := newTestProcessor(t, store, queue)

	// Batch says firing; the alert carries a real resolution timestamp.
	a := crashloopAlert("api-1")
	a.Status = "firing"
	a.EndsAt = "2026-08-26T09:45:00Z"
	stats, err := p.Process(context.Background(), &WebhookPayload{
		Status: "firing",
		Alerts: []WebhookAlert{a},
	}, "1h")

	require.NoError(t, err)
	assert.Equal(t, 1, stats.SkippedResolved)
	assert.Empty(t, queue.jobs)
}

func TestProcess_ZeroEndsAtIsFiring(t *testing.T) {
	store := &fakeStore{}
	queue := &fakeQueue{}
	p := newTestProcessor(t, store, queue)

	a := crashloopAlert("api-1")
	a.EndsAt = "0001-01-01T00:00:00Z"
	stats, err := p.Process(context.Background(), &WebhookPayload{
		Status: "firing",
		Alerts: []WebhookAlert{a},
	}, "1h")

	require.NoError(t, err)
	assert.Equal(t, 1, stats.StoredNew)
}

func TestProcess_RolloutKeyCollapsesPodChurn(t *testing.T) {
	store := &fakeStore{}
	queue := &fakeQueue{}
	p := newTestProcessor(t, store, queue)

	// Two pods of the same deployment cycling during a bad rollout.
	podNotHealthy := func(pod string) WebhookAlert {
		return WebhookAlert{
			Status:      "firing",
			Fingerprint: "fp-" + pod,
			Labels: map[string]string{
				"alertname": "KubernetesPodNotHealthy",
				"namespace": "payments",
				"pod":       pod,
			},
		}
	}
	stats, err := p.Process(context.Background(), &WebhookPayload{
		Status: "firing",
		Alerts: []WebhookAlert{
			podNotHealthy("api-7f9c55d4b-x2v1z"),
			podNotHealthy("api-7f9c55d4b-q8r4t"),
		},
	}, "1h")

	require.NoError(t, err)
	assert.Equal(t, 1, stats.StoredNew)
	assert.Equal(t, 1, stats.SkippedAlreadyExists)
	require.Len(t, queue.jobs, 1)
}

func TestProcess_DifferentFingerprintsAreDistinct(t *testing.T) {
	store := &fakeStore{}
	queue := &fakeQueue{}
	p := newTestProcessor(t, store, queue)

	// Crashloop is not in the rollout set, so distinct pods stay distinct.
	stats, err := p.Process(context.Background(), &WebhookPayload{
		Status: "firing",
		Alerts: []WebhookAlert{crashloopAlert("api-1"), crashloopAlert("api-2")},
	}, "1h")

	require.NoError(t, err)
	assert.Equal(t, 2, stats.StoredNew)
	require.Len(t, queue.msgIDs, 2)
	assert.NotEqual(t, queue.msgIDs[0], queue.msgIDs[1])
}

func TestProcess_FreshnessGateSuppressesRecentReport(t *testing.T) {
	recent := time.Date(2026, 8, 26, 9, 50, 0, 0, time.UTC)
	store := &fakeStore{exists: true, lastModified: &recent}
	queue := &fakeQueue{}
	p := newTestProcessor(t, store, queue)

	stats, err := p.Process(context.Background(), &WebhookPayload{
		Status: "firing",
		Alerts: []WebhookAlert{crashloopAlert("api-1")},
	}, "1h")

	require.NoError(t, err)
	assert.Equal(t, 1, stats.SkippedAlreadyExists)
	assert.Zero(t, stats.StoredNew)
	assert.Empty(t, queue.jobs)
}

func TestProcess_StaleReportDoesNotSuppress(t *testing.T) {
	stale := time.Date(2026, 8, 26, 7, 0, 0, 0, time.UTC)
	store := &fakeStore{exists: true, lastModified: &stale}
	queue := &fakeQueue{}
	p := newTestProcessor(t, store, queue)

	stats, err := p.Process(context.Background(), &WebhookPayload{
		Status: "firing",
		Alerts: []WebhookAlert{crashloopAlert("api-1")},
	}, "1h")

	require.NoError(t, err)
	assert.Equal(t, 1, stats.StoredNew)
}

func TestProcess_CacheShortCircuitsStorageHead(t *testing.T) {
	store := &fakeStore{}
	queue := &fakeQueue{}
	p := newTestProcessor(t, store, queue)

	payload := &WebhookPayload{Status: "firing", Alerts: []WebhookAlert{crashloopAlert("api-1")}}
	_, err := p.Process(context.Background(), payload, "1h")
	require.NoError(t, err)
	headsAfterFirst := store.headCalls

	stats, err := p.Process(context.Background(), payload, "1h")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.SkippedAlreadyExists)
	assert.Equal(t, headsAfterFirst, store.headCalls, "cache hit avoids a second head")
}

func TestProcess_AllowlistFilters(t *testing.T) {
	store := &fakeStore{}
	queue := &fakeQueue{}
	cfg := config.DefaultIngestConfig()
	cfg.Allowlist = []string{"KubeJobFailed"}
	p := NewProcessor(cfg, store, queue, slog.Default())

	stats, err := p.Process(context.Background(), &WebhookPayload{
		Status: "firing",
		Alerts: []WebhookAlert{crashloopAlert("api-1")},
	}, "1h")

	require.NoError(t, err)
	assert.Equal(t, 1, stats.SkippedAllowlist)
	assert.Empty(t, queue.jobs)
}

func TestProcess_EnqueueFailureSurfaces(t *testing.T) {
	store := &fakeStore{}
	queue := &fakeQueue{err: errors.New("nats: connection closed")}
	p := newTestProcessor(t, store, queue)

	stats, err := p.Process(context.Background(), &WebhookPayload{
		Status: "firing",
		Alerts: []WebhookAlert{crashloopAlert("api-1")},
	}, "1h")

	require.Error(t, err)
	assert.Equal(t, 1, stats.Errors)
	assert.Zero(t, stats.StoredNew)
}
