package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/tarkyaio/tarka/pkg/config"
	"github.com/tarkyaio/tarka/pkg/dedup"
	"github.com/tarkyaio/tarka/pkg/models"
	"github.com/tarkyaio/tarka/pkg/storage"
	"github.com/tarkyaio/tarka/pkg/target"
)

// Enqueuer publishes one alert job with a queue-level idempotency id.
type Enqueuer interface {
	Enqueue(ctx context.Context, job models.AlertJob, msgID string) error
}

// Processor turns webhook payloads into queued investigations: normalize,
// drop resolved, allowlist, dedup, freshness-gate, enqueue.
type Processor struct {
	cfg    config.IngestConfig
	store  storage.ObjectStore
	queue  Enqueuer
	cache  *gocache.Cache
	logger *slog.Logger
	now    func() time.Time
}

// NewProcessor wires the ingestion path. All dependencies are required.
func NewProcessor(cfg config.IngestConfig, store storage.ObjectStore, queue Enqueuer, logger *slog.Logger) *Processor {
	if store == nil {
		panic("ingest.NewProcessor: store is nil")
	}
	if queue == nil {
		panic("ingest.NewProcessor: queue is nil")
	}
	if logger == nil {
		panic("ingest.NewProcessor: logger is nil")
	}
	return &Processor{
		cfg:    cfg,
		store:  store,
		queue:  queue,
		cache:  gocache.New(cfg.FreshnessTTL, 10*time.Minute),
		logger: logger.With("component", "ingest"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Process handles one webhook payload. A queue publish failure aborts and
// surfaces as an error so Alertmanager retries the delivery; everything
// else is counted and skipped.
func (p *Processor) Process(ctx context.Context, payload *WebhookPayload, window string) (models.IngestStats, error) {
	var stats models.IngestStats
	receivedAt := p.now()
	seenInBatch := map[string]bool{}

	for _, raw := range payload.Alerts {
		stats.Received++
		alert := Normalize(raw, payload.Status)

		if alert.NormalizedState == models.StateResolved {
			stats.SkippedResolved++
			continue
		}
		name := alert.AlertName()
		if !p.cfg.Allows(name) {
			stats.SkippedAllowlist++
			continue
		}
		stats.ProcessedFiring++

		ref := target.Parse(&alert)
		key := dedup.ForAlert(&alert, &ref, receivedAt)

		if seenInBatch[key.String()] {
			stats.SkippedAlreadyExists++
			continue
		}
		seenInBatch[key.String()] = true

		fresh, err := p.isFresh(ctx, key, receivedAt)
		if err != nil {
			// Head errors other than not-found already map to "proceed"
			// in the store; anything else is a transient storage fault.
			p.logger.Warn("freshness check failed, proceeding", "key", key.String(), "error", err)
			stats.Errors++
		}
		if fresh {
			stats.SkippedAlreadyExists++
			continue
		}

		job := models.AlertJob{
			Alert:        alert,
			TimeWindow:   window,
			ReceivedAt:   receivedAt.Format(time.RFC3339),
			ParentStatus: payload.Status,
		}
		if err := p.queue.Enqueue(ctx, job, key.MessageID()); err != nil {
			stats.Errors++
			return stats, fmt.Errorf("enqueue %s: %w", key.String(), err)
		}
		p.cache.Set(key.String(), receivedAt, p.cfg.TTLFor(key.Rollout))
		stats.StoredNew++

		p.logger.Info("alert queued",
			"alertname", name,
			"key", key.String(),
			"rollout_key", key.Rollout,
			"target_type", ref.TargetType)
	}
	return stats, nil
}

// isFresh reports whether a recent report already exists for the key,
// first from the in-process cache, then from a storage head.
func (p *Processor) isFresh(ctx context.Context, key dedup.Key, now time.Time) (bool, error) {
	ttl := p.cfg.TTLFor(key.Rollout)

	if v, ok := p.cache.Get(key.String()); ok {
		if at, ok := v.(time.Time); ok && now.Sub(at) < ttl {
			return true, nil
		}
	}

	exists, lastModified, err := p.store.Head(ctx, key.ObjectKey("md"))
	if err != nil {
		return false, err
	}
	if !exists || lastModified == nil {
		return false, nil
	}
	if now.Sub(*lastModified) < ttl {
		p.cache.Set(key.String(), *lastModified, ttl)
		return true, nil
	}
	return false, nil
}
