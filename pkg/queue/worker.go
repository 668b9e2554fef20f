package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/tarkyaio/tarka/pkg/config"
	"github.com/tarkyaio/tarka/pkg/models"
)

// Investigator runs one investigation to completion.
type Investigator interface {
	Investigate(ctx context.Context, job *models.AlertJob) error
}

// jobMsg is the slice of jetstream.Msg the worker consumes. jetstream.Msg
// satisfies it; tests substitute a fake.
type jobMsg interface {
	Data() []byte
	Ack() error
	Nak() error
	InProgress() error
	Metadata() (*jetstream.MsgMetadata, error)
}

// DLQPublisher publishes dead-letter payloads.
type DLQPublisher interface {
	PublishDLQ(ctx context.Context, payload models.DLQPayload) error
}

// dlqRawLimit bounds the raw bytes carried in a poison-message payload.
const dlqRawLimit = 4096

// Worker is the pull-consumer loop: fetch, bound concurrency with a
// semaphore, heartbeat the ack deadline while an investigation runs, and
// dispose of each message exactly once.
type Worker struct {
	consumer     jetstream.Consumer
	dlq          DLQPublisher
	investigator Investigator
	qcfg         *config.QueueConfig
	wcfg         config.WorkerConfig
	logger       *slog.Logger

	sem      chan struct{}
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewWorker wires a worker. All arguments are required.
func NewWorker(consumer jetstream.Consumer, dlq DLQPublisher, investigator Investigator, qcfg *config.QueueConfig, wcfg config.WorkerConfig, logger *slog.Logger) *Worker {
	if consumer == nil {
		panic("queue.NewWorker: consumer is nil")
	}
	if dlq == nil {
		panic("queue.NewWorker: dlq is nil")
	}
	if investigator == nil {
		panic("queue.NewWorker: investigator is nil")
	}
	if logger == nil {
		panic("queue.NewWorker: logger is nil")
	}
	return &Worker{
		consumer:     consumer,
		dlq:          dlq,
		investigator: investigator,
		qcfg:         qcfg,
		wcfg:         wcfg,
		logger:       logger.With("component", "queue.worker"),
		sem:          make(chan struct{}, wcfg.Concurrency),
		stopCh:       make(chan struct{}),
	}
}

// Run fetches and processes messages until ctx is cancelled or Stop is
// called. Fetch errors are logged and retried; they never kill the loop.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info("worker started",
		"concurrency", w.wcfg.Concurrency,
		"fetch_batch", w.wcfg.FetchBatch)
	for {
		select {
		case <-ctx.Done():
			w.drain()
			return
		case <-w.stopCh:
			w.drain()
			return
		default:
		}

		batch, err := w.consumer.Fetch(w.wcfg.FetchBatch, jetstream.FetchMaxWait(w.wcfg.FetchTimeout))
		if err != nil {
			if errors.Is(err, context.Canceled) {
				continue
			}
			w.logger.Warn("fetch failed", "error", err)
			time.Sleep(w.wcfg.FetchTimeout)
			continue
		}
		for msg := range batch.Messages() {
			select {
			case w.sem <- struct{}{}:
			case <-ctx.Done():
				_ = msg.Nak()
				continue
			}
			w.wg.Add(1)
			go func(m jetstream.Msg) {
				defer w.wg.Done()
				defer func() { <-w.sem }()
				w.process(ctx, m)
			}(msg)
		}
	}
}

// Stop requests shutdown and waits for in-flight investigations up to the
// graceful timeout.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		w.logger.Info("worker stopped")
	case <-time.After(w.wcfg.GracefulShutdownTimeout):
		w.logger.Warn("graceful shutdown timeout, abandoning in-flight work",
			"timeout", w.wcfg.GracefulShutdownTimeout)
	}
}

func (w *Worker) drain() {
	w.wg.Wait()
}

// process handles one message: heartbeat, investigate, dispose.
func (w *Worker) process(ctx context.Context, msg jetstream.Msg) {
	stopHeartbeat := w.startHeartbeat(msg)
	defer stopHeartbeat()
	w.handle(ctx, msg)
}

// startHeartbeat extends the ack deadline on a ticker while the
// investigation runs.
func (w *Worker) startHeartbeat(msg jobMsg) func() {
	done := make(chan struct{})
	var once sync.Once
	go func() {
		ticker := time.NewTicker(w.wcfg.InProgressInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := msg.InProgress(); err != nil {
					w.logger.Warn("heartbeat failed", "error", err)
				}
			}
		}
	}()
	return func() { once.Do(func() { close(done) }) }
}

// handle parses, runs, and disposes of one message. Exactly one of Ack or
// Nak is issued on every path. A panic inside the investigator naks so the
// message redelivers with its attempt count intact.
func (w *Worker) handle(ctx context.Context, msg jobMsg) {
	delivered, maxDeliver := w.deliveryState(msg)

	var job models.AlertJob
	if err := json.Unmarshal(msg.Data(), &job); err != nil {
		w.logger.Error("poison message, dead-lettering", "error", err)
		w.publishDLQ(ctx, models.DLQPayload{
			Kind:          models.DLQPoisonMessage,
			DeliveryCount: delivered,
			MaxDeliver:    maxDeliver,
			Error:         err.Error(),
			Raw:           truncateRaw(msg.Data()),
		})
		w.ack(msg)
		return
	}

	log := w.logger.With(
		"alertname", job.Alert.AlertName(),
		"delivery", delivered,
		"max_deliver", maxDeliver)

	err := w.investigate(ctx, &job)
	if err == nil {
		log.Info("investigation complete")
		w.ack(msg)
		return
	}

	if delivered >= maxDeliver {
		log.Error("retries exhausted, dead-lettering", "error", err)
		w.publishDLQ(ctx, models.DLQPayload{
			Kind:          models.DLQJobFailed,
			DeliveryCount: delivered,
			MaxDeliver:    maxDeliver,
			Error:         err.Error(),
			Job:           &job,
		})
		w.ack(msg)
		return
	}

	log.Warn("investigation failed, will redeliver", "error", err)
	if nakErr := msg.Nak(); nakErr != nil {
		log.Warn("nak failed", "error", nakErr)
	}
}

// investigate contains panics from the pipeline so one bad job cannot kill
// the worker.
func (w *Worker) investigate(ctx context.Context, job *models.AlertJob) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("investigation panic: %v", r)
		}
	}()
	return w.investigator.Investigate(ctx, job)
}

func (w *Worker) deliveryState(msg jobMsg) (delivered, maxDeliver int) {
	maxDeliver = w.qcfg.MaxDeliver
	delivered = 1
	if meta, err := msg.Metadata(); err == nil && meta != nil {
		delivered = int(meta.NumDelivered)
	}
	return delivered, maxDeliver
}

func (w *Worker) ack(msg jobMsg) {
	if err := msg.Ack(); err != nil {
		w.logger.Warn("ack failed", "error", err)
	}
}

func truncateRaw(b []byte) string {
	if len(b) > dlqRawLimit {
		b = b[:dlqRawLimit]
	}
	return string(b)
}

func (w *Worker) publishDLQ(ctx context.Context, payload models.DLQPayload) {
	if err := w.dlq.PublishDLQ(ctx, payload); err != nil {
		w.logger.Error("DLQ publish failed", "kind", payload.Kind, "error", err)
	}
}
