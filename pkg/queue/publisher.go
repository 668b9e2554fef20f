package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/tarkyaio/tarka/pkg/config"
	"github.com/tarkyaio/tarka/pkg/models"
)

// Publisher enqueues alert jobs with queue-level idempotency: the dedup hash
// becomes the JetStream Nats-Msg-Id, so redelivered webhooks inside the
// duplicate window publish at most once.
type Publisher struct {
	js     jetstream.JetStream
	cfg    *config.QueueConfig
	logger *slog.Logger
}

// NewPublisher wires a publisher. All arguments are required.
func NewPublisher(js jetstream.JetStream, cfg *config.QueueConfig, logger *slog.Logger) *Publisher {
	if js == nil {
		panic("queue.NewPublisher: jetstream is nil")
	}
	if cfg == nil {
		panic("queue.NewPublisher: config is nil")
	}
	if logger == nil {
		panic("queue.NewPublisher: logger is nil")
	}
	return &Publisher{js: js, cfg: cfg, logger: logger.With("component", "queue.publisher")}
}

// Enqueue publishes one alert job. A duplicate ack is success: the stream
// already holds the message from an earlier delivery.
func (p *Publisher) Enqueue(ctx context.Context, job models.AlertJob, msgID string) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal alert job: %w", err)
	}
	ack, err := p.js.Publish(ctx, p.cfg.Subject, data, jetstream.WithMsgID(msgID))
	if err != nil {
		return fmt.Errorf("publish to %s: %w", p.cfg.Subject, err)
	}
	if ack.Duplicate {
		p.logger.Debug("duplicate message suppressed by stream", "msg_id", msgID)
		return nil
	}
	p.logger.Debug("job published", "msg_id", msgID, "seq", ack.Sequence)
	return nil
}
