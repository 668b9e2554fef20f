// Package queue provides the durable investigation queue on NATS JetStream:
// a publisher with message-id dedup, a pull-consumer worker pool with ack
// heartbeats, and a dead-letter stream for poison and exhausted messages.
package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/tarkyaio/tarka/pkg/config"
)

// dlqMaxAge bounds dead-letter retention.
const dlqMaxAge = 7 * 24 * time.Hour

// Connect dials NATS and returns the JetStream context. Fails fast when the
// server is unreachable so a misconfigured deployment dies at startup rather
// than silently dropping alerts.
func Connect(cfg *config.QueueConfig) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(cfg.URL,
		nats.Name("tarka"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to NATS at %s: %w", cfg.URL, err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("create JetStream context: %w", err)
	}
	return nc, js, nil
}

// EnsureStreams creates or updates the work stream and the DLQ stream. The
// work stream is a work queue with msg-id dedup over the duplicate window;
// the DLQ is a plain limits stream with bounded age.
func EnsureStreams(ctx context.Context, js jetstream.JetStream, cfg *config.QueueConfig) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:       cfg.Stream,
		Subjects:   []string{cfg.Subject},
		Retention:  jetstream.WorkQueuePolicy,
		Storage:    jetstream.FileStorage,
		Duplicates: cfg.DuplicateWindow,
	})
	if err != nil {
		return fmt.Errorf("ensure stream %s: %w", cfg.Stream, err)
	}
	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      cfg.DLQStream,
		Subjects:  []string{cfg.DLQSubject},
		Retention: jetstream.LimitsPolicy,
		Storage:   jetstream.FileStorage,
		MaxAge:    dlqMaxAge,
	})
	if err != nil {
		return fmt.Errorf("ensure DLQ stream %s: %w", cfg.DLQStream, err)
	}
	return nil
}

// EnsureConsumer creates or updates the shared durable pull consumer.
func EnsureConsumer(ctx context.Context, js jetstream.JetStream, cfg *config.QueueConfig) (jetstream.Consumer, error) {
	cons, err := js.CreateOrUpdateConsumer(ctx, cfg.Stream, jetstream.ConsumerConfig{
		Durable:       cfg.Durable,
		FilterSubject: cfg.Subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       cfg.AckWait,
		MaxDeliver:    cfg.MaxDeliver,
		BackOff:       cfg.Backoff,
	})
	if err != nil {
		return nil, fmt.Errorf("ensure consumer %s on %s: %w", cfg.Durable, cfg.Stream, err)
	}
	return cons, nil
}

// Startup connects, ensures both streams, and returns the pieces the server
// and worker need. Any failure here is fatal to the process.
func Startup(ctx context.Context, cfg *config.QueueConfig, logger *slog.Logger) (*nats.Conn, jetstream.JetStream, error) {
	nc, js, err := Connect(cfg)
	if err != nil {
		return nil, nil, err
	}
	if err := EnsureStreams(ctx, js, cfg); err != nil {
		nc.Close()
		return nil, nil, err
	}
	logger.Info("queue ready",
		"url", cfg.URL,
		"stream", cfg.Stream,
		"subject", cfg.Subject,
		"dlq_stream", cfg.DLQStream)
	return nc, js, nil
}
