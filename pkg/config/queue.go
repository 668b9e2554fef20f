package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// QueueConfig contains the JetStream stream, consumer, and DLQ settings.
type QueueConfig struct {
	// URL is the NATS server address.
	URL string

	// Stream is the JetStream stream name; Subject the alert-job subject.
	Stream  string
	Subject string

	// Durable is the pull-consumer durable name shared by all workers.
	Durable string

	// AckWait must exceed the longest retry backoff; heartbeats extend it
	// during long investigations.
	AckWait time.Duration

	// MaxDeliver is the redelivery cap before a job goes to the DLQ.
	MaxDeliver int

	// Backoff is the optional per-attempt redelivery schedule.
	Backoff []time.Duration

	// DLQSubject/DLQStream receive poison messages and exhausted jobs.
	DLQSubject string
	DLQStream  string

	// DuplicateWindow is the stream-level msg-id dedup horizon. Must exceed
	// the expected retry interval.
	DuplicateWindow time.Duration
}

// DefaultQueueConfig returns the built-in queue defaults.
func DefaultQueueConfig() *QueueConfig {
	return &QueueConfig{
		URL:             "nats://127.0.0.1:4222",
		Stream:          "TARKA",
		Subject:         "tarka.alerts",
		Durable:         "WORKERS",
		AckWait:         1800 * time.Second,
		MaxDeliver:      5,
		DLQSubject:      "tarka.dlq",
		DLQStream:       "TARKA_DLQ",
		DuplicateWindow: time.Hour,
	}
}

// QueueFromEnv overlays the JETSTREAM_* and NATS_URL environment variables.
func QueueFromEnv() (*QueueConfig, error) {
	cfg := DefaultQueueConfig()
	cfg.URL = getEnv("NATS_URL", cfg.URL)
	cfg.Stream = getEnv("JETSTREAM_STREAM", cfg.Stream)
	cfg.Subject = getEnv("JETSTREAM_SUBJECT", strings.ToLower(cfg.Stream)+".alerts")
	cfg.Durable = getEnv("JETSTREAM_DURABLE", cfg.Durable)
	cfg.AckWait = getEnvSeconds("JETSTREAM_ACK_WAIT_SECONDS", cfg.AckWait)
	cfg.MaxDeliver = getEnvInt("JETSTREAM_MAX_DELIVER", cfg.MaxDeliver)
	cfg.DLQSubject = getEnv("JETSTREAM_DLQ_SUBJECT", cfg.DLQSubject)
	cfg.DLQStream = getEnv("JETSTREAM_DLQ_STREAM", cfg.DLQStream)
	cfg.DuplicateWindow = getEnvSeconds("JETSTREAM_DUPLICATE_WINDOW_SECONDS", cfg.DuplicateWindow)

	for _, raw := range getEnvCSV("JETSTREAM_BACKOFF_SECONDS") {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid JETSTREAM_BACKOFF_SECONDS entry %q", raw)
		}
		cfg.Backoff = append(cfg.Backoff, time.Duration(n)*time.Second)
	}
	if len(cfg.Backoff) > 0 && cfg.MaxDeliver > 0 && len(cfg.Backoff) > cfg.MaxDeliver {
		return nil, fmt.Errorf("backoff schedule length %d exceeds max_deliver %d",
			len(cfg.Backoff), cfg.MaxDeliver)
	}
	return cfg, nil
}
