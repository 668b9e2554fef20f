package config

import "time"

// WorkerConfig bounds the queue consumer.
type WorkerConfig struct {
	// Concurrency is the in-flight message semaphore size.
	Concurrency int

	// FetchBatch and FetchTimeout bound each pull.
	FetchBatch   int
	FetchTimeout time.Duration

	// InProgressInterval is the heartbeat period for extending the ack
	// deadline while an investigation runs.
	InProgressInterval time.Duration

	// GracefulShutdownTimeout caps how long shutdown waits for in-flight
	// investigations.
	GracefulShutdownTimeout time.Duration
}

// DefaultWorkerConfig returns the built-in worker defaults.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		Concurrency:             2,
		FetchBatch:              10,
		FetchTimeout:            1 * time.Second,
		InProgressInterval:      30 * time.Second,
		GracefulShutdownTimeout: 5 * time.Minute,
	}
}

// WorkerFromEnv overlays the WORKER_* environment variables.
func WorkerFromEnv() WorkerConfig {
	cfg := DefaultWorkerConfig()
	cfg.Concurrency = getEnvInt("WORKER_CONCURRENCY", cfg.Concurrency)
	cfg.FetchBatch = getEnvInt("WORKER_FETCH_BATCH", cfg.FetchBatch)
	cfg.FetchTimeout = getEnvSeconds("WORKER_FETCH_TIMEOUT_SECONDS", cfg.FetchTimeout)
	cfg.InProgressInterval = getEnvSeconds("WORKER_IN_PROGRESS_SECONDS", cfg.InProgressInterval)
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.FetchBatch < 1 {
		cfg.FetchBatch = 1
	}
	return cfg
}
