// Package config holds per-concern configuration structs with environment
// loaders. Every knob has a Default constructor; FromEnv loaders overlay
// recognized environment variables on top of the defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config aggregates all runtime configuration.
type Config struct {
	Storage   StorageConfig
	Queue     QueueConfig
	Worker    WorkerConfig
	Ingest    IngestConfig
	Providers ProvidersConfig
}

// Load builds the full configuration from the environment.
func Load() (*Config, error) {
	queue, err := QueueFromEnv()
	if err != nil {
		return nil, fmt.Errorf("queue config: %w", err)
	}
	return &Config{
		Storage:   StorageFromEnv(),
		Queue:     *queue,
		Worker:    WorkerFromEnv(),
		Ingest:    IngestFromEnv(),
		Providers: ProvidersFromEnv(),
	}, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvSeconds(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return fallback
	}
	return time.Duration(n) * time.Second
}

func getEnvCSV(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
