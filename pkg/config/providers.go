package config

import "time"

// ProvidersConfig carries the external provider endpoints and credentials.
// Empty endpoints disable the corresponding provider; the pipeline encodes
// absence as missing_inputs rather than failing.
type ProvidersConfig struct {
	PrometheusURL   string
	AlertmanagerURL string
	LogsURL         string
	LogsBackend     string

	AWSRegion string

	GitHubToken string
	// GitHubRepo is "owner/name"; empty disables GitHub change evidence.
	GitHubRepo string

	// PostgresDSN enables the case index when set.
	PostgresDSN string

	// MemoryEnabled turns on the optional hypothesis calibration hook.
	MemoryEnabled bool

	// ActionsEnabled gates attaching proposed remediation actions.
	ActionsEnabled bool

	// PromTimeout bounds instant queries; AlertmanagerTimeout the AM API.
	PromTimeout         time.Duration
	AlertmanagerTimeout time.Duration
	LogsTimeout         time.Duration
}

// DefaultProvidersConfig returns the built-in provider defaults.
func DefaultProvidersConfig() ProvidersConfig {
	return ProvidersConfig{
		LogsBackend:         "loki",
		PromTimeout:         10 * time.Second,
		AlertmanagerTimeout: 30 * time.Second,
		LogsTimeout:         15 * time.Second,
	}
}

// ProvidersFromEnv overlays the provider environment variables.
func ProvidersFromEnv() ProvidersConfig {
	cfg := DefaultProvidersConfig()
	cfg.PrometheusURL = getEnv("PROMETHEUS_URL", cfg.PrometheusURL)
	cfg.AlertmanagerURL = getEnv("ALERTMANAGER_URL", cfg.AlertmanagerURL)
	cfg.LogsURL = getEnv("LOGS_URL", cfg.LogsURL)
	cfg.LogsBackend = getEnv("LOGS_BACKEND", cfg.LogsBackend)
	cfg.AWSRegion = getEnv("AWS_REGION", cfg.AWSRegion)
	cfg.GitHubToken = getEnv("GITHUB_TOKEN", cfg.GitHubToken)
	cfg.GitHubRepo = getEnv("GITHUB_REPO", cfg.GitHubRepo)
	cfg.PostgresDSN = getEnv("POSTGRES_DSN", cfg.PostgresDSN)
	cfg.MemoryEnabled = getEnv("MEMORY_ENABLED", "") == "true"
	cfg.ActionsEnabled = getEnv("ACTIONS_ENABLED", "") == "true"
	return cfg
}
