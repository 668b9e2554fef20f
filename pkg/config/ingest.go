package config

import "time"

// IngestConfig controls webhook-side dedup and freshness gating.
type IngestConfig struct {
	// Allowlist restricts investigated alertnames; empty means allow all.
	Allowlist []string

	// FreshnessTTL is how long an existing report suppresses re-runs for
	// per-alert fingerprint keys.
	FreshnessTTL time.Duration

	// RolloutFreshnessTTL is the (longer) suppression horizon for
	// rollout-workload keys; a rollout produces churn for longer than a
	// single pod incident.
	RolloutFreshnessTTL time.Duration
}

// DefaultIngestConfig returns the built-in ingestion defaults.
func DefaultIngestConfig() IngestConfig {
	return IngestConfig{
		FreshnessTTL:        time.Hour,
		RolloutFreshnessTTL: 2 * time.Hour,
	}
}

// IngestFromEnv overlays ALERTNAME_ALLOWLIST and the freshness TTLs.
func IngestFromEnv() IngestConfig {
	cfg := DefaultIngestConfig()
	cfg.Allowlist = getEnvCSV("ALERTNAME_ALLOWLIST")
	cfg.FreshnessTTL = getEnvSeconds("FRESHNESS_TTL_SECONDS", cfg.FreshnessTTL)
	cfg.RolloutFreshnessTTL = getEnvSeconds("ROLLOUT_FRESHNESS_TTL_SECONDS", cfg.RolloutFreshnessTTL)
	return cfg
}

// TTLFor returns the freshness TTL appropriate for the key class.
func (c IngestConfig) TTLFor(rollout bool) time.Duration {
	if rollout {
		return c.RolloutFreshnessTTL
	}
	return c.FreshnessTTL
}

// Allows reports whether the alertname passes the allowlist filter.
func (c IngestConfig) Allows(alertname string) bool {
	if len(c.Allowlist) == 0 {
		return true
	}
	for _, name := range c.Allowlist {
		if name == alertname {
			return true
		}
	}
	return false
}
