package models

// Family is one of a closed set of semantic alert buckets. Family routes
// evidence collection, enrichment, and scoring. It is detected once per
// investigation (the canonical family in Meta) and never re-derived.
type Family string

// Alert families.
const (
	FamilyCrashloop       Family = "crashloop"
	FamilyPodNotHealthy   Family = "pod_not_healthy"
	FamilyCPUThrottling   Family = "cpu_throttling"
	FamilyHTTP5xx         Family = "http_5xx"
	FamilyOOMKilled       Family = "oom_killed"
	FamilyMemoryPressure  Family = "memory_pressure"
	FamilyRolloutHealth   Family = "k8s_rollout_health"
	FamilyTargetDown      Family = "target_down"
	FamilyObservability   Family = "observability_pipeline"
	FamilyMeta            Family = "meta"
	FamilyJobFailed       Family = "job_failed"
	FamilyGeneric         Family = "generic"
)

// AllFamilies is the closed set, in stable order.
var AllFamilies = []Family{
	FamilyCrashloop,
	FamilyPodNotHealthy,
	FamilyCPUThrottling,
	FamilyHTTP5xx,
	FamilyOOMKilled,
	FamilyMemoryPressure,
	FamilyRolloutHealth,
	FamilyTargetDown,
	FamilyObservability,
	FamilyMeta,
	FamilyJobFailed,
	FamilyGeneric,
}
