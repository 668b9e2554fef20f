package models

// EvidenceQuality grades how complete the collected evidence is.
type EvidenceQuality string

// Evidence quality grades.
const (
	QualityHigh   EvidenceQuality = "high"
	QualityMedium EvidenceQuality = "medium"
	QualityLow    EvidenceQuality = "low"
)

// FeaturesK8s is the strict projection of Kubernetes evidence.
type FeaturesK8s struct {
	PodPhase                   string   `json:"pod_phase,omitempty"`
	Ready                      *bool    `json:"ready,omitempty"`
	WaitingReason              string   `json:"waiting_reason,omitempty"`
	RestartCount               *int     `json:"restart_count,omitempty"`
	RestartRate5mMax           *float64 `json:"restart_rate_5m_max,omitempty"`
	WarningEventsCount         int      `json:"warning_events_count"`
	OOMKilled                  bool     `json:"oom_killed"`
	Evicted                    bool     `json:"evicted"`
	StatusReason               string   `json:"status_reason,omitempty"`
	StatusMessage              string   `json:"status_message,omitempty"`
	NotReadyConditions         []string `json:"not_ready_conditions,omitempty"`
	ContainerWaitingReasonsTop []string `json:"container_waiting_reasons_top,omitempty"`
	ContainerLastTerminatedTop []string `json:"container_last_terminated_top,omitempty"`
	RecentEventReasonsTop      []string `json:"recent_event_reasons_top,omitempty"`
}

// FeaturesMetrics is the strict projection of PromQL evidence.
type FeaturesMetrics struct {
	ThrottlingP95           *float64 `json:"throttling_p95,omitempty"`
	TopThrottledContainer   string   `json:"top_throttled_container,omitempty"`
	TopThrottledUsageRatio  *float64 `json:"top_throttled_usage_ratio,omitempty"`
	CPUUsageP95             *float64 `json:"cpu_usage_p95,omitempty"`
	CPULimit                *float64 `json:"cpu_limit,omitempty"`
	CPUUsageOverLimitRatio  *float64 `json:"cpu_usage_over_limit_ratio,omitempty"`
	CPUNearLimit            bool     `json:"cpu_near_limit"`
	MemoryUsageP95          *float64 `json:"memory_usage_p95,omitempty"`
	MemoryLimit             *float64 `json:"memory_limit,omitempty"`
	MemoryUsageOverLimit    *float64 `json:"memory_usage_over_limit_ratio,omitempty"`
	MemoryNearLimit         bool     `json:"memory_near_limit"`
	HTTP5xxRateP95          *float64 `json:"http_5xx_rate_p95,omitempty"`
	FiringInstances         *int     `json:"firing_instances,omitempty"`
	UpTargetsDown           *int     `json:"up_targets_down,omitempty"`
	JobFailedCount          *float64 `json:"job_failed_count,omitempty"`
	PodPhaseSignal          string   `json:"pod_phase_signal,omitempty"`
}

// FeaturesLogs is the strict projection of log evidence.
type FeaturesLogs struct {
	Status      LogStatus `json:"status,omitempty"`
	Backend     string    `json:"backend,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	Query       string    `json:"query,omitempty"`
	TimeoutHits int       `json:"timeout_hits"`
	ErrorHits   int       `json:"error_hits"`
}

// FeaturesChanges is the strict projection of change evidence.
type FeaturesChanges struct {
	RolloutWithinWindow bool   `json:"rollout_within_window"`
	LastChangeTs        string `json:"last_change_ts,omitempty"`
	OwningWorkloadKind  string `json:"owning_workload_kind,omitempty"`
	OwningWorkloadName  string `json:"owning_workload_name,omitempty"`
}

// FeaturesQuality grades evidence completeness and records contradictions.
type FeaturesQuality struct {
	EvidenceQuality   EvidenceQuality `json:"evidence_quality"`
	MissingInputs     []string        `json:"missing_inputs,omitempty"`
	ContradictionFlags []string       `json:"contradiction_flags,omitempty"`
	AlertAgeHours     *float64        `json:"alert_age_hours,omitempty"`
	IsLongRunning     bool            `json:"is_long_running"`
	IsRecentlyStarted bool            `json:"is_recently_started"`
}

// DerivedFeatures is the typed, domain-grouped feature vector projected from
// raw evidence. Every downstream consumer (triage, scoring, report) reads
// from here, never from raw evidence directly.
type DerivedFeatures struct {
	K8s     FeaturesK8s     `json:"k8s"`
	Metrics FeaturesMetrics `json:"metrics"`
	Logs    FeaturesLogs    `json:"logs"`
	Changes FeaturesChanges `json:"changes"`
	Quality FeaturesQuality `json:"quality"`
}

// NoiseInsights captures flap/cardinality/label-shape heuristics.
type NoiseInsights struct {
	FlapScore          int               `json:"flap_score"`
	FlapCount          *float64          `json:"flap_count,omitempty"`
	ActiveAlerts       *int              `json:"active_alerts,omitempty"`
	FiringAlerts       *int              `json:"firing_alerts,omitempty"`
	PrometheusStatus   string            `json:"prometheus_status,omitempty"`
	MissingLabels      []string          `json:"missing_labels,omitempty"`
	InferredLabels     map[string]string `json:"inferred_labels,omitempty"`
	EphemeralLabels    []string          `json:"ephemeral_labels,omitempty"`
	SuggestedGroupBy   []string          `json:"suggested_group_by,omitempty"`
	Recommendations    []string          `json:"recommendations,omitempty"`
}

// ChangeEvent is one entry in the change timeline.
type ChangeEvent struct {
	Timestamp string `json:"timestamp"`
	Kind      string `json:"kind"`
	Source    string `json:"source"`
	Summary   string `json:"summary"`
}

// ChangeCorrelation relates recent workload changes to the incident window.
type ChangeCorrelation struct {
	Timeline []ChangeEvent `json:"timeline,omitempty"`
	Score    float64       `json:"score"`
	Summary  string        `json:"summary,omitempty"`
}

// RightsizingRow is one container rightsizing recommendation.
type RightsizingRow struct {
	Container      string   `json:"container"`
	Resource       string   `json:"resource"`
	CurrentLimit   *float64 `json:"current_limit,omitempty"`
	UsageP95       *float64 `json:"usage_p95,omitempty"`
	Recommendation string   `json:"recommendation"`
}

// CapacityReport carries rightsizing hints derived from PromQL.
type CapacityReport struct {
	Recommendations []string         `json:"recommendations,omitempty"`
	Rightsizing     []RightsizingRow `json:"rightsizing,omitempty"`
}

// Decision is a human-facing triage output: a short label plus reasoning and
// concrete next steps. Not parsed downstream.
type Decision struct {
	Label string   `json:"label"`
	Why   []string `json:"why,omitempty"`
	Next  []string `json:"next,omitempty"`
}

// Hypothesis is one ranked root-cause candidate.
type Hypothesis struct {
	HypothesisID    string   `json:"hypothesis_id"`
	Title           string   `json:"title"`
	Confidence      int      `json:"confidence_0_100"`
	Why             []string `json:"why,omitempty"`
	SupportingRefs  []string `json:"supporting_refs,omitempty"`
	CounterRefs     []string `json:"counter_refs,omitempty"`
	NextTests       []string `json:"next_tests,omitempty"`
	ProposedActions []string `json:"proposed_actions,omitempty"`
}

// ScoreBreakdownItem records one scoring delta with its provenance.
type ScoreBreakdownItem struct {
	Code       string `json:"code"`
	Axis       string `json:"axis"`
	Delta      int    `json:"delta"`
	FeatureRef string `json:"feature_ref,omitempty"`
	Why        string `json:"why,omitempty"`
}

// DeterministicScores is the three-axis score output with its full audit trail.
type DeterministicScores struct {
	Impact      int                  `json:"impact"`
	Confidence  int                  `json:"confidence"`
	Noise       int                  `json:"noise"`
	ReasonCodes []string             `json:"reason_codes,omitempty"`
	Breakdown   []ScoreBreakdownItem `json:"breakdown,omitempty"`
}

// Classification buckets an alert by actionability.
type Classification string

// Classifications.
const (
	ClassActionable    Classification = "actionable"
	ClassInformational Classification = "informational"
	ClassNoisy         Classification = "noisy"
	ClassArtifact      Classification = "artifact"
)

// Severity is derived from classification and scores, never set directly.
type Severity string

// Severities.
const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// DeterministicVerdict is the final classification with its narrative.
type DeterministicVerdict struct {
	Classification Classification `json:"classification"`
	PrimaryDriver  string         `json:"primary_driver,omitempty"`
	OneLiner       string         `json:"one_liner"`
	NextSteps      []string       `json:"next_steps,omitempty"`
	Severity       Severity       `json:"severity"`
}

// Analysis is the strict output aggregate of one investigation.
type Analysis struct {
	Features   DerivedFeatures      `json:"features"`
	Noise      NoiseInsights        `json:"noise"`
	Change     ChangeCorrelation    `json:"change"`
	Capacity   CapacityReport       `json:"capacity"`
	Decision   Decision             `json:"decision"`
	Enrichment Decision             `json:"enrichment"`
	Hypotheses []Hypothesis         `json:"hypotheses,omitempty"`
	Scores     DeterministicScores  `json:"scores"`
	Verdict    DeterministicVerdict `json:"verdict"`

	// Optional additive outputs from external collaborators. The
	// deterministic core never depends on them.
	RCA map[string]any `json:"rca,omitempty"`
	LLM map[string]any `json:"llm,omitempty"`
}
