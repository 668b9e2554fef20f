package models

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Evidence aggregates the per-source raw material collected for one
// investigation. All sub-records are permissive: upstream shapes vary between
// cluster versions and backends, so open maps carry anything not explicitly
// modeled.
type Evidence struct {
	K8s     K8sEvidence     `json:"k8s,omitempty"`
	Metrics MetricsEvidence `json:"metrics,omitempty"`
	Logs    LogsEvidence    `json:"logs,omitempty"`
	AWS     AWSEvidence     `json:"aws,omitempty"`
	GitHub  GitHubEvidence  `json:"github,omitempty"`
}

// K8sEvidence carries raw Kubernetes API material for the target.
type K8sEvidence struct {
	PodInfo              map[string]any   `json:"pod_info,omitempty"`
	PodConditions        []map[string]any `json:"pod_conditions,omitempty"`
	PodEvents            []map[string]any `json:"pod_events,omitempty"`
	OwnerChain           []map[string]any `json:"owner_chain,omitempty"`
	RolloutStatus        map[string]any   `json:"rollout_status,omitempty"`
	ImagePullDiagnostics map[string]any   `json:"image_pull_diagnostics,omitempty"`
}

// SeriesPoint is one Prometheus sample: unix timestamp plus the raw string
// value as returned by the HTTP API. Values stay strings until feature
// extraction, which coerces leniently (parse-and-skip).
type SeriesPoint struct {
	Ts    float64
	Value string
}

// MarshalJSON renders the Prometheus wire shape [ts, "value"].
func (p SeriesPoint) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{p.Ts, p.Value})
}

// UnmarshalJSON accepts the Prometheus wire shape [ts, "value"].
func (p *SeriesPoint) UnmarshalJSON(data []byte) error {
	var raw [2]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if err := json.Unmarshal(raw[0], &p.Ts); err != nil {
		return fmt.Errorf("series point timestamp: %w", err)
	}
	if err := json.Unmarshal(raw[1], &p.Value); err != nil {
		// Some backends emit bare numbers.
		var f float64
		if ferr := json.Unmarshal(raw[1], &f); ferr != nil {
			return fmt.Errorf("series point value: %w", err)
		}
		p.Value = strconv.FormatFloat(f, 'f', -1, 64)
	}
	return nil
}

// Float returns the parsed sample value. ok is false when the raw string is
// not a finite number.
func (p SeriesPoint) Float() (float64, bool) {
	f, err := strconv.ParseFloat(p.Value, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// MetricSeries is one labeled series from a PromQL range or instant query.
type MetricSeries struct {
	Metric map[string]string `json:"metric"`
	Values []SeriesPoint     `json:"values"`
}

// MetricsEvidence carries the PromQL series collected for the target.
type MetricsEvidence struct {
	Throttling   []MetricSeries `json:"throttling,omitempty"`
	CPUUsage     []MetricSeries `json:"cpu_usage,omitempty"`
	CPULimit     []MetricSeries `json:"cpu_limit,omitempty"`
	MemoryUsage  []MetricSeries `json:"memory_usage,omitempty"`
	MemoryLimit  []MetricSeries `json:"memory_limit,omitempty"`
	Restarts     []MetricSeries `json:"restarts,omitempty"`
	PodPhase     []MetricSeries `json:"pod_phase,omitempty"`
	HTTP5xx      []MetricSeries `json:"http_5xx,omitempty"`
	PromBaseline map[string]any `json:"prom_baseline,omitempty"`
	JobMetrics   map[string]any `json:"job_metrics,omitempty"`
}

// LogStatus describes the outcome of a log fetch.
type LogStatus string

// Log fetch outcomes.
const (
	LogStatusOK          LogStatus = "ok"
	LogStatusEmpty       LogStatus = "empty"
	LogStatusUnavailable LogStatus = "unavailable"
)

// LogEntry is one structured log record from the log backend.
type LogEntry struct {
	Timestamp string            `json:"timestamp,omitempty"`
	Message   string            `json:"message"`
	Labels    map[string]string `json:"labels,omitempty"`
}

// ParsedLogError is one error-level line recovered by log parsing.
type ParsedLogError struct {
	Timestamp string `json:"timestamp,omitempty"`
	Level     string `json:"level,omitempty"`
	Message   string `json:"message"`
}

// LogsEvidence carries raw log entries plus fetch provenance.
type LogsEvidence struct {
	Entries         []LogEntry       `json:"entries,omitempty"`
	Status          LogStatus        `json:"status,omitempty"`
	Reason          string           `json:"reason,omitempty"`
	Backend         string           `json:"backend,omitempty"`
	Query           string           `json:"query,omitempty"`
	ParsedErrors    []ParsedLogError `json:"parsed_errors,omitempty"`
	ParsingMetadata map[string]any   `json:"parsing_metadata,omitempty"`
}

// Attempted reports whether a log fetch was actually tried (provenance set).
func (l *LogsEvidence) Attempted() bool {
	return l.Status != "" || l.Backend != "" || l.Query != ""
}

// AWSEvidence carries per-resource-kind AWS status maps plus CloudTrail
// events. Keyed by resource kind ("ec2", "ebs", "rds", ...).
type AWSEvidence struct {
	Resources  map[string]map[string]any `json:"resources,omitempty"`
	CloudTrail []map[string]any          `json:"cloudtrail,omitempty"`
}

// GitHubEvidence carries repo change material for change correlation.
type GitHubEvidence struct {
	Repo         map[string]any   `json:"repo,omitempty"`
	Commits      []map[string]any `json:"commits,omitempty"`
	WorkflowRuns []map[string]any `json:"workflow_runs,omitempty"`
}
