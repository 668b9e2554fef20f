package models

import (
	"fmt"
	"time"
)

// Meta keys used by pipeline stages. Meta is free-form but these keys have
// fixed meanings across stages.
const (
	MetaFamily                  = "family"
	MetaFamilySource            = "family_source"
	MetaBlockedMode             = "blocked_mode"
	MetaReplayMode              = "replay_mode"
	MetaPreviousLogsParsedErrors = "previous_logs_parsed_errors"
	MetaCrashDurationSeconds    = "crash_duration_seconds"
	MetaProbeFailureType        = "probe_failure_type"
)

// Investigation is the root aggregate owned for the duration of one run.
// The pipeline owns it exclusively: stages mutate it in place, in fixed
// order, on a single goroutine. After publish it is read-only.
type Investigation struct {
	Alert      AlertInstance  `json:"alert"`
	TimeWindow TimeWindow     `json:"time_window"`
	Target     TargetRef      `json:"target"`
	Evidence   Evidence       `json:"evidence"`
	Analysis   Analysis       `json:"analysis"`
	Errors     []string       `json:"errors,omitempty"`
	Meta       map[string]any `json:"meta,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// NewInvestigation creates an investigation for one alert arrival.
func NewInvestigation(alert AlertInstance, window TimeWindow) *Investigation {
	return &Investigation{
		Alert:      alert,
		TimeWindow: window,
		Target:     TargetRef{TargetType: TargetUnknown},
		Meta:       map[string]any{},
		CreatedAt:  time.Now().UTC(),
	}
}

// RecordError appends a non-fatal stage error. The pipeline never aborts on
// these; scoring reads missing_inputs instead.
func (inv *Investigation) RecordError(stage string, err error) {
	if err == nil {
		return
	}
	inv.Errors = append(inv.Errors, fmt.Sprintf("%s: %v", stage, err))
}

// SetMeta stores a runtime flag.
func (inv *Investigation) SetMeta(key string, value any) {
	if inv.Meta == nil {
		inv.Meta = map[string]any{}
	}
	inv.Meta[key] = value
}

// MetaString returns a string meta value, or empty when absent or not a
// string.
func (inv *Investigation) MetaString(key string) string {
	if inv.Meta == nil {
		return ""
	}
	s, _ := inv.Meta[key].(string)
	return s
}

// MetaFloat returns a numeric meta value.
func (inv *Investigation) MetaFloat(key string) (float64, bool) {
	if inv.Meta == nil {
		return 0, false
	}
	switch v := inv.Meta[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}

// Family returns the canonical family set at detection time, falling back to
// empty when detection has not run yet.
func (inv *Investigation) Family() string {
	return inv.MetaString(MetaFamily)
}
