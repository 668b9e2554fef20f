// Package models defines the canonical domain types shared across the
// investigation pipeline: alerts, time windows, targets, evidence, and the
// strict Analysis output shape.
//
// Evidence types are deliberately permissive (open maps for upstream-variable
// payloads); Analysis types are strict. The strict boundary sits exactly at
// the Analysis layer.
package models

import (
	"strings"
	"time"
)

// AlertState is the normalized firing state of an alert instance.
type AlertState string

// Normalized alert states.
const (
	StateFiring   AlertState = "firing"
	StateResolved AlertState = "resolved"
	StateUnknown  AlertState = "unknown"
)

// EndsAtKind describes how the EndsAt timestamp should be interpreted.
type EndsAtKind string

// EndsAt interpretations.
const (
	EndsAtExpires  EndsAtKind = "expires_at"
	EndsAtResolved EndsAtKind = "resolved_at"
	EndsAtUnknown  EndsAtKind = "unknown"
)

// zeroTimePlaceholder is the Alertmanager "not yet resolved" sentinel.
// Alertmanager emits endsAt=0001-01-01T00:00:00Z for firing alerts.
const zeroTimePlaceholderPrefix = "0001-01-01"

// AlertInstance is one alert arrival, immutable for the duration of an
// investigation. Labels and annotations are copied verbatim from the
// Alertmanager payload.
type AlertInstance struct {
	Fingerprint     string            `json:"fingerprint,omitempty"`
	Labels          map[string]string `json:"labels"`
	Annotations     map[string]string `json:"annotations,omitempty"`
	StartsAt        string            `json:"starts_at,omitempty"`
	EndsAt          string            `json:"ends_at,omitempty"`
	GeneratorURL    string            `json:"generator_url,omitempty"`
	State           string            `json:"state,omitempty"`
	NormalizedState AlertState        `json:"normalized_state"`
	EndsAtKind      EndsAtKind        `json:"ends_at_kind"`
}

// AlertName returns the alertname label, or empty when absent.
func (a *AlertInstance) AlertName() string {
	return a.Labels["alertname"]
}

// Label returns the named label value, or empty when absent.
func (a *AlertInstance) Label(name string) string {
	return a.Labels[name]
}

// IsResolved reports whether the alert normalized to resolved.
func (a *AlertInstance) IsResolved() bool {
	return a.NormalizedState == StateResolved
}

// Age returns the time since StartsAt, or zero when StartsAt is absent or
// unparseable.
func (a *AlertInstance) Age(now time.Time) time.Duration {
	if a.StartsAt == "" || strings.HasPrefix(a.StartsAt, zeroTimePlaceholderPrefix) {
		return 0
	}
	started, err := time.Parse(time.RFC3339, a.StartsAt)
	if err != nil {
		return 0
	}
	age := now.Sub(started)
	if age < 0 {
		return 0
	}
	return age
}

// NormalizeState derives the normalized firing state from the per-alert
// endsAt and the parent webhook status. The per-alert endsAt wins: Alertmanager
// may report status=firing at the batch level while individual alerts carry a
// real resolution timestamp. A zero-time endsAt is a firing placeholder, never
// a resolution.
func NormalizeState(endsAt, perAlertStatus, parentStatus string) (AlertState, EndsAtKind) {
	if endsAt != "" && !strings.HasPrefix(endsAt, zeroTimePlaceholderPrefix) {
		if _, err := time.Parse(time.RFC3339, endsAt); err == nil {
			return StateResolved, EndsAtResolved
		}
	}

	switch perAlertStatus {
	case "firing":
		return StateFiring, EndsAtExpires
	case "resolved":
		// Status claims resolved but endsAt does not corroborate; treat the
		// endsAt interpretation as unknown and trust the explicit status.
		return StateResolved, EndsAtUnknown
	}

	switch parentStatus {
	case "firing":
		return StateFiring, EndsAtExpires
	case "resolved":
		return StateResolved, EndsAtUnknown
	}

	return StateUnknown, EndsAtUnknown
}
