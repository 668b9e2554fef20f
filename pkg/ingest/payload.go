package ingest

import (
	"github.com/tarkyaio/tarka/pkg/models"
)

// WebhookPayload is the Alertmanager v4 webhook body.
type WebhookPayload struct {
	Version           string            `json:"version,omitempty"`
	GroupKey          string            `json:"groupKey,omitempty"`
	Status            string            `json:"status"`
	Receiver          string            `json:"receiver,omitempty"`
	GroupLabels       map[string]string `json:"groupLabels,omitempty"`
	CommonLabels      map[string]string `json:"commonLabels,omitempty"`
	CommonAnnotations map[string]string `json:"commonAnnotations,omitempty"`
	ExternalURL       string            `json:"externalURL,omitempty"`
	Alerts            []WebhookAlert    `json:"alerts"`
}

// WebhookAlert is one alert within the webhook payload.
type WebhookAlert struct {
	Status       string            `json:"status"`
	Labels       map[string]string `json:"labels"`
	Annotations  map[string]string `json:"annotations,omitempty"`
	StartsAt     string            `json:"startsAt,omitempty"`
	EndsAt       string            `json:"endsAt,omitempty"`
	GeneratorURL string            `json:"generatorURL,omitempty"`
	Fingerprint  string            `json:"fingerprint,omitempty"`
}

// Normalize converts one webhook alert into the canonical AlertInstance.
// Per-alert endsAt wins over both status fields; the parent payload status
// is the weakest signal.
func Normalize(raw WebhookAlert, parentStatus string) models.AlertInstance {
	state, endsAtKind := models.NormalizeState(raw.EndsAt, raw.Status, parentStatus)
	return models.AlertInstance{
		Fingerprint:     raw.Fingerprint,
		Labels:          raw.Labels,
		Annotations:     raw.Annotations,
		StartsAt:        raw.StartsAt,
		EndsAt:          raw.EndsAt,
		GeneratorURL:    raw.GeneratorURL,
		State:           raw.Status,
		NormalizedState: state,
		EndsAtKind:      endsAtKind,
	}
}
