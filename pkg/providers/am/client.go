// Package am implements the Alertmanager provider contract over the
// Alertmanager v2 HTTP API.
package am

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tarkyaio/tarka/pkg/models"
	"github.com/tarkyaio/tarka/pkg/providers"
)

// Client queries an Alertmanager instance.
type Client struct {
	baseURL string
	httpc   *http.Client
}

var _ providers.Alertmanager = (*Client)(nil)

// New builds a client for the Alertmanager base URL.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: timeout},
	}
}

type v2Alert struct {
	Fingerprint  string            `json:"fingerprint"`
	Labels       map[string]string `json:"labels"`
	Annotations  map[string]string `json:"annotations"`
	StartsAt     string            `json:"startsAt"`
	EndsAt       string            `json:"endsAt"`
	GeneratorURL string            `json:"generatorURL"`
	Status       struct {
		State string `json:"state"`
	} `json:"status"`
}

// FetchActiveAlerts lists currently active alerts.
func (c *Client) FetchActiveAlerts(ctx context.Context) ([]models.AlertInstance, error) {
	var raw []v2Alert
	if err := c.getJSON(ctx, "/api/v2/alerts?active=true", &raw); err != nil {
		return nil, err
	}
	out := make([]models.AlertInstance, 0, len(raw))
	for _, a := range raw {
		state, kind := models.NormalizeState(a.EndsAt, a.Status.State, "")
		out = append(out, models.AlertInstance{
			Fingerprint:     a.Fingerprint,
			Labels:          a.Labels,
			Annotations:     a.Annotations,
			StartsAt:        a.StartsAt,
			EndsAt:          a.EndsAt,
			GeneratorURL:    a.GeneratorURL,
			State:           a.Status.State,
			NormalizedState: state,
			EndsAtKind:      kind,
		})
	}
	return out, nil
}

// AlertContext returns sibling alerts sharing the fingerprint's alertname,
// for scope context in CLI mode.
func (c *Client) AlertContext(ctx context.Context, fingerprint string) (map[string]any, error) {
	alerts, err := c.FetchActiveAlerts(ctx)
	if err != nil {
		return nil, err
	}
	var match *models.AlertInstance
	for i := range alerts {
		if alerts[i].Fingerprint == fingerprint {
			match = &alerts[i]
			break
		}
	}
	if match == nil {
		return nil, fmt.Errorf("no active alert with fingerprint %s", fingerprint)
	}
	siblings := 0
	for i := range alerts {
		if alerts[i].AlertName() == match.AlertName() {
			siblings++
		}
	}
	return map[string]any{
		"alertname":       match.AlertName(),
		"sibling_count":   siblings,
		"total_active":    len(alerts),
	}, nil
}

func (c *Client) getJSON(ctx context.Context, path string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("building alertmanager request: %w", err)
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("querying alertmanager: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("alertmanager returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return json.NewDecoder(resp.Body).Decode(dst)
}
