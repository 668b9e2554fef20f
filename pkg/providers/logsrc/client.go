// Package logsrc implements the log backend contract over the Loki and
// VictoriaLogs HTTP query APIs. Failures never propagate as errors: the
// returned evidence carries status/reason provenance instead, which feature
// extraction turns into missing_inputs.
package logsrc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/tarkyaio/tarka/pkg/models"
	"github.com/tarkyaio/tarka/pkg/providers"
)

const defaultLimit = 500

// Client queries Loki-compatible backends.
type Client struct {
	baseURL string
	backend string
	httpc   *http.Client
}

var _ providers.Logs = (*Client)(nil)

// New builds a log provider. backend is "loki" or "victorialogs" and only
// affects provenance tagging and the query dialect.
func New(baseURL, backend string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		backend: backend,
		httpc:   &http.Client{Timeout: timeout},
	}
}

// FetchLogs queries the backend for the pod's logs in the window.
func (c *Client) FetchLogs(ctx context.Context, q providers.LogQuery) models.LogsEvidence {
	query := c.buildQuery(q)
	ev := models.LogsEvidence{
		Backend: c.backend,
		Query:   query,
	}
	if c.baseURL == "" {
		ev.Status = models.LogStatusUnavailable
		ev.Reason = "log backend not configured"
		return ev
	}

	entries, err := c.queryRange(ctx, query, q)
	if err != nil {
		ev.Status = models.LogStatusUnavailable
		ev.Reason = err.Error()
		return ev
	}
	if len(entries) == 0 {
		ev.Status = models.LogStatusEmpty
		ev.Reason = "no entries in window"
		return ev
	}

	ev.Status = models.LogStatusOK
	ev.Entries = entries
	ev.ParsedErrors = ParseErrors(entries)
	ev.ParsingMetadata = map[string]any{
		"entries":       len(entries),
		"parsed_errors": len(ev.ParsedErrors),
	}
	return ev
}

func (c *Client) buildQuery(q providers.LogQuery) string {
	var sel []string
	if q.Namespace != "" {
		sel = append(sel, fmt.Sprintf(`namespace=%q`, q.Namespace))
	}
	if q.Pod != "" {
		sel = append(sel, fmt.Sprintf(`pod=%q`, q.Pod))
	}
	if q.Container != "" {
		sel = append(sel, fmt.Sprintf(`container=%q`, q.Container))
	}
	return "{" + strings.Join(sel, ", ") + "}"
}

func (c *Client) queryRange(ctx context.Context, query string, q providers.LogQuery) ([]models.LogEntry, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	params := url.Values{}
	params.Set("query", query)
	params.Set("start", strconv.FormatInt(q.Start.UnixNano(), 10))
	params.Set("end", strconv.FormatInt(q.End.UnixNano(), 10))
	params.Set("limit", strconv.Itoa(limit))

	endpoint := c.baseURL + "/loki/api/v1/query_range?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("building log query request: %w", err)
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("querying log backend: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("log backend returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload lokiResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decoding log response: %w", err)
	}

	var entries []models.LogEntry
	for _, stream := range payload.Data.Result {
		for _, value := range stream.Values {
			if len(value) < 2 {
				continue
			}
			entries = append(entries, models.LogEntry{
				Timestamp: nanosToRFC3339(value[0]),
				Message:   value[1],
				Labels:    stream.Stream,
			})
		}
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Timestamp < entries[j].Timestamp })
	return entries, nil
}

type lokiResponse struct {
	Data struct {
		Result []struct {
			Stream map[string]string `json:"stream"`
			Values [][2]string       `json:"values"`
		} `json:"result"`
	} `json:"data"`
}

func nanosToRFC3339(raw string) string {
	ns, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return raw
	}
	return time.Unix(0, ns).UTC().Format(time.RFC3339)
}
