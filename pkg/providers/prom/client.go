// Package prom implements the Prometheus provider contract using the
// official client_golang API client. Works against Prometheus and
// VictoriaMetrics (same HTTP API).
package prom

import (
	"context"
	"fmt"
	"strconv"
	"time"

	promapi "github.com/prometheus/client_golang/api"
	promv1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"

	"github.com/tarkyaio/tarka/pkg/models"
	"github.com/tarkyaio/tarka/pkg/providers"
)

// Client is the client_golang backed Prometheus provider.
type Client struct {
	api     promv1.API
	timeout time.Duration
}

var _ providers.Prometheus = (*Client)(nil)

// New builds a provider for the given Prometheus base URL.
func New(address string, timeout time.Duration) (*Client, error) {
	c, err := promapi.NewClient(promapi.Config{Address: address})
	if err != nil {
		return nil, fmt.Errorf("creating prometheus client: %w", err)
	}
	return &Client{api: promv1.NewAPI(c), timeout: timeout}, nil
}

// NewWithAPI wraps an existing API, for tests.
func NewWithAPI(api promv1.API, timeout time.Duration) *Client {
	return &Client{api: api, timeout: timeout}
}

// Query runs an instant query at ts.
func (c *Client) Query(ctx context.Context, query string, ts time.Time) ([]models.MetricSeries, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	value, _, err := c.api.Query(ctx, query, ts)
	if err != nil {
		return nil, fmt.Errorf("instant query %q: %w", query, err)
	}
	return convertValue(value), nil
}

// QueryRange runs a range query over [start, end].
func (c *Client) QueryRange(ctx context.Context, query string, start, end time.Time, step time.Duration) ([]models.MetricSeries, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	value, _, err := c.api.QueryRange(ctx, query, promv1.Range{Start: start, End: end, Step: step})
	if err != nil {
		return nil, fmt.Errorf("range query %q: %w", query, err)
	}
	return convertValue(value), nil
}

// convertValue flattens the model.Value variants into the shared wire shape
// {metric: labels, values: [[ts, "value"]]}.
func convertValue(value model.Value) []models.MetricSeries {
	switch v := value.(type) {
	case model.Vector:
		out := make([]models.MetricSeries, 0, len(v))
		for _, sample := range v {
			out = append(out, models.MetricSeries{
				Metric: metricLabels(sample.Metric),
				Values: []models.SeriesPoint{samplePoint(sample.Timestamp, sample.Value)},
			})
		}
		return out
	case model.Matrix:
		out := make([]models.MetricSeries, 0, len(v))
		for _, stream := range v {
			points := make([]models.SeriesPoint, 0, len(stream.Values))
			for _, pair := range stream.Values {
				points = append(points, samplePoint(pair.Timestamp, pair.Value))
			}
			out = append(out, models.MetricSeries{
				Metric: metricLabels(stream.Metric),
				Values: points,
			})
		}
		return out
	case *model.Scalar:
		if v == nil {
			return nil
		}
		return []models.MetricSeries{{
			Metric: map[string]string{},
			Values: []models.SeriesPoint{samplePoint(v.Timestamp, v.Value)},
		}}
	}
	return nil
}

func metricLabels(metric model.Metric) map[string]string {
	labels := make(map[string]string, len(metric))
	for name, value := range metric {
		labels[string(name)] = string(value)
	}
	return labels
}

func samplePoint(ts model.Time, value model.SampleValue) models.SeriesPoint {
	return models.SeriesPoint{
		Ts:    float64(ts.Unix()),
		Value: strconv.FormatFloat(float64(value), 'f', -1, 64),
	}
}
