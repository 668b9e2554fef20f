package analyzers

import (
	"context"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tarkyaio/tarka/pkg/models"
)

type promStub struct {
	substr string
	value  float64
}

type fakeProm struct {
	results []promStub
	err     error
}

func (f *fakeProm) Query(ctx context.Context, query string, ts time.Time) ([]models.MetricSeries, error) {
	if f.err != nil {
		return nil, f.err
	}
	// First matching stub wins; order them most-specific first.
	for _, stub := range f.results {
		if strings.Contains(query, stub.substr) {
			v := stub.value
			return []models.MetricSeries{{
				Metric: map[string]string{},
				Values: []models.SeriesPoint{{Ts: float64(ts.Unix()), Value: strconv.FormatFloat(v, 'f', -1, 64)}},
			}}, nil
		}
	}
	return nil, nil
}

func (f *fakeProm) QueryRange(ctx context.Context, query string, start, end time.Time, step time.Duration) ([]models.MetricSeries, error) {
	return nil, nil
}

func noiseInvestigation(labels map[string]string, family models.Family) *models.Investigation {
	inv := models.NewInvestigation(models.AlertInstance{Labels: labels}, models.NewTimeWindow("15m", time.Now().UTC()))
	inv.SetMeta(models.MetaFamily, string(family))
	return inv
}

func TestFlapScore(t *testing.T) {
	assert.Equal(t, 0, FlapScore(0))
	assert.Equal(t, 20, FlapScore(1))
	assert.Equal(t, 60, FlapScore(3))
	assert.Equal(t, 100, FlapScore(5))
	assert.Equal(t, 100, FlapScore(50), "clamped at 100")
}

func TestNoiseAnalyzer_MissingCriticalLabels(t *testing.T) {
	a := NewNoiseAnalyzer(nil)
	inv := noiseInvestigation(map[string]string{
		"alertname": "KubernetesPodCrashLooping",
		"namespace": "payments",
	}, models.FamilyCrashloop)

	a.Analyze(context.Background(), inv)

	noise := inv.Analysis.Noise
	assert.Equal(t, []string{"pod", "container"}, noise.MissingLabels)
	assert.Equal(t, "unavailable", noise.PrometheusStatus)

	foundContainerHint := false
	for _, r := range noise.Recommendations {
		if strings.Contains(r, "container label") {
			foundContainerHint = true
		}
	}
	assert.True(t, foundContainerHint, "missing container label gets a rule-authoring hint")
}

func TestNoiseAnalyzer_EphemeralAndGroupBy(t *testing.T) {
	a := NewNoiseAnalyzer(nil)
	inv := noiseInvestigation(map[string]string{
		"alertname": "HighErrorRate",
		"namespace": "payments",
		"service":   "api",
		"pod":       "api-7f9c-x2v1",
		"instance":  "10.0.3.7:8080",
		"severity":  "warning",
	}, models.FamilyHTTP5xx)

	a.Analyze(context.Background(), inv)

	noise := inv.Analysis.Noise
	assert.ElementsMatch(t, []string{"pod", "instance"}, noise.EphemeralLabels)
	assert.ElementsMatch(t, []string{"alertname", "namespace", "service", "severity"}, noise.SuggestedGroupBy)
}

func TestNoiseAnalyzer_PrometheusBaseline(t *testing.T) {
	prom := &fakeProm{results: []promStub{
		{`alertstate="firing"`, 4},
		{"ALERTS_FOR_STATE", 2},
		{"count(ALERTS{", 6},
	}}
	a := NewNoiseAnalyzer(prom)
	inv := noiseInvestigation(map[string]string{"alertname": "HighErrorRate"}, models.FamilyHTTP5xx)

	a.Analyze(context.Background(), inv)

	noise := inv.Analysis.Noise
	assert.Equal(t, "ok", noise.PrometheusStatus)
	require.NotNil(t, noise.FiringAlerts)
	assert.Equal(t, 4, *noise.FiringAlerts)
	assert.Equal(t, 40, noise.FlapScore)
	assert.Equal(t, 4, inv.Evidence.Metrics.PromBaseline["firing_instances"])
}

func TestNoiseAnalyzer_PrometheusDown(t *testing.T) {
	a := NewNoiseAnalyzer(&fakeProm{err: context.DeadlineExceeded})
	inv := noiseInvestigation(map[string]string{"alertname": "HighErrorRate"}, models.FamilyHTTP5xx)

	a.Analyze(context.Background(), inv)

	assert.Equal(t, "unavailable", inv.Analysis.Noise.PrometheusStatus)
	assert.NotEmpty(t, inv.Errors)
}

func TestMarkInferred_ContainerRecoveredFromMetrics(t *testing.T) {
	inv := noiseInvestigation(map[string]string{"alertname": "CPUThrottlingHigh", "namespace": "payments"}, models.FamilyCPUThrottling)
	inv.Analysis.Noise.MissingLabels = []string{"pod", "container"}
	inv.Analysis.Features.Metrics.TopThrottledContainer = "worker"

	MarkInferred(inv)

	noise := inv.Analysis.Noise
	assert.Equal(t, []string{"pod"}, noise.MissingLabels)
	assert.Equal(t, "worker", noise.InferredLabels["container"])
}
