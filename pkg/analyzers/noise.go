package analyzers

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/samber/lo"
	"github.com/tarkyaio/tarka/pkg/models"
	"github.com/tarkyaio/tarka/pkg/providers"
)

// Labels that identify one pod instance rather than the workload. Their
// presence in an alert selector multiplies cardinality for no routing
// value.
var ephemeralLabels = []string{"pod", "instance", "pod_ip", "uid", "replicaset", "endpoint"}

// Labels that survive rollouts and are safe to group on.
var stableLabels = []string{"alertname", "cluster", "namespace", "workload", "deployment", "service", "job", "severity", "team"}

// Critical location labels for pod-scoped families.
var criticalPodLabels = []string{"namespace", "pod", "container"}

const (
	flapLookback    = "6h"
	flapMultiplier  = 20.0
	promQueryBudget = 10 * time.Second
)

// NoiseAnalyzer grades alert hygiene: label shape, firing scope, flap
// behavior. It also snapshots the Prometheus baseline other stages read.
type NoiseAnalyzer struct {
	prom providers.Prometheus
}

// NewNoiseAnalyzer creates the analyzer. prom may be nil; label-shape
// analysis still runs and prometheus status reports unavailable.
func NewNoiseAnalyzer(prom providers.Prometheus) *NoiseAnalyzer {
	return &NoiseAnalyzer{prom: prom}
}

// Analyze fills Analysis.Noise and the PromBaseline evidence map.
func (a *NoiseAnalyzer) Analyze(ctx context.Context, inv *models.Investigation) {
	insights := models.NoiseInsights{}

	a.labelShape(inv, &insights)
	a.prometheusScope(ctx, inv, &insights)
	a.recommend(inv, &insights)

	inv.Analysis.Noise = insights
}

func (a *NoiseAnalyzer) labelShape(inv *models.Investigation, insights *models.NoiseInsights) {
	labels := inv.Alert.Labels

	if podScopedFamily(models.Family(inv.Family())) {
		for _, l := range criticalPodLabels {
			if labels[l] == "" {
				insights.MissingLabels = append(insights.MissingLabels, l)
			}
		}
	}
	for _, l := range ephemeralLabels {
		if labels[l] != "" {
			insights.EphemeralLabels = append(insights.EphemeralLabels, l)
		}
	}

	var groupBy []string
	for _, l := range stableLabels {
		if labels[l] != "" {
			groupBy = append(groupBy, l)
		}
	}
	sort.Strings(groupBy)
	insights.SuggestedGroupBy = lo.Uniq(groupBy)
}

// prometheusScope runs the ALERTS baseline queries. Results also land in
// the PromBaseline evidence map so feature extraction can read
// firing_instances without re-querying.
func (a *NoiseAnalyzer) prometheusScope(ctx context.Context, inv *models.Investigation, insights *models.NoiseInsights) {
	alertname := inv.Alert.Labels["alertname"]
	if a.prom == nil || alertname == "" {
		insights.PrometheusStatus = "unavailable"
		return
	}
	qctx, cancel := context.WithTimeout(ctx, promQueryBudget)
	defer cancel()

	now := inv.TimeWindow.EndTime
	baseline := map[string]any{}

	active, err := a.instantCount(qctx, fmt.Sprintf(`count(ALERTS{alertname=%q})`, alertname), now)
	if err != nil {
		inv.RecordError("noise.prometheus", err)
		insights.PrometheusStatus = "unavailable"
		return
	}
	insights.PrometheusStatus = "ok"
	insights.ActiveAlerts = active

	firing, err := a.instantCount(qctx, fmt.Sprintf(`count(ALERTS{alertname=%q, alertstate="firing"})`, alertname), now)
	if err != nil {
		inv.RecordError("noise.prometheus", err)
	} else {
		insights.FiringAlerts = firing
		if firing != nil {
			baseline["firing_instances"] = *firing
		}
	}

	flapQuery := fmt.Sprintf(`max(resets(ALERTS_FOR_STATE{alertname=%q}[%s]))`, alertname, flapLookback)
	if flaps, err := a.instantValue(qctx, flapQuery, now); err != nil {
		inv.RecordError("noise.flap", err)
	} else if flaps != nil {
		insights.FlapCount = flaps
		insights.FlapScore = FlapScore(*flaps)
	}

	if job := inv.Target.Job; job != "" && models.Family(inv.Family()) == models.FamilyTargetDown {
		if down, err := a.instantCount(qctx, fmt.Sprintf(`count(up{job=%q} == 0)`, job), now); err != nil {
			inv.RecordError("noise.up", err)
		} else if down != nil {
			baseline["up_targets_down"] = *down
		} else {
			baseline["up_targets_down"] = 0
		}
	}

	if len(baseline) > 0 {
		inv.Evidence.Metrics.PromBaseline = baseline
	}
}

// FlapScore converts a resets() count to 0-100.
func FlapScore(flaps float64) int {
	score := int(math.Round(flaps * flapMultiplier))
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

func (a *NoiseAnalyzer) recommend(inv *models.Investigation, insights *models.NoiseInsights) {
	for _, missing := range insights.MissingLabels {
		switch missing {
		case "container":
			insights.Recommendations = append(insights.Recommendations,
				`Add a container label to the alert rule, e.g. "... by (namespace, pod, container)" in the rule expression, so container-scoped evidence can be collected`)
		default:
			insights.Recommendations = append(insights.Recommendations,
				fmt.Sprintf("Add the %s label to the alert rule so investigations can scope evidence", missing))
		}
	}
	if len(insights.EphemeralLabels) > 0 && len(insights.SuggestedGroupBy) > 0 {
		insights.Recommendations = append(insights.Recommendations,
			fmt.Sprintf("Group alerts on stable dimensions %v instead of ephemeral %v", insights.SuggestedGroupBy, insights.EphemeralLabels))
	}
}

// MarkInferred moves labels from missing to inferred when features
// recovered the value from evidence, e.g. the top-throttled container. The
// pipeline calls it after feature extraction.
func MarkInferred(inv *models.Investigation) {
	insights := &inv.Analysis.Noise
	inferred := map[string]string{}

	if c := inv.Analysis.Features.Metrics.TopThrottledContainer; c != "" {
		inferred["container"] = c
	}
	if w := inv.Analysis.Features.Changes.OwningWorkloadName; w != "" && inv.Alert.Labels["workload"] == "" {
		inferred["workload"] = w
	}
	if len(inferred) == 0 {
		return
	}

	var stillMissing []string
	for _, l := range insights.MissingLabels {
		if _, ok := inferred[l]; !ok {
			stillMissing = append(stillMissing, l)
		}
	}
	insights.MissingLabels = stillMissing
	insights.InferredLabels = inferred
}

func podScopedFamily(f models.Family) bool {
	switch f {
	case models.FamilyCrashloop, models.FamilyPodNotHealthy, models.FamilyCPUThrottling,
		models.FamilyOOMKilled, models.FamilyMemoryPressure:
		return true
	}
	return false
}

func (a *NoiseAnalyzer) instantCount(ctx context.Context, query string, ts time.Time) (*int, error) {
	v, err := a.instantValue(ctx, query, ts)
	if err != nil || v == nil {
		return nil, err
	}
	n := int(*v)
	return &n, nil
}

func (a *NoiseAnalyzer) instantValue(ctx context.Context, query string, ts time.Time) (*float64, error) {
	series, err := a.prom.Query(ctx, query, ts)
	if err != nil {
		return nil, err
	}
	for _, s := range series {
		for _, p := range s.Values {
			if f, ok := p.Float(); ok {
				return &f, nil
			}
		}
	}
	return nil, nil
}
