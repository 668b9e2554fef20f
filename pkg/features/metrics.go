package features

import (
	"sort"

	"github.com/tarkyaio/tarka/pkg/models"
)

const (
	cpuNearLimitRatio    = 0.80
	memoryNearLimitRatio = 0.90
)

// ExtractMetrics projects PromQL evidence into FeaturesMetrics. container
// optionally restricts throttling to the target container.
func ExtractMetrics(ev *models.Evidence, container string) models.FeaturesMetrics {
	var out models.FeaturesMetrics

	out.ThrottlingP95 = Percentile(seriesValuesForContainer(ev.Metrics.Throttling, container), 0.95)
	out.TopThrottledContainer, out.TopThrottledUsageRatio = topThrottled(ev)

	out.CPUUsageP95 = Percentile(seriesValues(ev.Metrics.CPUUsage), 0.95)
	out.CPULimit = latestSeriesValue(ev.Metrics.CPULimit)
	out.CPUUsageOverLimitRatio = ratio(out.CPUUsageP95, out.CPULimit)
	out.CPUNearLimit = ratioAtLeast(out.CPUUsageOverLimitRatio, cpuNearLimitRatio)

	out.MemoryUsageP95 = Percentile(seriesValues(ev.Metrics.MemoryUsage), 0.95)
	out.MemoryLimit = latestSeriesValue(ev.Metrics.MemoryLimit)
	out.MemoryUsageOverLimit = ratio(out.MemoryUsageP95, out.MemoryLimit)
	out.MemoryNearLimit = ratioAtLeast(out.MemoryUsageOverLimit, memoryNearLimitRatio)

	out.HTTP5xxRateP95 = Percentile(seriesValues(ev.Metrics.HTTP5xx), 0.95)

	out.PodPhaseSignal = podPhaseSignal(ev.Metrics.PodPhase)

	if ev.Metrics.PromBaseline != nil {
		if n, ok := asInt(ev.Metrics.PromBaseline["firing_instances"]); ok {
			out.FiringInstances = &n
		}
		if n, ok := asInt(ev.Metrics.PromBaseline["up_targets_down"]); ok {
			out.UpTargetsDown = &n
		}
	}
	if ev.Metrics.JobMetrics != nil {
		if f, ok := asFloat(ev.Metrics.JobMetrics["failed_count"]); ok {
			out.JobFailedCount = &f
		}
	}
	return out
}

// topThrottled finds the container with the highest per-container throttling
// p95 and computes its cpu usage/limit ratio. This recovers a container
// identity for alerts whose rule dropped the container label.
func topThrottled(ev *models.Evidence) (string, *float64) {
	byContainer := map[string][]float64{}
	for _, s := range ev.Metrics.Throttling {
		name := s.Metric["container"]
		if name == "" {
			continue
		}
		for _, point := range s.Values {
			if f, ok := point.Float(); ok {
				byContainer[name] = append(byContainer[name], f)
			}
		}
	}
	if len(byContainer) == 0 {
		return "", nil
	}

	names := make([]string, 0, len(byContainer))
	for name := range byContainer {
		names = append(names, name)
	}
	sort.Strings(names)

	top := ""
	var topP95 float64
	for _, name := range names {
		p := Percentile(byContainer[name], 0.95)
		if p == nil {
			continue
		}
		if top == "" || *p > topP95 {
			top = name
			topP95 = *p
		}
	}
	if top == "" {
		return "", nil
	}

	usage := Percentile(seriesValuesForContainer(ev.Metrics.CPUUsage, top), 0.95)
	limit := latestValueForContainer(ev.Metrics.CPULimit, top)
	return top, ratio(usage, limit)
}

func latestValueForContainer(series []models.MetricSeries, container string) *float64 {
	var filtered []models.MetricSeries
	for _, s := range series {
		if s.Metric["container"] == container {
			filtered = append(filtered, s)
		}
	}
	return latestSeriesValue(filtered)
}

func podPhaseSignal(series []models.MetricSeries) string {
	best := ""
	var bestValue float64
	for _, s := range series {
		phase := s.Metric["phase"]
		if phase == "" {
			continue
		}
		v := latestSeriesValue([]models.MetricSeries{s})
		if v == nil || *v <= 0 {
			continue
		}
		if best == "" || *v > bestValue || (*v == bestValue && phase < best) {
			best = phase
			bestValue = *v
		}
	}
	return best
}

func ratio(numerator, denominator *float64) *float64 {
	if numerator == nil || denominator == nil || *denominator == 0 {
		return nil
	}
	r := *numerator / *denominator
	return &r
}

func ratioAtLeast(r *float64, threshold float64) bool {
	return r != nil && *r >= threshold
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
