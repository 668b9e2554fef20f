package analyzers

import (
	"fmt"
	"sort"

	"github.com/tarkyaio/tarka/pkg/features"
	"github.com/tarkyaio/tarka/pkg/models"
)

const (
	rightsizeHeadroom    = 1.3
	underuseRatio        = 0.25
	nearLimitRatioCPU    = 0.80
	nearLimitRatioMemory = 0.90
)

// AnalyzeCapacity derives rightsizing rows from the collected metric
// series. Pure function over evidence; no queries of its own.
func AnalyzeCapacity(inv *models.Investigation) {
	report := models.CapacityReport{}

	report.Rightsizing = append(report.Rightsizing,
		rightsizeResource("cpu", inv.Evidence.Metrics.CPUUsage, inv.Evidence.Metrics.CPULimit, nearLimitRatioCPU)...)
	report.Rightsizing = append(report.Rightsizing,
		rightsizeResource("memory", inv.Evidence.Metrics.MemoryUsage, inv.Evidence.Metrics.MemoryLimit, nearLimitRatioMemory)...)

	for _, row := range report.Rightsizing {
		if row.Recommendation != "" {
			report.Recommendations = append(report.Recommendations,
				fmt.Sprintf("%s/%s: %s", row.Container, row.Resource, row.Recommendation))
		}
	}
	inv.Analysis.Capacity = report
}

func rightsizeResource(resource string, usage, limit []models.MetricSeries, nearRatio float64) []models.RightsizingRow {
	usageByContainer := perContainerP95(usage)
	limitByContainer := perContainerLatest(limit)

	names := make([]string, 0, len(usageByContainer))
	for name := range usageByContainer {
		names = append(names, name)
	}
	sort.Strings(names)

	var rows []models.RightsizingRow
	for _, name := range names {
		p95 := usageByContainer[name]
		row := models.RightsizingRow{Container: name, Resource: resource, UsageP95: &p95}

		lim, hasLimit := limitByContainer[name]
		if hasLimit {
			row.CurrentLimit = &lim
		}
		switch {
		case !hasLimit || lim == 0:
			row.Recommendation = fmt.Sprintf("no %s limit set; consider %s based on observed p95", resource, formatLimit(resource, p95*rightsizeHeadroom))
		case p95/lim >= nearRatio:
			row.Recommendation = fmt.Sprintf("raise the %s limit to %s (p95 at %.0f%% of limit)", resource, formatLimit(resource, p95*rightsizeHeadroom), p95/lim*100)
		case p95/lim <= underuseRatio:
			row.Recommendation = fmt.Sprintf("limit is oversized; p95 uses %.0f%% of it", p95/lim*100)
		}
		rows = append(rows, row)
	}
	return rows
}

func perContainerP95(series []models.MetricSeries) map[string]float64 {
	grouped := map[string][]float64{}
	for _, s := range series {
		name := s.Metric["container"]
		if name == "" {
			continue
		}
		for _, p := range s.Values {
			if f, ok := p.Float(); ok {
				grouped[name] = append(grouped[name], f)
			}
		}
	}
	out := map[string]float64{}
	for name, values := range grouped {
		if p := features.Percentile(values, 0.95); p != nil {
			out[name] = *p
		}
	}
	return out
}

func perContainerLatest(series []models.MetricSeries) map[string]float64 {
	out := map[string]float64{}
	latestTs := map[string]float64{}
	for _, s := range series {
		name := s.Metric["container"]
		if name == "" {
			continue
		}
		for _, p := range s.Values {
			f, ok := p.Float()
			if !ok {
				continue
			}
			if ts, seen := latestTs[name]; !seen || p.Ts >= ts {
				latestTs[name] = p.Ts
				out[name] = f
			}
		}
	}
	return out
}

func formatLimit(resource string, v float64) string {
	if resource == "memory" {
		return fmt.Sprintf("%.0fMi", v/(1024*1024))
	}
	return fmt.Sprintf("%.0fm", v*1000)
}
