package diagnose

import (
	"context"
	"fmt"

	"github.com/tarkyaio/tarka/pkg/models"
)

// CapacityModule turns resource-pressure features into hypotheses for
// throttling and memory-pressure families.
type CapacityModule struct{}

func NewCapacityModule() *CapacityModule { return &CapacityModule{} }

func (m *CapacityModule) ID() string { return "capacity" }

func (m *CapacityModule) Applies(inv *models.Investigation) bool {
	switch models.Family(inv.Family()) {
	case models.FamilyCPUThrottling, models.FamilyMemoryPressure, models.FamilyOOMKilled:
		return true
	}
	return false
}

func (m *CapacityModule) Collect(ctx context.Context, inv *models.Investigation) {}

func (m *CapacityModule) Diagnose(inv *models.Investigation) []models.Hypothesis {
	metrics := inv.Analysis.Features.Metrics
	var out []models.Hypothesis

	if metrics.ThrottlingP95 != nil && *metrics.ThrottlingP95 > 0 {
		h := models.Hypothesis{
			HypothesisID: "capacity-cpu-limit-too-low",
			Title:        "CPU limit too low for the workload",
			Confidence:   throttlingConfidence(metrics),
			Why: []string{
				fmt.Sprintf("throttling_p95=%.2f", *metrics.ThrottlingP95),
			},
		}
		if metrics.TopThrottledContainer != "" {
			h.Why = append(h.Why, fmt.Sprintf("top throttled container: %s", metrics.TopThrottledContainer))
		}
		if metrics.TopThrottledUsageRatio != nil {
			h.Why = append(h.Why, fmt.Sprintf("usage/limit ratio %.2f", *metrics.TopThrottledUsageRatio))
		}
		h.ProposedActions = []string{
			"Raise the CPU limit for the throttled container, or remove the limit and keep only the request",
		}
		h.NextTests = []string{fmt.Sprintf(
			`sort_desc(max by (container) (rate(container_cpu_cfs_throttled_periods_total{namespace="%s",pod=~"%s.*"}[5m]) / rate(container_cpu_cfs_periods_total{namespace="%s",pod=~"%s.*"}[5m])))`,
			inv.Target.Namespace, inv.Target.Pod, inv.Target.Namespace, inv.Target.Pod)}
		out = append(out, h)
	}

	if metrics.MemoryNearLimit {
		h := models.Hypothesis{
			HypothesisID: "capacity-memory-near-limit",
			Title:        "Memory usage approaching the limit",
			Confidence:   70,
			Why:          []string{"memory_usage_p95 is at 90% or more of the limit"},
			ProposedActions: []string{
				"Raise the memory limit before the OOM killer intervenes",
			},
		}
		if metrics.MemoryUsageP95 != nil && metrics.MemoryLimit != nil {
			h.Why = append(h.Why, fmt.Sprintf("memory p95 %.0f of limit %.0f", *metrics.MemoryUsageP95, *metrics.MemoryLimit))
		}
		out = append(out, h)
	}
	return out
}

// throttlingConfidence is low when throttling is high but actual usage is
// far from the limit, which points at a burst pattern rather than
// sustained starvation.
func throttlingConfidence(metrics models.FeaturesMetrics) int {
	ratio := metrics.TopThrottledUsageRatio
	if ratio == nil {
		ratio = metrics.CPUUsageOverLimitRatio
	}
	if ratio != nil && *ratio < 0.30 {
		return 35
	}
	if metrics.CPUNearLimit {
		return 80
	}
	return 60
}
