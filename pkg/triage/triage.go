package triage

import (
	"fmt"
	"strings"

	"github.com/tarkyaio/tarka/pkg/models"
)

// Discriminators, in fixed priority order. They explain why triage could
// not resolve confidently; the label lists them in this order.
const (
	BlockedPrometheusUnavailable = "blocked_prometheus_unavailable"
	BlockedNoTargetIdentity      = "blocked_no_target_identity"
	BlockedNoK8sContext          = "blocked_no_k8s_context"
	BlockedJobPodsNotFound       = "blocked_job_pods_not_found"
	LogsMissing                  = "logs_missing"
	BlockedNoScopeNoIdentity     = "blocked_no_scope_no_identity"
)

var discriminatorOrder = []string{
	BlockedPrometheusUnavailable,
	BlockedNoTargetIdentity,
	BlockedNoK8sContext,
	BlockedJobPodsNotFound,
	LogsMissing,
	BlockedNoScopeNoIdentity,
}

// ScopeBucket buckets the firing-instance count into a human size class.
func ScopeBucket(firingInstances *int) string {
	if firingInstances == nil {
		return "Scope=unknown"
	}
	n := *firingInstances
	switch {
	case n <= 1:
		return "Single-instance"
	case n <= 5:
		return "Small"
	case n <= 20:
		return "Multi"
	case n <= 49:
		return "Broad"
	case n <= 100:
		return "Widespread"
	default:
		return "Massive"
	}
}

// Decide produces the base triage decision from features and noise. The
// label is human-facing and never parsed downstream.
func Decide(inv *models.Investigation) models.Decision {
	features := inv.Analysis.Features
	discriminators := detect(inv)

	label := fmt.Sprintf("%s • Impact=%s",
		ScopeBucket(features.Metrics.FiringInstances), impactLevel(&features))
	if len(discriminators) > 0 {
		label += " • " + strings.Join(discriminators, ", ")
	}

	return models.Decision{
		Label: label,
		Why:   whyBullets(inv, discriminators),
		Next:  nextSteps(inv, discriminators),
	}
}

func detect(inv *models.Investigation) []string {
	present := map[string]bool{}
	features := inv.Analysis.Features
	target := inv.Target

	if status := inv.Analysis.Noise.PrometheusStatus; status != "" && status != "ok" {
		present[BlockedPrometheusUnavailable] = true
	}
	if !target.HasIdentity() {
		present[BlockedNoTargetIdentity] = true
	}
	if (target.TargetType == models.TargetPod || target.TargetType == models.TargetWorkload) &&
		target.HasIdentity() && inv.Evidence.K8s.PodInfo == nil {
		present[BlockedNoK8sContext] = true
	}
	if inv.MetaString(models.MetaBlockedMode) == "job_pods_not_found" {
		present[BlockedJobPodsNotFound] = true
	}
	if inv.Evidence.Logs.Attempted() && features.Logs.Status != models.LogStatusOK {
		present[LogsMissing] = true
	}
	if features.Metrics.FiringInstances == nil && !target.HasIdentity() {
		present[BlockedNoScopeNoIdentity] = true
	}

	var out []string
	for _, d := range discriminatorOrder {
		if present[d] {
			out = append(out, d)
		}
	}
	return out
}

// impactLevel is a coarse read of the strongest impact-ish feature. It
// feeds the label only; real impact comes from scoring.
func impactLevel(f *models.DerivedFeatures) string {
	switch {
	case f.K8s.OOMKilled,
		f.K8s.PodPhase == "Failed",
		f.K8s.RestartRate5mMax != nil && *f.K8s.RestartRate5mMax >= 1,
		f.Metrics.HTTP5xxRateP95 != nil && *f.Metrics.HTTP5xxRateP95 >= 1,
		f.Metrics.UpTargetsDown != nil && *f.Metrics.UpTargetsDown >= 3:
		return "high"
	case f.K8s.Ready != nil && !*f.K8s.Ready,
		f.K8s.WaitingReason != "",
		f.Metrics.CPUNearLimit,
		f.Metrics.MemoryNearLimit,
		f.Metrics.UpTargetsDown != nil && *f.Metrics.UpTargetsDown > 0:
		return "medium"
	case f.K8s.PodPhase == "" && f.Metrics.FiringInstances == nil:
		return "unknown"
	default:
		return "low"
	}
}

func whyBullets(inv *models.Investigation, discriminators []string) []string {
	var why []string
	f := inv.Analysis.Features

	if f.K8s.PodPhase != "" {
		why = append(why, fmt.Sprintf("pod phase %s", f.K8s.PodPhase))
	}
	if f.K8s.WaitingReason != "" {
		why = append(why, fmt.Sprintf("container waiting: %s", f.K8s.WaitingReason))
	}
	if r := f.K8s.RestartRate5mMax; r != nil && *r > 0 {
		why = append(why, fmt.Sprintf("restart rate %.1f/5m", *r))
	}
	if n := f.Metrics.FiringInstances; n != nil {
		why = append(why, fmt.Sprintf("%d instances firing for this selector", *n))
	}
	for _, d := range discriminators {
		switch d {
		case BlockedPrometheusUnavailable:
			why = append(why, "Prometheus was unreachable; scope and flap data are missing")
		case BlockedNoTargetIdentity:
			why = append(why, "the alert labels do not identify an investigable target")
		case BlockedNoK8sContext:
			why = append(why, "the target pod could not be read from the Kubernetes API")
		case BlockedJobPodsNotFound:
			why = append(why, "the Job's pods were already deleted; running in historical mode")
		case LogsMissing:
			why = append(why, fmt.Sprintf("logs %s (%s)", f.Logs.Status, f.Logs.Reason))
		}
	}
	return why
}

// nextSteps generates scenario-driven discovery commands: PromQL first,
// kubectl as fallback.
func nextSteps(inv *models.Investigation, discriminators []string) []string {
	var next []string
	alertname := inv.Alert.Labels["alertname"]
	target := inv.Target

	for _, d := range discriminators {
		switch d {
		case BlockedPrometheusUnavailable:
			next = append(next, "Check Prometheus health before trusting scope numbers: up{job=\"prometheus\"}")
		case BlockedNoTargetIdentity:
			if alertname != "" {
				next = append(next, fmt.Sprintf(`count by (namespace, pod) (ALERTS{alertname="%s", alertstate="firing"})`, alertname))
			}
			next = append(next, "kubectl get pods -A --field-selector=status.phase!=Running | head -20")
		case BlockedNoK8sContext:
			next = append(next, fmt.Sprintf("kubectl get pod %s -n %s -o wide", target.Pod, target.Namespace))
		case BlockedJobPodsNotFound:
			next = append(next, fmt.Sprintf("kubectl -n %s describe job %s", target.Namespace, target.WorkloadName))
		case LogsMissing:
			if target.Pod != "" {
				next = append(next, fmt.Sprintf("kubectl logs %s -n %s --tail=100", target.Pod, target.Namespace))
			}
		}
	}
	if len(next) == 0 && alertname != "" {
		next = append(next, fmt.Sprintf(`ALERTS{alertname="%s"}`, alertname))
	}
	return next
}
