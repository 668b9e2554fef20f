package triage

import (
	"fmt"

	"github.com/tarkyaio/tarka/pkg/diagnose"
	"github.com/tarkyaio/tarka/pkg/models"
)

// Enrich produces the family-specific decision. Each family template uses
// {placeholder} fields resolved from the target and evidence; unresolved
// fields render as "unknown" rather than failing.
func Enrich(inv *models.Investigation) models.Decision {
	family := models.Family(inv.Family())
	ctx := placeholderContext(inv)

	var label string
	var why, next []string

	switch family {
	case models.FamilyCrashloop:
		label = "Crashloop enrichment"
		why = append(why, "restart history and previous-container logs are the fastest path to the crash cause")
		next = append(next,
			"kubectl logs {pod} -n {namespace} --previous --tail=100",
			"kubectl describe pod {pod} -n {namespace} | grep -A5 'Last State'",
			`max by (container) (increase(kube_pod_container_status_restarts_total{namespace="{namespace}",pod="{pod}"}[1h]))`,
		)
	case models.FamilyCPUThrottling:
		label = "CPU throttling enrichment"
		why = append(why, "per-container throttling pinpoints which limit is too tight")
		next = append(next,
			`sort_desc(max by (container) (rate(container_cpu_cfs_throttled_periods_total{namespace="{namespace}",pod=~"{pod}.*"}[5m]) / rate(container_cpu_cfs_periods_total{namespace="{namespace}",pod=~"{pod}.*"}[5m])))`,
			"kubectl get pod {pod} -n {namespace} -o jsonpath='{.spec.containers[*].resources}'",
		)
	case models.FamilyOOMKilled:
		label = "OOM enrichment"
		why = append(why, "compare working-set memory against the limit around the kill")
		next = append(next,
			`max by (container) (container_memory_working_set_bytes{namespace="{namespace}",pod="{pod}"}) / max by (container) (kube_pod_container_resource_limits{namespace="{namespace}",pod="{pod}",resource="memory"})`,
			"kubectl describe pod {pod} -n {namespace} | grep -B2 -A5 OOMKilled",
		)
	case models.FamilyHTTP5xx:
		label = "HTTP 5xx enrichment"
		why = append(why, "split the error rate by route and backing pod before blaming the service")
		next = append(next,
			`sum by (status) (rate(http_requests_total{namespace="{namespace}",service="{service}",status=~"5.."}[5m]))`,
			"kubectl get endpoints {service} -n {namespace}",
		)
	case models.FamilyJobFailed:
		label = "Job failure enrichment"
		why = append(why, "the job's pod termination state says more than the job condition")
		next = append(next,
			"kubectl -n {namespace} describe job {workload}",
			`kube_job_status_failed{namespace="{namespace}",job_name="{workload}"}`,
		)
	case models.FamilyTargetDown:
		label = "Target down enrichment"
		why = append(why, "confirm the scrape target, not the workload, is what disappeared")
		next = append(next,
			`up{job="{job}"} == 0`,
			"kubectl get endpoints -n {namespace} | grep {job}",
		)
	case models.FamilyRolloutHealth:
		label = "Rollout enrichment"
		why = append(why, "the rollout status and the new ReplicaSet's events hold the failure reason")
		next = append(next,
			"kubectl rollout status {workload_kind}/{workload} -n {namespace}",
			"kubectl get events -n {namespace} --sort-by=.lastTimestamp | tail -20",
		)
	default:
		label = "Generic enrichment"
		next = append(next, `ALERTS{alertname="{alertname}", alertstate="firing"}`)
	}

	decision := models.Decision{Label: label, Why: why}
	for _, step := range next {
		decision.Next = append(decision.Next, diagnose.RenderTemplate(step, ctx))
	}
	return decision
}

// placeholderContext builds the {placeholder} domain from the target plus
// values features recovered (e.g. the owning workload discovered from the
// owner chain when labels did not carry it).
func placeholderContext(inv *models.Investigation) map[string]string {
	target := inv.Target
	changes := inv.Analysis.Features.Changes

	workload := target.WorkloadName
	workloadKind := target.WorkloadKind
	if workload == "" {
		workload = changes.OwningWorkloadName
	}
	if workloadKind == "" {
		workloadKind = changes.OwningWorkloadKind
	}

	return map[string]string{
		"namespace":     target.Namespace,
		"pod":           target.Pod,
		"container":     target.Container,
		"workload":      workload,
		"workload_kind": workloadKind,
		"service":       target.Service,
		"job":           target.Job,
		"node":          target.Node,
		"alertname":     inv.Alert.Labels["alertname"],
	}
}

// Describe summarizes the decision for logs.
func Describe(d models.Decision) string {
	return fmt.Sprintf("%s (%d next steps)", d.Label, len(d.Next))
}
