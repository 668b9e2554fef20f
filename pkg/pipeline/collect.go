package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tarkyaio/tarka/pkg/models"
	"github.com/tarkyaio/tarka/pkg/providers"
	"github.com/tarkyaio/tarka/pkg/providers/logsrc"
)

const (
	metricsStep   = time.Minute
	logFetchLimit = 500
)

// imagePullReasons are container waiting reasons that warrant a registry
// existence check.
var imagePullReasons = map[string]bool{
	"ImagePullBackOff": true,
	"ErrImagePull":     true,
	"InvalidImageName": true,
}

// collectEvidence is stage 3: the family playbook first, then the shared
// collectors. Every failure is recorded and the stage continues; an
// investigation with holes still scores and reports.
func (p *Pipeline) collectEvidence(ctx context.Context, inv *models.Investigation) {
	switch models.Family(inv.Family()) {
	case models.FamilyJobFailed:
		p.jobFailurePlaybook(ctx, inv)
	case models.FamilyHTTP5xx:
		// The 5xx series feeds feature extraction, so for this family it
		// is playbook evidence, not a late signal.
		p.collectSignals(ctx, inv)
	}

	p.collectK8s(ctx, inv)
	p.collectMetrics(ctx, inv)
	p.collectLogs(ctx, inv)
	p.collectImagePull(ctx, inv)
}

func (p *Pipeline) collectK8s(ctx context.Context, inv *models.Investigation) {
	if p.kube == nil {
		return
	}
	t := &inv.Target

	if t.Namespace != "" && t.Pod != "" {
		info, err := p.kube.PodInfo(ctx, t.Namespace, t.Pod)
		if err != nil {
			inv.RecordError("collect.k8s.pod_info", err)
		} else {
			inv.Evidence.K8s.PodInfo = info
		}

		conds, err := p.kube.PodConditions(ctx, t.Namespace, t.Pod)
		if err != nil {
			inv.RecordError("collect.k8s.pod_conditions", err)
		} else {
			inv.Evidence.K8s.PodConditions = conds
		}

		events, err := p.kube.PodEvents(ctx, t.Namespace, t.Pod)
		if err != nil {
			inv.RecordError("collect.k8s.pod_events", err)
		} else {
			inv.Evidence.K8s.PodEvents = events
		}

		chain, err := p.kube.OwnerChain(ctx, t.Namespace, t.Pod)
		if err != nil {
			inv.RecordError("collect.k8s.owner_chain", err)
		} else {
			inv.Evidence.K8s.OwnerChain = chain
		}
	}

	if inv.Evidence.K8s.RolloutStatus == nil && t.Namespace != "" && t.WorkloadKind != "" && t.WorkloadName != "" {
		status, err := p.kube.RolloutStatus(ctx, t.Namespace, t.WorkloadKind, t.WorkloadName)
		if err != nil {
			inv.RecordError("collect.k8s.rollout_status", err)
		} else {
			inv.Evidence.K8s.RolloutStatus = status
		}
	}
}

// collectMetrics pulls the base PromQL series every pod-scoped family
// consumes. The selector prefers the exact pod; workload-only targets fall
// back to a generated-name prefix match.
func (p *Pipeline) collectMetrics(ctx context.Context, inv *models.Investigation) {
	if p.prom == nil {
		return
	}
	sel := podSelector(inv.Target)
	if sel == "" {
		return
	}
	w := inv.TimeWindow

	queries := []struct {
		name  string
		query string
		dest  *[]models.MetricSeries
	}{
		{"throttling", fmt.Sprintf(
			`sum by (container) (rate(container_cpu_cfs_throttled_periods_total{%s}[5m])) / sum by (container) (rate(container_cpu_cfs_periods_total{%s}[5m]))`, sel, sel),
			&inv.Evidence.Metrics.Throttling},
		{"cpu_usage", fmt.Sprintf(
			`sum by (container) (rate(container_cpu_usage_seconds_total{%s,container!=""}[5m]))`, sel),
			&inv.Evidence.Metrics.CPUUsage},
		{"cpu_limit", fmt.Sprintf(
			`max by (container) (kube_pod_container_resource_limits{%s,resource="cpu"})`, sel),
			&inv.Evidence.Metrics.CPULimit},
		{"memory_usage", fmt.Sprintf(
			`max by (container) (container_memory_working_set_bytes{%s,container!=""})`, sel),
			&inv.Evidence.Metrics.MemoryUsage},
		{"memory_limit", fmt.Sprintf(
			`max by (container) (kube_pod_container_resource_limits{%s,resource="memory"})`, sel),
			&inv.Evidence.Metrics.MemoryLimit},
		{"restarts", fmt.Sprintf(
			`max by (pod) (rate(kube_pod_container_status_restarts_total{%s}[5m])) * 300`, sel),
			&inv.Evidence.Metrics.Restarts},
		{"pod_phase", fmt.Sprintf(
			`max by (phase) (kube_pod_status_phase{%s})`, sel),
			&inv.Evidence.Metrics.PodPhase},
	}
	for _, q := range queries {
		series, err := p.prom.QueryRange(ctx, q.query, w.StartTime, w.EndTime, metricsStep)
		if err != nil {
			inv.RecordError("collect.metrics."+q.name, err)
			continue
		}
		*q.dest = series
	}
}

func (p *Pipeline) collectLogs(ctx context.Context, inv *models.Investigation) {
	if p.logs == nil {
		return
	}
	t := &inv.Target
	if t.Namespace == "" || t.Pod == "" {
		return
	}
	ev := p.logs.FetchLogs(ctx, providers.LogQuery{
		Namespace: t.Namespace,
		Pod:       t.Pod,
		Container: t.Container,
		Start:     inv.TimeWindow.StartTime,
		End:       inv.TimeWindow.EndTime,
		Limit:     logFetchLimit,
	})
	ev.ParsedErrors = logsrc.ParseErrors(ev.Entries)
	inv.Evidence.Logs = ev
	if ev.Status == models.LogStatusUnavailable {
		inv.RecordError("collect.logs", fmt.Errorf("log backend %s unavailable: %s", ev.Backend, ev.Reason))
	}
}

// collectImagePull checks the registry when a container is stuck pulling.
// Confirms or refutes tag existence; the rollout module turns the result
// into a hypothesis.
func (p *Pipeline) collectImagePull(ctx context.Context, inv *models.Investigation) {
	if p.aws == nil {
		return
	}
	image := waitingImage(inv.Evidence.K8s.PodInfo)
	if image == "" {
		return
	}
	repo, tag := splitImage(image)
	if repo == "" || tag == "" {
		return
	}
	exists, err := p.aws.ECRImageExists(ctx, repo, tag)
	if err != nil {
		inv.RecordError("collect.aws.ecr", err)
		return
	}
	inv.Evidence.K8s.ImagePullDiagnostics = map[string]any{
		"image":        image,
		"repository":   repo,
		"tag":          tag,
		"image_exists": exists,
		"region":       p.cfg.AWSRegion,
	}
}

// waitingImage returns the image of the first container waiting on an image
// pull, or empty.
func waitingImage(podInfo map[string]any) string {
	for _, cs := range containerStatuses(podInfo) {
		waiting, _ := cs["waiting"].(map[string]any)
		if waiting == nil {
			continue
		}
		reason, _ := waiting["reason"].(string)
		if !imagePullReasons[reason] {
			continue
		}
		image, _ := cs["image"].(string)
		return image
	}
	return ""
}

// containerStatuses accepts both the provider shape and the []any a JSON
// round-trip produces, so replayed job files keep their statuses.
func containerStatuses(podInfo map[string]any) []map[string]any {
	if podInfo == nil {
		return nil
	}
	switch raw := podInfo["container_statuses"].(type) {
	case []map[string]any:
		return raw
	case []any:
		out := make([]map[string]any, 0, len(raw))
		for _, e := range raw {
			if m, ok := e.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	}
	return nil
}

// splitImage separates "registry/repo:tag" into the registry-relative
// repository and the tag. Digest references and untagged images return
// empty: there is nothing to look up by tag.
func splitImage(image string) (repo, tag string) {
	if strings.Contains(image, "@") {
		return "", ""
	}
	idx := strings.LastIndex(image, ":")
	if idx < 0 || strings.Contains(image[idx:], "/") {
		return "", ""
	}
	repo, tag = image[:idx], image[idx+1:]
	// Strip the registry host, identified by a dot or port in the first
	// path segment.
	if slash := strings.Index(repo, "/"); slash > 0 {
		host := repo[:slash]
		if strings.ContainsAny(host, ".:") || host == "localhost" {
			repo = repo[slash+1:]
		}
	}
	return repo, tag
}

// podSelector builds the PromQL label matcher for the target.
func podSelector(t models.TargetRef) string {
	if t.Namespace == "" {
		return ""
	}
	if t.Pod != "" {
		return fmt.Sprintf(`namespace=%q,pod=%q`, t.Namespace, t.Pod)
	}
	if t.WorkloadName != "" {
		return fmt.Sprintf(`namespace=%q,pod=~"%s-.*"`, t.Namespace, t.WorkloadName)
	}
	return ""
}
