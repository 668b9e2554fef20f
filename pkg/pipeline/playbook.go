package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/tarkyaio/tarka/pkg/models"
)

// jobWindowPadding widens the re-anchored window so startup and teardown
// samples are not clipped.
const jobWindowPadding = 5 * time.Minute

// jobFailurePlaybook resolves the real Job pod. Job alerts arrive with
// scrape-pod identity only, so the pod is rediscovered via the Job's label
// selector. When the pods were already TTL-deleted the investigation
// continues in historical mode on metrics alone.
func (p *Pipeline) jobFailurePlaybook(ctx context.Context, inv *models.Investigation) {
	t := &inv.Target
	if p.kube == nil || t.Namespace == "" || t.WorkloadName == "" {
		return
	}

	status, err := p.kube.RolloutStatus(ctx, t.Namespace, "Job", t.WorkloadName)
	if err != nil {
		inv.RecordError("playbook.job.status", err)
		inv.SetMeta(models.MetaBlockedMode, "job_pods_not_found")
		return
	}
	inv.Evidence.K8s.RolloutStatus = status

	p.reanchorToJobLifetime(inv, status)

	selector, _ := status["selector"].(string)
	if selector == "" {
		selector = fmt.Sprintf("job-name=%s", t.WorkloadName)
	}
	pods, err := p.kube.ListPods(ctx, t.Namespace, selector)
	if err != nil {
		inv.RecordError("playbook.job.list_pods", err)
		inv.SetMeta(models.MetaBlockedMode, "job_pods_not_found")
		return
	}
	if len(pods) == 0 {
		inv.SetMeta(models.MetaBlockedMode, "job_pods_not_found")
		return
	}

	pod := pickFailedPod(pods)
	name, _ := pod["name"].(string)
	if name == "" {
		inv.SetMeta(models.MetaBlockedMode, "job_pods_not_found")
		return
	}
	t.Pod = name
	inv.Evidence.K8s.PodInfo = pod
}

// reanchorToJobLifetime moves the window to the Job's own start/completion
// span. Alerts about Jobs routinely fire after the pods finished; the default
// lookback would miss the interesting samples entirely.
func (p *Pipeline) reanchorToJobLifetime(inv *models.Investigation, status map[string]any) {
	start, ok := parseRFC3339(status["start_time"])
	if !ok {
		return
	}
	end, ok := parseRFC3339(status["completion_time"])
	if !ok {
		end = inv.TimeWindow.EndTime
	}
	inv.TimeWindow = models.WithBounds(start.Add(-jobWindowPadding), end.Add(jobWindowPadding))
}

// pickFailedPod prefers a pod with a failed phase; otherwise the first pod.
func pickFailedPod(pods []map[string]any) map[string]any {
	for _, pod := range pods {
		if phase, _ := pod["phase"].(string); phase == "Failed" {
			return pod
		}
	}
	return pods[0]
}

func parseRFC3339(v any) (time.Time, bool) {
	s, _ := v.(string)
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
