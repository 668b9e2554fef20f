package pipeline

import (
	"context"
	"fmt"

	"github.com/tarkyaio/tarka/pkg/models"
)

// collectSignals is stage 8: cross-family series that are cheap to fetch and
// useful regardless of the detected family.
func (p *Pipeline) collectSignals(ctx context.Context, inv *models.Investigation) {
	if p.prom == nil || len(inv.Evidence.Metrics.HTTP5xx) > 0 {
		return
	}
	t := inv.Target
	if t.Namespace == "" || (t.Pod == "" && t.WorkloadName == "" && t.Service == "") {
		return
	}

	subject := t.Service
	if subject == "" {
		subject = t.WorkloadName
	}
	if subject == "" {
		subject = t.Pod
	}
	query := fmt.Sprintf(
		`sum (rate(http_requests_total{namespace=%q,status=~"5..",service=~"%s.*"}[5m]))`,
		t.Namespace, subject)
	w := inv.TimeWindow
	series, err := p.prom.QueryRange(ctx, query, w.StartTime, w.EndTime, metricsStep)
	if err != nil {
		inv.RecordError("signals.http_5xx", err)
		return
	}
	inv.Evidence.Metrics.HTTP5xx = series
}

// collectJobMetrics is stage 9: Job-family instant metrics keyed by job
// name. These survive pod TTL deletion, which makes them the backbone of
// historical mode.
func (p *Pipeline) collectJobMetrics(ctx context.Context, inv *models.Investigation) {
	if p.prom == nil || models.Family(inv.Family()) != models.FamilyJobFailed {
		return
	}
	t := inv.Target
	if t.Namespace == "" || t.WorkloadName == "" {
		return
	}

	metrics := map[string]string{
		"failed":    fmt.Sprintf(`max (kube_job_status_failed{namespace=%q,job_name=%q})`, t.Namespace, t.WorkloadName),
		"succeeded": fmt.Sprintf(`max (kube_job_status_succeeded{namespace=%q,job_name=%q})`, t.Namespace, t.WorkloadName),
		"active":    fmt.Sprintf(`max (kube_job_status_active{namespace=%q,job_name=%q})`, t.Namespace, t.WorkloadName),
	}
	out := map[string]any{}
	for name, query := range metrics {
		series, err := p.prom.Query(ctx, query, inv.TimeWindow.EndTime)
		if err != nil {
			inv.RecordError("job_metrics."+name, err)
			continue
		}
		if len(series) == 0 || len(series[0].Values) == 0 {
			continue
		}
		if v, ok := series[0].Values[len(series[0].Values)-1].Float(); ok {
			out[name] = v
		}
	}
	if len(out) > 0 {
		inv.Evidence.Metrics.JobMetrics = out
	}
}
