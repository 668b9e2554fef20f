package diagnose

import (
	"context"
	"fmt"

	"github.com/tarkyaio/tarka/pkg/models"
)

// JobFailureModule diagnoses failed Kubernetes Jobs. It works off evidence
// already collected by the job playbook; the historical mode (pods deleted
// by TTL) is recognized via the blocked marker.
type JobFailureModule struct{}

func NewJobFailureModule() *JobFailureModule { return &JobFailureModule{} }

func (m *JobFailureModule) ID() string { return "job_failure" }

func (m *JobFailureModule) Applies(inv *models.Investigation) bool {
	return models.Family(inv.Family()) == models.FamilyJobFailed
}

func (m *JobFailureModule) Collect(ctx context.Context, inv *models.Investigation) {}

func (m *JobFailureModule) Diagnose(inv *models.Investigation) []models.Hypothesis {
	if inv.MetaString(models.MetaBlockedMode) == "job_pods_not_found" {
		return []models.Hypothesis{m.historicalHypothesis(inv)}
	}

	var out []models.Hypothesis
	if h := m.exitHypothesis(inv); h != nil {
		out = append(out, *h)
	}
	if matches := MatchPatterns(AllPatterns(), inv.Evidence.Logs.ParsedErrors); len(matches) > 0 {
		h := matches[0].Hypothesis()
		h.SupportingRefs = append(h.SupportingRefs, "job pod logs")
		out = append(out, h)
	}
	if len(out) == 0 {
		out = append(out, m.genericHypothesis(inv))
	}
	return out
}

func (m *JobFailureModule) historicalHypothesis(inv *models.Investigation) models.Hypothesis {
	name := inv.Target.WorkloadName
	return models.Hypothesis{
		HypothesisID: "jobfail-pods-deleted",
		Title:        "Job pods already deleted; only historical evidence remains",
		Confidence:   50,
		Why: []string{
			"the Job's ttlSecondsAfterFinished or controller cleanup removed the pods before investigation",
		},
		NextTests: []string{
			fmt.Sprintf("kubectl -n %s describe job %s", inv.Target.Namespace, name),
			fmt.Sprintf(`increase(kube_job_status_failed{namespace="%s",job_name="%s"}[24h])`, inv.Target.Namespace, name),
		},
		ProposedActions: []string{
			"Raise ttlSecondsAfterFinished so failed pods survive long enough to inspect",
		},
	}
}

func (m *JobFailureModule) exitHypothesis(inv *models.Investigation) *models.Hypothesis {
	code, ok := lastExitCode(inv.Evidence.K8s.PodInfo)
	if !ok {
		return nil
	}
	if code == exitCodeOOM {
		return &models.Hypothesis{
			HypothesisID: "jobfail-oom",
			Title:        "Job pod killed by the OOM killer",
			Confidence:   85,
			Why:          []string{"job pod terminated with exit code 137"},
			ProposedActions: []string{
				"Raise the job's memory limit; batch workloads often spike above steady-state usage",
			},
		}
	}
	return &models.Hypothesis{
		HypothesisID: "jobfail-nonzero-exit",
		Title:        fmt.Sprintf("Job pod exited with code %d", code),
		Confidence:   65,
		Why:          []string{fmt.Sprintf("job pod terminated with exit code %d", code)},
		NextTests: []string{
			fmt.Sprintf("kubectl logs job/%s -n %s --tail=100", inv.Target.WorkloadName, inv.Target.Namespace),
		},
	}
}

func (m *JobFailureModule) genericHypothesis(inv *models.Investigation) models.Hypothesis {
	return models.Hypothesis{
		HypothesisID: "jobfail-generic",
		Title:        "Job failed without a matched signature",
		Confidence:   30,
		Why:          []string{"kube_job_status_failed fired but pod evidence carries no recognized failure signal"},
		NextTests: []string{
			fmt.Sprintf("kubectl describe job %s -n %s", inv.Target.WorkloadName, inv.Target.Namespace),
		},
	}
}
