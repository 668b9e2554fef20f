package report

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tarkyaio/tarka/pkg/models"
)

func reportInvestigation() *models.Investigation {
	inv := models.NewInvestigation(models.AlertInstance{
		Labels:          map[string]string{"alertname": "KubernetesPodCrashLooping", "namespace": "payments", "pod": "api-1"},
		NormalizedState: models.StateFiring,
		StartsAt:        "2026-08-26T09:00:00Z",
	}, models.NewTimeWindow("15m", time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC)))
	inv.CreatedAt = time.Date(2026, 8, 26, 10, 1, 0, 0, time.UTC)
	inv.SetMeta(models.MetaFamily, string(models.FamilyCrashloop))
	inv.Target = models.TargetRef{TargetType: models.TargetPod, Namespace: "payments", Pod: "api-1"}
	inv.Analysis.Decision = models.Decision{
		Label: "Single-instance • Impact=high",
		Why:   []string{"restart rate 4.0/5m"},
		Next:  []string{`kubectl logs api-1 -n payments --previous`},
	}
	inv.Analysis.Hypotheses = []models.Hypothesis{{
		HypothesisID:    "crashloop_oom",
		Title:           "Container killed by the kernel OOM killer",
		Confidence:      80,
		Why:             []string{"exit code 137"},
		ProposedActions: []string{"Raise the container memory limit"},
		NextTests:       []string{`max by (container) (container_memory_working_set_bytes{namespace="payments",pod="api-1"})`},
	}}
	inv.Analysis.Scores = models.DeterministicScores{
		Impact: 70, Confidence: 80, Noise: 10,
		ReasonCodes: []string{"RESTART_RATE_HIGH"},
		Breakdown: []models.ScoreBreakdownItem{
			{Code: "RESTART_RATE_HIGH", Axis: "impact", Delta: 40, FeatureRef: "k8s.restart_rate_5m_max"},
		},
	}
	inv.Analysis.Verdict = models.DeterministicVerdict{
		Classification: models.ClassActionable,
		OneLiner:       "KubernetesPodCrashLooping is actionable: restart_rate_5m_max=4.0",
		NextSteps:      []string{"Raise the container memory limit"},
		Severity:       models.SeverityWarning,
	}
	return inv
}

func TestRender_SectionOrder(t *testing.T) {
	md := Render(reportInvestigation())

	sections := []string{
		"# Investigation: KubernetesPodCrashLooping",
		"## Triage",
		"## Likely causes",
		"## Verdict",
		"## Scores",
		"## Reason codes",
		"## On-call next steps",
		"## Appendix",
	}
	last := -1
	for _, s := range sections {
		idx := strings.Index(md, s)
		require.GreaterOrEqual(t, idx, 0, "missing section %q", s)
		assert.Greater(t, idx, last, "section %q out of order", s)
		last = idx
	}
}

func TestRender_CodeFenceHeuristic(t *testing.T) {
	md := Render(reportInvestigation())

	assert.Contains(t, md, "```\nkubectl logs api-1 -n payments --previous\n```")
	assert.Contains(t, md, "```\nmax by (container) (container_memory_working_set_bytes")
	// Prose stays a bullet.
	assert.Contains(t, md, "- Raise the container memory limit")
}

func TestIsCodeLike(t *testing.T) {
	assert.True(t, IsCodeLike("kubectl get pods -n payments"))
	assert.True(t, IsCodeLike(`aws ecr describe-images --repository-name app`))
	assert.True(t, IsCodeLike(`rate(http_requests_total[5m])`))
	assert.True(t, IsCodeLike(`ALERTS{alertname="X"}`))
	assert.True(t, IsCodeLike(`up{job="node"} == 0`))
	assert.False(t, IsCodeLike("Check the dashboard for anomalies"))
	assert.False(t, IsCodeLike("Raise the memory limit to 512Mi"))
}

func TestRender_Deterministic(t *testing.T) {
	inv := reportInvestigation()
	inv.Analysis.Noise.InferredLabels = map[string]string{"container": "worker", "workload": "api"}

	first := Render(inv)
	second := Render(inv)
	assert.Equal(t, first, second, "byte-identical output on identical input")
}

func TestRender_SnippetInVerdict(t *testing.T) {
	inv := reportInvestigation()
	inv.Evidence.Logs.Status = models.LogStatusOK
	inv.Evidence.Logs.Backend = "loki"
	inv.Evidence.Logs.Entries = []models.LogEntry{
		{Timestamp: "2026-08-26T09:59:00Z", Message: "ERROR out of memory killing process"},
	}

	md := Render(inv)
	assert.Contains(t, md, "Latest error context:")
	assert.Contains(t, md, "out of memory killing process")
}

func TestRender_ErrorsSurfaceInAppendix(t *testing.T) {
	inv := reportInvestigation()
	inv.Errors = []string{"noise.prometheus: context deadline exceeded"}

	md := Render(inv)
	assert.Contains(t, md, "**Collection errors:** 1")
	assert.Contains(t, md, "- noise.prometheus: context deadline exceeded")
}
