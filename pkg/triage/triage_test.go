package triage

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tarkyaio/tarka/pkg/models"
)

func iptr(v int) *int { return &v }

func TestScopeBucket(t *testing.T) {
	cases := []struct {
		n    *int
		want string
	}{
		{nil, "Scope=unknown"},
		{iptr(1), "Single-instance"},
		{iptr(2), "Small"},
		{iptr(5), "Small"},
		{iptr(6), "Multi"},
		{iptr(20), "Multi"},
		{iptr(21), "Broad"},
		{iptr(49), "Broad"},
		{iptr(50), "Widespread"},
		{iptr(100), "Widespread"},
		{iptr(101), "Massive"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ScopeBucket(tc.n))
	}
}

func TestDecide_DiscriminatorPriorityOrder(t *testing.T) {
	// Prometheus down and no target identity at once: both discriminators
	// appear, Prometheus first.
	inv := models.NewInvestigation(models.AlertInstance{
		Labels: map[string]string{"alertname": "SomethingBroken"},
	}, models.TimeWindow{})
	inv.Target = models.TargetRef{TargetType: models.TargetUnknown}
	inv.Analysis.Noise.PrometheusStatus = "unavailable"

	d := Decide(inv)

	promIdx := strings.Index(d.Label, BlockedPrometheusUnavailable)
	identityIdx := strings.Index(d.Label, BlockedNoTargetIdentity)
	require.GreaterOrEqual(t, promIdx, 0, d.Label)
	require.GreaterOrEqual(t, identityIdx, 0, d.Label)
	assert.Less(t, promIdx, identityIdx)
	assert.Contains(t, d.Label, "Scope=unknown")
	assert.NotEmpty(t, d.Next)
}

func TestDecide_NoK8sContext(t *testing.T) {
	inv := models.NewInvestigation(models.AlertInstance{}, models.TimeWindow{})
	inv.Target = models.TargetRef{
		TargetType: models.TargetPod,
		Namespace:  "payments",
		Pod:        "api-1",
	}
	inv.Analysis.Features.Metrics.FiringInstances = iptr(1)

	d := Decide(inv)
	assert.Contains(t, d.Label, BlockedNoK8sContext)
	assert.Contains(t, d.Label, "Single-instance")
}

func TestDecide_LogsMissingOnlyWhenAttempted(t *testing.T) {
	inv := models.NewInvestigation(models.AlertInstance{}, models.TimeWindow{})
	inv.Target = models.TargetRef{TargetType: models.TargetPod, Namespace: "payments", Pod: "api-1"}
	inv.Evidence.K8s.PodInfo = map[string]any{"phase": "Running"}
	inv.Analysis.Features.Metrics.FiringInstances = iptr(1)

	d := Decide(inv)
	assert.NotContains(t, d.Label, LogsMissing, "no fetch attempted, no discriminator")

	inv.Evidence.Logs.Status = models.LogStatusEmpty
	inv.Evidence.Logs.Backend = "loki"
	inv.Analysis.Features.Logs.Status = models.LogStatusEmpty

	d = Decide(inv)
	assert.Contains(t, d.Label, LogsMissing)
}

func TestDecide_JobPodsNotFound(t *testing.T) {
	inv := models.NewInvestigation(models.AlertInstance{}, models.TimeWindow{})
	inv.Target = models.TargetRef{
		TargetType:   models.TargetWorkload,
		Namespace:    "batch",
		WorkloadKind: "Job",
		WorkloadName: "nightly-sync",
	}
	inv.SetMeta(models.MetaFamily, string(models.FamilyJobFailed))
	inv.SetMeta(models.MetaBlockedMode, "job_pods_not_found")
	inv.Evidence.K8s.PodInfo = map[string]any{}
	inv.Analysis.Features.Metrics.FiringInstances = iptr(1)

	d := Decide(inv)
	assert.Contains(t, d.Label, BlockedJobPodsNotFound)
	assert.Contains(t, d.Next, "kubectl -n batch describe job nightly-sync")
}

func TestEnrich_ResolvesPlaceholders(t *testing.T) {
	inv := models.NewInvestigation(models.AlertInstance{
		Labels: map[string]string{"alertname": "KubernetesPodCrashLooping"},
	}, models.TimeWindow{})
	inv.SetMeta(models.MetaFamily, string(models.FamilyCrashloop))
	inv.Target = models.TargetRef{
		TargetType: models.TargetPod,
		Namespace:  "payments",
		Pod:        "api-7f9c-x2v1",
	}

	d := Enrich(inv)
	require.NotEmpty(t, d.Next)
	joined := strings.Join(d.Next, "\n")
	assert.Contains(t, joined, "kubectl logs api-7f9c-x2v1 -n payments --previous")
	assert.NotContains(t, joined, "{pod}")
	assert.NotContains(t, joined, "{namespace}")
}

func TestEnrich_MissingPlaceholderIsUnknown(t *testing.T) {
	inv := models.NewInvestigation(models.AlertInstance{}, models.TimeWindow{})
	inv.SetMeta(models.MetaFamily, string(models.FamilyJobFailed))
	inv.Target = models.TargetRef{TargetType: models.TargetWorkload, Namespace: "batch"}

	d := Enrich(inv)
	joined := strings.Join(d.Next, "\n")
	assert.Contains(t, joined, "unknown", "unresolved workload renders as unknown, never panics")
}

func TestEnrich_WorkloadRecoveredFromOwnerChain(t *testing.T) {
	inv := models.NewInvestigation(models.AlertInstance{}, models.TimeWindow{})
	inv.SetMeta(models.MetaFamily, string(models.FamilyRolloutHealth))
	inv.Target = models.TargetRef{TargetType: models.TargetPod, Namespace: "payments", Pod: "api-1"}
	inv.Analysis.Features.Changes.OwningWorkloadKind = "Deployment"
	inv.Analysis.Features.Changes.OwningWorkloadName = "api"

	d := Enrich(inv)
	joined := strings.Join(d.Next, "\n")
	assert.Contains(t, joined, "kubectl rollout status Deployment/api -n payments")
}
