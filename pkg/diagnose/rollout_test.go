package diagnose

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tarkyaio/tarka/pkg/models"
)

func imagePullInvestigation(reason string) *models.Investigation {
	inv := models.NewInvestigation(models.AlertInstance{}, models.TimeWindow{})
	inv.SetMeta(models.MetaFamily, string(models.FamilyPodNotHealthy))
	inv.Target = models.TargetRef{
		TargetType: models.TargetPod,
		Namespace:  "payments",
		Pod:        "api-7f9c-x2v1",
	}
	inv.Analysis.Features.K8s.WaitingReason = reason
	return inv
}

func TestRolloutModule_ImagePullBackoff(t *testing.T) {
	m := NewRolloutModule()
	inv := imagePullInvestigation("ImagePullBackOff")

	hyps := m.Diagnose(inv)

	require.Len(t, hyps, 1)
	assert.Equal(t, "rollout-image-pull", hyps[0].HypothesisID)
	assert.Equal(t, 90, hyps[0].Confidence)
}

func TestRolloutModule_ECRNotFoundRaisesConfidence(t *testing.T) {
	m := NewRolloutModule()
	inv := imagePullInvestigation("ImagePullBackOff")
	inv.Evidence.K8s.ImagePullDiagnostics = map[string]any{
		"image":        "123.dkr.ecr.eu-west-1.amazonaws.com/payments/api:v9",
		"repository":   "payments/api",
		"tag":          "v9",
		"region":       "eu-west-1",
		"image_exists": false,
	}

	hyps := m.Diagnose(inv)

	require.Len(t, hyps, 1)
	h := hyps[0]
	assert.Equal(t, 95, h.Confidence)
	assert.Contains(t, h.Why, "Registry reported **NotFound** for payments/api:v9")
	assert.Contains(t, h.NextTests,
		"aws ecr describe-images --region eu-west-1 --repository-name payments/api --image-ids imageTag=v9")
}

func TestRolloutModule_ExistingImageKeepsBaseConfidence(t *testing.T) {
	m := NewRolloutModule()
	inv := imagePullInvestigation("ErrImagePull")
	inv.Evidence.K8s.ImagePullDiagnostics = map[string]any{
		"repository":   "payments/api",
		"tag":          "v9",
		"image_exists": true,
	}

	hyps := m.Diagnose(inv)

	require.Len(t, hyps, 1)
	assert.Equal(t, 90, hyps[0].Confidence)
}

func TestRolloutModule_NoWaitingReasonNoImageHypothesis(t *testing.T) {
	m := NewRolloutModule()
	inv := imagePullInvestigation("")

	assert.Empty(t, m.Diagnose(inv))
}

func TestRolloutModule_RecentRolloutHypothesis(t *testing.T) {
	m := NewRolloutModule()
	inv := imagePullInvestigation("")
	inv.Analysis.Features.Changes.RolloutWithinWindow = true
	inv.Analysis.Features.Changes.OwningWorkloadKind = "Deployment"
	inv.Analysis.Features.Changes.OwningWorkloadName = "api"
	inv.Analysis.Features.Changes.LastChangeTs = "2026-08-26T09:50:00Z"

	hyps := m.Diagnose(inv)

	require.Len(t, hyps, 1)
	assert.Equal(t, "rollout-recent-change", hyps[0].HypothesisID)
	assert.Contains(t, hyps[0].ProposedActions, "kubectl rollout undo Deployment/api -n payments")
}
