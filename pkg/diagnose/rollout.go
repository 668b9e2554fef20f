package diagnose

import (
	"context"
	"fmt"

	"github.com/tarkyaio/tarka/pkg/models"
)

// RolloutModule relates rollout evidence to the incident for rollout-health
// and not-healthy families. Image-pull failures get a dedicated hypothesis
// because the fix differs from ordinary crash diagnosis.
type RolloutModule struct{}

func NewRolloutModule() *RolloutModule { return &RolloutModule{} }

func (m *RolloutModule) ID() string { return "rollout" }

func (m *RolloutModule) Applies(inv *models.Investigation) bool {
	switch models.Family(inv.Family()) {
	case models.FamilyRolloutHealth, models.FamilyPodNotHealthy, models.FamilyCrashloop:
		return true
	}
	return false
}

func (m *RolloutModule) Collect(ctx context.Context, inv *models.Investigation) {}

func (m *RolloutModule) Diagnose(inv *models.Investigation) []models.Hypothesis {
	var out []models.Hypothesis

	if h := m.imagePullHypothesis(inv); h != nil {
		out = append(out, *h)
	}
	if h := m.recentRolloutHypothesis(inv); h != nil {
		out = append(out, *h)
	}
	return out
}

func (m *RolloutModule) imagePullHypothesis(inv *models.Investigation) *models.Hypothesis {
	reason := inv.Analysis.Features.K8s.WaitingReason
	if reason != "ImagePullBackOff" && reason != "ErrImagePull" && reason != "InvalidImageName" {
		return nil
	}
	h := &models.Hypothesis{
		HypothesisID: "rollout-image-pull",
		Title:        "Image cannot be pulled",
		Confidence:   90,
		Why:          []string{fmt.Sprintf("container waiting with reason %s", reason)},
		NextTests: []string{
			fmt.Sprintf("kubectl describe pod %s -n %s | grep -A3 'Failed'", inv.Target.Pod, inv.Target.Namespace),
		},
		ProposedActions: []string{
			"Verify the image tag exists in the registry and the pull secret grants access",
		},
	}
	if diag := inv.Evidence.K8s.ImagePullDiagnostics; diag != nil {
		if exists, ok := diag["image_exists"].(bool); ok && !exists {
			h.Confidence = 95
			repo, _ := diag["repository"].(string)
			tag, _ := diag["tag"].(string)
			region, _ := diag["region"].(string)
			h.Why = append(h.Why, fmt.Sprintf("Registry reported **NotFound** for %s:%s", orUnknown(repo), orUnknown(tag)))
			h.NextTests = append(h.NextTests, fmt.Sprintf(
				"aws ecr describe-images --region %s --repository-name %s --image-ids imageTag=%s",
				orUnknown(region), orUnknown(repo), orUnknown(tag)))
			h.ProposedActions = []string{
				"Push the missing tag or roll the workload back to the last good image",
			}
		}
	}
	return h
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

func (m *RolloutModule) recentRolloutHypothesis(inv *models.Investigation) *models.Hypothesis {
	changes := inv.Analysis.Features.Changes
	if !changes.RolloutWithinWindow {
		return nil
	}
	return &models.Hypothesis{
		HypothesisID: "rollout-recent-change",
		Title:        "Failure started with a recent rollout",
		Confidence:   65,
		Why: []string{
			fmt.Sprintf("%s/%s changed at %s, inside the incident window", changes.OwningWorkloadKind, changes.OwningWorkloadName, changes.LastChangeTs),
		},
		NextTests: []string{
			fmt.Sprintf("kubectl rollout history %s/%s -n %s", changes.OwningWorkloadKind, changes.OwningWorkloadName, inv.Target.Namespace),
		},
		ProposedActions: []string{
			fmt.Sprintf("kubectl rollout undo %s/%s -n %s", changes.OwningWorkloadKind, changes.OwningWorkloadName, inv.Target.Namespace),
		},
	}
}
