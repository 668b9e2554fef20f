package scoring

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tarkyaio/tarka/pkg/features"
	"github.com/tarkyaio/tarka/pkg/models"
)

func newInvestigation(family models.Family) *models.Investigation {
	inv := models.NewInvestigation(models.AlertInstance{
		Labels: map[string]string{"alertname": "TestAlert"},
	}, models.TimeWindow{})
	inv.SetMeta(models.MetaFamily, string(family))
	return inv
}

func fptr(v float64) *float64 { return &v }
func iptr(v int) *int         { return &v }
func bptr(v bool) *bool       { return &v }

func TestScore_CrashloopActionable(t *testing.T) {
	// Scenario: CrashLoopBackOff with exit code 137 and an active restart
	// loop backed by a strong hypothesis.
	inv := newInvestigation(models.FamilyCrashloop)
	inv.Analysis.Features.K8s.RestartRate5mMax = fptr(4.0)
	inv.Analysis.Features.K8s.RestartCount = iptr(12)
	inv.Analysis.Features.K8s.Ready = bptr(false)
	inv.Analysis.Features.K8s.WaitingReason = "CrashLoopBackOff"
	inv.Analysis.Hypotheses = []models.Hypothesis{
		{HypothesisID: "crashloop_oom", Confidence: 80, ProposedActions: []string{"raise the memory limit"}},
	}

	Score(inv)

	v := inv.Analysis.Verdict
	assert.Equal(t, models.ClassActionable, v.Classification)
	assert.Contains(t, []models.Severity{models.SeverityWarning, models.SeverityCritical}, v.Severity)
	assert.Contains(t, v.OneLiner, "restart_rate_5m_max=4.0")
	assert.Contains(t, v.NextSteps, "raise the memory limit")
}

func TestScore_ThrottlingContradictionIsInformational(t *testing.T) {
	// Scenario: throttling p95 30% but the container barely uses its limit.
	// A real but harmless signal is a limit-tuning question, never an
	// artifact and never actionable.
	inv := newInvestigation(models.FamilyCPUThrottling)
	inv.Analysis.Features.Metrics.ThrottlingP95 = fptr(0.30)
	inv.Analysis.Features.Metrics.TopThrottledUsageRatio = fptr(0.10)
	inv.Analysis.Features.Quality.ContradictionFlags = []string{features.ContradictionThrottlingHighUsageLow}

	Score(inv)

	v := inv.Analysis.Verdict
	assert.Equal(t, models.ClassInformational, v.Classification)
	assert.Contains(t, inv.Analysis.Scores.ReasonCodes, features.ContradictionThrottlingHighUsageLow)
}

func TestScore_ThrottlingContradictionStillYieldsNoisy(t *testing.T) {
	// The benign-throttling reroute does not outrank flap noise.
	inv := newInvestigation(models.FamilyCPUThrottling)
	inv.Analysis.Features.Metrics.ThrottlingP95 = fptr(0.30)
	inv.Analysis.Features.Quality.ContradictionFlags = []string{features.ContradictionThrottlingHighUsageLow}
	inv.Analysis.Noise.FlapScore = 100

	Score(inv)

	assert.Equal(t, models.ClassNoisy, inv.Analysis.Verdict.Classification)
}

func TestScore_TargetDownContradictionIsStaleArtifact(t *testing.T) {
	// Scenario: TargetDown fired but up() shows nothing down.
	inv := newInvestigation(models.FamilyTargetDown)
	inv.Analysis.Features.Metrics.UpTargetsDown = iptr(0)
	inv.Analysis.Features.Quality.ContradictionFlags = []string{features.ContradictionTargetDownUpNone}

	Score(inv)

	v := inv.Analysis.Verdict
	assert.Equal(t, models.ClassArtifact, v.Classification)
	assert.True(t, strings.HasPrefix(v.OneLiner, "Recovered/stale signal:"), v.OneLiner)
	assert.Contains(t, inv.Analysis.Scores.ReasonCodes, features.ContradictionTargetDownUpNone)
}

func TestScore_OOMArtifactDoesNotClaimOOM(t *testing.T) {
	inv := newInvestigation(models.FamilyOOMKilled)
	inv.Analysis.Features.Quality.ContradictionFlags = []string{features.ContradictionOOMWithoutEvidence}

	Score(inv)

	v := inv.Analysis.Verdict
	assert.Equal(t, models.ClassArtifact, v.Classification)
	assert.True(t, strings.HasPrefix(v.OneLiner, "Unconfirmed OOM signal:"), v.OneLiner)
}

func TestScore_NoisyClassification(t *testing.T) {
	inv := newInvestigation(models.FamilyCrashloop)
	inv.Analysis.Features.K8s.RestartRate5mMax = fptr(2.0)
	inv.Analysis.Features.K8s.Ready = bptr(false)
	inv.Analysis.Features.K8s.WaitingReason = "CrashLoopBackOff"
	inv.Analysis.Noise.FlapScore = 100

	Score(inv)

	assert.Equal(t, models.ClassNoisy, inv.Analysis.Verdict.Classification)
}

func TestScore_MissingLabelPenalties(t *testing.T) {
	inv := newInvestigation(models.FamilyCrashloop)
	inv.Analysis.Features.K8s.RestartRate5mMax = fptr(2.0)
	inv.Analysis.Features.Quality.MissingInputs = []string{
		features.MissingLabelNamespace,
		features.MissingLabelPod,
	}

	Score(inv)

	scores := inv.Analysis.Scores
	assert.Contains(t, scores.ReasonCodes, CodeMissingLabelNamespace)
	assert.Contains(t, scores.ReasonCodes, CodeMissingLabelPod)
	// 35 from the restart rate minus two -30 penalties, clamped at 0.
	assert.Equal(t, 0, scores.Confidence)
	assert.Equal(t, models.ClassArtifact, inv.Analysis.Verdict.Classification)
}

func TestScore_ClassificationMonotonicInImpact(t *testing.T) {
	base := func() *models.Investigation {
		inv := newInvestigation(models.FamilyCrashloop)
		inv.Analysis.Features.K8s.RestartRate5mMax = fptr(4.0)
		inv.Analysis.Features.K8s.WaitingReason = "CrashLoopBackOff"
		return inv
	}

	low := base()
	Score(low)

	high := base()
	high.Analysis.Features.K8s.Ready = bptr(false)
	high.Analysis.Features.K8s.RestartCount = iptr(30)
	Score(high)

	if low.Analysis.Verdict.Classification == models.ClassActionable {
		assert.Equal(t, models.ClassActionable, high.Analysis.Verdict.Classification,
			"adding impact must not demote actionable to informational")
	}
	assert.GreaterOrEqual(t, high.Analysis.Scores.Impact, low.Analysis.Scores.Impact)
}

func TestScore_SeverityGuardrail(t *testing.T) {
	// High impact but noise above 60 can never be critical.
	inv := newInvestigation(models.FamilyTargetDown)
	inv.Analysis.Features.Metrics.UpTargetsDown = iptr(5)
	inv.Analysis.Features.Metrics.FiringInstances = iptr(40)
	inv.Analysis.Noise.FlapScore = 65

	Score(inv)

	scores := inv.Analysis.Scores
	if scores.Confidence < 60 || scores.Noise > 60 {
		assert.NotEqual(t, models.SeverityCritical, inv.Analysis.Verdict.Severity)
	}
}

func TestScore_LongRunningInformationalGetsTip(t *testing.T) {
	inv := newInvestigation(models.FamilyCrashloop)
	inv.Analysis.Features.K8s.RestartRate5mMax = fptr(1.0)
	inv.Analysis.Features.K8s.WaitingReason = "CrashLoopBackOff"
	inv.Analysis.Features.Quality.IsLongRunning = true

	Score(inv)

	v := inv.Analysis.Verdict
	require.Equal(t, models.ClassInformational, v.Classification)
	found := false
	for _, step := range v.NextSteps {
		if strings.Contains(step, "72h") {
			found = true
		}
	}
	assert.True(t, found, "long-running informational verdicts carry an alert-quality tip")
}

func TestScore_AllAxesInRange(t *testing.T) {
	for _, family := range models.AllFamilies {
		t.Run(string(family), func(t *testing.T) {
			inv := newInvestigation(family)
			inv.Analysis.Features.K8s.RestartRate5mMax = fptr(99)
			inv.Analysis.Features.K8s.RestartCount = iptr(500)
			inv.Analysis.Features.K8s.Ready = bptr(false)
			inv.Analysis.Features.K8s.OOMKilled = true
			inv.Analysis.Features.Metrics.ThrottlingP95 = fptr(0.9)
			inv.Analysis.Features.Metrics.CPUNearLimit = true
			inv.Analysis.Features.Metrics.MemoryNearLimit = true
			inv.Analysis.Features.Metrics.UpTargetsDown = iptr(10)
			inv.Analysis.Features.Metrics.FiringInstances = iptr(200)
			inv.Analysis.Noise.FlapScore = 100
			inv.Analysis.Noise.EphemeralLabels = []string{"pod", "instance", "replica"}

			Score(inv)

			scores := inv.Analysis.Scores
			for _, v := range []int{scores.Impact, scores.Confidence, scores.Noise} {
				assert.GreaterOrEqual(t, v, 0)
				assert.LessOrEqual(t, v, 100)
			}
			seen := map[string]int{}
			for _, code := range scores.ReasonCodes {
				seen[code]++
			}
			for code, n := range seen {
				assert.Equalf(t, 1, n, "reason code %s appears once", code)
			}
		})
	}
}

func TestScore_GenericFallbackForUnknownFamily(t *testing.T) {
	inv := newInvestigation(models.Family("no_such_family"))
	Score(inv)
	assert.NotEmpty(t, inv.Analysis.Verdict.OneLiner)
	assert.Equal(t, models.SeverityInfo, inv.Analysis.Verdict.Severity)
}
