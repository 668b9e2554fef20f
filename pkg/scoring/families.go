package scoring

import (
	"fmt"

	"github.com/tarkyaio/tarka/pkg/features"
	"github.com/tarkyaio/tarka/pkg/models"
)

// Reason codes shared across families.
const (
	CodeMissingLabelNamespace = "MISSING_LABEL_NAMESPACE"
	CodeMissingLabelPod       = "MISSING_LABEL_POD"
	CodeEvidenceQualityLow    = "EVIDENCE_QUALITY_LOW"
	CodeFlapScore             = "FLAP_SCORE"
	CodeEphemeralLabels       = "EPHEMERAL_LABELS"
)

// Family-specific reason codes.
const (
	CodeRestartRateHigh     = "RESTART_RATE_HIGH"
	CodeRestartsPresent     = "RESTARTS_PRESENT"
	CodeOOMEvidence         = "OOM_EVIDENCE"
	CodeWarningEvents       = "WARNING_EVENTS"
	CodePodNotReady         = "POD_NOT_READY"
	CodePodPhaseBad         = "POD_PHASE_BAD"
	CodeWaitingReason       = "WAITING_REASON"
	CodeLogErrorsPresent    = "LOG_ERRORS_PRESENT"
	CodeStrongHypothesis    = "STRONG_HYPOTHESIS"
	CodeThrottlingHigh      = "THROTTLING_HIGH"
	CodeCPUNearLimit        = "CPU_NEAR_LIMIT"
	CodeMemoryNearLimit     = "MEMORY_NEAR_LIMIT"
	CodeHTTP5xxElevated     = "HTTP_5XX_ELEVATED"
	CodeUpTargetsDown       = "UP_TARGETS_DOWN"
	CodeJobFailed           = "JOB_FAILED"
	CodeJobEvidenceBlocked  = "JOB_EVIDENCE_BLOCKED"
	CodeRolloutCorrelated   = "ROLLOUT_CORRELATED"
	CodeRolloutStuck        = "ROLLOUT_STUCK"
	CodeScopeWide           = "SCOPE_WIDE"
	CodeGenericSignal       = "GENERIC_SIGNAL"
)

// contradictionPenalties maps each contradiction flag to its confidence
// delta. The flag string doubles as the reason code.
var contradictionPenalties = map[string]int{
	features.ContradictionCrashloopReadyNoRestarts: -40,
	features.ContradictionThrottlingHighUsageLow:   -25,
	features.ContradictionTargetDownUpNone:         -30,
	features.ContradictionOOMWithoutEvidence:       -35,
}

// staleSignalCodes is the closed set of contradiction codes that mean the
// alert described a condition that has since recovered, rather than one we
// failed to attribute.
var staleSignalCodes = map[string]bool{
	features.ContradictionCrashloopReadyNoRestarts: true,
	features.ContradictionTargetDownUpNone:         true,
}

type familyScorer func(inv *models.Investigation, sc *Scorecard)

var familyScorers = map[models.Family]familyScorer{
	models.FamilyCrashloop:      scoreCrashloop,
	models.FamilyPodNotHealthy:  scorePodNotHealthy,
	models.FamilyCPUThrottling:  scoreCPUThrottling,
	models.FamilyHTTP5xx:        scoreHTTP5xx,
	models.FamilyOOMKilled:      scoreOOMKilled,
	models.FamilyMemoryPressure: scoreMemoryPressure,
	models.FamilyRolloutHealth:  scoreRolloutHealth,
	models.FamilyTargetDown:     scoreTargetDown,
	models.FamilyObservability:  scoreGeneric,
	models.FamilyMeta:           scoreGeneric,
	models.FamilyJobFailed:      scoreJobFailed,
	models.FamilyGeneric:        scoreGeneric,
}

func scorerFor(family models.Family) familyScorer {
	if fn, ok := familyScorers[family]; ok {
		return fn
	}
	return scoreGeneric
}

func scoreCrashloop(inv *models.Investigation, sc *Scorecard) {
	k8s := inv.Analysis.Features.K8s

	if r := k8s.RestartRate5mMax; r != nil && *r > 0 {
		sc.Add(AxisImpact, CodeRestartRateHigh, 40, "k8s.restart_rate_5m_max",
			fmt.Sprintf("restart_rate_5m_max=%.1f", *r))
		sc.Add(AxisConfidence, CodeRestartRateHigh, 35, "k8s.restart_rate_5m_max",
			"restart rate confirms an active loop")
	} else if k8s.RestartCount != nil && *k8s.RestartCount > 0 {
		sc.Add(AxisImpact, CodeRestartsPresent, 25, "k8s.restart_count",
			fmt.Sprintf("restart_count=%d", *k8s.RestartCount))
		sc.Add(AxisConfidence, CodeRestartsPresent, 20, "k8s.restart_count", "")
	}
	if k8s.Ready != nil && !*k8s.Ready {
		sc.Add(AxisImpact, CodePodNotReady, 20, "k8s.ready", "pod not Ready")
		sc.Add(AxisConfidence, CodePodNotReady, 15, "k8s.ready", "")
	}
	if k8s.WaitingReason == "CrashLoopBackOff" {
		sc.Add(AxisConfidence, CodeWaitingReason, 25, "k8s.waiting_reason", "container waiting in CrashLoopBackOff")
	}
	if k8s.WarningEventsCount > 0 {
		sc.Add(AxisConfidence, CodeWarningEvents, 10, "k8s.warning_events_count",
			fmt.Sprintf("%d warning events", k8s.WarningEventsCount))
	}
	scoreLogSupport(inv, sc)
	scoreHypothesisSupport(inv, sc)
}

func scorePodNotHealthy(inv *models.Investigation, sc *Scorecard) {
	k8s := inv.Analysis.Features.K8s

	switch k8s.PodPhase {
	case "Failed":
		sc.Add(AxisImpact, CodePodPhaseBad, 45, "k8s.pod_phase", "pod phase Failed")
		sc.Add(AxisConfidence, CodePodPhaseBad, 30, "k8s.pod_phase", "")
	case "Pending":
		sc.Add(AxisImpact, CodePodPhaseBad, 30, "k8s.pod_phase", "pod phase Pending")
		sc.Add(AxisConfidence, CodePodPhaseBad, 25, "k8s.pod_phase", "")
	}
	if k8s.Ready != nil && !*k8s.Ready {
		sc.Add(AxisImpact, CodePodNotReady, 25, "k8s.ready", "pod not Ready")
		sc.Add(AxisConfidence, CodePodNotReady, 25, "k8s.ready", "")
	}
	if k8s.WaitingReason != "" {
		sc.Add(AxisConfidence, CodeWaitingReason, 20, "k8s.waiting_reason",
			fmt.Sprintf("waiting_reason=%s", k8s.WaitingReason))
	}
	if k8s.WarningEventsCount > 0 {
		sc.Add(AxisConfidence, CodeWarningEvents, 10, "k8s.warning_events_count", "")
	}
	if inv.Analysis.Features.Changes.RolloutWithinWindow {
		sc.Add(AxisConfidence, CodeRolloutCorrelated, 10, "changes.rollout_within_window",
			"a rollout landed inside the incident window")
	}
	scoreHypothesisSupport(inv, sc)
}

func scoreCPUThrottling(inv *models.Investigation, sc *Scorecard) {
	metrics := inv.Analysis.Features.Metrics

	if metrics.ThrottlingP95 != nil {
		t := *metrics.ThrottlingP95
		delta := 0
		switch {
		case t >= 0.50:
			delta = 50
		case t >= 0.25:
			delta = 35
		case t > 0.05:
			delta = 20
		}
		if delta > 0 {
			sc.Add(AxisImpact, CodeThrottlingHigh, delta, "metrics.throttling_p95",
				fmt.Sprintf("throttling_p95=%.2f", t))
			sc.Add(AxisConfidence, CodeThrottlingHigh, 30, "metrics.throttling_p95", "")
		}
	}
	if metrics.CPUNearLimit {
		sc.Add(AxisImpact, CodeCPUNearLimit, 20, "metrics.cpu_near_limit", "cpu p95 at 80% or more of limit")
		sc.Add(AxisConfidence, CodeCPUNearLimit, 25, "metrics.cpu_near_limit", "")
	}
	scoreHypothesisSupport(inv, sc)
}

func scoreHTTP5xx(inv *models.Investigation, sc *Scorecard) {
	metrics := inv.Analysis.Features.Metrics

	if r := metrics.HTTP5xxRateP95; r != nil && *r > 0 {
		delta := 30
		if *r >= 1.0 {
			delta = 50
		}
		sc.Add(AxisImpact, CodeHTTP5xxElevated, delta, "metrics.http_5xx_rate_p95",
			fmt.Sprintf("http_5xx_rate_p95=%.2f/s", *r))
		sc.Add(AxisConfidence, CodeHTTP5xxElevated, 35, "metrics.http_5xx_rate_p95", "")
	}
	scoreLogSupport(inv, sc)
	scoreScopeImpact(inv, sc)
	scoreHypothesisSupport(inv, sc)
}

func scoreOOMKilled(inv *models.Investigation, sc *Scorecard) {
	k8s := inv.Analysis.Features.K8s
	metrics := inv.Analysis.Features.Metrics

	if k8s.OOMKilled {
		sc.Add(AxisImpact, CodeOOMEvidence, 45, "k8s.oom_killed", "OOMKilled termination observed")
		sc.Add(AxisConfidence, CodeOOMEvidence, 40, "k8s.oom_killed", "")
	}
	if metrics.MemoryNearLimit {
		sc.Add(AxisImpact, CodeMemoryNearLimit, 15, "metrics.memory_near_limit", "memory p95 at 90% or more of limit")
		sc.Add(AxisConfidence, CodeMemoryNearLimit, 20, "metrics.memory_near_limit", "")
	}
	if k8s.RestartCount != nil && *k8s.RestartCount > 0 {
		sc.Add(AxisConfidence, CodeRestartsPresent, 10, "k8s.restart_count", "")
	}
	scoreHypothesisSupport(inv, sc)
}

func scoreMemoryPressure(inv *models.Investigation, sc *Scorecard) {
	metrics := inv.Analysis.Features.Metrics

	if metrics.MemoryNearLimit {
		sc.Add(AxisImpact, CodeMemoryNearLimit, 40, "metrics.memory_near_limit", "memory p95 at 90% or more of limit")
		sc.Add(AxisConfidence, CodeMemoryNearLimit, 35, "metrics.memory_near_limit", "")
	} else if metrics.MemoryUsageP95 != nil {
		sc.Add(AxisConfidence, CodeMemoryNearLimit, 15, "metrics.memory_usage_p95", "memory series present")
	}
	if inv.Analysis.Features.K8s.Evicted {
		sc.Add(AxisImpact, CodePodPhaseBad, 25, "k8s.evicted", "pod evicted")
		sc.Add(AxisConfidence, CodePodPhaseBad, 20, "k8s.evicted", "")
	}
	scoreHypothesisSupport(inv, sc)
}

func scoreRolloutHealth(inv *models.Investigation, sc *Scorecard) {
	changes := inv.Analysis.Features.Changes
	k8s := inv.Analysis.Features.K8s

	if changes.RolloutWithinWindow {
		sc.Add(AxisImpact, CodeRolloutStuck, 35, "changes.rollout_within_window", "rollout in progress during the incident")
		sc.Add(AxisConfidence, CodeRolloutCorrelated, 30, "changes.last_change_ts",
			fmt.Sprintf("last change at %s", changes.LastChangeTs))
	}
	if k8s.WaitingReason != "" {
		sc.Add(AxisImpact, CodeWaitingReason, 20, "k8s.waiting_reason",
			fmt.Sprintf("waiting_reason=%s", k8s.WaitingReason))
		sc.Add(AxisConfidence, CodeWaitingReason, 25, "k8s.waiting_reason", "")
	}
	if k8s.Ready != nil && !*k8s.Ready {
		sc.Add(AxisConfidence, CodePodNotReady, 15, "k8s.ready", "")
	}
	scoreHypothesisSupport(inv, sc)
}

func scoreTargetDown(inv *models.Investigation, sc *Scorecard) {
	metrics := inv.Analysis.Features.Metrics

	if d := metrics.UpTargetsDown; d != nil && *d > 0 {
		delta := 35
		if *d >= 3 {
			delta = 55
		}
		sc.Add(AxisImpact, CodeUpTargetsDown, delta, "metrics.up_targets_down",
			fmt.Sprintf("%d scrape targets down", *d))
		sc.Add(AxisConfidence, CodeUpTargetsDown, 40, "metrics.up_targets_down", "")
	}
	scoreScopeImpact(inv, sc)
}

func scoreJobFailed(inv *models.Investigation, sc *Scorecard) {
	metrics := inv.Analysis.Features.Metrics

	if c := metrics.JobFailedCount; c != nil && *c > 0 {
		sc.Add(AxisImpact, CodeJobFailed, 40, "metrics.job_failed_count",
			fmt.Sprintf("job_failed_count=%.0f", *c))
		sc.Add(AxisConfidence, CodeJobFailed, 30, "metrics.job_failed_count", "")
	} else if inv.Analysis.Features.K8s.PodPhase == "Failed" {
		sc.Add(AxisImpact, CodeJobFailed, 35, "k8s.pod_phase", "job pod in phase Failed")
		sc.Add(AxisConfidence, CodeJobFailed, 30, "k8s.pod_phase", "")
	}
	if inv.MetaString(models.MetaBlockedMode) == "job_pods_not_found" {
		sc.Add(AxisConfidence, CodeJobEvidenceBlocked, -20, "meta.blocked_mode",
			"job pods were deleted before investigation; only historical evidence remains")
	}
	scoreLogSupport(inv, sc)
	scoreHypothesisSupport(inv, sc)
}

func scoreGeneric(inv *models.Investigation, sc *Scorecard) {
	if inv.Analysis.Features.K8s.WarningEventsCount > 0 {
		sc.Add(AxisImpact, CodeWarningEvents, 15, "k8s.warning_events_count", "warning events present")
		sc.Add(AxisConfidence, CodeWarningEvents, 15, "k8s.warning_events_count", "")
	}
	sc.Add(AxisImpact, CodeGenericSignal, 10, "", "alert firing without a family-specific signal")
	sc.Add(AxisConfidence, CodeGenericSignal, 10, "", "")
	scoreLogSupport(inv, sc)
	scoreScopeImpact(inv, sc)
	scoreHypothesisSupport(inv, sc)
}

// scoreLogSupport adds a small confidence bump when parsed log errors back
// the alert up.
func scoreLogSupport(inv *models.Investigation, sc *Scorecard) {
	if inv.Analysis.Features.Logs.ErrorHits > 0 {
		sc.Add(AxisConfidence, CodeLogErrorsPresent, 10, "logs.error_hits",
			fmt.Sprintf("%d error lines in logs", inv.Analysis.Features.Logs.ErrorHits))
	}
}

// scoreScopeImpact adds impact when the alert selector fires on many
// instances at once.
func scoreScopeImpact(inv *models.Investigation, sc *Scorecard) {
	if f := inv.Analysis.Features.Metrics.FiringInstances; f != nil && *f >= 6 {
		sc.Add(AxisImpact, CodeScopeWide, 20, "metrics.firing_instances",
			fmt.Sprintf("%d instances firing", *f))
	}
}

// scoreHypothesisSupport converts a strong top hypothesis into confidence.
func scoreHypothesisSupport(inv *models.Investigation, sc *Scorecard) {
	if len(inv.Analysis.Hypotheses) == 0 {
		return
	}
	top := inv.Analysis.Hypotheses[0]
	if top.Confidence >= 80 {
		sc.Add(AxisConfidence, CodeStrongHypothesis, 15, "hypotheses[0]",
			fmt.Sprintf("top hypothesis %q at %d", top.HypothesisID, top.Confidence))
	}
}

// applyCommon runs the cross-family noise contributions and confidence
// penalties after the family scorer.
func applyCommon(inv *models.Investigation, sc *Scorecard) {
	quality := inv.Analysis.Features.Quality
	noise := inv.Analysis.Noise

	for _, missing := range quality.MissingInputs {
		switch missing {
		case features.MissingLabelNamespace:
			sc.Add(AxisConfidence, CodeMissingLabelNamespace, -30, "quality.missing_inputs",
				"namespace label missing; evidence could not be scoped")
		case features.MissingLabelPod:
			sc.Add(AxisConfidence, CodeMissingLabelPod, -30, "quality.missing_inputs",
				"pod label missing; evidence could not be scoped")
		}
	}
	for _, flag := range quality.ContradictionFlags {
		if delta, ok := contradictionPenalties[flag]; ok {
			sc.Add(AxisConfidence, flag, delta, "quality.contradiction_flags", "")
		} else {
			sc.Add(AxisConfidence, flag, -10, "quality.contradiction_flags", "")
		}
	}
	if quality.EvidenceQuality == models.QualityLow {
		sc.Add(AxisConfidence, CodeEvidenceQualityLow, -15, "quality.evidence_quality", "")
	}

	if noise.FlapScore > 0 {
		sc.Add(AxisNoise, CodeFlapScore, noise.FlapScore, "noise.flap_score",
			fmt.Sprintf("flap score %d", noise.FlapScore))
	}
	if n := len(ephemeralWithoutWorkloadDims(inv)); n > 0 {
		sc.Add(AxisNoise, CodeEphemeralLabels, n*10, "noise.ephemeral_labels",
			fmt.Sprintf("%d ephemeral labels inflate cardinality", n))
	}
}

// ephemeralWithoutWorkloadDims filters ephemeral labels down to the ones
// that actually hurt: pod-identity labels are expected on pod-scoped
// targets and do not count against workload alerts that also carry stable
// dims.
func ephemeralWithoutWorkloadDims(inv *models.Investigation) []string {
	var out []string
	hasWorkload := inv.Target.WorkloadName != ""
	for _, l := range inv.Analysis.Noise.EphemeralLabels {
		if hasWorkload && (l == "pod" || l == "instance") {
			continue
		}
		out = append(out, l)
	}
	return out
}
