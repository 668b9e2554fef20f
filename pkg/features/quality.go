package features

import (
	"time"

	"github.com/tarkyaio/tarka/pkg/models"
)

// Contradiction flags emitted by quality grading. These feed scoring deltas
// and the artifact split; they are stable enumerable strings.
const (
	ContradictionCrashloopReadyNoRestarts = "CRASHLOOP_CONTRADICTION_READY_NO_RESTARTS"
	ContradictionThrottlingHighUsageLow   = "THROTTLING_HIGH_BUT_USAGE_LOW"
	ContradictionTargetDownUpNone         = "TARGETDOWN_CONTRADICTION_UP_NONE"
	ContradictionOOMWithoutEvidence       = "OOM_ALERT_WITHOUT_OOM_EVIDENCE"
)

// Missing-input markers. Stable strings consumed by triage and scoring.
const (
	MissingLabelNamespace = "labels.namespace"
	MissingLabelPod       = "labels.pod"
	MissingPodInfo        = "k8s.pod_info"
	MissingLogs           = "logs"
	MissingMetricsCPU     = "metrics.cpu"
	MissingMetricsRestarts = "metrics.restarts"
)

const (
	longRunningThreshold     = 72 * time.Hour
	recentlyStartedThreshold = time.Hour

	throttlingHighThreshold = 0.20
	usageLowThreshold       = 0.30
)

// ExtractQuality grades evidence completeness and detects contradictions
// between the alert's claim and the observed features. Family-dependent
// checks read the canonical family.
func ExtractQuality(inv *models.Investigation, f *models.DerivedFeatures, now time.Time) models.FeaturesQuality {
	var out models.FeaturesQuality

	target := inv.Target
	podScoped := target.TargetType == models.TargetPod || target.TargetType == models.TargetWorkload

	if target.Namespace == "" && podScoped {
		out.MissingInputs = append(out.MissingInputs, MissingLabelNamespace)
	}
	if target.TargetType == models.TargetPod && target.Pod == "" {
		out.MissingInputs = append(out.MissingInputs, MissingLabelPod)
	}
	if podScoped && inv.Evidence.K8s.PodInfo == nil {
		out.MissingInputs = append(out.MissingInputs, MissingPodInfo)
	}
	if f.Logs.Status != models.LogStatusOK {
		out.MissingInputs = append(out.MissingInputs, MissingLogs)
	}
	if f.Metrics.CPUUsageP95 == nil && podScoped {
		out.MissingInputs = append(out.MissingInputs, MissingMetricsCPU)
	}
	if f.K8s.RestartRate5mMax == nil && podScoped {
		out.MissingInputs = append(out.MissingInputs, MissingMetricsRestarts)
	}

	out.ContradictionFlags = detectContradictions(inv, f)

	if age := inv.Alert.Age(now); age > 0 {
		hours := age.Hours()
		out.AlertAgeHours = &hours
		out.IsLongRunning = age >= longRunningThreshold
		out.IsRecentlyStarted = age <= recentlyStartedThreshold
	}

	out.EvidenceQuality = gradeQuality(len(out.MissingInputs), podScoped, inv.Evidence.K8s.PodInfo != nil)
	return out
}

func detectContradictions(inv *models.Investigation, f *models.DerivedFeatures) []string {
	var flags []string
	family := models.Family(inv.Family())

	if family == models.FamilyCrashloop {
		ready := f.K8s.Ready != nil && *f.K8s.Ready
		noRestarts := f.K8s.RestartCount == nil || *f.K8s.RestartCount == 0
		noRate := f.K8s.RestartRate5mMax == nil || *f.K8s.RestartRate5mMax == 0
		if ready && noRestarts && noRate {
			flags = append(flags, ContradictionCrashloopReadyNoRestarts)
		}
	}

	if f.Metrics.ThrottlingP95 != nil && *f.Metrics.ThrottlingP95 >= throttlingHighThreshold {
		ratio := f.Metrics.TopThrottledUsageRatio
		if ratio == nil {
			ratio = f.Metrics.CPUUsageOverLimitRatio
		}
		if ratio != nil && *ratio < usageLowThreshold {
			flags = append(flags, ContradictionThrottlingHighUsageLow)
		}
	}

	if family == models.FamilyTargetDown {
		if f.Metrics.UpTargetsDown != nil && *f.Metrics.UpTargetsDown == 0 {
			flags = append(flags, ContradictionTargetDownUpNone)
		}
	}

	if family == models.FamilyOOMKilled && !f.K8s.OOMKilled {
		flags = append(flags, ContradictionOOMWithoutEvidence)
	}

	return flags
}

func gradeQuality(missing int, podScoped, hasPodInfo bool) models.EvidenceQuality {
	switch {
	case missing == 0:
		return models.QualityHigh
	case missing <= 2 && (!podScoped || hasPodInfo):
		return models.QualityMedium
	default:
		return models.QualityLow
	}
}
