package pipeline

import (
	"strings"

	"github.com/tarkyaio/tarka/pkg/models"
)

// familyByAlertname maps known alertnames to their family. Exact matches win
// over the substring heuristics below.
var familyByAlertname = map[string]models.Family{
	"KubernetesPodCrashLooping":       models.FamilyCrashloop,
	"KubePodCrashLooping":             models.FamilyCrashloop,
	"KubernetesPodNotHealthy":         models.FamilyPodNotHealthy,
	"KubernetesPodNotHealthyCritical": models.FamilyPodNotHealthy,
	"KubePodNotReady":                 models.FamilyPodNotHealthy,
	"CPUThrottlingHigh":               models.FamilyCPUThrottling,
	"KubernetesCpuThrottlingHigh":     models.FamilyCPUThrottling,
	"KubernetesContainerOomKiller":    models.FamilyOOMKilled,
	"KubeContainerOOMKilled":          models.FamilyOOMKilled,
	"KubernetesMemoryPressure":        models.FamilyMemoryPressure,
	"NodeMemoryHighUtilization":       models.FamilyMemoryPressure,
	"KubernetesRolloutHealth":         models.FamilyRolloutHealth,
	"KubeDeploymentRolloutStuck":      models.FamilyRolloutHealth,
	"KubeDeploymentReplicasMismatch":  models.FamilyRolloutHealth,
	"TargetDown":                      models.FamilyTargetDown,
	"PrometheusTargetMissing":         models.FamilyObservability,
	"PrometheusRuleFailures":          models.FamilyObservability,
	"AlertmanagerFailedToSendAlerts":  models.FamilyObservability,
	"VMAgentRemoteWriteErrors":        models.FamilyObservability,
	"Watchdog":                        models.FamilyMeta,
	"InfoInhibitor":                   models.FamilyMeta,
	"DeadMansSwitch":                  models.FamilyMeta,
	"KubeJobFailed":                   models.FamilyJobFailed,
	"KubernetesJobFailed":             models.FamilyJobFailed,
	"KubeJobNotCompleted":             models.FamilyJobFailed,
}

// familySubstrings are lowercase needles checked in order after the exact
// map misses. First hit wins.
var familySubstrings = []struct {
	needle string
	family models.Family
}{
	{"crashloop", models.FamilyCrashloop},
	{"oomkill", models.FamilyOOMKilled},
	{"oom", models.FamilyOOMKilled},
	{"throttl", models.FamilyCPUThrottling},
	{"5xx", models.FamilyHTTP5xx},
	{"rollout", models.FamilyRolloutHealth},
	{"memorypressure", models.FamilyMemoryPressure},
	{"jobfailed", models.FamilyJobFailed},
	{"cronjob", models.FamilyJobFailed},
	{"prometheus", models.FamilyObservability},
	{"alertmanager", models.FamilyObservability},
	{"vmagent", models.FamilyObservability},
	{"victoria", models.FamilyObservability},
	{"loki", models.FamilyObservability},
	{"watchdog", models.FamilyMeta},
	{"targetdown", models.FamilyTargetDown},
}

// DetectFamily resolves the canonical family from alertname and workload
// kind. A Job-kind target overrides name-based detection for pod-shaped
// families: a crashing Job pod is a job failure, not a crashloop.
func DetectFamily(alertname string, target models.TargetRef) (models.Family, string) {
	family, source := byName(alertname)
	if target.WorkloadKind == "Job" && overridableByJobKind(family) {
		return models.FamilyJobFailed, "workload_kind"
	}
	return family, source
}

func byName(alertname string) (models.Family, string) {
	if f, ok := familyByAlertname[alertname]; ok {
		return f, "alertname"
	}
	lower := strings.ToLower(alertname)
	for _, s := range familySubstrings {
		if strings.Contains(lower, s.needle) {
			return s.family, "alertname_pattern"
		}
	}
	return models.FamilyGeneric, "fallback"
}

func overridableByJobKind(f models.Family) bool {
	switch f {
	case models.FamilyPodNotHealthy, models.FamilyGeneric, models.FamilyJobFailed:
		return true
	}
	return false
}
