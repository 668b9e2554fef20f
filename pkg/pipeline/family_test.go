package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tarkyaio/tarka/pkg/models"
)

func TestDetectFamily(t *testing.T) {
	tests := []struct {
		name      string
		alertname string
		target    models.TargetRef
		want      models.Family
		source    string
	}{
		{"crashloop exact", "KubernetesPodCrashLooping", models.TargetRef{}, models.FamilyCrashloop, "alertname"},
		{"oom exact", "KubernetesContainerOomKiller", models.TargetRef{}, models.FamilyOOMKilled, "alertname"},
		{"watchdog is meta", "Watchdog", models.TargetRef{}, models.FamilyMeta, "alertname"},
		{"target down", "TargetDown", models.TargetRef{}, models.FamilyTargetDown, "alertname"},
		{"substring 5xx", "HighHttp5xxErrorRate", models.TargetRef{}, models.FamilyHTTP5xx, "alertname_pattern"},
		{"substring throttling", "ContainerCpuThrottlingWarning", models.TargetRef{}, models.FamilyCPUThrottling, "alertname_pattern"},
		{"substring observability", "LokiRequestErrors", models.TargetRef{}, models.FamilyObservability, "alertname_pattern"},
		{"unknown falls back", "SomethingEntirelyNew", models.TargetRef{}, models.FamilyGeneric, "fallback"},
		{"job kind overrides not-healthy", "KubernetesPodNotHealthy",
			models.TargetRef{WorkloadKind: "Job", WorkloadName: "sync"}, models.FamilyJobFailed, "workload_kind"},
		{"job kind overrides generic", "SomethingEntirelyNew",
			models.TargetRef{WorkloadKind: "Job", WorkloadName: "sync"}, models.FamilyJobFailed, "workload_kind"},
		{"job kind does not override crashloop", "KubernetesPodCrashLooping",
			models.TargetRef{WorkloadKind: "Job", WorkloadName: "sync"}, models.FamilyCrashloop, "alertname"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			family, source := DetectFamily(tt.alertname, tt.target)
			assert.Equal(t, tt.want, family)
			assert.Equal(t, tt.source, source)
		})
	}
}
