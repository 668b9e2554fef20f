package target

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tarkyaio/tarka/pkg/models"
)

func TestParse_JobAlertIgnoresScrapePod(t *testing.T) {
	// KubeJobFailed labels point pod at the kube-state-metrics scraper.
	alert := &models.AlertInstance{Labels: map[string]string{
		"alertname": "KubeJobFailed",
		"namespace": "batch",
		"job_name":  "nightly-sync",
		"pod":       "kube-state-metrics-6d7f9c-x2v1",
		"job":       "kube-state-metrics",
		"service":   "kube-state-metrics",
		"instance":  "10.0.3.7:8080",
	}}

	ref := Parse(alert)
	assert.Equal(t, models.TargetWorkload, ref.TargetType)
	assert.Equal(t, "Job", ref.WorkloadKind)
	assert.Equal(t, "nightly-sync", ref.WorkloadName)
	assert.Equal(t, "batch", ref.Namespace)
	assert.Empty(t, ref.Pod, "scrape pod must not leak into the target")
	assert.Empty(t, ref.Job)
	assert.Empty(t, ref.Service)
	assert.Empty(t, ref.Instance)
}

func TestParse_PodTarget(t *testing.T) {
	alert := &models.AlertInstance{Labels: map[string]string{
		"alertname": "KubernetesPodCrashLooping",
		"namespace": "payments",
		"pod":       "api-7f9c55d4b-x2v1z",
		"container": "api",
	}}

	ref := Parse(alert)
	assert.Equal(t, models.TargetPod, ref.TargetType)
	assert.Equal(t, "payments", ref.Namespace)
	assert.Equal(t, "api-7f9c55d4b-x2v1z", ref.Pod)
	assert.Equal(t, "api", ref.Container)
	assert.Equal(t, "Deployment", ref.WorkloadKind)
	assert.Equal(t, "api", ref.WorkloadName)
}

func TestParse_ScraperContainerDropped(t *testing.T) {
	alert := &models.AlertInstance{Labels: map[string]string{
		"namespace": "monitoring",
		"pod":       "app-5f6d8-abcde",
		"container": "kube-state-metrics",
	}}

	ref := Parse(alert)
	assert.Empty(t, ref.Container)
}

func TestParse_InstanceNeverBecomesPod(t *testing.T) {
	alert := &models.AlertInstance{Labels: map[string]string{
		"alertname": "TargetDown",
		"job":       "node-exporter",
		"instance":  "10.0.3.7:9100",
	}}

	ref := Parse(alert)
	assert.Equal(t, models.TargetService, ref.TargetType)
	assert.Empty(t, ref.Pod)
	assert.Equal(t, "node-exporter", ref.Job)
	assert.Equal(t, "10.0.3.7:9100", ref.Instance)
}

func TestParse_WorkloadLabels(t *testing.T) {
	alert := &models.AlertInstance{Labels: map[string]string{
		"namespace":  "payments",
		"deployment": "api",
	}}

	ref := Parse(alert)
	assert.Equal(t, models.TargetWorkload, ref.TargetType)
	assert.Equal(t, "Deployment", ref.WorkloadKind)
	assert.Equal(t, "api", ref.WorkloadName)
}

func TestParse_NodeTarget(t *testing.T) {
	ref := Parse(&models.AlertInstance{Labels: map[string]string{"node": "ip-10-0-3-7"}})
	assert.Equal(t, models.TargetNode, ref.TargetType)
	assert.Equal(t, "ip-10-0-3-7", ref.Node)
}

func TestParse_UnknownWithoutLocation(t *testing.T) {
	ref := Parse(&models.AlertInstance{Labels: map[string]string{"alertname": "Watchdog"}})
	assert.Equal(t, models.TargetUnknown, ref.TargetType)
	assert.False(t, ref.HasIdentity())
}

func TestParse_RoutingMetadataPromoted(t *testing.T) {
	ref := Parse(&models.AlertInstance{Labels: map[string]string{
		"namespace": "payments",
		"pod":       "api-1",
		"team":      "payments-oncall",
		"env":       "production",
	}})
	assert.Equal(t, "payments-oncall", ref.Team)
	assert.Equal(t, "production", ref.Environment)
}

func TestWorkloadFromPodName(t *testing.T) {
	kind, name := workloadFromPodName("api-7f9c55d4b-x2v1z")
	assert.Equal(t, "Deployment", kind)
	assert.Equal(t, "api", name)

	kind, name = workloadFromPodName("standalone-pod")
	assert.Empty(t, kind)
	assert.Empty(t, name)

	// StatefulSet ordinals are not generated hashes.
	kind, name = workloadFromPodName("postgres-main-0")
	assert.Empty(t, kind)
	assert.Empty(t, name)
}
