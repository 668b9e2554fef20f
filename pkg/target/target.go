// Package target resolves alert labels into a TargetRef, applying the
// scrape-metadata sanitization rules: labels that describe the scraper
// (job, service, instance, the kube-state-metrics pod) must never leak
// into the identity of the object under investigation.
package target

import (
	"strings"

	"github.com/tarkyaio/tarka/pkg/models"
	"github.com/tarkyaio/tarka/pkg/providers"
)

// scraperContainers are container labels that name the metrics exporter,
// not a workload container.
var scraperContainers = map[string]bool{
	"kube-state-metrics": true,
	"node-exporter":      true,
	"metrics-server":     true,
}

// workloadLabels map label names to workload kinds, checked in order.
var workloadLabels = []struct {
	label string
	kind  string
}{
	{"deployment", "Deployment"},
	{"statefulset", "StatefulSet"},
	{"daemonset", "DaemonSet"},
	{"cronjob", "CronJob"},
}

// Parse resolves the alert's labels into a TargetRef.
func Parse(alert *models.AlertInstance) models.TargetRef {
	labels := alert.Labels
	out := models.TargetRef{
		TargetType:  models.TargetUnknown,
		Cluster:     labels["cluster"],
		Team:        labels["team"],
		Environment: firstNonEmpty(labels["environment"], labels["env"]),
	}

	// Job alerts carry job_name; their pod label points at the scrape pod
	// (kube-state-metrics), so it is ignored and rediscovered later by
	// label selector.
	if jobName := labels["job_name"]; jobName != "" {
		out.TargetType = models.TargetWorkload
		out.Namespace = namespaceOf(labels)
		out.WorkloadKind = "Job"
		out.WorkloadName = jobName
		return out
	}

	if loc := providers.ExtractPodInfoFromAlert(labels); loc != nil {
		out.TargetType = models.TargetPod
		out.Namespace = loc.Namespace
		out.Pod = loc.Pod
		if !scraperContainers[loc.Container] {
			out.Container = loc.Container
		}
		out.WorkloadKind, out.WorkloadName = workloadOf(labels)
		if out.WorkloadName == "" {
			out.WorkloadKind, out.WorkloadName = workloadFromPodName(loc.Pod)
		}
		return out
	}

	if kind, name := workloadOf(labels); name != "" {
		out.TargetType = models.TargetWorkload
		out.Namespace = namespaceOf(labels)
		out.WorkloadKind = kind
		out.WorkloadName = name
		return out
	}

	if node := labels["node"]; node != "" {
		out.TargetType = models.TargetNode
		out.Node = node
		return out
	}

	if labels["service"] != "" || labels["job"] != "" {
		out.TargetType = models.TargetService
		out.Namespace = namespaceOf(labels)
		out.Service = labels["service"]
		out.Job = labels["job"]
		out.Instance = labels["instance"]
		return out
	}

	if out.Cluster != "" {
		out.TargetType = models.TargetCluster
	}
	return out
}

func workloadOf(labels map[string]string) (kind, name string) {
	for _, w := range workloadLabels {
		if v := labels[w.label]; v != "" {
			return w.kind, v
		}
	}
	if v := labels["workload"]; v != "" {
		return labels["workload_type"], v
	}
	return "", ""
}

// workloadFromPodName strips the ReplicaSet suffix pattern from a pod name
// to recover the owning Deployment name. Conservative: both suffixes must
// look like generated hashes.
func workloadFromPodName(pod string) (kind, name string) {
	parts := strings.Split(pod, "-")
	if len(parts) < 3 {
		return "", ""
	}
	last, second := parts[len(parts)-1], parts[len(parts)-2]
	if isGeneratedSuffix(last) && isGeneratedSuffix(second) {
		return "Deployment", strings.Join(parts[:len(parts)-2], "-")
	}
	return "", ""
}

func isGeneratedSuffix(s string) bool {
	if len(s) < 4 || len(s) > 10 {
		return false
	}
	hasDigit := false
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			hasDigit = true
		case r >= 'a' && r <= 'z':
		default:
			return false
		}
	}
	return hasDigit
}

func namespaceOf(labels map[string]string) string {
	return firstNonEmpty(labels["namespace"], labels["exported_namespace"])
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
