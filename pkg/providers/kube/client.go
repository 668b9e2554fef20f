// Package kube implements the Kubernetes provider contract on top of
// client-go. All returned shapes are permissive maps: the pipeline consumes
// evidence through feature extraction, never through typed API structs.
package kube

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/tarkyaio/tarka/pkg/providers"
)

const defaultCallTimeout = 15 * time.Second

// Client is the client-go backed Kubernetes provider.
type Client struct {
	clientset kubernetes.Interface
	timeout   time.Duration
}

var _ providers.Kubernetes = (*Client)(nil)

// New builds a provider from in-cluster config, falling back to the given
// kubeconfig path.
func New(kubeconfig string) (*Client, error) {
	cfg, err := rest.InClusterConfig()
	if err != nil {
		cfg, err = clientcmd.BuildConfigFromFlags("", kubeconfig)
		if err != nil {
			return nil, fmt.Errorf("building kubernetes config: %w", err)
		}
	}
	clientset, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating kubernetes clientset: %w", err)
	}
	return NewWithClientset(clientset), nil
}

// NewWithClientset builds a provider around an existing clientset (fake
// clientsets in tests).
func NewWithClientset(clientset kubernetes.Interface) *Client {
	return &Client{clientset: clientset, timeout: defaultCallTimeout}
}

// PodInfo returns a status summary for the pod.
func (c *Client) PodInfo(ctx context.Context, namespace, pod string) (map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	p, err := c.clientset.CoreV1().Pods(namespace).Get(ctx, pod, metav1.GetOptions{})
	if err != nil {
		return nil, fmt.Errorf("getting pod %s/%s: %w", namespace, pod, err)
	}
	return podInfoMap(p), nil
}

func podInfoMap(p *corev1.Pod) map[string]any {
	info := map[string]any{
		"name":      p.Name,
		"namespace": p.Namespace,
		"phase":     string(p.Status.Phase),
		"node":      p.Spec.NodeName,
		"labels":    p.Labels,
	}
	if p.Status.Reason != "" {
		info["reason"] = p.Status.Reason
	}
	if p.Status.Message != "" {
		info["message"] = p.Status.Message
	}
	if p.Status.StartTime != nil {
		info["start_time"] = p.Status.StartTime.UTC().Format(time.RFC3339)
	}

	var statuses []map[string]any
	for _, cs := range p.Status.ContainerStatuses {
		statuses = append(statuses, containerStatusMap(cs))
	}
	info["container_statuses"] = statuses
	return info
}

func containerStatusMap(cs corev1.ContainerStatus) map[string]any {
	m := map[string]any{
		"name":          cs.Name,
		"ready":         cs.Ready,
		"restart_count": int(cs.RestartCount),
		"image":         cs.Image,
	}
	if cs.State.Waiting != nil {
		m["waiting"] = map[string]any{
			"reason":  cs.State.Waiting.Reason,
			"message": cs.State.Waiting.Message,
		}
	}
	if cs.State.Running != nil {
		m["running"] = map[string]any{
			"started_at": cs.State.Running.StartedAt.UTC().Format(time.RFC3339),
		}
	}
	if cs.State.Terminated != nil {
		m["terminated"] = terminatedMap(cs.State.Terminated)
	}
	if cs.LastTerminationState.Terminated != nil {
		m["last_terminated"] = terminatedMap(cs.LastTerminationState.Terminated)
	}
	return m
}

func terminatedMap(t *corev1.ContainerStateTerminated) map[string]any {
	m := map[string]any{
		"reason":    t.Reason,
		"exit_code": int(t.ExitCode),
	}
	if !t.FinishedAt.IsZero() {
		m["finished_at"] = t.FinishedAt.UTC().Format(time.RFC3339)
	}
	if !t.StartedAt.IsZero() {
		m["started_at"] = t.StartedAt.UTC().Format(time.RFC3339)
	}
	return m
}

// PodConditions returns the pod's status conditions.
func (c *Client) PodConditions(ctx context.Context, namespace, pod string) ([]map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	p, err := c.clientset.CoreV1().Pods(namespace).Get(ctx, pod, metav1.GetOptions{})
	if err != nil {
		return nil, fmt.Errorf("getting pod %s/%s: %w", namespace, pod, err)
	}
	var out []map[string]any
	for _, cond := range p.Status.Conditions {
		m := map[string]any{
			"type":   string(cond.Type),
			"status": string(cond.Status),
		}
		if cond.Reason != "" {
			m["reason"] = cond.Reason
		}
		if cond.Message != "" {
			m["message"] = cond.Message
		}
		if !cond.LastTransitionTime.IsZero() {
			m["last_transition_time"] = cond.LastTransitionTime.UTC().Format(time.RFC3339)
		}
		out = append(out, m)
	}
	return out, nil
}

// PodEvents returns events involving the pod, most recent last.
func (c *Client) PodEvents(ctx context.Context, namespace, pod string) ([]map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	selector := fmt.Sprintf("involvedObject.name=%s,involvedObject.kind=Pod", pod)
	list, err := c.clientset.CoreV1().Events(namespace).List(ctx, metav1.ListOptions{FieldSelector: selector})
	if err != nil {
		return nil, fmt.Errorf("listing events for %s/%s: %w", namespace, pod, err)
	}
	var out []map[string]any
	for _, ev := range list.Items {
		m := map[string]any{
			"type":    ev.Type,
			"reason":  ev.Reason,
			"message": ev.Message,
			"count":   int(ev.Count),
		}
		ts := ev.LastTimestamp.Time
		if ts.IsZero() {
			ts = ev.EventTime.Time
		}
		if !ts.IsZero() {
			m["timestamp"] = ts.UTC().Format(time.RFC3339)
		}
		out = append(out, m)
	}
	return out, nil
}

// ListPods returns pods matching the label selector.
func (c *Client) ListPods(ctx context.Context, namespace, labelSelector string) ([]map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	list, err := c.clientset.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{LabelSelector: labelSelector})
	if err != nil {
		return nil, fmt.Errorf("listing pods in %s: %w", namespace, err)
	}
	var out []map[string]any
	for i := range list.Items {
		out = append(out, podInfoMap(&list.Items[i]))
	}
	return out, nil
}

// OwnerChain walks Pod → ReplicaSet → Deployment (or Job, StatefulSet, ...)
// ownership via ownerReferences.
func (c *Client) OwnerChain(ctx context.Context, namespace, pod string) ([]map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	p, err := c.clientset.CoreV1().Pods(namespace).Get(ctx, pod, metav1.GetOptions{})
	if err != nil {
		return nil, fmt.Errorf("getting pod %s/%s: %w", namespace, pod, err)
	}

	chain := []map[string]any{{"kind": "Pod", "name": p.Name}}
	refs := p.OwnerReferences
	for len(refs) > 0 {
		ref := refs[0]
		entry := map[string]any{"kind": ref.Kind, "name": ref.Name}
		refs = nil

		switch ref.Kind {
		case "ReplicaSet":
			rs, err := c.clientset.AppsV1().ReplicaSets(namespace).Get(ctx, ref.Name, metav1.GetOptions{})
			if err == nil {
				if rs.Spec.Replicas != nil {
					entry["replicas"] = int(*rs.Spec.Replicas)
				}
				entry["created_at"] = rs.CreationTimestamp.UTC().Format(time.RFC3339)
				refs = rs.OwnerReferences
			}
		case "Deployment":
			d, err := c.clientset.AppsV1().Deployments(namespace).Get(ctx, ref.Name, metav1.GetOptions{})
			if err == nil {
				entry["generation"] = d.Generation
				entry["created_at"] = d.CreationTimestamp.UTC().Format(time.RFC3339)
			}
		case "Job":
			j, err := c.clientset.BatchV1().Jobs(namespace).Get(ctx, ref.Name, metav1.GetOptions{})
			if err == nil {
				entry["created_at"] = j.CreationTimestamp.UTC().Format(time.RFC3339)
				refs = j.OwnerReferences
			}
		}
		chain = append(chain, entry)
	}
	return chain, nil
}

// RolloutStatus summarizes a workload's rollout conditions.
func (c *Client) RolloutStatus(ctx context.Context, namespace, kind, name string) (map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	switch strings.ToLower(kind) {
	case "deployment":
		d, err := c.clientset.AppsV1().Deployments(namespace).Get(ctx, name, metav1.GetOptions{})
		if err != nil {
			return nil, fmt.Errorf("getting deployment %s/%s: %w", namespace, name, err)
		}
		status := map[string]any{
			"kind":               "Deployment",
			"name":               d.Name,
			"replicas":           int(d.Status.Replicas),
			"updated_replicas":   int(d.Status.UpdatedReplicas),
			"ready_replicas":     int(d.Status.ReadyReplicas),
			"available_replicas": int(d.Status.AvailableReplicas),
			"generation":         d.Generation,
			"observed_generation": d.Status.ObservedGeneration,
		}
		var conds []map[string]any
		var lastUpdate time.Time
		for _, cond := range d.Status.Conditions {
			conds = append(conds, map[string]any{
				"type":   string(cond.Type),
				"status": string(cond.Status),
				"reason": cond.Reason,
			})
			if cond.LastUpdateTime.After(lastUpdate) {
				lastUpdate = cond.LastUpdateTime.Time
			}
		}
		status["conditions"] = conds
		if !lastUpdate.IsZero() {
			status["last_update_time"] = lastUpdate.UTC().Format(time.RFC3339)
		}
		return status, nil

	case "statefulset":
		s, err := c.clientset.AppsV1().StatefulSets(namespace).Get(ctx, name, metav1.GetOptions{})
		if err != nil {
			return nil, fmt.Errorf("getting statefulset %s/%s: %w", namespace, name, err)
		}
		return map[string]any{
			"kind":             "StatefulSet",
			"name":             s.Name,
			"replicas":         int(s.Status.Replicas),
			"ready_replicas":   int(s.Status.ReadyReplicas),
			"updated_replicas": int(s.Status.UpdatedReplicas),
			"current_revision": s.Status.CurrentRevision,
			"update_revision":  s.Status.UpdateRevision,
		}, nil

	case "daemonset":
		ds, err := c.clientset.AppsV1().DaemonSets(namespace).Get(ctx, name, metav1.GetOptions{})
		if err != nil {
			return nil, fmt.Errorf("getting daemonset %s/%s: %w", namespace, name, err)
		}
		return map[string]any{
			"kind":             "DaemonSet",
			"name":             ds.Name,
			"desired":          int(ds.Status.DesiredNumberScheduled),
			"ready":            int(ds.Status.NumberReady),
			"updated":          int(ds.Status.UpdatedNumberScheduled),
			"number_available": int(ds.Status.NumberAvailable),
		}, nil

	case "job":
		j, err := c.clientset.BatchV1().Jobs(namespace).Get(ctx, name, metav1.GetOptions{})
		if err != nil {
			return nil, fmt.Errorf("getting job %s/%s: %w", namespace, name, err)
		}
		status := map[string]any{
			"kind":      "Job",
			"name":      j.Name,
			"active":    int(j.Status.Active),
			"succeeded": int(j.Status.Succeeded),
			"failed":    int(j.Status.Failed),
		}
		if j.Status.StartTime != nil {
			status["start_time"] = j.Status.StartTime.UTC().Format(time.RFC3339)
		}
		if j.Status.CompletionTime != nil {
			status["completion_time"] = j.Status.CompletionTime.UTC().Format(time.RFC3339)
		}
		if j.Spec.TTLSecondsAfterFinished != nil {
			status["ttl_seconds_after_finished"] = int(*j.Spec.TTLSecondsAfterFinished)
		}
		if j.Spec.Selector != nil {
			status["selector"] = metav1.FormatLabelSelector(j.Spec.Selector)
		}
		return status, nil
	}

	return nil, fmt.Errorf("unsupported workload kind %q", kind)
}

// PodLogs fetches container logs, optionally from the previous instance.
func (c *Client) PodLogs(ctx context.Context, namespace, pod, container string, previous bool, tailLines int64) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	opts := &corev1.PodLogOptions{Previous: previous}
	if container != "" {
		opts.Container = container
	}
	if tailLines > 0 {
		opts.TailLines = &tailLines
	}
	stream, err := c.clientset.CoreV1().Pods(namespace).GetLogs(pod, opts).Stream(ctx)
	if err != nil {
		return "", fmt.Errorf("streaming logs for %s/%s: %w", namespace, pod, err)
	}
	defer func() { _ = stream.Close() }()

	data, err := io.ReadAll(io.LimitReader(stream, 1<<20))
	if err != nil {
		return "", fmt.Errorf("reading logs for %s/%s: %w", namespace, pod, err)
	}
	return string(data), nil
}
