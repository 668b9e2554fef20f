// Package providers defines the narrow contracts the investigation core
// consumes. Each interface has a default implementation in a subpackage and
// a seam for swapping in tests (fakes implement the same interfaces).
package providers

import (
	"context"
	"time"

	"github.com/tarkyaio/tarka/pkg/models"
)

// Kubernetes is the cluster evidence contract. Implementations return
// permissive maps: the pipeline never depends on fields the cluster version
// might not have.
type Kubernetes interface {
	// PodInfo returns the pod's status summary (phase, container statuses,
	// restart counts, images, node).
	PodInfo(ctx context.Context, namespace, pod string) (map[string]any, error)

	// PodConditions returns the pod's status conditions.
	PodConditions(ctx context.Context, namespace, pod string) ([]map[string]any, error)

	// PodEvents returns recent events involving the pod.
	PodEvents(ctx context.Context, namespace, pod string) ([]map[string]any, error)

	// ListPods returns pods matching the label selector.
	ListPods(ctx context.Context, namespace, labelSelector string) ([]map[string]any, error)

	// OwnerChain resolves Pod → ReplicaSet → Deployment style ownership.
	OwnerChain(ctx context.Context, namespace, pod string) ([]map[string]any, error)

	// RolloutStatus returns the workload's rollout condition summary.
	RolloutStatus(ctx context.Context, namespace, kind, name string) (map[string]any, error)

	// PodLogs returns container logs; previous selects the last terminated
	// container instance.
	PodLogs(ctx context.Context, namespace, pod, container string, previous bool, tailLines int64) (string, error)
}

// Prometheus is the PromQL query contract.
type Prometheus interface {
	// Query runs an instant query at ts.
	Query(ctx context.Context, query string, ts time.Time) ([]models.MetricSeries, error)

	// QueryRange runs a range query over [start, end] at the given step.
	QueryRange(ctx context.Context, query string, start, end time.Time, step time.Duration) ([]models.MetricSeries, error)
}

// LogQuery parameterizes one log fetch.
type LogQuery struct {
	Namespace string
	Pod       string
	Container string
	Start     time.Time
	End       time.Time
	Limit     int
}

// Logs is the log backend contract (Loki, VictoriaLogs). Implementations
// always return a LogsEvidence with provenance (status/backend/query) set,
// even on failure.
type Logs interface {
	FetchLogs(ctx context.Context, q LogQuery) models.LogsEvidence
}

// AWS is the cloud evidence contract. All methods are best-effort; a nil map
// means the resource kind produced nothing.
type AWS interface {
	// EC2InstanceStatus returns status for the instance backing a node.
	EC2InstanceStatus(ctx context.Context, instanceID string) (map[string]any, error)

	// ECRImageExists checks whether an image tag exists in a repository.
	ECRImageExists(ctx context.Context, repository, tag string) (bool, error)

	// CloudTrailEvents returns recent management events in the window.
	CloudTrailEvents(ctx context.Context, start, end time.Time, maxResults int) ([]map[string]any, error)
}

// GitHub is the repository change-evidence contract.
type GitHub interface {
	// RepoInfo returns repository metadata.
	RepoInfo(ctx context.Context) (map[string]any, error)

	// RecentCommits returns commits pushed in [since, until].
	RecentCommits(ctx context.Context, since, until time.Time) ([]map[string]any, error)

	// WorkflowRuns returns recent workflow runs.
	WorkflowRuns(ctx context.Context, limit int) ([]map[string]any, error)
}

// Alertmanager is the alert source contract for CLI-driven investigations.
type Alertmanager interface {
	// FetchActiveAlerts lists currently active alerts.
	FetchActiveAlerts(ctx context.Context) ([]models.AlertInstance, error)

	// AlertContext returns sibling-alert context for a fingerprint.
	AlertContext(ctx context.Context, fingerprint string) (map[string]any, error)
}
