package models

// TargetType discriminates what kind of object an investigation is scoped to.
type TargetType string

// Target types.
const (
	TargetPod      TargetType = "pod"
	TargetWorkload TargetType = "workload"
	TargetService  TargetType = "service"
	TargetNode     TargetType = "node"
	TargetCluster  TargetType = "cluster"
	TargetUnknown  TargetType = "unknown"
)

// TargetRef identifies the object an alert points at, after scrape-metadata
// sanitization. Fields that do not apply to the target type stay empty.
type TargetRef struct {
	TargetType   TargetType `json:"target_type"`
	Namespace    string     `json:"namespace,omitempty"`
	Pod          string     `json:"pod,omitempty"`
	Container    string     `json:"container,omitempty"`
	WorkloadKind string     `json:"workload_kind,omitempty"`
	WorkloadName string     `json:"workload_name,omitempty"`
	Service      string     `json:"service,omitempty"`
	Instance     string     `json:"instance,omitempty"`
	Job          string     `json:"job,omitempty"`
	Node         string     `json:"node,omitempty"`
	Cluster      string     `json:"cluster,omitempty"`

	// Routing metadata promoted from alert labels; informational only.
	Team        string `json:"team,omitempty"`
	Environment string `json:"environment,omitempty"`
}

// HasIdentity reports whether the target carries enough identity to
// investigate (anything better than "unknown with no location").
func (t *TargetRef) HasIdentity() bool {
	if t.TargetType == TargetUnknown {
		return false
	}
	switch t.TargetType {
	case TargetPod:
		return t.Namespace != "" && t.Pod != ""
	case TargetWorkload:
		return t.Namespace != "" && t.WorkloadName != ""
	case TargetService:
		return t.Service != "" || t.Job != ""
	case TargetNode:
		return t.Node != ""
	case TargetCluster:
		return true
	}
	return false
}
