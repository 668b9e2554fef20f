package providers

// PodLocation is the pod identity recovered from alert labels.
type PodLocation struct {
	Namespace string
	Pod       string
	Container string
}

// ExtractPodInfoFromAlert recovers pod identity from an alert label set.
// Returns nil when the labels carry no real pod identity. The instance label
// is never used to guess a pod name: it addresses a scrape endpoint, which
// for kube-state-metrics style jobs is not the subject of the alert.
func ExtractPodInfoFromAlert(labels map[string]string) *PodLocation {
	pod := labels["pod"]
	if pod == "" {
		pod = labels["pod_name"]
	}
	if pod == "" {
		return nil
	}
	loc := &PodLocation{
		Namespace: labels["namespace"],
		Pod:       pod,
		Container: labels["container"],
	}
	if loc.Namespace == "" {
		loc.Namespace = labels["exported_namespace"]
	}
	return loc
}
