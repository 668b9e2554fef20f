// Package dedup centralizes idempotency key derivation. The object-store key,
// the JetStream message id, and the Postgres case key all derive from the
// same functions so the freshness gate and queue-level dedup always agree.
package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/tarkyaio/tarka/pkg/models"
)

// rolloutAlertNames is the closed set of alertnames whose dedup key collapses
// pod churn into one investigation per workload. Extending this set is an
// explicit decision, never inferred.
var rolloutAlertNames = map[string]bool{
	"KubernetesPodNotHealthy":         true,
	"KubernetesPodNotHealthyCritical": true,
	"KubernetesContainerOomKiller":    true,
	"KubeJobFailed":                   true,
	"KubernetesRolloutHealth":         true,
	"KubeDeploymentRolloutStuck":      true,
}

// containerScopedAlertNames additionally include the container label in the
// rollout key. Only the OOM-killer alert today.
var containerScopedAlertNames = map[string]bool{
	"KubernetesContainerOomKiller": true,
}

// HasRolloutKey reports whether the alertname participates in
// rollout-workload collapsing.
func HasRolloutKey(alertname string) bool {
	return rolloutAlertNames[alertname]
}

// Key identifies one investigation for idempotency purposes.
type Key struct {
	AlertName string
	Hash      string
	// Rollout marks a workload-collapsed key, which uses a longer
	// freshness TTL.
	Rollout bool
}

// String renders the canonical <alertname>/<hash> form.
func (k Key) String() string {
	return k.AlertName + "/" + k.Hash
}

// ObjectKey returns the object-store key for the given extension ("md" or
// "json").
func (k Key) ObjectKey(ext string) string {
	return fmt.Sprintf("%s/%s.%s", k.AlertName, k.Hash, ext)
}

// MessageID returns the JetStream message id for queue-level dedup.
func (k Key) MessageID() string {
	return k.Hash
}

// ForAlert derives the dedup key for one alert. Alerts in the rollout set
// with a resolvable workload identity get the workload key; everything else
// gets the per-alert fingerprint key.
func ForAlert(alert *models.AlertInstance, target *models.TargetRef, receivedAt time.Time) Key {
	name := alert.AlertName()
	if name == "" {
		name = "unknown"
	}
	if rolloutAlertNames[name] && target != nil && target.Namespace != "" && target.WorkloadName != "" {
		return rolloutKey(name, alert, target)
	}
	return fingerprintKey(name, alert, receivedAt)
}

// fingerprintKey hashes (alertname, labels, fingerprint, time bucket) for
// per-alert idempotency. The bucket is the alert start hour so a re-fire a
// day later is a fresh investigation even with an identical label set.
func fingerprintKey(name string, alert *models.AlertInstance, receivedAt time.Time) Key {
	h := sha256.New()
	fmt.Fprintf(h, "%s\n", name)
	for _, kv := range sortedLabels(alert.Labels) {
		fmt.Fprintf(h, "%s\n", kv)
	}
	fmt.Fprintf(h, "%s\n", alert.Fingerprint)
	fmt.Fprintf(h, "%s\n", timeBucket(alert, receivedAt))
	return Key{AlertName: name, Hash: shortHex(h.Sum(nil))}
}

// rolloutKey hashes workload identity so every pod of one rollout collapses
// to a single investigation. Container is included only for the
// container-scoped alert set.
func rolloutKey(name string, alert *models.AlertInstance, target *models.TargetRef) Key {
	h := sha256.New()
	fmt.Fprintf(h, "%s\n%s\n%s\n%s\n%s\n",
		name, target.Cluster, target.Namespace, target.WorkloadKind, target.WorkloadName)
	if containerScopedAlertNames[name] {
		fmt.Fprintf(h, "%s\n", target.Container)
	}
	return Key{AlertName: name, Hash: shortHex(h.Sum(nil)), Rollout: true}
}

// CaseKey derives the deterministic Postgres case identity. Fingerprint path
// when a fingerprint exists, workload path for the rollout set, day-bucketed
// label grouping as the fallback.
func CaseKey(alert *models.AlertInstance, target *models.TargetRef, receivedAt time.Time) string {
	name := alert.AlertName()
	if name == "" {
		name = "unknown"
	}
	if rolloutAlertNames[name] && target != nil && target.WorkloadName != "" {
		return fmt.Sprintf("workload:%s:%s:%s:%s:%s",
			name, target.Cluster, target.Namespace, target.WorkloadKind, target.WorkloadName)
	}
	if alert.Fingerprint != "" {
		return fmt.Sprintf("fingerprint:%s:%s", name, alert.Fingerprint)
	}
	h := sha256.New()
	fmt.Fprintf(h, "%s\n", name)
	for _, kv := range sortedLabels(alert.Labels) {
		fmt.Fprintf(h, "%s\n", kv)
	}
	day := bucketTime(alert, receivedAt).Format("2006-01-02")
	return fmt.Sprintf("day:%s:%s:%s", name, day, shortHex(h.Sum(nil)))
}

func bucketTime(alert *models.AlertInstance, receivedAt time.Time) time.Time {
	if alert.StartsAt != "" {
		if t, err := time.Parse(time.RFC3339, alert.StartsAt); err == nil && t.Year() > 1 {
			return t.UTC()
		}
	}
	return receivedAt.UTC()
}

func timeBucket(alert *models.AlertInstance, receivedAt time.Time) string {
	return bucketTime(alert, receivedAt).Truncate(time.Hour).Format(time.RFC3339)
}

func sortedLabels(labels map[string]string) []string {
	out := make([]string, 0, len(labels))
	for k, v := range labels {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

func shortHex(sum []byte) string {
	return strings.ToLower(hex.EncodeToString(sum))[:16]
}
