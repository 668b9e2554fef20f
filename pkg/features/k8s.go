package features

import (
	"fmt"
	"sort"
	"strings"

	"github.com/samber/lo"

	"github.com/tarkyaio/tarka/pkg/models"
)

const statusTextLimit = 200

// waitingReasonPriority ranks container waiting reasons for the top-N list.
// Lower index wins.
var waitingReasonPriority = []string{
	"ImagePullBackOff",
	"ErrImagePull",
	"CreateContainerConfigError",
	"CrashLoopBackOff",
	"CreateContainerError",
	"RunContainerError",
	"InvalidImageName",
	"ContainerCreating",
}

// lastTerminatedPriority ranks termination reasons. Lower index wins.
var lastTerminatedPriority = []string{
	"OOMKilled",
	"Error",
	"Completed",
}

// ExtractK8s projects Kubernetes evidence into FeaturesK8s.
func ExtractK8s(ev *models.Evidence) models.FeaturesK8s {
	var out models.FeaturesK8s

	info := ev.K8s.PodInfo
	if info != nil {
		out.PodPhase = asString(info["phase"])
		out.StatusReason = truncate(asString(info["reason"]), statusTextLimit)
		out.StatusMessage = truncate(asString(info["message"]), statusTextLimit)
	}

	out.Ready = readyCondition(ev.K8s.PodConditions)
	out.NotReadyConditions = notReadyConditions(ev.K8s.PodConditions)

	statuses := containerStatuses(info)
	if restarts, ok := maxRestartCount(statuses); ok {
		out.RestartCount = &restarts
	}
	out.WaitingReason, out.ContainerWaitingReasonsTop = waitingReasons(statuses)
	out.ContainerLastTerminatedTop = lastTerminatedReasons(statuses)

	out.OOMKilled = detectOOM(statuses, ev.K8s.PodEvents)
	out.Evicted = strings.EqualFold(out.StatusReason, "Evicted") || eventsContainReason(ev.K8s.PodEvents, "Evicted")

	out.WarningEventsCount = countWarningEvents(ev.K8s.PodEvents)
	out.RecentEventReasonsTop = recentEventReasons(ev.K8s.PodEvents, 5)

	out.RestartRate5mMax = maxSeriesValue(ev.Metrics.Restarts)

	return out
}

func containerStatuses(info map[string]any) []map[string]any {
	if info == nil {
		return nil
	}
	raw, _ := info["container_statuses"].([]map[string]any)
	if raw != nil {
		return raw
	}
	// JSON round-trips produce []any.
	anyList, _ := info["container_statuses"].([]any)
	var out []map[string]any
	for _, item := range anyList {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

func readyCondition(conditions []map[string]any) *bool {
	for _, cond := range conditions {
		if asString(cond["type"]) != "Ready" {
			continue
		}
		ready := asString(cond["status"]) == "True"
		return &ready
	}
	return nil
}

func notReadyConditions(conditions []map[string]any) []string {
	var out []string
	for _, cond := range conditions {
		status := asString(cond["status"])
		if status == "True" {
			continue
		}
		entry := fmt.Sprintf("%s=%s", asString(cond["type"]), status)
		if reason := asString(cond["reason"]); reason != "" {
			entry += " (" + reason + ")"
		}
		out = append(out, entry)
	}
	sort.Strings(out)
	return out
}

func maxRestartCount(statuses []map[string]any) (int, bool) {
	found := false
	max := 0
	for _, cs := range statuses {
		if n, ok := asInt(cs["restart_count"]); ok {
			found = true
			if n > max {
				max = n
			}
		}
	}
	return max, found
}

// waitingReasons returns the highest-priority waiting reason plus the ranked
// top three.
func waitingReasons(statuses []map[string]any) (string, []string) {
	var reasons []string
	for _, cs := range statuses {
		waiting, _ := cs["waiting"].(map[string]any)
		if waiting == nil {
			continue
		}
		if reason := asString(waiting["reason"]); reason != "" {
			reasons = append(reasons, reason)
		}
	}
	reasons = lo.Uniq(reasons)
	sortByPriority(reasons, waitingReasonPriority)
	top := reasons
	if len(top) > 3 {
		top = top[:3]
	}
	first := ""
	if len(reasons) > 0 {
		first = reasons[0]
	}
	return first, top
}

func lastTerminatedReasons(statuses []map[string]any) []string {
	var reasons []string
	for _, cs := range statuses {
		term, _ := cs["last_terminated"].(map[string]any)
		if term == nil {
			term, _ = cs["terminated"].(map[string]any)
		}
		if term == nil {
			continue
		}
		if reason := asString(term["reason"]); reason != "" {
			reasons = append(reasons, reason)
		}
	}
	reasons = lo.Uniq(reasons)
	sortByPriority(reasons, lastTerminatedPriority)
	if len(reasons) > 3 {
		reasons = reasons[:3]
	}
	return reasons
}

// sortByPriority orders reasons by the fixed table; unknown reasons sort
// after known ones, alphabetically for stability.
func sortByPriority(reasons []string, priority []string) {
	rank := func(r string) int {
		for i, p := range priority {
			if p == r {
				return i
			}
		}
		return len(priority)
	}
	sort.SliceStable(reasons, func(i, j int) bool {
		ri, rj := rank(reasons[i]), rank(reasons[j])
		if ri != rj {
			return ri < rj
		}
		return reasons[i] < reasons[j]
	})
}

func detectOOM(statuses []map[string]any, events []map[string]any) bool {
	for _, cs := range statuses {
		for _, key := range []string{"waiting", "terminated", "last_terminated"} {
			if state, _ := cs[key].(map[string]any); state != nil {
				if asString(state["reason"]) == "OOMKilled" {
					return true
				}
			}
		}
	}
	return eventsContainReason(events, "OOMKilling") || eventsContainReason(events, "OOMKilled")
}

func eventsContainReason(events []map[string]any, reason string) bool {
	for _, ev := range events {
		if asString(ev["reason"]) == reason {
			return true
		}
	}
	return false
}

func countWarningEvents(events []map[string]any) int {
	n := 0
	for _, ev := range events {
		if asString(ev["type"]) == "Warning" {
			n++
		}
	}
	return n
}

// recentEventReasons returns the top-N event reasons ordered by timestamp
// desc, then count desc, then reason asc.
func recentEventReasons(events []map[string]any, n int) []string {
	type entry struct {
		reason    string
		timestamp string
		count     int
	}
	var entries []entry
	for _, ev := range events {
		reason := asString(ev["reason"])
		if reason == "" {
			continue
		}
		count, _ := asInt(ev["count"])
		entries = append(entries, entry{
			reason:    reason,
			timestamp: asString(ev["timestamp"]),
			count:     count,
		})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].timestamp != entries[j].timestamp {
			return entries[i].timestamp > entries[j].timestamp
		}
		if entries[i].count != entries[j].count {
			return entries[i].count > entries[j].count
		}
		return entries[i].reason < entries[j].reason
	})
	var out []string
	seen := map[string]bool{}
	for _, e := range entries {
		if seen[e.reason] {
			continue
		}
		seen[e.reason] = true
		out = append(out, e.reason)
		if len(out) >= n {
			break
		}
	}
	return out
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}
