package features

import (
	"time"

	"github.com/tarkyaio/tarka/pkg/models"
)

// ExtractChanges projects owner-chain and rollout evidence into
// FeaturesChanges.
func ExtractChanges(ev *models.Evidence, window models.TimeWindow) models.FeaturesChanges {
	var out models.FeaturesChanges

	for _, entry := range ev.K8s.OwnerChain {
		kind := asString(entry["kind"])
		switch kind {
		case "Deployment", "StatefulSet", "DaemonSet", "Job", "CronJob":
			out.OwningWorkloadKind = kind
			out.OwningWorkloadName = asString(entry["name"])
		}
	}

	lastChange := lastChangeTimestamp(ev)
	if lastChange != "" {
		out.LastChangeTs = lastChange
		if t, err := time.Parse(time.RFC3339, lastChange); err == nil {
			// A change is "within window" when it happened after the start of
			// the lookback, including slightly before the alert fired.
			if !t.Before(window.StartTime) && !t.After(window.EndTime.Add(5*time.Minute)) {
				out.RolloutWithinWindow = true
			}
		}
	}
	return out
}

// lastChangeTimestamp picks the most recent change marker from rollout
// status or owner chain creation times.
func lastChangeTimestamp(ev *models.Evidence) string {
	best := ""
	consider := func(ts string) {
		if ts != "" && ts > best {
			best = ts
		}
	}
	if ev.K8s.RolloutStatus != nil {
		consider(asString(ev.K8s.RolloutStatus["last_update_time"]))
		consider(asString(ev.K8s.RolloutStatus["start_time"]))
	}
	for _, entry := range ev.K8s.OwnerChain {
		if kind := asString(entry["kind"]); kind == "ReplicaSet" || kind == "Job" {
			consider(asString(entry["created_at"]))
		}
	}
	return best
}
