package analyzers

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/tarkyaio/tarka/pkg/models"
	"github.com/tarkyaio/tarka/pkg/providers"
)

// Change correlation decays the score as the distance between the latest
// change and the incident window grows.
const (
	changeFullScoreWindow = 15 * time.Minute
	changeDecayHorizon    = 6 * time.Hour
	maxTimelineEvents     = 20
	maxCommits            = 10
)

// ChangeAnalyzer builds a change timeline from Kubernetes ownership
// evidence plus optional GitHub history, and scores how well the latest
// change lines up with the incident window.
type ChangeAnalyzer struct {
	github providers.GitHub
}

// NewChangeAnalyzer creates the analyzer; github may be nil.
func NewChangeAnalyzer(github providers.GitHub) *ChangeAnalyzer {
	return &ChangeAnalyzer{github: github}
}

// Analyze fills Analysis.Change. Best-effort: GitHub failures only record
// an error bullet.
func (a *ChangeAnalyzer) Analyze(ctx context.Context, inv *models.Investigation) {
	timeline := k8sTimeline(&inv.Evidence)

	if a.github != nil {
		a.collectGitHub(ctx, inv)
	}
	timeline = append(timeline, githubTimeline(&inv.Evidence)...)

	sort.SliceStable(timeline, func(i, j int) bool {
		if timeline[i].Timestamp != timeline[j].Timestamp {
			return timeline[i].Timestamp < timeline[j].Timestamp
		}
		return timeline[i].Summary < timeline[j].Summary
	})
	if len(timeline) > maxTimelineEvents {
		timeline = timeline[len(timeline)-maxTimelineEvents:]
	}

	correlation := models.ChangeCorrelation{Timeline: timeline}
	if len(timeline) > 0 {
		latest := timeline[len(timeline)-1]
		correlation.Score = correlationScore(latest.Timestamp, inv.TimeWindow)
		correlation.Summary = summarize(latest, correlation.Score)
	}
	inv.Analysis.Change = correlation
}

func (a *ChangeAnalyzer) collectGitHub(ctx context.Context, inv *models.Investigation) {
	since := inv.TimeWindow.StartTime.Add(-24 * time.Hour)
	commits, err := a.github.RecentCommits(ctx, since, inv.TimeWindow.EndTime)
	if err != nil {
		inv.RecordError("change.github", err)
		return
	}
	if len(commits) > maxCommits {
		commits = commits[:maxCommits]
	}
	inv.Evidence.GitHub.Commits = commits

	runs, err := a.github.WorkflowRuns(ctx, maxCommits)
	if err != nil {
		inv.RecordError("change.github", err)
		return
	}
	inv.Evidence.GitHub.WorkflowRuns = runs
}

func k8sTimeline(ev *models.Evidence) []models.ChangeEvent {
	var out []models.ChangeEvent

	for _, entry := range ev.K8s.OwnerChain {
		kind, _ := entry["kind"].(string)
		name, _ := entry["name"].(string)
		created, _ := entry["created_at"].(string)
		if created == "" {
			continue
		}
		if kind == "ReplicaSet" || kind == "Job" {
			out = append(out, models.ChangeEvent{
				Timestamp: created,
				Kind:      "k8s_" + kind,
				Source:    "kubernetes",
				Summary:   fmt.Sprintf("%s %s created", kind, name),
			})
		}
	}
	if rs := ev.K8s.RolloutStatus; rs != nil {
		if ts, _ := rs["last_update_time"].(string); ts != "" {
			out = append(out, models.ChangeEvent{
				Timestamp: ts,
				Kind:      "rollout",
				Source:    "kubernetes",
				Summary:   "workload rollout progressed",
			})
		}
	}
	return out
}

func githubTimeline(ev *models.Evidence) []models.ChangeEvent {
	var out []models.ChangeEvent

	for _, c := range ev.GitHub.Commits {
		ts, _ := c["timestamp"].(string)
		msg, _ := c["message"].(string)
		sha, _ := c["sha"].(string)
		if ts == "" {
			continue
		}
		if len(sha) > 7 {
			sha = sha[:7]
		}
		out = append(out, models.ChangeEvent{
			Timestamp: ts,
			Kind:      "commit",
			Source:    "github",
			Summary:   fmt.Sprintf("%s %s", sha, msg),
		})
	}
	for _, r := range ev.GitHub.WorkflowRuns {
		ts, _ := r["updated_at"].(string)
		name, _ := r["name"].(string)
		conclusion, _ := r["conclusion"].(string)
		if ts == "" || conclusion == "" {
			continue
		}
		out = append(out, models.ChangeEvent{
			Timestamp: ts,
			Kind:      "workflow_run",
			Source:    "github",
			Summary:   fmt.Sprintf("workflow %s: %s", name, conclusion),
		})
	}
	return out
}

// correlationScore is 1.0 for a change inside (or just before) the window
// and decays linearly to 0 over the decay horizon.
func correlationScore(ts string, window models.TimeWindow) float64 {
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return 0
	}
	if t.After(window.EndTime) {
		return 0
	}
	gap := window.StartTime.Sub(t)
	if gap <= changeFullScoreWindow {
		return 1.0
	}
	if gap >= changeDecayHorizon {
		return 0
	}
	remaining := changeDecayHorizon - gap
	return float64(remaining) / float64(changeDecayHorizon-changeFullScoreWindow)
}

func summarize(latest models.ChangeEvent, score float64) string {
	switch {
	case score >= 0.8:
		return fmt.Sprintf("strong correlation: %s at %s, inside the incident window", latest.Summary, latest.Timestamp)
	case score > 0:
		return fmt.Sprintf("possible correlation: %s at %s, %.0f%% proximity to the window", latest.Summary, latest.Timestamp, score*100)
	default:
		return fmt.Sprintf("no recent change lines up with the window; latest was %s at %s", latest.Summary, latest.Timestamp)
	}
}
