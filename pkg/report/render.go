package report

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/tarkyaio/tarka/pkg/models"
)

// Shell commands recognized by the code-fence heuristic.
var shellPrefixes = []string{"kubectl", "aws", "gh", "curl", "helm", "stern", "kubectl-debug", "nc", "dig"}

// PromQL signatures recognized by the code-fence heuristic.
var promqlSignatures = []string{"ALERTS{", "ALERTS_FOR_STATE", "rate(", "sum(", "count(", "max(", "increase(", "sort_desc(", "up{", "resets("}

// Render turns a finished investigation into the Markdown report. Pure
// function; rendering failures are impossible by construction (sections
// with no data are omitted).
func Render(inv *models.Investigation) string {
	var b strings.Builder

	renderHeader(&b, inv)
	renderDecision(&b, "Triage", inv.Analysis.Decision)
	renderDecision(&b, "Enrichment", inv.Analysis.Enrichment)
	renderHypotheses(&b, inv.Analysis.Hypotheses)
	renderVerdict(&b, inv)
	renderScores(&b, inv.Analysis.Scores)
	renderNoise(&b, inv.Analysis.Noise)
	renderNextSteps(&b, inv.Analysis.Verdict.NextSteps)
	renderOptionalMap(&b, "RCA", inv.Analysis.RCA)
	renderOptionalMap(&b, "LLM Insights", inv.Analysis.LLM)
	renderAppendix(&b, inv)

	return b.String()
}

func renderHeader(b *strings.Builder, inv *models.Investigation) {
	alertname := inv.Alert.Labels["alertname"]
	if alertname == "" {
		alertname = "UnknownAlert"
	}
	fmt.Fprintf(b, "# Investigation: %s\n\n", alertname)

	fmt.Fprintf(b, "- **State:** %s\n", inv.Alert.NormalizedState)
	if inv.Family() != "" {
		fmt.Fprintf(b, "- **Family:** %s\n", inv.Family())
	}
	fmt.Fprintf(b, "- **Target:** %s\n", targetLine(inv.Target))
	fmt.Fprintf(b, "- **Window:** %s\n", inv.TimeWindow)
	if inv.Alert.StartsAt != "" {
		fmt.Fprintf(b, "- **Started:** %s\n", inv.Alert.StartsAt)
	}
	if len(inv.Errors) > 0 {
		fmt.Fprintf(b, "- **Collection errors:** %d (see appendix)\n", len(inv.Errors))
	}
	b.WriteString("\n")
}

func targetLine(t models.TargetRef) string {
	switch t.TargetType {
	case models.TargetPod:
		return fmt.Sprintf("pod %s/%s", t.Namespace, t.Pod)
	case models.TargetWorkload:
		kind := t.WorkloadKind
		if kind == "" {
			kind = "workload"
		}
		return fmt.Sprintf("%s %s/%s", strings.ToLower(kind), t.Namespace, t.WorkloadName)
	case models.TargetService:
		if t.Service != "" {
			return fmt.Sprintf("service %s/%s", t.Namespace, t.Service)
		}
		return fmt.Sprintf("job %s", t.Job)
	case models.TargetNode:
		return fmt.Sprintf("node %s", t.Node)
	case models.TargetCluster:
		return fmt.Sprintf("cluster %s", t.Cluster)
	default:
		return "unknown"
	}
}

func renderDecision(b *strings.Builder, title string, d models.Decision) {
	if d.Label == "" && len(d.Why) == 0 && len(d.Next) == 0 {
		return
	}
	fmt.Fprintf(b, "## %s\n\n", title)
	if d.Label != "" {
		fmt.Fprintf(b, "**%s**\n\n", d.Label)
	}
	for _, why := range d.Why {
		fmt.Fprintf(b, "- %s\n", why)
	}
	if len(d.Why) > 0 {
		b.WriteString("\n")
	}
	renderSteps(b, d.Next)
}

func renderHypotheses(b *strings.Builder, hyps []models.Hypothesis) {
	if len(hyps) == 0 {
		return
	}
	b.WriteString("## Likely causes\n\n")
	for i, h := range hyps {
		fmt.Fprintf(b, "### %d. %s (confidence %d)\n\n", i+1, h.Title, h.Confidence)
		for _, why := range h.Why {
			fmt.Fprintf(b, "- %s\n", why)
		}
		for _, ref := range h.SupportingRefs {
			fmt.Fprintf(b, "- supported by: %s\n", ref)
		}
		for _, ref := range h.CounterRefs {
			fmt.Fprintf(b, "- counter-evidence: %s\n", ref)
		}
		b.WriteString("\n")
		if len(h.ProposedActions) > 0 {
			b.WriteString("**Fix:**\n\n")
			renderSteps(b, h.ProposedActions)
		}
		if len(h.NextTests) > 0 {
			b.WriteString("**Verify:**\n\n")
			renderSteps(b, h.NextTests)
		}
	}
}

func renderVerdict(b *strings.Builder, inv *models.Investigation) {
	v := inv.Analysis.Verdict
	if v.OneLiner == "" && v.Classification == "" {
		return
	}
	b.WriteString("## Verdict\n\n")
	fmt.Fprintf(b, "**%s** (severity: %s)\n\n", v.Classification, v.Severity)
	fmt.Fprintf(b, "%s\n\n", v.OneLiner)
	if v.PrimaryDriver != "" {
		fmt.Fprintf(b, "Primary driver: `%s`\n\n", v.PrimaryDriver)
	}
	if snippet := SnippetFromLogs(&inv.Evidence.Logs); len(snippet) > 0 {
		b.WriteString("Latest error context:\n\n```\n")
		for _, line := range snippet {
			b.WriteString(line)
			b.WriteString("\n")
		}
		b.WriteString("```\n\n")
	}
}

func renderScores(b *strings.Builder, s models.DeterministicScores) {
	b.WriteString("## Scores\n\n")
	fmt.Fprintf(b, "| Axis | Value |\n|---|---|\n| Impact | %d |\n| Confidence | %d |\n| Noise | %d |\n\n",
		s.Impact, s.Confidence, s.Noise)

	if len(s.ReasonCodes) > 0 {
		b.WriteString("## Reason codes\n\n")
		for _, item := range s.Breakdown {
			ref := ""
			if item.FeatureRef != "" {
				ref = " (" + item.FeatureRef + ")"
			}
			fmt.Fprintf(b, "- `%s` %s%+d%s\n", item.Code, item.Axis, item.Delta, ref)
		}
		b.WriteString("\n")
	}
}

func renderNoise(b *strings.Builder, n models.NoiseInsights) {
	if n.PrometheusStatus == "" && n.FlapScore == 0 && len(n.MissingLabels) == 0 && len(n.Recommendations) == 0 {
		return
	}
	b.WriteString("## Noise insights\n\n")
	fmt.Fprintf(b, "- flap score: %d\n", n.FlapScore)
	if n.FlapCount != nil {
		fmt.Fprintf(b, "- state flips in lookback: %.0f\n", *n.FlapCount)
	}
	if n.FiringAlerts != nil {
		fmt.Fprintf(b, "- firing alerts for this selector: %d\n", *n.FiringAlerts)
	}
	if len(n.MissingLabels) > 0 {
		fmt.Fprintf(b, "- missing labels: %s\n", strings.Join(n.MissingLabels, ", "))
	}
	for _, kv := range sortedPairs(n.InferredLabels) {
		fmt.Fprintf(b, "- inferred %s: %s\n", kv[0], kv[1])
	}
	for _, rec := range n.Recommendations {
		fmt.Fprintf(b, "- %s\n", rec)
	}
	b.WriteString("\n")
}

func renderNextSteps(b *strings.Builder, steps []string) {
	if len(steps) == 0 {
		return
	}
	b.WriteString("## On-call next steps\n\n")
	renderSteps(b, steps)
}

func renderOptionalMap(b *strings.Builder, title string, m map[string]any) {
	if len(m) == 0 {
		return
	}
	fmt.Fprintf(b, "## %s\n\n", title)
	writeJSONBlock(b, m)
}

func renderAppendix(b *strings.Builder, inv *models.Investigation) {
	b.WriteString("## Appendix\n\n")

	b.WriteString("### Derived features\n\n")
	writeJSONBlock(b, inv.Analysis.Features)

	if len(inv.Analysis.Noise.SuggestedGroupBy) > 0 || inv.Analysis.Noise.PrometheusStatus != "" {
		b.WriteString("### Noise (structured)\n\n")
		writeJSONBlock(b, inv.Analysis.Noise)
	}
	if len(inv.Analysis.Capacity.Rightsizing) > 0 {
		b.WriteString("### Capacity\n\n")
		writeJSONBlock(b, inv.Analysis.Capacity)
	}
	if len(inv.Analysis.Change.Timeline) > 0 {
		b.WriteString("### Change timeline\n\n")
		writeJSONBlock(b, inv.Analysis.Change)
	}
	if inv.Evidence.K8s.PodInfo != nil || len(inv.Evidence.K8s.PodEvents) > 0 {
		b.WriteString("### Kubernetes\n\n")
		writeJSONBlock(b, inv.Evidence.K8s)
	}
	if hasMetrics(&inv.Evidence.Metrics) {
		b.WriteString("### Metrics\n\n")
		writeJSONBlock(b, inv.Evidence.Metrics)
	}
	if inv.Evidence.Logs.Attempted() {
		b.WriteString("### Logs\n\n")
		fmt.Fprintf(b, "- status: %s", inv.Evidence.Logs.Status)
		if inv.Evidence.Logs.Reason != "" {
			fmt.Fprintf(b, " (%s)", inv.Evidence.Logs.Reason)
		}
		b.WriteString("\n")
		if inv.Evidence.Logs.Backend != "" {
			fmt.Fprintf(b, "- backend: %s\n", inv.Evidence.Logs.Backend)
		}
		if inv.Evidence.Logs.Query != "" {
			fmt.Fprintf(b, "- query: `%s`\n", inv.Evidence.Logs.Query)
		}
		fmt.Fprintf(b, "- entries: %d, parsed errors: %d\n\n", len(inv.Evidence.Logs.Entries), len(inv.Evidence.Logs.ParsedErrors))
	}
	if len(inv.Evidence.AWS.Resources) > 0 || len(inv.Evidence.AWS.CloudTrail) > 0 {
		b.WriteString("### AWS\n\n")
		writeJSONBlock(b, inv.Evidence.AWS)
	}
	if len(inv.Evidence.GitHub.Commits) > 0 || len(inv.Evidence.GitHub.WorkflowRuns) > 0 {
		b.WriteString("### GitHub\n\n")
		writeJSONBlock(b, inv.Evidence.GitHub)
	}
	if len(inv.Errors) > 0 {
		b.WriteString("### Collection errors\n\n")
		for _, e := range inv.Errors {
			fmt.Fprintf(b, "- %s\n", e)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(b, "_Generated at %s_\n", inv.CreatedAt.UTC().Format(time.RFC3339))
}

// renderSteps applies the code-fence heuristic per step: shell commands
// and PromQL render as fenced blocks, prose as bullets.
func renderSteps(b *strings.Builder, steps []string) {
	for _, step := range steps {
		if IsCodeLike(step) {
			fmt.Fprintf(b, "```\n%s\n```\n", step)
		} else {
			fmt.Fprintf(b, "- %s\n", step)
		}
	}
	b.WriteString("\n")
}

// IsCodeLike reports whether a next-step string should render as a fence.
func IsCodeLike(s string) bool {
	trimmed := strings.TrimSpace(s)
	if strings.HasPrefix(trimmed, "```") {
		return true
	}
	first := trimmed
	if i := strings.IndexByte(trimmed, ' '); i > 0 {
		first = trimmed[:i]
	}
	for _, p := range shellPrefixes {
		if first == p {
			return true
		}
	}
	for _, sig := range promqlSignatures {
		if strings.Contains(trimmed, sig) {
			return true
		}
	}
	// Metric selector shape: word{label="value"}.
	if i := strings.IndexByte(trimmed, '{'); i > 0 && strings.Contains(trimmed[i:], "=") && strings.Contains(trimmed[i:], "}") {
		if !strings.ContainsAny(trimmed[:i], " \t") {
			return true
		}
	}
	return false
}

// writeJSONBlock renders any value as an indented JSON fence. Go maps
// marshal with sorted keys, so output is byte-stable.
func writeJSONBlock(b *strings.Builder, v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return
	}
	b.WriteString("```json\n")
	b.Write(data)
	b.WriteString("\n```\n\n")
}

func sortedPairs(m map[string]string) [][2]string {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([][2]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, [2]string{k, m[k]})
	}
	return out
}

func hasMetrics(m *models.MetricsEvidence) bool {
	return len(m.Throttling)+len(m.CPUUsage)+len(m.MemoryUsage)+len(m.Restarts)+len(m.HTTP5xx) > 0 ||
		len(m.PromBaseline) > 0 || len(m.JobMetrics) > 0
}
