package diagnose

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tarkyaio/tarka/pkg/models"
	"github.com/tarkyaio/tarka/pkg/providers"
	"github.com/tarkyaio/tarka/pkg/providers/logsrc"
)

// Exit codes with a fixed diagnostic meaning.
const (
	exitCodeOOM      = 137
	exitCodeSegfault = 139
)

// A crash shorter than this after container start suggests a startup
// failure rather than a runtime one.
const startupCrashSeconds = 30.0

const previousLogTailLines = 400

// CrashloopModule diagnoses restart loops in layers: exit code, probe
// events, log patterns (current and previous container), then a generic
// fallback. Each layer contributes at most one hypothesis.
type CrashloopModule struct {
	kube providers.Kubernetes
	logs providers.Logs
}

// NewCrashloopModule creates the module. Both providers may be nil; the
// module degrades to evidence already on the investigation.
func NewCrashloopModule(kube providers.Kubernetes, logs providers.Logs) *CrashloopModule {
	return &CrashloopModule{kube: kube, logs: logs}
}

func (m *CrashloopModule) ID() string { return "crashloop" }

func (m *CrashloopModule) Applies(inv *models.Investigation) bool {
	switch models.Family(inv.Family()) {
	case models.FamilyCrashloop, models.FamilyOOMKilled, models.FamilyPodNotHealthy:
		return true
	}
	return false
}

// Collect derives the crash duration and probe failure type, and fetches
// previous-container logs when the pod has restarted. All steps are
// best-effort.
func (m *CrashloopModule) Collect(ctx context.Context, inv *models.Investigation) {
	if d, ok := crashDuration(inv.Evidence.K8s.PodInfo); ok {
		inv.SetMeta(models.MetaCrashDurationSeconds, d)
	}
	if probe := probeFailureType(inv.Evidence.K8s.PodEvents); probe != "" {
		inv.SetMeta(models.MetaProbeFailureType, probe)
	}

	restarts := inv.Analysis.Features.K8s.RestartCount
	if m.kube == nil || restarts == nil || *restarts == 0 {
		return
	}
	if _, done := inv.Meta[models.MetaPreviousLogsParsedErrors]; done {
		return
	}
	target := inv.Target
	if target.Namespace == "" || target.Pod == "" {
		return
	}
	text, err := m.kube.PodLogs(ctx, target.Namespace, target.Pod, target.Container, true, previousLogTailLines)
	if err != nil {
		inv.RecordError("diagnose.crashloop.previous_logs", err)
		return
	}
	inv.SetMeta(models.MetaPreviousLogsParsedErrors, logsrc.ParseErrorsFromText(text))
}

func (m *CrashloopModule) Diagnose(inv *models.Investigation) []models.Hypothesis {
	var out []models.Hypothesis

	if h := m.exitCodeHypothesis(inv); h != nil {
		out = append(out, *h)
	}
	if h := m.probeHypothesis(inv); h != nil {
		out = append(out, *h)
	}
	out = append(out, m.logPatternHypotheses(inv)...)

	if len(out) == 0 {
		out = append(out, m.genericFallback(inv))
	}
	return out
}

func (m *CrashloopModule) exitCodeHypothesis(inv *models.Investigation) *models.Hypothesis {
	code, ok := lastExitCode(inv.Evidence.K8s.PodInfo)
	if !ok {
		return nil
	}
	k8s := inv.Analysis.Features.K8s

	switch {
	case code == exitCodeOOM:
		return &models.Hypothesis{
			HypothesisID: "crashloop_oom",
			Title:        "Container killed by the kernel OOM killer",
			Confidence:   80,
			Why: []string{
				"last termination exit code 137 (SIGKILL from the OOM killer)",
			},
			NextTests: []string{
				fmt.Sprintf("kubectl describe pod %s -n %s | grep -A3 'Last State'", inv.Target.Pod, inv.Target.Namespace),
			},
			ProposedActions: []string{
				"Raise the container memory limit or fix the leak; check memory_usage_p95 against the limit",
			},
		}
	case code == exitCodeSegfault:
		return &models.Hypothesis{
			HypothesisID: "crashloop-exit-139-segfault",
			Title:        "Container crashed with a segmentation fault",
			Confidence:   85,
			Why:          []string{"last termination exit code 139 (SIGSEGV)"},
			NextTests: []string{
				fmt.Sprintf("kubectl logs %s -n %s --previous | tail -50", inv.Target.Pod, inv.Target.Namespace),
			},
			ProposedActions: []string{
				"Check for a recent image change introducing native-code or glibc incompatibilities",
			},
		}
	case code == 0 && k8s.RestartCount != nil && *k8s.RestartCount > 0:
		return &models.Hypothesis{
			HypothesisID: "crashloop-exit-0-liveness-kill",
			Title:        "Healthy exit driven by liveness probe restarts",
			Confidence:   75,
			Why: []string{
				fmt.Sprintf("clean exit (code 0) with %d restarts; the liveness probe is killing a working process", *k8s.RestartCount),
			},
			NextTests: []string{
				fmt.Sprintf("kubectl get pod %s -n %s -o jsonpath='{.spec.containers[*].livenessProbe}'", inv.Target.Pod, inv.Target.Namespace),
			},
			ProposedActions: []string{
				"Relax the liveness probe (initialDelaySeconds, timeoutSeconds) or fix the probed endpoint",
			},
		}
	case code == 1:
		why := "last termination exit code 1 (application error)"
		if d, ok := inv.MetaFloat(models.MetaCrashDurationSeconds); ok && d <= startupCrashSeconds {
			why = fmt.Sprintf("exit code 1 after %.0fs of runtime; the process fails during startup", d)
		}
		return &models.Hypothesis{
			HypothesisID: "crashloop-exit-1-app-error",
			Title:        "Application exits with an error during startup",
			Confidence:   60,
			Why:          []string{why},
			NextTests: []string{
				fmt.Sprintf("kubectl logs %s -n %s --previous | tail -50", inv.Target.Pod, inv.Target.Namespace),
			},
		}
	}
	return nil
}

func (m *CrashloopModule) probeHypothesis(inv *models.Investigation) *models.Hypothesis {
	probe := inv.MetaString(models.MetaProbeFailureType)
	if probe == "" {
		return nil
	}
	return &models.Hypothesis{
		HypothesisID: "crashloop-probe-" + probe,
		Title:        fmt.Sprintf("%s probe failing", capitalize(probe)),
		Confidence:   70,
		Why: []string{
			fmt.Sprintf("recent events show %s probe failures for the pod", probe),
		},
		NextTests: []string{
			fmt.Sprintf("kubectl describe pod %s -n %s | grep -i 'probe'", inv.Target.Pod, inv.Target.Namespace),
		},
		ProposedActions: []string{
			"Confirm the probed endpoint responds within the probe timeout under current load",
		},
	}
}

// logPatternHypotheses matches the crashloop pattern library against
// current parsed errors first, then the previous container's. The first
// source that matches wins.
func (m *CrashloopModule) logPatternHypotheses(inv *models.Investigation) []models.Hypothesis {
	matches := MatchPatterns(CrashloopPatterns, inv.Evidence.Logs.ParsedErrors)
	source := "current container logs"
	if len(matches) == 0 {
		matches = MatchPatterns(CrashloopPatterns, previousParsedErrors(inv))
		source = "previous container logs"
	}
	if len(matches) == 0 {
		return nil
	}

	// One hypothesis for this layer: the strongest match.
	best := matches[0]
	for _, c := range matches[1:] {
		if c.Pattern.Confidence > best.Pattern.Confidence {
			best = c
		}
	}
	h := best.Hypothesis()
	h.SupportingRefs = append(h.SupportingRefs, source)
	m.fillContextDefaults(inv, &h)
	return []models.Hypothesis{h}
}

// fillContextDefaults substitutes leftover pod/namespace placeholders in
// next_tests using the target, since extractors only see log text.
func (m *CrashloopModule) fillContextDefaults(inv *models.Investigation, h *models.Hypothesis) {
	ctx := map[string]string{
		"pod":       inv.Target.Pod,
		"namespace": inv.Target.Namespace,
	}
	for i := range h.NextTests {
		h.NextTests[i] = RenderTemplate(h.NextTests[i], ctx)
	}
	for i := range h.ProposedActions {
		h.ProposedActions[i] = RenderTemplate(h.ProposedActions[i], ctx)
	}
}

func (m *CrashloopModule) genericFallback(inv *models.Investigation) models.Hypothesis {
	why := []string{"the container restarts but no exit code, probe event, or log pattern explains it"}
	if r := inv.Analysis.Features.K8s.RestartRate5mMax; r != nil {
		why = append(why, fmt.Sprintf("restart_rate_5m_max=%.1f", *r))
	}
	return models.Hypothesis{
		HypothesisID: "crashloop-generic",
		Title:        "Unexplained restart loop",
		Confidence:   30,
		Why:          why,
		NextTests: []string{
			fmt.Sprintf("kubectl logs %s -n %s --previous", inv.Target.Pod, inv.Target.Namespace),
			fmt.Sprintf("kubectl describe pod %s -n %s", inv.Target.Pod, inv.Target.Namespace),
		},
	}
}

func previousParsedErrors(inv *models.Investigation) []models.ParsedLogError {
	if inv.Meta == nil {
		return nil
	}
	errs, _ := inv.Meta[models.MetaPreviousLogsParsedErrors].([]models.ParsedLogError)
	return errs
}

// crashDuration computes seconds between the last termination's start and
// finish, scanning container statuses in the permissive pod info map.
func crashDuration(podInfo map[string]any) (float64, bool) {
	for _, status := range containerStatusMaps(podInfo) {
		term, _ := status["last_terminated"].(map[string]any)
		if term == nil {
			continue
		}
		started, ok1 := parseEventTime(term["started_at"])
		finished, ok2 := parseEventTime(term["finished_at"])
		if ok1 && ok2 && !finished.Before(started) {
			return finished.Sub(started).Seconds(), true
		}
	}
	return 0, false
}

// lastExitCode returns the most severe last-termination exit code across
// containers (highest wins so 137 beats 1).
func lastExitCode(podInfo map[string]any) (int, bool) {
	best, found := 0, false
	for _, status := range containerStatusMaps(podInfo) {
		term, _ := status["last_terminated"].(map[string]any)
		if term == nil {
			continue
		}
		if code, ok := asInt(term["exit_code"]); ok {
			if !found || code > best {
				best, found = code, true
			}
		}
	}
	return best, found
}

func probeFailureType(events []map[string]any) string {
	for i := len(events) - 1; i >= 0; i-- {
		msg, _ := events[i]["message"].(string)
		lower := strings.ToLower(msg)
		switch {
		case strings.Contains(lower, "liveness probe failed"):
			return "liveness"
		case strings.Contains(lower, "readiness probe failed"):
			return "readiness"
		case strings.Contains(lower, "startup probe failed"):
			return "startup"
		}
	}
	return ""
}

func containerStatusMaps(podInfo map[string]any) []map[string]any {
	if podInfo == nil {
		return nil
	}
	switch raw := podInfo["container_statuses"].(type) {
	case []map[string]any:
		return raw
	case []any:
		out := make([]map[string]any, 0, len(raw))
		for _, e := range raw {
			if m, ok := e.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	}
	return nil
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

func parseEventTime(v any) (time.Time, bool) {
	s, _ := v.(string)
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
