package diagnose

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/tarkyaio/tarka/pkg/models"
	"github.com/tarkyaio/tarka/pkg/providers"
)

const maxHypotheses = 10

// Module is one diagnostic unit. Collect is best-effort and must never
// return an error; failures are recorded on the investigation instead.
type Module interface {
	ID() string
	Applies(inv *models.Investigation) bool
	Collect(ctx context.Context, inv *models.Investigation)
	Diagnose(inv *models.Investigation) []models.Hypothesis
}

// Memory retrieves similar historical resolved cases for calibration.
type Memory interface {
	SimilarResolved(ctx context.Context, inv *models.Investigation) ([]HistoricalCase, error)
}

// HistoricalCase is one prior resolved incident with its assigned category.
type HistoricalCase struct {
	CaseID   string
	Category string
	Resolved string
}

// Engine runs the module registry against one investigation. The registry
// is built once at startup and read-only afterwards.
type Engine struct {
	modules []Module
	memory  Memory
	logger  *slog.Logger
}

// NewEngine creates an engine over the given modules. memory may be nil.
func NewEngine(modules []Module, memory Memory, logger *slog.Logger) *Engine {
	if logger == nil {
		panic("diagnose.NewEngine: logger is nil")
	}
	return &Engine{modules: modules, memory: memory, logger: logger.With("component", "diagnose")}
}

// DefaultModules is the explicit module composition, in run order.
func DefaultModules(kube providers.Kubernetes, logs providers.Logs) []Module {
	return []Module{
		NewCrashloopModule(kube, logs),
		NewJobFailureModule(),
		NewCapacityModule(),
		NewRolloutModule(),
		NewObjectStoreLogModule(),
	}
}

// Run executes Collect then Diagnose for every applicable module, sorts the
// combined hypotheses, and writes them to the investigation. A panicking
// module is contained and recorded.
func (e *Engine) Run(ctx context.Context, inv *models.Investigation) {
	var all []models.Hypothesis
	for _, m := range e.modules {
		if !m.Applies(inv) {
			continue
		}
		all = append(all, e.runModule(ctx, m, inv)...)
	}

	if e.memory != nil {
		all = e.calibrate(ctx, inv, all)
	}

	sort.SliceStable(all, func(i, j int) bool {
		if all[i].Confidence != all[j].Confidence {
			return all[i].Confidence > all[j].Confidence
		}
		return all[i].HypothesisID < all[j].HypothesisID
	})
	if len(all) > maxHypotheses {
		all = all[:maxHypotheses]
	}
	inv.Analysis.Hypotheses = all
}

func (e *Engine) runModule(ctx context.Context, m Module, inv *models.Investigation) (out []models.Hypothesis) {
	defer func() {
		if r := recover(); r != nil {
			inv.RecordError("diagnose."+m.ID(), fmt.Errorf("module panicked: %v", r))
			e.logger.Error("diagnostic module panicked", "module", m.ID(), "panic", r)
			out = nil
		}
	}()
	m.Collect(ctx, inv)
	return m.Diagnose(inv)
}

const (
	memoryMinCases        = 3
	memoryMinCategoryHits = 2
	memoryDominance       = 0.6
	memoryStrongDominance = 0.8
	memoryBump            = 10
	memoryStrongBump      = 20
)

// calibrate bumps confidence of hypotheses whose id matches the dominant
// category among similar resolved cases. Confidence never decreases.
func (e *Engine) calibrate(ctx context.Context, inv *models.Investigation, hyps []models.Hypothesis) []models.Hypothesis {
	cases, err := e.memory.SimilarResolved(ctx, inv)
	if err != nil {
		inv.RecordError("diagnose.memory", err)
		return hyps
	}
	if len(cases) < memoryMinCases {
		return hyps
	}

	counts := map[string]int{}
	for _, c := range cases {
		if c.Category != "" {
			counts[c.Category]++
		}
	}
	category, n := "", 0
	for cat, c := range counts {
		if c > n || (c == n && cat < category) {
			category, n = cat, c
		}
	}
	fraction := float64(n) / float64(len(cases))
	if n < memoryMinCategoryHits || fraction < memoryDominance {
		return hyps
	}

	bump := memoryBump
	if fraction >= memoryStrongDominance {
		bump = memoryStrongBump
	}
	for i := range hyps {
		if !matchesCategory(hyps[i].HypothesisID, category) {
			continue
		}
		hyps[i].Confidence = clampConfidence(hyps[i].Confidence + bump)
		hyps[i].Why = append(hyps[i].Why, fmt.Sprintf(
			"history: %d of %d similar resolved cases were %q", n, len(cases), category))
	}
	return hyps
}

func matchesCategory(hypothesisID, category string) bool {
	return category != "" && containsFold(hypothesisID, category)
}

func clampConfidence(v int) int {
	if v > 100 {
		return 100
	}
	if v < 0 {
		return 0
	}
	return v
}
