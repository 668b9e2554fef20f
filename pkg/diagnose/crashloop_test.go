package diagnose

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tarkyaio/tarka/pkg/models"
)

func crashloopInvestigation(exitCode int, restarts int) *models.Investigation {
	inv := models.NewInvestigation(models.AlertInstance{}, models.TimeWindow{})
	inv.SetMeta(models.MetaFamily, string(models.FamilyCrashloop))
	inv.Target = models.TargetRef{
		TargetType: models.TargetPod,
		Namespace:  "payments",
		Pod:        "api-7f9c-x2v1",
	}
	inv.Evidence.K8s.PodInfo = map[string]any{
		"container_statuses": []map[string]any{
			{"name": "api", "last_terminated": map[string]any{"reason": "Error", "exit_code": exitCode}},
		},
	}
	inv.Analysis.Features.K8s.RestartCount = &restarts
	return inv
}

func TestCrashloopModule_Exit137IsOOM(t *testing.T) {
	m := NewCrashloopModule(nil, nil)
	inv := crashloopInvestigation(137, 5)

	hyps := m.Diagnose(inv)
	require.NotEmpty(t, hyps)
	assert.Equal(t, "crashloop_oom", hyps[0].HypothesisID)
	assert.Equal(t, 80, hyps[0].Confidence)
}

func TestCrashloopModule_Exit0WithRestartsIsLivenessKill(t *testing.T) {
	m := NewCrashloopModule(nil, nil)
	inv := crashloopInvestigation(0, 3)

	hyps := m.Diagnose(inv)
	require.NotEmpty(t, hyps)
	assert.Equal(t, "crashloop-exit-0-liveness-kill", hyps[0].HypothesisID)
}

func TestCrashloopModule_LogPatternLayer(t *testing.T) {
	m := NewCrashloopModule(nil, nil)
	inv := models.NewInvestigation(models.AlertInstance{}, models.TimeWindow{})
	inv.SetMeta(models.MetaFamily, string(models.FamilyCrashloop))
	inv.Target = models.TargetRef{TargetType: models.TargetPod, Namespace: "payments", Pod: "api-7f9c-x2v1"}
	inv.Evidence.Logs.ParsedErrors = []models.ParsedLogError{
		{Message: "FATAL required environment variable DATABASE_URL is not set"},
	}

	hyps := m.Diagnose(inv)
	require.NotEmpty(t, hyps)
	assert.Equal(t, "crashloop-missing-config", hyps[0].HypothesisID)
	assert.Contains(t, hyps[0].Why[0], "DATABASE_URL")
}

func TestCrashloopModule_PreviousLogsFallback(t *testing.T) {
	m := NewCrashloopModule(nil, nil)
	inv := models.NewInvestigation(models.AlertInstance{}, models.TimeWindow{})
	inv.SetMeta(models.MetaFamily, string(models.FamilyCrashloop))
	inv.SetMeta(models.MetaPreviousLogsParsedErrors, []models.ParsedLogError{
		{Message: "ERROR listen tcp :8080: bind: address already in use"},
	})

	hyps := m.Diagnose(inv)
	require.NotEmpty(t, hyps)
	assert.Equal(t, "crashloop-port-bind", hyps[0].HypothesisID)
	assert.Contains(t, hyps[0].SupportingRefs, "previous container logs")
}

func TestCrashloopModule_GenericFallback(t *testing.T) {
	m := NewCrashloopModule(nil, nil)
	inv := models.NewInvestigation(models.AlertInstance{}, models.TimeWindow{})
	inv.SetMeta(models.MetaFamily, string(models.FamilyCrashloop))

	hyps := m.Diagnose(inv)
	require.Len(t, hyps, 1)
	assert.Equal(t, "crashloop-generic", hyps[0].HypothesisID)
	assert.Equal(t, 30, hyps[0].Confidence)
}

type panicModule struct{}

func (panicModule) ID() string                                          { return "boom" }
func (panicModule) Applies(*models.Investigation) bool                  { return true }
func (panicModule) Collect(context.Context, *models.Investigation)      { panic("collect exploded") }
func (panicModule) Diagnose(*models.Investigation) []models.Hypothesis  { return nil }

func TestEngine_ContainsPanics(t *testing.T) {
	engine := NewEngine([]Module{panicModule{}, NewCrashloopModule(nil, nil)}, nil, slog.Default())
	inv := models.NewInvestigation(models.AlertInstance{}, models.TimeWindow{})
	inv.SetMeta(models.MetaFamily, string(models.FamilyCrashloop))

	engine.Run(context.Background(), inv)

	require.NotEmpty(t, inv.Errors)
	assert.Contains(t, inv.Errors[0], "diagnose.boom")
	assert.NotEmpty(t, inv.Analysis.Hypotheses, "surviving modules still contribute")
}

func TestEngine_SortAndCap(t *testing.T) {
	mods := []Module{
		staticModule{hyps: []models.Hypothesis{
			{HypothesisID: "b", Confidence: 80},
			{HypothesisID: "a", Confidence: 80},
			{HypothesisID: "c", Confidence: 95},
		}},
	}
	for i := 0; i < 12; i++ {
		mods = append(mods, staticModule{hyps: []models.Hypothesis{{HypothesisID: "low", Confidence: 10}}})
	}
	engine := NewEngine(mods, nil, slog.Default())
	inv := models.NewInvestigation(models.AlertInstance{}, models.TimeWindow{})

	engine.Run(context.Background(), inv)

	hyps := inv.Analysis.Hypotheses
	require.Len(t, hyps, 10)
	assert.Equal(t, "c", hyps[0].HypothesisID)
	assert.Equal(t, "a", hyps[1].HypothesisID, "ties break on hypothesis id")
	assert.Equal(t, "b", hyps[2].HypothesisID)
}

type staticModule struct{ hyps []models.Hypothesis }

func (staticModule) ID() string                                           { return "static" }
func (staticModule) Applies(*models.Investigation) bool                   { return true }
func (staticModule) Collect(context.Context, *models.Investigation)       {}
func (s staticModule) Diagnose(*models.Investigation) []models.Hypothesis { return s.hyps }

type fixedMemory struct{ cases []HistoricalCase }

func (f fixedMemory) SimilarResolved(context.Context, *models.Investigation) ([]HistoricalCase, error) {
	return f.cases, nil
}

func TestEngine_MemoryCalibrationNeverDecreases(t *testing.T) {
	mem := fixedMemory{cases: []HistoricalCase{
		{Category: "oom"}, {Category: "oom"}, {Category: "config"},
	}}
	engine := NewEngine([]Module{staticModule{hyps: []models.Hypothesis{
		{HypothesisID: "crashloop_oom", Confidence: 80},
		{HypothesisID: "crashloop-generic", Confidence: 30},
	}}}, mem, slog.Default())
	inv := models.NewInvestigation(models.AlertInstance{}, models.TimeWindow{})

	engine.Run(context.Background(), inv)

	hyps := inv.Analysis.Hypotheses
	require.Len(t, hyps, 2)
	// 2/3 of cases are "oom": fraction 0.67 → +10 bump, annotated.
	assert.Equal(t, 90, hyps[0].Confidence)
	assert.Contains(t, hyps[0].Why[len(hyps[0].Why)-1], "similar resolved cases")
	assert.Equal(t, 30, hyps[1].Confidence, "non-matching hypotheses untouched")
}
