// Package pipeline orchestrates one investigation: a fixed stage order over
// a single mutable Investigation, followed by report rendering and
// persistence. Stage failures are recorded on the investigation and never
// abort the run; after publication they surface to the queue so transient
// provider outages get redelivered.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tarkyaio/tarka/pkg/analyzers"
	"github.com/tarkyaio/tarka/pkg/caseindex"
	"github.com/tarkyaio/tarka/pkg/config"
	"github.com/tarkyaio/tarka/pkg/dedup"
	"github.com/tarkyaio/tarka/pkg/diagnose"
	"github.com/tarkyaio/tarka/pkg/features"
	"github.com/tarkyaio/tarka/pkg/models"
	"github.com/tarkyaio/tarka/pkg/providers"
	"github.com/tarkyaio/tarka/pkg/report"
	"github.com/tarkyaio/tarka/pkg/scoring"
	"github.com/tarkyaio/tarka/pkg/storage"
	"github.com/tarkyaio/tarka/pkg/target"
	"github.com/tarkyaio/tarka/pkg/triage"
)

// Pipeline wires the stage implementations around shared providers. One
// Pipeline serves many investigations; it holds no per-run state.
type Pipeline struct {
	cfg    config.ProvidersConfig
	kube   providers.Kubernetes
	prom   providers.Prometheus
	logs   providers.Logs
	aws    providers.AWS
	github providers.GitHub

	engine *diagnose.Engine
	noise  *analyzers.NoiseAnalyzer
	change *analyzers.ChangeAnalyzer

	store  storage.ObjectStore
	index  caseindex.Indexer
	logger *slog.Logger
	now    func() time.Time
}

// Deps carries the provider set for New. Nil providers disable their
// evidence source; store, index, and logger are required.
type Deps struct {
	Kube   providers.Kubernetes
	Prom   providers.Prometheus
	Logs   providers.Logs
	AWS    providers.AWS
	GitHub providers.GitHub
	Memory diagnose.Memory

	Store  storage.ObjectStore
	Index  caseindex.Indexer
	Logger *slog.Logger
}

// New wires the pipeline.
func New(cfg config.ProvidersConfig, d Deps) *Pipeline {
	if d.Store == nil {
		panic("pipeline.New: store is nil")
	}
	if d.Index == nil {
		panic("pipeline.New: index is nil")
	}
	if d.Logger == nil {
		panic("pipeline.New: logger is nil")
	}
	return &Pipeline{
		cfg:    cfg,
		kube:   d.Kube,
		prom:   d.Prom,
		logs:   d.Logs,
		aws:    d.AWS,
		github: d.GitHub,
		engine: diagnose.NewEngine(diagnose.DefaultModules(d.Kube, d.Logs), d.Memory, d.Logger),
		noise:  analyzers.NewNoiseAnalyzer(d.Prom),
		change: analyzers.NewChangeAnalyzer(d.GitHub),
		store:  d.Store,
		index:  d.Index,
		logger: d.Logger.With("component", "pipeline"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// ErrEvidenceIncomplete marks a run that recorded transient stage errors.
// The degraded report is still published; callers redeliver the job so a
// later attempt against healthy providers can overwrite it.
var ErrEvidenceIncomplete = errors.New("investigation recorded stage errors")

// Investigate runs one queued job end to end and persists the report. It
// returns a publish failure, or ErrEvidenceIncomplete when stages recorded
// transient errors; either way the caller is expected to redeliver.
func (p *Pipeline) Investigate(ctx context.Context, job *models.AlertJob) error {
	window := models.NewTimeWindow(job.TimeWindow, p.now())
	inv := models.NewInvestigation(job.Alert, window)

	p.Run(ctx, inv)
	if err := p.publish(ctx, inv, job); err != nil {
		return err
	}
	if n := len(inv.Errors); n > 0 {
		return fmt.Errorf("%w: %d recorded, first: %s", ErrEvidenceIncomplete, n, inv.Errors[0])
	}
	return nil
}

// Run executes the fixed stage order against the investigation.
func (p *Pipeline) Run(ctx context.Context, inv *models.Investigation) {
	start := p.now()

	inv.Target = target.Parse(&inv.Alert)

	family, source := DetectFamily(inv.Alert.AlertName(), inv.Target)
	inv.SetMeta(models.MetaFamily, string(family))
	inv.SetMeta(models.MetaFamilySource, source)

	log := p.logger.With(
		"alertname", inv.Alert.AlertName(),
		"family", string(family),
		"target_type", string(inv.Target.TargetType))
	log.Info("investigation started", "window", inv.TimeWindow.Window)

	p.collectEvidence(ctx, inv)
	p.noise.Analyze(ctx, inv)
	features.Extract(inv, p.now())
	analyzers.MarkInferred(inv)
	p.change.Analyze(ctx, inv)
	analyzers.AnalyzeCapacity(inv)
	p.collectSignals(ctx, inv)
	p.collectJobMetrics(ctx, inv)
	inv.Analysis.Decision = triage.Decide(inv)
	inv.Analysis.Enrichment = triage.Enrich(inv)
	p.engine.Run(ctx, inv)
	scoring.Score(inv)
	p.applyActionPolicy(inv)

	log.Info("investigation complete",
		"classification", string(inv.Analysis.Verdict.Classification),
		"severity", string(inv.Analysis.Verdict.Severity),
		"impact", inv.Analysis.Scores.Impact,
		"confidence", inv.Analysis.Scores.Confidence,
		"noise", inv.Analysis.Scores.Noise,
		"errors", len(inv.Errors),
		"duration", p.now().Sub(start).Round(time.Millisecond))
}

// applyActionPolicy strips proposed remediation actions when the deployment
// has not opted in. Hypotheses keep their next tests either way.
func (p *Pipeline) applyActionPolicy(inv *models.Investigation) {
	if p.cfg.ActionsEnabled {
		return
	}
	for i := range inv.Analysis.Hypotheses {
		inv.Analysis.Hypotheses[i].ProposedActions = nil
	}
}

// publish renders and persists the report, then indexes the run. Storage
// failures are returned so the queue redelivers; the case index is
// best-effort.
func (p *Pipeline) publish(ctx context.Context, inv *models.Investigation, job *models.AlertJob) error {
	receivedAt := parseReceivedAt(job.ReceivedAt, p.now())
	key := dedup.ForAlert(&inv.Alert, &inv.Target, receivedAt)

	md := report.Render(inv)
	if err := p.store.PutMarkdown(ctx, key.ObjectKey("md"), md); err != nil {
		return fmt.Errorf("store markdown report: %w", err)
	}

	body, err := json.MarshalIndent(inv, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal investigation: %w", err)
	}
	if err := p.store.PutJSON(ctx, key.ObjectKey("json"), body); err != nil {
		return fmt.Errorf("store JSON report: %w", err)
	}

	stored, reason, caseID := p.index.IndexIncidentRun(ctx, caseindex.Run{
		CaseKey:        dedup.CaseKey(&inv.Alert, &inv.Target, receivedAt),
		AlertName:      inv.Alert.AlertName(),
		Fingerprint:    inv.Alert.Fingerprint,
		DedupKey:       key.String(),
		ReportKey:      key.ObjectKey("md"),
		Classification: string(inv.Analysis.Verdict.Classification),
		Severity:       string(inv.Analysis.Verdict.Severity),
		OneLiner:       inv.Analysis.Verdict.OneLiner,
	})
	p.logger.Info("report published",
		"report_key", key.ObjectKey("md"),
		"case_stored", stored,
		"case_reason", reason,
		"case_id", caseID)
	return nil
}

func parseReceivedAt(s string, fallback time.Time) time.Time {
	if s == "" {
		return fallback
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return fallback
	}
	return t.UTC()
}
