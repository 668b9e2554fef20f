// Tarka investigation server: receives Alertmanager webhooks, queues alert
// jobs on JetStream, and runs the deterministic investigation pipeline in
// worker mode. A single binary serves both roles; flags select which.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"

	"github.com/tarkyaio/tarka/pkg/api"
	"github.com/tarkyaio/tarka/pkg/caseindex"
	"github.com/tarkyaio/tarka/pkg/config"
	"github.com/tarkyaio/tarka/pkg/ingest"
	"github.com/tarkyaio/tarka/pkg/models"
	"github.com/tarkyaio/tarka/pkg/pipeline"
	"github.com/tarkyaio/tarka/pkg/providers/am"
	"github.com/tarkyaio/tarka/pkg/providers/awsx"
	"github.com/tarkyaio/tarka/pkg/providers/ghsrc"
	"github.com/tarkyaio/tarka/pkg/providers/kube"
	"github.com/tarkyaio/tarka/pkg/providers/logsrc"
	"github.com/tarkyaio/tarka/pkg/providers/prom"
	"github.com/tarkyaio/tarka/pkg/queue"
	"github.com/tarkyaio/tarka/pkg/report"
	"github.com/tarkyaio/tarka/pkg/storage"
)

func main() {
	serveWebhook := flag.Bool("serve-webhook", false, "serve the Alertmanager webhook endpoint")
	host := flag.String("host", "0.0.0.0", "webhook listen host")
	port := flag.Int("port", 8080, "webhook listen port")
	runWorker := flag.Bool("run-worker", false, "consume and investigate queued alert jobs")
	runJob := flag.String("run-job", "", "investigate a single alert job from a JSON file and exit")
	investigate := flag.String("investigate", "", "investigate an active alert by Alertmanager fingerprint and exit")
	dumpJSON := flag.Bool("dump-json", false, "with --run-job, print the investigation JSON instead of the report")
	window := flag.String("window", models.DefaultWindow, "default investigation lookback window")
	flag.Parse()

	if err := godotenv.Load(); err == nil {
		slog.Info("loaded environment from .env")
	}
	setupLogging()

	if !*serveWebhook && !*runWorker && *runJob == "" && *investigate == "" {
		fmt.Fprintln(os.Stderr, "nothing to do: pass --serve-webhook, --run-worker, --run-job <file>, or --investigate <fingerprint>")
		os.Exit(2)
	}

	// 1. Configuration.
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 2. Object store.
	store, err := buildStore(ctx, cfg.Storage)
	if err != nil {
		slog.Error("storage init failed", "error", err)
		os.Exit(1)
	}

	// 3. Case index.
	var index caseindex.Indexer = caseindex.Disabled{}
	if dsn := cfg.Providers.PostgresDSN; dsn != "" {
		pgStore, err := caseindex.New(ctx, dsn)
		if err != nil {
			slog.Error("case index init failed", "error", err)
			os.Exit(1)
		}
		defer pgStore.Close()
		index = pgStore
		slog.Info("case index enabled")
	}

	// 4. Investigation pipeline over the configured providers.
	pipe := pipeline.New(cfg.Providers, buildDeps(ctx, cfg, store, index))

	// 5. One-shot modes need no queue.
	if *runJob != "" {
		if err := runSingleJob(ctx, pipe, *runJob, *dumpJSON); err != nil {
			slog.Error("job run failed", "error", err)
			os.Exit(1)
		}
		return
	}
	if *investigate != "" {
		if err := investigateFingerprint(ctx, pipe, cfg.Providers, *investigate, *window); err != nil {
			slog.Error("investigation failed", "error", err)
			os.Exit(1)
		}
		return
	}

	// 6. Queue: connect and ensure streams. Fatal on failure; a server that
	// cannot enqueue silently drops alerts.
	nc, js, err := queue.Startup(ctx, &cfg.Queue, slog.Default())
	if err != nil {
		slog.Error("queue startup failed", "error", err)
		os.Exit(1)
	}
	defer nc.Close()
	publisher := queue.NewPublisher(js, &cfg.Queue, slog.Default())

	errCh := make(chan error, 2)

	// 7. Worker role.
	if *runWorker {
		consumer, err := queue.EnsureConsumer(ctx, js, &cfg.Queue)
		if err != nil {
			slog.Error("consumer setup failed", "error", err)
			os.Exit(1)
		}
		worker := queue.NewWorker(consumer, publisher, pipe, &cfg.Queue, cfg.Worker, slog.Default())
		go func() {
			worker.Run(ctx)
			errCh <- nil
		}()
		defer worker.Stop()
	}

	// 8. Webhook role.
	if *serveWebhook {
		processor := ingest.NewProcessor(cfg.Ingest, store, publisher, slog.Default())
		server := api.NewServer(processor, queueHealth{nc}, *window, slog.Default())
		go func() { errCh <- server.Start(ctx, *host, *port) }()
	}

	select {
	case <-ctx.Done():
		slog.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			slog.Error("fatal", "error", err)
			os.Exit(1)
		}
	}
}

func setupLogging() {
	level := slog.LevelInfo
	if strings.EqualFold(os.Getenv("LOG_LEVEL"), "debug") {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})))
}

// queueHealth adapts the NATS connection to the API health contract.
type queueHealth struct{ nc *nats.Conn }

func (q queueHealth) IsConnected() bool { return q.nc.IsConnected() }

func buildStore(ctx context.Context, cfg config.StorageConfig) (storage.ObjectStore, error) {
	if cfg.S3Bucket != "" {
		store, err := storage.NewS3Store(ctx, cfg.S3Bucket, cfg.S3Prefix, os.Getenv("AWS_REGION"))
		if err != nil {
			return nil, err
		}
		slog.Info("using S3 report store", "bucket", cfg.S3Bucket, "prefix", cfg.S3Prefix)
		return store, nil
	}
	store, err := storage.NewLocalStore(cfg.LocalDir)
	if err != nil {
		return nil, err
	}
	slog.Info("using local report store", "dir", cfg.LocalDir)
	return store, nil
}

// buildDeps constructs the provider set. Providers with missing or broken
// configuration are skipped with a warning; the pipeline treats their
// absence as missing evidence, not as a failure.
func buildDeps(ctx context.Context, cfg *config.Config, store storage.ObjectStore, index caseindex.Indexer) pipeline.Deps {
	p := cfg.Providers
	deps := pipeline.Deps{
		Store:  store,
		Index:  index,
		Logger: slog.Default(),
	}

	if p.MemoryEnabled {
		if memStore, ok := index.(*caseindex.Store); ok {
			deps.Memory = memStore
		} else {
			slog.Warn("memory calibration requires the Postgres case index, skipping")
		}
	}

	if kubeClient, err := kube.New(os.Getenv("KUBECONFIG")); err != nil {
		slog.Warn("kubernetes provider disabled", "error", err)
	} else {
		deps.Kube = kubeClient
	}

	if p.PrometheusURL != "" {
		if promClient, err := prom.New(p.PrometheusURL, p.PromTimeout); err != nil {
			slog.Warn("prometheus provider disabled", "error", err)
		} else {
			deps.Prom = promClient
		}
	}

	if p.LogsURL != "" {
		deps.Logs = logsrc.New(p.LogsURL, p.LogsBackend, p.LogsTimeout)
	}

	if p.AWSRegion != "" {
		if awsClient, err := awsx.New(ctx, p.AWSRegion); err != nil {
			slog.Warn("aws provider disabled", "error", err)
		} else {
			deps.AWS = awsClient
		}
	}

	if p.GitHubRepo != "" {
		if ghClient, err := ghsrc.New(p.GitHubRepo, p.GitHubToken); err != nil {
			slog.Warn("github provider disabled", "error", err)
		} else {
			deps.GitHub = ghClient
		}
	}
	return deps
}

// runSingleJob investigates one alert job from a file. Used for replaying
// incidents and for inspecting pipeline output without a queue.
func runSingleJob(ctx context.Context, pipe *pipeline.Pipeline, path string, dumpJSON bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading job file: %w", err)
	}
	var job models.AlertJob
	if err := json.Unmarshal(data, &job); err != nil {
		return fmt.Errorf("parsing job file: %w", err)
	}

	if !dumpJSON {
		return oneShotResult(pipe.Investigate(ctx, &job))
	}

	inv := models.NewInvestigation(job.Alert, models.NewTimeWindow(job.TimeWindow, time.Now().UTC()))
	inv.SetMeta(models.MetaReplayMode, true)
	pipe.Run(ctx, inv)
	out, err := json.MarshalIndent(inv, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal investigation: %w", err)
	}
	fmt.Println(string(out))
	fmt.Println(report.Render(inv))
	return nil
}

// investigateFingerprint pulls one active alert from Alertmanager and runs
// the full pipeline against it, bypassing the webhook and queue.
func investigateFingerprint(ctx context.Context, pipe *pipeline.Pipeline, p config.ProvidersConfig, fingerprint, window string) error {
	if p.AlertmanagerURL == "" {
		return fmt.Errorf("--investigate requires ALERTMANAGER_URL")
	}
	amc := am.New(p.AlertmanagerURL, p.AlertmanagerTimeout)

	alerts, err := amc.FetchActiveAlerts(ctx)
	if err != nil {
		return fmt.Errorf("fetching active alerts: %w", err)
	}
	var match *models.AlertInstance
	for i := range alerts {
		if alerts[i].Fingerprint == fingerprint {
			match = &alerts[i]
			break
		}
	}
	if match == nil {
		return fmt.Errorf("no active alert with fingerprint %s", fingerprint)
	}

	if amCtx, err := amc.AlertContext(ctx, fingerprint); err != nil {
		slog.Warn("alert context unavailable", "error", err)
	} else {
		slog.Info("alert context",
			"alertname", amCtx["alertname"],
			"sibling_count", amCtx["sibling_count"],
			"total_active", amCtx["total_active"])
	}

	job := models.AlertJob{
		Alert:      *match,
		TimeWindow: window,
		ReceivedAt: time.Now().UTC().Format(time.RFC3339),
	}
	return oneShotResult(pipe.Investigate(ctx, &job))
}

// oneShotResult downgrades evidence gaps to a warning: a one-shot run has no
// queue to redeliver on, and the degraded report was already published.
func oneShotResult(err error) error {
	if errors.Is(err, pipeline.ErrEvidenceIncomplete) {
		slog.Warn("report published with evidence gaps", "error", err)
		return nil
	}
	return err
}
