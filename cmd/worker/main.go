package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	"autoheal/internal/analysis"
	"autoheal/internal/approvals"
	"autoheal/internal/bus"
	"autoheal/internal/chatops"
	"autoheal/internal/config"
	"autoheal/internal/db"
	"autoheal/internal/healing"
	"autoheal/internal/logging"
	"autoheal/internal/risk"
	"autoheal/internal/runner"
	"autoheal/internal/web"
	"autoheal/internal/workflows"
)

const defaultTaskQueue = "autoheal"

func main() {
	logging.Init("worker", nil)
	if err := run(os.Args[1:]); err != nil {
		fatalf("worker: %v", err)
	}
}

var fatalf = func(format string, args ...any) {
	slog.Error("fatal", "error", fmt.Sprintf(format, args...))
	os.Exit(1)
}
var loadConfig = config.LoadConfig
var openStores = db.OpenStores
var connectNATS = bus.Connect
var newTemporalClient = func(cfg config.OrchestratorConfig) (client.Client, error) {
	opts := client.Options{HostPort: cfg.TemporalAddr, Namespace: cfg.Namespace, Logger: logging.Temporal(slog.Default())}
	return client.Dial(opts)
}

var temporalHealthClient client.Client
var setTemporalHealthClient = func(c client.Client) { temporalHealthClient = c }

type closeFunc func() error

func (c closeFunc) Close() error {
	return c()
}

var newWorker = func(cfg config.OrchestratorConfig) (worker.Worker, io.Closer, error) {
	c, err := newTemporalClient(cfg)
	if err != nil {
		return nil, nil, err
	}
	setTemporalHealthClient(c)
	w := worker.New(c, taskQueue(cfg), worker.Options{})
	return w, closeFunc(func() error { c.Close(); return nil }), nil
}
var replayHistory = workflows.ReplayHistoryFromJSONFile
var runWorker = func(w worker.Worker) error { return w.Run(worker.InterruptCh()) }
var startWorker = func(acts *workflows.Activities, cfg config.Config) error {
	if cfg.Orchestrator.TemporalAddr == "" {
		return errors.New("orchestrator.temporal_addr required")
	}
	w, closer, err := newWorker(cfg.Orchestrator)
	if err != nil {
		return err
	}
	if closer != nil {
		defer func() { _ = closer.Close() }()
	}
	workflows.Register(w, acts)
	slog.Info("worker ready", "temporal_addr", cfg.Orchestrator.TemporalAddr, "task_queue", taskQueue(cfg.Orchestrator))
	return runWorker(w)
}

func taskQueue(cfg config.OrchestratorConfig) string {
	if cfg.TaskQueue != "" {
		return cfg.TaskQueue
	}
	return defaultTaskQueue
}

func newDispatcher(cfg config.Config, stores *db.Stores, logger *slog.Logger) *healing.Dispatcher {
	var r healing.Runner
	if cfg.Runner.Addr != "" {
		r = runner.New(cfg.Runner.Addr, cfg.Runner.Token, cfg.Runner.Timeout())
	}
	d := healing.NewDispatcher(r, stores.Incidents, stores.Audit, logger)
	d.Target = healing.Target{Cluster: cfg.Healing.Cluster, Service: cfg.Healing.Service, InstanceID: cfg.Healing.InstanceID}
	d.PollInterval = cfg.PollInterval()
	d.MaxPolls = cfg.Healing.MaxPolls
	if len(cfg.Healing.Documents) > 0 {
		d.Documents = map[healing.Action]string{}
		for action, doc := range cfg.Healing.Documents {
			d.Documents[healing.Action(action)] = doc
		}
	}
	return d
}

func newActivities(cfg config.Config, stores *db.Stores, events workflows.EventPublisher, logger *slog.Logger) *workflows.Activities {
	var engine analysis.Engine
	if cfg.Analysis.Addr != "" {
		engine = analysis.NewHTTPEngine(cfg.Analysis.Addr, cfg.Analysis.Token, cfg.Analysis.Timeout())
	}
	analyzer := analysis.NewAnalyzer(engine, stores.Incidents, logger)
	notifier := chatops.NewSlackNotifier(cfg.ChatOps.SlackWebhookURL, cfg.ChatOps.ApprovalBaseURL, logger)
	return &workflows.Activities{
		Analyzer:   analyzer,
		Verifier:   analysis.NewVerifier(analyzer, stores.Incidents),
		Estimator:  risk.NewEstimator(cfg.Risk.CostThreshold),
		Requester:  approvals.NewRequester(stores.Approvals, notifier, cfg.ApprovalTTL(), logger),
		Dispatcher: newDispatcher(cfg, stores, logger),
		Incidents:  stores.Incidents,
		Notifier:   notifier,
		Events:     events,
		Logger:     logger,
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("worker", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to config JSON")
	history := fs.String("replay", "", "replay a workflow history JSON file against this build and exit")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if path := strings.TrimSpace(*history); path != "" {
		if err := replayHistory(path); err != nil {
			return fmt.Errorf("replay %s: %w", path, err)
		}
		slog.Info("workflow history replayed", "history", path)
		return nil
	}
	if *configPath == "" {
		return errors.New("config required")
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	logger := slog.Default()
	stores, err := openStores(cfg.StorageDriver(), cfg.Storage.PostgresDSN, logger)
	if err != nil {
		return err
	}
	defer stores.Close()

	var events workflows.EventPublisher
	if cfg.Bus.NATSURL != "" {
		nc, err := connectNATS(cfg.Bus.NATSURL)
		if err != nil {
			slog.Warn("nats connection failed, lifecycle events disabled", "error", err)
		} else {
			defer bus.Close(nc)
			events = newPublisher(nc, cfg.Bus.EventSubject)
		}
	}

	if cfg.Orchestrator.HealthAddr != "" {
		health := web.NewServer(nil, nil, stores)
		health.TemporalHealth = func(ctx context.Context) error {
			if temporalHealthClient == nil {
				return errors.New("temporal client not connected")
			}
			_, err := temporalHealthClient.CheckHealth(ctx, nil)
			return err
		}
		healthSrv := &http.Server{Addr: cfg.Orchestrator.HealthAddr, Handler: health.Handler(), ReadHeaderTimeout: 10 * time.Second}
		go func() {
			if err := healthSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("health server failed", "error", err)
			}
		}()
		go func() {
			<-ctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			_ = healthSrv.Shutdown(sctx)
		}()
	}

	return startWorker(newActivities(cfg, stores, events, logger), cfg)
}

var newPublisher = func(nc *nats.Conn, subject string) workflows.EventPublisher {
	return bus.NewPublisher(nc, subject)
}
