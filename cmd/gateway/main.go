package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"go.temporal.io/sdk/client"

	"autoheal/internal/approvals"
	"autoheal/internal/bus"
	"autoheal/internal/chatops"
	"autoheal/internal/config"
	"autoheal/internal/db"
	"autoheal/internal/incident"
	"autoheal/internal/logging"
	"autoheal/internal/web"
	"autoheal/internal/workflows"
)

const defaultTaskQueue = "autoheal"

func main() {
	logging.Init("gateway", nil)
	if err := run(os.Args[1:], serveHTTP); err != nil {
		fatalf("gateway: %v", err)
	}
}

var serveHTTP = func(srv *http.Server) error { return srv.ListenAndServe() }
var fatalf = func(format string, args ...any) {
	slog.Error("fatal", "error", fmt.Sprintf(format, args...))
	os.Exit(1)
}
var loadConfig = config.LoadConfig
var openStores = db.OpenStores
var newServer = web.NewServer
var newTemporalClient = func(cfg config.OrchestratorConfig) (client.Client, error) {
	opts := client.Options{HostPort: cfg.TemporalAddr, Namespace: cfg.Namespace, Logger: logging.Temporal(slog.Default())}
	return client.Dial(opts)
}
var connectNATS = bus.Connect
var startAlarmSubscriber = func(ctx context.Context, wg *sync.WaitGroup, gt *web.GoroutineTracker, nc *nats.Conn, subject string, detector bus.AlarmDetector) {
	sub := bus.NewAlarmSubscriber(nc, subject, detector, slog.Default())
	gt.Go(ctx, wg, "alarm-subscriber", sub.Run)
}

func workflowConfig(cfg config.Config) workflows.Config {
	return workflows.Config{
		ApprovalTimeout: cfg.ApprovalTTL(),
		RepollDelay:     cfg.RepollDelay(),
		RepollAttempts:  cfg.Orchestrator.RepollAttempts,
	}
}

func taskQueue(cfg config.OrchestratorConfig) string {
	if cfg.TaskQueue != "" {
		return cfg.TaskQueue
	}
	return defaultTaskQueue
}

func run(args []string, serve func(*http.Server) error) error {
	fs := flag.NewFlagSet("gateway", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to config JSON")
	if err := fs.Parse(args); err != nil {
		return err
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

	var temporalClient client.Client
	if cfg.Orchestrator.TemporalAddr != "" {
		tc, err := newTemporalClient(cfg.Orchestrator)
		if err != nil {
			slog.Warn("temporal client connection failed, workflow orchestration disabled", "error", err)
		} else if tc != nil {
			temporalClient = tc
			defer temporalClient.Close()
		}
	}

	notifier := chatops.NewSlackNotifier(cfg.ChatOps.SlackWebhookURL, cfg.ChatOps.ApprovalBaseURL, logger)
	resolver := approvals.NewResolver(stores.Approvals, stores.Incidents, workflows.NewEngine(temporalClient), logger)
	resolver.Audit = stores.Audit
	resolver.Alerter = notifier

	var starter incident.WorkflowStarter
	if temporalClient != nil {
		starter = &workflows.Starter{
			Client:    temporalClient,
			TaskQueue: taskQueue(cfg.Orchestrator),
			Config:    workflowConfig(cfg),
		}
	}
	detector := incident.NewDetector(stores.Incidents, starter, logger)

	srv := newServer(resolver, detector, stores)
	srv.Logger = logger
	srv.Auth = web.AuthConfig{
		Secret:   cfg.Auth.JWTSecret,
		Issuer:   cfg.Auth.Issuer,
		Audience: cfg.Auth.Audience,
		DevMode:  cfg.Auth.DevMode,
	}
	srv.Slack = chatops.NewInteractionHandler(cfg.ChatOps.SlackSigningSecret, resolver, logger)
	if cfg.Gateway.RateLimitRPS > 0 {
		srv.RateLimiter = web.NewRateLimiter(cfg.Gateway.RateLimitRPS, cfg.Gateway.RateLimitBurst)
	}
	srv.Goroutines = web.NewGoroutineTracker()
	srv.TemporalHealth = func(ctx context.Context) error {
		if temporalClient == nil {
			return nil
		}
		_, err := temporalClient.CheckHealth(ctx, nil)
		return err
	}

	var wg sync.WaitGroup
	if cfg.Bus.NATSURL != "" {
		nc, err := connectNATS(cfg.Bus.NATSURL)
		if err != nil {
			slog.Warn("nats connection failed, alarm subscription disabled", "error", err)
		} else {
			defer bus.Close(nc)
			startAlarmSubscriber(ctx, &wg, srv.Goroutines, nc, cfg.Bus.AlarmSubject, detector)
		}
	}

	mainSrv := &http.Server{Addr: cfg.Gateway.HTTPAddr, Handler: srv.Handler(), ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		errCh <- serve(mainSrv)
	}()

	slog.Info("gateway listening", "addr", cfg.Gateway.HTTPAddr, "storage", cfg.StorageDriver())
	select {
	case err := <-errCh:
		stop()
		wg.Wait()
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	forceExit := time.AfterFunc(30*time.Second, func() { os.Exit(1) })
	defer forceExit.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	_ = mainSrv.Shutdown(shutdownCtx)
	wg.Wait()
	select {
	case err := <-errCh:
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	default:
		return nil
	}
}
