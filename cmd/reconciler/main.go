package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"

	"autoheal/internal/config"
	"autoheal/internal/db"
	"autoheal/internal/healing"
	"autoheal/internal/logging"
	"autoheal/internal/runner"
)

func main() {
	logging.Init("reconciler", nil)
	if err := run(os.Args[1:]); err != nil {
		fatalf("reconciler: %v", err)
	}
}

var fatalf = func(format string, args ...any) {
	slog.Error("fatal", "error", fmt.Sprintf(format, args...))
	os.Exit(1)
}
var loadConfig = config.LoadConfig
var openStores = db.OpenStores

type sweeper interface {
	Run(ctx context.Context) (healing.ReconcileReport, error)
}

var scheduleParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

var newCron = func() *cron.Cron {
	return cron.New(cron.WithParser(scheduleParser), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
}

// runSchedule sweeps on every tick of schedule until ctx is done. A sweep still
// running when the next tick fires makes that tick a no-op.
var runSchedule = func(ctx context.Context, schedule string, s sweeper) error {
	c := newCron()
	if _, err := c.AddFunc(schedule, func() { sweep(ctx, s) }); err != nil {
		return fmt.Errorf("reconciler.cron: %w", err)
	}
	c.Start()
	slog.Info("reconciler scheduled", "cron", schedule)
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

func sweep(ctx context.Context, s sweeper) (healing.ReconcileReport, error) {
	report, err := s.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("reconcile pass failed", "error", err)
	}
	return report, err
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
	return d
}

func run(args []string) error {
	fs := flag.NewFlagSet("reconciler", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to config JSON")
	once := fs.Bool("once", false, "run a single pass and exit")
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
	if cfg.Runner.Addr == "" {
		return errors.New("runner.addr required")
	}
	logger := slog.Default()
	stores, err := openStores(cfg.StorageDriver(), cfg.Storage.PostgresDSN, logger)
	if err != nil {
		return err
	}
	defer stores.Close()

	rec := healing.NewReconciler(stores.Incidents, newDispatcher(cfg, stores, logger), cfg.Reconciler.Batch, logger)
	if *once {
		_, err := sweep(ctx, rec)
		return err
	}
	return runSchedule(ctx, cfg.ReconcilerSchedule(), rec)
}
