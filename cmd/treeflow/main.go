package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/alexanderramin/treeflow/internal/cascade"
	"github.com/alexanderramin/treeflow/internal/cli"
	"github.com/alexanderramin/treeflow/internal/config"
	"github.com/alexanderramin/treeflow/internal/db"
	"github.com/alexanderramin/treeflow/internal/flowlock"
	"github.com/alexanderramin/treeflow/internal/notify"
	"github.com/alexanderramin/treeflow/internal/repository"
	"github.com/alexanderramin/treeflow/internal/service"
	"github.com/mattn/go-isatty"
	"k8s.io/utils/clock"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// kickerFunc adapts a function to service.Kicker.
type kickerFunc func()

func (f kickerFunc) Kick() { f() }

func run() error {
	// Config file: env var or default ~/.treeflow/config.yaml (optional).
	cfgPath := os.Getenv("TREEFLOW_CONFIG")
	if cfgPath == "" {
		if home, err := os.UserHomeDir(); err == nil {
			cfgPath = filepath.Join(home, ".treeflow", "config.yaml")
		}
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	logger := cfg.Log.NewLogger(os.Stderr)

	database, err := db.OpenDB(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer database.Close()

	uow := db.NewSQLiteUnitOfWork(database)
	clk := clock.RealClock{}
	locks := &flowlock.Keyed{}

	gateway := notify.Multi{
		notify.LogGateway{Logger: logger},
		notify.OutboxGateway{DB: database, Clock: clk},
	}

	// The worker notifies through the flow service and the flow service
	// kicks the worker, so the kicker is bound after both exist.
	var worker *cascade.Worker
	flows := service.NewFlowService(service.FlowServiceDeps{
		Flows:        repository.NewSQLiteFlowRepo(database),
		Participants: repository.NewSQLiteParticipantRepo(database),
		Projects:     repository.NewSQLiteProjectRepo(database),
		Users:        repository.NewSQLiteUserRepo(database),
		Candidates:   repository.NewSQLiteCandidateRepo(database),
		UoW:          uow,
		Gateway:      gateway,
		Clock:        clk,
		Kicker: kickerFunc(func() {
			if worker != nil {
				worker.Kick()
			}
		}),
		Locks:  locks,
		Logger: logger,
	}, service.NewLogActionObserver(logger))

	runner := cascade.NewRunner(database, uow, clk, cfg.Flow.AdminGrace, locks)
	worker = cascade.NewWorker(uow, runner, flows, clk, cascade.WorkerConfig{
		PollInterval: cfg.Worker.PollInterval,
		Concurrency:  cfg.Worker.Concurrency,
		MaxAttempts:  cfg.Worker.MaxAttempts,
		RetryBackoff: cfg.Worker.RetryBackoff,
	}, logger)

	app := &cli.App{
		Projects: service.NewProjectService(
			repository.NewSQLiteProjectRepo(database),
			repository.NewSQLiteUserRepo(database),
			repository.NewSQLiteCandidateRepo(database),
			clk,
		),
		Flows:       flows,
		Worker:      worker,
		MetricsAddr: cfg.Metrics.Addr,
		Clock:       clk,
		IsInteractive: func() bool {
			return isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd())
		},
	}

	return cli.NewRootCmd(app).Execute()
}
