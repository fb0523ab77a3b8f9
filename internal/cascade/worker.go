package cascade

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alexanderramin/treeflow/internal/db"
	"github.com/alexanderramin/treeflow/internal/domain"
	"github.com/alexanderramin/treeflow/internal/metrics"
	"github.com/alexanderramin/treeflow/internal/repository"
	"golang.org/x/sync/errgroup"
	"k8s.io/utils/clock"
)

// OpenNotifier tells participants whose registration window is open.
type OpenNotifier interface {
	NotifyOpenRegistrations(ctx context.Context, flowID string) (int, error)
}

type WorkerConfig struct {
	PollInterval time.Duration
	Concurrency  int
	MaxAttempts  int
	RetryBackoff time.Duration
}

// Worker drains cascade jobs from the persistent queue. Jobs are claimed in a
// write transaction, so several workers, in one process or many, never run
// the same job twice.
type Worker struct {
	uow      db.UnitOfWork
	runner   *Runner
	notifier OpenNotifier
	clock    clock.WithTicker
	cfg      WorkerConfig
	logger   *slog.Logger

	kick chan struct{}
}

// NewWorker wires a worker. notifier may be nil.
func NewWorker(uow db.UnitOfWork, runner *Runner, notifier OpenNotifier, clk clock.WithTicker, cfg WorkerConfig, logger *slog.Logger) *Worker {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		uow:      uow,
		runner:   runner,
		notifier: notifier,
		clock:    clk,
		cfg:      cfg,
		logger:   logger,
		kick:     make(chan struct{}, 1),
	}
}

// Kick wakes an idle worker loop without waiting for the next poll. Kicks
// made while one is already pending are coalesced.
func (w *Worker) Kick() {
	select {
	case w.kick <- struct{}{}:
	default:
	}
}

// Run polls the queue until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < w.cfg.Concurrency; i++ {
		g.Go(func() error { return w.loop(ctx) })
	}
	return g.Wait()
}

func (w *Worker) loop(ctx context.Context) error {
	ticker := w.clock.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		w.drain(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C():
		case <-w.kick:
		}
	}
}

// drain processes jobs until the queue has nothing due. Job failures are
// recorded on the job; a queue error ends the pass until the next tick.
func (w *Worker) drain(ctx context.Context) {
	for ctx.Err() == nil {
		worked, err := w.ProcessNext(ctx)
		if err != nil {
			if ctx.Err() == nil {
				w.logger.ErrorContext(ctx, "cascade queue unavailable", "error", err)
			}
			return
		}
		if !worked {
			return
		}
	}
}

// ProcessNext claims and runs one due job. It reports false when the queue
// has nothing due.
func (w *Worker) ProcessNext(ctx context.Context) (bool, error) {
	var job *domain.Job
	err := w.uow.WithinTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		j, err := repository.NewSQLiteJobRepo(tx).Claim(ctx, w.clock.Now())
		if err != nil {
			return err
		}
		job = j
		return nil
	})
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("claiming cascade job: %w", err)
	}

	start := w.clock.Now()
	res, runErr := w.runner.Run(ctx, job.FlowID)
	elapsed := w.clock.Since(start)

	log := w.logger.With("job_id", job.ID, "flow_id", job.FlowID, "attempt", job.Attempts)
	switch {
	case runErr == nil:
		outcome := "ok"
		if res.Noop {
			outcome = "noop"
		}
		metrics.RecordCascadeRun(outcome, res.Updated, elapsed)
		if err := w.finish(ctx, job, nil); err != nil {
			return true, err
		}
		log.InfoContext(ctx, "cascade done", "updated", res.Updated, "noop", res.Noop)
		if w.notifier != nil && !res.Noop {
			if _, err := w.notifier.NotifyOpenRegistrations(ctx, job.FlowID); err != nil {
				log.WarnContext(ctx, "notifying re-timed participants failed", "error", err)
			}
		}
	case errors.Is(runErr, domain.ErrCycleDetected):
		metrics.RecordCascadeRun("cycle", res.Updated, elapsed)
		log.ErrorContext(ctx, "cascade aborted on corrupted tree", "error", runErr)
		if err := w.finish(ctx, job, runErr); err != nil {
			return true, err
		}
	default:
		metrics.RecordCascadeRun("error", res.Updated, elapsed)
		if job.Attempts >= w.cfg.MaxAttempts {
			log.ErrorContext(ctx, "cascade failed", "error", runErr)
			if err := w.finish(ctx, job, runErr); err != nil {
				return true, err
			}
			break
		}
		retryAt := w.clock.Now().Add(w.cfg.RetryBackoff * time.Duration(job.Attempts))
		log.WarnContext(ctx, "cascade attempt failed, retrying", "error", runErr, "retry_at", retryAt)
		err := w.uow.WithinTx(ctx, func(ctx context.Context, tx db.DBTX) error {
			return repository.NewSQLiteJobRepo(tx).Retry(ctx, job.ID, runErr.Error(), retryAt, w.clock.Now())
		})
		if err != nil {
			return true, fmt.Errorf("rescheduling job %s: %w", job.ID, err)
		}
	}
	return true, nil
}

// finish marks job done, or failed when runErr is set.
func (w *Worker) finish(ctx context.Context, job *domain.Job, runErr error) error {
	err := w.uow.WithinTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		jobs := repository.NewSQLiteJobRepo(tx)
		if runErr != nil {
			return jobs.Fail(ctx, job.ID, runErr.Error(), w.clock.Now())
		}
		return jobs.Complete(ctx, job.ID, w.clock.Now())
	})
	if err != nil {
		return fmt.Errorf("finishing job %s: %w", job.ID, err)
	}
	return nil
}
