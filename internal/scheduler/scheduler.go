// Package scheduler runs periodic maintenance jobs over the ledger.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/fuelledger/internal/clock"
	invoicedomain "github.com/smallbiznis/fuelledger/internal/invoice/domain"
	"github.com/smallbiznis/fuelledger/internal/lock"
	obsmetrics "github.com/smallbiznis/fuelledger/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const JobOverdueSweep = "overdue_sweep"

var ErrInvalidConfig = errors.New("scheduler: missing dependency")

type Params struct {
	fx.In

	Log        *zap.Logger
	GenID      *snowflake.Node
	InvoiceSvc invoicedomain.Service
	Clock      clock.Clock                  `optional:"true"`
	Locker     *lock.Locker                 `optional:"true"`
	Metrics    *obsmetrics.SchedulerMetrics `optional:"true"`
	Config     Config                       `optional:"true"`
}

type Scheduler struct {
	log        *zap.Logger
	cfg        Config
	genID      *snowflake.Node
	clock      clock.Clock
	locker     *lock.Locker
	metrics    *obsmetrics.SchedulerMetrics
	invoiceSvc invoicedomain.Service
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.GenID == nil || p.InvoiceSvc == nil {
		return nil, ErrInvalidConfig
	}
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	metrics := p.Metrics
	if metrics == nil {
		metrics = obsmetrics.Scheduler()
	}
	return &Scheduler{
		log:        p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:        p.Config.withDefaults(),
		genID:      p.GenID,
		clock:      clk,
		locker:     p.Locker,
		metrics:    metrics,
		invoiceSvc: p.InvoiceSvc,
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	batchSize int,
	timeout time.Duration,
	fn func(ctx context.Context, run *jobRun) error,
) error {
	release, held, lockErr := s.locker.Acquire(parent, lock.SchedulerJobKey(name), s.cfg.LockTTL)
	if lockErr != nil {
		s.log.Warn("scheduler lock unavailable", zap.String("job", name), zap.Error(lockErr))
	}
	if !held {
		s.log.Debug("job running on another instance", zap.String("job", name))
		return nil
	}
	defer release()

	start := time.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	run := s.newJobRun(name, batchSize)
	s.logJobStart(ctx, run)
	s.metrics.IncJobRun(name)

	err := fn(ctx, run)
	s.metrics.ObserveJobDuration(name, time.Since(start))
	if err != nil {
		run.IncError()
	}
	s.logJobFinish(ctx, run)
	if err == nil {
		return nil
	}

	// Deadline is a soft timeout; the next run picks up the remainder.
	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		s.metrics.IncJobTimeout(name)
	}
	s.metrics.IncJobError(name, err)
	if isTimeout {
		s.log.Warn("job timed out",
			zap.String("job", name),
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error

	jobs := []struct {
		Name string
		Run  func(context.Context) error
	}{
		{JobOverdueSweep, func(ctx context.Context) error {
			return s.runJob(ctx, JobOverdueSweep, s.cfg.BatchSize, s.cfg.JobTimeout, s.OverdueSweepJob)
		}},
	}

	for _, job := range jobs {
		if s.isJobEnabled(job.Name) {
			err = errors.Join(err, job.Run(parent))
		}
	}
	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	// Empty means every job runs.
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}

// OverdueSweepJob marks past-due pending invoices overdue in batches until a
// batch comes back short.
func (s *Scheduler) OverdueSweepJob(ctx context.Context, run *jobRun) error {
	now := s.clock.Now()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		marked, err := s.invoiceSvc.MarkOverdue(ctx, now, s.cfg.BatchSize)
		run.AddProcessed(marked)
		s.metrics.AddBatchProcessed(JobOverdueSweep, "invoices", marked)
		if err != nil {
			return err
		}
		if marked < s.cfg.BatchSize {
			return nil
		}
	}
}
