package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-sla/internal/service"
)

// ErrSweepInProgress is returned by RunOnce while another sweep is running.
var ErrSweepInProgress = errors.New("sla sweep already in progress")

// SweepRunner runs one SLA sweep.
type SweepRunner interface {
	Execute(ctx context.Context) (service.SweepSummary, error)
}

// SLAWorkerOptions configures the schedule.
type SLAWorkerOptions struct {
	Interval     time.Duration
	RunOnStartup bool
	StopTimeout  time.Duration
}

// SLAWorker runs the SLA sweep on a fixed interval. Ticks never overlap, and
// a sweep that fails or panics leaves the schedule in place.
type SLAWorker struct {
	runner  SweepRunner
	opts    SLAWorkerOptions
	logger  *zap.Logger
	running atomic.Bool

	mu      sync.Mutex
	cron    *cron.Cron
	entryID cron.EntryID
}

// NewSLAWorker constructs the worker. Intervals under a second are raised to
// one second, the finest resolution of the cron engine.
func NewSLAWorker(runner SweepRunner, opts SLAWorkerOptions, logger *zap.Logger) *SLAWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Interval < time.Second {
		opts.Interval = time.Second
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = 30 * time.Second
	}
	return &SLAWorker{runner: runner, opts: opts, logger: logger}
}

// Start schedules the sweep. Ticks use ctx, so cancelling it aborts an
// in-flight sweep; call Stop to unschedule.
func (w *SLAWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cron != nil {
		return errors.New("sla worker already started")
	}

	cronLog := cronLogger{logger: w.logger.Sugar()}
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(cronLog),
		cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
	)
	entryID, err := c.AddFunc(fmt.Sprintf("@every %s", w.opts.Interval), func() {
		_, _ = w.RunOnce(ctx)
	})
	if err != nil {
		return fmt.Errorf("schedule sla sweep: %w", err)
	}
	w.cron = c
	w.entryID = entryID
	c.Start()

	w.logger.Info("sla worker started",
		zap.Duration("interval", w.opts.Interval),
		zap.Bool("run_on_startup", w.opts.RunOnStartup))

	if w.opts.RunOnStartup {
		go func() { _, _ = w.RunOnce(ctx) }()
	}
	return nil
}

// Stop unschedules the sweep and waits for a running one to finish, up to
// the configured stop timeout.
func (w *SLAWorker) Stop() {
	w.mu.Lock()
	c := w.cron
	w.cron = nil
	w.mu.Unlock()
	if c == nil {
		return
	}

	done := c.Stop()
	select {
	case <-done.Done():
		w.logger.Info("sla worker stopped")
	case <-time.After(w.opts.StopTimeout):
		w.logger.Warn("sla worker stop timed out waiting for running sweep")
	}
}

// NextRun reports when the next tick fires; zero when not started.
func (w *SLAWorker) NextRun() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cron == nil {
		return time.Time{}
	}
	return w.cron.Entry(w.entryID).Next
}

// RunOnce runs a sweep now unless one is already running. Panics are
// recovered and reported as errors.
func (w *SLAWorker) RunOnce(ctx context.Context) (summary service.SweepSummary, err error) {
	if !w.running.CompareAndSwap(false, true) {
		w.logger.Info("sla sweep skipped; previous run still in progress")
		return service.SweepSummary{}, ErrSweepInProgress
	}
	defer w.running.Store(false)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sla sweep panicked: %v", r)
			w.logger.Error("sla sweep panicked", zap.Any("panic", r), zap.Stack("stack"))
		}
	}()

	summary, err = w.runner.Execute(ctx)
	if err != nil {
		w.logger.Error("sla sweep run failed", zap.Error(err))
	}
	return summary, err
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	logger *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debugw("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Errorw("cron: "+msg, append(keysAndValues, "error", err)...)
}
