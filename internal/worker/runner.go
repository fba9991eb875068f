// Package worker drives the periodic background tasks: pending expiry,
// withdrawal claims and micro-batching.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// stopTimeout bounds how long Run waits for in-flight tasks after cancellation.
const stopTimeout = 30 * time.Second

// Task is one unit of periodic work. Timeout bounds a single run; zero means no bound.
type Task struct {
	Name    string
	Timeout time.Duration
	Run     func(ctx context.Context) error
}

// Runner schedules every task on its own interval job. A task never overlaps
// itself: a run that is due while the previous one is still going is skipped
// and rescheduled.
type Runner struct {
	interval time.Duration
	tasks    []Task
	logger   *zap.Logger
}

// NewRunner returns a runner that starts each task immediately and then every interval.
func NewRunner(interval time.Duration, logger *zap.Logger, tasks ...Task) *Runner {
	return &Runner{
		interval: interval,
		tasks:    tasks,
		logger:   logger.Named("worker"),
	}
}

// Run schedules the tasks and blocks until ctx is cancelled, then waits for
// running tasks to return.
func (r *Runner) Run(ctx context.Context) error {
	s, err := gocron.NewScheduler(
		gocron.WithLogger(schedulerLogger{r.logger.Sugar()}),
		gocron.WithStopTimeout(stopTimeout),
	)
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}

	for _, task := range r.tasks {
		if _, err := s.NewJob(
			gocron.DurationJob(r.interval),
			gocron.NewTask(func() { r.runTask(ctx, task) }),
			gocron.WithName(task.Name),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
			gocron.WithStartAt(gocron.WithStartImmediately()),
		); err != nil {
			_ = s.Shutdown()
			return fmt.Errorf("failed to schedule task %s: %w", task.Name, err)
		}
	}

	s.Start()
	r.logger.Info("worker started", zap.Duration("interval", r.interval), zap.Int("tasks", len(r.tasks)))

	<-ctx.Done()
	if err := s.Shutdown(); err != nil {
		return fmt.Errorf("failed to stop scheduler: %w", err)
	}
	r.logger.Info("worker stopped")
	return nil
}

// Tick runs every task once, concurrently, and waits for all of them. Task
// errors are logged and do not cancel sibling tasks.
func (r *Runner) Tick(ctx context.Context) {
	var g errgroup.Group
	for _, task := range r.tasks {
		g.Go(func() error {
			r.runTask(ctx, task)
			return nil
		})
	}
	_ = g.Wait()
}

func (r *Runner) runTask(ctx context.Context, task Task) {
	if ctx.Err() != nil {
		return
	}
	if task.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, task.Timeout)
		defer cancel()
	}

	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("task panicked", zap.String("task", task.Name), zap.Any("panic", rec))
		}
	}()

	err := task.Run(ctx)
	switch {
	case err == nil:
		r.logger.Debug("task finished", zap.String("task", task.Name), zap.Duration("took", time.Since(start)))
	case errors.Is(err, context.DeadlineExceeded):
		r.logger.Warn("task timed out", zap.String("task", task.Name), zap.Duration("timeout", task.Timeout))
	default:
		r.logger.Error("task failed", zap.String("task", task.Name), zap.Error(err))
	}
}

// schedulerLogger routes gocron's key-value logging into zap.
type schedulerLogger struct {
	s *zap.SugaredLogger
}

var _ gocron.Logger = schedulerLogger{}

func (l schedulerLogger) Debug(msg string, args ...any) { l.s.Debugw(msg, args...) }
func (l schedulerLogger) Info(msg string, args ...any)  { l.s.Infow(msg, args...) }
func (l schedulerLogger) Warn(msg string, args ...any)  { l.s.Warnw(msg, args...) }
func (l schedulerLogger) Error(msg string, args ...any) { l.s.Errorw(msg, args...) }
