// Package retention periodically drops date overrides that have aged past
// the configured retention window.
package retention

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/example/delivery-availability/internal/application"
	"github.com/example/delivery-availability/internal/availability"
	"github.com/example/delivery-availability/internal/locker"
)

// leaderLockKey keeps a single instance pruning at a time.
const leaderLockKey = "retention:leader"

// SystemPrincipal is the identity the worker acts under.
var SystemPrincipal = application.Principal{UserID: "system:retention", IsAdmin: true}

// Pruner removes overrides dated before cutoff across all schedules.
type Pruner interface {
	PruneOverridesBefore(ctx context.Context, principal application.Principal, cutoff availability.Date) (int, error)
}

// LeaderLocker grants the leader lock without waiting.
type LeaderLocker interface {
	TryLock(ctx context.Context, key string) (locker.Unlock, bool, error)
}

// Options configures a Worker.
type Options struct {
	// Spec is a standard five-field cron expression. Invalid specs fall back
	// to @daily.
	Spec string
	// RetentionDays is how many past days of overrides are kept.
	RetentionDays int
	Now           func() time.Time
}

// Worker runs the prune job on a cron schedule.
type Worker struct {
	pruner Pruner
	leader LeaderLocker
	opts   Options
	log    *zap.Logger

	cron   *cron.Cron
	runCtx context.Context
	cancel context.CancelFunc
}

func NewWorker(pruner Pruner, leader LeaderLocker, opts Options, log *zap.Logger) *Worker {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.RetentionDays <= 0 {
		opts.RetentionDays = 90
	}
	if leader == nil {
		leader = locker.NewLocal()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Worker{pruner: pruner, leader: leader, opts: opts, log: log.With(zap.String("worker", "retention"))}
}

// Start schedules the job. Stop must be called to release the cron goroutine.
func (w *Worker) Start(ctx context.Context) {
	w.runCtx, w.cancel = context.WithCancel(ctx)
	c := cron.New()
	job := func() {
		if _, err := w.RunOnce(w.runCtx); err != nil && !errors.Is(err, context.Canceled) {
			w.log.Warn("retention run failed", zap.Error(err))
		}
	}
	if _, err := c.AddFunc(w.opts.Spec, job); err != nil {
		w.log.Warn("invalid cron spec; falling back to @daily", zap.String("spec", w.opts.Spec), zap.Error(err))
		c = cron.New()
		_, _ = c.AddFunc("@daily", job)
	}
	c.Start()
	w.cron = c
}

// Stop cancels an in-flight run and waits for it to return.
func (w *Worker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	if w.cron != nil {
		<-w.cron.Stop().Done()
	}
}

// Cutoff is the first date that is kept.
func (w *Worker) Cutoff() availability.Date {
	return availability.DateOf(w.opts.Now()).AddDays(-w.opts.RetentionDays)
}

// RunOnce prunes once if this instance wins the leader lock. It reports the
// number of schedules changed; zero with a nil error means another instance
// held the lock or nothing was old enough.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	unlock, acquired, err := w.leader.TryLock(ctx, leaderLockKey)
	if err != nil {
		return 0, err
	}
	if !acquired {
		w.log.Info("leader lock held elsewhere; skipping run")
		return 0, nil
	}
	defer func() {
		if err := unlock(context.WithoutCancel(ctx)); err != nil {
			w.log.Warn("failed to release leader lock", zap.Error(err))
		}
	}()

	cutoff := w.Cutoff()
	pruned, err := w.pruner.PruneOverridesBefore(ctx, SystemPrincipal, cutoff)
	if err != nil {
		return pruned, err
	}
	w.log.Info("retention run complete", zap.String("cutoff", cutoff.String()), zap.Int("schedules", pruned))
	return pruned, nil
}
