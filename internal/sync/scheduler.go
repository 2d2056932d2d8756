package sync

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/eu-digital-green-certificates/dgca-validation-service-sub000/internal/lock"
)

// Job is one scheduled reconciliation run.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

type entry struct {
	job      Job
	interval time.Duration
	maxHold  time.Duration
}

// Scheduler runs each registered job on its own ticker, guarded by the
// cluster-wide lock named after the job. A tick whose lock is held elsewhere
// is skipped, so across all instances at most one run per job is in flight
// and the lock limit bounds how long a run may execute.
type Scheduler struct {
	locker  lock.Locker
	logger  *slog.Logger
	entries []entry

	wg sync.WaitGroup
}

func NewScheduler(locker lock.Locker, logger *slog.Logger) *Scheduler {
	return &Scheduler{locker: locker, logger: logger}
}

// Register adds a job. maxHold is both the lock lease TTL and the run's
// context deadline. Register before Start; the scheduler is not safe for
// registration while running.
func (s *Scheduler) Register(job Job, interval, maxHold time.Duration) {
	s.entries = append(s.entries, entry{job: job, interval: interval, maxHold: maxHold})
}

// Start launches one goroutine per job. Each job runs once immediately and
// then on every tick until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	for _, e := range s.entries {
		s.wg.Add(1)
		go func(e entry) {
			defer s.wg.Done()

			s.runOnce(ctx, e)

			ticker := time.NewTicker(e.interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					s.runOnce(ctx, e)
				}
			}
		}(e)
	}
}

// Wait blocks until all job goroutines have stopped after ctx cancellation.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) runOnce(ctx context.Context, e entry) {
	logger := s.logger.With(slog.String("job", e.job.Name()))

	lease, err := s.locker.Acquire(ctx, e.job.Name(), e.maxHold)
	if errors.Is(err, lock.ErrNotAcquired) {
		logger.Debug("sync lock held elsewhere, skipping tick")
		return
	}
	if err != nil {
		logger.Error("sync lock acquisition failed", slog.String("error", err.Error()))
		return
	}

	runCtx, cancel := context.WithTimeout(ctx, e.maxHold)
	defer cancel()

	start := time.Now()
	if err := e.job.Run(runCtx); err != nil {
		logger.Error("sync run failed",
			slog.Duration("elapsed", time.Since(start)),
			slog.String("error", err.Error()))
	} else {
		logger.Info("sync run finished", slog.Duration("elapsed", time.Since(start)))
	}

	// release with a fresh context so shutdown does not leave the lock to
	// expire; the release may wait out the lock's minimum hold time
	releaseCtx, releaseCancel := context.WithTimeout(context.Background(), e.maxHold)
	defer releaseCancel()
	if err := lease.Release(releaseCtx); err != nil {
		logger.Warn("sync lock release failed", slog.String("error", err.Error()))
	}
}
