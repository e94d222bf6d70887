// Package runtime launches and supervises the N worker run-loops of
// spec.md §4.1, one goroutine per internal/sched.WorkerContext. Grounded
// on the teacher's internal/sched.Pool.Start, which spins up its fixed
// worker-goroutine count inline in a loop with no shared shutdown
// signal beyond closing a channel; here golang.org/x/sync/errgroup
// supervises the group instead, so the first worker error cancels every
// other worker's context, and Run returns every worker's error
// aggregated with go-multierror.
package runtime

import (
	"context"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/haproxy-core/mincore/internal/sched"
)

// Supervisor owns the scheduler and the errgroup running its threads.
type Supervisor struct {
	Scheduler *sched.Scheduler
	log       *logrus.Entry
}

// New constructs a Supervisor over a freshly built scheduler.
func New(cfg sched.Config, log *logrus.Logger) *Supervisor {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Supervisor{
		Scheduler: sched.NewScheduler(cfg),
		log:       log.WithField("component", "runtime"),
	}
}

// Run launches one RunLoop per worker thread and blocks until ctx is
// cancelled or any worker returns a non-context error, per spec.md
// §4.1's "N worker threads, one run-loop each". errgroup cancels every
// other worker's context as soon as the first one fails, but its own
// Wait only ever surfaces that first error; workers that were mid-
// failure at the same moment would otherwise be silently dropped, so
// each worker's error is also collected into a multierror and that
// aggregate is what Run returns.
func (s *Supervisor) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	var mu sync.Mutex
	var errs *multierror.Error

	for tid := uint(0); tid < uint(s.Scheduler.NThreads()); tid++ {
		tid := tid
		g.Go(func() error {
			s.log.WithField("tid", tid).Info("worker starting")
			err := s.Scheduler.Thread(tid).RunLoop(gctx)
			if err != nil && err != context.Canceled {
				s.log.WithField("tid", tid).WithError(err).Error("worker exited")
				mu.Lock()
				errs = multierror.Append(errs, err)
				mu.Unlock()
				return err
			}
			s.log.WithField("tid", tid).Info("worker stopped")
			return nil
		})
	}
	_ = g.Wait()

	mu.Lock()
	defer mu.Unlock()
	return errs.ErrorOrNil()
}
