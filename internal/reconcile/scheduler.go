package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"

	"hve/internal/domain"
	"hve/internal/market"
)

// Scheduler fans reconciliation work out across a bounded worker pool. The
// work is network-latency-bound, so the pool is sized well beyond the core
// count.
type Scheduler struct {
	workers int
	log     *slog.Logger
}

// NewScheduler sizes the pool to workers when > 0, otherwise to
// NumCPU * ioFactor.
func NewScheduler(workers, ioFactor int) *Scheduler {
	if workers <= 0 {
		if ioFactor <= 0 {
			ioFactor = 4
		}
		workers = runtime.NumCPU() * ioFactor
	}
	return &Scheduler{
		workers: workers,
		log:     slog.Default().With("component", "scheduler"),
	}
}

// Run executes fn once per symbol with bounded parallelism and blocks until
// every task finishes. Per-symbol failures are isolated; an authentication
// failure cancels all in-flight work and is returned as the pass error.
// progress, when non-nil, observes completion counts.
func (s *Scheduler) Run(ctx context.Context, symbols []string, fn func(context.Context, string) domain.Outcome, progress func(done, total int)) ([]domain.Outcome, error) {
	total := len(symbols)
	outcomes := make([]domain.Outcome, total)
	for i, sym := range symbols {
		// Prefilled so symbols skipped by cancellation still report Failed
		// and block the checkpoint advance.
		outcomes[i] = domain.Outcome{Symbol: sym, Kind: domain.OutcomeFailed, Err: context.Canceled}
	}
	if total == 0 {
		return outcomes, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan int, total)
	for i := range symbols {
		jobs <- i
	}
	close(jobs)

	var (
		wg        sync.WaitGroup
		done      atomic.Int64
		fatalOnce sync.Once
		fatalErr  error
	)

	workers := min(s.workers, total)
	s.log.Info("starting reconciliation pool", "symbols", total, "workers", workers)

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				if ctx.Err() != nil {
					return
				}
				out := fn(ctx, symbols[i])
				outcomes[i] = out

				if out.Err != nil && errors.Is(out.Err, market.ErrAuth) {
					fatalOnce.Do(func() {
						fatalErr = out.Err
						cancel()
					})
					return
				}

				n := int(done.Add(1))
				if progress != nil {
					progress(n, total)
				}
			}
		}()
	}

	wg.Wait()

	if fatalErr != nil {
		return outcomes, fatalErr
	}
	if err := ctx.Err(); err != nil {
		return outcomes, err
	}
	return outcomes, nil
}
