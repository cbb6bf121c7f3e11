package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"hve/internal/domain"
	"hve/internal/market"
	"hve/internal/store"
)

// Pass coordinates one reconciliation sweep: resolve the active universe,
// reconcile every symbol through the target date, and advance the checkpoint
// only when no symbol failed.
type Pass struct {
	Provider  market.Provider
	Store     store.RecordStore
	Engine    *Engine
	Scheduler *Scheduler
	CacheDir  string // when set, zero-bar symbols are cached per target date
	Log       *slog.Logger
}

// Result summarises one reconciliation pass.
type Result struct {
	Target             time.Time
	Total              int
	Created            int
	Updated            int
	Unchanged          int
	Empty              int
	Failed             int
	Skipped            int // known-empty symbols not re-fetched
	Events             []domain.VolumeEvent
	CheckpointAdvanced bool
}

// Run executes one pass through target. It returns an error only on
// pass-fatal conditions (authentication, storage); per-symbol failures are
// counted in the result and leave the checkpoint untouched so the next pass
// retries them.
func (p *Pass) Run(ctx context.Context, target time.Time, progress func(done, total int)) (*Result, error) {
	log := p.Log
	if log == nil {
		log = slog.Default()
	}

	tickers, err := p.Provider.Universe(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolving symbol universe: %w", err)
	}

	checkpoint, _, err := p.Store.Checkpoint(ctx)
	if err != nil {
		return nil, err
	}

	var noData *NoDataCache
	if p.CacheDir != "" {
		if noData, err = OpenNoDataCache(p.CacheDir, target); err != nil {
			log.Warn("no-data cache unavailable", "err", err)
			noData = nil
		} else {
			defer noData.Close()
		}
	}

	res := &Result{Target: target}
	symbols := make([]string, 0, len(tickers))
	for _, t := range tickers {
		if noData != nil && noData.Skip(t.Symbol) {
			res.Skipped++
			continue
		}
		symbols = append(symbols, t.Symbol)
	}
	res.Total = len(symbols)

	log.Info("reconciliation pass starting",
		"target", target.Format(domain.DateLayout),
		"universe", len(tickers),
		"toScan", len(symbols),
		"skipped", res.Skipped,
		"checkpoint", checkpoint.Format(domain.DateLayout))

	outcomes, err := p.Scheduler.Run(ctx, symbols,
		func(ctx context.Context, symbol string) domain.Outcome {
			return p.Engine.Reconcile(ctx, symbol, checkpoint, target)
		}, progress)
	if err != nil {
		return nil, fmt.Errorf("reconciliation pass aborted: %w", err)
	}

	var empty []string
	for _, out := range outcomes {
		switch out.Kind {
		case domain.OutcomeCreated:
			res.Created++
		case domain.OutcomeUpdated:
			res.Updated++
			res.Events = append(res.Events, domain.VolumeEvent{
				Symbol:     out.Symbol,
				PrevDate:   out.Prev.Date,
				PrevVolume: out.Prev.Volume,
				Date:       out.Record.Date,
				Volume:     out.Record.Volume,
			})
		case domain.OutcomeUnchanged:
			res.Unchanged++
		case domain.OutcomeEmpty:
			res.Empty++
			empty = append(empty, out.Symbol)
		case domain.OutcomeFailed:
			res.Failed++
			if store.IsStorageError(out.Err) {
				// A write may not have happened; recording completeness now
				// would be a lie. Abort before the checkpoint moves.
				return nil, out.Err
			}
			log.Warn("symbol reconciliation failed", "symbol", out.Symbol, "err", out.Err)
		}
	}

	if noData != nil && len(empty) > 0 {
		if err := noData.Mark(empty); err != nil {
			log.Warn("marking empty symbols failed", "err", err)
		}
	}

	if res.Failed == 0 {
		if err := p.Store.SetCheckpoint(ctx, target); err != nil {
			return nil, err
		}
		res.CheckpointAdvanced = true
	}

	log.Info("reconciliation pass finished",
		"created", res.Created, "updated", res.Updated, "unchanged", res.Unchanged,
		"empty", res.Empty, "failed", res.Failed,
		"checkpointAdvanced", res.CheckpointAdvanced)

	return res, nil
}

// Stale reports whether the record set is not known complete through
// latestTradingDay. An empty store and a missing checkpoint both count as
// stale. The answer is recomputed from storage on every call; it is never
// cached across decision points.
func Stale(ctx context.Context, st store.RecordStore, latestTradingDay time.Time) (bool, error) {
	stats, err := st.Stats(ctx)
	if err != nil {
		return true, err
	}
	if stats.Symbols == 0 {
		return true, nil
	}

	checkpoint, ok, err := st.Checkpoint(ctx)
	if err != nil {
		return true, err
	}
	if !ok {
		return true, nil
	}
	return checkpoint.Before(latestTradingDay), nil
}
