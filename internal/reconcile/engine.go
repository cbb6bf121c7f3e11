// Package reconcile implements the incremental reconciliation engine: it
// brings the per-symbol all-time volume records from an arbitrarily stale
// state to a provably complete one, fetching only the history each symbol
// actually needs.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"hve/internal/domain"
	"hve/internal/market"
	"hve/internal/store"
)

// Engine reconciles one symbol at a time against the provider's daily bars.
type Engine struct {
	provider   market.Provider
	store      store.RecordStore
	earliest   time.Time // lower bound for full-history scans
	maxRetries uint64
	log        *slog.Logger
}

// NewEngine creates an Engine. earliest bounds full-history scans; within it
// the provider is still paged to exhaustion. maxRetries caps per-symbol
// retry attempts on transient fetch errors.
func NewEngine(p market.Provider, st store.RecordStore, earliest time.Time, maxRetries int) *Engine {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Engine{
		provider:   p,
		store:      st,
		earliest:   earliest,
		maxRetries: uint64(maxRetries),
		log:        slog.Default().With("component", "reconcile"),
	}
}

// Reconcile brings symbol's record up to date through target.
//
// With no existing record the symbol's entire available history is scanned
// forward from the earliest bound, keeping a running maximum. With an
// existing record only bars strictly after since (the checkpoint, or the
// record date when no checkpoint exists) are scanned, seeded with the
// record. Ties never displace the record: only a strictly greater volume
// does, so the earliest date achieving a maximum always wins.
func (e *Engine) Reconcile(ctx context.Context, symbol string, since, target time.Time) domain.Outcome {
	existing, ok, err := e.store.Get(ctx, symbol)
	if err != nil {
		return failed(symbol, err)
	}

	from := e.earliest
	if ok {
		from = since
		if from.IsZero() {
			from = existing.Date
		}
		from = from.AddDate(0, 0, 1)
		if from.After(target) {
			return domain.Outcome{Symbol: symbol, Kind: domain.OutcomeUnchanged, Record: existing}
		}
	}

	var best domain.VolumeRecord
	var bars int

	scan := func() error {
		// Restart from the seed on every attempt: the iterator is not
		// resumable mid-stream.
		best, bars = existing, 0
		it := e.provider.History(ctx, symbol, from, target)
		for it.Next() {
			b := it.Bar()
			if b.Volume < 0 {
				return backoff.Permanent(fmt.Errorf("%w: negative volume %d for %s on %s",
					market.ErrBadData, b.Volume, symbol, b.Date.Format(domain.DateLayout)))
			}
			if b.Volume > best.Volume {
				best = domain.VolumeRecord{Symbol: symbol, Date: b.Date, Volume: b.Volume}
			}
			bars++
		}
		if err := it.Err(); err != nil {
			if errors.Is(err, market.ErrAuth) {
				return backoff.Permanent(err)
			}
			return err
		}
		return nil
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), e.maxRetries), ctx)
	if err := backoff.Retry(scan, bo); err != nil {
		return failed(symbol, err)
	}

	switch {
	case !ok && best.Volume > 0:
		if _, err := e.store.Upsert(ctx, best); err != nil {
			return failed(symbol, err)
		}
		e.log.Debug("record created", "symbol", symbol,
			"date", best.Date.Format(domain.DateLayout), "volume", best.Volume, "bars", bars)
		return domain.Outcome{Symbol: symbol, Kind: domain.OutcomeCreated, Record: best}

	case !ok:
		// Nothing usable in the provider's history.
		return domain.Outcome{Symbol: symbol, Kind: domain.OutcomeEmpty}

	case best.Volume > existing.Volume:
		if _, err := e.store.Upsert(ctx, best); err != nil {
			return failed(symbol, err)
		}
		e.log.Info("new all-time volume record", "symbol", symbol,
			"date", best.Date.Format(domain.DateLayout), "volume", best.Volume,
			"prevDate", existing.Date.Format(domain.DateLayout), "prevVolume", existing.Volume)
		return domain.Outcome{Symbol: symbol, Kind: domain.OutcomeUpdated, Record: best, Prev: existing}

	default:
		return domain.Outcome{Symbol: symbol, Kind: domain.OutcomeUnchanged, Record: existing}
	}
}

func failed(symbol string, err error) domain.Outcome {
	return domain.Outcome{Symbol: symbol, Kind: domain.OutcomeFailed, Err: err}
}
