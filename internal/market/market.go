// Package market abstracts the market-data provider: symbol universe,
// paginated daily history, current-day snapshots, and market status.
package market

import (
	"context"
	"errors"
	"sync"
	"time"

	"hve/internal/domain"
)

// ErrAuth marks provider authentication failures. They are fatal: the whole
// pass aborts rather than burning through retries symbol by symbol.
var ErrAuth = errors.New("market: authentication failed")

// ErrBadData marks malformed provider payloads for one symbol. The symbol is
// skipped for the pass and retried next time.
var ErrBadData = errors.New("market: malformed data")

// Ticker is one entry of the active-symbol universe.
type Ticker struct {
	Symbol   string
	Exchange string // MIC, e.g. XNYS or XNAS
}

// BarIter is a lazy, paginated sequence of daily bars in chronological
// order. Next advances to the next bar; it returns false at provider
// exhaustion or on error, distinguished by Err. The sequence is restartable:
// callers retry a failed scan by requesting a fresh iterator.
type BarIter interface {
	Next() bool
	Bar() domain.DailyBar
	Err() error
}

// Snapshot is one symbol's current-day reading from the full-market
// snapshot.
type Snapshot struct {
	Volume    int64
	ChangePct float64 // today's price change percentage
}

// Status describes today's trading session.
type Status struct {
	OpenToday bool
	// Close is the effective close time today in Central time. On early
	// close days this is earlier than the regular 15:00.
	Close time.Time
}

// Provider is the market-data interface consumed by the reconciliation
// engine and the monitoring loop.
type Provider interface {
	// Universe returns the current active NYSE/NASDAQ common stocks. It is
	// recomputed on every call, never cached: listings change daily.
	Universe(ctx context.Context) ([]Ticker, error)

	// History returns the daily bars for symbol within [from, to], paged
	// lazily until provider exhaustion.
	History(ctx context.Context, symbol string, from, to time.Time) BarIter

	// CurrentVolumes returns a full-market snapshot keyed by symbol.
	CurrentVolumes(ctx context.Context) (map[string]Snapshot, error)

	// Status reports whether the market trades today and the effective
	// close time (Central), early closes included.
	Status(ctx context.Context) (Status, error)
}

var (
	centralOnce sync.Once
	centralLoc  *time.Location
	easternOnce sync.Once
	easternLoc  *time.Location
)

// Central returns the US Central time zone used for all wall-clock
// decisions.
func Central() *time.Location {
	centralOnce.Do(func() {
		loc, err := time.LoadLocation("America/Chicago")
		if err != nil {
			loc = time.FixedZone("CST", -6*60*60)
		}
		centralLoc = loc
	})
	return centralLoc
}

// Eastern returns the exchange time zone, used to assign bars to calendar
// dates.
func Eastern() *time.Location {
	easternOnce.Do(func() {
		loc, err := time.LoadLocation("America/New_York")
		if err != nil {
			loc = time.FixedZone("EST", -5*60*60)
		}
		easternLoc = loc
	})
	return easternLoc
}
