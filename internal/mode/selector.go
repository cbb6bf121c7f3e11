// Package mode implements the run-mode state machine: setup when the record
// set is stale, realtime monitoring during market hours, historical
// reporting on request.
package mode

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"hve/internal/domain"
	"hve/internal/market"
	"hve/internal/notify"
	"hve/internal/reconcile"
	"hve/internal/store"
)

// State identifies the selector's current mode.
type State int

const (
	StateSetup State = iota
	StateRealtimeWait
	StateRealtimeActive
	StateHistorical
	StateExit
)

func (s State) String() string {
	switch s {
	case StateSetup:
		return "setup"
	case StateRealtimeWait:
		return "realtime-wait"
	case StateRealtimeActive:
		return "realtime-active"
	case StateHistorical:
		return "historical"
	case StateExit:
		return "exit"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Selector drives the mode state machine. Staleness is re-evaluated from
// storage at every decision point, never cached: a process idle for weeks
// computes the full gap on its next decision.
type Selector struct {
	Pass     *reconcile.Pass
	Store    store.RecordStore
	Provider market.Provider
	Notifier notify.Notifier

	OutputDir      string // daily event files (historical mode)
	MaxSetupRounds int
	CheckInterval  time.Duration
	Heartbeat      time.Duration

	// Progress observes setup completion counts (console progress bar).
	Progress func(done, total int)

	// Now and Sleep are overridable for tests.
	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
	Out   io.Writer
	Log   *slog.Logger

	state State
}

func (s *Selector) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Selector) sleep(ctx context.Context, d time.Duration) error {
	if s.Sleep != nil {
		return s.Sleep(ctx, d)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (s *Selector) out() io.Writer {
	if s.Out != nil {
		return s.Out
	}
	return os.Stdout
}

func (s *Selector) log() *slog.Logger {
	if s.Log != nil {
		return s.Log
	}
	return slog.Default().With("component", "mode")
}

func (s *Selector) transition(next State) {
	if next == s.state {
		return
	}
	s.log().Info("mode transition", "from", s.state.String(), "to", next.String())
	s.state = next
}

func (s *Selector) maxRounds() int {
	if s.MaxSetupRounds > 0 {
		return s.MaxSetupRounds
	}
	return 3
}

func (s *Selector) interval() time.Duration {
	if s.CheckInterval > 0 {
		return s.CheckInterval
	}
	return 30 * time.Minute
}

func (s *Selector) heartbeat() time.Duration {
	if s.Heartbeat > 0 {
		return s.Heartbeat
	}
	return time.Minute
}

// ensureCurrent runs setup passes until the record set is complete through
// the latest finished trading day. It is not gated by market hours: a stale
// store is repaired whenever it is noticed. Returns an error when rounds are
// exhausted with the store still stale, or on a fatal pass error.
func (s *Selector) ensureCurrent(ctx context.Context) error {
	for round := 1; ; round++ {
		st, err := s.Provider.Status(ctx)
		if err != nil {
			return fmt.Errorf("querying market status: %w", err)
		}
		latest := market.LatestCompleteTradingDay(s.now(), st)

		stale, err := reconcile.Stale(ctx, s.Store, latest)
		if err != nil {
			return err
		}
		if !stale {
			return nil
		}
		if round > s.maxRounds() {
			return fmt.Errorf("record set still stale after %d setup rounds", s.maxRounds())
		}

		s.transition(StateSetup)
		s.log().Info("record set stale, reconciling",
			"round", round, "target", latest.Format(domain.DateLayout))

		res, err := s.Pass.Run(ctx, latest, s.Progress)
		if err != nil {
			return err
		}
		if res.CheckpointAdvanced {
			stats, serr := s.Store.Stats(ctx)
			if serr != nil {
				return serr
			}
			if nerr := s.Notifier.SetupComplete(stats); nerr != nil {
				s.log().Warn("setup notification failed", "err", nerr)
			}
		} else {
			s.log().Warn("setup pass incomplete, retrying failed symbols",
				"failed", res.Failed)
		}
	}
}

// RunRealtime is the no-argument entry point: repair staleness, then monitor
// the market on the configured cadence until the close. Exits cleanly on a
// closed market or a finished session.
func (s *Selector) RunRealtime(ctx context.Context) error {
	for {
		// Setup precedes everything, including the market-hours gate.
		if err := s.ensureCurrent(ctx); err != nil {
			return err
		}

		st, err := s.Provider.Status(ctx)
		if err != nil {
			return fmt.Errorf("querying market status: %w", err)
		}
		now := s.now()
		if !st.OpenToday {
			s.log().Info("market closed today, nothing to monitor")
			s.transition(StateExit)
			return nil
		}
		if !now.Before(st.Close) {
			s.log().Info("past market close",
				"close", st.Close.In(market.Central()).Format("15:04 MST"))
			s.transition(StateExit)
			return nil
		}

		s.transition(StateRealtimeWait)
		if err := s.waitForBoundary(ctx); err != nil {
			return err
		}

		// The close may have passed while waiting; the next iteration's
		// gate decides. Scan only inside the session.
		if !s.now().Before(st.Close) {
			continue
		}

		s.transition(StateRealtimeActive)
		events, err := s.scanSnapshot(ctx)
		if err != nil {
			if store.IsStorageError(err) || isAuth(err) {
				return err
			}
			s.log().Warn("snapshot scan failed, will retry next cycle", "err", err)
			continue
		}
		s.log().Info("snapshot cycle complete", "newRecords", len(events))
		if len(events) > 0 {
			if err := s.Notifier.RealtimeAlert(s.now(), events); err != nil {
				s.log().Warn("realtime notification failed", "err", err)
			}
		}
	}
}

// waitForBoundary sleeps until the next CheckInterval boundary, waking every
// heartbeat to prove liveness.
func (s *Selector) waitForBoundary(ctx context.Context) error {
	interval, hb := s.interval(), s.heartbeat()
	next := s.now().Truncate(interval).Add(interval)
	for {
		remaining := next.Sub(s.now())
		if remaining <= 0 {
			return nil
		}
		if remaining > hb {
			remaining = hb
		}
		if err := s.sleep(ctx, remaining); err != nil {
			return err
		}
		s.log().Info("monitoring",
			"nextCheck", next.In(market.Central()).Format("15:04"))
	}
}
