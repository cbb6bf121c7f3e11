package mode

import (
	"context"
	"fmt"
	"time"

	"hve/internal/domain"
)

// RunHistorical is the `historical MM-DD-YYYY` entry point: repair
// staleness, report every record dated on or after the cutoff, then exit.
// Pure read over the store; no per-symbol network calls.
func (s *Selector) RunHistorical(ctx context.Context, cutoff time.Time) error {
	if err := s.ensureCurrent(ctx); err != nil {
		return err
	}
	s.transition(StateHistorical)

	records, err := s.Store.EventsSince(ctx, cutoff)
	if err != nil {
		return err
	}

	written, err := writeDayFiles(s.OutputDir, records)
	if err != nil {
		return err
	}
	s.log().Info("historical report complete",
		"cutoff", cutoff.Format(domain.DateLayout),
		"records", len(records), "files", written)

	s.summarize(cutoff, records)

	if err := s.Notifier.HistoricalReport(cutoff, records); err != nil {
		s.log().Warn("historical notification failed", "err", err)
	}

	s.transition(StateExit)
	return nil
}

// summarize prints the historical results grouped by day, newest first. The
// records arrive date-descending then symbol-ascending, so one forward pass
// groups them.
func (s *Selector) summarize(cutoff time.Time, records []domain.VolumeRecord) {
	w := s.out()
	fmt.Fprintf(w, "Highest-volume records since %s: %d\n",
		cutoff.Format(domain.DateLayout), len(records))

	var day string
	for _, rec := range records {
		if d := rec.Date.Format(domain.DateLayout); d != day {
			day = d
			fmt.Fprintf(w, "\n%s\n", day)
		}
		fmt.Fprintf(w, "  %-8s %d\n", rec.Symbol, rec.Volume)
	}
}
