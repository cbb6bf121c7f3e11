// Package domain defines the core data types shared across the application.
package domain

import (
	"fmt"
	"time"
)

// DateLayout is the canonical calendar-date format used in storage and file
// names.
const DateLayout = "2006-01-02"

// DailyBar is one trading day of OHLCV data for one symbol. Bars are
// transient: they are consumed in a single forward pass and never persisted.
type DailyBar struct {
	Symbol string
	Date   time.Time // calendar date, midnight UTC
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume int64
}

// VolumeRecord is the all-time highest daily volume observed for a symbol,
// together with the date it occurred. Volume is monotonically non-decreasing
// over the lifetime of a record.
type VolumeRecord struct {
	Symbol string
	Date   time.Time
	Volume int64
}

// Zero reports whether the record is the zero value (no record exists).
func (r VolumeRecord) Zero() bool {
	return r.Symbol == "" && r.Volume == 0 && r.Date.IsZero()
}

// VolumeEvent is emitted when a symbol's all-time volume record is broken.
type VolumeEvent struct {
	Symbol     string
	PrevDate   time.Time
	PrevVolume int64
	Date       time.Time
	Volume     int64
	ChangePct  float64 // today's price change, realtime checks only
}

// OutcomeKind classifies the result of reconciling one symbol.
type OutcomeKind int

const (
	// OutcomeCreated means the symbol had no record and a full-history scan
	// produced one.
	OutcomeCreated OutcomeKind = iota
	// OutcomeUpdated means a bar since the last scan strictly exceeded the
	// existing record.
	OutcomeUpdated
	// OutcomeUnchanged means no bar improved on the existing record.
	OutcomeUnchanged
	// OutcomeEmpty means the provider returned no bars for a symbol with no
	// existing record.
	OutcomeEmpty
	// OutcomeFailed means the symbol could not be reconciled this pass; it
	// stays eligible for the next pass.
	OutcomeFailed
)

// String returns the lowercase name of the outcome kind.
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeCreated:
		return "created"
	case OutcomeUpdated:
		return "updated"
	case OutcomeUnchanged:
		return "unchanged"
	case OutcomeEmpty:
		return "empty"
	case OutcomeFailed:
		return "failed"
	default:
		return fmt.Sprintf("outcome(%d)", int(k))
	}
}

// Outcome is the per-symbol result of one reconciliation.
type Outcome struct {
	Symbol string
	Kind   OutcomeKind
	Record VolumeRecord // the resulting record, valid for Created/Updated
	Prev   VolumeRecord // the prior record, valid for Updated
	Err    error        // non-nil only for Failed
}

// DateOf truncates t to its calendar date in loc, returned as midnight UTC.
// Storing dates at midnight UTC keeps comparisons and formatting trivial.
func DateOf(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// SameDate reports whether a and b fall on the same calendar date.
func SameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
