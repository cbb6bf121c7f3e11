// Package notify delivers volume-event notifications over SMTP.
package notify

import (
	"time"

	"hve/internal/domain"
	"hve/internal/store"
)

// Notifier dispatches the notification batches produced by the monitoring
// modes. Sends are best effort: callers log a returned error and keep
// going.
type Notifier interface {
	// RealtimeAlert sends one message for a 30-minute realtime cycle.
	RealtimeAlert(now time.Time, events []domain.VolumeEvent) error

	// HistoricalReport sends the records dated on or after the cutoff.
	HistoricalReport(cutoff time.Time, records []domain.VolumeRecord) error

	// SetupComplete confirms a finished setup pass with database stats.
	SetupComplete(stats store.Stats) error

	// Failure reports a fatal error before the process exits.
	Failure(err error) error
}

// Nop is the Notifier used when email is disabled.
type Nop struct{}

func (Nop) RealtimeAlert(time.Time, []domain.VolumeEvent) error     { return nil }
func (Nop) HistoricalReport(time.Time, []domain.VolumeRecord) error { return nil }
func (Nop) SetupComplete(store.Stats) error                         { return nil }
func (Nop) Failure(error) error                                     { return nil }
