// Package store defines the persistence contract for all-time volume records
// and the reconciliation checkpoint.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"hve/internal/domain"
)

// RecordStore persists and retrieves per-symbol all-time volume records.
// The reconciliation engine is the only writer; rows are mutated only when a
// strictly greater volume is observed.
type RecordStore interface {
	// Get returns the record for symbol. ok is false when no record exists.
	Get(ctx context.Context, symbol string) (rec domain.VolumeRecord, ok bool, err error)

	// Upsert inserts the record, or replaces the existing row only when the
	// new volume is strictly greater. It reports whether the row changed.
	Upsert(ctx context.Context, rec domain.VolumeRecord) (changed bool, err error)

	// Symbols returns all symbols with a record, sorted ascending.
	Symbols(ctx context.Context) ([]string, error)

	// EventsSince returns all records with a date >= cutoff, sorted by date
	// descending then symbol ascending.
	EventsSince(ctx context.Context, cutoff time.Time) ([]domain.VolumeRecord, error)

	// Checkpoint returns the date through which the record set is known
	// complete. ok is false when no checkpoint has been written yet.
	Checkpoint(ctx context.Context) (date time.Time, ok bool, err error)

	// SetCheckpoint records the date through which the record set is
	// complete. Callers must only advance it after a fully successful pass.
	SetCheckpoint(ctx context.Context, date time.Time) error

	// Stats summarises the stored record set.
	Stats(ctx context.Context) (Stats, error)

	Close() error
}

// Stats summarises the stored record set.
type Stats struct {
	Symbols      int
	EarliestDate time.Time
	LatestDate   time.Time
	MaxVolume    int64
}

// StorageError wraps failures of the underlying database. Callers treat it
// as fatal for the current pass: a checkpoint must never advance past a
// write that may not have happened.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// IsStorageError reports whether err is (or wraps) a StorageError.
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}
