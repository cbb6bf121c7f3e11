package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"hve/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface check.
var _ RecordStore = (*SQLiteStore)(nil)

const checkpointKey = "last_complete_date"

// SQLiteStore implements RecordStore backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, runs the
// schema migration, and returns a ready-to-use SQLiteStore.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, &StorageError{Op: "open " + dbPath, Err: err}
	}

	schema := []string{
		`CREATE TABLE IF NOT EXISTS highest_volume_ever (
			symbol TEXT PRIMARY KEY,
			date   TEXT NOT NULL,
			volume INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS metadata (
			key        TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_hve_date ON highest_volume_ever(date)`,
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, &StorageError{Op: "migrate schema", Err: err}
		}
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Get returns the record for symbol. ok is false when no record exists.
func (s *SQLiteStore) Get(ctx context.Context, symbol string) (domain.VolumeRecord, bool, error) {
	var dateStr string
	var volume int64
	err := s.db.QueryRowContext(ctx,
		`SELECT date, volume FROM highest_volume_ever WHERE symbol = ?`, symbol,
	).Scan(&dateStr, &volume)
	if err == sql.ErrNoRows {
		return domain.VolumeRecord{}, false, nil
	}
	if err != nil {
		return domain.VolumeRecord{}, false, &StorageError{Op: "get " + symbol, Err: err}
	}

	date, err := time.Parse(domain.DateLayout, dateStr)
	if err != nil {
		return domain.VolumeRecord{}, false, &StorageError{Op: "parse date for " + symbol, Err: err}
	}
	return domain.VolumeRecord{Symbol: symbol, Date: date, Volume: volume}, true, nil
}

// Upsert inserts the record, or replaces the existing row only when the new
// volume is strictly greater. The comparison runs inside a single statement
// so the per-row update is atomic even with concurrent writers.
func (s *SQLiteStore) Upsert(ctx context.Context, rec domain.VolumeRecord) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO highest_volume_ever (symbol, date, volume)
		VALUES (?, ?, ?)
		ON CONFLICT(symbol) DO UPDATE SET
			date   = excluded.date,
			volume = excluded.volume
		WHERE excluded.volume > highest_volume_ever.volume`,
		rec.Symbol, rec.Date.Format(domain.DateLayout), rec.Volume,
	)
	if err != nil {
		return false, &StorageError{Op: "upsert " + rec.Symbol, Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, &StorageError{Op: "upsert " + rec.Symbol, Err: err}
	}
	return n > 0, nil
}

// Symbols returns all symbols with a record, sorted ascending.
func (s *SQLiteStore) Symbols(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT symbol FROM highest_volume_ever ORDER BY symbol`)
	if err != nil {
		return nil, &StorageError{Op: "list symbols", Err: err}
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var sym string
		if err := rows.Scan(&sym); err != nil {
			return nil, &StorageError{Op: "scan symbol", Err: err}
		}
		symbols = append(symbols, sym)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "list symbols", Err: err}
	}
	return symbols, nil
}

// EventsSince returns all records dated on or after cutoff, most recent date
// first, symbols alphabetical within a date.
func (s *SQLiteStore) EventsSince(ctx context.Context, cutoff time.Time) ([]domain.VolumeRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol, date, volume
		FROM highest_volume_ever
		WHERE date >= ?
		ORDER BY date DESC, symbol ASC`,
		cutoff.Format(domain.DateLayout),
	)
	if err != nil {
		return nil, &StorageError{Op: "events since", Err: err}
	}
	defer rows.Close()

	var records []domain.VolumeRecord
	for rows.Next() {
		var sym, dateStr string
		var volume int64
		if err := rows.Scan(&sym, &dateStr, &volume); err != nil {
			return nil, &StorageError{Op: "scan event", Err: err}
		}
		date, err := time.Parse(domain.DateLayout, dateStr)
		if err != nil {
			return nil, &StorageError{Op: "parse date for " + sym, Err: err}
		}
		records = append(records, domain.VolumeRecord{Symbol: sym, Date: date, Volume: volume})
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "events since", Err: err}
	}
	return records, nil
}

// Checkpoint returns the date through which the record set is known complete.
func (s *SQLiteStore) Checkpoint(ctx context.Context) (time.Time, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM metadata WHERE key = ?`, checkpointKey,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, &StorageError{Op: "read checkpoint", Err: err}
	}

	date, err := time.Parse(domain.DateLayout, value)
	if err != nil {
		return time.Time{}, false, &StorageError{Op: "parse checkpoint", Err: err}
	}
	return date, true, nil
}

// SetCheckpoint records the date through which the record set is complete.
func (s *SQLiteStore) SetCheckpoint(ctx context.Context, date time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO metadata (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value      = excluded.value,
			updated_at = excluded.updated_at`,
		checkpointKey, date.Format(domain.DateLayout), time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return &StorageError{Op: "set checkpoint", Err: err}
	}
	return nil
}

// Stats summarises the stored record set.
func (s *SQLiteStore) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	var earliest, latest sql.NullString
	var maxVolume sql.NullInt64

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), MIN(date), MAX(date), MAX(volume)
		FROM highest_volume_ever`,
	).Scan(&st.Symbols, &earliest, &latest, &maxVolume)
	if err != nil {
		return Stats{}, &StorageError{Op: "stats", Err: err}
	}

	if earliest.Valid {
		if st.EarliestDate, err = time.Parse(domain.DateLayout, earliest.String); err != nil {
			return Stats{}, &StorageError{Op: "parse stats date", Err: err}
		}
	}
	if latest.Valid {
		if st.LatestDate, err = time.Parse(domain.DateLayout, latest.String); err != nil {
			return Stats{}, &StorageError{Op: "parse stats date", Err: err}
		}
	}
	if maxVolume.Valid {
		st.MaxVolume = maxVolume.Int64
	}
	return st, nil
}

// String renders the stats for log output.
func (st Stats) String() string {
	if st.Symbols == 0 {
		return "empty"
	}
	return fmt.Sprintf("%d symbols, dates %s..%s, max volume %d",
		st.Symbols,
		st.EarliestDate.Format(domain.DateLayout),
		st.LatestDate.Format(domain.DateLayout),
		st.MaxVolume)
}
