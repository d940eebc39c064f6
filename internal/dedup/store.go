package dedup

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"duesync/internal/assignment"
)

// Status classifies one reconciled assignment.
type Status int

const (
	// StatusNew: fingerprint never seen, fresh UID assigned.
	StatusNew Status = iota
	// StatusUpdated: fingerprint known, due time moved; UID kept.
	StatusUpdated
	// StatusUnchanged: fingerprint known, nothing moved.
	StatusUnchanged
)

func (s Status) String() string {
	switch s {
	case StatusNew:
		return "new"
	case StatusUpdated:
		return "updated"
	case StatusUnchanged:
		return "unchanged"
	}
	return "unknown"
}

// Record is the persisted emission metadata for one fingerprint. CalendarUID
// never changes once assigned: re-import idempotence depends on it.
type Record struct {
	Fingerprint string
	CalendarUID string
	LastDueAt   time.Time
	LastSeenAt  time.Time
}

// Outcome pairs a canonical assignment with its dedup record.
type Outcome struct {
	Assignment assignment.Canonical
	Record     Record
	Status     Status
}

// Store is the fingerprint → emission-metadata mapping, persisted in SQLite
// across runs.
type Store struct {
	db *sql.DB
}

// Open opens or creates the store at path and runs migrations. Creates the
// parent directory (e.g. .duesync) if it does not exist.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	var tableCount int
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableCount)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}
	if tableCount == 0 {
		if _, err := s.db.Exec(schemaV1); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_version (version) VALUES (?)", schemaVersionV1); err != nil {
			return fmt.Errorf("record schema version: %w", err)
		}
		return nil
	}

	var version int
	if err := s.db.QueryRow("SELECT version FROM schema_version").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersionV1 {
		return fmt.Errorf("unsupported schema version %d", version)
	}
	return nil
}

// Get returns the record for a fingerprint, or (nil, nil) when absent.
func (s *Store) Get(fingerprint string) (*Record, error) {
	row := s.db.QueryRow(
		"SELECT fingerprint, calendar_uid, last_due_at, last_seen_at FROM records WHERE fingerprint = ?",
		fingerprint)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}
	return rec, nil
}

// Count returns the number of persisted records.
func (s *Store) Count() (int, error) {
	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM records").Scan(&n); err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return n, nil
}

// List returns all persisted records ordered by last_seen_at descending.
func (s *Store) List() ([]Record, error) {
	rows, err := s.db.Query(
		"SELECT fingerprint, calendar_uid, last_due_at, last_seen_at FROM records ORDER BY last_seen_at DESC, fingerprint")
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("list records: %w", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	return records, nil
}

// Reconcile matches canonical assignments against persisted records inside
// one transaction. Absent fingerprints get a fresh stable UID; known
// fingerprints keep theirs even when the due time moved. Fingerprints are
// never deleted here — aging is Prune's job.
func (s *Store) Reconcile(canonicals []assignment.Canonical, now time.Time) ([]Outcome, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("reconcile: begin: %w", err)
	}
	defer tx.Rollback()

	outcomes := make([]Outcome, 0, len(canonicals))
	for _, c := range canonicals {
		row := tx.QueryRow(
			"SELECT fingerprint, calendar_uid, last_due_at, last_seen_at FROM records WHERE fingerprint = ?",
			c.Fingerprint)
		existing, err := scanRecord(row)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			rec := Record{
				Fingerprint: c.Fingerprint,
				CalendarUID: uuid.NewString(),
				LastDueAt:   c.DueAt,
				LastSeenAt:  now,
			}
			if _, err := tx.Exec(
				"INSERT INTO records (fingerprint, calendar_uid, last_due_at, last_seen_at) VALUES (?, ?, ?, ?)",
				rec.Fingerprint, rec.CalendarUID, rec.LastDueAt.UTC().Format(time.RFC3339), rec.LastSeenAt.UTC().Format(time.RFC3339)); err != nil {
				return nil, fmt.Errorf("reconcile: insert %s: %w", c.Fingerprint, err)
			}
			outcomes = append(outcomes, Outcome{Assignment: c, Record: rec, Status: StatusNew})

		case err != nil:
			return nil, fmt.Errorf("reconcile: lookup %s: %w", c.Fingerprint, err)

		default:
			status := StatusUnchanged
			if !existing.LastDueAt.Truncate(time.Minute).Equal(c.DueAt.Truncate(time.Minute)) {
				status = StatusUpdated
				existing.LastDueAt = c.DueAt
			}
			existing.LastSeenAt = now
			if _, err := tx.Exec(
				"UPDATE records SET last_due_at = ?, last_seen_at = ? WHERE fingerprint = ?",
				existing.LastDueAt.UTC().Format(time.RFC3339), existing.LastSeenAt.UTC().Format(time.RFC3339), existing.Fingerprint); err != nil {
				return nil, fmt.Errorf("reconcile: update %s: %w", c.Fingerprint, err)
			}
			outcomes = append(outcomes, Outcome{Assignment: c, Record: *existing, Status: status})
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("reconcile: commit: %w", err)
	}
	return outcomes, nil
}

// Prune deletes records whose fingerprint has not been seen within the grace
// window. Tolerates a source being temporarily unreachable without silently
// dropping previously exported events.
func (s *Store) Prune(now time.Time, grace time.Duration) (int, error) {
	cutoff := now.Add(-grace).UTC().Format(time.RFC3339)
	res, err := s.db.Exec("DELETE FROM records WHERE last_seen_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune: rows affected: %w", err)
	}
	return int(n), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var rec Record
	var due, seen string
	if err := row.Scan(&rec.Fingerprint, &rec.CalendarUID, &due, &seen); err != nil {
		return nil, err
	}
	var err error
	if rec.LastDueAt, err = time.Parse(time.RFC3339, due); err != nil {
		return nil, fmt.Errorf("parse last_due_at: %w", err)
	}
	if rec.LastSeenAt, err = time.Parse(time.RFC3339, seen); err != nil {
		return nil, fmt.Errorf("parse last_seen_at: %w", err)
	}
	return &rec, nil
}
