package reassemble

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// RunIndex is a resumable record of which output windows a reassembly
// run has already written, so re-running Options.Run over a directory
// that is still receiving new raw files does not rewrite windows it has
// already finished (SPEC_FULL.md's addition to spec §4.10's offline
// tool; no equivalent in the original one-shot prepSAS.py run).
//
// Grounded on the teacher's internal/db.go applyPragmas/sql.Open
// pattern, deliberately without its migration framework: the run index
// has exactly one table and no schema history to manage.
type RunIndex struct {
	db *sql.DB
}

const runIndexSchema = `
CREATE TABLE IF NOT EXISTS windows (
	suffix     TEXT PRIMARY KEY,
	written_at INTEGER NOT NULL,
	frames     INTEGER NOT NULL
);`

// OpenRunIndex opens (creating if necessary) the sqlite database at
// path and ensures its schema exists.
func OpenRunIndex(path string) (*RunIndex, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("reassemble: run index %s: %w", path, err)
	}
	if err := applyRunIndexPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("reassemble: run index %s: %w", path, err)
	}
	if _, err := db.Exec(runIndexSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("reassemble: run index %s: create schema: %w", path, err)
	}
	return &RunIndex{db: db}, nil
}

func applyRunIndexPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("%q: %w", p, err)
		}
	}
	return nil
}

// Done reports whether suffix (a window's FilenameSuffix) has already
// been written by a prior run.
func (ri *RunIndex) Done(suffix string) (bool, error) {
	var exists bool
	err := ri.db.QueryRow(`SELECT COUNT(*) > 0 FROM windows WHERE suffix = ?`, suffix).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("reassemble: run index: query %s: %w", suffix, err)
	}
	return exists, nil
}

// Record marks suffix as written, recording how many frames it holds.
func (ri *RunIndex) Record(suffix string, frames int, writtenAt time.Time) error {
	_, err := ri.db.Exec(
		`INSERT INTO windows (suffix, written_at, frames) VALUES (?, ?, ?)
		 ON CONFLICT(suffix) DO UPDATE SET written_at = excluded.written_at, frames = excluded.frames`,
		suffix, writtenAt.Unix(), frames,
	)
	if err != nil {
		return fmt.Errorf("reassemble: run index: record %s: %w", suffix, err)
	}
	return nil
}

// Close releases the underlying database handle.
func (ri *RunIndex) Close() error {
	return ri.db.Close()
}
