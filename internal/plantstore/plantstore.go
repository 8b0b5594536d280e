// Package plantstore persists opaque, versioned blobs (building-model
// filter state, a DHWT's last charge day) across restarts, grounded on the
// teacher's db.InitializeIfMissing/SeedDatabase idiom: touch the file if
// missing, open it with mattn/go-sqlite3, and run a fixed DDL against it.
// Unlike the teacher's entity-shaped schema, the table here is a flat
// identifier/version/blob store — the core only needs round-trip dump/fetch,
// not a queryable relational model, per spec.md §6's "Storage boundary".
package plantstore

import (
	"database/sql"
	"fmt"
	"os"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS plant_state (
	identifier TEXT PRIMARY KEY,
	version    INTEGER NOT NULL,
	data       BLOB NOT NULL
);
`

// Store is a sqlite-backed opaque blob store.
type Store struct {
	db *sql.DB
}

// Open creates path if missing and applies the schema, mirroring the
// teacher's InitializeIfMissing touch-then-seed sequence.
func Open(path string) (*Store, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		f, err := os.Create(path)
		if err != nil {
			return nil, fmt.Errorf("plantstore: create %s: %w", path, err)
		}
		f.Close()
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("plantstore: open %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("plantstore: apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// Dump persists data under identifier at version, replacing any prior value.
func (s *Store) Dump(identifier string, version int64, data []byte) error {
	_, err := s.db.Exec(
		`INSERT INTO plant_state (identifier, version, data) VALUES (?, ?, ?)
		 ON CONFLICT(identifier) DO UPDATE SET version = excluded.version, data = excluded.data`,
		identifier, version, data,
	)
	if err != nil {
		return fmt.Errorf("plantstore: dump %q: %w", identifier, err)
	}
	return nil
}

// Fetch retrieves the blob stored under identifier. ok is false if nothing
// has been dumped under that identifier yet.
func (s *Store) Fetch(identifier string) (version int64, data []byte, ok bool, err error) {
	row := s.db.QueryRow(`SELECT version, data FROM plant_state WHERE identifier = ?`, identifier)
	if scanErr := row.Scan(&version, &data); scanErr != nil {
		if scanErr == sql.ErrNoRows {
			return 0, nil, false, nil
		}
		return 0, nil, false, fmt.Errorf("plantstore: fetch %q: %w", identifier, scanErr)
	}
	return version, data, true, nil
}
