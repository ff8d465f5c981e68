package cache

import (
	"bytes"
	"crypto/sha1"
	"database/sql"
	"encoding/hex"
	"errors"
	"time"

	"github.com/KarDB/QuPyt/qupyt/failure"
	"github.com/KarDB/QuPyt/qupyt/sequence"
	_ "github.com/mattn/go-sqlite3"
)

// A SQLiteStore keeps named baselines in a SQLite database, so that several
// sequences can share one cache file.
type SQLiteStore struct {
	db   *sql.DB
	name string
}

// OpenSQLite opens (creating if needed) the database at path and returns the
// store for the baseline called name.
func OpenSQLite(path, name string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	table := `
	CREATE TABLE IF NOT EXISTS baselines (
		name TEXT PRIMARY KEY,
		document TEXT,
		digest TEXT,
		updated_at DATETIME
	);
	`
	if _, err := db.Exec(table); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db, name: name}, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func digest(doc []byte) string {
	sum := sha1.Sum(doc)
	return hex.EncodeToString(sum[:])
}

// Load implements the Store interface.
func (s *SQLiteStore) Load() (*sequence.Spec, error) {
	const op = "load baseline"
	var doc, sum string
	err := s.db.QueryRow(`SELECT document, digest FROM baselines WHERE name = ?`, s.name).Scan(&doc, &sum)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoBaseline
	}
	if err != nil {
		return nil, failure.Wrap(failure.Cache, op, err)
	}
	if d := digest([]byte(doc)); d != sum {
		return nil, failure.New(failure.Cache, op, "baseline %q digest %s does not match stored %s", s.name, d, sum)
	}
	spec, err := sequence.Decode(bytes.NewReader([]byte(doc)))
	if err != nil {
		return nil, failure.Wrap(failure.Cache, op, err)
	}
	return spec, nil
}

// Save implements the Store interface.
func (s *SQLiteStore) Save(spec *sequence.Spec) error {
	var buf bytes.Buffer
	if err := sequence.Encode(&buf, spec); err != nil {
		return failure.Wrap(failure.Cache, "save baseline", err)
	}
	_, err := s.db.Exec(`INSERT OR REPLACE INTO baselines (name, document, digest, updated_at) VALUES (?, ?, ?, ?)`,
		s.name, buf.String(), digest(buf.Bytes()), time.Now().UTC())
	return failure.Wrap(failure.Cache, "save baseline", err)
}

// Clear implements the Store interface.
func (s *SQLiteStore) Clear() error {
	_, err := s.db.Exec(`DELETE FROM baselines WHERE name = ?`, s.name)
	return failure.Wrap(failure.Cache, "clear baseline", err)
}
