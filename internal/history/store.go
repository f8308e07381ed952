package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/TheLazyLemur/benpdf/internal/core"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

var _ core.Journal = (*Store)(nil)

const schema = `CREATE TABLE IF NOT EXISTS submissions (
	id          TEXT PRIMARY KEY,
	tool        TEXT NOT NULL,
	status      TEXT NOT NULL,
	filename    TEXT NOT NULL DEFAULT '',
	message     TEXT NOT NULL DEFAULT '',
	status_code INTEGER NOT NULL DEFAULT 0,
	created_at  INTEGER NOT NULL
)`

const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Entry is one recorded submission
type Entry struct {
	ID         string
	Tool       string
	Status     string
	Filename   string
	Message    string
	StatusCode int
	CreatedAt  time.Time
}

// Summary returns a one-line description for listings
func (e *Entry) Summary() string {
	when := e.CreatedAt.Format("Jan 2 15:04")
	detail := e.Filename
	if e.Status != StatusSuccess {
		detail = e.Message
	}
	if detail == "" {
		return fmt.Sprintf("%s: %s %s (%s)", shortID(e.ID), e.Tool, e.Status, when)
	}
	return fmt.Sprintf("%s: %s %s %s (%s)", shortID(e.ID), e.Tool, e.Status, detail, when)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// Store persists resolved submissions in SQLite
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore opens (creating if needed) the journal database at path
func NewStore(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, errors.Wrap(err, "creating history directory")
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "opening history database")
	}
	// single writer, also keeps :memory: databases on one connection
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "creating submissions table")
	}
	return &Store{db: db, now: time.Now}, nil
}

// Record implements core.Journal
func (s *Store) Record(rec core.Record) error {
	status := StatusFailed
	if rec.Success {
		status = StatusSuccess
	}
	_, err := s.db.Exec(
		`INSERT INTO submissions (id, tool, status, filename, message, status_code, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), rec.Tool, status, rec.Filename, rec.Message, rec.StatusCode, s.now().UnixNano(),
	)
	if err != nil {
		return errors.Wrap(err, "inserting submission")
	}
	return nil
}

// Load retrieves an entry by ID
func (s *Store) Load(id string) (*Entry, error) {
	row := s.db.QueryRow(
		`SELECT id, tool, status, filename, message, status_code, created_at FROM submissions WHERE id = ?`, id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Errorf("submission %s not found", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "reading submission")
	}
	return e, nil
}

// List returns the most recent entries first; limit <= 0 means all
func (s *Store) List(limit int) ([]*Entry, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query(
		`SELECT id, tool, status, filename, message, status_code, created_at FROM submissions
		 ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "listing submissions")
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scanning submission")
		}
		entries = append(entries, e)
	}
	return entries, errors.Wrap(rows.Err(), "iterating submissions")
}

// Delete removes an entry
func (s *Store) Delete(id string) error {
	res, err := s.db.Exec(`DELETE FROM submissions WHERE id = ?`, id)
	if err != nil {
		return errors.Wrap(err, "deleting submission")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.Errorf("submission %s not found", id)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(sc scanner) (*Entry, error) {
	var e Entry
	var created int64
	if err := sc.Scan(&e.ID, &e.Tool, &e.Status, &e.Filename, &e.Message, &e.StatusCode, &created); err != nil {
		return nil, err
	}
	e.CreatedAt = time.Unix(0, created)
	return &e, nil
}
