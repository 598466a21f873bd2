// Package storage persists the engine's JSON documents: the desired position
// book, the trailing-stop table and the monthly append-only journals. Writes
// go through an atomic tmp-file + fsync + rename so a crash mid-write never
// leaves a torn document behind.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"stockpilot/internal/models"
)

const (
	bookFile  = "docs/latest.json"
	stopsFile = "data/trailing_stops.json"
	logsDir   = "logs"
)

var (
	// ErrNoDocument means the document has never been written.
	ErrNoDocument = errors.New("document does not exist")
	// ErrMalformedDocument means the document exists but failed validation.
	// Callers treat this as "nothing to do" rather than defaulting to empty
	// state and overwriting whatever is on disk.
	ErrMalformedDocument = errors.New("document is malformed")
)

// Store reads and writes all persisted documents under a base directory.
type Store struct {
	Dir string
}

func NewStore(dir string) *Store {
	return &Store{Dir: dir}
}

// LoadBook reads the desired position book.
func (s *Store) LoadBook() (*models.PortfolioBook, error) {
	path := filepath.Join(s.Dir, bookFile)
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrNoDocument, path)
	}
	if err != nil {
		return nil, err
	}

	var book models.PortfolioBook
	if err := json.Unmarshal(b, &book); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedDocument, path, err)
	}
	if book.Positions == nil {
		return nil, fmt.Errorf("%w: %s: missing positions map", ErrMalformedDocument, path)
	}
	return &book, nil
}

// SaveBook overwrites the desired position book atomically.
func (s *Store) SaveBook(book *models.PortfolioBook) error {
	return s.writeJSON(filepath.Join(s.Dir, bookFile), book)
}

// LoadStops reads the trailing-stop table. A missing table is an empty one:
// no symbol has armed yet.
func (s *Store) LoadStops() (models.TrailingStopTable, error) {
	path := filepath.Join(s.Dir, stopsFile)
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return models.TrailingStopTable{}, nil
	}
	if err != nil {
		return nil, err
	}

	var table models.TrailingStopTable
	if err := json.Unmarshal(b, &table); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedDocument, path, err)
	}
	if table == nil {
		table = models.TrailingStopTable{}
	}
	return table, nil
}

// SaveStops overwrites the trailing-stop table atomically.
func (s *Store) SaveStops(table models.TrailingStopTable) error {
	return s.writeJSON(filepath.Join(s.Dir, stopsFile), table)
}

// writeJSON marshals v and replaces path in one atomic rename. The temp file
// lives in the destination directory so the rename never crosses filesystems.
func (s *Store) writeJSON(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", path, err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.Write(b); err != nil {
		return fmt.Errorf("writing %s: %w", tmp, err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("syncing %s: %w", tmp, err)
	}
	// Close before rename, essential on Windows.
	f.Close()

	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	return nil
}
