// internal/docstore/docstore.go

// Package docstore persists embedded document chunks and answers
// nearest-neighbour queries over them. The store is a small SQLite database
// (via gorm) under a directory; similarity is computed in process.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mwiater/examrag/internal/logging"
	"github.com/mwiater/examrag/internal/providers"
)

const dbFileName = "store.db"

var (
	// ErrStoreUnavailable is returned by every data operation while the
	// store is not Ready.
	ErrStoreUnavailable = errors.New("document store is unavailable")
	// ErrInvalidSearch reports search options that cannot be satisfied.
	ErrInvalidSearch = errors.New("invalid search options")
)

// DuplicateIDError reports a chunk id that already exists in the store or
// appears twice in one batch.
type DuplicateIDError struct {
	ID string
}

func (e *DuplicateIDError) Error() string {
	return fmt.Sprintf("duplicate chunk id %q", e.ID)
}

// DuplicateFilenameError reports a filename that already has chunks.
type DuplicateFilenameError struct {
	Filename string
}

func (e *DuplicateFilenameError) Error() string {
	return fmt.Sprintf("file %q already exists in the store", e.Filename)
}

// State is the availability of the store.
type State int

const (
	Uninitialized State = iota
	Loading
	Ready
	Failed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Metadata travels with every chunk.
type Metadata struct {
	Filename    string `json:"filename"`
	Source      string `json:"source"`
	StartOffset int    `json:"start_index"`
}

// Chunk is a unit of retrievable text. Embedding may be empty on insert, in
// which case the store computes it.
type Chunk struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Embedding []float32 `json:"-"`
	Metadata  Metadata  `json:"metadata"`
}

// Stats summarizes the store contents.
type Stats struct {
	TotalDocuments int `json:"total_documents"`
	TotalChunks    int `json:"total_chunks"`
}

// Opener opens the database file at path.
type Opener func(path string) (*gorm.DB, error)

// Option configures a Store.
type Option func(*Store)

// WithOpener replaces the SQLite opener, mostly for tests.
func WithOpener(open Opener) Option {
	return func(s *Store) { s.open = open }
}

// Store is a persisted collection of chunks. Reads run concurrently;
// writes are serialized.
type Store struct {
	dir      string
	embedder providers.Embedder
	open     Opener

	mu      sync.RWMutex
	state   State
	lastErr error
	db      *gorm.DB

	writeMu sync.Mutex
}

// New returns an Uninitialized store rooted at dir. Call Open before use.
func New(dir string, embedder providers.Embedder, opts ...Option) *Store {
	s := &Store{dir: dir, embedder: embedder, open: openSQLite}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func openSQLite(path string) (*gorm.DB, error) {
	return gorm.Open(sqlite.Open(path), &gorm.Config{Logger: logger.Discard})
}

// Open performs the first load. It is equivalent to Reinitialize.
func (s *Store) Open(ctx context.Context) error {
	return s.Reinitialize(ctx)
}

// Reinitialize (re)loads the store from disk, creating the directory and an
// empty database when absent. It is refused while another load is running.
func (s *Store) Reinitialize(ctx context.Context) error {
	s.mu.Lock()
	if s.state == Loading {
		s.mu.Unlock()
		return fmt.Errorf("reinitialize: %w: load already in progress", ErrStoreUnavailable)
	}
	s.state = Loading
	old := s.db
	s.db = nil
	s.mu.Unlock()

	if old != nil {
		closeDB(old)
	}

	db, err := s.load(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.state = Failed
		s.lastErr = err
		logging.LogEvent("document store failed to load from %s: %v", s.dir, err)
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	s.db = db
	s.state = Ready
	s.lastErr = nil
	logging.LogEvent("document store ready at %s", s.dir)
	return nil
}

func (s *Store) load(ctx context.Context) (*gorm.DB, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.dir == "" {
		return nil, errors.New("store directory is empty")
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	db, err := s.open(filepath.Join(s.dir, dbFileName))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if err := db.WithContext(ctx).AutoMigrate(&chunkRecord{}); err != nil {
		closeDB(db)
		return nil, fmt.Errorf("migrate store: %w", err)
	}
	return db, nil
}

// State reports the current availability state.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Available reports whether the store is Ready.
func (s *Store) Available() bool {
	return s.State() == Ready
}

// LastError returns the cause of the most recent failed load, if any.
func (s *Store) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// Close releases the database and returns the store to Uninitialized.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		closeDB(s.db)
		s.db = nil
	}
	s.state = Uninitialized
	return nil
}

// handle returns the database when Ready. Callers hold s.mu for reading for
// the duration of the operation so Reinitialize cannot swap it underneath.
func (s *Store) handle() (*gorm.DB, error) {
	if s.state != Ready || s.db == nil {
		return nil, ErrStoreUnavailable
	}
	return s.db, nil
}

func closeDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
