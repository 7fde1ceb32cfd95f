// Package catalog serves read queries against the installed catalog artifact.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Info describes the currently open artifact.
type Info struct {
	Path       string
	Version    string
	RowCount   int
	SizeBytes  int64
	ModifiedAt time.Time
	OpenedAt   time.Time
}

// Store is the read surface over the active artifact.
//
// A Store owns one read-only connection pool. Reload swaps it for a pool on the
// newly activated file; queries already running finish against the old handle.
type Store struct {
	path string
	log  *slog.Logger

	mu     sync.RWMutex
	state  State
	err    error // validation failure while in StateFailed
	db     *sql.DB
	info   Info
	tables map[string]bool
}

// New creates a store for the artifact at path. Call Open before querying.
func New(path string, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{
		path:  path,
		log:   log,
		state: StateUninitialized,
	}
}

// Path returns the active artifact path.
func (s *Store) Path() string { return s.path }

// State returns the current lifecycle state.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Err returns the validation error when the store is in StateFailed.
func (s *Store) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

// Info returns details about the open artifact.
func (s *Store) Info() (Info, error) {
	if _, err := s.acquire(); err != nil {
		return Info{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.info, nil
}

// Open validates the artifact and starts serving reads.
// On failure the store moves to StateFailed and returns ErrMissing or ErrCorrupt.
func (s *Store) Open(ctx context.Context) error {
	s.mu.Lock()
	if err := s.transition(StateValidating); err != nil {
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	return s.swap(ctx, StateValidating)
}

// Reload re-opens the store against the file now at the active path.
// Reads are rejected with ErrNotReady until the new handle is validated.
func (s *Store) Reload(ctx context.Context) error {
	s.mu.Lock()
	if err := s.transition(StateReinitializing); err != nil {
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	return s.swap(ctx, StateReinitializing)
}

func (s *Store) swap(ctx context.Context, from State) error {
	db, info, tables, err := openValidated(ctx, s.path)

	s.mu.Lock()
	old := s.db
	if err != nil {
		s.db = nil
		s.err = err
		_ = s.transition(StateFailed)
	} else {
		s.db = db
		s.info = info
		s.tables = tables
		s.err = nil
		_ = s.transition(StateReady)
	}
	s.mu.Unlock()

	if old != nil {
		// Close waits for queries already running on the old handle.
		if cerr := old.Close(); cerr != nil {
			s.log.Warn("close previous catalog handle", "error", cerr)
		}
	}

	if err != nil {
		s.log.Error("catalog unavailable", "path", s.path, "from", from, "error", err)
		return err
	}
	s.log.Info("catalog ready", "path", s.path, "rows", info.RowCount, "version", info.Version, "from", from)
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return nil
	}
	s.state = StateClosed
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// transition must be called with mu held.
func (s *Store) transition(to State) error {
	if s.state == StateClosed {
		return ErrClosed
	}
	if !s.state.CanTransitionTo(to) {
		return &transitionError{from: s.state, to: to}
	}
	s.state = to
	return nil
}

func (s *Store) acquire() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch s.state {
	case StateReady:
		return s.db, nil
	case StateFailed:
		return nil, s.err
	case StateClosed:
		return nil, ErrClosed
	default:
		return nil, fmt.Errorf("%w: %s", ErrNotReady, s.state)
	}
}

func (s *Store) hasTable(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tables[name]
}

// do runs fn against the current handle. If the handle was swapped out from
// under fn it retries against the new one, and reports ErrNotReady when the
// store keeps swapping.
func (s *Store) do(ctx context.Context, fn func(db *sql.DB) error) error {
	for attempt := 0; ; attempt++ {
		db, err := s.acquire()
		if err != nil {
			return err
		}
		err = fn(db)
		if isClosedHandle(err) {
			if attempt < maxSwapRetries {
				s.log.Debug("catalog handle swapped mid-query, retrying", "attempt", attempt+1)
				continue
			}
			return fmt.Errorf("%w: handle swapped", ErrNotReady)
		}
		if err != nil && ctx.Err() == nil {
			return mapSQLiteError(err)
		}
		return err
	}
}

const maxSwapRetries = 2

func isClosedHandle(err error) bool {
	return err != nil && (errors.Is(err, sql.ErrConnDone) || strings.Contains(err.Error(), "sql: database is closed"))
}

// mapSQLiteError maps driver errors onto the package sentinels.
func mapSQLiteError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	// modernc.org/sqlite wraps errors; check error message for corruption
	errStr := err.Error()
	if strings.Contains(errStr, "file is not a database") ||
		strings.Contains(errStr, "database disk image is malformed") ||
		strings.Contains(errStr, "no such table: entries") {
		return fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return err
}

// ValidateFile checks that path holds a readable artifact with an entries table.
// An empty entries table is valid.
func ValidateFile(ctx context.Context, path string) error {
	db, _, _, err := openValidated(ctx, path)
	if err != nil {
		return err
	}
	return db.Close()
}

func openValidated(ctx context.Context, path string) (*sql.DB, Info, map[string]bool, error) {
	info := Info{Path: path}

	fi, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, info, nil, fmt.Errorf("%w: %s", ErrMissing, path)
		}
		return nil, info, nil, fmt.Errorf("stat artifact: %w", err)
	}
	if fi.IsDir() {
		return nil, info, nil, fmt.Errorf("%w: %s is a directory", ErrCorrupt, path)
	}
	info.SizeBytes = fi.Size()
	info.ModifiedAt = fi.ModTime()

	db, err := sql.Open("sqlite", readOnlyDSN(path))
	if err != nil {
		return nil, info, nil, fmt.Errorf("open artifact: %w", err)
	}

	tables, err := listTables(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, info, nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if !tables[TableEntries] {
		_ = db.Close()
		return nil, info, nil, fmt.Errorf("%w: missing %s table", ErrCorrupt, TableEntries)
	}

	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entries`).Scan(&info.RowCount); err != nil {
		_ = db.Close()
		return nil, info, nil, fmt.Errorf("%w: count entries: %v", ErrCorrupt, err)
	}

	if tables[TableMetadata] {
		var version sql.NullString
		err := db.QueryRowContext(ctx, `SELECT version FROM metadata LIMIT 1`).Scan(&version)
		if err == nil {
			info.Version = version.String
		}
	}
	info.OpenedAt = time.Now()
	return db, info, tables, nil
}

func listTables(ctx context.Context, db *sql.DB) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx, `SELECT name FROM sqlite_master WHERE type = 'table'`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	tables := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tables[name] = true
	}
	return tables, rows.Err()
}

func readOnlyDSN(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return "file:" + filepath.ToSlash(abs) + "?mode=ro&_pragma=busy_timeout(5000)"
}
