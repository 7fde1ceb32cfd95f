// Package state persists the installation's update state across restarts.
package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Keys in the update_state table.
const (
	KeyInstalledVersion  = "installed_version"
	KeyInstalledChecksum = "installed_checksum"
	KeyInstalledAt       = "installed_at"
	KeyLastCheck         = "last_check"
	KeyPendingVersion    = "pending_version"
	KeyPendingChecksum   = "pending_checksum"
)

// UpdateState is the persisted view of what is installed and what is staged.
type UpdateState struct {
	InstalledVersion  string
	InstalledChecksum string
	InstalledAt       time.Time
	LastCheck         time.Time
	PendingVersion    string
	PendingChecksum   string
}

// IsEmpty reports whether nothing has ever been recorded as installed.
func (s UpdateState) IsEmpty() bool {
	return s.InstalledVersion == "" && s.InstalledChecksum == ""
}

// HasPending reports whether a staged artifact awaits activation.
func (s UpdateState) HasPending() bool {
	return s.PendingVersion != "" && s.PendingChecksum != ""
}

// Store reads and writes UpdateState.
type Store struct {
	db *sql.DB
}

// NewStore wraps an already migrated database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open opens (creating if needed) the state database at path and migrates it.
func Open(ctx context.Context, path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create state dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open state db: %w", err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	if err := Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return NewStore(db), nil
}

// DB returns the underlying database.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Load returns the current state. Missing keys load as zero values.
func (s *Store) Load(ctx context.Context) (UpdateState, error) {
	var st UpdateState
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM update_state`)
	if err != nil {
		return st, fmt.Errorf("load state: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return st, fmt.Errorf("scan state: %w", err)
		}
		switch k {
		case KeyInstalledVersion:
			st.InstalledVersion = v
		case KeyInstalledChecksum:
			st.InstalledChecksum = v
		case KeyInstalledAt:
			st.InstalledAt = parseTime(v)
		case KeyLastCheck:
			st.LastCheck = parseTime(v)
		case KeyPendingVersion:
			st.PendingVersion = v
		case KeyPendingChecksum:
			st.PendingChecksum = v
		}
	}
	if err := rows.Err(); err != nil {
		return st, fmt.Errorf("iterate state: %w", err)
	}
	return st, nil
}

// RecordInstalled sets the installed version/checksum and clears any pending
// version in a single transaction.
func (s *Store) RecordInstalled(ctx context.Context, version, checksum string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		now := time.Now().UTC()
		if err := put(ctx, tx, KeyInstalledVersion, version); err != nil {
			return err
		}
		if err := put(ctx, tx, KeyInstalledChecksum, checksum); err != nil {
			return err
		}
		if err := put(ctx, tx, KeyInstalledAt, now.Format(time.RFC3339Nano)); err != nil {
			return err
		}
		return del(ctx, tx, KeyPendingVersion, KeyPendingChecksum)
	})
}

// RecordPending marks a staged artifact awaiting activation.
func (s *Store) RecordPending(ctx context.Context, version, checksum string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := put(ctx, tx, KeyPendingVersion, version); err != nil {
			return err
		}
		return put(ctx, tx, KeyPendingChecksum, checksum)
	})
}

// ClearPending removes the pending version/checksum.
func (s *Store) ClearPending(ctx context.Context) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return del(ctx, tx, KeyPendingVersion, KeyPendingChecksum)
	})
}

// TouchLastCheck records the time of the latest manifest check.
func (s *Store) TouchLastCheck(ctx context.Context, at time.Time) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return put(ctx, tx, KeyLastCheck, at.UTC().Format(time.RFC3339Nano))
	})
}

// Reset forgets the installed and pending state.
func (s *Store) Reset(ctx context.Context) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return del(ctx, tx, KeyInstalledVersion, KeyInstalledChecksum, KeyInstalledAt,
			KeyPendingVersion, KeyPendingChecksum)
	})
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit state: %w", err)
	}
	return nil
}

func put(ctx context.Context, tx *sql.Tx, key, value string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO update_state (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func del(ctx context.Context, tx *sql.Tx, keys ...string) error {
	for _, k := range keys {
		if _, err := tx.ExecContext(ctx, `DELETE FROM update_state WHERE key = ?`, k); err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("clear %s: %w", k, err)
		}
	}
	return nil
}

func parseTime(v string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return t
}
