// Package sqlite provides the SQLite-backed ledger store.
//
// Units of work begin as immediate write transactions, so the database
// writer lock is held from Begin onward and row locks requested through
// the storage contract are subsumed by it. Readers run on a separate
// connection pool and never block writers under WAL.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/louisbranch/bankledger/internal/ledger/storage"
	"github.com/louisbranch/bankledger/internal/ledger/storage/sqlite/migrations"
	"github.com/louisbranch/bankledger/internal/platform/storage/sqlitemigrate"
	_ "modernc.org/sqlite"
)

const commonPragmas = "_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)"

// Store provides SQLite-backed persistence for the ledger.
type Store struct {
	writeDB *sql.DB
	readDB  *sql.DB
}

var _ storage.Store = (*Store)(nil)

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a ledger SQLite store at the provided path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	// _txlock=immediate makes Begin take the writer lock up front; a unit of
	// work can then never fail a mid-flight lock upgrade, only queue behind
	// the busy timeout at Begin.
	writeDB, err := sql.Open("sqlite", cleanPath+"?_txlock=immediate&"+commonPragmas)
	if err != nil {
		return nil, fmt.Errorf("open sqlite write db: %w", err)
	}
	// SQLite allows one writer at a time; a single-connection pool queues
	// units of work in database/sql instead of tripping the busy timeout.
	writeDB.SetMaxOpenConns(1)
	if err := writeDB.Ping(); err != nil {
		_ = writeDB.Close()
		return nil, fmt.Errorf("ping sqlite write db: %w", err)
	}

	readDB, err := sql.Open("sqlite", cleanPath+"?"+commonPragmas)
	if err != nil {
		_ = writeDB.Close()
		return nil, fmt.Errorf("open sqlite read db: %w", err)
	}
	if err := readDB.Ping(); err != nil {
		_ = writeDB.Close()
		_ = readDB.Close()
		return nil, fmt.Errorf("ping sqlite read db: %w", err)
	}

	if err := ensureForeignKeysEnabled(writeDB); err != nil {
		_ = writeDB.Close()
		_ = readDB.Close()
		return nil, err
	}

	store := &Store{writeDB: writeDB, readDB: readDB}
	if err := store.runMigrations(); err != nil {
		_ = writeDB.Close()
		_ = readDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return store, nil
}

// Close closes both underlying SQLite connection pools.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	var firstErr error
	if s.writeDB != nil {
		if err := s.writeDB.Close(); err != nil {
			firstErr = err
		}
	}
	if s.readDB != nil {
		if err := s.readDB.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (s *Store) runMigrations() error {
	return sqlitemigrate.ApplyMigrations(context.Background(), s.writeDB, migrations.FS)
}

func ensureForeignKeysEnabled(db *sql.DB) error {
	if db == nil {
		return fmt.Errorf("sqlite db is required")
	}
	var enabled int
	if err := db.QueryRow("PRAGMA foreign_keys").Scan(&enabled); err != nil {
		return fmt.Errorf("check sqlite foreign key pragma: %w", err)
	}
	if enabled != 1 {
		return fmt.Errorf("sqlite foreign keys are disabled")
	}
	return nil
}

// Begin opens a unit of work holding the database writer lock.
func (s *Store) Begin(ctx context.Context) (storage.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.writeDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	tx, err := s.writeDB.BeginTx(ctx, nil)
	if err != nil {
		if isBusyError(err) {
			return nil, storage.ErrBusy
		}
		return nil, fmt.Errorf("begin unit of work: %w", err)
	}
	return &ledgerTx{tx: tx}, nil
}

func isBusyError(err error) bool {
	if err == nil {
		return false
	}
	value := strings.ToLower(err.Error())
	return strings.Contains(value, "sqlite_busy") || strings.Contains(value, "database is locked")
}

func isConstraintError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "constraint failed")
}

// mapWriteError folds driver-level failures into the storage error taxonomy.
func mapWriteError(op string, err error) error {
	switch {
	case isBusyError(err):
		return storage.ErrBusy
	case isConstraintError(err):
		return storage.ErrConflict
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
