// Copyright 2025 Panacea Project
// SPDX-License-Identifier: Apache-2.0

// Package localstore provides the durable SQLite persistence layer of the
// offline-first sync core: the entity tables mirrored from the server, the
// pending-operation queue table and the device metadata key/value store.
//
// A Store is an explicitly constructed object with an open/close lifecycle;
// it is injected into the mutation queue, the sync engine and the domain
// services rather than held in package-level state, so tests can run many
// isolated instances side by side.
package localstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"

	_ "github.com/mattn/go-sqlite3"
)

// Store owns a single SQLite database file scoped to the app install.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (or creates) the database at path, enables WAL mode, and brings
// the schema up to the current version. A path of
// ":memory:" yields an isolated in-memory database, used by tests.
//
// Failure here is fatal for the application: there is no in-memory fallback,
// since durability across process restarts is the entire point.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}
	// A single connection keeps transactions and reads from deadlocking each
	// other under SQLite's file locking.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, logger: logger}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initialize() error {
	if _, err := s.db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	// Foreign keys stay unenforced: this store mirrors server state, and a
	// pull window may deliver (or delete) a row before its parent. The FK
	// clauses in the DDL are documentation; the server owns integrity.
	if _, err := s.db.Exec(metadataDDL); err != nil {
		return fmt.Errorf("failed to create metadata table: %w", err)
	}

	current, err := s.stampedVersion()
	if err != nil {
		return err
	}

	switch {
	case current == 0:
		if _, err := s.db.Exec(schemaSQL); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
		if err := s.stampVersion(schemaVersion); err != nil {
			return err
		}
		s.logger.Info("database schema created", "version", schemaVersion)
	case current < schemaVersion:
		for _, m := range migrations {
			if m.version <= current {
				continue
			}
			for _, stmt := range m.stmts {
				if _, err := s.db.Exec(stmt); err != nil {
					return fmt.Errorf("migration to v%d failed: %w", m.version, err)
				}
			}
		}
		if err := s.stampVersion(schemaVersion); err != nil {
			return err
		}
		s.logger.Info("database migrated", "from", current, "to", schemaVersion)
	default:
		s.logger.Debug("database ready", "version", current)
	}
	return nil
}

func (s *Store) stampedVersion() (int, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM device_metadata WHERE key = ?`, keySchemaVersion).Scan(&value)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("corrupt schema version %q: %w", value, err)
	}
	return v, nil
}

func (s *Store) stampVersion(v int) error {
	_, err := s.db.Exec(`INSERT OR REPLACE INTO device_metadata (key, value) VALUES (?, ?)`,
		keySchemaVersion, strconv.Itoa(v))
	if err != nil {
		return fmt.Errorf("failed to stamp schema version: %w", err)
	}
	return nil
}

// DB exposes the underlying handle for components that issue their own
// parameterized statements (the mutation queue, the sync engine).
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the database file.
func (s *Store) Close() error {
	return s.db.Close()
}

// WithTx runs work inside a single transaction, guaranteeing all-or-nothing
// application of a batch of writes. Used when applying server deltas so a
// crash mid-apply cannot leave a patient referencing a ward that was never
// written, or a partially advanced watermark.
func (s *Store) WithTx(ctx context.Context, work func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := work(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	committed = true
	return nil
}

// ClearAll deletes every entity and queue row plus the sync watermark keys,
// but preserves the device id. Called on logout so the next login
// deterministically re-triggers an initial sync.
func (s *Store) ClearAll(ctx context.Context) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		tables := []string{"events", "orders", "barcodes", "patients", "wards", "users", "pending_operations"}
		for _, table := range tables {
			if _, err := tx.ExecContext(ctx, `DELETE FROM `+table); err != nil {
				return fmt.Errorf("failed to clear %s: %w", table, err)
			}
		}
		_, err := tx.ExecContext(ctx,
			`DELETE FROM device_metadata WHERE key IN (?, ?, ?)`,
			keyLastSyncTimestamp, keyInitialSyncComplete, keyDeviceRegistered)
		if err != nil {
			return fmt.Errorf("failed to clear sync metadata: %w", err)
		}
		return nil
	})
}
