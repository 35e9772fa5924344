// Copyright 2025 Panacea Project
// SPDX-License-Identifier: Apache-2.0

package localstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Well-known metadata keys.
const (
	keySchemaVersion       = "database_version"
	keyDeviceID            = "device_id"
	keyDeviceRegistered    = "device_registered"
	keyLastSyncTimestamp   = "last_sync_timestamp"
	keyInitialSyncComplete = "initial_sync_complete"
)

// Metadata returns the value stored under key, or "" when the key is absent.
func (s *Store) Metadata(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM device_metadata WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read metadata %s: %w", key, err)
	}
	return value, nil
}

// SetMetadata stores value under key, replacing any previous value.
func (s *Store) SetMetadata(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO device_metadata (key, value) VALUES (?, ?)`, key, value)
	if err != nil {
		return fmt.Errorf("failed to set metadata %s: %w", key, err)
	}
	return nil
}

// DeleteMetadata removes key if present.
func (s *Store) DeleteMetadata(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM device_metadata WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete metadata %s: %w", key, err)
	}
	return nil
}

// DeviceID returns the install-scoped device identifier, generating and
// persisting one on first call. The id survives ClearAll.
func (s *Store) DeviceID(ctx context.Context) (string, error) {
	id, err := s.Metadata(ctx, keyDeviceID)
	if err != nil {
		return "", err
	}
	if id != "" {
		return id, nil
	}
	id = uuid.New().String()
	if err := s.SetMetadata(ctx, keyDeviceID, id); err != nil {
		return "", err
	}
	s.logger.Info("generated new device id", "device_id", id)
	return id, nil
}

// LastSyncTimestamp returns the pull watermark, or "" when no successful
// sync has completed yet.
func (s *Store) LastSyncTimestamp(ctx context.Context) (string, error) {
	return s.Metadata(ctx, keyLastSyncTimestamp)
}

// SetLastSyncTimestamp advances the watermark. A value chronologically at or
// below the stored watermark is ignored, keeping the watermark monotonic even
// if the server replays an older timestamp. The incoming string is stored
// verbatim so the next pull echoes exactly what the server issued.
func (s *Store) SetLastSyncTimestamp(ctx context.Context, ts string) error {
	if ts == "" {
		return nil
	}
	current, err := s.LastSyncTimestamp(ctx)
	if err != nil {
		return err
	}
	if current != "" && !timestampAfter(ts, current) {
		return nil
	}
	return s.SetMetadata(ctx, keyLastSyncTimestamp, ts)
}

// timestampAfter reports whether a is chronologically after b. Both are
// RFC 3339 strings from the server, which is not consistent about fractional
// seconds ("...T10:00:00Z" vs "...T10:00:00.500Z"), so a lexical compare
// would misorder them. Unparseable values fall back to lexical order.
func timestampAfter(a, b string) bool {
	ta, errA := time.Parse(time.RFC3339, a)
	tb, errB := time.Parse(time.RFC3339, b)
	if errA != nil || errB != nil {
		return a > b
	}
	return ta.After(tb)
}

// NeedsInitialSync reports whether a full historical pull is required.
// Absence of the watermark is the sole signal; this also covers the
// data-was-wiped-on-logout case, since ClearAll removes the watermark.
func (s *Store) NeedsInitialSync(ctx context.Context) (bool, error) {
	ts, err := s.LastSyncTimestamp(ctx)
	if err != nil {
		return true, err
	}
	return ts == "", nil
}

// MarkInitialSyncComplete persists the server-issued watermark and flags the
// baseline pull as done.
func (s *Store) MarkInitialSyncComplete(ctx context.Context, serverTimestamp string) error {
	if err := s.SetLastSyncTimestamp(ctx, serverTimestamp); err != nil {
		return err
	}
	return s.SetMetadata(ctx, keyInitialSyncComplete, "true")
}

// DeviceRegistered reports whether the register-device call has succeeded
// for this install.
func (s *Store) DeviceRegistered(ctx context.Context) (bool, error) {
	v, err := s.Metadata(ctx, keyDeviceRegistered)
	if err != nil {
		return false, err
	}
	return v == "true", nil
}

// MarkDeviceRegistered records a successful device registration.
func (s *Store) MarkDeviceRegistered(ctx context.Context) error {
	return s.SetMetadata(ctx, keyDeviceRegistered, "true")
}
