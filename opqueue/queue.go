// Copyright 2025 Panacea Project
// SPDX-License-Identifier: Apache-2.0

// Package opqueue implements the durable queue of locally-originated
// mutations awaiting transmission to the sync server.
//
// The queue records intent to mutate remote state and tracks that intent's
// outcome independently from the entity data itself. Rows survive process
// restarts; ordering for push batches is FIFO by enqueue time, because later
// operations may depend on earlier ones succeeding first.
package opqueue

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Kamwaro-001/panacea/domain"
	"github.com/Kamwaro-001/panacea/localstore"
)

// MaxRetries is the automatic retry ceiling. An operation that fails this
// many times drops out of the retryable set but stays queryable with its
// last error.
const MaxRetries = 5

// Operation is a queued mutation.
type Operation struct {
	OperationID     string
	Type            domain.OperationType
	EntityType      domain.EntityType
	EntityID        string
	Data            domain.MutationData
	ExpectedVersion *int64
	CreatedAt       time.Time
	RetryCount      int
	LastError       string
	Status          domain.OperationStatus
}

// Queue persists operations in the store's pending_operations table.
type Queue struct {
	store  *localstore.Store
	logger *slog.Logger
}

// New creates a queue backed by the given store.
func New(store *localstore.Store, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{store: store, logger: logger}
}

// Enqueue records a mutation with a fresh operation id and status pending.
// expectedVersion carries the version the caller believed was current, for
// update/delete; nil for create.
func (q *Queue) Enqueue(ctx context.Context, opType domain.OperationType, entityID string,
	data domain.MutationData, expectedVersion *int64) (string, error) {

	payload, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("failed to encode %s payload: %w", data.EntityType(), err)
	}

	operationID := uuid.New().String()
	var ev any
	if expectedVersion != nil {
		ev = *expectedVersion
	}
	_, err = q.store.DB().ExecContext(ctx, `
		INSERT INTO pending_operations
		  (operation_id, type, entity_type, entity_id, data, expected_version, created_at, retry_count, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?)`,
		operationID, string(opType), string(data.EntityType()), entityID,
		string(payload), ev, time.Now().UnixMilli(), string(domain.StatusPending))
	if err != nil {
		return "", fmt.Errorf("failed to enqueue operation: %w", err)
	}

	q.logger.Debug("queued operation",
		"operation_id", operationID, "type", opType, "entity_type", data.EntityType(), "entity_id", entityID)
	return operationID, nil
}

const operationColumns = `operation_id, type, entity_type, entity_id, data, expected_version, created_at, retry_count, last_error, status`

func scanOperation(rows *sql.Rows) (Operation, error) {
	var op Operation
	var opType, entityType, status, data string
	var expectedVersion sql.NullInt64
	var lastError sql.NullString
	var createdAt int64
	if err := rows.Scan(&op.OperationID, &opType, &entityType, &op.EntityID, &data,
		&expectedVersion, &createdAt, &op.RetryCount, &lastError, &status); err != nil {
		return Operation{}, fmt.Errorf("failed to scan operation row: %w", err)
	}
	op.Type = domain.OperationType(opType)
	op.EntityType = domain.EntityType(entityType)
	op.Status = domain.OperationStatus(status)
	op.CreatedAt = time.UnixMilli(createdAt)
	if expectedVersion.Valid {
		v := expectedVersion.Int64
		op.ExpectedVersion = &v
	}
	if lastError.Valid {
		op.LastError = lastError.String
	}
	decoded, err := domain.DecodeMutationData(op.EntityType, []byte(data))
	if err != nil {
		return Operation{}, err
	}
	op.Data = decoded
	return op, nil
}

func (q *Queue) list(ctx context.Context, query string, args ...any) ([]Operation, error) {
	rows, err := q.store.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query operations: %w", err)
	}
	defer rows.Close()

	var ops []Operation
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	return ops, rows.Err()
}

// ListRetryable returns the operations eligible for the next push batch in
// FIFO submission order. Conflict-status rows and rows at the retry ceiling
// are excluded.
func (q *Queue) ListRetryable(ctx context.Context) ([]Operation, error) {
	return q.list(ctx, `
		SELECT `+operationColumns+` FROM pending_operations
		WHERE status IN (?, ?) AND retry_count < ?
		ORDER BY created_at ASC, rowid ASC`,
		string(domain.StatusPending), string(domain.StatusFailed), MaxRetries)
}

// ListConflicted returns operations awaiting manual conflict resolution.
func (q *Queue) ListConflicted(ctx context.Context) ([]Operation, error) {
	return q.list(ctx, `
		SELECT `+operationColumns+` FROM pending_operations
		WHERE status = ?
		ORDER BY created_at ASC, rowid ASC`, string(domain.StatusConflict))
}

// Count returns the number of operations in {pending, failed, syncing},
// driving "N pending" indicators.
func (q *Queue) Count(ctx context.Context) (int, error) {
	var n int
	err := q.store.DB().QueryRowContext(ctx, `
		SELECT COUNT(*) FROM pending_operations WHERE status IN (?, ?, ?)`,
		string(domain.StatusPending), string(domain.StatusFailed), string(domain.StatusSyncing)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count operations: %w", err)
	}
	return n, nil
}

// Status transitions are keyed on operation_id and treat a missing row as a
// no-op, so duplicate delivery of a push-result payload is harmless.

// MarkSyncing flags an operation as claimed by an in-flight push batch.
func (q *Queue) MarkSyncing(ctx context.Context, operationID string) error {
	_, err := q.store.DB().ExecContext(ctx,
		`UPDATE pending_operations SET status = ? WHERE operation_id = ?`,
		string(domain.StatusSyncing), operationID)
	if err != nil {
		return fmt.Errorf("failed to mark operation syncing: %w", err)
	}
	return nil
}

// MarkSucceeded removes an accepted operation from the queue.
func (q *Queue) MarkSucceeded(ctx context.Context, operationID string) error {
	_, err := q.store.DB().ExecContext(ctx,
		`DELETE FROM pending_operations WHERE operation_id = ?`, operationID)
	if err != nil {
		return fmt.Errorf("failed to remove operation: %w", err)
	}
	return nil
}

// MarkFailed records a transient failure, increments the retry count and
// returns the operation to the retryable pool (until the ceiling).
func (q *Queue) MarkFailed(ctx context.Context, operationID, errMsg string) error {
	_, err := q.store.DB().ExecContext(ctx, `
		UPDATE pending_operations
		SET status = ?, retry_count = retry_count + 1, last_error = ?
		WHERE operation_id = ?`,
		string(domain.StatusFailed), errMsg, operationID)
	if err != nil {
		return fmt.Errorf("failed to mark operation failed: %w", err)
	}
	q.logger.Warn("operation failed", "operation_id", operationID, "error", errMsg)
	return nil
}

// MarkConflict records a server version mismatch. Conflicted operations are
// terminal until resolved outside the sync core; automatic retry skips them.
func (q *Queue) MarkConflict(ctx context.Context, operationID, conflictID string) error {
	_, err := q.store.DB().ExecContext(ctx, `
		UPDATE pending_operations
		SET status = ?, last_error = ?
		WHERE operation_id = ?`,
		string(domain.StatusConflict), "conflict id: "+conflictID, operationID)
	if err != nil {
		return fmt.Errorf("failed to mark operation conflicted: %w", err)
	}
	q.logger.Warn("operation conflict", "operation_id", operationID, "conflict_id", conflictID)
	return nil
}

// ClearAll drops every queued operation. Used by logout flows together with
// the store's ClearAll.
func (q *Queue) ClearAll(ctx context.Context) error {
	if _, err := q.store.DB().ExecContext(ctx, `DELETE FROM pending_operations`); err != nil {
		return fmt.Errorf("failed to clear operations: %w", err)
	}
	return nil
}
