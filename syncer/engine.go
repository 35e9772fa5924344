// Copyright 2025 Panacea Project
// SPDX-License-Identifier: Apache-2.0

// Package syncer implements the bidirectional reconciliation protocol
// between the local store and the central sync server: device registration,
// initial and incremental pull, and batch push of queued mutations.
package syncer

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/Kamwaro-001/panacea/domain"
	"github.com/Kamwaro-001/panacea/localstore"
	"github.com/Kamwaro-001/panacea/opqueue"
)

// sentinelEpoch is the "since" value for the initial full pull.
const sentinelEpoch = "2000-01-01T00:00:00.000Z"

// DeviceInfo describes the device for server-side fleet tracking.
type DeviceInfo struct {
	Name       string
	Model      string
	OSVersion  string
	AppVersion string
}

// Engine coordinates the local store and mutation queue with the remote
// server. A single sync cycle runs at a time; scheduling is the caller's
// concern (see the scheduler package).
type Engine struct {
	store  *localstore.Store
	queue  *opqueue.Queue
	api    *APIClient
	device DeviceInfo
	logger *slog.Logger
}

// NewEngine wires an engine from its injected collaborators.
func NewEngine(store *localstore.Store, queue *opqueue.Queue, api *APIClient,
	device DeviceInfo, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: store, queue: queue, api: api, device: device, logger: logger}
}

// RegisterDevice registers the install-scoped device id with the server.
// Idempotent: once the registration flag is set locally, it is a no-op.
func (e *Engine) RegisterDevice(ctx context.Context) error {
	registered, err := e.store.DeviceRegistered(ctx)
	if err != nil {
		return err
	}
	if registered {
		return nil
	}

	deviceID, err := e.store.DeviceID(ctx)
	if err != nil {
		return err
	}
	req := &RegisterDeviceRequest{
		DeviceID:    deviceID,
		DeviceName:  e.device.Name,
		DeviceModel: e.device.Model,
		OSVersion:   e.device.OSVersion,
		AppVersion:  e.device.AppVersion,
	}
	if err := e.api.RegisterDevice(ctx, req); err != nil {
		return fmt.Errorf("device registration failed: %w", err)
	}
	if err := e.store.MarkDeviceRegistered(ctx); err != nil {
		return err
	}
	e.logger.Info("device registered", "device_id", deviceID, "device_name", e.device.Name)
	return nil
}

// InitialSync performs the full historical pull from the sentinel epoch,
// optionally scoped to the caller's ward, then persists the server-issued
// watermark and marks initial sync complete.
func (e *Engine) InitialSync(ctx context.Context, wardID string) error {
	deviceID, err := e.store.DeviceID(ctx)
	if err != nil {
		return err
	}
	e.logger.Info("starting initial sync", "ward_id", wardID)

	changes, err := e.api.FetchChanges(ctx, sentinelEpoch, deviceID, wardID)
	if err != nil {
		return fmt.Errorf("initial sync failed: %w", err)
	}
	if err := e.applyServerChanges(ctx, changes); err != nil {
		return err
	}
	if err := e.store.MarkInitialSyncComplete(ctx, changes.ServerTimestamp); err != nil {
		return err
	}

	e.logger.Info("initial sync complete",
		"users", len(changes.Users), "wards", len(changes.Wards),
		"patients", len(changes.Patients), "barcodes", len(changes.Barcodes),
		"orders", len(changes.Orders), "events", len(changes.Events))
	return nil
}

// PullChanges fetches server-side deltas since the stored watermark and
// applies them. With no watermark present it falls back to InitialSync.
// The watermark advances only after the whole response has been applied.
func (e *Engine) PullChanges(ctx context.Context, wardID string) error {
	since, err := e.store.LastSyncTimestamp(ctx)
	if err != nil {
		return err
	}
	if since == "" {
		return e.InitialSync(ctx, wardID)
	}

	deviceID, err := e.store.DeviceID(ctx)
	if err != nil {
		return err
	}
	changes, err := e.api.FetchChanges(ctx, since, deviceID, wardID)
	if err != nil {
		return fmt.Errorf("pull sync failed: %w", err)
	}
	if err := e.applyServerChanges(ctx, changes); err != nil {
		return err
	}
	return e.store.SetLastSyncTimestamp(ctx, changes.ServerTimestamp)
}

// applyServerChanges applies a pull response in one transaction: entity
// upserts first, then the explicit deletion lists. Deletions run last so a
// row appearing in both lists within the same window stays deleted.
func (e *Engine) applyServerChanges(ctx context.Context, changes *ChangesResponse) error {
	return e.store.WithTx(ctx, func(tx *sql.Tx) error {
		for _, u := range changes.Users {
			if err := e.store.UpsertUserTx(ctx, tx, u); err != nil {
				return err
			}
		}
		for _, w := range changes.Wards {
			if err := e.store.UpsertWardTx(ctx, tx, w); err != nil {
				return err
			}
		}
		for _, p := range changes.Patients {
			if err := e.store.UpsertPatientTx(ctx, tx, p); err != nil {
				return err
			}
		}
		for _, b := range changes.Barcodes {
			if err := e.store.UpsertBarcodeTx(ctx, tx, b); err != nil {
				return err
			}
		}
		for _, o := range changes.Orders {
			if err := e.store.UpsertOrderTx(ctx, tx, o); err != nil {
				return err
			}
		}
		for _, ev := range changes.Events {
			if err := e.store.UpsertEventTx(ctx, tx, ev); err != nil {
				return err
			}
		}

		del := changes.Deletions
		for et, ids := range map[domain.EntityType][]string{
			domain.EntityUser:    del.Users,
			domain.EntityWard:    del.Wards,
			domain.EntityPatient: del.Patients,
			domain.EntityBarcode: del.Barcodes,
			domain.EntityOrder:   del.Orders,
			domain.EntityEvent:   del.Events,
		} {
			for _, id := range ids {
				if err := e.store.DeleteRowTx(ctx, tx, et, id); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// PushChanges submits the retryable queue as one batch and reconciles the
// queue and entity versions from the per-operation results.
func (e *Engine) PushChanges(ctx context.Context) (SyncResult, error) {
	ops, err := e.queue.ListRetryable(ctx)
	if err != nil {
		return SyncResult{}, err
	}
	if len(ops) == 0 {
		return SyncResult{Success: true}, nil
	}

	deviceID, err := e.store.DeviceID(ctx)
	if err != nil {
		return SyncResult{}, err
	}
	e.logger.Info("pushing operations", "count", len(ops))

	byID := make(map[string]opqueue.Operation, len(ops))
	batch := make([]BatchOperation, 0, len(ops))
	for _, op := range ops {
		if err := e.queue.MarkSyncing(ctx, op.OperationID); err != nil {
			return SyncResult{}, err
		}
		data, err := json.Marshal(op.Data)
		if err != nil {
			return SyncResult{}, fmt.Errorf("failed to encode operation %s: %w", op.OperationID, err)
		}
		byID[op.OperationID] = op
		batch = append(batch, BatchOperation{
			OperationID:     op.OperationID,
			Type:            string(op.Type),
			EntityType:      string(op.EntityType),
			EntityID:        op.EntityID,
			Data:            data,
			ExpectedVersion: op.ExpectedVersion,
		})
	}

	resp, err := e.api.PushBatch(ctx, &BatchRequest{DeviceID: deviceID, Operations: batch})
	if err != nil {
		// Transport-level failure: the whole batch goes back to the
		// retryable pool.
		for _, op := range ops {
			if mErr := e.queue.MarkFailed(ctx, op.OperationID, err.Error()); mErr != nil {
				e.logger.Error("failed to record push failure", "operation_id", op.OperationID, "error", mErr)
			}
		}
		return SyncResult{}, fmt.Errorf("push sync failed: %w", err)
	}

	result := SyncResult{
		SuccessCount:  resp.SuccessCount,
		ConflictCount: resp.ConflictCount,
		ErrorCount:    resp.ErrorCount,
	}
	for _, r := range resp.Results {
		switch r.Status {
		case ResultSuccess:
			if err := e.queue.MarkSucceeded(ctx, r.OperationID); err != nil {
				return result, err
			}
			if r.Version != nil {
				op, ok := byID[r.OperationID]
				if ok {
					entityID := r.EntityID
					if entityID == "" {
						entityID = op.EntityID
					}
					if err := e.store.SetRowVersion(ctx, op.EntityType, entityID, *r.Version); err != nil {
						return result, err
					}
				}
			}
		case ResultConflict:
			conflictID := r.ConflictID
			if conflictID == "" {
				conflictID = "unknown"
			}
			if err := e.queue.MarkConflict(ctx, r.OperationID, conflictID); err != nil {
				return result, err
			}
			result.Conflicts = append(result.Conflicts, fmt.Sprintf("%s: %s", r.OperationID, r.Error))
		default:
			errMsg := r.Error
			if errMsg == "" {
				errMsg = "unknown error"
			}
			if err := e.queue.MarkFailed(ctx, r.OperationID, errMsg); err != nil {
				return result, err
			}
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %s", r.OperationID, errMsg))
		}
	}

	// The batch response carries the same logical clock as pull.
	if err := e.store.SetLastSyncTimestamp(ctx, resp.ServerTimestamp); err != nil {
		return result, err
	}

	result.Success = resp.ErrorCount == 0
	e.logger.Info("push sync complete",
		"success", resp.SuccessCount, "conflicts", resp.ConflictCount, "errors", resp.ErrorCount)
	return result, nil
}

// SyncWithServer runs one full cycle: best-effort device registration, pull
// (initial or incremental) and then push. Pull precedes push so the device
// absorbs authoritative remote state before asserting its own pending
// changes, which minimizes spurious conflicts after a long offline stretch.
func (e *Engine) SyncWithServer(ctx context.Context, wardID string) (SyncResult, error) {
	if err := e.RegisterDevice(ctx); err != nil {
		// Registration exists for server-side audit; its failure never
		// blocks the device from syncing. Retried on the next cycle.
		e.logger.Warn("device registration failed, continuing", "error", err)
	}

	needsInitial, err := e.store.NeedsInitialSync(ctx)
	if err != nil {
		return SyncResult{}, err
	}
	if needsInitial {
		if err := e.InitialSync(ctx, wardID); err != nil {
			return SyncResult{}, err
		}
	} else {
		if err := e.PullChanges(ctx, wardID); err != nil {
			return SyncResult{}, err
		}
	}

	return e.PushChanges(ctx)
}

// EnsureReady is the login-time flow: register (best effort) and run the
// initial sync when the watermark is absent. The caller treats an error as
// a recoverable warning, not a login failure; the watermark stays empty so
// the next connectivity event retries the full pull.
func (e *Engine) EnsureReady(ctx context.Context, wardID string) error {
	if err := e.RegisterDevice(ctx); err != nil {
		e.logger.Warn("device registration failed, continuing", "error", err)
	}
	needsInitial, err := e.store.NeedsInitialSync(ctx)
	if err != nil {
		return err
	}
	if !needsInitial {
		return nil
	}
	return e.InitialSync(ctx, wardID)
}
