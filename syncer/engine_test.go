// Copyright 2025 Panacea Project
// SPDX-License-Identifier: Apache-2.0

package syncer

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Kamwaro-001/panacea/domain"
	"github.com/Kamwaro-001/panacea/localstore"
	"github.com/Kamwaro-001/panacea/opqueue"
)

// fakeServer is a minimal in-memory sync server for engine tests.
type fakeServer struct {
	mu            sync.Mutex
	registerCalls int
	failRegister  bool
	failBatch     bool
	sinceSeen     []string
	wardSeen      []string
	changes       ChangesResponse
	batchFn       func(req BatchRequest) BatchResponse

	srv *httptest.Server
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	f := &fakeServer{}
	mux := http.NewServeMux()
	mux.HandleFunc("/sync/register-device", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.registerCalls++
		fail := f.failRegister
		f.mu.Unlock()
		if fail {
			http.Error(w, "registry unavailable", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/sync/changes", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.sinceSeen = append(f.sinceSeen, r.URL.Query().Get("since"))
		f.wardSeen = append(f.wardSeen, r.URL.Query().Get("wardId"))
		changes := f.changes
		f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(changes)
	})
	mux.HandleFunc("/sync/batch", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		fail := f.failBatch
		fn := f.batchFn
		f.mu.Unlock()
		if fail {
			http.Error(w, "database unavailable", http.StatusInternalServerError)
			return
		}
		var req BatchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(fn(req))
	})
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func newTestEngine(t *testing.T, f *fakeServer) (*Engine, *localstore.Store, *opqueue.Queue) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := localstore.Open(":memory:", logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	queue := opqueue.New(store, logger)
	api := NewAPIClient(f.srv.URL, StaticToken("test-token"), logger)
	engine := NewEngine(store, queue, api, DeviceInfo{
		Name: "test-device", Model: "test", OSVersion: "1", AppVersion: "1",
	}, logger)
	return engine, store, queue
}

func syncTime(hour int) time.Time {
	return time.Date(2025, 6, 1, hour, 0, 0, 0, time.UTC)
}

func syncedWard(id string) domain.Ward {
	return domain.Ward{
		SyncMeta: domain.SyncMeta{
			ID: id, Version: 1, LastModifiedAt: syncTime(9), CreatedAt: syncTime(8),
		},
		Name: "Ward " + id,
	}
}

func TestInitialSyncAppliesSnapshot(t *testing.T) {
	f := newFakeServer(t)
	f.changes = ChangesResponse{
		ServerTimestamp: "2025-06-01T10:00:00.000Z",
		Users: []domain.User{{
			SyncMeta: domain.SyncMeta{ID: "u1", Version: 1, LastModifiedAt: syncTime(9), CreatedAt: syncTime(8)},
			StaffID:  "s1", Name: "Nurse One", Role: domain.RoleNurse, IsActive: true,
		}},
		Wards: []domain.Ward{syncedWard("ward-1")},
		Patients: []domain.Patient{{
			SyncMeta: domain.SyncMeta{ID: "pat-1", Version: 1, LastModifiedAt: syncTime(9), CreatedAt: syncTime(8)},
			Name:     "Patient One", WardID: "ward-1",
		}},
	}
	engine, store, _ := newTestEngine(t, f)
	ctx := context.Background()

	require.NoError(t, engine.InitialSync(ctx, "ward-1"))

	// The full pull starts from the sentinel epoch, scoped to the ward.
	require.Equal(t, []string{sentinelEpoch}, f.sinceSeen)
	require.Equal(t, []string{"ward-1"}, f.wardSeen)

	p, err := store.Patient(ctx, "pat-1")
	require.NoError(t, err)
	require.Equal(t, "Patient One", p.Name)
	require.NotNil(t, p.Ward)

	needs, err := store.NeedsInitialSync(ctx)
	require.NoError(t, err)
	require.False(t, needs)

	ts, err := store.LastSyncTimestamp(ctx)
	require.NoError(t, err)
	require.Equal(t, "2025-06-01T10:00:00.000Z", ts)
}

func TestPullChangesFallsBackToInitialSync(t *testing.T) {
	f := newFakeServer(t)
	f.changes = ChangesResponse{ServerTimestamp: "2025-06-01T10:00:00.000Z"}
	engine, store, _ := newTestEngine(t, f)
	ctx := context.Background()

	require.NoError(t, engine.PullChanges(ctx, ""))
	require.Equal(t, []string{sentinelEpoch}, f.sinceSeen)

	needs, err := store.NeedsInitialSync(ctx)
	require.NoError(t, err)
	require.False(t, needs)
}

func TestPullAppliesDeletionsAfterUpserts(t *testing.T) {
	f := newFakeServer(t)
	engine, store, _ := newTestEngine(t, f)
	ctx := context.Background()

	require.NoError(t, store.UpsertWard(ctx, syncedWard("ward-1")))
	require.NoError(t, store.SetLastSyncTimestamp(ctx, "2025-06-01T09:00:00.000Z"))

	// ward-2 was created and deleted inside the same pull window: it arrives
	// in both the upsert array and the deletion list, and must end deleted.
	f.changes = ChangesResponse{
		ServerTimestamp: "2025-06-01T10:00:00.000Z",
		Wards:           []domain.Ward{syncedWard("ward-2"), syncedWard("ward-3")},
		Deletions:       Deletions{Wards: []string{"ward-1", "ward-2"}},
	}

	require.NoError(t, engine.PullChanges(ctx, ""))
	require.Equal(t, []string{"2025-06-01T09:00:00.000Z"}, f.sinceSeen)

	_, err := store.Ward(ctx, "ward-1")
	require.ErrorIs(t, err, localstore.ErrNotFound)
	_, err = store.Ward(ctx, "ward-2")
	require.ErrorIs(t, err, localstore.ErrNotFound)
	_, err = store.Ward(ctx, "ward-3")
	require.NoError(t, err)

	ts, err := store.LastSyncTimestamp(ctx)
	require.NoError(t, err)
	require.Equal(t, "2025-06-01T10:00:00.000Z", ts)
}

func TestPushReconcilesPerOperationResults(t *testing.T) {
	f := newFakeServer(t)
	engine, store, queue := newTestEngine(t, f)
	ctx := context.Background()

	patient := domain.Patient{
		SyncMeta: domain.SyncMeta{ID: "pat-1", Version: 3, LastModifiedAt: syncTime(9), CreatedAt: syncTime(8)},
		Name:     "Patient One",
	}
	require.NoError(t, store.UpsertPatient(ctx, patient))

	evOp, err := queue.Enqueue(ctx, domain.OpCreate, "ev-1",
		domain.EventPayload{ID: "ev-1", OrderID: "ord-1", PatientID: "pat-1", NurseID: "u1", Outcome: domain.OutcomeGiven}, nil)
	require.NoError(t, err)

	version := int64(3)
	name := "Renamed"
	patOp, err := queue.Enqueue(ctx, domain.OpUpdate, "pat-1",
		domain.PatientPayload{Name: &name}, &version)
	require.NoError(t, err)

	staleVersion := int64(1)
	dose := "250mg"
	ordOp, err := queue.Enqueue(ctx, domain.OpUpdate, "ord-1",
		domain.OrderPayload{Dose: &dose}, &staleVersion)
	require.NoError(t, err)

	f.mu.Lock()
	f.batchFn = func(req BatchRequest) BatchResponse {
		require.Len(t, req.Operations, 3)
		// FIFO order must be preserved on the wire.
		require.Equal(t, evOp, req.Operations[0].OperationID)
		require.Equal(t, patOp, req.Operations[1].OperationID)
		require.Equal(t, ordOp, req.Operations[2].OperationID)
		v1, v4 := int64(1), int64(4)
		return BatchResponse{
			ServerTimestamp: "2025-06-01T11:00:00.000Z",
			SuccessCount:    2,
			ConflictCount:   1,
			Results: []OperationResult{
				{OperationID: evOp, Status: ResultSuccess, EntityID: "ev-1", Version: &v1},
				{OperationID: patOp, Status: ResultSuccess, EntityID: "pat-1", Version: &v4},
				{OperationID: ordOp, Status: ResultConflict, ConflictID: "conflict-9", Error: "version mismatch"},
			},
		}
	}
	f.mu.Unlock()

	result, err := engine.PushChanges(ctx)
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, 2, result.SuccessCount)
	require.Equal(t, 1, result.ConflictCount)
	require.Len(t, result.Conflicts, 1)

	// Successes leave the queue; the conflict is parked for manual review.
	retryable, err := queue.ListRetryable(ctx)
	require.NoError(t, err)
	require.Empty(t, retryable)

	conflicted, err := queue.ListConflicted(ctx)
	require.NoError(t, err)
	require.Len(t, conflicted, 1)
	require.Equal(t, ordOp, conflicted[0].OperationID)

	// Server-issued versions land on the local rows.
	p, err := store.Patient(ctx, "pat-1")
	require.NoError(t, err)
	require.Equal(t, int64(4), p.Version)

	ts, err := store.LastSyncTimestamp(ctx)
	require.NoError(t, err)
	require.Equal(t, "2025-06-01T11:00:00.000Z", ts)
}

func TestPushTransportFailureRequeuesBatch(t *testing.T) {
	f := newFakeServer(t)
	f.failBatch = true
	engine, store, queue := newTestEngine(t, f)
	ctx := context.Background()

	require.NoError(t, store.SetLastSyncTimestamp(ctx, "2025-06-01T09:00:00.000Z"))

	for _, id := range []string{"ev-1", "ev-2"} {
		_, err := queue.Enqueue(ctx, domain.OpCreate, id,
			domain.EventPayload{ID: id, Outcome: domain.OutcomeGiven}, nil)
		require.NoError(t, err)
	}

	_, err := engine.PushChanges(ctx)
	require.Error(t, err)

	// Every operation returns to the retryable pool with one attempt burned.
	ops, err := queue.ListRetryable(ctx)
	require.NoError(t, err)
	require.Len(t, ops, 2)
	for _, op := range ops {
		require.Equal(t, domain.StatusFailed, op.Status)
		require.Equal(t, 1, op.RetryCount)
		require.NotEmpty(t, op.LastError)
	}

	// The watermark must not advance on a failed push.
	ts, err := store.LastSyncTimestamp(ctx)
	require.NoError(t, err)
	require.Equal(t, "2025-06-01T09:00:00.000Z", ts)
}

func TestPushWithEmptyQueueIsNoOp(t *testing.T) {
	f := newFakeServer(t)
	engine, _, _ := newTestEngine(t, f)

	result, err := engine.PushChanges(context.Background())
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Zero(t, result.SuccessCount)
}

func TestRegisterDeviceIsIdempotent(t *testing.T) {
	f := newFakeServer(t)
	engine, _, _ := newTestEngine(t, f)
	ctx := context.Background()

	require.NoError(t, engine.RegisterDevice(ctx))
	require.NoError(t, engine.RegisterDevice(ctx))

	f.mu.Lock()
	defer f.mu.Unlock()
	require.Equal(t, 1, f.registerCalls)
}

func TestSyncWithServerToleratesRegistrationFailure(t *testing.T) {
	f := newFakeServer(t)
	f.failRegister = true
	f.changes = ChangesResponse{ServerTimestamp: "2025-06-01T10:00:00.000Z"}
	engine, store, _ := newTestEngine(t, f)
	ctx := context.Background()

	result, err := engine.SyncWithServer(ctx, "")
	require.NoError(t, err)
	require.True(t, result.Success)

	// Registration stays unfinished and will be retried next cycle.
	registered, err := store.DeviceRegistered(ctx)
	require.NoError(t, err)
	require.False(t, registered)
}
