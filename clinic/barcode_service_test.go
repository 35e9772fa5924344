// Copyright 2025 Panacea Project
// SPDX-License-Identifier: Apache-2.0

package clinic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Kamwaro-001/panacea/domain"
	"github.com/Kamwaro-001/panacea/localstore"
	"github.com/Kamwaro-001/panacea/scheduler"
	"github.com/Kamwaro-001/panacea/syncer"
)

func seedMeta(id string) domain.SyncMeta {
	at := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	return domain.SyncMeta{ID: id, Version: 1, LastModifiedAt: at, CreatedAt: at}
}

func seedScanFixtures(t *testing.T, store *localstore.Store) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.UpsertPatient(ctx, domain.Patient{
		SyncMeta: seedMeta("pat-1"), Name: "Patient One",
	}))
	require.NoError(t, store.UpsertBarcode(ctx, domain.Barcode{
		SyncMeta:        seedMeta("bc-1"),
		BarcodeIDString: "WB-0001",
		Status:          domain.BarcodeActive,
		PatientID:       "pat-1",
	}))
	require.NoError(t, store.UpsertOrder(ctx, domain.MedicationOrder{
		SyncMeta:  seedMeta("ord-1"),
		PatientID: "pat-1", PrescriberID: "doc-1",
		Drug: "Amoxicillin", Dose: "500mg", Route: "oral", Frequency: "TDS",
		StartTime: time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC),
		Status:    domain.OrderActive,
	}))
}

func TestScanResolvesFromLocalCacheOffline(t *testing.T) {
	store, queue, logger := newTestDeps(t)
	seedScanFixtures(t, store)
	svc := NewBarcodeService(store, queue, nil, nil, logger)

	res, err := svc.Scan(context.Background(), "WB-0001")
	require.NoError(t, err)
	require.Equal(t, "pat-1", res.Patient.ID)
	require.Len(t, res.ActiveOrders, 1)
	require.Equal(t, "ord-1", res.ActiveOrders[0].ID)
}

func TestScanUnknownBarcodeOffline(t *testing.T) {
	store, queue, logger := newTestDeps(t)
	svc := NewBarcodeService(store, queue, nil, scheduler.NewManualMonitor(false), logger)

	_, err := svc.Scan(context.Background(), "WB-9999")
	require.ErrorIs(t, err, ErrBarcodeNotFound)
}

func TestScanUnlinkedBarcodeOffline(t *testing.T) {
	store, queue, logger := newTestDeps(t)
	require.NoError(t, store.UpsertBarcode(context.Background(), domain.Barcode{
		SyncMeta:        seedMeta("bc-1"),
		BarcodeIDString: "WB-0001",
		Status:          domain.BarcodeActive,
	}))
	svc := NewBarcodeService(store, queue, nil, scheduler.NewManualMonitor(false), logger)

	_, err := svc.Scan(context.Background(), "WB-0001")
	require.ErrorIs(t, err, ErrBarcodeUnlinked)
}

func TestScanFallsBackToServerAndCaches(t *testing.T) {
	store, queue, logger := newTestDeps(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/barcodes/scan/WB-0001", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(syncer.ScannedBarcodeResponse{
			Patient: domain.Patient{SyncMeta: seedMeta("pat-1"), Name: "Patient One"},
			ActiveOrders: []domain.MedicationOrder{{
				SyncMeta:  seedMeta("ord-1"),
				PatientID: "pat-1", PrescriberID: "doc-1",
				Drug: "Amoxicillin", Dose: "500mg", Route: "oral", Frequency: "TDS",
				StartTime: time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC),
				Status:    domain.OrderActive,
			}},
		})
	}))
	t.Cleanup(srv.Close)

	api := syncer.NewAPIClient(srv.URL, nil, logger)
	svc := NewBarcodeService(store, queue, api, scheduler.NewManualMonitor(true), logger)
	ctx := context.Background()

	res, err := svc.Scan(ctx, "WB-0001")
	require.NoError(t, err)
	require.Equal(t, "pat-1", res.Patient.ID)
	require.Len(t, res.ActiveOrders, 1)

	// The response is cached: the same scan now resolves with no server.
	offline := NewBarcodeService(store, queue, nil, nil, logger)
	res, err = offline.Scan(ctx, "WB-0001")
	require.NoError(t, err)
	require.Equal(t, "pat-1", res.Patient.ID)
	require.Len(t, res.ActiveOrders, 1)
}

func TestLinkPatientUpdatesExistingBarcode(t *testing.T) {
	store, queue, logger := newTestDeps(t)
	ctx := context.Background()
	require.NoError(t, store.UpsertBarcode(ctx, domain.Barcode{
		SyncMeta:        seedMeta("bc-1"),
		BarcodeIDString: "WB-0001",
		Status:          domain.BarcodeActive,
	}))
	svc := NewBarcodeService(store, queue, nil, nil, logger)

	require.NoError(t, svc.LinkPatient(ctx, "WB-0001", "pat-1"))

	b, err := store.BarcodeByString(ctx, "WB-0001")
	require.NoError(t, err)
	require.Equal(t, "pat-1", b.PatientID)

	ops, err := queue.ListRetryable(ctx)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	require.Equal(t, domain.OpUpdate, ops[0].Type)
	require.Equal(t, "bc-1", ops[0].EntityID)
	require.NotNil(t, ops[0].ExpectedVersion)
	require.Equal(t, int64(1), *ops[0].ExpectedVersion)
}

func TestLinkPatientCreatesUnknownBarcode(t *testing.T) {
	store, queue, logger := newTestDeps(t)
	ctx := context.Background()
	svc := NewBarcodeService(store, queue, nil, nil, logger)

	require.NoError(t, svc.LinkPatient(ctx, "WB-0002", "pat-1"))

	b, err := store.BarcodeByString(ctx, "WB-0002")
	require.NoError(t, err)
	require.Equal(t, "pat-1", b.PatientID)
	require.Equal(t, domain.BarcodeActive, b.Status)

	ops, err := queue.ListRetryable(ctx)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	require.Equal(t, domain.OpCreate, ops[0].Type)
	require.Nil(t, ops[0].ExpectedVersion)

	payload, ok := ops[0].Data.(domain.BarcodePayload)
	require.True(t, ok)
	require.Equal(t, "WB-0002", *payload.BarcodeIDString)
	require.Equal(t, "pat-1", *payload.PatientID)
}

func TestUnlinkQueuesExplicitEmptyPatientID(t *testing.T) {
	store, queue, logger := newTestDeps(t)
	ctx := context.Background()
	require.NoError(t, store.UpsertBarcode(ctx, domain.Barcode{
		SyncMeta:        seedMeta("bc-1"),
		BarcodeIDString: "WB-0001",
		Status:          domain.BarcodeActive,
		PatientID:       "pat-1",
	}))
	svc := NewBarcodeService(store, queue, nil, nil, logger)

	require.NoError(t, svc.Unlink(ctx, "WB-0001"))

	b, err := store.BarcodeByString(ctx, "WB-0001")
	require.NoError(t, err)
	require.Empty(t, b.PatientID)

	ops, err := queue.ListRetryable(ctx)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	payload, ok := ops[0].Data.(domain.BarcodePayload)
	require.True(t, ok)
	// The cleared link travels as an explicit empty id, distinct from an
	// omitted field.
	require.NotNil(t, payload.PatientID)
	require.Empty(t, *payload.PatientID)
}

func TestBarcodeWritesSurviveQueueFailure(t *testing.T) {
	store, queue, logger := newTestDeps(t)
	ctx := context.Background()
	require.NoError(t, store.UpsertBarcode(ctx, domain.Barcode{
		SyncMeta:        seedMeta("bc-1"),
		BarcodeIDString: "WB-0001",
		Status:          domain.BarcodeActive,
	}))
	breakQueue(t, store)
	svc := NewBarcodeService(store, queue, nil, nil, logger)

	require.NoError(t, svc.LinkPatient(ctx, "WB-0001", "pat-1"))
	require.NoError(t, svc.LinkPatient(ctx, "WB-0002", "pat-1"))
	require.NoError(t, svc.Unlink(ctx, "WB-0001"))

	b, err := store.BarcodeByString(ctx, "WB-0001")
	require.NoError(t, err)
	require.Empty(t, b.PatientID)

	b, err = store.BarcodeByString(ctx, "WB-0002")
	require.NoError(t, err)
	require.Equal(t, "pat-1", b.PatientID)
}

func TestUnlinkUnknownBarcode(t *testing.T) {
	store, queue, logger := newTestDeps(t)
	svc := NewBarcodeService(store, queue, nil, nil, logger)

	err := svc.Unlink(context.Background(), "WB-9999")
	require.ErrorIs(t, err, ErrBarcodeNotFound)
}
