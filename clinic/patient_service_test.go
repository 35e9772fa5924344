// Copyright 2025 Panacea Project
// SPDX-License-Identifier: Apache-2.0

package clinic

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Kamwaro-001/panacea/domain"
	"github.com/Kamwaro-001/panacea/localstore"
)

func TestPatientUpdateAppliesPatchAndQueuesVersion(t *testing.T) {
	store, queue, logger := newTestDeps(t)
	svc := NewPatientService(store, queue, logger)
	ctx := context.Background()

	patient := domain.Patient{
		SyncMeta:  seedMeta("pat-1"),
		Name:      "Patient One",
		BedNumber: "B-1",
		Diagnosis: "pneumonia",
	}
	patient.Version = 5
	require.NoError(t, store.UpsertPatient(ctx, patient))

	bed := "B-7"
	updated, err := svc.Update(ctx, "pat-1", domain.PatientPayload{BedNumber: &bed})
	require.NoError(t, err)
	require.Equal(t, "B-7", updated.BedNumber)
	// Untouched fields survive a partial patch.
	require.Equal(t, "Patient One", updated.Name)
	require.Equal(t, "pneumonia", updated.Diagnosis)

	ops, err := queue.ListRetryable(ctx)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	require.Equal(t, domain.OpUpdate, ops[0].Type)
	require.Equal(t, domain.EntityPatient, ops[0].EntityType)
	require.NotNil(t, ops[0].ExpectedVersion)
	require.Equal(t, int64(5), *ops[0].ExpectedVersion)

	payload, ok := ops[0].Data.(domain.PatientPayload)
	require.True(t, ok)
	require.Equal(t, "B-7", *payload.BedNumber)
	require.Nil(t, payload.Name)
}

func TestPatientUpdateSurvivesQueueFailure(t *testing.T) {
	store, queue, logger := newTestDeps(t)
	svc := NewPatientService(store, queue, logger)
	ctx := context.Background()

	require.NoError(t, store.UpsertPatient(ctx, domain.Patient{
		SyncMeta: seedMeta("pat-1"), Name: "Patient One", BedNumber: "B-1",
	}))
	breakQueue(t, store)

	// The row is already updated on disk; a queueing failure must not
	// surface as a failed edit.
	bed := "B-7"
	updated, err := svc.Update(ctx, "pat-1", domain.PatientPayload{BedNumber: &bed})
	require.NoError(t, err)
	require.Equal(t, "B-7", updated.BedNumber)

	stored, err := store.Patient(ctx, "pat-1")
	require.NoError(t, err)
	require.Equal(t, "B-7", stored.BedNumber)
}

func TestPatientUpdateUnknownPatient(t *testing.T) {
	store, queue, logger := newTestDeps(t)
	svc := NewPatientService(store, queue, logger)

	bed := "B-7"
	_, err := svc.Update(context.Background(), "missing", domain.PatientPayload{BedNumber: &bed})
	require.ErrorIs(t, err, localstore.ErrNotFound)
}

func TestPatientByWardAndByID(t *testing.T) {
	store, queue, logger := newTestDeps(t)
	svc := NewPatientService(store, queue, logger)
	ctx := context.Background()

	require.NoError(t, store.UpsertWard(ctx, domain.Ward{SyncMeta: seedMeta("ward-1"), Name: "ICU"}))
	p := domain.Patient{SyncMeta: seedMeta("pat-1"), Name: "Patient One", WardID: "ward-1"}
	require.NoError(t, store.UpsertPatient(ctx, p))

	byWard, err := svc.ByWard(ctx, "ward-1")
	require.NoError(t, err)
	require.Len(t, byWard, 1)
	require.NotNil(t, byWard[0].Ward)

	byID, err := svc.ByID(ctx, "pat-1")
	require.NoError(t, err)
	require.Equal(t, "ICU", byID.Ward.Name)
}
