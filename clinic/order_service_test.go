// Copyright 2025 Panacea Project
// SPDX-License-Identifier: Apache-2.0

package clinic

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Kamwaro-001/panacea/domain"
)

func TestCreateOrderOffline(t *testing.T) {
	store, queue, logger := newTestDeps(t)
	svc := NewOrderService(store, queue, logger)
	ctx := context.Background()

	order, err := svc.Create(ctx, CreateOrderInput{
		PatientID:    "pat-1",
		PrescriberID: "doc-1",
		Drug:         "Paracetamol",
		Dose:         "1g",
		Route:        "oral",
		Frequency:    "QDS",
	})
	require.NoError(t, err)
	require.Equal(t, domain.OrderActive, order.Status)
	require.False(t, order.StartTime.IsZero())

	active, err := svc.ActiveByPatient(ctx, "pat-1")
	require.NoError(t, err)
	require.Len(t, active, 1)

	ops, err := queue.ListRetryable(ctx)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	require.Equal(t, domain.OpCreate, ops[0].Type)
	require.Equal(t, domain.EntityOrder, ops[0].EntityType)

	payload, ok := ops[0].Data.(domain.OrderPayload)
	require.True(t, ok)
	require.Equal(t, "Paracetamol", *payload.Drug)
	require.Equal(t, domain.OrderActive, *payload.Status)
	require.NotNil(t, payload.StartTime)
}

func TestOrderWritesSurviveQueueFailure(t *testing.T) {
	store, queue, logger := newTestDeps(t)
	svc := NewOrderService(store, queue, logger)
	ctx := context.Background()

	breakQueue(t, store)

	order, err := svc.Create(ctx, CreateOrderInput{
		PatientID:    "pat-1",
		PrescriberID: "doc-1",
		Drug:         "Paracetamol",
		Dose:         "1g",
		Route:        "oral",
		Frequency:    "QDS",
	})
	require.NoError(t, err)

	stopped, err := svc.Stop(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, domain.OrderStopped, stopped.Status)

	stored, err := store.Order(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, domain.OrderStopped, stored.Status)
}

func TestStopOrderQueuesVersionedUpdate(t *testing.T) {
	store, queue, logger := newTestDeps(t)
	svc := NewOrderService(store, queue, logger)
	ctx := context.Background()

	require.NoError(t, store.UpsertOrder(ctx, domain.MedicationOrder{
		SyncMeta:  domain.SyncMeta{ID: "ord-1", Version: 4, LastModifiedAt: time.Now().UTC(), CreatedAt: time.Now().UTC()},
		PatientID: "pat-1", PrescriberID: "doc-1",
		Drug: "Paracetamol", Dose: "1g", Route: "oral", Frequency: "QDS",
		StartTime: time.Now().UTC(),
		Status:    domain.OrderActive,
	}))

	stopped, err := svc.Stop(ctx, "ord-1")
	require.NoError(t, err)
	require.Equal(t, domain.OrderStopped, stopped.Status)
	require.NotNil(t, stopped.EndTime)

	active, err := svc.ActiveByPatient(ctx, "pat-1")
	require.NoError(t, err)
	require.Empty(t, active)

	all, err := svc.ByPatient(ctx, "pat-1")
	require.NoError(t, err)
	require.Len(t, all, 1)

	ops, err := queue.ListRetryable(ctx)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	require.Equal(t, domain.OpUpdate, ops[0].Type)
	require.NotNil(t, ops[0].ExpectedVersion)
	require.Equal(t, int64(4), *ops[0].ExpectedVersion)

	payload, ok := ops[0].Data.(domain.OrderPayload)
	require.True(t, ok)
	require.Equal(t, domain.OrderStopped, *payload.Status)
	require.NotNil(t, payload.EndTime)
}
