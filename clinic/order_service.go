// Copyright 2025 Panacea Project
// SPDX-License-Identifier: Apache-2.0

package clinic

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Kamwaro-001/panacea/domain"
	"github.com/Kamwaro-001/panacea/localstore"
	"github.com/Kamwaro-001/panacea/opqueue"
)

// CreateOrderInput is a new prescription.
type CreateOrderInput struct {
	PatientID    string
	PrescriberID string
	Drug         string
	Dose         string
	Route        string
	Frequency    string
	StartTime    time.Time
}

// OrderService reads and mutates medication orders, offline-first.
type OrderService struct {
	store  *localstore.Store
	queue  *opqueue.Queue
	logger *slog.Logger
}

func NewOrderService(store *localstore.Store, queue *opqueue.Queue, logger *slog.Logger) *OrderService {
	if logger == nil {
		logger = slog.Default()
	}
	return &OrderService{store: store, queue: queue, logger: logger}
}

// ByPatient lists all non-deleted orders for a patient, active or not.
func (s *OrderService) ByPatient(ctx context.Context, patientID string) ([]domain.MedicationOrder, error) {
	return s.store.OrdersByPatient(ctx, patientID)
}

// ActiveByPatient lists the orders a nurse can administer against.
func (s *OrderService) ActiveByPatient(ctx context.Context, patientID string) ([]domain.MedicationOrder, error) {
	return s.store.ActiveOrdersByPatient(ctx, patientID)
}

// Create records a new active order locally and queues its creation.
func (s *OrderService) Create(ctx context.Context, in CreateOrderInput) (domain.MedicationOrder, error) {
	now := time.Now().UTC()
	start := in.StartTime
	if start.IsZero() {
		start = now
	}
	order := domain.MedicationOrder{
		SyncMeta: domain.SyncMeta{
			ID:             uuid.New().String(),
			Version:        1,
			LastModifiedAt: now,
			CreatedAt:      now,
		},
		PatientID:    in.PatientID,
		PrescriberID: in.PrescriberID,
		Drug:         in.Drug,
		Dose:         in.Dose,
		Route:        in.Route,
		Frequency:    in.Frequency,
		StartTime:    start,
		Status:       domain.OrderActive,
	}
	if err := s.store.UpsertOrder(ctx, order); err != nil {
		return domain.MedicationOrder{}, fmt.Errorf("failed to create order: %w", err)
	}

	startStr := start.Format(time.RFC3339Nano)
	status := domain.OrderActive
	payload := domain.OrderPayload{
		PatientID:    &order.PatientID,
		PrescriberID: &order.PrescriberID,
		Drug:         &order.Drug,
		Dose:         &order.Dose,
		Route:        &order.Route,
		Frequency:    &order.Frequency,
		StartTime:    &startStr,
		Status:       &status,
	}
	if _, err := s.queue.Enqueue(ctx, domain.OpCreate, order.ID, payload, nil); err != nil {
		s.logger.Error("failed to queue order creation", "order_id", order.ID, "error", err)
	}

	s.logger.Info("order created", "order_id", order.ID, "patient_id", order.PatientID, "drug", order.Drug)
	return order, nil
}

// Stop ends an active order. The end time is stamped locally and the update
// is queued with the version the caller saw.
func (s *OrderService) Stop(ctx context.Context, orderID string) (domain.MedicationOrder, error) {
	order, err := s.store.Order(ctx, orderID)
	if err != nil {
		return domain.MedicationOrder{}, err
	}
	expectedVersion := order.Version

	now := time.Now().UTC()
	order.Status = domain.OrderStopped
	order.EndTime = &now
	order.LastModifiedAt = now
	if err := s.store.UpsertOrder(ctx, order); err != nil {
		return domain.MedicationOrder{}, fmt.Errorf("failed to stop order: %w", err)
	}

	endStr := now.Format(time.RFC3339Nano)
	status := domain.OrderStopped
	payload := domain.OrderPayload{Status: &status, EndTime: &endStr}
	if _, err := s.queue.Enqueue(ctx, domain.OpUpdate, orderID, payload, &expectedVersion); err != nil {
		s.logger.Error("failed to queue order stop", "order_id", orderID, "error", err)
	}

	s.logger.Info("order stopped", "order_id", orderID)
	return order, nil
}
