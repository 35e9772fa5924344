// Copyright 2025 Panacea Project
// SPDX-License-Identifier: Apache-2.0

// Package clinic provides the domain services the app's screens call:
// recording medication administrations, scanning and linking wristband
// barcodes, and browsing patients, wards and orders.
//
// Every write follows the same offline-first shape: apply optimistically to
// the local store, enqueue the mutation for the sync engine, and when the
// device happens to be online, attempt a best-effort immediate submit whose
// failure is swallowed because the queued operation is the durable record.
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
	"github.com/Kamwaro-001/panacea/scheduler"
	"github.com/Kamwaro-001/panacea/syncer"
)

// AdministrationInput captures a bedside administration: who gave what to
// whom, the outcome, and any vitals taken at the time.
type AdministrationInput struct {
	OrderID          string
	PatientID        string
	NurseID          string
	Outcome          domain.Outcome
	VitalsBp         string
	VitalsHr         string
	VitalsTemp       string
	VitalsSpo2       string
	VitalsPain       string
	ScannedBarcodeID string
	ReasonCode       string
	ReasonNote       string
}

// EventService records and lists medication administration events. Recording
// must work with no connectivity at all; that path touches only the local
// store and the queue.
type EventService struct {
	store   *localstore.Store
	queue   *opqueue.Queue
	api     *syncer.APIClient
	monitor scheduler.Monitor
	logger  *slog.Logger
}

// NewEventService wires an event service. api and monitor may be nil, which
// disables the best-effort immediate submit.
func NewEventService(store *localstore.Store, queue *opqueue.Queue, api *syncer.APIClient,
	monitor scheduler.Monitor, logger *slog.Logger) *EventService {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventService{store: store, queue: queue, api: api, monitor: monitor, logger: logger}
}

// RecordAdministration persists an administration event locally and queues
// it for sync. The local write is the only step that can fail the call: once
// the row is on disk the event is considered recorded, and a queueing error
// is logged rather than surfaced so the nurse is never blocked mid-round.
func (s *EventService) RecordAdministration(ctx context.Context, in AdministrationInput) (domain.AdministrationEvent, error) {
	now := time.Now().UTC()
	ev := domain.AdministrationEvent{
		SyncMeta: domain.SyncMeta{
			ID:             uuid.New().String(),
			Version:        1,
			LastModifiedAt: now,
			CreatedAt:      now,
		},
		OrderID:          in.OrderID,
		PatientID:        in.PatientID,
		NurseID:          in.NurseID,
		Outcome:          in.Outcome,
		VitalsBp:         in.VitalsBp,
		VitalsHr:         in.VitalsHr,
		VitalsTemp:       in.VitalsTemp,
		VitalsSpo2:       in.VitalsSpo2,
		VitalsPain:       in.VitalsPain,
		ScannedBarcodeID: in.ScannedBarcodeID,
		ReasonCode:       in.ReasonCode,
		ReasonNote:       in.ReasonNote,
		AdministeredAt:   now,
	}

	if err := s.store.UpsertEvent(ctx, ev); err != nil {
		return domain.AdministrationEvent{}, fmt.Errorf("failed to record administration: %w", err)
	}

	payload := domain.EventPayload{
		ID:               ev.ID,
		OrderID:          ev.OrderID,
		PatientID:        ev.PatientID,
		NurseID:          ev.NurseID,
		Outcome:          ev.Outcome,
		VitalsBp:         ev.VitalsBp,
		VitalsHr:         ev.VitalsHr,
		VitalsTemp:       ev.VitalsTemp,
		VitalsSpo2:       ev.VitalsSpo2,
		VitalsPain:       ev.VitalsPain,
		ScannedBarcodeID: ev.ScannedBarcodeID,
		ReasonCode:       ev.ReasonCode,
		ReasonNote:       ev.ReasonNote,
	}
	if _, err := s.queue.Enqueue(ctx, domain.OpCreate, ev.ID, payload, nil); err != nil {
		// The local row exists, so the administration is recorded.
		// Surfacing this error would read as a failed administration
		// to the nurse.
		s.logger.Error("failed to queue administration event", "event_id", ev.ID, "error", err)
	} else {
		s.logger.Info("administration recorded",
			"event_id", ev.ID, "patient_id", ev.PatientID, "order_id", ev.OrderID, "outcome", ev.Outcome)
	}

	if s.api != nil && s.monitor != nil && s.monitor.Online() {
		go s.submitImmediately(context.WithoutCancel(ctx), ev.ID, payload)
	}
	return ev, nil
}

// submitImmediately is the best-effort fast path. Failure is logged and
// otherwise ignored; the queued operation will carry the event in the next
// batch push.
func (s *EventService) submitImmediately(ctx context.Context, eventID string, payload domain.EventPayload) {
	if err := s.api.PostAdminister(ctx, payload); err != nil {
		s.logger.Warn("immediate event submit failed, queued for next sync", "event_id", eventID, "error", err)
		return
	}
	s.logger.Debug("administration event submitted immediately", "event_id", eventID)
}

// ListByPatient returns a patient's administration history, newest first.
func (s *EventService) ListByPatient(ctx context.Context, patientID string) ([]domain.AdministrationEvent, error) {
	return s.store.EventsByPatient(ctx, patientID)
}

// ListByOrder returns all administrations recorded against one order.
func (s *EventService) ListByOrder(ctx context.Context, orderID string) ([]domain.AdministrationEvent, error) {
	return s.store.EventsByOrder(ctx, orderID)
}
