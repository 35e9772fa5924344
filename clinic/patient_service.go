// Copyright 2025 Panacea Project
// SPDX-License-Identifier: Apache-2.0

package clinic

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Kamwaro-001/panacea/domain"
	"github.com/Kamwaro-001/panacea/localstore"
	"github.com/Kamwaro-001/panacea/opqueue"
)

// PatientService reads patients from the local store and applies
// offline-first profile updates.
type PatientService struct {
	store  *localstore.Store
	queue  *opqueue.Queue
	logger *slog.Logger
}

func NewPatientService(store *localstore.Store, queue *opqueue.Queue, logger *slog.Logger) *PatientService {
	if logger == nil {
		logger = slog.Default()
	}
	return &PatientService{store: store, queue: queue, logger: logger}
}

// ByWard lists the non-deleted patients of a ward, with their ward and
// attending staff hydrated.
func (s *PatientService) ByWard(ctx context.Context, wardID string) ([]domain.Patient, error) {
	return s.store.PatientsByWard(ctx, wardID)
}

// ByID returns a single hydrated patient. localstore.ErrNotFound when the
// id is unknown or soft-deleted.
func (s *PatientService) ByID(ctx context.Context, patientID string) (domain.Patient, error) {
	return s.store.Patient(ctx, patientID)
}

// Update applies a partial profile update optimistically and queues it with
// the version the caller saw, so a concurrent server-side edit surfaces as a
// conflict instead of being silently overwritten.
func (s *PatientService) Update(ctx context.Context, patientID string, patch domain.PatientPayload) (domain.Patient, error) {
	patient, err := s.store.Patient(ctx, patientID)
	if err != nil {
		return domain.Patient{}, err
	}
	expectedVersion := patient.Version

	if patch.Name != nil {
		patient.Name = *patch.Name
	}
	if patch.Photo != nil {
		patient.Photo = *patch.Photo
	}
	if patch.BedNumber != nil {
		patient.BedNumber = *patch.BedNumber
	}
	if patch.Diagnosis != nil {
		patient.Diagnosis = *patch.Diagnosis
	}
	if patch.WardID != nil {
		patient.WardID = *patch.WardID
	}
	if patch.AttendingDoctorID != nil {
		patient.AttendingDoctorID = *patch.AttendingDoctorID
	}
	if patch.AttendingConsultantID != nil {
		patient.AttendingConsultantID = *patch.AttendingConsultantID
	}
	patient.LastModifiedAt = time.Now().UTC()

	if err := s.store.UpsertPatient(ctx, patient); err != nil {
		return domain.Patient{}, fmt.Errorf("failed to update patient: %w", err)
	}
	// The local row is updated; a queueing failure must not make the edit
	// look like it never happened.
	if _, err := s.queue.Enqueue(ctx, domain.OpUpdate, patientID, patch, &expectedVersion); err != nil {
		s.logger.Error("failed to queue patient update", "patient_id", patientID, "error", err)
	}

	s.logger.Info("patient updated", "patient_id", patientID)
	return s.store.Patient(ctx, patientID)
}
