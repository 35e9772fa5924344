// Copyright 2025 Panacea Project
// SPDX-License-Identifier: Apache-2.0

package clinic

import (
	"context"
	"errors"
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

var (
	// ErrBarcodeNotFound means the barcode is neither in the local cache
	// nor (when reachable) known to the server.
	ErrBarcodeNotFound = errors.New("barcode not found")
	// ErrBarcodeUnlinked means the barcode exists but has no patient bound
	// to it yet.
	ErrBarcodeUnlinked = errors.New("barcode not linked to a patient")
)

// ScanResult is what a successful wristband scan resolves to.
type ScanResult struct {
	Patient      domain.Patient
	ActiveOrders []domain.MedicationOrder
}

// BarcodeService resolves wristband scans and manages barcode-to-patient
// links. Scans are served from the local cache first so identification works
// at the bedside with no connectivity; the server is only consulted on a
// local miss.
type BarcodeService struct {
	store   *localstore.Store
	queue   *opqueue.Queue
	api     *syncer.APIClient
	monitor scheduler.Monitor
	logger  *slog.Logger
}

// NewBarcodeService wires a barcode service. api and monitor may be nil,
// which makes the service purely local.
func NewBarcodeService(store *localstore.Store, queue *opqueue.Queue, api *syncer.APIClient,
	monitor scheduler.Monitor, logger *slog.Logger) *BarcodeService {
	if logger == nil {
		logger = slog.Default()
	}
	return &BarcodeService{store: store, queue: queue, api: api, monitor: monitor, logger: logger}
}

// Scan resolves a scanned wristband to its patient and active orders. The
// local cache is authoritative when it has an answer; a miss falls back to
// the server if reachable, and the response is cached for the next offline
// scan of the same band.
func (s *BarcodeService) Scan(ctx context.Context, barcodeString string) (ScanResult, error) {
	barcode, err := s.store.BarcodeByString(ctx, barcodeString)
	switch {
	case err == nil && barcode.PatientID != "":
		patient, err := s.store.Patient(ctx, barcode.PatientID)
		if err == nil {
			orders, err := s.store.ActiveOrdersByPatient(ctx, barcode.PatientID)
			if err != nil {
				return ScanResult{}, err
			}
			s.logger.Debug("barcode resolved locally", "barcode", barcodeString, "patient_id", patient.ID)
			return ScanResult{Patient: patient, ActiveOrders: orders}, nil
		}
		if !errors.Is(err, localstore.ErrNotFound) {
			return ScanResult{}, err
		}
		// Linked barcode with no cached patient row: fall through to the
		// server lookup.
	case err == nil:
		// Known barcode, no patient bound. The server may know better if a
		// link happened since the last pull.
		if s.api == nil || s.monitor == nil || !s.monitor.Online() {
			return ScanResult{}, ErrBarcodeUnlinked
		}
	case errors.Is(err, localstore.ErrNotFound):
		// Fall through to the server lookup.
	default:
		return ScanResult{}, err
	}

	if s.api == nil || s.monitor == nil || !s.monitor.Online() {
		return ScanResult{}, ErrBarcodeNotFound
	}
	resp, err := s.api.ScanBarcode(ctx, barcodeString)
	if err != nil {
		return ScanResult{}, fmt.Errorf("barcode lookup failed: %w", err)
	}
	if err := s.cacheScan(ctx, barcodeString, resp); err != nil {
		s.logger.Warn("failed to cache scanned barcode data", "barcode", barcodeString, "error", err)
	}
	return ScanResult{Patient: resp.Patient, ActiveOrders: resp.ActiveOrders}, nil
}

// cacheScan stores a server scan response so the same band resolves offline
// next time.
func (s *BarcodeService) cacheScan(ctx context.Context, barcodeString string, resp *syncer.ScannedBarcodeResponse) error {
	if err := s.store.UpsertPatient(ctx, resp.Patient); err != nil {
		return err
	}
	for _, o := range resp.ActiveOrders {
		if err := s.store.UpsertOrder(ctx, o); err != nil {
			return err
		}
	}

	now := time.Now().UTC()
	barcode, err := s.store.BarcodeByString(ctx, barcodeString)
	if errors.Is(err, localstore.ErrNotFound) {
		barcode = domain.Barcode{
			SyncMeta: domain.SyncMeta{
				ID:             uuid.New().String(),
				Version:        1,
				LastModifiedAt: now,
				CreatedAt:      now,
			},
			BarcodeIDString: barcodeString,
		}
	} else if err != nil {
		return err
	}
	barcode.Status = domain.BarcodeActive
	barcode.PatientID = resp.Patient.ID
	barcode.LastModifiedAt = now
	return s.store.UpsertBarcode(ctx, barcode)
}

// LinkPatient binds a barcode to a patient, offline-first: the local row is
// written (created when the band is new) and the mutation queued. When
// online, the link is additionally submitted immediately, best effort.
func (s *BarcodeService) LinkPatient(ctx context.Context, barcodeString, patientID string) error {
	now := time.Now().UTC()
	status := domain.BarcodeActive

	existing, err := s.store.BarcodeByString(ctx, barcodeString)
	switch {
	case err == nil:
		existing.PatientID = patientID
		existing.Status = status
		existing.LastModifiedAt = now
		if err := s.store.UpsertBarcode(ctx, existing); err != nil {
			return fmt.Errorf("failed to link barcode: %w", err)
		}
		payload := domain.BarcodePayload{Status: &status, PatientID: &patientID}
		if _, err := s.queue.Enqueue(ctx, domain.OpUpdate, existing.ID, payload, &existing.Version); err != nil {
			s.logger.Error("failed to queue barcode link", "barcode", barcodeString, "error", err)
		}
	case errors.Is(err, localstore.ErrNotFound):
		barcode := domain.Barcode{
			SyncMeta: domain.SyncMeta{
				ID:             uuid.New().String(),
				Version:        1,
				LastModifiedAt: now,
				CreatedAt:      now,
			},
			BarcodeIDString: barcodeString,
			Status:          status,
			PatientID:       patientID,
		}
		if err := s.store.UpsertBarcode(ctx, barcode); err != nil {
			return fmt.Errorf("failed to create barcode: %w", err)
		}
		payload := domain.BarcodePayload{
			BarcodeIDString: &barcodeString,
			Status:          &status,
			PatientID:       &patientID,
		}
		if _, err := s.queue.Enqueue(ctx, domain.OpCreate, barcode.ID, payload, nil); err != nil {
			s.logger.Error("failed to queue barcode creation", "barcode", barcodeString, "error", err)
		}
	default:
		return err
	}

	s.logger.Info("barcode linked", "barcode", barcodeString, "patient_id", patientID)
	if s.api != nil && s.monitor != nil && s.monitor.Online() {
		go func(ctx context.Context) {
			req := &syncer.LinkBarcodeRequest{PatientID: patientID, BarcodeIDString: barcodeString}
			if err := s.api.LinkBarcode(ctx, req); err != nil {
				s.logger.Warn("immediate barcode link failed, queued for next sync",
					"barcode", barcodeString, "error", err)
			}
		}(context.WithoutCancel(ctx))
	}
	return nil
}

// Unlink detaches a barcode from its patient. The queued payload carries an
// explicit empty patient id, which the server interprets as "clear the link"
// as opposed to "field untouched".
func (s *BarcodeService) Unlink(ctx context.Context, barcodeString string) error {
	barcode, err := s.store.BarcodeByString(ctx, barcodeString)
	if errors.Is(err, localstore.ErrNotFound) {
		return ErrBarcodeNotFound
	}
	if err != nil {
		return err
	}

	barcode.PatientID = ""
	barcode.LastModifiedAt = time.Now().UTC()
	if err := s.store.UpsertBarcode(ctx, barcode); err != nil {
		return fmt.Errorf("failed to unlink barcode: %w", err)
	}

	empty := ""
	payload := domain.BarcodePayload{PatientID: &empty}
	if _, err := s.queue.Enqueue(ctx, domain.OpUpdate, barcode.ID, payload, &barcode.Version); err != nil {
		s.logger.Error("failed to queue barcode unlink", "barcode", barcodeString, "error", err)
	}
	s.logger.Info("barcode unlinked", "barcode", barcodeString)
	return nil
}
