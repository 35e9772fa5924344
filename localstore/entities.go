// Copyright 2025 Panacea Project
// SPDX-License-Identifier: Apache-2.0

package localstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Kamwaro-001/panacea/domain"
)

// ErrNotFound is returned by single-row getters when no live row matches.
var ErrNotFound = sql.ErrNoRows

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Entity upserts use INSERT OR REPLACE keyed by id so re-applying the same
// pull response is idempotent: no duplicate rows, the row simply converges
// to the server state again.

func upsertUser(ctx context.Context, e execer, u domain.User) error {
	_, err := e.ExecContext(ctx, `
		INSERT OR REPLACE INTO users
		  (id, staff_id, name, role, is_active, version, deleted_at, last_modified_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.StaffID, u.Name, string(u.Role), boolToInt(u.IsActive),
		u.Version, fmtTimePtr(u.DeletedAt), fmtTime(u.LastModifiedAt), fmtTime(u.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to upsert user %s: %w", u.ID, err)
	}
	return nil
}

func upsertWard(ctx context.Context, e execer, w domain.Ward) error {
	_, err := e.ExecContext(ctx, `
		INSERT OR REPLACE INTO wards
		  (id, name, description, version, deleted_at, last_modified_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		w.ID, w.Name, nullable(w.Description),
		w.Version, fmtTimePtr(w.DeletedAt), fmtTime(w.LastModifiedAt), fmtTime(w.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to upsert ward %s: %w", w.ID, err)
	}
	return nil
}

func upsertPatient(ctx context.Context, e execer, p domain.Patient) error {
	_, err := e.ExecContext(ctx, `
		INSERT OR REPLACE INTO patients
		  (id, name, photo, bed_number, diagnosis, ward_id, attending_doctor_id, attending_consultant_id,
		   version, deleted_at, last_modified_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, nullable(p.Photo), nullable(p.BedNumber), nullable(p.Diagnosis),
		nullable(p.WardID), nullable(p.AttendingDoctorID), nullable(p.AttendingConsultantID),
		p.Version, fmtTimePtr(p.DeletedAt), fmtTime(p.LastModifiedAt), fmtTime(p.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to upsert patient %s: %w", p.ID, err)
	}
	return nil
}

func upsertBarcode(ctx context.Context, e execer, b domain.Barcode) error {
	_, err := e.ExecContext(ctx, `
		INSERT OR REPLACE INTO barcodes
		  (id, barcode_id_string, status, patient_id, version, deleted_at, last_modified_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.BarcodeIDString, string(b.Status), nullable(b.PatientID),
		b.Version, fmtTimePtr(b.DeletedAt), fmtTime(b.LastModifiedAt), fmtTime(b.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to upsert barcode %s: %w", b.ID, err)
	}
	return nil
}

func upsertOrder(ctx context.Context, e execer, o domain.MedicationOrder) error {
	_, err := e.ExecContext(ctx, `
		INSERT OR REPLACE INTO orders
		  (id, patient_id, prescriber_id, drug, dose, route, frequency, start_time, end_time, status,
		   version, deleted_at, last_modified_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.PatientID, o.PrescriberID, o.Drug, o.Dose, o.Route, o.Frequency,
		fmtTime(o.StartTime), fmtTimePtr(o.EndTime), string(o.Status),
		o.Version, fmtTimePtr(o.DeletedAt), fmtTime(o.LastModifiedAt), fmtTime(o.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to upsert order %s: %w", o.ID, err)
	}
	return nil
}

func upsertEvent(ctx context.Context, e execer, ev domain.AdministrationEvent) error {
	// created_at stores the administration time; fall back to the creation
	// timestamp for rows recorded before administeredAt existed on the wire.
	createdAt := ev.AdministeredAt
	if createdAt.IsZero() {
		createdAt = ev.CreatedAt
	}
	_, err := e.ExecContext(ctx, `
		INSERT OR REPLACE INTO events
		  (id, order_id, patient_id, nurse_id, outcome, vitals_bp, vitals_hr, vitals_temp,
		   vitals_spo2, vitals_pain_score, scanned_barcode_id, reason_code, reason_note,
		   version, deleted_at, last_modified_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.OrderID, ev.PatientID, ev.NurseID, string(ev.Outcome),
		nullable(ev.VitalsBp), nullable(ev.VitalsHr), nullable(ev.VitalsTemp),
		nullable(ev.VitalsSpo2), nullable(ev.VitalsPain),
		nullable(ev.ScannedBarcodeID), nullable(ev.ReasonCode), nullable(ev.ReasonNote),
		ev.Version, fmtTimePtr(ev.DeletedAt), fmtTime(ev.LastModifiedAt), fmtTime(createdAt))
	if err != nil {
		return fmt.Errorf("failed to upsert event %s: %w", ev.ID, err)
	}
	return nil
}

// Transactional variants, used by the sync engine while applying a pull
// response inside a single transaction.

func (s *Store) UpsertUserTx(ctx context.Context, tx *sql.Tx, u domain.User) error {
	return upsertUser(ctx, tx, u)
}

func (s *Store) UpsertWardTx(ctx context.Context, tx *sql.Tx, w domain.Ward) error {
	return upsertWard(ctx, tx, w)
}

func (s *Store) UpsertPatientTx(ctx context.Context, tx *sql.Tx, p domain.Patient) error {
	return upsertPatient(ctx, tx, p)
}

func (s *Store) UpsertBarcodeTx(ctx context.Context, tx *sql.Tx, b domain.Barcode) error {
	return upsertBarcode(ctx, tx, b)
}

func (s *Store) UpsertOrderTx(ctx context.Context, tx *sql.Tx, o domain.MedicationOrder) error {
	return upsertOrder(ctx, tx, o)
}

func (s *Store) UpsertEventTx(ctx context.Context, tx *sql.Tx, ev domain.AdministrationEvent) error {
	return upsertEvent(ctx, tx, ev)
}

// Direct variants, used by the domain services' optimistic local writes.

func (s *Store) UpsertUser(ctx context.Context, u domain.User) error {
	return upsertUser(ctx, s.db, u)
}

func (s *Store) UpsertWard(ctx context.Context, w domain.Ward) error {
	return upsertWard(ctx, s.db, w)
}

func (s *Store) UpsertPatient(ctx context.Context, p domain.Patient) error {
	return upsertPatient(ctx, s.db, p)
}

func (s *Store) UpsertBarcode(ctx context.Context, b domain.Barcode) error {
	return upsertBarcode(ctx, s.db, b)
}

func (s *Store) UpsertOrder(ctx context.Context, o domain.MedicationOrder) error {
	return upsertOrder(ctx, s.db, o)
}

func (s *Store) UpsertEvent(ctx context.Context, ev domain.AdministrationEvent) error {
	return upsertEvent(ctx, s.db, ev)
}

// DeleteRowTx physically removes a row by id. Used only when applying the
// server's explicit deletion lists; local write paths never hard-delete.
func (s *Store) DeleteRowTx(ctx context.Context, tx *sql.Tx, et domain.EntityType, id string) error {
	table, err := domain.TableFor(et)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete %s %s: %w", table, id, err)
	}
	return nil
}

// SetRowVersion writes a server-confirmed version onto an entity row after a
// successful push. A missing row is a no-op.
func (s *Store) SetRowVersion(ctx context.Context, et domain.EntityType, id string, version int64) error {
	table, err := domain.TableFor(et)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `UPDATE `+table+` SET version = ? WHERE id = ?`, version, id); err != nil {
		return fmt.Errorf("failed to set version on %s %s: %w", table, id, err)
	}
	return nil
}

// Read path. Every query filters soft-deleted rows.

func (s *Store) User(ctx context.Context, id string) (domain.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ? AND deleted_at IS NULL`, id)
	return scanUser(row)
}

// ActiveUsers returns all live, active staff users.
func (s *Store) ActiveUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE deleted_at IS NULL AND is_active = 1`)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *Store) Ward(ctx context.Context, id string) (domain.Ward, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+wardColumns+` FROM wards WHERE id = ? AND deleted_at IS NULL`, id)
	return scanWard(row)
}

func (s *Store) Wards(ctx context.Context) ([]domain.Ward, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+wardColumns+` FROM wards WHERE deleted_at IS NULL`)
	if err != nil {
		return nil, fmt.Errorf("failed to query wards: %w", err)
	}
	defer rows.Close()

	var wards []domain.Ward
	for rows.Next() {
		w, err := scanWard(rows)
		if err != nil {
			return nil, err
		}
		wards = append(wards, w)
	}
	return wards, rows.Err()
}

// Patient returns a single patient with its ward and attending staff
// hydrated via secondary lookups.
func (s *Store) Patient(ctx context.Context, id string) (domain.Patient, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+patientColumns+` FROM patients WHERE id = ? AND deleted_at IS NULL`, id)
	p, err := scanPatient(row)
	if err != nil {
		return domain.Patient{}, err
	}
	if err := s.hydratePatient(ctx, &p); err != nil {
		return domain.Patient{}, err
	}
	return p, nil
}

// hydratePatient fills the relation pointers. A missing or soft-deleted
// parent leaves the pointer nil rather than failing the read; the parent may
// simply arrive in a later pull window.
func (s *Store) hydratePatient(ctx context.Context, p *domain.Patient) error {
	if p.WardID != "" {
		if w, err := s.Ward(ctx, p.WardID); err == nil {
			p.Ward = &w
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}
	}
	if p.AttendingDoctorID != "" {
		if u, err := s.User(ctx, p.AttendingDoctorID); err == nil {
			p.AttendingDoctor = &u
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}
	}
	if p.AttendingConsultantID != "" {
		if u, err := s.User(ctx, p.AttendingConsultantID); err == nil {
			p.AttendingConsultant = &u
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}
	}
	return nil
}

// PatientsByWard returns the live patients of a ward, each carrying the ward
// relation (looked up once for the whole set).
func (s *Store) PatientsByWard(ctx context.Context, wardID string) ([]domain.Patient, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+patientColumns+` FROM patients WHERE ward_id = ? AND deleted_at IS NULL`, wardID)
	if err != nil {
		return nil, fmt.Errorf("failed to query patients: %w", err)
	}
	defer rows.Close()

	var patients []domain.Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, err
		}
		patients = append(patients, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(patients) > 0 {
		if w, err := s.Ward(ctx, wardID); err == nil {
			for i := range patients {
				patients[i].Ward = &w
			}
		} else if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	return patients, nil
}

func (s *Store) Barcode(ctx context.Context, id string) (domain.Barcode, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+barcodeColumns+` FROM barcodes WHERE id = ? AND deleted_at IS NULL`, id)
	return scanBarcode(row)
}

// BarcodeByString looks a barcode up by its scanned identifier string.
func (s *Store) BarcodeByString(ctx context.Context, barcodeString string) (domain.Barcode, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+barcodeColumns+` FROM barcodes WHERE barcode_id_string = ? AND deleted_at IS NULL`, barcodeString)
	return scanBarcode(row)
}

func (s *Store) Barcodes(ctx context.Context) ([]domain.Barcode, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+barcodeColumns+` FROM barcodes WHERE deleted_at IS NULL`)
	if err != nil {
		return nil, fmt.Errorf("failed to query barcodes: %w", err)
	}
	defer rows.Close()

	var barcodes []domain.Barcode
	for rows.Next() {
		b, err := scanBarcode(rows)
		if err != nil {
			return nil, err
		}
		barcodes = append(barcodes, b)
	}
	return barcodes, rows.Err()
}

func (s *Store) Order(ctx context.Context, id string) (domain.MedicationOrder, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = ? AND deleted_at IS NULL`, id)
	return scanOrder(row)
}

func (s *Store) OrdersByPatient(ctx context.Context, patientID string) ([]domain.MedicationOrder, error) {
	return s.queryOrders(ctx,
		`SELECT `+orderColumns+` FROM orders
		 WHERE patient_id = ? AND deleted_at IS NULL ORDER BY created_at DESC`, patientID)
}

func (s *Store) ActiveOrdersByPatient(ctx context.Context, patientID string) ([]domain.MedicationOrder, error) {
	return s.queryOrders(ctx,
		`SELECT `+orderColumns+` FROM orders
		 WHERE patient_id = ? AND status = 'active' AND deleted_at IS NULL ORDER BY created_at DESC`, patientID)
}

func (s *Store) queryOrders(ctx context.Context, query string, args ...any) ([]domain.MedicationOrder, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	var orders []domain.MedicationOrder
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func (s *Store) Event(ctx context.Context, id string) (domain.AdministrationEvent, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = ? AND deleted_at IS NULL`, id)
	return scanEvent(row)
}

func (s *Store) EventsByPatient(ctx context.Context, patientID string) ([]domain.AdministrationEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM events
		 WHERE patient_id = ? AND deleted_at IS NULL ORDER BY created_at DESC`, patientID)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	return collectEvents(rows)
}

func (s *Store) EventsByOrder(ctx context.Context, orderID string) ([]domain.AdministrationEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM events
		 WHERE order_id = ? AND deleted_at IS NULL ORDER BY created_at DESC`, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	return collectEvents(rows)
}

func collectEvents(rows *sql.Rows) ([]domain.AdministrationEvent, error) {
	var events []domain.AdministrationEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
