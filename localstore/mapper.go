// Copyright 2025 Panacea Project
// SPDX-License-Identifier: Apache-2.0

package localstore

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/Kamwaro-001/panacea/domain"
)

// Pure row-to-domain conversion. Timestamps are stored as RFC 3339 UTC text,
// booleans as 0/1 integers, absent optionals as NULL. Relation hydration is
// performed by the store getters via secondary lookups; nothing here joins.

type rowScanner interface {
	Scan(dest ...any) error
}

func fmtTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func fmtTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return fmtTime(*t)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t, nil
}

func parseTimePtr(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func text(ns sql.NullString) string {
	if !ns.Valid {
		return ""
	}
	return ns.String
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

const userColumns = `id, staff_id, name, role, is_active, version, deleted_at, last_modified_at, created_at`

func scanUser(sc rowScanner) (domain.User, error) {
	var u domain.User
	var isActive int
	var deletedAt sql.NullString
	var lastModified, created string
	if err := sc.Scan(&u.ID, &u.StaffID, &u.Name, &u.Role, &isActive,
		&u.Version, &deletedAt, &lastModified, &created); err != nil {
		return domain.User{}, fmt.Errorf("failed to scan user row: %w", err)
	}
	u.IsActive = isActive == 1
	var err error
	if u.DeletedAt, err = parseTimePtr(deletedAt); err != nil {
		return domain.User{}, err
	}
	if u.LastModifiedAt, err = parseTime(lastModified); err != nil {
		return domain.User{}, err
	}
	if u.CreatedAt, err = parseTime(created); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

const wardColumns = `id, name, description, version, deleted_at, last_modified_at, created_at`

func scanWard(sc rowScanner) (domain.Ward, error) {
	var w domain.Ward
	var description, deletedAt sql.NullString
	var lastModified, created string
	if err := sc.Scan(&w.ID, &w.Name, &description,
		&w.Version, &deletedAt, &lastModified, &created); err != nil {
		return domain.Ward{}, fmt.Errorf("failed to scan ward row: %w", err)
	}
	w.Description = text(description)
	var err error
	if w.DeletedAt, err = parseTimePtr(deletedAt); err != nil {
		return domain.Ward{}, err
	}
	if w.LastModifiedAt, err = parseTime(lastModified); err != nil {
		return domain.Ward{}, err
	}
	if w.CreatedAt, err = parseTime(created); err != nil {
		return domain.Ward{}, err
	}
	return w, nil
}

const patientColumns = `id, name, photo, bed_number, diagnosis, ward_id, attending_doctor_id, attending_consultant_id, version, deleted_at, last_modified_at, created_at`

func scanPatient(sc rowScanner) (domain.Patient, error) {
	var p domain.Patient
	var photo, bedNumber, diagnosis, wardID, doctorID, consultantID, deletedAt sql.NullString
	var lastModified, created string
	if err := sc.Scan(&p.ID, &p.Name, &photo, &bedNumber, &diagnosis, &wardID, &doctorID, &consultantID,
		&p.Version, &deletedAt, &lastModified, &created); err != nil {
		return domain.Patient{}, fmt.Errorf("failed to scan patient row: %w", err)
	}
	p.Photo = text(photo)
	p.BedNumber = text(bedNumber)
	p.Diagnosis = text(diagnosis)
	p.WardID = text(wardID)
	p.AttendingDoctorID = text(doctorID)
	p.AttendingConsultantID = text(consultantID)
	var err error
	if p.DeletedAt, err = parseTimePtr(deletedAt); err != nil {
		return domain.Patient{}, err
	}
	if p.LastModifiedAt, err = parseTime(lastModified); err != nil {
		return domain.Patient{}, err
	}
	if p.CreatedAt, err = parseTime(created); err != nil {
		return domain.Patient{}, err
	}
	return p, nil
}

const barcodeColumns = `id, barcode_id_string, status, patient_id, version, deleted_at, last_modified_at, created_at`

func scanBarcode(sc rowScanner) (domain.Barcode, error) {
	var b domain.Barcode
	var patientID, deletedAt sql.NullString
	var lastModified, created string
	if err := sc.Scan(&b.ID, &b.BarcodeIDString, &b.Status, &patientID,
		&b.Version, &deletedAt, &lastModified, &created); err != nil {
		return domain.Barcode{}, fmt.Errorf("failed to scan barcode row: %w", err)
	}
	b.PatientID = text(patientID)
	var err error
	if b.DeletedAt, err = parseTimePtr(deletedAt); err != nil {
		return domain.Barcode{}, err
	}
	if b.LastModifiedAt, err = parseTime(lastModified); err != nil {
		return domain.Barcode{}, err
	}
	if b.CreatedAt, err = parseTime(created); err != nil {
		return domain.Barcode{}, err
	}
	return b, nil
}

const orderColumns = `id, patient_id, prescriber_id, drug, dose, route, frequency, start_time, end_time, status, version, deleted_at, last_modified_at, created_at`

func scanOrder(sc rowScanner) (domain.MedicationOrder, error) {
	var o domain.MedicationOrder
	var endTime, deletedAt sql.NullString
	var startTime, lastModified, created string
	if err := sc.Scan(&o.ID, &o.PatientID, &o.PrescriberID, &o.Drug, &o.Dose, &o.Route, &o.Frequency,
		&startTime, &endTime, &o.Status,
		&o.Version, &deletedAt, &lastModified, &created); err != nil {
		return domain.MedicationOrder{}, fmt.Errorf("failed to scan order row: %w", err)
	}
	var err error
	if o.StartTime, err = parseTime(startTime); err != nil {
		return domain.MedicationOrder{}, err
	}
	if o.EndTime, err = parseTimePtr(endTime); err != nil {
		return domain.MedicationOrder{}, err
	}
	if o.DeletedAt, err = parseTimePtr(deletedAt); err != nil {
		return domain.MedicationOrder{}, err
	}
	if o.LastModifiedAt, err = parseTime(lastModified); err != nil {
		return domain.MedicationOrder{}, err
	}
	if o.CreatedAt, err = parseTime(created); err != nil {
		return domain.MedicationOrder{}, err
	}
	return o, nil
}

const eventColumns = `id, order_id, patient_id, nurse_id, outcome, vitals_bp, vitals_hr, vitals_temp, vitals_spo2, vitals_pain_score, scanned_barcode_id, reason_code, reason_note, version, deleted_at, last_modified_at, created_at`

func scanEvent(sc rowScanner) (domain.AdministrationEvent, error) {
	var e domain.AdministrationEvent
	var bp, hr, temp, spo2, pain, barcodeID, reasonCode, reasonNote, deletedAt sql.NullString
	var lastModified, created string
	if err := sc.Scan(&e.ID, &e.OrderID, &e.PatientID, &e.NurseID, &e.Outcome,
		&bp, &hr, &temp, &spo2, &pain, &barcodeID, &reasonCode, &reasonNote,
		&e.Version, &deletedAt, &lastModified, &created); err != nil {
		return domain.AdministrationEvent{}, fmt.Errorf("failed to scan event row: %w", err)
	}
	e.VitalsBp = text(bp)
	e.VitalsHr = text(hr)
	e.VitalsTemp = text(temp)
	e.VitalsSpo2 = text(spo2)
	e.VitalsPain = text(pain)
	e.ScannedBarcodeID = text(barcodeID)
	e.ReasonCode = text(reasonCode)
	e.ReasonNote = text(reasonNote)
	var err error
	if e.DeletedAt, err = parseTimePtr(deletedAt); err != nil {
		return domain.AdministrationEvent{}, err
	}
	if e.LastModifiedAt, err = parseTime(lastModified); err != nil {
		return domain.AdministrationEvent{}, err
	}
	if e.CreatedAt, err = parseTime(created); err != nil {
		return domain.AdministrationEvent{}, err
	}
	// The events table stores the administration time as created_at.
	e.AdministeredAt = e.CreatedAt
	return e, nil
}
