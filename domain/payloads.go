// Copyright 2025 Panacea Project
// SPDX-License-Identifier: Apache-2.0

package domain

import (
	"encoding/json"
	"fmt"
)

// MutationData is the typed payload of a queued mutation. The concrete type
// is discriminated by the operation's entity type, so every payload can be
// checked at compile time while still expressing "any subset of fields"
// update semantics through pointer fields.
type MutationData interface {
	EntityType() EntityType
}

// UserPayload carries a partial update to a staff user.
type UserPayload struct {
	StaffID  *string `json:"staffId,omitempty"`
	Name     *string `json:"name,omitempty"`
	Role     *Role   `json:"role,omitempty"`
	IsActive *bool   `json:"isActive,omitempty"`
}

func (UserPayload) EntityType() EntityType { return EntityUser }

// WardPayload carries a partial update to a ward.
type WardPayload struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

func (WardPayload) EntityType() EntityType { return EntityWard }

// PatientPayload carries a partial update to a patient profile.
type PatientPayload struct {
	Name                  *string `json:"name,omitempty"`
	Photo                 *string `json:"photo,omitempty"`
	BedNumber             *string `json:"bedNumber,omitempty"`
	Diagnosis             *string `json:"diagnosis,omitempty"`
	WardID                *string `json:"wardId,omitempty"`
	AttendingDoctorID     *string `json:"attendingDoctorId,omitempty"`
	AttendingConsultantID *string `json:"attendingConsultantId,omitempty"`
}

func (PatientPayload) EntityType() EntityType { return EntityPatient }

// BarcodePayload carries a create or partial update of a barcode. An empty
// (non-nil) PatientID unlinks the barcode from its patient.
type BarcodePayload struct {
	BarcodeIDString *string        `json:"barcodeIdString,omitempty"`
	Status          *BarcodeStatus `json:"status,omitempty"`
	PatientID       *string        `json:"patientId,omitempty"`
}

func (BarcodePayload) EntityType() EntityType { return EntityBarcode }

// OrderPayload carries a create or partial update of a medication order.
type OrderPayload struct {
	PatientID    *string      `json:"patientId,omitempty"`
	PrescriberID *string      `json:"prescriberId,omitempty"`
	Drug         *string      `json:"drug,omitempty"`
	Dose         *string      `json:"dose,omitempty"`
	Route        *string      `json:"route,omitempty"`
	Frequency    *string      `json:"frequency,omitempty"`
	StartTime    *string      `json:"startTime,omitempty"`
	EndTime      *string      `json:"endTime,omitempty"`
	Status       *OrderStatus `json:"status,omitempty"`
}

func (OrderPayload) EntityType() EntityType { return EntityOrder }

// EventPayload carries a newly recorded administration event. Events are
// create-only on the write path, so the fields are plain values.
type EventPayload struct {
	ID               string  `json:"id"`
	OrderID          string  `json:"orderId"`
	PatientID        string  `json:"patientId"`
	NurseID          string  `json:"nurseId"`
	Outcome          Outcome `json:"outcome"`
	VitalsBp         string  `json:"vitalsBp,omitempty"`
	VitalsHr         string  `json:"vitalsHr,omitempty"`
	VitalsTemp       string  `json:"vitalsTemp,omitempty"`
	VitalsSpo2       string  `json:"vitalsSpo2,omitempty"`
	VitalsPain       string  `json:"vitalsPain,omitempty"`
	ScannedBarcodeID string  `json:"scannedBarcodeId,omitempty"`
	ReasonCode       string  `json:"reasonCode,omitempty"`
	ReasonNote       string  `json:"reasonNote,omitempty"`
}

func (EventPayload) EntityType() EntityType { return EntityEvent }

// DecodeMutationData unmarshals a stored payload into its concrete type
// based on the entity type discriminator.
func DecodeMutationData(et EntityType, raw []byte) (MutationData, error) {
	switch et {
	case EntityUser:
		var p UserPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("failed to decode user payload: %w", err)
		}
		return p, nil
	case EntityWard:
		var p WardPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("failed to decode ward payload: %w", err)
		}
		return p, nil
	case EntityPatient:
		var p PatientPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("failed to decode patient payload: %w", err)
		}
		return p, nil
	case EntityBarcode:
		var p BarcodePayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("failed to decode barcode payload: %w", err)
		}
		return p, nil
	case EntityOrder:
		var p OrderPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("failed to decode order payload: %w", err)
		}
		return p, nil
	case EntityEvent:
		var p EventPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("failed to decode event payload: %w", err)
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown entity type: %s", et)
	}
}

// TableFor maps an entity type to its local store table name.
func TableFor(et EntityType) (string, error) {
	switch et {
	case EntityUser:
		return "users", nil
	case EntityWard:
		return "wards", nil
	case EntityPatient:
		return "patients", nil
	case EntityBarcode:
		return "barcodes", nil
	case EntityOrder:
		return "orders", nil
	case EntityEvent:
		return "events", nil
	default:
		return "", fmt.Errorf("unknown entity type: %s", et)
	}
}
