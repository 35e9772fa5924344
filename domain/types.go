// Copyright 2025 Panacea Project
// SPDX-License-Identifier: Apache-2.0

// Package domain defines the clinical entities mirrored from the sync
// server, together with the typed mutation payloads carried by the
// pending-operation queue.
//
// Every synced entity shares the SyncMeta envelope: a globally unique id,
// a server-incremented version for optimistic concurrency, a soft-delete
// marker and the server watermark timestamp (lastModifiedAt).
package domain

import "time"

// Role is a clinical staff role.
type Role string

const (
	RoleNurse      Role = "nurse"
	RoleDoctor     Role = "doctor"
	RoleConsultant Role = "consultant"
	RoleAdmin      Role = "admin"
)

// BarcodeStatus is the lifecycle state of a wristband barcode.
type BarcodeStatus string

const (
	BarcodeActive   BarcodeStatus = "active"
	BarcodeArchived BarcodeStatus = "archived"
)

// OrderStatus is the lifecycle state of a medication order.
type OrderStatus string

const (
	OrderActive    OrderStatus = "active"
	OrderStopped   OrderStatus = "stopped"
	OrderCompleted OrderStatus = "completed"
)

// Outcome is the recorded result of a medication administration.
type Outcome string

const (
	OutcomeGiven    Outcome = "given"
	OutcomeDelayed  Outcome = "delayed"
	OutcomeNotGiven Outcome = "not_given"
	OutcomeRefused  Outcome = "refused"
)

// EntityType discriminates the fixed entity set handled by the sync engine.
type EntityType string

const (
	EntityUser    EntityType = "user"
	EntityWard    EntityType = "ward"
	EntityPatient EntityType = "patient"
	EntityBarcode EntityType = "barcode"
	EntityOrder   EntityType = "order"
	EntityEvent   EntityType = "event"
)

// OperationType is the kind of mutation recorded in the queue.
type OperationType string

const (
	OpCreate OperationType = "create"
	OpUpdate OperationType = "update"
	OpDelete OperationType = "delete"
)

// OperationStatus is the lifecycle state of a queued mutation.
type OperationStatus string

const (
	StatusPending  OperationStatus = "pending"
	StatusSyncing  OperationStatus = "syncing"
	StatusFailed   OperationStatus = "failed"
	StatusConflict OperationStatus = "conflict"
)

// SyncMeta is the base envelope shared by every synced entity.
type SyncMeta struct {
	ID             string     `json:"id"`
	Version        int64      `json:"version"`
	DeletedAt      *time.Time `json:"deletedAt,omitempty"`
	LastModifiedAt time.Time  `json:"lastModifiedAt"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// User is a clinical staff member.
type User struct {
	SyncMeta
	StaffID  string `json:"staffId"`
	Name     string `json:"name"`
	Role     Role   `json:"role"`
	IsActive bool   `json:"isActive"`
}

// Ward is a hospital ward.
type Ward struct {
	SyncMeta
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Patient is a patient profile. The pointer relations are hydrated by the
// local store via secondary lookups; they never travel over the wire.
type Patient struct {
	SyncMeta
	Name                  string `json:"name"`
	Photo                 string `json:"photo,omitempty"`
	BedNumber             string `json:"bedNumber,omitempty"`
	Diagnosis             string `json:"diagnosis,omitempty"`
	WardID                string `json:"wardId,omitempty"`
	AttendingDoctorID     string `json:"attendingDoctorId,omitempty"`
	AttendingConsultantID string `json:"attendingConsultantId,omitempty"`

	Ward                *Ward `json:"-"`
	AttendingDoctor     *User `json:"-"`
	AttendingConsultant *User `json:"-"`
}

// Barcode is a scannable wristband identifier, optionally linked to a patient.
type Barcode struct {
	SyncMeta
	BarcodeIDString string        `json:"barcodeIdString"`
	Status          BarcodeStatus `json:"status"`
	PatientID       string        `json:"patientId,omitempty"`
}

// MedicationOrder is a prescription for a patient.
type MedicationOrder struct {
	SyncMeta
	PatientID    string      `json:"patientId"`
	PrescriberID string      `json:"prescriberId"`
	Drug         string      `json:"drug"`
	Dose         string      `json:"dose"`
	Route        string      `json:"route"`
	Frequency    string      `json:"frequency"`
	StartTime    time.Time   `json:"startTime"`
	EndTime      *time.Time  `json:"endTime,omitempty"`
	Status       OrderStatus `json:"status"`
}

// AdministrationEvent is a record of a medication administration attempt,
// including optional vitals captured at the bedside.
type AdministrationEvent struct {
	SyncMeta
	OrderID          string    `json:"orderId"`
	PatientID        string    `json:"patientId"`
	NurseID          string    `json:"nurseId"`
	Outcome          Outcome   `json:"outcome"`
	VitalsBp         string    `json:"vitalsBp,omitempty"`
	VitalsHr         string    `json:"vitalsHr,omitempty"`
	VitalsTemp       string    `json:"vitalsTemp,omitempty"`
	VitalsSpo2       string    `json:"vitalsSpo2,omitempty"`
	VitalsPain       string    `json:"vitalsPain,omitempty"`
	ScannedBarcodeID string    `json:"scannedBarcodeId,omitempty"`
	ReasonCode       string    `json:"reasonCode,omitempty"`
	ReasonNote       string    `json:"reasonNote,omitempty"`
	AdministeredAt   time.Time `json:"administeredAt"`
}
