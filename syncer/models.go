// Copyright 2025 Panacea Project
// SPDX-License-Identifier: Apache-2.0

package syncer

import (
	"encoding/json"

	"github.com/Kamwaro-001/panacea/domain"
)

// REST/JSON models for the sync server HTTP contract. All entity arrays
// carry the full base envelope (id, version, deletedAt, lastModifiedAt,
// createdAt).

// RegisterDeviceRequest identifies a device to the server fleet registry.
type RegisterDeviceRequest struct {
	DeviceID    string `json:"deviceId"`
	DeviceName  string `json:"deviceName"`
	DeviceModel string `json:"deviceModel"`
	OSVersion   string `json:"osVersion"`
	AppVersion  string `json:"appVersion"`
}

// Deletions carries explicit per-entity deletion id lists. Soft-deleted
// rows filtered from the changed-rows query are communicated here instead.
type Deletions struct {
	Users    []string `json:"users"`
	Wards    []string `json:"wards"`
	Patients []string `json:"patients"`
	Barcodes []string `json:"barcodes"`
	Orders   []string `json:"orders"`
	Events   []string `json:"events"`
}

// ChangesResponse is the server's answer to GET /sync/changes.
type ChangesResponse struct {
	ServerTimestamp string                       `json:"serverTimestamp"`
	Users           []domain.User                `json:"users"`
	Wards           []domain.Ward                `json:"wards"`
	Patients        []domain.Patient             `json:"patients"`
	Barcodes        []domain.Barcode             `json:"barcodes"`
	Orders          []domain.MedicationOrder     `json:"orders"`
	Events          []domain.AdministrationEvent `json:"events"`
	Deletions       Deletions                    `json:"deletions"`
}

// BatchOperation is a single queued mutation on the wire.
type BatchOperation struct {
	OperationID     string          `json:"operationId"`
	Type            string          `json:"type"`
	EntityType      string          `json:"entityType"`
	EntityID        string          `json:"entityId"`
	Data            json.RawMessage `json:"data"`
	ExpectedVersion *int64          `json:"expectedVersion,omitempty"`
}

// BatchRequest is the body of POST /sync/batch. Operations are listed in
// FIFO enqueue order; the server applies them in the order received.
type BatchRequest struct {
	DeviceID   string           `json:"deviceId"`
	Operations []BatchOperation `json:"operations"`
}

// Per-operation outcome statuses.
const (
	ResultSuccess  = "success"
	ResultConflict = "conflict"
	ResultError    = "error"
)

// OperationResult is the server's verdict on one pushed operation.
type OperationResult struct {
	OperationID string `json:"operationId"`
	Status      string `json:"status"`
	EntityID    string `json:"entityId,omitempty"`
	Version     *int64 `json:"version,omitempty"`
	ConflictID  string `json:"conflictId,omitempty"`
	Error       string `json:"error,omitempty"`
}

// BatchResponse is the server's answer to POST /sync/batch.
type BatchResponse struct {
	ServerTimestamp string            `json:"serverTimestamp"`
	SuccessCount    int               `json:"successCount"`
	ConflictCount   int               `json:"conflictCount"`
	ErrorCount      int               `json:"errorCount"`
	Results         []OperationResult `json:"results"`
}

// ScannedBarcodeResponse is the server's answer to a wristband scan lookup:
// the linked patient and their currently active medication orders.
type ScannedBarcodeResponse struct {
	Patient      domain.Patient           `json:"patient"`
	ActiveOrders []domain.MedicationOrder `json:"activeOrders"`
}

// LinkBarcodeRequest binds a wristband barcode to a patient server-side.
type LinkBarcodeRequest struct {
	PatientID       string `json:"patientId"`
	BarcodeIDString string `json:"barcodeIdString"`
}

// SyncResult summarizes one push leg for callers and status subscribers.
type SyncResult struct {
	Success       bool
	SuccessCount  int
	ConflictCount int
	ErrorCount    int
	Conflicts     []string
	Errors        []string
}
