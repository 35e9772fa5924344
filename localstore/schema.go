// Copyright 2025 Panacea Project
// SPDX-License-Identifier: Apache-2.0

package localstore

// schemaVersion is the current schema generation. Open runs every migration
// step whose version is greater than the stamped one, in order, then
// re-stamps. Full DDL is executed only when no version is stamped at all.
const schemaVersion = 1

// migration is a forward-only schema step.
type migration struct {
	version int
	stmts   []string
}

// migrations lists ordered steps above the initial schema. None are defined
// yet; the mechanism exists so a future generation can alter tables in place
// without wiping devices.
var migrations []migration

const schemaSQL = `
-- Staff users
CREATE TABLE IF NOT EXISTS users (
  id TEXT PRIMARY KEY,
  staff_id TEXT NOT NULL UNIQUE,
  name TEXT NOT NULL,
  role TEXT NOT NULL,
  is_active INTEGER DEFAULT 1,
  version INTEGER DEFAULT 1,
  deleted_at TEXT,
  last_modified_at TEXT NOT NULL,
  created_at TEXT NOT NULL
);

-- Hospital wards
CREATE TABLE IF NOT EXISTS wards (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  description TEXT,
  version INTEGER DEFAULT 1,
  deleted_at TEXT,
  last_modified_at TEXT NOT NULL,
  created_at TEXT NOT NULL
);

-- Patient profiles
CREATE TABLE IF NOT EXISTS patients (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  photo TEXT,
  bed_number TEXT,
  diagnosis TEXT,
  ward_id TEXT,
  attending_doctor_id TEXT,
  attending_consultant_id TEXT,
  version INTEGER DEFAULT 1,
  deleted_at TEXT,
  last_modified_at TEXT NOT NULL,
  created_at TEXT NOT NULL,
  FOREIGN KEY (ward_id) REFERENCES wards (id),
  FOREIGN KEY (attending_doctor_id) REFERENCES users (id),
  FOREIGN KEY (attending_consultant_id) REFERENCES users (id)
);

-- Wristband barcodes
CREATE TABLE IF NOT EXISTS barcodes (
  id TEXT PRIMARY KEY,
  barcode_id_string TEXT NOT NULL UNIQUE,
  status TEXT DEFAULT 'active',
  patient_id TEXT,
  version INTEGER DEFAULT 1,
  deleted_at TEXT,
  last_modified_at TEXT NOT NULL,
  created_at TEXT NOT NULL,
  FOREIGN KEY (patient_id) REFERENCES patients (id)
);

-- Medication orders
CREATE TABLE IF NOT EXISTS orders (
  id TEXT PRIMARY KEY,
  patient_id TEXT NOT NULL,
  prescriber_id TEXT NOT NULL,
  drug TEXT NOT NULL,
  dose TEXT NOT NULL,
  route TEXT NOT NULL,
  frequency TEXT NOT NULL,
  start_time TEXT NOT NULL,
  end_time TEXT,
  status TEXT DEFAULT 'active',
  version INTEGER DEFAULT 1,
  deleted_at TEXT,
  last_modified_at TEXT NOT NULL,
  created_at TEXT NOT NULL,
  FOREIGN KEY (patient_id) REFERENCES patients (id),
  FOREIGN KEY (prescriber_id) REFERENCES users (id)
);

-- Administration events (medication records)
CREATE TABLE IF NOT EXISTS events (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  patient_id TEXT NOT NULL,
  nurse_id TEXT NOT NULL,
  outcome TEXT NOT NULL,
  vitals_bp TEXT,
  vitals_hr TEXT,
  vitals_temp TEXT,
  vitals_spo2 TEXT,
  vitals_pain_score TEXT,
  scanned_barcode_id TEXT,
  reason_code TEXT,
  reason_note TEXT,
  version INTEGER DEFAULT 1,
  deleted_at TEXT,
  last_modified_at TEXT NOT NULL,
  created_at TEXT NOT NULL,
  FOREIGN KEY (order_id) REFERENCES orders (id),
  FOREIGN KEY (patient_id) REFERENCES patients (id),
  FOREIGN KEY (nurse_id) REFERENCES users (id),
  FOREIGN KEY (scanned_barcode_id) REFERENCES barcodes (id)
);

-- Pending operations queue for sync
CREATE TABLE IF NOT EXISTS pending_operations (
  operation_id TEXT PRIMARY KEY,
  type TEXT NOT NULL,
  entity_type TEXT NOT NULL,
  entity_id TEXT NOT NULL,
  data TEXT NOT NULL,
  expected_version INTEGER,
  created_at INTEGER NOT NULL,
  retry_count INTEGER DEFAULT 0,
  last_error TEXT,
  status TEXT DEFAULT 'pending'
);

-- Indexes
CREATE INDEX IF NOT EXISTS idx_users_last_modified ON users(last_modified_at);
CREATE INDEX IF NOT EXISTS idx_wards_last_modified ON wards(last_modified_at);
CREATE INDEX IF NOT EXISTS idx_patients_last_modified ON patients(last_modified_at);
CREATE INDEX IF NOT EXISTS idx_patients_ward ON patients(ward_id);
CREATE INDEX IF NOT EXISTS idx_barcodes_last_modified ON barcodes(last_modified_at);
CREATE INDEX IF NOT EXISTS idx_barcodes_patient ON barcodes(patient_id);
CREATE INDEX IF NOT EXISTS idx_orders_last_modified ON orders(last_modified_at);
CREATE INDEX IF NOT EXISTS idx_orders_patient ON orders(patient_id);
CREATE INDEX IF NOT EXISTS idx_events_last_modified ON events(last_modified_at);
CREATE INDEX IF NOT EXISTS idx_events_patient ON events(patient_id);
CREATE INDEX IF NOT EXISTS idx_pending_ops_status ON pending_operations(status);
CREATE INDEX IF NOT EXISTS idx_pending_ops_created ON pending_operations(created_at);
`

// metadataDDL is created before any version check so the stamp itself has a
// place to live on first open.
const metadataDDL = `
CREATE TABLE IF NOT EXISTS device_metadata (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL
);
`
