package types

import "time"

type ValidationStatus string

const (
	StatusValid     ValidationStatus = "valid"
	StatusInvalid   ValidationStatus = "invalid"
	StatusDuplicate ValidationStatus = "duplicate"
	StatusExpired   ValidationStatus = "expired"
)

type SyncStatus string

const (
	SyncPending SyncStatus = "pending"
	SyncSynced  SyncStatus = "synced"
	SyncFailed  SyncStatus = "failed"
)

// Reasons attached to validation verdicts.
const (
	ReasonAccepted          = "accepted"
	ReasonNotFoundLocally   = "not_found_locally"
	ReasonWrongEvent        = "wrong_event"
	ReasonAlreadyUsed       = "already_used"
	ReasonNotYetValid       = "not_yet_valid"
	ReasonExpired           = "expired"
	ReasonOfflineValidation = "offline_validation_failed"
)

// ValidationRecord is one entry of the append-only validation log.
// Only SyncStatus (and SyncNote) may change after creation.
type ValidationRecord struct {
	ID         string           `json:"id"`
	TicketID   string           `json:"ticket_id"`
	EventID    string           `json:"event_id"`
	GateID     string           `json:"gate_id"`
	StaffID    string           `json:"staff_id"`
	DeviceID   string           `json:"device_id"`
	Timestamp  time.Time        `json:"timestamp"`
	Status     ValidationStatus `json:"status"`
	Reason     string           `json:"reason"`
	SyncStatus SyncStatus       `json:"sync_status"`
	SyncNote   string           `json:"sync_note,omitempty"`
}

// ScanRequest is what a gate operator submits for one scan.
type ScanRequest struct {
	StaffID string `json:"staff_id"`
	GateID  string `json:"gate_id"`
	EventID string `json:"event_id,omitempty"`
	Input   string `json:"input"`
}

// ScanMetadata is shown to the operator on an accepted scan.
type ScanMetadata struct {
	GateID     string    `json:"gate_id"`
	StaffID    string    `json:"staff_id"`
	ScannedAt  time.Time `json:"scanned_at"`
	Tier       string    `json:"tier,omitempty"`
	SeatNumber string    `json:"seat_number,omitempty"`
}

type ScanResult struct {
	Status   ValidationStatus `json:"status"`
	Reason   string           `json:"reason"`
	TicketID string           `json:"ticket_id"`
	RecordID string           `json:"record_id,omitempty"`
	Metadata *ScanMetadata    `json:"metadata,omitempty"`
}
