package model

import "time"

// AuditKind names the source table of an audit event.
type AuditKind string

const (
	AuditEntryCreated AuditKind = "entry_created"
	AuditCorrection   AuditKind = "correction_request"
	AuditSuperseded   AuditKind = "entry_superseded"
	AuditEdit         AuditKind = "edit"
	AuditTransition   AuditKind = "transition"
	AuditSignoff      AuditKind = "signoff"
	AuditExport       AuditKind = "export"
)

// AuditEvent is one row of a draft's or entry's audit trail.
type AuditEvent struct {
	Kind     AuditKind      `json:"kind"`
	At       time.Time      `json:"at"`
	ActorID  string         `json:"actor_id"`
	DraftID  string         `json:"draft_id,omitempty"`
	EntryID  string         `json:"entry_id,omitempty"`
	ItemID   string         `json:"item_id,omitempty"`
	RecordID string         `json:"record_id"`
	Summary  string         `json:"summary"`
	Details  map[string]any `json:"details,omitempty"`
}
