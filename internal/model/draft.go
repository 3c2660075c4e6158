package model

import "time"

// DraftState is the signoff lifecycle state of a handover draft.
type DraftState string

const (
	StateDraft    DraftState = "DRAFT"
	StateInReview DraftState = "IN_REVIEW"
	StateAccepted DraftState = "ACCEPTED"
	StateSigned   DraftState = "SIGNED"
	StateExported DraftState = "EXPORTED"
)

// Active reports whether the state counts against the single-active-draft rule.
func (s DraftState) Active() bool {
	return s == StateDraft || s == StateInReview || s == StateAccepted
}

// Editable reports whether item text may still change.
func (s DraftState) Editable() bool {
	return s == StateDraft || s == StateInReview
}

// GenerationMethod records how a draft came to exist.
type GenerationMethod string

const (
	MethodGenerated GenerationMethod = "generated"
	MethodImported  GenerationMethod = "imported"
)

// DepartmentAll scopes a draft to every department of a tenant.
const DepartmentAll = "all"

// Scope identifies the tenant + department + reporting period a draft covers.
type Scope struct {
	TenantID    string    `json:"tenant_id"`
	Department  string    `json:"department"`
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`
}

// Draft is one handover document in progress.
type Draft struct {
	ID               string           `json:"id"`
	TenantID         string           `json:"tenant_id"`
	Department       string           `json:"department"`
	PeriodStart      time.Time        `json:"period_start"`
	PeriodEnd        time.Time        `json:"period_end"`
	State            DraftState       `json:"state"`
	GenerationMethod GenerationMethod `json:"generation_method"`
	OutgoingSignerID *string          `json:"outgoing_signer_id"`
	OutgoingSignedAt *time.Time       `json:"outgoing_signed_at"`
	IncomingSignerID *string          `json:"incoming_signer_id"`
	IncomingSignedAt *time.Time       `json:"incoming_signed_at"`
	ContentHash      *string          `json:"content_hash"`
	EntryCount       int              `json:"entry_count"`
	CreatedBy        string           `json:"created_by"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
	LastActivityAt   time.Time        `json:"last_activity_at"`
	ArchivedAt       *time.Time       `json:"archived_at,omitempty"`

	StaleWarning   string          `json:"stale_warning,omitempty"`
	Sections       []Section       `json:"sections,omitempty"`
	MergeProposals []MergeProposal `json:"merge_proposals,omitempty"`
}

// Scope returns the uniqueness scope of the draft.
func (d *Draft) Scope() Scope {
	return Scope{
		TenantID:    d.TenantID,
		Department:  d.Department,
		PeriodStart: d.PeriodStart,
		PeriodEnd:   d.PeriodEnd,
	}
}

// Section is a bucket-scoped grouping inside a draft.
type Section struct {
	ID           string      `json:"id"`
	DraftID      string      `json:"draft_id"`
	Bucket       string      `json:"bucket"`
	DisplayOrder int         `json:"display_order"`
	Items        []DraftItem `json:"items"`
}

// ItemKind distinguishes entry-backed items from synthesized command items.
type ItemKind string

const (
	ItemEntry   ItemKind = "entry"
	ItemCommand ItemKind = "command"
)

// ItemStatus is active until a confirmed merge folds the item into another.
type ItemStatus string

const (
	ItemActive     ItemStatus = "active"
	ItemSuperseded ItemStatus = "superseded"
)

// DraftItem is one line within a section. Only Text is editable during review.
type DraftItem struct {
	ID             string     `json:"id"`
	DraftID        string     `json:"draft_id"`
	SectionID      string     `json:"section_id"`
	Text           string     `json:"text"`
	DomainCode     string     `json:"domain_code"`
	RiskTag        string     `json:"risk_tag,omitempty"`
	Critical       bool       `json:"critical"`
	Kind           ItemKind   `json:"kind"`
	Status         ItemStatus `json:"status"`
	SourceEntryIDs []string   `json:"source_entry_ids"`
	DisplayOrder   int        `json:"display_order"`
	SupersededBy   *string    `json:"superseded_by,omitempty"`
}

// MergeStatus tracks a near-duplicate proposal.
type MergeStatus string

const (
	MergePending   MergeStatus = "pending"
	MergeAccepted  MergeStatus = "accepted"
	MergeDismissed MergeStatus = "dismissed"
)

// MergeProposal pairs two near-duplicate items. Nothing is merged until a
// reviewer accepts it.
type MergeProposal struct {
	ID             string      `json:"id"`
	DraftID        string      `json:"draft_id"`
	SurvivorItemID string      `json:"survivor_item_id"`
	MergedItemID   string      `json:"merged_item_id"`
	Similarity     float64     `json:"similarity"`
	Reason         string      `json:"reason"`
	Status         MergeStatus `json:"status"`
	DecidedBy      *string     `json:"decided_by,omitempty"`
	DecidedAt      *time.Time  `json:"decided_at,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
}

// EditKind classifies a row of the edit trail.
type EditKind string

const (
	EditText         EditKind = "text"
	EditRegenerate   EditKind = "regenerate"
	EditMerge        EditKind = "merge"
	EditDismissMerge EditKind = "dismiss_merge"
)

// DraftEdit is an append-only audit record of a change to a draft item.
type DraftEdit struct {
	ID              string    `json:"id"`
	DraftID         string    `json:"draft_id"`
	ItemID          string    `json:"item_id"`
	Kind            EditKind  `json:"kind"`
	OriginalText    string    `json:"original_text"`
	EditedText      string    `json:"edited_text"`
	EditorID        string    `json:"editor_id"`
	MergeProposalID *string   `json:"merge_proposal_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// SignoffRole is the side of the handover a signer represents.
type SignoffRole string

const (
	RoleOutgoing SignoffRole = "outgoing"
	RoleIncoming SignoffRole = "incoming"
)

// Signoff is one identity-bound confirmation.
type Signoff struct {
	ID        string      `json:"id"`
	DraftID   string      `json:"draft_id"`
	Role      SignoffRole `json:"role"`
	SignerID  string      `json:"signer_id"`
	Confirmed bool        `json:"confirmed"`
	CreatedAt time.Time   `json:"created_at"`
}

// Transition is an append-only record of a state change.
type Transition struct {
	ID        string     `json:"id"`
	DraftID   string     `json:"draft_id"`
	From      DraftState `json:"from"`
	To        DraftState `json:"to"`
	Event     string     `json:"event"`
	ActorID   string     `json:"actor_id"`
	Reason    string     `json:"reason,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// SectionView records that a user has looked at a section.
type SectionView struct {
	DraftID   string    `json:"draft_id"`
	SectionID string    `json:"section_id"`
	UserID    string    `json:"user_id"`
	ViewedAt  time.Time `json:"viewed_at"`
}

// ArtifactType is the rendered form of an export.
type ArtifactType string

const (
	ArtifactDocument  ArtifactType = "document"
	ArtifactPrintable ArtifactType = "printable"
	ArtifactMessage   ArtifactType = "message"
)

// Valid reports whether t is a known artifact type.
func (t ArtifactType) Valid() bool {
	switch t {
	case ArtifactDocument, ArtifactPrintable, ArtifactMessage:
		return true
	}
	return false
}

// Export is a terminal, immutable artifact. Re-exporting creates a new row.
type Export struct {
	ID               string       `json:"id"`
	DraftID          string       `json:"draft_id"`
	TenantID         string       `json:"tenant_id"`
	ArtifactType     ArtifactType `json:"artifact_type"`
	StorageKey       string       `json:"storage_key"`
	ContentType      string       `json:"content_type"`
	Size             int64        `json:"size"`
	ContentHash      string       `json:"content_hash"`
	ArtifactChecksum string       `json:"artifact_checksum"`
	ExporterID       string       `json:"exporter_id"`
	Recipients       []string     `json:"recipients"`
	CreatedAt        time.Time    `json:"created_at"`
}
