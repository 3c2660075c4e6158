package model

import "time"

// EntityRef is a polymorphic pointer to a record owned by another service
// (equipment, fault, work order, certificate, ...). Resolution of the record
// itself happens outside this module.
type EntityRef struct {
	Kind string `json:"kind"`
	ID   string `json:"id"`
}

// Key returns the "kind:id" form used for equality checks.
func (r EntityRef) Key() string {
	return r.Kind + ":" + r.ID
}

// IsZero reports whether the reference is empty.
func (r EntityRef) IsZero() bool {
	return r.Kind == "" && r.ID == ""
}

const (
	// SourceKindEntry marks a source reference that points at another entry.
	SourceKindEntry = "entry"
	// RelationResolves marks an entry as the corrective follow-up of the referenced entry.
	RelationResolves = "resolves"
)

// SourceRef links an entry to ledger events, documents or other entries.
type SourceRef struct {
	Kind     string `json:"kind"`
	ID       string `json:"id"`
	Relation string `json:"relation,omitempty"`
}

// Key returns the identity used to deduplicate appended references.
func (r SourceRef) Key() string {
	return r.Kind + ":" + r.ID + ":" + r.Relation
}

// EntryStatus is the lifecycle status of an entry.
type EntryStatus string

const (
	EntryCandidate  EntryStatus = "candidate"
	EntryDrafted    EntryStatus = "drafted"
	EntrySuperseded EntryStatus = "superseded"
)

// Classification is the result of routing an entry's entity references through the taxonomy.
type Classification struct {
	PrimaryDomain    string     `json:"primary_domain"`
	SecondaryDomains []string   `json:"secondary_domains"`
	Bucket           string     `json:"bucket"`
	OwnerRoles       []string   `json:"suggested_owner_roles"`
	RiskTags         []string   `json:"risk_tags"`
	PrimaryEntity    *EntityRef `json:"primary_entity,omitempty"`
	TaxonomyVersion  string     `json:"taxonomy_version"`
	Gap              bool       `json:"classification_gap"`
	UnresolvedKinds  []string   `json:"unresolved_kinds,omitempty"`
}

// Entry is one observed or reported fact destined for a handover.
// Narrative and entity references are immutable after creation; source
// references are only ever appended to.
type Entry struct {
	ID         string      `json:"id"`
	TenantID   string      `json:"tenant_id"`
	Department string      `json:"department"`
	CreatedAt  time.Time   `json:"created_at"`
	AuthorID   string      `json:"author_id"`
	AuthorRole string      `json:"author_role"`
	Narrative  string      `json:"narrative"`
	EntityRefs []EntityRef `json:"entity_refs"`
	SourceRefs []SourceRef `json:"source_refs"`
	Status     EntryStatus `json:"status"`
	// SupersededBy is set when the entry was folded into another entry by a confirmed merge.
	SupersededBy *string `json:"superseded_by,omitempty"`
	ProposalID   *string `json:"proposal_id,omitempty"`
	Classification
}

// ProposalStatus tracks system-initiated entry suggestions.
type ProposalStatus string

const (
	ProposalPending   ProposalStatus = "pending"
	ProposalAccepted  ProposalStatus = "accepted"
	ProposalDismissed ProposalStatus = "dismissed"
)

// EntryProposal is a system-generated suggestion. It becomes an Entry only
// after a user explicitly accepts it.
type EntryProposal struct {
	ID         string         `json:"id"`
	TenantID   string         `json:"tenant_id"`
	Department string         `json:"department"`
	ProposedBy string         `json:"proposed_by"`
	Narrative  string         `json:"narrative"`
	EntityRefs []EntityRef    `json:"entity_refs"`
	SourceRefs []SourceRef    `json:"source_refs"`
	Status     ProposalStatus `json:"status"`
	EntryID    *string        `json:"entry_id,omitempty"`
	DecidedBy  *string        `json:"decided_by,omitempty"`
	DecidedAt  *time.Time     `json:"decided_at,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// CorrectionRequest records a user-flagged misclassification. The entry's
// stored classification is left untouched; the request is reviewed offline.
type CorrectionRequest struct {
	ID              string    `json:"id"`
	TenantID        string    `json:"tenant_id"`
	EntryID         string    `json:"entry_id"`
	RequestedBy     string    `json:"requested_by"`
	CurrentDomain   string    `json:"current_domain"`
	SuggestedDomain string    `json:"suggested_domain"`
	Note            string    `json:"note"`
	CreatedAt       time.Time `json:"created_at"`
}

// ClassificationGap is persisted whenever an entity kind has no mapping in the taxonomy.
type ClassificationGap struct {
	ID              string    `json:"id"`
	TenantID        string    `json:"tenant_id"`
	EntryID         string    `json:"entry_id"`
	UnresolvedKinds []string  `json:"unresolved_kinds"`
	TaxonomyVersion string    `json:"taxonomy_version"`
	CreatedAt       time.Time `json:"created_at"`
}

// Actor is the authenticated caller as supplied by the identity service.
type Actor struct {
	UserID   string `json:"user_id"`
	Role     string `json:"role"`
	TenantID string `json:"tenant_id"`
}
