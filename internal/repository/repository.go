package repository

import (
	"context"
	"errors"
	"time"

	"handover/internal/model"
)

var (
	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrActiveScope is returned when a write would create a second active draft for a scope.
	ErrActiveScope = errors.New("an active draft already exists for this scope")
	// ErrStateChanged is returned when the draft left the expected state before the write landed.
	ErrStateChanged = errors.New("draft state changed concurrently")
	// ErrEntriesChanged is returned when a candidate entry was drafted elsewhere during assembly.
	ErrEntriesChanged = errors.New("candidate entries changed concurrently")
	// ErrProposalDecided is returned when a proposal is no longer pending.
	ErrProposalDecided = errors.New("proposal already decided")
)

// EntryFilter selects entries for listing and for the assembly candidate pool.
type EntryFilter struct {
	TenantID string
	// Department "" or model.DepartmentAll matches every department.
	Department string
	// From and To bound created_at as [From, To). Zero values are unbounded.
	From   time.Time
	To     time.Time
	Status model.EntryStatus
}

// EntryRepository persists entries, proposals and classification side records.
// Entries are never deleted; narrative and entity references never change.
type EntryRepository interface {
	// CreateEntry inserts the entry and, when gap is non-nil, its classification gap in the same transaction.
	CreateEntry(ctx context.Context, e *model.Entry, gap *model.ClassificationGap) error
	GetEntry(ctx context.Context, id string) (*model.Entry, error)
	ListEntries(ctx context.Context, f EntryFilter) ([]model.Entry, error)
	// AppendSourceRefs adds references not already present and returns the updated entry.
	AppendSourceRefs(ctx context.Context, id string, refs []model.SourceRef) (*model.Entry, error)
	// ResolvedEntryIDs reports which of ids are referenced by another entry with relation "resolves".
	ResolvedEntryIDs(ctx context.Context, tenantID string, ids []string) (map[string]bool, error)
	CreateCorrection(ctx context.Context, c *model.CorrectionRequest) error

	CreateProposal(ctx context.Context, p *model.EntryProposal) error
	GetProposal(ctx context.Context, id string) (*model.EntryProposal, error)
	// AcceptProposal marks a pending proposal accepted and inserts the resulting entry atomically.
	AcceptProposal(ctx context.Context, p *model.EntryProposal, e *model.Entry, gap *model.ClassificationGap) error
	// DismissProposal marks a pending proposal dismissed.
	DismissProposal(ctx context.Context, p *model.EntryProposal) error
}

// NewDraft is everything one assembly writes.
type NewDraft struct {
	Draft          *model.Draft
	MergeProposals []model.MergeProposal
	// EntryIDs move from candidate to drafted; any that is no longer a candidate aborts the write.
	EntryIDs   []string
	Transition model.Transition
}

// ItemChange rewrites one item. Prior is the copy the change was computed from;
// the write fails with ErrStateChanged when the stored item no longer matches it.
// Only text, status, source entries and superseded_by are compared and written.
type ItemChange struct {
	Prior model.DraftItem
	Next  model.DraftItem
}

// ReviewChange is a batch of review-time writes applied while the draft is still editable.
type ReviewChange struct {
	DraftID string
	At      time.Time
	Items   []ItemChange
	Edits []model.DraftEdit
	// Proposal, when set, must still be pending in storage.
	Proposal *model.MergeProposal
	// SupersededEntries maps entry id to the entry that absorbed it.
	SupersededEntries map[string]string
}

// TransitionChange moves a draft from Transition.From to Transition.To.
type TransitionChange struct {
	Transition    model.Transition
	SetOutgoing   bool
	ClearOutgoing bool
	SetIncoming   bool
	ContentHash   *string
	Signoff       *model.Signoff
}

// DraftRepository persists drafts and everything hanging off them.
type DraftRepository interface {
	FindActive(ctx context.Context, scope model.Scope) (*model.Draft, error)
	// GetDraft returns the draft with its sections, items and merge proposals.
	GetDraft(ctx context.Context, id string) (*model.Draft, error)
	CreateDraft(ctx context.Context, nd NewDraft) error
	ApplyReview(ctx context.Context, ch ReviewChange) error
	ApplyTransition(ctx context.Context, ch TransitionChange) error
	MarkSectionViewed(ctx context.Context, v model.SectionView) error
	ViewedSections(ctx context.Context, draftID, userID string) (map[string]bool, error)
	// ListActive returns non-archived drafts in an active state; tenantID "" lists every tenant.
	ListActive(ctx context.Context, tenantID string) ([]model.Draft, error)
	// Archive soft-archives a DRAFT idle since before cutoff and returns its entries to the
	// candidate pool. It reports false when the draft no longer qualifies.
	Archive(ctx context.Context, draftID string, cutoff time.Time, tr model.Transition) (bool, error)
	// CreateExport inserts the export row; when the draft is still in tr.From it also
	// advances it to tr.To and records tr.
	CreateExport(ctx context.Context, ex *model.Export, tr model.Transition) error
	GetExport(ctx context.Context, id string) (*model.Export, error)
}

// AuditRepository reads the append-only trails.
type AuditRepository interface {
	ListEdits(ctx context.Context, draftID string) ([]model.DraftEdit, error)
	// ListEditsForEntry returns edits of items that carry the entry.
	ListEditsForEntry(ctx context.Context, entryID string) ([]model.DraftEdit, error)
	ListTransitions(ctx context.Context, draftID string) ([]model.Transition, error)
	ListSignoffs(ctx context.Context, draftID string) ([]model.Signoff, error)
	ListExports(ctx context.Context, draftID string) ([]model.Export, error)
	ListCorrections(ctx context.Context, entryID string) ([]model.CorrectionRequest, error)
}

// Store bundles the three repositories of one backend.
type Store interface {
	EntryRepository
	DraftRepository
	AuditRepository
}
