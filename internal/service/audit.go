package service

import (
	"context"
	"fmt"
	"sort"

	"handover/internal/model"
)

// AuditService assembles ordered audit trails from the append-only tables.
type AuditService interface {
	DraftTrail(ctx context.Context, actor model.Actor, draftID string) ([]model.AuditEvent, error)
	EntryTrail(ctx context.Context, actor model.Actor, entryID string) ([]model.AuditEvent, error)
}

type auditService struct {
	deps Deps
}

// NewAuditService constructs an AuditService.
func NewAuditService(deps Deps) AuditService {
	return &auditService{deps: deps.withDefaults()}
}

func sortTrail(ev []model.AuditEvent) []model.AuditEvent {
	sort.SliceStable(ev, func(i, j int) bool { return ev[i].At.Before(ev[j].At) })
	return ev
}

func editEvent(e model.DraftEdit) model.AuditEvent {
	details := map[string]any{
		"kind":          e.Kind,
		"original_text": e.OriginalText,
		"edited_text":   e.EditedText,
	}
	if e.MergeProposalID != nil {
		details["merge_proposal_id"] = *e.MergeProposalID
	}
	return model.AuditEvent{
		Kind:     model.AuditEdit,
		At:       e.CreatedAt,
		ActorID:  e.EditorID,
		DraftID:  e.DraftID,
		ItemID:   e.ItemID,
		RecordID: e.ID,
		Summary:  fmt.Sprintf("%s edit on item %s", e.Kind, e.ItemID),
		Details:  details,
	}
}

func (s *auditService) DraftTrail(ctx context.Context, actor model.Actor, draftID string) ([]model.AuditEvent, error) {
	if err := checkActor(actor); err != nil {
		return nil, err
	}
	if _, err := loadDraft(ctx, s.deps.Drafts, actor, draftID); err != nil {
		return nil, err
	}

	trs, err := s.deps.Audit.ListTransitions(ctx, draftID)
	if err != nil {
		return nil, fmt.Errorf("list transitions: %w", err)
	}
	sigs, err := s.deps.Audit.ListSignoffs(ctx, draftID)
	if err != nil {
		return nil, fmt.Errorf("list signoffs: %w", err)
	}
	edits, err := s.deps.Audit.ListEdits(ctx, draftID)
	if err != nil {
		return nil, fmt.Errorf("list edits: %w", err)
	}
	exports, err := s.deps.Audit.ListExports(ctx, draftID)
	if err != nil {
		return nil, fmt.Errorf("list exports: %w", err)
	}

	out := make([]model.AuditEvent, 0, len(trs)+len(sigs)+len(edits)+len(exports))
	for _, t := range trs {
		ev := model.AuditEvent{
			Kind:     model.AuditTransition,
			At:       t.CreatedAt,
			ActorID:  t.ActorID,
			DraftID:  t.DraftID,
			RecordID: t.ID,
			Summary:  fmt.Sprintf("%s: %s -> %s", t.Event, displayState(t.From), t.To),
			Details:  map[string]any{"event": t.Event, "from": t.From, "to": t.To},
		}
		if t.Reason != "" {
			ev.Details["reason"] = t.Reason
		}
		out = append(out, ev)
	}
	for _, sg := range sigs {
		out = append(out, model.AuditEvent{
			Kind:     model.AuditSignoff,
			At:       sg.CreatedAt,
			ActorID:  sg.SignerID,
			DraftID:  sg.DraftID,
			RecordID: sg.ID,
			Summary:  fmt.Sprintf("%s signoff", sg.Role),
			Details:  map[string]any{"role": sg.Role, "confirmed": sg.Confirmed},
		})
	}
	for _, e := range edits {
		out = append(out, editEvent(e))
	}
	for _, x := range exports {
		out = append(out, model.AuditEvent{
			Kind:     model.AuditExport,
			At:       x.CreatedAt,
			ActorID:  x.ExporterID,
			DraftID:  x.DraftID,
			RecordID: x.ID,
			Summary:  fmt.Sprintf("exported as %s", x.ArtifactType),
			Details: map[string]any{
				"artifact_type": x.ArtifactType,
				"storage_key":   x.StorageKey,
				"content_hash":  x.ContentHash,
				"recipients":    x.Recipients,
			},
		})
	}
	return sortTrail(out), nil
}

func displayState(s model.DraftState) string {
	if s == "" {
		return "(new)"
	}
	return string(s)
}

func (s *auditService) EntryTrail(ctx context.Context, actor model.Actor, entryID string) ([]model.AuditEvent, error) {
	if err := checkActor(actor); err != nil {
		return nil, err
	}
	if entryID == "" {
		return nil, invalid("entry id is required")
	}
	e, err := s.deps.Entries.GetEntry(ctx, entryID)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	if e.TenantID != actor.TenantID {
		return nil, fmt.Errorf("%w: entry %s", ErrNotFound, entryID)
	}

	corrections, err := s.deps.Audit.ListCorrections(ctx, entryID)
	if err != nil {
		return nil, fmt.Errorf("list corrections: %w", err)
	}
	edits, err := s.deps.Audit.ListEditsForEntry(ctx, entryID)
	if err != nil {
		return nil, fmt.Errorf("list edits: %w", err)
	}

	out := []model.AuditEvent{{
		Kind:     model.AuditEntryCreated,
		At:       e.CreatedAt,
		ActorID:  e.AuthorID,
		EntryID:  e.ID,
		RecordID: e.ID,
		Summary:  fmt.Sprintf("entry created in %s", e.Bucket),
		Details: map[string]any{
			"primary_domain":   e.PrimaryDomain,
			"bucket":           e.Bucket,
			"taxonomy_version": e.TaxonomyVersion,
		},
	}}
	for _, c := range corrections {
		out = append(out, model.AuditEvent{
			Kind:     model.AuditCorrection,
			At:       c.CreatedAt,
			ActorID:  c.RequestedBy,
			EntryID:  c.EntryID,
			RecordID: c.ID,
			Summary:  fmt.Sprintf("misclassification flagged: %s -> %s", c.CurrentDomain, c.SuggestedDomain),
			Details:  map[string]any{"note": c.Note},
		})
	}
	var mergedAt *model.DraftEdit
	for i, ed := range edits {
		ev := editEvent(ed)
		ev.EntryID = e.ID
		out = append(out, ev)
		if ed.Kind == model.EditMerge {
			mergedAt = &edits[i]
		}
	}
	if e.SupersededBy != nil {
		ev := model.AuditEvent{
			Kind:     model.AuditSuperseded,
			At:       e.CreatedAt,
			EntryID:  e.ID,
			RecordID: e.ID,
			Summary:  fmt.Sprintf("folded into entry %s", *e.SupersededBy),
			Details:  map[string]any{"superseded_by": *e.SupersededBy},
		}
		if mergedAt != nil {
			ev.At = mergedAt.CreatedAt
			ev.ActorID = mergedAt.EditorID
			ev.DraftID = mergedAt.DraftID
		}
		out = append(out, ev)
	}
	return sortTrail(out), nil
}
