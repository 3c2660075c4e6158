package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"time"

	"handover/internal/model"
	"handover/internal/repository"
)

func sameScope(d model.Draft, sc model.Scope) bool {
	return d.TenantID == sc.TenantID &&
		d.Department == sc.Department &&
		d.PeriodStart.Equal(sc.PeriodStart) &&
		d.PeriodEnd.Equal(sc.PeriodEnd)
}

func activeIn(st *state, sc model.Scope) (model.Draft, bool) {
	for _, d := range st.drafts {
		if d.ArchivedAt == nil && d.State.Active() && sameScope(d, sc) {
			return d, true
		}
	}
	return model.Draft{}, false
}

func (s *Store) FindActive(ctx context.Context, scope model.Scope) (*model.Draft, error) {
	var out model.Draft
	err := s.view(ctx, func(st *state) error {
		d, ok := activeIn(st, scope)
		if !ok {
			return fmt.Errorf("%w: active draft for scope", repository.ErrNotFound)
		}
		out = cloneDraftHeader(d)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Store) GetDraft(ctx context.Context, id string) (*model.Draft, error) {
	var out model.Draft
	err := s.view(ctx, func(st *state) error {
		d, ok := st.drafts[id]
		if !ok {
			return fmt.Errorf("%w: draft %s", repository.ErrNotFound, id)
		}
		out = cloneDraftHeader(d)
		out.Sections = cloneSections(st.sections[id])
		out.MergeProposals = cloneMerges(st.merges[id])
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Store) CreateDraft(ctx context.Context, nd repository.NewDraft) error {
	return s.update(ctx, func(st *state) error {
		d := nd.Draft
		if _, ok := st.drafts[d.ID]; ok {
			return fmt.Errorf("draft %s already exists", d.ID)
		}
		if d.State.Active() {
			if _, ok := activeIn(st, d.Scope()); ok {
				return repository.ErrActiveScope
			}
		}
		for _, id := range nd.EntryIDs {
			e, ok := st.entries[id]
			if !ok || e.Status != model.EntryCandidate {
				return fmt.Errorf("%w: entry %s", repository.ErrEntriesChanged, id)
			}
			e.Status = model.EntryDrafted
			st.entries[id] = e
		}
		st.drafts[d.ID] = cloneDraftHeader(*d)
		st.sections[d.ID] = cloneSections(d.Sections)
		st.merges[d.ID] = cloneMerges(nd.MergeProposals)
		st.transitions = append(st.transitions, nd.Transition)
		return nil
	})
}

func editableDraft(st *state, id string) (model.Draft, error) {
	d, ok := st.drafts[id]
	if !ok {
		return model.Draft{}, fmt.Errorf("%w: draft %s", repository.ErrNotFound, id)
	}
	if d.ArchivedAt != nil || !d.State.Editable() {
		return model.Draft{}, repository.ErrStateChanged
	}
	return d, nil
}

func (s *Store) ApplyReview(ctx context.Context, ch repository.ReviewChange) error {
	return s.update(ctx, func(st *state) error {
		d, err := editableDraft(st, ch.DraftID)
		if err != nil {
			return err
		}
		secs := st.sections[ch.DraftID]
		for _, c := range ch.Items {
			if err := replaceItem(secs, c); err != nil {
				return err
			}
		}
		if ch.Proposal != nil {
			if err := decideMerge(st.merges[ch.DraftID], *ch.Proposal); err != nil {
				return err
			}
		}
		for id, by := range ch.SupersededEntries {
			e, ok := st.entries[id]
			if !ok {
				return fmt.Errorf("%w: entry %s", repository.ErrNotFound, id)
			}
			e.Status = model.EntrySuperseded
			e.SupersededBy = &by
			st.entries[id] = e
		}
		st.edits = append(st.edits, ch.Edits...)
		d.UpdatedAt = ch.At
		d.LastActivityAt = ch.At
		st.drafts[d.ID] = d
		return nil
	})
}

func replaceItem(secs []model.Section, c repository.ItemChange) error {
	for i := range secs {
		for j := range secs[i].Items {
			cur := &secs[i].Items[j]
			if cur.ID != c.Next.ID {
				continue
			}
			if !sameReviewFields(*cur, c.Prior) {
				return fmt.Errorf("%w: item %s", repository.ErrStateChanged, cur.ID)
			}
			cur.Text = c.Next.Text
			cur.Status = c.Next.Status
			cur.SourceEntryIDs = slices.Clone(c.Next.SourceEntryIDs)
			cur.SupersededBy = clonePtr(c.Next.SupersededBy)
			return nil
		}
	}
	return fmt.Errorf("%w: item %s", repository.ErrNotFound, c.Next.ID)
}

func sameReviewFields(a, b model.DraftItem) bool {
	return a.Text == b.Text &&
		a.Status == b.Status &&
		slices.Equal(a.SourceEntryIDs, b.SourceEntryIDs) &&
		equalPtr(a.SupersededBy, b.SupersededBy)
}

func equalPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func decideMerge(ms []model.MergeProposal, p model.MergeProposal) error {
	for i := range ms {
		if ms[i].ID != p.ID {
			continue
		}
		if ms[i].Status != model.MergePending {
			return repository.ErrProposalDecided
		}
		ms[i].Status = p.Status
		ms[i].DecidedBy = clonePtr(p.DecidedBy)
		ms[i].DecidedAt = clonePtr(p.DecidedAt)
		return nil
	}
	return fmt.Errorf("%w: merge proposal %s", repository.ErrNotFound, p.ID)
}

func (s *Store) ApplyTransition(ctx context.Context, ch repository.TransitionChange) error {
	return s.update(ctx, func(st *state) error {
		tr := ch.Transition
		d, ok := st.drafts[tr.DraftID]
		if !ok {
			return fmt.Errorf("%w: draft %s", repository.ErrNotFound, tr.DraftID)
		}
		if d.ArchivedAt != nil || d.State != tr.From {
			return repository.ErrStateChanged
		}
		at := tr.CreatedAt
		d.State = tr.To
		if ch.SetOutgoing {
			d.OutgoingSignerID = &tr.ActorID
			d.OutgoingSignedAt = &at
		}
		if ch.ClearOutgoing {
			d.OutgoingSignerID = nil
			d.OutgoingSignedAt = nil
		}
		if ch.SetIncoming {
			if d.OutgoingSignerID != nil && *d.OutgoingSignerID == tr.ActorID {
				return fmt.Errorf("%w: incoming signer equals outgoing signer", repository.ErrStateChanged)
			}
			d.IncomingSignerID = &tr.ActorID
			d.IncomingSignedAt = &at
		}
		if ch.ContentHash != nil && d.ContentHash == nil {
			d.ContentHash = clonePtr(ch.ContentHash)
		}
		d.UpdatedAt = at
		d.LastActivityAt = at
		st.drafts[d.ID] = d
		if ch.Signoff != nil {
			st.signoffs = append(st.signoffs, *ch.Signoff)
		}
		st.transitions = append(st.transitions, tr)
		return nil
	})
}

func (s *Store) MarkSectionViewed(ctx context.Context, v model.SectionView) error {
	return s.update(ctx, func(st *state) error {
		d, ok := st.drafts[v.DraftID]
		if !ok {
			return fmt.Errorf("%w: draft %s", repository.ErrNotFound, v.DraftID)
		}
		found := false
		for _, sec := range st.sections[v.DraftID] {
			if sec.ID == v.SectionID {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("%w: section %s", repository.ErrNotFound, v.SectionID)
		}
		k := viewKey{v.DraftID, v.SectionID, v.UserID}
		if _, ok := st.views[k]; !ok {
			st.views[k] = v
		}
		if v.ViewedAt.After(d.LastActivityAt) {
			d.LastActivityAt = v.ViewedAt
			st.drafts[d.ID] = d
		}
		return nil
	})
}

func (s *Store) ViewedSections(ctx context.Context, draftID, userID string) (map[string]bool, error) {
	out := map[string]bool{}
	err := s.view(ctx, func(st *state) error {
		for k := range st.views {
			if k.draftID == draftID && k.userID == userID {
				out[k.sectionID] = true
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) ListActive(ctx context.Context, tenantID string) ([]model.Draft, error) {
	out := make([]model.Draft, 0)
	err := s.view(ctx, func(st *state) error {
		for _, d := range st.drafts {
			if d.ArchivedAt != nil || !d.State.Active() {
				continue
			}
			if tenantID != "" && d.TenantID != tenantID {
				continue
			}
			out = append(out, cloneDraftHeader(d))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) Archive(ctx context.Context, draftID string, cutoff time.Time, tr model.Transition) (bool, error) {
	archived := false
	err := s.update(ctx, func(st *state) error {
		d, ok := st.drafts[draftID]
		if !ok || d.ArchivedAt != nil || d.State != model.StateDraft || d.LastActivityAt.After(cutoff) {
			return nil
		}
		at := tr.CreatedAt
		d.ArchivedAt = &at
		d.UpdatedAt = at
		st.drafts[draftID] = d
		for _, sec := range st.sections[draftID] {
			for _, it := range sec.Items {
				for _, id := range it.SourceEntryIDs {
					if e, ok := st.entries[id]; ok && e.Status == model.EntryDrafted {
						e.Status = model.EntryCandidate
						st.entries[id] = e
					}
				}
			}
		}
		st.transitions = append(st.transitions, tr)
		archived = true
		return nil
	})
	return archived, err
}

func (s *Store) CreateExport(ctx context.Context, ex *model.Export, tr model.Transition) error {
	return s.update(ctx, func(st *state) error {
		d, ok := st.drafts[ex.DraftID]
		if !ok {
			return fmt.Errorf("%w: draft %s", repository.ErrNotFound, ex.DraftID)
		}
		if d.State != model.StateSigned && d.State != model.StateExported {
			return repository.ErrStateChanged
		}
		for _, x := range st.exports {
			if x.StorageKey == ex.StorageKey {
				return fmt.Errorf("export storage key %s already recorded", ex.StorageKey)
			}
		}
		st.exports = append(st.exports, cloneExport(*ex))
		if d.State == tr.From {
			d.State = tr.To
			d.UpdatedAt = tr.CreatedAt
			d.LastActivityAt = tr.CreatedAt
			st.drafts[d.ID] = d
			st.transitions = append(st.transitions, tr)
		}
		return nil
	})
}

func (s *Store) GetExport(ctx context.Context, id string) (*model.Export, error) {
	var out model.Export
	err := s.view(ctx, func(st *state) error {
		for _, x := range st.exports {
			if x.ID == id {
				out = cloneExport(x)
				return nil
			}
		}
		return fmt.Errorf("%w: export %s", repository.ErrNotFound, id)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}
