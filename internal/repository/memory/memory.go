// Package memory is an in-process repository.Store. Every write runs against a
// cloned state that replaces the live one only when the whole write succeeds,
// so a failed call leaves nothing behind.
package memory

import (
	"context"
	"slices"
	"sync"

	"handover/internal/model"
	"handover/internal/repository"
)

type viewKey struct {
	draftID, sectionID, userID string
}

type state struct {
	entries     map[string]model.Entry
	proposals   map[string]model.EntryProposal
	corrections []model.CorrectionRequest
	gaps        []model.ClassificationGap

	drafts      map[string]model.Draft
	sections    map[string][]model.Section
	merges      map[string][]model.MergeProposal
	edits       []model.DraftEdit
	transitions []model.Transition
	signoffs    []model.Signoff
	views       map[viewKey]model.SectionView
	exports     []model.Export
}

func newState() state {
	return state{
		entries:   map[string]model.Entry{},
		proposals: map[string]model.EntryProposal{},
		drafts:    map[string]model.Draft{},
		sections:  map[string][]model.Section{},
		merges:    map[string][]model.MergeProposal{},
		views:     map[viewKey]model.SectionView{},
	}
}

func (s state) clone() state {
	out := newState()
	for k, v := range s.entries {
		out.entries[k] = cloneEntry(v)
	}
	for k, v := range s.proposals {
		out.proposals[k] = cloneProposal(v)
	}
	for k, v := range s.drafts {
		out.drafts[k] = cloneDraftHeader(v)
	}
	for k, v := range s.sections {
		out.sections[k] = cloneSections(v)
	}
	for k, v := range s.merges {
		out.merges[k] = cloneMerges(v)
	}
	for k, v := range s.views {
		out.views[k] = v
	}
	out.corrections = slices.Clone(s.corrections)
	out.gaps = slices.Clone(s.gaps)
	out.edits = slices.Clone(s.edits)
	out.transitions = slices.Clone(s.transitions)
	out.signoffs = slices.Clone(s.signoffs)
	out.exports = slices.Clone(s.exports)
	return out
}

// Store implements repository.Store in memory.
type Store struct {
	mu    sync.RWMutex
	state state
}

var _ repository.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{state: newState()}
}

func (s *Store) update(ctx context.Context, fn func(st *state) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.state.clone()
	if err := fn(&next); err != nil {
		return err
	}
	s.state = next
	return nil
}

func (s *Store) view(ctx context.Context, fn func(st *state) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(&s.state)
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneEntry(e model.Entry) model.Entry {
	cp := e
	cp.EntityRefs = slices.Clone(e.EntityRefs)
	cp.SourceRefs = slices.Clone(e.SourceRefs)
	cp.SupersededBy = clonePtr(e.SupersededBy)
	cp.ProposalID = clonePtr(e.ProposalID)
	cp.SecondaryDomains = slices.Clone(e.SecondaryDomains)
	cp.OwnerRoles = slices.Clone(e.OwnerRoles)
	cp.RiskTags = slices.Clone(e.RiskTags)
	cp.PrimaryEntity = clonePtr(e.PrimaryEntity)
	cp.UnresolvedKinds = slices.Clone(e.UnresolvedKinds)
	return cp
}

func cloneProposal(p model.EntryProposal) model.EntryProposal {
	cp := p
	cp.EntityRefs = slices.Clone(p.EntityRefs)
	cp.SourceRefs = slices.Clone(p.SourceRefs)
	cp.EntryID = clonePtr(p.EntryID)
	cp.DecidedBy = clonePtr(p.DecidedBy)
	cp.DecidedAt = clonePtr(p.DecidedAt)
	return cp
}

func cloneDraftHeader(d model.Draft) model.Draft {
	cp := d
	cp.OutgoingSignerID = clonePtr(d.OutgoingSignerID)
	cp.OutgoingSignedAt = clonePtr(d.OutgoingSignedAt)
	cp.IncomingSignerID = clonePtr(d.IncomingSignerID)
	cp.IncomingSignedAt = clonePtr(d.IncomingSignedAt)
	cp.ContentHash = clonePtr(d.ContentHash)
	cp.ArchivedAt = clonePtr(d.ArchivedAt)
	cp.Sections = nil
	cp.MergeProposals = nil
	return cp
}

func cloneSections(in []model.Section) []model.Section {
	out := make([]model.Section, len(in))
	for i, sec := range in {
		out[i] = sec
		out[i].Items = make([]model.DraftItem, len(sec.Items))
		for j, it := range sec.Items {
			out[i].Items[j] = cloneItem(it)
		}
	}
	return out
}

func cloneItem(it model.DraftItem) model.DraftItem {
	cp := it
	cp.SourceEntryIDs = slices.Clone(it.SourceEntryIDs)
	cp.SupersededBy = clonePtr(it.SupersededBy)
	return cp
}

func cloneMerges(in []model.MergeProposal) []model.MergeProposal {
	out := make([]model.MergeProposal, len(in))
	for i, m := range in {
		out[i] = m
		out[i].DecidedBy = clonePtr(m.DecidedBy)
		out[i].DecidedAt = clonePtr(m.DecidedAt)
	}
	return out
}

func cloneExport(x model.Export) model.Export {
	cp := x
	cp.Recipients = slices.Clone(x.Recipients)
	return cp
}
