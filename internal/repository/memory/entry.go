package memory

import (
	"context"
	"fmt"
	"sort"

	"handover/internal/model"
	"handover/internal/repository"
)

func (s *Store) CreateEntry(ctx context.Context, e *model.Entry, gap *model.ClassificationGap) error {
	return s.update(ctx, func(st *state) error {
		return insertEntry(st, e, gap)
	})
}

func insertEntry(st *state, e *model.Entry, gap *model.ClassificationGap) error {
	if _, ok := st.entries[e.ID]; ok {
		return fmt.Errorf("entry %s already exists", e.ID)
	}
	st.entries[e.ID] = cloneEntry(*e)
	if gap != nil {
		g := *gap
		g.UnresolvedKinds = append([]string(nil), gap.UnresolvedKinds...)
		st.gaps = append(st.gaps, g)
	}
	return nil
}

func (s *Store) GetEntry(ctx context.Context, id string) (*model.Entry, error) {
	var out model.Entry
	err := s.view(ctx, func(st *state) error {
		e, ok := st.entries[id]
		if !ok {
			return fmt.Errorf("%w: entry %s", repository.ErrNotFound, id)
		}
		out = cloneEntry(e)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func matchesEntry(e model.Entry, f repository.EntryFilter) bool {
	if e.TenantID != f.TenantID {
		return false
	}
	if f.Department != "" && f.Department != model.DepartmentAll && e.Department != f.Department {
		return false
	}
	if !f.From.IsZero() && e.CreatedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !e.CreatedAt.Before(f.To) {
		return false
	}
	return f.Status == "" || e.Status == f.Status
}

func (s *Store) ListEntries(ctx context.Context, f repository.EntryFilter) ([]model.Entry, error) {
	out := make([]model.Entry, 0)
	err := s.view(ctx, func(st *state) error {
		for _, e := range st.entries {
			if matchesEntry(e, f) {
				out = append(out, cloneEntry(e))
			}
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

func (s *Store) AppendSourceRefs(ctx context.Context, id string, refs []model.SourceRef) (*model.Entry, error) {
	var out model.Entry
	err := s.update(ctx, func(st *state) error {
		e, ok := st.entries[id]
		if !ok {
			return fmt.Errorf("%w: entry %s", repository.ErrNotFound, id)
		}
		seen := make(map[string]bool, len(e.SourceRefs))
		for _, r := range e.SourceRefs {
			seen[r.Key()] = true
		}
		for _, r := range refs {
			if seen[r.Key()] {
				continue
			}
			seen[r.Key()] = true
			e.SourceRefs = append(e.SourceRefs, r)
		}
		st.entries[id] = e
		out = cloneEntry(e)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Store) ResolvedEntryIDs(ctx context.Context, tenantID string, ids []string) (map[string]bool, error) {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	out := map[string]bool{}
	err := s.view(ctx, func(st *state) error {
		for _, e := range st.entries {
			if e.TenantID != tenantID {
				continue
			}
			for _, r := range e.SourceRefs {
				if r.Kind == model.SourceKindEntry && r.Relation == model.RelationResolves && want[r.ID] {
					out[r.ID] = true
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) CreateCorrection(ctx context.Context, c *model.CorrectionRequest) error {
	return s.update(ctx, func(st *state) error {
		if _, ok := st.entries[c.EntryID]; !ok {
			return fmt.Errorf("%w: entry %s", repository.ErrNotFound, c.EntryID)
		}
		st.corrections = append(st.corrections, *c)
		return nil
	})
}

func (s *Store) CreateProposal(ctx context.Context, p *model.EntryProposal) error {
	return s.update(ctx, func(st *state) error {
		if _, ok := st.proposals[p.ID]; ok {
			return fmt.Errorf("proposal %s already exists", p.ID)
		}
		st.proposals[p.ID] = cloneProposal(*p)
		return nil
	})
}

func (s *Store) GetProposal(ctx context.Context, id string) (*model.EntryProposal, error) {
	var out model.EntryProposal
	err := s.view(ctx, func(st *state) error {
		p, ok := st.proposals[id]
		if !ok {
			return fmt.Errorf("%w: proposal %s", repository.ErrNotFound, id)
		}
		out = cloneProposal(p)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func decideProposal(st *state, p *model.EntryProposal) error {
	cur, ok := st.proposals[p.ID]
	if !ok {
		return fmt.Errorf("%w: proposal %s", repository.ErrNotFound, p.ID)
	}
	if cur.Status != model.ProposalPending {
		return repository.ErrProposalDecided
	}
	cur.Status = p.Status
	cur.EntryID = clonePtr(p.EntryID)
	cur.DecidedBy = clonePtr(p.DecidedBy)
	cur.DecidedAt = clonePtr(p.DecidedAt)
	st.proposals[p.ID] = cur
	return nil
}

func (s *Store) AcceptProposal(ctx context.Context, p *model.EntryProposal, e *model.Entry, gap *model.ClassificationGap) error {
	return s.update(ctx, func(st *state) error {
		if err := decideProposal(st, p); err != nil {
			return err
		}
		return insertEntry(st, e, gap)
	})
}

func (s *Store) DismissProposal(ctx context.Context, p *model.EntryProposal) error {
	return s.update(ctx, func(st *state) error {
		return decideProposal(st, p)
	})
}
