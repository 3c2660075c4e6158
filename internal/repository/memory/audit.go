package memory

import (
	"context"
	"slices"

	"handover/internal/model"
)

func (s *Store) ListEdits(ctx context.Context, draftID string) ([]model.DraftEdit, error) {
	out := make([]model.DraftEdit, 0)
	err := s.view(ctx, func(st *state) error {
		for _, e := range st.edits {
			if e.DraftID == draftID {
				out = append(out, e)
			}
		}
		return nil
	})
	return out, err
}

func (s *Store) ListEditsForEntry(ctx context.Context, entryID string) ([]model.DraftEdit, error) {
	out := make([]model.DraftEdit, 0)
	err := s.view(ctx, func(st *state) error {
		carriers := map[string]bool{}
		for _, secs := range st.sections {
			for _, sec := range secs {
				for _, it := range sec.Items {
					if slices.Contains(it.SourceEntryIDs, entryID) {
						carriers[it.ID] = true
					}
				}
			}
		}
		for _, e := range st.edits {
			if carriers[e.ItemID] {
				out = append(out, e)
			}
		}
		return nil
	})
	return out, err
}

func (s *Store) ListTransitions(ctx context.Context, draftID string) ([]model.Transition, error) {
	out := make([]model.Transition, 0)
	err := s.view(ctx, func(st *state) error {
		for _, t := range st.transitions {
			if t.DraftID == draftID {
				out = append(out, t)
			}
		}
		return nil
	})
	return out, err
}

func (s *Store) ListSignoffs(ctx context.Context, draftID string) ([]model.Signoff, error) {
	out := make([]model.Signoff, 0)
	err := s.view(ctx, func(st *state) error {
		for _, so := range st.signoffs {
			if so.DraftID == draftID {
				out = append(out, so)
			}
		}
		return nil
	})
	return out, err
}

func (s *Store) ListExports(ctx context.Context, draftID string) ([]model.Export, error) {
	out := make([]model.Export, 0)
	err := s.view(ctx, func(st *state) error {
		for _, x := range st.exports {
			if x.DraftID == draftID {
				out = append(out, cloneExport(x))
			}
		}
		return nil
	})
	return out, err
}

func (s *Store) ListCorrections(ctx context.Context, entryID string) ([]model.CorrectionRequest, error) {
	out := make([]model.CorrectionRequest, 0)
	err := s.view(ctx, func(st *state) error {
		for _, c := range st.corrections {
			if c.EntryID == entryID {
				out = append(out, c)
			}
		}
		return nil
	})
	return out, err
}

// Gaps returns the recorded classification gaps.
func (s *Store) Gaps() []model.ClassificationGap {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.state.gaps)
}
