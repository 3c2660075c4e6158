package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"handover/internal/model"
	"handover/internal/repository"
)

var t0 = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

func entry(id string) *model.Entry {
	return &model.Entry{
		ID:         id,
		TenantID:   "t1",
		Department: "engineering",
		CreatedAt:  t0,
		AuthorID:   "u1",
		Narrative:  "generator 1 high exhaust temp",
		EntityRefs: []model.EntityRef{{Kind: "generator", ID: "GEN-1"}},
		Status:     model.EntryCandidate,
		Classification: model.Classification{
			PrimaryDomain: "ENG-02",
			Bucket:        "ENGINEERING",
		},
	}
}

func newDraft(id string, entryIDs ...string) repository.NewDraft {
	d := &model.Draft{
		ID:          id,
		TenantID:    "t1",
		Department:  "engineering",
		PeriodStart: t0,
		PeriodEnd:   t0.Add(24 * time.Hour),
		State:       model.StateDraft,
		EntryCount:  len(entryIDs),
		CreatedAt:   t0,
		Sections: []model.Section{{
			ID:           id + "-s1",
			DraftID:      id,
			Bucket:       "ENGINEERING",
			DisplayOrder: 1,
		}},
	}
	for i, eid := range entryIDs {
		d.Sections[0].Items = append(d.Sections[0].Items, model.DraftItem{
			ID:             id + "-i" + eid,
			DraftID:        id,
			SectionID:      id + "-s1",
			Text:           "text " + eid,
			Kind:           model.ItemEntry,
			Status:         model.ItemActive,
			SourceEntryIDs: []string{eid},
			DisplayOrder:   i + 1,
		})
	}
	return repository.NewDraft{
		Draft:      d,
		EntryIDs:   entryIDs,
		Transition: model.Transition{ID: id + "-t0", DraftID: id, To: model.StateDraft, Event: "generate", CreatedAt: t0},
	}
}

func seed(t *testing.T, s *Store, ids ...string) {
	t.Helper()
	for _, id := range ids {
		require.NoError(t, s.CreateEntry(context.Background(), entry(id), nil))
	}
}

func TestStore_CreateDraft(t *testing.T) {
	ctx := context.Background()

	t.Run("moves entries to drafted", func(t *testing.T) {
		s := New()
		seed(t, s, "e1", "e2")
		require.NoError(t, s.CreateDraft(ctx, newDraft("d1", "e1", "e2")))

		e, err := s.GetEntry(ctx, "e1")
		require.NoError(t, err)
		assert.Equal(t, model.EntryDrafted, e.Status)

		d, err := s.GetDraft(ctx, "d1")
		require.NoError(t, err)
		require.Len(t, d.Sections, 1)
		assert.Len(t, d.Sections[0].Items, 2)

		trs, _ := s.ListTransitions(ctx, "d1")
		assert.Len(t, trs, 1)
	})

	t.Run("second active draft for scope is rejected", func(t *testing.T) {
		s := New()
		seed(t, s, "e1", "e2")
		require.NoError(t, s.CreateDraft(ctx, newDraft("d1", "e1")))
		err := s.CreateDraft(ctx, newDraft("d2", "e2"))
		assert.ErrorIs(t, err, repository.ErrActiveScope)

		e, _ := s.GetEntry(ctx, "e2")
		assert.Equal(t, model.EntryCandidate, e.Status)
	})

	t.Run("failure leaves nothing behind", func(t *testing.T) {
		s := New()
		seed(t, s, "e1")
		err := s.CreateDraft(ctx, newDraft("d1", "e1", "missing"))
		assert.ErrorIs(t, err, repository.ErrEntriesChanged)

		_, err = s.GetDraft(ctx, "d1")
		assert.ErrorIs(t, err, repository.ErrNotFound)
		e, _ := s.GetEntry(ctx, "e1")
		assert.Equal(t, model.EntryCandidate, e.Status)
		trs, _ := s.ListTransitions(ctx, "d1")
		assert.Empty(t, trs)
	})
}

func TestStore_ApplyTransition(t *testing.T) {
	ctx := context.Background()
	s := New()
	seed(t, s, "e1")
	require.NoError(t, s.CreateDraft(ctx, newDraft("d1", "e1")))

	open := repository.TransitionChange{Transition: model.Transition{
		ID: "t1", DraftID: "d1", From: model.StateDraft, To: model.StateInReview, Event: "open_review", ActorID: "u1", CreatedAt: t0,
	}}
	require.NoError(t, s.ApplyTransition(ctx, open))
	assert.ErrorIs(t, s.ApplyTransition(ctx, open), repository.ErrStateChanged)

	accept := repository.TransitionChange{
		Transition:  model.Transition{ID: "t2", DraftID: "d1", From: model.StateInReview, To: model.StateAccepted, Event: "accept", ActorID: "u1", CreatedAt: t0},
		SetOutgoing: true,
		Signoff:     &model.Signoff{ID: "s1", DraftID: "d1", Role: model.RoleOutgoing, SignerID: "u1", Confirmed: true},
	}
	require.NoError(t, s.ApplyTransition(ctx, accept))

	self := repository.TransitionChange{
		Transition:  model.Transition{ID: "t3", DraftID: "d1", From: model.StateAccepted, To: model.StateSigned, Event: "sign", ActorID: "u1", CreatedAt: t0},
		SetIncoming: true,
	}
	assert.ErrorIs(t, s.ApplyTransition(ctx, self), repository.ErrStateChanged)

	d, _ := s.GetDraft(ctx, "d1")
	assert.Equal(t, model.StateAccepted, d.State)
	require.NotNil(t, d.OutgoingSignerID)
	assert.Equal(t, "u1", *d.OutgoingSignerID)
	assert.Nil(t, d.IncomingSignerID)

	hash := "sha256:abc"
	sign := repository.TransitionChange{
		Transition:  model.Transition{ID: "t4", DraftID: "d1", From: model.StateAccepted, To: model.StateSigned, Event: "sign", ActorID: "u2", CreatedAt: t0},
		SetIncoming: true,
		ContentHash: &hash,
	}
	require.NoError(t, s.ApplyTransition(ctx, sign))
	d, _ = s.GetDraft(ctx, "d1")
	assert.Equal(t, model.StateSigned, d.State)
	assert.Equal(t, "sha256:abc", *d.ContentHash)

	signoffs, _ := s.ListSignoffs(ctx, "d1")
	assert.Len(t, signoffs, 1)
}

func TestStore_ApplyReview(t *testing.T) {
	ctx := context.Background()
	s := New()
	seed(t, s, "e1", "e2")
	nd := newDraft("d1", "e1", "e2")
	nd.MergeProposals = []model.MergeProposal{{
		ID: "m1", DraftID: "d1", SurvivorItemID: "d1-ie1", MergedItemID: "d1-ie2", Status: model.MergePending,
	}}
	require.NoError(t, s.CreateDraft(ctx, nd))

	survivorPrior, mergedPrior := nd.Draft.Sections[0].Items[0], nd.Draft.Sections[0].Items[1]
	survivor := survivorPrior
	survivor.SourceEntryIDs = []string{"e1", "e2"}
	merged := mergedPrior
	merged.Status = model.ItemSuperseded
	merged.SupersededBy = &survivor.ID
	by := "u1"
	decided := model.MergeProposal{ID: "m1", Status: model.MergeAccepted, DecidedBy: &by, DecidedAt: &t0}

	ch := repository.ReviewChange{
		DraftID:           "d1",
		At:                t0.Add(time.Hour),
		Items:             []repository.ItemChange{{Prior: survivorPrior, Next: survivor}, {Prior: mergedPrior, Next: merged}},
		Edits:             []model.DraftEdit{{ID: "ed1", DraftID: "d1", ItemID: survivor.ID, Kind: model.EditMerge, EditorID: "u1"}},
		Proposal:          &decided,
		SupersededEntries: map[string]string{"e2": "e1"},
	}
	require.NoError(t, s.ApplyReview(ctx, ch))
	assert.ErrorIs(t, s.ApplyReview(ctx, ch), repository.ErrStateChanged)
	assert.ErrorIs(t, s.ApplyReview(ctx, repository.ReviewChange{DraftID: "d1", At: t0, Proposal: &decided}), repository.ErrProposalDecided)

	d, _ := s.GetDraft(ctx, "d1")
	assert.Equal(t, []string{"e1", "e2"}, d.Sections[0].Items[0].SourceEntryIDs)
	assert.Equal(t, model.ItemSuperseded, d.Sections[0].Items[1].Status)
	assert.Equal(t, model.MergeAccepted, d.MergeProposals[0].Status)
	assert.Equal(t, t0.Add(time.Hour), d.LastActivityAt)

	e2, _ := s.GetEntry(ctx, "e2")
	assert.Equal(t, model.EntrySuperseded, e2.Status)
	assert.Equal(t, "e1", *e2.SupersededBy)

	edits, _ := s.ListEditsForEntry(ctx, "e2")
	assert.Len(t, edits, 1)
}

func TestStore_ApplyReviewStaleItem(t *testing.T) {
	ctx := context.Background()
	s := New()
	seed(t, s, "e1", "e2")
	nd := newDraft("d1", "e1", "e2")
	require.NoError(t, s.CreateDraft(ctx, nd))
	prior := nd.Draft.Sections[0].Items[0]

	first := prior
	first.SourceEntryIDs = []string{"e1", "e2"}
	require.NoError(t, s.ApplyReview(ctx, repository.ReviewChange{
		DraftID: "d1", At: t0, Items: []repository.ItemChange{{Prior: prior, Next: first}},
	}))

	// Computed from the same snapshot, so it would drop e2 from the item.
	second := prior
	second.Text = "rewritten"
	err := s.ApplyReview(ctx, repository.ReviewChange{
		DraftID: "d1", At: t0,
		Items: []repository.ItemChange{{Prior: prior, Next: second}},
		Edits: []model.DraftEdit{{ID: "ed2", DraftID: "d1", ItemID: prior.ID, Kind: model.EditText, EditorID: "u2"}},
	})
	assert.ErrorIs(t, err, repository.ErrStateChanged)

	d, _ := s.GetDraft(ctx, "d1")
	assert.Equal(t, []string{"e1", "e2"}, d.Sections[0].Items[0].SourceEntryIDs)
	assert.Equal(t, prior.Text, d.Sections[0].Items[0].Text)
	edits, _ := s.ListEdits(ctx, "d1")
	assert.Empty(t, edits)

	missing := prior
	missing.ID = "nope"
	err = s.ApplyReview(ctx, repository.ReviewChange{DraftID: "d1", At: t0, Items: []repository.ItemChange{{Prior: missing, Next: missing}}})
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestStore_Archive(t *testing.T) {
	ctx := context.Background()
	s := New()
	seed(t, s, "e1")
	nd := newDraft("d1", "e1")
	nd.Draft.LastActivityAt = t0
	require.NoError(t, s.CreateDraft(ctx, nd))

	tr := model.Transition{ID: "ta", DraftID: "d1", From: model.StateDraft, To: model.StateDraft, Event: "archive", ActorID: "system", CreatedAt: t0.Add(200 * time.Hour)}
	ok, err := s.Archive(ctx, "d1", t0.Add(-time.Hour), tr)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.Archive(ctx, "d1", t0.Add(time.Hour), tr)
	require.NoError(t, err)
	assert.True(t, ok)

	e, _ := s.GetEntry(ctx, "e1")
	assert.Equal(t, model.EntryCandidate, e.Status)
	active, _ := s.ListActive(ctx, "t1")
	assert.Empty(t, active)

	// The scope is free again.
	require.NoError(t, s.CreateDraft(ctx, newDraft("d2", "e1")))
}

func TestStore_CreateExport(t *testing.T) {
	ctx := context.Background()
	s := New()
	seed(t, s, "e1")
	nd := newDraft("d1", "e1")
	nd.Draft.State = model.StateSigned
	require.NoError(t, s.CreateDraft(ctx, nd))

	tr := model.Transition{ID: "tx", DraftID: "d1", From: model.StateSigned, To: model.StateExported, Event: "export", CreatedAt: t0}
	require.NoError(t, s.CreateExport(ctx, &model.Export{ID: "x1", DraftID: "d1", StorageKey: "k1"}, tr))
	require.NoError(t, s.CreateExport(ctx, &model.Export{ID: "x2", DraftID: "d1", StorageKey: "k2"}, tr))
	assert.Error(t, s.CreateExport(ctx, &model.Export{ID: "x3", DraftID: "d1", StorageKey: "k2"}, tr))

	d, _ := s.GetDraft(ctx, "d1")
	assert.Equal(t, model.StateExported, d.State)
	exports, _ := s.ListExports(ctx, "d1")
	assert.Len(t, exports, 2)
	trs, _ := s.ListTransitions(ctx, "d1")
	assert.Len(t, trs, 2)

	x, err := s.GetExport(ctx, "x2")
	require.NoError(t, err)
	assert.Equal(t, "k2", x.StorageKey)
}

func TestStore_Entries(t *testing.T) {
	ctx := context.Background()
	s := New()
	seed(t, s, "e1", "e2")

	got, err := s.AppendSourceRefs(ctx, "e2", []model.SourceRef{
		{Kind: model.SourceKindEntry, ID: "e1", Relation: model.RelationResolves},
		{Kind: model.SourceKindEntry, ID: "e1", Relation: model.RelationResolves},
	})
	require.NoError(t, err)
	assert.Len(t, got.SourceRefs, 1)

	resolved, err := s.ResolvedEntryIDs(ctx, "t1", []string{"e1", "e2"})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"e1": true}, resolved)

	got.Narrative = "mutated"
	e2, _ := s.GetEntry(ctx, "e2")
	assert.Equal(t, "generator 1 high exhaust temp", e2.Narrative)

	list, err := s.ListEntries(ctx, repository.EntryFilter{TenantID: "t1", Department: model.DepartmentAll, Status: model.EntryCandidate})
	require.NoError(t, err)
	assert.Len(t, list, 2)

	list, _ = s.ListEntries(ctx, repository.EntryFilter{TenantID: "t1", From: t0.Add(time.Minute)})
	assert.Empty(t, list)
}

func TestStore_Proposals(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.CreateProposal(ctx, &model.EntryProposal{ID: "p1", TenantID: "t1", Status: model.ProposalPending}))

	eid := "e1"
	decided := &model.EntryProposal{ID: "p1", Status: model.ProposalAccepted, EntryID: &eid}
	gap := &model.ClassificationGap{ID: "g1", EntryID: "e1", UnresolvedKinds: []string{"drone"}}
	require.NoError(t, s.AcceptProposal(ctx, decided, entry("e1"), gap))
	assert.ErrorIs(t, s.DismissProposal(ctx, decided), repository.ErrProposalDecided)

	p, _ := s.GetProposal(ctx, "p1")
	assert.Equal(t, model.ProposalAccepted, p.Status)
	assert.Len(t, s.Gaps(), 1)

	_, err := s.GetProposal(ctx, "nope")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestStore_SectionViews(t *testing.T) {
	ctx := context.Background()
	s := New()
	seed(t, s, "e1")
	require.NoError(t, s.CreateDraft(ctx, newDraft("d1", "e1")))

	require.NoError(t, s.MarkSectionViewed(ctx, model.SectionView{DraftID: "d1", SectionID: "d1-s1", UserID: "u1", ViewedAt: t0}))
	require.NoError(t, s.MarkSectionViewed(ctx, model.SectionView{DraftID: "d1", SectionID: "d1-s1", UserID: "u1", ViewedAt: t0}))
	assert.ErrorIs(t, s.MarkSectionViewed(ctx, model.SectionView{DraftID: "d1", SectionID: "nope", UserID: "u1"}), repository.ErrNotFound)

	seen, err := s.ViewedSections(ctx, "d1", "u1")
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"d1-s1": true}, seen)

	later := t0.Add(3 * time.Hour)
	require.NoError(t, s.MarkSectionViewed(ctx, model.SectionView{DraftID: "d1", SectionID: "d1-s1", UserID: "u2", ViewedAt: later}))
	require.NoError(t, s.MarkSectionViewed(ctx, model.SectionView{DraftID: "d1", SectionID: "d1-s1", UserID: "u3", ViewedAt: t0}))
	d, err := s.GetDraft(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, later, d.LastActivityAt, "views keep the draft active and never move activity back")
}
