package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"handover/internal/classifier"
	"handover/internal/logging"
	"handover/internal/model"
	"handover/internal/repository"
	repoMocks "handover/internal/repository/mocks"
	"handover/internal/taxonomy"
)

func TestEntryService_Submit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	e, err := f.entries.Submit(ctx, alice, SubmitEntryInput{
		Department: " Engineering ",
		Narrative:  "Fire panel fault zone 4, unresolved",
		EntityRefs: []model.EntityRef{ref("fire_panel", "FP-1")},
		SourceRefs: []model.SourceRef{{Kind: "ledger", ID: "L1"}, {Kind: "ledger", ID: "L1"}},
	})
	require.NoError(t, err)

	assert.Equal(t, model.EntryCandidate, e.Status)
	assert.Equal(t, "engineering", e.Department)
	assert.Equal(t, "alice", e.AuthorID)
	assert.Equal(t, "chief_engineer", e.AuthorRole)
	assert.Equal(t, "ETO-03", e.PrimaryDomain)
	assert.Equal(t, "ETO", e.Bucket)
	assert.Contains(t, e.RiskTags, "SAFETY_CRITICAL")
	assert.Len(t, e.SourceRefs, 1, "duplicate source references are collapsed")
	assert.False(t, e.Gap)

	stored, err := f.entries.Get(ctx, alice, e.ID)
	require.NoError(t, err)
	assert.Equal(t, e.Narrative, stored.Narrative)

	_, err = f.entries.Get(ctx, stranger, e.ID)
	assert.ErrorIs(t, err, ErrNotFound, "other tenants cannot see the entry")
}

func TestEntryService_SubmitLogsRequestID(t *testing.T) {
	f := newFixture(t)
	ctx := logging.WithRequestID(context.Background(), "rid-bridge-7")

	e, err := f.entries.Submit(ctx, alice, SubmitEntryInput{
		Department: "engineering",
		Narrative:  "Fire panel zone 2 fault cleared, monitoring",
		EntityRefs: []model.EntityRef{ref("fire_panel", "FP-1")},
	})
	require.NoError(t, err)

	var submitted *logrus.Entry
	for _, le := range f.hook.AllEntries() {
		if le.Data["event"] == "entry_submitted" && le.Data["entry_id"] == e.ID {
			submitted = le
		}
	}
	require.NotNil(t, submitted)
	assert.Equal(t, "entries", submitted.Data["component"])
	assert.Equal(t, "rid-bridge-7", submitted.Data["request_id"])
}

func TestEntryService_SubmitClassificationGap(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	e, err := f.entries.Submit(ctx, alice, SubmitEntryInput{
		Department: "deck",
		Narrative:  "Sea bob battery swollen",
		EntityRefs: []model.EntityRef{ref("seabob", "SB-1")},
	})
	require.NoError(t, err, "a gap never blocks entry creation")

	assert.True(t, e.Gap)
	assert.Equal(t, "GENERAL", e.PrimaryDomain)
	assert.Equal(t, "GENERAL", e.Bucket)
	assert.Equal(t, []string{"seabob"}, e.UnresolvedKinds)

	gaps := f.store.Gaps()
	require.Len(t, gaps, 1)
	assert.Equal(t, e.ID, gaps[0].EntryID)
	assert.Equal(t, []string{"seabob"}, gaps[0].UnresolvedKinds)

	var warned *logrus.Entry
	for _, le := range f.hook.AllEntries() {
		if le.Data["event"] == "classification_gap" {
			warned = le
		}
	}
	require.NotNil(t, warned)
	assert.Equal(t, logrus.WarnLevel, warned.Level)
	assert.Equal(t, e.ID, warned.Data["entry_id"])

	expected := `
# HELP handover_classification_gaps_total Entries with at least one entity kind missing from the taxonomy.
# TYPE handover_classification_gaps_total counter
handover_classification_gaps_total 1
`
	assert.NoError(t, testutil.GatherAndCompare(f.reg, strings.NewReader(expected), "handover_classification_gaps_total"))
}

func TestEntryService_SubmitValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	tests := []struct {
		name    string
		actor   model.Actor
		in      SubmitEntryInput
		wantErr error
	}{
		{name: "missing identity", actor: model.Actor{UserID: "alice"}, in: SubmitEntryInput{Department: "deck", Narrative: "x"}, wantErr: ErrIdentityRequired},
		{name: "empty narrative", actor: alice, in: SubmitEntryInput{Department: "deck", Narrative: "  "}, wantErr: ErrValidation},
		{name: "entity ref without id", actor: alice, in: SubmitEntryInput{Department: "deck", Narrative: "x", EntityRefs: []model.EntityRef{{Kind: "tender"}}}, wantErr: ErrValidation},
		{name: "source ref without kind", actor: alice, in: SubmitEntryInput{Department: "deck", Narrative: "x", SourceRefs: []model.SourceRef{{ID: "1"}}}, wantErr: ErrValidation},
		{name: "all departments", actor: alice, in: SubmitEntryInput{Department: "all", Narrative: "x"}, wantErr: ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.entries.Submit(ctx, tt.actor, tt.in)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestEntryService_ListCandidatesAndAppend(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	a := f.submit(t, alice, "engineering", "Generator 2 tripped", ref("generator", "GEN-2"))
	f.submit(t, alice, "deck", "Tender 1 outboard serviced", ref("tender", "T-1"))

	got, err := f.entries.ListCandidates(ctx, alice, CandidateQuery{Department: "engineering", PeriodStart: day, PeriodEnd: day.AddDate(0, 0, 1)})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, a.ID, got[0].ID)

	all, err := f.entries.ListCandidates(ctx, alice, CandidateQuery{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = f.entries.ListCandidates(ctx, alice, CandidateQuery{PeriodStart: day, PeriodEnd: day})
	assert.ErrorIs(t, err, ErrValidation)

	refs := []model.SourceRef{{Kind: "work_order", ID: "WO-9"}}
	e, err := f.entries.AppendSourceRefs(ctx, alice, a.ID, refs)
	require.NoError(t, err)
	assert.Equal(t, refs, e.SourceRefs)

	e, err = f.entries.AppendSourceRefs(ctx, alice, a.ID, refs)
	require.NoError(t, err)
	assert.Len(t, e.SourceRefs, 1, "appending is idempotent")
	assert.Equal(t, "Generator 2 tripped", e.Narrative)

	_, err = f.entries.AppendSourceRefs(ctx, alice, a.ID, nil)
	assert.ErrorIs(t, err, ErrValidation)
	_, err = f.entries.AppendSourceRefs(ctx, stranger, a.ID, refs)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEntryService_FlagMisclassification(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	e := f.submit(t, alice, "engineering", "Crane hydraulic leak", ref("deck_crane", "CR-1"))

	c, err := f.entries.FlagMisclassification(ctx, bob, e.ID, "eng-00", "hydraulics belong to engineering")
	require.NoError(t, err)
	assert.Equal(t, "DECK-01", c.CurrentDomain)
	assert.Equal(t, "ENG-00", c.SuggestedDomain)
	assert.Equal(t, "bob", c.RequestedBy)

	stored, err := f.entries.Get(ctx, alice, e.ID)
	require.NoError(t, err)
	assert.Equal(t, "DECK-01", stored.PrimaryDomain, "classification is never changed synchronously")

	_, err = f.entries.FlagMisclassification(ctx, bob, e.ID, "NOPE-1", "")
	assert.ErrorIs(t, err, ErrUnknownDomain)

	trail, err := f.audit.EntryTrail(ctx, alice, e.ID)
	require.NoError(t, err)
	require.Len(t, trail, 2)
	assert.Equal(t, model.AuditEntryCreated, trail[0].Kind)
	assert.Equal(t, model.AuditCorrection, trail[1].Kind)
}

func TestEntryService_Proposals(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	p, err := f.entries.Propose(ctx, alice, ProposeEntryInput{
		Department: "engineering",
		ProposedBy: "ledger-watcher",
		Narrative:  "Generator 1 running hours passed service interval",
		EntityRefs: []model.EntityRef{ref("generator", "GEN-1")},
	})
	require.NoError(t, err)
	assert.Equal(t, model.ProposalPending, p.Status)

	pool, err := f.entries.ListCandidates(ctx, alice, CandidateQuery{})
	require.NoError(t, err)
	assert.Empty(t, pool, "a proposal is not an entry")

	e, err := f.entries.AcceptProposal(ctx, bob, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "bob", e.AuthorID)
	require.NotNil(t, e.ProposalID)
	assert.Equal(t, p.ID, *e.ProposalID)
	assert.Equal(t, "ENG-02", e.PrimaryDomain)

	_, err = f.entries.AcceptProposal(ctx, bob, p.ID)
	assert.ErrorIs(t, err, ErrProposalDecided)

	p2, err := f.entries.Propose(ctx, alice, ProposeEntryInput{Department: "deck", Narrative: "Anchor chain marking faded"})
	require.NoError(t, err)
	assert.Equal(t, "alice", p2.ProposedBy)
	dismissed, err := f.entries.DismissProposal(ctx, alice, p2.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ProposalDismissed, dismissed.Status)

	pool, err = f.entries.ListCandidates(ctx, alice, CandidateQuery{})
	require.NoError(t, err)
	assert.Len(t, pool, 1, "dismissal creates no entry")

	_, err = f.entries.DismissProposal(ctx, stranger, p2.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEntryService_RepositoryErrors(t *testing.T) {
	ctx := context.Background()
	tax, err := taxonomy.Default()
	require.NoError(t, err)

	tests := []struct {
		name       string
		setupMocks func(mRepo *repoMocks.MockEntryRepository)
		call       func(svc EntryService) error
		wantErr    error
		wantErrMsg string
	}{
		{
			name: "submit save fails",
			setupMocks: func(mRepo *repoMocks.MockEntryRepository) {
				mRepo.On("CreateEntry", mock.Anything, mock.Anything, (*model.ClassificationGap)(nil)).Return(errors.New("db fail"))
			},
			call: func(svc EntryService) error {
				_, err := svc.Submit(ctx, alice, SubmitEntryInput{Department: "deck", Narrative: "Tender serviced", EntityRefs: []model.EntityRef{ref("tender", "T1")}})
				return err
			},
			wantErrMsg: "save entry: db fail",
		},
		{
			name: "get missing entry",
			setupMocks: func(mRepo *repoMocks.MockEntryRepository) {
				mRepo.On("GetEntry", mock.Anything, "e1").Return(nil, repository.ErrNotFound)
			},
			call: func(svc EntryService) error {
				_, err := svc.Get(ctx, alice, "e1")
				return err
			},
			wantErr: ErrNotFound,
		},
		{
			name: "accept proposal raced",
			setupMocks: func(mRepo *repoMocks.MockEntryRepository) {
				mRepo.On("GetProposal", mock.Anything, "p1").
					Return(&model.EntryProposal{ID: "p1", TenantID: "t1", Department: "deck", Narrative: "x", Status: model.ProposalPending}, nil)
				mRepo.On("AcceptProposal", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(repository.ErrProposalDecided)
			},
			call: func(svc EntryService) error {
				_, err := svc.AcceptProposal(ctx, alice, "p1")
				return err
			},
			wantErr: ErrProposalDecided,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mRepo := new(repoMocks.MockEntryRepository)
			svc := NewEntryService(Deps{Entries: mRepo}, classifier.New(tax))

			tt.setupMocks(mRepo)

			err := tt.call(svc)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErrMsg)
			}
			mRepo.AssertExpectations(t)
		})
	}
}
