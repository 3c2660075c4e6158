package mocks

import (
	"context"
	"time"

	"handover/internal/model"
	"handover/internal/repository"

	"github.com/stretchr/testify/mock"
)

type MockEntryRepository struct {
	mock.Mock
}

var _ repository.EntryRepository = (*MockEntryRepository)(nil)

func (m *MockEntryRepository) CreateEntry(ctx context.Context, e *model.Entry, gap *model.ClassificationGap) error {
	args := m.Called(ctx, e, gap)
	return args.Error(0)
}

func (m *MockEntryRepository) GetEntry(ctx context.Context, id string) (*model.Entry, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Entry), args.Error(1)
}

func (m *MockEntryRepository) ListEntries(ctx context.Context, f repository.EntryFilter) ([]model.Entry, error) {
	args := m.Called(ctx, f)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Entry), args.Error(1)
}

func (m *MockEntryRepository) AppendSourceRefs(ctx context.Context, id string, refs []model.SourceRef) (*model.Entry, error) {
	args := m.Called(ctx, id, refs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Entry), args.Error(1)
}

func (m *MockEntryRepository) ResolvedEntryIDs(ctx context.Context, tenantID string, ids []string) (map[string]bool, error) {
	args := m.Called(ctx, tenantID, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]bool), args.Error(1)
}

func (m *MockEntryRepository) CreateCorrection(ctx context.Context, c *model.CorrectionRequest) error {
	args := m.Called(ctx, c)
	return args.Error(0)
}

func (m *MockEntryRepository) CreateProposal(ctx context.Context, p *model.EntryProposal) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

func (m *MockEntryRepository) GetProposal(ctx context.Context, id string) (*model.EntryProposal, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.EntryProposal), args.Error(1)
}

func (m *MockEntryRepository) AcceptProposal(ctx context.Context, p *model.EntryProposal, e *model.Entry, gap *model.ClassificationGap) error {
	args := m.Called(ctx, p, e, gap)
	return args.Error(0)
}

func (m *MockEntryRepository) DismissProposal(ctx context.Context, p *model.EntryProposal) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

type MockDraftRepository struct {
	mock.Mock
}

var _ repository.DraftRepository = (*MockDraftRepository)(nil)

func (m *MockDraftRepository) FindActive(ctx context.Context, scope model.Scope) (*model.Draft, error) {
	args := m.Called(ctx, scope)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Draft), args.Error(1)
}

func (m *MockDraftRepository) GetDraft(ctx context.Context, id string) (*model.Draft, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Draft), args.Error(1)
}

func (m *MockDraftRepository) CreateDraft(ctx context.Context, nd repository.NewDraft) error {
	args := m.Called(ctx, nd)
	return args.Error(0)
}

func (m *MockDraftRepository) ApplyReview(ctx context.Context, ch repository.ReviewChange) error {
	args := m.Called(ctx, ch)
	return args.Error(0)
}

func (m *MockDraftRepository) ApplyTransition(ctx context.Context, ch repository.TransitionChange) error {
	args := m.Called(ctx, ch)
	return args.Error(0)
}

func (m *MockDraftRepository) MarkSectionViewed(ctx context.Context, v model.SectionView) error {
	args := m.Called(ctx, v)
	return args.Error(0)
}

func (m *MockDraftRepository) ViewedSections(ctx context.Context, draftID, userID string) (map[string]bool, error) {
	args := m.Called(ctx, draftID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]bool), args.Error(1)
}

func (m *MockDraftRepository) ListActive(ctx context.Context, tenantID string) ([]model.Draft, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Draft), args.Error(1)
}

func (m *MockDraftRepository) Archive(ctx context.Context, draftID string, cutoff time.Time, tr model.Transition) (bool, error) {
	args := m.Called(ctx, draftID, cutoff, tr)
	return args.Bool(0), args.Error(1)
}

func (m *MockDraftRepository) CreateExport(ctx context.Context, ex *model.Export, tr model.Transition) error {
	args := m.Called(ctx, ex, tr)
	return args.Error(0)
}

func (m *MockDraftRepository) GetExport(ctx context.Context, id string) (*model.Export, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Export), args.Error(1)
}

type MockAuditRepository struct {
	mock.Mock
}

var _ repository.AuditRepository = (*MockAuditRepository)(nil)

func (m *MockAuditRepository) ListEdits(ctx context.Context, draftID string) ([]model.DraftEdit, error) {
	args := m.Called(ctx, draftID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.DraftEdit), args.Error(1)
}

func (m *MockAuditRepository) ListEditsForEntry(ctx context.Context, entryID string) ([]model.DraftEdit, error) {
	args := m.Called(ctx, entryID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.DraftEdit), args.Error(1)
}

func (m *MockAuditRepository) ListTransitions(ctx context.Context, draftID string) ([]model.Transition, error) {
	args := m.Called(ctx, draftID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Transition), args.Error(1)
}

func (m *MockAuditRepository) ListSignoffs(ctx context.Context, draftID string) ([]model.Signoff, error) {
	args := m.Called(ctx, draftID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Signoff), args.Error(1)
}

func (m *MockAuditRepository) ListExports(ctx context.Context, draftID string) ([]model.Export, error) {
	args := m.Called(ctx, draftID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Export), args.Error(1)
}

func (m *MockAuditRepository) ListCorrections(ctx context.Context, entryID string) ([]model.CorrectionRequest, error) {
	args := m.Called(ctx, entryID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.CorrectionRequest), args.Error(1)
}
