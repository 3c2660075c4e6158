package mocks

import (
	"context"

	"handover/internal/model"
	"handover/internal/service"

	"github.com/stretchr/testify/mock"
)

type MockEntryService struct {
	mock.Mock
}

var _ service.EntryService = (*MockEntryService)(nil)

func (m *MockEntryService) Submit(ctx context.Context, actor model.Actor, in service.SubmitEntryInput) (*model.Entry, error) {
	args := m.Called(ctx, actor, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Entry), args.Error(1)
}

func (m *MockEntryService) Get(ctx context.Context, actor model.Actor, id string) (*model.Entry, error) {
	args := m.Called(ctx, actor, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Entry), args.Error(1)
}

func (m *MockEntryService) ListCandidates(ctx context.Context, actor model.Actor, q service.CandidateQuery) ([]model.Entry, error) {
	args := m.Called(ctx, actor, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Entry), args.Error(1)
}

func (m *MockEntryService) AppendSourceRefs(ctx context.Context, actor model.Actor, id string, refs []model.SourceRef) (*model.Entry, error) {
	args := m.Called(ctx, actor, id, refs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Entry), args.Error(1)
}

func (m *MockEntryService) FlagMisclassification(ctx context.Context, actor model.Actor, id, suggestedDomain, note string) (*model.CorrectionRequest, error) {
	args := m.Called(ctx, actor, id, suggestedDomain, note)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.CorrectionRequest), args.Error(1)
}

func (m *MockEntryService) Propose(ctx context.Context, actor model.Actor, in service.ProposeEntryInput) (*model.EntryProposal, error) {
	args := m.Called(ctx, actor, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.EntryProposal), args.Error(1)
}

func (m *MockEntryService) AcceptProposal(ctx context.Context, actor model.Actor, proposalID string) (*model.Entry, error) {
	args := m.Called(ctx, actor, proposalID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Entry), args.Error(1)
}

func (m *MockEntryService) DismissProposal(ctx context.Context, actor model.Actor, proposalID string) (*model.EntryProposal, error) {
	args := m.Called(ctx, actor, proposalID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.EntryProposal), args.Error(1)
}

type MockDraftService struct {
	mock.Mock
}

var _ service.DraftService = (*MockDraftService)(nil)

func (m *MockDraftService) Generate(ctx context.Context, actor model.Actor, in service.GenerateInput) (*model.Draft, error) {
	args := m.Called(ctx, actor, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Draft), args.Error(1)
}

func (m *MockDraftService) Get(ctx context.Context, actor model.Actor, id string) (*model.Draft, error) {
	args := m.Called(ctx, actor, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Draft), args.Error(1)
}

func (m *MockDraftService) ListActive(ctx context.Context, actor model.Actor) ([]model.Draft, error) {
	args := m.Called(ctx, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Draft), args.Error(1)
}

func (m *MockDraftService) EditItem(ctx context.Context, actor model.Actor, draftID, itemID, text string) (*model.Draft, error) {
	args := m.Called(ctx, actor, draftID, itemID, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Draft), args.Error(1)
}

func (m *MockDraftService) AcceptMerge(ctx context.Context, actor model.Actor, draftID, proposalID string) (*model.Draft, error) {
	args := m.Called(ctx, actor, draftID, proposalID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Draft), args.Error(1)
}

func (m *MockDraftService) DismissMerge(ctx context.Context, actor model.Actor, draftID, proposalID string) (*model.Draft, error) {
	args := m.Called(ctx, actor, draftID, proposalID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Draft), args.Error(1)
}

func (m *MockDraftService) MarkSectionViewed(ctx context.Context, actor model.Actor, draftID, sectionID string) (*model.Draft, error) {
	args := m.Called(ctx, actor, draftID, sectionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Draft), args.Error(1)
}

func (m *MockDraftService) OpenReview(ctx context.Context, actor model.Actor, draftID string) (*model.Draft, error) {
	args := m.Called(ctx, actor, draftID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Draft), args.Error(1)
}

func (m *MockDraftService) Abandon(ctx context.Context, actor model.Actor, draftID string) (*model.Draft, error) {
	args := m.Called(ctx, actor, draftID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Draft), args.Error(1)
}

func (m *MockDraftService) Accept(ctx context.Context, actor model.Actor, draftID string, confirmed bool) (*model.Draft, error) {
	args := m.Called(ctx, actor, draftID, confirmed)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Draft), args.Error(1)
}

func (m *MockDraftService) Reject(ctx context.Context, actor model.Actor, draftID, reason string) (*model.Draft, error) {
	args := m.Called(ctx, actor, draftID, reason)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Draft), args.Error(1)
}

func (m *MockDraftService) Sign(ctx context.Context, actor model.Actor, draftID string, confirmed bool) (*model.Draft, error) {
	args := m.Called(ctx, actor, draftID, confirmed)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Draft), args.Error(1)
}

type MockExportService struct {
	mock.Mock
}

var _ service.ExportService = (*MockExportService)(nil)

func (m *MockExportService) List(ctx context.Context, actor model.Actor, draftID string) ([]model.Export, error) {
	args := m.Called(ctx, actor, draftID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Export), args.Error(1)
}

func (m *MockExportService) Export(ctx context.Context, actor model.Actor, draftID string, t model.ArtifactType, recipients []string) (*model.Export, *model.Draft, error) {
	args := m.Called(ctx, actor, draftID, t, recipients)
	ex, _ := args.Get(0).(*model.Export)
	d, _ := args.Get(1).(*model.Draft)
	return ex, d, args.Error(2)
}

func (m *MockExportService) DownloadURL(ctx context.Context, actor model.Actor, exportID string) (string, error) {
	args := m.Called(ctx, actor, exportID)
	return args.String(0), args.Error(1)
}

func (m *MockExportService) Verify(ctx context.Context, actor model.Actor, exportID string) (*service.VerifyResult, error) {
	args := m.Called(ctx, actor, exportID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.VerifyResult), args.Error(1)
}

type MockAuditService struct {
	mock.Mock
}

var _ service.AuditService = (*MockAuditService)(nil)

func (m *MockAuditService) DraftTrail(ctx context.Context, actor model.Actor, draftID string) ([]model.AuditEvent, error) {
	args := m.Called(ctx, actor, draftID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.AuditEvent), args.Error(1)
}

func (m *MockAuditService) EntryTrail(ctx context.Context, actor model.Actor, entryID string) ([]model.AuditEvent, error) {
	args := m.Called(ctx, actor, entryID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.AuditEvent), args.Error(1)
}
