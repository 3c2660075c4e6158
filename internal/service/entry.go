package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"handover/internal/classifier"
	"handover/internal/logging"
	"handover/internal/model"
	"handover/internal/repository"
)

// SubmitEntryInput is everything ingestion hands over for one entry. Entity
// references are already extracted.
type SubmitEntryInput struct {
	Department string
	Narrative  string
	EntityRefs []model.EntityRef
	SourceRefs []model.SourceRef
}

// ProposeEntryInput is a system-generated suggestion.
type ProposeEntryInput struct {
	Department string
	ProposedBy string
	Narrative  string
	EntityRefs []model.EntityRef
	SourceRefs []model.SourceRef
}

// CandidateQuery selects the candidate pool of a scope.
type CandidateQuery struct {
	Department  string
	PeriodStart time.Time
	PeriodEnd   time.Time
}

// EntryService defines the entry use cases. Entries are only ever created by
// an explicit call; proposals need a separate accept.
type EntryService interface {
	Submit(ctx context.Context, actor model.Actor, in SubmitEntryInput) (*model.Entry, error)
	Get(ctx context.Context, actor model.Actor, id string) (*model.Entry, error)
	ListCandidates(ctx context.Context, actor model.Actor, q CandidateQuery) ([]model.Entry, error)
	AppendSourceRefs(ctx context.Context, actor model.Actor, id string, refs []model.SourceRef) (*model.Entry, error)
	FlagMisclassification(ctx context.Context, actor model.Actor, id, suggestedDomain, note string) (*model.CorrectionRequest, error)

	Propose(ctx context.Context, actor model.Actor, in ProposeEntryInput) (*model.EntryProposal, error)
	AcceptProposal(ctx context.Context, actor model.Actor, proposalID string) (*model.Entry, error)
	DismissProposal(ctx context.Context, actor model.Actor, proposalID string) (*model.EntryProposal, error)
}

type entryService struct {
	deps Deps
	cls  *classifier.Classifier
	log  *logrus.Entry
}

// NewEntryService constructs an EntryService classifying with cls.
func NewEntryService(deps Deps, cls *classifier.Classifier) EntryService {
	deps = deps.withDefaults()
	return &entryService{deps: deps, cls: cls, log: logging.Component(deps.Log, "entries")}
}

func validRefs(refs []model.EntityRef) error {
	for i, r := range refs {
		if strings.TrimSpace(r.Kind) == "" || strings.TrimSpace(r.ID) == "" {
			return invalid("entity_refs[%d] needs kind and id", i)
		}
	}
	return nil
}

func validSourceRefs(refs []model.SourceRef) error {
	for i, r := range refs {
		if strings.TrimSpace(r.Kind) == "" || strings.TrimSpace(r.ID) == "" {
			return invalid("source_refs[%d] needs kind and id", i)
		}
	}
	return nil
}

func normDepartment(d string) string {
	d = strings.ToLower(strings.TrimSpace(d))
	if d == "" {
		return model.DepartmentAll
	}
	return d
}

// classify builds the entry and, when routing fell through to the catch-all
// bucket, the gap record to persist with it.
func (s *entryService) classify(e *model.Entry) *model.ClassificationGap {
	e.Classification = s.cls.Classify(e.EntityRefs, e.Narrative)
	if !e.Gap {
		return nil
	}
	s.deps.Metrics.ClassificationGap()
	s.log.WithFields(logrus.Fields{
		"event":            "classification_gap",
		"status":           "degraded",
		"tenant_id":        e.TenantID,
		"entry_id":         e.ID,
		"unresolved_kinds": e.UnresolvedKinds,
		"taxonomy_version": e.TaxonomyVersion,
	}).Warn("entry routed to catch-all bucket")
	return &model.ClassificationGap{
		ID:              s.deps.NewID(),
		TenantID:        e.TenantID,
		EntryID:         e.ID,
		UnresolvedKinds: append([]string{}, e.UnresolvedKinds...),
		TaxonomyVersion: e.TaxonomyVersion,
		CreatedAt:       e.CreatedAt,
	}
}

func (s *entryService) newEntry(actor model.Actor, department, narrative string, refs []model.EntityRef, srcs []model.SourceRef) *model.Entry {
	if refs == nil {
		refs = []model.EntityRef{}
	}
	if srcs == nil {
		srcs = []model.SourceRef{}
	}
	return &model.Entry{
		ID:         s.deps.NewID(),
		TenantID:   actor.TenantID,
		Department: department,
		CreatedAt:  s.deps.Now(),
		AuthorID:   actor.UserID,
		AuthorRole: actor.Role,
		Narrative:  narrative,
		EntityRefs: refs,
		SourceRefs: dedupeSourceRefs(srcs),
		Status:     model.EntryCandidate,
	}
}

func dedupeSourceRefs(refs []model.SourceRef) []model.SourceRef {
	out := make([]model.SourceRef, 0, len(refs))
	seen := map[string]bool{}
	for _, r := range refs {
		if seen[r.Key()] {
			continue
		}
		seen[r.Key()] = true
		out = append(out, r)
	}
	return out
}

func (s *entryService) Submit(ctx context.Context, actor model.Actor, in SubmitEntryInput) (e *model.Entry, err error) {
	ctx, span := startSpan(ctx, "entries.Submit")
	defer func() { endSpan(span, err) }()

	if err := checkActor(actor); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Narrative) == "" {
		return nil, invalid("narrative is required")
	}
	if err := validRefs(in.EntityRefs); err != nil {
		return nil, err
	}
	if err := validSourceRefs(in.SourceRefs); err != nil {
		return nil, err
	}

	e = s.newEntry(actor, normDepartment(in.Department), in.Narrative, in.EntityRefs, in.SourceRefs)
	if e.Department == model.DepartmentAll {
		return nil, invalid("entry department must be a concrete department")
	}
	gap := s.classify(e)
	if err := s.deps.Entries.CreateEntry(ctx, e, gap); err != nil {
		return nil, fmt.Errorf("save entry: %w", err)
	}
	logging.FromContext(ctx, s.log).WithFields(logrus.Fields{
		"event":     "entry_submitted",
		"status":    "success",
		"tenant_id": e.TenantID,
		"entry_id":  e.ID,
		"bucket":    e.Bucket,
	}).Info("entry submitted")
	return e, nil
}

func (s *entryService) Get(ctx context.Context, actor model.Actor, id string) (*model.Entry, error) {
	if err := checkActor(actor); err != nil {
		return nil, err
	}
	if id == "" {
		return nil, invalid("entry id is required")
	}
	e, err := s.deps.Entries.GetEntry(ctx, id)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	if e.TenantID != actor.TenantID {
		return nil, fmt.Errorf("%w: entry %s", ErrNotFound, id)
	}
	return e, nil
}

func (s *entryService) ListCandidates(ctx context.Context, actor model.Actor, q CandidateQuery) ([]model.Entry, error) {
	if err := checkActor(actor); err != nil {
		return nil, err
	}
	if !q.PeriodStart.IsZero() && !q.PeriodEnd.IsZero() && !q.PeriodEnd.After(q.PeriodStart) {
		return nil, invalid("period end must be after period start")
	}
	return s.deps.Entries.ListEntries(ctx, repository.EntryFilter{
		TenantID:   actor.TenantID,
		Department: normDepartment(q.Department),
		From:       q.PeriodStart,
		To:         q.PeriodEnd,
		Status:     model.EntryCandidate,
	})
}

func (s *entryService) AppendSourceRefs(ctx context.Context, actor model.Actor, id string, refs []model.SourceRef) (*model.Entry, error) {
	if len(refs) == 0 {
		return nil, invalid("at least one source reference is required")
	}
	if err := validSourceRefs(refs); err != nil {
		return nil, err
	}
	if _, err := s.Get(ctx, actor, id); err != nil {
		return nil, err
	}
	e, err := s.deps.Entries.AppendSourceRefs(ctx, id, refs)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	return e, nil
}

func (s *entryService) FlagMisclassification(ctx context.Context, actor model.Actor, id, suggestedDomain, note string) (*model.CorrectionRequest, error) {
	e, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	tax := s.cls.Taxonomy()
	suggested := strings.ToUpper(strings.TrimSpace(suggestedDomain))
	if _, ok := tax.Domain(suggested); !ok && suggested != tax.GeneralDomain {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDomain, suggestedDomain)
	}
	c := &model.CorrectionRequest{
		ID:              s.deps.NewID(),
		TenantID:        actor.TenantID,
		EntryID:         e.ID,
		RequestedBy:     actor.UserID,
		CurrentDomain:   e.PrimaryDomain,
		SuggestedDomain: suggested,
		Note:            strings.TrimSpace(note),
		CreatedAt:       s.deps.Now(),
	}
	if err := s.deps.Entries.CreateCorrection(ctx, c); err != nil {
		return nil, mapRepoErr(err)
	}
	logging.FromContext(ctx, s.log).WithFields(logrus.Fields{
		"event":            "misclassification_flagged",
		"status":           "recorded",
		"tenant_id":        c.TenantID,
		"entry_id":         c.EntryID,
		"current_domain":   c.CurrentDomain,
		"suggested_domain": c.SuggestedDomain,
	}).Info("correction request recorded")
	return c, nil
}

func (s *entryService) Propose(ctx context.Context, actor model.Actor, in ProposeEntryInput) (*model.EntryProposal, error) {
	if err := checkActor(actor); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Narrative) == "" {
		return nil, invalid("narrative is required")
	}
	if err := validRefs(in.EntityRefs); err != nil {
		return nil, err
	}
	if err := validSourceRefs(in.SourceRefs); err != nil {
		return nil, err
	}
	dept := normDepartment(in.Department)
	if dept == model.DepartmentAll {
		return nil, invalid("proposal department must be a concrete department")
	}
	by := in.ProposedBy
	if by == "" {
		by = actor.UserID
	}
	refs := in.EntityRefs
	if refs == nil {
		refs = []model.EntityRef{}
	}
	p := &model.EntryProposal{
		ID:         s.deps.NewID(),
		TenantID:   actor.TenantID,
		Department: dept,
		ProposedBy: by,
		Narrative:  in.Narrative,
		EntityRefs: refs,
		SourceRefs: dedupeSourceRefs(in.SourceRefs),
		Status:     model.ProposalPending,
		CreatedAt:  s.deps.Now(),
	}
	if err := s.deps.Entries.CreateProposal(ctx, p); err != nil {
		return nil, fmt.Errorf("save proposal: %w", err)
	}
	return p, nil
}

func (s *entryService) pendingProposal(ctx context.Context, actor model.Actor, id string) (*model.EntryProposal, error) {
	if err := checkActor(actor); err != nil {
		return nil, err
	}
	if id == "" {
		return nil, invalid("proposal id is required")
	}
	p, err := s.deps.Entries.GetProposal(ctx, id)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	if p.TenantID != actor.TenantID {
		return nil, fmt.Errorf("%w: proposal %s", ErrNotFound, id)
	}
	if p.Status != model.ProposalPending {
		return p, ErrProposalDecided
	}
	return p, nil
}

func (s *entryService) AcceptProposal(ctx context.Context, actor model.Actor, proposalID string) (e *model.Entry, err error) {
	ctx, span := startSpan(ctx, "entries.AcceptProposal")
	defer func() { endSpan(span, err) }()

	p, err := s.pendingProposal(ctx, actor, proposalID)
	if err != nil {
		return nil, err
	}
	e = s.newEntry(actor, p.Department, p.Narrative, p.EntityRefs, p.SourceRefs)
	e.ProposalID = &p.ID
	gap := s.classify(e)

	now := e.CreatedAt
	p.Status = model.ProposalAccepted
	p.EntryID = &e.ID
	p.DecidedBy = &actor.UserID
	p.DecidedAt = &now
	if err := s.deps.Entries.AcceptProposal(ctx, p, e, gap); err != nil {
		if errors.Is(err, repository.ErrProposalDecided) {
			return nil, ErrProposalDecided
		}
		return nil, fmt.Errorf("accept proposal: %w", err)
	}
	return e, nil
}

func (s *entryService) DismissProposal(ctx context.Context, actor model.Actor, proposalID string) (*model.EntryProposal, error) {
	p, err := s.pendingProposal(ctx, actor, proposalID)
	if err != nil {
		return p, err
	}
	now := s.deps.Now()
	p.Status = model.ProposalDismissed
	p.DecidedBy = &actor.UserID
	p.DecidedAt = &now
	if err := s.deps.Entries.DismissProposal(ctx, p); err != nil {
		return nil, mapRepoErr(err)
	}
	logging.FromContext(ctx, s.log).WithFields(logrus.Fields{
		"event":       "proposal_dismissed",
		"status":      "recorded",
		"tenant_id":   p.TenantID,
		"proposal_id": p.ID,
	}).Info("entry proposal dismissed")
	return p, nil
}
