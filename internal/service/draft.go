package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"handover/internal/assembler"
	"handover/internal/contenthash"
	"handover/internal/lock"
	"handover/internal/logging"
	"handover/internal/metrics"
	"handover/internal/model"
	"handover/internal/repository"
	"handover/internal/workflow"
)

// Events recorded in the transition log that are not user requests.
const (
	EventGenerate = "generate"
	EventArchive  = "archive"
	systemActor   = "system"
)

// StaleConfig holds the inactivity thresholds of the signoff lifecycle.
type StaleConfig struct {
	ArchiveAfter       time.Duration
	ReviewStaleAfter   time.Duration
	AcceptedStaleAfter time.Duration
}

func (c StaleConfig) withDefaults() StaleConfig {
	if c.ArchiveAfter <= 0 {
		c.ArchiveAfter = 7 * 24 * time.Hour
	}
	if c.ReviewStaleAfter <= 0 {
		c.ReviewStaleAfter = 48 * time.Hour
	}
	if c.AcceptedStaleAfter <= 0 {
		c.AcceptedStaleAfter = 24 * time.Hour
	}
	return c
}

// staleWarning returns a warning for drafts waiting on a human for too long.
// Stale drafts are never transitioned automatically.
func staleWarning(d *model.Draft, cfg StaleConfig, now time.Time) string {
	idle := now.Sub(d.LastActivityAt)
	switch d.State {
	case model.StateInReview:
		if idle >= cfg.ReviewStaleAfter {
			return fmt.Sprintf("draft has been in review without activity for %s", idle.Truncate(time.Hour))
		}
	case model.StateAccepted:
		if idle >= cfg.AcceptedStaleAfter {
			return fmt.Sprintf("draft has been accepted and awaiting incoming signature for %s", idle.Truncate(time.Hour))
		}
	}
	return ""
}

// GenerateInput is the scope of a new draft. Department "all" pools every
// department of the tenant.
type GenerateInput struct {
	Department  string
	PeriodStart time.Time
	PeriodEnd   time.Time
}

// DraftService defines the draft assembly, review and signoff use cases.
// Every mutating call returns the current stored draft alongside an error
// whenever the draft exists.
type DraftService interface {
	Generate(ctx context.Context, actor model.Actor, in GenerateInput) (*model.Draft, error)
	Get(ctx context.Context, actor model.Actor, id string) (*model.Draft, error)
	ListActive(ctx context.Context, actor model.Actor) ([]model.Draft, error)

	EditItem(ctx context.Context, actor model.Actor, draftID, itemID, text string) (*model.Draft, error)
	AcceptMerge(ctx context.Context, actor model.Actor, draftID, proposalID string) (*model.Draft, error)
	DismissMerge(ctx context.Context, actor model.Actor, draftID, proposalID string) (*model.Draft, error)
	MarkSectionViewed(ctx context.Context, actor model.Actor, draftID, sectionID string) (*model.Draft, error)

	OpenReview(ctx context.Context, actor model.Actor, draftID string) (*model.Draft, error)
	Abandon(ctx context.Context, actor model.Actor, draftID string) (*model.Draft, error)
	Accept(ctx context.Context, actor model.Actor, draftID string, confirmed bool) (*model.Draft, error)
	Reject(ctx context.Context, actor model.Actor, draftID, reason string) (*model.Draft, error)
	Sign(ctx context.Context, actor model.Actor, draftID string, confirmed bool) (*model.Draft, error)
}

type draftService struct {
	deps  Deps
	asm   *assembler.Assembler
	stale StaleConfig
	log   *logrus.Entry
}

// NewDraftService constructs a DraftService.
func NewDraftService(deps Deps, asm *assembler.Assembler, stale StaleConfig) DraftService {
	deps = deps.withDefaults()
	return &draftService{deps: deps, asm: asm, stale: stale.withDefaults(), log: logging.Component(deps.Log, "drafts")}
}

// current re-reads a draft for returning alongside an error. Read failures
// fall back to the copy the caller already holds.
func (s *draftService) current(ctx context.Context, fallback *model.Draft) *model.Draft {
	if fallback == nil {
		return nil
	}
	d, err := s.deps.Drafts.GetDraft(context.WithoutCancel(ctx), fallback.ID)
	if err != nil {
		return fallback
	}
	d.StaleWarning = staleWarning(d, s.stale, s.deps.Now())
	return d
}

func (s *draftService) Get(ctx context.Context, actor model.Actor, id string) (*model.Draft, error) {
	if err := checkActor(actor); err != nil {
		return nil, err
	}
	d, err := loadDraft(ctx, s.deps.Drafts, actor, id)
	if err != nil {
		return nil, err
	}
	d.StaleWarning = staleWarning(d, s.stale, s.deps.Now())
	return d, nil
}

func (s *draftService) ListActive(ctx context.Context, actor model.Actor) ([]model.Draft, error) {
	if err := checkActor(actor); err != nil {
		return nil, err
	}
	ds, err := s.deps.Drafts.ListActive(ctx, actor.TenantID)
	if err != nil {
		return nil, err
	}
	now := s.deps.Now()
	for i := range ds {
		ds[i].StaleWarning = staleWarning(&ds[i], s.stale, now)
	}
	return ds, nil
}

// conflict loads the active draft of scope and reports it as a ConflictError.
func (s *draftService) conflict(ctx context.Context, scope model.Scope) (*model.Draft, error) {
	existing, err := s.deps.Drafts.FindActive(ctx, scope)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find active draft: %w", err)
	}
	full := s.current(ctx, existing)
	return full, &ConflictError{ExistingDraftID: existing.ID, State: existing.State}
}

func (s *draftService) Generate(ctx context.Context, actor model.Actor, in GenerateInput) (d *model.Draft, err error) {
	ctx, span := startSpan(ctx, "drafts.Generate")
	defer func() { endSpan(span, err) }()

	if err := checkActor(actor); err != nil {
		return nil, err
	}
	if in.PeriodStart.IsZero() || in.PeriodEnd.IsZero() {
		return nil, invalid("period start and end are required")
	}
	if !in.PeriodEnd.After(in.PeriodStart) {
		return nil, invalid("period end must be after period start")
	}
	scope := model.Scope{
		TenantID:    actor.TenantID,
		Department:  normDepartment(in.Department),
		PeriodStart: in.PeriodStart.UTC(),
		PeriodEnd:   in.PeriodEnd.UTC(),
	}
	log := logging.FromContext(ctx, s.log).WithFields(logrus.Fields{
		"tenant_id":    scope.TenantID,
		"department":   scope.Department,
		"period_start": scope.PeriodStart,
		"period_end":   scope.PeriodEnd,
	})

	if existing, cerr := s.conflict(ctx, scope); cerr != nil {
		s.deps.Metrics.Assembly(metrics.OutcomeConflict, 0, 0)
		return existing, cerr
	}

	release, err := s.deps.Locker.Obtain(ctx, lock.ScopeKey(scope))
	if errors.Is(err, lock.ErrNotObtained) {
		s.deps.Metrics.Assembly(metrics.OutcomeConflict, 0, 0)
		return nil, ErrAssemblyInProgress
	}
	if err != nil {
		return nil, &GenerationError{Err: err}
	}
	defer func() {
		if rerr := release(context.WithoutCancel(ctx)); rerr != nil {
			log.WithError(rerr).Warn("release assembly lock")
		}
	}()

	// Another replica may have committed between the first check and the lock.
	if existing, cerr := s.conflict(ctx, scope); cerr != nil {
		s.deps.Metrics.Assembly(metrics.OutcomeConflict, 0, 0)
		return existing, cerr
	}

	started := time.Now()
	entries, err := s.deps.Entries.ListEntries(ctx, repository.EntryFilter{
		TenantID:   scope.TenantID,
		Department: scope.Department,
		From:       scope.PeriodStart,
		To:         scope.PeriodEnd,
		Status:     model.EntryCandidate,
	})
	if err != nil {
		s.deps.Metrics.Assembly(metrics.OutcomeFailed, time.Since(started), 0)
		return nil, &GenerationError{Err: fmt.Errorf("list candidates: %w", err)}
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.ID)
	}
	resolved, err := s.deps.Entries.ResolvedEntryIDs(ctx, scope.TenantID, ids)
	if err != nil {
		s.deps.Metrics.Assembly(metrics.OutcomeFailed, time.Since(started), 0)
		return nil, &GenerationError{Err: fmt.Errorf("resolve follow-ups: %w", err)}
	}

	draftID := s.deps.NewID()
	plan, err := s.asm.Assemble(draftID, entries, resolved)
	if errors.Is(err, assembler.ErrNothingToDraft) {
		s.deps.Metrics.Assembly(metrics.OutcomeEmpty, time.Since(started), 0)
		return nil, ErrNothingToDraft
	}
	if err != nil {
		s.deps.Metrics.Assembly(metrics.OutcomeFailed, time.Since(started), 0)
		return nil, &GenerationError{Err: err}
	}

	now := s.deps.Now()
	draft := &model.Draft{
		ID:               draftID,
		TenantID:         scope.TenantID,
		Department:       scope.Department,
		PeriodStart:      scope.PeriodStart,
		PeriodEnd:        scope.PeriodEnd,
		State:            model.StateDraft,
		GenerationMethod: model.MethodGenerated,
		EntryCount:       len(plan.EntryIDs),
		CreatedBy:        actor.UserID,
		CreatedAt:        now,
		UpdatedAt:        now,
		LastActivityAt:   now,
		Sections:         plan.Sections,
	}
	err = s.deps.Drafts.CreateDraft(ctx, repository.NewDraft{
		Draft:          draft,
		MergeProposals: plan.MergeProposals,
		EntryIDs:       plan.EntryIDs,
		Transition: model.Transition{
			ID:        s.deps.NewID(),
			DraftID:   draftID,
			To:        model.StateDraft,
			Event:     EventGenerate,
			ActorID:   actor.UserID,
			CreatedAt: now,
		},
	})
	if errors.Is(err, repository.ErrActiveScope) {
		s.deps.Metrics.Assembly(metrics.OutcomeConflict, time.Since(started), 0)
		if existing, cerr := s.conflict(ctx, scope); cerr != nil {
			return existing, cerr
		}
		return nil, ErrActiveDraftExists
	}
	if err != nil {
		s.deps.Metrics.Assembly(metrics.OutcomeFailed, time.Since(started), 0)
		log.WithError(err).WithFields(logrus.Fields{"event": "generate", "status": "failed"}).Error("draft assembly rolled back")
		return nil, &GenerationError{Err: err}
	}
	s.deps.Metrics.Assembly(metrics.OutcomeOK, time.Since(started), len(plan.MergeProposals))
	log.WithFields(logrus.Fields{
		"event":           "generate",
		"status":          "success",
		"draft_id":        draftID,
		"entries":         len(plan.EntryIDs),
		"items":           plan.ItemCount(),
		"merge_proposals": len(plan.MergeProposals),
	}).Info("draft generated")

	d, err = s.deps.Drafts.GetDraft(ctx, draftID)
	if err != nil {
		return draft, nil
	}
	return d, nil
}

// editable loads a draft the actor may still change.
func (s *draftService) editable(ctx context.Context, actor model.Actor, draftID string) (*model.Draft, error) {
	if err := checkActor(actor); err != nil {
		return nil, err
	}
	d, err := loadDraft(ctx, s.deps.Drafts, actor, draftID)
	if err != nil {
		return nil, err
	}
	if err := workflow.CheckEditable(d, workflow.EventEdit); err != nil {
		return d, err
	}
	return d, nil
}

// applyReview persists ch and returns the reloaded draft. A freeze that raced
// the edit is reported with the same error a fresh edit would get.
func (s *draftService) applyReview(ctx context.Context, d *model.Draft, ch repository.ReviewChange) (*model.Draft, error) {
	err := s.deps.Drafts.ApplyReview(ctx, ch)
	if errors.Is(err, repository.ErrStateChanged) {
		cur := s.current(ctx, d)
		if cerr := workflow.CheckEditable(cur, workflow.EventEdit); cerr != nil {
			return cur, cerr
		}
		return cur, ErrConcurrentChange
	}
	if err != nil {
		return s.current(ctx, d), mapRepoErr(err)
	}
	return s.current(ctx, d), nil
}

// regenerate recomputes command items of d after its entry items changed in
// place, appending the changed items and their edit records.
func (s *draftService) regenerate(d *model.Draft, actor model.Actor, at time.Time, ch *repository.ReviewChange) {
	for _, r := range assembler.Regenerate(d.Sections) {
		it, ok := findItem(d, r.ItemID)
		if !ok {
			continue
		}
		prior := snapshot(it)
		it.Text = r.NewText
		ch.Items = append(ch.Items, repository.ItemChange{Prior: prior, Next: *it})
		ch.Edits = append(ch.Edits, model.DraftEdit{
			ID:           s.deps.NewID(),
			DraftID:      d.ID,
			ItemID:       it.ID,
			Kind:         model.EditRegenerate,
			OriginalText: r.OldText,
			EditedText:   r.NewText,
			EditorID:     actor.UserID,
			CreatedAt:    at,
		})
	}
}

func (s *draftService) EditItem(ctx context.Context, actor model.Actor, draftID, itemID, text string) (out *model.Draft, err error) {
	ctx, span := startSpan(ctx, "drafts.EditItem")
	defer func() { endSpan(span, err) }()

	d, err := s.editable(ctx, actor, draftID)
	if err != nil {
		return d, err
	}
	if strings.TrimSpace(text) == "" {
		return d, invalid("item text must not be empty")
	}
	it, ok := findItem(d, itemID)
	if !ok {
		return d, fmt.Errorf("%w: item %s", ErrNotFound, itemID)
	}
	if it.Kind == model.ItemCommand {
		return d, ErrCommandItemReadOnly
	}
	if it.Status == model.ItemSuperseded {
		return d, ErrItemSuperseded
	}
	if it.Text == text {
		return d, nil
	}

	now := s.deps.Now()
	prior := snapshot(it)
	it.Text = text
	ch := repository.ReviewChange{
		DraftID: d.ID,
		At:      now,
		Items:   []repository.ItemChange{{Prior: prior, Next: *it}},
		Edits: []model.DraftEdit{{
			ID:           s.deps.NewID(),
			DraftID:      d.ID,
			ItemID:       it.ID,
			Kind:         model.EditText,
			OriginalText: prior.Text,
			EditedText:   text,
			EditorID:     actor.UserID,
			CreatedAt:    now,
		}},
	}
	s.regenerate(d, actor, now, &ch)
	out, err = s.applyReview(ctx, d, ch)
	if err == nil {
		logging.FromContext(ctx, s.log).WithFields(draftFields(d)).WithFields(logrus.Fields{
			"event":       "edit_item",
			"status":      "success",
			"item_id":     itemID,
			"regenerated": len(ch.Items) - 1,
		}).Info("item edited")
	}
	return out, err
}

func findMerge(d *model.Draft, id string) (*model.MergeProposal, bool) {
	for i := range d.MergeProposals {
		if d.MergeProposals[i].ID == id {
			return &d.MergeProposals[i], true
		}
	}
	return nil, false
}

// pendingMerge resolves a proposal and both of its items.
func (s *draftService) pendingMerge(d *model.Draft, proposalID string) (*model.MergeProposal, *model.DraftItem, *model.DraftItem, error) {
	p, ok := findMerge(d, proposalID)
	if !ok {
		return nil, nil, nil, fmt.Errorf("%w: merge proposal %s", ErrNotFound, proposalID)
	}
	if p.Status != model.MergePending {
		return nil, nil, nil, ErrProposalDecided
	}
	survivor, ok := findItem(d, p.SurvivorItemID)
	if !ok {
		return nil, nil, nil, fmt.Errorf("%w: item %s", ErrNotFound, p.SurvivorItemID)
	}
	merged, ok := findItem(d, p.MergedItemID)
	if !ok {
		return nil, nil, nil, fmt.Errorf("%w: item %s", ErrNotFound, p.MergedItemID)
	}
	return p, survivor, merged, nil
}

func (s *draftService) AcceptMerge(ctx context.Context, actor model.Actor, draftID, proposalID string) (out *model.Draft, err error) {
	ctx, span := startSpan(ctx, "drafts.AcceptMerge")
	defer func() { endSpan(span, err) }()

	d, err := s.editable(ctx, actor, draftID)
	if err != nil {
		return d, err
	}
	p, survivor, merged, err := s.pendingMerge(d, proposalID)
	if err != nil {
		return d, err
	}
	if survivor.Status == model.ItemSuperseded || merged.Status == model.ItemSuperseded {
		return d, ErrItemSuperseded
	}

	now := s.deps.Now()
	survivorPrior, mergedPrior := snapshot(survivor), snapshot(merged)
	have := make(map[string]bool, len(survivor.SourceEntryIDs))
	for _, id := range survivor.SourceEntryIDs {
		have[id] = true
	}
	superseded := map[string]string{}
	anchor := survivor.SourceEntryIDs[0]
	for _, id := range merged.SourceEntryIDs {
		if have[id] {
			continue
		}
		have[id] = true
		survivor.SourceEntryIDs = append(survivor.SourceEntryIDs, id)
		superseded[id] = anchor
	}
	merged.Status = model.ItemSuperseded
	merged.SupersededBy = &survivor.ID

	decided := *p
	decided.Status = model.MergeAccepted
	decided.DecidedBy = &actor.UserID
	decided.DecidedAt = &now

	ch := repository.ReviewChange{
		DraftID: d.ID,
		At:      now,
		Items: []repository.ItemChange{
			{Prior: survivorPrior, Next: *survivor},
			{Prior: mergedPrior, Next: *merged},
		},
		Proposal:          &decided,
		SupersededEntries: superseded,
		Edits: []model.DraftEdit{
			{
				ID:              s.deps.NewID(),
				DraftID:         d.ID,
				ItemID:          survivor.ID,
				Kind:            model.EditMerge,
				OriginalText:    survivorPrior.Text,
				EditedText:      survivor.Text,
				EditorID:        actor.UserID,
				MergeProposalID: &decided.ID,
				CreatedAt:       now,
			},
			{
				ID:              s.deps.NewID(),
				DraftID:         d.ID,
				ItemID:          merged.ID,
				Kind:            model.EditMerge,
				OriginalText:    merged.Text,
				EditedText:      merged.Text,
				EditorID:        actor.UserID,
				MergeProposalID: &decided.ID,
				CreatedAt:       now,
			},
		},
	}
	s.regenerate(d, actor, now, &ch)
	out, err = s.applyReview(ctx, d, ch)
	if err == nil {
		logging.FromContext(ctx, s.log).WithFields(draftFields(d)).WithFields(logrus.Fields{
			"event":          "accept_merge",
			"status":         "success",
			"proposal_id":    proposalID,
			"survivor_item":  survivor.ID,
			"merged_item":    merged.ID,
			"folded_entries": len(superseded),
		}).Info("merge accepted")
	}
	return out, err
}

func (s *draftService) DismissMerge(ctx context.Context, actor model.Actor, draftID, proposalID string) (*model.Draft, error) {
	d, err := s.editable(ctx, actor, draftID)
	if err != nil {
		return d, err
	}
	p, survivor, _, err := s.pendingMerge(d, proposalID)
	if err != nil {
		return d, err
	}
	now := s.deps.Now()
	decided := *p
	decided.Status = model.MergeDismissed
	decided.DecidedBy = &actor.UserID
	decided.DecidedAt = &now
	return s.applyReview(ctx, d, repository.ReviewChange{
		DraftID:  d.ID,
		At:       now,
		Proposal: &decided,
		Edits: []model.DraftEdit{{
			ID:              s.deps.NewID(),
			DraftID:         d.ID,
			ItemID:          survivor.ID,
			Kind:            model.EditDismissMerge,
			OriginalText:    survivor.Text,
			EditedText:      survivor.Text,
			EditorID:        actor.UserID,
			MergeProposalID: &decided.ID,
			CreatedAt:       now,
		}},
	})
}

func (s *draftService) MarkSectionViewed(ctx context.Context, actor model.Actor, draftID, sectionID string) (*model.Draft, error) {
	if err := checkActor(actor); err != nil {
		return nil, err
	}
	d, err := loadDraft(ctx, s.deps.Drafts, actor, draftID)
	if err != nil {
		return nil, err
	}
	found := false
	for _, sec := range d.Sections {
		if sec.ID == sectionID {
			found = true
			break
		}
	}
	if !found {
		return d, fmt.Errorf("%w: section %s", ErrNotFound, sectionID)
	}
	err = s.deps.Drafts.MarkSectionViewed(ctx, model.SectionView{
		DraftID:   d.ID,
		SectionID: sectionID,
		UserID:    actor.UserID,
		ViewedAt:  s.deps.Now(),
	})
	if err != nil {
		return d, mapRepoErr(err)
	}
	return d, nil
}

// transition validates req against the stored draft and persists the change
// built by decorate.
func (s *draftService) transition(ctx context.Context, actor model.Actor, draftID string, req workflow.Request, decorate func(d *model.Draft, ch *repository.TransitionChange) error) (out *model.Draft, err error) {
	ctx, span := startSpan(ctx, "drafts."+string(req.Event))
	defer func() { endSpan(span, err) }()

	if err := checkActor(actor); err != nil {
		return nil, err
	}
	d, err := loadDraft(ctx, s.deps.Drafts, actor, draftID)
	if err != nil {
		return nil, err
	}
	req.ActorID = actor.UserID
	if req.Event == workflow.EventAccept {
		viewed, err := s.deps.Drafts.ViewedSections(ctx, d.ID, actor.UserID)
		if err != nil {
			return d, err
		}
		req.AllSectionsViewed = allViewed(d, viewed)
	}

	log := logging.FromContext(ctx, s.log).WithFields(draftFields(d)).WithFields(logrus.Fields{"event": string(req.Event), "actor_id": actor.UserID})
	from := d.State
	to, err := workflow.Next(d, req)
	if err != nil {
		s.deps.Metrics.Transition(string(req.Event), string(from), metrics.OutcomeRejected)
		log.WithError(err).WithField("status", "rejected").Info("transition rejected")
		return d, err
	}

	now := s.deps.Now()
	ch := repository.TransitionChange{Transition: model.Transition{
		ID:        s.deps.NewID(),
		DraftID:   d.ID,
		From:      from,
		To:        to,
		Event:     string(req.Event),
		ActorID:   actor.UserID,
		Reason:    strings.TrimSpace(req.Reason),
		CreatedAt: now,
	}}
	if decorate != nil {
		if err := decorate(d, &ch); err != nil {
			s.deps.Metrics.Transition(string(req.Event), string(from), metrics.OutcomeFailed)
			return d, err
		}
	}

	if err := s.deps.Drafts.ApplyTransition(ctx, ch); err != nil {
		cur := s.current(ctx, d)
		if errors.Is(err, repository.ErrStateChanged) {
			s.deps.Metrics.Transition(string(req.Event), string(from), metrics.OutcomeConflict)
			if req.Event == workflow.EventAccept {
				req.AllSectionsViewed = true
			}
			if _, nerr := workflow.Next(cur, req); nerr != nil {
				return cur, nerr
			}
			return cur, ErrConcurrentChange
		}
		s.deps.Metrics.Transition(string(req.Event), string(from), metrics.OutcomeFailed)
		return cur, mapRepoErr(err)
	}
	s.deps.Metrics.Transition(string(req.Event), string(from), metrics.OutcomeOK)
	log.WithFields(logrus.Fields{"status": "success", "to": to}).Info("draft transitioned")
	return s.current(ctx, d), nil
}

func allViewed(d *model.Draft, viewed map[string]bool) bool {
	for _, sec := range d.Sections {
		if !viewed[sec.ID] {
			return false
		}
	}
	return true
}

func (s *draftService) OpenReview(ctx context.Context, actor model.Actor, draftID string) (*model.Draft, error) {
	return s.transition(ctx, actor, draftID, workflow.Request{Event: workflow.EventOpenReview}, nil)
}

func (s *draftService) Abandon(ctx context.Context, actor model.Actor, draftID string) (*model.Draft, error) {
	return s.transition(ctx, actor, draftID, workflow.Request{Event: workflow.EventAbandon}, nil)
}

func (s *draftService) Accept(ctx context.Context, actor model.Actor, draftID string, confirmed bool) (*model.Draft, error) {
	req := workflow.Request{Event: workflow.EventAccept, Confirmed: confirmed}
	return s.transition(ctx, actor, draftID, req, func(d *model.Draft, ch *repository.TransitionChange) error {
		ch.SetOutgoing = true
		ch.Signoff = &model.Signoff{
			ID:        s.deps.NewID(),
			DraftID:   d.ID,
			Role:      model.RoleOutgoing,
			SignerID:  ch.Transition.ActorID,
			Confirmed: true,
			CreatedAt: ch.Transition.CreatedAt,
		}
		return nil
	})
}

func (s *draftService) Reject(ctx context.Context, actor model.Actor, draftID, reason string) (*model.Draft, error) {
	req := workflow.Request{Event: workflow.EventReject, Reason: reason}
	return s.transition(ctx, actor, draftID, req, func(_ *model.Draft, ch *repository.TransitionChange) error {
		ch.ClearOutgoing = true
		return nil
	})
}

func (s *draftService) Sign(ctx context.Context, actor model.Actor, draftID string, confirmed bool) (*model.Draft, error) {
	req := workflow.Request{Event: workflow.EventSign, Confirmed: confirmed}
	return s.transition(ctx, actor, draftID, req, func(d *model.Draft, ch *repository.TransitionChange) error {
		hash, err := contenthash.Compute(d.ID, d.Sections)
		if err != nil {
			return fmt.Errorf("compute content hash: %w", err)
		}
		ch.SetIncoming = true
		ch.ContentHash = &hash
		ch.Signoff = &model.Signoff{
			ID:        s.deps.NewID(),
			DraftID:   d.ID,
			Role:      model.RoleIncoming,
			SignerID:  ch.Transition.ActorID,
			Confirmed: true,
			CreatedAt: ch.Transition.CreatedAt,
		}
		return nil
	})
}
