package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"handover/internal/lock"
	"handover/internal/logging"
	"handover/internal/metrics"
	"handover/internal/model"
	"handover/internal/repository"
	"handover/internal/storage"
)

var (
	ErrIdentityRequired    = errors.New("authenticated user and tenant are required")
	ErrValidation          = errors.New("invalid request")
	ErrNotFound            = errors.New("not found")
	ErrActiveDraftExists   = errors.New("an active draft already exists for this scope")
	ErrAssemblyInProgress  = errors.New("draft assembly already in progress for this scope")
	ErrNothingToDraft      = errors.New("nothing to draft")
	ErrCommandItemReadOnly = errors.New("command items are generated and cannot be edited")
	ErrItemSuperseded      = errors.New("item was merged into another item")
	ErrProposalDecided     = errors.New("proposal already decided")
	ErrConcurrentChange    = errors.New("draft changed concurrently, reload and retry")
	ErrUnknownDomain       = errors.New("unknown domain code")
)

// ConflictError is returned when a scope already has an active draft. The caller
// resumes ExistingDraftID instead of creating a new one.
type ConflictError struct {
	ExistingDraftID string
	State           model.DraftState
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s (draft %s, state %s)", ErrActiveDraftExists, e.ExistingDraftID, e.State)
}

func (e *ConflictError) Is(target error) bool { return target == ErrActiveDraftExists }

// GenerationError wraps any failure during draft assembly. Nothing was persisted.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string { return "generation failed: " + e.Err.Error() }

func (e *GenerationError) Unwrap() error { return e.Err }

// Deps are the collaborators shared by every use case.
type Deps struct {
	Entries repository.EntryRepository
	Drafts  repository.DraftRepository
	Audit   repository.AuditRepository
	Storage storage.Storage
	Locker  lock.Locker
	Metrics *metrics.Metrics
	Log     logrus.FieldLogger
	Now     func() time.Time
	NewID   func() string
}

// StoreDeps fills the three repository slots from one backend.
func StoreDeps(s repository.Store) Deps {
	return Deps{Entries: s, Drafts: s, Audit: s}
}

func (d Deps) withDefaults() Deps {
	if d.Log == nil {
		d.Log = logging.Discard()
	}
	if d.Locker == nil {
		d.Locker = lock.NewLocal()
	}
	if d.Now == nil {
		d.Now = func() time.Time { return time.Now().UTC() }
	}
	if d.NewID == nil {
		d.NewID = func() string { return uuid.New().String() }
	}
	return d
}

var tracer = otel.Tracer("handover/internal/service")

func startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func checkActor(a model.Actor) error {
	if a.UserID == "" || a.TenantID == "" {
		return ErrIdentityRequired
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// mapRepoErr converts repository sentinels into service sentinels.
func mapRepoErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case errors.Is(err, repository.ErrProposalDecided):
		return ErrProposalDecided
	case errors.Is(err, repository.ErrStateChanged):
		return ErrConcurrentChange
	}
	return err
}

// loadDraft fetches a draft visible to the actor. Drafts of other tenants are reported as missing.
func loadDraft(ctx context.Context, repo repository.DraftRepository, actor model.Actor, id string) (*model.Draft, error) {
	if id == "" {
		return nil, invalid("draft id is required")
	}
	d, err := repo.GetDraft(ctx, id)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	if d.TenantID != actor.TenantID {
		return nil, fmt.Errorf("%w: draft %s", ErrNotFound, id)
	}
	return d, nil
}

func findItem(d *model.Draft, id string) (*model.DraftItem, bool) {
	for si := range d.Sections {
		for ii := range d.Sections[si].Items {
			if d.Sections[si].Items[ii].ID == id {
				return &d.Sections[si].Items[ii], true
			}
		}
	}
	return nil, false
}

// snapshot copies it before an in-place change; the store checks the write against it.
func snapshot(it *model.DraftItem) model.DraftItem {
	c := *it
	c.SourceEntryIDs = slices.Clone(it.SourceEntryIDs)
	return c
}

func draftFields(d *model.Draft) logrus.Fields {
	return logrus.Fields{
		"tenant_id": d.TenantID,
		"draft_id":  d.ID,
		"state":     d.State,
	}
}
