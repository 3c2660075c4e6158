package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"handover/internal/contenthash"
	"handover/internal/logging"
	"handover/internal/metrics"
	"handover/internal/model"
	"handover/internal/render"
	"handover/internal/repository"
	"handover/internal/storage"
	"handover/internal/workflow"
)

// VerifyResult compares a stored export against the current draft content and
// the stored artifact bytes. Nothing is rewritten.
type VerifyResult struct {
	ExportID        string `json:"export_id"`
	DraftID         string `json:"draft_id"`
	StoredHash      string `json:"stored_hash"`
	DraftHash       string `json:"draft_hash"`
	RecomputedHash  string `json:"recomputed_hash"`
	StoredChecksum  string `json:"stored_checksum"`
	ObjectChecksum  string `json:"object_checksum"`
	RerenderMatches bool   `json:"rerender_matches"`
	HashMatches     bool   `json:"hash_matches"`
	ChecksumMatches bool   `json:"checksum_matches"`
	Valid           bool   `json:"valid"`
}

// ExportService defines the export use cases.
type ExportService interface {
	// Export renders a signed draft, stores the artifact and records an Export
	// row. On any failure no row exists and the draft stays retryable.
	Export(ctx context.Context, actor model.Actor, draftID string, t model.ArtifactType, recipients []string) (*model.Export, *model.Draft, error)
	List(ctx context.Context, actor model.Actor, draftID string) ([]model.Export, error)
	DownloadURL(ctx context.Context, actor model.Actor, exportID string) (string, error)
	Verify(ctx context.Context, actor model.Actor, exportID string) (*VerifyResult, error)
}

type exportService struct {
	deps    Deps
	reg     *render.Registry
	presign time.Duration
	log     *logrus.Entry
}

// NewExportService constructs an ExportService. presign bounds download URLs.
func NewExportService(deps Deps, reg *render.Registry, presign time.Duration) ExportService {
	deps = deps.withDefaults()
	if presign <= 0 {
		presign = 15 * time.Minute
	}
	return &exportService{deps: deps, reg: reg, presign: presign, log: logging.Component(deps.Log, "exports")}
}

func cleanRecipients(in []string) ([]string, error) {
	out := make([]string, 0, len(in))
	seen := map[string]bool{}
	for i, r := range in {
		r = strings.TrimSpace(r)
		if r == "" {
			return nil, invalid("recipients[%d] is empty", i)
		}
		if seen[r] {
			continue
		}
		seen[r] = true
		out = append(out, r)
	}
	return out, nil
}

func (s *exportService) Export(ctx context.Context, actor model.Actor, draftID string, t model.ArtifactType, recipients []string) (ex *model.Export, d *model.Draft, err error) {
	ctx, span := startSpan(ctx, "exports.Export")
	defer func() { endSpan(span, err) }()

	if err := checkActor(actor); err != nil {
		return nil, nil, err
	}
	d, err = loadDraft(ctx, s.deps.Drafts, actor, draftID)
	if err != nil {
		return nil, nil, err
	}
	from := d.State
	to, err := workflow.Next(d, workflow.Request{Event: workflow.EventExport, ActorID: actor.UserID, ExportTarget: string(t)})
	if err != nil {
		s.deps.Metrics.Transition(string(workflow.EventExport), string(from), metrics.OutcomeRejected)
		return nil, d, err
	}
	if !t.Valid() {
		return nil, d, fmt.Errorf("%w: %w: %s", ErrValidation, render.ErrUnsupportedArtifact, t)
	}
	rcpt, err := cleanRecipients(recipients)
	if err != nil {
		return nil, d, err
	}
	log := logging.FromContext(ctx, s.log).WithFields(draftFields(d)).WithField("artifact_type", t)

	art, err := s.reg.Render(t, d)
	if err != nil {
		s.deps.Metrics.Export(string(t), metrics.OutcomeFailed)
		log.WithError(err).WithFields(logrus.Fields{"event": "export", "status": "render_failed"}).Error("render artifact")
		return nil, d, fmt.Errorf("render %s: %w", t, err)
	}

	exportID := s.deps.NewID()
	key := storage.ArtifactKey(d.TenantID, d.ID, exportID, art.Extension)
	checksum := contenthash.Checksum(art.Body)
	_, err = s.deps.Storage.Put(ctx, key, bytes.NewReader(art.Body), storage.PutObjectOptions{
		Size:        int64(len(art.Body)),
		ContentType: art.ContentType,
		Metadata: map[string]string{
			storage.MetaContentHash: *d.ContentHash,
			storage.MetaChecksum:    checksum,
			storage.MetaDraftID:     d.ID,
			storage.MetaExportID:    exportID,
		},
	})
	if err != nil {
		s.deps.Metrics.Export(string(t), metrics.OutcomeFailed)
		log.WithError(err).WithFields(logrus.Fields{"event": "export", "status": "upload_failed"}).Error("store artifact")
		return nil, d, fmt.Errorf("upload to storage: %w", err)
	}

	ex = &model.Export{
		ID:               exportID,
		DraftID:          d.ID,
		TenantID:         d.TenantID,
		ArtifactType:     t,
		StorageKey:       key,
		ContentType:      art.ContentType,
		Size:             int64(len(art.Body)),
		ContentHash:      *d.ContentHash,
		ArtifactChecksum: checksum,
		ExporterID:       actor.UserID,
		Recipients:       rcpt,
		CreatedAt:        s.deps.Now(),
	}
	tr := model.Transition{
		ID:        s.deps.NewID(),
		DraftID:   d.ID,
		From:      from,
		To:        to,
		Event:     string(workflow.EventExport),
		ActorID:   actor.UserID,
		CreatedAt: ex.CreatedAt,
	}
	if err := s.deps.Drafts.CreateExport(ctx, ex, tr); err != nil {
		s.deps.Metrics.Export(string(t), metrics.OutcomeFailed)
		cur := d
		if fresh, gerr := s.deps.Drafts.GetDraft(context.WithoutCancel(ctx), d.ID); gerr == nil {
			cur = fresh
		}
		if delErr := s.deps.Storage.Delete(context.WithoutCancel(ctx), key); delErr != nil {
			return nil, cur, fmt.Errorf("db save failed: %v; rollback delete failed: %v", err, delErr)
		}
		if errors.Is(err, repository.ErrStateChanged) {
			return nil, cur, ErrConcurrentChange
		}
		return nil, cur, fmt.Errorf("db save failed: %w", err)
	}

	s.deps.Metrics.Export(string(t), metrics.OutcomeOK)
	if from != to {
		s.deps.Metrics.Transition(string(workflow.EventExport), string(from), metrics.OutcomeOK)
	}
	log.WithFields(logrus.Fields{
		"event":      "export",
		"status":     "success",
		"export_id":  ex.ID,
		"storage":    ex.StorageKey,
		"recipients": len(ex.Recipients),
	}).Info("draft exported")

	if fresh, gerr := s.deps.Drafts.GetDraft(ctx, d.ID); gerr == nil {
		d = fresh
	}
	return ex, d, nil
}

func (s *exportService) List(ctx context.Context, actor model.Actor, draftID string) ([]model.Export, error) {
	if err := checkActor(actor); err != nil {
		return nil, err
	}
	if _, err := loadDraft(ctx, s.deps.Drafts, actor, draftID); err != nil {
		return nil, err
	}
	return s.deps.Audit.ListExports(ctx, draftID)
}

func (s *exportService) export(ctx context.Context, actor model.Actor, id string) (*model.Export, error) {
	if err := checkActor(actor); err != nil {
		return nil, err
	}
	if id == "" {
		return nil, invalid("export id is required")
	}
	ex, err := s.deps.Drafts.GetExport(ctx, id)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	if ex.TenantID != actor.TenantID {
		return nil, fmt.Errorf("%w: export %s", ErrNotFound, id)
	}
	return ex, nil
}

func (s *exportService) DownloadURL(ctx context.Context, actor model.Actor, exportID string) (string, error) {
	ex, err := s.export(ctx, actor, exportID)
	if err != nil {
		return "", err
	}
	u, err := s.deps.Storage.PresignGet(ctx, ex.StorageKey, s.presign)
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", ex.StorageKey, err)
	}
	return u, nil
}

func (s *exportService) Verify(ctx context.Context, actor model.Actor, exportID string) (res *VerifyResult, err error) {
	ctx, span := startSpan(ctx, "exports.Verify")
	defer func() { endSpan(span, err) }()

	ex, err := s.export(ctx, actor, exportID)
	if err != nil {
		return nil, err
	}
	d, err := s.deps.Drafts.GetDraft(ctx, ex.DraftID)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	recomputed, err := contenthash.Compute(d.ID, d.Sections)
	if err != nil {
		return nil, err
	}

	rc, _, err := s.deps.Storage.Get(ctx, ex.StorageKey)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, fmt.Errorf("%w: artifact %s", ErrNotFound, ex.StorageKey)
		}
		return nil, fmt.Errorf("read artifact: %w", err)
	}
	defer rc.Close()
	body, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read artifact: %w", err)
	}

	res = &VerifyResult{
		ExportID:       ex.ID,
		DraftID:        d.ID,
		StoredHash:     ex.ContentHash,
		RecomputedHash: recomputed,
		StoredChecksum: ex.ArtifactChecksum,
		ObjectChecksum: contenthash.Checksum(body),
	}
	if d.ContentHash != nil {
		res.DraftHash = *d.ContentHash
	}
	if art, rerr := s.reg.Render(ex.ArtifactType, d); rerr == nil {
		res.RerenderMatches = bytes.Equal(art.Body, body)
	}
	res.HashMatches = res.StoredHash == res.RecomputedHash && res.StoredHash == res.DraftHash
	res.ChecksumMatches = res.StoredChecksum == res.ObjectChecksum
	res.Valid = res.HashMatches && res.ChecksumMatches && res.RerenderMatches
	if !res.Valid {
		logging.FromContext(ctx, s.log).WithFields(logrus.Fields{
			"event":     "verify_export",
			"status":    "mismatch",
			"export_id": ex.ID,
			"draft_id":  d.ID,
		}).Warn("export verification failed")
	}
	return res, nil
}
