package service

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"handover/internal/logging"
	"handover/internal/model"
)

// StaleDraft is a draft waiting on a human past its threshold.
type StaleDraft struct {
	DraftID        string           `json:"draft_id"`
	TenantID       string           `json:"tenant_id"`
	State          model.DraftState `json:"state"`
	LastActivityAt time.Time        `json:"last_activity_at"`
	Warning        string           `json:"warning"`
}

// SweepReport is the outcome of one sweep.
type SweepReport struct {
	Archived []string     `json:"archived"`
	Stale    []StaleDraft `json:"stale"`
}

// Sweeper soft-archives idle drafts and reports stale reviews. It never
// transitions IN_REVIEW or ACCEPTED drafts.
type Sweeper struct {
	deps Deps
	cfg  StaleConfig
	log  *logrus.Entry
}

// NewSweeper constructs a Sweeper.
func NewSweeper(deps Deps, cfg StaleConfig) *Sweeper {
	deps = deps.withDefaults()
	return &Sweeper{deps: deps, cfg: cfg.withDefaults(), log: logging.Component(deps.Log, "sweeper")}
}

// Sweep runs one pass over every tenant's active drafts.
func (s *Sweeper) Sweep(ctx context.Context) (*SweepReport, error) {
	ctx, span := startSpan(ctx, "sweeper.Sweep")
	var err error
	defer func() { endSpan(span, err) }()

	drafts, err := s.deps.Drafts.ListActive(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("list active drafts: %w", err)
	}
	now := s.deps.Now()
	cutoff := now.Add(-s.cfg.ArchiveAfter)
	rep := &SweepReport{Archived: []string{}, Stale: []StaleDraft{}}
	for i := range drafts {
		d := &drafts[i]
		if d.State == model.StateDraft && !d.LastActivityAt.After(cutoff) {
			ok, aerr := s.deps.Drafts.Archive(ctx, d.ID, cutoff, model.Transition{
				ID:        s.deps.NewID(),
				DraftID:   d.ID,
				From:      model.StateDraft,
				To:        model.StateDraft,
				Event:     EventArchive,
				ActorID:   systemActor,
				Reason:    fmt.Sprintf("no activity since %s", d.LastActivityAt.UTC().Format(time.RFC3339)),
				CreatedAt: now,
			})
			if aerr != nil {
				err = fmt.Errorf("archive draft %s: %w", d.ID, aerr)
				return rep, err
			}
			if ok {
				rep.Archived = append(rep.Archived, d.ID)
				s.log.WithFields(draftFields(d)).WithFields(logrus.Fields{
					"event":            "archive",
					"status":           "success",
					"last_activity_at": d.LastActivityAt,
				}).Info("idle draft archived")
			}
			continue
		}
		if w := staleWarning(d, s.cfg, now); w != "" {
			rep.Stale = append(rep.Stale, StaleDraft{
				DraftID:        d.ID,
				TenantID:       d.TenantID,
				State:          d.State,
				LastActivityAt: d.LastActivityAt,
				Warning:        w,
			})
			s.log.WithFields(draftFields(d)).WithFields(logrus.Fields{
				"event":  "stale_warning",
				"status": "warned",
			}).Warn(w)
		}
	}
	return rep, nil
}

// Run sweeps every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			rep, err := s.Sweep(ctx)
			if err != nil {
				s.log.WithError(err).WithField("status", "failed").Error("sweep")
				continue
			}
			s.log.WithFields(logrus.Fields{
				"event":    "sweep",
				"status":   "success",
				"archived": len(rep.Archived),
				"stale":    len(rep.Stale),
			}).Debug("sweep finished")
		}
	}
}
