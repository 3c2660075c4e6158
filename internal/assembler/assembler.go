// Package assembler plans a handover draft from a pool of candidate entries.
//
// The assembler is pure: it returns sections, items and merge proposals for
// the caller to persist in a single transaction. It never merges or drops an
// entry on its own; near-duplicates are only proposed.
package assembler

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"handover/internal/model"
	"handover/internal/taxonomy"
)

var (
	// ErrNothingToDraft is returned when the candidate pool is empty.
	ErrNothingToDraft = errors.New("nothing to draft")
	// ErrUnknownHighRiskTag is returned when the high-risk threshold names a tag the taxonomy does not rank.
	ErrUnknownHighRiskTag = errors.New("unknown high-risk tag")
)

// Options tunes the assembly heuristics.
type Options struct {
	// MergeThreshold is the minimum narrative token overlap (Jaccard) for a merge proposal.
	MergeThreshold float64
	// HighRiskTag is the lowest risk tag that makes an unresolved entry a command item.
	HighRiskTag string
	// NewID generates identifiers for sections, items and proposals.
	NewID func() string
	// Now stamps merge proposals.
	Now func() time.Time
}

// Assembler builds draft plans against one taxonomy snapshot.
type Assembler struct {
	tax          *taxonomy.Taxonomy
	opts         Options
	highSeverity int
}

// New returns an assembler. Zero-valued options fall back to defaults.
func New(tax *taxonomy.Taxonomy, opts Options) (*Assembler, error) {
	if opts.MergeThreshold <= 0 {
		opts.MergeThreshold = 0.3
	}
	if opts.HighRiskTag == "" {
		opts.HighRiskTag = "SAFETY_CRITICAL"
	}
	if opts.NewID == nil {
		opts.NewID = func() string { return uuid.New().String() }
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	sev := tax.Severity(opts.HighRiskTag)
	if sev < 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownHighRiskTag, opts.HighRiskTag)
	}
	return &Assembler{tax: tax, opts: opts, highSeverity: sev}, nil
}

// Plan is the result of an assembly run, ready to be persisted.
type Plan struct {
	Sections       []model.Section
	MergeProposals []model.MergeProposal
	// EntryIDs lists every entry consumed by the plan; each must move to drafted.
	EntryIDs []string
}

// ItemCount returns the number of items across all sections.
func (p *Plan) ItemCount() int {
	n := 0
	for _, s := range p.Sections {
		n += len(s.Items)
	}
	return n
}

// candidate is an entry together with its derived ranking data.
type candidate struct {
	entry    model.Entry
	severity int
	topTag   string
	item     *model.DraftItem
}

// Assemble builds the sections of draftID from the candidate entries.
// resolved holds the IDs of entries that another entry marks as resolved.
func (a *Assembler) Assemble(draftID string, entries []model.Entry, resolved map[string]bool) (*Plan, error) {
	if len(entries) == 0 {
		return nil, ErrNothingToDraft
	}

	seen := make(map[string]struct{}, len(entries))
	cands := make([]*candidate, 0, len(entries))
	for _, e := range entries {
		if e.ID == "" {
			return nil, errors.New("entry without id in candidate pool")
		}
		if e.Status != model.EntryCandidate {
			return nil, fmt.Errorf("entry %s is %s, not candidate", e.ID, e.Status)
		}
		if _, dup := seen[e.ID]; dup {
			return nil, fmt.Errorf("entry %s appears twice in candidate pool", e.ID)
		}
		seen[e.ID] = struct{}{}
		cands = append(cands, a.newCandidate(e))
	}

	buckets := map[string][]*candidate{}
	for _, c := range cands {
		b := c.entry.Bucket
		if !a.tax.KnownBucket(b) {
			b = a.tax.CatchAllBucket
		}
		buckets[b] = append(buckets[b], c)
	}
	for _, group := range buckets {
		sort.SliceStable(group, func(i, j int) bool { return ranksBefore(group[i], group[j]) })
	}

	commands := a.synthesizeCommands(cands, resolved)
	if len(commands) > 0 {
		if _, ok := buckets[a.tax.CommandBucket]; !ok {
			buckets[a.tax.CommandBucket] = nil
		}
	}

	order := make([]string, 0, len(buckets))
	for b := range buckets {
		order = append(order, b)
	}
	sort.Slice(order, func(i, j int) bool {
		ri, rj := a.tax.BucketRank(order[i]), a.tax.BucketRank(order[j])
		if ri != rj {
			return ri < rj
		}
		return order[i] < order[j]
	})

	plan := &Plan{}
	for i, bucket := range order {
		section := model.Section{
			ID:           a.opts.NewID(),
			DraftID:      draftID,
			Bucket:       bucket,
			DisplayOrder: i + 1,
		}
		var items []*model.DraftItem
		if bucket == a.tax.CommandBucket {
			items = append(items, commands...)
		}
		for _, c := range buckets[bucket] {
			items = append(items, c.item)
		}
		for pos, it := range items {
			it.ID = a.opts.NewID()
			it.DraftID = draftID
			it.SectionID = section.ID
			it.DisplayOrder = pos + 1
		}
		plan.MergeProposals = append(plan.MergeProposals, a.proposeMerges(draftID, buckets[bucket])...)
		for _, it := range items {
			section.Items = append(section.Items, *it)
		}
		plan.Sections = append(plan.Sections, section)
	}

	for _, c := range cands {
		plan.EntryIDs = append(plan.EntryIDs, c.entry.ID)
	}
	return plan, nil
}

func (a *Assembler) newCandidate(e model.Entry) *candidate {
	c := &candidate{entry: e, severity: -1}
	for _, tag := range e.RiskTags {
		if s := a.tax.Severity(tag); s > c.severity {
			c.severity = s
			c.topTag = tag
		}
	}
	c.item = &model.DraftItem{
		Text:           e.Narrative,
		DomainCode:     e.PrimaryDomain,
		RiskTag:        c.topTag,
		Critical:       a.highRisk(c.severity),
		Kind:           model.ItemEntry,
		Status:         model.ItemActive,
		SourceEntryIDs: []string{e.ID},
	}
	return c
}

func (a *Assembler) highRisk(severity int) bool {
	return severity >= 0 && severity >= a.highSeverity
}

// ranksBefore orders by severity, then newest first, then id for stability.
func ranksBefore(x, y *candidate) bool {
	if x.severity != y.severity {
		return x.severity > y.severity
	}
	if !x.entry.CreatedAt.Equal(y.entry.CreatedAt) {
		return x.entry.CreatedAt.After(y.entry.CreatedAt)
	}
	return x.entry.ID < y.entry.ID
}
