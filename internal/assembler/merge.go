package assembler

import (
	"fmt"

	"handover/internal/model"
)

// Similarity is the Jaccard overlap of two token sets.
func Similarity(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	set := make(map[string]struct{}, len(a))
	for _, t := range a {
		set[t] = struct{}{}
	}
	inter := 0
	union := len(set)
	seen := make(map[string]struct{}, len(b))
	for _, t := range b {
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := set[t]; ok {
			inter++
		} else {
			union++
		}
	}
	return float64(inter) / float64(union)
}

// proposeMerges pairs near-duplicate items of one bucket. group must already be
// ranked, so the earlier item of each pair is the survivor. Multi-way
// duplicates yield one proposal per pair.
func (a *Assembler) proposeMerges(draftID string, group []*candidate) []model.MergeProposal {
	tokens := make([][]string, len(group))
	for i, c := range group {
		tokens[i] = a.tax.Tokens(c.entry.Narrative)
	}

	var out []model.MergeProposal
	for i := 0; i < len(group); i++ {
		ei := group[i].entry.PrimaryEntity
		if ei == nil || ei.IsZero() {
			continue
		}
		for j := i + 1; j < len(group); j++ {
			ej := group[j].entry.PrimaryEntity
			if ej == nil || ej.Key() != ei.Key() {
				continue
			}
			sim := Similarity(tokens[i], tokens[j])
			if sim < a.opts.MergeThreshold {
				continue
			}
			out = append(out, model.MergeProposal{
				ID:             a.opts.NewID(),
				DraftID:        draftID,
				SurvivorItemID: group[i].item.ID,
				MergedItemID:   group[j].item.ID,
				Similarity:     sim,
				Reason:         fmt.Sprintf("same %s, narrative overlap %.2f", ei.Key(), sim),
				Status:         model.MergePending,
				CreatedAt:      a.opts.Now(),
			})
		}
	}
	return out
}
