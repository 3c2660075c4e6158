package assembler

import (
	"sort"
	"strings"

	"handover/internal/model"
)

// CommandText renders the text of a synthesized command item.
func CommandText(tag string, texts []string) string {
	if tag == "" {
		tag = "HIGH_RISK"
	}
	return "UNRESOLVED " + tag + ": " + strings.Join(texts, " / ")
}

// synthesizeCommands groups unresolved high-risk entries by primary entity and
// returns one command item per group, highest ranked group first. Corrective
// entries are never escalated themselves.
func (a *Assembler) synthesizeCommands(cands []*candidate, resolved map[string]bool) []*model.DraftItem {
	groups := map[string][]*candidate{}
	var keys []string
	for _, c := range cands {
		if !c.item.Critical || resolved[c.entry.ID] || isCorrective(&c.entry) {
			continue
		}
		key := "entry:" + c.entry.ID
		if c.entry.PrimaryEntity != nil && !c.entry.PrimaryEntity.IsZero() {
			key = c.entry.PrimaryEntity.Key()
		}
		if _, ok := groups[key]; !ok {
			keys = append(keys, key)
		}
		groups[key] = append(groups[key], c)
	}
	for _, k := range keys {
		g := groups[k]
		sort.SliceStable(g, func(i, j int) bool { return ranksBefore(g[i], g[j]) })
	}
	sort.SliceStable(keys, func(i, j int) bool { return ranksBefore(groups[keys[i]][0], groups[keys[j]][0]) })

	items := make([]*model.DraftItem, 0, len(keys))
	for _, k := range keys {
		g := groups[k]
		lead := g[0]
		ids := make([]string, 0, len(g))
		texts := make([]string, 0, len(g))
		for _, c := range g {
			ids = append(ids, c.entry.ID)
			texts = appendUnique(texts, c.entry.Narrative)
		}
		items = append(items, &model.DraftItem{
			Text:           CommandText(lead.topTag, texts),
			DomainCode:     lead.entry.PrimaryDomain,
			RiskTag:        lead.topTag,
			Critical:       true,
			Kind:           model.ItemCommand,
			Status:         model.ItemActive,
			SourceEntryIDs: ids,
		})
	}
	return items
}

// isCorrective reports whether e resolves another entry.
func isCorrective(e *model.Entry) bool {
	for _, r := range e.SourceRefs {
		if r.Kind == model.SourceKindEntry && r.Relation == model.RelationResolves {
			return true
		}
	}
	return false
}

// Regeneration is a pending text change for a command item.
type Regeneration struct {
	ItemID  string
	OldText string
	NewText string
}

// Regenerate recomputes every active command item from the current text of the
// active entry items that carry its source entries. Only changed items are returned.
func Regenerate(sections []model.Section) []Regeneration {
	carrier := map[string]*model.DraftItem{}
	for si := range sections {
		for ii := range sections[si].Items {
			it := &sections[si].Items[ii]
			if it.Kind != model.ItemEntry || it.Status != model.ItemActive {
				continue
			}
			for _, id := range it.SourceEntryIDs {
				carrier[id] = it
			}
		}
	}

	var out []Regeneration
	for _, s := range sections {
		for _, it := range s.Items {
			if it.Kind != model.ItemCommand || it.Status != model.ItemActive {
				continue
			}
			var texts []string
			for _, id := range it.SourceEntryIDs {
				if c, ok := carrier[id]; ok {
					texts = appendUnique(texts, c.Text)
				}
			}
			if len(texts) == 0 {
				continue
			}
			next := CommandText(it.RiskTag, texts)
			if next != it.Text {
				out = append(out, Regeneration{ItemID: it.ID, OldText: it.Text, NewText: next})
			}
		}
	}
	return out
}

func appendUnique(list []string, s string) []string {
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}
