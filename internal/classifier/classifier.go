// Package classifier routes an entry's entity references onto a primary domain,
// secondary domains, one presentation bucket, suggested owner roles and risk tags.
//
// Classification never fails: an entry with nothing resolvable lands in the
// catch-all bucket with Gap set so the caller can log it for taxonomy upkeep.
package classifier

import (
	"sort"
	"strings"

	"handover/internal/model"
	"handover/internal/taxonomy"
)

// Classifier is a pure function over one taxonomy snapshot. It is safe for
// concurrent use.
type Classifier struct {
	tax *taxonomy.Taxonomy
}

// New returns a classifier bound to tax.
func New(tax *taxonomy.Taxonomy) *Classifier {
	return &Classifier{tax: tax}
}

// Taxonomy returns the snapshot the classifier routes with.
func (c *Classifier) Taxonomy() *taxonomy.Taxonomy {
	return c.tax
}

type resolved struct {
	ref    model.EntityRef
	domain string
	weight int
}

// Classify maps entity references and narrative onto a classification.
func (c *Classifier) Classify(refs []model.EntityRef, narrative string) model.Classification {
	out := model.Classification{
		TaxonomyVersion:  c.tax.Version,
		SecondaryDomains: []string{},
		OwnerRoles:       []string{},
		RiskTags:         []string{},
	}

	var hits []resolved
	seenUnresolved := map[string]struct{}{}
	for _, ref := range refs {
		rule, ok := c.tax.Entity(ref.Kind)
		if !ok {
			kind := taxonomy.NormalizeKind(ref.Kind)
			if _, dup := seenUnresolved[kind]; !dup {
				seenUnresolved[kind] = struct{}{}
				out.UnresolvedKinds = append(out.UnresolvedKinds, kind)
			}
			continue
		}
		hits = append(hits, resolved{ref: ref, domain: rule.Domain, weight: rule.Weight})
	}

	if len(hits) == 0 {
		out.PrimaryDomain = c.tax.GeneralDomain
		out.Bucket = c.tax.CatchAllBucket
		out.Gap = true
	} else {
		primary := hits[0]
		for _, h := range hits[1:] {
			if h.weight > primary.weight || (h.weight == primary.weight && h.domain < primary.domain) {
				primary = h
			}
		}
		ref := primary.ref
		out.PrimaryDomain = primary.domain
		out.PrimaryEntity = &ref

		seen := map[string]struct{}{primary.domain: {}}
		for _, h := range hits {
			if _, ok := seen[h.domain]; ok {
				continue
			}
			seen[h.domain] = struct{}{}
			out.SecondaryDomains = append(out.SecondaryDomains, h.domain)
		}

		if rule, ok := c.tax.Domain(primary.domain); ok && c.tax.KnownBucket(rule.Bucket) {
			out.Bucket = rule.Bucket
		} else {
			out.Bucket = c.tax.CatchAllBucket
			out.Gap = true
		}
	}

	out.OwnerRoles = c.ownerRoles(out.PrimaryDomain, out.SecondaryDomains)
	out.RiskTags = c.riskTags(refs, narrative)
	return out
}

func (c *Classifier) ownerRoles(primary string, secondary []string) []string {
	roles := []string{}
	seen := map[string]struct{}{}
	for _, code := range append([]string{primary}, secondary...) {
		rule, ok := c.tax.Domain(code)
		if !ok {
			continue
		}
		for _, r := range rule.Roles {
			if _, dup := seen[r]; dup {
				continue
			}
			seen[r] = struct{}{}
			roles = append(roles, r)
		}
	}
	return roles
}

func (c *Classifier) riskTags(refs []model.EntityRef, narrative string) []string {
	set := map[string]struct{}{}
	for _, ref := range refs {
		for _, tag := range c.tax.RiskRules.EntityKinds[taxonomy.NormalizeKind(ref.Kind)] {
			set[tag] = struct{}{}
		}
	}

	text := taxonomy.NormalizeText(narrative)
	tokens := map[string]struct{}{}
	for _, tok := range strings.Fields(text) {
		tokens[tok] = struct{}{}
	}
	padded := " " + text + " "
	for keyword, tags := range c.tax.RiskRules.Keywords {
		hit := false
		if strings.Contains(keyword, " ") {
			hit = strings.Contains(padded, " "+keyword+" ")
		} else {
			_, hit = tokens[keyword]
		}
		if !hit {
			continue
		}
		for _, tag := range tags {
			set[tag] = struct{}{}
		}
	}

	tags := make([]string, 0, len(set))
	for tag := range set {
		tags = append(tags, tag)
	}
	sort.Slice(tags, func(i, j int) bool {
		si, sj := c.tax.Severity(tags[i]), c.tax.Severity(tags[j])
		if si != sj {
			return si > sj
		}
		return tags[i] < tags[j]
	})
	return tags
}
