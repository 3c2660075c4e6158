// Package taxonomy holds the versioned classification tables: entity kind to
// domain, domain to bucket, role bias and risk rules. The tables are loaded from
// YAML so the taxonomy team can ship changes without a redeploy.
package taxonomy

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultYAML []byte

// DomainRule maps a domain code onto its presentation bucket and owner roles.
type DomainRule struct {
	Name   string   `yaml:"name"`
	Bucket string   `yaml:"bucket"`
	Roles  []string `yaml:"roles"`
}

// EntityRule maps an entity kind onto a canonical domain.
type EntityRule struct {
	Domain string `yaml:"domain"`
	Weight int    `yaml:"weight"`
}

// RiskRules derives risk tags from entity kinds and narrative keywords.
type RiskRules struct {
	EntityKinds map[string][]string `yaml:"entity_kinds"`
	Keywords    map[string][]string `yaml:"keywords"`
}

// Taxonomy is an immutable snapshot of the rule tables.
type Taxonomy struct {
	Version        string                `yaml:"version"`
	GeneralDomain  string                `yaml:"general_domain"`
	CatchAllBucket string                `yaml:"catch_all_bucket"`
	CommandBucket  string                `yaml:"command_bucket"`
	Buckets        []string              `yaml:"buckets"`
	Domains        map[string]DomainRule `yaml:"domains"`
	Entities       map[string]EntityRule `yaml:"entities"`
	RiskTags       map[string]int        `yaml:"risk_tags"`
	RiskRules      RiskRules             `yaml:"risk_rules"`
	Stopwords      []string              `yaml:"stopwords"`

	bucketOrder map[string]int
	stopwords   map[string]struct{}
}

// Default returns the taxonomy embedded in the binary.
func Default() (*Taxonomy, error) {
	return Parse(defaultYAML)
}

// Load reads a taxonomy file. An empty path falls back to the embedded default.
func Load(path string) (*Taxonomy, error) {
	if path == "" {
		return Default()
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read taxonomy: %w", err)
	}
	return Parse(b)
}

// Parse decodes and validates a YAML taxonomy document.
func Parse(b []byte) (*Taxonomy, error) {
	var t Taxonomy
	if err := yaml.Unmarshal(b, &t); err != nil {
		return nil, fmt.Errorf("decode taxonomy: %w", err)
	}
	t.normalize()
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

func (t *Taxonomy) normalize() {
	entities := make(map[string]EntityRule, len(t.Entities))
	for k, v := range t.Entities {
		entities[NormalizeKind(k)] = v
	}
	t.Entities = entities

	kinds := make(map[string][]string, len(t.RiskRules.EntityKinds))
	for k, v := range t.RiskRules.EntityKinds {
		kinds[NormalizeKind(k)] = v
	}
	t.RiskRules.EntityKinds = kinds

	keywords := make(map[string][]string, len(t.RiskRules.Keywords))
	for k, v := range t.RiskRules.Keywords {
		keywords[strings.ToLower(strings.TrimSpace(k))] = v
	}
	t.RiskRules.Keywords = keywords

	t.bucketOrder = make(map[string]int, len(t.Buckets))
	for i, b := range t.Buckets {
		t.bucketOrder[b] = i
	}
	t.stopwords = make(map[string]struct{}, len(t.Stopwords))
	for _, w := range t.Stopwords {
		t.stopwords[strings.ToLower(w)] = struct{}{}
	}
}

// Validate checks the cross references between the tables.
func (t *Taxonomy) Validate() error {
	var errs []error
	if t.Version == "" {
		errs = append(errs, errors.New("version is required"))
	}
	if len(t.Buckets) == 0 {
		errs = append(errs, errors.New("at least one bucket is required"))
	}
	if _, ok := t.bucketOrder[t.CatchAllBucket]; !ok {
		errs = append(errs, fmt.Errorf("catch-all bucket %q is not listed in buckets", t.CatchAllBucket))
	}
	if _, ok := t.bucketOrder[t.CommandBucket]; !ok {
		errs = append(errs, fmt.Errorf("command bucket %q is not listed in buckets", t.CommandBucket))
	}
	if t.GeneralDomain == "" {
		errs = append(errs, errors.New("general domain is required"))
	}
	for _, code := range sortedKeys(t.Domains) {
		if _, ok := t.bucketOrder[t.Domains[code].Bucket]; !ok {
			errs = append(errs, fmt.Errorf("domain %s: unknown bucket %q", code, t.Domains[code].Bucket))
		}
	}
	for _, kind := range sortedKeys(t.Entities) {
		if _, ok := t.Domains[t.Entities[kind].Domain]; !ok {
			errs = append(errs, fmt.Errorf("entity %s: unknown domain %q", kind, t.Entities[kind].Domain))
		}
	}
	for _, m := range []map[string][]string{t.RiskRules.EntityKinds, t.RiskRules.Keywords} {
		for _, key := range sortedKeys(m) {
			for _, tag := range m[key] {
				if _, ok := t.RiskTags[tag]; !ok {
					errs = append(errs, fmt.Errorf("risk rule %s: unknown tag %q", key, tag))
				}
			}
		}
	}
	return errors.Join(errs...)
}

// NormalizeKind canonicalizes an entity kind for lookup.
func NormalizeKind(kind string) string {
	return strings.ToLower(strings.TrimSpace(kind))
}

// Entity returns the rule registered for an entity kind.
func (t *Taxonomy) Entity(kind string) (EntityRule, bool) {
	r, ok := t.Entities[NormalizeKind(kind)]
	return r, ok
}

// Domain returns the rule registered for a domain code.
func (t *Taxonomy) Domain(code string) (DomainRule, bool) {
	r, ok := t.Domains[code]
	return r, ok
}

// BucketRank is the display position of a bucket. Unknown buckets sort with the catch-all.
func (t *Taxonomy) BucketRank(bucket string) int {
	if i, ok := t.bucketOrder[bucket]; ok {
		return i
	}
	return t.bucketOrder[t.CatchAllBucket]
}

// KnownBucket reports whether the bucket is part of the display sequence.
func (t *Taxonomy) KnownBucket(bucket string) bool {
	_, ok := t.bucketOrder[bucket]
	return ok
}

// Severity returns the ordinal severity of a risk tag; unknown tags rank lowest.
func (t *Taxonomy) Severity(tag string) int {
	if s, ok := t.RiskTags[tag]; ok {
		return s
	}
	return -1
}

// IsStopword reports whether a token is ignored by similarity checks.
func (t *Taxonomy) IsStopword(token string) bool {
	_, ok := t.stopwords[token]
	return ok
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Tokens lowercases text, splits it on anything that is not a letter or digit
// and drops stopwords. Order of first appearance is kept; duplicates are removed.
func (t *Taxonomy) Tokens(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]struct{}, len(fields))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if t.IsStopword(f) {
			continue
		}
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}

// NormalizeText collapses text to lowercase words separated by single spaces.
func NormalizeText(text string) string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	return strings.Join(fields, " ")
}
