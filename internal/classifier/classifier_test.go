package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"handover/internal/model"
	"handover/internal/taxonomy"
)

func newClassifier(t *testing.T) *Classifier {
	t.Helper()
	tax, err := taxonomy.Default()
	require.NoError(t, err)
	return New(tax)
}

func TestClassify(t *testing.T) {
	c := newClassifier(t)

	tests := []struct {
		name          string
		refs          []model.EntityRef
		narrative     string
		wantPrimary   string
		wantSecondary []string
		wantBucket    string
		wantRoles     []string
		wantTags      []string
		wantGap       bool
	}{
		{
			name:          "single generator reference",
			refs:          []model.EntityRef{{Kind: "generator", ID: "GEN-2"}},
			narrative:     "Generator 2 high exhaust temperature alarm",
			wantPrimary:   "ENG-02",
			wantSecondary: []string{},
			wantBucket:    "ENGINEERING",
			wantRoles:     []string{"chief_engineer", "second_engineer"},
			wantTags:      []string{"OPERATIONAL"},
		},
		{
			name: "heaviest domain wins, generic fault becomes secondary",
			refs: []model.EntityRef{
				{Kind: "fault", ID: "F-1"},
				{Kind: "fire_panel", ID: "FP-1"},
			},
			narrative:     "Fire panel fault on zone 4, unresolved",
			wantPrimary:   "ETO-03",
			wantSecondary: []string{"ENG-00"},
			wantBucket:    "ETO",
			wantRoles:     []string{"eto", "chief_engineer"},
			wantTags:      []string{"SAFETY_CRITICAL", "OPERATIONAL"},
		},
		{
			name: "deck and eto with equal weight break ties on domain code regardless of order",
			refs: []model.EntityRef{
				{Kind: "tender", ID: "T-1"},
				{Kind: "av_system", ID: "AV-9"},
			},
			narrative:     "Tender entertainment system offline",
			wantPrimary:   "DECK-01",
			wantSecondary: []string{"ETO-01"},
			wantBucket:    "DECK",
			wantRoles:     []string{"bosun", "eto"},
			wantTags:      []string{},
		},
		{
			name: "same entities reversed give the same primary",
			refs: []model.EntityRef{
				{Kind: "av_system", ID: "AV-9"},
				{Kind: "tender", ID: "T-1"},
			},
			narrative:     "Tender entertainment system offline",
			wantPrimary:   "DECK-01",
			wantSecondary: []string{"ETO-01"},
			wantBucket:    "DECK",
			wantRoles:     []string{"bosun", "eto"},
			wantTags:      []string{},
		},
		{
			name: "duplicate secondary domains collapse",
			refs: []model.EntityRef{
				{Kind: "main_engine", ID: "ME-P"},
				{Kind: "fault", ID: "F-1"},
				{Kind: "work_order", ID: "WO-2"},
			},
			narrative:     "Port main engine fuel leak",
			wantPrimary:   "ENG-01",
			wantSecondary: []string{"ENG-00"},
			wantBucket:    "ENGINEERING",
			wantRoles:     []string{"chief_engineer", "second_engineer"},
			wantTags:      []string{"OPERATIONAL"},
		},
		{
			name:          "no resolvable domain degrades to catch-all",
			refs:          []model.EntityRef{{Kind: "submarine", ID: "S-1"}},
			narrative:     "Guest asked about the submarine schedule",
			wantPrimary:   "GENERAL",
			wantSecondary: []string{},
			wantBucket:    "GENERAL",
			wantRoles:     []string{},
			wantTags:      []string{"GUEST_IMPACT"},
			wantGap:       true,
		},
		{
			name:          "no references at all",
			narrative:     "Man overboard drill completed",
			wantPrimary:   "GENERAL",
			wantSecondary: []string{},
			wantBucket:    "GENERAL",
			wantRoles:     []string{},
			wantTags:      []string{"SAFETY_CRITICAL"},
			wantGap:       true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Classify(tt.refs, tt.narrative)

			assert.Equal(t, tt.wantPrimary, got.PrimaryDomain)
			assert.Equal(t, tt.wantSecondary, got.SecondaryDomains)
			assert.Equal(t, tt.wantBucket, got.Bucket)
			assert.Equal(t, tt.wantRoles, got.OwnerRoles)
			assert.Equal(t, tt.wantTags, got.RiskTags)
			assert.Equal(t, tt.wantGap, got.Gap)
			assert.Equal(t, c.Taxonomy().Version, got.TaxonomyVersion)
		})
	}
}

func TestClassify_PrimaryEntity(t *testing.T) {
	c := newClassifier(t)

	got := c.Classify([]model.EntityRef{
		{Kind: "fault", ID: "F-7"},
		{Kind: "generator", ID: "GEN-1"},
	}, "generator alarm")

	require.NotNil(t, got.PrimaryEntity)
	assert.Equal(t, "generator:GEN-1", got.PrimaryEntity.Key())
}

func TestClassify_UnresolvedKindsRecorded(t *testing.T) {
	c := newClassifier(t)

	got := c.Classify([]model.EntityRef{
		{Kind: "generator", ID: "GEN-1"},
		{Kind: "Drone", ID: "D-1"},
		{Kind: "drone", ID: "D-2"},
	}, "")

	assert.False(t, got.Gap)
	assert.Equal(t, []string{"drone"}, got.UnresolvedKinds)
}

func TestClassify_PrimaryNeverInSecondary(t *testing.T) {
	c := newClassifier(t)

	refs := []model.EntityRef{
		{Kind: "generator", ID: "1"},
		{Kind: "generator", ID: "2"},
		{Kind: "shore_power", ID: "3"},
		{Kind: "radar", ID: "4"},
	}
	got := c.Classify(refs, "")

	assert.Equal(t, "ENG-02", got.PrimaryDomain)
	assert.NotContains(t, got.SecondaryDomains, got.PrimaryDomain)
	assert.Equal(t, []string{"ETO-02"}, got.SecondaryDomains)
}
