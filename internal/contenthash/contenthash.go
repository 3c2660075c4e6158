// Package contenthash computes the tamper-evidence digest of a signed draft.
package contenthash

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"handover/internal/model"
)

// Prefix tags the digest algorithm.
const Prefix = "sha256:"

type canonicalItem struct {
	Order          int      `json:"order"`
	Text           string   `json:"text"`
	Domain         string   `json:"domain"`
	Critical       bool     `json:"critical"`
	Synthesized    bool     `json:"synthesized"`
	SourceEntryIDs []string `json:"source_entry_ids"`
}

type canonicalSection struct {
	Order  int             `json:"order"`
	Bucket string          `json:"bucket"`
	Items  []canonicalItem `json:"items"`
}

type canonicalDraft struct {
	DraftID  string             `json:"draft_id"`
	Sections []canonicalSection `json:"sections"`
}

// Compute hashes the final section and item text and ordering of a draft.
// Superseded items are excluded; identifiers of rows other than the draft and
// source entries are not part of the digest.
func Compute(draftID string, sections []model.Section) (string, error) {
	secs := make([]model.Section, len(sections))
	copy(secs, sections)
	sort.SliceStable(secs, func(i, j int) bool { return secs[i].DisplayOrder < secs[j].DisplayOrder })

	doc := canonicalDraft{DraftID: draftID, Sections: make([]canonicalSection, 0, len(secs))}
	for _, s := range secs {
		items := make([]model.DraftItem, 0, len(s.Items))
		for _, it := range s.Items {
			if it.Status == model.ItemSuperseded {
				continue
			}
			items = append(items, it)
		}
		if len(items) == 0 {
			continue
		}
		sort.SliceStable(items, func(i, j int) bool { return items[i].DisplayOrder < items[j].DisplayOrder })

		cs := canonicalSection{Order: s.DisplayOrder, Bucket: s.Bucket, Items: make([]canonicalItem, 0, len(items))}
		for _, it := range items {
			ids := append([]string{}, it.SourceEntryIDs...)
			cs.Items = append(cs.Items, canonicalItem{
				Order:          it.DisplayOrder,
				Text:           it.Text,
				Domain:         it.DomainCode,
				Critical:       it.Critical,
				Synthesized:    it.Kind == model.ItemCommand,
				SourceEntryIDs: ids,
			})
		}
		doc.Sections = append(doc.Sections, cs)
	}

	b, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("encode canonical draft: %w", err)
	}
	sum := sha256.Sum256(b)
	return Prefix + hex.EncodeToString(sum[:]), nil
}

// Checksum returns the prefixed sha256 of raw artifact bytes.
func Checksum(b []byte) string {
	sum := sha256.Sum256(b)
	return Prefix + hex.EncodeToString(sum[:])
}
