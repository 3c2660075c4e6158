// Package render turns a signed draft into an export artifact. Output is a
// pure function of the draft so that re-rendering stored content yields the
// same bytes.
package render

import (
	"errors"
	"fmt"
	"sort"

	"handover/internal/model"
)

var (
	ErrUnsupportedArtifact = errors.New("unsupported artifact type")
	ErrUnsigned            = errors.New("draft has no content hash")
)

// Artifact is a rendered export.
type Artifact struct {
	Body        []byte
	ContentType string
	Extension   string
}

// Renderer produces one artifact type.
type Renderer interface {
	Render(d *model.Draft) (*Artifact, error)
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(d *model.Draft) (*Artifact, error)

func (f RendererFunc) Render(d *model.Draft) (*Artifact, error) { return f(d) }

// Registry dispatches on artifact type.
type Registry struct {
	renderers map[model.ArtifactType]Renderer
}

// NewRegistry returns a registry with the document, printable and message renderers.
func NewRegistry() *Registry {
	r := &Registry{renderers: map[model.ArtifactType]Renderer{}}
	r.Register(model.ArtifactDocument, RendererFunc(renderDocument))
	r.Register(model.ArtifactPrintable, RendererFunc(renderPrintable))
	r.Register(model.ArtifactMessage, RendererFunc(renderMessage))
	return r
}

// Register installs or replaces the renderer for t.
func (r *Registry) Register(t model.ArtifactType, rd Renderer) {
	r.renderers[t] = rd
}

// Render renders d as t.
func (r *Registry) Render(t model.ArtifactType, d *model.Draft) (*Artifact, error) {
	rd, ok := r.renderers[t]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedArtifact, t)
	}
	if d.ContentHash == nil || *d.ContentHash == "" {
		return nil, ErrUnsigned
	}
	return rd.Render(d)
}

// view is the template data shared by all renderers.
type view struct {
	Title       string
	TenantID    string
	DraftID     string
	Department  string
	PeriodStart string
	PeriodEnd   string
	Outgoing    string
	OutgoingAt  string
	Incoming    string
	IncomingAt  string
	ContentHash string
	Sections    []sectionView
}

type sectionView struct {
	Bucket string
	Items  []itemView
}

type itemView struct {
	Text     string
	Domain   string
	Critical bool
	Command  bool
}

const dateLayout = "2006-01-02"

func newView(d *model.Draft) view {
	v := view{
		Title:       fmt.Sprintf("Handover %s %s to %s", d.Department, d.PeriodStart.UTC().Format(dateLayout), d.PeriodEnd.UTC().Format(dateLayout)),
		TenantID:    d.TenantID,
		DraftID:     d.ID,
		Department:  d.Department,
		PeriodStart: d.PeriodStart.UTC().Format(dateLayout),
		PeriodEnd:   d.PeriodEnd.UTC().Format(dateLayout),
		Outgoing:    deref(d.OutgoingSignerID),
		Incoming:    deref(d.IncomingSignerID),
		ContentHash: deref(d.ContentHash),
	}
	if d.OutgoingSignedAt != nil {
		v.OutgoingAt = d.OutgoingSignedAt.UTC().Format("2006-01-02T15:04:05Z")
	}
	if d.IncomingSignedAt != nil {
		v.IncomingAt = d.IncomingSignedAt.UTC().Format("2006-01-02T15:04:05Z")
	}

	secs := make([]model.Section, len(d.Sections))
	copy(secs, d.Sections)
	sort.SliceStable(secs, func(i, j int) bool { return secs[i].DisplayOrder < secs[j].DisplayOrder })
	for _, s := range secs {
		items := make([]model.DraftItem, 0, len(s.Items))
		for _, it := range s.Items {
			if it.Status != model.ItemSuperseded {
				items = append(items, it)
			}
		}
		if len(items) == 0 {
			continue
		}
		sort.SliceStable(items, func(i, j int) bool { return items[i].DisplayOrder < items[j].DisplayOrder })
		sv := sectionView{Bucket: s.Bucket}
		for _, it := range items {
			sv.Items = append(sv.Items, itemView{
				Text:     it.Text,
				Domain:   it.DomainCode,
				Critical: it.Critical,
				Command:  it.Kind == model.ItemCommand,
			})
		}
		v.Sections = append(v.Sections, sv)
	}
	return v
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
