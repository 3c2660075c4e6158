package render

import (
	"bytes"
	htmltemplate "html/template"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"

	"handover/internal/model"
)

type frontMatter struct {
	Title       string `yaml:"title"`
	Tenant      string `yaml:"tenant"`
	Draft       string `yaml:"draft"`
	Department  string `yaml:"department"`
	PeriodStart string `yaml:"period_start"`
	PeriodEnd   string `yaml:"period_end"`
	Outgoing    string `yaml:"outgoing_signer"`
	OutgoingAt  string `yaml:"outgoing_signed_at"`
	Incoming    string `yaml:"incoming_signer"`
	IncomingAt  string `yaml:"incoming_signed_at"`
	ContentHash string `yaml:"content_hash"`
}

var markdownTmpl = template.Must(template.New("document").Parse(`# {{ .Title }}
{{ range .Sections }}
## {{ .Bucket }}
{{ range .Items }}
- {{ if .Command }}**COMMAND** {{ else if .Critical }}**CRITICAL** {{ end }}{{ .Text }} ({{ .Domain }})
{{- end }}
{{ end }}
Signed off by {{ .Outgoing }} (outgoing) and {{ .Incoming }} (incoming).
`))

func renderDocument(d *model.Draft) (*Artifact, error) {
	v := newView(d)
	fm, err := yaml.Marshal(frontMatter{
		Title:       v.Title,
		Tenant:      v.TenantID,
		Draft:       v.DraftID,
		Department:  v.Department,
		PeriodStart: v.PeriodStart,
		PeriodEnd:   v.PeriodEnd,
		Outgoing:    v.Outgoing,
		OutgoingAt:  v.OutgoingAt,
		Incoming:    v.Incoming,
		IncomingAt:  v.IncomingAt,
		ContentHash: v.ContentHash,
	})
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.WriteString("---\n")
	buf.Write(fm)
	buf.WriteString("---\n\n")
	if err := markdownTmpl.Execute(&buf, v); err != nil {
		return nil, err
	}
	return &Artifact{Body: buf.Bytes(), ContentType: "text/markdown; charset=utf-8", Extension: ".md"}, nil
}

var printableTmpl = htmltemplate.Must(htmltemplate.New("printable").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{ .Title }}</title>
<meta name="content-hash" content="{{ .ContentHash }}">
</head>
<body>
<h1>{{ .Title }}</h1>
<p>Draft {{ .DraftID }} &middot; {{ .PeriodStart }} to {{ .PeriodEnd }}</p>
{{- range .Sections }}
<section>
<h2>{{ .Bucket }}</h2>
<ol>
{{- range .Items }}
<li{{ if .Critical }} class="critical"{{ end }}>{{ if .Command }}<strong>COMMAND</strong> {{ end }}{{ .Text }} <small>{{ .Domain }}</small></li>
{{- end }}
</ol>
</section>
{{- end }}
<footer>
<p>Outgoing: {{ .Outgoing }} {{ .OutgoingAt }}</p>
<p>Incoming: {{ .Incoming }} {{ .IncomingAt }}</p>
<p>Content hash: <code>{{ .ContentHash }}</code></p>
</footer>
</body>
</html>
`))

func renderPrintable(d *model.Draft) (*Artifact, error) {
	var buf bytes.Buffer
	if err := printableTmpl.Execute(&buf, newView(d)); err != nil {
		return nil, err
	}
	return &Artifact{Body: buf.Bytes(), ContentType: "text/html; charset=utf-8", Extension: ".html"}, nil
}

func renderMessage(d *model.Draft) (*Artifact, error) {
	v := newView(d)
	var b strings.Builder
	b.WriteString(v.Title + "\n")
	for _, s := range v.Sections {
		b.WriteString("\n" + s.Bucket + "\n")
		for _, it := range s.Items {
			marker := "-"
			if it.Critical {
				marker = "!"
			}
			b.WriteString(marker + " " + it.Text + "\n")
		}
	}
	b.WriteString("\nSigned: " + v.Outgoing + " / " + v.Incoming + "\n")
	b.WriteString("Hash: " + v.ContentHash + "\n")
	return &Artifact{Body: []byte(b.String()), ContentType: "text/plain; charset=utf-8", Extension: ".txt"}, nil
}
