package export

import (
	"bytes"
	"html/template"
	"time"
)

var digestTemplate = template.Must(template.New("digest").Parse(digestHTML))

// TemplateData holds data for digest template rendering.
type TemplateData struct {
	Title       string
	GeneratedAt time.Time
	Notes       []TemplateNote
}

// TemplateNote holds one note's rendering data.
type TemplateNote struct {
	Title        string
	Content      string
	Purpose      string
	Maturity     string
	NoteType     string
	Score        int
	QualityState string
	Tags         []string
	CreatedAt    time.Time
}

// RenderDigestHTML renders the digest template with provided data.
func RenderDigestHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := digestTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const digestHTML = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.Title}}</title>
  <style>
    body { font-family: Arial, sans-serif; line-height: 1.6; max-width: 800px; margin: 2rem auto; }
    h1 { border-bottom: 2px solid #333; padding-bottom: 0.5rem; }
    .meta { color: #666; font-size: 0.9em; margin-bottom: 2rem; }
    .note { margin: 1.5rem 0; padding: 1rem; border-left: 3px solid #333; background: #f9f9f9; }
    .note h2 { margin-top: 0; }
    .note .fields { color: #666; font-size: 0.85em; }
    .note .review { color: #a15c00; font-weight: bold; }
    .tags { font-size: 0.85em; color: #336; }
  </style>
</head>
<body>
  <h1>{{.Title}}</h1>
  <div class="meta">Generated {{.GeneratedAt.Format "Jan 2, 2006 15:04"}} | {{len .Notes}} notes</div>
  {{range .Notes}}
  <div class="note">
    <h2>{{.Title}}</h2>
    <div class="fields">
      {{if .Maturity}}{{.Maturity}} | {{end}}{{if .NoteType}}{{.NoteType}} | {{end}}score {{.Score}}/10
      {{if eq .QualityState "needs_review"}}<span class="review">needs review</span>{{end}}
    </div>
    {{if .Purpose}}<p><em>{{.Purpose}}</em></p>{{end}}
    <p>{{.Content}}</p>
    {{if .Tags}}<div class="tags">{{range .Tags}}#{{.}} {{end}}</div>{{end}}
  </div>
  {{end}}
</body>
</html>`
