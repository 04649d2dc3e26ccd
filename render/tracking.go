package render

import (
	"bytes"
	"fmt"
	"io"
	"text/template"
)

// DefaultTrackingTitle is the tracking dashboard's top-level heading.
const DefaultTrackingTitle = "Audit tracking"

var trackingTemplate = template.Must(template.New("tracking").Parse(`# {{.Title}}

Dashboard over [[{{.Checklist}}]]. Requires the Dataview plugin.

## Open tasks

` + "```" + `dataview
TASK
FROM "{{.Checklist}}"
WHERE !completed AND !stale
GROUP BY meta(section).subpath
` + "```" + `

## Stale findings

` + "```" + `dataview
TASK
FROM "{{.Checklist}}"
WHERE stale
GROUP BY category
` + "```" + `

## Open tasks by severity

` + "```" + `dataview
TASK
FROM "{{.Checklist}}"
WHERE !completed AND severity
GROUP BY severity
` + "```" + `

## Statistics

` + "```" + `dataview
TABLE WITHOUT ID
  length(filter(file.tasks, (t) => t.completed)) AS "Done",
  length(filter(file.tasks, (t) => !t.completed)) AS "Open",
  length(file.tasks) AS "Total"
FROM "{{.Checklist}}"
` + "```" + `

## All tasks

` + "```" + `dataview
TASK
FROM "{{.Checklist}}"
GROUP BY query
` + "```" + `
`))

// Tracking renders the Dataview dashboard over the checklist.
type Tracking struct {
	opts options
}

// NewTracking creates a tracking renderer.
func NewTracking(opts ...Option) *Tracking {
	o := newOptions(opts)
	if o.title == DefaultTitle {
		o.title = DefaultTrackingTitle
	}
	return &Tracking{opts: o}
}

// Render writes the dashboard for the checklist to w. checklist is the
// checklist's path from the vault root without extension, e.g.
// "audit/checklist"; Dataview resolves FROM sources against the vault root.
func (r *Tracking) Render(w io.Writer, checklist string) error {
	b, err := r.Bytes(checklist)
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

// Bytes returns the dashboard document.
func (r *Tracking) Bytes(checklist string) ([]byte, error) {
	var buf bytes.Buffer
	err := trackingTemplate.Execute(&buf, struct {
		Title     string
		Checklist string
	}{r.opts.title, checklist})
	if err != nil {
		return nil, fmt.Errorf("render tracking: %w", err)
	}
	return buf.Bytes(), nil
}
