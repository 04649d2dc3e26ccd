package render

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/zero-day-ai/adchecklist/catalog"
	"github.com/zero-day-ai/adchecklist/graph"
	"github.com/zero-day-ai/adchecklist/task"
)

// DefaultNotesTitle is the notes document's top-level heading.
const DefaultNotesTitle = "Query results"

// QueryResult is what one query returned in this run.
type QueryResult struct {
	Query *catalog.Query

	// Columns is the result's column order.
	Columns []string

	// Rows holds the first rows of the result, up to the renderer's limit.
	Rows []graph.Row

	// Total is the number of rows the query returned.
	Total int

	// Err is set when the query failed.
	Err error
}

// Notes renders the notes document: every query with its description,
// Cypher text and a result table, grouped by section.
type Notes struct {
	opts options
}

// NewNotes creates a notes renderer.
func NewNotes(opts ...Option) *Notes {
	o := newOptions(opts)
	if o.title == DefaultTitle {
		o.title = DefaultNotesTitle
	}
	return &Notes{opts: o}
}

// MaxRows returns the configured row limit, 0 when unlimited.
func (r *Notes) MaxRows() int {
	if r.opts.maxRows < 0 {
		return 0
	}
	return r.opts.maxRows
}

// Render writes the notes document to w. Results are rendered in the given
// order, which callers keep equal to catalog order.
func (r *Notes) Render(w io.Writer, results []QueryResult) error {
	_, err := w.Write(r.Bytes(results))
	return err
}

// Bytes returns the notes document.
func (r *Notes) Bytes(results []QueryResult) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "# %s\n", r.opts.title)

	section := "\x00"
	for _, res := range results {
		q := res.Query
		if q.Section != section {
			section = q.Section
			name := section
			if name == "" {
				name = "Queries"
			}
			fmt.Fprintf(&buf, "\n## %s\n", name)
		}

		fmt.Fprintf(&buf, "\n### %s\n\n", q.Name)
		if d := strings.TrimSpace(q.Description); d != "" {
			buf.WriteString(d)
			buf.WriteString("\n\n")
		}
		if q.Severity != "" {
			fmt.Fprintf(&buf, "Severity: %s\n\n", q.Severity)
		}
		fmt.Fprintf(&buf, "```cypher\n%s\n```\n\n", strings.TrimSpace(q.Cypher))

		if res.Err != nil {
			fmt.Fprintf(&buf, "> [!warning] Query failed\n> %s\n", task.OneLine(res.Err.Error()))
			continue
		}

		shown := len(res.Rows)
		if limit := r.MaxRows(); limit > 0 && shown > limit {
			shown = limit
		}
		if shown < res.Total {
			fmt.Fprintf(&buf, "Results: %d (showing %d)\n", res.Total, shown)
		} else {
			fmt.Fprintf(&buf, "Results: %d\n", res.Total)
		}
		if shown == 0 {
			continue
		}
		buf.WriteString("\n")

		rows := res.Rows[:shown]
		if len(res.Columns) == 1 {
			col := res.Columns[0]
			for _, row := range rows {
				fmt.Fprintf(&buf, "- %s\n", task.Display(row[col]))
			}
			continue
		}
		writeTable(&buf, res.Columns, rows)
	}
	return buf.Bytes()
}

func writeTable(buf *bytes.Buffer, columns []string, rows []graph.Row) {
	buf.WriteString("|")
	for _, c := range columns {
		fmt.Fprintf(buf, " %s |", cell(c))
	}
	buf.WriteString("\n|")
	for range columns {
		buf.WriteString(" --- |")
	}
	buf.WriteString("\n")
	for _, row := range rows {
		buf.WriteString("|")
		for _, c := range columns {
			fmt.Fprintf(buf, " %s |", cell(task.Display(row[c])))
		}
		buf.WriteString("\n")
	}
}

func cell(s string) string {
	return strings.ReplaceAll(task.OneLine(s), "|", `\|`)
}
