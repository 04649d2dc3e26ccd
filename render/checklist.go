// Package render serializes merged tasks and query results into Markdown
// documents for an Obsidian vault.
//
// The checklist is the document the next run reads back through the state
// package, so its rendering is deterministic: the same tasks always produce
// the same bytes, whatever order they arrive in.
package render

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/zero-day-ai/adchecklist/catalog"
	"github.com/zero-day-ai/adchecklist/state"
	"github.com/zero-day-ai/adchecklist/task"
)

// DefaultTitle is the checklist's top-level heading.
const DefaultTitle = "Active Directory audit checklist"

// Option configures a renderer.
type Option func(*options)

type options struct {
	title      string
	linkPrefix string
	notesLink  string
	maxRows    int
}

// WithTitle sets the document heading.
func WithTitle(title string) Option {
	return func(o *options) {
		if t := task.OneLine(title); t != "" {
			o.title = t
		}
	}
}

// WithLinkPrefix renders entities as wiki links to "<prefix><entity>".
// An empty prefix renders entities as plain text.
func WithLinkPrefix(prefix string) Option {
	return func(o *options) {
		o.linkPrefix = prefix
	}
}

// WithNotesLink links each task's query to its heading in the notes document
// with the given stem (file name without extension).
func WithNotesLink(stem string) Option {
	return func(o *options) {
		o.notesLink = stem
	}
}

// WithMaxRows bounds the result rows shown per query in the notes document.
// Zero or negative shows every row.
func WithMaxRows(n int) Option {
	return func(o *options) {
		o.maxRows = n
	}
}

func newOptions(opts []Option) options {
	o := options{title: DefaultTitle}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Checklist renders the checklist document.
type Checklist struct {
	catalog *catalog.Catalog
	opts    options
}

// NewChecklist creates a checklist renderer. The catalog fixes the order of
// categories and of tasks within a category; it may be nil.
func NewChecklist(c *catalog.Catalog, opts ...Option) *Checklist {
	return &Checklist{catalog: c, opts: newOptions(opts)}
}

// Render writes the document for tasks to w.
func (r *Checklist) Render(w io.Writer, tasks []task.Task) error {
	b, err := r.Bytes(tasks)
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

// Bytes returns the document for tasks.
func (r *Checklist) Bytes(tasks []task.Task) ([]byte, error) {
	var buf bytes.Buffer

	fm, err := yaml.Marshal(state.FrontMatter{
		Generator: state.Generator,
		Format:    state.FormatVersion,
		Tags:      []string{"checklist"},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal front matter: %w", err)
	}
	buf.WriteString("---\n")
	buf.Write(fm)
	buf.WriteString("---\n\n")
	fmt.Fprintf(&buf, "# %s\n", r.opts.title)

	var live, stale []task.Task
	byCategory := make(map[string][]task.Task)
	for _, t := range tasks {
		if t.Stale {
			stale = append(stale, t)
			continue
		}
		live = append(live, t)
		byCategory[t.Category] = append(byCategory[t.Category], t)
	}

	for _, category := range r.categories(live) {
		group := byCategory[category]
		sort.Slice(group, func(i, j int) bool {
			a, b := group[i], group[j]
			if oa, ob := r.order(a.SourceQuery), r.order(b.SourceQuery); oa != ob {
				return oa < ob
			}
			if a.Title != b.Title {
				return a.Title < b.Title
			}
			return a.ID < b.ID
		})

		fmt.Fprintf(&buf, "\n## %s\n\n", category)
		for _, t := range group {
			r.writeTask(&buf, t)
		}
	}

	if len(stale) > 0 {
		sort.Slice(stale, func(i, j int) bool {
			a, b := stale[i], stale[j]
			switch {
			case a.Category != b.Category:
				return a.Category < b.Category
			case a.SourceQuery != b.SourceQuery:
				return a.SourceQuery < b.SourceQuery
			case a.Title != b.Title:
				return a.Title < b.Title
			default:
				return a.ID < b.ID
			}
		})

		fmt.Fprintf(&buf, "\n## %s\n\n", state.StaleHeading)
		for _, t := range stale {
			r.writeTask(&buf, t)
		}
	}

	return buf.Bytes(), nil
}

// categories returns the categories of tasks: catalog categories first in
// catalog order, then any others sorted.
func (r *Checklist) categories(tasks []task.Task) []string {
	present := make(map[string]bool)
	for _, t := range tasks {
		present[t.Category] = true
	}

	var out []string
	if r.catalog != nil {
		for _, c := range r.catalog.Categories() {
			if present[c] {
				out = append(out, c)
				delete(present, c)
			}
		}
	}
	rest := make([]string, 0, len(present))
	for c := range present {
		rest = append(rest, c)
	}
	sort.Strings(rest)
	return append(out, rest...)
}

func (r *Checklist) order(query string) int {
	if r.catalog == nil {
		return 0
	}
	if i := r.catalog.Order(query); i >= 0 {
		return i
	}
	return math.MaxInt
}

func (r *Checklist) writeTask(buf *bytes.Buffer, t task.Task) {
	mark := t.Mark
	if mark == 0 {
		mark = task.MarkOpen
	}
	title := task.OneLine(t.Title)
	if title == "" {
		title = "(untitled)"
	}

	fmt.Fprintf(buf, "- [%c] %s", mark, title)
	field(buf, "query", r.queryRef(t.SourceQuery))
	if t.Severity != "" {
		field(buf, "severity", task.OneLine(t.Severity.String()))
	}
	if len(t.Entities) > 0 {
		field(buf, "entities", r.entityLinks(t.Entities))
	}
	if t.Stale {
		field(buf, "category", task.OneLine(t.Category))
		field(buf, "stale", "true")
	}
	// Comments keep their inner spacing; they are always the last field.
	fmt.Fprintf(buf, "  comments:: %s ^%s\n", commentText(t.Comment), t.ID)
}

func commentText(raw string) string {
	c := strings.NewReplacer("\r", " ", "\n", " ").Replace(raw)
	if c = strings.TrimSpace(c); c != "" {
		return c
	}
	return "-"
}

func field(buf *bytes.Buffer, key, value string) {
	if value == "" {
		return
	}
	fmt.Fprintf(buf, "  %s:: %s", key, value)
}

func (r *Checklist) queryRef(query string) string {
	if r.opts.notesLink == "" || !linkable(query) {
		return query
	}
	return fmt.Sprintf("[[%s#%s|%s]]", r.opts.notesLink, query, query)
}

func (r *Checklist) entityLinks(entities []string) string {
	parts := make([]string, 0, len(entities))
	for _, e := range entities {
		e = task.OneLine(e)
		if r.opts.linkPrefix == "" || !linkable(e) {
			parts = append(parts, e)
			continue
		}
		parts = append(parts, fmt.Sprintf("[[%s%s|%s]]", r.opts.linkPrefix, e, e))
	}
	return strings.Join(parts, ", ")
}

// linkable reports whether s can be a wiki link target.
func linkable(s string) bool {
	return s != "" && !strings.ContainsAny(s, "[]|#^")
}
