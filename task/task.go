// Package task converts query result rows into checklist tasks.
//
// Synthesis is a pure transformation: one row of one catalog query yields
// exactly one Task whose ID is derived from the query name and the row's
// identifying fields, and whose title is rendered from the query's template.
// Rows the query's exclusion rule matches are skipped.
package task

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/zero-day-ai/adchecklist/auditerr"
	"github.com/zero-day-ai/adchecklist/catalog"
	"github.com/zero-day-ai/adchecklist/graph"
	"github.com/zero-day-ai/adchecklist/identity"
)

const (
	// MarkOpen is the checkbox mark of an open task.
	MarkOpen = ' '

	// MarkDone is the checkbox mark written for completed tasks.
	MarkDone = 'x'
)

// ErrExcluded is returned for rows matched by the query's exclusion rule.
var ErrExcluded = errors.New("row excluded by rule")

// Task is one checklist item.
type Task struct {
	// ID is the stable identity derived from SourceQuery and Identifying.
	ID string

	Category    string
	Title       string
	SourceQuery string

	// Identifying holds the identifying field values the ID was derived from.
	Identifying map[string]any

	// Entities are display names of the identifying values, used for links.
	Entities []string

	Severity catalog.Severity

	// Mark is the checkbox character. Any mark other than MarkOpen counts as
	// completed; operator marks such as '-' are preserved as written.
	Mark rune

	// Comment is the operator-edited comment, "-" when empty.
	Comment string

	// Stale flags an uncompleted task whose finding no longer appears.
	Stale bool
}

// Completed reports whether the operator marked the task.
func (t Task) Completed() bool {
	return t.Mark != MarkOpen && t.Mark != 0
}

// Synthesize converts row into a task of q.
//
// Errors: ErrExcluded for excluded rows, a KindIdentity error when an
// identifying field is missing, a KindTemplate error when the title template
// references a field the row lacks or the exclusion rule cannot be evaluated.
func Synthesize(q *catalog.Query, row graph.Row) (Task, error) {
	if rule := q.ExclusionRule(); rule != nil {
		excluded, err := rule.Match(row)
		if err != nil {
			return Task{}, auditerr.Template(q.Name, err)
		}
		if excluded {
			return Task{}, ErrExcluded
		}
	}

	names := q.IdentifyingFields(row.Columns())
	fields := make(map[string]any, len(names))
	for _, name := range names {
		v, ok := row[name]
		if !ok {
			return Task{}, auditerr.Identity(q.Name, fmt.Errorf("row lacks identifying field %q", name))
		}
		fields[name] = v
	}

	id, err := identity.Generate(q.Name, fields)
	if err != nil {
		return Task{}, auditerr.Identity(q.Name, err)
	}

	entities := make([]string, 0, len(names))
	for _, name := range names {
		entities = append(entities, displayAll(fields[name])...)
	}

	title, err := RenderTitle(q, row, entities)
	if err != nil {
		return Task{}, err
	}

	return Task{
		ID:          id,
		Category:    q.EffectiveCategory(),
		Title:       title,
		SourceQuery: q.Name,
		Identifying: fields,
		Entities:    entities,
		Severity:    q.Severity,
		Mark:        MarkOpen,
		Comment:     "-",
	}, nil
}

// RenderTitle fills the query's title template with row values. Without a
// template the title is "<query>: <entities>". The result is a single line.
func RenderTitle(q *catalog.Query, row graph.Row, entities []string) (string, error) {
	tmpl := q.TitleTemplate()
	if tmpl == nil {
		if len(entities) == 0 {
			return OneLine(q.Name), nil
		}
		return OneLine(q.Name + ": " + strings.Join(entities, ", ")), nil
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, map[string]any(row)); err != nil {
		return "", auditerr.Template(q.Name, err)
	}
	title := OneLine(buf.String())
	if title == "" {
		return "", auditerr.Template(q.Name, errors.New("template rendered an empty title"))
	}
	return title, nil
}

// Display returns the human-readable form of a row value: entity maps show
// their name (or objectid), other values their default format.
func Display(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return OneLine(x)
	case map[string]any:
		for _, key := range []string{"name", "objectid"} {
			if s, ok := x[key]; ok && s != nil {
				return OneLine(fmt.Sprint(s))
			}
		}
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + "=" + Display(x[k])
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case []any:
		return strings.Join(displayAll(x), ", ")
	default:
		return OneLine(fmt.Sprint(x))
	}
}

func displayAll(v any) []string {
	items, ok := v.([]any)
	if !ok {
		if s := Display(v); s != "" {
			return []string{s}
		}
		return nil
	}
	var out []string
	for _, item := range items {
		out = append(out, displayAll(item)...)
	}
	return out
}

// OneLine collapses all whitespace runs, including newlines, to single spaces.
func OneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
