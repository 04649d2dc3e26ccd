package catalog

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"

	"github.com/zero-day-ai/adchecklist/auditerr"
	"github.com/zero-day-ai/adchecklist/graph"
)

// DefaultCategory is used for queries that name neither a category nor a section.
const DefaultCategory = "General"

// Query is a single named query definition.
type Query struct {
	// ID is an optional external identifier carried over from custom-query exports.
	ID string `yaml:"id,omitempty"`

	// Name uniquely identifies the query across the whole catalog. It is part
	// of every task identity derived from the query's rows.
	Name string `yaml:"name"`

	// Description explains the check to the operator.
	Description string `yaml:"description,omitempty"`

	// Cypher is the read-only query text.
	Cypher string `yaml:"query"`

	// Params are bound as Cypher parameters.
	Params map[string]any `yaml:"params,omitempty"`

	// Category is the checklist section findings are filed under.
	Category string `yaml:"category,omitempty"`

	// Section groups queries by the source they were loaded from
	// (e.g., "General checks", "Owned checks").
	Section string `yaml:"section,omitempty"`

	Severity Severity `yaml:"severity,omitempty"`
	Tags     Tags     `yaml:"tags,omitempty"`

	// Template renders a task title from a row, e.g. "Rotate {{.account}}".
	Template string `yaml:"template,omitempty"`

	// Identify lists the row fields that identify a finding. Empty means
	// every column of the row.
	Identify []string `yaml:"identify,omitempty"`

	// Exclude is an optional CEL expression; rows it matches are skipped.
	Exclude string `yaml:"exclude,omitempty"`

	index   int
	title   *template.Template
	exclude *Rule
}

// Index returns the query's position in its catalog.
func (q *Query) Index() int {
	return q.index
}

// TitleTemplate returns the compiled title template, or nil when the query
// uses the default title.
func (q *Query) TitleTemplate() *template.Template {
	return q.title
}

// ExclusionRule returns the compiled exclusion rule, or nil.
func (q *Query) ExclusionRule() *Rule {
	return q.exclude
}

// EffectiveCategory returns the category, falling back to the section and
// then to DefaultCategory.
func (q *Query) EffectiveCategory() string {
	if c := oneLine(q.Category); c != "" {
		return c
	}
	if s := oneLine(q.Section); s != "" {
		return s
	}
	return DefaultCategory
}

// IdentifyingFields returns the declared identifying fields for a row with
// the given columns: the declared list when present, otherwise all columns.
// The result is sorted.
func (q *Query) IdentifyingFields(columns []string) []string {
	src := q.Identify
	if len(src) == 0 {
		src = columns
	}
	out := make([]string, len(src))
	copy(out, src)
	sort.Strings(out)
	return out
}

// Tags accepts either a YAML list or a comma-separated string.
type Tags []string

// UnmarshalYAML implements yaml.Unmarshaler.
func (t *Tags) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var out Tags
		for _, part := range strings.Split(value.Value, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
		*t = out
		return nil
	case yaml.SequenceNode:
		var out []string
		if err := value.Decode(&out); err != nil {
			return err
		}
		*t = out
		return nil
	default:
		*t = nil
		return nil
	}
}

// TemplateFuncs are available to every title template.
var TemplateFuncs = template.FuncMap{
	"lower": strings.ToLower,
	"upper": strings.ToUpper,
	"join":  join,
}

func join(v any, sep string) string {
	switch items := v.(type) {
	case []string:
		return strings.Join(items, sep)
	case []any:
		parts := make([]string, len(items))
		for i, item := range items {
			parts[i] = fmt.Sprint(item)
		}
		return strings.Join(parts, sep)
	default:
		return fmt.Sprint(v)
	}
}

// Catalog is a validated, ordered set of queries. It is immutable once built.
type Catalog struct {
	queries  []*Query
	byName   map[string]*Query
	warnings []string
}

// New validates the given definitions and builds a catalog preserving their
// order. All problems are reported together in one KindCatalog error.
func New(defs []Query) (*Catalog, error) {
	c := &Catalog{
		queries: make([]*Query, 0, len(defs)),
		byName:  make(map[string]*Query, len(defs)),
	}

	var errs []error
	for i := range defs {
		q := defs[i]
		q.index = len(c.queries)

		warn, err := compile(&q)
		if err != nil {
			errs = append(errs, fmt.Errorf("entry %d (%q): %w", i, q.Name, err))
			continue
		}
		if warn != "" {
			c.warnings = append(c.warnings, fmt.Sprintf("query %q: %s", q.Name, warn))
		}
		if _, dup := c.byName[q.Name]; dup {
			errs = append(errs, fmt.Errorf("entry %d: duplicate query name %q", i, q.Name))
			continue
		}

		c.queries = append(c.queries, &q)
		c.byName[q.Name] = &q
	}

	if len(errs) > 0 {
		return nil, auditerr.Catalog("catalog.New", errors.Join(errs...))
	}
	return c, nil
}

// compile validates q and prepares its template and rule. The name is
// reduced to a single line since it is written into every task line. A
// non-empty warning reports a problem that was corrected.
func compile(q *Query) (warning string, err error) {
	if strings.ContainsAny(q.Name, "\r\n") {
		return "", errors.New("name must be a single line")
	}
	if strings.Contains(q.Name, "::") {
		return "", errors.New(`name must not contain "::"`)
	}
	q.Name = oneLine(q.Name)
	if q.Name == "" {
		return "", errors.New("name is required")
	}
	if strings.TrimSpace(q.Cypher) == "" {
		return "", errors.New("query text is required")
	}
	if err := graph.CheckReadOnly(q.Cypher); err != nil {
		return "", err
	}

	severity, err := ParseSeverity(string(q.Severity))
	if err != nil {
		warning = fmt.Sprintf("%v, treated as unrated", err)
		severity = ""
	}
	q.Severity = severity

	for _, f := range q.Identify {
		if strings.TrimSpace(f) == "" {
			return "", errors.New("identify contains an empty field name")
		}
	}

	if strings.TrimSpace(q.Template) != "" {
		tmpl, err := template.New(q.Name).
			Option("missingkey=error").
			Funcs(TemplateFuncs).
			Parse(q.Template)
		if err != nil {
			return "", fmt.Errorf("parse template: %w", err)
		}
		q.title = tmpl
	}

	if strings.TrimSpace(q.Exclude) != "" {
		rule, err := CompileRule(q.Exclude)
		if err != nil {
			return "", fmt.Errorf("exclude rule: %w", err)
		}
		q.exclude = rule
	}
	return warning, nil
}

// Warnings returns the problems corrected while building the catalog, such
// as unknown severities.
func (c *Catalog) Warnings() []string {
	return append([]string(nil), c.warnings...)
}

// Queries returns the queries in catalog order.
func (c *Catalog) Queries() []*Query {
	out := make([]*Query, len(c.queries))
	copy(out, c.queries)
	return out
}

// Len returns the number of queries.
func (c *Catalog) Len() int {
	return len(c.queries)
}

// Lookup returns the query with the given name.
func (c *Catalog) Lookup(name string) (*Query, bool) {
	q, ok := c.byName[name]
	return q, ok
}

// Order returns the catalog position of the named query, or -1.
func (c *Catalog) Order(name string) int {
	if q, ok := c.byName[name]; ok {
		return q.index
	}
	return -1
}

// Categories returns every effective category in order of first appearance.
func (c *Catalog) Categories() []string {
	seen := make(map[string]bool)
	var out []string
	for _, q := range c.queries {
		cat := q.EffectiveCategory()
		if !seen[cat] {
			seen[cat] = true
			out = append(out, cat)
		}
	}
	return out
}

// Sections returns every section in order of first appearance.
func (c *Catalog) Sections() []string {
	seen := make(map[string]bool)
	var out []string
	for _, q := range c.queries {
		if !seen[q.Section] {
			seen[q.Section] = true
			out = append(out, q.Section)
		}
	}
	return out
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
