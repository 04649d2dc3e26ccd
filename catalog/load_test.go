package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zero-day-ai/adchecklist/auditerr"
	"github.com/zero-day-ai/adchecklist/graph"
)

const listCatalog = `
- name: kerberoastable-accounts
  description: Users with an SPN set can be kerberoasted.
  query: MATCH (u:User {hasspn: true}) RETURN u.name AS account
  category: Kerberos
  severity: HIGH
  tags: kerberos, roasting
  template: "Rotate password or remove SPN for {{.account}}"
  identify: [account]
- name: disabled-placeholder
  query: ""
- just a string
- name: asrep-roastable
  query: MATCH (u:User {dontreqpreauth: true}) RETURN u.name AS account
  tags: [kerberos]
`

const mappingCatalog = `{
  "queries": [
    {"name": "owned-to-da", "query": "MATCH p=shortestPath((o {owned: true})-[*1..]->(g:Group)) RETURN o.name AS owned", "category": "Paths"}
  ]
}`

func TestParseList(t *testing.T) {
	defs, err := Parse([]byte(listCatalog))
	require.NoError(t, err)
	require.Len(t, defs, 2)

	assert.Equal(t, "kerberoastable-accounts", defs[0].Name)
	assert.Equal(t, "Users with an SPN set can be kerberoasted.", defs[0].Description)
	assert.Equal(t, Tags{"kerberos", "roasting"}, defs[0].Tags)
	assert.Equal(t, []string{"account"}, defs[0].Identify)
	assert.Equal(t, Severity("HIGH"), defs[0].Severity, "normalized by New, not Parse")

	assert.Equal(t, "asrep-roastable", defs[1].Name)
	assert.Equal(t, Tags{"kerberos"}, defs[1].Tags)
}

func TestParseMapping(t *testing.T) {
	defs, err := Parse([]byte(mappingCatalog))
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, "owned-to-da", defs[0].Name)
	assert.Equal(t, "Paths", defs[0].Category)
}

func TestParseUnsupported(t *testing.T) {
	_, err := Parse([]byte(`{"checks": []}`))
	assert.Error(t, err)

	_, err = Parse([]byte(`42`))
	assert.Error(t, err)

	defs, err := Parse(nil)
	require.NoError(t, err)
	assert.Empty(t, defs)
}

func TestNewNormalizes(t *testing.T) {
	defs, err := Parse([]byte(listCatalog))
	require.NoError(t, err)

	c, err := New(defs)
	require.NoError(t, err)
	assert.Equal(t, 2, c.Len())

	q, ok := c.Lookup("kerberoastable-accounts")
	require.True(t, ok)
	assert.Equal(t, SeverityHigh, q.Severity)
	assert.NotNil(t, q.TitleTemplate())
	assert.Nil(t, q.ExclusionRule())
	assert.Equal(t, 0, q.Index())
	assert.Equal(t, 1, c.Order("asrep-roastable"))
	assert.Equal(t, -1, c.Order("missing"))
	assert.Equal(t, []string{"Kerberos", DefaultCategory}, c.Categories())
}

func TestNewRejectsInvalidEntries(t *testing.T) {
	tests := []struct {
		name string
		def  Query
		msg  string
	}{
		{"missing name", Query{Cypher: "MATCH (n) RETURN n"}, "name is required"},
		{"missing query", Query{Name: "q", Cypher: "  "}, "query text is required"},
		{"write clause", Query{Name: "q", Cypher: "MATCH (n) SET n.owned = true RETURN n"}, "SET"},
		{"multi-line name", Query{Name: "kerberoastable\nusers", Cypher: "MATCH (n) RETURN n"}, "single line"},
		{"field separator in name", Query{Name: "query:: kerberoastable", Cypher: "MATCH (n) RETURN n"}, `"::"`},
		{"bad template", Query{Name: "q", Cypher: "MATCH (n) RETURN n", Template: "{{.n"}, "parse template"},
		{"bad rule", Query{Name: "q", Cypher: "MATCH (n) RETURN n", Exclude: "row.n +"}, "exclude rule"},
		{"non-bool rule", Query{Name: "q", Cypher: "MATCH (n) RETURN n", Exclude: `"x"`}, "must evaluate to bool"},
		{"empty identify", Query{Name: "q", Cypher: "MATCH (n) RETURN n", Identify: []string{"n", " "}}, "empty field name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New([]Query{tt.def})
			require.Error(t, err)
			assert.ErrorIs(t, err, auditerr.ErrCatalog)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestNewNormalizesNames(t *testing.T) {
	c, err := New([]Query{{Name: "  Kerberoastable \t users ", Cypher: "MATCH (u) RETURN u"}})
	require.NoError(t, err)

	q, ok := c.Lookup("Kerberoastable users")
	require.True(t, ok)
	assert.Equal(t, "Kerberoastable users", q.Name)

	_, err = New([]Query{
		{Name: "Kerberoastable users", Cypher: "MATCH (u) RETURN u"},
		{Name: "Kerberoastable  users", Cypher: "MATCH (v) RETURN v"},
	})
	assert.ErrorIs(t, err, auditerr.ErrCatalog)
}

func TestNewTreatsUnknownSeverityAsUnrated(t *testing.T) {
	c, err := New([]Query{
		{Name: "a", Cypher: "MATCH (n) RETURN n", Severity: "urgent"},
		{Name: "b", Cypher: "MATCH (n) RETURN n", Severity: " High "},
	})
	require.NoError(t, err)

	a, _ := c.Lookup("a")
	assert.Equal(t, Severity(""), a.Severity)
	b, _ := c.Lookup("b")
	assert.Equal(t, SeverityHigh, b.Severity)

	require.Len(t, c.Warnings(), 1)
	assert.Contains(t, c.Warnings()[0], `query "a"`)
	assert.Contains(t, c.Warnings()[0], "urgent")
}

func TestNewRejectsDuplicateNames(t *testing.T) {
	_, err := New([]Query{
		{Name: "kerberoastable-accounts", Cypher: "MATCH (u) RETURN u"},
		{Name: " kerberoastable-accounts ", Cypher: "MATCH (v) RETURN v"},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, auditerr.ErrCatalog)
	assert.Contains(t, err.Error(), "duplicate query name")
}

func TestNewReportsAllProblems(t *testing.T) {
	_, err := New([]Query{
		{Name: "a"},
		{Name: "b", Cypher: "CREATE (n) RETURN n"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "query text is required")

	var ro *graph.ReadOnlyError
	assert.ErrorAs(t, err, &ro)
}

func TestEffectiveCategory(t *testing.T) {
	assert.Equal(t, "Kerberos", (&Query{Category: " Kerberos ", Section: "General checks"}).EffectiveCategory())
	assert.Equal(t, "General checks", (&Query{Section: "General checks"}).EffectiveCategory())
	assert.Equal(t, DefaultCategory, (&Query{}).EffectiveCategory())
}

func TestIdentifyingFields(t *testing.T) {
	q := &Query{Identify: []string{"b", "a"}}
	assert.Equal(t, []string{"a", "b"}, q.IdentifyingFields([]string{"x"}))

	q = &Query{}
	assert.Equal(t, []string{"a", "c"}, q.IdentifyingFields([]string{"c", "a"}))
}

func TestLoadFileSources(t *testing.T) {
	dir := t.TempDir()
	general := filepath.Join(dir, "queries.yaml")
	owned := filepath.Join(dir, "owned.json")
	require.NoError(t, os.WriteFile(general, []byte(listCatalog), 0o644))
	require.NoError(t, os.WriteFile(owned, []byte(mappingCatalog), 0o644))

	c, err := Load(context.Background(),
		FileSource{Path: general, Section: "General checks"},
		FileSource{Path: owned, Section: "Owned checks"},
	)
	require.NoError(t, err)

	names := make([]string, 0, c.Len())
	for _, q := range c.Queries() {
		names = append(names, q.Name)
	}
	assert.Equal(t, []string{"kerberoastable-accounts", "asrep-roastable", "owned-to-da"}, names)
	assert.Equal(t, []string{"General checks", "Owned checks"}, c.Sections())
	assert.Equal(t, []string{"Kerberos", "General checks", "Paths"}, c.Categories())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(context.Background(), FileSource{Path: filepath.Join(t.TempDir(), "nope.yaml")})
	require.Error(t, err)
	assert.ErrorIs(t, err, auditerr.ErrCatalog)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
