package task

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zero-day-ai/adchecklist/auditerr"
	"github.com/zero-day-ai/adchecklist/catalog"
	"github.com/zero-day-ai/adchecklist/graph"
	"github.com/zero-day-ai/adchecklist/identity"
)

func lookup(t *testing.T, def catalog.Query) *catalog.Query {
	t.Helper()
	c, err := catalog.New([]catalog.Query{def})
	require.NoError(t, err)
	q, ok := c.Lookup(def.Name)
	require.True(t, ok)
	return q
}

func kerberoastable(t *testing.T) *catalog.Query {
	return lookup(t, catalog.Query{
		Name:     "kerberoastable-accounts",
		Category: "Kerberos",
		Severity: "High",
		Cypher:   "MATCH (u:User {hasspn: true}) RETURN u.name AS account, u.pwdlastset AS pwdlastset",
		Template: "Rotate password or remove SPN for {{.account}}",
		Identify: []string{"account"},
	})
}

func TestSynthesize(t *testing.T) {
	q := kerberoastable(t)

	got, err := Synthesize(q, graph.Row{"account": "svc_sql", "pwdlastset": int64(1600000000)})
	require.NoError(t, err)

	wantID, err := identity.Generate("kerberoastable-accounts", map[string]any{"account": "svc_sql"})
	require.NoError(t, err)

	assert.Equal(t, wantID, got.ID)
	assert.Equal(t, "Kerberos", got.Category)
	assert.Equal(t, "Rotate password or remove SPN for svc_sql", got.Title)
	assert.Equal(t, "kerberoastable-accounts", got.SourceQuery)
	assert.Equal(t, map[string]any{"account": "svc_sql"}, got.Identifying)
	assert.Equal(t, []string{"svc_sql"}, got.Entities)
	assert.Equal(t, catalog.SeverityHigh, got.Severity)
	assert.False(t, got.Completed())
	assert.False(t, got.Stale)
}

func TestSynthesizeIdentityIgnoresDisplayFields(t *testing.T) {
	q := kerberoastable(t)

	a, err := Synthesize(q, graph.Row{"account": "svc_sql", "pwdlastset": int64(1)})
	require.NoError(t, err)
	b, err := Synthesize(q, graph.Row{"account": "SVC_SQL", "pwdlastset": int64(2)})
	require.NoError(t, err)

	assert.Equal(t, a.ID, b.ID)
}

func TestSynthesizeMissingTemplateField(t *testing.T) {
	q := lookup(t, catalog.Query{
		Name:     "q",
		Cypher:   "MATCH (u:User) RETURN u.name AS account",
		Template: "Fix {{.account}} on {{.computer}}",
		Identify: []string{"account"},
	})

	_, err := Synthesize(q, graph.Row{"account": "svc_sql"})
	require.Error(t, err)
	assert.ErrorIs(t, err, auditerr.ErrTemplate)
	assert.Equal(t, auditerr.KindTemplate, auditerr.KindOf(err))
}

func TestSynthesizeMissingIdentifyingField(t *testing.T) {
	q := kerberoastable(t)

	_, err := Synthesize(q, graph.Row{"user": "svc_sql"})
	assert.ErrorIs(t, err, auditerr.ErrIdentity)
}

func TestSynthesizeDefaultTitle(t *testing.T) {
	q := lookup(t, catalog.Query{
		Name:   "sessions-on-dcs",
		Cypher: "MATCH (c:Computer)-[:HasSession]->(u:User) RETURN c, u",
	})

	got, err := Synthesize(q, graph.Row{
		"c": map[string]any{"name": "DC01.CORP.LOCAL", "objectid": "S-1-5-21-1-1000"},
		"u": map[string]any{"name": "ADMIN@CORP.LOCAL"},
	})
	require.NoError(t, err)

	assert.Equal(t, "sessions-on-dcs: DC01.CORP.LOCAL, ADMIN@CORP.LOCAL", got.Title)
	assert.Equal(t, []string{"DC01.CORP.LOCAL", "ADMIN@CORP.LOCAL"}, got.Entities)
	assert.Equal(t, catalog.DefaultCategory, got.Category)
}

func TestSynthesizeTemplateOnNodeProperties(t *testing.T) {
	q := lookup(t, catalog.Query{
		Name:     "unconstrained",
		Cypher:   "MATCH (c:Computer {unconstraineddelegation: true}) RETURN c",
		Template: "Disable unconstrained delegation on {{.c.name}}\n(os: {{.c.operatingsystem}})",
	})

	got, err := Synthesize(q, graph.Row{"c": map[string]any{"name": "SRV01", "operatingsystem": "Windows Server 2012"}})
	require.NoError(t, err)
	assert.Equal(t, "Disable unconstrained delegation on SRV01 (os: Windows Server 2012)", got.Title)
}

func TestSynthesizeExclusion(t *testing.T) {
	q := lookup(t, catalog.Query{
		Name:     "kerberoastable-accounts",
		Cypher:   "MATCH (u:User {hasspn: true}) RETURN u.name AS account",
		Identify: []string{"account"},
		Exclude:  `row.account.startsWith("krbtgt")`,
	})

	_, err := Synthesize(q, graph.Row{"account": "krbtgt"})
	assert.True(t, errors.Is(err, ErrExcluded))

	_, err = Synthesize(q, graph.Row{"account": "svc_sql"})
	assert.NoError(t, err)
}

func TestSynthesizeExclusionEvaluationError(t *testing.T) {
	q := lookup(t, catalog.Query{
		Name:    "q",
		Cypher:  "MATCH (u:User) RETURN u.name AS account",
		Exclude: `row.missing == "x"`,
	})

	_, err := Synthesize(q, graph.Row{"account": "svc_sql"})
	assert.ErrorIs(t, err, auditerr.ErrTemplate)
}

func TestBatch(t *testing.T) {
	q := kerberoastable(t)
	b := NewBatch(q)

	b.Add(graph.Row{"account": "svc_sql", "pwdlastset": int64(1)})
	b.Add(graph.Row{"account": "svc_web", "pwdlastset": int64(1)})
	b.Add(graph.Row{"account": "SVC_SQL", "pwdlastset": int64(2)})
	b.Add(graph.Row{"user": "nobody"})

	assert.Equal(t, 4, b.Rows)
	require.Len(t, b.Tasks, 2)
	assert.Equal(t, "Rotate password or remove SPN for svc_sql", b.Tasks[0].Title)
	assert.Equal(t, "Rotate password or remove SPN for svc_web", b.Tasks[1].Title)
	require.Len(t, b.Errors, 2)
	for _, err := range b.Errors {
		assert.ErrorIs(t, err, auditerr.ErrIdentity)
	}
}

func TestDisplay(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{nil, ""},
		{"  a \n b ", "a b"},
		{int64(5), "5"},
		{map[string]any{"objectid": "S-1"}, "S-1"},
		{map[string]any{"name": "N", "objectid": "S-1"}, "N"},
		{map[string]any{"b": 1, "a": "x"}, "{a=x, b=1}"},
		{[]any{"a", map[string]any{"name": "b"}}, "a, b"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Display(tt.in))
	}
}

func TestCompleted(t *testing.T) {
	assert.False(t, Task{Mark: MarkOpen}.Completed())
	assert.False(t, Task{}.Completed())
	assert.True(t, Task{Mark: 'x'}.Completed())
	assert.True(t, Task{Mark: 'X'}.Completed())
	assert.True(t, Task{Mark: '-'}.Completed())
}
