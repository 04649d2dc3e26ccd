package state

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zero-day-ai/adchecklist/auditerr"
)

const (
	idA = "t-aaaaaaaaaaaaaaaaaaaaaaaa"
	idB = "t-bbbbbbbbbbbbbbbbbbbbbbbb"
	idC = "t-cccccccccccccccccccccccc"
	idD = "t-dddddddddddddddddddddddd"
)

const document = `---
generator: adchecklist
format: 1
tags:
    - checklist
---

# Active Directory audit checklist

## Kerberos

- [x] Rotate password or remove SPN for svc_sql  query:: [[notes#kerberoastable-accounts|kerberoastable-accounts]]  severity:: high  entities:: [[ad/svc_sql|svc_sql]]  comments:: ticket SEC-12  done 2024-05-01 ^t-aaaaaaaaaaaaaaaaaaaaaaaa
- [ ] Rotate password or remove SPN for svc_web  query:: kerberoastable-accounts  comments:: - ^t-bbbbbbbbbbbbbbbbbbbbbbbb

Operator note without an id.
- [ ] hand-written task without id

## Stale findings

- [-] Old finding  query:: asrep-roastable  category:: Kerberos  stale:: true  comments:: - ^t-cccccccccccccccccccccccc
- [ ] Another  query:: owned-paths  category:: Paths  stale:: true  comments:: ^t-dddddddddddddddddddddddd
`

func TestParse(t *testing.T) {
	s, err := Parse(strings.NewReader(document))
	require.NoError(t, err)
	require.Equal(t, 4, s.Len())
	assert.Equal(t, 2, s.Completed())

	a, ok := s.Lookup(idA)
	require.True(t, ok)
	assert.Equal(t, Entry{
		ID:          idA,
		Mark:        'x',
		Title:       "Rotate password or remove SPN for svc_sql",
		Category:    "Kerberos",
		SourceQuery: "kerberoastable-accounts",
		Severity:    "high",
		Entities:    []string{"svc_sql"},
		Comment:     "ticket SEC-12  done 2024-05-01",
	}, a)
	assert.True(t, a.Completed())

	b, _ := s.Lookup(idB)
	assert.Empty(t, b.Severity)
	assert.Nil(t, b.Entities)
	assert.False(t, b.Completed())
	assert.Equal(t, "-", b.Comment)
	assert.Equal(t, "kerberoastable-accounts", b.SourceQuery)

	c, _ := s.Lookup(idC)
	assert.True(t, c.Stale)
	assert.True(t, c.Completed(), "any non-blank mark counts")
	assert.Equal(t, '-', c.Mark)
	assert.Equal(t, "Kerberos", c.Category)
	assert.Equal(t, "asrep-roastable", c.SourceQuery)

	d, _ := s.Lookup(idD)
	assert.Equal(t, "Paths", d.Category)
	assert.Equal(t, "-", d.Comment)

	ids := make([]string, 0, s.Len())
	for _, e := range s.Entries() {
		ids = append(ids, e.ID)
	}
	assert.Equal(t, []string{idA, idB, idC, idD}, ids)
}

func TestParseEmpty(t *testing.T) {
	for _, doc := range []string{"", "  \n\n"} {
		s, err := Parse(strings.NewReader(doc))
		require.NoError(t, err)
		assert.Zero(t, s.Len())
	}
}

func TestParseCRLF(t *testing.T) {
	s, err := Parse(strings.NewReader(strings.ReplaceAll(document, "\n", "\r\n")))
	require.NoError(t, err)
	assert.Equal(t, 4, s.Len())
}

func TestParseErrors(t *testing.T) {
	header := "---\ngenerator: adchecklist\nformat: 1\n---\n"
	tests := []struct {
		name string
		doc  string
		msg  string
	}{
		{"invalid utf-8", header + "- [ ] \xff\xfe  comments:: - ^" + idA + "\n", "UTF-8"},
		{"no front matter", "# My notes\n- [ ] x ^" + idA + "\n", "missing front matter"},
		{"unterminated front matter", "---\ngenerator: adchecklist\n", "unterminated"},
		{"foreign generator", "---\ngenerator: other\nformat: 1\n---\n", "not a generated checklist"},
		{"future format", "---\ngenerator: adchecklist\nformat: 2\n---\n", "unsupported checklist format 2"},
		{"duplicate id", header + "- [ ] a ^" + idA + "\n- [x] b ^" + idA + "\n", "duplicate task id"},
		{"malformed checkbox", header + "- [] a  comments:: - ^" + idA + "\n", "malformed task line"},
		{"malformed id", header + "- [ ] a  comments:: - ^t-xyz\n", "malformed task line"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.doc))
			require.Error(t, err)
			assert.ErrorIs(t, err, auditerr.ErrStateParse)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	s, err := Load(filepath.Join(dir, "missing.md"))
	require.NoError(t, err)
	assert.Zero(t, s.Len())

	path := filepath.Join(dir, "checklist.md")
	require.NoError(t, os.WriteFile(path, []byte(document), 0o644))
	s, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, 4, s.Len())

	require.NoError(t, os.WriteFile(path, []byte("no front matter ^"+idA+"\n"), 0o644))
	_, err = Load(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, auditerr.ErrStateParse)
	assert.Contains(t, err.Error(), "path="+path)
}

func TestNew(t *testing.T) {
	s := New(
		Entry{ID: idA, Mark: 'x'},
		Entry{ID: idB, Mark: ' '},
		Entry{ID: idA, Mark: ' '},
	)
	assert.Equal(t, 2, s.Len())
	a, _ := s.Lookup(idA)
	assert.False(t, a.Completed())

	var zero PriorState
	_, ok := zero.Lookup(idA)
	assert.False(t, ok)
	assert.Empty(t, zero.Entries())
	assert.Zero(t, Empty().Len())
}
