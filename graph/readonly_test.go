package graph

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckReadOnly(t *testing.T) {
	tests := []struct {
		name    string
		cypher  string
		wantErr string
	}{
		{
			name:   "plain match",
			cypher: "MATCH (u:User {hasspn: true}) RETURN u.name AS account",
		},
		{
			name:   "keyword inside string literal",
			cypher: "MATCH (g:Group) WHERE g.name = 'CREATE OWNER SET' RETURN g",
		},
		{
			name:   "keyword inside double quoted literal with escape",
			cypher: `MATCH (n) WHERE n.description CONTAINS "say \"DELETE\" now" RETURN n`,
		},
		{
			name:   "keyword inside backtick identifier",
			cypher: "MATCH (n) RETURN n.`set` AS s",
		},
		{
			name:   "keyword inside comments",
			cypher: "// CREATE nothing\nMATCH (n) /* MERGE */ RETURN n",
		},
		{
			name:   "property names containing keywords",
			cypher: "MATCH (c:Computer) WHERE c.offset > 0 AND c.created > 0 RETURN c",
		},
		{
			name:    "create",
			cypher:  "CREATE (n:User {name: 'x'})",
			wantErr: "CREATE",
		},
		{
			name:    "lowercase set",
			cypher:  "MATCH (u:User) set u.owned = true",
			wantErr: "SET",
		},
		{
			name:    "detach delete",
			cypher:  "MATCH (n) DETACH DELETE n",
			wantErr: "DETACH",
		},
		{
			name:    "load csv",
			cypher:  "LOAD  CSV FROM 'file:///x' AS line RETURN line",
			wantErr: "LOAD CSV",
		},
		{
			name:    "apoc write procedure",
			cypher:  "CALL apoc.create.node(['X'], {}) YIELD node RETURN node",
			wantErr: "CALL APOC.CREATE",
		},
		{
			name:   "apoc read procedure",
			cypher: "CALL apoc.meta.stats() YIELD labels RETURN labels",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckReadOnly(tt.cypher)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			var roErr *ReadOnlyError
			require.True(t, errors.As(err, &roErr))
			assert.Equal(t, tt.wantErr, roErr.Clause)
		})
	}
}
