package graph

import (
	"fmt"
	"regexp"
	"strings"
)

// writeClause matches Cypher clauses and procedures that modify the graph.
var writeClause = regexp.MustCompile(`(?i)\b(CREATE|MERGE|DELETE|DETACH|SET|REMOVE|DROP|FOREACH)\b|\bLOAD\s+CSV\b|\bCALL\s+apoc\.(create|merge|refactor|periodic|atomic|nodes\.delete|trigger)\b`)

// ReadOnlyError reports a query containing a mutating clause.
type ReadOnlyError struct {
	Clause string
}

func (e *ReadOnlyError) Error() string {
	return fmt.Sprintf("query is not read-only: contains %s", e.Clause)
}

// CheckReadOnly rejects queries containing graph mutations. String literals,
// quoted identifiers and comments are ignored.
func CheckReadOnly(cypher string) error {
	code := stripLiterals(cypher)
	if m := writeClause.FindString(code); m != "" {
		return &ReadOnlyError{Clause: strings.ToUpper(strings.Join(strings.Fields(m), " "))}
	}
	return nil
}

// stripLiterals blanks out string literals, backtick identifiers and comments.
func stripLiterals(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	runes := []rune(s)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case r == '\'' || r == '"' || r == '`':
			quote := r
			b.WriteRune(' ')
			for i++; i < len(runes); i++ {
				if runes[i] == '\\' && quote != '`' {
					i++
					continue
				}
				if runes[i] == quote {
					break
				}
			}
			b.WriteRune(' ')
		case r == '/' && i+1 < len(runes) && runes[i+1] == '/':
			for i < len(runes) && runes[i] != '\n' {
				i++
			}
			b.WriteRune('\n')
		case r == '/' && i+1 < len(runes) && runes[i+1] == '*':
			i += 2
			for i+1 < len(runes) && !(runes[i] == '*' && runes[i+1] == '/') {
				i++
			}
			i++
			b.WriteRune(' ')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
