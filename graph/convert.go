package graph

import (
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// TypeKey holds the relationship type in converted relationship maps.
const TypeKey = "_type"

// ConvertValue converts a driver value into the plain representation used in
// rows. Element ids are dropped: they are not stable across database imports.
func ConvertValue(v any) any {
	switch x := v.(type) {
	case nil, bool, int64, float64, string:
		return x
	case neo4j.Node:
		return convertProps(x.Props, 0)
	case neo4j.Relationship:
		m := convertProps(x.Props, 1)
		m[TypeKey] = x.Type
		return m
	case neo4j.Path:
		out := make([]any, 0, len(x.Nodes)+len(x.Relationships))
		for i, n := range x.Nodes {
			out = append(out, ConvertValue(n))
			if i < len(x.Relationships) {
				out = append(out, ConvertValue(x.Relationships[i]))
			}
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = ConvertValue(item)
		}
		return out
	case map[string]any:
		return convertProps(x, 0)
	case []byte:
		return fmt.Sprintf("%x", x)
	case time.Time:
		return x.Format(time.RFC3339Nano)
	case neo4j.Date:
		return x.Time().Format("2006-01-02")
	case fmt.Stringer:
		return x.String()
	default:
		return x
	}
}

func convertProps(props map[string]any, extra int) map[string]any {
	m := make(map[string]any, len(props)+extra)
	for k, v := range props {
		m[k] = ConvertValue(v)
	}
	return m
}
