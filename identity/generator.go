// Package identity derives stable task identities from query results.
//
// A task id is content-addressed: it is computed from the query name and the
// canonical form of the row's identifying fields, never from row position.
// The same finding therefore keeps its id across runs, and the checklist can
// carry completion marks forward by id alone.
//
// # ID Format
//
//	t-{hex(sha256(canonical)[:12])}
//
// e.g. t-5f0c1e7a9b3d2c4e6f8a0b1c. The alphabet (lowercase letters, digits and
// dashes) makes the id usable as an Obsidian block reference.
//
// # Canonical Representation
//
//	"<query>":field1="<value1>"|field2="<value2>"
//
// Fields are sorted by name. Strings are trimmed, inner whitespace collapsed
// and lowercased, since directory names are case-insensitive. Graph entities
// (property maps) are reduced to their objectid, or their name when no
// objectid is present. Lists are treated as sets and sorted.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Prefix starts every task id.
const Prefix = "t-"

var idPattern = regexp.MustCompile(`^t-[0-9a-f]{24}$`)

// Valid reports whether id has the task id format.
func Valid(id string) bool {
	return idPattern.MatchString(id)
}

// Generate returns the deterministic id for a finding of query identified by
// fields. fields must contain exactly the identifying fields.
//
// Example:
//
//	id, err := identity.Generate("kerberoastable-accounts", map[string]any{"account": "svc_sql"})
func Generate(query string, fields map[string]any) (string, error) {
	canonical, err := Canonical(query, fields)
	if err != nil {
		return "", err
	}
	hash := sha256.Sum256([]byte(canonical))
	return Prefix + hex.EncodeToString(hash[:12]), nil
}

// Canonical builds the canonical string hashed by Generate.
func Canonical(query string, fields map[string]any) (string, error) {
	names := make([]string, 0, len(fields))
	for k := range fields {
		names = append(names, k)
	}
	sort.Strings(names)

	pairs := make([]string, 0, len(names))
	for _, name := range names {
		normalized, err := normalizeValue(fields[name])
		if err != nil {
			return "", fmt.Errorf("failed to normalize field %q with value %v: %w", name, fields[name], err)
		}
		pairs = append(pairs, fmt.Sprintf("%s=%s", name, strconv.Quote(normalized)))
	}

	return fmt.Sprintf("%s:%s", strconv.Quote(strings.TrimSpace(query)), strings.Join(pairs, "|")), nil
}

// normalizeValue converts a field value to its canonical string.
// Normalization rules:
//   - string: whitespace collapsed, lowercased
//   - integers: "%d"; floats: "%.6f"; bool: "true"/"false"; nil: "null"
//   - map with objectid or name: that value, normalized
//   - other maps: sorted key=value pairs in braces
//   - lists: normalized items sorted, in brackets
//   - anything else: JSON
func normalizeValue(val any) (string, error) {
	if val == nil {
		return "null", nil
	}

	switch v := val.(type) {
	case string:
		return strings.ToLower(strings.Join(strings.Fields(v), " ")), nil

	case int:
		return fmt.Sprintf("%d", v), nil
	case int8:
		return fmt.Sprintf("%d", v), nil
	case int16:
		return fmt.Sprintf("%d", v), nil
	case int32:
		return fmt.Sprintf("%d", v), nil
	case int64:
		return fmt.Sprintf("%d", v), nil
	case uint:
		return fmt.Sprintf("%d", v), nil
	case uint8:
		return fmt.Sprintf("%d", v), nil
	case uint16:
		return fmt.Sprintf("%d", v), nil
	case uint32:
		return fmt.Sprintf("%d", v), nil
	case uint64:
		return fmt.Sprintf("%d", v), nil

	case float32:
		return fmt.Sprintf("%.6f", v), nil
	case float64:
		return fmt.Sprintf("%.6f", v), nil

	case bool:
		if v {
			return "true", nil
		}
		return "false", nil

	case map[string]any:
		if key, ok := EntityKey(v); ok {
			return normalizeValue(key)
		}
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			n, err := normalizeValue(v[k])
			if err != nil {
				return "", err
			}
			parts = append(parts, k+"="+strconv.Quote(n))
		}
		return "{" + strings.Join(parts, ",") + "}", nil

	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			n, err := normalizeValue(item)
			if err != nil {
				return "", err
			}
			parts = append(parts, strconv.Quote(n))
		}
		sort.Strings(parts)
		return "[" + strings.Join(parts, ",") + "]", nil

	case []string:
		items := make([]any, len(v))
		for i, s := range v {
			items[i] = s
		}
		return normalizeValue(items)

	default:
		jsonBytes, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("failed to marshal complex value to JSON: %w", err)
		}
		return string(jsonBytes), nil
	}
}

// EntityKey returns the identifying property of a graph entity map: its
// objectid, else its name.
func EntityKey(entity map[string]any) (any, bool) {
	for _, key := range []string{"objectid", "name"} {
		if v, ok := entity[key]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}
