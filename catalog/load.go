package catalog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/zero-day-ai/adchecklist/auditerr"
)

// Source yields query definitions in order.
type Source interface {
	// Load returns the source's query definitions. Disabled placeholder
	// entries (no query text) are already filtered out.
	Load(ctx context.Context) ([]Query, error)
}

// Load reads every source in order and builds a validated catalog.
func Load(ctx context.Context, sources ...Source) (*Catalog, error) {
	var defs []Query
	for _, src := range sources {
		qs, err := src.Load(ctx)
		if err != nil {
			return nil, err
		}
		defs = append(defs, qs...)
	}
	return New(defs)
}

// FileSource loads definitions from a YAML or JSON file.
type FileSource struct {
	// Path is the catalog file path.
	Path string

	// Section labels every query loaded from this file unless the entry
	// names its own section.
	Section string
}

// Load implements Source.
func (s FileSource) Load(_ context.Context) ([]Query, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, auditerr.Catalog("catalog.FileSource", fmt.Errorf("read %s: %w", s.Path, err))
	}

	defs, err := Parse(data)
	if err != nil {
		return nil, auditerr.Catalog("catalog.FileSource", fmt.Errorf("parse %s: %w", s.Path, err))
	}

	for i := range defs {
		if defs[i].Section == "" {
			defs[i].Section = s.Section
		}
	}
	return defs, nil
}

// Parse decodes a catalog document. The document is either a list of
// definitions or a mapping with a "queries" list; JSON input is accepted
// since it is valid YAML. Non-mapping list items and entries without query
// text are skipped.
func Parse(data []byte) ([]Query, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc.Kind == 0 || len(doc.Content) == 0 {
		return nil, nil
	}

	root := doc.Content[0]
	var items *yaml.Node
	switch root.Kind {
	case yaml.SequenceNode:
		items = root
	case yaml.MappingNode:
		for i := 0; i+1 < len(root.Content); i += 2 {
			if root.Content[i].Value == "queries" {
				items = root.Content[i+1]
				break
			}
		}
		if items == nil || items.Kind != yaml.SequenceNode {
			return nil, errors.New(`unsupported catalog format: mapping without a "queries" list`)
		}
	default:
		return nil, errors.New("unsupported catalog format")
	}

	defs := make([]Query, 0, len(items.Content))
	for i, item := range items.Content {
		if item.Kind != yaml.MappingNode {
			continue
		}
		var q Query
		if err := item.Decode(&q); err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		if strings.TrimSpace(q.Cypher) == "" {
			continue
		}
		defs = append(defs, q)
	}
	return defs, nil
}
