// Package auditerr provides the structured error taxonomy used across the
// checklist pipeline.
//
// Every failure the pipeline reports carries a Kind that decides how it is
// handled: catalog and state-parse errors are fatal and stop a run before any
// output is written, query-execution errors are collected per query and are
// fatal only under a fail-fast policy, and template or identity errors skip a
// single row. Errors integrate with errors.Is and errors.As through the
// sentinel values below.
package auditerr

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Error kinds categorize errors by the pipeline stage that produced them.
const (
	// KindCatalog represents malformed or duplicate query definitions.
	KindCatalog = "catalog"

	// KindQueryExecution represents a query that failed against the graph store.
	KindQueryExecution = "query_execution"

	// KindTemplate represents a title template referencing a field the row lacks.
	KindTemplate = "template"

	// KindIdentity represents a row whose identity could not be derived or
	// collided with another task.
	KindIdentity = "identity"

	// KindStateParse represents an unreadable or foreign checklist document.
	KindStateParse = "state_parse"

	// KindConfiguration represents invalid or incomplete configuration.
	KindConfiguration = "configuration"

	// KindOutput represents failures writing rendered documents.
	KindOutput = "output"
)

// Sentinel errors, one per kind. An *Error matches the sentinel of its kind
// under errors.Is.
var (
	ErrCatalog        = errors.New("invalid query catalog")
	ErrQueryExecution = errors.New("query execution failed")
	ErrTemplate       = errors.New("template rendering failed")
	ErrIdentity       = errors.New("task identity derivation failed")
	ErrStateParse     = errors.New("checklist state unreadable")
	ErrConfiguration  = errors.New("invalid configuration")
	ErrOutput         = errors.New("output write failed")
)

var sentinels = map[string]error{
	KindCatalog:        ErrCatalog,
	KindQueryExecution: ErrQueryExecution,
	KindTemplate:       ErrTemplate,
	KindIdentity:       ErrIdentity,
	KindStateParse:     ErrStateParse,
	KindConfiguration:  ErrConfiguration,
	KindOutput:         ErrOutput,
}

// Error is a structured error carrying the failing operation, the error kind
// and, when relevant, the catalog query it belongs to.
//
// Example usage:
//
//	err := auditerr.QueryExecution("kerberoastable-accounts", cause)
//	if errors.Is(err, auditerr.ErrQueryExecution) {
//		// decide whether to continue with the remaining queries
//	}
type Error struct {
	// Op is the operation that failed (e.g., "catalog.Load", "state.Parse").
	Op string

	// Kind categorizes the error (e.g., KindTemplate).
	Kind string

	// Query is the catalog query name the error belongs to, if any.
	Query string

	// Err is the underlying cause.
	Err error

	// Context carries debugging details such as file paths or line numbers.
	Context map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	b.WriteString(" (")
	b.WriteString(e.Kind)
	b.WriteString(")")
	if e.Query != "" {
		fmt.Fprintf(&b, " query %q", e.Query)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString(" [")
		for i, k := range keys {
			if i > 0 {
				b.WriteString(" ")
			}
			fmt.Fprintf(&b, "%s=%v", k, e.Context[k])
		}
		b.WriteString("]")
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel of the error's kind, another *Error with the same
// kind (and query, when the target names one), or anything in the cause chain.
func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}
	if s, ok := sentinels[e.Kind]; ok && s == target {
		return true
	}
	if t, ok := target.(*Error); ok && t.Kind != "" && t.Kind == e.Kind {
		if t.Query == "" || t.Query == e.Query {
			return true
		}
	}
	return errors.Is(e.Err, target)
}

// WithContext returns a copy of the error with the given details added.
func (e *Error) WithContext(ctx map[string]any) *Error {
	newErr := *e
	newErr.Context = make(map[string]any, len(e.Context)+len(ctx))
	for k, v := range e.Context {
		newErr.Context[k] = v
	}
	for k, v := range ctx {
		newErr.Context[k] = v
	}
	return &newErr
}

// Fatal reports whether an error of this kind must stop a run before any
// output is written.
func (e *Error) Fatal() bool {
	switch e.Kind {
	case KindCatalog, KindStateParse, KindConfiguration, KindOutput:
		return true
	default:
		return false
	}
}

// Catalog creates a KindCatalog error.
func Catalog(op string, err error) *Error {
	return &Error{Op: op, Kind: KindCatalog, Err: err}
}

// QueryExecution creates a KindQueryExecution error for the named query.
func QueryExecution(query string, err error) *Error {
	return &Error{Op: "query.Execute", Kind: KindQueryExecution, Query: query, Err: err}
}

// Template creates a KindTemplate error for the named query.
func Template(query string, err error) *Error {
	return &Error{Op: "task.RenderTitle", Kind: KindTemplate, Query: query, Err: err}
}

// Identity creates a KindIdentity error for the named query.
func Identity(query string, err error) *Error {
	return &Error{Op: "task.Identity", Kind: KindIdentity, Query: query, Err: err}
}

// StateParse creates a KindStateParse error.
func StateParse(op string, err error) *Error {
	return &Error{Op: op, Kind: KindStateParse, Err: err}
}

// Configuration creates a KindConfiguration error.
func Configuration(op string, err error) *Error {
	return &Error{Op: op, Kind: KindConfiguration, Err: err}
}

// Output creates a KindOutput error.
func Output(op string, err error) *Error {
	return &Error{Op: op, Kind: KindOutput, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsFatal reports whether err carries a fatal kind.
func IsFatal(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Fatal()
	}
	return false
}
