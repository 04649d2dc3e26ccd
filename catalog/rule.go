package catalog

import (
	"fmt"

	"github.com/google/cel-go/cel"
)

// Rule is a compiled CEL expression evaluated against a single result row.
// The row is bound to the variable "row" as a map from column name to value.
type Rule struct {
	expr string
	prg  cel.Program
}

// CompileRule parses and type-checks a boolean CEL expression.
func CompileRule(expr string) (*Rule, error) {
	env, err := cel.NewEnv(
		cel.Variable("row", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("create CEL environment: %w", err)
	}

	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("compile %q: %w", expr, iss.Err())
	}

	out := ast.OutputType()
	if !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return nil, fmt.Errorf("expression %q must evaluate to bool, got %s", expr, out)
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("program %q: %w", expr, err)
	}

	return &Rule{expr: expr, prg: prg}, nil
}

// String returns the source expression.
func (r *Rule) String() string {
	return r.expr
}

// Match evaluates the rule against row.
func (r *Rule) Match(row map[string]any) (bool, error) {
	out, _, err := r.prg.Eval(map[string]any{"row": row})
	if err != nil {
		return false, fmt.Errorf("evaluate %q: %w", r.expr, err)
	}
	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("evaluate %q: result %v is not a bool", r.expr, out.Value())
	}
	return b, nil
}
