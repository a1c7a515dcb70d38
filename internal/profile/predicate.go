package profile

import (
	"fmt"

	"github.com/Knetic/govaluate"
)

// Predicate is a compiled success expression evaluated against a parsed
// gateway response.
type Predicate struct {
	source string
	expr   *govaluate.EvaluableExpression
}

// CompilePredicate parses a govaluate expression such as
// "resultCode IN ('Authorised', 'Received')".
func CompilePredicate(source string) (*Predicate, error) {
	if source == "" {
		return nil, fmt.Errorf("empty success expression")
	}
	expr, err := govaluate.NewEvaluableExpression(source)
	if err != nil {
		return nil, fmt.Errorf("compile success expression %q: %w", source, err)
	}
	return &Predicate{source: source, expr: expr}, nil
}

// Eval applies the predicate to fields. Fields missing from the response
// evaluate as nil, so a comparison against them is false rather than an error.
func (p *Predicate) Eval(fields map[string]any) (bool, error) {
	out, err := p.expr.Eval(responseFields(fields))
	if err != nil {
		return false, fmt.Errorf("evaluate %q: %w", p.source, err)
	}
	ok, isBool := out.(bool)
	if !isBool {
		return false, fmt.Errorf("evaluate %q: result is %T, not bool", p.source, out)
	}
	return ok, nil
}

func (p *Predicate) String() string { return p.source }

type responseFields map[string]any

func (f responseFields) Get(name string) (interface{}, error) {
	return f[name], nil
}
