package sweep

import (
	"math"

	"github.com/KarDB/QuPyt/qupyt/failure"
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"gonum.org/v1/gonum/floats"
)

type expression struct {
	src     string
	program *vm.Program
}

// exprEnv is the evaluation environment of an Expression. x is rebound for
// every step.
func exprEnv(x float64) map[string]interface{} {
	return map[string]interface{}{
		"x":    x,
		"pi":   math.Pi,
		"e":    math.E,
		"sin":  math.Sin,
		"cos":  math.Cos,
		"tan":  math.Tan,
		"exp":  math.Exp,
		"log":  math.Log,
		"sqrt": math.Sqrt,
		"pow":  math.Pow,
	}
}

// Expression returns a Source that evaluates src once per step, with x running
// evenly from 0 to 1 inclusive. src may use pi, e, sin, cos, tan, exp, log,
// sqrt and pow, e.g. "2.87e9 + 1e7*sin(2*pi*x)".
func Expression(src string) (Source, error) {
	program, err := expr.Compile(src, expr.Env(exprEnv(0)), expr.AsFloat64())
	if err != nil {
		return nil, failure.Wrap(failure.Specification, "compile sweep expression", err)
	}
	return expression{src: src, program: program}, nil
}

func (e expression) Values(steps int) ([]float64, error) {
	const op = "sweep values"
	if steps < 1 {
		return nil, failure.New(failure.Specification, op, "need at least one step, got %d", steps)
	}
	xs := []float64{0}
	if steps > 1 {
		xs = floats.Span(make([]float64, steps), 0, 1)
	}
	r := make([]float64, steps)
	for i, x := range xs {
		out, err := expr.Run(e.program, exprEnv(x))
		if err != nil {
			return nil, failure.Wrap(failure.Specification, op, err)
		}
		v, ok := out.(float64)
		if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, failure.New(failure.Specification, op, "%q gives %v at x=%v", e.src, out, x)
		}
		r[i] = v
	}
	return r, nil
}
