package optimize

import (
	"context"
	"fmt"
	"strings"
)

// Result is what a backend returns for a model.
type Result struct {
	// Status is "ok", "warning" or "error"; Condition names the
	// termination condition, e.g. "optimal" or "infeasible".
	Status    string
	Condition string
	Objective float64
	Values    []float64 // one per column, nil when there is no solution
	Duals     []float64 // one per row, nil when unavailable
}

// HasSolution reports whether Values can be read.
func (r *Result) HasSolution() bool {
	return r != nil && r.Values != nil
}

// Solver solves a Model. Implementations must not modify the model.
type Solver interface {
	Name() string
	Solve(ctx context.Context, m *Model) (*Result, error)
}

// NewSolver returns the backend registered under name, configured with
// options. Option values are strings, booleans, integers or floats as
// decoded from the configuration file.
func NewSolver(name string, options map[string]any) (Solver, error) {
	switch strings.ToLower(name) {
	case "", "highs":
		return &HighsSolver{Options: options}, nil
	case "gonum", "simplex":
		s := &GonumSolver{}
		if v, ok := options["tolerance"]; ok {
			tol, err := toFloat(v)
			if err != nil {
				return nil, fmt.Errorf("option tolerance: %w", err)
			}
			s.Tolerance = tol
		}
		if v, ok := options["max_dense_entries"]; ok {
			n, err := toFloat(v)
			if err != nil {
				return nil, fmt.Errorf("option max_dense_entries: %w", err)
			}
			s.MaxDenseEntries = int(n)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown solver %q", name)
	}
}

func toFloat(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case uint64:
		return float64(x), nil
	default:
		return 0, fmt.Errorf("expected a number, got %T", v)
	}
}
