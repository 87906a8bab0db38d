package optimize

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/bartolsthoorn/gohighs/highs"
)

// DefaultHighsOptions is the barrier tuning used for capacity expansion
// runs: interior point without crossover, a fixed seed and four threads.
func DefaultHighsOptions() map[string]any {
	return map[string]any{
		"threads":                  4,
		"solver":                   "ipm",
		"run_crossover":            "off",
		"ipm_optimality_tolerance": 1e-6,
		"random_seed":              123,
	}
}

// floatOptions lists HiGHS options of type double, so integral values
// read from YAML are passed with the right type.
var floatOptions = map[string]bool{
	"time_limit":                   true,
	"infinite_cost":                true,
	"infinite_bound":               true,
	"small_matrix_value":           true,
	"large_matrix_value":           true,
	"primal_feasibility_tolerance": true,
	"dual_feasibility_tolerance":   true,
	"ipm_optimality_tolerance":     true,
	"objective_bound":              true,
	"objective_target":             true,
	"mip_rel_gap":                  true,
	"mip_abs_gap":                  true,
	"mip_feasibility_tolerance":    true,
}

// HighsSolver solves models with the HiGHS library.
type HighsSolver struct {
	Options map[string]any
	Output  bool
}

func (s *HighsSolver) Name() string { return "highs" }

func (s *HighsSolver) solveOptions(ctx context.Context) ([]highs.SolveOption, error) {
	opts := []highs.SolveOption{highs.WithOutput(s.Output)}
	for name, value := range s.Options {
		if name == "time_limit" {
			continue
		}
		switch v := value.(type) {
		case bool:
			opts = append(opts, highs.WithBoolOption(name, v))
		case string:
			opts = append(opts, highs.WithStringOption(name, v))
		case float64, float32:
			f, _ := toFloat(v)
			if floatOptions[name] {
				opts = append(opts, highs.WithFloatOption(name, f))
			} else if f == float64(int(f)) {
				opts = append(opts, highs.WithIntOption(name, int(f)))
			} else {
				opts = append(opts, highs.WithFloatOption(name, f))
			}
		case int, int64, uint64:
			f, _ := toFloat(v)
			if floatOptions[name] {
				opts = append(opts, highs.WithFloatOption(name, f))
			} else {
				opts = append(opts, highs.WithIntOption(name, int(f)))
			}
		default:
			return nil, fmt.Errorf("solver option %s: unsupported value type %T", name, value)
		}
	}
	limit, ok, err := s.timeLimit(ctx)
	if err != nil {
		return nil, err
	}
	if ok {
		opts = append(opts, highs.WithTimeLimit(limit))
	}
	return opts, nil
}

// timeLimit returns the configured time_limit in seconds, capped at the
// time left before the context deadline. ok is false when neither is set.
func (s *HighsSolver) timeLimit(ctx context.Context) (limit float64, ok bool, err error) {
	if v, set := s.Options["time_limit"]; set {
		if limit, err = optionFloat(v); err != nil {
			return 0, false, fmt.Errorf("solver option time_limit: %w", err)
		}
		ok = true
	}
	if deadline, set := ctx.Deadline(); set {
		remaining := time.Until(deadline).Seconds()
		if remaining <= 0 {
			return 0, false, context.DeadlineExceeded
		}
		if !ok || remaining < limit {
			limit, ok = remaining, true
		}
	}
	return limit, ok, nil
}

func optionFloat(v any) (float64, error) {
	if str, ok := v.(string); ok {
		return strconv.ParseFloat(str, 64)
	}
	return toFloat(v)
}

// Solve passes the model to HiGHS. The call itself cannot be interrupted;
// a context deadline is mapped to the solver's time limit.
func (s *HighsSolver) Solve(ctx context.Context, m *Model) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	opts, err := s.solveOptions(ctx)
	if err != nil {
		return nil, err
	}

	hm := &highs.Model{
		ColCosts: m.colCost,
		ColLower: m.colLower,
		ColUpper: m.colUpper,
	}
	for _, r := range m.rows {
		cols, vals := r.expr.Terms()
		hm.AddSparseRow(r.lower, cols, vals, r.upper)
	}

	sol, err := hm.Solve(opts...)
	if err != nil {
		return nil, fmt.Errorf("highs: %w", err)
	}

	status, condition := classifyHighs(sol.Status)
	res := &Result{Status: status, Condition: condition, Objective: sol.Objective}
	if sol.HasSolution() && len(sol.ColValues) == m.NumVars() {
		res.Values = sol.ColValues
		if len(sol.RowDuals) == m.NumConstraints() {
			res.Duals = sol.RowDuals
		}
	}
	return res, nil
}

func classifyHighs(st highs.ModelStatus) (status, condition string) {
	switch st {
	case highs.ModelStatusOptimal, highs.ModelStatusModelEmpty:
		return "ok", "optimal"
	case highs.ModelStatusInfeasible:
		return "warning", "infeasible"
	case highs.ModelStatusUnboundedOrInfeasible:
		return "warning", "infeasible_or_unbounded"
	case highs.ModelStatusUnbounded:
		return "warning", "unbounded"
	case highs.ModelStatusTimeLimit:
		return "warning", "time_limit"
	case highs.ModelStatusIterationLimit:
		return "warning", "iteration_limit"
	case highs.ModelStatusObjectiveBound, highs.ModelStatusObjectiveTarget:
		return "warning", "objective_limit"
	case highs.ModelStatusLoadError:
		return "error", "load_error"
	case highs.ModelStatusModelError:
		return "error", "model_error"
	case highs.ModelStatusPresolveError:
		return "error", "presolve_error"
	case highs.ModelStatusSolveError:
		return "error", "solve_error"
	case highs.ModelStatusPostsolveError:
		return "error", "postsolve_error"
	default:
		return "warning", "unknown"
	}
}
