package optimize

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"
)

// DefaultMaxDenseEntries bounds the size of the dense standard-form matrix
// the gonum backend is willing to allocate.
const DefaultMaxDenseEntries = 4_000_000

// feasTol is the violation accepted when presolved bounds cross or a
// constant row is checked.
const feasTol = 1e-9

// GonumSolver solves small models with the dense simplex method of
// gonum. It reports no duals.
type GonumSolver struct {
	Tolerance       float64
	MaxDenseEntries int
}

func (s *GonumSolver) Name() string { return "gonum" }

// columnKind tells how a model column is expressed in standard form.
type columnKind int

const (
	colConst    columnKind = iota // x = value
	colShifted                    // x = value + y, value is the lower bound
	colMirrored                   // x = value - y, value is the upper bound
	colFree                       // x = y - y2
)

type stdColumn struct {
	kind  columnKind
	value float64
	y, y2 int
}

type stdRow struct {
	coef  map[int]float64
	rhs   float64
	slack float64 // +1 for <=, -1 for >=, 0 for equality
}

// Solve brings the model to the standard form
//
//	minimise c·y  s.t.  A·y = b,  y >= 0
//
// and solves it with lp.Simplex. Rows with a single column become bounds,
// bounded columns are shifted instead of split into a positive and a
// negative part, and every row and the objective are scaled to a unit
// maximum, so capital costs per MW and marginal costs per MWh can sit
// in one model.
func (s *GonumSolver) Solve(ctx context.Context, m *Model) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	nvars := m.NumVars()
	if nvars == 0 {
		return &Result{Status: "ok", Condition: "optimal", Values: []float64{}}, nil
	}
	infeasible := &Result{Status: "warning", Condition: "infeasible"}
	unbounded := &Result{Status: "warning", Condition: "unbounded"}

	lower := slices.Clone(m.colLower)
	upper := slices.Clone(m.colUpper)
	var rows []row
	for _, r := range m.rows {
		cols, vals := r.expr.Terms()
		switch {
		case math.IsInf(r.lower, -1) && math.IsInf(r.upper, 1):
		case len(cols) == 0:
			if r.lower > feasTol || r.upper < -feasTol {
				return infeasible, nil
			}
		case len(cols) == 1:
			c, a := cols[0], vals[0]
			lo, up := r.lower/a, r.upper/a
			if a < 0 {
				lo, up = up, lo
			}
			lower[c] = math.Max(lower[c], lo)
			upper[c] = math.Min(upper[c], up)
		default:
			rows = append(rows, r)
		}
	}

	used := make([]bool, nvars)
	for _, r := range rows {
		cols, _ := r.expr.Terms()
		for _, c := range cols {
			used[c] = true
		}
	}

	columns := make([]stdColumn, nvars)
	ny := 0
	for c := 0; c < nvars; c++ {
		lo, up := lower[c], upper[c]
		if lo > up {
			if lo-up > feasTol*math.Max(1, math.Abs(lo)) {
				return infeasible, nil
			}
			up = lo
		}
		switch {
		case lo == up:
			columns[c] = stdColumn{kind: colConst, value: lo}
		case !used[c]:
			v, ok := unusedColumnValue(lo, up, m.colCost[c])
			if !ok {
				return unbounded, nil
			}
			columns[c] = stdColumn{kind: colConst, value: v}
		case !math.IsInf(lo, -1):
			columns[c] = stdColumn{kind: colShifted, value: lo, y: ny}
			ny++
		case !math.IsInf(up, 1):
			columns[c] = stdColumn{kind: colMirrored, value: up, y: ny}
			ny++
		default:
			columns[c] = stdColumn{kind: colFree, y: ny, y2: ny + 1}
			ny += 2
		}
	}

	var std []stdRow
	for _, r := range rows {
		cols, vals := r.expr.Terms()
		coef := make(map[int]float64, len(cols))
		shift := 0.0
		for i, c := range cols {
			a, col := vals[i], columns[c]
			switch col.kind {
			case colConst:
				shift += a * col.value
			case colShifted:
				coef[col.y] += a
				shift += a * col.value
			case colMirrored:
				coef[col.y] -= a
				shift += a * col.value
			case colFree:
				coef[col.y] += a
				coef[col.y2] -= a
			}
		}
		if len(coef) == 0 {
			if shift < r.lower-feasTol || shift > r.upper+feasTol {
				return infeasible, nil
			}
			continue
		}
		if r.lower == r.upper {
			std = append(std, stdRow{coef: coef, rhs: r.upper - shift})
			continue
		}
		if !math.IsInf(r.upper, 1) {
			std = append(std, stdRow{coef: coef, rhs: r.upper - shift, slack: 1})
		}
		if !math.IsInf(r.lower, -1) {
			std = append(std, stdRow{coef: coef, rhs: r.lower - shift, slack: -1})
		}
	}
	for c, col := range columns {
		if col.kind != colShifted || math.IsInf(upper[c], 1) {
			continue
		}
		std = append(std, stdRow{coef: map[int]float64{col.y: 1}, rhs: upper[c] - col.value, slack: 1})
	}

	values := make([]float64, nvars)
	if len(std) > 0 {
		y, res, err := s.simplex(ctx, m, columns, std, ny)
		if err != nil || res != nil {
			return res, err
		}
		for c, col := range columns {
			switch col.kind {
			case colConst:
				values[c] = col.value
			case colShifted:
				values[c] = col.value + y[col.y]
			case colMirrored:
				values[c] = col.value - y[col.y]
			case colFree:
				values[c] = y[col.y] - y[col.y2]
			}
		}
	} else {
		for c, col := range columns {
			values[c] = col.value
		}
	}

	objective := 0.0
	for c, v := range values {
		objective += m.colCost[c] * v
	}
	return &Result{Status: "ok", Condition: "optimal", Objective: objective, Values: values}, nil
}

// simplex solves the standard form rows. A non-nil Result reports an
// infeasible or unbounded model.
func (s *GonumSolver) simplex(ctx context.Context, m *Model, columns []stdColumn, std []stdRow, ny int) ([]float64, *Result, error) {
	nslack := 0
	for _, r := range std {
		if r.slack != 0 {
			nslack++
		}
	}
	nrows, ncols := len(std), ny+nslack

	limit := s.MaxDenseEntries
	if limit <= 0 {
		limit = DefaultMaxDenseEntries
	}
	if nrows*ncols > limit {
		return nil, nil, fmt.Errorf("gonum: standard form has %dx%d entries, limit is %d", nrows, ncols, limit)
	}
	if nrows > ncols {
		return nil, nil, fmt.Errorf("gonum: standard form has more rows (%d) than columns (%d)", nrows, ncols)
	}

	a := mat.NewDense(nrows, ncols, nil)
	b := make([]float64, nrows)
	k := ny
	for i, r := range std {
		scale := 0.0
		for _, v := range r.coef {
			scale = math.Max(scale, math.Abs(v))
		}
		if r.rhs < 0 {
			scale = -scale
		}
		for j, v := range r.coef {
			a.Set(i, j, v/scale)
		}
		if r.slack != 0 {
			a.Set(i, k, r.slack/scale)
			k++
		}
		b[i] = r.rhs / scale
	}

	c := make([]float64, ncols)
	for j, col := range columns {
		cost := m.colCost[j]
		switch col.kind {
		case colShifted:
			c[col.y] += cost
		case colMirrored:
			c[col.y] -= cost
		case colFree:
			c[col.y] += cost
			c[col.y2] -= cost
		}
	}
	cmax := 0.0
	for _, v := range c {
		cmax = math.Max(cmax, math.Abs(v))
	}
	if cmax > 0 {
		for j := range c {
			c[j] /= cmax
		}
	}

	tol := s.Tolerance
	if tol <= 0 {
		tol = 1e-9
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	_, y, err := lp.Simplex(c, a, b, tol, nil)
	switch {
	case errors.Is(err, lp.ErrInfeasible):
		return nil, &Result{Status: "warning", Condition: "infeasible"}, nil
	case errors.Is(err, lp.ErrUnbounded):
		return nil, &Result{Status: "warning", Condition: "unbounded"}, nil
	case err != nil:
		return nil, nil, fmt.Errorf("gonum: %w", err)
	}
	return y, nil, nil
}

// unusedColumnValue returns the optimal value of a column that appears in
// no row. ok is false when the objective is unbounded along it.
func unusedColumnValue(lo, up, cost float64) (v float64, ok bool) {
	switch {
	case cost > 0:
		return lo, !math.IsInf(lo, -1)
	case cost < 0:
		return up, !math.IsInf(up, 1)
	case lo > 0:
		return lo, true
	case up < 0:
		return up, true
	default:
		return 0, true
	}
}
