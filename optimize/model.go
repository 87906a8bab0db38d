// Package optimize formulates the linear dispatch and capacity-expansion
// problem of a network, hands it to an LP solver backend and writes the
// solution back into the network.
package optimize

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// Sense is the relation of a constraint's left-hand side to its right-hand side
type Sense int

const (
	LessEqual Sense = iota
	GreaterEqual
	Equal
)

func (s Sense) String() string {
	switch s {
	case LessEqual:
		return "<="
	case GreaterEqual:
		return ">="
	case Equal:
		return "=="
	default:
		return fmt.Sprintf("Sense(%d)", int(s))
	}
}

// LinExpr is a linear combination of model columns. Adding the same column
// twice accumulates its coefficient.
type LinExpr map[int]float64

// AddTerm adds coef times column col.
func (e *LinExpr) AddTerm(col int, coef float64) {
	if *e == nil {
		*e = make(LinExpr)
	}
	(*e)[col] += coef
}

// AddExpr adds scale times other.
func (e *LinExpr) AddExpr(other LinExpr, scale float64) {
	for col, coef := range other {
		e.AddTerm(col, coef*scale)
	}
}

// Terms returns the non-zero terms sorted by column.
func (e LinExpr) Terms() (cols []int, vals []float64) {
	cols = make([]int, 0, len(e))
	for col, coef := range e {
		if coef != 0 {
			cols = append(cols, col)
		}
	}
	sort.Ints(cols)
	vals = make([]float64, len(cols))
	for i, col := range cols {
		vals[i] = e[col]
	}
	return cols, vals
}

// Variable is a block of model columns belonging to one component. Time
// dependent variables have one column per snapshot; scalar ones (nominal
// capacities) have a single column and no snapshots.
type Variable struct {
	Block     string
	Component string
	Snapshots []time.Time
	Cols      []int
}

// At returns the expression of the column at snapshot index t.
func (v *Variable) At(t int) LinExpr {
	return LinExpr{v.Cols[t]: 1}
}

// Sum returns the sum over all columns.
func (v *Variable) Sum() LinExpr {
	e := make(LinExpr, len(v.Cols))
	for _, c := range v.Cols {
		e[c] += 1
	}
	return e
}

// GroupBy sums the columns of a time dependent variable into groups keyed
// by key(snapshot).
func (v *Variable) GroupBy(key func(time.Time) int) map[int]LinExpr {
	groups := make(map[int]LinExpr)
	for i, c := range v.Cols {
		if i >= len(v.Snapshots) {
			break
		}
		k := key(v.Snapshots[i])
		e := groups[k]
		e.AddTerm(c, 1)
		groups[k] = e
	}
	return groups
}

// SortedKeys returns the keys of a grouped expression in ascending order.
func SortedKeys(groups map[int]LinExpr) []int {
	keys := make([]int, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}

type row struct {
	name  string
	expr  LinExpr
	lower float64
	upper float64
}

// Model is a linear program in the row-bounded form
//
//	minimise    cost · x
//	subject to  rowLower <= A·x <= rowUpper
//	            colLower <=  x  <= colUpper
type Model struct {
	Snapshots  []time.Time
	Weightings []float64

	colNames []string
	colLower []float64
	colUpper []float64
	colCost  []float64

	rows []row

	vars map[string]map[string]*Variable
	// balance[b][t] is the row index of the nodal balance of bus b
	balance [][]int
}

func newModel(snapshots []time.Time, weightings []float64) *Model {
	return &Model{
		Snapshots:  snapshots,
		Weightings: weightings,
		vars:       make(map[string]map[string]*Variable),
	}
}

// NumVars returns the number of columns.
func (m *Model) NumVars() int { return len(m.colCost) }

// NumConstraints returns the number of rows.
func (m *Model) NumConstraints() int { return len(m.rows) }

func (m *Model) addCol(name string, lower, upper, cost float64) int {
	m.colNames = append(m.colNames, name)
	m.colLower = append(m.colLower, lower)
	m.colUpper = append(m.colUpper, upper)
	m.colCost = append(m.colCost, cost)
	return len(m.colCost) - 1
}

// addVariable registers a time dependent variable with one column per
// snapshot, using bounds(t) and cost(t) for each column.
func (m *Model) addVariable(block, component string, bounds func(t int) (float64, float64), cost func(t int) float64) *Variable {
	v := &Variable{Block: block, Component: component, Snapshots: m.Snapshots, Cols: make([]int, len(m.Snapshots))}
	for t := range m.Snapshots {
		lo, up := bounds(t)
		c := 0.0
		if cost != nil {
			c = cost(t)
		}
		v.Cols[t] = m.addCol(fmt.Sprintf("%s[%s,%d]", block, component, t), lo, up, c)
	}
	m.register(v)
	return v
}

func (m *Model) addScalar(block, component string, lower, upper, cost float64) *Variable {
	v := &Variable{Block: block, Component: component, Cols: []int{m.addCol(fmt.Sprintf("%s[%s]", block, component), lower, upper, cost)}}
	m.register(v)
	return v
}

func (m *Model) register(v *Variable) {
	if m.vars[v.Block] == nil {
		m.vars[v.Block] = make(map[string]*Variable)
	}
	m.vars[v.Block][v.Component] = v
}

// Variable returns the columns of block (e.g. "Generator-p") for the named
// component.
func (m *Model) Variable(block, component string) (*Variable, error) {
	byName, ok := m.vars[block]
	if !ok {
		return nil, fmt.Errorf("unknown variable block %q", block)
	}
	v, ok := byName[component]
	if !ok {
		return nil, fmt.Errorf("variable block %q has no component %q", block, component)
	}
	return v, nil
}

// HasVariable reports whether block holds columns for component.
func (m *Model) HasVariable(block, component string) bool {
	_, err := m.Variable(block, component)
	return err == nil
}

// AddConstraint adds the row expr sense rhs and returns its index.
func (m *Model) AddConstraint(name string, expr LinExpr, sense Sense, rhs float64) (int, error) {
	if math.IsNaN(rhs) {
		return 0, fmt.Errorf("constraint %q: right-hand side is NaN", name)
	}
	for col := range expr {
		if col < 0 || col >= m.NumVars() {
			return 0, fmt.Errorf("constraint %q: column %d out of range", name, col)
		}
	}
	r := row{name: name, expr: expr, lower: math.Inf(-1), upper: math.Inf(1)}
	switch sense {
	case LessEqual:
		r.upper = rhs
	case GreaterEqual:
		r.lower = rhs
	case Equal:
		r.lower, r.upper = rhs, rhs
	default:
		return 0, fmt.Errorf("constraint %q: invalid sense %v", name, sense)
	}
	m.rows = append(m.rows, r)
	return len(m.rows) - 1, nil
}

// mustAdd is used by the formulation, whose rows only reference columns
// it created itself.
func (m *Model) mustAdd(name string, expr LinExpr, sense Sense, rhs float64) int {
	i, err := m.AddConstraint(name, expr, sense, rhs)
	if err != nil {
		panic(err)
	}
	return i
}

// RowsNamed returns the indices of the rows added under name.
func (m *Model) RowsNamed(name string) []int {
	var out []int
	for i, r := range m.rows {
		if r.name == name {
			out = append(out, i)
		}
	}
	return out
}

// ColumnName returns the name of column col.
func (m *Model) ColumnName(col int) string {
	if col < 0 || col >= len(m.colNames) {
		return ""
	}
	return m.colNames[col]
}
