package optimize

import (
	"fmt"
	"sort"
	"time"

	"github.com/devskill-org/gridplan/network"
)

// Names of the supplementary constraints.
const (
	WindConstraintName       = "wind total constraint"
	HydropowerConstraintName = "hydro monthly upper bound"

	DefaultWindLimit = 1000.0
)

// DefaultHydroMonthlyLimits are the monthly upper bounds on hydro
// dispatch in MWh, January first.
var DefaultHydroMonthlyLimits = [12]float64{
	14741419, 13009648, 13175947, 11811489, 11696178, 10964123,
	10787874, 11250418, 11147324, 12588790, 13613233, 13814607,
}

// ExtraFunc adds constraints to a model after it has been built.
type ExtraFunc func(m *Model) error

// AddWindConstraint bounds the summed output of the wind generator over
// all snapshots.
func AddWindConstraint(m *Model, limit float64) error {
	p, err := m.Variable(GeneratorP, network.CarrierWind)
	if err != nil {
		return fmt.Errorf("wind constraint: %w", err)
	}
	_, err = m.AddConstraint(WindConstraintName, p.Sum(), LessEqual, limit)
	return err
}

// AddHydropowerConstraint bounds the hydro dispatch of every calendar
// month present in the snapshots by limits[month-1].
func AddHydropowerConstraint(m *Model, limits [12]float64) error {
	p, err := m.Variable(StorageDispatch, network.CarrierHydro)
	if err != nil {
		return fmt.Errorf("hydropower constraint: %w", err)
	}
	byMonth := p.GroupBy(func(t time.Time) int { return int(t.Month()) })
	for _, month := range SortedKeys(byMonth) {
		if _, err := m.AddConstraint(HydropowerConstraintName, byMonth[month], LessEqual, limits[month-1]); err != nil {
			return err
		}
	}
	return nil
}

// ConstraintParams holds the right-hand sides of the supplementary
// constraints.
type ConstraintParams struct {
	WindLimit          float64
	HydroMonthlyLimits [12]float64
}

// DefaultConstraintParams returns the reference limits.
func DefaultConstraintParams() ConstraintParams {
	return ConstraintParams{WindLimit: DefaultWindLimit, HydroMonthlyLimits: DefaultHydroMonthlyLimits}
}

var extraConstraints = map[string]func(ConstraintParams) ExtraFunc{
	"wind": func(p ConstraintParams) ExtraFunc {
		return func(m *Model) error { return AddWindConstraint(m, p.WindLimit) }
	},
	"hydro": func(p ConstraintParams) ExtraFunc {
		return func(m *Model) error { return AddHydropowerConstraint(m, p.HydroMonthlyLimits) }
	},
}

// ExtraConstraintNames lists the names accepted by ExtraFunctionality.
func ExtraConstraintNames() []string {
	names := make([]string, 0, len(extraConstraints))
	for name := range extraConstraints {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ExtraFunctionality collects the named supplementary constraints into a
// single hook. With no names the hook adds nothing.
func ExtraFunctionality(params ConstraintParams, names ...string) (ExtraFunc, error) {
	var funcs []ExtraFunc
	for _, name := range names {
		build, ok := extraConstraints[name]
		if !ok {
			return nil, fmt.Errorf("unknown extra constraint %q (known: %v)", name, ExtraConstraintNames())
		}
		funcs = append(funcs, build(params))
	}
	return func(m *Model) error {
		for _, f := range funcs {
			if err := f(m); err != nil {
				return err
			}
		}
		return nil
	}, nil
}
