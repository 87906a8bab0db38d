package optimize

import (
	"fmt"
	"math"

	"github.com/devskill-org/gridplan/network"
)

// Formulation selects how Kirchhoff's voltage law is expressed
type Formulation string

const (
	Kirchhoff Formulation = "kirchhoff"
	Angles    Formulation = "angles"
)

// ParseFormulation validates a formulation name. Empty means Kirchhoff.
func ParseFormulation(s string) (Formulation, error) {
	switch Formulation(s) {
	case "", Kirchhoff:
		return Kirchhoff, nil
	case Angles:
		return Angles, nil
	default:
		return "", fmt.Errorf("unknown formulation %q (want %q or %q)", s, Kirchhoff, Angles)
	}
}

// Variable and constraint block names.
const (
	GeneratorP           = "Generator-p"
	GeneratorPNom        = "Generator-p_nom"
	StorageDispatch      = "StorageUnit-p_dispatch"
	StorageStore         = "StorageUnit-p_store"
	StorageStateOfCharge = "StorageUnit-state_of_charge"
	StorageSpill         = "StorageUnit-spill"
	StoragePNom          = "StorageUnit-p_nom"
	LineS                = "Line-s"
	LineSNom             = "Line-s_nom"
	BusVAng              = "Bus-v_ang"

	NodalBalance = "Bus-nodal_balance"
)

// Build formulates the linear program of n.
func Build(n *network.Network, f Formulation) (*Model, error) {
	if len(n.Snapshots) == 0 {
		return nil, fmt.Errorf("network has no snapshots")
	}
	if len(n.Buses) == 0 {
		return nil, fmt.Errorf("network has no buses")
	}
	m := newModel(n.Snapshots, n.SnapshotWeightings)
	T := len(n.Snapshots)
	inf := math.Inf(1)
	w := func(t int) float64 {
		if t < len(n.SnapshotWeightings) {
			return n.SnapshotWeightings[t]
		}
		return 1
	}

	busIndex := make(map[string]int, len(n.Buses))
	balance := make([][]LinExpr, len(n.Buses))
	for i, b := range n.Buses {
		busIndex[b.Name] = i
		balance[i] = make([]LinExpr, T)
	}

	for _, g := range n.Generators {
		b := busIndex[g.Bus]
		var p *Variable
		if g.PNomExtendable {
			pnom := m.addScalar(GeneratorPNom, g.Name, g.PNomMin, g.PNomMax, g.CapitalCost)
			lower := math.Inf(-1)
			if g.PMinPU >= 0 {
				lower = 0
			}
			p = m.addVariable(GeneratorP, g.Name,
				func(int) (float64, float64) { return lower, inf },
				func(t int) float64 { return w(t) * g.MarginalCost })
			for t := 0; t < T; t++ {
				upper := p.At(t)
				upper.AddTerm(pnom.Cols[0], -g.PMaxPU[t])
				m.mustAdd("Generator-ext-p-upper", upper, LessEqual, 0)
				lowerRow := p.At(t)
				lowerRow.AddTerm(pnom.Cols[0], -g.PMinPU)
				m.mustAdd("Generator-ext-p-lower", lowerRow, GreaterEqual, 0)
			}
		} else {
			p = m.addVariable(GeneratorP, g.Name,
				func(t int) (float64, float64) { return g.PMinPU * g.PNom, g.PMaxPU[t] * g.PNom },
				func(t int) float64 { return w(t) * g.MarginalCost })
		}
		for t := 0; t < T; t++ {
			balance[b][t].AddTerm(p.Cols[t], 1)
		}
	}

	for _, s := range n.StorageUnits {
		addStorageUnit(m, s, balance[busIndex[s.Bus]], w)
	}

	for _, l := range n.Lines {
		var sv *Variable
		if l.SNomExtendable {
			snom := m.addScalar(LineSNom, l.Name, l.SNomMin, l.SNomMax, l.CapitalCost)
			sv = m.addVariable(LineS, l.Name, func(int) (float64, float64) { return math.Inf(-1), inf }, nil)
			for t := 0; t < T; t++ {
				upper := sv.At(t)
				upper.AddTerm(snom.Cols[0], -l.SMaxPU)
				m.mustAdd("Line-ext-s-upper", upper, LessEqual, 0)
				lower := sv.At(t)
				lower.AddTerm(snom.Cols[0], l.SMaxPU)
				m.mustAdd("Line-ext-s-lower", lower, GreaterEqual, 0)
			}
		} else {
			limit := l.SMaxPU * l.SNom
			sv = m.addVariable(LineS, l.Name, func(int) (float64, float64) { return -limit, limit }, nil)
		}
		b0, b1 := busIndex[l.Bus0], busIndex[l.Bus1]
		for t := 0; t < T; t++ {
			balance[b0][t].AddTerm(sv.Cols[t], -1)
			balance[b1][t].AddTerm(sv.Cols[t], 1)
		}
	}

	loads := make([][]float64, len(n.Buses))
	for i := range loads {
		loads[i] = make([]float64, T)
	}
	for _, l := range n.Loads {
		b := busIndex[l.Bus]
		for t, v := range l.PSet {
			loads[b][t] += v
		}
	}
	m.balance = make([][]int, len(n.Buses))
	for b := range n.Buses {
		m.balance[b] = make([]int, T)
		for t := 0; t < T; t++ {
			m.balance[b][t] = m.mustAdd(NodalBalance, balance[b][t], Equal, loads[b][t])
		}
	}

	if len(n.Lines) > 0 {
		var err error
		switch f {
		case Kirchhoff, "":
			err = addKirchhoffConstraints(m, n)
		case Angles:
			err = addAngleConstraints(m, n)
		default:
			err = fmt.Errorf("unknown formulation %q", f)
		}
		if err != nil {
			return nil, err
		}
	}

	return m, nil
}

func addStorageUnit(m *Model, s *network.StorageUnit, balance []LinExpr, w func(int) float64) {
	T := len(m.Snapshots)
	inf := math.Inf(1)

	pnomCol := -1
	if s.PNomExtendable {
		pnomCol = m.addScalar(StoragePNom, s.Name, s.PNomMin, s.PNomMax, s.CapitalCost).Cols[0]
	}
	// capped adds a non-negative variable limited to factor times the
	// nominal power.
	capped := func(block string, factor float64) *Variable {
		if factor <= 0 {
			return m.addVariable(block, s.Name, func(int) (float64, float64) { return 0, 0 }, nil)
		}
		if pnomCol < 0 {
			return m.addVariable(block, s.Name, func(int) (float64, float64) { return 0, factor * s.PNom }, nil)
		}
		v := m.addVariable(block, s.Name, func(int) (float64, float64) { return 0, inf }, nil)
		for t := 0; t < T; t++ {
			e := v.At(t)
			e.AddTerm(pnomCol, -factor)
			m.mustAdd(block+"-upper", e, LessEqual, 0)
		}
		return v
	}

	dispatch := capped(StorageDispatch, s.PMaxPU)
	store := capped(StorageStore, -s.PMinPU)
	soc := capped(StorageStateOfCharge, s.MaxHours)
	for t := 0; t < T; t++ {
		m.colCost[dispatch.Cols[t]] = w(t) * s.MarginalCost
	}

	var spill *Variable
	if s.Inflow != nil {
		spill = m.addVariable(StorageSpill, s.Name, func(t int) (float64, float64) { return 0, math.Max(s.Inflow[t], 0) }, nil)
	}

	for t := 0; t < T; t++ {
		balance[t].AddTerm(dispatch.Cols[t], 1)
		balance[t].AddTerm(store.Cols[t], -1)

		wt := w(t)
		retained := math.Pow(1-s.StandingLoss, wt)
		e := soc.At(t)
		e.AddTerm(store.Cols[t], -wt*s.EfficiencyStore)
		e.AddTerm(dispatch.Cols[t], wt/s.EfficiencyDispatch)
		rhs := 0.0
		if spill != nil {
			e.AddTerm(spill.Cols[t], wt)
			rhs += wt * s.Inflow[t]
		}
		switch {
		case t > 0:
			e.AddTerm(soc.Cols[t-1], -retained)
		case s.CyclicStateOfCharge:
			e.AddTerm(soc.Cols[T-1], -retained)
		default:
			rhs += retained * s.StateOfChargeInitial
		}
		m.mustAdd("StorageUnit-energy_balance", e, Equal, rhs)
	}
}
