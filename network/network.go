// Package network describes an electricity network model: buses, loads,
// generators, storage units and lines over a set of hourly snapshots,
// together with the dispatch results written back by the optimiser.
package network

import (
	"fmt"
	"math"
	"time"
)

// Bus is a node of the network
type Bus struct {
	Name    string
	Carrier string

	// Marginal holds the marginal price per snapshot after a solve, when
	// the solver reports duals.
	Marginal []float64
}

// Carrier is an energy carrier or technology label
type Carrier struct {
	Name  string
	Color string
}

// Load is a fixed demand time series at a bus
type Load struct {
	Name string
	Bus  string
	PSet []float64 // MW per snapshot
}

// Generator is a dispatchable or variable generator
type Generator struct {
	Name           string
	Bus            string
	Carrier        string
	PNom           float64   // MW, existing or fixed capacity
	PNomExtendable bool      // capacity is optimised
	PNomMin        float64   // MW, lower bound for extendable capacity
	PNomMax        float64   // MW, upper bound for extendable capacity
	CapitalCost    float64   // currency/MW/year
	MarginalCost   float64   // currency/MWh
	PMaxPU         []float64 // per-unit availability per snapshot
	PMinPU         float64   // per-unit minimum output

	// Results
	P       []float64 // MW per snapshot
	PNomOpt float64   // MW
}

// StorageUnit is a storage with a fixed energy-to-power ratio
type StorageUnit struct {
	Name                 string
	Bus                  string
	Carrier              string
	PNom                 float64 // MW
	PNomExtendable       bool
	PNomMin              float64
	PNomMax              float64
	CapitalCost          float64   // currency/MW/year
	MarginalCost         float64   // currency/MWh dispatched
	MaxHours             float64   // hours at full power
	EfficiencyStore      float64   // 0-1
	EfficiencyDispatch   float64   // 0-1
	StandingLoss         float64   // per hour, 0-1
	CyclicStateOfCharge  bool      // last snapshot wraps to the first
	StateOfChargeInitial float64   // MWh, used when not cyclic
	PMaxPU               float64   // per-unit dispatch limit
	PMinPU               float64   // per-unit store limit (negative)
	Inflow               []float64 // MW per snapshot, nil when none

	// Results
	P             []float64 // MW, dispatch minus store
	PDispatch     []float64
	PStore        []float64
	StateOfCharge []float64 // MWh
	Spill         []float64
	PNomOpt       float64
}

// Line is a passive branch between two buses
type Line struct {
	Name           string
	Bus0           string
	Bus1           string
	X              float64 // series reactance, per unit
	SNom           float64 // MVA
	SNomExtendable bool
	SNomMin        float64
	SNomMax        float64
	SMaxPU         float64
	CapitalCost    float64 // currency/MVA/year

	// Results
	P0      []float64 // MW flowing from Bus0 to Bus1
	SNomOpt float64
}

// Network is the model container. Components are kept in insertion order.
type Network struct {
	Snapshots          []time.Time
	SnapshotWeightings []float64 // hours represented by each snapshot

	Buses        []*Bus
	Carriers     []*Carrier
	Loads        []*Load
	Generators   []*Generator
	StorageUnits []*StorageUnit
	Lines        []*Line

	// Results of the last solve
	Objective float64
	Status    string
	Condition string

	names map[string]map[string]bool
}

// New returns an empty network.
func New() *Network {
	return &Network{names: make(map[string]map[string]bool)}
}

// SetSnapshots sets the snapshots with a weighting of one hour each. It
// must be called before time-dependent components are added.
func (n *Network) SetSnapshots(snapshots []time.Time) error {
	if len(snapshots) == 0 {
		return &ValidationError{Component: "Network", Field: "snapshots", Message: "must not be empty"}
	}
	if len(n.Loads)+len(n.Generators)+len(n.StorageUnits) > 0 {
		return &ValidationError{Component: "Network", Field: "snapshots", Message: "cannot change snapshots after components were added"}
	}
	for i := 1; i < len(snapshots); i++ {
		if !snapshots[i].After(snapshots[i-1]) {
			return &ValidationError{Component: "Network", Field: "snapshots", Message: fmt.Sprintf("not strictly increasing at position %d", i)}
		}
	}

	n.Snapshots = snapshots
	n.SnapshotWeightings = make([]float64, len(snapshots))
	for i := range n.SnapshotWeightings {
		n.SnapshotWeightings[i] = 1
	}
	return nil
}

func (n *Network) register(component, name string) error {
	if name == "" {
		return &ValidationError{Component: component, Field: "name", Message: "must not be empty"}
	}
	if n.names == nil {
		n.names = make(map[string]map[string]bool)
	}
	if n.names[component] == nil {
		n.names[component] = make(map[string]bool)
	}
	if n.names[component][name] {
		return &ValidationError{Component: component, Name: name, Field: "name", Message: "already exists"}
	}
	n.names[component][name] = true
	return nil
}

func (n *Network) checkBus(component, name, bus string) error {
	if n.Bus(bus) == nil {
		return &ValidationError{Component: component, Name: name, Field: "bus", Message: fmt.Sprintf("unknown bus %q", bus)}
	}
	return nil
}

func (n *Network) checkSeries(component, name, field string, values []float64) error {
	if values == nil {
		return nil
	}
	if len(values) != len(n.Snapshots) {
		return &ValidationError{Component: component, Name: name, Field: field,
			Message: fmt.Sprintf("has %d values, network has %d snapshots", len(values), len(n.Snapshots))}
	}
	for i, v := range values {
		if math.IsNaN(v) {
			return &ValidationError{Component: component, Name: name, Field: field, Message: fmt.Sprintf("NaN at snapshot %d", i)}
		}
	}
	return nil
}

func checkCapacity(component, name string, nom, min, max float64) error {
	if nom < 0 || min < 0 {
		return &ValidationError{Component: component, Name: name, Field: "nominal", Message: "capacities must be non-negative"}
	}
	if max < min {
		return &ValidationError{Component: component, Name: name, Field: "nominal",
			Message: fmt.Sprintf("maximum %g is below minimum %g", max, min)}
	}
	return nil
}

// AddBus adds a bus.
func (n *Network) AddBus(name, carrier string) (*Bus, error) {
	if err := n.register("Bus", name); err != nil {
		return nil, err
	}
	if carrier == "" {
		carrier = "AC"
	}
	b := &Bus{Name: name, Carrier: carrier}
	n.Buses = append(n.Buses, b)
	return b, nil
}

// AddCarriers adds carriers by name, skipping ones that already exist.
func (n *Network) AddCarriers(names ...string) {
	for _, name := range names {
		if name == "" || n.Carrier(name) != nil {
			continue
		}
		_ = n.register("Carrier", name)
		n.Carriers = append(n.Carriers, &Carrier{Name: name})
	}
}

// AddLoad adds a load with a fixed demand series.
func (n *Network) AddLoad(l *Load) error {
	if err := n.checkBus("Load", l.Name, l.Bus); err != nil {
		return err
	}
	if l.PSet == nil {
		return &ValidationError{Component: "Load", Name: l.Name, Field: "p_set", Message: "must be set"}
	}
	if err := n.checkSeries("Load", l.Name, "p_set", l.PSet); err != nil {
		return err
	}
	if err := n.register("Load", l.Name); err != nil {
		return err
	}
	n.Loads = append(n.Loads, l)
	return nil
}

// AddGenerator adds a generator. A nil PMaxPU means full availability.
// PNomMax is used as given, so an extendable generator with PNomMax 0
// is not expanded; NewGenerator starts from +Inf.
func (n *Network) AddGenerator(g *Generator) error {
	if err := n.checkBus("Generator", g.Name, g.Bus); err != nil {
		return err
	}
	if g.PMaxPU == nil {
		g.PMaxPU = make([]float64, len(n.Snapshots))
		for i := range g.PMaxPU {
			g.PMaxPU[i] = 1
		}
	}
	if err := n.checkSeries("Generator", g.Name, "p_max_pu", g.PMaxPU); err != nil {
		return err
	}
	if err := checkCapacity("Generator", g.Name, g.PNom, g.PNomMin, maxOr(g.PNomMax, g.PNomExtendable)); err != nil {
		return err
	}
	if err := n.register("Generator", g.Name); err != nil {
		return err
	}
	n.AddCarriers(g.Carrier)
	n.Generators = append(n.Generators, g)
	return nil
}

// AddStorageUnit adds a storage unit. Zero efficiencies are kept as given,
// so a unit that cannot store must set EfficiencyStore to 0 explicitly and
// callers wanting lossless storage set both efficiencies to 1.
func (n *Network) AddStorageUnit(s *StorageUnit) error {
	if err := n.checkBus("StorageUnit", s.Name, s.Bus); err != nil {
		return err
	}
	if err := n.checkSeries("StorageUnit", s.Name, "inflow", s.Inflow); err != nil {
		return err
	}
	if err := checkCapacity("StorageUnit", s.Name, s.PNom, s.PNomMin, maxOr(s.PNomMax, s.PNomExtendable)); err != nil {
		return err
	}
	if s.MaxHours < 0 {
		return &ValidationError{Component: "StorageUnit", Name: s.Name, Field: "max_hours", Message: "must be non-negative"}
	}
	for field, v := range map[string]float64{
		"efficiency_store":    s.EfficiencyStore,
		"efficiency_dispatch": s.EfficiencyDispatch,
		"standing_loss":       s.StandingLoss,
	} {
		if v < 0 || v > 1 {
			return &ValidationError{Component: "StorageUnit", Name: s.Name, Field: field, Message: fmt.Sprintf("must be between 0 and 1, got %g", v)}
		}
	}
	if s.EfficiencyDispatch == 0 {
		return &ValidationError{Component: "StorageUnit", Name: s.Name, Field: "efficiency_dispatch", Message: "must be positive"}
	}
	if s.PMinPU > 0 || s.PMaxPU < 0 {
		return &ValidationError{Component: "StorageUnit", Name: s.Name, Field: "p_min_pu", Message: "p_min_pu must be <= 0 and p_max_pu >= 0"}
	}
	if err := n.register("StorageUnit", s.Name); err != nil {
		return err
	}
	n.AddCarriers(s.Carrier)
	n.StorageUnits = append(n.StorageUnits, s)
	return nil
}

// AddLine adds a line. SMaxPU defaults to 1; SNomMax is used as given.
func (n *Network) AddLine(l *Line) error {
	if err := n.checkBus("Line", l.Name, l.Bus0); err != nil {
		return err
	}
	if err := n.checkBus("Line", l.Name, l.Bus1); err != nil {
		return err
	}
	if l.Bus0 == l.Bus1 {
		return &ValidationError{Component: "Line", Name: l.Name, Field: "bus1", Message: "line must connect two different buses"}
	}
	if l.X <= 0 {
		return &ValidationError{Component: "Line", Name: l.Name, Field: "x", Message: "reactance must be positive"}
	}
	if l.SMaxPU == 0 {
		l.SMaxPU = 1
	}
	if err := checkCapacity("Line", l.Name, l.SNom, l.SNomMin, maxOr(l.SNomMax, l.SNomExtendable)); err != nil {
		return err
	}
	if err := n.register("Line", l.Name); err != nil {
		return err
	}
	n.Lines = append(n.Lines, l)
	return nil
}

func maxOr(max float64, extendable bool) float64 {
	if !extendable {
		return math.Inf(1)
	}
	return max
}

// Bus returns the named bus or nil.
func (n *Network) Bus(name string) *Bus {
	for _, b := range n.Buses {
		if b.Name == name {
			return b
		}
	}
	return nil
}

// Carrier returns the named carrier or nil.
func (n *Network) Carrier(name string) *Carrier {
	for _, c := range n.Carriers {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// Generator returns the named generator or nil.
func (n *Network) Generator(name string) *Generator {
	for _, g := range n.Generators {
		if g.Name == name {
			return g
		}
	}
	return nil
}

// StorageUnit returns the named storage unit or nil.
func (n *Network) StorageUnit(name string) *StorageUnit {
	for _, s := range n.StorageUnits {
		if s.Name == name {
			return s
		}
	}
	return nil
}

// HasExtendableLines reports whether any line capacity is optimised.
func (n *Network) HasExtendableLines() bool {
	for _, l := range n.Lines {
		if l.SNomExtendable {
			return true
		}
	}
	return false
}

// NewGenerator returns a generator with full availability and no upper
// bound on its extendable capacity.
func NewGenerator(name, bus, carrier string) *Generator {
	return &Generator{Name: name, Bus: bus, Carrier: carrier, PNomMax: math.Inf(1)}
}

// NewStorageUnit returns a lossless storage unit that can store and
// dispatch at full rated power.
func NewStorageUnit(name, bus, carrier string) *StorageUnit {
	return &StorageUnit{
		Name:               name,
		Bus:                bus,
		Carrier:            carrier,
		EfficiencyStore:    1,
		EfficiencyDispatch: 1,
		PMaxPU:             1,
		PMinPU:             -1,
		PNomMax:            math.Inf(1),
	}
}

// NewLine returns a line with reactance x and no upper bound on its
// extendable capacity.
func NewLine(name, bus0, bus1 string, x float64) *Line {
	return &Line{Name: name, Bus0: bus0, Bus1: bus1, X: x, SMaxPU: 1, SNomMax: math.Inf(1)}
}
