package network

import (
	"fmt"
	"io"
	"math"

	"github.com/devskill-org/gridplan/timeseries"
)

// Energy returns the generated energy in MWh over all snapshots.
func (g *Generator) Energy(weightings []float64) float64 {
	return weightedSum(g.P, weightings)
}

// DischargeSeries returns the positive part of P, i.e. the power the unit
// feeds into the bus.
func (s *StorageUnit) DischargeSeries() []float64 {
	out := make([]float64, len(s.P))
	for i, v := range s.P {
		out[i] = math.Max(v, 0)
	}
	return out
}

func weightedSum(values, weightings []float64) float64 {
	var total float64
	for i, v := range values {
		w := 1.0
		if i < len(weightings) {
			w = weightings[i]
		}
		total += v * w
	}
	return total
}

// Solved reports whether dispatch results are available.
func (n *Network) Solved() bool {
	return n.Status != "" && len(n.Snapshots) > 0 && (len(n.Generators) == 0 || len(n.Generators[0].P) == len(n.Snapshots))
}

// CarrierSupply returns the supply series of a carrier in MW: the sum of
// its generators' output and of its storage units' positive output.
func (n *Network) CarrierSupply(carrier string) []float64 {
	out := make([]float64, len(n.Snapshots))
	found := false
	for _, g := range n.Generators {
		if g.Carrier != carrier || len(g.P) != len(out) {
			continue
		}
		found = true
		for i, v := range g.P {
			out[i] += v
		}
	}
	for _, s := range n.StorageUnits {
		if s.Carrier != carrier || len(s.P) != len(out) {
			continue
		}
		found = true
		for i, v := range s.DischargeSeries() {
			out[i] += v
		}
	}
	if !found {
		return nil
	}
	return out
}

// Supply returns the supply series of every carrier that has one.
func (n *Network) Supply() map[string][]float64 {
	out := make(map[string][]float64, len(n.Carriers))
	for _, c := range n.Carriers {
		if s := n.CarrierSupply(c.Name); s != nil {
			out[c.Name] = s
		}
	}
	return out
}

// Capacity is the optimised capacity of one component
type Capacity struct {
	Component string  `json:"component"`
	Name      string  `json:"name"`
	Carrier   string  `json:"carrier"`
	PNomOpt   float64 `json:"p_nom_opt"`
	Energy    float64 `json:"energy"` // MWh supplied over all snapshots
}

// Capacities lists the optimised capacities of generators, storage units
// and lines.
func (n *Network) Capacities() []Capacity {
	var out []Capacity
	for _, g := range n.Generators {
		out = append(out, Capacity{Component: "Generator", Name: g.Name, Carrier: g.Carrier, PNomOpt: g.PNomOpt, Energy: g.Energy(n.SnapshotWeightings)})
	}
	for _, s := range n.StorageUnits {
		out = append(out, Capacity{Component: "StorageUnit", Name: s.Name, Carrier: s.Carrier, PNomOpt: s.PNomOpt, Energy: weightedSum(s.DischargeSeries(), n.SnapshotWeightings)})
	}
	for _, l := range n.Lines {
		out = append(out, Capacity{Component: "Line", Name: l.Name, Carrier: "AC", PNomOpt: l.SNomOpt})
	}
	return out
}

// DispatchFrame returns the dispatch of every generator and storage unit
// as a frame indexed by snapshot.
func (n *Network) DispatchFrame() (*timeseries.Frame, error) {
	frame := timeseries.NewFrame(n.Snapshots)
	for _, g := range n.Generators {
		if err := frame.Set(g.Name, g.P); err != nil {
			return nil, fmt.Errorf("generator %s: %w", g.Name, err)
		}
	}
	for _, s := range n.StorageUnits {
		if err := frame.Set(s.Name, s.P); err != nil {
			return nil, fmt.Errorf("storage unit %s: %w", s.Name, err)
		}
	}
	for _, l := range n.Loads {
		if err := frame.Set(l.Name, l.PSet); err != nil {
			return nil, fmt.Errorf("load %s: %w", l.Name, err)
		}
	}
	return frame, nil
}

// WriteDispatchCSV writes the dispatch frame as a ';'-separated table.
func (n *Network) WriteDispatchCSV(w io.Writer) error {
	if !n.Solved() {
		return fmt.Errorf("network has not been solved")
	}
	frame, err := n.DispatchFrame()
	if err != nil {
		return err
	}
	return timeseries.WriteCSV(w, frame, ';', "snapshot")
}
