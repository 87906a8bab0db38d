package optimize

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"github.com/devskill-org/gridplan/network"
)

// busGraph is the undirected line graph of a network. Parallel lines share
// one edge; lines[edgeKey] lists every line on it.
type busGraph struct {
	g     *simple.UndirectedGraph
	buses map[string]int64
	lines map[[2]int64][]int
}

func edgeKey(a, b int64) [2]int64 {
	if a > b {
		a, b = b, a
	}
	return [2]int64{a, b}
}

func newBusGraph(n *network.Network) *busGraph {
	bg := &busGraph{
		g:     simple.NewUndirectedGraph(),
		buses: make(map[string]int64, len(n.Buses)),
		lines: make(map[[2]int64][]int),
	}
	for i, b := range n.Buses {
		bg.buses[b.Name] = int64(i)
		bg.g.AddNode(simple.Node(i))
	}
	for i, l := range n.Lines {
		a, b := bg.buses[l.Bus0], bg.buses[l.Bus1]
		key := edgeKey(a, b)
		if len(bg.lines[key]) == 0 {
			bg.g.SetEdge(bg.g.NewEdge(simple.Node(a), simple.Node(b)))
		}
		bg.lines[key] = append(bg.lines[key], i)
	}
	return bg
}

// subNetworks returns the connected components, each sorted by bus index.
func (bg *busGraph) subNetworks() [][]int64 {
	var out [][]int64
	for _, cc := range topo.ConnectedComponents(bg.g) {
		ids := make([]int64, len(cc))
		for i, node := range cc {
			ids[i] = node.ID()
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		out = append(out, ids)
	}
	sort.Slice(out, func(i, j int) bool { return out[i][0] < out[j][0] })
	return out
}

// cycles returns a cycle basis of the line graph as closed walks of lines
// with orientation signs: +1 when the walk follows bus0 to bus1.
func (bg *busGraph) cycles(n *network.Network) [][]orientedLine {
	var out [][]orientedLine

	// Parallel lines form cycles of length two.
	keys := make([][2]int64, 0, len(bg.lines))
	for k := range bg.lines {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i][0] != keys[j][0] {
			return keys[i][0] < keys[j][0]
		}
		return keys[i][1] < keys[j][1]
	})
	for _, k := range keys {
		ls := bg.lines[k]
		first := ls[0]
		for _, other := range ls[1:] {
			sign := 1.0
			if n.Lines[other].Bus0 != n.Lines[first].Bus0 {
				sign = -1
			}
			out = append(out, []orientedLine{{line: first, sign: 1}, {line: other, sign: -sign}})
		}
	}

	for _, cycle := range topo.UndirectedCyclesIn(bg.g) {
		nodes := openCycle(cycle)
		if len(nodes) < 3 {
			continue
		}
		walk := make([]orientedLine, 0, len(nodes))
		for i := range nodes {
			from, to := nodes[i].ID(), nodes[(i+1)%len(nodes)].ID()
			line := bg.lines[edgeKey(from, to)][0]
			sign := 1.0
			if bg.buses[n.Lines[line].Bus0] != from {
				sign = -1
			}
			walk = append(walk, orientedLine{line: line, sign: sign})
		}
		out = append(out, walk)
	}
	return out
}

// openCycle drops the closing node of a cycle that repeats its start.
func openCycle(nodes []graph.Node) []graph.Node {
	if len(nodes) > 1 && nodes[0].ID() == nodes[len(nodes)-1].ID() {
		return nodes[:len(nodes)-1]
	}
	return nodes
}

type orientedLine struct {
	line int
	sign float64
}

// addKirchhoffConstraints adds, for every cycle and snapshot,
// sum(sign * x * s) = 0.
func addKirchhoffConstraints(m *Model, n *network.Network) error {
	bg := newBusGraph(n)
	flows := make([]*Variable, len(n.Lines))
	for i, l := range n.Lines {
		v, err := m.Variable(LineS, l.Name)
		if err != nil {
			return err
		}
		flows[i] = v
	}
	for _, cycle := range bg.cycles(n) {
		for t := range m.Snapshots {
			var e LinExpr
			for _, ol := range cycle {
				e.AddTerm(flows[ol.line].Cols[t], ol.sign*n.Lines[ol.line].X)
			}
			if _, err := m.AddConstraint("Kirchhoff-Voltage-Law", e, Equal, 0); err != nil {
				return err
			}
		}
	}
	return nil
}

// addAngleConstraints adds voltage angle columns and, per line and
// snapshot, x * s - theta0 + theta1 = 0. The first bus of every
// sub-network is the slack with a fixed angle of zero.
func addAngleConstraints(m *Model, n *network.Network) error {
	bg := newBusGraph(n)
	slack := make(map[int64]bool)
	for _, sub := range bg.subNetworks() {
		slack[sub[0]] = true
	}
	angles := make([]*Variable, len(n.Buses))
	for i, b := range n.Buses {
		fixed := slack[int64(i)]
		angles[i] = m.addVariable(BusVAng, b.Name, func(int) (float64, float64) {
			if fixed {
				return 0, 0
			}
			return math.Inf(-1), math.Inf(1)
		}, nil)
	}
	for _, l := range n.Lines {
		s, err := m.Variable(LineS, l.Name)
		if err != nil {
			return err
		}
		b0, b1 := bg.buses[l.Bus0], bg.buses[l.Bus1]
		for t := range m.Snapshots {
			var e LinExpr
			e.AddTerm(s.Cols[t], l.X)
			e.AddTerm(angles[b0].Cols[t], -1)
			e.AddTerm(angles[b1].Cols[t], 1)
			if _, err := m.AddConstraint("Line-fix-s", e, Equal, 0); err != nil {
				return fmt.Errorf("line %s: %w", l.Name, err)
			}
		}
	}
	return nil
}
