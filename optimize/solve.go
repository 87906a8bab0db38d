package optimize

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"strings"

	"go.uber.org/zap"

	"github.com/devskill-org/gridplan/network"
)

// Options controls SolveNetwork.
type Options struct {
	// Solver defaults to HiGHS with DefaultHighsOptions.
	Solver      Solver
	Formulation Formulation

	// ClipPMaxPU zeroes per-unit availabilities and inflows below it.
	ClipPMaxPU float64
	// LoadShedding adds an expensive generator at every AC bus.
	LoadShedding bool
	// NoisyCosts perturbs marginal and capital costs with seeded noise.
	NoisyCosts bool
	Seed       uint64

	SkipIterations  bool
	TrackIterations bool
	MinIterations   int
	MaxIterations   int
	MsqThreshold    float64

	ExtraFunctionality ExtraFunc

	Logger *zap.Logger
	// OnIteration is called after every transmission expansion iteration.
	OnIteration func(IterationInfo)
}

// DefaultOptions returns the reference solving configuration. Clipping,
// cost noise and load shedding are off; the model is solved as built.
func DefaultOptions() Options {
	return Options{
		Formulation:    Kirchhoff,
		ClipPMaxPU:     0,
		LoadShedding:   false,
		NoisyCosts:     false,
		Seed:           123,
		SkipIterations: true,
		MinIterations:  4,
		MaxIterations:  6,
		MsqThreshold:   0.05,
	}
}

// Load shedding parameters.
const (
	LoadSheddingCarrier = "load"
	LoadSheddingCost    = 1e5 // currency/MWh
)

// IterationInfo describes one finished transmission expansion iteration.
type IterationInfo struct {
	Iteration int
	MsqDiff   float64
	Objective float64
	SNomOpt   map[string]float64
}

// Report summarises a SolveNetwork call.
type Report struct {
	Status     string
	Condition  string
	Objective  float64
	Iterations int
	// Tracked holds the optimised line capacities of every iteration when
	// TrackIterations is set.
	Tracked []IterationInfo
}

// SolveNetwork prepares n, solves it once or with iterative transmission
// expansion and writes the solution back into n. A non-ok status is
// logged; an infeasible condition is returned as an error matching
// ErrInfeasible.
func SolveNetwork(ctx context.Context, n *network.Network, opts Options) (*Report, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Solver == nil {
		opts.Solver = &HighsSolver{Options: DefaultHighsOptions()}
	}
	if opts.MsqThreshold <= 0 {
		opts.MsqThreshold = 0.05
	}

	prepareNetwork(n, opts)

	skip := opts.SkipIterations
	if !n.HasExtendableLines() {
		skip = true
		logger.Info("No expandable lines found. Skipping iterative solving.")
	}

	report := &Report{}
	var err error
	if skip {
		report.Status, report.Condition, err = optimizeOnce(ctx, n, opts)
		report.Iterations = 1
	} else {
		err = optimizeIteratively(ctx, n, opts, logger, report)
	}
	if err != nil {
		return report, err
	}
	report.Objective = n.Objective

	if report.Status != "ok" {
		logger.Warn(fmt.Sprintf("Solving status '%s' with termination condition '%s'", report.Status, report.Condition),
			zap.String("solver", opts.Solver.Name()))
	}
	if containsInfeasible(report.Condition) {
		return report, &SolveError{Status: report.Status, Condition: report.Condition}
	}
	return report, nil
}

func containsInfeasible(condition string) bool {
	return strings.Contains(condition, "infeasible")
}

func optimizeOnce(ctx context.Context, n *network.Network, opts Options) (status, condition string, err error) {
	m, err := Build(n, opts.Formulation)
	if err != nil {
		return "", "", fmt.Errorf("failed to build model: %w", err)
	}
	if opts.ExtraFunctionality != nil {
		if err := opts.ExtraFunctionality(m); err != nil {
			return "", "", fmt.Errorf("extra functionality: %w", err)
		}
	}
	res, err := opts.Solver.Solve(ctx, m)
	if err != nil {
		return "", "", fmt.Errorf("%s solve: %w", opts.Solver.Name(), err)
	}
	n.Status, n.Condition = res.Status, res.Condition
	if res.HasSolution() {
		if err := writeResults(n, m, res); err != nil {
			return "", "", err
		}
	}
	return res.Status, res.Condition, nil
}

func optimizeIteratively(ctx context.Context, n *network.Network, opts Options, logger *zap.Logger, report *Report) error {
	prev := make([]float64, len(n.Lines))
	for i, l := range n.Lines {
		prev[i] = l.SNom
	}

	diff := opts.MsqThreshold
	iteration := 1
	for diff >= opts.MsqThreshold || iteration < opts.MinIterations {
		if iteration > opts.MaxIterations {
			break
		}
		if iteration > 1 {
			for i, l := range n.Lines {
				prev[i] = l.SNomOpt
			}
		}

		status, condition, err := optimizeOnce(ctx, n, opts)
		if err != nil {
			return err
		}
		report.Status, report.Condition, report.Iterations = status, condition, iteration
		if status != "ok" {
			return &SolveError{Status: status, Condition: condition, Iteration: iteration}
		}

		updateLineParams(n, prev)
		diff = msqDiff(n, prev)
		info := IterationInfo{Iteration: iteration, MsqDiff: diff, Objective: n.Objective, SNomOpt: lineCapacities(n)}
		if opts.TrackIterations {
			report.Tracked = append(report.Tracked, info)
		}
		logger.Info("Transmission expansion iteration finished",
			zap.Int("iteration", iteration),
			zap.Float64("msq_diff", diff),
			zap.Float64("objective", n.Objective))
		if opts.OnIteration != nil {
			opts.OnIteration(info)
		}
		iteration++
	}

	logger.Info("Running last solve with fixed line capacities")
	var fixed []int
	orig := make(map[int]float64)
	for i, l := range n.Lines {
		if l.SNomExtendable {
			fixed = append(fixed, i)
			orig[i] = l.SNom
			l.SNom = l.SNomOpt
			l.SNomExtendable = false
		}
	}
	status, condition, err := optimizeOnce(ctx, n, opts)
	for _, i := range fixed {
		n.Lines[i].SNom = orig[i]
		n.Lines[i].SNomExtendable = true
	}
	if err != nil {
		return err
	}
	report.Status, report.Condition = status, condition
	return nil
}

// updateLineParams scales the reactance of extendable lines with the
// change of their capacity, x /= s_nom_opt / s_nom_prev.
func updateLineParams(n *network.Network, prev []float64) {
	for i, l := range n.Lines {
		if !l.SNomExtendable || prev[i] <= 0 || l.SNomOpt <= 0 {
			continue
		}
		l.X /= l.SNomOpt / prev[i]
	}
}

// msqDiff is the root mean square change of line capacities relative to
// their mean.
func msqDiff(n *network.Network, prev []float64) float64 {
	if len(n.Lines) == 0 {
		return 0
	}
	var sq, mean float64
	for i, l := range n.Lines {
		d := prev[i] - l.SNomOpt
		sq += d * d
		mean += l.SNomOpt
	}
	sq /= float64(len(n.Lines))
	mean /= float64(len(n.Lines))
	if mean == 0 {
		return 0
	}
	return math.Sqrt(sq) / mean
}

func lineCapacities(n *network.Network) map[string]float64 {
	out := make(map[string]float64, len(n.Lines))
	for _, l := range n.Lines {
		out[l.Name] = l.SNomOpt
	}
	return out
}

// prepareNetwork applies clipping, load shedding and cost noise in place.
func prepareNetwork(n *network.Network, opts Options) {
	if clip := opts.ClipPMaxPU; clip > 0 {
		for _, g := range n.Generators {
			for t, v := range g.PMaxPU {
				if v < clip {
					g.PMaxPU[t] = 0
				}
			}
		}
		for _, s := range n.StorageUnits {
			for t, v := range s.Inflow {
				if v < clip {
					s.Inflow[t] = 0
				}
			}
		}
	}

	if opts.LoadShedding {
		addLoadShedding(n)
	}

	if opts.NoisyCosts {
		rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed))
		for _, g := range n.Generators {
			g.MarginalCost += 1e-2 + 2e-3*(rng.Float64()-0.5)
		}
		for _, s := range n.StorageUnits {
			s.MarginalCost += 1e-2 + 2e-3*(rng.Float64()-0.5)
		}
		for _, g := range n.Generators {
			if g.PNomExtendable {
				g.CapitalCost += 1e-1 + 1e-2*(rng.Float64()-0.5)
			}
		}
		for _, s := range n.StorageUnits {
			if s.PNomExtendable {
				s.CapitalCost += 1e-1 + 1e-2*(rng.Float64()-0.5)
			}
		}
		for _, l := range n.Lines {
			if l.SNomExtendable {
				l.CapitalCost += 1e-1 + 1e-2*(rng.Float64()-0.5)
			}
		}
	}
}

// addLoadShedding adds a generator "<bus> load" sized to the peak load of
// every AC bus that does not have one yet.
func addLoadShedding(n *network.Network) {
	peak := make(map[string]float64)
	for _, l := range n.Loads {
		for _, v := range l.PSet {
			peak[l.Bus] = math.Max(peak[l.Bus], v)
		}
	}
	for _, b := range n.Buses {
		name := b.Name + " load"
		if b.Carrier != "AC" || n.Generator(name) != nil {
			continue
		}
		g := network.NewGenerator(name, b.Name, LoadSheddingCarrier)
		g.PNom = math.Max(peak[b.Name], 1)
		g.MarginalCost = LoadSheddingCost
		// the bus exists and the name is unused
		_ = n.AddGenerator(g)
	}
}

// writeResults copies the solution of m into the components of n.
func writeResults(n *network.Network, m *Model, res *Result) error {
	values := func(block, name string) ([]float64, error) {
		v, err := m.Variable(block, name)
		if err != nil {
			return nil, err
		}
		out := make([]float64, len(v.Cols))
		for i, c := range v.Cols {
			out[i] = res.Values[c]
		}
		return out, nil
	}
	scalar := func(block, name string, fallback float64) float64 {
		v, err := values(block, name)
		if err != nil || len(v) == 0 {
			return fallback
		}
		return v[0]
	}

	var err error
	for _, g := range n.Generators {
		if g.P, err = values(GeneratorP, g.Name); err != nil {
			return err
		}
		g.PNomOpt = scalar(GeneratorPNom, g.Name, g.PNom)
	}
	for _, s := range n.StorageUnits {
		if s.PDispatch, err = values(StorageDispatch, s.Name); err != nil {
			return err
		}
		if s.PStore, err = values(StorageStore, s.Name); err != nil {
			return err
		}
		if s.StateOfCharge, err = values(StorageStateOfCharge, s.Name); err != nil {
			return err
		}
		s.Spill = make([]float64, len(n.Snapshots))
		if m.HasVariable(StorageSpill, s.Name) {
			if s.Spill, err = values(StorageSpill, s.Name); err != nil {
				return err
			}
		}
		s.P = make([]float64, len(s.PDispatch))
		for t := range s.P {
			s.P[t] = s.PDispatch[t] - s.PStore[t]
		}
		s.PNomOpt = scalar(StoragePNom, s.Name, s.PNom)
	}
	for _, l := range n.Lines {
		if l.P0, err = values(LineS, l.Name); err != nil {
			return err
		}
		l.SNomOpt = scalar(LineSNom, l.Name, l.SNom)
	}
	for b, bus := range n.Buses {
		bus.Marginal = nil
		if res.Duals == nil {
			continue
		}
		bus.Marginal = make([]float64, len(n.Snapshots))
		for t := range n.Snapshots {
			w := 1.0
			if t < len(n.SnapshotWeightings) && n.SnapshotWeightings[t] != 0 {
				w = n.SnapshotWeightings[t]
			}
			bus.Marginal[t] = res.Duals[m.balance[b][t]] / w
		}
	}
	n.Objective = res.Objective
	return nil
}
