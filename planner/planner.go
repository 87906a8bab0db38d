// Package planner ties the pieces of a planning run together: it loads the
// inputs, builds and solves the base network, stores and exports the
// results and renders the charts.
package planner

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/plot"

	"github.com/devskill-org/gridplan/historical"
	"github.com/devskill-org/gridplan/network"
	"github.com/devskill-org/gridplan/optimize"
	"github.com/devskill-org/gridplan/plotting"
	"github.com/devskill-org/gridplan/store"
	"github.com/devskill-org/gridplan/timeseries"
)

// ErrBusy is returned by Solve while another solve is running.
var ErrBusy = errors.New("a solve is already running")

// DispatchFile is the name of the exported dispatch table in OutputDir.
const DispatchFile = "dispatch.csv"

// EventType names a planner event.
type EventType string

const (
	EventSolveStarted      EventType = "solve_started"
	EventIterationFinished EventType = "iteration_finished"
	EventSolveFinished     EventType = "solve_finished"
	EventSolveFailed       EventType = "solve_failed"
)

// Event is published to subscribers during a solve.
type Event struct {
	Type      EventType `json:"type"`
	Time      time.Time `json:"time"`
	Iteration int       `json:"iteration,omitempty"`
	MsqDiff   float64   `json:"msq_diff,omitempty"`
	Status    string    `json:"status,omitempty"`
	Condition string    `json:"condition,omitempty"`
	Objective float64   `json:"objective"`
	Error     string    `json:"error,omitempty"`
}

// Planner runs solves and keeps the latest results.
type Planner struct {
	config *Config
	logger *zap.Logger
	store  *store.Store
	style  *plotting.Style
	freq   timeseries.Frequency

	mu      sync.RWMutex
	inputs  *Inputs
	network *network.Network
	report  *optimize.Report
	hist    *historical.Aligned

	busy atomic.Bool

	listenersMu sync.RWMutex
	listeners   []func(Event)

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a planner. The configuration must be valid.
func New(config *Config, logger *zap.Logger) (*Planner, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	freq, err := timeseries.ParseFrequency(config.Plotting.Frequency)
	if err != nil {
		return nil, err
	}
	return &Planner{
		config:   config,
		logger:   logger,
		style:    plotting.Layout(config.Plotting.FontSize).WithTechColors(config.Plotting.TechColors),
		freq:     freq,
		stopChan: make(chan struct{}),
	}, nil
}

// SetStore enables persistence of solved runs.
func (p *Planner) SetStore(s *store.Store) {
	p.store = s
}

// Subscribe registers fn for every event. fn must not block.
func (p *Planner) Subscribe(fn func(Event)) {
	p.listenersMu.Lock()
	defer p.listenersMu.Unlock()
	p.listeners = append(p.listeners, fn)
}

func (p *Planner) emit(e Event) {
	e.Time = time.Now().UTC()
	p.listenersMu.RLock()
	defer p.listenersMu.RUnlock()
	for _, fn := range p.listeners {
		fn(e)
	}
}

// Network returns the latest solved network, or nil.
func (p *Planner) Network() *network.Network {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.network
}

// Report returns the report of the latest solve, or nil.
func (p *Planner) Report() *optimize.Report {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.report
}

// Busy reports whether a solve is running.
func (p *Planner) Busy() bool {
	return p.busy.Load()
}

// SetInputs replaces the inputs read by the next solve.
func (p *Planner) SetInputs(in *Inputs) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inputs = in
}

func (p *Planner) loadInputs() (*Inputs, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.inputs != nil {
		return p.inputs, nil
	}
	in, err := LoadInputs(p.config.Network, p.logger)
	if err != nil {
		return nil, err
	}
	p.inputs = in
	return in, nil
}

// Solve builds the base network from the inputs, solves it and stores the
// run when a store is set. The network is kept even when the solve
// reports a non-optimal condition.
func (p *Planner) Solve(ctx context.Context) (*optimize.Report, error) {
	if !p.busy.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer p.busy.Store(false)

	report, err := p.solve(ctx)
	if err != nil {
		p.logger.Error("Solve failed", zap.Error(err))
		e := Event{Type: EventSolveFailed, Error: err.Error()}
		if report != nil {
			e.Status, e.Condition = report.Status, report.Condition
		}
		p.emit(e)
		return report, err
	}
	p.emit(Event{
		Type:      EventSolveFinished,
		Iteration: report.Iterations,
		Status:    report.Status,
		Condition: report.Condition,
		Objective: report.Objective,
	})
	return report, nil
}

func (p *Planner) solve(ctx context.Context) (*optimize.Report, error) {
	in, err := p.loadInputs()
	if err != nil {
		return nil, err
	}
	n, err := network.BuildBaseNetwork(in.BaseParams(p.config))
	if err != nil {
		return nil, fmt.Errorf("failed to build network: %w", err)
	}

	opts, err := p.config.SolveOptions()
	if err != nil {
		return nil, err
	}
	opts.Logger = p.logger
	opts.OnIteration = func(info optimize.IterationInfo) {
		p.logger.Info("Iteration finished",
			zap.Int("iteration", info.Iteration),
			zap.Float64("msq_diff", info.MsqDiff),
			zap.Float64("objective", info.Objective))
		p.emit(Event{
			Type:      EventIterationFinished,
			Iteration: info.Iteration,
			MsqDiff:   info.MsqDiff,
			Objective: info.Objective,
		})
	}

	if p.config.Solving.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.config.Solving.Timeout)
		defer cancel()
	}

	p.logger.Info("Solving network",
		zap.String("solver", opts.Solver.Name()),
		zap.Strings("carriers", p.config.Network.Carriers),
		zap.Int("snapshots", len(n.Snapshots)))
	p.emit(Event{Type: EventSolveStarted})

	start := time.Now()
	report, err := optimize.SolveNetwork(ctx, n, opts)
	if err != nil {
		return report, err
	}
	p.logger.Info("Network solved",
		zap.String("status", report.Status),
		zap.String("condition", report.Condition),
		zap.Float64("objective", report.Objective),
		zap.Int("iterations", report.Iterations),
		zap.Duration("duration", time.Since(start)))

	p.mu.Lock()
	p.network = n
	p.report = report
	p.mu.Unlock()

	if p.store != nil {
		run := store.Run{
			Name:       p.config.Storage.RunName,
			Status:     report.Status,
			Condition:  report.Condition,
			Objective:  report.Objective,
			Iterations: report.Iterations,
		}
		if err := p.store.SaveRun(ctx, run, n); err != nil {
			return report, fmt.Errorf("failed to save run: %w", err)
		}
	}
	return report, nil
}

// Export writes the dispatch of the latest solve to OutputDir.
func (p *Planner) Export() (string, error) {
	n := p.Network()
	if n == nil {
		return "", plotting.ErrNotSolved
	}
	if err := os.MkdirAll(p.config.OutputDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	path := filepath.Join(p.config.OutputDir, DispatchFile)
	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := n.WriteDispatchCSV(file); err != nil {
		file.Close()
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := file.Close(); err != nil {
		return "", err
	}
	p.logger.Info("Exported dispatch", zap.String("path", path))
	return path, nil
}

// Historical returns the historical dispatch of the configured country
// laid over the hours of the configured year. A missing dispatch file
// yields plotting.ErrNoData.
func (p *Planner) Historical() (*historical.Aligned, error) {
	p.mu.RLock()
	hist := p.hist
	p.mu.RUnlock()
	if hist != nil {
		return hist, nil
	}

	path, err := historical.DispatchPath(p.config.Plotting.HistoricalDir, p.config.Network.Country)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", plotting.ErrNoData, err)
	}
	s, err := historical.ReadDispatchCSV(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %v", plotting.ErrNoData, err)
	}
	if err != nil {
		return nil, err
	}
	hist, err = historical.AlignYears(s, p.config.Network.Year)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.hist = hist
	p.mu.Unlock()
	return hist, nil
}

// RenderPlot renders one of plotting.Charts from the latest results.
func (p *Planner) RenderPlot(name string) (*plot.Plot, error) {
	switch name {
	case plotting.ChartHistoricalDispatch:
		hist, err := p.Historical()
		if err != nil {
			return nil, err
		}
		return p.style.HistoricalDispatch(hist, p.freq)
	case plotting.ChartHydroOperation:
		n := p.Network()
		if n == nil {
			return nil, plotting.ErrNotSolved
		}
		if n.StorageUnit(network.CarrierHydro) == nil {
			return nil, fmt.Errorf("%w: network has no hydro reservoir", plotting.ErrNoData)
		}
		hist, err := p.Historical()
		if errors.Is(err, plotting.ErrNoData) {
			hist = nil
		} else if err != nil {
			return nil, err
		}
		p.mu.RLock()
		inflow := p.inputs.InflowSeries()
		p.mu.RUnlock()
		return p.style.HydroOperation(n, hist, inflow, p.freq)
	case plotting.ChartElectricitySupply:
		n := p.Network()
		if n == nil {
			return nil, plotting.ErrNotSolved
		}
		return p.style.ElectricitySupply(n, p.freq)
	case plotting.ChartTotalElectricitySupply:
		n := p.Network()
		if n == nil {
			return nil, plotting.ErrNotSolved
		}
		return p.style.TotalElectricitySupply(n)
	default:
		return nil, fmt.Errorf("%w: %s", plotting.ErrUnknownChart, name)
	}
}

// SavePlots renders every chart whose data is available to OutputDir and
// returns the written paths.
func (p *Planner) SavePlots() ([]string, error) {
	if err := os.MkdirAll(p.config.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	var paths []string
	for _, name := range plotting.Charts {
		pl, err := p.RenderPlot(name)
		if errors.Is(err, plotting.ErrNoData) {
			p.logger.Info("Skipping chart", zap.String("chart", name), zap.Error(err))
			continue
		}
		if err != nil {
			return paths, fmt.Errorf("failed to render %s: %w", name, err)
		}
		path := filepath.Join(p.config.OutputDir, name+"."+p.config.Plotting.Format)
		if err := plotting.Save(pl, path, p.config.Plotting.Width, p.config.Plotting.Height); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	p.logger.Info("Saved charts", zap.Strings("paths", paths))
	return paths, nil
}

// Run solves, exports the dispatch and saves the charts.
func (p *Planner) Run(ctx context.Context) error {
	if _, err := p.Solve(ctx); err != nil {
		return err
	}
	if _, err := p.Export(); err != nil {
		return err
	}
	if p.config.Plotting.Disabled {
		return nil
	}
	_, err := p.SavePlots()
	return err
}

// Start runs Run in the background, once or every Solving.Interval.
func (p *Planner) Start(ctx context.Context) {
	task := &periodicTask{
		name:     "Solve",
		interval: p.config.Solving.Interval,
		runFunc: func() {
			if err := p.Run(ctx); err != nil && !errors.Is(err, ErrBusy) {
				p.logger.Error("Planning run failed", zap.Error(err))
			}
		},
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		task.run(ctx, p.stopChan, p.logger)
	}()
}

// Stop stops the background task and waits for a running solve.
func (p *Planner) Stop() {
	p.stopOnce.Do(func() { close(p.stopChan) })
	p.wg.Wait()
}
