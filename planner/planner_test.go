package planner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/devskill-org/gridplan/historical"
	"github.com/devskill-org/gridplan/network"
	"github.com/devskill-org/gridplan/optimize"
	"github.com/devskill-org/gridplan/plotting"
	"github.com/devskill-org/gridplan/timeseries"
)

// testConfig solves a small wind-only network with the pure Go backend.
func testConfig(t *testing.T) *Config {
	t.Helper()
	c := DefaultConfig()
	c.Network.Carriers = []string{network.CarrierWind}
	c.Solving.Solver = "gonum"
	c.Solving.SolverOptions = nil
	c.Plotting.Frequency = "h"
	c.OutputDir = t.TempDir()
	c.Plotting.HistoricalDir = t.TempDir()
	require.NoError(t, c.Validate())
	return c
}

func testInputs() *Inputs {
	start := time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC)
	return &Inputs{
		Snapshots: network.HourlySnapshots(start, start.Add(2*time.Hour)),
		Load:      []float64{10, 20, 30},
		CFWind:    []float64{1, 0.5, 1},
	}
}

type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) record(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *eventRecorder) types() []EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventType, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

func TestPlannerSolve(t *testing.T) {
	p, err := New(testConfig(t), zap.NewNop())
	require.NoError(t, err)
	p.SetInputs(testInputs())

	rec := &eventRecorder{}
	p.Subscribe(rec.record)

	assert.Nil(t, p.Network())
	assert.False(t, p.Busy())

	report, err := p.Solve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", report.Status)
	assert.Equal(t, "optimal", report.Condition)
	assert.Same(t, report, p.Report())

	n := p.Network()
	require.NotNil(t, n)
	wind := n.Generator(network.CarrierWind)
	require.NotNil(t, wind)
	assert.InDelta(t, 40.0, wind.PNomOpt, 1e-4)
	assert.InDelta(t, 30.0, wind.P[2], 1e-4)

	assert.Equal(t, []EventType{EventSolveStarted, EventSolveFinished}, rec.types())

	// The network works on copies of the inputs.
	assert.Equal(t, []float64{10, 20, 30}, p.inputs.Load)
}

func TestPlannerSolveDefaultCarriers(t *testing.T) {
	c := testConfig(t)
	c.Network.Carriers = slices.Clone(network.DefaultCarriers)
	require.NoError(t, c.Validate())
	p, err := New(c, zap.NewNop())
	require.NoError(t, err)
	in := testInputs()
	in.CFSolar = []float64{0, 0.5, 0.2}
	p.SetInputs(in)

	report, err := p.Solve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", report.Status)
	assert.Equal(t, "optimal", report.Condition)

	n := p.Network()
	wind := n.Generator(network.CarrierWind)
	solar := n.Generator(network.CarrierSolar)
	battery := n.StorageUnit(network.CarrierBattery)
	require.NotNil(t, battery)
	for i, load := range in.Load {
		assert.InDelta(t, load, wind.P[i]+solar.P[i]+battery.P[i], 1e-6, "hour %d", i)
	}
	assert.Greater(t, wind.PNomOpt+solar.PNomOpt, 0.0)
}

func TestPlannerSolveInfeasible(t *testing.T) {
	c := testConfig(t)
	c.Network.PNomMaxWind = 10
	p, err := New(c, zap.NewNop())
	require.NoError(t, err)
	p.SetInputs(testInputs())

	rec := &eventRecorder{}
	p.Subscribe(rec.record)

	_, err = p.Solve(context.Background())
	require.ErrorIs(t, err, optimize.ErrInfeasible)
	assert.Nil(t, p.Network())
	assert.Equal(t, []EventType{EventSolveStarted, EventSolveFailed}, rec.types())
	assert.False(t, p.Busy())
}

func TestPlannerBusy(t *testing.T) {
	p, err := New(testConfig(t), zap.NewNop())
	require.NoError(t, err)
	p.busy.Store(true)
	_, err = p.Solve(context.Background())
	assert.ErrorIs(t, err, ErrBusy)
}

func TestPlannerRun(t *testing.T) {
	c := testConfig(t)
	c.Plotting.Format = "svg"
	p, err := New(c, zap.NewNop())
	require.NoError(t, err)
	p.SetInputs(testInputs())

	_, err = p.Export()
	assert.ErrorIs(t, err, plotting.ErrNotSolved)

	require.NoError(t, p.Run(context.Background()))

	data, err := os.ReadFile(filepath.Join(c.OutputDir, DispatchFile))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "snapshot;wind;el_load", lines[0])

	// Without a historical file and a hydro reservoir only the supply
	// charts are written.
	for _, name := range []string{plotting.ChartElectricitySupply, plotting.ChartTotalElectricitySupply} {
		assert.FileExists(t, filepath.Join(c.OutputDir, name+".svg"))
	}
	assert.NoFileExists(t, filepath.Join(c.OutputDir, plotting.ChartHistoricalDispatch+".svg"))
	assert.NoFileExists(t, filepath.Join(c.OutputDir, plotting.ChartHydroOperation+".svg"))
}

func TestPlannerRenderPlot(t *testing.T) {
	c := testConfig(t)
	p, err := New(c, zap.NewNop())
	require.NoError(t, err)
	p.SetInputs(testInputs())

	_, err = p.RenderPlot("pie")
	assert.ErrorIs(t, err, plotting.ErrUnknownChart)
	_, err = p.RenderPlot(plotting.ChartElectricitySupply)
	assert.ErrorIs(t, err, plotting.ErrNotSolved)
	_, err = p.RenderPlot(plotting.ChartHistoricalDispatch)
	assert.ErrorIs(t, err, plotting.ErrNoData)

	writeHistorical(t, c.Plotting.HistoricalDir)
	pl, err := p.RenderPlot(plotting.ChartHistoricalDispatch)
	require.NoError(t, err)
	assert.NotNil(t, pl)

	_, err = p.Solve(context.Background())
	require.NoError(t, err)
	_, err = p.RenderPlot(plotting.ChartHydroOperation)
	assert.ErrorIs(t, err, plotting.ErrNoData)
	for _, name := range []string{plotting.ChartElectricitySupply, plotting.ChartTotalElectricitySupply} {
		pl, err := p.RenderPlot(name)
		require.NoError(t, err, name)
		assert.NotNil(t, pl)
	}
}

// writeHistorical writes two complete years of hourly dispatch for Norway.
func writeHistorical(t *testing.T, dir string) {
	t.Helper()
	var s timeseries.Series
	for _, year := range []int{2015, 2016} {
		start := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
		for _, ts := range timeseries.HourlyRange(start, start.AddDate(1, 0, 0).Add(-time.Hour)) {
			s.Index = append(s.Index, ts)
			s.Values = append(s.Values, float64(year-2014))
		}
	}
	path, err := historical.DispatchPath(dir, "NO")
	require.NoError(t, err)
	require.NoError(t, historical.WriteDispatchFile(path, &s))
}

type fakeFetcher struct{}

func (fakeFetcher) FetchHydroDispatch(ctx context.Context, country string, years []int) (*timeseries.Series, error) {
	if country != "NO" {
		return nil, fmt.Errorf("unexpected country %s", country)
	}
	start := time.Date(years[0], 1, 1, 0, 0, 0, 0, time.UTC)
	index := timeseries.HourlyRange(start, start.AddDate(1, 0, 0).Add(-time.Hour))
	return timeseries.Constant("disp", index, 5000), nil
}

func TestPlannerFetchHistorical(t *testing.T) {
	c := testConfig(t)
	p, err := New(c, zap.NewNop())
	require.NoError(t, err)

	path, err := p.FetchHistorical(context.Background(), fakeFetcher{})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(c.Plotting.HistoricalDir, "dispatch_Norway_2015-2018.csv"), path)

	hist, err := p.Historical()
	require.NoError(t, err)
	assert.Equal(t, []int{2015}, hist.Years)
	assert.InDelta(t, 5.0, hist.Max().Values[0], 1e-9)
}

func TestNewEntsoeClient(t *testing.T) {
	_, err := NewEntsoeClient(EntsoeConfig{})
	assert.Error(t, err)

	client, err := NewEntsoeClient(EntsoeConfig{SecurityToken: "token", BaseURL: "http://localhost", Timeout: time.Second})
	require.NoError(t, err)
	assert.NotNil(t, client)
}

func TestLoadInputs(t *testing.T) {
	dir := t.TempDir()
	snapshots := network.DefaultSnapshots(2015)

	write := func(name string, value func(i int) float64) string {
		var b strings.Builder
		b.WriteString("utc_time;DK;NO\n")
		for i, ts := range snapshots {
			fmt.Fprintf(&b, "%s;1;%g\n", ts.Format(time.RFC3339), value(i))
		}
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
		return path
	}

	c := DefaultConfig().Network
	c.Carriers = []string{network.CarrierWind, network.CarrierSolar, network.CarrierHydro}
	c.LoadFile = write("load.csv", func(i int) float64 { return 100 + float64(i%24) })
	c.WindCFFile = write("wind.csv", func(int) float64 { return 0.3 })
	c.InflowFile = write("inflow.csv", func(int) float64 { return 50 })

	in, err := LoadInputs(c, zap.NewNop())
	require.NoError(t, err)
	require.Len(t, in.Snapshots, 8760)
	assert.Equal(t, 100.0, in.Load[0])
	assert.Equal(t, 123.0, in.Load[23])
	assert.Equal(t, 0.3, in.CFWind[100])
	assert.Equal(t, 50.0, in.Inflow[8759])

	// Oslo clear-sky profile: dark at midnight, light at noon in June.
	require.Len(t, in.CFSolar, 8760)
	june := snapshots[0].AddDate(0, 5, 20)
	idx := int(june.Sub(snapshots[0]) / time.Hour)
	assert.Zero(t, in.CFSolar[idx])
	assert.Greater(t, in.CFSolar[idx+11], 0.5)

	inflow := in.InflowSeries()
	require.NotNil(t, inflow)
	assert.Equal(t, 8760, inflow.Len())

	c.Country = "SE"
	_, err = LoadInputs(c, nil)
	assert.Error(t, err)

	c.Country = "NO"
	c.LoadFile = filepath.Join(dir, "missing.csv")
	_, err = LoadInputs(c, nil)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestPeriodicTask(t *testing.T) {
	var mu sync.Mutex
	runs := 0
	task := &periodicTask{
		name:     "test",
		interval: 10 * time.Millisecond,
		runFunc: func() {
			mu.Lock()
			runs++
			mu.Unlock()
		},
	}
	count := func() int {
		mu.Lock()
		defer mu.Unlock()
		return runs
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		task.run(context.Background(), stop, zap.NewNop())
	}()
	require.Eventually(t, func() bool { return count() >= 3 }, 2*time.Second, 5*time.Millisecond)
	close(stop)
	<-done

	// A zero interval runs once.
	runs = 0
	task.interval = 0
	task.run(context.Background(), make(chan struct{}), zap.NewNop())
	assert.Equal(t, 1, count())

	// Cancellation during the initial delay skips the run.
	runs = 0
	task.initialDelay = time.Hour
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	task.run(ctx, make(chan struct{}), zap.NewNop())
	assert.Equal(t, 0, count())
}

func TestPlannerStartStop(t *testing.T) {
	p, err := New(testConfig(t), zap.NewNop())
	require.NoError(t, err)
	p.SetInputs(testInputs())

	finished := make(chan Event, 4)
	p.Subscribe(func(e Event) {
		if e.Type == EventSolveFinished {
			finished <- e
		}
	})

	p.Start(context.Background())
	select {
	case e := <-finished:
		assert.Equal(t, "optimal", e.Condition)
	case <-time.After(30 * time.Second):
		t.Fatal("solve did not finish")
	}
	p.Stop()
	p.Stop()
	assert.NotNil(t, p.Network())
}
