package plotting

import (
	"errors"
	"fmt"
	"image/color"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/devskill-org/gridplan/historical"
	"github.com/devskill-org/gridplan/network"
	"github.com/devskill-org/gridplan/timeseries"
)

// HistoricalLabel is the legend label of the historical dispatch band.
const HistoricalLabel = "Historical (2015-2018)"

// Chart names, also used as output file stems.
const (
	ChartHistoricalDispatch     = "historical_dispatch"
	ChartHydroOperation         = "hydro_operation"
	ChartElectricitySupply      = "electricity_supply"
	ChartTotalElectricitySupply = "total_electricity_supply"
)

// Charts lists every chart name.
var Charts = []string{ChartHistoricalDispatch, ChartHydroOperation, ChartElectricitySupply, ChartTotalElectricitySupply}

var (
	// ErrNotSolved is returned when a chart needs dispatch results.
	ErrNotSolved = errors.New("network has no dispatch results")
	// ErrUnknownChart is returned for a chart name not in Charts.
	ErrUnknownChart = errors.New("unknown chart")
	// ErrNoData is returned when a chart's input data is not available.
	ErrNoData = errors.New("chart data not available")
)

func seriesXYs(s *timeseries.Series, shift time.Duration) plotter.XYs {
	xys := make(plotter.XYs, s.Len())
	for i, t := range s.Index {
		xys[i].X = unix(t.Add(shift))
		xys[i].Y = s.Values[i]
	}
	return xys
}

// band returns the polygon between lower and upper, which share an index.
func band(lower, upper *timeseries.Series, shift time.Duration) (*plotter.Polygon, error) {
	if lower.Len() == 0 || lower.Len() != upper.Len() {
		return nil, fmt.Errorf("band needs two non-empty series of equal length, got %d and %d", lower.Len(), upper.Len())
	}
	ring := seriesXYs(upper, shift)
	low := seriesXYs(lower, shift)
	for i := len(low) - 1; i >= 0; i-- {
		ring = append(ring, low[i])
	}
	poly, err := plotter.NewPolygon(ring)
	if err != nil {
		return nil, err
	}
	poly.Color = bandColor
	poly.LineStyle.Width = 0
	return poly, nil
}

func marker(freq timeseries.Frequency) draw.GlyphDrawer {
	if freq == timeseries.Monthly {
		return draw.CrossGlyph{}
	}
	return draw.CircleGlyph{}
}

// HistoricalDispatch draws the band between the hourly minimum and maximum
// of the aligned historical years, each resampled by sum.
func (s *Style) HistoricalDispatch(hist *historical.Aligned, freq timeseries.Frequency) (*plot.Plot, error) {
	low := hist.Min().Resample(freq)
	high := hist.Max().Resample(freq)

	p := s.newPlot()
	poly, err := band(low, high, 0)
	if err != nil {
		return nil, err
	}
	p.Add(poly)
	p.Legend.Add(HistoricalLabel, poly)

	p.X.Min = unix(low.Index[0])
	p.X.Max = unix(low.Index[low.Len()-1])
	p.Y.Label.Text = freq.Timescale() + " hydro dispatch [GWh]"
	monthTicks(p)
	return p, nil
}

// HydroOperation compares the modelled reservoir dispatch and the inflow
// (TWh) with the historical dispatch band. Monthly buckets are drawn four
// weeks early so they sit inside the month they sum.
func (s *Style) HydroOperation(n *network.Network, hist *historical.Aligned, inflow *timeseries.Series, freq timeseries.Frequency) (*plot.Plot, error) {
	hydro := n.StorageUnit(network.CarrierHydro)
	if hydro == nil {
		return nil, fmt.Errorf("network has no %s storage unit", network.CarrierHydro)
	}
	if !n.Solved() || len(hydro.P) != len(n.Snapshots) {
		return nil, ErrNotSolved
	}
	if inflow == nil || inflow.Len() == 0 {
		return nil, fmt.Errorf("inflow series is empty")
	}

	var shift time.Duration
	if freq == timeseries.Monthly {
		shift = -4 * 7 * 24 * time.Hour
	}

	p := s.newPlot()
	addGrid(p)

	dispatch := (&timeseries.Series{Index: n.Snapshots, Values: hydro.P}).Resample(freq).Scale(1e-6)
	in := inflow.Resample(freq).Scale(1e-6)
	for _, c := range []struct {
		label  string
		series *timeseries.Series
		color  color.Color
	}{
		{"Modeled dispatch", dispatch, dispatchColor},
		{"Inflow", in, inflowColor},
	} {
		line, points, err := plotter.NewLinePoints(seriesXYs(c.series, shift))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", c.label, err)
		}
		line.LineStyle.Color = c.color
		line.LineStyle.Width = vg.Points(1)
		points.GlyphStyle.Color = c.color
		points.GlyphStyle.Shape = marker(freq)
		points.GlyphStyle.Radius = vg.Points(2)
		p.Add(line, points)
		p.Legend.Add(c.label, line, points)
	}

	if hist != nil {
		poly, err := band(hist.Min().Resample(freq).Scale(1e-3), hist.Max().Resample(freq).Scale(1e-3), shift)
		if err != nil {
			return nil, fmt.Errorf("historical dispatch: %w", err)
		}
		p.Add(poly)
		p.Legend.Add("Historical dispatch", poly)
	}

	margin := 5 * 24 * time.Hour
	p.X.Min = unix(in.Index[0].Add(shift - margin))
	p.X.Max = unix(in.Index[in.Len()-1].Add(shift + margin))
	p.Y.Label.Text = "Norwegian reservoir \n " + freq.Timescale() + " aggregate [TWh]"
	monthTicks(p)
	return p, nil
}

// ElectricitySupply stacks the supply of every carrier in GWh. Storage
// contributes only its discharge.
func (s *Style) ElectricitySupply(n *network.Network, freq timeseries.Frequency) (*plot.Plot, error) {
	if !n.Solved() {
		return nil, ErrNotSolved
	}

	p := s.newPlot()
	addGrid(p)

	var lower []float64
	var xs []float64
	for i, c := range n.Carriers {
		supply := n.CarrierSupply(c.Name)
		if supply == nil {
			continue
		}
		r := (&timeseries.Series{Index: n.Snapshots, Values: supply}).Resample(freq).Scale(1e-3)
		if lower == nil {
			lower = make([]float64, r.Len())
			xs = make([]float64, r.Len())
			for j, t := range r.Index {
				xs[j] = unix(t)
			}
		}

		ring := make(plotter.XYs, 0, 2*len(xs))
		upper := make([]float64, len(xs))
		for j := range xs {
			upper[j] = lower[j] + r.Values[j]
			ring = append(ring, plotter.XY{X: xs[j], Y: upper[j]})
		}
		for j := len(xs) - 1; j >= 0; j-- {
			ring = append(ring, plotter.XY{X: xs[j], Y: lower[j]})
		}
		poly, err := plotter.NewPolygon(ring)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", c.Name, err)
		}
		poly.Color = s.techColor(c.Name, i)
		poly.LineStyle.Width = 0
		p.Add(poly)
		p.Legend.Add(c.Name, poly)
		lower = upper
	}
	if lower == nil {
		return nil, fmt.Errorf("no carrier has supply")
	}

	p.X.Min = unix(n.Snapshots[0])
	p.X.Max = unix(n.Snapshots[len(n.Snapshots)-1])
	p.Y.Label.Text = freq.Timescale() + " energy supply [GWh]"
	monthTicks(p)
	return p, nil
}

// TotalElectricitySupply draws one stacked bar of the yearly energy (TWh)
// of every generator plus the net output of the hydro reservoir.
func (s *Style) TotalElectricitySupply(n *network.Network) (*plot.Plot, error) {
	if !n.Solved() {
		return nil, ErrNotSolved
	}

	type part struct {
		name  string
		value float64
	}
	var parts []part
	for _, g := range n.Generators {
		parts = append(parts, part{g.Name, g.Energy(n.SnapshotWeightings) / 1e6})
	}
	if hydro := n.StorageUnit(network.CarrierHydro); hydro != nil && len(hydro.P) > 0 {
		var total float64
		for i, v := range hydro.P {
			total += v * n.SnapshotWeightings[i]
		}
		parts = append(parts, part{hydro.Name, total / 1e6})
	}
	if len(parts) == 0 {
		return nil, fmt.Errorf("no generators to plot")
	}

	p := s.newPlot()
	var below *plotter.BarChart
	for i, pt := range parts {
		bar, err := plotter.NewBarChart(plotter.Values{pt.value}, vg.Points(80))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", pt.name, err)
		}
		bar.Color = s.techColor(pt.name, i)
		bar.LineStyle.Width = 0
		if below != nil {
			bar.StackOn(below)
		}
		p.Add(bar)
		p.Legend.Add(pt.name, bar)
		below = bar
	}
	p.X.Tick.Marker = plot.ConstantTicks(nil)
	p.Y.Label.Text = "TWh"
	return p, nil
}
