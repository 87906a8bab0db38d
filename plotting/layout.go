// Package plotting renders the solved network and the historical hydro
// dispatch as charts.
package plotting

import (
	"fmt"
	"image/color"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// Default figure size in inches.
const (
	DefaultWidth  = 10.0
	DefaultHeight = 5.0
)

// DefaultTechColors are the carrier colours used when none are configured.
var DefaultTechColors = map[string]string{
	"wind":    "#235ebc",
	"solar":   "#f9d002",
	"battery": "#ace37f",
	"hydro":   "#298c81",
	"load":    "#dd2e23",
}

var (
	dispatchColor = mustParseHexColor("#003D73")
	inflowColor   = mustParseHexColor("#EE7F00")
	bandColor     = color.NRGBA{R: 0x1f, G: 0x77, B: 0xb4, A: 0x80}
)

// Style is the look shared by every chart.
type Style struct {
	FontSize   vg.Length
	TechColors map[string]string
}

// Layout returns a style with all axis, tick and legend text at fs points.
func Layout(fs float64) *Style {
	return &Style{FontSize: vg.Points(fs), TechColors: DefaultTechColors}
}

// WithTechColors returns a copy using the given carrier colours. Carriers
// missing from colors keep their default.
func (s *Style) WithTechColors(colors map[string]string) *Style {
	merged := make(map[string]string, len(DefaultTechColors)+len(colors))
	for k, v := range DefaultTechColors {
		merged[k] = v
	}
	for k, v := range colors {
		merged[k] = v
	}
	return &Style{FontSize: s.FontSize, TechColors: merged}
}

func (s *Style) newPlot() *plot.Plot {
	p := plot.New()
	if s.FontSize > 0 {
		p.Title.TextStyle.Font.Size = s.FontSize
		p.X.Label.TextStyle.Font.Size = s.FontSize
		p.Y.Label.TextStyle.Font.Size = s.FontSize
		p.X.Tick.Label.Font.Size = s.FontSize
		p.Y.Tick.Label.Font.Size = s.FontSize
		p.Legend.TextStyle.Font.Size = s.FontSize
	}
	p.Legend.Top = true
	return p
}

// addGrid adds grid lines; it must be called before any data is added so
// the grid is drawn underneath.
func addGrid(p *plot.Plot) {
	grid := plotter.NewGrid()
	grid.Vertical.Color = color.Gray{Y: 0xb0}
	grid.Horizontal.Color = color.Gray{Y: 0xb0}
	p.Add(grid)
}

// monthTicks labels the time axis with month abbreviations.
func monthTicks(p *plot.Plot) {
	p.X.Tick.Marker = plot.TimeTicks{Format: "Jan", Time: plot.UTCUnixTime}
}

// techColor returns the configured colour of a carrier, falling back to the
// default palette.
func (s *Style) techColor(name string, i int) color.Color {
	if hex, ok := s.TechColors[name]; ok {
		if c, err := ParseHexColor(hex); err == nil {
			return c
		}
	}
	return plotutil.Color(i)
}

// ParseHexColor parses #RRGGBB or #RRGGBBAA.
func ParseHexColor(s string) (color.NRGBA, error) {
	hex := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(hex) != 6 && len(hex) != 8 {
		return color.NRGBA{}, fmt.Errorf("invalid colour %q", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("invalid colour %q: %w", s, err)
	}
	if len(hex) == 6 {
		v = v<<8 | 0xff
	}
	return color.NRGBA{R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), A: uint8(v)}, nil
}

func mustParseHexColor(s string) color.NRGBA {
	c, err := ParseHexColor(s)
	if err != nil {
		panic(err)
	}
	return c
}

func unix(t time.Time) float64 {
	return float64(t.Unix())
}

// Save writes p to path; the format follows the file extension.
func Save(p *plot.Plot, path string, width, height float64) error {
	if filepath.Ext(path) == "" {
		return fmt.Errorf("cannot infer image format of %s", path)
	}
	if err := p.Save(vg.Length(width)*vg.Inch, vg.Length(height)*vg.Inch, path); err != nil {
		return fmt.Errorf("failed to save plot to %s: %w", path, err)
	}
	return nil
}

// Encode writes p to w in the given format (png, svg, pdf, ...).
func Encode(w io.Writer, p *plot.Plot, format string, width, height float64) error {
	wt, err := p.WriterTo(vg.Length(width)*vg.Inch, vg.Length(height)*vg.Inch, format)
	if err != nil {
		return fmt.Errorf("failed to render plot: %w", err)
	}
	_, err = wt.WriteTo(w)
	return err
}
