// Package historical reads, aligns and stores the observed hydro dispatch
// the modelled reservoir operation is compared against.
package historical

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/devskill-org/gridplan/timeseries"
)

// DispatchColumn is the data column of a dispatch file.
const DispatchColumn = "disp"

// Years covered by the dispatch files.
const (
	FirstYear = 2015
	LastYear  = 2018
)

// LongCountryName maps the country codes used in the load data to the
// names used in the dispatch file names.
var LongCountryName = map[string]string{
	"AT": "Austria",
	"CH": "Switzerland",
	"DE": "Germany",
	"DK": "Denmark",
	"ES": "Spain",
	"FI": "Finland",
	"FR": "France",
	"IT": "Italy",
	"NO": "Norway",
	"PT": "Portugal",
	"SE": "Sweden",
}

// DispatchPath returns the dispatch file of a country inside dir.
func DispatchPath(dir, country string) (string, error) {
	name, ok := LongCountryName[strings.ToUpper(country)]
	if !ok {
		return "", fmt.Errorf("no long name known for country %q", country)
	}
	return filepath.Join(dir, fmt.Sprintf("dispatch_%s_%d-%d.csv", name, FirstYear, LastYear)), nil
}

// ReadDispatchCSV reads a comma separated dispatch file.
func ReadDispatchCSV(path string) (*timeseries.Series, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dispatch file: %w", err)
	}
	defer file.Close()

	s, err := ReadDispatch(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// ReadDispatch reads dispatch CSV data whose first column holds the
// timestamps.
func ReadDispatch(r io.Reader) (*timeseries.Series, error) {
	frame, err := timeseries.ReadCSV(r, ',')
	if err != nil {
		return nil, err
	}
	return frame.Column(DispatchColumn)
}

// WriteDispatchCSV writes s in the format ReadDispatch reads.
func WriteDispatchCSV(w io.Writer, s *timeseries.Series) error {
	frame := timeseries.NewFrame(s.Index)
	if err := frame.Set(DispatchColumn, s.Values); err != nil {
		return err
	}
	return timeseries.WriteCSV(w, frame, ',', "time")
}

// WriteDispatchFile writes s to path, creating the parent directory.
func WriteDispatchFile(path string, s *timeseries.Series) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create dispatch file: %w", err)
	}
	if err := WriteDispatchCSV(file, s); err != nil {
		file.Close()
		return fmt.Errorf("failed to write dispatch file: %w", err)
	}
	return file.Close()
}

// Aligned holds one column per historical year laid over the hours of a
// reference year.
type Aligned struct {
	*timeseries.Frame
	Years []int
}

// Min returns the hourly minimum across years.
func (a *Aligned) Min() *timeseries.Series {
	return a.MinAcross()
}

// Max returns the hourly maximum across years.
func (a *Aligned) Max() *timeseries.Series {
	return a.MaxAcross()
}

func isLeapYear(year int) bool {
	return year%4 == 0 && year%100 != 0
}

// AlignYears splits s by calendar year and places every year on the hourly
// index of refYear. Within a year the first of duplicated timestamps is
// kept and 29 February is dropped in leap years, so each year must then
// have exactly as many hours as the reference year.
func AlignYears(s *timeseries.Series, refYear int) (*Aligned, error) {
	start := time.Date(refYear, 1, 1, 0, 0, 0, 0, time.UTC)
	index := timeseries.HourlyRange(start, start.AddDate(1, 0, 0).Add(-time.Hour))

	values := make(map[int][]float64)
	seen := make(map[int64]bool, len(s.Index))
	for i, t := range s.Index {
		if seen[t.Unix()] {
			continue
		}
		seen[t.Unix()] = true
		year := t.Year()
		if isLeapYear(year) && t.Month() == time.February && t.Day() == 29 {
			continue
		}
		values[year] = append(values[year], s.Values[i])
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("series %q is empty", s.Name)
	}

	years := make([]int, 0, len(values))
	for year := range values {
		years = append(years, year)
	}
	sort.Ints(years)

	out := &Aligned{Frame: timeseries.NewFrame(index), Years: years}
	for _, year := range years {
		if len(values[year]) != len(index) {
			return nil, fmt.Errorf("year %d has %d hourly values, reference year %d has %d",
				year, len(values[year]), refYear, len(index))
		}
		if err := out.Set(strconv.Itoa(year), values[year]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Fetcher downloads the hourly hydro dispatch of a country.
type Fetcher interface {
	FetchHydroDispatch(ctx context.Context, country string, years []int) (*timeseries.Series, error)
}

// Fetch downloads the dispatch of every year from FirstYear to LastYear
// and writes it to the country's dispatch file in dir. The fetcher returns
// MW; dispatch files hold GWh per hour.
func Fetch(ctx context.Context, f Fetcher, dir, country string) (string, error) {
	path, err := DispatchPath(dir, country)
	if err != nil {
		return "", err
	}
	years := make([]int, 0, LastYear-FirstYear+1)
	for y := FirstYear; y <= LastYear; y++ {
		years = append(years, y)
	}
	s, err := f.FetchHydroDispatch(ctx, country, years)
	if err != nil {
		return "", fmt.Errorf("failed to fetch hydro dispatch for %s: %w", country, err)
	}
	if err := WriteDispatchFile(path, s.Scale(1e-3)); err != nil {
		return "", err
	}
	return path, nil
}
