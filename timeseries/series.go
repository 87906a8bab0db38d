// Package timeseries holds the hourly series used as model inputs and
// outputs, together with the CSV and resampling glue the planner and the
// plotting code need.
package timeseries

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// Series is a sequence of values indexed by timestamps in ascending order.
type Series struct {
	Name   string
	Index  []time.Time
	Values []float64
}

// NewSeries creates a series and checks that index and values line up.
func NewSeries(name string, index []time.Time, values []float64) (*Series, error) {
	if len(index) != len(values) {
		return nil, fmt.Errorf("series %q: index has %d entries, values has %d", name, len(index), len(values))
	}
	return &Series{Name: name, Index: index, Values: values}, nil
}

// Constant returns a series with the same value at every timestamp.
func Constant(name string, index []time.Time, value float64) *Series {
	values := make([]float64, len(index))
	for i := range values {
		values[i] = value
	}
	return &Series{Name: name, Index: index, Values: values}
}

// Len returns the number of points.
func (s *Series) Len() int {
	return len(s.Values)
}

// Copy returns a deep copy.
func (s *Series) Copy() *Series {
	index := make([]time.Time, len(s.Index))
	copy(index, s.Index)
	values := make([]float64, len(s.Values))
	copy(values, s.Values)
	return &Series{Name: s.Name, Index: index, Values: values}
}

// Scale returns a copy with every value multiplied by factor.
func (s *Series) Scale(factor float64) *Series {
	out := s.Copy()
	for i := range out.Values {
		out.Values[i] *= factor
	}
	return out
}

// ClipLower returns a copy with values below min replaced by min.
func (s *Series) ClipLower(min float64) *Series {
	out := s.Copy()
	for i, v := range out.Values {
		if v < min {
			out.Values[i] = min
		}
	}
	return out
}

// Sum returns the sum of all values.
func (s *Series) Sum() float64 {
	var total float64
	for _, v := range s.Values {
		total += v
	}
	return total
}

// Max returns the largest value, or NaN for an empty series.
func (s *Series) Max() float64 {
	if len(s.Values) == 0 {
		return math.NaN()
	}
	m := s.Values[0]
	for _, v := range s.Values[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

// Shift returns a copy with every timestamp moved by d.
func (s *Series) Shift(d time.Duration) *Series {
	out := s.Copy()
	for i := range out.Index {
		out.Index[i] = out.Index[i].Add(d)
	}
	return out
}

// Align returns the values of s at the given timestamps. Every timestamp
// must be present in s.
func (s *Series) Align(index []time.Time) ([]float64, error) {
	lookup := make(map[int64]float64, len(s.Index))
	for i, t := range s.Index {
		key := t.Unix()
		if _, dup := lookup[key]; dup {
			continue
		}
		lookup[key] = s.Values[i]
	}

	out := make([]float64, len(index))
	for i, t := range index {
		v, ok := lookup[t.Unix()]
		if !ok {
			return nil, fmt.Errorf("series %q has no value at %s", s.Name, t.UTC().Format(time.RFC3339))
		}
		out[i] = v
	}
	return out, nil
}

// Frame is a set of named series sharing one index.
type Frame struct {
	Index   []time.Time
	Columns []string
	data    map[string][]float64
}

// NewFrame creates an empty frame over index.
func NewFrame(index []time.Time) *Frame {
	return &Frame{Index: index, data: make(map[string][]float64)}
}

// Set adds or replaces a column.
func (f *Frame) Set(name string, values []float64) error {
	if len(values) != len(f.Index) {
		return fmt.Errorf("column %q has %d values, frame index has %d", name, len(values), len(f.Index))
	}
	if _, ok := f.data[name]; !ok {
		f.Columns = append(f.Columns, name)
	}
	f.data[name] = values
	return nil
}

// Column returns the named column as a series.
func (f *Frame) Column(name string) (*Series, error) {
	values, ok := f.data[name]
	if !ok {
		return nil, fmt.Errorf("column %q not found (have %v)", name, f.Columns)
	}
	return &Series{Name: name, Index: f.Index, Values: values}, nil
}

// HasColumn reports whether the frame contains the named column.
func (f *Frame) HasColumn(name string) bool {
	_, ok := f.data[name]
	return ok
}

// MinAcross returns the row-wise minimum over all columns.
func (f *Frame) MinAcross() *Series {
	return f.reduce("min", math.Min)
}

// MaxAcross returns the row-wise maximum over all columns.
func (f *Frame) MaxAcross() *Series {
	return f.reduce("max", math.Max)
}

func (f *Frame) reduce(name string, fn func(a, b float64) float64) *Series {
	values := make([]float64, len(f.Index))
	for i := range values {
		values[i] = math.NaN()
		for _, col := range f.Columns {
			v := f.data[col][i]
			if math.IsNaN(v) {
				continue
			}
			if math.IsNaN(values[i]) {
				values[i] = v
				continue
			}
			values[i] = fn(values[i], v)
		}
	}
	return &Series{Name: name, Index: f.Index, Values: values}
}

// HourlyRange returns hourly timestamps from start to end inclusive.
func HourlyRange(start, end time.Time) []time.Time {
	if end.Before(start) {
		return nil
	}
	n := int(end.Sub(start)/time.Hour) + 1
	index := make([]time.Time, n)
	for i := range index {
		index[i] = start.Add(time.Duration(i) * time.Hour)
	}
	return index
}

// SortByTime sorts the series in place by timestamp, keeping values paired.
func (s *Series) SortByTime() {
	sort.Stable(byTime{s})
}

type byTime struct{ s *Series }

func (b byTime) Len() int           { return len(b.s.Index) }
func (b byTime) Less(i, j int) bool { return b.s.Index[i].Before(b.s.Index[j]) }
func (b byTime) Swap(i, j int) {
	b.s.Index[i], b.s.Index[j] = b.s.Index[j], b.s.Index[i]
	b.s.Values[i], b.s.Values[j] = b.s.Values[j], b.s.Values[i]
}
