package timeseries

import (
	"fmt"
	"math"
	"time"
)

// Frequency is a resampling rule.
type Frequency string

const (
	Hourly  Frequency = "h"
	Daily   Frequency = "d"
	Weekly  Frequency = "w"
	Monthly Frequency = "m"
)

// ParseFrequency accepts h, d, w or m (case-insensitive).
func ParseFrequency(s string) (Frequency, error) {
	switch s {
	case "h", "H":
		return Hourly, nil
	case "d", "D":
		return Daily, nil
	case "w", "W":
		return Weekly, nil
	case "m", "M":
		return Monthly, nil
	default:
		return "", fmt.Errorf("unknown frequency %q, must be one of: h, d, w, m", s)
	}
}

// Timescale returns the adjective used in axis labels.
func (f Frequency) Timescale() string {
	switch f {
	case Hourly:
		return "hourly"
	case Daily:
		return "daily"
	case Weekly:
		return "weekly"
	case Monthly:
		return "monthly"
	default:
		return string(f)
	}
}

// label returns the bucket label for t.
//
// Hourly and daily buckets are closed and labelled on the left. Weekly
// buckets end on Sunday and monthly buckets end on the last day of the
// month; both are closed and labelled on the right, so e.g. 31 Jan 01:00
// falls into the bucket labelled with the last day of February.
func (f Frequency) label(t time.Time) time.Time {
	t = t.UTC()
	switch f {
	case Hourly:
		return t.Truncate(time.Hour)
	case Daily:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	case Weekly:
		day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		if t.After(day) {
			day = day.AddDate(0, 0, 1)
		}
		for day.Weekday() != time.Sunday {
			day = day.AddDate(0, 0, 1)
		}
		return day
	case Monthly:
		end := monthEnd(t.Year(), t.Month())
		if t.After(end) {
			next := t.AddDate(0, 0, 1)
			end = monthEnd(next.Year(), next.Month())
		}
		return end
	default:
		return t
	}
}

func monthEnd(year int, month time.Month) time.Time {
	return time.Date(year, month+1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)
}

// step returns the label following l.
func (f Frequency) step(l time.Time) time.Time {
	switch f {
	case Hourly:
		return l.Add(time.Hour)
	case Daily:
		return l.AddDate(0, 0, 1)
	case Weekly:
		return l.AddDate(0, 0, 7)
	case Monthly:
		next := l.AddDate(0, 0, 1)
		return monthEnd(next.Year(), next.Month())
	default:
		return l
	}
}

// Resample sums the series into buckets of the given frequency. Empty
// buckets between the first and the last label are kept with value 0;
// NaN values are skipped.
func (s *Series) Resample(freq Frequency) *Series {
	out := &Series{Name: s.Name}
	if len(s.Index) == 0 {
		return out
	}

	sums := make(map[int64]float64)
	first := freq.label(s.Index[0])
	last := first
	for i, t := range s.Index {
		l := freq.label(t)
		if l.Before(first) {
			first = l
		}
		if l.After(last) {
			last = l
		}
		v := s.Values[i]
		if math.IsNaN(v) {
			continue
		}
		sums[l.Unix()] += v
	}

	for l := first; !l.After(last); l = freq.step(l) {
		out.Index = append(out.Index, l)
		out.Values = append(out.Values, sums[l.Unix()])
	}
	return out
}
