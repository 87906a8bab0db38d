package entsoe

import (
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/devskill-org/gridplan/timeseries"
)

// Document, process and production type codes of the transparency platform.
const (
	DocumentActualGeneration = "A75"
	ProcessRealised          = "A16"
	PsrHydroReservoir        = "B12"
)

// GenerationDocument is the GL_MarketDocument returned for generation and
// load queries.
type GenerationDocument struct {
	XMLName            xml.Name       `xml:"GL_MarketDocument"`
	MRID               string         `xml:"mRID"`
	RevisionNumber     int            `xml:"revisionNumber"`
	Type               string         `xml:"type"`
	ProcessType        string         `xml:"process.processType"`
	CreatedDateTime    string         `xml:"createdDateTime"`
	PeriodTimeInterval TimeInterval   `xml:"time_Period.timeInterval"`
	TimeSeries         []GenerationTS `xml:"TimeSeries"`
}

// Domain is an EIC area code with its coding scheme
type Domain struct {
	CodingScheme string `xml:"codingScheme,attr"`
	Value        string `xml:",chardata"`
}

// GenerationTS is one time series of a generation document
type GenerationTS struct {
	MRID           string   `xml:"mRID"`
	BusinessType   string   `xml:"businessType"`
	InBiddingZone  Domain   `xml:"inBiddingZone_Domain.mRID"`
	OutBiddingZone Domain   `xml:"outBiddingZone_Domain.mRID"`
	QuantityUnit   string   `xml:"quantity_Measure_Unit.name"`
	CurveType      string   `xml:"curveType"`
	PsrType        string   `xml:"MktPSRType>psrType"`
	Periods        []Period `xml:"Period"`
}

// Generation reports whether the series is production (as opposed to
// consumption, which the platform publishes with an out domain).
func (ts *GenerationTS) Generation() bool {
	return ts.InBiddingZone.Value != ""
}

// TimeInterval is a closed-open interval [Start, End)
type TimeInterval struct {
	Start time.Time
	End   time.Time
}

// UnmarshalXML parses the platform's minute-precision timestamps.
func (ti *TimeInterval) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	var aux struct {
		Start string `xml:"start"`
		End   string `xml:"end"`
	}
	if err := d.DecodeElement(&aux, &start); err != nil {
		return err
	}
	var err error
	if ti.Start, err = parseTimeString(aux.Start); err != nil {
		return fmt.Errorf("error parsing start time: %w", err)
	}
	if ti.End, err = parseTimeString(aux.End); err != nil {
		return fmt.Errorf("error parsing end time: %w", err)
	}
	return nil
}

func parseTimeString(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04Z", "2006-01-02T15:04Z07:00"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unable to parse time string: %s", s)
}

// Period holds the points of one contiguous interval
type Period struct {
	TimeInterval TimeInterval
	Resolution   time.Duration
	Points       []Point
}

// Point is a quantity at a 1-based position within its period
type Point struct {
	Position int     `xml:"position"`
	Quantity float64 `xml:"quantity"`
}

func (p *Period) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	var aux struct {
		TimeInterval TimeInterval `xml:"timeInterval"`
		Resolution   string       `xml:"resolution"`
		Points       []Point      `xml:"Point"`
	}
	if err := d.DecodeElement(&aux, &start); err != nil {
		return err
	}
	res, err := parseISO8601Duration(aux.Resolution)
	if err != nil {
		return fmt.Errorf("error parsing resolution: %w", err)
	}
	if res <= 0 {
		return fmt.Errorf("resolution must be positive, got %q", aux.Resolution)
	}
	p.TimeInterval = aux.TimeInterval
	p.Resolution = res
	p.Points = aux.Points
	sort.Slice(p.Points, func(i, j int) bool { return p.Points[i].Position < p.Points[j].Position })
	return nil
}

// parseISO8601Duration parses the durations used for resolutions, such as
// PT15M, PT60M, P1D or P1DT2H. Years and months are not fixed lengths and
// are rejected.
func parseISO8601Duration(s string) (time.Duration, error) {
	if !strings.HasPrefix(s, "P") {
		return 0, fmt.Errorf("invalid ISO 8601 duration format: %s", s)
	}
	rest := s[1:]
	inTime := false
	var total time.Duration
	num := ""
	for _, c := range rest {
		switch {
		case c == 'T':
			if inTime || num != "" {
				return 0, fmt.Errorf("invalid ISO 8601 duration format: %s", s)
			}
			inTime = true
		case c >= '0' && c <= '9' || c == '.':
			num += string(c)
		default:
			if num == "" {
				return 0, fmt.Errorf("missing number before %c in %s", c, s)
			}
			v, err := strconv.ParseFloat(num, 64)
			if err != nil {
				return 0, fmt.Errorf("invalid number in %s: %w", s, err)
			}
			num = ""
			var unit time.Duration
			switch {
			case !inTime && c == 'W':
				unit = 7 * 24 * time.Hour
			case !inTime && c == 'D':
				unit = 24 * time.Hour
			case inTime && c == 'H':
				unit = time.Hour
			case inTime && c == 'M':
				unit = time.Minute
			case inTime && c == 'S':
				unit = time.Second
			default:
				return 0, fmt.Errorf("unsupported unit %c in %s", c, s)
			}
			total += time.Duration(v * float64(unit))
		}
	}
	if num != "" {
		return 0, fmt.Errorf("trailing number without unit in %s", s)
	}
	return total, nil
}

// numPositions returns the number of resolution steps in the period.
func (p *Period) numPositions() int {
	return int(p.TimeInterval.End.Sub(p.TimeInterval.Start) / p.Resolution)
}

// GetTimeRangeForPosition returns the interval [start, end) covered by a
// 1-based position, clipped to the period end.
func (p *Period) GetTimeRangeForPosition(position int) (start, end time.Time, valid bool) {
	if position < 1 {
		return time.Time{}, time.Time{}, false
	}
	start = p.TimeInterval.Start.Add(time.Duration(position-1) * p.Resolution)
	end = start.Add(p.Resolution)
	if !start.Before(p.TimeInterval.End) {
		return time.Time{}, time.Time{}, false
	}
	if end.After(p.TimeInterval.End) {
		end = p.TimeInterval.End
	}
	return start, end, true
}

// Values expands the points to one value per position. Positions missing
// from the document repeat the previous point, as the platform omits
// unchanged values in curve type A03.
func (p *Period) Values() []float64 {
	if len(p.Points) == 0 {
		return nil
	}
	n := p.numPositions()
	out := make([]float64, n)
	next := 0
	last := p.Points[0].Quantity
	for pos := 1; pos <= n; pos++ {
		for next < len(p.Points) && p.Points[next].Position <= pos {
			last = p.Points[next].Quantity
			next++
		}
		out[pos-1] = last
	}
	return out
}

// HourlySeries returns the hourly generation in MW of the production
// series with the given type. Sub-hourly values are averaged within a
// series; matching series are summed.
func (d *GenerationDocument) HourlySeries(name, psrType string) *timeseries.Series {
	total := make(map[int64]float64)
	for _, ts := range d.TimeSeries {
		if !ts.Generation() || (psrType != "" && ts.PsrType != psrType) {
			continue
		}
		sum := make(map[int64]float64)
		count := make(map[int64]int)
		for _, p := range ts.Periods {
			for i, v := range p.Values() {
				start, _, ok := p.GetTimeRangeForPosition(i + 1)
				if !ok {
					continue
				}
				hour := start.Truncate(time.Hour).Unix()
				sum[hour] += v
				count[hour]++
			}
		}
		for hour, v := range sum {
			total[hour] += v / float64(count[hour])
		}
	}

	hours := make([]int64, 0, len(total))
	for h := range total {
		hours = append(hours, h)
	}
	sort.Slice(hours, func(i, j int) bool { return hours[i] < hours[j] })
	s := &timeseries.Series{Name: name, Index: make([]time.Time, len(hours)), Values: make([]float64, len(hours))}
	for i, h := range hours {
		s.Index[i] = time.Unix(h, 0).UTC()
		s.Values[i] = total[h]
	}
	return s
}

// DecodeGenerationXML decodes a generation document. An acknowledgement
// document, which the platform sends instead of data, is returned as an
// *APIError.
func DecodeGenerationXML(r io.Reader) (*GenerationDocument, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("error reading XML: %w", err)
	}
	if ack, ok := decodeAcknowledgement(data); ok {
		return nil, ack
	}
	var doc GenerationDocument
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("error parsing XML: %w", err)
	}
	return &doc, nil
}
