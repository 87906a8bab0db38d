package entsoe

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestParseISO8601Duration(t *testing.T) {
	tests := []struct {
		input   string
		want    time.Duration
		wantErr bool
	}{
		{"PT15M", 15 * time.Minute, false},
		{"PT60M", time.Hour, false},
		{"PT1H", time.Hour, false},
		{"P1D", 24 * time.Hour, false},
		{"P1W", 7 * 24 * time.Hour, false},
		{"P1DT2H", 26 * time.Hour, false},
		{"PT0.5H", 30 * time.Minute, false},
		{"PT30S", 30 * time.Second, false},
		{"P1Y", 0, true},
		{"P1M", 0, true},
		{"15M", 0, true},
		{"PTH", 0, true},
		{"PT15", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := parseISO8601Duration(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("parseISO8601Duration(%q) expected error, got %v", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseISO8601Duration(%q) unexpected error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("parseISO8601Duration(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestPeriodValuesForwardFill(t *testing.T) {
	start := time.Date(2016, 3, 1, 0, 0, 0, 0, time.UTC)
	p := Period{
		TimeInterval: TimeInterval{Start: start, End: start.Add(5 * time.Hour)},
		Resolution:   time.Hour,
		Points: []Point{
			{Position: 1, Quantity: 10},
			{Position: 4, Quantity: 40},
		},
	}

	got := p.Values()
	want := []float64{10, 10, 10, 40, 40}
	if len(got) != len(want) {
		t.Fatalf("len(Values()) = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Values()[%d] = %v, want %v", i, got[i], want[i])
		}
	}

	s, e, ok := p.GetTimeRangeForPosition(5)
	if !ok || !s.Equal(start.Add(4*time.Hour)) || !e.Equal(start.Add(5*time.Hour)) {
		t.Errorf("GetTimeRangeForPosition(5) = %s, %s, %v", s, e, ok)
	}
	if _, _, ok := p.GetTimeRangeForPosition(6); ok {
		t.Error("GetTimeRangeForPosition(6) should be out of range")
	}
	if _, _, ok := p.GetTimeRangeForPosition(0); ok {
		t.Error("GetTimeRangeForPosition(0) should be invalid")
	}
}

func TestHourlySeriesAveragesQuarterHours(t *testing.T) {
	const doc = `<GL_MarketDocument>
    <TimeSeries>
        <inBiddingZone_Domain.mRID codingScheme="A01">10YAT-APG------L</inBiddingZone_Domain.mRID>
        <MktPSRType><psrType>B12</psrType></MktPSRType>
        <Period>
            <timeInterval><start>2016-06-01T00:00Z</start><end>2016-06-01T02:00Z</end></timeInterval>
            <resolution>PT15M</resolution>
            <Point><position>1</position><quantity>100</quantity></Point>
            <Point><position>2</position><quantity>200</quantity></Point>
            <Point><position>3</position><quantity>300</quantity></Point>
            <Point><position>4</position><quantity>400</quantity></Point>
            <Point><position>5</position><quantity>80</quantity></Point>
        </Period>
    </TimeSeries>
    <TimeSeries>
        <inBiddingZone_Domain.mRID codingScheme="A01">10YAT-APG------L</inBiddingZone_Domain.mRID>
        <MktPSRType><psrType>B12</psrType></MktPSRType>
        <Period>
            <timeInterval><start>2016-06-01T00:00Z</start><end>2016-06-01T01:00Z</end></timeInterval>
            <resolution>PT60M</resolution>
            <Point><position>1</position><quantity>5</quantity></Point>
        </Period>
    </TimeSeries>
    <TimeSeries>
        <outBiddingZone_Domain.mRID codingScheme="A01">10YAT-APG------L</outBiddingZone_Domain.mRID>
        <MktPSRType><psrType>B12</psrType></MktPSRType>
        <Period>
            <timeInterval><start>2016-06-01T00:00Z</start><end>2016-06-01T01:00Z</end></timeInterval>
            <resolution>PT60M</resolution>
            <Point><position>1</position><quantity>1000</quantity></Point>
        </Period>
    </TimeSeries>
</GL_MarketDocument>`

	d, err := DecodeGenerationXML(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("DecodeGenerationXML() failed: %v", err)
	}

	s := d.HourlySeries("disp", PsrHydroReservoir)
	if s.Name != "disp" {
		t.Errorf("Name = %s, want disp", s.Name)
	}
	if s.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", s.Len())
	}
	// mean(100..400) plus the hourly series; consumption is ignored
	if s.Values[0] != 255 {
		t.Errorf("Values[0] = %v, want 255", s.Values[0])
	}
	// the missing positions repeat the last point
	if s.Values[1] != 80 {
		t.Errorf("Values[1] = %v, want 80", s.Values[1])
	}
	if !s.Index[1].Equal(time.Date(2016, 6, 1, 1, 0, 0, 0, time.UTC)) {
		t.Errorf("Index[1] = %s", s.Index[1])
	}

	if other := d.HourlySeries("x", "B11"); other.Len() != 0 {
		t.Errorf("unexpected values for another production type: %v", other.Values)
	}
}

func TestDecodeGenerationXMLErrors(t *testing.T) {
	_, err := DecodeGenerationXML(strings.NewReader(sampleAcknowledgementXML))
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if !strings.Contains(apiErr.Error(), "No matching data") {
		t.Errorf("Error() = %s", apiErr.Error())
	}

	const badResolution = `<GL_MarketDocument><TimeSeries><Period>
        <timeInterval><start>2016-06-01T00:00Z</start><end>2016-06-01T01:00Z</end></timeInterval>
        <resolution>PT0M</resolution>
    </Period></TimeSeries></GL_MarketDocument>`
	if _, err := DecodeGenerationXML(strings.NewReader(badResolution)); err == nil {
		t.Error("expected error for zero resolution")
	}

	const badTime = `<GL_MarketDocument><time_Period.timeInterval>
        <start>yesterday</start><end>2016-06-01T01:00Z</end>
    </time_Period.timeInterval></GL_MarketDocument>`
	if _, err := DecodeGenerationXML(strings.NewReader(badTime)); err == nil {
		t.Error("expected error for unparsable time")
	}
}
