package timeseries

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"
)

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04Z",
	"2006-01-02T15:04Z07:00",
	"2006-01-02 15:04:05-07:00",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseTime parses the timestamp formats found in the input CSV files.
// Timestamps without a zone are read as UTC.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unable to parse time string: %s", s)
}

// ReadCSVFile opens path and reads it with ReadCSV.
func ReadCSVFile(path string, sep rune) (*Frame, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	frame, err := ReadCSV(file, sep)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return frame, nil
}

// ReadCSV reads a table whose first column holds timestamps and whose
// remaining columns hold numbers. Empty cells become NaN.
func ReadCSV(r io.Reader, sep rune) (*Frame, error) {
	reader := csv.NewReader(r)
	reader.Comma = sep
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	if len(header) < 2 {
		return nil, fmt.Errorf("expected an index column and at least one data column, got %d columns", len(header))
	}

	columns := header[1:]
	data := make([][]float64, len(columns))
	var index []time.Time

	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		t, err := ParseTime(record[0])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		index = append(index, t)

		for i := range columns {
			v := math.NaN()
			if i+1 < len(record) && strings.TrimSpace(record[i+1]) != "" {
				v, err = strconv.ParseFloat(strings.TrimSpace(record[i+1]), 64)
				if err != nil {
					return nil, fmt.Errorf("line %d, column %q: %w", line, columns[i], err)
				}
			}
			data[i] = append(data[i], v)
		}
	}

	frame := NewFrame(index)
	for i, name := range columns {
		if err := frame.Set(strings.TrimSpace(name), data[i]); err != nil {
			return nil, err
		}
	}
	return frame, nil
}

// WriteCSV writes the frame with a timestamp index column.
func WriteCSV(w io.Writer, f *Frame, sep rune, indexName string) error {
	writer := csv.NewWriter(w)
	writer.Comma = sep

	header := append([]string{indexName}, f.Columns...)
	if err := writer.Write(header); err != nil {
		return err
	}

	record := make([]string, len(header))
	for i, t := range f.Index {
		record[0] = t.UTC().Format(time.RFC3339)
		for j, col := range f.Columns {
			v := f.data[col][i]
			if math.IsNaN(v) {
				record[j+1] = ""
				continue
			}
			record[j+1] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}
