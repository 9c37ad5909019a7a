// Package csv reads time series from CSV files and writes scores back as CSV.
package csv

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/hed1ad/gostatsig/pkg/timeseries"
)

// DefaultTimeColumn is the header of the timestamp column.
const DefaultTimeColumn = "time"

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Reader reads a series from a CSV file with a header row. One column holds
// timestamps, every other column is a value column.
type Reader struct {
	file       *os.File
	reader     *csv.Reader
	timeColumn string
	headers    []string
	log        zerolog.Logger
}

// Option configures a CSV reader.
type Option func(*Reader)

// WithTimeColumn sets the header of the timestamp column.
func WithTimeColumn(name string) Option {
	return func(r *Reader) {
		r.timeColumn = name
	}
}

// WithLogger sets the logger used to report skipped rows.
func WithLogger(l zerolog.Logger) Option {
	return func(r *Reader) {
		r.log = l
	}
}

// NewReader opens filename and reads its header.
func NewReader(filename string, opts ...Option) (*Reader, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	r, err := newReader(file, opts...)
	if err != nil {
		file.Close()
		return nil, err
	}
	r.file = file
	return r, nil
}

// NewReaderFrom reads CSV from src, e.g. an HTTP request body.
func NewReaderFrom(src io.Reader, opts ...Option) (*Reader, error) {
	return newReader(src, opts...)
}

func newReader(src io.Reader, opts ...Option) (*Reader, error) {
	r := &Reader{
		reader:     csv.NewReader(src),
		timeColumn: DefaultTimeColumn,
		log:        zerolog.Nop(),
	}
	r.reader.TrimLeadingSpace = true
	r.reader.FieldsPerRecord = -1

	for _, opt := range opts {
		opt(r)
	}

	headers, err := r.reader.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	r.headers = headers
	return r, nil
}

// Headers returns the column headers.
func (r *Reader) Headers() []string {
	return r.headers
}

// Read returns the whole file as a series. Rows that cannot be parsed are
// skipped; rows must be in increasing time order.
func (r *Reader) Read() (*timeseries.Series, error) {
	timeIdx := -1
	var names []string
	var valueIdx []int
	for i, h := range r.headers {
		if strings.EqualFold(strings.TrimSpace(h), r.timeColumn) {
			timeIdx = i
			continue
		}
		names = append(names, strings.TrimSpace(h))
		valueIdx = append(valueIdx, i)
	}
	if timeIdx < 0 {
		return nil, fmt.Errorf("time column %q not found in header %v", r.timeColumn, r.headers)
	}
	if len(valueIdx) == 0 {
		return nil, errors.New("no value columns in header")
	}

	var timestamps []time.Time
	values := make([][]float64, len(valueIdx))
	line := 1
	for {
		record, err := r.reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, err
		}

		ts, row, err := parseRow(record, timeIdx, valueIdx)
		if err != nil {
			r.log.Warn().Err(err).Int("line", line).Msg("skipping malformed row")
			continue
		}
		timestamps = append(timestamps, ts)
		for c, v := range row {
			values[c] = append(values[c], v)
		}
	}

	return timeseries.NewMulti(timestamps, names, values)
}

// Close releases resources.
func (r *Reader) Close() error {
	if r.file != nil {
		return r.file.Close()
	}
	return nil
}

// parseRow converts a record to a timestamp and its values.
func parseRow(record []string, timeIdx int, valueIdx []int) (time.Time, []float64, error) {
	if len(record) <= timeIdx {
		return time.Time{}, nil, errors.New("empty row")
	}
	ts, err := ParseTime(record[timeIdx])
	if err != nil {
		return time.Time{}, nil, err
	}

	row := make([]float64, len(valueIdx))
	for c, i := range valueIdx {
		if i >= len(record) {
			return time.Time{}, nil, fmt.Errorf("row has %d fields", len(record))
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(record[i]), 64)
		if err != nil {
			return time.Time{}, nil, err
		}
		row[c] = f
	}
	return ts, row, nil
}

// ParseTime accepts RFC 3339, "2006-01-02 15:04:05", "2006-01-02" and unix seconds.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, nil
		}
	}
	if sec, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(sec, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}
