// Package timeseries provides the time series container consumed by the detectors.
package timeseries

import (
	"errors"
	"fmt"
	"time"
)

// DefaultColumn is the column name used for univariate series.
const DefaultColumn = "value"

// Series is an ordered set of timestamps with one or more named value columns.
// Values is column-major: Values[c][i] is column c at Timestamps[i].
type Series struct {
	Timestamps []time.Time
	Columns    []string
	Values     [][]float64
}

// New creates a univariate series. The inputs are copied.
func New(timestamps []time.Time, values []float64) (*Series, error) {
	return NewMulti(timestamps, []string{DefaultColumn}, [][]float64{values})
}

// NewMulti creates a series with several named columns. The inputs are copied.
func NewMulti(timestamps []time.Time, columns []string, values [][]float64) (*Series, error) {
	if len(columns) == 0 {
		return nil, errors.New("series needs at least one column")
	}
	if len(columns) != len(values) {
		return nil, fmt.Errorf("got %d column names for %d columns", len(columns), len(values))
	}
	for c, col := range values {
		if len(col) != len(timestamps) {
			return nil, fmt.Errorf("column %q has %d values for %d timestamps", columns[c], len(col), len(timestamps))
		}
	}
	for i := 1; i < len(timestamps); i++ {
		if !timestamps[i].After(timestamps[i-1]) {
			return nil, fmt.Errorf("timestamps must be strictly increasing (index %d)", i)
		}
	}

	s := &Series{
		Timestamps: append([]time.Time(nil), timestamps...),
		Columns:    append([]string(nil), columns...),
		Values:     make([][]float64, len(values)),
	}
	for c, col := range values {
		s.Values[c] = append([]float64(nil), col...)
	}
	return s, nil
}

// Len returns the number of timestamps.
func (s *Series) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Timestamps)
}

// Width returns the number of value columns.
func (s *Series) Width() int {
	if s == nil {
		return 0
	}
	return len(s.Columns)
}

// Empty reports whether the series has no points.
func (s *Series) Empty() bool {
	return s.Len() == 0
}

// Start returns the first timestamp, or the zero time for an empty series.
func (s *Series) Start() time.Time {
	if s.Empty() {
		return time.Time{}
	}
	return s.Timestamps[0]
}

// End returns the last timestamp, or the zero time for an empty series.
func (s *Series) End() time.Time {
	if s.Empty() {
		return time.Time{}
	}
	return s.Timestamps[len(s.Timestamps)-1]
}

// Column extracts column c as a univariate series keeping its name.
func (s *Series) Column(c int) (*Series, error) {
	if c < 0 || c >= s.Width() {
		return nil, fmt.Errorf("column index %d out of range [0,%d)", c, s.Width())
	}
	return &Series{
		Timestamps: append([]time.Time(nil), s.Timestamps...),
		Columns:    []string{s.Columns[c]},
		Values:     [][]float64{append([]float64(nil), s.Values[c]...)},
	}, nil
}

// Slice returns points [start, end) as a new series.
func (s *Series) Slice(start, end int) *Series {
	if s == nil {
		return nil
	}
	if start < 0 {
		start = 0
	}
	if end > s.Len() {
		end = s.Len()
	}
	if start > end {
		start = end
	}

	out := &Series{
		Timestamps: append([]time.Time(nil), s.Timestamps[start:end]...),
		Columns:    append([]string(nil), s.Columns...),
		Values:     make([][]float64, len(s.Values)),
	}
	for c, col := range s.Values {
		out.Values[c] = append([]float64(nil), col[start:end]...)
	}
	return out
}

// Tail returns the last n points.
func (s *Series) Tail(n int) *Series {
	return s.Slice(s.Len()-n, s.Len())
}

// Copy creates a deep copy of the series.
func (s *Series) Copy() *Series {
	return s.Slice(0, s.Len())
}

// Concat returns s followed by next. Both must have the same width and next
// must start after s ends. Column names are taken from next.
func (s *Series) Concat(next *Series) (*Series, error) {
	if s.Empty() {
		return next.Copy(), nil
	}
	if next.Empty() {
		out := s.Copy()
		if next != nil && len(next.Columns) == len(out.Columns) {
			out.Columns = append([]string(nil), next.Columns...)
		}
		return out, nil
	}
	if s.Width() != next.Width() {
		return nil, fmt.Errorf("cannot concatenate series of width %d and %d", s.Width(), next.Width())
	}
	if !next.Start().After(s.End()) {
		return nil, fmt.Errorf("series overlap: %s is not after %s", next.Start(), s.End())
	}

	out := &Series{
		Timestamps: make([]time.Time, 0, s.Len()+next.Len()),
		Columns:    append([]string(nil), next.Columns...),
		Values:     make([][]float64, s.Width()),
	}
	out.Timestamps = append(append(out.Timestamps, s.Timestamps...), next.Timestamps...)
	for c := range s.Values {
		col := make([]float64, 0, s.Len()+next.Len())
		out.Values[c] = append(append(col, s.Values[c]...), next.Values[c]...)
	}
	return out, nil
}

// WithValues returns a univariate series sharing s's timestamps with new values.
func (s *Series) WithValues(name string, values []float64) (*Series, error) {
	return NewMulti(s.Timestamps, []string{name}, [][]float64{values})
}

// Zeros returns a series with the timestamps and columns of s and all values set to v.
func (s *Series) Zeros(v float64) *Series {
	out := &Series{
		Timestamps: append([]time.Time(nil), s.Timestamps...),
		Columns:    append([]string(nil), s.Columns...),
		Values:     make([][]float64, s.Width()),
	}
	for c := range out.Values {
		col := make([]float64, s.Len())
		for i := range col {
			col[i] = v
		}
		out.Values[c] = col
	}
	return out
}

// Equal reports whether both series have identical timestamps, columns and values.
func (s *Series) Equal(o *Series) bool {
	if s.Len() != o.Len() || s.Width() != o.Width() {
		return false
	}
	for i, ts := range s.Timestamps {
		if !ts.Equal(o.Timestamps[i]) {
			return false
		}
	}
	for c := range s.Columns {
		if s.Columns[c] != o.Columns[c] {
			return false
		}
		for i, v := range s.Values[c] {
			if v != o.Values[c][i] {
				return false
			}
		}
	}
	return true
}
