package csv

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"time"

	sio "github.com/hed1ad/gostatsig/pkg/io"
)

var resultHeader = []string{"time", "column", "score", "stat_sig", "magnitude", "is_anomaly"}

// Writer writes results as CSV rows, one per point and column.
type Writer struct {
	w           *csv.Writer
	closer      io.Closer
	wroteHeader bool
}

var (
	_ sio.Writer = (*Writer)(nil)
	_ sio.Reader = (*Reader)(nil)
)

// NewWriter writes to w. Close flushes but leaves w open.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: csv.NewWriter(w)}
}

// NewFileWriter creates filename and writes to it. Close closes the file.
func NewFileWriter(filename string) (*Writer, error) {
	file, err := os.Create(filename)
	if err != nil {
		return nil, err
	}
	out := NewWriter(file)
	out.closer = file
	return out, nil
}

// Write outputs a single result.
func (w *Writer) Write(r sio.Result) error {
	if !w.wroteHeader {
		if err := w.w.Write(resultHeader); err != nil {
			return err
		}
		w.wroteHeader = true
	}
	return w.w.Write([]string{
		r.Timestamp.Format(time.RFC3339),
		r.Column,
		strconv.FormatFloat(r.Score, 'g', -1, 64),
		strconv.FormatFloat(r.StatSig, 'g', -1, 64),
		strconv.FormatFloat(r.Magnitude, 'g', -1, 64),
		strconv.FormatBool(r.IsAnomaly),
	})
}

// WriteAll outputs multiple results and flushes.
func (w *Writer) WriteAll(results []sio.Result) error {
	for _, r := range results {
		if err := w.Write(r); err != nil {
			return err
		}
	}
	w.w.Flush()
	return w.w.Error()
}

// Close flushes buffered rows and closes the destination.
func (w *Writer) Close() error {
	w.w.Flush()
	if err := w.w.Error(); err != nil {
		return err
	}
	if w.closer != nil {
		return w.closer.Close()
	}
	return nil
}
