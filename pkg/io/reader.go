// Package io provides input/output utilities for series ingestion and score output.
package io

import (
	"math"
	"time"

	"github.com/hed1ad/gostatsig/pkg/detectors"
	"github.com/hed1ad/gostatsig/pkg/timeseries"
)

// Reader is the interface for reading a time series from various sources.
type Reader interface {
	// Read returns the complete series.
	Read() (*timeseries.Series, error)

	// Close releases resources.
	Close() error
}

// FeatureExtractor extracts numerical features from raw records.
type FeatureExtractor interface {
	// Extract converts a raw record to a feature vector.
	Extract(data any) ([]float64, error)

	// FeatureNames returns the names of extracted features.
	FeatureNames() []string
}

// Writer is the interface for writing detection results.
type Writer interface {
	// Write outputs a single result.
	Write(result Result) error

	// WriteAll outputs multiple results.
	WriteAll(results []Result) error

	// Close releases resources.
	Close() error
}

// Result is one scored point of one column.
type Result struct {
	Timestamp time.Time `json:"timestamp"`
	Column    string    `json:"column"`
	Score     float64   `json:"score"`
	StatSig   float64   `json:"stat_sig"`
	Magnitude float64   `json:"magnitude"`
	IsAnomaly bool      `json:"is_anomaly"`
}

// ResultsFromResponse flattens a response into results ordered by timestamp,
// then column. A point is flagged when |score| reaches threshold; a threshold
// of zero or less flags nothing.
func ResultsFromResponse(resp *detectors.Response, threshold float64) []Result {
	if resp == nil || resp.Scores == nil {
		return nil
	}
	scores := resp.Scores
	out := make([]Result, 0, scores.Len()*scores.Width())
	for i, ts := range scores.Timestamps {
		for c, col := range scores.Columns {
			score := scores.Values[c][i]
			out = append(out, Result{
				Timestamp: ts,
				Column:    col,
				Score:     score,
				StatSig:   resp.StatSig.Values[c][i],
				Magnitude: resp.Magnitude.Values[c][i],
				IsAnomaly: threshold > 0 && math.Abs(score) >= threshold,
			})
		}
	}
	return out
}
