// Package detectors defines the contract shared by the time series anomaly detectors.
package detectors

import (
	"errors"

	"github.com/hed1ad/gostatsig/pkg/timeseries"
)

var (
	// ErrConfiguration reports a detector built with missing or invalid parameters.
	ErrConfiguration = errors.New("invalid detector configuration")

	// ErrValidation reports input a detector cannot score.
	ErrValidation = errors.New("invalid detector input")

	// ErrNotFitted reports an inspection call made before any successful scoring call.
	ErrNotFitted = &notFittedError{}
)

type notFittedError struct{}

func (*notFittedError) Error() string { return "detector has not produced a response yet" }

// Unwrap lets errors.Is(err, ErrValidation) hold for ErrNotFitted.
func (*notFittedError) Unwrap() error { return ErrValidation }

// Detector is the common interface for the windowed time series detectors.
type Detector interface {
	// Fit prepares the detector on data without producing scores.
	Fit(data *timeseries.Series) error

	// Predict scores data on its own. Detectors that need historical
	// context in the same call return ErrValidation.
	Predict(data *timeseries.Series) (*Response, error)

	// FitPredict scores data, using historical (may be nil) as lookback.
	// The response has one row per timestamp of data.
	FitPredict(data, historical *timeseries.Series) (*Response, error)

	// Serialize encodes the detector configuration.
	Serialize() ([]byte, error)
}

// Response holds the per-timestamp output of a detector call.
type Response struct {
	// Scores is the signed test statistic; larger magnitude is a stronger shift.
	Scores *timeseries.Series
	// StatSig is the two-sided p-value of each score.
	StatSig *timeseries.Series
	// Magnitude is the ratio of the test window mean to the control window mean.
	Magnitude *timeseries.Series
}

// NewZeroResponse builds a response over the timestamps and columns of data
// with the values a detector reports before it has enough history.
func NewZeroResponse(data *timeseries.Series) *Response {
	return &Response{
		Scores:    data.Zeros(0),
		StatSig:   data.Zeros(1),
		Magnitude: data.Zeros(1),
	}
}

// Len returns the number of rows in the response.
func (r *Response) Len() int {
	if r == nil {
		return 0
	}
	return r.Scores.Len()
}

// LastN returns the trailing n rows of the response.
func (r *Response) LastN(n int) *Response {
	if n > r.Len() {
		n = r.Len()
	}
	return &Response{
		Scores:    r.Scores.Tail(n),
		StatSig:   r.StatSig.Tail(n),
		Magnitude: r.Magnitude.Tail(n),
	}
}

// Equal reports whether both responses hold identical series.
func (r *Response) Equal(o *Response) bool {
	if r == nil || o == nil {
		return r == o
	}
	return r.Scores.Equal(o.Scores) && r.StatSig.Equal(o.StatSig) && r.Magnitude.Equal(o.Magnitude)
}
