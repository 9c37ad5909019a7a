package statsig

import (
	"fmt"
	"io"

	"golang.org/x/sync/errgroup"

	"github.com/hed1ad/gostatsig/pkg/detectors"
	"github.com/hed1ad/gostatsig/pkg/timeseries"
)

var _ detectors.Detector = (*MultiDetector)(nil)

// MultiDetector scores every column of a multivariate series with its own
// Detector. Columns are matched by position, not by name.
type MultiDetector struct {
	cfg Config
	options

	lastN    int
	inner    []*Detector
	response *detectors.Response
}

// NewMulti creates a MultiDetector with the same configuration surface as New.
func NewMulti(cfg Config, opts ...Option) (*MultiDetector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &MultiDetector{cfg: cfg, options: o}, nil
}

// Config returns the detector configuration.
func (m *MultiDetector) Config() Config { return m.cfg }

// NControl returns the configured control window duration.
func (m *MultiDetector) NControl() int { return m.cfg.NControl }

// NTest returns the configured test window duration.
func (m *MultiDetector) NTest() int { return m.cfg.NTest }

// LastN returns the number of points of the last call's data.
func (m *MultiDetector) LastN() int { return m.lastN }

// Response returns the response of the last call, or nil.
func (m *MultiDetector) Response() *detectors.Response { return m.response }

// TimeUnit returns the time unit resolved by the last call.
func (m *MultiDetector) TimeUnit() string {
	if len(m.inner) > 0 && m.inner[0] != nil {
		return m.inner[0].TimeUnit()
	}
	return m.cfg.TimeUnit
}

// BigDataTransform reports whether any column was scored in chunks by the last call.
func (m *MultiDetector) BigDataTransform() bool {
	for _, d := range m.inner {
		if d != nil && d.BigDataTransform() {
			return true
		}
	}
	return false
}

// Serialize encodes the detector configuration.
func (m *MultiDetector) Serialize() ([]byte, error) { return m.cfg.Serialize() }

// Fit runs the scoring pipeline on data and discards the scores.
func (m *MultiDetector) Fit(data *timeseries.Series) error {
	_, err := m.FitPredict(data, nil)
	return err
}

// Predict always fails: scoring needs data and its history in one FitPredict call.
func (m *MultiDetector) Predict(*timeseries.Series) (*detectors.Response, error) {
	return nil, fmt.Errorf("%w: predict is not supported, use FitPredict with historical data", detectors.ErrValidation)
}

// FitPredict scores each column of data against the same column of
// historical (may be nil). The response keeps the column names of data.
func (m *MultiDetector) FitPredict(data, historical *timeseries.Series) (*detectors.Response, error) {
	return m.FitPredictWith(data, historical)
}

// FitPredictWith is FitPredict with per-call overrides such as RemoveSeason.
func (m *MultiDetector) FitPredictWith(data, historical *timeseries.Series, callOpts ...CallOption) (*detectors.Response, error) {
	if data == nil || data.Width() < 2 {
		return nil, fmt.Errorf("%w: multivariate detector needs at least two value columns, got %d", detectors.ErrValidation, data.Width())
	}
	if data.Empty() {
		return nil, fmt.Errorf("%w: data is empty", detectors.ErrValidation)
	}
	if historical.Empty() {
		historical = nil
	} else if historical.Width() != data.Width() {
		return nil, fmt.Errorf("%w: historical data has %d columns, data has %d", detectors.ErrValidation, historical.Width(), data.Width())
	}

	co := callOptions{}
	for _, opt := range callOpts {
		opt(&co)
	}
	cfg := m.cfg
	if co.remSeason != nil {
		cfg.RemSeason = *co.remSeason
	}

	m.lastN = data.Len()
	state := State{
		Data:       data,
		Historical: historical,
		TimeUnit:   m.TimeUnit(),
		LastN:      m.lastN,
		Previous:   m.response,
	}
	if !m.shouldUpdate(state) {
		if m.response == nil {
			context := data
			if historical != nil {
				var err error
				if context, err = historical.Concat(data); err != nil {
					return nil, fmt.Errorf("%w: historical data must precede data: %v", detectors.ErrValidation, err)
				}
			}
			m.response = detectors.NewZeroResponse(context)
		}
		m.response = m.response.LastN(m.lastN)
		m.log.Debug().Int("last_n", m.lastN).Msg("update skipped")
		return m.response, nil
	}

	// the guard applies to the whole fan-out, not per column
	inner := m.options
	inner.shouldUpdate = alwaysUpdate

	width := data.Width()
	dets := make([]*Detector, width)
	results := make([]*detectors.Response, width)

	var g errgroup.Group
	g.SetLimit(m.parallelism)
	for c := 0; c < width; c++ {
		g.Go(func() error {
			col, err := data.Column(c)
			if err != nil {
				return err
			}
			var hist *timeseries.Series
			if historical != nil {
				if hist, err = historical.Column(c); err != nil {
					return err
				}
			}

			d := newDetector(cfg, inner)
			d.log = m.log.With().Str("column", data.Columns[c]).Logger()
			resp, err := d.FitPredict(col, hist)
			if err != nil {
				return fmt.Errorf("column %q: %w", data.Columns[c], err)
			}
			dets[c] = d
			results[c] = resp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	resp, err := mergeResponses(data, results)
	if err != nil {
		return nil, err
	}
	m.inner = dets
	m.response = resp
	return resp, nil
}

// Visualize writes the last response as a text table.
func (m *MultiDetector) Visualize(w io.Writer) error {
	return visualize(w, m.response)
}

func mergeResponses(data *timeseries.Series, parts []*detectors.Response) (*detectors.Response, error) {
	pick := func(get func(*detectors.Response) *timeseries.Series) (*timeseries.Series, error) {
		cols := make([][]float64, len(parts))
		for c, p := range parts {
			cols[c] = get(p).Values[0]
		}
		return timeseries.NewMulti(data.Timestamps, data.Columns, cols)
	}

	scores, err := pick(func(r *detectors.Response) *timeseries.Series { return r.Scores })
	if err != nil {
		return nil, err
	}
	pvalues, err := pick(func(r *detectors.Response) *timeseries.Series { return r.StatSig })
	if err != nil {
		return nil, err
	}
	magnitude, err := pick(func(r *detectors.Response) *timeseries.Series { return r.Magnitude })
	if err != nil {
		return nil, err
	}
	return &detectors.Response{Scores: scores, StatSig: pvalues, Magnitude: magnitude}, nil
}
