// Package statsig implements the statistical significance level-shift detector.
//
// A sliding test window of recent observations is compared with the control
// window right before it using a two-sample t statistic. Historical data
// supplies lookback for the first points of the scored data; positions
// without enough lookback score zero.
package statsig

import (
	"errors"
	"fmt"
	"io"
	"math"
	"text/tabwriter"
	"time"

	"github.com/hed1ad/gostatsig/pkg/detectors"
	"github.com/hed1ad/gostatsig/pkg/seasonality"
	"github.com/hed1ad/gostatsig/pkg/timeseries"
)

var _ detectors.Detector = (*Detector)(nil)

// Detector scores a univariate series. It is not safe for concurrent use.
type Detector struct {
	cfg Config
	options

	// last fitted state
	timeUnit string
	cadence  time.Duration
	nControl int
	nTest    int
	bigData  bool
	lastN    int
	response *detectors.Response
}

// New creates a Detector. It fails with detectors.ErrConfiguration when
// NControl or NTest is missing.
func New(cfg Config, opts ...Option) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return newDetector(cfg, o), nil
}

// FromSerialized rebuilds a Detector from the output of Serialize.
func FromSerialized(data []byte, opts ...Option) (*Detector, error) {
	cfg, err := ParseConfig(data)
	if err != nil {
		return nil, err
	}
	return New(cfg, opts...)
}

func newDetector(cfg Config, o options) *Detector {
	d := &Detector{cfg: cfg, options: o}
	if d.resolver == nil {
		d.resolver = d.inferTimeUnit
	}
	return d
}

// Config returns the detector configuration.
func (d *Detector) Config() Config { return d.cfg }

// NControl returns the configured control window duration.
func (d *Detector) NControl() int { return d.cfg.NControl }

// NTest returns the configured test window duration.
func (d *Detector) NTest() int { return d.cfg.NTest }

// TimeUnit returns the time unit resolved by the last call, or the configured
// one before any call.
func (d *Detector) TimeUnit() string {
	if d.timeUnit != "" {
		return d.timeUnit
	}
	return d.cfg.TimeUnit
}

// ControlSamples returns the control window length in samples from the last call.
func (d *Detector) ControlSamples() int { return d.nControl }

// TestSamples returns the test window length in samples from the last call.
func (d *Detector) TestSamples() int { return d.nTest }

// BigDataTransform reports whether the last call scored the data in chunks.
func (d *Detector) BigDataTransform() bool { return d.bigData }

// LastN returns the number of points scored by the last call.
func (d *Detector) LastN() int { return d.lastN }

// Response returns the response of the last call, or nil.
func (d *Detector) Response() *detectors.Response { return d.response }

// Serialize encodes the detector configuration.
func (d *Detector) Serialize() ([]byte, error) { return d.cfg.Serialize() }

// Fit checks data; the detector learns nothing ahead of a scoring call.
func (d *Detector) Fit(data *timeseries.Series) error {
	return checkUnivariate("data", data)
}

// Predict always fails: scoring needs data and its history in one FitPredict call.
func (d *Detector) Predict(*timeseries.Series) (*detectors.Response, error) {
	return nil, fmt.Errorf("%w: predict is not supported, use FitPredict with historical data", detectors.ErrValidation)
}

// FitPredict scores every point of data, using historical (may be nil) as
// lookback. The response has the timestamps of data.
func (d *Detector) FitPredict(data, historical *timeseries.Series) (*detectors.Response, error) {
	if err := checkUnivariate("data", data); err != nil {
		return nil, err
	}
	if data.Empty() {
		return nil, fmt.Errorf("%w: data is empty", detectors.ErrValidation)
	}
	if historical.Empty() {
		historical = nil
	} else if err := checkUnivariate("historical data", historical); err != nil {
		return nil, err
	}

	if err := d.resolveWindows(data, historical); err != nil {
		return nil, err
	}

	context := data.Copy()
	if historical != nil {
		var err error
		if context, err = historical.Concat(data); err != nil {
			return nil, fmt.Errorf("%w: historical data must precede data: %v", detectors.ErrValidation, err)
		}
	}
	d.lastN = data.Len()

	state := State{
		Data:       data,
		Historical: historical,
		TimeUnit:   d.timeUnit,
		LastN:      d.lastN,
		Previous:   d.response,
	}
	if !d.shouldUpdate(state) {
		if d.response == nil {
			d.response = detectors.NewZeroResponse(context)
		}
		d.response = d.response.LastN(d.lastN)
		d.log.Debug().Int("last_n", d.lastN).Msg("update skipped")
		return d.response, nil
	}

	values := context.Values[0]
	if d.cfg.RemSeason {
		h, err := seasonality.New(context, d.cfg.SeasonalPeriod,
			seasonality.WithLowPassJumpFactor(d.lpjFactor),
			seasonality.WithCadence(d.cadence),
			seasonality.WithLogger(d.log),
		)
		if err != nil {
			return nil, err
		}
		values = h.RemoveSeasonality().Values[0]
	}

	d.bigData = d.useBigData(data, historical)
	from := context.Len() - data.Len()

	var ws windowScores
	if d.bigData {
		ws = scoreChunked(values, from, d.nControl, d.nTest, d.cfg.MaxSplitTSLength, d.cfg.UseCorrectedScores)
	} else {
		ws = scoreRange(values, from, d.nControl, d.nTest, d.cfg.UseCorrectedScores)
	}

	d.log.Debug().
		Int("points", data.Len()).
		Int("history", from).
		Bool("big_data", d.bigData).
		Bool("rem_season", d.cfg.RemSeason).
		Msg("scored series")

	resp, err := buildResponse(data, data.Columns[0], ws)
	if err != nil {
		return nil, err
	}
	d.response = resp
	return resp, nil
}

// resolveWindows resolves the time unit and cadence of the call and converts
// the window durations into sample counts.
func (d *Detector) resolveWindows(data, historical *timeseries.Series) error {
	unit, err := d.resolver(data, historical)
	if err != nil {
		if errors.Is(err, detectors.ErrValidation) {
			return err
		}
		return fmt.Errorf("%w: resolving time unit: %v", detectors.ErrValidation, err)
	}
	if unit == "" {
		return fmt.Errorf("%w: time unit is not set and could not be inferred", detectors.ErrValidation)
	}
	unitDur, err := timeseries.ParseTimeUnit(unit)
	if err != nil {
		return fmt.Errorf("%w: %v", detectors.ErrValidation, err)
	}

	cadence, ok := timeseries.InferCadence(data)
	if !ok && historical != nil {
		cadence, ok = timeseries.InferCadence(historical)
	}
	if !ok {
		cadence = unitDur
	}

	d.timeUnit = unit
	d.cadence = cadence
	d.nControl = sampleCount(d.cfg.NControl, unitDur, cadence)
	d.nTest = sampleCount(d.cfg.NTest, unitDur, cadence)

	d.log.Debug().
		Str("time_unit", unit).
		Dur("cadence", cadence).
		Int("n_control", d.nControl).
		Int("n_test", d.nTest).
		Msg("resolved windows")
	return nil
}

// inferTimeUnit uses the configured unit, else the cadence of data, else the
// cadence of historical.
func (d *Detector) inferTimeUnit(data, historical *timeseries.Series) (string, error) {
	if d.cfg.TimeUnit != "" {
		return d.cfg.TimeUnit, nil
	}
	if unit, ok := timeseries.InferTimeUnit(data); ok {
		return unit, nil
	}
	if historical != nil {
		if unit, ok := timeseries.InferTimeUnit(historical); ok {
			d.log.Debug().Str("time_unit", unit).Msg("time unit inferred from historical data")
			return unit, nil
		}
	}
	return "", fmt.Errorf("%w: cannot infer a time unit from data or historical data", detectors.ErrValidation)
}

// useBigData reports whether the chunked transform applies: corrected scores,
// data longer than one chunk, and history sampled at the data's cadence.
func (d *Detector) useBigData(data, historical *timeseries.Series) bool {
	if !d.cfg.UseCorrectedScores || data.Len() <= d.cfg.MaxSplitTSLength {
		return false
	}
	if historical == nil {
		return true
	}
	dc, ok := timeseries.InferCadence(data)
	if !ok {
		return false
	}
	hc, ok := timeseries.InferCadence(historical)
	return ok && hc == dc
}

// Visualize writes the last response as a text table.
func (d *Detector) Visualize(w io.Writer) error {
	return visualize(w, d.response)
}

// sampleCount converts n time units into samples at the given cadence, at least one.
func sampleCount(n int, unit, cadence time.Duration) int {
	k := int(math.Floor(float64(n) * float64(unit) / float64(cadence)))
	return max(k, 1)
}

func checkUnivariate(what string, s *timeseries.Series) error {
	if s == nil {
		return fmt.Errorf("%w: %s is nil", detectors.ErrValidation, what)
	}
	if s.Width() != 1 {
		return fmt.Errorf("%w: %s has %d value columns, the univariate detector takes one", detectors.ErrValidation, what, s.Width())
	}
	return nil
}

func buildResponse(data *timeseries.Series, name string, ws windowScores) (*detectors.Response, error) {
	scores, err := data.WithValues(name, ws.score)
	if err != nil {
		return nil, err
	}
	pvalues, err := data.WithValues(name, ws.pvalue)
	if err != nil {
		return nil, err
	}
	magnitude, err := data.WithValues(name, ws.magnitude)
	if err != nil {
		return nil, err
	}
	return &detectors.Response{Scores: scores, StatSig: pvalues, Magnitude: magnitude}, nil
}

func visualize(w io.Writer, resp *detectors.Response) error {
	if resp == nil {
		return fmt.Errorf("visualize: %w", detectors.ErrNotFitted)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprint(tw, "time")
	for _, col := range resp.Scores.Columns {
		fmt.Fprintf(tw, "\t%s score\t%s p\t%s ratio", col, col, col)
	}
	fmt.Fprintln(tw)
	for i, ts := range resp.Scores.Timestamps {
		fmt.Fprint(tw, ts.Format(time.RFC3339))
		for c := range resp.Scores.Columns {
			fmt.Fprintf(tw, "\t%.4f\t%.4f\t%.4f",
				resp.Scores.Values[c][i], resp.StatSig.Values[c][i], resp.Magnitude.Values[c][i])
		}
		fmt.Fprintln(tw)
	}
	return tw.Flush()
}
