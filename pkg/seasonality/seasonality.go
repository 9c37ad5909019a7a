// Package seasonality detects and strips a fixed-period seasonal component
// from a univariate time series before it is scored.
package seasonality

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/hed1ad/gostatsig/pkg/detectors"
	"github.com/hed1ad/gostatsig/pkg/timeseries"
)

// DefaultLowPassJumpFactor is the default stride of the trend smoother,
// expressed as a fraction of the cycle length.
const DefaultLowPassJumpFactor = 0.15

var periods = map[string]time.Duration{
	"hourly":    time.Hour,
	"daily":     timeseries.Day,
	"weekly":    timeseries.Week,
	"biweekly":  2 * timeseries.Week,
	"monthly":   30 * timeseries.Day,
	"quarterly": 91 * timeseries.Day,
	"yearly":    365 * timeseries.Day,
}

// Periods returns the supported seasonal period labels in sorted order.
func Periods() []string {
	out := make([]string, 0, len(periods))
	for p := range periods {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Supported reports whether period is a known seasonal period label.
func Supported(period string) bool {
	_, ok := periods[period]
	return ok
}

// Handler decomposes a series at a fixed seasonal period.
type Handler struct {
	data   *timeseries.Series
	period string

	lpjFactor  float64
	iterations int
	cadence    time.Duration
	log        zerolog.Logger

	cycle int // samples per seasonal cycle
	jump  int // stride of the trend smoother
}

// Option configures a Handler.
type Option func(*Handler)

// WithLowPassJumpFactor sets the trend smoother stride as a fraction of the cycle length.
func WithLowPassJumpFactor(f float64) Option {
	return func(h *Handler) {
		h.lpjFactor = f
	}
}

// WithIterations sets the number of detrend/deseasonalise passes.
func WithIterations(n int) Option {
	return func(h *Handler) {
		h.iterations = n
	}
}

// WithCadence fixes the sampling cadence instead of inferring it from the
// series, for series joined from parts sampled at different rates.
func WithCadence(d time.Duration) Option {
	return func(h *Handler) {
		h.cadence = d
	}
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(h *Handler) {
		h.log = l
	}
}

// New validates data against the seasonal period and returns a Handler.
// It fails with detectors.ErrValidation when the period is unknown or the
// series is too short or too coarse to support it.
func New(data *timeseries.Series, period string, opts ...Option) (*Handler, error) {
	h := &Handler{
		data:       data,
		period:     period,
		lpjFactor:  DefaultLowPassJumpFactor,
		iterations: 2,
		log:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(h)
	}

	periodDur, ok := periods[period]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported seasonal period %q (supported: %v)", detectors.ErrValidation, period, Periods())
	}
	if data.Width() != 1 {
		return nil, fmt.Errorf("%w: seasonality handler needs one value column, got %d", detectors.ErrValidation, data.Width())
	}
	cadence := h.cadence
	if cadence <= 0 {
		var ok bool
		if cadence, ok = timeseries.InferCadence(data); !ok {
			return nil, fmt.Errorf("%w: cannot infer the sampling cadence of the series", detectors.ErrValidation)
		}
	}

	h.cycle = int(periodDur / cadence)
	if h.cycle < 2 {
		return nil, fmt.Errorf("%w: %s period spans %d sample(s) at cadence %s", detectors.ErrValidation, period, h.cycle, cadence)
	}
	h.jump = int(math.Floor(h.lpjFactor * float64(h.cycle)))
	if h.jump < 1 {
		return nil, fmt.Errorf("%w: low-pass jump factor %g is too small for a %d-sample cycle", detectors.ErrValidation, h.lpjFactor, h.cycle)
	}
	if data.Len() < 2*h.cycle {
		return nil, fmt.Errorf("%w: %s period needs at least %d points, got %d", detectors.ErrValidation, period, 2*h.cycle, data.Len())
	}
	if h.iterations < 1 {
		h.iterations = 1
	}

	h.log.Debug().
		Str("period", period).
		Int("cycle", h.cycle).
		Int("jump", h.jump).
		Dur("cadence", cadence).
		Msg("seasonality handler ready")

	return h, nil
}

// Cycle returns the number of samples in one seasonal cycle.
func (h *Handler) Cycle() int { return h.cycle }

// Decomposition is an additive split of a series: Original = Trend + Seasonal + Residual.
type Decomposition struct {
	Trend    *timeseries.Series
	Seasonal *timeseries.Series
	Residual *timeseries.Series
	Cycle    int
}

// Decompose splits the series into trend, seasonal and residual components.
func (h *Handler) Decompose() *Decomposition {
	x := h.data.Values[0]
	n := len(x)

	trend := make([]float64, n)
	seasonal := make([]float64, n)
	detrended := make([]float64, n)
	deseasoned := make([]float64, n)

	for iter := 0; iter < h.iterations; iter++ {
		floats.SubTo(detrended, x, trend)

		pattern := cyclePattern(detrended, h.cycle)
		for i := range seasonal {
			seasonal[i] = pattern[i%h.cycle]
		}

		floats.SubTo(deseasoned, x, seasonal)
		trend = smoothTrend(deseasoned, h.cycle, h.jump)
	}

	residual := make([]float64, n)
	floats.SubTo(residual, x, trend)
	floats.Sub(residual, seasonal)

	name := h.data.Columns[0]
	return &Decomposition{
		Trend:    mustWithValues(h.data, name+"_trend", trend),
		Seasonal: mustWithValues(h.data, name+"_seasonal", seasonal),
		Residual: mustWithValues(h.data, name+"_residual", residual),
		Cycle:    h.cycle,
	}
}

// RemoveSeasonality returns the series minus its seasonal component, with the
// original timestamps and column name.
func (h *Handler) RemoveSeasonality() *timeseries.Series {
	d := h.Decompose()
	out := make([]float64, h.data.Len())
	floats.SubTo(out, h.data.Values[0], d.Seasonal.Values[0])
	return mustWithValues(h.data, h.data.Columns[0], out)
}

// cyclePattern averages each phase of the cycle and centres the result.
func cyclePattern(v []float64, cycle int) []float64 {
	pattern := make([]float64, cycle)
	sub := make([]float64, 0, len(v)/cycle+1)
	for k := 0; k < cycle; k++ {
		sub = sub[:0]
		for i := k; i < len(v); i += cycle {
			sub = append(sub, v[i])
		}
		pattern[k] = stat.Mean(sub, nil)
	}
	floats.AddConst(-stat.Mean(pattern, nil), pattern)
	return pattern
}

// smoothTrend applies a triangular moving average one cycle wide, evaluated
// every jump points and linearly interpolated in between.
func smoothTrend(v []float64, cycle, jump int) []float64 {
	n := len(v)
	window := cycle
	if window%2 == 0 {
		window++
	}
	half := window / 2

	at := func(i int) float64 {
		var sum, wsum float64
		for j := -half; j <= half; j++ {
			idx := i + j
			if idx < 0 || idx >= n {
				continue
			}
			w := 1 - math.Abs(float64(j))/float64(half+1)
			sum += v[idx] * w
			wsum += w
		}
		return sum / wsum
	}

	out := make([]float64, n)
	prev := 0
	out[0] = at(0)
	for i := jump; ; i += jump {
		if i >= n-1 {
			i = n - 1
		}
		out[i] = at(i)
		for k := prev + 1; k < i; k++ {
			frac := float64(k-prev) / float64(i-prev)
			out[k] = out[prev] + frac*(out[i]-out[prev])
		}
		prev = i
		if i == n-1 {
			break
		}
	}
	return out
}

func mustWithValues(s *timeseries.Series, name string, values []float64) *timeseries.Series {
	out, err := s.WithValues(name, values)
	if err != nil {
		// lengths and timestamps come from s itself
		panic(err)
	}
	return out
}
