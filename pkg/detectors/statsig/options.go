package statsig

import (
	"github.com/rs/zerolog"

	"github.com/hed1ad/gostatsig/pkg/detectors"
	"github.com/hed1ad/gostatsig/pkg/seasonality"
	"github.com/hed1ad/gostatsig/pkg/timeseries"
)

// State is what a ShouldUpdate predicate sees before a scoring call.
type State struct {
	Data       *timeseries.Series
	Historical *timeseries.Series
	TimeUnit   string
	LastN      int
	Previous   *detectors.Response
}

// ShouldUpdate decides whether a call recomputes scores. When it returns
// false the call returns the trailing LastN rows of the previous response.
type ShouldUpdate func(State) bool

// TimeUnitResolver resolves the time unit label of a call.
type TimeUnitResolver func(data, historical *timeseries.Series) (string, error)

func alwaysUpdate(State) bool { return true }

type options struct {
	log          zerolog.Logger
	shouldUpdate ShouldUpdate
	resolver     TimeUnitResolver
	lpjFactor    float64
	parallelism  int
}

func defaultOptions() options {
	return options{
		log:          zerolog.Nop(),
		shouldUpdate: alwaysUpdate,
		lpjFactor:    seasonality.DefaultLowPassJumpFactor,
		parallelism:  1,
	}
}

// Option configures a Detector or MultiDetector.
type Option func(*options)

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) {
		o.log = l
	}
}

// WithShouldUpdate installs the recomputation guard.
func WithShouldUpdate(fn ShouldUpdate) Option {
	return func(o *options) {
		if fn != nil {
			o.shouldUpdate = fn
		}
	}
}

// WithTimeUnitResolver replaces time unit inference. The resolved label must
// still be non-empty or the call fails.
func WithTimeUnitResolver(fn TimeUnitResolver) Option {
	return func(o *options) {
		o.resolver = fn
	}
}

// WithLowPassJumpFactor sets the low-pass jump factor passed to seasonality removal.
func WithLowPassJumpFactor(f float64) Option {
	return func(o *options) {
		o.lpjFactor = f
	}
}

// WithParallelism bounds how many columns a MultiDetector scores concurrently.
func WithParallelism(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.parallelism = n
		}
	}
}

// CallOption adjusts a single MultiDetector call.
type CallOption func(*callOptions)

type callOptions struct {
	remSeason *bool
}

// RemoveSeason overrides the configured seasonality removal for one call.
func RemoveSeason(on bool) CallOption {
	return func(c *callOptions) {
		c.remSeason = &on
	}
}
