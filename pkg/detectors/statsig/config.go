package statsig

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/hed1ad/gostatsig/pkg/detectors"
	"github.com/hed1ad/gostatsig/pkg/seasonality"
	"github.com/hed1ad/gostatsig/pkg/timeseries"
)

const (
	// DefaultSeasonalPeriod is the seasonal period used when none is configured.
	DefaultSeasonalPeriod = "weekly"
	// DefaultMaxSplitTSLength is the chunk size of the big-data transform.
	DefaultMaxSplitTSLength = 500
)

// Config is the persisted configuration of a statistical significance detector.
// NControl and NTest are durations expressed in TimeUnit; an empty TimeUnit is
// inferred from the cadence of the scored data.
type Config struct {
	NControl           int    `json:"n_control" yaml:"n_control" validate:"required,min=1"`
	NTest              int    `json:"n_test" yaml:"n_test" validate:"required,min=1"`
	TimeUnit           string `json:"time_unit" yaml:"time_unit" validate:"omitempty,timeunit"`
	RemSeason          bool   `json:"rem_season" yaml:"rem_season"`
	SeasonalPeriod     string `json:"seasonal_period" yaml:"seasonal_period" validate:"required,seasonalperiod"`
	UseCorrectedScores bool   `json:"use_corrected_scores" yaml:"use_corrected_scores"`
	MaxSplitTSLength   int    `json:"max_split_ts_length" yaml:"max_split_ts_length" validate:"min=1"`
}

// DefaultConfig returns the default configuration for the given windows.
func DefaultConfig(nControl, nTest int) Config {
	return Config{
		NControl:         nControl,
		NTest:            nTest,
		SeasonalPeriod:   DefaultSeasonalPeriod,
		MaxSplitTSLength: DefaultMaxSplitTSLength,
	}
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func configValidator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())

		// report json names in messages
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			tag := fld.Tag.Get("json")
			if idx := strings.Index(tag, ","); idx >= 0 {
				tag = tag[:idx]
			}
			if tag == "" || tag == "-" {
				return fld.Name
			}
			return tag
		})
		_ = v.RegisterValidation("timeunit", func(fl validator.FieldLevel) bool {
			_, err := timeseries.ParseTimeUnit(fl.Field().String())
			return err == nil
		})
		_ = v.RegisterValidation("seasonalperiod", func(fl validator.FieldLevel) bool {
			return seasonality.Supported(fl.Field().String())
		})

		validate = v
	})
	return validate
}

// Validate checks the configuration and returns an error wrapping
// detectors.ErrConfiguration that names every offending field.
func (c Config) Validate() error {
	err := configValidator().Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", detectors.ErrConfiguration, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fe.Field()+" is required")
		case "min":
			msgs = append(msgs, fe.Field()+" must be at least "+fe.Param())
		default:
			msgs = append(msgs, fmt.Sprintf("%s has invalid value %q", fe.Field(), fmt.Sprint(fe.Value())))
		}
	}
	return fmt.Errorf("%w: %s", detectors.ErrConfiguration, strings.Join(msgs, "; "))
}

// Serialize encodes the configuration as a flat JSON record with every field
// present in a fixed order.
func (c Config) Serialize() ([]byte, error) {
	fields := []struct {
		key   string
		value any
	}{
		{"n_control", c.NControl},
		{"n_test", c.NTest},
		{"time_unit", c.TimeUnit},
		{"rem_season", c.RemSeason},
		{"seasonal_period", c.SeasonalPeriod},
		{"use_corrected_scores", c.UseCorrectedScores},
		{"max_split_ts_length", c.MaxSplitTSLength},
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range fields {
		if i > 0 {
			buf.WriteString(", ")
		}
		v, err := json.Marshal(f.value)
		if err != nil {
			return nil, fmt.Errorf("encoding %s: %w", f.key, err)
		}
		buf.WriteString(`"` + f.key + `": `)
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// ParseConfig decodes a serialized configuration. Absent fields take their
// default values. The result is validated.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig(0, 0)
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("%w: decoding serialized model: %v", detectors.ErrConfiguration, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
