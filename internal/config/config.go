// Package config loads the CLI and server configuration from YAML with
// STATSIG_* environment overrides.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/hed1ad/gostatsig/internal/env"
	"github.com/hed1ad/gostatsig/internal/logger"
	"github.com/hed1ad/gostatsig/pkg/detectors/statsig"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "STATSIG_"

// Config is the top-level configuration.
type Config struct {
	Detector Detector       `yaml:"detector" validate:"-"`
	Output   Output         `yaml:"output"`
	Server   Server         `yaml:"server"`
	Log      logger.Options `yaml:"log"`
}

// Detector holds the detector parameters and runtime knobs.
type Detector struct {
	statsig.Config `yaml:",inline"`

	// Parallelism bounds the number of columns scored at once.
	Parallelism int `yaml:"parallelism"`
	// LowPassJumpFactor is the trend smoother stride as a fraction of the cycle.
	LowPassJumpFactor float64 `yaml:"lpj_factor"`
}

// Output selects where scores go.
type Output struct {
	Format    string  `yaml:"format" validate:"oneof=csv json"`
	Path      string  `yaml:"path"`
	Threshold float64 `yaml:"threshold" validate:"gte=0"`
	DBDriver  string  `yaml:"db_driver" validate:"omitempty,oneof=sqlite3 postgres"`
	DBDSN     string  `yaml:"db_dsn" validate:"required_with=DBDriver"`
}

// Server configures the HTTP API.
type Server struct {
	Addr              string        `yaml:"addr" validate:"required"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout" validate:"gt=0"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout" validate:"gt=0"`
	MaxBodyBytes      int64         `yaml:"max_body_bytes" validate:"gt=0"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Detector: Detector{
			Config:            statsig.DefaultConfig(0, 0),
			Parallelism:       1,
			LowPassJumpFactor: 0.15,
		},
		Output: Output{
			Format: "csv",
		},
		Server: Server{
			Addr:              ":8080",
			ReadHeaderTimeout: 10 * time.Second,
			ShutdownTimeout:   15 * time.Second,
			MaxBodyBytes:      8 << 20,
		},
		Log: logger.FromEnv(),
	}
}

// Load reads path (may be empty), applies environment overrides and
// validates the result. Detector windows are not required here; commands
// that build a detector validate them.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := Decode(data, &cfg); err != nil {
			return Config{}, err
		}
	}
	cfg.ApplyEnv(env.New().Prefix(EnvPrefix))
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Decode strictly decodes YAML into cfg, keeping values absent from data.
func Decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode config: %w", err)
	}
	return nil
}

// ApplyEnv overrides fields from environment variables under rc.
func (c *Config) ApplyEnv(rc env.Conf) {
	d := &c.Detector
	d.NControl = rc.GetInt("N_CONTROL", d.NControl)
	d.NTest = rc.GetInt("N_TEST", d.NTest)
	d.TimeUnit = rc.Get("TIME_UNIT", d.TimeUnit)
	d.RemSeason = rc.GetBool("REM_SEASON", d.RemSeason)
	d.SeasonalPeriod = rc.Get("SEASONAL_PERIOD", d.SeasonalPeriod)
	d.UseCorrectedScores = rc.GetBool("USE_CORRECTED_SCORES", d.UseCorrectedScores)
	d.MaxSplitTSLength = rc.GetInt("MAX_SPLIT_TS_LENGTH", d.MaxSplitTSLength)
	d.Parallelism = rc.GetInt("PARALLELISM", d.Parallelism)
	d.LowPassJumpFactor = rc.GetFloat("LPJ_FACTOR", d.LowPassJumpFactor)

	c.Output.Format = strings.ToLower(rc.Get("OUTPUT_FORMAT", c.Output.Format))
	c.Output.Path = rc.Get("OUTPUT_PATH", c.Output.Path)
	c.Output.Threshold = rc.GetFloat("THRESHOLD", c.Output.Threshold)
	c.Output.DBDriver = rc.Get("DB_DRIVER", c.Output.DBDriver)
	c.Output.DBDSN = rc.Get("DB_DSN", c.Output.DBDSN)

	c.Server.Addr = rc.Get("SERVER_ADDR", c.Server.Addr)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the non-detector sections and the detector knobs.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Detector.Parallelism < 1 {
		return fmt.Errorf("invalid config: detector.parallelism must be at least 1, got %d", c.Detector.Parallelism)
	}
	if c.Detector.LowPassJumpFactor <= 0 {
		return fmt.Errorf("invalid config: detector.lpj_factor must be positive, got %g", c.Detector.LowPassJumpFactor)
	}
	return nil
}

// DetectorOptions returns the detector options implied by the configuration.
func (c Config) DetectorOptions(log zerolog.Logger) []statsig.Option {
	return []statsig.Option{
		statsig.WithLogger(log),
		statsig.WithParallelism(c.Detector.Parallelism),
		statsig.WithLowPassJumpFactor(c.Detector.LowPassJumpFactor),
	}
}
