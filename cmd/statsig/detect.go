package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/hed1ad/gostatsig/internal/config"
	"github.com/hed1ad/gostatsig/internal/logger"
	"github.com/hed1ad/gostatsig/pkg/detectors"
	"github.com/hed1ad/gostatsig/pkg/detectors/statsig"
	sio "github.com/hed1ad/gostatsig/pkg/io"
	"github.com/hed1ad/gostatsig/pkg/io/csv"
	"github.com/hed1ad/gostatsig/pkg/io/pcap"
	"github.com/hed1ad/gostatsig/pkg/io/sqlstore"
	"github.com/hed1ad/gostatsig/pkg/timeseries"
)

type detectFlags struct {
	data       string
	historical string
	pcap       string
	interval   time.Duration
	timeColumn string
	model      string
	out        string
	show       bool
}

func newDetectCmd(root *rootFlags) *cobra.Command {
	f := &detectFlags{}
	cmd := &cobra.Command{
		Use:   "detect",
		Short: "Score a CSV or pcap series and write the results",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := loadConfig(root)
			if err != nil {
				return err
			}
			applyDetectorFlags(cmd, &cfg)
			return runDetect(cmd, cfg, f, log)
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.data, "data", "", "CSV file with the points to score")
	fl.StringVar(&f.historical, "historical", "", "CSV file with history preceding --data")
	fl.StringVar(&f.pcap, "pcap", "", "pcap file bucketed into packets/bytes/tcp/udp columns")
	fl.DurationVar(&f.interval, "interval", pcap.DefaultInterval, "bucket width for --pcap")
	fl.StringVar(&f.timeColumn, "time-column", csv.DefaultTimeColumn, "CSV header of the timestamp column")
	fl.StringVar(&f.model, "model", "", "serialized detector configuration, overrides --config detector settings")
	fl.StringVar(&f.out, "out", "", "output file, overrides output.path (default stdout)")
	fl.BoolVar(&f.show, "show", false, "print a score table to stderr")

	fl.Int("n-control", 0, "control window length in time units")
	fl.Int("n-test", 0, "test window length in time units")
	fl.String("time-unit", "", "time unit of the windows, inferred when empty")
	fl.Bool("rem-season", false, "remove seasonality before scoring")
	fl.String("seasonal-period", statsig.DefaultSeasonalPeriod, "seasonal period removed by --rem-season")
	fl.Bool("corrected", false, "use pooled-variance scores")
	fl.Int("max-split", statsig.DefaultMaxSplitTSLength, "chunk length of the big-data transform")
	fl.Int("parallelism", 1, "columns scored at once")
	fl.String("format", "csv", "output format: csv or json")
	fl.Float64("threshold", 0, "flag points with |score| at or above this value")
	fl.String("db-driver", "", "also store results: sqlite3 or postgres")
	fl.String("db-dsn", "", "database DSN for --db-driver")
	return cmd
}

// applyDetectorFlags overrides configuration values with flags set on the command line.
func applyDetectorFlags(cmd *cobra.Command, cfg *config.Config) {
	fl := cmd.Flags()
	d := &cfg.Detector
	if fl.Changed("n-control") {
		d.NControl, _ = fl.GetInt("n-control")
	}
	if fl.Changed("n-test") {
		d.NTest, _ = fl.GetInt("n-test")
	}
	if fl.Changed("time-unit") {
		d.TimeUnit, _ = fl.GetString("time-unit")
	}
	if fl.Changed("rem-season") {
		d.RemSeason, _ = fl.GetBool("rem-season")
	}
	if fl.Changed("seasonal-period") {
		d.SeasonalPeriod, _ = fl.GetString("seasonal-period")
	}
	if fl.Changed("corrected") {
		d.UseCorrectedScores, _ = fl.GetBool("corrected")
	}
	if fl.Changed("max-split") {
		d.MaxSplitTSLength, _ = fl.GetInt("max-split")
	}
	if fl.Changed("parallelism") {
		d.Parallelism, _ = fl.GetInt("parallelism")
	}
	if fl.Changed("format") {
		cfg.Output.Format, _ = fl.GetString("format")
	}
	if fl.Changed("threshold") {
		cfg.Output.Threshold, _ = fl.GetFloat64("threshold")
	}
	if fl.Changed("db-driver") {
		cfg.Output.DBDriver, _ = fl.GetString("db-driver")
	}
	if fl.Changed("db-dsn") {
		cfg.Output.DBDSN, _ = fl.GetString("db-dsn")
	}
}

func runDetect(cmd *cobra.Command, cfg config.Config, f *detectFlags, log logger.Logger) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if (f.data == "") == (f.pcap == "") {
		return errors.New("exactly one of --data or --pcap is required")
	}
	if f.model != "" {
		parsed, err := statsig.ParseConfig([]byte(f.model))
		if err != nil {
			return err
		}
		cfg.Detector.Config = parsed
	}

	data, err := readInput(f, log)
	if err != nil {
		return err
	}
	var hist *timeseries.Series
	if f.historical != "" {
		if hist, err = readCSV(f.historical, f.timeColumn, log); err != nil {
			return fmt.Errorf("historical: %w", err)
		}
	}

	opts := cfg.DetectorOptions(log)
	var (
		resp    *detectors.Response
		visual  func(io.Writer) error
		unit    string
		bigData bool
	)
	if data.Width() > 1 {
		m, err := statsig.NewMulti(cfg.Detector.Config, opts...)
		if err != nil {
			return err
		}
		if resp, err = m.FitPredict(data, hist); err != nil {
			return err
		}
		visual, unit, bigData = m.Visualize, m.TimeUnit(), m.BigDataTransform()
	} else {
		d, err := statsig.New(cfg.Detector.Config, opts...)
		if err != nil {
			return err
		}
		if resp, err = d.FitPredict(data, hist); err != nil {
			return err
		}
		visual, unit, bigData = d.Visualize, d.TimeUnit(), d.BigDataTransform()
	}
	log.Info().
		Int("points", data.Len()).
		Int("columns", data.Width()).
		Str("time_unit", unit).
		Bool("big_data", bigData).
		Msg("scored")

	if f.show {
		if err := visual(cmd.ErrOrStderr()); err != nil {
			return err
		}
	}

	results := sio.ResultsFromResponse(resp, cfg.Output.Threshold)
	out := f.out
	if out == "" {
		out = cfg.Output.Path
	}
	if err := writeResults(cmd.OutOrStdout(), out, cfg.Output.Format, results); err != nil {
		return err
	}

	if cfg.Output.DBDriver != "" {
		store, err := sqlstore.Open(cmd.Context(), cfg.Output.DBDriver, cfg.Output.DBDSN)
		if err != nil {
			return err
		}
		defer store.Close()
		if err := store.WriteAllContext(cmd.Context(), results); err != nil {
			return err
		}
		log.Info().Str("run_id", store.RunID().String()).Int("rows", len(results)).Msg("results stored")
	}
	return nil
}

func readInput(f *detectFlags, log logger.Logger) (*timeseries.Series, error) {
	if f.pcap != "" {
		r, err := pcap.NewFileReader(f.pcap, f.interval)
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return r.Read()
	}
	return readCSV(f.data, f.timeColumn, log)
}

func readCSV(path, timeColumn string, log logger.Logger) (*timeseries.Series, error) {
	r, err := csv.NewReader(path, csv.WithTimeColumn(timeColumn), csv.WithLogger(log))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return r.Read()
}

func writeResults(stdout io.Writer, path, format string, results []sio.Result) error {
	if format == "json" {
		if path == "" {
			return encodeJSON(stdout, results)
		}
		file, err := os.Create(path)
		if err != nil {
			return err
		}
		if err := encodeJSON(file, results); err != nil {
			file.Close()
			return err
		}
		return file.Close()
	}

	w := csv.NewWriter(stdout)
	if path != "" {
		var err error
		if w, err = csv.NewFileWriter(path); err != nil {
			return err
		}
	}
	if err := w.WriteAll(results); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

func encodeJSON(w io.Writer, results []sio.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(results)
}
