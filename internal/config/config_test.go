package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "statsig.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "weekly", cfg.Detector.SeasonalPeriod)
	assert.Equal(t, 500, cfg.Detector.MaxSplitTSLength)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "csv", cfg.Output.Format)
	assert.Len(t, cfg.DetectorOptions(zerolog.Nop()), 3)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
detector:
  n_control: 28
  n_test: 7
  time_unit: D
  rem_season: true
  seasonal_period: biweekly
  use_corrected_scores: true
  max_split_ts_length: 100
  parallelism: 4
output:
  format: json
  threshold: 3.5
  db_driver: sqlite3
  db_dsn: scores.db
server:
  addr: ":9090"
  read_header_timeout: 5s
log:
  level: debug
  format: json
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	d := cfg.Detector
	assert.Equal(t, 28, d.NControl)
	assert.Equal(t, 7, d.NTest)
	assert.Equal(t, "D", d.TimeUnit)
	assert.True(t, d.RemSeason)
	assert.Equal(t, "biweekly", d.SeasonalPeriod)
	assert.True(t, d.UseCorrectedScores)
	assert.Equal(t, 100, d.MaxSplitTSLength)
	assert.Equal(t, 4, d.Parallelism)
	assert.Equal(t, 0.15, d.LowPassJumpFactor)
	assert.NoError(t, d.Validate())

	assert.Equal(t, "json", cfg.Output.Format)
	assert.Equal(t, 3.5, cfg.Output.Threshold)
	assert.Equal(t, "sqlite3", cfg.Output.DBDriver)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, 5*time.Second, cfg.Server.ReadHeaderTimeout)
	assert.Equal(t, 15*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, "detector:\n  n_control: 28\n  n_test: 7\n")
	t.Setenv("STATSIG_N_CONTROL", "14")
	t.Setenv("STATSIG_REM_SEASON", "true")
	t.Setenv("STATSIG_SERVER_ADDR", "127.0.0.1:7000")
	t.Setenv("STATSIG_THRESHOLD", "2")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 14, cfg.Detector.NControl)
	assert.Equal(t, 7, cfg.Detector.NTest)
	assert.True(t, cfg.Detector.RemSeason)
	assert.Equal(t, "127.0.0.1:7000", cfg.Server.Addr)
	assert.Equal(t, 2.0, cfg.Output.Threshold)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unknown field", "detector:\n  n_controls: 3\n"},
		{"bad output format", "output:\n  format: xml\n"},
		{"driver without dsn", "output:\n  db_driver: postgres\n"},
		{"bad driver", "output:\n  db_driver: oracle\n  db_dsn: x\n"},
		{"negative threshold", "output:\n  threshold: -1\n"},
		{"zero parallelism", "detector:\n  parallelism: 0\n"},
		{"bad log level", "log:\n  level: loud\n"},
		{"not yaml", "detector: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			assert.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestDecodeEmpty(t *testing.T) {
	cfg := Default()
	require.NoError(t, Decode(nil, &cfg))
	assert.Equal(t, Default().Server, cfg.Server)
}
