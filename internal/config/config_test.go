package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
api:
  token: "secret"
db:
  dsn: "postgres://localhost/tmdb"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "https://api.themoviedb.org/3", cfg.API.BaseURL)
	require.Equal(t, float64(29), cfg.API.RequestsPerSecond)
	require.Equal(t, 3, cfg.API.MaxAttempts)
	require.Equal(t, 100, cfg.Pipeline.BatchSize)
	require.Equal(t, 3, cfg.Pipeline.MaxRetries)
	require.Equal(t, 24*time.Hour, cfg.DumpInterval())
	require.Equal(t, 30*24*time.Hour, cfg.Staleness())
	require.Equal(t, time.Hour, cfg.StuckThreshold())
	require.Equal(t, 60*time.Second, cfg.IdlePollMax())
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, `
api:
  token: "secret"
  requests_per_second: 10
  backoff_max_seconds: 20
db:
  dsn: "postgres://localhost/tmdb"
pipeline:
  batch_size: 25
  staleness_days: 7
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, float64(10), cfg.API.RequestsPerSecond)
	require.Equal(t, 20, cfg.API.BackoffMaxSec)
	require.Equal(t, 25, cfg.Pipeline.BatchSize)
	require.Equal(t, 7*24*time.Hour, cfg.Staleness())
}

func TestValidateRejectsMissingToken(t *testing.T) {
	path := writeConfig(t, `
db:
  dsn: "postgres://localhost/tmdb"
`)

	_, err := Load(path)
	require.ErrorContains(t, err, "api.token is required")
}

func TestValidateRejectsMissingDSN(t *testing.T) {
	path := writeConfig(t, `
api:
  token: "secret"
db:
  dsn: ""
`)

	_, err := Load(path)
	require.ErrorContains(t, err, "db.dsn is required")
}

func TestValidateRejectsBadBatchSize(t *testing.T) {
	path := writeConfig(t, `
api:
  token: "secret"
db:
  dsn: "postgres://localhost/tmdb"
pipeline:
  batch_size: 0
`)

	_, err := Load(path)
	require.ErrorContains(t, err, "pipeline.batch_size")
}
