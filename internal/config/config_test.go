package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"labstats/domain/stats"
	"labstats/internal"
	"labstats/internal/errors"
)

var configKeys = []string{
	"LOG_LEVEL", "LOG_DEVELOPMENT", "CORRECTION_METHOD", "ANALYSIS_WORKERS",
	"LOW_EXPECTED_COUNT", "DATABASE_URL", "DB_MAX_OPEN_CONNS", "DB_QUERY_TIMEOUT", "EXCEL_FILE",
}

// clearEnv unsets every key Load reads and restores a clean state afterwards,
// since godotenv writes straight into the process environment
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range configKeys {
		os.Unsetenv(k)
	}
	t.Cleanup(func() {
		for _, k := range configKeys {
			os.Unsetenv(k)
		}
	})
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadFile("")
	require.NoError(t, err)

	assert.Equal(t, internal.LogLevelInfo, cfg.Log.Level)
	assert.False(t, cfg.Log.Development)
	assert.Equal(t, stats.CorrectionHolm, cfg.Analysis.CorrectionMethod)
	assert.Equal(t, 4, cfg.Analysis.Workers)
	assert.Equal(t, 5.0, cfg.Analysis.LowExpectedCount)
	assert.Equal(t, "", cfg.Database.URL)
	assert.False(t, cfg.HasDatabase())
	assert.Equal(t, 10, cfg.Database.MaxOpenConns)
	assert.Equal(t, 30*time.Second, cfg.Database.QueryTimeout)
	assert.Equal(t, "", cfg.Data.WorkbookPath)
}

func TestLoadFromEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_DEVELOPMENT", "true")
	t.Setenv("CORRECTION_METHOD", "bh")
	t.Setenv("ANALYSIS_WORKERS", "8")
	t.Setenv("LOW_EXPECTED_COUNT", "2.5")
	t.Setenv("DATABASE_URL", "postgres://lab@localhost/lab?sslmode=disable")
	t.Setenv("DB_QUERY_TIMEOUT", "5s")
	t.Setenv("EXCEL_FILE", "data/experiment.xlsx")

	cfg, err := LoadFile("")
	require.NoError(t, err)

	assert.Equal(t, internal.LogLevelDebug, cfg.Log.Level)
	assert.True(t, cfg.Log.Development)
	assert.Equal(t, stats.CorrectionFDR, cfg.Analysis.CorrectionMethod)
	assert.Equal(t, 8, cfg.Analysis.Workers)
	assert.Equal(t, 2.5, cfg.Analysis.LowExpectedCount)
	assert.True(t, cfg.HasDatabase())
	assert.Equal(t, 5*time.Second, cfg.Database.QueryTimeout)
	assert.Equal(t, "data/experiment.xlsx", cfg.Data.WorkbookPath)
}

func TestLoadEnvFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), ".env")
	content := "CORRECTION_METHOD=bonferroni\nANALYSIS_WORKERS=7\nEXCEL_FILE=from-file.xlsx\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	// the environment wins over the file
	os.Setenv("ANALYSIS_WORKERS", "2")

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, stats.CorrectionBonferroni, cfg.Analysis.CorrectionMethod)
	assert.Equal(t, 2, cfg.Analysis.Workers)
	assert.Equal(t, "from-file.xlsx", cfg.Data.WorkbookPath)
}

func TestLoadMissingEnvFileIsIgnored(t *testing.T) {
	clearEnv(t)
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "absent.env"))
	require.NoError(t, err)
	assert.Equal(t, stats.CorrectionHolm, cfg.Analysis.CorrectionMethod)
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name, key, value string
	}{
		{"unknown log level", "LOG_LEVEL", "LOUD"},
		{"unknown correction", "CORRECTION_METHOD", "sidak"},
		{"zero workers", "ANALYSIS_WORKERS", "0"},
		{"negative threshold", "LOW_EXPECTED_COUNT", "-1"},
		{"zero connections", "DB_MAX_OPEN_CONNS", "0"},
		{"negative timeout", "DB_QUERY_TIMEOUT", "-3s"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)

			cfg, err := LoadFile("")
			assert.Nil(t, cfg)
			require.Error(t, err)
			assert.Equal(t, errors.CodeConfigInvalid, errors.GetCode(err))
		})
	}
}

func TestMalformedNumbersFallBackToDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("ANALYSIS_WORKERS", "many")
	t.Setenv("LOW_EXPECTED_COUNT", "five")
	t.Setenv("LOG_DEVELOPMENT", "maybe")

	cfg, err := LoadFile("")
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Analysis.Workers)
	assert.Equal(t, 5.0, cfg.Analysis.LowExpectedCount)
	assert.False(t, cfg.Log.Development)
}
