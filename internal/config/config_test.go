package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/autograde/internal/grading"
	"github.com/joescharf/autograde/internal/project"
)

func newViper(t *testing.T) *viper.Viper {
	t.Helper()
	v := viper.New()
	SetDefaults(v, t.TempDir())
	return v
}

func TestLoad_Defaults(t *testing.T) {
	v := newViper(t)
	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, grading.ProviderAnthropic, cfg.Grading.Provider)
	assert.Equal(t, grading.DefaultTimeout, cfg.Grading.Timeout)
	assert.Equal(t, grading.DefaultMaxTokens, cfg.Grading.MaxTokens)
	assert.Equal(t, 10.0, cfg.Penalty.PerDayRate)
	assert.Equal(t, 50.0, cfg.Penalty.CapRate)
	assert.Equal(t, 30*time.Second, cfg.Git.CheckTimeout)
	assert.Equal(t, 5*time.Minute, cfg.Git.CloneTimeout)
	assert.Equal(t, filepath.Join(os.TempDir(), "autograde"), cfg.Workspaces())
	assert.Equal(t, project.DefaultMaxDepth, cfg.Project.MaxDepth)
	assert.Equal(t, project.DefaultSkipDirs(), cfg.Project.SkipDirs)
	assert.Equal(t, 1, cfg.Batch.Concurrency)
	assert.Equal(t, "autograde.db", filepath.Base(cfg.DBPath))
}

func TestLoad_Overrides(t *testing.T) {
	v := newViper(t)
	v.Set("grading.provider", "ollama")
	v.Set("grading.timeout", "45s")
	v.Set("project.skip_dirs", "Library,Temp")
	v.Set("penalty.grace_hours", 2)
	v.Set("batch.concurrency", 4)

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, "ollama", cfg.Grading.Provider)
	assert.Equal(t, 45*time.Second, cfg.Grading.Timeout)
	assert.Equal(t, []string{"Library", "Temp"}, cfg.Project.SkipDirs)
	assert.Equal(t, 2.0, cfg.Penalty.GraceHours)
	assert.Equal(t, 4, cfg.Batch.Concurrency)

	f := cfg.Finder()
	assert.Equal(t, project.DefaultMaxDepth, f.MaxDepth)
	assert.Equal(t, []string{"Library", "Temp"}, f.Skip)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  any
		want string
	}{
		{"negative rate", "penalty.per_day_rate", -1, "must not be negative"},
		{"cap above 100", "penalty.cap_rate", 150, "cap_rate"},
		{"zero concurrency", "batch.concurrency", 0, "concurrency"},
		{"unknown provider", "grading.provider", "watson", "watson"},
		{"zero timeout", "grading.timeout", "0s", "timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newViper(t)
			v.Set(tt.key, tt.val)
			_, err := Load(v)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_ProviderKeyFallback(t *testing.T) {
	t.Setenv("OPENROUTER_API_KEY", " from-vendor-env ")

	v := newViper(t)
	v.Set("grading.provider", "openrouter")
	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, "from-vendor-env", cfg.Grading.APIKey)

	v.Set("grading.api_key", "configured")
	cfg, err = Load(v)
	require.NoError(t, err)
	assert.Equal(t, "configured", cfg.Grading.APIKey, "configured key wins")

	v = newViper(t)
	v.Set("grading.provider", "ollama")
	cfg, err = Load(v)
	require.NoError(t, err)
	assert.Empty(t, cfg.Grading.APIKey)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("AUTOGRADE_TEST_DOTENV=from-file\n"), 0o644))
	t.Setenv("AUTOGRADE_TEST_DOTENV", "")
	require.NoError(t, os.Unsetenv("AUTOGRADE_TEST_DOTENV"))

	require.NoError(t, LoadDotEnv(filepath.Join(dir, "missing.env"), path))
	assert.Equal(t, "from-file", os.Getenv("AUTOGRADE_TEST_DOTENV"))
}

func TestLoadDotEnv_DoesNotOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("AUTOGRADE_TEST_KEEP=from-file\n"), 0o644))
	t.Setenv("AUTOGRADE_TEST_KEEP", "from-env")

	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "from-env", os.Getenv("AUTOGRADE_TEST_KEEP"))
}
