// Package config loads runtime settings from viper and rubric files from disk.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/joescharf/autograde/internal/grading"
	"github.com/joescharf/autograde/internal/penalty"
	"github.com/joescharf/autograde/internal/project"
)

// Config is the resolved application configuration.
type Config struct {
	StateDir     string           `json:"state_dir" mapstructure:"state_dir"`
	DBPath       string           `json:"db_path" mapstructure:"db_path"`
	WorkspaceDir string           `json:"workspace_dir" mapstructure:"workspace_dir"`
	Grading      grading.Settings `json:"grading" mapstructure:"grading"`
	Penalty      penalty.Policy   `json:"penalty" mapstructure:"penalty"`
	Git          GitConfig        `json:"git" mapstructure:"git"`
	Project      ProjectConfig    `json:"project" mapstructure:"project"`
	Batch        BatchConfig      `json:"batch" mapstructure:"batch"`
	Server       ServerConfig     `json:"server" mapstructure:"server"`
}

// GitConfig bounds the remote operations.
type GitConfig struct {
	CheckTimeout time.Duration `json:"check_timeout" mapstructure:"check_timeout"`
	CloneTimeout time.Duration `json:"clone_timeout" mapstructure:"clone_timeout"`
}

// ProjectConfig tunes project root discovery.
type ProjectConfig struct {
	MaxDepth int      `json:"max_depth" mapstructure:"max_depth"`
	SkipDirs []string `json:"skip_dirs" mapstructure:"skip_dirs"`
}

// BatchConfig controls roster processing.
type BatchConfig struct {
	Concurrency int `json:"concurrency" mapstructure:"concurrency"`
}

// ServerConfig configures the REST server.
type ServerConfig struct {
	Port int `json:"port" mapstructure:"port"`
}

// SetDefaults registers every default on v. stateDir holds the database and
// temporary workspaces unless overridden.
func SetDefaults(v *viper.Viper, stateDir string) {
	policy := penalty.DefaultPolicy()

	v.SetDefault("state_dir", stateDir)
	v.SetDefault("db_path", filepath.Join(stateDir, "autograde.db"))
	v.SetDefault("workspace_dir", "")

	v.SetDefault("grading.provider", grading.ProviderAnthropic)
	v.SetDefault("grading.model", "")
	v.SetDefault("grading.api_key", "")
	v.SetDefault("grading.base_url", "")
	v.SetDefault("grading.timeout", grading.DefaultTimeout.String())
	v.SetDefault("grading.max_tokens", grading.DefaultMaxTokens)

	v.SetDefault("penalty.per_day_rate", policy.PerDayRate)
	v.SetDefault("penalty.cap_rate", policy.CapRate)
	v.SetDefault("penalty.grace_hours", policy.GraceHours)

	v.SetDefault("git.check_timeout", "30s")
	v.SetDefault("git.clone_timeout", "5m")

	v.SetDefault("project.max_depth", project.DefaultMaxDepth)
	v.SetDefault("project.skip_dirs", project.DefaultSkipDirs())

	v.SetDefault("batch.concurrency", 1)
	v.SetDefault("server.port", 8474)
}

// Load decodes v into a Config. Durations accept Go duration strings and
// lists accept comma-separated strings from the environment. An empty
// grading.api_key falls back to the provider's conventional variable, such
// as ANTHROPIC_API_KEY.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if strings.TrimSpace(cfg.Grading.APIKey) == "" {
		if env := grading.KeyEnv(cfg.Grading.Provider); env != "" {
			cfg.Grading.APIKey = strings.TrimSpace(os.Getenv(env))
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings no component can run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Penalty.PerDayRate < 0 || c.Penalty.CapRate < 0 || c.Penalty.GraceHours < 0 {
		errs = append(errs, errors.New("penalty rates and grace hours must not be negative"))
	}
	if c.Penalty.CapRate > 100 {
		errs = append(errs, errors.New("penalty.cap_rate must not exceed 100"))
	}
	if c.Project.MaxDepth < 0 {
		errs = append(errs, errors.New("project.max_depth must not be negative"))
	}
	if c.Batch.Concurrency < 1 {
		errs = append(errs, errors.New("batch.concurrency must be at least 1"))
	}
	if c.Grading.Timeout <= 0 {
		errs = append(errs, errors.New("grading.timeout must be positive"))
	}
	if !knownProvider(c.Grading.Provider) {
		errs = append(errs, fmt.Errorf("grading.provider %q is not one of %v", c.Grading.Provider, grading.Providers))
	}
	return errors.Join(errs...)
}

func knownProvider(name string) bool {
	for _, p := range grading.Providers {
		if p == strings.ToLower(name) {
			return true
		}
	}
	return false
}

// Workspaces returns the directory that holds temporary checkouts.
func (c *Config) Workspaces() string {
	if c.WorkspaceDir != "" {
		return c.WorkspaceDir
	}
	return filepath.Join(os.TempDir(), "autograde")
}

// Finder builds a project finder from the discovery settings.
func (c *Config) Finder() *project.Finder {
	return &project.Finder{MaxDepth: c.Project.MaxDepth, Skip: c.Project.SkipDirs}
}

// LoadDotEnv loads environment files without overriding variables already
// set. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}
