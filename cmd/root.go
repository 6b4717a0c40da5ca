package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/autograde/internal/analysis"
	"github.com/joescharf/autograde/internal/config"
	"github.com/joescharf/autograde/internal/grading"
	"github.com/joescharf/autograde/internal/logging"
	"github.com/joescharf/autograde/internal/metrics"
	"github.com/joescharf/autograde/internal/output"
	"github.com/joescharf/autograde/internal/pipeline"
	"github.com/joescharf/autograde/internal/repo"
	"github.com/joescharf/autograde/internal/service"
	"github.com/joescharf/autograde/internal/store"
)

// Package-level shared dependencies, initialized in cobra.OnInitialize.
var (
	ui        *output.UI
	dataStore store.Store

	verbose bool
	dryRun  bool
	debug   bool
	logJSON bool
)

var rootCmd = &cobra.Command{
	Use:   "autograde",
	Short: "Grade Unity student submissions from their git repositories",
	Long: `autograde checks out student Unity projects, analyzes their C# scripts
and project layout, grades them against a rubric with an LLM backend,
and applies late penalties. Results are stored for later review.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	DisableAutoGenTag: true,
}

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig, initDeps)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVarP(&dryRun, "dry-run", "n", false, "Show what would happen without making changes")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "Emit logs as JSON")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/autograde/config.yaml)")
}

func initConfig() {
	configDir, err := configDirFunc()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot find home directory: %v\n", err)
		os.Exit(1)
	}

	// Provider keys may live in a .env next to the project or the config.
	if err := config.LoadDotEnv(".env", filepath.Join(configDir, ".env")); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}

	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(configDir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("AUTOGRADE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	config.SetDefaults(viper.GetViper(), configDir)

	// Read config file if it exists (optional)
	_ = viper.ReadInConfig()
}

func initDeps() {
	ui = output.New()
	ui.Verbose = verbose
	ui.DryRun = dryRun

	logging.Init(debug, logJSON)

	// The store is opened lazily so config and version work without a db.
}

// loadConfig decodes and validates the effective configuration.
func loadConfig() (*config.Config, error) {
	return config.Load(viper.GetViper())
}

// getStore returns the shared store, initializing it on first call.
func getStore(dbPath string) (store.Store, error) {
	if dataStore != nil {
		return dataStore, nil
	}

	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := s.Migrate(context.Background()); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	dataStore = s
	return dataStore, nil
}

// closeStore releases the shared store if one was opened.
func closeStore() {
	if dataStore != nil {
		_ = dataStore.Close()
		dataStore = nil
	}
}

// deps is everything a command needs to run submissions.
type deps struct {
	cfg     *config.Config
	svc     *service.Service
	metrics *metrics.Metrics
}

// buildService wires the pipeline from configuration. A grading backend
// that cannot be constructed leaves the service in analysis-only mode.
func buildService(ctx context.Context, withStore bool) (*deps, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	log := logging.Component("pipeline")

	runner := repo.NewGitRunner()
	locator := repo.NewLocator(runner, cfg.Git.CheckTimeout, logging.Component("repo"))
	acquirer := repo.NewAcquirer(cfg.Workspaces(), runner, logging.Component("repo"))
	acquirer.CloneTimeout = cfg.Git.CloneTimeout

	m := metrics.New()
	opts := pipeline.Options{
		Locator:      locator,
		Acquirer:     acquirer,
		Finder:       cfg.Finder(),
		Analyzer:     analysis.New(logging.Component("analysis")),
		Logger:       log,
		OnTransition: m.OnTransition,
	}

	backend := ""
	grader, err := grading.NewGraderFromSettings(ctx, cfg.Grading, nil, logging.Component("grading"))
	if err != nil {
		log.Warn().Err(err).Str("provider", cfg.Grading.Provider).Msg("grading backend unavailable; analysis only")
	} else {
		opts.Grader = grader
		backend = grader.Backend.Name()
		if !grader.Available() {
			ui.VerboseLog("Grading backend %s has no credentials; analysis only", backend)
		}
	}

	p, err := pipeline.New(opts)
	if err != nil {
		return nil, err
	}

	svc := &service.Service{
		Pipeline:    p,
		Checker:     locator,
		Observer:    m,
		Backend:     backend,
		Policy:      cfg.Penalty,
		Concurrency: cfg.Batch.Concurrency,
		Log:         logging.Component("service"),
	}
	if withStore {
		s, err := getStore(cfg.DBPath)
		if err != nil {
			return nil, err
		}
		svc.Store = s
	}

	return &deps{cfg: cfg, svc: svc, metrics: m}, nil
}
