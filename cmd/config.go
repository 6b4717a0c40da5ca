package cmd

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/joescharf/autograde/internal/grading"
)

var configForce bool

// configDirFunc returns the config directory path, replaceable in tests.
var configDirFunc = defaultConfigDir

func defaultConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "autograde"), nil
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or manage configuration",
	Long: `Show or manage autograde configuration.

Running bare 'autograde config' is the same as 'autograde config show'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create config file with commented defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configInitRun()
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration with sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Open config file in $EDITOR",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configEditRun()
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite existing config file")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configEditCmd)
	rootCmd.AddCommand(configCmd)
}

// configTemplate is the template for generating config.yaml with comments.
const configTemplate = `# autograde configuration
# See: autograde config show (for effective values and sources)

# State/data directory (default: ~/.config/autograde)
# state_dir: {{ .StateDir }}

# SQLite database of graded submissions
# db_path: {{ .DBPath }}

# Where checkouts are made (default: system temp dir)
# workspace_dir: ""

# Grading backend
grading:
  # One of: {{ .Providers }}
  provider: "{{ .Provider }}"

  # Model name (empty uses the provider default)
  model: "{{ .Model }}"

  # Override the vendor endpoint (e.g. a local Ollama)
  base_url: "{{ .BaseURL }}"

  # Bound on one grading request
  timeout: {{ .Timeout }}

  max_tokens: {{ .MaxTokens }}

# Late submission policy, in percent of max points
penalty:
  per_day_rate: {{ .PerDayRate }}
  cap_rate: {{ .CapRate }}
  grace_hours: {{ .GraceHours }}

git:
  # Remote existence check (git ls-remote)
  check_timeout: {{ .CheckTimeout }}
  # Shallow clone
  clone_timeout: {{ .CloneTimeout }}

# Unity project discovery inside a checkout
project:
  max_depth: {{ .MaxDepth }}

batch:
  # Submissions graded in parallel by 'autograde batch'
  concurrency: {{ .Concurrency }}

server:
  port: {{ .Port }}
`

type configTemplateData struct {
	StateDir     string
	DBPath       string
	Providers    string
	Provider     string
	Model        string
	BaseURL      string
	Timeout      string
	MaxTokens    int
	PerDayRate   float64
	CapRate      float64
	GraceHours   float64
	CheckTimeout string
	CloneTimeout string
	MaxDepth     int
	Concurrency  int
	Port         int
}

func configFilePath() (string, error) {
	dir, err := configDirFunc()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

func configInitRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	// Check if file already exists
	if _, err := os.Stat(cfgPath); err == nil {
		if !configForce {
			return fmt.Errorf("config file already exists: %s (use --force to overwrite)", cfgPath)
		}
		ui.Warning("Overwriting existing config file")
	}

	// Build template data from current viper values
	data := configTemplateData{
		StateDir:     viper.GetString("state_dir"),
		DBPath:       viper.GetString("db_path"),
		Providers:    strings.Join(grading.Providers, ", "),
		Provider:     viper.GetString("grading.provider"),
		Model:        viper.GetString("grading.model"),
		BaseURL:      viper.GetString("grading.base_url"),
		Timeout:      viper.GetString("grading.timeout"),
		MaxTokens:    viper.GetInt("grading.max_tokens"),
		PerDayRate:   viper.GetFloat64("penalty.per_day_rate"),
		CapRate:      viper.GetFloat64("penalty.cap_rate"),
		GraceHours:   viper.GetFloat64("penalty.grace_hours"),
		CheckTimeout: viper.GetString("git.check_timeout"),
		CloneTimeout: viper.GetString("git.clone_timeout"),
		MaxDepth:     viper.GetInt("project.max_depth"),
		Concurrency:  viper.GetInt("batch.concurrency"),
		Port:         viper.GetInt("server.port"),
	}

	tmpl, err := template.New("config").Parse(configTemplate)
	if err != nil {
		return fmt.Errorf("template parse error: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("template execute error: %w", err)
	}

	if dryRun {
		ui.DryRunMsg("Would create config file: %s", cfgPath)
		fmt.Fprintln(ui.Out)
		fmt.Fprint(ui.Out, buf.String())
		return nil
	}

	// Create config directory
	dir := filepath.Dir(cfgPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(cfgPath, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	ui.Success("Config file created: %s", cfgPath)
	fmt.Fprintln(ui.Out)
	fmt.Fprint(ui.Out, buf.String())
	return nil
}

// configKeyInfo describes a config key for display purposes.
type configKeyInfo struct {
	Key    string
	EnvVar string
}

var configKeys = []configKeyInfo{
	{Key: "state_dir", EnvVar: "AUTOGRADE_STATE_DIR"},
	{Key: "db_path", EnvVar: "AUTOGRADE_DB_PATH"},
	{Key: "workspace_dir", EnvVar: "AUTOGRADE_WORKSPACE_DIR"},
	{Key: "grading.provider", EnvVar: "AUTOGRADE_GRADING_PROVIDER"},
	{Key: "grading.model", EnvVar: "AUTOGRADE_GRADING_MODEL"},
	{Key: "grading.api_key", EnvVar: "AUTOGRADE_GRADING_API_KEY"},
	{Key: "grading.base_url", EnvVar: "AUTOGRADE_GRADING_BASE_URL"},
	{Key: "grading.timeout", EnvVar: "AUTOGRADE_GRADING_TIMEOUT"},
	{Key: "grading.max_tokens", EnvVar: "AUTOGRADE_GRADING_MAX_TOKENS"},
	{Key: "penalty.per_day_rate", EnvVar: "AUTOGRADE_PENALTY_PER_DAY_RATE"},
	{Key: "penalty.cap_rate", EnvVar: "AUTOGRADE_PENALTY_CAP_RATE"},
	{Key: "penalty.grace_hours", EnvVar: "AUTOGRADE_PENALTY_GRACE_HOURS"},
	{Key: "git.check_timeout", EnvVar: "AUTOGRADE_GIT_CHECK_TIMEOUT"},
	{Key: "git.clone_timeout", EnvVar: "AUTOGRADE_GIT_CLONE_TIMEOUT"},
	{Key: "project.max_depth", EnvVar: "AUTOGRADE_PROJECT_MAX_DEPTH"},
	{Key: "project.skip_dirs", EnvVar: "AUTOGRADE_PROJECT_SKIP_DIRS"},
	{Key: "batch.concurrency", EnvVar: "AUTOGRADE_BATCH_CONCURRENCY"},
	{Key: "server.port", EnvVar: "AUTOGRADE_SERVER_PORT"},
}

func configShowRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	// Check if config file exists
	if _, err := os.Stat(cfgPath); err == nil {
		ui.Info("Config file: %s", cfgPath)
	} else {
		ui.Info("Config file: (none)")
	}
	fmt.Fprintln(ui.Out)

	// Read config file values to determine file source
	fileValues := readConfigFileValues(cfgPath)

	for _, k := range configKeys {
		val := viper.Get(k.Key)
		if k.Key == "grading.api_key" {
			val = maskSecret(viper.GetString(k.Key))
		}
		source := detectSource(k.Key, k.EnvVar, fileValues)
		fmt.Fprintf(ui.Out, "  %-22s %v  %s\n", k.Key, val, source)
	}

	return nil
}

// maskSecret hides all but the last four characters of a credential.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 4 {
		return "****"
	}
	return "****" + s[len(s)-4:]
}

// readConfigFileValues reads the raw YAML file and returns a flat map of keys present in it.
func readConfigFileValues(path string) map[string]bool {
	result := make(map[string]bool)

	data, err := os.ReadFile(path)
	if err != nil {
		return result
	}

	var parsed map[string]any
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return result
	}

	// Flatten nested keys with dot notation
	flattenKeys("", parsed, result)
	return result
}

// flattenKeys recursively flattens a nested map to dot-notation keys.
func flattenKeys(prefix string, m map[string]any, result map[string]bool) {
	for key, val := range m {
		fullKey := key
		if prefix != "" {
			fullKey = prefix + "." + key
		}
		if nested, ok := val.(map[string]any); ok {
			flattenKeys(fullKey, nested, result)
		} else {
			result[fullKey] = true
		}
	}
}

// detectSource determines where a config value is coming from.
func detectSource(key, envVar string, fileValues map[string]bool) string {
	if _, ok := os.LookupEnv(envVar); ok {
		return fmt.Sprintf("(env: %s)", envVar)
	}
	if fileValues[key] {
		return "(file)"
	}
	return "(default)"
}

func configEditRun() error {
	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = os.Getenv("VISUAL")
	}
	if editor == "" {
		return fmt.Errorf("$EDITOR is not set; set it to your preferred editor (e.g. export EDITOR=vim)")
	}

	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s (run 'autograde config init' first)", cfgPath)
	}

	if dryRun {
		ui.DryRunMsg("Would open %s in %s", cfgPath, editor)
		return nil
	}

	editCmd := exec.Command(editor, cfgPath)
	editCmd.Stdin = os.Stdin
	editCmd.Stdout = os.Stdout
	editCmd.Stderr = os.Stderr
	return editCmd.Run()
}
