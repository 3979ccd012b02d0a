// Package config provides configuration management for unlockctl.
// Configuration is loaded from YAML files with environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Version is the current config schema version.
const Version = "1"

// Output format constants.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Default file paths.
const (
	GlobalConfigDir   = ".config/unlockctl"
	GlobalConfigFile  = "config.yaml"
	ProjectConfigFile = ".unlockctl.yaml"
)

// Default values.
const (
	DefaultFormat      = FormatText
	DefaultKillLockers = true
)

// Environment variable names.
const (
	EnvFormat      = "UNLOCKCTL_FORMAT"
	EnvReportDir   = "UNLOCKCTL_REPORT_DIR"
	EnvKillLockers = "UNLOCKCTL_KILL_LOCKERS"
	EnvDemo        = "UNLOCKCTL_DEMO"
)

// Config represents the complete unlockctl configuration.
type Config struct {
	Version string       `yaml:"version"`
	Scan    ScanConfig   `yaml:"scan"`
	Delete  DeleteConfig `yaml:"delete"`
	Output  OutputConfig `yaml:"output"`
	// Demo seeds fake lock findings instead of querying the OS facility,
	// for exercising the shell on platforms where the facility is missing.
	Demo bool `yaml:"demo"`
}

// ScanConfig holds scan settings.
type ScanConfig struct {
	// Exclude lists glob patterns (matched against file base names) to skip.
	Exclude []string `yaml:"exclude"`
}

// DeleteConfig holds deletion settings.
type DeleteConfig struct {
	// KillLockers clears lock-holding processes before trying strategies.
	KillLockers bool `yaml:"kill_lockers"`
}

// OutputConfig holds CLI output settings.
type OutputConfig struct {
	Format    string `yaml:"format"`
	ReportDir string `yaml:"report_dir"`
}

// Errors.
var (
	ErrInvalidFormat = errors.New("invalid output format: must be 'text', 'json' or 'yaml'")
	ErrInvalidConfig = errors.New("invalid configuration")
)

// New creates a Config with default values.
func New() *Config {
	return &Config{
		Version: Version,
		Delete: DeleteConfig{
			KillLockers: DefaultKillLockers,
		},
		Output: OutputConfig{
			Format: DefaultFormat,
		},
	}
}

// LoadOptions configures config loading behavior.
type LoadOptions struct {
	// ExplicitPath overrides config discovery (--config flag).
	ExplicitPath string
	// SkipGlobal skips loading global config (~/.config/unlockctl/config.yaml).
	SkipGlobal bool
	// SkipProject skips loading project config (.unlockctl.yaml).
	SkipProject bool
	// SkipEnv skips environment variable overrides.
	SkipEnv bool
}

// Load loads configuration with the following precedence (highest to lowest):
// 1. Environment variables
// 2. Project config (.unlockctl.yaml, discovered walking up from CWD)
// 3. Global config (~/.config/unlockctl/config.yaml)
// 4. Built-in defaults
//
// If ExplicitPath is set, it replaces both global and project configs.
func Load(opts LoadOptions) (*Config, error) {
	cfg := New()

	if !opts.SkipGlobal && opts.ExplicitPath == "" {
		globalPath, err := globalConfigPath()
		if err == nil {
			if loadErr := loadFile(cfg, globalPath); loadErr != nil && !os.IsNotExist(loadErr) {
				return nil, fmt.Errorf("load global config: %w", loadErr)
			}
		}
	}

	if !opts.SkipProject && opts.ExplicitPath == "" {
		projectPath, err := discoverProjectConfig()
		if err == nil {
			if loadErr := loadFile(cfg, projectPath); loadErr != nil && !os.IsNotExist(loadErr) {
				return nil, fmt.Errorf("load project config: %w", loadErr)
			}
		}
	}

	if opts.ExplicitPath != "" {
		if err := loadFile(cfg, opts.ExplicitPath); err != nil {
			return nil, fmt.Errorf("load config %s: %w", opts.ExplicitPath, err)
		}
	}

	if !opts.SkipEnv {
		applyEnvOverrides(cfg)
	}

	return cfg, nil
}

// loadFile reads and unmarshals a YAML config file into cfg.
// Fields not present in the file retain their current values (merge behavior).
func loadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // Config path from trusted source
	if err != nil {
		return err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	return nil
}

// globalConfigPath returns the path to the global config file.
func globalConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, GlobalConfigDir, GlobalConfigFile), nil
}

// discoverProjectConfig walks up from CWD looking for .unlockctl.yaml.
// Stops at git root or filesystem root.
func discoverProjectConfig() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}

	dir := cwd
	for {
		path := filepath.Join(dir, ProjectConfigFile)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}

		gitPath := filepath.Join(dir, ".git")
		if _, err := os.Stat(gitPath); err == nil {
			break
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", os.ErrNotExist
}

// applyEnvOverrides applies environment variable overrides to config.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv(EnvFormat); v != "" {
		cfg.Output.Format = strings.ToLower(v)
	}
	if v := os.Getenv(EnvReportDir); v != "" {
		cfg.Output.ReportDir = v
	}
	if v := os.Getenv(EnvKillLockers); v != "" {
		cfg.Delete.KillLockers = isTruthy(v)
	}
	if v := os.Getenv(EnvDemo); v != "" {
		cfg.Demo = isTruthy(v)
	}
}

// isTruthy interprets common boolean spellings; anything else is false.
func isTruthy(v string) bool {
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// CLIOverrides contains values from CLI flags that override config.
type CLIOverrides struct {
	Format    string
	ReportDir string
	Demo      bool
	DemoSet   bool
}

// ApplyCLIOverrides applies CLI flag values to config.
// Only set values are applied (highest priority).
func (cfg *Config) ApplyCLIOverrides(o CLIOverrides) {
	if o.Format != "" {
		cfg.Output.Format = strings.ToLower(o.Format)
	}
	if o.ReportDir != "" {
		cfg.Output.ReportDir = o.ReportDir
	}
	if o.DemoSet {
		cfg.Demo = o.Demo
	}
}

// Validate checks the configuration for errors.
func (cfg *Config) Validate() error {
	switch cfg.Output.Format {
	case FormatText, FormatJSON, FormatYAML:
		// Valid
	default:
		return fmt.Errorf("%w: got %q", ErrInvalidFormat, cfg.Output.Format)
	}

	for _, pattern := range cfg.Scan.Exclude {
		if _, err := filepath.Match(pattern, "probe"); err != nil {
			return fmt.Errorf("%w: bad exclude pattern %q: %w", ErrInvalidConfig, pattern, err)
		}
	}

	return nil
}

// String returns a human-readable representation of the config.
func (cfg *Config) String() string {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Sprintf("config error: %v", err)
	}
	return string(data)
}

// SaveGlobal writes the config to the global config file.
// Creates the directory if it doesn't exist.
func (cfg *Config) SaveGlobal() error {
	path, err := globalConfigPath()
	if err != nil {
		return fmt.Errorf("get global config path: %w", err)
	}
	return cfg.SaveTo(path)
}

// SaveTo writes the config to the specified path.
// Creates parent directories if needed.
func (cfg *Config) SaveTo(path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	return nil
}
