package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the brain decision engine.
// It is loaded from ~/.braind/config.yaml, can be overridden by environment
// variables, and is immutable after load: every component receives it by
// reference and never mutates it.
type Config struct {
	Brain   BrainConfig   `mapstructure:"brain" yaml:"brain"`
	Dream   DreamConfig   `mapstructure:"dream" yaml:"dream"`
	Oracle  OracleConfig  `mapstructure:"oracle" yaml:"oracle"`
	Data    DataConfig    `mapstructure:"data" yaml:"data"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
}

// BrainConfig controls the decision engine's operating mode and which actions
// it is permitted to surface.
type BrainConfig struct {
	// Enabled is the master switch. When false the engine neither records
	// nor acts; the conversation workflow runs as if the brain did not exist.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Mode selects the operating mode: "shadow", "reflex", or "conscious".
	// Unknown values resolve to shadow, the observe-only mode.
	Mode string `mapstructure:"mode" yaml:"mode"`

	// Actions holds the per-action toggles consulted in conscious mode.
	Actions ActionToggles `mapstructure:"actions" yaml:"actions"`

	// Reflex tunes the fast path: shorter oracle timeouts, single attempt.
	Reflex ReflexConfig `mapstructure:"reflex" yaml:"reflex"`
}

// ActionToggles enables or disables individual actions. The gate consults
// these only in conscious mode; reflex dispatch ignores them.
type ActionToggles struct {
	TemplateCustomize bool `mapstructure:"template_customize" yaml:"template_customize"`
	DateConfirm       bool `mapstructure:"date_confirm" yaml:"date_confirm"`
	AddonSuggest      bool `mapstructure:"addon_suggest" yaml:"addon_suggest"`
	QAAnswer          bool `mapstructure:"qa_answer" yaml:"qa_answer"`
	BargainingHandle  bool `mapstructure:"bargaining_handle" yaml:"bargaining_handle"`
	EscalateHuman     bool `mapstructure:"escalate_human" yaml:"escalate_human"`
	CancelBooking     bool `mapstructure:"cancel_booking" yaml:"cancel_booking"`
	FlowReset         bool `mapstructure:"flow_reset" yaml:"flow_reset"`
	DynamicGraph      bool `mapstructure:"dynamic_graph" yaml:"dynamic_graph"`
}

// ReflexConfig tunes reflex-mode behavior. Reflex turns run on the hot path,
// so they get a tighter timeout and no retry.
type ReflexConfig struct {
	// Timeout bounds each oracle call on reflex turns.
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
	// TemplateOnly restricts reflex responses to the fixed template set.
	TemplateOnly bool `mapstructure:"template_only" yaml:"template_only"`
}

// DreamConfig controls the background consolidation ("dreaming") cycle.
type DreamConfig struct {
	// Enabled gates the dream scheduler entirely.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// Interval is how often the scheduler wakes to attempt a cycle.
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`
	// MinConversations is the minimum recall size before a cycle may run.
	// Cycles with fewer recalled memories are a no-op, not an error.
	MinConversations int `mapstructure:"min_conversations" yaml:"min_conversations"`
	// HallucinationRatio is the fraction of generated examples that are
	// fully synthetic rather than grounded in recalled conversations (0.0-1.0).
	HallucinationRatio float64 `mapstructure:"hallucination_ratio" yaml:"hallucination_ratio"`
	// MaxDreamsPerCycle caps how many examples one cycle may generate.
	MaxDreamsPerCycle int `mapstructure:"max_dreams_per_cycle" yaml:"max_dreams_per_cycle"`
	// Model is the generation model used for dreaming.
	Model string `mapstructure:"model" yaml:"model"`
}

// OracleConfig configures the inference backends behind the pipeline stages.
type OracleConfig struct {
	// DefaultProvider backs the reasoning stages (conflict detection,
	// quality evaluation, goal decomposition, response proposal).
	DefaultProvider string `mapstructure:"default_provider" yaml:"default_provider"`
	// FastProvider backs intent prediction, which runs every turn and must
	// stay cheap. Empty means reuse DefaultProvider.
	FastProvider string `mapstructure:"fast_provider" yaml:"fast_provider"`
	// Providers maps provider names to their specific configuration.
	Providers map[string]ProviderConfig `mapstructure:"providers" yaml:"providers"`
	// StageTimeout bounds each oracle call outside reflex mode.
	StageTimeout time.Duration `mapstructure:"stage_timeout" yaml:"stage_timeout"`
	// Levels maps enumerated confidence levels to floats.
	Levels LevelMapping `mapstructure:"levels" yaml:"levels"`
}

// ProviderConfig contains configuration for a specific inference provider.
type ProviderConfig struct {
	// Endpoint is the API endpoint URL (primarily used for local providers like Ollama)
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint,omitempty"`
	// APIKey is the authentication key for the provider
	APIKey string `mapstructure:"api_key" yaml:"api_key,omitempty"`
	// Model is the specific model to use with this provider
	Model string `mapstructure:"model" yaml:"model,omitempty"`
	// Timeouts contains timeout configuration (primarily for Ollama)
	Timeouts *TimeoutConfig `mapstructure:"timeouts" yaml:"timeouts,omitempty"`
}

// TimeoutConfig contains timeout settings for inference providers.
// These are most relevant for Ollama which may experience cold start delays.
type TimeoutConfig struct {
	// ConnectionTimeoutSec is the time to establish HTTP connection (default: 30s)
	ConnectionTimeoutSec int `mapstructure:"connection_timeout_sec" yaml:"connection_timeout_sec,omitempty"`
	// FirstTokenTimeoutSec is the time to receive first token after connection.
	// This should be long enough to handle model loading (cold start) scenarios.
	FirstTokenTimeoutSec int `mapstructure:"first_token_timeout_sec" yaml:"first_token_timeout_sec,omitempty"`
	// StreamIdleTimeoutSec is the max time between tokens during streaming (default: 30s)
	StreamIdleTimeoutSec int `mapstructure:"stream_idle_timeout_sec" yaml:"stream_idle_timeout_sec,omitempty"`
}

// LevelMapping maps the oracle's enumerated confidence levels to floats.
// Backends may answer "low"/"medium"/"high" instead of a number; the mapping
// converts those to the [0,1] scale the pipeline works in.
type LevelMapping struct {
	Low    float64 `mapstructure:"low" yaml:"low"`
	Medium float64 `mapstructure:"medium" yaml:"medium"`
	High   float64 `mapstructure:"high" yaml:"high"`
}

// DataConfig locates the engine's SQLite database.
type DataConfig struct {
	// Dir is the directory holding brain.db.
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// LoggingConfig contains configuration for application logging.
type LoggingConfig struct {
	// Level is the log level ("debug", "info", "warn", "error")
	Level string `mapstructure:"level" yaml:"level"`
	// File is the path to the log file
	File string `mapstructure:"file" yaml:"file"`
}

// Default returns a Config populated with safe defaults: shadow mode, every
// action toggle off except template customization, dreaming enabled but
// gated on fifty conversations.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	brainDir := filepath.Join(homeDir, ".braind")

	return &Config{
		Brain: BrainConfig{
			Enabled: true,
			Mode:    "shadow",
			Actions: ActionToggles{
				TemplateCustomize: true,
			},
			Reflex: ReflexConfig{
				Timeout:      5 * time.Second,
				TemplateOnly: true,
			},
		},
		Dream: DreamConfig{
			Enabled:            true,
			Interval:           6 * time.Hour,
			MinConversations:   50,
			HallucinationRatio: 0.2,
			MaxDreamsPerCycle:  100,
			Model:              "llama3.2",
		},
		Oracle: OracleConfig{
			DefaultProvider: "ollama",
			FastProvider:    "",
			Providers: map[string]ProviderConfig{
				"ollama": {
					Endpoint: "http://127.0.0.1:11434",
					Model:    "llama3.2",
				},
			},
			StageTimeout: 10 * time.Second,
			Levels: LevelMapping{
				Low:    0.3,
				Medium: 0.6,
				High:   0.9,
			},
		},
		Data: DataConfig{
			Dir: brainDir,
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  filepath.Join(brainDir, "logs", "braind.log"),
		},
	}
}

// Load reads configuration from the default location (~/.braind/config.yaml)
// and merges with environment variables. If no config file exists, it creates
// one with default values.
func Load() (*Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}

	configPath := filepath.Join(homeDir, ".braind", "config.yaml")
	return LoadFromPath(configPath)
}

// LoadFromPath reads configuration from a specific file path and merges with
// environment variables. If the file doesn't exist, it creates one with default values.
func LoadFromPath(path string) (*Config, error) {
	// Expand tilde in path
	path = expandPath(path)

	// Ensure the config directory exists
	configDir := filepath.Dir(path)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	// Check if config file exists
	if _, err := os.Stat(path); os.IsNotExist(err) {
		// Create default config
		cfg := Default()
		if err := writeConfigFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to write default config: %w", err)
		}
	}

	// Configure Viper
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// Enable environment variable overrides
	// Example: BRAIND_BRAIN_MODE=reflex
	v.SetEnvPrefix("BRAIND")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read the config file
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Unmarshal into Config struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Expand paths with tilde
	cfg.Data.Dir = expandPath(cfg.Data.Dir)
	cfg.Logging.File = expandPath(cfg.Logging.File)

	cfg.applyDefaults()

	return &cfg, nil
}

// applyDefaults fills in missing values with sensible defaults so a sparse
// config file still yields a runnable engine.
func (c *Config) applyDefaults() {
	defaults := Default()

	if c.Brain.Mode == "" {
		c.Brain.Mode = defaults.Brain.Mode
	}
	if c.Brain.Reflex.Timeout == 0 {
		c.Brain.Reflex.Timeout = defaults.Brain.Reflex.Timeout
	}
	if c.Dream.Interval == 0 {
		c.Dream.Interval = defaults.Dream.Interval
	}
	if c.Dream.MinConversations == 0 {
		c.Dream.MinConversations = defaults.Dream.MinConversations
	}
	if c.Dream.MaxDreamsPerCycle == 0 {
		c.Dream.MaxDreamsPerCycle = defaults.Dream.MaxDreamsPerCycle
	}
	if c.Dream.Model == "" {
		c.Dream.Model = defaults.Dream.Model
	}
	if c.Oracle.DefaultProvider == "" {
		c.Oracle.DefaultProvider = defaults.Oracle.DefaultProvider
	}
	if c.Oracle.StageTimeout == 0 {
		c.Oracle.StageTimeout = defaults.Oracle.StageTimeout
	}
	if c.Oracle.Levels == (LevelMapping{}) {
		c.Oracle.Levels = defaults.Oracle.Levels
	}
	if c.Data.Dir == "" {
		c.Data.Dir = defaults.Data.Dir
	}
	if c.Logging.Level == "" {
		c.Logging.Level = defaults.Logging.Level
	}
}

// Save writes the current configuration to the default config file location.
func (c *Config) Save() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	configPath := filepath.Join(homeDir, ".braind", "config.yaml")
	return c.SaveToPath(configPath)
}

// SaveToPath writes the current configuration to a specific file path.
func (c *Config) SaveToPath(path string) error {
	path = expandPath(path)

	// Ensure the config directory exists
	configDir := filepath.Dir(path)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	return writeConfigFile(path, c)
}

// GetDataDir returns the directory holding the engine's persistent state.
func (c *Config) GetDataDir() string {
	return c.Data.Dir
}

// DatabasePath returns the full path to the engine's SQLite database.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Data.Dir, "brain.db")
}

// EnsureDirectories creates all necessary directories for engine operation.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.Data.Dir,
		filepath.Dir(c.Logging.File),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}

// Validate checks the configuration for common errors and inconsistencies.
// An unknown or empty brain mode is not an error: it normalizes to shadow,
// the observe-only mode, so a typo can never stop the daemon or make the
// engine act more aggressively than intended.
func (c *Config) Validate() error {
	validModes := map[string]bool{"shadow": true, "reflex": true, "conscious": true}
	if !validModes[c.Brain.Mode] {
		c.Brain.Mode = "shadow"
	}

	if c.Oracle.DefaultProvider == "" {
		return fmt.Errorf("oracle.default_provider cannot be empty")
	}
	if _, exists := c.Oracle.Providers[c.Oracle.DefaultProvider]; !exists {
		return fmt.Errorf("default provider '%s' not found in providers map", c.Oracle.DefaultProvider)
	}
	if c.Oracle.FastProvider != "" {
		if _, exists := c.Oracle.Providers[c.Oracle.FastProvider]; !exists {
			return fmt.Errorf("fast provider '%s' not found in providers map", c.Oracle.FastProvider)
		}
	}

	if c.Dream.HallucinationRatio < 0.0 || c.Dream.HallucinationRatio > 1.0 {
		return fmt.Errorf("dream.hallucination_ratio must be between 0.0 and 1.0")
	}
	if c.Dream.MinConversations < 1 {
		return fmt.Errorf("dream.min_conversations must be at least 1")
	}
	if c.Dream.MaxDreamsPerCycle < 1 {
		return fmt.Errorf("dream.max_dreams_per_cycle must be at least 1")
	}

	for _, lv := range []float64{c.Oracle.Levels.Low, c.Oracle.Levels.Medium, c.Oracle.Levels.High} {
		if lv < 0.0 || lv > 1.0 {
			return fmt.Errorf("oracle.levels values must be between 0.0 and 1.0")
		}
	}
	if !(c.Oracle.Levels.Low <= c.Oracle.Levels.Medium && c.Oracle.Levels.Medium <= c.Oracle.Levels.High) {
		return fmt.Errorf("oracle.levels must be ordered: low <= medium <= high")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level '%s', must be one of: debug, info, warn, error", c.Logging.Level)
	}

	return nil
}

// writeConfigFile writes a Config struct to a YAML file.
// Uses gopkg.in/yaml.v3 directly to ensure proper tag-based serialization.
func writeConfigFile(path string, cfg *Config) error {
	// Marshal config to YAML bytes using yaml struct tags
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Write to file with proper permissions
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// expandPath expands ~ to the user's home directory in a path string.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(homeDir, path[1:])
	}
	return path
}
