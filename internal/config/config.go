// Package config defines the Deskmate configuration, loaded through viper
// from a YAML file, environment variables (DESKMATE_ prefix), and defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config represents the complete Deskmate configuration.
type Config struct {
	Agent     AgentConfig     `mapstructure:"agent"`
	Capture   CaptureConfig   `mapstructure:"capture"`
	Proactive ProactiveConfig `mapstructure:"proactive"`
	Speech    SpeechConfig    `mapstructure:"speech"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Paths     PathsConfig     `mapstructure:"paths"`
}

// AgentConfig controls the background agent subprocess.
type AgentConfig struct {
	// Command is the executable that runs the background agent.
	Command string `mapstructure:"command"`
	// Args are passed to the agent command verbatim.
	Args []string `mapstructure:"args"`
	// RequestTimeoutSeconds is the per-request timeout on the bridge.
	RequestTimeoutSeconds int `mapstructure:"request_timeout_seconds"`
	// RestartBackoffMs is the fixed delay before restarting the agent
	// after an unexpected exit.
	RestartBackoffMs int `mapstructure:"restart_backoff_ms"`
}

// CaptureConfig controls the periodic snapshot service.
type CaptureConfig struct {
	// Enabled turns periodic capture on or off at startup.
	Enabled bool `mapstructure:"enabled"`
	// IntervalSeconds is the capture cadence, clamped to [2, 60].
	IntervalSeconds int `mapstructure:"interval_seconds"`
}

// ProactiveConfig controls the autonomous nudge scheduler.
type ProactiveConfig struct {
	// Enabled turns the scheduler on or off at startup.
	Enabled bool `mapstructure:"enabled"`
	// TickSeconds is how often guardrails are evaluated.
	TickSeconds int `mapstructure:"tick_seconds"`
	// MinIdleMinutes is the minimum user idle time before a nudge.
	MinIdleMinutes int `mapstructure:"min_idle_minutes"`
	// CooldownMinutes is the minimum gap between two nudges.
	CooldownMinutes int `mapstructure:"cooldown_minutes"`
	// MaxPerDay caps nudges per calendar day.
	MaxPerDay int `mapstructure:"max_per_day"`
	// RandomChance in [0, 1] gates each permitted tick.
	RandomChance float64 `mapstructure:"random_chance"`
	// QuietStartHour and QuietEndHour bound the quiet-hours window
	// (hour of day, 0-23). The window may wrap around midnight.
	QuietStartHour int `mapstructure:"quiet_start_hour"`
	QuietEndHour   int `mapstructure:"quiet_end_hour"`
}

// SpeechConfig controls the text-to-speech collaborator.
type SpeechConfig struct {
	// TTSEndpoint is the URL of the speech synthesis API.
	TTSEndpoint string `mapstructure:"tts_endpoint"`
	// TTSVoice selects the synthesis voice.
	TTSVoice string `mapstructure:"tts_voice"`
	// APIKeyEnv names the environment variable holding the API key.
	APIKeyEnv string `mapstructure:"api_key_env"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	// Level is one of DEBUG, INFO, WARN, ERROR.
	Level string `mapstructure:"level"`
}

// PathsConfig overrides the default on-disk locations.
type PathsConfig struct {
	// DataDir holds logs and the snapshot directory.
	// Defaults to ~/.local/share/deskmate.
	DataDir string `mapstructure:"data_dir"`
}

// SetDefaults registers default values with viper. Call before reading the
// config file so the defaults apply even when no file exists.
func SetDefaults() {
	viper.SetDefault("agent.command", "nanobot")
	viper.SetDefault("agent.args", []string{"desktop-bridge"})
	viper.SetDefault("agent.request_timeout_seconds", 120)
	viper.SetDefault("agent.restart_backoff_ms", 1500)

	viper.SetDefault("capture.enabled", false)
	viper.SetDefault("capture.interval_seconds", 10)

	viper.SetDefault("proactive.enabled", false)
	viper.SetDefault("proactive.tick_seconds", 60)
	viper.SetDefault("proactive.min_idle_minutes", 20)
	viper.SetDefault("proactive.cooldown_minutes", 45)
	viper.SetDefault("proactive.max_per_day", 6)
	viper.SetDefault("proactive.random_chance", 0.5)
	viper.SetDefault("proactive.quiet_start_hour", 22)
	viper.SetDefault("proactive.quiet_end_hour", 8)

	viper.SetDefault("speech.tts_endpoint", "")
	viper.SetDefault("speech.tts_voice", "alloy")
	viper.SetDefault("speech.api_key_env", "DESKMATE_TTS_API_KEY")

	viper.SetDefault("logging.level", "INFO")

	viper.SetDefault("paths.data_dir", "")
}

// Load unmarshals the current viper state into a Config and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ConfigDir returns the directory searched for the config file,
// ~/.config/deskmate.
func ConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "deskmate")
}

// ConfigFile returns the default config file path,
// ~/.config/deskmate/config.yaml.
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// DataDir resolves the data directory for the given config, falling back to
// ~/.local/share/deskmate when no override is set.
func (c *Config) DataDir() string {
	if c.Paths.DataDir != "" {
		return c.Paths.DataDir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "deskmate-data")
	}
	return filepath.Join(home, ".local", "share", "deskmate")
}

// SnapshotDir returns the directory the capture service writes snapshots to.
func (c *Config) SnapshotDir() string {
	return filepath.Join(c.DataDir(), "snapshots")
}
