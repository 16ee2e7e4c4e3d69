package cmd

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/deskmate-app/deskmate/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or modify Deskmate configuration",
	Long: `View or modify Deskmate configuration.

Without arguments, displays the current configuration.
Use subcommands to modify settings or create a config file.`,
	RunE: runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE:  runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value in the user's config file.

Keys use dot notation, e.g.:
  deskmate config set capture.interval_seconds 15
  deskmate config set proactive.max_per_day 4
  deskmate config set proactive.random_chance 0.3

Valid keys:
  agent.command                  - Background agent executable
  agent.request_timeout_seconds  - Per-request timeout
  agent.restart_backoff_ms       - Restart delay after a crash
  capture.enabled                - Periodic snapshots (true/false)
  capture.interval_seconds       - Snapshot cadence, clamped to 2-60
  proactive.enabled              - Autonomous nudges (true/false)
  proactive.tick_seconds         - Guardrail evaluation cadence
  proactive.min_idle_minutes     - Minimum idle time before a nudge
  proactive.cooldown_minutes     - Minimum gap between nudges
  proactive.max_per_day          - Daily nudge cap
  proactive.random_chance        - Per-tick send probability (0-1)
  proactive.quiet_start_hour     - Quiet hours start (0-23)
  proactive.quiet_end_hour       - Quiet hours end (0-23)
  speech.tts_endpoint            - Speech synthesis API URL
  speech.tts_voice               - Synthesis voice
  logging.level                  - DEBUG, INFO, WARN or ERROR`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a default config file",
	Long:  `Create a default config file at ~/.config/deskmate/config.yaml with all available options.`,
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show the config file path",
	RunE:  runConfigPath,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	fmt.Println("Current configuration:")
	fmt.Println()

	// Show where config is being read from
	if viper.ConfigFileUsed() != "" {
		fmt.Printf("Config file: %s\n", viper.ConfigFileUsed())
	} else {
		fmt.Printf("Config file: (none - using defaults)\n")
	}
	fmt.Println()

	fmt.Println("agent:")
	fmt.Printf("  command: %s\n", cfg.Agent.Command)
	fmt.Printf("  args: %s\n", strings.Join(cfg.Agent.Args, " "))
	fmt.Printf("  request_timeout_seconds: %d\n", cfg.Agent.RequestTimeoutSeconds)
	fmt.Printf("  restart_backoff_ms: %d\n", cfg.Agent.RestartBackoffMs)

	fmt.Println("capture:")
	fmt.Printf("  enabled: %v\n", cfg.Capture.Enabled)
	fmt.Printf("  interval_seconds: %d\n", cfg.Capture.IntervalSeconds)

	fmt.Println("proactive:")
	fmt.Printf("  enabled: %v\n", cfg.Proactive.Enabled)
	fmt.Printf("  tick_seconds: %d\n", cfg.Proactive.TickSeconds)
	fmt.Printf("  min_idle_minutes: %d\n", cfg.Proactive.MinIdleMinutes)
	fmt.Printf("  cooldown_minutes: %d\n", cfg.Proactive.CooldownMinutes)
	fmt.Printf("  max_per_day: %d\n", cfg.Proactive.MaxPerDay)
	fmt.Printf("  random_chance: %g\n", cfg.Proactive.RandomChance)
	fmt.Printf("  quiet_start_hour: %d\n", cfg.Proactive.QuietStartHour)
	fmt.Printf("  quiet_end_hour: %d\n", cfg.Proactive.QuietEndHour)

	fmt.Println("speech:")
	fmt.Printf("  tts_endpoint: %s\n", cfg.Speech.TTSEndpoint)
	fmt.Printf("  tts_voice: %s\n", cfg.Speech.TTSVoice)
	fmt.Printf("  api_key_env: %s\n", cfg.Speech.APIKeyEnv)

	fmt.Println("logging:")
	fmt.Printf("  level: %s\n", cfg.Logging.Level)

	fmt.Println("paths:")
	fmt.Printf("  data_dir: %s\n", cfg.DataDir())

	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key := args[0]
	value := args[1]

	// Validate the key exists
	validKeys := map[string]string{
		"agent.command":                 "string",
		"agent.request_timeout_seconds": "int",
		"agent.restart_backoff_ms":      "int",
		"capture.enabled":               "bool",
		"capture.interval_seconds":      "int",
		"proactive.enabled":             "bool",
		"proactive.tick_seconds":        "int",
		"proactive.min_idle_minutes":    "int",
		"proactive.cooldown_minutes":    "int",
		"proactive.max_per_day":         "int",
		"proactive.random_chance":       "float",
		"proactive.quiet_start_hour":    "int",
		"proactive.quiet_end_hour":      "int",
		"speech.tts_endpoint":           "string",
		"speech.tts_voice":              "string",
		"logging.level":                 "string",
	}

	keyType, ok := validKeys[key]
	if !ok {
		return fmt.Errorf("unknown configuration key: %s\nRun 'deskmate config set --help' to see valid keys", key)
	}

	// Validate the value based on type
	var typedValue interface{}
	switch keyType {
	case "string":
		typedValue = value
	case "bool":
		if value != "true" && value != "false" {
			return fmt.Errorf("invalid value for %s: expected true or false", key)
		}
		typedValue = value == "true"
	case "int":
		intVal, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for %s: expected integer", key)
		}
		if intVal < 0 {
			return fmt.Errorf("invalid value for %s: must be non-negative", key)
		}
		typedValue = intVal
	case "float":
		floatVal, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid value for %s: expected number", key)
		}
		typedValue = floatVal
	}

	// Reject values the validator would refuse at startup
	viper.Set(key, typedValue)
	if _, err := config.Load(); err != nil {
		return err
	}

	// Ensure config directory exists
	configDir := config.ConfigDir()
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Write to config file
	configFile := config.ConfigFile()
	if err := viper.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	fmt.Printf("Set %s = %v\n", key, typedValue)
	fmt.Printf("Config saved to %s\n", configFile)

	return nil
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	configDir := config.ConfigDir()
	configFile := config.ConfigFile()

	// Check if config file already exists
	if _, err := os.Stat(configFile); err == nil {
		return fmt.Errorf("config file already exists at %s\nUse 'deskmate config set' to modify values", configFile)
	}

	// Create config directory
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Generate a commented config file
	configContent := `# Deskmate Configuration

# Background agent subprocess
agent:
  command: nanobot
  args: [desktop-bridge]
  request_timeout_seconds: 120
  restart_backoff_ms: 1500

# Periodic display snapshots attached to agent requests
capture:
  enabled: false
  interval_seconds: 10

# Autonomous nudges when you have been idle
proactive:
  enabled: false
  tick_seconds: 60
  min_idle_minutes: 20
  cooldown_minutes: 45
  max_per_day: 6
  random_chance: 0.5
  quiet_start_hour: 22
  quiet_end_hour: 8

# Text-to-speech (leave endpoint empty to disable)
speech:
  tts_endpoint: ""
  tts_voice: alloy
  api_key_env: DESKMATE_TTS_API_KEY

logging:
  level: INFO

# Override the default data directory (~/.local/share/deskmate)
paths:
  data_dir: ""
`

	if err := os.WriteFile(configFile, []byte(configContent), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	fmt.Printf("Created config file at %s\n", configFile)
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	if viper.ConfigFileUsed() != "" {
		fmt.Println(viper.ConfigFileUsed())
	} else {
		fmt.Println(config.ConfigFile())
	}
	return nil
}
