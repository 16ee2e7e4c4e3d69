package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/deskmate-app/deskmate/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "deskmate",
	Short: "Desktop AI companion shell",
	Long: `Deskmate runs a background AI agent as a subprocess and gives it eyes
and a voice: periodic display snapshots, speech in and out, and the
ability to proactively start a conversation when you have been idle.`,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/deskmate/config.yaml)")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
}

func initConfig() {
	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath("$HOME/.config/deskmate")
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("DESKMATE")
	// Replace dots with underscores for nested keys in env vars
	// e.g., DESKMATE_PROACTIVE_MAX_PER_DAY for proactive.max_per_day
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}
