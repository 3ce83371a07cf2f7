// Package cmd implements the Harvest command line using Cobra.
package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/hbomb79/Harvest/internal"
	"github.com/hbomb79/Harvest/pkg/logger"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Global flags
var (
	flagConfigPath string
	flagEnvFile    string
	flagLogLevel   string
)

// cfg holds the loaded configuration (defaults < config file < environment < flags).
var cfg *internal.HarvestConfig

var rootCmd = &cobra.Command{
	Use:   "harvest",
	Short: "Acquire videos and images from social media posts",
	Long: `Harvest downloads the media attached to Threads, Xiaohongshu and Douyin/TikTok
posts (or direct media links), either as a long running HTTP service or as a
one-shot command.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagConfigPath, "config", "c", "", "Path to a YAML or TOML configuration file")
	rootCmd.PersistentFlags().StringVar(&flagEnvFile, "env-file", ".env", "Path to a .env file loaded before configuration")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Override the configured log level (verbose | debug | info | warning | error)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(enumerateCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig loads the .env file (if present) in to the environment, and then
// loads and validates the Harvest configuration.
func loadConfig(cmd *cobra.Command, args []string) error {
	if flagEnvFile != "" {
		if err := godotenv.Load(flagEnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("loading env file %s: %w", flagEnvFile, err)
		}
	}

	var err error
	cfg, err = internal.LoadConfig(flagConfigPath)
	if err != nil {
		return err
	}

	if flagLogLevel != "" {
		cfg.LogLevel = flagLogLevel
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	logger.SetMinLoggingLevel(logger.ParseLevel(cfg.LogLevel).Level())
	return nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version of Harvest",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "harvest %s\n", Version)
	},
	PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
}
