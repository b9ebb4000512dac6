package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/satindergrewal/loopforge/internal/config"
)

var (
	// Global flags
	verbose    bool
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "loopforge",
	Short: "Procedural loop-based song assembler",
	Long: `loopforge - assemble full-length songs from a library of tempo- and
key-tagged loop samples.

The library is laid out as:
  <samples>/<tempo>_<key>/<layer>/*.wav   keyed collections (e.g. 90_am/chords)
  <samples>/drums/<tempo>/*.wav           shared drum kits

Configuration comes from built-in defaults, then a YAML file
(--config or LOOPFORGE_CONFIG), then LOOPFORGE_* environment variables,
then command flags.

Examples:
  # Render 20 songs into ./out
  loopforge generate -n 20 -o out

  # Which collections can accompany a 90 BPM A minor root?
  loopforge catalog --tempo 90 --key am

  # Listen to a live preview on :8080
  loopforge serve`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file (default $LOOPFORGE_CONFIG)")
}

func setupLogging() {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// loadConfig reads the configuration for a command.
func loadConfig() (config.Config, error) {
	var (
		cfg config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return cfg, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}
