// Command brainwash plays, renders and checks brainwash patches.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/brainwash-synth/brainwash/config"
	"github.com/spf13/cobra"
)

var (
	configPath string
	verbose    bool

	cfg    config.Config
	logger *slog.Logger

	rootCmd = &cobra.Command{
		Use:           "brainwash",
		Short:         "A modular synthesizer driven by a rhythmic notation",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
			path := configPath
			if path == "" {
				var err error
				if path, err = config.DefaultPath(); err != nil {
					logger.Debug("no config directory, using defaults", "err", err)
					cfg = config.Default()
					return nil
				}
			}
			var err error
			if cfg, err = config.Load(path); err != nil {
				return err
			}
			logger.Debug("config loaded", "path", path)
			return nil
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default is the user config directory)")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "log debug messages")
	rootCmd.AddCommand(playCmd, renderCmd, checkCmd, fmtCmd, exportCmd, kindsCmd, presetsCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "brainwash:", err)
		os.Exit(1)
	}
}
