package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/fpt/gemini-discuss/internal/config"
	"github.com/fpt/gemini-discuss/internal/store"
	pkgLogger "github.com/fpt/gemini-discuss/pkg/logger"
)

var (
	configPath string // overridable via --config flag
	logLevel   string // overrides settings log_level when set
)

func main() {
	root := &cobra.Command{
		Use:           "gemini-discuss",
		Short:         "Gemini chat and vision bridge for Discord, Telegram and AMQP",
		Long:          "gemini-discuss answers messages addressed to the bot, or posted in the broadcast channel, with Gemini replies.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to settings file (default: ~/.gemini-discuss/settings.yaml)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	root.AddCommand(serveCmd())
	root.AddCommand(initCmd())
	root.AddCommand(configCmd())
	root.AddCommand(modelsCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadSettings loads and validates settings and sets up the global logger.
func loadSettings() (*config.Settings, *pkgLogger.Logger, error) {
	settings, err := config.LoadSettings(configPath)
	if err != nil {
		return nil, nil, err
	}
	if logLevel != "" {
		settings.LogLevel = logLevel
	}
	if err := config.ValidateSettings(settings); err != nil {
		return nil, nil, fmt.Errorf("invalid settings: %w", err)
	}

	level := pkgLogger.ParseLevel(settings.LogLevel)
	pkgLogger.SetGlobalLoggerWithConsoleWriter(level, os.Stdout)
	logger := pkgLogger.NewLoggerWithConsoleWriter(level, os.Stdout)
	return settings, logger, nil
}

// openStore opens the configured database and makes sure the model table
// is seeded.
func openStore(ctx context.Context, settings *config.Settings) (*store.Store, error) {
	st, err := store.Open(settings.Store.Path)
	if err != nil {
		return nil, err
	}
	if _, err := st.SeedDefaultModels(ctx); err != nil {
		st.Close()
		return nil, err
	}
	return st, nil
}

func isInteractive() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}
