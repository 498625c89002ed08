package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/eddiefleurent/options_strategist/internal/config"
	"github.com/eddiefleurent/options_strategist/internal/logging"
)

// App holds state shared by subcommands once the root has loaded config.
type App struct {
	Config    *config.Config
	Logger    *logrus.Logger
	logCloser io.Closer
}

func newRootCmd() *cobra.Command {
	app := &App{}

	rootCmd := &cobra.Command{
		Use:   "strategist",
		Short: "Options strategy recommendations for a market outlook",
		Long: `strategist selects contracts from an option chain and assembles validated
multi-leg strategies: an iron condor for a neutral view, a long straddle for a
volatile view and a bull call spread for a bullish view.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return app.init(cmd)
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if app.logCloser != nil {
				return app.logCloser.Close()
			}
			return nil
		},
	}

	// Global flags
	rootCmd.PersistentFlags().String("config", "", "path to config file (default: config.yaml if present)")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	rootCmd.AddCommand(newServeCmd(app))
	rootCmd.AddCommand(newRecommendCmd(app))
	return rootCmd
}

func (a *App) init(cmd *cobra.Command) error {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := loadConfig(path)
	if err != nil {
		return err
	}
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		cfg.Environment.LogLevel = "debug"
	}

	logger, closer, err := logging.New(logging.Config{
		Level:      cfg.Environment.LogLevel,
		Format:     cfg.Environment.LogFormat,
		FilePath:   cfg.Environment.LogFile,
		MaxSize:    cfg.Environment.LogMaxSizeMB,
		MaxBackups: cfg.Environment.LogMaxBackups,
	})
	if err != nil {
		return err
	}
	a.Config = cfg
	a.Logger = logger
	a.logCloser = closer
	return nil
}

// loadConfig reads path, or config.yaml when it exists, or falls back to the
// built-in mock configuration.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	if _, err := os.Stat("config.yaml"); err == nil {
		return config.Load("config.yaml")
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("checking config.yaml: %w", err)
	}
	return config.Default(), nil
}
