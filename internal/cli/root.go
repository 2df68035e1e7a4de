// Package cli implements the sitdown command line.
package cli

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sitdown/sitdown/internal/app"
	"github.com/sitdown/sitdown/internal/config"
	"github.com/sitdown/sitdown/internal/logging"
)

// Version and Commit are injected at build time via -ldflags.
var (
	Version = "dev"
	Commit  = "unknown"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configFile string
	dataDir    string
	logLevel   string
}

// NewRootCommand creates the sitdown root command.
func NewRootCommand() *cobra.Command {
	flags := &globalFlags{}

	cmd := &cobra.Command{
		Use:   "sitdown",
		Short: "Sessionize user activity and compute session timings",
		Long: `Sitdown reads per-event-type activity tables, merges them into one
timeline, splits each user's activity into sessions at idle gaps and
writes the per-session and per-user timing tables to a results database.`,
		Version:      fmt.Sprintf("%s (commit: %s)", Version, Commit),
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&flags.configFile, "config", "", "Path to configuration file (YAML or JSON)")
	cmd.PersistentFlags().StringVar(&flags.dataDir, "data-dir", "", "Base directory for all data files")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level: debug, info, warn, error")

	cmd.AddCommand(newRunCommand(flags))
	cmd.AddCommand(newSessionIDCommand(flags))
	cmd.AddCommand(newRunsCommand(flags))

	return cmd
}

// loadConfig loads configuration from file, environment, and command line
// flags, in increasing priority.
func (f *globalFlags) loadConfig() (*config.Config, error) {
	var cfg *config.Config
	var err error

	if f.configFile != "" {
		cfg, err = config.LoadFromFile(f.configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	} else {
		cfg = config.DefaultConfig()
	}

	config.LoadFromEnv(cfg)

	if f.dataDir != "" {
		cfg.DataDir = f.dataDir
	}
	if f.logLevel != "" {
		cfg.Log.Level = f.logLevel
	}
	return cfg, nil
}

// openApp builds the logger and application for cfg.
func openApp(cfg *config.Config, errOut io.Writer) (*app.App, *zap.Logger, error) {
	logger, err := logging.NewLogger(cfg.Log.Level, cfg.Log.Format, errOut)
	if err != nil {
		return nil, nil, err
	}
	a, err := app.New(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return a, logger, nil
}

var (
	headerColor = color.New(color.FgCyan, color.Bold)
	labelColor  = color.New(color.FgWhite)
	okColor     = color.New(color.FgGreen)
	failColor   = color.New(color.FgRed)
	warnColor   = color.New(color.FgYellow)
)
