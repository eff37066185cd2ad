// Package cmd defines and implements the CLI commands for the artist-crawler
// executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/artist-crawler/internal/config"
	"github.com/JakeFAU/artist-crawler/internal/logging"
	"github.com/JakeFAU/artist-crawler/internal/printer"
	pkgconfig "github.com/JakeFAU/artist-crawler/pkg/config"
)

// envKeyType is the key for storing the loaded environment in the context.
type envKeyType string

const envKey envKeyType = "env"

// env is what every subcommand needs after config loading.
type env struct {
	cfg    config.Config
	logger *zap.Logger
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "artist-crawler",
		Short: "Crawls tattoo studio websites and records their artists.",
		Long: `artist-crawler claims business locations that have a website, lets an
LLM decide how to walk each site, and stores the artists and styles it finds.
Navigation never leaves the host of the location's seed URL.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		// Loads config and the logger before any subcommand runs.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			v, err := pkgconfig.InitConfig(cfgFile)
			if err != nil {
				return err
			}
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			logger, err := logging.InitLogger(cfg.Logging.Development)
			if err != nil {
				return err
			}
			if used := v.ConfigFileUsed(); used != "" {
				logger.Info("using config file", zap.String("path", used))
			}
			cmd.SetContext(context.WithValue(cmd.Context(), envKey, &env{cfg: cfg, logger: logger}))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if e, ok := cmd.Context().Value(envKey).(*env); ok && e != nil {
				_ = e.logger.Sync() //nolint:errcheck // best-effort flush
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml or $XDG_CONFIG_HOME/artist-crawler/config.yaml)")

	cmd.AddCommand(newCrawlCmd())
	cmd.AddCommand(newMigrateCmd())
	cmd.AddCommand(newSeedCmd())
	return cmd
}

func resolveEnv(ctx context.Context) (*env, error) {
	e, ok := ctx.Value(envKey).(*env)
	if !ok || e == nil {
		return nil, errors.New("configuration not loaded")
	}
	return e, nil
}

// Execute is the main entry point. SIGINT and SIGTERM cancel the command
// context so a running crawl can release its unprocessed locations.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		exitWithError(err)
	}
}

// exitWithError prints err for the operator, then exits through the process
// logger. logging.L is a no-op before config loads, but Fatal still exits.
func exitWithError(err error) {
	_ = printer.Error(fmt.Sprintf("artist-crawler: %v", err), nil)
	logging.L.Fatal("command execution failed", zap.Error(err))
}
