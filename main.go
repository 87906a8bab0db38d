// Package main provides the gridplan command line interface.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/devskill-org/gridplan/planner"
	"github.com/devskill-org/gridplan/store"
)

var (
	configFile string

	config *planner.Config
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "gridplan",
	Short: "Capacity expansion planning for a single-bus electricity system",
	Long: `gridplan builds a single-bus network with wind, solar, battery and hydro
assets against a load time series, optimises capacities and dispatch with
an LP solver and renders the results as charts.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		config, err = loadConfig(configFile, cmd.Flags().Changed("config"))
		if err != nil {
			return err
		}
		logger, err = planner.NewLogger(config.Logging)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// loadConfig reads path. A missing default config file falls back to the
// built-in defaults with environment overrides.
func loadConfig(path string, explicit bool) (*planner.Config, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) && !explicit {
		c := planner.DefaultConfig()
		if err := cleanenv.ReadEnv(c); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
		return c, c.Validate()
	}
	return planner.LoadConfig(path)
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// newPlanner creates a planner with the store attached when a connection
// string is configured. The returned function releases the store.
func newPlanner(ctx context.Context) (*planner.Planner, func(), error) {
	p, err := planner.New(config, logger)
	if err != nil {
		return nil, nil, err
	}
	if config.Storage.PostgresConnString == "" {
		return p, func() {}, nil
	}

	s, err := store.Open(ctx, config.Storage.PostgresConnString, logger)
	if err != nil {
		return nil, nil, err
	}
	if err := s.EnsureSchema(ctx); err != nil {
		s.Close()
		return nil, nil, err
	}
	p.SetStore(s)
	return p, func() {
		if err := s.Close(); err != nil {
			logger.Warn("Failed to close database", zap.Error(err))
		}
	}, nil
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "gridplan.yaml", "Configuration file path")

	rootCmd.AddCommand(solveCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(plotCmd)
	rootCmd.AddCommand(historicalCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
