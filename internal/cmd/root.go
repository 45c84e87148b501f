// Package cmd implements fusionctl, the operator CLI for the fusion backend.
package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"fabric-fusion-backend/internal/app"
	"fabric-fusion-backend/internal/config"
	"fabric-fusion-backend/internal/logger"
)

var rootCmd = &cobra.Command{
	Use:   "fusionctl",
	Short: "Operate the fabric fusion backend",
	Long: `fusionctl inspects and runs fusion jobs against the backends configured
through the same environment (or .env file) as the API server.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// loadRuntime reads configuration and builds a logger for a command.
func loadRuntime(cmd *cobra.Command) (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load configuration: %w", err)
	}
	mode := cfg.Environment
	if verbose, _ := cmd.Flags().GetBool("verbose"); !verbose {
		mode = "production"
	}
	log, err := logger.New(mode)
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, log, nil
}

// buildApp is loadRuntime plus backend wiring.
func buildApp(cmd *cobra.Command) (*app.App, error) {
	cfg, log, err := loadRuntime(cmd)
	if err != nil {
		return nil, err
	}
	return app.Build(commandContext(cmd), cfg, log)
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "development logging")
}
