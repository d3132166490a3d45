package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/trilltino/handyman/internal/config"
	"github.com/trilltino/handyman/internal/logger"
	"go.uber.org/zap"
)

var envFile string

var rootCmd = &cobra.Command{
	Use:           "storefront",
	Short:         "Handyman storefront: catalog, cart and checkout API",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "optional dotenv file applied before reading the environment")
	rootCmd.AddCommand(serveCmd, migrateCmd)
}

// setup loads configuration and installs the process logger.
func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, nil, err
	}

	log, err := logger.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	logger.SetBase(log)
	return cfg, log, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
