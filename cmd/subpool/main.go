package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"subpool/internal/shared/config"
	"subpool/internal/shared/logger"
	"subpool/internal/shared/types"
	"subpool/subpool"
)

func main() {
	var configDir string

	root := &cobra.Command{
		Use:           "subpool",
		Short:         "Aggregate, validate and score proxy subscriptions",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configDir, "configdir", "configs", "Path to config directory")

	root.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Execute one aggregation run",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup(configDir)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return subpool.NewManager(cfg).Run(ctx)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "report",
		Short: "Print the current subscription scores",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup(configDir)
			if err != nil {
				return err
			}
			return subpool.NewManager(cfg).Report()
		},
	})

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// setup loads configuration and initializes logging. Config precedence:
// defaults, then the ini file, then the environment keys.
func setup(configDir string) (*types.Config, error) {
	cfg := config.Default()
	iniPath := filepath.Join(configDir, "subpool.ini")
	if err := config.LoadIni(cfg, iniPath); err != nil {
		return nil, fmt.Errorf("load config file '%s': %w", iniPath, err)
	}
	if err := logger.Init(cfg.LogConf); err != nil {
		return nil, fmt.Errorf("initialize logger: %w", err)
	}
	return cfg, nil
}
