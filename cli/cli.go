// Package cli builds the posprint command tree.
//
//	posprint serve                 run the HTTP bridge and print queue
//	posprint print                 print one document and wait for it
//	posprint render                encode a document without a printer
//	posprint profiles ...          list, add, remove, default
//	posprint discover              find socket, serial and USB printers
//	posprint config show           print the effective configuration
//
// Every command reads the file given by --config (missing is fine) and
// POSPRINT_* environment variables.
package cli

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nixxel-company-limited/posprint/config"
	"github.com/nixxel-company-limited/posprint/profile"
)

var configFile string

func BuildCLI() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "posprint",
		Short: "posprint: receipt, kitchen ticket and label printing",
		Long: `posprint turns point-of-sale documents into printer commands and
delivers them over Bluetooth serial, USB or a network socket:
- ESC/POS receipts and kitchen tickets for 58mm and 80mm paper
- TSPL barcode labels
- an ordered print queue with retries
- an HTTP and websocket bridge for front ends`,
		Version:       "1.0.0",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "posprint.yaml", "config file path")

	rootCmd.AddCommand(buildServeCommand())
	rootCmd.AddCommand(buildPrintCommand())
	rootCmd.AddCommand(buildRenderCommand())
	rootCmd.AddCommand(buildProfilesCommand())
	rootCmd.AddCommand(buildDiscoverCommand())
	rootCmd.AddCommand(buildConfigCommand())

	return rootCmd
}

func buildConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return err
			}
			out, err := cfg.YAML()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	})
	return cmd
}

// environment is what most commands need: configuration, a logger and
// the profile store. close releases the store.
type environment struct {
	cfg   *config.Config
	log   *zap.Logger
	store profile.Store
	close func()
}

func loadEnvironment(ctx context.Context) (*environment, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	log, err := cfg.Logger()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		_ = log.Sync()
		return nil, err
	}

	return &environment{
		cfg:   cfg,
		log:   log,
		store: store,
		close: func() {
			closeStore()
			_ = log.Sync()
		},
	}, nil
}

func openStore(ctx context.Context, cfg *config.Config) (profile.Store, func(), error) {
	switch cfg.Store.Driver {
	case config.StorePostgres:
		pool, err := pgxpool.New(ctx, cfg.Store.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		if err := profile.EnsureSchema(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("failed to prepare schema: %w", err)
		}
		return profile.NewPostgresStore(pool), pool.Close, nil
	default:
		store, err := profile.NewFileStore(cfg.Store.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open profile store: %w", err)
		}
		return store, func() {}, nil
	}
}
