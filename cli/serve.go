package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nixxel-company-limited/posprint/metrics"
	"github.com/nixxel-company-limited/posprint/orchestrator"
	"github.com/nixxel-company-limited/posprint/profile"
	"github.com/nixxel-company-limited/posprint/server"
)

func buildServeCommand() *cobra.Command {
	var address string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the print bridge",
		Long:  "Start the HTTP and websocket bridge in front of the print queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), address)
		},
	}

	cmd.Flags().StringVar(&address, "address", "", "listen address (overrides server.address)")
	return cmd
}

func runServe(ctx context.Context, address string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	env, err := loadEnvironment(ctx)
	if err != nil {
		return err
	}
	defer env.close()
	log := env.log

	if address == "" {
		address = env.cfg.Server.Address
	}

	var (
		collector *metrics.Collector
		opts      []server.Option
	)
	if env.cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		collector = metrics.NewCollector(reg)
		opts = append(opts, server.WithGatherer(reg))
	}

	orch := orchestrator.New(env.cfg.Orchestrator(), env.cfg.Adapters(log), env.store,
		orchestrator.WithLogger(log),
		orchestrator.WithMetrics(collector),
	)
	defer orch.Close()

	if env.cfg.Printing.AutoConnect {
		switch err := orch.ConnectPreferred(ctx); {
		case err == nil:
		case errors.Is(err, profile.ErrNoDefault):
			log.Info("no saved printer to connect to")
		default:
			// keep serving; the front end can pick another printer
			log.Warn("auto-connect failed", zap.Error(err))
		}
	}

	srv := server.New(orch, address, append(opts, server.WithLogger(log))...)
	if err := srv.StartAsync(); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	log.Info("posprint ready", zap.String("address", srv.Address()))

	<-ctx.Done()
	log.Info("shutting down")
	return srv.Stop()
}
