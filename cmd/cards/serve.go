package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mscrnt/homecards/pkg/agent"
	"github.com/mscrnt/homecards/pkg/condition"
)

var (
	servePort      int
	serveRetention time.Duration
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Monitor conditions and serve the cards over HTTP",
		Long: `Start monitoring and an HTTP agent exposing the latest cards.

The agent exposes the following endpoints:
  GET    /cards              - Latest cards, dismissed ones hidden (?all=true shows them)
  GET    /cards/{id}         - Check a single card now
  POST   /cards/{id}/dismiss - Dismiss a card
  DELETE /cards/{id}/dismiss - Restore a dismissed card
  GET    /health             - Health check endpoint

TLS is enabled when server.cert_file and server.key_file are configured, and
client certificates are required when server.ca_file is set as well.

Examples:
  cards serve
  cards serve --port 8080 --retention 72h`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}

	cmd.Flags().IntVar(&servePort, "port", 0, "Listen port (default: server.port from the config)")
	cmd.Flags().DurationVar(&serveRetention, "retention", 7*24*time.Hour, "Drop refresh history older than this at startup (0 keeps everything)")

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if serveRetention > 0 {
		pruned, err := store.PruneRefreshes(time.Now().Add(-serveRetention))
		if err != nil {
			return err
		}
		logger.Info("Pruned refresh history", zap.Int64("refreshes", pruned))
	}

	snapshot := agent.NewSnapshot()
	manager, err := newManager(cfg,
		condition.WithListener(snapshot.Update),
		condition.WithObserver(recordHistory(store)))
	if err != nil {
		return err
	}

	agentConfig := agent.DefaultConfig()
	agentConfig.Port = cfg.Server.Port
	if servePort != 0 {
		agentConfig.Port = servePort
	}
	agentConfig.CertFile = cfg.Server.CertFile
	agentConfig.KeyFile = cfg.Server.KeyFile
	agentConfig.CAFile = cfg.Server.CAFile
	agentConfig.LogFile = cfg.Server.LogFile

	server, err := agent.NewServer(agentConfig, agent.Backend{
		Snapshot:   snapshot,
		Registry:   manager,
		Dismissals: store,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(server.Start)

	g.Go(func() error {
		manager.StartMonitoring(gctx)
		<-gctx.Done()
		manager.StopMonitoring()
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
		return nil
	})

	fmt.Fprintf(cmd.OutOrStdout(), "Serving cards on port %d (tls=%t)\n", agentConfig.Port, agentConfig.TLSEnabled())
	fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl+C to stop...")

	if err := g.Wait(); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Server stopped gracefully")
	return nil
}
