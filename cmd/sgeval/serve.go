package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/scenegraph/sgeval/internal/app"
	"github.com/scenegraph/sgeval/internal/server"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the evaluation HTTP server",
		Long: `Serve evaluation over HTTP:
  POST /v1/evaluation/evaluate   evaluate posted samples and model outputs
  POST /v1/evaluation/run        evaluate the configured split from recorded outputs
  GET  /v1/evaluation/vocabulary object and predicate names
  GET  /healthz                  liveness and runner state
  GET  /metrics                  Prometheus metrics`,
		RunE: runServe,
	}

	cmd.Flags().IntP("port", "p", 8090, "HTTP server port")
	cmd.Flags().String("host", "0.0.0.0", "HTTP server host")

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, log, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("port") {
		cfg.Port, _ = cmd.Flags().GetInt("port")
	}
	if cmd.Flags().Changed("host") {
		cfg.Host, _ = cmd.Flags().GetString("host")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	a, err := app.New(cfg, log)
	if err != nil {
		return err
	}

	scfg := server.DefaultConfig()
	scfg.Host = cfg.Host
	scfg.Port = cfg.Port
	scfg.Version = version
	scfg.RateLimit = cfg.Security.RateLimit

	srv, err := server.New(scfg, a, log)
	if err != nil {
		a.Close()
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case err := <-errCh:
		a.Close()
		return err
	case <-sigCh:
		log.Info("Shutdown signal received")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Stop(ctx)
}
