package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"devserver/internal/config"
	"devserver/internal/server"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	flagHostname string
	flagPort     int
	flagConfig   string
)

var rootCmd = &cobra.Command{
	Use:   "devserver",
	Short: "Session registry with replayable event streams over HTTP",
	Long: `Run the session server.

Clients create sessions, append events to them and follow each session's
event stream over server-sent events or WebSocket, resuming from any
sequence number.

Examples:
  devserver                           # Serve on 127.0.0.1:4096
  devserver --port 0                  # Serve on a free port
  devserver --config devserver.yaml   # Load settings from a file`,
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.Flags().StringVar(&flagHostname, "hostname", "", "address to listen on (default from config)")
	rootCmd.Flags().IntVar(&flagPort, "port", 0, "port to listen on, 0 picks a free port (default from config)")
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", os.Getenv("DEVSERVER_CONFIG"), "path to a YAML config file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("hostname") {
		cfg.Server.Hostname = flagHostname
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = flagPort
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := newLogger(cfg.Log, os.Stderr)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	deps, err := server.InitDeps(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialise dependencies", "error", err)
		return err
	}
	defer deps.Close()

	srv, err := server.Listen(ctx, cfg, deps)
	if err != nil {
		logger.Error("Failed to start server", "error", err)
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s listening on %s\n",
		color.New(color.FgCyan, color.Bold).Sprint("devserver"),
		color.GreenString(srv.URL()),
	)

	if err := srv.Run(ctx); err != nil {
		logger.Error("Server error", "error", err)
		return err
	}
	return nil
}
