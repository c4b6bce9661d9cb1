package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"devserver/internal/config"
	"devserver/internal/eventbus"
	"devserver/internal/eventlog"
	"devserver/internal/server"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var tailCmd = &cobra.Command{
	Use:   "tail <session-id>",
	Short: "Follow a session's events through the Redis mirror",
	Long: `Print a session's events as a running server mirrors them to Redis.

Needs the same REDIS_ADDR as the server. Only events appended after tail
starts are shown; use GET /session/{id}/event for history.`,
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE:         runTail,
}

func init() {
	rootCmd.AddCommand(tailCmd)
}

func runTail(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return err
	}
	if cfg.Redis.Addr == "" {
		return errors.New("tail needs a Redis mirror: set REDIS_ADDR or redis.addr")
	}

	logger, err := newLogger(cfg.Log, os.Stderr)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	deps, err := server.InitDeps(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.Close()

	var sub eventbus.MirrorSubscriber = eventbus.NewRedisSubscriber(deps.Redis, logger)
	events, err := sub.Subscribe(ctx, args[0])
	if err != nil {
		return err
	}

	for event := range events {
		printEvent(cmd.OutOrStdout(), event)
	}
	return nil
}

var (
	seqColor  = color.New(color.FgYellow)
	kindColor = color.New(color.FgCyan, color.Bold)
)

func printEvent(w io.Writer, event eventlog.Event) {
	fmt.Fprintf(w, "%s %s %s %s\n",
		event.Timestamp.Format("15:04:05.000"),
		seqColor.Sprintf("#%d", event.Seq),
		kindColor.Sprint(event.Kind),
		event.Payload,
	)
}
