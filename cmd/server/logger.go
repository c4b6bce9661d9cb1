package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"devserver/internal/config"

	"github.com/charmbracelet/log"
	"github.com/mattn/go-isatty"
)

// newLogger builds the process logger and installs it as the slog default.
// Format "auto" picks the pretty text handler on a terminal and JSON otherwise.
func newLogger(cfg config.LogConfig, w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(cfg.Level))); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	format := cfg.Format
	if format == "auto" {
		format = "json"
		if f, ok := w.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
			format = "text"
		}
	}

	var handler slog.Handler
	switch format {
	case "text":
		handler = log.NewWithOptions(w, log.Options{
			Level:           log.Level(level),
			ReportTimestamp: true,
		})
	default:
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger, nil
}
