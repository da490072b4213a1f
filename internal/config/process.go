package config

import (
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"strings"
)

// SetupProcess configures process-wide state once from the entry point:
// the GOMAXPROCS limit and the default slog logger.
func SetupProcess(w io.Writer, level string, procs int) (*slog.Logger, error) {
	if procs > 0 {
		runtime.GOMAXPROCS(procs)
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		return nil, fmt.Errorf("log level %q: %w", level, err)
	}
	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)
	return logger, nil
}
