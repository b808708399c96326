// Package logging builds the slog loggers used by the chatroom commands.
// Records are rendered by pterm.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/pterm/pterm"
)

const timeFormat = "02 Jan 15:04:05"

// ParseLevel maps a level name from flags or config to a pterm level.
// "off" disables logging.
func ParseLevel(name string) (pterm.LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "trace":
		return pterm.LogLevelTrace, nil
	case "debug":
		return pterm.LogLevelDebug, nil
	case "", "info":
		return pterm.LogLevelInfo, nil
	case "warn", "warning":
		return pterm.LogLevelWarn, nil
	case "error":
		return pterm.LogLevelError, nil
	case "off", "none", "disabled":
		return pterm.LogLevelDisabled, nil
	default:
		return pterm.LogLevelInfo, fmt.Errorf("unknown log level %q", name)
	}
}

// New returns a logger writing to w at the named level.
func New(level string, w io.Writer) (*slog.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	if lvl == pterm.LogLevelDisabled {
		return slog.New(slog.DiscardHandler), nil
	}

	logger := pterm.DefaultLogger.
		WithLevel(lvl).
		WithWriter(w).
		WithTime(true).
		WithTimeFormat(timeFormat).
		WithMaxWidth(1000)
	return slog.New(pterm.NewSlogHandler(logger)), nil
}
