package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"golang.org/x/exp/slog"
)

var (
	// Global flags
	logLevel string
	jsonOut  bool
)

var rootCmd = &cobra.Command{
	Use:   "buddyctl",
	Short: "Exercise the buddy system physical page allocator",
	Long: `buddyctl drives the buddy system physical page allocator against a simulated
page table. It can run the allocator's built-in self check or replay a script of
allocations and frees and report the resulting free-extent tree.`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level: debug, info, warn or error")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Output in JSON format")
}

func execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newLogger builds a text logger that writes to w and drops records below level
func newLogger(level string, w io.Writer) (*slog.Logger, error) {
	var leveler slog.Level

	switch strings.ToLower(level) {
	case "debug":
		leveler = slog.LevelDebug
	case "info":
		leveler = slog.LevelInfo
	case "warn", "warning":
		leveler = slog.LevelWarn
	case "error":
		leveler = slog.LevelError
	default:
		return nil, errors.Newf("unknown log level %q", level)
	}

	handler := slog.HandlerOptions{Level: leveler}.NewTextHandler(w)
	return slog.New(handler), nil
}
