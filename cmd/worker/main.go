package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/perfect-stream/backend/internal/config"
	"github.com/perfect-stream/backend/internal/mersenne"
	"github.com/perfect-stream/backend/internal/scheduler"
	"github.com/perfect-stream/backend/internal/stream"
)

var (
	batchSize int
	delay     time.Duration
	logLevel  string

	rootCmd = &cobra.Command{
		Use:   "perfect-worker [limit]",
		Short: "Print the first limit perfect numbers as JSON lines on stdout",
		Long: `perfect-worker computes perfect numbers in ascending order and writes one
{"p":..,"perfect":".."} line per result to stdout. Diagnostics go to stderr.
It stops early on SIGINT or SIGTERM.`,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE:         run,
	}
)

func init() {
	rootCmd.Flags().IntVar(&batchSize, "batch-size", config.DefaultBatchSize, "Exponents tested concurrently per round")
	rootCmd.Flags().DurationVar(&delay, "delay", 0, "Pause after each result")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "warn", "Log level for stderr diagnostics")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	limit, err := strconv.Atoi(args[0])
	if err != nil || limit < 0 {
		return fmt.Errorf("limit must be a non-negative integer, got %q", args[0])
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		return fmt.Errorf("log-level: %w", err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	_, _ = maxprocs.Set()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	out := bufio.NewWriter(os.Stdout)
	enc := json.NewEncoder(out)
	emit := func(r mersenne.Result) error {
		if err := enc.Encode(stream.RecordOf(r)); err != nil {
			return err
		}
		if err := out.Flush(); err != nil {
			return err
		}
		if delay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
		return nil
	}

	sched := scheduler.New(scheduler.WithLogger(logger))
	err = sched.Produce(ctx, stream.Request{Limit: limit, BatchSize: batchSize}, emit)
	if errors.Is(err, context.Canceled) {
		logger.Info("interrupted")
		return nil
	}
	return err
}
