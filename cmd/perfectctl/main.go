package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/perfect-stream/backend/internal/client"
	"github.com/perfect-stream/backend/internal/stream"
)

var (
	serverURL string
	limit     int
	batchSize int
	mode      string
	useWS     bool

	rootCmd = &cobra.Command{
		Use:          "perfectctl",
		Short:        "Command line client for the perfect-number stream server",
		SilenceUsage: true,
	}

	streamCmd = &cobra.Command{
		Use:   "stream",
		Short: "Stream perfect numbers and print them as they arrive",
		Args:  cobra.NoArgs,
		RunE:  runStream,
	}

	checkCmd = &cobra.Command{
		Use:   "check [n]",
		Short: "Ask the server whether n is a perfect number",
		Args:  cobra.ExactArgs(1),
		RunE:  runCheck,
	}

	sessionsCmd = &cobra.Command{
		Use:   "sessions",
		Short: "List the server's open stream sessions",
		Args:  cobra.NoArgs,
		RunE:  runSessions,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://127.0.0.1:8080", "Server base URL")

	streamCmd.Flags().IntVar(&limit, "limit", 8, "Number of perfect numbers to fetch")
	streamCmd.Flags().IntVar(&batchSize, "batch-size", 0, "Exponents tested concurrently per round (server default when 0)")
	streamCmd.Flags().StringVar(&mode, "mode", "", "Producer mode: inprocess or external")
	streamCmd.Flags().BoolVar(&useWS, "ws", false, "Use the WebSocket endpoint instead of NDJSON")

	rootCmd.AddCommand(streamCmd, checkCmd, sessionsCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func runStream(cmd *cobra.Command, _ []string) error {
	opts := client.StreamOptions{Limit: limit, BatchSize: batchSize, Mode: mode}
	printRecord := func(r stream.Record) error {
		_, err := fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\n", r.P, r.Perfect)
		return err
	}

	var err error
	if useWS {
		err = client.NewWSClient(serverURL).Stream(cmd.Context(), opts, printRecord)
	} else {
		err = client.NewHTTPClient(serverURL).Stream(cmd.Context(), opts, printRecord)
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func runCheck(cmd *cobra.Command, args []string) error {
	res, err := client.NewHTTPClient(serverURL).Check(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if res.Perfect {
		fmt.Fprintf(cmd.OutOrStdout(), "%s is perfect (p=%d)\n", res.N, res.Exponent)
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s is not perfect\n", res.N)
	return nil
}

func runSessions(cmd *cobra.Command, _ []string) error {
	sessions, err := client.NewHTTPClient(serverURL).Sessions(cmd.Context())
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(sessions)
}
