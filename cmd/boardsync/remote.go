package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/peak-flow/boardsync/internal/board/remote"
	"github.com/peak-flow/boardsync/internal/ui"
)

var remoteCmd = &cobra.Command{
	Use:     "remote",
	GroupID: "remote",
	Short:   "Run or inspect a remote authority",
}

var remoteServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve an in-memory remote authority over HTTP",
	Long: `Serve an in-memory remote authority. It keeps card versions, rejects stale
writes with 409 Conflict, and can simulate a bad network for testing clients:

  boardsync remote serve --failure-rate 0.2 --min-latency 200ms --max-latency 500ms

Requests under /v1 require a bearer token when server.secret is set.`,
	Run: func(cmd *cobra.Command, args []string) {
		failureRate, _ := cmd.Flags().GetFloat64("failure-rate")
		minLatency, _ := cmd.Flags().GetDuration("min-latency")
		maxLatency, _ := cmd.Flags().GetDuration("max-latency")
		if secret, _ := cmd.Flags().GetString("server-secret"); secret != "" {
			cfg.Server.Secret = secret
		}

		authority := remote.NewMemory(remote.MemoryConfig{
			FailureRate: failureRate,
			MinLatency:  minLatency,
			MaxLatency:  maxLatency,
		})
		server := remote.NewServer(authority, cfg.Server, logs.For("remote"))
		if err := server.Start(); err != nil {
			fatalf("%v", err)
		}

		fmt.Printf("Remote authority started on http://%s\n", server.Addr())
		fmt.Printf("Health check: http://%s/health\n", server.Addr())
		if cfg.Server.Secret != "" {
			fmt.Println("Bearer auth: enabled")
		}
		fmt.Println("\nPress Ctrl+C to stop...")

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()
		<-ctx.Done()

		fmt.Println("\nShutting down remote authority...")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := server.Stop(shutdownCtx); err != nil {
			fmt.Fprintf(os.Stderr, "Error during shutdown: %v\n", err)
			os.Exit(1)
		}
	},
}

var remoteLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List the cards held by the configured remote",
	Run: func(cmd *cobra.Command, args []string) {
		client, err := newAuthority()
		if err != nil {
			fatalf("%v", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Remote.Timeout)
		defer cancel()

		records, err := client.List(ctx)
		if err != nil {
			fatalf("failed to list remote cards: %v", err)
		}
		if jsonOutput {
			printJSON(records)
			return
		}
		if len(records) == 0 {
			fmt.Println("No cards on the remote")
			return
		}
		for _, rec := range records {
			fmt.Printf("%s %-10s v%-4d %s\n", ui.RenderAccent(shortID(rec.Card.ID)), rec.Card.ColumnID, rec.Version, rec.Card.Title)
		}
	},
}

func init() {
	remoteServeCmd.Flags().String("listen", "", "Listen address (default: 127.0.0.1:8787)")
	remoteServeCmd.Flags().String("server-secret", "", "Require HS256 bearer tokens signed with this secret")
	remoteServeCmd.Flags().Float64("failure-rate", 0, "Probability (0..1) that a request fails transiently")
	remoteServeCmd.Flags().Duration("min-latency", 0, "Minimum simulated latency per request")
	remoteServeCmd.Flags().Duration("max-latency", 0, "Maximum simulated latency per request")

	remoteCmd.AddCommand(remoteServeCmd, remoteLsCmd)
	rootCmd.AddCommand(remoteCmd)
}
