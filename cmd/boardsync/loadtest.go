package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/peak-flow/boardsync/internal/board/db"
	"github.com/peak-flow/boardsync/internal/board/loadtest"
	"github.com/peak-flow/boardsync/internal/ui"
)

var loadtestCmd = &cobra.Command{
	Use:     "loadtest",
	GroupID: "advanced",
	Short:   "Stress the sync engine against a simulated flaky remote",
	Long: `Run concurrent mutators against a scratch board while the sync engine pushes
to an in-memory remote that drops requests and adds latency. When the mutators
finish the queue is drained and the result is checked for convergence: every
card clean and the remote holding exactly the local board.

Your own board is never touched.

Examples:
  boardsync loadtest
  boardsync loadtest --mutators 16 --ops 200 --failure-rate 0.3
  boardsync loadtest --persist   # use a scratch sqlite file instead of memory`,
	Run: func(cmd *cobra.Command, args []string) {
		opts := loadtest.DefaultOptions()
		opts.Mutators, _ = cmd.Flags().GetInt("mutators")
		opts.OpsPerMutator, _ = cmd.Flags().GetInt("ops")
		opts.FailureRate, _ = cmd.Flags().GetFloat64("failure-rate")
		opts.Seed, _ = cmd.Flags().GetInt64("seed")
		persist, _ := cmd.Flags().GetBool("persist")

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		if persist {
			dir, err := os.MkdirTemp("", "boardsync-loadtest-")
			if err != nil {
				fatalf("failed to create scratch directory: %v", err)
			}
			defer os.RemoveAll(dir)

			adapter, err := db.OpenSQLite(ctx, filepath.Join(dir, "board.db"), logs.Debug("db"))
			if err != nil {
				fatalf("%v", err)
			}
			defer adapter.Close()
			opts.Adapter = adapter
		}

		fmt.Printf("Running %d mutators × %d ops (failure rate %.0f%%)...\n\n",
			opts.Mutators, opts.OpsPerMutator, opts.FailureRate*100)

		result, err := loadtest.Run(ctx, opts, logs.Debug("loadtest"))
		if err != nil {
			fatalf("load test failed: %v", err)
		}

		if jsonOutput {
			printJSON(result)
		} else {
			result.Print(os.Stdout)
		}
		if !result.Converged {
			fmt.Fprintf(os.Stderr, "\n%s board did not converge\n", ui.RenderFail("✗"))
			os.Exit(1)
		}
	},
}

func init() {
	def := loadtest.DefaultOptions()
	loadtestCmd.Flags().IntP("mutators", "m", def.Mutators, "Concurrent mutating goroutines")
	loadtestCmd.Flags().IntP("ops", "n", def.OpsPerMutator, "Mutations per goroutine")
	loadtestCmd.Flags().Float64("failure-rate", def.FailureRate, "Probability (0..1) that a remote call fails")
	loadtestCmd.Flags().Int64("seed", def.Seed, "Random seed for the operation mix and network")
	loadtestCmd.Flags().Bool("persist", false, "Persist the scratch board to sqlite")

	rootCmd.AddCommand(loadtestCmd)
}
