package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/peak-flow/boardsync/internal/board/schema"
	"github.com/peak-flow/boardsync/internal/board/store"
	bsync "github.com/peak-flow/boardsync/internal/board/sync"
	"github.com/peak-flow/boardsync/internal/ui"
)

var syncCmd = &cobra.Command{
	Use:     "sync",
	GroupID: "sync",
	Short:   "Push queued changes to the remote authority once",
	Long: `Drain the sync queue once and exit. Cards that hit a version conflict are held
for "boardsync resolve"; cards that keep failing are marked failed and retried
with --force.`,
	Run: func(cmd *cobra.Command, args []string) {
		force, _ := cmd.Flags().GetBool("force")

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		st := mustOpenStore(ctx)
		defer st.Close()

		client, err := newAuthority()
		if err != nil {
			fatalf("%v", err)
		}
		engine := bsync.New(st, client, cfg.Sync, logs.For("sync"))

		healthCtx, healthCancel := context.WithTimeout(ctx, cfg.Remote.Timeout)
		err = client.Health(healthCtx)
		healthCancel()
		if err != nil {
			engine.SetOnline(false)
			fmt.Fprintf(os.Stderr, "%s remote %s is unreachable: %v\n", ui.RenderFail("Offline:"), cfg.Remote.BaseURL, err)
			fmt.Fprintf(os.Stderr, "%d change(s) stay queued locally.\n", st.Counts().Queued)
			os.Exit(1)
		}

		var report *bsync.Report
		if force {
			report, err = engine.ForceSync(ctx)
		} else {
			report, err = engine.RunPass(ctx)
		}
		if err != nil {
			fatalf("sync failed: %v", err)
		}

		if jsonOutput {
			printJSON(report)
			return
		}
		printReport(report, st.Counts())
		if len(report.Conflicts) > 0 || len(report.Failed) > 0 {
			os.Exit(2)
		}
	},
}

func printReport(report *bsync.Report, counts store.Counts) {
	mark := ui.RenderPass("✓")
	if len(report.Conflicts)+len(report.Failed) > 0 {
		mark = ui.RenderWarn("!")
	}
	fmt.Printf("%s Sync pass finished in %v\n", mark, report.Duration.Round(time.Millisecond))
	fmt.Print(ui.KeyValue(
		"Synced", fmt.Sprintf("%d", report.Synced),
		"Deleted", fmt.Sprintf("%d", report.Deleted),
		"Retrying", fmt.Sprintf("%d", report.Retried+report.Expected),
		"Conflicts", fmt.Sprintf("%d", len(report.Conflicts)),
		"Failed", fmt.Sprintf("%d", len(report.Failed)),
		"Still queued", fmt.Sprintf("%d", counts.Queued),
	))
	for id, msg := range report.Errors {
		fmt.Printf("   %s %s: %s\n", ui.RenderMuted("-"), shortID(id), msg)
	}
}

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "sync",
	Short:   "Show pending changes and the remote's reachability",
	Run: func(cmd *cobra.Command, args []string) {
		offline, _ := cmd.Flags().GetBool("offline")

		ctx := context.Background()
		st := mustOpenStore(ctx)
		defer st.Close()

		counts := st.Counts()
		online := false
		if !offline {
			client, err := newAuthority()
			if err == nil {
				healthCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				online = client.Health(healthCtx) == nil
				cancel()
			}
		}

		status := bsync.Status{
			State:     bsync.Idle,
			Online:    online,
			Pending:   counts.Queued,
			Conflicts: counts.Conflicts,
			Failed:    counts.Failed,
		}
		if last, ok := st.LastSyncedAt(); ok {
			status.LastSyncedAt = &last
		}

		if jsonOutput {
			printJSON(map[string]interface{}{
				"status": status,
				"label":  status.Label(),
				"counts": counts,
				"remote": cfg.Remote.BaseURL,
			})
			return
		}

		lastSync := "never"
		if status.LastSyncedAt != nil {
			lastSync = status.LastSyncedAt.Local().Format(time.RFC1123)
		}
		fmt.Printf("Sync status: %s\n\n", ui.RenderLabel(status.Label()))
		fmt.Print(ui.KeyValue(
			"Remote", cfg.Remote.BaseURL,
			"Backend", cfg.Store.Backend,
			"Cards", fmt.Sprintf("%d in %d columns", counts.Cards, counts.Columns),
			"Queued", fmt.Sprintf("%d (%d dirty, %d deletions)", counts.Queued, counts.Dirty, counts.Tombstones),
			"Conflicts", fmt.Sprintf("%d", counts.Conflicts),
			"Failed", fmt.Sprintf("%d", counts.Failed),
			"Last sync", lastSync,
		))
		if counts.Conflicts > 0 {
			fmt.Printf("\nRun %s to review conflicts.\n", ui.RenderAccent("boardsync resolve"))
		}
	},
}

var resolveCmd = &cobra.Command{
	Use:     "resolve [id]",
	GroupID: "sync",
	Short:   "Resolve cards held in conflict",
	Long: `Resolve version conflicts. Keeping the local copy rebases it on the remote
version and queues it again; taking the remote copy replaces the local card
(or removes it if it was deleted remotely).

Without --keep-local or --take-remote each conflict is shown and you are asked
which side to keep.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		keepLocal, _ := cmd.Flags().GetBool("keep-local")
		takeRemote, _ := cmd.Flags().GetBool("take-remote")
		if keepLocal && takeRemote {
			fatalf("--keep-local and --take-remote are mutually exclusive")
		}

		ctx := context.Background()
		st := mustOpenStore(ctx)
		defer st.Close()

		conflicts := st.Conflicts()
		if len(args) == 1 {
			card, err := findCard(st, args[0])
			if err != nil {
				fatalf("%v", err)
			}
			if card.SyncState != schema.Conflict {
				fatalf("card %s is %s, not in conflict", shortID(card.ID), card.SyncState)
			}
			conflicts = []*schema.Card{card}
		}
		if len(conflicts) == 0 {
			fmt.Printf("%s No conflicts\n", ui.RenderPass("✓"))
			return
		}

		interactive := !keepLocal && !takeRemote
		if interactive && !ui.IsTerminal() {
			fatalf("not a terminal: pass --keep-local or --take-remote")
		}

		resolved := 0
		for _, card := range conflicts {
			var res store.Resolution
			switch {
			case keepLocal:
				res = store.KeepLocal
			case takeRemote:
				res = store.TakeRemote
			default:
				choice, err := askResolution(card)
				if errors.Is(err, huh.ErrUserAborted) {
					fmt.Println("Aborted")
					return
				}
				if err != nil {
					fatalf("%v", err)
				}
				if choice == "skip" {
					continue
				}
				if choice == "remote" {
					res = store.TakeRemote
				}
			}

			if _, err := st.ResolveConflict(ctx, card.ID, res); err != nil && !warnPersistence(err) {
				fatalf("failed to resolve %s: %v", shortID(card.ID), err)
			}
			resolved++
			fmt.Printf("%s %s resolved (%s)\n", ui.RenderPass("✓"), ui.RenderAccent(shortID(card.ID)), res)
		}
		fmt.Printf("\nResolved %d of %d conflict(s)\n", resolved, len(conflicts))
	},
}

func describeConflict(card *schema.Card) string {
	local := ui.KeyValue(
		"Title", card.Title,
		"Column", card.ColumnID,
		"Revision", fmt.Sprintf("%d", card.Rev),
	)
	if card.Remote == nil {
		return ui.RenderHeader("Local") + "\n" + local + "\n" +
			ui.RenderFail(fmt.Sprintf("Deleted remotely at version %d", card.ServerVersion))
	}
	remoteSide := ui.KeyValue(
		"Title", card.Remote.Title,
		"Column", card.Remote.ColumnID,
		"Version", fmt.Sprintf("%d", card.ServerVersion),
	)
	return ui.Columns(40,
		ui.RenderHeader("Local")+"\n"+local,
		ui.RenderHeader("Remote")+"\n"+remoteSide,
	)
}

func askResolution(card *schema.Card) (string, error) {
	fmt.Println(ui.RenderBox(describeConflict(card)))

	remoteLabel := "Take remote copy"
	if card.Remote == nil {
		remoteLabel = "Accept remote deletion"
	}
	choice := "local"
	err := huh.NewSelect[string]().
		Title(fmt.Sprintf("Conflict on %s", shortID(card.ID))).
		Options(
			huh.NewOption("Keep local copy", "local"),
			huh.NewOption(remoteLabel, "remote"),
			huh.NewOption("Skip for now", "skip"),
		).
		Value(&choice).
		Run()
	return choice, err
}

func init() {
	syncCmd.Flags().BoolP("force", "f", false, "Retry failed cards and skip backoff")

	statusCmd.Flags().Bool("offline", false, "Do not contact the remote")

	resolveCmd.Flags().Bool("keep-local", false, "Keep the local copy of every conflict")
	resolveCmd.Flags().Bool("take-remote", false, "Take the remote copy of every conflict")

	rootCmd.AddCommand(syncCmd, statusCmd, resolveCmd)
}
