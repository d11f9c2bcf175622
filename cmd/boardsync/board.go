package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/peak-flow/boardsync/internal/board/db"
	"github.com/peak-flow/boardsync/internal/board/migrate"
	"github.com/peak-flow/boardsync/internal/board/store"
	"github.com/peak-flow/boardsync/internal/ui"
)

var initCmd = &cobra.Command{
	Use:     "init",
	GroupID: "board",
	Short:   "Create the local board",
	Long: `Create the local board in the data directory. Without --layout the board
starts with the default columns (To Do, In Progress, Done).

A layout file is TOML:

  name = "Team board"

  [[columns]]
  id = "backlog"
  title = "Backlog"

  [[columns]]
  id = "review"
  title = "Review"`,
	Run: func(cmd *cobra.Command, args []string) {
		layoutPath, _ := cmd.Flags().GetString("layout")

		var layout *migrate.Layout
		if layoutPath != "" {
			var err error
			if layout, err = migrate.LoadLayout(layoutPath); err != nil {
				fatalf("%v", err)
			}
		}

		if cfg.Store.Backend == "file" || cfg.Store.Backend == "sqlite" || cfg.Store.Backend == "bolt" {
			if err := os.MkdirAll(cfg.Store.Dir, 0755); err != nil {
				fatalf("failed to create data directory: %v", err)
			}
		}

		ctx := context.Background()
		st := mustOpenStore(ctx)
		defer st.Close()

		added := 0
		if layout != nil {
			var err error
			added, err = migrate.ApplyLayout(ctx, st, layout)
			if err != nil && !warnPersistence(err) {
				fatalf("%v", err)
			}
		}

		counts := st.Counts()
		fmt.Printf("%s Board ready (%s backend)\n", ui.RenderPass("✓"), cfg.Store.Backend)
		fmt.Print(ui.KeyValue(
			"Columns", fmt.Sprintf("%d (%d added)", counts.Columns, added),
			"Cards", fmt.Sprintf("%d", counts.Cards),
		))
	},
}

var columnCmd = &cobra.Command{
	Use:     "column",
	GroupID: "board",
	Short:   "Manage columns (local only, never synced)",
}

var columnAddCmd = &cobra.Command{
	Use:   "add <id> <title>",
	Short: "Append a column",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		st := mustOpenStore(ctx)
		defer st.Close()

		col, err := st.AddColumn(ctx, args[0], args[1])
		switch {
		case errors.Is(err, store.ErrDuplicateContainer):
			fatalf("column %q already exists", args[0])
		case err != nil && !warnPersistence(err):
			fatalf("failed to add column: %v", err)
		}
		fmt.Printf("%s Added column %s (%s)\n", ui.RenderPass("✓"), ui.RenderAccent(col.ID), col.Title)
	},
}

var exportCmd = &cobra.Command{
	Use:     "export <path>",
	GroupID: "board",
	Short:   "Export the board as JSONL or YAML",
	Long: `Export every card to a file. The format follows the extension: .yaml/.yml
writes a column-grouped YAML document, anything else writes one JSON card per
line, which "boardsync import" reads back.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		formatFlag, _ := cmd.Flags().GetString("format")
		format := migrate.FormatFromPath(args[0])
		if formatFlag != "" {
			format = migrate.Format(formatFlag)
		}

		ctx := context.Background()
		st := mustOpenStore(ctx)
		defer st.Close()

		board := st.Snapshot()
		if err := migrate.ExportFile(args[0], format, board); err != nil {
			fatalf("%v", err)
		}
		fmt.Printf("%s Exported %d cards to %s (%s)\n", ui.RenderPass("✓"), len(board.Cards), args[0], format)
	},
}

var importCmd = &cobra.Command{
	Use:     "import <path>",
	GroupID: "board",
	Short:   "Import cards from a JSONL export",
	Long: `Import cards from a JSONL file. Every card is created locally with a new id
and queued for sync, so importing never overwrites remote data.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		defaultColumn, _ := cmd.Flags().GetString("default-column")
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		ctx := context.Background()
		st := mustOpenStore(ctx)
		defer st.Close()

		result, err := migrate.ImportJSONL(ctx, st, args[0], migrate.ImportOptions{
			DefaultColumn: defaultColumn,
			DryRun:        dryRun,
		})
		if err != nil {
			fatalf("%v", err)
		}

		if jsonOutput {
			printJSON(result)
			return
		}
		verb := "Imported"
		if dryRun {
			verb = "Would import"
		}
		fmt.Printf("%s %s %d of %d cards in %v\n", ui.RenderPass("✓"), verb, result.Created, result.Read, result.Duration.Round(time.Millisecond))
		if result.Rehomed > 0 {
			fmt.Printf("  %d moved to %s (unknown column)\n", result.Rehomed, defaultColumn)
		}
		if result.Skipped > 0 {
			fmt.Printf("  %s %d skipped\n", ui.RenderWarn("!"), result.Skipped)
		}
		for _, msg := range result.Errors {
			fmt.Fprintf(os.Stderr, "  %s %s\n", ui.RenderFail("✗"), msg)
		}
	},
}

var usageCmd = &cobra.Command{
	Use:     "usage",
	GroupID: "advanced",
	Short:   "Show how much space the local board uses",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		adapter, err := db.Open(ctx, cfg.Store, logs.For("db"))
		if err != nil {
			fatalf("%v", err)
		}
		defer adapter.Close()

		inspector, ok := adapter.(db.Inspector)
		if !ok {
			fatalf("the %s backend cannot report usage", cfg.Store.Backend)
		}
		size, err := inspector.Usage(ctx)
		if err != nil {
			fatalf("%v", err)
		}
		fmt.Print(ui.KeyValue("Backend", cfg.Store.Backend, "Bytes", fmt.Sprintf("%d", size)))
	},
}

func init() {
	initCmd.Flags().String("layout", "", "TOML layout file with the board's columns")

	exportCmd.Flags().String("format", "", "jsonl or yaml (default: from extension)")

	importCmd.Flags().String("default-column", "", "Column for cards whose column does not exist (default: skip them)")
	importCmd.Flags().Bool("dry-run", false, "Validate without changing the board")

	columnCmd.AddCommand(columnAddCmd)
	rootCmd.AddCommand(initCmd, columnCmd, exportCmd, importCmd, usageCmd)
}
