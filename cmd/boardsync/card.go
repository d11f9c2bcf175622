package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/peak-flow/boardsync/internal/board/schema"
	"github.com/peak-flow/boardsync/internal/ui"
)

var cardCmd = &cobra.Command{
	Use:     "card",
	GroupID: "board",
	Short:   "Create, edit, move and delete cards",
	Long: `Card commands change the local board immediately. Every change is queued for
the remote authority and pushed by "boardsync sync" or a running daemon.

Cards can be referenced by a unique prefix of their id.`,
}

var cardAddCmd = &cobra.Command{
	Use:   "add <title>",
	Short: "Create a card",
	Example: `  boardsync card add "Write release notes"
  boardsync card add "Fix login" --column doing --due "next friday"`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		column, _ := cmd.Flags().GetString("column")
		desc, _ := cmd.Flags().GetString("description")
		dueText, _ := cmd.Flags().GetString("due")

		in := schema.CardInput{Title: strings.Join(args, " "), Description: desc}
		if dueText != "" {
			due, err := parseDue(dueText, time.Now())
			if err != nil {
				fatalf("%v", err)
			}
			in.DueAt = &due
		}

		ctx := context.Background()
		st := mustOpenStore(ctx)
		defer st.Close()

		card, err := st.CreateCard(ctx, column, in)
		if err != nil && !warnPersistence(err) {
			fatalf("failed to create card: %v", err)
		}

		if jsonOutput {
			printJSON(card)
			return
		}
		fmt.Printf("%s Created %s in %s: %s\n", ui.RenderPass("✓"), ui.RenderAccent(shortID(card.ID)), card.ColumnID, card.Title)
	},
}

var cardEditCmd = &cobra.Command{
	Use:   "edit <id>",
	Short: "Change a card's title, description or due date",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		var patch schema.CardPatch
		if cmd.Flags().Changed("title") {
			title, _ := cmd.Flags().GetString("title")
			patch.Title = &title
		}
		if cmd.Flags().Changed("description") {
			desc, _ := cmd.Flags().GetString("description")
			patch.Description = &desc
		}
		if cmd.Flags().Changed("due") {
			dueText, _ := cmd.Flags().GetString("due")
			due, err := parseDue(dueText, time.Now())
			if err != nil {
				fatalf("%v", err)
			}
			patch.DueAt = &due
		}
		patch.ClearDue, _ = cmd.Flags().GetBool("clear-due")
		if patch.Empty() {
			fatalf("nothing to change (use --title, --description, --due or --clear-due)")
		}

		ctx := context.Background()
		st := mustOpenStore(ctx)
		defer st.Close()

		card, err := findCard(st, args[0])
		if err != nil {
			fatalf("%v", err)
		}
		card, err = st.UpdateCard(ctx, card.ID, patch)
		if err != nil && !warnPersistence(err) {
			fatalf("failed to update card: %v", err)
		}

		if jsonOutput {
			printJSON(card)
			return
		}
		fmt.Printf("%s Updated %s: %s\n", ui.RenderPass("✓"), ui.RenderAccent(shortID(card.ID)), card.Title)
	},
}

var cardMoveCmd = &cobra.Command{
	Use:   "move <id> <column>",
	Short: "Move a card to another column",
	Example: `  boardsync card move 3f2a doing
  boardsync card move 3f2a done --index 0`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		index, _ := cmd.Flags().GetInt("index")

		ctx := context.Background()
		st := mustOpenStore(ctx)
		defer st.Close()

		card, err := findCard(st, args[0])
		if err != nil {
			fatalf("%v", err)
		}
		from := card.ColumnID
		if index < 0 {
			if col, ok := st.Column(args[1]); ok {
				index = len(col.CardIDs)
			}
		}
		card, err = st.MoveCard(ctx, card.ID, from, args[1], index)
		if err != nil && !warnPersistence(err) {
			fatalf("failed to move card: %v", err)
		}

		if jsonOutput {
			printJSON(card)
			return
		}
		fmt.Printf("%s Moved %s: %s → %s\n", ui.RenderPass("✓"), ui.RenderAccent(shortID(card.ID)), from, card.ColumnID)
	},
}

var cardRmCmd = &cobra.Command{
	Use:     "rm <id>",
	Aliases: []string{"delete"},
	Short:   "Delete a card",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		st := mustOpenStore(ctx)
		defer st.Close()

		card, err := findCard(st, args[0])
		if err != nil {
			fatalf("%v", err)
		}
		if err := st.DeleteCard(ctx, card.ID); err != nil && !warnPersistence(err) {
			fatalf("failed to delete card: %v", err)
		}
		fmt.Printf("%s Deleted %s: %s\n", ui.RenderPass("✓"), ui.RenderAccent(shortID(card.ID)), card.Title)
	},
}

var cardLsCmd = &cobra.Command{
	Use:     "ls [column]",
	Aliases: []string{"list"},
	Short:   "List cards by column",
	Args:    cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		st := mustOpenStore(ctx)
		defer st.Close()

		columns := st.Columns()
		if len(args) == 1 {
			col, ok := st.Column(args[0])
			if !ok {
				fatalf("unknown column %q", args[0])
			}
			columns = []*schema.Column{col}
		}

		if jsonOutput {
			out := make(map[string][]*schema.Card, len(columns))
			for _, col := range columns {
				cards, _ := st.ColumnCards(col.ID)
				out[col.ID] = cards
			}
			printJSON(out)
			return
		}

		now := time.Now()
		width := ui.Width()
		blockWidth := 32
		if n := len(columns); n > 0 && width/n-2 > blockWidth {
			blockWidth = width/n - 2
		}

		blocks := make([]string, 0, len(columns))
		for _, col := range columns {
			cards, err := st.ColumnCards(col.ID)
			if err != nil {
				fatalf("%v", err)
			}
			blocks = append(blocks, renderColumn(col, cards, blockWidth, now))
		}
		fmt.Println(ui.Columns(blockWidth, blocks...))
	},
}

func renderColumn(col *schema.Column, cards []*schema.Card, width int, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", ui.RenderHeader(col.Title), ui.RenderMuted(fmt.Sprintf("(%d)", len(cards))))
	if len(cards) == 0 {
		b.WriteString(ui.RenderMuted("  empty") + "\n")
	}
	for _, card := range cards {
		fmt.Fprintf(&b, "%s %s\n", ui.RenderAccent(shortID(card.ID)), ui.Truncate(card.Title, width-10))
		line := "  " + ui.RenderState(card.SyncState)
		if due := formatDue(card.DueAt, now); due != "" {
			line += " " + ui.RenderMuted(due)
		}
		b.WriteString(line + "\n")
	}
	return b.String()
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fatalf("failed to encode JSON: %v", err)
	}
}

func init() {
	cardAddCmd.Flags().StringP("column", "c", "todo", "Column to create the card in")
	cardAddCmd.Flags().StringP("description", "d", "", "Card description")
	cardAddCmd.Flags().String("due", "", "Due date (YYYY-MM-DD, RFC 3339, or e.g. \"next monday\")")

	cardEditCmd.Flags().String("title", "", "New title")
	cardEditCmd.Flags().StringP("description", "d", "", "New description")
	cardEditCmd.Flags().String("due", "", "New due date")
	cardEditCmd.Flags().Bool("clear-due", false, "Remove the due date")

	cardMoveCmd.Flags().IntP("index", "i", -1, "Position in the target column (-1 appends)")

	cardCmd.AddCommand(cardAddCmd, cardEditCmd, cardMoveCmd, cardRmCmd, cardLsCmd)
	rootCmd.AddCommand(cardCmd)
}

