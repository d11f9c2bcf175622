package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/peak-flow/boardsync/internal/board/db"
	"github.com/peak-flow/boardsync/internal/board/remote"
	"github.com/peak-flow/boardsync/internal/board/schema"
	"github.com/peak-flow/boardsync/internal/board/store"
	"github.com/peak-flow/boardsync/internal/config"
	"github.com/peak-flow/boardsync/internal/logging"
	"github.com/peak-flow/boardsync/internal/ui"
)

var (
	cfg  *config.Config
	logs *logging.Logs

	jsonOutput bool
)

var rootCmd = &cobra.Command{
	Use:   "boardsync",
	Short: "Local-first kanban board with background sync",
	Long: `boardsync keeps a kanban board in a local store and pushes every change to a
remote authority in the background. Edits never wait on the network: they land
locally, are queued, and the sync engine drains the queue whenever the remote
is reachable.

Configuration is read from boardsync.yaml in the data directory (or --config),
BOARDSYNC_* environment variables, and a .env file.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		configFile, _ := cmd.Flags().GetString("config")
		loaded, err := config.Load(config.Options{
			File:     configFile,
			Flags:    cmd.Flags(),
			EnvFiles: []string{".env"},
		})
		if err != nil {
			return err
		}
		cfg = loaded

		logs, err = logging.New(cfg.Log)
		if err != nil {
			return fmt.Errorf("failed to set up logging: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logs != nil {
			_ = logs.Close()
		}
	},
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "board", Title: "Board:"},
		&cobra.Group{ID: "sync", Title: "Sync:"},
		&cobra.Group{ID: "remote", Title: "Remote:"},
		&cobra.Group{ID: "advanced", Title: "Advanced:"},
	)

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "Config file (default: <data-dir>/boardsync.yaml)")
	flags.String("data-dir", "", "Directory holding the local board (default: .boardsync)")
	flags.String("backend", "", "Persistence backend: memory, file, sqlite, postgres, mysql, bolt, s3")
	flags.String("db", "", "Path of the local board file for file, sqlite and bolt backends")
	flags.String("remote", "", "Remote authority URL")
	flags.String("secret", "", "Shared secret for remote bearer tokens")
	flags.String("log-file", "", "Write logs to a rotating file instead of stderr")
	flags.BoolP("verbose", "v", false, "Enable debug logging")
	flags.BoolVar(&jsonOutput, "json", false, "Output in JSON format")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// openStore opens the configured adapter and loads the board from it.
func openStore(ctx context.Context) (*store.Store, error) {
	adapter, err := db.Open(ctx, cfg.Store, logs.For("db"))
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.Store.Backend, err)
	}
	st, err := store.Open(ctx, adapter, store.Options{Logger: logs.For("store")})
	if err != nil {
		_ = adapter.Close()
		return nil, err
	}
	return st, nil
}

// mustOpenStore is openStore for Run funcs.
func mustOpenStore(ctx context.Context) *store.Store {
	st, err := openStore(ctx)
	if err != nil {
		fatalf("%v", err)
	}
	return st
}

// newAuthority builds the HTTP client for the configured remote.
func newAuthority() (*remote.Client, error) {
	client, err := remote.NewClient(cfg.Remote)
	if err != nil {
		return nil, fmt.Errorf("failed to configure remote %s: %w", cfg.Remote.BaseURL, err)
	}
	return client, nil
}

// warnPersistence reports a mutation that was applied in memory but not saved.
func warnPersistence(err error) bool {
	if errors.Is(err, store.ErrPersistence) {
		fmt.Fprintf(os.Stderr, "%s change applied but not saved: %v\n", ui.RenderWarn("Warning:"), err)
		return true
	}
	return false
}

// findCard resolves a card id or unique id prefix.
func findCard(st *store.Store, ref string) (*schema.Card, error) {
	if card, ok := st.Card(ref); ok {
		return card, nil
	}
	board := st.Snapshot()
	var matches []string
	for id := range board.Cards {
		if strings.HasPrefix(id, ref) {
			matches = append(matches, id)
		}
	}
	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("no card matches %q", ref)
	case 1:
		return board.Cards[matches[0]].Clone(), nil
	default:
		sort.Strings(matches)
		return nil, fmt.Errorf("%q is ambiguous: matches %s", ref, strings.Join(matches, ", "))
	}
}

// shortID trims a card id for listings.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
