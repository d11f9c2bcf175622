package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/peak-flow/boardsync/internal/board/dashboard"
	"github.com/peak-flow/boardsync/internal/board/monitor"
	"github.com/peak-flow/boardsync/internal/board/store"
	bsync "github.com/peak-flow/boardsync/internal/board/sync"
)

var daemonCmd = &cobra.Command{
	Use:     "daemon",
	GroupID: "sync",
	Short:   "Run the background sync engine",
	Long: `Run the sync engine in the foreground until interrupted.

The daemon owns the local board while it runs. It probes the remote authority
to track connectivity, drains the queue whenever it comes back online, retries
transient failures with backoff, and serves a WebSocket dashboard with live card
and sync status updates.

Set monitor.flag_file (or --offline-flag) to force offline mode while that file
exists:

  boardsync daemon --offline-flag /tmp/boardsync.offline
  touch /tmp/boardsync.offline   # go offline
  rm /tmp/boardsync.offline      # back online after the debounce

Dashboard endpoints:
  ws://127.0.0.1:8080/ws
  http://127.0.0.1:8080/health`,
	Run: func(cmd *cobra.Command, args []string) {
		interval, _ := cmd.Flags().GetDuration("interval")
		if flag, _ := cmd.Flags().GetString("offline-flag"); flag != "" {
			cfg.Monitor.FlagFile = flag
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		if err := runDaemon(ctx, interval); err != nil && !errors.Is(err, context.Canceled) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Daemon stopped")
	},
}

func runDaemon(ctx context.Context, interval time.Duration) error {
	logger := logs.For("daemon")

	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	client, err := newAuthority()
	if err != nil {
		return err
	}
	engine := bsync.New(st, client, cfg.Sync, logs.For("sync"))
	mon := monitor.New(engine, cfg.Monitor, logs.For("monitor"))

	sources := []monitor.Source{&monitor.Prober{
		Check:    client.Health,
		Interval: cfg.Monitor.ProbeInterval,
		Timeout:  cfg.Remote.Timeout,
	}}
	if cfg.Monitor.FlagFile != "" {
		sources = append(sources, &monitor.FlagFile{Path: cfg.Monitor.FlagFile})
	}

	var (
		server  *dashboard.Server
		handler *dashboard.Handler
	)
	if cfg.Dashboard.Enabled {
		server = dashboard.NewServer(&dashboard.Config{
			Addr:   cfg.Dashboard.Addr,
			Logger: logs.For("dashboard"),
		})
		handler = dashboard.NewHandler(server, st, engine, logs.For("dashboard"))
		if err := server.Start(); err != nil {
			return fmt.Errorf("failed to start dashboard: %w", err)
		}
		logger.Printf("Dashboard listening on http://%s (ws://%s/ws)", server.Addr(), server.Addr())
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return engine.Run(ctx) })
	g.Go(func() error { return mon.Run(ctx, sources...) })
	g.Go(func() error { return triggerLoop(ctx, st, engine, interval) })
	if server != nil {
		g.Go(func() error { return handler.Run(ctx) })
		g.Go(func() error {
			<-ctx.Done()
			return server.Stop()
		})
	}

	counts := st.Counts()
	logger.Printf("Started: %d card(s), %d queued, remote %s", counts.Cards, counts.Queued, cfg.Remote.BaseURL)

	return g.Wait()
}

// triggerLoop requests a pass after local mutations and on every tick, so
// backed-off work is picked up even without new edits.
func triggerLoop(ctx context.Context, st *store.Store, engine *bsync.Engine, interval time.Duration) error {
	events, unsubscribe := st.Subscribe(64)
	defer unsubscribe()

	var tick <-chan time.Time
	if interval > 0 {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if ev.Type != store.StateChanged && ev.Type != store.ColumnAdded {
				engine.Trigger()
			}
		case <-tick:
			if len(st.Pending()) > 0 {
				engine.Trigger()
			}
		}
	}
}

func init() {
	daemonCmd.Flags().Duration("interval", 30*time.Second, "How often to retry pending work (0 disables)")
	daemonCmd.Flags().String("offline-flag", "", "Force offline while this file exists")
	daemonCmd.Flags().String("dashboard-addr", "", "Dashboard listen address (default: 127.0.0.1:8080)")
	daemonCmd.Flags().Bool("no-dashboard", false, "Do not serve the dashboard")

	rootCmd.AddCommand(daemonCmd)
}
