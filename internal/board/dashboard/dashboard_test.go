package dashboard

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/peak-flow/boardsync/internal/board/db"
	"github.com/peak-flow/boardsync/internal/board/remote"
	"github.com/peak-flow/boardsync/internal/board/schema"
	"github.com/peak-flow/boardsync/internal/board/store"
	bsync "github.com/peak-flow/boardsync/internal/board/sync"
)

var quiet = log.New(io.Discard, "", 0)

func startServer(t *testing.T) *Server {
	t.Helper()
	server := NewServer(&Config{Addr: "127.0.0.1:0", Logger: quiet})
	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	t.Cleanup(func() { _ = server.Stop() })
	return server
}

func dial(t *testing.T, ctx context.Context, server *Server) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.Dial(ctx, "ws://"+server.Addr()+"/ws", nil)
	if err != nil {
		t.Fatalf("Failed to connect WebSocket: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func read(t *testing.T, ctx context.Context, conn *websocket.Conn) Message {
	t.Helper()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Failed to read message: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Failed to unmarshal message: %v", err)
	}
	return msg
}

// readUntil reads messages until one of type typ arrives.
func readUntil(t *testing.T, ctx context.Context, conn *websocket.Conn, typ MessageType) Message {
	t.Helper()
	for {
		msg := read(t, ctx, conn)
		if msg.Type == typ {
			return msg
		}
	}
}

func waitForClients(t *testing.T, server *Server, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for server.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("Expected %d clients, got %d", n, server.ClientCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func newBoard(t *testing.T) (*store.Store, *bsync.Engine) {
	t.Helper()
	st, err := store.Open(context.Background(), db.NewMemory(quiet), store.Options{Logger: quiet})
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	engine := bsync.New(st, remote.NewMemory(remote.MemoryConfig{}), bsync.Config{}, quiet)
	return st, engine
}

func TestServerStartStop(t *testing.T) {
	server := NewServer(&Config{Addr: "127.0.0.1:0", Logger: quiet})
	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	if server.Addr() == "127.0.0.1:0" {
		t.Error("Addr should report the bound port")
	}
	if err := server.Stop(); err != nil {
		t.Fatalf("Failed to stop server: %v", err)
	}
}

func TestHealth(t *testing.T) {
	server := startServer(t)

	resp, err := http.Get("http://" + server.Addr() + "/health")
	if err != nil {
		t.Fatalf("GET /health failed: %v", err)
	}
	defer resp.Body.Close()

	var body map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode health: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status = %v, want ok", body["status"])
	}
}

func TestGreeting(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	st, engine := newBoard(t)
	if _, err := st.CreateCard(ctx, "todo", schema.CardInput{Title: "hello"}); err != nil {
		t.Fatalf("CreateCard failed: %v", err)
	}

	server := startServer(t)
	NewHandler(server, st, engine, quiet)

	conn := dial(t, ctx, server)

	msg := read(t, ctx, conn)
	if msg.Type != MessageTypeBoardStats {
		t.Fatalf("first message = %s, want %s", msg.Type, MessageTypeBoardStats)
	}
	var counts store.Counts
	if err := json.Unmarshal(msg.Data, &counts); err != nil {
		t.Fatalf("Failed to decode stats: %v", err)
	}
	if counts.Cards != 1 || counts.Queued != 1 {
		t.Errorf("counts = %+v", counts)
	}

	msg = read(t, ctx, conn)
	if msg.Type != MessageTypeSyncStatus {
		t.Fatalf("second message = %s, want %s", msg.Type, MessageTypeSyncStatus)
	}
	var status SyncStatusData
	if err := json.Unmarshal(msg.Data, &status); err != nil {
		t.Fatalf("Failed to decode status: %v", err)
	}
	if status.Label != "pending" || status.Pending != 1 {
		t.Errorf("status = %+v", status)
	}
}

func TestCardEventsAreBroadcast(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	st, engine := newBoard(t)
	server := startServer(t)
	handler := NewHandler(server, st, engine, quiet)

	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	handler.Start(runCtx)

	conn := dial(t, ctx, server)
	waitForClients(t, server, 1)

	card, err := st.CreateCard(ctx, "todo", schema.CardInput{Title: "broadcast me"})
	if err != nil {
		t.Fatalf("CreateCard failed: %v", err)
	}

	msg := readUntil(t, ctx, conn, MessageTypeCardUpdate)
	var data CardUpdateData
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		t.Fatalf("Failed to decode card update: %v", err)
	}
	if data.CardID != card.ID || data.Action != "created" || data.SyncState != schema.Dirty {
		t.Errorf("card update = %+v", data)
	}

	if _, err := engine.RunPass(ctx); err != nil {
		t.Fatalf("RunPass failed: %v", err)
	}
	msg = readUntil(t, ctx, conn, MessageTypeSyncStatus)
	var status SyncStatusData
	if err := json.Unmarshal(msg.Data, &status); err != nil {
		t.Fatalf("Failed to decode status: %v", err)
	}
	if status.Label == "" {
		t.Error("status label is empty")
	}
}

func TestOnEvent_Conflict(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	st, engine := newBoard(t)
	server := startServer(t)
	handler := NewHandler(server, st, engine, quiet)

	conn := dial(t, ctx, server)
	waitForClients(t, server, 1)

	handler.OnEvent(store.Event{
		Type:   store.StateChanged,
		CardID: "c1",
		State:  schema.Conflict,
		Card: &schema.Card{
			ID: "c1", Title: "mine", Rev: 3, SyncState: schema.Conflict,
			ServerVersion: 7, Remote: &schema.RemoteCard{ID: "c1", Title: "theirs"},
		},
	})

	msg := readUntil(t, ctx, conn, MessageTypeConflict)
	var data ConflictData
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		t.Fatalf("Failed to decode conflict: %v", err)
	}
	if data.CardID != "c1" || data.ServerVersion != 7 || data.Remote == nil || data.Remote.Title != "theirs" {
		t.Errorf("conflict = %+v", data)
	}
	if data.DeletedRemotely {
		t.Error("DeletedRemotely should be false when a remote copy exists")
	}
}

func TestMultipleClients(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	server := startServer(t)

	numClients := 3
	clients := make([]*websocket.Conn, numClients)
	for i := range clients {
		clients[i] = dial(t, ctx, server)
	}
	waitForClients(t, server, numClients)

	msg, err := NewMessage(MessageTypeBoardStats, store.Counts{Cards: 9})
	if err != nil {
		t.Fatalf("NewMessage failed: %v", err)
	}
	server.Broadcast(msg)

	for i, conn := range clients {
		got := read(t, ctx, conn)
		if got.Type != MessageTypeBoardStats {
			t.Errorf("client %d got %s", i, got.Type)
		}
	}
}
