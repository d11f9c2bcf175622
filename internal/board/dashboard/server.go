// Package dashboard provides a real-time WebSocket feed of board activity.
//
// The dashboard broadcasts card changes, sync status, conflicts, and board
// statistics to connected WebSocket clients so a UI can follow a running
// sync daemon without polling.
package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// MessageType defines the type of dashboard message
type MessageType string

const (
	// MessageTypeCardUpdate indicates a card was created, changed, moved, or deleted
	MessageTypeCardUpdate MessageType = "card_update"

	// MessageTypeSyncStatus carries the sync engine status
	MessageTypeSyncStatus MessageType = "sync_status"

	// MessageTypeConflict indicates a card is held for conflict resolution
	MessageTypeConflict MessageType = "conflict"

	// MessageTypeBoardStats carries updated board counts
	MessageTypeBoardStats MessageType = "board_stats"
)

// Message represents a dashboard broadcast message
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage marshals data into a message of the given type.
func NewMessage(typ MessageType, data interface{}) (Message, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Message{}, fmt.Errorf("failed to marshal %s data: %w", typ, err)
	}
	return Message{Type: typ, Timestamp: time.Now(), Data: raw}, nil
}

// Server fans board activity out to connected WebSocket watchers.
type Server struct {
	addr     string
	listener net.Listener
	server   *http.Server

	mu       sync.RWMutex
	watchers map[*websocket.Conn]struct{}
	dropped  int
	greeting func() []Message

	outbox chan Message

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger *log.Logger
}

// Config holds server configuration
type Config struct {
	// Addr to listen on (default: 127.0.0.1:8080). Port 0 picks a free port.
	Addr string `mapstructure:"addr"`

	// Logger for server activity (default: log.Default())
	Logger *log.Logger `mapstructure:"-"`
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Addr:   "127.0.0.1:8080",
		Logger: log.Default(),
	}
}

// NewServer creates a dashboard server. Nothing listens until Start.
func NewServer(config *Config) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = log.Default()
	}
	addr := config.Addr
	if addr == "" {
		addr = DefaultConfig().Addr
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		addr:     addr,
		watchers: make(map[*websocket.Conn]struct{}),
		outbox:   make(chan Message, 100),
		ctx:      ctx,
		cancel:   cancel,
		logger:   config.Logger,
	}
}

// SetGreeting sets the function producing the messages every new watcher
// receives first, typically the current stats and sync status.
func (s *Server) SetGreeting(fn func() []Message) {
	s.mu.Lock()
	s.greeting = fn
	s.mu.Unlock()
}

// Handler returns the HTTP routes without starting a listener.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/", s.handleRoot)
	return mux
}

// Start binds the listener and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln
	s.server = &http.Server{
		Handler:     s.Handler(),
		ReadTimeout: 10 * time.Second,
	}

	s.wg.Add(2)
	go s.deliver()
	go func() {
		defer s.wg.Done()
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Printf("WARNING: dashboard serve failed: %v", err)
		}
	}()
	return nil
}

// Stop disconnects every watcher and shuts the listener down.
func (s *Server) Stop() error {
	s.cancel()

	s.mu.Lock()
	for conn := range s.watchers {
		_ = conn.Close(websocket.StatusGoingAway, "board daemon stopping")
	}
	s.watchers = make(map[*websocket.Conn]struct{})
	s.mu.Unlock()

	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shut down dashboard: %w", err)
		}
	}
	s.wg.Wait()

	s.logger.Println("Dashboard stopped")
	return nil
}

// Broadcast queues msg for every watcher. It never blocks: when the outbox is
// full the message is counted as dropped.
func (s *Server) Broadcast(msg Message) {
	select {
	case s.outbox <- msg:
	case <-s.ctx.Done():
	default:
		s.mu.Lock()
		s.dropped++
		s.mu.Unlock()
		s.logger.Printf("WARNING: dashboard outbox full, dropped %s", msg.Type)
	}
}

// deliver drains the outbox until Stop.
func (s *Server) deliver() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case msg := <-s.outbox:
			s.fanOut(msg)
		}
	}
}

func (s *Server) fanOut(msg Message) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	frame, err := json.Marshal(msg)
	if err != nil {
		s.logger.Printf("WARNING: failed to encode %s: %v", msg.Type, err)
		return
	}

	s.mu.RLock()
	targets := make([]*websocket.Conn, 0, len(s.watchers))
	for conn := range s.watchers {
		targets = append(targets, conn)
	}
	s.mu.RUnlock()

	// Writes happen unlocked; a stalled watcher only delays this message.
	for _, conn := range targets {
		if err := s.write(conn, frame); err != nil {
			s.logger.Printf("Dropping watcher after failed %s: %v", msg.Type, err)
			s.disconnect(conn)
		}
	}
}

func (s *Server) write(conn *websocket.Conn, frame []byte) error {
	ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, frame)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"localhost:*", "127.0.0.1:*"},
	})
	if err != nil {
		s.logger.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	// The greeting goes out before the watcher is registered, so the board
	// snapshot always precedes live updates.
	s.mu.RLock()
	greet := s.greeting
	s.mu.RUnlock()
	if greet != nil {
		for _, msg := range greet() {
			frame, err := json.Marshal(msg)
			if err != nil {
				continue
			}
			if err := s.write(conn, frame); err != nil {
				_ = conn.Close(websocket.StatusInternalError, "greeting failed")
				return
			}
		}
	}

	s.mu.Lock()
	s.watchers[conn] = struct{}{}
	n := len(s.watchers)
	s.mu.Unlock()
	s.logger.Printf("Watcher connected (%d watching)", n)

	// Watchers never send anything; reading only notices the disconnect.
	for {
		if _, _, err := conn.Read(s.ctx); err != nil {
			s.disconnect(conn)
			return
		}
	}
}

func (s *Server) disconnect(conn *websocket.Conn) {
	s.mu.Lock()
	_, ok := s.watchers[conn]
	delete(s.watchers, conn)
	n := len(s.watchers)
	s.mu.Unlock()

	if ok {
		_ = conn.Close(websocket.StatusNormalClosure, "")
		s.logger.Printf("Watcher disconnected (%d watching)", n)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	watching := len(s.watchers)
	dropped := s.dropped
	s.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "ok",
		"clients": watching,
		"dropped": dropped,
	})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html")
	_, _ = fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head>
    <title>boardsync dashboard</title>
</head>
<body>
    <h1>boardsync dashboard</h1>
    <p>WebSocket endpoint: <code>ws://%s/ws</code></p>
    <p>Health check: <a href="/health">/health</a></p>
    <p>Messages: card_update, sync_status, conflict, board_stats.</p>
</body>
</html>`, r.Host)
}

// Addr returns the bound address once started, else the configured one.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// ClientCount returns how many watchers are connected.
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.watchers)
}
