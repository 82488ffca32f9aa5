// Package monitor serves a local, read-only live view of the macropad
// link: every exchanged frame over a WebSocket plus a status API.
package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/shaunagostinho/macropad-link/internal/trace"
)

// StatusFunc returns a JSON-serializable snapshot of the daemon.
type StatusFunc func() interface{}

// ConfigSource exposes the running configuration.
type ConfigSource interface {
	ToJSON() ([]byte, error)
}

// Server broadcasts trace events to WebSocket clients.
type Server struct {
	addr   string
	webFS  fs.FS
	status StatusFunc
	cfg    ConfigSource

	clients   map[*wsClient]struct{}
	clientsMu sync.RWMutex

	upgrader websocket.Upgrader

	statusEvery time.Duration
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// Frame is the JSON structure sent to all WebSocket clients.
type Frame struct {
	Event  *trace.Event `json:"event,omitempty"`
	Status interface{}  `json:"status,omitempty"`
	Stamp  int64        `json:"stamp"` // Unix ms
}

// New creates a monitor. webFS may be nil when no page is embedded.
func New(addr string, webFS fs.FS, status StatusFunc, cfg ConfigSource) *Server {
	return &Server{
		addr:    addr,
		webFS:   webFS,
		status:  status,
		cfg:     cfg,
		clients: make(map[*wsClient]struct{}),
		upgrader: websocket.Upgrader{
			// Local tool; the page may be opened from any origin.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		statusEvery: time.Second,
	}
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	if s.webFS != nil {
		mux.Handle("/", http.FileServer(http.FS(s.webFS)))
	}
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/config", s.handleConfig)
	return mux
}

// Run serves until ctx is done, pushing a status frame every second.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go s.statusLoop(ctx)
	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutCtx)
		s.closeClients()
	}()

	log.Info().Str("component", "monitor").Str("addr", ln.Addr().String()).Msg("listening")
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Record broadcasts one trace event. It never blocks.
func (s *Server) Record(e trace.Event) {
	s.broadcast(Frame{Event: &e, Stamp: e.Stamp})
}

// Clients returns the number of connected WebSocket clients.
func (s *Server) Clients() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debug().Str("component", "monitor").Err(err).Msg("upgrade error")
		return
	}

	client := &wsClient{
		conn: conn,
		send: make(chan []byte, 64),
	}

	// Initial status before registering so it is always the first frame.
	if data, err := json.Marshal(s.statusFrame()); err == nil {
		client.send <- data
	}

	s.clientsMu.Lock()
	s.clients[client] = struct{}{}
	n := len(s.clients)
	s.clientsMu.Unlock()

	log.Info().Str("component", "monitor").Int("clients", n).Msg("client connected")

	// Writer goroutine
	go func() {
		defer conn.Close()
		for msg := range client.send {
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				break
			}
		}
	}()

	// Reader goroutine; the page never sends anything but reading
	// processes control frames and notices disconnects.
	go func() {
		defer s.removeClient(client)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}

func (s *Server) removeClient(c *wsClient) {
	s.clientsMu.Lock()
	if _, ok := s.clients[c]; !ok {
		s.clientsMu.Unlock()
		return
	}
	delete(s.clients, c)
	close(c.send)
	n := len(s.clients)
	s.clientsMu.Unlock()
	log.Info().Str("component", "monitor").Int("clients", n).Msg("client disconnected")
}

func (s *Server) closeClients() {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	for c := range s.clients {
		delete(s.clients, c)
		close(c.send)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, s.statusFrame().Status)
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.cfg == nil {
		http.Error(w, "no config", http.StatusNotFound)
		return
	}
	data, err := s.cfg.ToJSON()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

func (s *Server) statusLoop(ctx context.Context) {
	ticker := time.NewTicker(s.statusEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.Clients() > 0 {
				s.broadcast(s.statusFrame())
			}
		}
	}
}

func (s *Server) statusFrame() Frame {
	f := Frame{Stamp: time.Now().UnixMilli()}
	if s.status != nil {
		f.Status = s.status()
	}
	return f
}

func (s *Server) broadcast(frame Frame) {
	data, err := json.Marshal(frame)
	if err != nil {
		return
	}

	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()

	for client := range s.clients {
		select {
		case client.send <- data:
		default:
			// Client too slow, skip
		}
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Str("component", "monitor").Err(err).Msg("encode response")
	}
}
