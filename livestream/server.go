package livestream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"

	"github.com/ethereum-optimism/infra/op-testrun/types"
)

const DefaultAddr = "0.0.0.0:5050"

type Config struct {
	Log  log.Logger
	Addr string
	// AllowAllOrigins disables the websocket same-origin check so browser
	// dashboards served from another host can connect.
	AllowAllOrigins bool
	SendBuffer      int
	RunIndexSize    int
}

// Server exposes the hub over websocket and serves recent run summaries.
type Server struct {
	log      log.Logger
	addr     string
	hub      *Hub
	runs     *RunIndex
	upgrader *websocket.Upgrader
	sendBuf  int

	mu       sync.Mutex
	srv      *http.Server
	listener net.Listener
	closed   bool
}

func NewServer(cfg Config) (*Server, error) {
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	runs, err := NewRunIndex(cfg.RunIndexSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create run index: %w", err)
	}
	s := &Server{
		log:  cfg.Log,
		addr: cfg.Addr,
		hub:  NewHub(cfg.Log),
		runs: runs,
		upgrader: &websocket.Upgrader{
			HandshakeTimeout: 5 * time.Second,
		},
		sendBuf: cfg.SendBuffer,
	}
	// See https://pkg.go.dev/github.com/gorilla/websocket#hdr-Origin_Considerations
	if cfg.AllowAllOrigins {
		s.upgrader.CheckOrigin = func(r *http.Request) bool {
			return true
		}
	}
	return s, nil
}

// Hub is the sink executions stream into.
func (s *Server) Hub() *Hub {
	return s.hub
}

// RecordRun stores the run summary and announces completion to viewers.
func (s *Server) RecordRun(run *types.RunResult) {
	summary := NewRunSummary(run)
	s.runs.Add(summary)
	if err := s.hub.Broadcast(CompleteEvent(summary)); err != nil {
		s.log.Debug("Could not broadcast run completion", "run_id", run.RunID, "err", err)
	}
}

// Handler returns the routed, CORS-wrapped handler.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/ws", s.handleWS).Methods(http.MethodGet)
	r.HandleFunc("/runs", s.handleRuns).Methods(http.MethodGet)
	r.HandleFunc("/runs/{id}", s.handleRun).Methods(http.MethodGet)
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
	})
	return c.Handler(r)
}

// Start listens on the configured address and serves until Shutdown. It
// returns immediately if Shutdown was already called.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ln.Close()
	}
	s.srv = srv
	s.listener = ln
	s.mu.Unlock()

	s.log.Info("Live stream server listening", "addr", ln.Addr().String())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Addr returns the bound address once Start is listening.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return s.addr
	}
	return s.listener.Addr().String()
}

// Shutdown closes every viewer connection and stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Close()
	s.mu.Lock()
	s.closed = true
	srv := s.srv
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("Error upgrading websocket connection", "err", err)
		return
	}
	c := newClient(s.hub, conn, s.sendBuf)
	if msg, err := StatusEvent(ConnectedMessage).encode(); err == nil {
		c.enqueue(msg)
	}
	if !s.hub.register(c) {
		c.drop()
		return
	}
	go c.writePump()
	go c.readPump()
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.runs.List())
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	run, ok := s.runs.Get(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "run not found"})
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("failed to write response", "err", err)
	}
}
