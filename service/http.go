package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
)

// httpServer binds synchronously so Addr is valid as soon as listen returns,
// and serves on the caller's goroutine.
type httpServer struct {
	name    string
	log     log.Logger
	handler http.Handler

	mu  sync.Mutex
	srv *http.Server
	ln  net.Listener
}

func (h *httpServer) listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen for %s server on %s: %w", h.name, addr, err)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ln = ln
	h.srv = &http.Server{
		Handler:           h.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return nil
}

func (h *httpServer) serve() error {
	h.mu.Lock()
	srv, ln := h.srv, h.ln
	h.mu.Unlock()
	if srv == nil {
		return fmt.Errorf("%s server is not listening", h.name)
	}
	h.log.Info("Starting "+h.name+" server", "addr", ln.Addr().String())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("%s server: %w", h.name, err)
	}
	return nil
}

// Addr is the bound address, or empty before the server listens.
func (h *httpServer) Addr() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.ln == nil {
		return ""
	}
	return h.ln.Addr().String()
}

func (h *httpServer) shutdown(ctx context.Context) error {
	h.mu.Lock()
	srv, ln := h.srv, h.ln
	h.mu.Unlock()
	if srv == nil {
		return nil
	}
	err := srv.Shutdown(ctx)
	// Shutdown only closes listeners that reached Serve.
	_ = ln.Close()
	return err
}
