package livestream

import (
	"errors"
	"sync"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-testrun/execution"
	"github.com/ethereum-optimism/infra/op-testrun/metrics"
)

// ErrHubClosed is returned by Emit and Broadcast after Close.
var ErrHubClosed = errors.New("live hub closed")

// Hub fans events out to every connected viewer. It implements
// execution.EventSink. Broadcasting never blocks on a viewer: a viewer whose
// send buffer is full is disconnected.
type Hub struct {
	log log.Logger

	mu      sync.RWMutex
	clients map[*client]struct{}
	closed  bool

	// onStart is invoked when a viewer asks to start an execution.
	onStart func()
}

var _ execution.EventSink = (*Hub)(nil)

// NewHub creates an empty hub.
func NewHub(lgr log.Logger) *Hub {
	if lgr == nil {
		lgr = log.New()
		lgr.Error("No logger provided, using default")
	}
	return &Hub{
		log:     lgr,
		clients: make(map[*client]struct{}),
	}
}

// OnStartRequest sets the callback for start_execution requests. The info
// banner is broadcast before the callback runs.
func (h *Hub) OnStartRequest(fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onStart = fn
}

// Emit forwards one child output line to all viewers.
func (h *Hub) Emit(line execution.Line) error {
	return h.Broadcast(LineEvent(line))
}

// Info broadcasts an info message.
func (h *Hub) Info(msg string) error {
	return h.Broadcast(InfoEvent(msg))
}

// Broadcast sends ev to every viewer.
func (h *Hub) Broadcast(ev Event) error {
	msg, err := ev.encode()
	if err != nil {
		return err
	}

	h.mu.RLock()
	if h.closed {
		h.mu.RUnlock()
		return ErrHubClosed
	}
	var slow []*client
	for c := range h.clients {
		if !c.enqueue(msg) {
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.log.Warn("Dropping slow live client", "remote", c.remote)
		h.remove(c)
		c.drop()
	}
	return nil
}

// Clients returns the number of connected viewers.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every viewer. Later emits fail with ErrHubClosed.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	clients := h.clients
	h.clients = make(map[*client]struct{})
	h.mu.Unlock()

	for c := range clients {
		c.stop()
	}
	metrics.SetLiveClients(0)
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return false
	}
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()

	metrics.SetLiveClients(n)
	h.log.Info("Live client connected", "remote", c.remote, "clients", n)
	return true
}

func (h *Hub) unregister(c *client) {
	h.remove(c)
	c.stop()
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()

	if ok {
		metrics.SetLiveClients(n)
		h.log.Info("Live client disconnected", "remote", c.remote, "clients", n)
	}
}

// handleRequest reacts to a message from a viewer.
func (h *Hub) handleRequest(c *client, req request) {
	switch req.Type {
	case RequestStartExecution:
		_ = h.Info(ExecutionStarted)
		h.mu.RLock()
		fn := h.onStart
		h.mu.RUnlock()
		if fn != nil {
			fn()
		}
	case RequestClearTerminal:
		if msg, err := ClearEvent().encode(); err == nil {
			c.enqueue(msg)
		}
	default:
		h.log.Debug("Ignoring unknown live client request", "remote", c.remote, "type", req.Type)
	}
}
