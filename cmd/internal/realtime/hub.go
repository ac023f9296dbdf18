// Package realtime pushes cache invalidations to connected clients over
// WebSocket so they can drop their own copies of a namespace.
package realtime

import (
	"log/slog"
	"slices"
	"sync"
	"time"
)

// Observer receives connection count changes for metrics.
type Observer interface {
	WSClients(delta int)
}

// Hub tracks connected clients and fans invalidations out to them.
type Hub struct {
	log   *slog.Logger
	known map[string]struct{}
	obs   Observer

	mu      sync.RWMutex
	clients map[string]*Client
}

// NewHub constructs a Hub that accepts subscriptions to namespaces.
func NewHub(log *slog.Logger, namespaces []string, obs Observer) *Hub {
	if log == nil {
		log = slog.Default()
	}
	known := make(map[string]struct{}, len(namespaces))
	for _, ns := range namespaces {
		known[ns] = struct{}{}
	}
	return &Hub{
		log:     log,
		known:   known,
		obs:     obs,
		clients: make(map[string]*Client),
	}
}

// Namespaces returns the subscribable namespaces, sorted.
func (h *Hub) Namespaces() []string {
	out := make([]string, 0, len(h.known))
	for ns := range h.known {
		out = append(out, ns)
	}
	slices.Sort(out)
	return out
}

// Known reports whether ns can be subscribed to.
func (h *Hub) Known(ns string) bool {
	_, ok := h.known[ns]
	return ok
}

// Register adds a client.
func (h *Hub) Register(c *Client) {
	if c == nil || c.SessionID == "" {
		return
	}
	h.mu.Lock()
	h.clients[c.SessionID] = c
	h.mu.Unlock()

	if h.obs != nil {
		h.obs.WSClients(1)
	}
	h.log.Info("feed.client.join", "session_id", c.SessionID)
}

// Unregister removes a client and signals its shutdown.
func (h *Hub) Unregister(sessionID string) {
	h.mu.Lock()
	c, ok := h.clients[sessionID]
	delete(h.clients, sessionID)
	h.mu.Unlock()

	if !ok {
		return
	}
	// Close after removal so no publisher still holds the client.
	c.Close()
	if h.obs != nil {
		h.obs.WSClients(-1)
	}
	h.log.Info("feed.client.leave", "session_id", sessionID)
}

// Len reports the number of connected clients.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Publish fans an invalidation of ns out to every subscribed client. It never
// blocks: a client whose queue is full misses the event.
func (h *Hub) Publish(ns string, at time.Time) {
	env, err := NewEnvelope(TypeInvalidated, Invalidation{Namespace: ns, At: at}, at)
	if err != nil {
		h.log.Error("feed.publish.encode.fail", "namespace", ns, "err", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	dropped := 0
	for _, c := range h.clients {
		select {
		case <-c.Done():
			continue
		default:
		}
		if !c.Wants(ns) {
			continue
		}
		select {
		case c.Send <- env:
		default:
			dropped++
		}
	}
	if dropped > 0 {
		h.log.Warn("feed.publish.dropped", "namespace", ns, "clients", dropped)
	}
}
