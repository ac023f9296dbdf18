package realtime

import (
	"sync"
)

// Client represents one connected feed session.
//
// Send is never closed by the server so concurrent publishers cannot panic;
// done signals the session goroutines to stop. Close is idempotent.
type Client struct {
	SessionID string
	Send      chan Envelope

	mu   sync.RWMutex
	subs map[string]struct{} // nil means every namespace

	done      chan struct{}
	closeOnce sync.Once
}

// NewClient constructs a Client with a bounded send queue.
func NewClient(sessionID string, sendQueueSize int) *Client {
	if sendQueueSize <= 0 {
		sendQueueSize = 64
	}
	return &Client{
		SessionID: sessionID,
		Send:      make(chan Envelope, sendQueueSize),
		done:      make(chan struct{}),
	}
}

// Subscribe replaces the namespace filter. An empty list subscribes to all.
func (c *Client) Subscribe(namespaces []string) {
	var subs map[string]struct{}
	if len(namespaces) > 0 {
		subs = make(map[string]struct{}, len(namespaces))
		for _, ns := range namespaces {
			subs[ns] = struct{}{}
		}
	}
	c.mu.Lock()
	c.subs = subs
	c.mu.Unlock()
}

// Wants reports whether the client is subscribed to ns.
func (c *Client) Wants(ns string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.subs == nil {
		return true
	}
	_, ok := c.subs[ns]
	return ok
}

// Done returns a channel that is closed when the client is shutting down.
func (c *Client) Done() <-chan struct{} {
	if c == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return c.done
}

// Close signals the client goroutines to stop. It does NOT close Send.
func (c *Client) Close() {
	if c == nil {
		return
	}
	c.closeOnce.Do(func() {
		close(c.done)
	})
}
