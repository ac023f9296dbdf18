package app

import (
	"net"
	"strings"
)

// FeedURL returns the WebSocket URL of the invalidation feed of a server
// bound to httpAddr, as seen from the same host.
func FeedURL(httpAddr string) string {
	return wsBaseURL(runtimeBaseURL(httpAddr)) + FeedPath
}

// runtimeBaseURL maps a listen address to a dialable http URL. Wildcard binds
// become loopback.
func runtimeBaseURL(addr string) string {
	host, port, err := net.SplitHostPort(strings.TrimSpace(addr))
	if err != nil {
		return "http://" + strings.TrimSpace(addr)
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}

func wsBaseURL(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://")
	default:
		return "ws://" + base
	}
}
