package realtime

import "time"

const (
	// Max bytes per websocket frame read (hard limit).
	maxFrameBytes = 16 << 10 // 16 KiB

	// Max namespaces in one subscription.
	maxSubscriptions = 32
)

const (
	heartbeatInterval = 25 * time.Second
	heartbeatTimeout  = 5 * time.Second

	// Per-connection rate limits (client frames per window).
	rateLimitEvents = 30
	rateLimitWindow = 10 * time.Second
)
