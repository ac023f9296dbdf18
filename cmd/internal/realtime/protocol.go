package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

// Subprotocol is the only WebSocket subprotocol the feed speaks.
const Subprotocol = "glowlogy.cache.v1"

// Version is embedded in every envelope.
const Version = 1

const (
	// TypeHello opens a session (client -> server). Its payload may carry an
	// initial subscription.
	TypeHello = "hello"
	// TypeHelloAck acknowledges the session (server -> client).
	TypeHelloAck = "hello.ack"
	// TypeSubscribe replaces the session's namespace subscription (client -> server).
	TypeSubscribe = "subscribe"
	// TypeSubscribed confirms a subscription change (server -> client).
	TypeSubscribed = "subscribed"
	// TypeInvalidated reports that a cache namespace was dropped (server -> client).
	TypeInvalidated = "cache.invalidated"
	// TypeError is a generic error envelope (server -> client).
	TypeError = "error"
)

var clientTypes = map[string]struct{}{
	TypeHello:     {},
	TypeSubscribe: {},
}

// Envelope is the wire wrapper for every frame.
type Envelope struct {
	V       int             `json:"v"`
	Type    string          `json:"type"`
	ID      string          `json:"id"`
	TS      time.Time       `json:"ts"`
	Payload json.RawMessage `json:"payload"`
}

// Validate checks a client-sent envelope.
func (e Envelope) Validate() error {
	if e.V != Version {
		return fmt.Errorf("invalid protocol version: got=%d want=%d", e.V, Version)
	}
	if e.Type == "" {
		return errors.New("missing type")
	}
	if _, ok := clientTypes[e.Type]; !ok {
		return fmt.Errorf("unsupported type: %s", e.Type)
	}
	if e.ID == "" {
		return errors.New("missing id")
	}
	return nil
}

// SubscribePayload names namespaces of interest. An empty list means all.
type SubscribePayload struct {
	Namespaces []string `json:"namespaces,omitempty"`
}

type HelloAckPayload struct {
	SessionID  string   `json:"session_id"`
	Namespaces []string `json:"namespaces"`
}

// Invalidation is the payload of TypeInvalidated.
type Invalidation struct {
	Namespace string    `json:"namespace"`
	At        time.Time `json:"at"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewEnvelope wraps payload, marshalling it to JSON.
func NewEnvelope(typ string, payload any, ts time.Time) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		V:       Version,
		Type:    typ,
		ID:      ulid.Make().String(),
		TS:      ts,
		Payload: raw,
	}, nil
}
