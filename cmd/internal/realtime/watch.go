package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
)

// Watch connects to the feed at wsURL, subscribes to namespaces (all when
// empty) and calls fn for every invalidation until ctx is done. A canceled
// ctx ends the watch cleanly and returns nil.
func Watch(ctx context.Context, wsURL, origin string, namespaces []string, fn func(Invalidation)) error {
	h := http.Header{}
	if strings.TrimSpace(origin) != "" {
		h.Set("Origin", origin)
	}

	conn, resp, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		Subprotocols: []string{Subprotocol},
		HTTPHeader:   h,
	})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return fmt.Errorf("dial %s: %w", wsURL, err)
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	if sp := conn.Subprotocol(); sp != Subprotocol {
		return fmt.Errorf("server selected subprotocol %q, want %q", sp, Subprotocol)
	}

	hello, err := NewEnvelope(TypeHello, SubscribePayload{Namespaces: namespaces}, time.Now().UTC())
	if err != nil {
		return err
	}
	b, err := json.Marshal(hello)
	if err != nil {
		return err
	}
	if err := conn.Write(ctx, websocket.MessageText, b); err != nil {
		return fmt.Errorf("send hello: %w", err)
	}

	for {
		env, err := readEnvelope(ctx, conn)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return nil
			}
			return err
		}

		switch env.Type {
		case TypeInvalidated:
			var inv Invalidation
			if err := json.Unmarshal(env.Payload, &inv); err != nil {
				return fmt.Errorf("decode invalidation: %w", err)
			}
			fn(inv)
		case TypeError:
			var p ErrorPayload
			_ = json.Unmarshal(env.Payload, &p)
			if p.Code == "hello_failed" || p.Code == "rate_limited" {
				return errors.New(p.Code + ": " + p.Message)
			}
		}
	}
}
