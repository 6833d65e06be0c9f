package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/perfect-stream/backend/internal/stream"
)

const closeTimeout = time.Second

// WSClient streams perfect numbers over /ws/perfect.
type WSClient struct {
	url string
}

// NewWSClient creates a client for the given server base URL. An http(s)
// scheme is rewritten to ws(s).
func NewWSClient(baseURL string) *WSClient {
	u := baseURL
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return &WSClient{url: strings.TrimSuffix(u, "/") + "/ws/perfect"}
}

type wsMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Stream dials the server and calls fn for every result until the server
// closes the stream normally, ctx ends or fn returns an error.
func (c *WSClient) Stream(ctx context.Context, opts StreamOptions, fn func(stream.Record) error) error {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, c.url+"?"+opts.query().Encode(), nil)
	if err != nil {
		if resp != nil && resp.StatusCode != http.StatusSwitchingProtocols {
			defer resp.Body.Close()
			return statusError(http.MethodGet, "/ws/perfect", resp)
		}
		return err
	}

	var closeOnce sync.Once
	closeConn := func() {
		closeOnce.Do(func() {
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeTimeout))
			conn.Close()
		})
	}
	defer closeConn()

	stop := context.AfterFunc(ctx, closeConn)
	defer stop()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return err
		}

		var msg wsMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		switch msg.Type {
		case "result":
			var rec stream.Record
			if err := json.Unmarshal(msg.Payload, &rec); err != nil {
				return fmt.Errorf("decode result: %w", err)
			}
			if err := fn(rec); err != nil {
				return err
			}
		case "error":
			var p struct {
				Message string `json:"message"`
			}
			_ = json.Unmarshal(msg.Payload, &p)
			return fmt.Errorf("%w: %s", ErrStreamFailed, p.Message)
		}
	}
}
