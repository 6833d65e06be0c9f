package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/perfect-stream/backend/internal/mersenne"
	"github.com/perfect-stream/backend/internal/session"
	"github.com/perfect-stream/backend/internal/stream"
)

const (
	wsFraming      = "websocket"
	wsCloseTimeout = time.Second
)

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	params, err := s.parseStreamParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	producer, err := s.producer(params.mode)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	if !s.admit() {
		writeError(w, http.StatusTooManyRequests, "too many streams, retry later")
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: s.checkOrigin,
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("ws upgrade error", "error", err, "remote", r.RemoteAddr)
		return
	}

	// A hijacked connection's request context does not notice the peer
	// leaving; the read loop does.
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	sess := session.New(params.mode, wsFraming, params.limit, params.batchSize)
	s.store.Add(sess)
	defer s.store.Remove(sess.ID)

	s.logger.Info("stream opened",
		"session", sess.ID, "remote", r.RemoteAddr, "mode", sess.Mode,
		"framing", sess.Framing, "limit", sess.Limit, "batchSize", sess.BatchSize)

	s.emitter.Run(ctx, sess, producer, newWSSink(conn, s.config.Server.WriteTimeout))
}

// wsSink writes one text message per result and ends the stream with a
// normal close frame.
type wsSink struct {
	conn         *websocket.Conn
	writeTimeout time.Duration

	mu        sync.Mutex
	closeOnce sync.Once
	closed    bool
}

func newWSSink(conn *websocket.Conn, writeTimeout time.Duration) *wsSink {
	return &wsSink{conn: conn, writeTimeout: writeTimeout}
}

func (s *wsSink) WriteResult(r mersenne.Result) error {
	return s.send(WSMessage{Type: MsgResult, Payload: stream.RecordOf(r)})
}

func (s *wsSink) WriteError(msg string) error {
	return s.send(WSMessage{Type: MsgError, Payload: ErrorPayload{Message: msg}})
}

func (s *wsSink) send(msg WSMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return stream.ErrClientGone
	}
	if s.writeTimeout > 0 {
		s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	}
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return errors.Join(stream.ErrClientGone, err)
	}
	return nil
}

func (s *wsSink) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsCloseTimeout))
		err = s.conn.Close()
	})
	return err
}
