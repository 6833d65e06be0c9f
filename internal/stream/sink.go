package stream

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/perfect-stream/backend/internal/mersenne"
)

// Sink is the output channel of one session. Close must be safe to call more
// than once.
type Sink interface {
	WriteResult(r mersenne.Result) error
	WriteError(msg string) error
	Close() error
}

// HTTPSink frames records onto an HTTP response and flushes each one as soon
// as it is written. Writes are synchronous, so a slow reader throttles the
// producer instead of growing a buffer.
type HTTPSink struct {
	w            http.ResponseWriter
	rc           *http.ResponseController
	framer       Framer
	writeTimeout time.Duration

	closeOnce sync.Once
	mu        sync.Mutex
	closed    bool
}

// NewHTTPSink sets the framer's headers and commits them to the client.
// writeTimeout bounds each record write; zero disables the deadline.
func NewHTTPSink(w http.ResponseWriter, framer Framer, writeTimeout time.Duration) *HTTPSink {
	framer.SetHeaders(w.Header())
	w.WriteHeader(http.StatusOK)
	s := &HTTPSink{
		w:            w,
		rc:           http.NewResponseController(w),
		framer:       framer,
		writeTimeout: writeTimeout,
	}
	// Headers go out before the first result, which may be far away.
	_ = s.flush()
	return s
}

func (s *HTTPSink) WriteResult(r mersenne.Result) error {
	return s.write(func() error { return s.framer.WriteRecord(s.w, RecordOf(r)) })
}

func (s *HTTPSink) WriteError(msg string) error {
	return s.write(func() error { return s.framer.WriteError(s.w, msg) })
}

func (s *HTTPSink) write(frame func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("write after close: %w", ErrClientGone)
	}
	if s.writeTimeout > 0 {
		// Not every ResponseWriter supports deadlines; that only loses the bound.
		_ = s.rc.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	}
	if err := frame(); err != nil {
		return fmt.Errorf("%w: %v", ErrClientGone, err)
	}
	if err := s.flush(); err != nil {
		return fmt.Errorf("%w: %v", ErrClientGone, err)
	}
	return nil
}

func (s *HTTPSink) flush() error {
	err := s.rc.Flush()
	if errors.Is(err, http.ErrNotSupported) {
		return nil
	}
	return err
}

// Close marks the sink closed. The response itself ends when the handler
// returns.
func (s *HTTPSink) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		if s.writeTimeout > 0 {
			_ = s.rc.SetWriteDeadline(time.Time{})
		}
		s.mu.Unlock()
	})
	return nil
}
