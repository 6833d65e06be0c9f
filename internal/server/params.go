package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/perfect-stream/backend/internal/stream"
)

var errExternalUnavailable = errors.New("external mode is not configured")

type streamParams struct {
	limit     int
	batchSize int
	mode      string
}

// parseStreamParams reads limit, batchSize and mode. Unparseable numbers fall
// back to the configured defaults; only an unknown mode is rejected.
func (s *Server) parseStreamParams(r *http.Request) (streamParams, error) {
	q := r.URL.Query()
	p := streamParams{
		limit:     s.config.ClampLimit(intParam(q.Get("limit"), -1)),
		batchSize: s.config.ClampBatchSize(intParam(q.Get("batchSize"), 0)),
		mode:      strings.ToLower(strings.TrimSpace(q.Get("mode"))),
	}
	if p.mode == "" {
		p.mode = s.config.Stream.Mode
	}
	switch p.mode {
	case stream.ModeInProcess:
	case stream.ModeExternal:
		// The worker decides its own parallelism.
		p.batchSize = 0
	default:
		return p, fmt.Errorf("unknown mode %q", p.mode)
	}
	return p, nil
}

func intParam(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fallback
	}
	return v
}

func (s *Server) producer(mode string) (stream.Producer, error) {
	if mode == stream.ModeExternal {
		if s.external == nil {
			return nil, errExternalUnavailable
		}
		return s.external, nil
	}
	return s.inProcess, nil
}
