package server

import (
	"errors"
	"math/big"
	"net/http"
	"strconv"
	"strings"

	"github.com/perfect-stream/backend/internal/mersenne"
	"github.com/perfect-stream/backend/internal/session"
	"github.com/perfect-stream/backend/internal/stream"
)

// handleStream serves newline-delimited JSON unless the client asks for
// server-sent events via ?format=sse or its Accept header.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	framer := stream.Framer(stream.NDJSON{})
	if format := r.URL.Query().Get("format"); format != "" {
		f, err := stream.FramerByName(format)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		framer = f
	} else if strings.Contains(r.Header.Get("Accept"), "text/event-stream") {
		framer = stream.SSE{}
	}
	s.serveStream(w, r, framer)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	s.serveStream(w, r, stream.SSE{})
}

func (s *Server) serveStream(w http.ResponseWriter, r *http.Request, framer stream.Framer) {
	if !requireGET(w, r) {
		return
	}

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

	sess := session.New(params.mode, framer.Name(), params.limit, params.batchSize)
	s.store.Add(sess)
	defer s.store.Remove(sess.ID)

	s.logger.Info("stream opened",
		"session", sess.ID, "remote", r.RemoteAddr, "mode", sess.Mode,
		"framing", sess.Framing, "limit", sess.Limit, "batchSize", sess.BatchSize)

	sink := stream.NewHTTPSink(w, framer, s.config.Server.WriteTimeout)
	s.emitter.Run(r.Context(), sess, producer, sink)
}

// handleList is the buffered variant: it computes the first limit perfect
// numbers and returns them as one JSON array.
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	if !requireGET(w, r) {
		return
	}

	q := r.URL.Query()
	limit := s.config.Stream.DefaultLimit
	if raw := q.Get("limit"); raw != "" {
		v, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil || v <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = v
	}
	if maxLimit := s.config.Stream.ListMaxLimit; maxLimit > 0 && limit > maxLimit {
		writeError(w, http.StatusBadRequest, "limit must not exceed "+strconv.Itoa(maxLimit))
		return
	}
	batchSize := s.config.ClampBatchSize(intParam(q.Get("batchSize"), 0))

	results, err := s.inProcess.Collect(r.Context(), stream.Request{Limit: limit, BatchSize: batchSize})
	if err != nil {
		if r.Context().Err() == nil {
			s.logger.Error("listing perfect numbers", "error", err)
			writeError(w, http.StatusInternalServerError, stream.FailureMessage)
		}
		return
	}

	records := make([]stream.Record, len(results))
	for i, res := range results {
		records[i] = stream.RecordOf(res)
	}
	writeJSON(w, http.StatusOK, records)
}

type checkResponse struct {
	N        string `json:"n"`
	Perfect  bool   `json:"perfect"`
	Exponent int    `json:"exponent,omitempty"`
}

var errBadNumber = errors.New("n must be a positive integer")

// handleCheck answers whether n is a perfect number.
func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	if !requireGET(w, r) {
		return
	}

	n, err := s.parseCheckNumber(r.URL.Query().Get("n"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp := checkResponse{N: n.String(), Perfect: mersenne.IsPerfect(n)}
	if resp.Perfect {
		resp.Exponent, _ = mersenne.ExponentOf(n)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) parseCheckNumber(raw string) (*big.Int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errBadNumber
	}
	if maxDigits := s.config.Check.MaxDigits; maxDigits > 0 && len(raw) > maxDigits {
		return nil, errors.New("n has too many digits")
	}
	n, ok := new(big.Int).SetString(raw, 10)
	if !ok || n.Sign() <= 0 {
		return nil, errBadNumber
	}
	return n, nil
}
