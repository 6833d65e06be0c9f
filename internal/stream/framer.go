package stream

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Framing names accepted by FramerByName.
const (
	FramingNDJSON = "ndjson"
	FramingSSE    = "sse"
)

// Framer serializes records onto a byte stream.
type Framer interface {
	Name() string
	SetHeaders(h http.Header)
	WriteRecord(w io.Writer, rec Record) error
	WriteError(w io.Writer, msg string) error
}

// FramerByName returns the framer registered under name.
func FramerByName(name string) (Framer, error) {
	switch strings.ToLower(name) {
	case FramingNDJSON, "jsonl", "json":
		return NDJSON{}, nil
	case FramingSSE, "event-stream":
		return SSE{}, nil
	default:
		return nil, fmt.Errorf("unknown framing %q", name)
	}
}

// NDJSON writes one JSON object per line.
type NDJSON struct{}

func (NDJSON) Name() string { return FramingNDJSON }

func (NDJSON) SetHeaders(h http.Header) {
	h.Set("Content-Type", "application/json; charset=utf-8")
	h.Set("Cache-Control", "no-cache")
	h.Set("X-Content-Type-Options", "nosniff")
}

func (NDJSON) WriteRecord(w io.Writer, rec Record) error {
	return json.NewEncoder(w).Encode(rec)
}

func (NDJSON) WriteError(w io.Writer, msg string) error {
	return json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// SSE writes server-sent events: "data: <json>\n\n" per record and
// "event: error\ndata: <msg>\n\n" for failures.
type SSE struct{}

func (SSE) Name() string { return FramingSSE }

func (SSE) SetHeaders(h http.Header) {
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
}

func (SSE) WriteRecord(w io.Writer, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}

func (SSE) WriteError(w io.Writer, msg string) error {
	// A newline inside data would end the field early.
	msg = strings.ReplaceAll(msg, "\n", " ")
	_, err := fmt.Fprintf(w, "event: error\ndata: %s\n\n", msg)
	return err
}
