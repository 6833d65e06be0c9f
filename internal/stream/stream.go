// Package stream delivers perfect numbers to a client as they are found.
//
// A Producer yields results in ascending exponent order. Run drives one
// session: it forwards every result through a Sink, enforces the session
// limit, maps the outcome to a terminal session state and closes the sink
// exactly once. Sinks serialize records with a Framer (newline-delimited JSON
// or server-sent events) or, in the server package, over a WebSocket.
package stream

import (
	"context"
	"errors"

	"github.com/perfect-stream/backend/internal/mersenne"
)

// Producer modes.
const (
	ModeInProcess = "inprocess"
	ModeExternal  = "external"
)

// ErrClientGone wraps transport write failures. Run treats it as a client
// disconnect, not as an internal error.
var ErrClientGone = errors.New("client gone")

// ErrLimitReached is returned by the emit callback once the session has
// delivered its limit. Producers stop when emit returns any error.
var ErrLimitReached = errors.New("result limit reached")

// Request carries the per-session parameters handed to a Producer.
type Request struct {
	Limit     int
	BatchSize int
}

// EmitFunc receives results in ascending exponent order. A non-nil error
// tells the producer to stop and return it.
type EmitFunc func(mersenne.Result) error

// Producer is a cancellable source of perfect numbers in ascending exponent
// order. Produce returns once req.Limit results were emitted, emit returned an
// error, or ctx was cancelled.
type Producer interface {
	Produce(ctx context.Context, req Request, emit EmitFunc) error
}

// Record is the wire form of one result. The perfect number travels as a
// decimal string because it outgrows every native numeric type.
type Record struct {
	P       int    `json:"p"`
	Perfect string `json:"perfect"`
}

func RecordOf(r mersenne.Result) Record {
	rec := Record{P: r.P}
	if r.Value != nil {
		rec.Perfect = r.Value.String()
	}
	return rec
}
