package stream

import (
	"context"
	"errors"
	"log/slog"

	"github.com/perfect-stream/backend/internal/mersenne"
	"github.com/perfect-stream/backend/internal/metrics"
	"github.com/perfect-stream/backend/internal/session"
)

// FailureMessage is the text of the error frame sent when a session fails.
// Internal error details stay in the server log.
const FailureMessage = "perfect number stream failed"

// Emitter runs stream sessions. The zero value is usable.
type Emitter struct {
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

func (e *Emitter) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

// Run feeds results from producer into sink until the session limit is
// reached, the client goes away or the producer fails. It always closes sink
// and leaves sess in a terminal state, which it returns.
func (e *Emitter) Run(ctx context.Context, sess *session.Session, producer Producer, sink Sink) session.State {
	log := e.logger().With("session", sess.ID, "mode", sess.Mode, "framing", sess.Framing)
	e.Metrics.SessionStarted(sess.Mode, sess.Framing)

	parent := ctx
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var state session.State
	defer func() {
		if err := sink.Close(); err != nil {
			log.Debug("closing sink", "error", err)
		}
		e.Metrics.SessionFinished(sess.Mode, state.String())
	}()

	if sess.Limit <= 0 {
		sess.Finish(session.Completed, nil)
		state = session.Completed
		return state
	}

	sess.Begin()
	emit := func(r mersenne.Result) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if sess.LimitReached() {
			return ErrLimitReached
		}
		if err := sink.WriteResult(r); err != nil {
			cancel()
			return err
		}
		sess.Record(r.P)
		e.Metrics.ResultEmitted(sess.Mode)
		return nil
	}

	err := producer.Produce(ctx, Request{Limit: sess.Limit, BatchSize: sess.BatchSize}, emit)
	switch {
	case err == nil, errors.Is(err, ErrLimitReached):
		state = session.Completed
		sess.Finish(state, nil)
		log.Info("stream completed", "found", sess.Found())
	case errors.Is(err, ErrClientGone), errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded), parent.Err() != nil:
		state = session.Cancelled
		sess.Finish(state, nil)
		log.Info("stream cancelled", "found", sess.Found(), "reason", err)
	default:
		state = session.Failed
		sess.Finish(state, err)
		log.Error("stream failed", "found", sess.Found(), "error", err)
		if werr := sink.WriteError(FailureMessage); werr != nil {
			log.Debug("writing error frame", "error", werr)
		}
	}
	return state
}
