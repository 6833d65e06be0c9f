// Package scheduler evaluates exponents in fixed-size batches and forwards
// perfect numbers in ascending exponent order.
//
// Every candidate of a batch is evaluated concurrently; batches run strictly
// one after another. A hit is therefore delivered only once its whole batch
// has finished, which keeps output ordered without a merge step.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/perfect-stream/backend/internal/mersenne"
	"github.com/perfect-stream/backend/internal/metrics"
	"github.com/perfect-stream/backend/internal/stream"
)

// DefaultBatchSize is the concurrency width used when a request does not
// choose one.
const DefaultBatchSize = 4

// EvaluateFunc decides whether p is a Mersenne prime exponent and, if so,
// returns its perfect number.
type EvaluateFunc func(p int) (mersenne.Result, bool)

// Scheduler is the in-process stream.Producer. It holds no per-session state
// and may serve any number of sessions concurrently.
type Scheduler struct {
	logger   *slog.Logger
	metrics  *metrics.Metrics
	evaluate EvaluateFunc
}

type Option func(*Scheduler)

func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// WithEvaluator replaces the candidate evaluation pipeline.
func WithEvaluator(fn EvaluateFunc) Option {
	return func(s *Scheduler) { s.evaluate = fn }
}

func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.evaluate == nil {
		s.evaluate = s.evaluateStaged
	}
	return s
}

// outcome is the result slot owned by a single candidate task.
type outcome struct {
	result mersenne.Result
	hit    bool
	err    error
}

// Produce implements stream.Producer.
func (s *Scheduler) Produce(ctx context.Context, req stream.Request, emit stream.EmitFunc) error {
	batchSize := req.BatchSize
	if batchSize < 1 {
		batchSize = 1
	}

	source := mersenne.NewExponentSource()
	found := 0
	for found < req.Limit {
		if err := ctx.Err(); err != nil {
			return err
		}

		batch := source.NextBatch(batchSize)
		outcomes := s.runBatch(batch)

		for i, out := range outcomes {
			if out.err != nil {
				s.logger.Warn("candidate evaluation failed", "exponent", batch[i], "error", out.err)
				continue
			}
			if !out.hit {
				continue
			}
			if err := emit(out.result); err != nil {
				return err
			}
			found++
			if found == req.Limit {
				return nil
			}
		}
	}
	return nil
}

// runBatch evaluates every exponent concurrently and waits for all of them.
func (s *Scheduler) runBatch(batch []int) []outcome {
	start := time.Now()
	outcomes := make([]outcome, len(batch))

	var g errgroup.Group
	g.SetLimit(len(batch))
	for i, p := range batch {
		i, p := i, p
		g.Go(func() error {
			outcomes[i] = s.evaluateSafely(p)
			return nil
		})
	}
	_ = g.Wait()

	s.metrics.BatchCompleted(time.Since(start))
	s.logger.Debug("batch evaluated", "first", batch[0], "size", len(batch), "elapsed", time.Since(start))
	return outcomes
}

// evaluateSafely contains a panicking candidate to its own slot.
func (s *Scheduler) evaluateSafely(p int) (out outcome) {
	defer func() {
		if r := recover(); r != nil {
			s.metrics.CandidateEvaluated(metrics.OutcomePanic)
			out = outcome{err: fmt.Errorf("panic evaluating exponent %d: %v", p, r)}
		}
	}()
	result, ok := s.evaluate(p)
	return outcome{result: result, hit: ok}
}

func (s *Scheduler) evaluateStaged(p int) (mersenne.Result, bool) {
	if !mersenne.IsPrime(p) {
		s.metrics.CandidateEvaluated(metrics.OutcomeScreened)
		return mersenne.Result{}, false
	}
	if !mersenne.IsMersennePrime(p) {
		s.metrics.CandidateEvaluated(metrics.OutcomeComposite)
		return mersenne.Result{}, false
	}
	s.metrics.CandidateEvaluated(metrics.OutcomeConfirmed)
	return mersenne.Result{P: p, Value: mersenne.BuildPerfectNumber(p)}, true
}

// Collect runs the scheduler to completion and returns every result. It backs
// the non-streaming endpoint.
func (s *Scheduler) Collect(ctx context.Context, req stream.Request) ([]mersenne.Result, error) {
	var results []mersenne.Result
	err := s.Produce(ctx, req, func(r mersenne.Result) error {
		results = append(results, r)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}
