// Package worker delegates perfect-number discovery to an external process
// and relays its line-oriented output as stream results.
//
// The child is started with the session limit as its last argument and must
// print one result per line on stdout, either as a JSON object
// {"p": <exponent>, "perfect": "<decimal>"} or as a bare decimal perfect
// number. Stderr is logged and never reaches the client.
package worker

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"syscall"
	"time"

	"github.com/perfect-stream/backend/internal/metrics"
	"github.com/perfect-stream/backend/internal/stream"
)

const (
	DefaultKillGrace    = 2 * time.Second
	DefaultMaxLineBytes = 4 << 20
)

// Config describes how to launch the worker process.
type Config struct {
	Command string
	Args    []string
	// Env is appended to the server's own environment.
	Env []string
	// KillGrace is how long the worker may take to exit after SIGTERM before
	// it is killed.
	KillGrace time.Duration
	// MaxLineBytes bounds a single output line.
	MaxLineBytes int
}

// Supervisor is the out-of-process stream.Producer. Each Produce call owns
// its own child process.
type Supervisor struct {
	cfg     Config
	logger  *slog.Logger
	metrics *metrics.Metrics

	// started is called with the child's pid once it is running.
	started func(pid int)
}

func NewSupervisor(cfg Config, logger *slog.Logger, m *metrics.Metrics) *Supervisor {
	if cfg.KillGrace <= 0 {
		cfg.KillGrace = DefaultKillGrace
	}
	if cfg.MaxLineBytes <= 0 {
		cfg.MaxLineBytes = DefaultMaxLineBytes
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{cfg: cfg, logger: logger, metrics: m}
}

// Produce implements stream.Producer. A worker that exits on its own, even
// with a failure status, ends the stream normally: the results already
// relayed stay valid. Only a launch failure is returned as an error.
func (s *Supervisor) Produce(ctx context.Context, req stream.Request, emit stream.EmitFunc) error {
	if req.Limit <= 0 {
		return nil
	}
	if s.cfg.Command == "" {
		return errors.New("worker command not configured")
	}

	parent := ctx
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	args := append(append([]string{}, s.cfg.Args...), strconv.Itoa(req.Limit))
	cmd := exec.CommandContext(ctx, s.cfg.Command, args...)
	cmd.Env = append(os.Environ(), s.cfg.Env...)
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = s.cfg.KillGrace

	stderr := newLineLogger(s.logger, "worker stderr")
	cmd.Stderr = stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("worker stdout: %w", err)
	}

	if err := cmd.Start(); err != nil {
		s.metrics.WorkerExited("start_failed")
		return fmt.Errorf("start worker %s: %w", s.cfg.Command, err)
	}
	pid := cmd.Process.Pid
	log := s.logger.With("pid", pid, "command", s.cfg.Command)
	log.Info("worker started", "limit", req.Limit)
	if s.started != nil {
		s.started(pid)
	}

	relayErr := s.relay(stdout, req.Limit, emit, log)
	// Stop the child whether or not it is done; Wait then reaps it.
	cancel()
	waitErr := cmd.Wait()
	stderr.Flush()

	outcome := "exited"
	switch {
	case relayErr != nil || parent.Err() != nil:
		outcome = "cancelled"
	case waitErr != nil && errors.Is(waitErr, context.Canceled):
		outcome = "stopped"
	case waitErr != nil && stoppedBySignal(waitErr):
		outcome = "stopped"
	case waitErr != nil:
		outcome = "failed"
		log.Warn("worker exited with error", "error", waitErr)
	}
	s.metrics.WorkerExited(outcome)
	log.Info("worker finished", "outcome", outcome)

	if relayErr != nil {
		return relayErr
	}
	return parent.Err()
}

// stoppedBySignal reports whether the child died from the SIGTERM or SIGKILL
// sent during cleanup.
func stoppedBySignal(err error) bool {
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return false
	}
	ws, ok := exitErr.Sys().(syscall.WaitStatus)
	return ok && ws.Signaled()
}

// relay forwards stdout lines until EOF, the limit, or an emit error.
func (s *Supervisor) relay(stdout io.Reader, limit int, emit stream.EmitFunc, log *slog.Logger) error {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), s.cfg.MaxLineBytes)

	found, last := 0, 0
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		r, err := ParseLine(line)
		if err != nil {
			s.metrics.WorkerLineDropped()
			log.Warn("dropping malformed worker line", "error", err)
			continue
		}
		if r.P <= last {
			s.metrics.WorkerLineDropped()
			log.Warn("dropping out-of-order worker line", "exponent", r.P, "previous", last)
			continue
		}
		if err := emit(r); err != nil {
			return err
		}
		last = r.P
		found++
		if found == limit {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		log.Warn("reading worker output", "error", err)
	}
	return nil
}
