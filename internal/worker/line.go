package worker

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"github.com/perfect-stream/backend/internal/mersenne"
)

var errNotPerfect = errors.New("value is not of the form 2^(p-1)*(2^p-1)")

type workerLine struct {
	P       int             `json:"p"`
	Perfect json.RawMessage `json:"perfect"`
}

// ParseLine decodes one line of worker output. JSON lines must carry both the
// exponent and the perfect number; bare decimal lines get their exponent
// from the number itself. In both cases the value must have Euclid's form
// for the stated exponent.
func ParseLine(line []byte) (mersenne.Result, error) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return mersenne.Result{}, errors.New("empty line")
	}

	if line[0] != '{' {
		v, ok := new(big.Int).SetString(string(line), 10)
		if !ok {
			return mersenne.Result{}, fmt.Errorf("not a decimal integer: %.40q", line)
		}
		p, ok := mersenne.ExponentOf(v)
		if !ok {
			return mersenne.Result{}, errNotPerfect
		}
		return mersenne.Result{P: p, Value: v}, nil
	}

	var wl workerLine
	if err := json.Unmarshal(line, &wl); err != nil {
		return mersenne.Result{}, fmt.Errorf("decode worker line: %w", err)
	}
	if wl.P < 2 {
		return mersenne.Result{}, fmt.Errorf("invalid exponent %d", wl.P)
	}

	// Accept the number as a JSON string or, from lenient workers, a bare
	// JSON number.
	digits := string(bytes.Trim(wl.Perfect, `"`))
	v, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return mersenne.Result{}, fmt.Errorf("perfect is not a decimal integer: %.40q", digits)
	}
	if p, ok := mersenne.ExponentOf(v); !ok || p != wl.P {
		return mersenne.Result{}, errNotPerfect
	}
	return mersenne.Result{P: wl.P, Value: v}, nil
}

// lineLogger is an io.Writer that logs each complete line it receives.
type lineLogger struct {
	logger *slog.Logger
	msg    string

	mu  sync.Mutex
	buf []byte
}

func newLineLogger(logger *slog.Logger, msg string) *lineLogger {
	return &lineLogger{logger: logger, msg: msg}
}

func (l *lineLogger) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buf = append(l.buf, p...)
	for {
		i := bytes.IndexByte(l.buf, '\n')
		if i < 0 {
			break
		}
		l.emit(l.buf[:i])
		l.buf = l.buf[i+1:]
	}
	return len(p), nil
}

// Flush logs a trailing line that had no newline.
func (l *lineLogger) Flush() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.buf) > 0 {
		l.emit(l.buf)
		l.buf = nil
	}
}

func (l *lineLogger) emit(line []byte) {
	line = bytes.TrimRight(line, "\r")
	if len(line) == 0 {
		return
	}
	l.logger.Warn(l.msg, "line", string(line))
}
