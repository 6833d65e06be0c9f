package session

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// State is the lifecycle position of a stream session:
// Open -> Emitting -> {Completed | Cancelled | Failed}.
type State int

const (
	Open State = iota
	Emitting
	Completed
	Cancelled
	Failed
)

var stateNames = map[State]string{
	Open:      "open",
	Emitting:  "emitting",
	Completed: "completed",
	Cancelled: "cancelled",
	Failed:    "failed",
}

var stateFromName = map[string]State{
	"open":      Open,
	"emitting":  Emitting,
	"completed": Completed,
	"cancelled": Cancelled,
	"failed":    Failed,
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *State) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	if v, ok := stateFromName[name]; ok {
		*s = v
	}
	return nil
}

// IsTerminal reports whether no further transitions are possible.
func (s State) IsTerminal() bool {
	return s == Completed || s == Cancelled || s == Failed
}

// Session is the per-request state of one stream. The found counter is only
// advanced by the goroutine driving the stream; the mutex exists so that the
// /api/sessions handler can read a consistent snapshot.
type Session struct {
	ID        string
	Mode      string
	Framing   string
	Limit     int
	BatchSize int
	StartedAt time.Time

	found atomic.Int64

	mu           sync.Mutex
	state        State
	lastExponent int
	endedAt      time.Time
	errMsg       string
}

// New creates a session in the Open state.
func New(mode, framing string, limit, batchSize int) *Session {
	return &Session{
		ID:        uuid.NewString(),
		Mode:      mode,
		Framing:   framing,
		Limit:     limit,
		BatchSize: batchSize,
		StartedAt: time.Now(),
	}
}

// Begin moves an Open session to Emitting. It is a no-op in any other state.
func (s *Session) Begin() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Open {
		s.state = Emitting
	}
}

// Record counts one delivered result.
func (s *Session) Record(p int) {
	s.found.Add(1)
	s.mu.Lock()
	s.lastExponent = p
	s.mu.Unlock()
}

func (s *Session) Found() int {
	return int(s.found.Load())
}

// LimitReached reports whether foundCount has reached the session limit.
func (s *Session) LimitReached() bool {
	return s.Found() >= s.Limit
}

// Finish moves the session to a terminal state. Only the first call has an
// effect; it reports whether this call performed the transition.
func (s *Session) Finish(state State, err error) bool {
	if !state.IsTerminal() {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.IsTerminal() {
		return false
	}
	s.state = state
	s.endedAt = time.Now()
	if err != nil {
		s.errMsg = err.Error()
	}
	return true
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Snapshot is a point-in-time copy of a session, safe to retain and encode.
type Snapshot struct {
	ID           string     `json:"id"`
	Mode         string     `json:"mode"`
	Framing      string     `json:"framing"`
	State        State      `json:"state"`
	Found        int        `json:"found"`
	Limit        int        `json:"limit"`
	BatchSize    int        `json:"batchSize,omitempty"`
	LastExponent int        `json:"lastExponent,omitempty"`
	StartedAt    time.Time  `json:"startedAt"`
	EndedAt      *time.Time `json:"endedAt,omitempty"`
	Error        string     `json:"error,omitempty"`
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		ID:           s.ID,
		Mode:         s.Mode,
		Framing:      s.Framing,
		State:        s.state,
		Found:        s.Found(),
		Limit:        s.Limit,
		BatchSize:    s.BatchSize,
		LastExponent: s.lastExponent,
		StartedAt:    s.StartedAt,
		Error:        s.errMsg,
	}
	if !s.endedAt.IsZero() {
		ended := s.endedAt
		snap.EndedAt = &ended
	}
	return snap
}
