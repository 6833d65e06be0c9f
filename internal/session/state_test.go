package session

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestStateMarshalJSON(t *testing.T) {
	tests := []struct {
		state    State
		expected string
	}{
		{Open, `"open"`},
		{Emitting, `"emitting"`},
		{Completed, `"completed"`},
		{Cancelled, `"cancelled"`},
		{Failed, `"failed"`},
		{State(99), `"unknown"`},
	}

	for _, tt := range tests {
		data, err := json.Marshal(tt.state)
		if err != nil {
			t.Errorf("Marshal(%v) error: %v", tt.state, err)
			continue
		}
		if string(data) != tt.expected {
			t.Errorf("Marshal(%v) = %s, want %s", tt.state, data, tt.expected)
		}
	}
}

func TestStateUnmarshalJSON(t *testing.T) {
	tests := []struct {
		input    string
		expected State
	}{
		{`"emitting"`, Emitting},
		{`"cancelled"`, Cancelled},
		{`"failed"`, Failed},
	}

	for _, tt := range tests {
		var s State
		if err := json.Unmarshal([]byte(tt.input), &s); err != nil {
			t.Errorf("Unmarshal(%s) error: %v", tt.input, err)
			continue
		}
		if s != tt.expected {
			t.Errorf("Unmarshal(%s) = %v, want %v", tt.input, s, tt.expected)
		}
	}
}

func TestIsTerminal(t *testing.T) {
	terminal := map[State]bool{
		Open:      false,
		Emitting:  false,
		Completed: true,
		Cancelled: true,
		Failed:    true,
	}
	for state, want := range terminal {
		if got := state.IsTerminal(); got != want {
			t.Errorf("%v.IsTerminal() = %v, want %v", state, got, want)
		}
	}
}

func TestSessionTransitions(t *testing.T) {
	s := New("inprocess", "ndjson", 3, 4)
	if s.ID == "" {
		t.Fatal("New() left ID empty")
	}
	if s.State() != Open {
		t.Fatalf("new session state = %v, want open", s.State())
	}

	s.Begin()
	if s.State() != Emitting {
		t.Fatalf("after Begin state = %v, want emitting", s.State())
	}

	s.Record(2)
	s.Record(3)
	if s.Found() != 2 {
		t.Errorf("Found() = %d, want 2", s.Found())
	}
	if s.LimitReached() {
		t.Error("LimitReached() = true with 2 of 3 found")
	}
	s.Record(5)
	if !s.LimitReached() {
		t.Error("LimitReached() = false with 3 of 3 found")
	}

	if !s.Finish(Completed, nil) {
		t.Fatal("first Finish returned false")
	}
	if s.Finish(Failed, errors.New("late")) {
		t.Error("second Finish returned true; terminal state must be sticky")
	}
	if s.State() != Completed {
		t.Errorf("state = %v, want completed", s.State())
	}

	s.Begin()
	if s.State() != Completed {
		t.Error("Begin moved a terminal session")
	}
}

func TestFinishRejectsNonTerminal(t *testing.T) {
	s := New("inprocess", "sse", 1, 1)
	if s.Finish(Emitting, nil) {
		t.Error("Finish(Emitting) returned true")
	}
	if s.State() != Open {
		t.Errorf("state = %v, want open", s.State())
	}
}

func TestSnapshot(t *testing.T) {
	s := New("external", "sse", 5, 0)
	s.Begin()
	s.Record(7)

	snap := s.Snapshot()
	if snap.State != Emitting || snap.Found != 1 || snap.LastExponent != 7 {
		t.Errorf("unexpected snapshot: %+v", snap)
	}
	if snap.EndedAt != nil {
		t.Error("EndedAt set on a live session")
	}

	s.Finish(Failed, errors.New("worker did not start"))
	snap = s.Snapshot()
	if snap.EndedAt == nil {
		t.Fatal("EndedAt not set after Finish")
	}
	if snap.Error != "worker did not start" {
		t.Errorf("Error = %q", snap.Error)
	}

	data, err := json.Marshal(snap)
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}
	if decoded["state"] != "failed" {
		t.Errorf("state field = %v, want failed", decoded["state"])
	}
}
