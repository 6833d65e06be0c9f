package session

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestNewStore(t *testing.T) {
	s := NewStore()
	if s == nil {
		t.Fatal("NewStore() returned nil")
	}
	if got := len(s.GetAll()); got != 0 {
		t.Errorf("new store has %d sessions, want 0", got)
	}
	if got := s.ActiveCount(); got != 0 {
		t.Errorf("new store ActiveCount() = %d, want 0", got)
	}
}

func TestGetMissing(t *testing.T) {
	s := NewStore()
	if _, ok := s.Get("nonexistent"); ok {
		t.Error("Get for missing key returned ok=true")
	}
}

func TestAddAndGet(t *testing.T) {
	s := NewStore()
	sess := New("inprocess", "ndjson", 4, 2)
	s.Add(sess)

	snap, ok := s.Get(sess.ID)
	if !ok {
		t.Fatal("Get returned ok=false after Add")
	}
	if snap.ID != sess.ID || snap.Limit != 4 || snap.BatchSize != 2 {
		t.Errorf("Get returned unexpected snapshot: %+v", snap)
	}
}

func TestGetReflectsLiveSession(t *testing.T) {
	s := NewStore()
	sess := New("inprocess", "ndjson", 4, 2)
	s.Add(sess)

	sess.Begin()
	sess.Record(2)

	snap, _ := s.Get(sess.ID)
	if snap.Found != 1 || snap.State != Emitting {
		t.Errorf("snapshot did not track session: %+v", snap)
	}
}

func TestRemove(t *testing.T) {
	s := NewStore()
	sess := New("inprocess", "ndjson", 1, 1)
	s.Add(sess)
	s.Remove(sess.ID)

	if _, ok := s.Get(sess.ID); ok {
		t.Error("session still present after Remove")
	}
	s.Remove("never-added")
}

func TestGetAllOrderedByStart(t *testing.T) {
	s := NewStore()
	base := time.Now()
	for i := 2; i >= 0; i-- {
		sess := New("inprocess", "ndjson", 1, 1)
		sess.ID = fmt.Sprintf("s%d", i)
		sess.StartedAt = base.Add(time.Duration(i) * time.Second)
		s.Add(sess)
	}

	all := s.GetAll()
	if len(all) != 3 {
		t.Fatalf("GetAll returned %d sessions, want 3", len(all))
	}
	for i, snap := range all {
		if want := fmt.Sprintf("s%d", i); snap.ID != want {
			t.Errorf("all[%d].ID = %s, want %s", i, snap.ID, want)
		}
	}
}

func TestActiveCount(t *testing.T) {
	s := NewStore()
	live := New("inprocess", "ndjson", 1, 1)
	done := New("external", "sse", 1, 0)
	done.Finish(Cancelled, nil)
	s.Add(live)
	s.Add(done)

	if got := s.ActiveCount(); got != 1 {
		t.Errorf("ActiveCount() = %d, want 1", got)
	}
}

func TestConcurrentAccess(t *testing.T) {
	s := NewStore()
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sess := New("inprocess", "ndjson", 10, 1)
			s.Add(sess)
			sess.Begin()
			sess.Record(2)
			s.GetAll()
			s.ActiveCount()
			s.Remove(sess.ID)
		}()
	}
	wg.Wait()

	if got := len(s.GetAll()); got != 0 {
		t.Errorf("store has %d sessions after concurrent add/remove, want 0", got)
	}
}
