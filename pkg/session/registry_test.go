package session

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/teslashibe/go-affect/pkg/emotion"
)

func newTestRegistry(cfg Config) (*Registry, *time.Time) {
	r := NewRegistry(cfg, nil)
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }
	return r, &now
}

func TestRegistry_Start(t *testing.T) {
	r, now := newTestRegistry(DefaultConfig())

	s := r.Start("patient 42")
	pattern := regexp.MustCompile(`^session_\d+_patient-42_[0-9a-f]{8}$`)
	if !pattern.MatchString(s.ID()) {
		t.Errorf("unexpected id format: %s", s.ID())
	}

	st := s.Snapshot()
	if st.Current != emotion.Neutral {
		t.Errorf("fresh session current: got %s, want Neutral", st.Current)
	}
	if st.PatientID != "patient 42" {
		t.Errorf("PatientID: got %q", st.PatientID)
	}
	if !st.CreatedAt.Equal(*now) {
		t.Errorf("CreatedAt: got %v, want %v", st.CreatedAt, *now)
	}

	if other := r.Start("patient 42"); other.ID() == s.ID() {
		t.Error("two sessions for one patient must get distinct ids")
	}
}

func TestRegistry_GetOrCreate(t *testing.T) {
	r, _ := newTestRegistry(DefaultConfig())

	a, err := r.GetOrCreate("abc")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	b, _ := r.GetOrCreate("abc")
	if a != b {
		t.Error("GetOrCreate should return the same session")
	}
	if r.Len() != 1 {
		t.Errorf("Len: got %d, want 1", r.Len())
	}

	if _, err := r.GetOrCreate("  "); !errors.Is(err, ErrInvalidID) {
		t.Errorf("blank id: got %v, want ErrInvalidID", err)
	}
}

func TestRegistry_NotFound(t *testing.T) {
	r, _ := newTestRegistry(DefaultConfig())

	if _, err := r.Get("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get: got %v, want ErrNotFound", err)
	}
	if _, err := r.Close("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Close: got %v, want ErrNotFound", err)
	}
	if _, err := r.History("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("History: got %v, want ErrNotFound", err)
	}
	if err := r.Evict("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Evict: got %v, want ErrNotFound", err)
	}
}

func TestRegistry_CloseKeepsHistory(t *testing.T) {
	r, now := newTestRegistry(DefaultConfig())
	s := r.Start("p1")

	tk := s.Reserve()
	if _, err := tk.Commit(*now, func(st *State) {
		DefaultSmoother().Update(st, emotion.Result{Label: emotion.Happy, Confidence: 0.9})
	}); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	st, err := r.Close(s.ID())
	if err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !st.Closed || !st.ClosedAt.Equal(*now) {
		t.Errorf("Close: got closed=%v at %v", st.Closed, st.ClosedAt)
	}

	hist, err := r.History(s.ID())
	if err != nil {
		t.Fatalf("History after close: %v", err)
	}
	if len(hist.History) != 1 || hist.Current != emotion.Happy {
		t.Errorf("history after close: %+v", hist)
	}

	// Further updates are refused.
	tk = s.Reserve()
	if _, err := tk.Commit(*now, func(*State) { t.Error("fn must not run on closed session") }); !errors.Is(err, ErrClosed) {
		t.Errorf("Commit after close: got %v, want ErrClosed", err)
	}
}

func TestRegistry_SetMood(t *testing.T) {
	r, _ := newTestRegistry(DefaultConfig())
	s := r.Start("p1")

	st, err := r.SetMood(s.ID(), emotion.Sad)
	if err != nil {
		t.Fatalf("SetMood: %v", err)
	}
	if st.Current != emotion.Sad || len(st.History) != 0 {
		t.Errorf("SetMood: got current=%s history=%v", st.Current, st.History)
	}

	if _, err := r.SetMood(s.ID(), emotion.NoFace); !errors.Is(err, ErrInvalidMood) {
		t.Errorf("NoFace mood: got %v, want ErrInvalidMood", err)
	}
}

func TestRegistry_ByPatient(t *testing.T) {
	r, now := newTestRegistry(DefaultConfig())

	first := r.Start("alex")
	*now = now.Add(time.Minute)
	second := r.Start("alex")
	r.Start("sam")

	got := r.ByPatient("alex")
	if len(got) != 2 {
		t.Fatalf("ByPatient: got %d sessions, want 2", len(got))
	}
	if got[0].ID != first.ID() || got[1].ID != second.ID() {
		t.Errorf("ByPatient order: got %s, %s", got[0].ID, got[1].ID)
	}
	if len(r.ByPatient("nobody")) != 0 {
		t.Error("unknown patient should have no sessions")
	}
}

func TestRegistry_Sweep(t *testing.T) {
	cfg := Config{IdleTTL: 30 * time.Minute, ClosedTTL: 10 * time.Minute}
	r, now := newTestRegistry(cfg)

	var evicted []string
	r.OnEvict = func(id string) { evicted = append(evicted, id) }

	idle := r.Start("idle")
	ended := r.Start("ended")
	active := r.Start("active")

	*now = now.Add(5 * time.Minute)
	r.Close(ended.ID())

	*now = now.Add(16 * time.Minute)
	if n := r.Sweep(*now); n != 1 {
		t.Fatalf("first sweep removed %d, want 1", n)
	}
	if _, err := r.Get(ended.ID()); !errors.Is(err, ErrNotFound) {
		t.Error("ended session should be evicted after ClosedTTL")
	}

	tk := active.Reserve()
	tk.Commit(*now, func(st *State) {})

	*now = now.Add(10 * time.Minute)
	if n := r.Sweep(*now); n != 1 {
		t.Fatalf("second sweep removed %d, want 1", n)
	}
	if _, err := r.Get(idle.ID()); !errors.Is(err, ErrNotFound) {
		t.Error("idle session should be evicted after IdleTTL")
	}
	if _, err := r.Get(active.ID()); err != nil {
		t.Errorf("active session evicted: %v", err)
	}
	if len(evicted) != 2 {
		t.Errorf("OnEvict calls: got %d, want 2", len(evicted))
	}
}

func TestRegistry_SweepKeepsBusySession(t *testing.T) {
	r, now := newTestRegistry(Config{IdleTTL: 30 * time.Minute})

	s, tk, err := r.Reserve("busy")
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}

	*now = now.Add(time.Hour)
	if n := r.Sweep(*now); n != 0 {
		t.Fatalf("sweep removed %d sessions with an unfinished ticket", n)
	}

	if _, err := tk.Commit(*now, func(st *State) { st.Frames++ }); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	got, err := r.Get("busy")
	if err != nil || got != s {
		t.Fatalf("commit landed outside the registry: %v", err)
	}
	if st, _ := r.History("busy"); st.Frames != 1 {
		t.Errorf("Frames: got %d, want 1", st.Frames)
	}

	*now = now.Add(time.Hour)
	if n := r.Sweep(*now); n != 1 {
		t.Errorf("idle session after commit: removed %d, want 1", n)
	}
}

func TestRegistry_SweepKeepsReleasedOutOfOrder(t *testing.T) {
	r, now := newTestRegistry(Config{IdleTTL: time.Minute})

	s, first, _ := r.Reserve("s")
	second := s.Reserve()
	second.Release()

	*now = now.Add(time.Hour)
	if n := r.Sweep(*now); n != 0 {
		t.Fatalf("first ticket still pending, removed %d", n)
	}

	first.Release()
	if n := r.Sweep(*now); n != 1 {
		t.Errorf("all tickets done: removed %d, want 1", n)
	}
}

func TestRegistry_SweepDisabled(t *testing.T) {
	r, now := newTestRegistry(Config{})
	r.Start("p")
	*now = now.Add(1000 * time.Hour)

	if n := r.Sweep(*now); n != 0 {
		t.Errorf("zero TTLs should never evict, removed %d", n)
	}
}

func TestRegistry_RunStopsOnCancel(t *testing.T) {
	r := NewRegistry(Config{SweepInterval: time.Millisecond}, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	time.Sleep(5 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
