package session

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/teslashibe/go-affect/pkg/emotion"
	"golang.org/x/sync/errgroup"
)

func TestTicket_CommitsInReceiptOrder(t *testing.T) {
	r := NewRegistry(DefaultConfig(), nil)
	s, _ := r.GetOrCreate("ordered")

	const n = 50
	tickets := make([]*Ticket, n)
	for i := range tickets {
		tickets[i] = s.Reserve()
	}

	var mu sync.Mutex
	var order []int

	var g errgroup.Group
	// Commit in reverse to make out-of-order arrival at the lock likely.
	for i := n - 1; i >= 0; i-- {
		g.Go(func() error {
			_, err := tickets[i].Commit(time.Now(), func(*State) {
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
			})
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	for i, got := range order {
		if got != i {
			t.Fatalf("commit %d applied ticket %d; order=%v", i, got, order)
		}
	}
}

func TestTicket_ReleaseSkipsWithoutBlocking(t *testing.T) {
	r := NewRegistry(DefaultConfig(), nil)
	s, _ := r.GetOrCreate("skips")

	first := s.Reserve()
	second := s.Reserve()
	third := s.Reserve()

	// Abandoned out of turn; must not block.
	second.Release()

	done := make(chan struct{})
	go func() {
		third.Commit(time.Now(), func(st *State) { st.Frames = 3 })
		close(done)
	}()

	first.Commit(time.Now(), func(st *State) { st.Frames = 1 })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("third ticket never ran after second was released")
	}

	if got := s.Snapshot().Frames; got != 3 {
		t.Errorf("Frames: got %d, want 3", got)
	}

	// Release after Commit is a no-op.
	first.Release()
	fourth := s.Reserve()
	if _, err := fourth.Commit(time.Now(), func(*State) {}); err != nil {
		t.Errorf("fourth Commit: %v", err)
	}
}

func TestRegistry_ConcurrentSameSessionNoLostUpdates(t *testing.T) {
	r := NewRegistry(DefaultConfig(), nil)
	smoother := DefaultSmoother()

	const n = 200
	var g errgroup.Group
	for i := 0; i < n; i++ {
		g.Go(func() error {
			s, err := r.GetOrCreate("shared")
			if err != nil {
				return err
			}
			tk := s.Reserve()
			_, err = tk.Commit(time.Now(), func(st *State) {
				st.Frames++
				smoother.Update(st, emotion.Result{Label: emotion.Happy, Confidence: 0.8})
			})
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}

	st, _ := r.History("shared")
	if st.Frames != n {
		t.Errorf("Frames: got %d, want %d (lost updates)", st.Frames, n)
	}
	if len(st.History) != 10 {
		t.Errorf("history length: got %d, want 10", len(st.History))
	}
}

func TestRegistry_ConcurrentSessionsIsolated(t *testing.T) {
	r := NewRegistry(DefaultConfig(), nil)
	smoother := DefaultSmoother()

	const sessions = 16
	const frames = 40

	var g errgroup.Group
	for i := 0; i < sessions; i++ {
		id := fmt.Sprintf("s-%d", i)
		label := emotion.ModelOrder[i%emotion.NumClasses]
		for j := 0; j < frames; j++ {
			g.Go(func() error {
				s, err := r.GetOrCreate(id)
				if err != nil {
					return err
				}
				_, err = s.Reserve().Commit(time.Now(), func(st *State) {
					st.Frames++
					smoother.Update(st, emotion.Result{Label: label, Confidence: 0.9})
				})
				return err
			})
		}
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < sessions; i++ {
		st, err := r.History(fmt.Sprintf("s-%d", i))
		if err != nil {
			t.Fatal(err)
		}
		want := emotion.ModelOrder[i%emotion.NumClasses]
		if st.Frames != frames {
			t.Errorf("%s: Frames got %d, want %d", st.ID, st.Frames, frames)
		}
		for _, l := range st.History {
			if l != want {
				t.Fatalf("%s: history contains %s from another session", st.ID, l)
			}
		}
	}
}
