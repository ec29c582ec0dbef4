// Package session keeps per-session emotion state: a bounded history of
// recent labels, the stabilized current emotion, and lifecycle timestamps.
//
// Registry owns every session. Map mutations are serialized by the registry
// lock; state mutations are serialized per session, so distinct sessions
// never contend. Updates to one session are applied in the order their
// frames were received, using tickets handed out at receipt.
package session

import (
	"sync"
	"time"

	"github.com/teslashibe/go-affect/pkg/emotion"
)

// State is the mutable emotion state of one session.
type State struct {
	ID        string `json:"session_id"`
	PatientID string `json:"patient_id,omitempty"`

	History        []emotion.Label `json:"emotions"`
	Current        emotion.Label   `json:"current"`
	LastConfidence float64         `json:"confidence"`

	Frames       int `json:"frames"`
	NoFaceFrames int `json:"no_face_frames"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Closed    bool      `json:"closed"`
	ClosedAt  time.Time `json:"closed_at,omitzero"`
}

// clone returns a deep copy safe to hand to callers.
func (s *State) clone() State {
	out := *s
	out.History = append([]emotion.Label(nil), s.History...)
	return out
}

// Session guards a State and sequences its updates.
type Session struct {
	mu    sync.Mutex
	cond  *sync.Cond
	state State

	next      uint64              // next ticket to hand out
	serving   uint64              // ticket allowed to commit
	abandoned map[uint64]struct{} // released before their turn
}

func newSession(id, patientID string, now time.Time) *Session {
	s := &Session{
		state: State{
			ID:        id,
			PatientID: patientID,
			Current:   emotion.Neutral,
			CreatedAt: now,
			UpdatedAt: now,
		},
		abandoned: make(map[uint64]struct{}),
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.state.ID
}

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// Current returns the stabilized emotion and its last confidence.
func (s *Session) Current() (emotion.Label, float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Current, s.state.LastConfidence
}

// Closed reports whether the session has ended.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Closed
}

// expired reports whether the session is past its TTL and has no
// unfinished tickets.
func (s *Session) expired(now time.Time, cfg Config) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.next != s.serving {
		return false
	}
	st := &s.state
	if st.Closed && cfg.ClosedTTL > 0 && now.Sub(st.ClosedAt) >= cfg.ClosedTTL {
		return true
	}
	return cfg.IdleTTL > 0 && now.Sub(st.UpdatedAt) >= cfg.IdleTTL
}

// Reserve takes the next position in this session's update order. Every
// ticket must end in Commit or Release.
func (s *Session) Reserve() *Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &Ticket{session: s, seq: s.next}
	s.next++
	return t
}

// advance moves to the next live ticket. Caller holds s.mu.
func (s *Session) advance() {
	s.serving++
	for {
		if _, ok := s.abandoned[s.serving]; !ok {
			break
		}
		delete(s.abandoned, s.serving)
		s.serving++
	}
	s.cond.Broadcast()
}

// Ticket is one caller's place in a session's update order.
type Ticket struct {
	session *Session
	seq     uint64
	done    bool
}

// Commit waits until every earlier ticket has finished, then applies fn to
// the state. It returns ErrClosed without calling fn once the session ended.
func (t *Ticket) Commit(now time.Time, fn func(*State)) (State, error) {
	s := t.session
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.done {
		return s.state.clone(), nil
	}
	for s.serving != t.seq {
		s.cond.Wait()
	}
	t.done = true
	defer s.advance()

	if s.state.Closed {
		return s.state.clone(), ErrClosed
	}
	fn(&s.state)
	s.state.UpdatedAt = now
	return s.state.clone(), nil
}

// Release gives up the ticket without applying anything. It never blocks;
// calling it after Commit is a no-op.
func (t *Ticket) Release() {
	s := t.session
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.done {
		return
	}
	t.done = true
	if s.serving == t.seq {
		s.advance()
		return
	}
	s.abandoned[t.seq] = struct{}{}
}
