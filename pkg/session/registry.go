package session

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/teslashibe/go-affect/pkg/emotion"
)

// Config holds registry lifecycle parameters.
type Config struct {
	IdleTTL       time.Duration `yaml:"idle_ttl"`       // Evict sessions idle this long (0 = never)
	ClosedTTL     time.Duration `yaml:"closed_ttl"`     // Evict ended sessions after this long (0 = never)
	SweepInterval time.Duration `yaml:"sweep_interval"` // Janitor period
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		IdleTTL:       30 * time.Minute,
		ClosedTTL:     10 * time.Minute,
		SweepInterval: time.Minute,
	}
}

// Registry maps session identifiers to sessions.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	config   Config
	logger   *slog.Logger

	// now is swapped in tests.
	now func() time.Time

	// OnEvict is called after a session is removed by Evict or Sweep.
	OnEvict func(id string)
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg Config, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		sessions: make(map[string]*Session),
		config:   cfg,
		logger:   logger.With("component", "session.registry"),
		now:      time.Now,
	}
}

var unsafeID = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// Start opens a new session for patientID and returns it.
func (r *Registry) Start(patientID string) *Session {
	patient := unsafeID.ReplaceAllString(strings.TrimSpace(patientID), "-")
	if patient == "" {
		patient = "anonymous"
	}
	now := r.now()
	id := fmt.Sprintf("session_%d_%s_%s", now.Unix(), patient, uuid.NewString()[:8])

	s := newSession(id, patientID, now)
	r.mu.Lock()
	r.sessions[id] = s
	r.mu.Unlock()

	r.logger.Info("session started", "session_id", id, "patient_id", patientID)
	return s
}

// GetOrCreate returns the session for id, creating it on first use.
func (r *Registry) GetOrCreate(id string) (*Session, error) {
	s, t, err := r.Reserve(id)
	if err != nil {
		return nil, err
	}
	t.Release()
	return s, nil
}

// Reserve returns the session for id, creating it on first use, along with
// a ticket for its next update. The ticket is taken under the registry lock,
// so Sweep never evicts a session between lookup and commit.
func (r *Registry) Reserve(id string) (*Session, *Ticket, error) {
	if strings.TrimSpace(id) == "" {
		return nil, nil, ErrInvalidID
	}

	r.mu.RLock()
	if s, ok := r.sessions[id]; ok {
		t := s.Reserve()
		r.mu.RUnlock()
		return s, t, nil
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		s = newSession(id, "", r.now())
		r.sessions[id] = s
		r.logger.Debug("session created on first frame", "session_id", id)
	}
	return s, s.Reserve(), nil
}

// Get retrieves a session by id.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s, nil
}

// Close marks a session ended. Its history stays queryable until eviction.
func (r *Registry) Close(id string) (State, error) {
	s, err := r.Get(id)
	if err != nil {
		return State{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.state.Closed {
		now := r.now()
		s.state.Closed = true
		s.state.ClosedAt = now
		s.state.UpdatedAt = now
		r.logger.Info("session ended", "session_id", id, "frames", s.state.Frames)
	}
	return s.state.clone(), nil
}

// SetMood overrides the stabilized emotion without touching history.
func (r *Registry) SetMood(id string, mood emotion.Label) (State, error) {
	if !mood.Valid() {
		return State{}, fmt.Errorf("%w: %q", ErrInvalidMood, mood)
	}
	s, err := r.Get(id)
	if err != nil {
		return State{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Current = mood
	s.state.UpdatedAt = r.now()
	return s.state.clone(), nil
}

// History returns a snapshot of the session's state.
func (r *Registry) History(id string) (State, error) {
	s, err := r.Get(id)
	if err != nil {
		return State{}, err
	}
	return s.Snapshot(), nil
}

// ByPatient returns snapshots of every session for patientID, oldest first.
func (r *Registry) ByPatient(patientID string) []State {
	r.mu.RLock()
	matches := make([]*Session, 0)
	for _, s := range r.sessions {
		if s.state.PatientID == patientID {
			matches = append(matches, s)
		}
	}
	r.mu.RUnlock()

	out := make([]State, 0, len(matches))
	for _, s := range matches {
		out = append(out, s.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// List returns all session ids, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Evict removes a session outright.
func (r *Registry) Evict(id string) error {
	r.mu.Lock()
	_, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if r.OnEvict != nil {
		r.OnEvict(id)
	}
	return nil
}

// Sweep evicts sessions that were idle longer than IdleTTL or ended longer
// than ClosedTTL ago, and returns how many were removed. Sessions with
// unfinished tickets are kept.
func (r *Registry) Sweep(now time.Time) int {
	r.mu.Lock()
	var expired []string
	for id, s := range r.sessions {
		if s.expired(now, r.config) {
			delete(r.sessions, id)
			expired = append(expired, id)
		}
	}
	remaining := len(r.sessions)
	r.mu.Unlock()

	if r.OnEvict != nil {
		for _, id := range expired {
			r.OnEvict(id)
		}
	}
	if len(expired) > 0 {
		r.logger.Info("evicted sessions", "count", len(expired), "remaining", remaining)
	}
	return len(expired)
}

// Run sweeps on SweepInterval until ctx is done.
func (r *Registry) Run(ctx context.Context) error {
	interval := r.config.SweepInterval
	if interval <= 0 {
		interval = DefaultConfig().SweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.Sweep(r.now())
		}
	}
}
