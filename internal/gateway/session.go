package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/renandw/anesthesiaReports-sub000/internal/dedup"
)

// Snapshot is the latest known state of a run, as returned to the UI.
type Snapshot struct {
	RunID      string        `json:"run_id"`
	Kind       string        `json:"kind"`
	State      dedup.State   `json:"state"`
	Draft      any           `json:"draft,omitempty"`
	Candidates any           `json:"candidates,omitempty"`
	Intent     *dedup.Intent `json:"intent,omitempty"`
	Entity     any           `json:"entity,omitempty"`
	Path       dedup.Path    `json:"path,omitempty"`
	Error      string        `json:"error,omitempty"`
	ErrorKind  string        `json:"error_kind,omitempty"`
	Done       bool          `json:"done"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

type session struct {
	caller    string
	cancel    context.CancelCauseFunc
	decisions chan dedup.Intent

	mu       sync.Mutex
	snap     Snapshot
	finished time.Time
}

func newSession(id, kind, caller string, cancel context.CancelCauseFunc) *session {
	return &session{
		caller:    caller,
		cancel:    cancel,
		decisions: make(chan dedup.Intent, 1),
		snap:      Snapshot{RunID: id, Kind: kind, State: dedup.StateDraft, UpdatedAt: time.Now().UTC()},
	}
}

func (s *session) snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

func (s *session) update(fn func(*Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.snap)
	s.snap.UpdatedAt = time.Now().UTC()
}

func (s *session) finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Done = true
	s.finished = time.Now()
}

// decide hands intent to the waiting decider. It fails when the run is not
// awaiting a decision or one is already queued.
func (s *session) decide(intent dedup.Intent) bool {
	s.mu.Lock()
	awaiting := s.snap.State == dedup.StateAwaitingDecision && !s.snap.Done
	s.mu.Unlock()
	if !awaiting {
		return false
	}
	select {
	case s.decisions <- intent:
		return true
	default:
		return false
	}
}

// sessions indexes runs by id. Finished runs are kept for retention so the
// UI can read their outcome.
type sessions struct {
	mu        sync.Mutex
	byID      map[string]*session
	retention time.Duration
}

func (ss *sessions) add(id string, s *session) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	ss.prune(time.Now())
	ss.byID[id] = s
}

func (ss *sessions) get(id string) (*session, bool) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	s, ok := ss.byID[id]
	return s, ok
}

// owned returns the session only when caller started it.
func (ss *sessions) owned(id, caller string) (*session, bool) {
	s, ok := ss.get(id)
	if !ok || s.caller != caller {
		return nil, false
	}
	return s, true
}

func (ss *sessions) prune(now time.Time) {
	for id, s := range ss.byID {
		s.mu.Lock()
		expired := s.snap.Done && now.Sub(s.finished) > ss.retention
		s.mu.Unlock()
		if expired {
			delete(ss.byID, id)
		}
	}
}
