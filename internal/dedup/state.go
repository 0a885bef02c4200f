package dedup

import (
	"fmt"
	"time"
)

// State is a step of the create-or-claim state machine.
type State int

const (
	StateDraft State = iota
	StatePrechecking
	StateNoMatches
	StateHasMatches
	StateAwaitingDecision
	StateCreating
	StateExecuting
	StateResolved
	StateAborted
)

var stateNames = [...]string{
	StateDraft:            "draft",
	StatePrechecking:      "prechecking",
	StateNoMatches:        "no_matches",
	StateHasMatches:       "has_matches",
	StateAwaitingDecision: "awaiting_decision",
	StateCreating:         "creating",
	StateExecuting:        "executing",
	StateResolved:         "resolved",
	StateAborted:          "aborted",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Terminal reports whether no further transition can follow s within a run.
func (s State) Terminal() bool {
	return s == StateResolved || s == StateAborted
}

// transitions lists every legal edge. Failures fall back to Draft and any
// state may abort.
var transitions = map[State][]State{
	StateDraft:            {StatePrechecking},
	StatePrechecking:      {StateNoMatches, StateHasMatches, StateDraft},
	StateNoMatches:        {StateCreating},
	StateHasMatches:       {StateAwaitingDecision},
	StateAwaitingDecision: {StateCreating, StateExecuting, StateDraft},
	StateCreating:         {StateResolved, StateDraft},
	StateExecuting:        {StateResolved, StateDraft},
}

func canTransition(from, to State) bool {
	if to == StateAborted {
		return !from.Terminal()
	}
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Path records how a resolved entity was obtained. Callers only see the
// entity; the path feeds logs, metrics and events.
type Path string

const (
	PathCreated        Path = "created"
	PathAdopted        Path = "adopted"
	PathAdoptedUpdated Path = "adopted_updated"
)

// Event is one observable step of a run.
type Event[C Candidate, E Entity] struct {
	RunID      string    `json:"run_id"`
	Kind       string    `json:"kind"`
	Caller     string    `json:"caller,omitempty"`
	State      State     `json:"state"`
	Candidates []C       `json:"candidates,omitempty"`
	Intent     *Intent   `json:"intent,omitempty"`
	Entity     *E        `json:"entity,omitempty"`
	Path       Path      `json:"path,omitempty"`
	Err        error     `json:"-"`
	Error      string    `json:"error,omitempty"`
	ErrorKind  string    `json:"error_kind,omitempty"`
	At         time.Time `json:"at"`
}

// Observer receives events synchronously, in order, from the run's goroutine.
// It must not block.
type Observer[C Candidate, E Entity] func(Event[C, E])
