package dedup

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Action is the resolution a caller picks when duplicates exist.
type Action int

const (
	ActionNone Action = iota
	ActionCreateNew
	ActionAdoptExisting
	ActionAdoptAndUpdate
)

func (a Action) String() string {
	switch a {
	case ActionCreateNew:
		return "create_new"
	case ActionAdoptExisting:
		return "adopt_existing"
	case ActionAdoptAndUpdate:
		return "adopt_and_update"
	default:
		return "none"
	}
}

// ParseAction accepts the String forms plus a few short aliases used by the CLI.
func ParseAction(s string) (Action, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "create_new", "create", "new":
		return ActionCreateNew, nil
	case "adopt_existing", "adopt", "use":
		return ActionAdoptExisting, nil
	case "adopt_and_update", "update":
		return ActionAdoptAndUpdate, nil
	default:
		return ActionNone, fmt.Errorf("unknown action %q", s)
	}
}

func (a Action) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

func (a *Action) UnmarshalText(b []byte) error {
	v, err := ParseAction(string(b))
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// Intent is the single choice a Decider resolves to.
type Intent struct {
	Action      Action `json:"action"`
	CandidateID string `json:"candidate_id,omitempty"`
	// ConfirmDuplicate must be set to create a record while candidates exist.
	ConfirmDuplicate bool `json:"confirm_duplicate,omitempty"`
}

// CreateAnyway creates a new record despite the listed candidates.
func CreateAnyway() Intent {
	return Intent{Action: ActionCreateNew, ConfirmDuplicate: true}
}

// AdoptExisting uses candidate id as-is.
func AdoptExisting(id string) Intent {
	return Intent{Action: ActionAdoptExisting, CandidateID: id}
}

// AdoptAndUpdate uses candidate id and overwrites it with the draft's fields.
func AdoptAndUpdate(id string) Intent {
	return Intent{Action: ActionAdoptAndUpdate, CandidateID: id}
}

func (i Intent) String() string {
	if i.CandidateID != "" {
		return i.Action.String() + "(" + i.CandidateID + ")"
	}
	return i.Action.String()
}

func validateIntent[C Candidate](i Intent, cands []C) error {
	switch i.Action {
	case ActionCreateNew:
		if !i.ConfirmDuplicate {
			return ErrDuplicateNotConfirmed
		}
		return nil
	case ActionAdoptExisting, ActionAdoptAndUpdate:
		if _, ok := findCandidate(cands, i.CandidateID); !ok {
			return fmt.Errorf("%w: %q", ErrUnknownCandidate, i.CandidateID)
		}
		return nil
	default:
		return ErrNoDecision
	}
}

// Decision is what a Decider is shown.
type Decision[D any, C Candidate] struct {
	RunID      string `json:"run_id"`
	Kind       string `json:"kind"`
	Draft      D      `json:"draft"`
	Candidates []C    `json:"candidates"`
}

// Decider collects exactly one Intent. It may block until a human answers;
// it must return when ctx is done.
type Decider[D any, C Candidate] func(ctx context.Context, d Decision[D, C]) (Intent, error)

// FixedDecider always answers with the same intent.
func FixedDecider[D any, C Candidate](i Intent) Decider[D, C] {
	return func(context.Context, Decision[D, C]) (Intent, error) { return i, nil }
}

// ScriptedDecider answers with a fixed sequence of intents and remembers what
// it was shown. Once the script runs out it answers ErrNoDecision.
type ScriptedDecider[D any, C Candidate] struct {
	mu      sync.Mutex
	script  []Intent
	decided []Decision[D, C]
}

func NewScriptedDecider[D any, C Candidate](script ...Intent) *ScriptedDecider[D, C] {
	return &ScriptedDecider[D, C]{script: script}
}

func (s *ScriptedDecider[D, C]) Decide(ctx context.Context, d Decision[D, C]) (Intent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.decided = append(s.decided, d)
	if len(s.script) == 0 {
		return Intent{}, ErrNoDecision
	}
	next := s.script[0]
	s.script = s.script[1:]
	return next, nil
}

// Shown returns every decision presented so far.
func (s *ScriptedDecider[D, C]) Shown() []Decision[D, C] {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Decision[D, C], len(s.decided))
	copy(out, s.decided)
	return out
}
