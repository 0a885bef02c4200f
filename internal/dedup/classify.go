package dedup

import "slices"

// Candidate is an existing record the registry proposes as a possible duplicate.
type Candidate interface {
	CandidateID() string
}

// Entity is a persisted record as the registry returns it.
type Entity interface {
	EntityID() string
}

// classify returns a sorted copy of raw. The sort is stable so candidates
// the server ranked equally keep the server's order.
func classify[C Candidate](raw []C, compare func(a, b C) int) []C {
	out := make([]C, len(raw))
	copy(out, raw)
	slices.SortStableFunc(out, compare)
	return out
}

func boolRank(b bool) int {
	if b {
		return 1
	}
	return 0
}

func findCandidate[C Candidate](cands []C, id string) (C, bool) {
	for _, c := range cands {
		if c.CandidateID() == id {
			return c, true
		}
	}
	var zero C
	return zero, false
}
