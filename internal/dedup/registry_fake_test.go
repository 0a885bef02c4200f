package dedup

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// fakePatients is an in-memory PatientRegistry that records every call.
type fakePatients struct {
	mu         sync.Mutex
	records    map[string]Patient
	claims     map[string]int
	candidates []PatientCandidate
	calls      []string
	nextID     int

	precheckErr error
	claimErr    error
	createErr   error
	updateErr   error
	getErr      error

	// block, when set, is waited on inside Precheck.
	block chan struct{}
}

func newFakePatients(existing ...Patient) *fakePatients {
	f := &fakePatients{records: make(map[string]Patient), claims: make(map[string]int)}
	for _, p := range existing {
		f.records[p.ID] = p
	}
	return f
}

func (f *fakePatients) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakePatients) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakePatients) Precheck(ctx context.Context, d PatientDraft) ([]PatientCandidate, error) {
	f.record("precheck")
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, context.Cause(ctx)
		}
	}
	if f.precheckErr != nil {
		return nil, f.precheckErr
	}
	return f.candidates, nil
}

func (f *fakePatients) Claim(_ context.Context, id string) error {
	f.record("claim:" + id)
	if f.claimErr != nil {
		return f.claimErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.records[id]; !ok {
		return ErrNotFound
	}
	f.claims[id]++
	if f.claims[id] > 1 {
		return ErrAlreadyClaimed
	}
	return nil
}

func (f *fakePatients) Create(_ context.Context, d PatientDraft) (Patient, error) {
	f.record("create")
	if f.createErr != nil {
		return Patient{}, f.createErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	p := Patient{ID: fmt.Sprintf("new-%d", f.nextID), Name: d.Name, Sex: d.Sex, DateOfBirth: d.DateOfBirth, CNS: d.CNS}
	f.records[p.ID] = p
	return p, nil
}

func (f *fakePatients) Update(_ context.Context, id string, d PatientDraft) (Patient, error) {
	f.record("update:" + id)
	if f.updateErr != nil {
		return Patient{}, f.updateErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.records[id]
	if !ok {
		return Patient{}, ErrNotFound
	}
	p.Name, p.Sex, p.DateOfBirth, p.CNS = d.Name, d.Sex, d.DateOfBirth, d.CNS
	f.records[id] = p
	return p, nil
}

func (f *fakePatients) GetByID(_ context.Context, id string) (Patient, error) {
	f.record("get:" + id)
	if f.getErr != nil {
		return Patient{}, f.getErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.records[id]
	if !ok {
		return Patient{}, ErrNotFound
	}
	return p, nil
}

// fakeSurgeries is a minimal SurgeryRegistry.
type fakeSurgeries struct {
	mu         sync.Mutex
	candidates []SurgeryCandidate
	records    map[string]Surgery
	calls      []string
}

func (f *fakeSurgeries) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeSurgeries) Precheck(context.Context, SurgeryDraft) ([]SurgeryCandidate, error) {
	f.record("precheck")
	return f.candidates, nil
}

func (f *fakeSurgeries) Claim(_ context.Context, id string) error {
	f.record("claim:" + id)
	return nil
}

func (f *fakeSurgeries) Create(_ context.Context, d SurgeryDraft) (Surgery, error) {
	f.record("create")
	return Surgery{ID: "s-new", PatientID: d.PatientID, Date: d.Date, Type: d.Type, Hospital: d.Hospital}, nil
}

func (f *fakeSurgeries) Update(_ context.Context, id string, d SurgeryDraft) (Surgery, error) {
	f.record("update:" + id)
	return Surgery{ID: id, PatientID: d.PatientID, Date: d.Date, Type: d.Type, Hospital: d.Hospital}, nil
}

func (f *fakeSurgeries) GetByID(_ context.Context, id string) (Surgery, error) {
	f.record("get:" + id)
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.records[id]
	if !ok {
		return Surgery{}, ErrNotFound
	}
	return s, nil
}

type fakeRecorder struct {
	mu         sync.Mutex
	outcomes   []string
	candidates []int
}

func (r *fakeRecorder) RunFinished(_, outcome string, _ time.Duration) {
	r.mu.Lock()
	r.outcomes = append(r.outcomes, outcome)
	r.mu.Unlock()
}

func (r *fakeRecorder) CandidatesFound(_ string, n int) {
	r.mu.Lock()
	r.candidates = append(r.candidates, n)
	r.mu.Unlock()
}
