package dedup

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// EntityKind binds one entity field set to the generic workflow.
type EntityKind[F, D any, C Candidate] struct {
	Name      string
	Normalize func(F) (D, error)
	Classify  func([]C) []C
}

// Resolution is handed to every Sink once per resolved run.
type Resolution[E Entity] struct {
	RunID  string
	Kind   string
	Caller string
	Entity E
	Path   Path
}

// Sink is a downstream collaborator (list cache, event stream) written
// exactly once when a run resolves. Sink failures are logged, never returned.
type Sink[E Entity] interface {
	Resolved(ctx context.Context, r Resolution[E]) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc[E Entity] func(ctx context.Context, r Resolution[E]) error

func (f SinkFunc[E]) Resolved(ctx context.Context, r Resolution[E]) error { return f(ctx, r) }

// Recorder receives run metrics.
type Recorder interface {
	RunFinished(kind, outcome string, d time.Duration)
	CandidatesFound(kind string, n int)
}

// Config carries the optional collaborators of a workflow.
type Config[D any, C Candidate, E Entity] struct {
	// Decider is used when a run does not bring its own.
	Decider  Decider[D, C]
	Logger   *zerolog.Logger
	Recorder Recorder
	Sinks    []Sink[E]
}

// RunOptions override Config for a single run.
type RunOptions[D any, C Candidate, E Entity] struct {
	RunID    string
	Decider  Decider[D, C]
	Observer Observer[C, E]
}

type callerKey struct{}

// WithCaller tags ctx with the identity runs are single-flighted on.
func WithCaller(ctx context.Context, caller string) context.Context {
	return context.WithValue(ctx, callerKey{}, caller)
}

func CallerFromContext(ctx context.Context) string {
	c, _ := ctx.Value(callerKey{}).(string)
	return c
}

// Workflow runs the create-or-claim protocol for one entity kind. At most one
// run per caller is live: starting a run cancels the caller's previous one.
type Workflow[F, D any, C Candidate, E Entity] struct {
	kind  EntityKind[F, D, C]
	reg   Registry[D, C, E]
	coord *Coordinator[D, C, E]
	cfg   Config[D, C, E]
	log   zerolog.Logger

	mu      sync.Mutex
	flights map[string]*flight
	subs    map[int]Observer[C, E]
	nextSub int
}

type flight struct {
	cancel context.CancelCauseFunc
	done   chan struct{}
}

func New[F, D any, C Candidate, E Entity](kind EntityKind[F, D, C], reg Registry[D, C, E], cfg Config[D, C, E]) *Workflow[F, D, C, E] {
	log := zerolog.Nop()
	if cfg.Logger != nil {
		log = *cfg.Logger
	}
	return &Workflow[F, D, C, E]{
		kind:    kind,
		reg:     reg,
		coord:   NewCoordinator(reg),
		cfg:     cfg,
		log:     log.With().Str("kind", kind.Name).Logger(),
		flights: make(map[string]*flight),
		subs:    make(map[int]Observer[C, E]),
	}
}

// Subscribe registers an observer for the events of every run. The returned
// function removes it.
func (w *Workflow[F, D, C, E]) Subscribe(obs Observer[C, E]) func() {
	w.mu.Lock()
	defer w.mu.Unlock()
	id := w.nextSub
	w.nextSub++
	w.subs[id] = obs
	return func() {
		w.mu.Lock()
		delete(w.subs, id)
		w.mu.Unlock()
	}
}

// Cancel aborts the caller's live run, if any.
func (w *Workflow[F, D, C, E]) Cancel(caller string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	f, ok := w.flights[caller]
	if ok {
		f.cancel(ErrCancelled)
	}
	return ok
}

// Run executes one create-or-claim run and returns the resolved entity.
// Every error is a *Error.
func (w *Workflow[F, D, C, E]) Run(ctx context.Context, form F) (E, error) {
	return w.RunWith(ctx, form, RunOptions[D, C, E]{})
}

func (w *Workflow[F, D, C, E]) RunWith(ctx context.Context, form F, opts RunOptions[D, C, E]) (E, error) {
	var zero E
	r := w.newRun(ctx, opts)

	ctx, release, err := w.acquire(ctx, r.caller)
	if err != nil {
		return zero, r.fail(wrapErr("start", KindCancelled, err))
	}
	defer release()

	r.emit(Event[C, E]{})

	draft, err := w.kind.Normalize(form)
	if err != nil {
		return zero, r.fail(wrapErr("normalize", KindValidation, err))
	}
	if cause := context.Cause(ctx); cause != nil {
		return zero, r.fail(wrapErr("start", KindCancelled, cause))
	}

	r.to(StatePrechecking, Event[C, E]{})
	raw, err := w.reg.Precheck(ctx, draft)
	if err != nil {
		return zero, r.fail(wrapErr("precheck", KindPrecheck, err))
	}
	cands := w.kind.Classify(raw)
	if w.cfg.Recorder != nil {
		w.cfg.Recorder.CandidatesFound(w.kind.Name, len(cands))
	}

	var (
		entity E
		path   Path
	)
	if len(cands) == 0 {
		r.to(StateNoMatches, Event[C, E]{})
		r.to(StateCreating, Event[C, E]{})
		entity, err = w.coord.CreateFresh(ctx, draft)
		path = PathCreated
	} else {
		r.to(StateHasMatches, Event[C, E]{Candidates: cands})
		r.to(StateAwaitingDecision, Event[C, E]{Candidates: cands})

		intent, derr := w.decide(ctx, r, draft, cands)
		if derr != nil {
			return zero, r.fail(derr)
		}
		ev := Event[C, E]{Intent: &intent}
		switch intent.Action {
		case ActionCreateNew:
			r.to(StateCreating, ev)
			entity, err = w.coord.CreateFresh(ctx, draft)
			path = PathCreated
		case ActionAdoptExisting:
			r.to(StateExecuting, ev)
			entity, err = w.coord.ClaimAndFetch(ctx, intent.CandidateID)
			path = PathAdopted
		case ActionAdoptAndUpdate:
			r.to(StateExecuting, ev)
			entity, err = w.coord.ClaimAndApply(ctx, intent.CandidateID, draft)
			path = PathAdoptedUpdated
		}
	}
	if err != nil {
		return zero, r.fail(wrapErr("execute", KindCreate, err))
	}
	// A result that arrives after the run was abandoned is not observed.
	if cause := context.Cause(ctx); cause != nil {
		return zero, r.fail(wrapErr("execute", KindCancelled, cause))
	}

	res := Resolution[E]{RunID: r.id, Kind: w.kind.Name, Caller: r.caller, Entity: entity, Path: path}
	sinkCtx := context.WithoutCancel(ctx)
	for _, s := range w.cfg.Sinks {
		if err := s.Resolved(sinkCtx, res); err != nil {
			r.log.Warn().Err(err).Str("entity_id", entity.EntityID()).Msg("resolution sink failed")
		}
	}
	r.to(StateResolved, Event[C, E]{Entity: &entity, Path: path})
	r.finish(string(path))
	r.log.Info().Str("entity_id", entity.EntityID()).Str("path", string(path)).Msg("run resolved")
	return entity, nil
}

// decide asks the decider for an intent and validates it. Intents that
// reference nothing, or create a duplicate without confirmation, are
// rejected rather than defaulted.
func (w *Workflow[F, D, C, E]) decide(ctx context.Context, r *run[D, C, E], draft D, cands []C) (Intent, *Error) {
	decider := r.decider
	if decider == nil {
		decider = w.cfg.Decider
	}
	if decider == nil {
		return Intent{}, &Error{Kind: KindValidation, Op: "decide", Err: ErrNoDecision}
	}
	intent, err := decider(ctx, Decision[D, C]{RunID: r.id, Kind: w.kind.Name, Draft: draft, Candidates: cands})
	if IsFatal(err) {
		return Intent{}, wrapErr("decide", KindFatalSession, err)
	}
	if cause := context.Cause(ctx); cause != nil {
		return Intent{}, wrapErr("decide", KindCancelled, cause)
	}
	if err != nil {
		if errors.Is(err, ErrNoDecision) {
			return Intent{}, &Error{Kind: KindValidation, Op: "decide", Err: err}
		}
		return Intent{}, wrapErr("decide", KindCancelled, err)
	}
	if err := validateIntent(intent, cands); err != nil {
		return Intent{}, &Error{Kind: KindValidation, Op: "decide", Err: err}
	}
	r.log.Info().Stringer("intent", intent).Msg("decision received")
	return intent, nil
}

// acquire makes the new run the caller's only live run. The previous run is
// cancelled and awaited so two runs never write downstream state together.
func (w *Workflow[F, D, C, E]) acquire(ctx context.Context, caller string) (context.Context, func(), error) {
	ctx, cancel := context.WithCancelCause(ctx)
	f := &flight{cancel: cancel, done: make(chan struct{})}

	w.mu.Lock()
	prev := w.flights[caller]
	w.flights[caller] = f
	w.mu.Unlock()

	release := func() {
		w.mu.Lock()
		if w.flights[caller] == f {
			delete(w.flights, caller)
		}
		w.mu.Unlock()
		cancel(nil)
		close(f.done)
	}

	if prev != nil {
		prev.cancel(ErrSuperseded)
		select {
		case <-prev.done:
		case <-ctx.Done():
			cause := context.Cause(ctx)
			release()
			return nil, nil, cause
		}
	}
	return ctx, release, nil
}

func (w *Workflow[F, D, C, E]) observers() []Observer[C, E] {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]Observer[C, E], 0, len(w.subs))
	for _, o := range w.subs {
		out = append(out, o)
	}
	return out
}

type run[D any, C Candidate, E Entity] struct {
	id        string
	kind      string
	caller    string
	state     State
	started   time.Time
	decider   Decider[D, C]
	observer  Observer[C, E]
	observers func() []Observer[C, E]
	recorder  Recorder
	log       zerolog.Logger
}

func (w *Workflow[F, D, C, E]) newRun(ctx context.Context, opts RunOptions[D, C, E]) *run[D, C, E] {
	id := opts.RunID
	if id == "" {
		id = uuid.NewString()
	}
	caller := CallerFromContext(ctx)
	return &run[D, C, E]{
		id:        id,
		kind:      w.kind.Name,
		caller:    caller,
		state:     StateDraft,
		started:   time.Now(),
		decider:   opts.Decider,
		observer:  opts.Observer,
		observers: w.observers,
		recorder:  w.cfg.Recorder,
		log:       w.log.With().Str("run_id", id).Str("caller", caller).Logger(),
	}
}

func (r *run[D, C, E]) emit(ev Event[C, E]) {
	ev.RunID = r.id
	ev.Kind = r.kind
	ev.Caller = r.caller
	ev.State = r.state
	ev.At = time.Now()
	if ev.Err != nil {
		ev.Error = ev.Err.Error()
		ev.ErrorKind = KindOf(ev.Err).String()
	}
	if r.observer != nil {
		r.observer(ev)
	}
	for _, o := range r.observers() {
		o(ev)
	}
}

// to moves the run to state and publishes ev. Illegal edges are programming
// errors.
func (r *run[D, C, E]) to(state State, ev Event[C, E]) {
	if !canTransition(r.state, state) {
		panic(fmt.Sprintf("dedup: illegal transition %s -> %s", r.state, state))
	}
	r.log.Debug().Stringer("from", r.state).Stringer("to", state).Msg("transition")
	r.state = state
	r.emit(ev)
}

// fail returns the run to Draft for recoverable errors and aborts it otherwise.
func (r *run[D, C, E]) fail(err *Error) *Error {
	ev := Event[C, E]{Err: err}
	switch {
	case !err.Recoverable():
		r.to(StateAborted, ev)
	case r.state == StateDraft:
		r.emit(ev)
	default:
		r.to(StateDraft, ev)
	}
	r.finish("failed_" + err.Kind.String())
	lvl := r.log.Warn()
	if err.Kind == KindFatalSession {
		lvl = r.log.Error()
	}
	lvl.Err(err).Str("error_kind", err.Kind.String()).Stringer("state", r.state).Msg("run failed")
	return err
}

func (r *run[D, C, E]) finish(outcome string) {
	if r.recorder != nil {
		r.recorder.RunFinished(r.kind, outcome, time.Since(r.started))
	}
}
