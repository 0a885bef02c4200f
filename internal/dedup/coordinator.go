package dedup

import (
	"context"
	"errors"
)

// Registry is the remote matching and persistence service for one entity
// kind. Implementations return the package sentinels (ErrFatalSession,
// ErrNotFound, ErrAlreadyClaimed, ErrNetwork, ErrInvalid) wrapped as they
// like.
type Registry[D any, C Candidate, E Entity] interface {
	// Precheck is idempotent and has no server-side effect.
	Precheck(ctx context.Context, draft D) ([]C, error)
	// Claim grants the caller access to an existing record. Idempotent.
	Claim(ctx context.Context, id string) error
	// Create is not idempotent: two calls create two records.
	Create(ctx context.Context, draft D) (E, error)
	Update(ctx context.Context, id string, draft D) (E, error)
	GetByID(ctx context.Context, id string) (E, error)
}

// Coordinator executes a resolved intent against the registry. Every
// sequence is a single attempt; retry policy belongs to the transport.
type Coordinator[D any, C Candidate, E Entity] struct {
	reg Registry[D, C, E]
}

func NewCoordinator[D any, C Candidate, E Entity](reg Registry[D, C, E]) *Coordinator[D, C, E] {
	return &Coordinator[D, C, E]{reg: reg}
}

// ClaimAndFetch claims id and returns the record exactly as the registry
// holds it. Draft values are never applied.
func (c *Coordinator[D, C, E]) ClaimAndFetch(ctx context.Context, id string) (E, error) {
	var zero E
	if err := c.claim(ctx, id); err != nil {
		return zero, err
	}
	e, err := c.reg.GetByID(ctx, id)
	if err != nil {
		return zero, wrapErr("fetch", KindClaim, err)
	}
	return e, nil
}

// ClaimAndApply claims id and overwrites it with the draft. A failed update
// leaves the claim in place; claiming again on a later run is harmless.
func (c *Coordinator[D, C, E]) ClaimAndApply(ctx context.Context, id string, draft D) (E, error) {
	var zero E
	if err := c.claim(ctx, id); err != nil {
		return zero, err
	}
	e, err := detached(ctx, func(ctx context.Context) (E, error) {
		return c.reg.Update(ctx, id, draft)
	})
	if err != nil {
		return zero, wrapErr("update", KindClaim, err)
	}
	return e, nil
}

// CreateFresh persists draft as a new record.
func (c *Coordinator[D, C, E]) CreateFresh(ctx context.Context, draft D) (E, error) {
	e, err := detached(ctx, func(ctx context.Context) (E, error) {
		return c.reg.Create(ctx, draft)
	})
	if err != nil {
		var zero E
		return zero, wrapErr("create", KindCreate, err)
	}
	return e, nil
}

func (c *Coordinator[D, C, E]) claim(ctx context.Context, id string) error {
	_, err := detached(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.reg.Claim(ctx, id)
	})
	if errors.Is(err, ErrAlreadyClaimed) && !IsFatal(err) {
		err = nil
	}
	if err != nil {
		return wrapErr("claim", KindClaim, err)
	}
	// The claim stands even if the run was abandoned meanwhile; the
	// follow-up call is only made for a live run.
	if cause := context.Cause(ctx); cause != nil {
		return wrapErr("claim", KindCancelled, cause)
	}
	return nil
}

// detached runs fn on a context that ignores ctx's cancellation, so a
// mutation already sent is allowed to complete server-side. The caller stops
// waiting as soon as ctx is done.
func detached[T any](ctx context.Context, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if ctx.Err() != nil {
		return zero, context.Cause(ctx)
	}
	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn(context.WithoutCancel(ctx))
		done <- result{v, err}
	}()
	select {
	case r := <-done:
		return r.v, r.err
	case <-ctx.Done():
		// A fatal session result that is already in hand outranks cancellation.
		select {
		case r := <-done:
			if IsFatal(r.err) {
				return zero, r.err
			}
		default:
		}
		return zero, context.Cause(ctx)
	}
}
