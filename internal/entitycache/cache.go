// Package entitycache keeps each caller's recently resolved patients and
// surgeries, newest first, so list screens update without refetching.
package entitycache

import (
	"context"
	"time"

	"github.com/renandw/anesthesiaReports-sub000/internal/dedup"
)

// DefaultLimit bounds each caller's list.
const DefaultLimit = 50

// Entry is one resolved entity in a caller's list.
type Entry struct {
	ID         string     `json:"id"`
	Label      string     `json:"label"`
	Path       dedup.Path `json:"path"`
	ResolvedAt time.Time  `json:"resolved_at"`
}

// Cache stores entries per caller and entity kind. Adding an id that is
// already listed moves it to the front.
type Cache interface {
	Add(ctx context.Context, caller, kind string, e Entry) error
	List(ctx context.Context, caller, kind string) ([]Entry, error)
}

// Sink records every resolution in c. label renders the list caption.
func Sink[E dedup.Entity](c Cache, label func(E) string) dedup.Sink[E] {
	return dedup.SinkFunc[E](func(ctx context.Context, r dedup.Resolution[E]) error {
		return c.Add(ctx, r.Caller, r.Kind, Entry{
			ID:         r.Entity.EntityID(),
			Label:      label(r.Entity),
			Path:       r.Path,
			ResolvedAt: time.Now().UTC(),
		})
	})
}

func PatientLabel(p dedup.Patient) string { return p.Name + " (" + p.DateOfBirth + ")" }

func SurgeryLabel(s dedup.Surgery) string {
	return s.Date + " " + s.ProposedProcedure + ", " + s.Hospital
}
