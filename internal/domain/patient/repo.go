package patient

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrNotFound       = errors.New("patient not found")
	ErrForbidden      = errors.New("no access to patient")
	ErrAlreadyClaimed = errors.New("patient already shared with caller")
)

// CandidateQuery selects records that could be the same person: any shared
// birth date, CNS or fingerprint.
type CandidateQuery struct {
	BirthDate   string
	CNS         string
	Fingerprint string
}

type Repository interface {
	// Create stores p and grants its creator access.
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	Update(ctx context.Context, p *Patient) error
	FindCandidates(ctx context.Context, q CandidateQuery, limit int) ([]*Patient, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]*Patient, int, error)
	// Grant gives userID access to id. It reports false when the grant
	// already existed.
	Grant(ctx context.Context, id uuid.UUID, userID string) (bool, error)
	HasAccess(ctx context.Context, id uuid.UUID, userID string) (bool, error)
}
