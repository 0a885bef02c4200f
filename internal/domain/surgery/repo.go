package surgery

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrNotFound       = errors.New("surgery not found")
	ErrForbidden      = errors.New("no access to surgery")
	ErrAlreadyClaimed = errors.New("surgery already shared with caller")
)

type Repository interface {
	// Create stores s and grants its creator access.
	Create(ctx context.Context, s *Surgery) error
	GetByID(ctx context.Context, id uuid.UUID) (*Surgery, error)
	Update(ctx context.Context, s *Surgery) error
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit int) ([]*Surgery, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]*Surgery, int, error)
	Grant(ctx context.Context, id uuid.UUID, userID string) (bool, error)
	HasAccess(ctx context.Context, id uuid.UUID, userID string) (bool, error)
}

// PatientAccess is the patient registry as seen from surgeries: a surgery can
// only be registered by someone with access to its patient.
type PatientAccess interface {
	HasAccess(ctx context.Context, patientID uuid.UUID, userID string) (bool, error)
}
