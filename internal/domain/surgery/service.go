package surgery

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"
)

var ErrInvalid = errors.New("invalid surgery")

const (
	searchLimit = 200
	// minCandidateScore drops surgeries that only share the date or type.
	minCandidateScore = 2
	maxCandidates     = 20
)

type Service struct {
	repo     Repository
	patients PatientAccess
}

func NewService(repo Repository, patients PatientAccess) *Service {
	return &Service{repo: repo, patients: patients}
}

// prepare normalizes f and checks that userID may attach surgeries to its patient.
func (s *Service) prepare(ctx context.Context, userID string, f Fields) (Fields, uuid.UUID, error) {
	f, err := f.Normalize()
	if err != nil {
		return Fields{}, uuid.Nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	patientID := uuid.MustParse(f.PatientID)
	ok, err := s.patients.HasAccess(ctx, patientID, userID)
	if err != nil {
		return Fields{}, uuid.Nil, fmt.Errorf("check patient access: %w", err)
	}
	if !ok {
		return Fields{}, uuid.Nil, fmt.Errorf("patient %s: %w", patientID, ErrForbidden)
	}
	return f, patientID, nil
}

// Precheck lists surgeries already registered for the same patient that
// resemble f, highest score first.
func (s *Service) Precheck(ctx context.Context, userID string, f Fields) ([]Candidate, error) {
	f, patientID, err := s.prepare(ctx, userID, f)
	if err != nil {
		return nil, err
	}
	recs, err := s.repo.ListByPatient(ctx, patientID, searchLimit)
	if err != nil {
		return nil, fmt.Errorf("list surgeries: %w", err)
	}
	out := make([]Candidate, 0, len(recs))
	for _, r := range recs {
		n := score(f, r)
		if n < minCandidateScore {
			continue
		}
		out = append(out, Candidate{
			ID:                r.ID,
			PatientID:         r.PatientID,
			Date:              r.Date,
			Type:              r.Type,
			InsuranceName:     r.InsuranceName,
			Hospital:          r.Hospital,
			MainSurgeon:       r.MainSurgeon,
			ProposedProcedure: r.ProposedProcedure,
			Score:             n,
		})
	}
	slices.SortStableFunc(out, func(a, b Candidate) int { return cmp.Compare(b.Score, a.Score) })
	if len(out) > maxCandidates {
		out = out[:maxCandidates]
	}
	return out, nil
}

func (s *Service) Create(ctx context.Context, userID string, f Fields) (*Surgery, error) {
	f, patientID, err := s.prepare(ctx, userID, f)
	if err != nil {
		return nil, err
	}
	sg := &Surgery{CreatedBy: userID}
	sg.apply(f, patientID)
	if err := s.repo.Create(ctx, sg); err != nil {
		return nil, fmt.Errorf("create surgery: %w", err)
	}
	return sg, nil
}

func (s *Service) Get(ctx context.Context, userID string, id uuid.UUID) (*Surgery, error) {
	sg, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	ok, err := s.repo.HasAccess(ctx, id, userID)
	if err != nil {
		return nil, fmt.Errorf("check access: %w", err)
	}
	if !ok {
		return nil, ErrForbidden
	}
	return sg, nil
}

func (s *Service) Update(ctx context.Context, userID string, id uuid.UUID, f Fields) (*Surgery, error) {
	f, patientID, err := s.prepare(ctx, userID, f)
	if err != nil {
		return nil, err
	}
	sg, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	sg.apply(f, patientID)
	if err := s.repo.Update(ctx, sg); err != nil {
		return nil, fmt.Errorf("update surgery: %w", err)
	}
	return sg, nil
}

// Claim shares an existing surgery with userID.
func (s *Service) Claim(ctx context.Context, userID string, id uuid.UUID) error {
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return err
	}
	created, err := s.repo.Grant(ctx, id, userID)
	if err != nil {
		return fmt.Errorf("grant access: %w", err)
	}
	if !created {
		return ErrAlreadyClaimed
	}
	return nil
}

func (s *Service) List(ctx context.Context, userID string, limit, offset int) ([]*Surgery, int, error) {
	return s.repo.ListByUser(ctx, userID, limit, offset)
}
