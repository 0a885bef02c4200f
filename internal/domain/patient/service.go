package patient

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/renandw/anesthesiaReports-sub000/internal/platform/match"
)

// ErrInvalid wraps every field validation failure.
var ErrInvalid = errors.New("invalid patient")

const (
	searchLimit   = 100
	maxCandidates = 20
)

type Service struct {
	repo    Repository
	weights match.Weights
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, weights: match.DefaultWeights()}
}

func normalize(f Fields) (Fields, error) {
	n, err := f.Normalize()
	if err != nil {
		return Fields{}, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return n, nil
}

// Precheck returns the existing patients that may be the person described by
// f, best match first. It has no side effects.
func (s *Service) Precheck(ctx context.Context, f Fields) ([]Candidate, error) {
	f, err := normalize(f)
	if err != nil {
		return nil, err
	}
	id := f.identity()
	fp := match.Fingerprint(id)

	recs, err := s.repo.FindCandidates(ctx, CandidateQuery{BirthDate: f.BirthDate, CNS: f.CNS, Fingerprint: fp}, searchLimit)
	if err != nil {
		return nil, fmt.Errorf("find candidates: %w", err)
	}

	out := make([]Candidate, 0, len(recs))
	for _, p := range recs {
		score := s.weights.Score(id, p.identity())
		level := match.Grade(score)
		if level == "" {
			continue
		}
		out = append(out, Candidate{
			ID:               p.ID,
			Name:             p.Name,
			Sex:              p.Sex,
			BirthDate:        p.BirthDate,
			CNS:              p.CNS,
			MatchLevel:       level,
			FingerprintMatch: p.Fingerprint == fp,
			Score:            score,
		})
	}
	slices.SortStableFunc(out, func(a, b Candidate) int { return cmp.Compare(b.Score, a.Score) })
	if len(out) > maxCandidates {
		out = out[:maxCandidates]
	}
	return out, nil
}

func (s *Service) Create(ctx context.Context, userID string, f Fields) (*Patient, error) {
	f, err := normalize(f)
	if err != nil {
		return nil, err
	}
	p := &Patient{CreatedBy: userID}
	p.apply(f)
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("create patient: %w", err)
	}
	return p, nil
}

// Get returns the patient if userID created it or has claimed it.
func (s *Service) Get(ctx context.Context, userID string, id uuid.UUID) (*Patient, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, userID, id); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) Update(ctx context.Context, userID string, id uuid.UUID, f Fields) (*Patient, error) {
	f, err := normalize(f)
	if err != nil {
		return nil, err
	}
	p, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	p.apply(f)
	if err := s.repo.Update(ctx, p); err != nil {
		return nil, fmt.Errorf("update patient: %w", err)
	}
	return p, nil
}

// Claim shares an existing patient with userID. Claiming twice reports
// ErrAlreadyClaimed and changes nothing.
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

func (s *Service) List(ctx context.Context, userID string, limit, offset int) ([]*Patient, int, error) {
	return s.repo.ListByUser(ctx, userID, limit, offset)
}

// HasAccess reports whether userID may read the patient.
func (s *Service) HasAccess(ctx context.Context, id uuid.UUID, userID string) (bool, error) {
	return s.repo.HasAccess(ctx, id, userID)
}

func (s *Service) authorize(ctx context.Context, userID string, id uuid.UUID) error {
	ok, err := s.repo.HasAccess(ctx, id, userID)
	if err != nil {
		return fmt.Errorf("check access: %w", err)
	}
	if !ok {
		return ErrForbidden
	}
	return nil
}
