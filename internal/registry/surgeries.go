package registry

import (
	"context"
	"net/http"
	"net/url"

	"github.com/renandw/anesthesiaReports-sub000/internal/dedup"
)

type surgeries struct{ c *Client }

type surgeryCandidate struct {
	ID                string `json:"id"`
	Date              string `json:"date"`
	Type              string `json:"type"`
	InsuranceName     string `json:"insurance_name"`
	Hospital          string `json:"hospital"`
	MainSurgeon       string `json:"main_surgeon"`
	ProposedProcedure string `json:"proposed_procedure"`
	Score             int    `json:"score"`
}

func (s *surgeries) Precheck(ctx context.Context, d dedup.SurgeryDraft) ([]dedup.SurgeryCandidate, error) {
	var resp struct {
		Candidates []surgeryCandidate `json:"candidates"`
	}
	if err := s.c.do(ctx, "surgery.precheck", http.MethodPost, "/api/v1/surgeries/precheck", d, &resp); err != nil {
		return nil, err
	}
	out := make([]dedup.SurgeryCandidate, len(resp.Candidates))
	for i, c := range resp.Candidates {
		out[i] = dedup.SurgeryCandidate{
			ID: c.ID,
			Summary: dedup.SurgerySummary{
				Date:              c.Date,
				Type:              c.Type,
				InsuranceName:     c.InsuranceName,
				Hospital:          c.Hospital,
				MainSurgeon:       c.MainSurgeon,
				ProposedProcedure: c.ProposedProcedure,
			},
			Confidence: dedup.SurgeryConfidence{Score: c.Score},
		}
	}
	return out, nil
}

func (s *surgeries) Claim(ctx context.Context, id string) error {
	return s.c.do(ctx, "surgery.claim", http.MethodPost, "/api/v1/surgeries/"+url.PathEscape(id)+"/claim", nil, nil)
}

func (s *surgeries) Create(ctx context.Context, d dedup.SurgeryDraft) (dedup.Surgery, error) {
	var out dedup.Surgery
	err := s.c.do(ctx, "surgery.create", http.MethodPost, "/api/v1/surgeries", d, &out)
	return out, err
}

func (s *surgeries) Update(ctx context.Context, id string, d dedup.SurgeryDraft) (dedup.Surgery, error) {
	var out dedup.Surgery
	err := s.c.do(ctx, "surgery.update", http.MethodPut, "/api/v1/surgeries/"+url.PathEscape(id), d, &out)
	return out, err
}

func (s *surgeries) GetByID(ctx context.Context, id string) (dedup.Surgery, error) {
	var out dedup.Surgery
	err := s.c.do(ctx, "surgery.get", http.MethodGet, "/api/v1/surgeries/"+url.PathEscape(id), nil, &out)
	return out, err
}
