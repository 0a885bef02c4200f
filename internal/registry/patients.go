package registry

import (
	"context"
	"net/http"
	"net/url"

	"github.com/renandw/anesthesiaReports-sub000/internal/dedup"
)

type patients struct{ c *Client }

type patientCandidate struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	Sex              string `json:"sex"`
	BirthDate        string `json:"birth_date"`
	CNS              string `json:"cns"`
	MatchLevel       string `json:"match_level"`
	FingerprintMatch bool   `json:"fingerprint_match"`
}

func (p *patients) Precheck(ctx context.Context, d dedup.PatientDraft) ([]dedup.PatientCandidate, error) {
	var resp struct {
		Candidates []patientCandidate `json:"candidates"`
	}
	if err := p.c.do(ctx, "patient.precheck", http.MethodPost, "/api/v1/patients/precheck", d, &resp); err != nil {
		return nil, err
	}
	out := make([]dedup.PatientCandidate, len(resp.Candidates))
	for i, c := range resp.Candidates {
		out[i] = dedup.PatientCandidate{
			ID:      c.ID,
			Summary: dedup.PatientSummary{Name: c.Name, Sex: c.Sex, DateOfBirth: c.BirthDate, CNS: c.CNS},
			Confidence: dedup.PatientConfidence{
				Tier:             dedup.ParseTier(c.MatchLevel),
				FingerprintMatch: c.FingerprintMatch,
			},
		}
	}
	return out, nil
}

func (p *patients) Claim(ctx context.Context, id string) error {
	return p.c.do(ctx, "patient.claim", http.MethodPost, "/api/v1/patients/"+url.PathEscape(id)+"/claim", nil, nil)
}

func (p *patients) Create(ctx context.Context, d dedup.PatientDraft) (dedup.Patient, error) {
	var out dedup.Patient
	err := p.c.do(ctx, "patient.create", http.MethodPost, "/api/v1/patients", d, &out)
	return out, err
}

func (p *patients) Update(ctx context.Context, id string, d dedup.PatientDraft) (dedup.Patient, error) {
	var out dedup.Patient
	err := p.c.do(ctx, "patient.update", http.MethodPut, "/api/v1/patients/"+url.PathEscape(id), d, &out)
	return out, err
}

func (p *patients) GetByID(ctx context.Context, id string) (dedup.Patient, error) {
	var out dedup.Patient
	err := p.c.do(ctx, "patient.get", http.MethodGet, "/api/v1/patients/"+url.PathEscape(id), nil, &out)
	return out, err
}
