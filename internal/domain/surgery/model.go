package surgery

import (
	"time"

	"github.com/google/uuid"

	"github.com/renandw/anesthesiaReports-sub000/internal/dedup"
	"github.com/renandw/anesthesiaReports-sub000/internal/platform/match"
)

// Surgery maps to the surgeries table.
type Surgery struct {
	ID                uuid.UUID `db:"id" json:"id"`
	PatientID         uuid.UUID `db:"patient_id" json:"patient_id"`
	Date              string    `db:"date" json:"date"`
	Type              string    `db:"type" json:"type"`
	InsuranceName     string    `db:"insurance_name" json:"insurance_name,omitempty"`
	Hospital          string    `db:"hospital" json:"hospital"`
	MainSurgeon       string    `db:"main_surgeon" json:"main_surgeon"`
	ProposedProcedure string    `db:"proposed_procedure" json:"proposed_procedure"`
	CreatedBy         string    `db:"created_by" json:"created_by"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}

type Fields struct {
	PatientID         string `json:"patient_id"`
	Date              string `json:"date"`
	Type              string `json:"type"`
	InsuranceName     string `json:"insurance_name"`
	Hospital          string `json:"hospital"`
	MainSurgeon       string `json:"main_surgeon"`
	ProposedProcedure string `json:"proposed_procedure"`
}

// Normalize canonicalizes f with the rules clients apply before prechecking.
func (f Fields) Normalize() (Fields, error) {
	d, err := dedup.NormalizeSurgery(dedup.SurgeryForm(f))
	if err != nil {
		return Fields{}, err
	}
	return Fields(d), nil
}

func (s *Surgery) apply(f Fields, patientID uuid.UUID) {
	s.PatientID = patientID
	s.Date, s.Type, s.InsuranceName = f.Date, f.Type, f.InsuranceName
	s.Hospital, s.MainSurgeon, s.ProposedProcedure = f.Hospital, f.MainSurgeon, f.ProposedProcedure
}

// score counts the discriminating fields s shares with f, 0..6. Free text
// is compared ignoring case, accents and spacing.
func score(f Fields, s *Surgery) int {
	n := 0
	if f.Date == s.Date {
		n++
	}
	if f.Type == s.Type {
		n++
	}
	if f.InsuranceName == s.InsuranceName {
		n++
	}
	for _, pair := range [][2]string{
		{f.Hospital, s.Hospital},
		{f.MainSurgeon, s.MainSurgeon},
		{f.ProposedProcedure, s.ProposedProcedure},
	} {
		if match.SameText(pair[0], pair[1]) {
			n++
		}
	}
	return n
}

type Candidate struct {
	ID                uuid.UUID `json:"id"`
	PatientID         uuid.UUID `json:"patient_id"`
	Date              string    `json:"date"`
	Type              string    `json:"type"`
	InsuranceName     string    `json:"insurance_name,omitempty"`
	Hospital          string    `json:"hospital"`
	MainSurgeon       string    `json:"main_surgeon"`
	ProposedProcedure string    `json:"proposed_procedure"`
	Score             int       `json:"score"`
}

type PrecheckResponse struct {
	Candidates []Candidate `json:"candidates"`
}
