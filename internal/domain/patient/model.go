package patient

import (
	"time"

	"github.com/google/uuid"

	"github.com/renandw/anesthesiaReports-sub000/internal/dedup"
	"github.com/renandw/anesthesiaReports-sub000/internal/platform/match"
)

// Patient maps to the patients table.
type Patient struct {
	ID          uuid.UUID `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Sex         string    `db:"sex" json:"sex"`
	BirthDate   string    `db:"birth_date" json:"birth_date"`
	CNS         string    `db:"cns" json:"cns"`
	Fingerprint string    `db:"fingerprint" json:"-"`
	CreatedBy   string    `db:"created_by" json:"created_by"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// Fields are the identity fields a caller submits for precheck, create and update.
type Fields struct {
	Name      string `json:"name"`
	Sex       string `json:"sex"`
	BirthDate string `json:"birth_date"`
	CNS       string `json:"cns"`
}

// Normalize applies the same canonical form clients use before prechecking,
// so records never drift from what was matched against.
func (f Fields) Normalize() (Fields, error) {
	d, err := dedup.NormalizePatient(dedup.PatientForm{
		Name: f.Name, Sex: f.Sex, DateOfBirth: f.BirthDate, CNS: f.CNS,
	})
	if err != nil {
		return Fields{}, err
	}
	return Fields{Name: d.Name, Sex: d.Sex, BirthDate: d.DateOfBirth, CNS: d.CNS}, nil
}

func (f Fields) identity() match.Identity {
	return match.Identity{Name: f.Name, Sex: f.Sex, BirthDate: f.BirthDate, CNS: f.CNS}
}

func (p *Patient) identity() match.Identity {
	return match.Identity{Name: p.Name, Sex: p.Sex, BirthDate: p.BirthDate, CNS: p.CNS}
}

func (p *Patient) apply(f Fields) {
	p.Name, p.Sex, p.BirthDate, p.CNS = f.Name, f.Sex, f.BirthDate, f.CNS
	p.Fingerprint = match.Fingerprint(f.identity())
}

// Candidate is a possible duplicate returned by precheck.
type Candidate struct {
	ID               uuid.UUID `json:"id"`
	Name             string    `json:"name"`
	Sex              string    `json:"sex"`
	BirthDate        string    `json:"birth_date"`
	CNS              string    `json:"cns"`
	MatchLevel       string    `json:"match_level"`
	FingerprintMatch bool      `json:"fingerprint_match"`
	Score            float64   `json:"score"`
}

type PrecheckResponse struct {
	Candidates []Candidate `json:"candidates"`
}
