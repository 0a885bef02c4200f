package dedup

import (
	"cmp"
	"fmt"
	"strings"
	"time"
)

// PatientForm is raw patient input as typed by a user or an import.
type PatientForm struct {
	Name        string `json:"name"`
	Sex         string `json:"sex"`
	DateOfBirth string `json:"birth_date"`
	CNS         string `json:"cns"`
}

// PatientDraft is the normalized identity the registry matches against.
type PatientDraft struct {
	Name        string `json:"name"`
	Sex         string `json:"sex"`
	DateOfBirth string `json:"birth_date"`
	CNS         string `json:"cns"`
}

// Patient is the registry's canonical patient record.
type Patient struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Sex         string    `json:"sex"`
	DateOfBirth string    `json:"birth_date"`
	CNS         string    `json:"cns"`
	CreatedBy   string    `json:"created_by,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (p Patient) EntityID() string { return p.ID }

const (
	SexMale   = "male"
	SexFemale = "female"
)

var sexAliases = map[string]string{
	"m": SexMale, "male": SexMale, "masculino": SexMale,
	"f": SexFemale, "female": SexFemale, "feminino": SexFemale,
}

// NormalizePatient canonicalizes a patient form. It never touches the network.
func NormalizePatient(f PatientForm) (PatientDraft, error) {
	name, err := normalizeFullName("name", f.Name)
	if err != nil {
		return PatientDraft{}, err
	}
	sex, err := normalizeChoice("sex", f.Sex, sexAliases)
	if err != nil {
		return PatientDraft{}, err
	}
	dob, err := normalizeDate("birth_date", f.DateOfBirth)
	if err != nil {
		return PatientDraft{}, err
	}
	cns, err := digitsOnly("cns", f.CNS, CNSLength)
	if err != nil {
		return PatientDraft{}, err
	}
	return PatientDraft{Name: name, Sex: sex, DateOfBirth: dob, CNS: cns}, nil
}

// Tier is the server-assigned confidence grade of a patient candidate.
// Higher values rank first.
type Tier int

const (
	TierUnknown Tier = iota
	TierPossible
	TierWeak
	TierStrong
)

func (t Tier) String() string {
	switch t {
	case TierStrong:
		return "strong"
	case TierWeak:
		return "weak"
	case TierPossible:
		return "possible"
	default:
		return "unknown"
	}
}

// ParseTier maps a wire value to a Tier. Unrecognized values become
// TierUnknown so the candidate is still shown, ranked last.
func ParseTier(s string) Tier {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "strong":
		return TierStrong
	case "weak":
		return TierWeak
	case "possible":
		return TierPossible
	default:
		return TierUnknown
	}
}

func (t Tier) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *Tier) UnmarshalText(b []byte) error {
	*t = ParseTier(string(b))
	return nil
}

// PatientConfidence is the tier plus the independent exact-fingerprint flag.
type PatientConfidence struct {
	Tier             Tier `json:"tier"`
	FingerprintMatch bool `json:"fingerprint_match"`
}

// PatientSummary is the part of a candidate shown next to the draft.
type PatientSummary struct {
	Name        string `json:"name"`
	Sex         string `json:"sex"`
	DateOfBirth string `json:"birth_date"`
	CNS         string `json:"cns,omitempty"`
}

// PatientCandidate is an existing patient the registry considers a match.
type PatientCandidate struct {
	ID         string            `json:"id"`
	Summary    PatientSummary    `json:"summary"`
	Confidence PatientConfidence `json:"confidence"`
}

func (c PatientCandidate) CandidateID() string { return c.ID }

func (c PatientCandidate) String() string {
	fp := ""
	if c.Confidence.FingerprintMatch {
		fp = ", exact"
	}
	return fmt.Sprintf("%s %s (%s, %s) [%s%s]", c.ID, c.Summary.Name, c.Summary.Sex,
		c.Summary.DateOfBirth, c.Confidence.Tier, fp)
}

// comparePatientCandidates orders by tier, then fingerprint matches first.
func comparePatientCandidates(a, b PatientCandidate) int {
	if c := cmp.Compare(b.Confidence.Tier, a.Confidence.Tier); c != 0 {
		return c
	}
	return cmp.Compare(boolRank(b.Confidence.FingerprintMatch), boolRank(a.Confidence.FingerprintMatch))
}

// ClassifyPatients returns candidates in presentation order.
func ClassifyPatients(raw []PatientCandidate) []PatientCandidate {
	return classify(raw, comparePatientCandidates)
}

// PatientKind wires the patient field set into the generic workflow.
var PatientKind = EntityKind[PatientForm, PatientDraft, PatientCandidate]{
	Name:      "patient",
	Normalize: NormalizePatient,
	Classify:  ClassifyPatients,
}

type (
	PatientRegistry = Registry[PatientDraft, PatientCandidate, Patient]
	PatientWorkflow = Workflow[PatientForm, PatientDraft, PatientCandidate, Patient]
	PatientDecider  = Decider[PatientDraft, PatientCandidate]
	PatientEvent    = Event[PatientCandidate, Patient]
	PatientConfig   = Config[PatientDraft, PatientCandidate, Patient]
)

// NewPatientWorkflow builds the create-or-claim workflow for patients.
func NewPatientWorkflow(reg PatientRegistry, cfg PatientConfig) *PatientWorkflow {
	return New(PatientKind, reg, cfg)
}
