package dedup

import (
	"cmp"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SurgeryForm is raw surgery input as typed by a user.
type SurgeryForm struct {
	PatientID         string `json:"patient_id"`
	Date              string `json:"date"`
	Type              string `json:"type"`
	InsuranceName     string `json:"insurance_name"`
	Hospital          string `json:"hospital"`
	MainSurgeon       string `json:"main_surgeon"`
	ProposedProcedure string `json:"proposed_procedure"`
}

// SurgeryDraft is the normalized surgery the registry matches against.
type SurgeryDraft struct {
	PatientID         string `json:"patient_id"`
	Date              string `json:"date"`
	Type              string `json:"type"`
	InsuranceName     string `json:"insurance_name,omitempty"`
	Hospital          string `json:"hospital"`
	MainSurgeon       string `json:"main_surgeon"`
	ProposedProcedure string `json:"proposed_procedure"`
}

// Surgery is the registry's canonical surgery record.
type Surgery struct {
	ID                string    `json:"id"`
	PatientID         string    `json:"patient_id"`
	Date              string    `json:"date"`
	Type              string    `json:"type"`
	InsuranceName     string    `json:"insurance_name,omitempty"`
	Hospital          string    `json:"hospital"`
	MainSurgeon       string    `json:"main_surgeon"`
	ProposedProcedure string    `json:"proposed_procedure"`
	CreatedBy         string    `json:"created_by,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func (s Surgery) EntityID() string { return s.ID }

const (
	SurgeryInsurance = "insurance"
	SurgeryPublic    = "public"
)

var surgeryTypeAliases = map[string]string{
	"insurance": SurgeryInsurance, "convenio": SurgeryInsurance, "convênio": SurgeryInsurance,
	"public": SurgeryPublic, "sus": SurgeryPublic,
}

// NormalizeSurgery canonicalizes a surgery form. The insurer is required for
// insurance surgeries and dropped for public ones.
func NormalizeSurgery(f SurgeryForm) (SurgeryDraft, error) {
	var d SurgeryDraft
	pid, err := requireText("patient_id", f.PatientID)
	if err != nil {
		return d, err
	}
	if _, err := uuid.Parse(pid); err != nil {
		return d, validationError("patient_id", errors.New("is not a valid reference"))
	}
	d.PatientID = pid
	if d.Date, err = normalizeDate("date", f.Date); err != nil {
		return d, err
	}
	if d.Type, err = normalizeChoice("type", f.Type, surgeryTypeAliases); err != nil {
		return d, err
	}
	if d.Type == SurgeryInsurance {
		if d.InsuranceName, err = requireText("insurance_name", f.InsuranceName); err != nil {
			return d, err
		}
	}
	if d.Hospital, err = requireText("hospital", f.Hospital); err != nil {
		return d, err
	}
	surgeon, err := requireText("main_surgeon", f.MainSurgeon)
	if err != nil {
		return d, err
	}
	d.MainSurgeon = titleWords(surgeon)
	procedure, err := requireText("proposed_procedure", f.ProposedProcedure)
	if err != nil {
		return d, err
	}
	d.ProposedProcedure = capitalizeFirst(procedure)
	return d, nil
}

// MaxSurgeryScore is the number of discriminating fields the registry compares.
const MaxSurgeryScore = 6

// SurgeryConfidence counts the discriminating fields equal to the draft.
type SurgeryConfidence struct {
	Score int `json:"score"`
}

// SurgerySummary is the part of a candidate shown next to the draft.
type SurgerySummary struct {
	Date              string `json:"date"`
	Type              string `json:"type"`
	InsuranceName     string `json:"insurance_name,omitempty"`
	Hospital          string `json:"hospital"`
	MainSurgeon       string `json:"main_surgeon"`
	ProposedProcedure string `json:"proposed_procedure"`
}

// SurgeryCandidate is an existing surgery of the same patient that may be
// the one being entered.
type SurgeryCandidate struct {
	ID         string            `json:"id"`
	Summary    SurgerySummary    `json:"summary"`
	Confidence SurgeryConfidence `json:"confidence"`
}

func (c SurgeryCandidate) CandidateID() string { return c.ID }

func (c SurgeryCandidate) String() string {
	return fmt.Sprintf("%s %s %s at %s by %s [%d/%d]", c.ID, c.Summary.Date, c.Summary.ProposedProcedure,
		c.Summary.Hospital, c.Summary.MainSurgeon, c.Confidence.Score, MaxSurgeryScore)
}

func compareSurgeryCandidates(a, b SurgeryCandidate) int {
	return cmp.Compare(b.Confidence.Score, a.Confidence.Score)
}

// ClassifySurgeries clamps scores into 0..MaxSurgeryScore and orders by score.
func ClassifySurgeries(raw []SurgeryCandidate) []SurgeryCandidate {
	clamped := make([]SurgeryCandidate, len(raw))
	for i, c := range raw {
		c.Confidence.Score = max(0, min(c.Confidence.Score, MaxSurgeryScore))
		clamped[i] = c
	}
	return classify(clamped, compareSurgeryCandidates)
}

// SurgeryKind wires surgery normalization and ordering into the workflow.
var SurgeryKind = EntityKind[SurgeryForm, SurgeryDraft, SurgeryCandidate]{
	Name:      "surgery",
	Normalize: NormalizeSurgery,
	Classify:  ClassifySurgeries,
}

type (
	SurgeryRegistry = Registry[SurgeryDraft, SurgeryCandidate, Surgery]
	SurgeryWorkflow = Workflow[SurgeryForm, SurgeryDraft, SurgeryCandidate, Surgery]
	SurgeryDecider  = Decider[SurgeryDraft, SurgeryCandidate]
	SurgeryEvent    = Event[SurgeryCandidate, Surgery]
	SurgeryConfig   = Config[SurgeryDraft, SurgeryCandidate, Surgery]
)

// NewSurgeryWorkflow builds the create-or-claim workflow for surgeries.
func NewSurgeryWorkflow(reg SurgeryRegistry, cfg SurgeryConfig) *SurgeryWorkflow {
	return New(SurgeryKind, reg, cfg)
}
