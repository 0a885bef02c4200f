package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/renandw/anesthesiaReports-sub000/internal/dedup"
)

func TestParseDecision(t *testing.T) {
	ids := []string{"p-1", "p-2"}
	tests := []struct {
		line string
		want dedup.Intent
	}{
		{"create", dedup.Intent{Action: dedup.ActionCreateNew}},
		{"create confirm", dedup.CreateAnyway()},
		{"  NEW CONFIRM ", dedup.CreateAnyway()},
		{"adopt 2", dedup.AdoptExisting("p-2")},
		{"update 1", dedup.AdoptAndUpdate("p-1")},
		{"adopt p-9", dedup.AdoptExisting("p-9")},
	}
	for _, tt := range tests {
		got, err := parseDecision(tt.line, ids)
		if err != nil {
			t.Fatalf("%q: unexpected error: %v", tt.line, err)
		}
		if got != tt.want {
			t.Errorf("%q: got %v, want %v", tt.line, got, tt.want)
		}
	}

	for _, bad := range []string{"", "merge 1", "adopt", "adopt 3", "update 0", "create 1"} {
		if _, err := parseDecision(bad, ids); err == nil {
			t.Errorf("%q: expected error", bad)
		}
	}
	if _, err := parseDecision("quit", ids); !errors.Is(err, dedup.ErrNoDecision) {
		t.Errorf("quit: got %v, want ErrNoDecision", err)
	}
}

func TestPromptDecider_RetriesUntilValid(t *testing.T) {
	var out bytes.Buffer
	decide := promptDecider[dedup.PatientDraft, dedup.PatientCandidate](strings.NewReader("merge\nadopt 5\nupdate 2\n"), &out)

	intent, err := decide(context.Background(), dedup.Decision[dedup.PatientDraft, dedup.PatientCandidate]{
		Kind: "patient",
		Candidates: []dedup.PatientCandidate{
			{ID: "a", Summary: dedup.PatientSummary{Name: "Maria Silva"}},
			{ID: "b", Summary: dedup.PatientSummary{Name: "Maria S. Silva"}},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if intent != dedup.AdoptAndUpdate("b") {
		t.Errorf("got %v, want adopt_and_update(b)", intent)
	}
	if !strings.Contains(out.String(), "2) b Maria S. Silva") {
		t.Errorf("candidates not listed:\n%s", out.String())
	}
	if !strings.Contains(out.String(), "between 1 and 2") {
		t.Errorf("out of range answer not reported:\n%s", out.String())
	}
}

func TestPromptDecider_EOFIsNoDecision(t *testing.T) {
	decide := promptDecider[dedup.SurgeryDraft, dedup.SurgeryCandidate](strings.NewReader(""), &bytes.Buffer{})
	_, err := decide(context.Background(), dedup.Decision[dedup.SurgeryDraft, dedup.SurgeryCandidate]{
		Candidates: []dedup.SurgeryCandidate{{ID: "s"}},
	})
	if !errors.Is(err, dedup.ErrNoDecision) {
		t.Fatalf("got %v, want ErrNoDecision", err)
	}
}

func strongCandidate() dedup.Decision[dedup.PatientDraft, dedup.PatientCandidate] {
	return dedup.Decision[dedup.PatientDraft, dedup.PatientCandidate]{
		Kind: "patient",
		Candidates: []dedup.PatientCandidate{{
			ID:         "a",
			Summary:    dedup.PatientSummary{Name: "Maria Silva"},
			Confidence: dedup.PatientConfidence{Tier: dedup.TierStrong},
		}},
	}
}

func TestPromptDecider_CreateNeedsConfirmation(t *testing.T) {
	var out bytes.Buffer
	decide := promptDecider[dedup.PatientDraft, dedup.PatientCandidate](strings.NewReader("create\nn\nadopt 1\n"), &out)

	intent, err := decide(context.Background(), strongCandidate())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if intent != dedup.AdoptExisting("a") {
		t.Errorf("got %v, want adopt_existing(a) after declining the create", intent)
	}
	if !strings.Contains(out.String(), "[y/N]") {
		t.Errorf("confirmation was not asked:\n%s", out.String())
	}
}

func TestPromptDecider_ConfirmedCreate(t *testing.T) {
	decide := promptDecider[dedup.PatientDraft, dedup.PatientCandidate](strings.NewReader("create\nyes\n"), &bytes.Buffer{})

	intent, err := decide(context.Background(), strongCandidate())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if intent != dedup.CreateAnyway() {
		t.Errorf("got %v, want a confirmed create", intent)
	}
}

func TestPromptDecider_EOFDuringConfirmation(t *testing.T) {
	decide := promptDecider[dedup.PatientDraft, dedup.PatientCandidate](strings.NewReader("create\n"), &bytes.Buffer{})

	intent, err := decide(context.Background(), strongCandidate())
	if !errors.Is(err, dedup.ErrNoDecision) {
		t.Fatalf("got %v, %v; want ErrNoDecision", intent, err)
	}
}
