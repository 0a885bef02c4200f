package patient

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/renandw/anesthesiaReports-sub000/internal/platform/match"
)

func newTestService() *Service {
	return NewService(NewMemoryRepo())
}

var mariaFields = Fields{Name: "maria silva", Sex: "F", BirthDate: "1979-09-21", CNS: "700 7009 3559 6176"}

func TestService_CreateNormalizes(t *testing.T) {
	svc := newTestService()
	p, err := svc.Create(context.Background(), "user-1", mariaFields)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.ID == uuid.Nil {
		t.Error("expected ID to be set")
	}
	if p.Name != "Maria Silva" || p.Sex != "female" || p.CNS != "700700935596176" {
		t.Errorf("fields not normalized: %+v", p)
	}
	if p.Fingerprint == "" {
		t.Error("expected fingerprint")
	}
	if p.CreatedBy != "user-1" {
		t.Errorf("expected created_by user-1, got %q", p.CreatedBy)
	}
}

func TestService_CreateInvalid(t *testing.T) {
	svc := newTestService()
	f := mariaFields
	f.Name = "Maria"
	_, err := svc.Create(context.Background(), "user-1", f)
	if !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

func TestService_PrecheckGrades(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	same, _ := svc.Create(ctx, "user-2", mariaFields)
	sameDemographics := mariaFields
	sameDemographics.CNS = "898001160218283"
	weak, _ := svc.Create(ctx, "user-3", sameDemographics)
	unrelated := Fields{Name: "Pedro Oliveira", Sex: "m", BirthDate: "1979-09-21", CNS: "111111111111111"}
	if _, err := svc.Create(ctx, "user-4", unrelated); err != nil {
		t.Fatalf("create: %v", err)
	}

	cands, err := svc.Precheck(ctx, mariaFields)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cands) != 2 {
		t.Fatalf("expected 2 candidates, got %d: %+v", len(cands), cands)
	}
	if cands[0].ID != same.ID || cands[0].MatchLevel != match.TierStrong || !cands[0].FingerprintMatch {
		t.Errorf("expected exact record first as strong fingerprint match, got %+v", cands[0])
	}
	if cands[1].ID != weak.ID || cands[1].MatchLevel != match.TierWeak || !cands[1].FingerprintMatch {
		t.Errorf("expected same-demographics record second as weak, got %+v", cands[1])
	}
}

func TestService_PrecheckEmpty(t *testing.T) {
	cands, err := newTestService().Precheck(context.Background(), mariaFields)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cands == nil || len(cands) != 0 {
		t.Errorf("expected empty non-nil slice, got %#v", cands)
	}
}

func TestService_ClaimIsIdempotent(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	p, _ := svc.Create(ctx, "owner", mariaFields)

	if _, err := svc.Get(ctx, "other", p.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden before claim, got %v", err)
	}
	if err := svc.Claim(ctx, "other", p.ID); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := svc.Claim(ctx, "other", p.ID); !errors.Is(err, ErrAlreadyClaimed) {
		t.Fatalf("expected ErrAlreadyClaimed on second claim, got %v", err)
	}
	got, err := svc.Get(ctx, "other", p.ID)
	if err != nil {
		t.Fatalf("get after claim: %v", err)
	}
	if *got != *p {
		t.Errorf("claim must not change the record: %+v vs %+v", got, p)
	}
	if err := svc.Claim(ctx, "owner", p.ID); !errors.Is(err, ErrAlreadyClaimed) {
		t.Errorf("creator already holds access, got %v", err)
	}
}

func TestService_ClaimUnknown(t *testing.T) {
	err := newTestService().Claim(context.Background(), "u", uuid.New())
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestService_UpdateRequiresAccess(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	p, _ := svc.Create(ctx, "owner", mariaFields)

	changed := mariaFields
	changed.Name = "Maria Aparecida Silva"
	if _, err := svc.Update(ctx, "stranger", p.ID, changed); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	up, err := svc.Update(ctx, "owner", p.ID, changed)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if up.Name != "Maria Aparecida Silva" {
		t.Errorf("expected updated name, got %q", up.Name)
	}
	if up.Fingerprint == p.Fingerprint {
		t.Error("expected fingerprint to follow the new name")
	}
}

func TestService_ListOnlyAccessible(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	a, _ := svc.Create(ctx, "u1", mariaFields)
	if _, err := svc.Create(ctx, "u2", Fields{Name: "Ana Souza", Sex: "f", BirthDate: "1990-01-01", CNS: "111111111111111"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	items, total, err := svc.List(ctx, "u1", 20, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 1 || len(items) != 1 || items[0].ID != a.ID {
		t.Errorf("expected only u1's patient, got total=%d items=%v", total, items)
	}
}
