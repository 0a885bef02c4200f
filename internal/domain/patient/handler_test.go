package patient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/renandw/anesthesiaReports-sub000/internal/platform/auth"
)

func newTestHandler() (*Handler, *echo.Echo) {
	return NewHandler(newTestService()), echo.New()
}

func newContext(e *echo.Echo, method, body, user string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if user != "" {
		req = req.WithContext(auth.WithIdentity(req.Context(), user, auth.RoleAnesthesiologist))
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func expectHTTPStatus(t *testing.T, err error, code int) {
	t.Helper()
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T (%v)", err, err)
	}
	if httpErr.Code != code {
		t.Errorf("expected %d, got %d", code, httpErr.Code)
	}
}

const mariaJSON = `{"name":"maria silva","sex":"f","birth_date":"1979-09-21","cns":"700700935596176"}`

func TestHandler_Create(t *testing.T) {
	h, e := newTestHandler()
	c, rec := newContext(e, http.MethodPost, mariaJSON, "user-1")

	if err := h.Create(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	var p Patient
	if err := json.Unmarshal(rec.Body.Bytes(), &p); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if p.Name != "Maria Silva" {
		t.Errorf("expected normalized name, got %q", p.Name)
	}
	if strings.Contains(rec.Body.String(), "fingerprint") {
		t.Error("fingerprint must not be exposed")
	}
}

func TestHandler_Create_Invalid(t *testing.T) {
	h, e := newTestHandler()
	c, _ := newContext(e, http.MethodPost, `{"name":"Maria","sex":"f","birth_date":"1979-09-21","cns":"1"}`, "user-1")
	expectHTTPStatus(t, h.Create(c), http.StatusUnprocessableEntity)
}

func TestHandler_Create_NoCaller(t *testing.T) {
	h, e := newTestHandler()
	c, _ := newContext(e, http.MethodPost, mariaJSON, "")
	expectHTTPStatus(t, h.Create(c), http.StatusUnauthorized)
}

func TestHandler_Precheck(t *testing.T) {
	h, e := newTestHandler()
	if _, err := h.svc.Create(context.Background(), "other", Fields{Name: "Maria Silva", Sex: "f", BirthDate: "1979-09-21", CNS: "700700935596176"}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	c, rec := newContext(e, http.MethodPost, mariaJSON, "user-1")
	if err := h.Precheck(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var resp PrecheckResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(resp.Candidates) != 1 || resp.Candidates[0].MatchLevel != "strong" {
		t.Errorf("expected one strong candidate, got %+v", resp.Candidates)
	}
}

func TestHandler_Claim(t *testing.T) {
	h, e := newTestHandler()
	p, _ := h.svc.Create(context.Background(), "owner", mariaFields)

	claim := func() (*httptest.ResponseRecorder, error) {
		c, rec := newContext(e, http.MethodPost, "", "user-1")
		c.SetParamNames("id")
		c.SetParamValues(p.ID.String())
		return rec, h.Claim(c)
	}

	rec, err := claim()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}
	_, err = claim()
	expectHTTPStatus(t, err, http.StatusConflict)
}

func TestHandler_Claim_NotFound(t *testing.T) {
	h, e := newTestHandler()
	c, _ := newContext(e, http.MethodPost, "", "user-1")
	c.SetParamNames("id")
	c.SetParamValues(uuid.New().String())
	expectHTTPStatus(t, h.Claim(c), http.StatusNotFound)
}

func TestHandler_Get_Forbidden(t *testing.T) {
	h, e := newTestHandler()
	p, _ := h.svc.Create(context.Background(), "owner", mariaFields)

	c, _ := newContext(e, http.MethodGet, "", "stranger")
	c.SetParamNames("id")
	c.SetParamValues(p.ID.String())
	expectHTTPStatus(t, h.Get(c), http.StatusForbidden)
}

func TestHandler_Get_InvalidID(t *testing.T) {
	h, e := newTestHandler()
	c, _ := newContext(e, http.MethodGet, "", "user-1")
	c.SetParamNames("id")
	c.SetParamValues("not-a-uuid")
	expectHTTPStatus(t, h.Get(c), http.StatusBadRequest)
}

func TestHandler_Update(t *testing.T) {
	h, e := newTestHandler()
	p, _ := h.svc.Create(context.Background(), "user-1", mariaFields)

	c, rec := newContext(e, http.MethodPut, `{"name":"maria de souza","sex":"f","birth_date":"1979-09-21","cns":"700700935596176"}`, "user-1")
	c.SetParamNames("id")
	c.SetParamValues(p.ID.String())
	if err := h.Update(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got Patient
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if got.ID != p.ID || got.Name != "Maria de Souza" {
		t.Errorf("unexpected update result %+v", got)
	}
}

func TestHandler_List(t *testing.T) {
	h, e := newTestHandler()
	if _, err := h.svc.Create(context.Background(), "user-1", mariaFields); err != nil {
		t.Fatalf("seed: %v", err)
	}
	c, rec := newContext(e, http.MethodGet, "", "user-1")
	if err := h.List(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var resp struct {
		Data  []Patient `json:"data"`
		Total int       `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if resp.Total != 1 || len(resp.Data) != 1 {
		t.Errorf("expected one patient, got %+v", resp)
	}
}
