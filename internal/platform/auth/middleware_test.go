package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

var testSigningKey = []byte("test-secret-key-for-unit-tests-only")

func createTestToken(t *testing.T, claims Claims, key []byte) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenStr, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return tokenStr
}

func runMiddleware(t *testing.T, mw echo.MiddlewareFunc, header string) (context.Context, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var seen context.Context
	err := mw(func(c echo.Context) error {
		seen = c.Request().Context()
		return c.String(http.StatusOK, "ok")
	})(c)
	return seen, err
}

func expectStatus(t *testing.T, err error, code int) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %d error, got nil", code)
	}
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	if httpErr.Code != code {
		t.Errorf("expected %d, got %d", code, httpErr.Code)
	}
}

func TestJWTMiddleware_MissingHeader(t *testing.T) {
	_, err := runMiddleware(t, JWTMiddleware(JWTConfig{SigningKey: testSigningKey}), "")
	expectStatus(t, err, http.StatusUnauthorized)
}

func TestJWTMiddleware_InvalidFormat(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"no bearer prefix", "Token abc123"},
		{"missing token", "Bearer"},
		{"empty value", "Bearer "},
		{"basic auth", "Basic dXNlcjpwYXNz"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runMiddleware(t, JWTMiddleware(JWTConfig{SigningKey: testSigningKey}), tt.header)
			expectStatus(t, err, http.StatusUnauthorized)
		})
	}
}

func TestJWTMiddleware_ValidToken(t *testing.T) {
	tok := createTestToken(t, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-42",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Roles: []string{RoleAnesthesiologist},
	}, testSigningKey)

	ctx, err := runMiddleware(t, JWTMiddleware(JWTConfig{SigningKey: testSigningKey}), "Bearer "+tok)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := UserIDFromContext(ctx); got != "user-42" {
		t.Errorf("expected user-42, got %q", got)
	}
	if roles := RolesFromContext(ctx); len(roles) != 1 || roles[0] != RoleAnesthesiologist {
		t.Errorf("unexpected roles %v", roles)
	}
	if got := TokenFromContext(ctx); got != tok {
		t.Error("expected raw token on context")
	}
}

func TestJWTMiddleware_WrongKey(t *testing.T) {
	tok := createTestToken(t, Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "user-42"}}, []byte("other-key"))
	_, err := runMiddleware(t, JWTMiddleware(JWTConfig{SigningKey: testSigningKey}), "Bearer "+tok)
	expectStatus(t, err, http.StatusUnauthorized)
}

func TestJWTMiddleware_Expired(t *testing.T) {
	tok := createTestToken(t, Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "user-42",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
	}}, testSigningKey)
	_, err := runMiddleware(t, JWTMiddleware(JWTConfig{SigningKey: testSigningKey}), "Bearer "+tok)
	expectStatus(t, err, http.StatusUnauthorized)
}

func TestJWTMiddleware_MissingSubject(t *testing.T) {
	tok := createTestToken(t, Claims{Roles: []string{RoleAdmin}}, testSigningKey)
	_, err := runMiddleware(t, JWTMiddleware(JWTConfig{SigningKey: testSigningKey}), "Bearer "+tok)
	expectStatus(t, err, http.StatusUnauthorized)
}

func TestJWTMiddleware_IssuerMismatch(t *testing.T) {
	tok := createTestToken(t, Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "u", Issuer: "someone-else"}}, testSigningKey)
	_, err := runMiddleware(t, JWTMiddleware(JWTConfig{SigningKey: testSigningKey, Issuer: "anesthesia-reports"}), "Bearer "+tok)
	expectStatus(t, err, http.StatusUnauthorized)
}

func TestDevAuthMiddleware_Defaults(t *testing.T) {
	ctx, err := runMiddleware(t, DevAuthMiddleware(JWTConfig{SigningKey: testSigningKey}), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := UserIDFromContext(ctx); got != "dev-user" {
		t.Errorf("expected dev-user, got %q", got)
	}
}

func TestDevAuthMiddleware_ValidatesPresentedToken(t *testing.T) {
	_, err := runMiddleware(t, DevAuthMiddleware(JWTConfig{SigningKey: testSigningKey}), "Bearer garbage")
	expectStatus(t, err, http.StatusUnauthorized)
}

func TestCheckExpiry(t *testing.T) {
	now := time.Now()
	live, err := Issue(JWTConfig{SigningKey: testSigningKey}, "u", nil, time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if err := CheckExpiry(live, now); err != nil {
		t.Errorf("expected live token, got %v", err)
	}
	if err := CheckExpiry(live, now.Add(2*time.Hour)); err != ErrTokenExpired {
		t.Errorf("expected ErrTokenExpired, got %v", err)
	}
	if err := CheckExpiry("not-a-jwt", now); err == nil {
		t.Error("expected parse error")
	}
}

func TestTokenSources(t *testing.T) {
	if _, err := StaticToken("").Token(context.Background()); err != ErrNoToken {
		t.Errorf("expected ErrNoToken, got %v", err)
	}
	ctx := WithToken(context.Background(), "abc")
	if tok, err := (ForwardedToken{}).Token(ctx); err != nil || tok != "abc" {
		t.Errorf("expected forwarded token, got %q %v", tok, err)
	}
	if _, err := (ForwardedToken{}).Token(context.Background()); err != ErrNoToken {
		t.Errorf("expected ErrNoToken, got %v", err)
	}
}

func TestIssue_AcceptedByMiddleware(t *testing.T) {
	cfg := JWTConfig{Issuer: "anesthesia-reports", Audience: "registry", SigningKey: testSigningKey}
	tok, err := Issue(cfg, "dr-lima", []string{RoleAnesthesiologist}, time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	ctx, err := runMiddleware(t, JWTMiddleware(cfg), "Bearer "+tok)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := UserIDFromContext(ctx); got != "dr-lima" {
		t.Errorf("expected dr-lima, got %q", got)
	}
	if got := TokenFromContext(ctx); got != tok {
		t.Error("expected the raw token to be kept for forwarding")
	}
}
