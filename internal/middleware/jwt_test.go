package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

const testSecret = "test-secret"

func signToken(t *testing.T, claims jwt.MapClaims, secret string) string {
	t.Helper()
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return raw
}

func runJWT(t *testing.T, authHeader string) (*httptest.ResponseRecorder, string) {
	t.Helper()
	e := echo.New()
	var seenUserID string
	h := JWTAuth(testSecret)(func(c echo.Context) error {
		seenUserID = UserID(c)
		return c.NoContent(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	if err := h(e.NewContext(req, rec)); err != nil {
		t.Fatalf("handler: %v", err)
	}
	return rec, seenUserID
}

func TestJWTAuthAcceptsValidToken(t *testing.T) {
	t.Parallel()
	token := signToken(t, jwt.MapClaims{"sub": "42"}, testSecret)
	rec, userID := runJWT(t, "Bearer "+token)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rec.Code)
	}
	if userID != "42" {
		t.Fatalf("user_id: got %q, want 42", userID)
	}
}

func TestJWTAuthNormalizesNumericSubject(t *testing.T) {
	t.Parallel()
	token := signToken(t, jwt.MapClaims{"sub": 42}, testSecret)
	rec, userID := runJWT(t, "Bearer "+token)
	if rec.Code != http.StatusOK || userID != "42" {
		t.Fatalf("numeric sub: got status %d, user %q", rec.Code, userID)
	}
}

func TestJWTAuthRejectsBadRequests(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"not bearer", "Basic abc"},
		{"garbage token", "Bearer not.a.jwt"},
		{"wrong secret", "Bearer " + signToken(t, jwt.MapClaims{"sub": "42"}, "other-secret")},
		{"missing subject", "Bearer " + signToken(t, jwt.MapClaims{"role": "x"}, testSecret)},
	}
	for _, c := range cases {
		rec, _ := runJWT(t, c.header)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s: got %d, want 401", c.name, rec.Code)
		}
	}
}
