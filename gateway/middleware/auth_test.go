package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret"

var testNow = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func newTestAuthenticator() *Authenticator {
	return NewAuthenticator(AuthConfig{
		Enabled:    true,
		HMACSecret: testSecret,
		Issuer:     "cdp",
		Audience:   "gateway",
		now:        func() time.Time { return testNow },
	}, nil)
}

func TestAuthenticatorSetsSubject(t *testing.T) {
	auth := newTestAuthenticator()
	var subject string
	handler := auth.Middleware("tx:submit")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject, _ = Subject(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	token := signToken(t, jwt.MapClaims{
		"sub":   "0x0000000000000000000000000000000000000b0b",
		"iss":   "cdp",
		"aud":   []interface{}{"gateway"},
		"scope": "tx:submit read",
		"exp":   float64(testNow.Add(time.Hour).Unix()),
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/tx", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected authorised request, got %d: %s", res.Code, res.Body.String())
	}
	if subject != "0x0000000000000000000000000000000000000b0b" {
		t.Fatalf("unexpected subject %q", subject)
	}
}

func TestAuthenticatorRejects(t *testing.T) {
	auth := newTestAuthenticator()
	handler := auth.Middleware("tx:submit")(okHandler())
	valid := jwt.MapClaims{"sub": "0x1", "iss": "cdp", "aud": "gateway", "scope": "tx:submit", "exp": float64(testNow.Add(time.Hour).Unix())}

	with := func(mutate func(jwt.MapClaims)) string {
		claims := jwt.MapClaims{}
		for k, v := range valid {
			claims[k] = v
		}
		mutate(claims)
		return signToken(t, claims)
	}
	cases := []struct {
		name   string
		header string
		status int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc", http.StatusUnauthorized},
		{"garbage", "Bearer abc", http.StatusUnauthorized},
		{"wrong issuer", "Bearer " + with(func(c jwt.MapClaims) { c["iss"] = "other" }), http.StatusUnauthorized},
		{"wrong audience", "Bearer " + with(func(c jwt.MapClaims) { c["aud"] = "other" }), http.StatusUnauthorized},
		{"expired", "Bearer " + with(func(c jwt.MapClaims) { c["exp"] = float64(testNow.Add(-time.Hour).Unix()) }), http.StatusUnauthorized},
		{"missing scope", "Bearer " + with(func(c jwt.MapClaims) { c["scope"] = "read" }), http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/v1/tx", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			res := httptest.NewRecorder()
			handler.ServeHTTP(res, req)
			if res.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, res.Code)
			}
		})
	}
}

func TestAuthenticatorDisabledPassesThrough(t *testing.T) {
	auth := NewAuthenticator(AuthConfig{}, nil)
	res := httptest.NewRecorder()
	auth.Middleware("tx:submit")(okHandler()).ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/v1/tx", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("expected disabled auth to pass, got %d", res.Code)
	}
}

func TestRequestIDs(t *testing.T) {
	var seen string
	handler := RequestIDs(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestID(r.Context())
	}))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/", nil))
	if seen == "" || res.Header().Get(requestIDHeader) != seen {
		t.Fatalf("expected generated request id, got %q", seen)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(requestIDHeader, "123e4567-e89b-12d3-a456-426614174000")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if seen != "123e4567-e89b-12d3-a456-426614174000" {
		t.Fatalf("expected client request id to be kept, got %q", seen)
	}
}
