package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

var testConfig = Config{Secret: "test-secret", Issuer: "healthsync.identity"}

func signToken(t *testing.T, subject string, scopes []string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":    subject,
		"iss":    testConfig.Issuer,
		"exp":    time.Now().Add(time.Hour).Unix(),
		"scopes": scopes,
	})
	signed, err := token.SignedString([]byte(testConfig.Secret))
	require.NoError(t, err)
	return signed
}

func TestMiddlewareAttachesClaims(t *testing.T) {
	var got *Claims
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	mw := NewMiddleware(testConfig, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/sync", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "user-1", []string{ScopeSyncTrigger}))
	rec := httptest.NewRecorder()

	mw.Wrap(next).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, got)
	require.Equal(t, "user-1", got.Subject)
	require.True(t, got.HasScope(ScopeSyncTrigger))
}

func TestMiddlewareRejectsMissingTokenAsJSON(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run without a token")
	})

	mw := NewMiddleware(testConfig, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/daily-records", nil)
	rec := httptest.NewRecorder()

	mw.Wrap(next).ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	require.Contains(t, rec.Header().Get("WWW-Authenticate"), "healthsync")

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "unauthorized", body["type"])
	require.Equal(t, "missing bearer token", body["detail"])
}

func TestMiddlewareRejectsWrongIssuer(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-1",
		"iss": "someone-else",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testConfig.Secret))
	require.NoError(t, err)

	mw := NewMiddleware(testConfig, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/daily-records", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	rec := httptest.NewRecorder()

	mw.Wrap(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler must not run with a foreign issuer")
	})).ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMiddlewareSkipperBypassesAuth(t *testing.T) {
	mw := NewMiddleware(testConfig, func(r *http.Request) bool {
		return r.URL.Path == "/healthz"
	})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	mw.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}
