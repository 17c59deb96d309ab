package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

// Skipper exempts a request from authentication. The API wires it for the
// unauthenticated surface: /healthz and /metrics.
type Skipper func(r *http.Request) bool

// Middleware validates bearer tokens ahead of every handler and rejects with
// the same JSON error shape the handlers use.
type Middleware struct {
	Config  Config
	Skipper Skipper
}

// NewMiddleware constructs a middleware with optional skipper.
func NewMiddleware(cfg Config, skipper Skipper) Middleware {
	return Middleware{Config: cfg, Skipper: skipper}
}

// Wrap attaches the validated claims to the request context and passes it on,
// or rejects with 401 before the handler runs.
func (m Middleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.Skipper != nil && m.Skipper(r) {
			next.ServeHTTP(w, r)
			return
		}

		claims, err := m.parseRequest(r)
		if err != nil {
			rejectUnauthorized(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
	})
}

func (m Middleware) parseRequest(r *http.Request) (*Claims, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return nil, ErrMissingToken
	}
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return nil, ErrInvalidToken
	}
	return Parse(token, m.Config)
}

func rejectUnauthorized(w http.ResponseWriter, err error) {
	detail := "invalid bearer token"
	if errors.Is(err, ErrMissingToken) {
		detail = "missing bearer token"
	}

	w.Header().Set("WWW-Authenticate", `Bearer realm="healthsync"`)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"type":   "unauthorized",
		"detail": detail,
	})
}
