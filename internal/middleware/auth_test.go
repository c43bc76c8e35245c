package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/vestetec-system/internal/token"
)

type stubValidator struct {
	claims *token.Claims
	err    error
	got    string
}

func (v *stubValidator) ValidateToken(_ context.Context, raw string) (*token.Claims, error) {
	v.got = raw
	return v.claims, v.err
}

func TestAuthMiddleware_WithValidToken(t *testing.T) {
	v := &stubValidator{claims: &token.Claims{Role: token.RoleStudent, Email: "ana@example.com"}}
	m := NewAuthMiddleware(v)

	nextCalled := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nextCalled = true
		claims, ok := ClaimsFromContext(r.Context())
		require.True(t, ok)
		assert.Equal(t, "ana@example.com", claims.Email)

		raw, ok := TokenFromContext(r.Context())
		require.True(t, ok)
		assert.Equal(t, "abc.def.ghi", raw)
	})

	r := httptest.NewRequest(http.MethodGet, "/protected", nil)
	r.Header.Set("Authorization", "Bearer abc.def.ghi")
	w := httptest.NewRecorder()

	m.Middleware(next).ServeHTTP(w, r)

	assert.True(t, nextCalled)
	assert.Equal(t, "abc.def.ghi", v.got)
}

func TestAuthMiddleware_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		header string
		err    error
	}{
		{"no header", "", nil},
		{"wrong scheme", "Basic dXNlcjpwYXNz", nil},
		{"empty token", "Bearer ", nil},
		{"validator error", "Bearer token", errors.New("revoked")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewAuthMiddleware(&stubValidator{err: tt.err, claims: &token.Claims{}})
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Fatalf("next handler should not be called")
			})

			r := httptest.NewRequest(http.MethodGet, "/protected", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()

			m.Middleware(next).ServeHTTP(w, r)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Contains(t, w.Body.String(), `"success":false`)
		})
	}
}

func TestRequireRole(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	h := RequireRole(token.RoleAdmin)(ok)

	tests := []struct {
		name   string
		claims *token.Claims
		want   int
	}{
		{"admin", &token.Claims{Role: token.RoleAdmin}, http.StatusNoContent},
		{"student", &token.Claims{Role: token.RoleStudent}, http.StatusForbidden},
		{"anonymous", nil, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/admin", nil)
			if tt.claims != nil {
				r = r.WithContext(WithClaims(r.Context(), tt.claims, "raw"))
			}
			w := httptest.NewRecorder()

			h.ServeHTTP(w, r)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}
