// Package middleware содержит HTTP middleware сервиса заказов школьной формы.
package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/mmeshcher/vestetec-system/internal/token"
)

type contextKey string

const (
	claimsKey   contextKey = "claims"
	rawTokenKey contextKey = "rawToken"
)

// TokenValidator проверяет токен доступа: подпись, срок действия, отзыв и существование учётной записи.
type TokenValidator interface {
	ValidateToken(ctx context.Context, raw string) (*token.Claims, error)
}

// AuthMiddleware выполняет проверку аутентификации по заголовку Authorization: Bearer.
type AuthMiddleware struct {
	validator TokenValidator
}

// NewAuthMiddleware создаёт новый экземпляр AuthMiddleware.
func NewAuthMiddleware(v TokenValidator) *AuthMiddleware {
	return &AuthMiddleware{validator: v}
}

// Middleware проверяет токен и добавляет его claims в контекст запроса.
func (a *AuthMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := BearerToken(r)
		if !ok {
			deny(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		claims, err := a.validator.ValidateToken(r.Context(), raw)
		if err != nil {
			deny(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), claimsKey, claims)
		ctx = context.WithValue(ctx, rawTokenKey, raw)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole пропускает только запросы с токеном указанной роли.
// Ставится после Middleware.
func RequireRole(role token.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				deny(w, http.StatusUnauthorized, "missing bearer token")
				return
			}
			if claims.Role != role {
				deny(w, http.StatusForbidden, "access denied")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// BearerToken извлекает токен из заголовка Authorization.
func BearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, raw, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	raw = strings.TrimSpace(raw)
	return raw, raw != ""
}

// ClaimsFromContext извлекает claims проверенного токена из контекста запроса.
func ClaimsFromContext(ctx context.Context) (*token.Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(*token.Claims)
	return claims, ok
}

// TokenFromContext возвращает исходную строку проверенного токена.
func TokenFromContext(ctx context.Context) (string, bool) {
	raw, ok := ctx.Value(rawTokenKey).(string)
	return raw, ok
}

// WithClaims кладёт claims в контекст. Используется в тестах обработчиков.
func WithClaims(ctx context.Context, claims *token.Claims, raw string) context.Context {
	ctx = context.WithValue(ctx, claimsKey, claims)
	return context.WithValue(ctx, rawTokenKey, raw)
}

func deny(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}{false, message})
}
