package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mmeshcher/vestetec-system/internal/middleware"
	"github.com/mmeshcher/vestetec-system/internal/service"
)

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type studentResponse struct {
	ID            int64  `json:"id"`
	RM            int    `json:"rm"`
	Name          string `json:"name"`
	Email         string `json:"email"`
	SchoolID      *int64 `json:"school_id,omitempty"`
	EmailVerified bool   `json:"email_verified"`
}

// RegisterStudent регистрирует ученика и отправляет код подтверждения.
func (h *Handler) RegisterStudent(w http.ResponseWriter, r *http.Request) {
	var req service.StudentSignup
	if !h.decode(w, r, &req) {
		return
	}

	student, err := h.service.RegisterStudent(r.Context(), req)
	if err != nil && (student == nil || !errors.Is(err, service.ErrEmailDelivery)) {
		h.writeError(w, r, err)
		return
	}

	resp := studentResponse{
		ID:            student.ID,
		RM:            student.RM,
		Name:          student.Name,
		Email:         student.Email,
		SchoolID:      student.SchoolID,
		EmailVerified: student.EmailVerified,
	}
	message := "student registered, verification code sent"
	if err != nil {
		message = "student registered, but the verification email could not be sent"
	}
	h.writeJSON(w, http.StatusCreated, message, resp)
}

// LoginStudent выдаёт токен ученику с подтверждённым email.
func (h *Handler) LoginStudent(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Email == "" || req.Password == "" {
		h.fail(w, http.StatusBadRequest, "email and password are required")
		return
	}

	session, err := h.service.LoginStudent(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, "login successful", session)
}

// LoginAdmin выдаёт токен администратору.
func (h *Handler) LoginAdmin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Email == "" || req.Password == "" {
		h.fail(w, http.StatusBadRequest, "email and password are required")
		return
	}

	session, err := h.service.LoginAdmin(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, "login successful", session)
}

// LogoutAdmin отзывает текущий токен.
func (h *Handler) LogoutAdmin(w http.ResponseWriter, r *http.Request) {
	raw, _ := middleware.TokenFromContext(r.Context())
	if err := h.service.Logout(r.Context(), raw); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, "logout successful", nil)
}

// RefreshAdmin отзывает текущий токен администратора и выдаёт новый.
func (h *Handler) RefreshAdmin(w http.ResponseWriter, r *http.Request) {
	raw, _ := middleware.TokenFromContext(r.Context())
	session, err := h.service.RefreshAdminToken(r.Context(), raw)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, "token refreshed", session)
}

// ValidateAdmin возвращает данные проверенного токена.
func (h *Handler) ValidateAdmin(w http.ResponseWriter, r *http.Request) {
	claims, id, ok := h.claims(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, "token is valid", map[string]any{
		"id":         id,
		"name":       claims.Name,
		"email":      claims.Email,
		"role":       claims.Role,
		"expires_at": claims.ExpiresAt.Time,
	})
}

type emailRequest struct {
	Email string `json:"email"`
}

type verifyRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

// SendCode выпускает новый код подтверждения.
func (h *Handler) SendCode(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !h.decode(w, r, &req) {
		return
	}
	if _, err := h.service.GenerateCode(r.Context(), req.Email); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, "verification code sent", nil)
}

// ResendCode повторно отправляет код ученику, ещё не подтвердившему email.
func (h *Handler) ResendCode(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !h.decode(w, r, &req) {
		return
	}
	if _, err := h.service.ResendCode(r.Context(), req.Email); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, "verification code resent", nil)
}

// VerifyEmail подтверждает email по коду.
func (h *Handler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if !h.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Email) == "" || strings.TrimSpace(req.Code) == "" {
		h.fail(w, http.StatusBadRequest, "email and code are required")
		return
	}
	if err := h.service.VerifyCode(r.Context(), req.Email, req.Code); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, "email verified", map[string]bool{"verified": true})
}

// VerificationStatus сообщает, подтверждён ли email.
func (h *Handler) VerificationStatus(w http.ResponseWriter, r *http.Request) {
	email := chi.URLParam(r, "email")
	verified, err := h.service.IsVerified(r.Context(), email)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, "", map[string]any{"email": email, "verified": verified})
}
