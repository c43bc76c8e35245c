package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/mmeshcher/vestetec-system/internal/model"
	"github.com/mmeshcher/vestetec-system/internal/repository"
	"github.com/mmeshcher/vestetec-system/internal/token"
	"github.com/mmeshcher/vestetec-system/internal/validation"
)

// StudentSignup — данные регистрации ученика.
type StudentSignup struct {
	RM       int    `json:"rm"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	SchoolID int64  `json:"school_id"`
}

// Session — выданный токен доступа.
type Session struct {
	Token     string     `json:"token"`
	ExpiresAt time.Time  `json:"expires_at"`
	Role      token.Role `json:"role"`
	AccountID int64      `json:"id"`
	Name      string     `json:"name"`
	Email     string     `json:"email"`
}

// RegisterStudent создаёт ученика и отправляет ему код подтверждения email.
// Если письмо не ушло, ученик всё равно создан, а ошибка относится к ErrEmailDelivery.
func (s *Service) RegisterStudent(ctx context.Context, in StudentSignup) (*model.Student, error) {
	in.Email = strings.TrimSpace(in.Email)
	in.Name = strings.TrimSpace(in.Name)
	switch {
	case in.Name == "":
		return nil, validationf("name is required")
	case !validation.IsValidEmail(in.Email):
		return nil, validationf("invalid email")
	case in.Password == "":
		return nil, validationf("password is required")
	case in.SchoolID <= 0:
		return nil, validationf("school is required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	schoolID := in.SchoolID
	student := &model.Student{
		RM:           in.RM,
		Name:         in.Name,
		Email:        in.Email,
		PasswordHash: hash,
		SchoolID:     &schoolID,
	}

	id, err := s.repo.CreateStudent(ctx, student)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrEmailExists):
			return nil, newError(ErrConflict, err, "email %s is already registered", in.Email)
		case errors.Is(err, repository.ErrInvalidReference):
			return nil, newError(ErrValidation, err, "school %d does not exist", in.SchoolID)
		}
		return nil, err
	}
	student.ID = id

	if _, err := s.GenerateCode(ctx, student.Email); err != nil {
		return student, err
	}
	return student, nil
}

// LoginStudent проверяет email и пароль ученика. Вход возможен только после подтверждения email.
func (s *Service) LoginStudent(ctx context.Context, email, password string) (*Session, error) {
	student, err := s.repo.GetStudentByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, repository.ErrStudentNotFound) {
			return nil, unauthorizedf(nil, "invalid email or password")
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword(student.PasswordHash, []byte(password)); err != nil {
		return nil, unauthorizedf(nil, "invalid email or password")
	}
	if !student.EmailVerified {
		return nil, unauthorizedf(nil, "email not verified")
	}

	return s.issue(student.ID, token.RoleStudent, student.Email, student.Name)
}

// LoginAdmin проверяет email (без учёта регистра) и пароль администратора.
func (s *Service) LoginAdmin(ctx context.Context, email, password string) (*Session, error) {
	admin, err := s.repo.GetAdminByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, repository.ErrAdminNotFound) {
			return nil, unauthorizedf(nil, "invalid email or password")
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword(admin.PasswordHash, []byte(password)); err != nil {
		return nil, unauthorizedf(nil, "invalid email or password")
	}

	return s.issue(admin.ID, token.RoleAdmin, admin.Email, admin.Name)
}

func (s *Service) issue(id int64, role token.Role, email, name string) (*Session, error) {
	raw, claims, err := s.tokens.Issue(id, role, email, name)
	if err != nil {
		return nil, err
	}
	return &Session{
		Token:     raw,
		ExpiresAt: claims.ExpiresAt.Time,
		Role:      role,
		AccountID: id,
		Name:      name,
		Email:     email,
	}, nil
}

// ValidateToken проверяет токен: подпись и сроки, отсутствие в списке отзыва и существование учётной записи.
func (s *Service) ValidateToken(ctx context.Context, raw string) (*token.Claims, error) {
	claims, err := s.tokens.Parse(raw)
	if err != nil {
		return nil, unauthorizedf(err, "invalid token")
	}

	if s.revoked != nil {
		revoked, err := s.revoked.IsRevoked(ctx, claims.ID)
		if err != nil {
			return nil, err
		}
		if revoked {
			return nil, unauthorizedf(nil, "token revoked")
		}
	}

	id, err := claims.AccountID()
	if err != nil {
		return nil, unauthorizedf(err, "invalid token")
	}

	switch claims.Role {
	case token.RoleAdmin:
		_, err = s.repo.GetAdminByID(ctx, id)
	default:
		_, err = s.repo.GetStudent(ctx, id)
	}
	if err != nil {
		if errors.Is(err, repository.ErrAdminNotFound) || errors.Is(err, repository.ErrStudentNotFound) {
			return nil, unauthorizedf(err, "account no longer exists")
		}
		return nil, err
	}

	return claims, nil
}

// RefreshAdminToken отзывает действующий токен администратора и выдаёт новый.
func (s *Service) RefreshAdminToken(ctx context.Context, raw string) (*Session, error) {
	claims, err := s.ValidateToken(ctx, raw)
	if err != nil {
		return nil, err
	}
	if claims.Role != token.RoleAdmin {
		return nil, unauthorizedf(nil, "admin token required")
	}

	if err := s.revoke(ctx, claims); err != nil {
		return nil, err
	}

	id, err := claims.AccountID()
	if err != nil {
		return nil, unauthorizedf(err, "invalid token")
	}
	return s.issue(id, token.RoleAdmin, claims.Email, claims.Name)
}

// Logout отзывает действующий токен.
func (s *Service) Logout(ctx context.Context, raw string) error {
	claims, err := s.ValidateToken(ctx, raw)
	if err != nil {
		return err
	}
	return s.revoke(ctx, claims)
}

func (s *Service) revoke(ctx context.Context, claims *token.Claims) error {
	if s.revoked == nil {
		return nil
	}
	if err := s.revoked.Revoke(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
		return err
	}
	s.logger.Info("token revoked", zap.String("jti", claims.ID), zap.String("role", string(claims.Role)))
	return nil
}

// EnsureAdmin создаёт администратора или обновляет его имя и пароль.
func (s *Service) EnsureAdmin(ctx context.Context, email, name, password string) (int64, error) {
	email = strings.TrimSpace(email)
	if !validation.IsValidEmail(email) {
		return 0, validationf("invalid admin email")
	}
	if password == "" {
		return 0, validationf("admin password is required")
	}
	if strings.TrimSpace(name) == "" {
		name = email
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return 0, fmt.Errorf("hash password: %w", err)
	}
	return s.repo.UpsertAdmin(ctx, name, email, hash)
}
