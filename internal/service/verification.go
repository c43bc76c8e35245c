package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"go.uber.org/zap"

	"github.com/mmeshcher/vestetec-system/internal/model"
	"github.com/mmeshcher/vestetec-system/internal/repository"
	"github.com/mmeshcher/vestetec-system/internal/validation"
)

const (
	codeMin = 100000
	codeMax = 999999
)

// GenerateCode выпускает новый код для email, деактивируя все прежние активные коды, и отправляет его.
// Если письмо не ушло, код остаётся действительным и возвращается ошибка ErrEmailDelivery.
func (s *Service) GenerateCode(ctx context.Context, email string) (string, error) {
	email = strings.TrimSpace(email)
	if !validation.IsValidEmail(email) {
		return "", validationf("invalid email")
	}

	code, err := randomCode()
	if err != nil {
		return "", err
	}

	err = s.repo.InTx(ctx, func(tx repository.Tx) error {
		if _, err := tx.GetStudentByEmail(ctx, email); err != nil {
			if errors.Is(err, repository.ErrStudentNotFound) {
				return notFoundf(err, "student with email %s not found", email)
			}
			return err
		}

		if _, err := tx.DeactivateCodes(ctx, email); err != nil {
			return err
		}

		_, err := tx.InsertCode(ctx, &model.VerificationCode{
			Email:     email,
			Code:      code,
			ExpiresAt: s.now().UTC().Add(CodeTTL),
			Active:    true,
		})
		if errors.Is(err, repository.ErrActiveCodeExists) {
			return newError(ErrConflict, err, "verification code for %s is being issued concurrently, retry", email)
		}
		return err
	})
	if err != nil {
		return "", err
	}

	if s.mailer != nil {
		if err := s.mailer.SendVerificationCode(ctx, email, code); err != nil {
			s.logger.Warn("failed to send verification code", zap.String("email", email), zap.Error(err))
			return code, newError(ErrEmailDelivery, err, "failed to send verification code, request a new one")
		}
	}

	return code, nil
}

// VerifyCode проверяет код и при совпадении подтверждает email. Код одноразовый.
func (s *Service) VerifyCode(ctx context.Context, email, code string) error {
	email = strings.TrimSpace(email)
	code = strings.TrimSpace(code)
	if !validation.IsValidVerificationCode(code) {
		return validationf("verification code must have %d digits", validation.VerificationCodeLength)
	}

	expired := false
	err := s.repo.InTx(ctx, func(tx repository.Tx) error {
		expired = false
		active, err := tx.LatestActiveCode(ctx, email)
		if err != nil {
			if errors.Is(err, repository.ErrCodeNotFound) {
				return validationf("no active verification code")
			}
			return err
		}

		// Истёкший код деактивируется и фиксируется, поэтому транзакция завершается без ошибки.
		if s.now().UTC().After(active.ExpiresAt) {
			expired = true
			return tx.DeactivateCode(ctx, active.ID)
		}

		if active.Code != code {
			return validationf("incorrect verification code")
		}

		if err := tx.MarkEmailVerified(ctx, email); err != nil {
			if errors.Is(err, repository.ErrStudentNotFound) {
				return notFoundf(err, "student with email %s not found", email)
			}
			return err
		}

		return tx.DeactivateCode(ctx, active.ID)
	})
	if err != nil {
		return err
	}
	if expired {
		return validationf("verification code expired")
	}
	return nil
}

// IsVerified сообщает, подтверждён ли email. Для неизвестного email возвращает false.
func (s *Service) IsVerified(ctx context.Context, email string) (bool, error) {
	return s.repo.IsEmailVerified(ctx, strings.TrimSpace(email))
}

// ResendCode выпускает новый код, если email ещё не подтверждён.
func (s *Service) ResendCode(ctx context.Context, email string) (string, error) {
	verified, err := s.IsVerified(ctx, email)
	if err != nil {
		return "", err
	}
	if verified {
		return "", validationf("email already verified")
	}
	return s.GenerateCode(ctx, email)
}

func randomCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(codeMax-codeMin+1))
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+codeMin), nil
}
