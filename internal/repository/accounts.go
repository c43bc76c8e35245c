package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/vestetec-system/internal/model"
)

const studentColumns = `id, rm, name, email, password_hash, school_id, email_verified, created_at`

func scanStudent(row pgx.Row) (*model.Student, error) {
	var s model.Student
	err := row.Scan(&s.ID, &s.RM, &s.Name, &s.Email, &s.PasswordHash, &s.SchoolID, &s.EmailVerified, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrStudentNotFound
		}
		return nil, fmt.Errorf("scan student: %w", err)
	}
	return &s, nil
}

// CreateStudent создаёт ученика и возвращает его идентификатор.
func (q queries) CreateStudent(ctx context.Context, s *model.Student) (int64, error) {
	var id int64
	err := q.q.QueryRow(ctx,
		`INSERT INTO students (rm, name, email, password_hash, school_id) VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		s.RM, s.Name, s.Email, s.PasswordHash, s.SchoolID,
	).Scan(&id)
	if err != nil {
		if hasPgCode(err, pgerrcode.UniqueViolation) {
			return 0, fmt.Errorf("%w: %s", ErrEmailExists, s.Email)
		}
		if hasPgCode(err, pgerrcode.ForeignKeyViolation) {
			return 0, fmt.Errorf("%w: school", ErrInvalidReference)
		}
		return 0, fmt.Errorf("create student: %w", err)
	}
	return id, nil
}

// GetStudent возвращает ученика по идентификатору.
func (q queries) GetStudent(ctx context.Context, id int64) (*model.Student, error) {
	return scanStudent(q.q.QueryRow(ctx, `SELECT `+studentColumns+` FROM students WHERE id = $1`, id))
}

// GetStudentByEmail возвращает ученика по email.
func (q queries) GetStudentByEmail(ctx context.Context, email string) (*model.Student, error) {
	return scanStudent(q.q.QueryRow(ctx, `SELECT `+studentColumns+` FROM students WHERE email = $1`, email))
}

// MarkEmailVerified отмечает email ученика как подтверждённый.
func (q queries) MarkEmailVerified(ctx context.Context, email string) error {
	tag, err := q.q.Exec(ctx, `UPDATE students SET email_verified = TRUE WHERE email = $1`, email)
	if err != nil {
		return fmt.Errorf("mark email verified: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrStudentNotFound
	}
	return nil
}

// IsEmailVerified возвращает признак подтверждения email. Для неизвестного email возвращает false.
func (q queries) IsEmailVerified(ctx context.Context, email string) (bool, error) {
	var verified bool
	err := q.q.QueryRow(ctx, `SELECT email_verified FROM students WHERE email = $1`, email).Scan(&verified)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("select email_verified: %w", err)
	}
	return verified, nil
}

const adminColumns = `id, name, email, password_hash, created_at`

func scanAdmin(row pgx.Row) (*model.Admin, error) {
	var a model.Admin
	if err := row.Scan(&a.ID, &a.Name, &a.Email, &a.PasswordHash, &a.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAdminNotFound
		}
		return nil, fmt.Errorf("scan admin: %w", err)
	}
	return &a, nil
}

// GetAdminByEmail возвращает администратора по email без учёта регистра.
func (q queries) GetAdminByEmail(ctx context.Context, email string) (*model.Admin, error) {
	return scanAdmin(q.q.QueryRow(ctx, `SELECT `+adminColumns+` FROM admins WHERE LOWER(email) = LOWER($1)`, email))
}

// GetAdminByID возвращает администратора по идентификатору.
func (q queries) GetAdminByID(ctx context.Context, id int64) (*model.Admin, error) {
	return scanAdmin(q.q.QueryRow(ctx, `SELECT `+adminColumns+` FROM admins WHERE id = $1`, id))
}

// UpsertAdmin создаёт администратора или обновляет имя и пароль существующего.
func (q queries) UpsertAdmin(ctx context.Context, name, email string, passwordHash []byte) (int64, error) {
	var id int64
	err := q.q.QueryRow(ctx,
		`INSERT INTO admins (name, email, password_hash) VALUES ($1, $2, $3)
		 ON CONFLICT (LOWER(email)) DO UPDATE SET name = EXCLUDED.name, password_hash = EXCLUDED.password_hash
		 RETURNING id`,
		name, email, passwordHash,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert admin: %w", err)
	}
	return id, nil
}

// DeactivateCodes деактивирует все активные коды для email и возвращает их количество.
func (q queries) DeactivateCodes(ctx context.Context, email string) (int64, error) {
	tag, err := q.q.Exec(ctx, `UPDATE verification_codes SET active = FALSE WHERE email = $1 AND active`, email)
	if err != nil {
		return 0, fmt.Errorf("deactivate codes: %w", err)
	}
	return tag.RowsAffected(), nil
}

// InsertCode сохраняет новый код подтверждения.
func (q queries) InsertCode(ctx context.Context, c *model.VerificationCode) (int64, error) {
	var id int64
	err := q.q.QueryRow(ctx,
		`INSERT INTO verification_codes (email, code, expires_at, active) VALUES ($1, $2, $3, $4) RETURNING id`,
		c.Email, c.Code, c.ExpiresAt, c.Active,
	).Scan(&id)
	if err != nil {
		if hasPgCode(err, pgerrcode.UniqueViolation) {
			return 0, fmt.Errorf("%w: %s", ErrActiveCodeExists, c.Email)
		}
		return 0, fmt.Errorf("insert verification code: %w", err)
	}
	return id, nil
}

// LatestActiveCode возвращает активный код с наибольшим сроком действия.
func (q queries) LatestActiveCode(ctx context.Context, email string) (*model.VerificationCode, error) {
	var c model.VerificationCode
	err := q.q.QueryRow(ctx,
		`SELECT id, email, code, expires_at, active
		 FROM verification_codes
		 WHERE email = $1 AND active
		 ORDER BY expires_at DESC
		 LIMIT 1`,
		email,
	).Scan(&c.ID, &c.Email, &c.Code, &c.ExpiresAt, &c.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCodeNotFound
		}
		return nil, fmt.Errorf("select active code: %w", err)
	}
	return &c, nil
}

// DeactivateCode деактивирует один код.
func (q queries) DeactivateCode(ctx context.Context, id int64) error {
	if _, err := q.q.Exec(ctx, `UPDATE verification_codes SET active = FALSE WHERE id = $1`, id); err != nil {
		return fmt.Errorf("deactivate code: %w", err)
	}
	return nil
}

// DeactivateExpiredCodes деактивирует активные коды, срок которых истёк до now.
func (q queries) DeactivateExpiredCodes(ctx context.Context, now time.Time) (int64, error) {
	tag, err := q.q.Exec(ctx, `UPDATE verification_codes SET active = FALSE WHERE active AND expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("deactivate expired codes: %w", err)
	}
	return tag.RowsAffected(), nil
}
