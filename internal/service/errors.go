package service

import (
	"errors"
	"fmt"
)

// Категории ошибок бизнес-логики. Проверяются через errors.Is.
var (
	ErrNotFound      = errors.New("not found")
	ErrValidation    = errors.New("validation failed")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrConflict      = errors.New("conflict")
	ErrEmailDelivery = errors.New("email delivery failed")
)

// Error — ошибка бизнес-логики с сообщением для клиента.
// Разворачивается и в категорию, и в исходную причину.
type Error struct {
	kind  error
	msg   string
	cause error
}

func (e *Error) Error() string { return e.msg }

// Kind возвращает категорию ошибки.
func (e *Error) Kind() error { return e.kind }

func (e *Error) Unwrap() []error {
	if e.cause == nil {
		return []error{e.kind}
	}
	return []error{e.kind, e.cause}
}

func newError(kind, cause error, format string, args ...any) *Error {
	return &Error{kind: kind, msg: fmt.Sprintf(format, args...), cause: cause}
}

func validationf(format string, args ...any) error {
	return newError(ErrValidation, nil, format, args...)
}

func notFoundf(cause error, format string, args ...any) error {
	return newError(ErrNotFound, cause, format, args...)
}

func unauthorizedf(cause error, format string, args ...any) error {
	return newError(ErrUnauthorized, cause, format, args...)
}

// wrapAs относит err к категории kind, сохраняя его текст.
func wrapAs(kind, err error) error {
	return newError(kind, err, "%s", err.Error())
}

// NewError создаёт ошибку категории kind с сообщением для клиента.
func NewError(kind error, message string) *Error {
	return &Error{kind: kind, msg: message}
}
