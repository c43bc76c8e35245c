// Package validation содержит функции валидации входных данных.
package validation

import (
	"net/mail"
	"strings"
	"unicode"
	"unicode/utf8"
)

// VerificationCodeLength — длина кода подтверждения email.
const VerificationCodeLength = 6

// MaxSizeLength ограничивает длину обозначения размера (колонка VARCHAR(10)).
const MaxSizeLength = 10

// IsValidVerificationCode проверяет, что код состоит ровно из шести цифр.
func IsValidVerificationCode(code string) bool {
	if len(code) != VerificationCodeLength {
		return false
	}

	for i := 0; i < len(code); i++ {
		if !unicode.IsDigit(rune(code[i])) {
			return false
		}
	}

	return true
}

// IsValidEmail проверяет, что строка является одиночным адресом без отображаемого имени.
func IsValidEmail(email string) bool {
	email = strings.TrimSpace(email)
	if email == "" || len(email) > 200 {
		return false
	}

	addr, err := mail.ParseAddress(email)
	if err != nil {
		return false
	}

	return addr.Address == email && strings.Contains(addr.Address, "@")
}

// IsValidSize проверяет обозначение размера после нормализации.
func IsValidSize(size string) bool {
	size = strings.TrimSpace(size)
	if size == "" {
		return false
	}
	return utf8.RuneCountInString(size) <= MaxSizeLength
}
