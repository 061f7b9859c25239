package errors

import (
	"errors"
	"fmt"
)

var (
	ErrLinkNotFound        = errors.New("link not found")
	ErrSlugTaken           = errors.New("slug already taken")
	ErrInvalidSlugFormat   = errors.New("invalid slug format")
	ErrReservedSlug        = errors.New("slug is reserved")
	ErrAllocationExhausted = errors.New("slug allocation exhausted")
	ErrStoreUnavailable    = errors.New("store unavailable")
	ErrInvalidURL          = errors.New("invalid URL")
	ErrWebhookNotFound     = errors.New("webhook not found")
	ErrABTestNotFound      = errors.New("no A/B test configured")
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error in field '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

type BusinessError struct {
	Code    string
	Message string
	Cause   error
}

func (e *BusinessError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *BusinessError) Unwrap() error {
	return e.Cause
}

func NewBusinessError(code, message string, cause error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// StoreError wraps a backend failure so callers can match ErrStoreUnavailable
// while the original cause stays reachable through errors.As.
func StoreError(op string, cause error) error {
	return &BusinessError{
		Code:    "STORE_UNAVAILABLE",
		Message: "store operation " + op + " failed",
		Cause:   fmt.Errorf("%w: %w", ErrStoreUnavailable, cause),
	}
}

// IsValidationError проверяет является ли ошибка ошибкой валидации
func IsValidationError(err error) bool {
	var validationErr *ValidationError
	return errors.As(err, &validationErr)
}

// IsBusinessError проверяет является ли ошибка бизнес-ошибкой
func IsBusinessError(err error) bool {
	var businessErr *BusinessError
	return errors.As(err, &businessErr)
}

func GetValidationError(err error) *ValidationError {
	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return validationErr
	}
	return nil
}

// GetBusinessError извлекает BusinessError из ошибки
func GetBusinessError(err error) *BusinessError {
	var businessErr *BusinessError
	if errors.As(err, &businessErr) {
		return businessErr
	}
	return nil
}
