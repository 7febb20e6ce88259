package domain

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrDuplicateEmail     = errors.New("email already exists")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrTokenInvalid       = errors.New("token invalid")
	ErrTokenExpired       = errors.New("token expired")
	ErrInvalidInput       = errors.New("invalid input")
	ErrInvalidID          = errors.New("invalid id")
)

// ValidationError collects every field problem found in a single request.
// It matches ErrInvalidInput under errors.Is.
type ValidationError struct {
	Details []string
}

func (e *ValidationError) Error() string {
	if len(e.Details) == 0 {
		return ErrInvalidInput.Error()
	}
	msg := ErrInvalidInput.Error() + ": " + e.Details[0]
	for _, d := range e.Details[1:] {
		msg += "; " + d
	}
	return msg
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}
