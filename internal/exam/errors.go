package exam

import (
	"errors"
	"fmt"
)

// Rejection kinds. Every expected business failure returned by Service
// unwraps to exactly one of these.
var (
	// ErrNotFound also covers resources that exist but belong to someone else.
	ErrNotFound      = errors.New("not found")
	ErrOutsideWindow = errors.New("exam is not available at this time")
	ErrInvalidState  = errors.New("attempt is not in progress")
	ErrUnauthorized  = errors.New("not the owner of this resource")
	ErrInvalidInput  = errors.New("invalid input")
)

// ErrAttemptExists is returned by Store.CreateAttempt when an in-progress
// attempt for the same user and exam already exists.
var ErrAttemptExists = errors.New("in-progress attempt already exists")

// Rejection is a business failure with a caller-facing message.
type Rejection struct {
	Kind    error
	Message string
}

func (r *Rejection) Error() string {
	if r.Message == "" {
		return r.Kind.Error()
	}
	return r.Kind.Error() + ": " + r.Message
}

func (r *Rejection) Unwrap() error { return r.Kind }

func reject(kind error, format string, args ...any) error {
	return &Rejection{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// IsRejection reports whether err is an expected business failure as opposed
// to an infrastructure error.
func IsRejection(err error) bool {
	var r *Rejection
	if errors.As(err, &r) {
		return true
	}
	for _, k := range []error{ErrNotFound, ErrOutsideWindow, ErrInvalidState, ErrUnauthorized, ErrInvalidInput} {
		if errors.Is(err, k) {
			return true
		}
	}
	return false
}
