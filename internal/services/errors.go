package services

import (
	"context"
	"errors"

	"github.com/rentify/rentify-go/internal/models"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrForbidden          = errors.New("access denied")
	ErrInvalidState       = errors.New("action not allowed in current status")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrUnavailable        = errors.New("cloth is currently unavailable")
	ErrDuplicateRequest   = errors.New("an open request for this cloth already exists")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidRole        = errors.New("invalid role selected")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrAccountInactive    = errors.New("account is inactive")
	ErrInvalidCode        = errors.New("invalid code")
	ErrResetExpired       = errors.New("reset code expired")
)

// ValidationError is a user-facing complaint about one input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// Notifier sends the transactional emails triggered by service operations.
type Notifier interface {
	Welcome(ctx context.Context, acc *models.Account, fullName string) error
	NewRequest(ctx context.Context, r *models.RentalDetail) error
	Approved(ctx context.Context, r *models.RentalDetail) error
	Rejected(ctx context.Context, r *models.RentalDetail) error
	Receipt(ctx context.Context, r *models.RentalDetail) error
	Completed(ctx context.Context, r *models.RentalDetail) error
	ResetCode(ctx context.Context, email, code string) error
}
