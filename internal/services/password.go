package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rentify/rentify-go/internal/auth"
	"github.com/rentify/rentify-go/internal/models"
	"github.com/rentify/rentify-go/internal/tokens"
	"go.uber.org/zap"
)

// ResetStore keeps expiring reset codes and single-use reset tickets.
type ResetStore interface {
	SaveCode(ctx context.Context, email, code string, ttl time.Duration) error
	VerifyCode(ctx context.Context, email, code string, maxAttempts int) error
	IssueTicket(ctx context.Context, email string, ttl time.Duration) (string, error)
	ConsumeTicket(ctx context.Context, ticket string) (string, error)
}

// PasswordService runs the forgot-password flow: request a code, verify it
// for a reset ticket, then spend the ticket on a new password.
type PasswordService struct {
	accounts    *AccountService
	store       ResetStore
	notifier    Notifier
	codeTTL     time.Duration
	maxAttempts int
	logger      *zap.Logger
	generate    func() (string, error)
}

// NewPasswordService creates a new password reset service
func NewPasswordService(accounts *AccountService, store ResetStore, notifier Notifier, codeTTL time.Duration, maxAttempts int, logger *zap.Logger) *PasswordService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PasswordService{
		accounts:    accounts,
		store:       store,
		notifier:    notifier,
		codeTTL:     codeTTL,
		maxAttempts: maxAttempts,
		logger:      logger,
		generate:    tokens.GenerateCode,
	}
}

// RequestReset emails a fresh code to a registered address.
func (s *PasswordService) RequestReset(ctx context.Context, req models.ForgotPasswordRequest) error {
	req.Email = normalizeEmail(req.Email)
	if err := validateStruct(req); err != nil {
		return err
	}

	if _, err := s.accounts.GetByEmail(ctx, req.Email); err != nil {
		return err
	}

	code, err := s.generate()
	if err != nil {
		return err
	}
	if err := s.store.SaveCode(ctx, req.Email, code, s.codeTTL); err != nil {
		return err
	}

	s.logger.Info("password reset requested", zap.String("email", req.Email))
	return s.notifier.ResetCode(ctx, req.Email, code)
}

// VerifyCode checks the emailed code and returns a reset ticket.
func (s *PasswordService) VerifyCode(ctx context.Context, req models.VerifyCodeRequest) (string, error) {
	req.Email = normalizeEmail(req.Email)
	if err := validateStruct(req); err != nil {
		return "", err
	}

	err := s.store.VerifyCode(ctx, req.Email, req.Code, s.maxAttempts)
	switch {
	case errors.Is(err, tokens.ErrCodeMismatch):
		return "", ErrInvalidCode
	case errors.Is(err, tokens.ErrCodeExpired):
		return "", ErrResetExpired
	case err != nil:
		return "", err
	}

	return s.store.IssueTicket(ctx, req.Email, s.codeTTL)
}

// ResetPassword spends a ticket and stores the new password.
func (s *PasswordService) ResetPassword(ctx context.Context, req models.ResetPasswordRequest) error {
	if err := validateStruct(req); err != nil {
		return err
	}
	if req.Password != req.Confirm {
		return invalid("confirm", "Passwords do not match")
	}
	if len(req.Password) > auth.MaxPasswordBytes {
		return invalid("password", fmt.Sprintf("Password must be at most %d bytes", auth.MaxPasswordBytes))
	}

	email, err := s.store.ConsumeTicket(ctx, req.Ticket)
	if errors.Is(err, tokens.ErrTicketInvalid) {
		return ErrResetExpired
	}
	if err != nil {
		return fmt.Errorf("failed to consume reset ticket: %w", err)
	}

	return s.accounts.SetPassword(ctx, email, req.Password)
}
