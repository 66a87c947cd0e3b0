package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rentify/rentify-go/internal/auth"
	"github.com/rentify/rentify-go/internal/db"
	"github.com/rentify/rentify-go/internal/metrics"
	"github.com/rentify/rentify-go/internal/models"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// AccountService handles registration, login and account lookups
type AccountService struct {
	db       *db.DB
	metrics  *metrics.AppMetrics
	notifier Notifier
	logger   *zap.Logger
}

// NewAccountService creates a new account service
func NewAccountService(db *db.DB, metrics *metrics.AppMetrics, notifier Notifier, logger *zap.Logger) *AccountService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccountService{
		db:       db,
		metrics:  metrics,
		notifier: notifier,
		logger:   logger,
	}
}

const accountColumns = "id, email, password_hash, first_name, last_name, contact, is_buyer, is_seller, is_active, created_at"

func scanAccount(row interface{ Scan(...interface{}) error }) (*models.Account, error) {
	var acc models.Account
	err := row.Scan(&acc.ID, &acc.Email, &acc.PasswordHash, &acc.FirstName, &acc.LastName,
		&acc.Contact, &acc.IsBuyer, &acc.IsSeller, &acc.IsActive, &acc.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &acc, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates the account, its address and the role profile in one
// transaction, then sends the welcome email.
func (s *AccountService) Register(ctx context.Context, req models.RegisterRequest) (*models.Account, error) {
	role := strings.ToLower(strings.TrimSpace(req.Role))
	if role != models.RoleBuyer && role != models.RoleSeller {
		return nil, ErrInvalidRole
	}
	req.Email = normalizeEmail(req.Email)
	req.FullName = strings.TrimSpace(req.FullName)
	req.StoreName = strings.TrimSpace(req.StoreName)
	if err := validateStruct(req); err != nil {
		return nil, err
	}

	if _, err := s.GetByEmail(ctx, req.Email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	hash, err := hashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	start := time.Now()
	accountQuery := "INSERT INTO accounts (email, password_hash, first_name, contact, is_buyer, is_seller) VALUES (?, ?, ?, ?, ?, ?)"
	result, err := tx.ExecContext(ctx, accountQuery, req.Email, hash, req.FullName, req.Contact,
		role == models.RoleBuyer, role == models.RoleSeller)
	s.metrics.RecordDBQuery(ctx, "INSERT", "accounts", accountQuery, start, err == nil)
	if err != nil {
		if db.IsDuplicateEntry(err) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("failed to create account: %w", err)
	}
	accountID, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get account ID: %w", err)
	}

	addressID, err := s.insertAddress(ctx, tx, models.AddressInput{
		Building: req.Building, Taluka: req.Taluka, City: req.City, State: req.State, Pincode: req.Pincode,
	})
	if err != nil {
		return nil, err
	}

	start = time.Now()
	var profileQuery string
	if role == models.RoleBuyer {
		profileQuery = "INSERT INTO buyer_profiles (account_id, address_id) VALUES (?, ?)"
		_, err = tx.ExecContext(ctx, profileQuery, accountID, addressID)
		s.metrics.RecordDBQuery(ctx, "INSERT", "buyer_profiles", profileQuery, start, err == nil)
	} else {
		storeName := req.StoreName
		if storeName == "" {
			storeName = req.FullName + " Wardrobe"
		}
		profileQuery = "INSERT INTO seller_profiles (account_id, store_name, pickup_address_id) VALUES (?, ?, ?)"
		_, err = tx.ExecContext(ctx, profileQuery, accountID, storeName, addressID)
		s.metrics.RecordDBQuery(ctx, "INSERT", "seller_profiles", profileQuery, start, err == nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s profile: %w", role, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.metrics.Registrations.Add(ctx, 1, metric.WithAttributes(s.metrics.WithServiceName([]attribute.KeyValue{
		attribute.String("role", role),
	})...))
	s.logger.Info("account registered", zap.Int64("account_id", accountID), zap.String("role", role))

	acc := &models.Account{
		ID:        accountID,
		Email:     req.Email,
		FirstName: req.FullName,
		Contact:   req.Contact,
		IsBuyer:   role == models.RoleBuyer,
		IsSeller:  role == models.RoleSeller,
		IsActive:  true,
	}
	if err := s.notifier.Welcome(ctx, acc, req.FullName); err != nil {
		return acc, err
	}
	return acc, nil
}

func (s *AccountService) insertAddress(ctx context.Context, tx *sql.Tx, in models.AddressInput) (int64, error) {
	start := time.Now()
	query := "INSERT INTO addresses (building, taluka, city, state, pincode) VALUES (?, ?, ?, ?, ?)"
	result, err := tx.ExecContext(ctx, query, in.Building, in.Taluka, in.City, in.State, in.Pincode)
	s.metrics.RecordDBQuery(ctx, "INSERT", "addresses", query, start, err == nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create address: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get address ID: %w", err)
	}
	return id, nil
}

// Authenticate verifies credentials. Unknown email and wrong password are
// indistinguishable to the caller.
func (s *AccountService) Authenticate(ctx context.Context, req models.LoginRequest) (*models.Account, error) {
	req.Email = normalizeEmail(req.Email)
	if err := validateStruct(req); err != nil {
		return nil, err
	}

	acc, err := s.GetByEmail(ctx, req.Email)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !auth.CheckPassword(acc.PasswordHash, req.Password) {
		return nil, ErrInvalidCredentials
	}
	if !acc.IsActive {
		return nil, ErrAccountInactive
	}
	return acc, nil
}

// GetByEmail looks an account up by its (case-insensitive) email.
func (s *AccountService) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	start := time.Now()
	query := "SELECT " + accountColumns + " FROM accounts WHERE email = ?"
	acc, err := scanAccount(s.db.QueryRowContext(ctx, query, normalizeEmail(email)))
	s.metrics.RecordDBQuery(ctx, "SELECT", "accounts", query, start, err == nil || err == sql.ErrNoRows)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return acc, nil
}

// GetAccount looks an account up by ID.
func (s *AccountService) GetAccount(ctx context.Context, id int64) (*models.Account, error) {
	start := time.Now()
	query := "SELECT " + accountColumns + " FROM accounts WHERE id = ?"
	acc, err := scanAccount(s.db.QueryRowContext(ctx, query, id))
	s.metrics.RecordDBQuery(ctx, "SELECT", "accounts", query, start, err == nil || err == sql.ErrNoRows)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return acc, nil
}

func hashPassword(plain string) (string, error) {
	hash, err := auth.HashPassword(plain)
	if errors.Is(err, auth.ErrPasswordTooLong) {
		return "", invalid("password", fmt.Sprintf("Password must be at most %d bytes", auth.MaxPasswordBytes))
	}
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return hash, nil
}

// SetPassword replaces the password of the account registered under email.
func (s *AccountService) SetPassword(ctx context.Context, email, password string) error {
	hash, err := hashPassword(password)
	if err != nil {
		return err
	}

	start := time.Now()
	query := "UPDATE accounts SET password_hash = ? WHERE email = ?"
	result, err := s.db.ExecContext(ctx, query, hash, normalizeEmail(email))
	s.metrics.RecordDBQuery(ctx, "UPDATE", "accounts", query, start, err == nil)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	s.logger.Info("password reset", zap.String("email", normalizeEmail(email)))
	return nil
}
