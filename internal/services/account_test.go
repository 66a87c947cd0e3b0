package services

import (
	"context"
	"database/sql"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/rentify/rentify-go/internal/auth"
	"github.com/rentify/rentify-go/internal/metrics"
	"github.com/rentify/rentify-go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var accountCols = []string{"id", "email", "password_hash", "first_name", "last_name", "contact", "is_buyer", "is_seller", "is_active", "created_at"}

func newAccountService(t *testing.T) (*AccountService, sqlmock.Sqlmock, *recordingNotifier) {
	t.Helper()
	database, mock := newMockDB(t)
	n := &recordingNotifier{}
	return NewAccountService(database, metrics.NewNoopMetrics(), n, zap.NewNop()), mock, n
}

func validRegistration(role string) models.RegisterRequest {
	return models.RegisterRequest{
		Role:     role,
		FullName: "Meera Shah",
		Email:    " Meera@Example.com ",
		Contact:  "9876543210",
		Password: "secret1",
		Building: "12 MG Road",
		Taluka:   "Haveli",
		City:     "Pune",
		State:    "Maharashtra",
		Pincode:  "411001",
	}
}

func TestRegisterSellerDefaultsStoreName(t *testing.T) {
	svc, mock, n := newAccountService(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM accounts WHERE email = ?")).WithArgs("meera@example.com").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO accounts")).
		WithArgs("meera@example.com", sqlmock.AnyArg(), "Meera Shah", "9876543210", false, true).
		WillReturnResult(sqlmock.NewResult(5, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO addresses")).
		WithArgs("12 MG Road", "Haveli", "Pune", "Maharashtra", "411001").
		WillReturnResult(sqlmock.NewResult(8, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO seller_profiles (account_id, store_name, pickup_address_id)")).
		WithArgs(int64(5), "Meera Shah Wardrobe", int64(8)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	acc, err := svc.Register(context.Background(), validRegistration("Seller"))
	require.NoError(t, err)
	assert.Equal(t, int64(5), acc.ID)
	assert.True(t, acc.IsSeller)
	assert.Equal(t, models.RoleSeller, acc.Role())
	assert.Equal(t, []string{"welcome"}, n.calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegisterBuyer(t *testing.T) {
	svc, mock, _ := newAccountService(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM accounts WHERE email = ?")).WillReturnError(sql.ErrNoRows)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO accounts")).
		WithArgs("meera@example.com", sqlmock.AnyArg(), "Meera Shah", "9876543210", true, false).
		WillReturnResult(sqlmock.NewResult(6, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO addresses")).WillReturnResult(sqlmock.NewResult(9, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO buyer_profiles (account_id, address_id)")).
		WithArgs(int64(6), int64(9)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	acc, err := svc.Register(context.Background(), validRegistration("buyer"))
	require.NoError(t, err)
	assert.True(t, acc.IsBuyer)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegisterRejections(t *testing.T) {
	svc, mock, _ := newAccountService(t)

	_, err := svc.Register(context.Background(), validRegistration("admin"))
	assert.ErrorIs(t, err, ErrInvalidRole)

	bad := validRegistration("buyer")
	bad.Contact = "12345"
	_, err = svc.Register(context.Background(), bad)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "contact", verr.Field)

	bad = validRegistration("buyer")
	bad.Pincode = "41100A"
	_, err = svc.Register(context.Background(), bad)
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "pincode", verr.Field)

	bad = validRegistration("buyer")
	bad.Password = strings.Repeat("a", 73)
	_, err = svc.Register(context.Background(), bad)
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "password", verr.Field)

	// within the rune limit but over bcrypt's byte limit
	bad.Password = strings.Repeat("日", 30)
	mock.ExpectQuery(regexp.QuoteMeta("FROM accounts WHERE email = ?")).WillReturnError(sql.ErrNoRows)
	_, err = svc.Register(context.Background(), bad)
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "password", verr.Field)

	mock.ExpectQuery(regexp.QuoteMeta("FROM accounts WHERE email = ?")).
		WillReturnRows(sqlmock.NewRows(accountCols).AddRow(1, "meera@example.com", "x", "Meera", "", "9876543210", true, false, true, time.Now()))
	_, err = svc.Register(context.Background(), validRegistration("buyer"))
	assert.ErrorIs(t, err, ErrEmailTaken)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegisterDuplicateKeyRace(t *testing.T) {
	svc, mock, n := newAccountService(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM accounts WHERE email = ?")).WillReturnError(sql.ErrNoRows)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO accounts")).
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})
	mock.ExpectRollback()

	_, err := svc.Register(context.Background(), validRegistration("buyer"))
	assert.ErrorIs(t, err, ErrEmailTaken)
	assert.Empty(t, n.calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuthenticate(t *testing.T) {
	svc, mock, _ := newAccountService(t)
	hash, err := auth.HashPassword("secret1")
	require.NoError(t, err)

	row := func(active bool) *sqlmock.Rows {
		return sqlmock.NewRows(accountCols).AddRow(4, "asha@example.com", hash, "Asha", "", "9876543210", true, false, active, time.Now())
	}

	mock.ExpectQuery(regexp.QuoteMeta("FROM accounts WHERE email = ?")).WithArgs("asha@example.com").WillReturnRows(row(true))
	acc, err := svc.Authenticate(context.Background(), models.LoginRequest{Email: "ASHA@example.com", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, int64(4), acc.ID)

	mock.ExpectQuery(regexp.QuoteMeta("FROM accounts WHERE email = ?")).WillReturnRows(row(true))
	_, err = svc.Authenticate(context.Background(), models.LoginRequest{Email: "asha@example.com", Password: "wrong"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	mock.ExpectQuery(regexp.QuoteMeta("FROM accounts WHERE email = ?")).WillReturnError(sql.ErrNoRows)
	_, err = svc.Authenticate(context.Background(), models.LoginRequest{Email: "nobody@example.com", Password: "secret1"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	mock.ExpectQuery(regexp.QuoteMeta("FROM accounts WHERE email = ?")).WillReturnRows(row(false))
	_, err = svc.Authenticate(context.Background(), models.LoginRequest{Email: "asha@example.com", Password: "secret1"})
	assert.ErrorIs(t, err, ErrAccountInactive)

	assert.NoError(t, mock.ExpectationsWereMet())
}
