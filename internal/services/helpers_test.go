package services

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/rentify/rentify-go/internal/db"
	"github.com/rentify/rentify-go/internal/metrics"
	"github.com/rentify/rentify-go/internal/models"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newMockDB(t *testing.T) (*db.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	return db.Wrap(sqlDB, zap.NewNop()), mock
}

type recordingNotifier struct {
	calls []string
	err   error
	last  *models.RentalDetail
	code  string
}

func (n *recordingNotifier) record(kind string, r *models.RentalDetail) error {
	n.calls = append(n.calls, kind)
	n.last = r
	return n.err
}

func (n *recordingNotifier) Welcome(_ context.Context, _ *models.Account, _ string) error {
	return n.record("welcome", nil)
}
func (n *recordingNotifier) NewRequest(_ context.Context, r *models.RentalDetail) error {
	return n.record("new_request", r)
}
func (n *recordingNotifier) Approved(_ context.Context, r *models.RentalDetail) error {
	return n.record("approved", r)
}
func (n *recordingNotifier) Rejected(_ context.Context, r *models.RentalDetail) error {
	return n.record("rejected", r)
}
func (n *recordingNotifier) Receipt(_ context.Context, r *models.RentalDetail) error {
	return n.record("receipt", r)
}
func (n *recordingNotifier) Completed(_ context.Context, r *models.RentalDetail) error {
	return n.record("completed", r)
}
func (n *recordingNotifier) ResetCode(_ context.Context, _ string, code string) error {
	n.code = code
	return n.record("reset_code", nil)
}

var rentalColumns = []string{
	"id", "buyer_id", "seller_id", "cloth_id", "quantity", "start_date", "end_date",
	"total_days", "total_price", "status", "payment_status", "payment_mode",
	"buyer_requested_pickup_at", "seller_confirmed_pickup_at", "buyer_note", "seller_note", "created_at",
	"name", "image", "rent_per_day", "first_name", "email", "first_name", "email",
}

// rentalFixture describes one rental_requests row joined with its cloth and
// parties.
type rentalFixture struct {
	id, buyerID, sellerID, clothID int64
	quantity                       int
	status                         models.RentalStatus
	payment                        models.PaymentStatus
}

func (f rentalFixture) rows() *sqlmock.Rows {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)
	payment := f.payment
	if payment == "" {
		payment = models.PaymentPending
	}
	return sqlmock.NewRows(rentalColumns).AddRow(
		f.id, f.buyerID, f.sellerID, f.clothID, f.quantity, start, end,
		3, "600.00", string(f.status), string(payment), "cash",
		nil, nil, "", "", start.Add(-24*time.Hour),
		"Silk Saree", "clothes/saree.png", "100.00", "Asha", "asha@example.com", "Ravi", "ravi@example.com",
	)
}

func newRentalService(t *testing.T) (*RentalService, sqlmock.Sqlmock, *recordingNotifier) {
	t.Helper()
	database, mock := newMockDB(t)
	n := &recordingNotifier{}
	svc := NewRentalService(database, metrics.NewNoopMetrics(), n, zap.NewNop())
	svc.now = func() time.Time { return time.Date(2023, 12, 31, 9, 0, 0, 0, time.Local) }
	return svc, mock, n
}
