package services

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rentify/rentify-go/internal/db"
	"github.com/rentify/rentify-go/internal/metrics"
	"github.com/rentify/rentify-go/internal/models"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// Who may act on a locked request.
type actor int

const (
	actorBuyer actor = iota
	actorSeller
	actorEither
)

// RentalService runs the rental request lifecycle
type RentalService struct {
	db       *db.DB
	metrics  *metrics.AppMetrics
	notifier Notifier
	logger   *zap.Logger
	now      func() time.Time
}

// NewRentalService creates a new rental service
func NewRentalService(db *db.DB, metrics *metrics.AppMetrics, notifier Notifier, logger *zap.Logger) *RentalService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RentalService{
		db:       db,
		metrics:  metrics,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

const rentalDetailQuery = `
	SELECT r.id, r.buyer_id, r.seller_id, r.cloth_id, r.quantity, r.start_date, r.end_date,
	       r.total_days, r.total_price, r.status, r.payment_status, r.payment_mode,
	       r.buyer_requested_pickup_at, r.seller_confirmed_pickup_at, r.buyer_note, r.seller_note, r.created_at,
	       c.name, c.image, c.rent_per_day, b.first_name, b.email, s.first_name, s.email
	FROM rental_requests r
	JOIN clothes c ON c.id = r.cloth_id
	JOIN accounts b ON b.id = r.buyer_id
	JOIN accounts s ON s.id = r.seller_id`

func scanRental(row interface{ Scan(...interface{}) error }) (*models.RentalDetail, error) {
	var d models.RentalDetail
	var buyerPickup, sellerPickup sql.NullTime
	err := row.Scan(&d.ID, &d.BuyerID, &d.SellerID, &d.ClothID, &d.Quantity, &d.StartDate, &d.EndDate,
		&d.TotalDays, &d.TotalPrice, &d.Status, &d.PaymentStatus, &d.PaymentMode,
		&buyerPickup, &sellerPickup, &d.BuyerNote, &d.SellerNote, &d.CreatedAt,
		&d.ClothName, &d.ClothImage, &d.RentPerDay, &d.BuyerName, &d.BuyerEmail, &d.SellerName, &d.SellerEmail)
	if err != nil {
		return nil, err
	}
	if buyerPickup.Valid {
		d.BuyerRequestedPickupAt = &buyerPickup.Time
	}
	if sellerPickup.Valid {
		d.SellerConfirmedPickupAt = &sellerPickup.Time
	}
	return &d, nil
}

// lock reads the request row for update and checks that accountID may act
// on it. A missing row is ErrNotFound; someone else's row is ErrForbidden.
func (s *RentalService) lock(ctx context.Context, tx *sql.Tx, id, accountID int64, who actor) (*models.RentalDetail, error) {
	start := time.Now()
	query := rentalDetailQuery + " WHERE r.id = ? FOR UPDATE OF r"
	d, err := scanRental(tx.QueryRowContext(ctx, query, id))
	s.metrics.RecordDBQuery(ctx, "SELECT", "rental_requests", query, start, err == nil || err == sql.ErrNoRows)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock rental request: %w", err)
	}

	allowed := false
	switch who {
	case actorBuyer:
		allowed = d.BuyerID == accountID
	case actorSeller:
		allowed = d.SellerID == accountID
	case actorEither:
		allowed = d.BuyerID == accountID || d.SellerID == accountID
	}
	if !allowed {
		return nil, ErrForbidden
	}
	return d, nil
}

// adjustStock applies a stock delta. Decrements are conditional so stock
// can never go below zero.
func (s *RentalService) adjustStock(ctx context.Context, tx *sql.Tx, clothID int64, delta int) error {
	if delta == 0 {
		return nil
	}

	start := time.Now()
	var query string
	var result sql.Result
	var err error
	if delta < 0 {
		query = "UPDATE clothes SET quantity = quantity - ? WHERE id = ? AND quantity >= ?"
		result, err = tx.ExecContext(ctx, query, -delta, clothID, -delta)
	} else {
		query = "UPDATE clothes SET quantity = quantity + ? WHERE id = ?"
		result, err = tx.ExecContext(ctx, query, delta, clothID)
	}
	s.metrics.RecordDBQuery(ctx, "UPDATE", "clothes", query, start, err == nil)
	if err != nil {
		return fmt.Errorf("failed to update stock: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read stock update result: %w", err)
	}
	if n == 0 {
		if delta < 0 {
			return ErrInsufficientStock
		}
		return ErrNotFound
	}
	return nil
}

func (s *RentalService) setStatus(ctx context.Context, tx *sql.Tx, id int64, to models.RentalStatus) error {
	start := time.Now()
	query := "UPDATE rental_requests SET status = ? WHERE id = ?"
	_, err := tx.ExecContext(ctx, query, string(to), id)
	s.metrics.RecordDBQuery(ctx, "UPDATE", "rental_requests", query, start, err == nil)
	if err != nil {
		return fmt.Errorf("failed to update rental status: %w", err)
	}
	return nil
}

func (s *RentalService) transitioned(ctx context.Context, d *models.RentalDetail, from models.RentalStatus) {
	s.metrics.RecordTransition(ctx, string(from), string(d.Status))
	s.logger.Info("rental request transitioned",
		zap.Int64("rental_id", d.ID),
		zap.String("from", string(from)),
		zap.String("to", string(d.Status)),
	)
}

func (s *RentalService) clothStock(ctx context.Context, q queryer, clothID int64) (sellerID int64, quantity int, err error) {
	start := time.Now()
	query := "SELECT seller_id, quantity FROM clothes WHERE id = ?"
	err = q.QueryRowContext(ctx, query, clothID).Scan(&sellerID, &quantity)
	s.metrics.RecordDBQuery(ctx, "SELECT", "clothes", query, start, err == nil || err == sql.ErrNoRows)
	if err == sql.ErrNoRows {
		return 0, 0, ErrNotFound
	}
	if err != nil {
		return 0, 0, fmt.Errorf("failed to get cloth stock: %w", err)
	}
	return sellerID, quantity, nil
}

// Create submits a pending request for an in-stock cloth and notifies the
// seller. Stock is untouched until the seller accepts.
func (s *RentalService) Create(ctx context.Context, buyerID, clothID int64, req models.CreateRentalRequest) (*models.RentalDetail, error) {
	req.BuyerNote = strings.TrimSpace(req.BuyerNote)
	if err := validateStruct(req); err != nil {
		return nil, err
	}

	start := time.Now()
	clothQuery := "SELECT seller_id, quantity, rent_per_day FROM clothes WHERE id = ?"
	var cloth models.Cloth
	err := s.db.QueryRowContext(ctx, clothQuery, clothID).Scan(&cloth.SellerID, &cloth.Quantity, &cloth.RentPerDay)
	s.metrics.RecordDBQuery(ctx, "SELECT", "clothes", clothQuery, start, err == nil || err == sql.ErrNoRows)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cloth: %w", err)
	}
	if !cloth.IsAvailable() {
		return nil, ErrUnavailable
	}

	if err := checkQuantity(req.Quantity, cloth.Quantity); err != nil {
		return nil, err
	}
	startDate, err := parseDate("start_date", req.StartDate)
	if err != nil {
		return nil, err
	}
	endDate, err := parseDate("end_date", req.EndDate)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if err := checkPeriod(startDate, endDate, now); err != nil {
		return nil, err
	}
	pickup, err := parseDateTime("buyer_requested_pickup_date", req.PickupAt)
	if err != nil {
		return nil, err
	}
	if pickup != nil && pickup.Before(now) {
		return nil, invalid("buyer_requested_pickup_date", "Pickup time cannot be in the past.")
	}

	start = time.Now()
	openQuery := "SELECT COUNT(*) FROM rental_requests WHERE buyer_id = ? AND cloth_id = ? AND status IN ('pending', 'approved')"
	var open int
	err = s.db.QueryRowContext(ctx, openQuery, buyerID, clothID).Scan(&open)
	s.metrics.RecordDBQuery(ctx, "SELECT", "rental_requests", openQuery, start, err == nil)
	if err != nil {
		return nil, fmt.Errorf("failed to check open requests: %w", err)
	}
	if open > 0 {
		return nil, ErrDuplicateRequest
	}

	days, price := Quote(startDate, endDate, req.Quantity, cloth.RentPerDay)

	var pickupArg interface{}
	if pickup != nil {
		pickupArg = *pickup
	}

	start = time.Now()
	insert := `
		INSERT INTO rental_requests
			(buyer_id, seller_id, cloth_id, quantity, start_date, end_date, total_days, total_price,
			 status, payment_status, payment_mode, buyer_requested_pickup_at, buyer_note, seller_note)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, '')
	`
	result, err := s.db.ExecContext(ctx, insert, buyerID, cloth.SellerID, clothID, req.Quantity,
		startDate.Format(dateLayout), endDate.Format(dateLayout), days, price.StringFixed(2),
		string(models.StatusPending), string(models.PaymentPending), models.DefaultPaymentMode, pickupArg, req.BuyerNote)
	s.metrics.RecordDBQuery(ctx, "INSERT", "rental_requests", insert, start, err == nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create rental request: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get rental request ID: %w", err)
	}

	s.metrics.RentalRequestsCreated.Add(ctx, 1, metric.WithAttributes(s.metrics.WithServiceName([]attribute.KeyValue{
		attribute.Int64("cloth_id", clothID),
	})...))
	s.logger.Info("rental request created",
		zap.Int64("rental_id", id),
		zap.Int64("buyer_id", buyerID),
		zap.Int64("cloth_id", clothID),
		zap.Int("total_days", days),
		zap.String("total_price", price.StringFixed(2)),
	)

	detail, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.notifier.NewRequest(ctx, detail); err != nil {
		return detail, err
	}
	return detail, nil
}

// Edit changes quantity and dates of a pending request, re-checked against
// the cloth's current stock and rent.
func (s *RentalService) Edit(ctx context.Context, buyerID, id int64, req models.EditRentalRequest) (*models.RentalDetail, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	d, err := s.lock(ctx, tx, id, buyerID, actorBuyer)
	if err != nil {
		return nil, err
	}
	if d.Status != models.StatusPending {
		return nil, ErrInvalidState
	}

	_, stock, err := s.clothStock(ctx, tx, d.ClothID)
	if err != nil {
		return nil, err
	}
	if err := checkQuantity(req.Quantity, stock); err != nil {
		return nil, err
	}
	startDate, err := parseDate("start_date", req.StartDate)
	if err != nil {
		return nil, err
	}
	endDate, err := parseDate("end_date", req.EndDate)
	if err != nil {
		return nil, err
	}
	if dateOnly(endDate).Before(dateOnly(startDate)) {
		return nil, invalid("end_date", "Invalid date range.")
	}

	days, price := Quote(startDate, endDate, req.Quantity, d.RentPerDay)

	start := time.Now()
	query := "UPDATE rental_requests SET quantity = ?, start_date = ?, end_date = ?, total_days = ?, total_price = ? WHERE id = ?"
	_, err = tx.ExecContext(ctx, query, req.Quantity, startDate.Format(dateLayout), endDate.Format(dateLayout), days, price.StringFixed(2), id)
	s.metrics.RecordDBQuery(ctx, "UPDATE", "rental_requests", query, start, err == nil)
	if err != nil {
		return nil, fmt.Errorf("failed to update rental request: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	d.Quantity = req.Quantity
	d.StartDate = startDate
	d.EndDate = endDate
	d.TotalDays = days
	d.TotalPrice = price
	return d, nil
}

// Cancel withdraws a pending or approved request. Stock comes back only if
// it had been taken on approval.
func (s *RentalService) Cancel(ctx context.Context, buyerID, id int64) (*models.RentalDetail, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	d, err := s.lock(ctx, tx, id, buyerID, actorBuyer)
	if err != nil {
		return nil, err
	}
	from := d.Status
	if !CanTransition(from, models.StatusCancelled) {
		return nil, ErrInvalidState
	}

	if err := s.adjustStock(ctx, tx, d.ClothID, StockDelta(from, models.StatusCancelled, d.Quantity)); err != nil {
		return nil, err
	}
	if err := s.setStatus(ctx, tx, id, models.StatusCancelled); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	d.Status = models.StatusCancelled
	s.transitioned(ctx, d, from)
	return d, nil
}

// Accept approves a pending request and takes its quantity out of stock.
// When stock is short the request stays pending.
func (s *RentalService) Accept(ctx context.Context, sellerID, id int64, req models.SellerDecisionRequest) (*models.RentalDetail, error) {
	req.SellerNote = strings.TrimSpace(req.SellerNote)
	if err := validateStruct(req); err != nil {
		return nil, err
	}
	pickup, err := parseDateTime("seller_confirmed_pickup_date", req.ConfirmedPickupAt)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	d, err := s.lock(ctx, tx, id, sellerID, actorSeller)
	if err != nil {
		return nil, err
	}
	from := d.Status
	if from != models.StatusPending {
		return nil, ErrInvalidState
	}

	if err := s.adjustStock(ctx, tx, d.ClothID, StockDelta(from, models.StatusApproved, d.Quantity)); err != nil {
		return nil, err
	}

	if req.SellerNote != "" {
		d.SellerNote = req.SellerNote
	}
	if pickup != nil {
		d.SellerConfirmedPickupAt = pickup
	}
	var pickupArg interface{}
	if d.SellerConfirmedPickupAt != nil {
		pickupArg = *d.SellerConfirmedPickupAt
	}

	start := time.Now()
	query := "UPDATE rental_requests SET status = ?, seller_note = ?, seller_confirmed_pickup_at = ? WHERE id = ?"
	_, err = tx.ExecContext(ctx, query, string(models.StatusApproved), d.SellerNote, pickupArg, id)
	s.metrics.RecordDBQuery(ctx, "UPDATE", "rental_requests", query, start, err == nil)
	if err != nil {
		return nil, fmt.Errorf("failed to approve rental request: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	d.Status = models.StatusApproved
	s.transitioned(ctx, d, from)
	if err := s.notifier.Approved(ctx, d); err != nil {
		return d, err
	}
	return d, nil
}

// Reject declines a pending request.
func (s *RentalService) Reject(ctx context.Context, sellerID, id int64, req models.SellerDecisionRequest) (*models.RentalDetail, error) {
	req.SellerNote = strings.TrimSpace(req.SellerNote)
	if err := validateStruct(req); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	d, err := s.lock(ctx, tx, id, sellerID, actorSeller)
	if err != nil {
		return nil, err
	}
	from := d.Status
	if from != models.StatusPending {
		return nil, ErrInvalidState
	}

	if req.SellerNote != "" {
		d.SellerNote = req.SellerNote
	}

	start := time.Now()
	query := "UPDATE rental_requests SET status = ?, seller_note = ? WHERE id = ?"
	_, err = tx.ExecContext(ctx, query, string(models.StatusRejected), d.SellerNote, id)
	s.metrics.RecordDBQuery(ctx, "UPDATE", "rental_requests", query, start, err == nil)
	if err != nil {
		return nil, fmt.Errorf("failed to reject rental request: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	d.Status = models.StatusRejected
	s.transitioned(ctx, d, from)
	if err := s.notifier.Rejected(ctx, d); err != nil {
		return d, err
	}
	return d, nil
}

// MarkPaid records cash collection on an approved request and emails the
// PDF receipt.
func (s *RentalService) MarkPaid(ctx context.Context, sellerID, id int64) (*models.RentalDetail, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	d, err := s.lock(ctx, tx, id, sellerID, actorSeller)
	if err != nil {
		return nil, err
	}
	if d.Status != models.StatusApproved || d.PaymentStatus != models.PaymentPending {
		return nil, ErrInvalidState
	}

	start := time.Now()
	query := "UPDATE rental_requests SET payment_status = ? WHERE id = ?"
	_, err = tx.ExecContext(ctx, query, string(models.PaymentPaid), id)
	s.metrics.RecordDBQuery(ctx, "UPDATE", "rental_requests", query, start, err == nil)
	if err != nil {
		return nil, fmt.Errorf("failed to mark rental paid: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	d.PaymentStatus = models.PaymentPaid
	amount, _ := d.TotalPrice.Float64()
	s.metrics.RevenueTotal.Add(ctx, amount, metric.WithAttributes(s.metrics.WithServiceName([]attribute.KeyValue{
		attribute.String("currency", "INR"),
		attribute.String("payment_mode", d.PaymentMode),
	})...))
	s.logger.Info("rental payment received",
		zap.Int64("rental_id", d.ID),
		zap.String("order_id", d.OrderID()),
		zap.String("amount", d.TotalPrice.StringFixed(2)),
	)

	if err := s.notifier.Receipt(ctx, d); err != nil {
		return d, err
	}
	return d, nil
}

// Complete closes a paid, approved rental and puts the items back in stock.
func (s *RentalService) Complete(ctx context.Context, sellerID, id int64) (*models.RentalDetail, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	d, err := s.lock(ctx, tx, id, sellerID, actorSeller)
	if err != nil {
		return nil, err
	}
	from := d.Status
	if from != models.StatusApproved || d.PaymentStatus != models.PaymentPaid {
		return nil, ErrInvalidState
	}

	if err := s.adjustStock(ctx, tx, d.ClothID, StockDelta(from, models.StatusCompleted, d.Quantity)); err != nil {
		return nil, err
	}
	if err := s.setStatus(ctx, tx, id, models.StatusCompleted); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	d.Status = models.StatusCompleted
	s.transitioned(ctx, d, from)
	if err := s.notifier.Completed(ctx, d); err != nil {
		return d, err
	}
	return d, nil
}

// Delete hard-deletes a cancelled or rejected request. Either party may
// delete it.
func (s *RentalService) Delete(ctx context.Context, accountID, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	d, err := s.lock(ctx, tx, id, accountID, actorEither)
	if err != nil {
		return err
	}
	if !Deletable(d.Status) {
		return ErrInvalidState
	}

	start := time.Now()
	query := "DELETE FROM rental_requests WHERE id = ?"
	_, err = tx.ExecContext(ctx, query, id)
	s.metrics.RecordDBQuery(ctx, "DELETE", "rental_requests", query, start, err == nil)
	if err != nil {
		return fmt.Errorf("failed to delete rental request: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.logger.Info("rental request deleted", zap.Int64("rental_id", id), zap.Int64("account_id", accountID))
	return nil
}

// Get returns one request with its item and parties.
func (s *RentalService) Get(ctx context.Context, id int64) (*models.RentalDetail, error) {
	start := time.Now()
	query := rentalDetailQuery + " WHERE r.id = ?"
	d, err := scanRental(s.db.QueryRowContext(ctx, query, id))
	s.metrics.RecordDBQuery(ctx, "SELECT", "rental_requests", query, start, err == nil || err == sql.ErrNoRows)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rental request: %w", err)
	}
	return d, nil
}

// ListForBuyer returns the buyer's requests, newest first.
func (s *RentalService) ListForBuyer(ctx context.Context, buyerID int64) ([]models.RentalDetail, error) {
	return s.list(ctx, "r.buyer_id", buyerID)
}

// ListForSeller returns requests received by the seller, newest first.
func (s *RentalService) ListForSeller(ctx context.Context, sellerID int64) ([]models.RentalDetail, error) {
	return s.list(ctx, "r.seller_id", sellerID)
}

func (s *RentalService) list(ctx context.Context, column string, accountID int64) ([]models.RentalDetail, error) {
	start := time.Now()
	query := rentalDetailQuery + " WHERE " + column + " = ? ORDER BY r.created_at DESC, r.id DESC"
	rows, err := s.db.QueryContext(ctx, query, accountID)
	s.metrics.RecordDBQuery(ctx, "SELECT", "rental_requests", query, start, err == nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list rental requests: %w", err)
	}
	defer rows.Close()

	out := []models.RentalDetail{}
	for rows.Next() {
		d, err := scanRental(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rental request: %w", err)
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

// Today is the date buyers may start a rental from, as YYYY-MM-DD.
func (s *RentalService) Today() string {
	return s.now().Format(dateLayout)
}
