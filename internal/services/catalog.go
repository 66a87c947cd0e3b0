package services

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rentify/rentify-go/internal/db"
	"github.com/rentify/rentify-go/internal/metrics"
	"github.com/rentify/rentify-go/internal/models"
	"github.com/rentify/rentify-go/internal/storage"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// ImageStore persists uploaded cloth images.
type ImageStore interface {
	Save(originalName string, data []byte) (string, error)
	Remove(ref string) error
}

// CatalogService handles seller listings and buyer browsing
type CatalogService struct {
	db      *db.DB
	metrics *metrics.AppMetrics
	images  ImageStore
	logger  *zap.Logger
}

// NewCatalogService creates a new catalog service
func NewCatalogService(db *db.DB, metrics *metrics.AppMetrics, images ImageStore, logger *zap.Logger) *CatalogService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CatalogService{db: db, metrics: metrics, images: images, logger: logger}
}

const clothColumns = "c.id, c.seller_id, c.name, c.description, c.image, c.quantity, c.rent_per_day, c.cloth_condition, c.created_at, c.updated_at"

func clothDest(c *models.Cloth) []interface{} {
	return []interface{}{&c.ID, &c.SellerID, &c.Name, &c.Description, &c.Image, &c.Quantity,
		&c.RentPerDay, &c.Condition, &c.CreatedAt, &c.UpdatedAt}
}

func (s *CatalogService) validateInput(in *models.ClothInput, creating bool) error {
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)

	if utf8.RuneCountInString(in.Name) < 3 {
		return invalid("name", "Name must be at least 3 characters.")
	}
	if utf8.RuneCountInString(in.Name) > 100 {
		return invalid("name", "Name must be at most 100 characters.")
	}
	if utf8.RuneCountInString(in.Description) > 500 {
		return invalid("description", "Description must be at most 500 characters.")
	}
	if creating && in.Quantity <= 0 {
		return invalid("quantity", "Quantity must be greater than 0.")
	}
	if in.Quantity < 0 {
		return invalid("quantity", "Quantity cannot be negative.")
	}
	if !in.RentPerDay.GreaterThan(decimal.Zero) {
		return invalid("rent_per_day", "Rent per day must be greater than 0.")
	}
	if in.RentPerDay.GreaterThanOrEqual(decimal.NewFromInt(1000000)) {
		return invalid("rent_per_day", "Rent per day is too large.")
	}
	in.RentPerDay = in.RentPerDay.Round(2)

	if in.Condition == "" {
		in.Condition = models.ConditionGood
	}
	if !in.Condition.Valid() {
		return invalid("condition", "Select a valid condition.")
	}

	in.CategoryIDs = uniqueIDs(in.CategoryIDs)
	if creating && len(in.CategoryIDs) == 0 {
		return invalid("categories", "Select at least one category.")
	}

	if in.Image != nil {
		if _, err := storage.Validate(in.Image.Data); err != nil {
			return invalid("image", err.Error())
		}
	} else if creating {
		return invalid("image", storage.ErrEmptyImage.Error())
	}
	return nil
}

func (s *CatalogService) checkCategories(ctx context.Context, q queryer, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	start := time.Now()
	query := fmt.Sprintf("SELECT COUNT(*) FROM categories WHERE is_active = TRUE AND id IN (%s)", placeholders(len(ids)))
	var n int
	err := q.QueryRowContext(ctx, query, int64Args(ids)...).Scan(&n)
	s.metrics.RecordDBQuery(ctx, "SELECT", "categories", query, start, err == nil)
	if err != nil {
		return fmt.Errorf("failed to check categories: %w", err)
	}
	if n != len(ids) {
		return invalid("categories", "Select only active categories.")
	}
	return nil
}

func (s *CatalogService) linkCategories(ctx context.Context, tx *sql.Tx, clothID int64, ids []int64) error {
	query := "INSERT INTO cloth_categories (cloth_id, category_id) VALUES (?, ?)"
	for _, id := range ids {
		start := time.Now()
		_, err := tx.ExecContext(ctx, query, clothID, id)
		s.metrics.RecordDBQuery(ctx, "INSERT", "cloth_categories", query, start, err == nil)
		if err != nil {
			return fmt.Errorf("failed to link category: %w", err)
		}
	}
	return nil
}

// Create lists a new cloth for the seller.
func (s *CatalogService) Create(ctx context.Context, sellerID int64, in models.ClothInput) (*models.Cloth, error) {
	if err := s.validateInput(&in, true); err != nil {
		return nil, err
	}
	if err := s.checkCategories(ctx, s.db, in.CategoryIDs); err != nil {
		return nil, err
	}

	image, err := s.images.Save(in.Image.Filename, in.Image.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to store image: %w", err)
	}

	cloth, err := s.insertCloth(ctx, sellerID, image, in)
	if err != nil {
		if rmErr := s.images.Remove(image); rmErr != nil {
			s.logger.Warn("failed to remove orphaned image", zap.String("ref", image), zap.Error(rmErr))
		}
		return nil, err
	}

	s.metrics.RecordStock(ctx, cloth.ID, cloth.Quantity)
	s.logger.Info("cloth listed", zap.Int64("cloth_id", cloth.ID), zap.Int64("seller_id", sellerID))
	return s.Get(ctx, cloth.ID)
}

func (s *CatalogService) insertCloth(ctx context.Context, sellerID int64, image string, in models.ClothInput) (*models.Cloth, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	start := time.Now()
	query := "INSERT INTO clothes (seller_id, name, description, image, quantity, rent_per_day, cloth_condition) VALUES (?, ?, ?, ?, ?, ?, ?)"
	result, err := tx.ExecContext(ctx, query, sellerID, in.Name, in.Description, image, in.Quantity, in.RentPerDay.StringFixed(2), string(in.Condition))
	s.metrics.RecordDBQuery(ctx, "INSERT", "clothes", query, start, err == nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cloth: %w", err)
	}
	clothID, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get cloth ID: %w", err)
	}

	if err := s.linkCategories(ctx, tx, clothID, in.CategoryIDs); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return &models.Cloth{ID: clothID, SellerID: sellerID, Quantity: in.Quantity}, nil
}

// lockOwned loads a cloth for update and checks it belongs to sellerID.
func (s *CatalogService) lockOwned(ctx context.Context, tx *sql.Tx, sellerID, clothID int64) (*models.Cloth, error) {
	start := time.Now()
	query := "SELECT " + clothColumns + " FROM clothes c WHERE c.id = ? FOR UPDATE"
	var c models.Cloth
	err := tx.QueryRowContext(ctx, query, clothID).Scan(clothDest(&c)...)
	s.metrics.RecordDBQuery(ctx, "SELECT", "clothes", query, start, err == nil || err == sql.ErrNoRows)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cloth: %w", err)
	}
	if c.SellerID != sellerID {
		return nil, ErrForbidden
	}
	return &c, nil
}

// Update edits an owned cloth. Stock may be set to zero. Categories are
// replaced only when some are supplied; the image only when a new one is
// uploaded.
func (s *CatalogService) Update(ctx context.Context, sellerID, clothID int64, in models.ClothInput) (*models.Cloth, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	current, err := s.lockOwned(ctx, tx, sellerID, clothID)
	if err != nil {
		return nil, err
	}
	if err := s.validateInput(&in, false); err != nil {
		return nil, err
	}
	if err := s.checkCategories(ctx, tx, in.CategoryIDs); err != nil {
		return nil, err
	}

	image := current.Image
	committed := false
	if in.Image != nil {
		if image, err = s.images.Save(in.Image.Filename, in.Image.Data); err != nil {
			return nil, fmt.Errorf("failed to store image: %w", err)
		}
		saved := image
		defer func() {
			if committed {
				return
			}
			if rmErr := s.images.Remove(saved); rmErr != nil {
				s.logger.Warn("failed to remove orphaned image", zap.String("ref", saved), zap.Error(rmErr))
			}
		}()
	}

	start := time.Now()
	query := "UPDATE clothes SET name = ?, description = ?, image = ?, quantity = ?, rent_per_day = ?, cloth_condition = ? WHERE id = ?"
	_, err = tx.ExecContext(ctx, query, in.Name, in.Description, image, in.Quantity, in.RentPerDay.StringFixed(2), string(in.Condition), clothID)
	s.metrics.RecordDBQuery(ctx, "UPDATE", "clothes", query, start, err == nil)
	if err != nil {
		return nil, fmt.Errorf("failed to update cloth: %w", err)
	}

	if len(in.CategoryIDs) > 0 {
		start = time.Now()
		unlink := "DELETE FROM cloth_categories WHERE cloth_id = ?"
		_, err = tx.ExecContext(ctx, unlink, clothID)
		s.metrics.RecordDBQuery(ctx, "DELETE", "cloth_categories", unlink, start, err == nil)
		if err != nil {
			return nil, fmt.Errorf("failed to clear categories: %w", err)
		}
		if err := s.linkCategories(ctx, tx, clothID, in.CategoryIDs); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	committed = true

	if image != current.Image {
		if err := s.images.Remove(current.Image); err != nil {
			s.logger.Warn("failed to remove replaced image", zap.String("ref", current.Image), zap.Error(err))
		}
	}
	s.metrics.RecordStock(ctx, clothID, in.Quantity)
	return s.Get(ctx, clothID)
}

// Delete removes an owned cloth. Items with pending or approved rentals
// cannot be deleted.
func (s *CatalogService) Delete(ctx context.Context, sellerID, clothID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	current, err := s.lockOwned(ctx, tx, sellerID, clothID)
	if err != nil {
		return err
	}

	start := time.Now()
	openQuery := "SELECT COUNT(*) FROM rental_requests WHERE cloth_id = ? AND status IN ('pending', 'approved')"
	var open int
	err = tx.QueryRowContext(ctx, openQuery, clothID).Scan(&open)
	s.metrics.RecordDBQuery(ctx, "SELECT", "rental_requests", openQuery, start, err == nil)
	if err != nil {
		return fmt.Errorf("failed to count open requests: %w", err)
	}
	if open > 0 {
		return ErrInvalidState
	}

	start = time.Now()
	query := "DELETE FROM clothes WHERE id = ?"
	_, err = tx.ExecContext(ctx, query, clothID)
	s.metrics.RecordDBQuery(ctx, "DELETE", "clothes", query, start, err == nil)
	if err != nil {
		return fmt.Errorf("failed to delete cloth: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	if err := s.images.Remove(current.Image); err != nil {
		s.logger.Warn("failed to remove image", zap.String("ref", current.Image), zap.Error(err))
	}
	s.logger.Info("cloth deleted", zap.Int64("cloth_id", clothID), zap.Int64("seller_id", sellerID))
	return nil
}

// Get returns a cloth with its categories.
func (s *CatalogService) Get(ctx context.Context, clothID int64) (*models.Cloth, error) {
	start := time.Now()
	query := "SELECT " + clothColumns + " FROM clothes c WHERE c.id = ?"
	var c models.Cloth
	err := s.db.QueryRowContext(ctx, query, clothID).Scan(clothDest(&c)...)
	s.metrics.RecordDBQuery(ctx, "SELECT", "clothes", query, start, err == nil || err == sql.ErrNoRows)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cloth: %w", err)
	}

	cats, err := s.categoriesFor(ctx, []int64{c.ID})
	if err != nil {
		return nil, err
	}
	c.Categories = cats[c.ID]
	return &c, nil
}

// Detail returns a cloth with its seller's store and pickup address. When
// buyerID is set, AlreadyRequested reflects that buyer's open requests.
func (s *CatalogService) Detail(ctx context.Context, clothID, buyerID int64) (*models.ClothDetail, error) {
	start := time.Now()
	query := `
		SELECT ` + clothColumns + `, COALESCE(sp.store_name, ''),
		       a.id, a.building, a.taluka, a.city, a.state, a.pincode
		FROM clothes c
		LEFT JOIN seller_profiles sp ON sp.account_id = c.seller_id
		LEFT JOIN addresses a ON a.id = sp.pickup_address_id
		WHERE c.id = ?
	`
	var d models.ClothDetail
	var addr nullAddress
	dest := append(clothDest(&d.Cloth), &d.StoreName)
	dest = append(dest, addr.dest()...)
	err := s.db.QueryRowContext(ctx, query, clothID).Scan(dest...)
	s.metrics.RecordDBQuery(ctx, "SELECT", "clothes", query, start, err == nil || err == sql.ErrNoRows)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cloth detail: %w", err)
	}

	d.PickupAddress = addr.address()
	d.FullAddress = d.PickupAddress.Full()
	if d.PickupAddress != nil {
		d.Pincode = d.PickupAddress.Pincode
	}
	d.Available = d.IsAvailable()

	cats, err := s.categoriesFor(ctx, []int64{d.ID})
	if err != nil {
		return nil, err
	}
	d.Categories = cats[d.ID]

	if buyerID > 0 {
		requested, err := s.requestedBy(ctx, buyerID)
		if err != nil {
			return nil, err
		}
		d.AlreadyRequested = requested[d.ID]
	}

	s.metrics.ClothViews.Add(ctx, 1, metric.WithAttributes(s.metrics.WithServiceName([]attribute.KeyValue{
		attribute.Int64("cloth_id", d.ID),
	})...))
	return &d, nil
}

// ListForSeller returns the seller's own items, newest first, optionally
// restricted to one category.
func (s *CatalogService) ListForSeller(ctx context.Context, sellerID, categoryID int64) ([]models.Cloth, error) {
	query := "SELECT " + clothColumns + " FROM clothes c WHERE c.seller_id = ?"
	args := []interface{}{sellerID}
	if categoryID > 0 {
		query += " AND EXISTS (SELECT 1 FROM cloth_categories cc WHERE cc.cloth_id = c.id AND cc.category_id = ?)"
		args = append(args, categoryID)
	}
	query += " ORDER BY c.created_at DESC, c.id DESC"

	start := time.Now()
	rows, err := s.db.QueryContext(ctx, query, args...)
	s.metrics.RecordDBQuery(ctx, "SELECT", "clothes", query, start, err == nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list clothes: %w", err)
	}
	defer rows.Close()

	clothes := []models.Cloth{}
	var ids []int64
	for rows.Next() {
		var c models.Cloth
		if err := rows.Scan(clothDest(&c)...); err != nil {
			return nil, fmt.Errorf("failed to scan cloth: %w", err)
		}
		clothes = append(clothes, c)
		ids = append(ids, c.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	cats, err := s.categoriesFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range clothes {
		clothes[i].Categories = cats[clothes[i].ID]
	}
	return clothes, nil
}

// Browse returns in-stock items, newest first, filtered by category and by
// the seller's pickup pincode.
func (s *CatalogService) Browse(ctx context.Context, filter models.BrowseFilter, buyerID int64) ([]models.ClothListing, error) {
	query := `
		SELECT ` + clothColumns + `, COALESCE(sp.store_name, ''), COALESCE(a.pincode, '')
		FROM clothes c
		LEFT JOIN seller_profiles sp ON sp.account_id = c.seller_id
		LEFT JOIN addresses a ON a.id = sp.pickup_address_id
		WHERE c.quantity > 0`
	var args []interface{}
	if filter.CategoryID > 0 {
		query += " AND EXISTS (SELECT 1 FROM cloth_categories cc WHERE cc.cloth_id = c.id AND cc.category_id = ?)"
		args = append(args, filter.CategoryID)
	}
	if pin := strings.TrimSpace(filter.Pincode); pin != "" {
		query += " AND a.pincode = ?"
		args = append(args, pin)
	}
	query += " ORDER BY c.created_at DESC, c.id DESC"

	start := time.Now()
	rows, err := s.db.QueryContext(ctx, query, args...)
	s.metrics.RecordDBQuery(ctx, "SELECT", "clothes", query, start, err == nil)
	if err != nil {
		return nil, fmt.Errorf("failed to browse clothes: %w", err)
	}
	defer rows.Close()

	listings := []models.ClothListing{}
	var ids []int64
	for rows.Next() {
		var l models.ClothListing
		dest := append(clothDest(&l.Cloth), &l.StoreName, &l.Pincode)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan cloth: %w", err)
		}
		l.Available = l.IsAvailable()
		listings = append(listings, l)
		ids = append(ids, l.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	cats, err := s.categoriesFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	var requested map[int64]bool
	if buyerID > 0 && len(listings) > 0 {
		if requested, err = s.requestedBy(ctx, buyerID); err != nil {
			return nil, err
		}
	}
	for i := range listings {
		listings[i].Categories = cats[listings[i].ID]
		listings[i].AlreadyRequested = requested[listings[i].ID]
	}
	return listings, nil
}

func (s *CatalogService) categoriesFor(ctx context.Context, clothIDs []int64) (map[int64][]models.Category, error) {
	out := make(map[int64][]models.Category, len(clothIDs))
	if len(clothIDs) == 0 {
		return out, nil
	}

	start := time.Now()
	query := fmt.Sprintf(`
		SELECT cc.cloth_id, cat.id, cat.name, cat.slug, cat.is_active
		FROM cloth_categories cc
		JOIN categories cat ON cat.id = cc.category_id
		WHERE cc.cloth_id IN (%s)
		ORDER BY cat.name`, placeholders(len(clothIDs)))
	rows, err := s.db.QueryContext(ctx, query, int64Args(clothIDs)...)
	s.metrics.RecordDBQuery(ctx, "SELECT", "cloth_categories", query, start, err == nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load categories: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var clothID int64
		var c models.Category
		if err := rows.Scan(&clothID, &c.ID, &c.Name, &c.Slug, &c.IsActive); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		out[clothID] = append(out[clothID], c)
	}
	return out, rows.Err()
}

// requestedBy returns the cloth IDs the buyer has pending or approved
// requests for.
func (s *CatalogService) requestedBy(ctx context.Context, buyerID int64) (map[int64]bool, error) {
	start := time.Now()
	query := "SELECT DISTINCT cloth_id FROM rental_requests WHERE buyer_id = ? AND status IN ('pending', 'approved')"
	rows, err := s.db.QueryContext(ctx, query, buyerID)
	s.metrics.RecordDBQuery(ctx, "SELECT", "rental_requests", query, start, err == nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load open requests: %w", err)
	}
	defer rows.Close()

	out := map[int64]bool{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan cloth id: %w", err)
		}
		out[id] = true
	}
	return out, rows.Err()
}
