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
)

// ProfileService manages buyer and seller profiles and their addresses
type ProfileService struct {
	db       *db.DB
	metrics  *metrics.AppMetrics
	accounts *AccountService
}

// NewProfileService creates a new profile service
func NewProfileService(db *db.DB, metrics *metrics.AppMetrics, accounts *AccountService) *ProfileService {
	return &ProfileService{db: db, metrics: metrics, accounts: accounts}
}

type nullAddress struct {
	id                                     sql.NullInt64
	building, taluka, city, state, pincode sql.NullString
}

func (n *nullAddress) dest() []interface{} {
	return []interface{}{&n.id, &n.building, &n.taluka, &n.city, &n.state, &n.pincode}
}

func (n *nullAddress) address() *models.Address {
	if !n.id.Valid {
		return nil
	}
	return &models.Address{
		ID:       n.id.Int64,
		Building: n.building.String,
		Taluka:   n.taluka.String,
		City:     n.city.String,
		State:    n.state.String,
		Pincode:  n.pincode.String,
	}
}

// BuyerProfile returns the buyer's profile, creating an empty one if the
// account has none yet.
func (s *ProfileService) BuyerProfile(ctx context.Context, accountID int64) (*models.BuyerProfile, error) {
	acc, err := s.accounts.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	profile, err := s.loadBuyerProfile(ctx, accountID)
	if err == sql.ErrNoRows {
		start := time.Now()
		insert := "INSERT IGNORE INTO buyer_profiles (account_id) VALUES (?)"
		_, err = s.db.ExecContext(ctx, insert, accountID)
		s.metrics.RecordDBQuery(ctx, "INSERT", "buyer_profiles", insert, start, err == nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create buyer profile: %w", err)
		}
		profile, err = s.loadBuyerProfile(ctx, accountID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get buyer profile: %w", err)
	}

	profile.Account = *acc
	return profile, nil
}

func (s *ProfileService) loadBuyerProfile(ctx context.Context, accountID int64) (*models.BuyerProfile, error) {
	start := time.Now()
	query := `
		SELECT bp.id, bp.created_at, bp.updated_at,
		       a.id, a.building, a.taluka, a.city, a.state, a.pincode
		FROM buyer_profiles bp
		LEFT JOIN addresses a ON a.id = bp.address_id
		WHERE bp.account_id = ?
	`
	var p models.BuyerProfile
	var addr nullAddress
	dest := append([]interface{}{&p.ID, &p.CreatedAt, &p.UpdatedAt}, addr.dest()...)
	err := s.db.QueryRowContext(ctx, query, accountID).Scan(dest...)
	s.metrics.RecordDBQuery(ctx, "SELECT", "buyer_profiles", query, start, err == nil || err == sql.ErrNoRows)
	if err != nil {
		return nil, err
	}
	p.Address = addr.address()
	return &p, nil
}

// UpdateBuyerProfile saves names and contact. The address is only touched
// when at least one address field is filled in.
func (s *ProfileService) UpdateBuyerProfile(ctx context.Context, accountID int64, req models.UpdateBuyerProfileRequest) (*models.BuyerProfile, error) {
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)
	req.AddressInput = trimAddress(req.AddressInput)
	if err := validateStruct(req); err != nil {
		return nil, err
	}

	profile, err := s.BuyerProfile(ctx, accountID)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	start := time.Now()
	query := "UPDATE accounts SET first_name = ?, last_name = ?, contact = ? WHERE id = ?"
	_, err = tx.ExecContext(ctx, query, req.FirstName, req.LastName, req.Contact, accountID)
	s.metrics.RecordDBQuery(ctx, "UPDATE", "accounts", query, start, err == nil)
	if err != nil {
		return nil, fmt.Errorf("failed to update account: %w", err)
	}

	if !req.AddressInput.Empty() {
		if profile.Address != nil {
			if err := s.updateAddress(ctx, tx, profile.Address.ID, req.AddressInput); err != nil {
				return nil, err
			}
		} else {
			addressID, err := s.accounts.insertAddress(ctx, tx, req.AddressInput)
			if err != nil {
				return nil, err
			}
			start = time.Now()
			link := "UPDATE buyer_profiles SET address_id = ? WHERE id = ?"
			_, err = tx.ExecContext(ctx, link, addressID, profile.ID)
			s.metrics.RecordDBQuery(ctx, "UPDATE", "buyer_profiles", link, start, err == nil)
			if err != nil {
				return nil, fmt.Errorf("failed to link address: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return s.BuyerProfile(ctx, accountID)
}

// SellerProfile returns the seller's profile, creating one named after the
// account if missing.
func (s *ProfileService) SellerProfile(ctx context.Context, accountID int64) (*models.SellerProfile, error) {
	acc, err := s.accounts.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	profile, err := s.loadSellerProfile(ctx, accountID)
	if err == sql.ErrNoRows {
		start := time.Now()
		insert := "INSERT IGNORE INTO seller_profiles (account_id, store_name) VALUES (?, ?)"
		_, err = s.db.ExecContext(ctx, insert, accountID, strings.TrimSpace(acc.FirstName+" "+acc.LastName)+" Wardrobe")
		s.metrics.RecordDBQuery(ctx, "INSERT", "seller_profiles", insert, start, err == nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create seller profile: %w", err)
		}
		profile, err = s.loadSellerProfile(ctx, accountID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get seller profile: %w", err)
	}

	profile.Account = *acc
	return profile, nil
}

func (s *ProfileService) loadSellerProfile(ctx context.Context, accountID int64) (*models.SellerProfile, error) {
	start := time.Now()
	query := `
		SELECT sp.id, sp.store_name, sp.is_verified, sp.created_at, sp.updated_at,
		       a.id, a.building, a.taluka, a.city, a.state, a.pincode
		FROM seller_profiles sp
		LEFT JOIN addresses a ON a.id = sp.pickup_address_id
		WHERE sp.account_id = ?
	`
	var p models.SellerProfile
	var addr nullAddress
	dest := append([]interface{}{&p.ID, &p.StoreName, &p.IsVerified, &p.CreatedAt, &p.UpdatedAt}, addr.dest()...)
	err := s.db.QueryRowContext(ctx, query, accountID).Scan(dest...)
	s.metrics.RecordDBQuery(ctx, "SELECT", "seller_profiles", query, start, err == nil || err == sql.ErrNoRows)
	if err != nil {
		return nil, err
	}
	p.PickupAddress = addr.address()
	return &p, nil
}

// UpdateSellerProfile saves the store name and pickup address together.
func (s *ProfileService) UpdateSellerProfile(ctx context.Context, accountID int64, req models.UpdateSellerProfileRequest) (*models.SellerProfile, error) {
	req.StoreName = strings.TrimSpace(req.StoreName)
	if err := validateStruct(req); err != nil {
		return nil, err
	}
	addr := trimAddress(models.AddressInput{
		Building: req.Building, Taluka: req.Taluka, City: req.City, State: req.State, Pincode: req.Pincode,
	})

	profile, err := s.SellerProfile(ctx, accountID)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	addressID := int64(0)
	if profile.PickupAddress != nil {
		addressID = profile.PickupAddress.ID
		if err := s.updateAddress(ctx, tx, addressID, addr); err != nil {
			return nil, err
		}
	} else {
		if addressID, err = s.accounts.insertAddress(ctx, tx, addr); err != nil {
			return nil, err
		}
	}

	start := time.Now()
	query := "UPDATE seller_profiles SET store_name = ?, pickup_address_id = ? WHERE id = ?"
	_, err = tx.ExecContext(ctx, query, req.StoreName, addressID, profile.ID)
	s.metrics.RecordDBQuery(ctx, "UPDATE", "seller_profiles", query, start, err == nil)
	if err != nil {
		return nil, fmt.Errorf("failed to update seller profile: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return s.SellerProfile(ctx, accountID)
}

func (s *ProfileService) updateAddress(ctx context.Context, tx *sql.Tx, id int64, in models.AddressInput) error {
	start := time.Now()
	query := "UPDATE addresses SET building = ?, taluka = ?, city = ?, state = ?, pincode = ? WHERE id = ?"
	_, err := tx.ExecContext(ctx, query, in.Building, in.Taluka, in.City, in.State, in.Pincode, id)
	s.metrics.RecordDBQuery(ctx, "UPDATE", "addresses", query, start, err == nil)
	if err != nil {
		return fmt.Errorf("failed to update address: %w", err)
	}
	return nil
}

func trimAddress(in models.AddressInput) models.AddressInput {
	return models.AddressInput{
		Building: strings.TrimSpace(in.Building),
		Taluka:   strings.TrimSpace(in.Taluka),
		City:     strings.TrimSpace(in.City),
		State:    strings.TrimSpace(in.State),
		Pincode:  strings.TrimSpace(in.Pincode),
	}
}
