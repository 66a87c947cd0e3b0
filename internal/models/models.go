package models

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Role names accepted at registration and carried in session tokens.
const (
	RoleBuyer  = "buyer"
	RoleSeller = "seller"
)

// RentalStatus is the lifecycle state of a rental request.
type RentalStatus string

const (
	StatusPending   RentalStatus = "pending"
	StatusApproved  RentalStatus = "approved"
	StatusRejected  RentalStatus = "rejected"
	StatusCancelled RentalStatus = "cancelled"
	StatusCompleted RentalStatus = "completed"
)

// PaymentStatus tracks whether the seller has collected the rent.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
)

// DefaultPaymentMode is the only payment mode the marketplace supports.
const DefaultPaymentMode = "cash"

// ClothCondition describes the wear of a listed garment.
type ClothCondition string

const (
	ConditionNew     ClothCondition = "new"
	ConditionLikeNew ClothCondition = "like_new"
	ConditionGood    ClothCondition = "good"
	ConditionFair    ClothCondition = "fair"
)

// Valid reports whether c is one of the known conditions.
func (c ClothCondition) Valid() bool {
	switch c {
	case ConditionNew, ConditionLikeNew, ConditionGood, ConditionFair:
		return true
	}
	return false
}

// DefaultImage is the placeholder reference for items without an upload.
const DefaultImage = "clothes/default.png"

// Account represents a buyer or seller login
type Account struct {
	ID           int64     `json:"id" db:"id"`
	Email        string    `json:"email" db:"email"`
	PasswordHash string    `json:"-" db:"password_hash"`
	FirstName    string    `json:"first_name" db:"first_name"`
	LastName     string    `json:"last_name" db:"last_name"`
	Contact      string    `json:"contact" db:"contact"`
	IsBuyer      bool      `json:"is_buyer" db:"is_buyer"`
	IsSeller     bool      `json:"is_seller" db:"is_seller"`
	IsActive     bool      `json:"is_active" db:"is_active"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// Role returns the role the account acts under, or "" when neither flag is set.
func (a *Account) Role() string {
	switch {
	case a.IsBuyer:
		return RoleBuyer
	case a.IsSeller:
		return RoleSeller
	}
	return ""
}

// Address represents a postal address used for profiles and pickup
type Address struct {
	ID       int64  `json:"id" db:"id"`
	Building string `json:"building" db:"building"`
	Taluka   string `json:"taluka" db:"taluka"`
	City     string `json:"city" db:"city"`
	State    string `json:"state" db:"state"`
	Pincode  string `json:"pincode" db:"pincode"`
}

// Full renders the address on one line.
func (a *Address) Full() string {
	if a == nil {
		return ""
	}
	return a.Building + ", " + a.Taluka + ", " + a.City + ", " + a.State + ", " + a.Pincode
}

// BuyerProfile links a buyer account to an optional address
type BuyerProfile struct {
	ID        int64     `json:"id" db:"id"`
	Account   Account   `json:"account"`
	Address   *Address  `json:"address,omitempty"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// SellerProfile links a seller account to a store and pickup address
type SellerProfile struct {
	ID            int64     `json:"id" db:"id"`
	Account       Account   `json:"account"`
	StoreName     string    `json:"store_name" db:"store_name"`
	PickupAddress *Address  `json:"pickup_address,omitempty"`
	IsVerified    bool      `json:"is_verified" db:"is_verified"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}

// Category groups catalog items
type Category struct {
	ID       int64  `json:"id" db:"id"`
	Name     string `json:"name" db:"name"`
	Slug     string `json:"slug" db:"slug"`
	IsActive bool   `json:"is_active" db:"is_active"`
}

// Cloth represents a garment listed by a seller
type Cloth struct {
	ID          int64           `json:"id" db:"id"`
	SellerID    int64           `json:"seller_id" db:"seller_id"`
	Name        string          `json:"name" db:"name"`
	Description string          `json:"description" db:"description"`
	Image       string          `json:"image" db:"image"`
	Quantity    int             `json:"quantity" db:"quantity"`
	RentPerDay  decimal.Decimal `json:"rent_per_day" db:"rent_per_day"`
	Condition   ClothCondition  `json:"condition" db:"cloth_condition"`
	Categories  []Category      `json:"categories"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`
}

// IsAvailable is derived from stock; it is never stored.
func (c *Cloth) IsAvailable() bool {
	return c.Quantity > 0
}

// ClothListing is a catalog entry as presented to a browsing buyer
type ClothListing struct {
	Cloth
	Available        bool   `json:"available"`
	StoreName        string `json:"store_name"`
	Pincode          string `json:"pincode,omitempty"`
	AlreadyRequested bool   `json:"already_requested"`
}

// ClothDetail is a single catalog item with its seller's pickup location
type ClothDetail struct {
	ClothListing
	PickupAddress *Address `json:"pickup_address,omitempty"`
	FullAddress   string   `json:"full_address"`
}

// RentalRequest represents a buyer's request to rent a catalog item
type RentalRequest struct {
	ID                      int64           `json:"id" db:"id"`
	BuyerID                 int64           `json:"buyer_id" db:"buyer_id"`
	SellerID                int64           `json:"seller_id" db:"seller_id"`
	ClothID                 int64           `json:"cloth_id" db:"cloth_id"`
	Quantity                int             `json:"quantity" db:"quantity"`
	StartDate               time.Time       `json:"start_date" db:"start_date"`
	EndDate                 time.Time       `json:"end_date" db:"end_date"`
	TotalDays               int             `json:"total_days" db:"total_days"`
	TotalPrice              decimal.Decimal `json:"total_price" db:"total_price"`
	Status                  RentalStatus    `json:"status" db:"status"`
	PaymentStatus           PaymentStatus   `json:"payment_status" db:"payment_status"`
	PaymentMode             string          `json:"payment_mode" db:"payment_mode"`
	BuyerRequestedPickupAt  *time.Time      `json:"buyer_requested_pickup_at,omitempty" db:"buyer_requested_pickup_at"`
	SellerConfirmedPickupAt *time.Time      `json:"seller_confirmed_pickup_at,omitempty" db:"seller_confirmed_pickup_at"`
	BuyerNote               string          `json:"buyer_note" db:"buyer_note"`
	SellerNote              string          `json:"seller_note" db:"seller_note"`
	CreatedAt               time.Time       `json:"created_at" db:"created_at"`
}

// OrderID is the human-facing identifier printed on receipts.
func (r *RentalRequest) OrderID() string {
	return "RENT" + strconv.FormatInt(r.ID, 10)
}

// RentalDetail is a rental request joined with the parties and the item,
// the shape used by dashboards and notifications.
type RentalDetail struct {
	RentalRequest
	ClothName   string          `json:"cloth_name"`
	ClothImage  string          `json:"cloth_image"`
	RentPerDay  decimal.Decimal `json:"rent_per_day"`
	BuyerName   string          `json:"buyer_name"`
	BuyerEmail  string          `json:"buyer_email"`
	SellerName  string          `json:"seller_name"`
	SellerEmail string          `json:"seller_email"`
}

// RegisterRequest represents the registration form
type RegisterRequest struct {
	Role      string `json:"role"`
	FullName  string `json:"full_name" validate:"required,max=150"`
	Email     string `json:"email" validate:"required,email,max=254"`
	Contact   string `json:"contact" validate:"required,len=10,number"`
	Password  string `json:"password" validate:"required,min=6,max=72"`
	Building  string `json:"building" validate:"required,max=255"`
	Taluka    string `json:"taluka" validate:"required,max=100"`
	City      string `json:"city" validate:"required,max=100"`
	State     string `json:"state" validate:"required,max=100"`
	Pincode   string `json:"pincode" validate:"required,len=6,number"`
	StoreName string `json:"store_name" validate:"max=150"`
}

// LoginRequest represents the login form
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// ForgotPasswordRequest starts the password reset flow
type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// VerifyCodeRequest submits the emailed reset code
type VerifyCodeRequest struct {
	Email string `json:"email" validate:"required,email"`
	Code  string `json:"otp" validate:"required,len=6,number"`
}

// ResetPasswordRequest sets a new password with a verified reset ticket
type ResetPasswordRequest struct {
	Ticket   string `json:"ticket" validate:"required"`
	Password string `json:"password" validate:"required,min=6,max=72"`
	Confirm  string `json:"confirm" validate:"required"`
}

// AddressInput carries address fields from profile forms
type AddressInput struct {
	Building string `json:"building" validate:"max=255"`
	Taluka   string `json:"taluka" validate:"max=100"`
	City     string `json:"city" validate:"max=100"`
	State    string `json:"state" validate:"max=100"`
	Pincode  string `json:"pincode" validate:"omitempty,len=6,number"`
}

// Empty reports whether every field is blank.
func (a AddressInput) Empty() bool {
	return a.Building == "" && a.Taluka == "" && a.City == "" && a.State == "" && a.Pincode == ""
}

// UpdateBuyerProfileRequest represents the buyer dashboard form
type UpdateBuyerProfileRequest struct {
	FirstName string `json:"first_name" validate:"max=150"`
	LastName  string `json:"last_name" validate:"max=150"`
	Contact   string `json:"contact" validate:"required,len=10,number"`
	AddressInput
}

// UpdateSellerProfileRequest represents the seller dashboard form
type UpdateSellerProfileRequest struct {
	StoreName string `json:"store_name" validate:"required,max=150"`
	Building  string `json:"building" validate:"required,max=255"`
	Taluka    string `json:"taluka" validate:"required,max=100"`
	City      string `json:"city" validate:"required,max=100"`
	State     string `json:"state" validate:"required,max=100"`
	Pincode   string `json:"pincode" validate:"required,len=6,number"`
}

// ImageUpload is an uploaded image already read into memory
type ImageUpload struct {
	Filename string
	Data     []byte
}

// ClothInput carries the listing form for create and edit
type ClothInput struct {
	Name        string
	Description string
	Quantity    int
	RentPerDay  decimal.Decimal
	Condition   ClothCondition
	CategoryIDs []int64
	Image       *ImageUpload
}

// CreateRentalRequest represents the rent form on a catalog item
type CreateRentalRequest struct {
	Quantity  int    `json:"quantity"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	PickupAt  string `json:"buyer_requested_pickup_date"`
	BuyerNote string `json:"buyer_note" validate:"max=1000"`
}

// EditRentalRequest represents the buyer's edit of a pending request
type EditRentalRequest struct {
	Quantity  int    `json:"quantity"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

// SellerDecisionRequest carries optional seller input on accept or reject
type SellerDecisionRequest struct {
	SellerNote        string `json:"seller_note" validate:"max=1000"`
	ConfirmedPickupAt string `json:"seller_confirmed_pickup_date"`
}

// BrowseFilter narrows the public catalog
type BrowseFilter struct {
	CategoryID int64
	Pincode    string
}

// BuyerDashboard is the buyer landing page payload
type BuyerDashboard struct {
	Profile     *BuyerProfile  `json:"profile"`
	FullAddress string         `json:"full_address"`
	Requests    []RentalDetail `json:"requests"`
	Today       string         `json:"today"`
}

// SellerDashboard is the seller landing page payload
type SellerDashboard struct {
	Profile     *SellerProfile `json:"profile"`
	FullAddress string         `json:"full_address"`
	Requests    []RentalDetail `json:"requests"`
}
