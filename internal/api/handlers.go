package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rentify/rentify-go/internal/auth"
	"github.com/rentify/rentify-go/internal/db"
	"github.com/rentify/rentify-go/internal/metrics"
	"github.com/rentify/rentify-go/internal/middleware"
	"github.com/rentify/rentify-go/internal/models"
	"github.com/rentify/rentify-go/internal/services"
	"github.com/rentify/rentify-go/pkg/config"
	"go.uber.org/zap"
)

// Services groups the domain services the HTTP layer calls into.
type Services struct {
	Accounts   *services.AccountService
	Profiles   *services.ProfileService
	Passwords  *services.PasswordService
	Categories *services.CategoryService
	Catalog    *services.CatalogService
	Rentals    *services.RentalService
}

// App holds application dependencies
type App struct {
	config   *config.Config
	db       *db.DB
	metrics  *metrics.AppMetrics
	logger   *zap.Logger
	sessions *auth.SessionManager
	limiter  *middleware.RateLimiter

	accounts   *services.AccountService
	profiles   *services.ProfileService
	passwords  *services.PasswordService
	categories *services.CategoryService
	catalog    *services.CatalogService
	rentals    *services.RentalService
}

// NewApp creates a new application instance
func NewApp(
	cfg *config.Config,
	database *db.DB,
	m *metrics.AppMetrics,
	logger *zap.Logger,
	sessions *auth.SessionManager,
	svc Services,
) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	limiter := middleware.NewRateLimiter(float64(cfg.RateLimitRPS), cfg.RateLimitBurst)
	if err := limiter.TrustProxies(cfg.TrustedProxies); err != nil {
		logger.Warn("ignoring TRUSTED_PROXIES, rate limiting by socket peer", zap.Error(err))
	}

	return &App{
		config:     cfg,
		db:         database,
		metrics:    m,
		logger:     logger,
		sessions:   sessions,
		limiter:    limiter,
		accounts:   svc.Accounts,
		profiles:   svc.Profiles,
		passwords:  svc.Passwords,
		categories: svc.Categories,
		catalog:    svc.Catalog,
		rentals:    svc.Rentals,
	}
}

// SetupRoutes configures the HTTP routes
func (a *App) SetupRoutes(r *mux.Router) {
	r.Use(middleware.RequestIDMiddleware)
	r.Use(middleware.CORSMiddleware)
	r.Use(middleware.RecoverMiddleware(a.logger))
	r.Use(middleware.SessionMiddleware(a.sessions, a.logger))
	r.Use(middleware.MetricsMiddleware(a.metrics, a.logger))

	limited := a.limiter.Middleware
	buyerOnly := middleware.RequireRole(models.RoleBuyer)
	sellerOnly := middleware.RequireRole(models.RoleSeller)

	r.HandleFunc("/", a.IndexHandler).Methods("GET")
	r.HandleFunc("/health", a.HealthHandler).Methods("GET")
	r.HandleFunc("/categories", a.CategoriesHandler).Methods("GET")

	// Accounts
	r.Handle("/register", limited(http.HandlerFunc(a.RegisterHandler))).Methods("POST")
	r.Handle("/login", limited(http.HandlerFunc(a.LoginHandler))).Methods("POST")
	r.HandleFunc("/logout", a.LogoutHandler).Methods("GET")

	// Password reset
	r.Handle("/forgot-password", limited(http.HandlerFunc(a.ForgotPasswordHandler))).Methods("POST")
	r.Handle("/verify-otp", limited(http.HandlerFunc(a.VerifyOTPHandler))).Methods("POST")
	r.Handle("/reset-password", limited(http.HandlerFunc(a.ResetPasswordHandler))).Methods("POST")

	// Browsing is open to anonymous visitors, so it sits outside the buyer subrouter
	r.HandleFunc("/buyer/rent", a.BrowseHandler).Methods("GET")

	buyer := r.PathPrefix("/buyer").Subrouter()
	buyer.Use(buyerOnly)
	buyer.HandleFunc("/dashboard", a.BuyerDashboardHandler).Methods("GET")
	buyer.HandleFunc("/dashboard", a.UpdateBuyerProfileHandler).Methods("POST")
	buyer.HandleFunc("/request/{id:[0-9]+}/edit", a.EditRequestHandler).Methods("POST")
	buyer.HandleFunc("/request/{id:[0-9]+}/cancel", a.CancelRequestHandler).Methods("POST")
	buyer.HandleFunc("/request/{id:[0-9]+}/delete", a.DeleteRequestHandler).Methods("POST")

	seller := r.PathPrefix("/seller").Subrouter()
	seller.Use(sellerOnly)
	seller.HandleFunc("/dashboard", a.SellerDashboardHandler).Methods("GET")
	seller.HandleFunc("/dashboard", a.UpdateSellerProfileHandler).Methods("POST")
	seller.HandleFunc("/list", a.SellerListHandler).Methods("GET")
	seller.HandleFunc("/list", a.CreateClothHandler).Methods("POST")
	seller.HandleFunc("/request/{id:[0-9]+}/accept", a.AcceptRequestHandler).Methods("POST")
	seller.HandleFunc("/request/{id:[0-9]+}/reject", a.RejectRequestHandler).Methods("POST")
	seller.HandleFunc("/request/{id:[0-9]+}/paid", a.MarkPaidHandler).Methods("POST")
	seller.HandleFunc("/request/{id:[0-9]+}/complete", a.CompleteRequestHandler).Methods("POST")
	seller.HandleFunc("/request/{id:[0-9]+}/delete", a.SellerDeleteRequestHandler).Methods("POST")

	// Catalog items
	r.Handle("/cloth/edit/{id:[0-9]+}", sellerOnly(http.HandlerFunc(a.EditClothHandler))).Methods("POST")
	r.Handle("/cloth/delete/{id:[0-9]+}", sellerOnly(http.HandlerFunc(a.DeleteClothHandler))).Methods("POST")
	r.Handle("/cloth/{id:[0-9]+}", middleware.RequireAuth(http.HandlerFunc(a.ClothDetailHandler))).Methods("GET")
	r.Handle("/cloth/{id:[0-9]+}/rent", buyerOnly(http.HandlerFunc(a.RentFormHandler))).Methods("GET")
	r.Handle("/cloth/{id:[0-9]+}/rent", buyerOnly(http.HandlerFunc(a.CreateRentalHandler))).Methods("POST")

	// Uploaded images
	r.PathPrefix("/media/").Handler(http.StripPrefix("/media/", mediaServer(a.config.MediaDir))).Methods("GET")
}

// mediaServer serves uploaded files without directory listings.
func mediaServer(root string) http.Handler {
	files := http.FileServer(http.Dir(root))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "" || strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		files.ServeHTTP(w, r)
	})
}

// IndexHandler handles GET /
func (a *App) IndexHandler(w http.ResponseWriter, r *http.Request) {
	body := map[string]interface{}{
		"service": "rentify",
		"message": "Rent clothes from sellers near you",
	}
	if p := auth.FromContext(r.Context()); p != nil {
		body["redirect"] = redirectFor(p.Role)
	}
	respondJSON(w, http.StatusOK, body)
}

// HealthHandler handles health check requests
func (a *App) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if err := a.db.Healthy(r.Context(), 2*time.Second); err != nil {
		a.logger.Warn("health check failed", zap.Error(err))
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// CategoriesHandler handles GET /categories
func (a *App) CategoriesHandler(w http.ResponseWriter, r *http.Request) {
	categories, err := a.categories.ListActive(r.Context())
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, categories)
}

func redirectFor(role string) string {
	switch role {
	case models.RoleBuyer:
		return "/buyer/dashboard"
	case models.RoleSeller:
		return "/seller/dashboard"
	}
	return "/"
}
