package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/rentify/rentify-go/internal/auth"
	"github.com/rentify/rentify-go/internal/models"
)

type sellerListResponse struct {
	Clothes          []models.Cloth    `json:"clothes"`
	Categories       []models.Category `json:"categories"`
	SelectedCategory string            `json:"selected_category"`
}

// SellerDashboardHandler handles GET /seller/dashboard
func (a *App) SellerDashboardHandler(w http.ResponseWriter, r *http.Request) {
	p := auth.FromContext(r.Context())

	profile, err := a.profiles.SellerProfile(r.Context(), p.AccountID)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	requests, err := a.rentals.ListForSeller(r.Context(), p.AccountID)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, models.SellerDashboard{
		Profile:     profile,
		FullAddress: profile.PickupAddress.Full(),
		Requests:    requests,
	})
}

// UpdateSellerProfileHandler handles POST /seller/dashboard
func (a *App) UpdateSellerProfileHandler(w http.ResponseWriter, r *http.Request) {
	p := auth.FromContext(r.Context())

	var req models.UpdateSellerProfileRequest
	if !a.bind(w, r, &req) {
		return
	}
	profile, err := a.profiles.UpdateSellerProfile(r.Context(), p.AccountID, req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	respondMessage(w, http.StatusOK, "Store profile updated successfully", "/seller/dashboard", profile)
}

// SellerListHandler handles GET /seller/list?category=
func (a *App) SellerListHandler(w http.ResponseWriter, r *http.Request) {
	p := auth.FromContext(r.Context())

	var categoryID int64
	category := strings.TrimSpace(r.URL.Query().Get("category"))
	if category != "" && category != "all" {
		id, err := strconv.ParseInt(category, 10, 64)
		if err != nil || id <= 0 {
			respondError(w, http.StatusBadRequest, "Invalid category")
			return
		}
		categoryID = id
	} else {
		category = "all"
	}

	clothes, err := a.catalog.ListForSeller(r.Context(), p.AccountID, categoryID)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	categories, err := a.categories.ListActive(r.Context())
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, sellerListResponse{Clothes: clothes, Categories: categories, SelectedCategory: category})
}

// AcceptRequestHandler handles POST /seller/request/{id}/accept
func (a *App) AcceptRequestHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid request ID")
		return
	}
	var req models.SellerDecisionRequest
	if !a.bind(w, r, &req) {
		return
	}

	d, err := a.rentals.Accept(r.Context(), auth.FromContext(r.Context()).AccountID, id, req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	respondMessage(w, http.StatusOK, "Request accepted", "/seller/dashboard", d)
}

// RejectRequestHandler handles POST /seller/request/{id}/reject
func (a *App) RejectRequestHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid request ID")
		return
	}
	var req models.SellerDecisionRequest
	if !a.bind(w, r, &req) {
		return
	}

	d, err := a.rentals.Reject(r.Context(), auth.FromContext(r.Context()).AccountID, id, req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	respondMessage(w, http.StatusOK, "Request rejected", "/seller/dashboard", d)
}

// MarkPaidHandler handles POST /seller/request/{id}/paid
func (a *App) MarkPaidHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid request ID")
		return
	}

	d, err := a.rentals.MarkPaid(r.Context(), auth.FromContext(r.Context()).AccountID, id)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	respondMessage(w, http.StatusOK, "Payment marked as paid and receipt sent", "/seller/dashboard", d)
}

// CompleteRequestHandler handles POST /seller/request/{id}/complete
func (a *App) CompleteRequestHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid request ID")
		return
	}

	d, err := a.rentals.Complete(r.Context(), auth.FromContext(r.Context()).AccountID, id)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	respondMessage(w, http.StatusOK, "Rental marked as completed", "/seller/dashboard", d)
}

// SellerDeleteRequestHandler handles POST /seller/request/{id}/delete
func (a *App) SellerDeleteRequestHandler(w http.ResponseWriter, r *http.Request) {
	a.deleteRequest(w, r, "/seller/dashboard")
}
