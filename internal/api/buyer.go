package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/rentify/rentify-go/internal/auth"
	"github.com/rentify/rentify-go/internal/models"
)

type browseResponse struct {
	Clothes          []models.ClothListing `json:"clothes"`
	Categories       []models.Category     `json:"categories"`
	SelectedCategory string                `json:"selected_category"`
	Pincode          string                `json:"pincode"`
}

// BuyerDashboardHandler handles GET /buyer/dashboard
func (a *App) BuyerDashboardHandler(w http.ResponseWriter, r *http.Request) {
	p := auth.FromContext(r.Context())

	profile, err := a.profiles.BuyerProfile(r.Context(), p.AccountID)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	requests, err := a.rentals.ListForBuyer(r.Context(), p.AccountID)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, models.BuyerDashboard{
		Profile:     profile,
		FullAddress: profile.Address.Full(),
		Requests:    requests,
		Today:       a.rentals.Today(),
	})
}

// UpdateBuyerProfileHandler handles POST /buyer/dashboard
func (a *App) UpdateBuyerProfileHandler(w http.ResponseWriter, r *http.Request) {
	p := auth.FromContext(r.Context())

	var req models.UpdateBuyerProfileRequest
	if !a.bind(w, r, &req) {
		return
	}
	profile, err := a.profiles.UpdateBuyerProfile(r.Context(), p.AccountID, req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	respondMessage(w, http.StatusOK, "Profile updated successfully", "/buyer/dashboard", profile)
}

// BrowseHandler handles GET /buyer/rent?category=&pincode=
func (a *App) BrowseHandler(w http.ResponseWriter, r *http.Request) {
	p := auth.FromContext(r.Context())
	if p != nil && !p.IsBuyer() {
		respondError(w, http.StatusForbidden, "Only buyers can rent clothes")
		return
	}

	var filter models.BrowseFilter
	category := strings.TrimSpace(r.URL.Query().Get("category"))
	if category != "" && category != "all" {
		id, err := strconv.ParseInt(category, 10, 64)
		if err != nil || id <= 0 {
			respondError(w, http.StatusBadRequest, "Invalid category")
			return
		}
		filter.CategoryID = id
	}
	filter.Pincode = strings.TrimSpace(r.URL.Query().Get("pincode"))

	var buyerID int64
	if p != nil {
		buyerID = p.AccountID
	}

	clothes, err := a.catalog.Browse(r.Context(), filter, buyerID)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	categories, err := a.categories.ListActive(r.Context())
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}

	if category == "" {
		category = "all"
	}
	respondJSON(w, http.StatusOK, browseResponse{
		Clothes:          clothes,
		Categories:       categories,
		SelectedCategory: category,
		Pincode:          filter.Pincode,
	})
}

// EditRequestHandler handles POST /buyer/request/{id}/edit
func (a *App) EditRequestHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid request ID")
		return
	}
	var req models.EditRentalRequest
	if !a.bind(w, r, &req) {
		return
	}

	d, err := a.rentals.Edit(r.Context(), auth.FromContext(r.Context()).AccountID, id, req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	respondMessage(w, http.StatusOK, "Request updated successfully", "/buyer/dashboard", d)
}

// CancelRequestHandler handles POST /buyer/request/{id}/cancel
func (a *App) CancelRequestHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid request ID")
		return
	}

	d, err := a.rentals.Cancel(r.Context(), auth.FromContext(r.Context()).AccountID, id)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	respondMessage(w, http.StatusOK, "Request cancelled", "/buyer/dashboard", d)
}

// DeleteRequestHandler handles POST /buyer/request/{id}/delete
func (a *App) DeleteRequestHandler(w http.ResponseWriter, r *http.Request) {
	a.deleteRequest(w, r, "/buyer/dashboard")
}

func (a *App) deleteRequest(w http.ResponseWriter, r *http.Request, redirect string) {
	id, ok := pathID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid request ID")
		return
	}
	if err := a.rentals.Delete(r.Context(), auth.FromContext(r.Context()).AccountID, id); err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	respondMessage(w, http.StatusOK, "Request deleted", redirect, nil)
}
