package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/rentify/rentify-go/internal/auth"
	"github.com/rentify/rentify-go/internal/models"
	"github.com/rentify/rentify-go/internal/services"
	"github.com/rentify/rentify-go/internal/storage"
	"github.com/shopspring/decimal"
)

// maxUploadBody leaves room for form fields next to a full size image, so an
// oversized image still reaches the size check with a readable message.
const maxUploadBody = 2*storage.MaxImageSize + maxFormBody

type rentFormResponse struct {
	Cloth *models.ClothDetail `json:"cloth"`
	Today string              `json:"today"`
}

// parseClothForm reads the multipart (or url-encoded) listing form.
func parseClothForm(w http.ResponseWriter, r *http.Request) (models.ClothInput, error) {
	var in models.ClothInput

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBody)
	if err := r.ParseMultipartForm(maxFormBody); err != nil {
		if !errors.Is(err, http.ErrNotMultipart) {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				return in, &services.ValidationError{Field: "image", Message: storage.ErrImageTooLarge.Error()}
			}
			return in, errBadBody
		}
		if err := r.ParseForm(); err != nil {
			return in, errBadBody
		}
	}

	form := r.PostForm
	in.Name = form.Get("name")
	in.Description = form.Get("description")
	in.Condition = models.ClothCondition(strings.TrimSpace(form.Get("condition")))

	qty, err := strconv.Atoi(strings.TrimSpace(form.Get("quantity")))
	if err != nil {
		return in, &services.ValidationError{Field: "quantity", Message: "Quantity must be a whole number."}
	}
	in.Quantity = qty

	rent, err := decimal.NewFromString(strings.TrimSpace(form.Get("rent_per_day")))
	if err != nil {
		return in, &services.ValidationError{Field: "rent_per_day", Message: "Rent per day must be a number."}
	}
	in.RentPerDay = rent

	for _, raw := range form["categories"] {
		id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return in, &services.ValidationError{Field: "categories", Message: "Select a valid category."}
		}
		in.CategoryIDs = append(in.CategoryIDs, id)
	}

	if r.MultipartForm == nil {
		return in, nil
	}
	file, header, err := r.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) {
		return in, nil
	}
	if err != nil {
		return in, errBadBody
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, storage.MaxImageSize+1))
	if err != nil {
		return in, errBadBody
	}
	// browsers send an empty part when no file was picked
	if header.Filename == "" && len(data) == 0 {
		return in, nil
	}
	in.Image = &models.ImageUpload{Filename: header.Filename, Data: data}
	return in, nil
}

func (a *App) bindCloth(w http.ResponseWriter, r *http.Request) (models.ClothInput, bool) {
	in, err := parseClothForm(w, r)
	if err == nil {
		return in, true
	}
	if errors.Is(err, errBadBody) {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return in, false
	}
	a.writeServiceError(w, r, err)
	return in, false
}

// CreateClothHandler handles POST /seller/list
func (a *App) CreateClothHandler(w http.ResponseWriter, r *http.Request) {
	in, ok := a.bindCloth(w, r)
	if !ok {
		return
	}

	c, err := a.catalog.Create(r.Context(), auth.FromContext(r.Context()).AccountID, in)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	respondMessage(w, http.StatusCreated, "Cloth listed successfully", "/seller/list", c)
}

// EditClothHandler handles POST /cloth/edit/{id}
func (a *App) EditClothHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid cloth ID")
		return
	}
	in, ok := a.bindCloth(w, r)
	if !ok {
		return
	}

	c, err := a.catalog.Update(r.Context(), auth.FromContext(r.Context()).AccountID, id, in)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	respondMessage(w, http.StatusOK, "Cloth updated successfully", "/seller/list", c)
}

// DeleteClothHandler handles POST /cloth/delete/{id}
func (a *App) DeleteClothHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid cloth ID")
		return
	}
	if err := a.catalog.Delete(r.Context(), auth.FromContext(r.Context()).AccountID, id); err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	respondMessage(w, http.StatusOK, "Cloth deleted successfully", "/seller/list", nil)
}

// ClothDetailHandler handles GET /cloth/{id}
func (a *App) ClothDetailHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid cloth ID")
		return
	}

	var buyerID int64
	if p := auth.FromContext(r.Context()); p.IsBuyer() {
		buyerID = p.AccountID
	}
	d, err := a.catalog.Detail(r.Context(), id, buyerID)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, d)
}

// RentFormHandler handles GET /cloth/{id}/rent
func (a *App) RentFormHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid cloth ID")
		return
	}

	d, err := a.catalog.Detail(r.Context(), id, auth.FromContext(r.Context()).AccountID)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	if !d.Available {
		respondError(w, http.StatusConflict, "This cloth is currently unavailable")
		return
	}
	respondJSON(w, http.StatusOK, rentFormResponse{Cloth: d, Today: a.rentals.Today()})
}

// CreateRentalHandler handles POST /cloth/{id}/rent
func (a *App) CreateRentalHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid cloth ID")
		return
	}
	var req models.CreateRentalRequest
	if !a.bind(w, r, &req) {
		return
	}

	d, err := a.rentals.Create(r.Context(), auth.FromContext(r.Context()).AccountID, id, req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	respondMessage(w, http.StatusCreated, "Rental request sent to the seller", "/buyer/dashboard", d)
}
