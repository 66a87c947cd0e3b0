package api

import (
	"errors"
	"net/http"

	"github.com/rentify/rentify-go/internal/models"
	"github.com/rentify/rentify-go/internal/services"
)

// ForgotPasswordHandler handles POST /forgot-password
func (a *App) ForgotPasswordHandler(w http.ResponseWriter, r *http.Request) {
	var req models.ForgotPasswordRequest
	if !a.bind(w, r, &req) {
		return
	}
	if err := a.passwords.RequestReset(r.Context(), req); err != nil {
		if errors.Is(err, services.ErrNotFound) {
			respondError(w, http.StatusNotFound, "Email not registered")
			return
		}
		a.writeServiceError(w, r, err)
		return
	}
	respondMessage(w, http.StatusOK, "OTP sent to your email", "/verify-otp", nil)
}

// VerifyOTPHandler handles POST /verify-otp
func (a *App) VerifyOTPHandler(w http.ResponseWriter, r *http.Request) {
	var req models.VerifyCodeRequest
	if !a.bind(w, r, &req) {
		return
	}
	ticket, err := a.passwords.VerifyCode(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	respondMessage(w, http.StatusOK, "OTP verified", "/reset-password", map[string]string{"ticket": ticket})
}

// ResetPasswordHandler handles POST /reset-password
func (a *App) ResetPasswordHandler(w http.ResponseWriter, r *http.Request) {
	var req models.ResetPasswordRequest
	if !a.bind(w, r, &req) {
		return
	}
	if err := a.passwords.ResetPassword(r.Context(), req); err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	respondMessage(w, http.StatusOK, "Password reset successful. Please log in.", "/login", nil)
}
