package api

import (
	"net/http"
	"time"

	"github.com/rentify/rentify-go/internal/auth"
	"github.com/rentify/rentify-go/internal/models"
	"go.uber.org/zap"
)

type loginResponse struct {
	Message  string `json:"message"`
	Redirect string `json:"redirect"`
	Role     string `json:"role,omitempty"`
	Token    string `json:"token,omitempty"`
}

// RegisterHandler handles POST /register
func (a *App) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if !a.bind(w, r, &req) {
		return
	}

	acc, err := a.accounts.Register(r.Context(), req)
	if err != nil {
		if acc != nil {
			a.logger.Error("account created but welcome email failed", zap.Int64("account_id", acc.ID), zap.Error(err))
		}
		a.writeServiceError(w, r, err)
		return
	}
	respondMessage(w, http.StatusCreated, "Registration successful. Please log in.", "/login", acc)
}

// LoginHandler handles POST /login
func (a *App) LoginHandler(w http.ResponseWriter, r *http.Request) {
	if p := auth.FromContext(r.Context()); p != nil {
		respondJSON(w, http.StatusOK, loginResponse{Message: "Already logged in", Redirect: redirectFor(p.Role), Role: p.Role})
		return
	}

	var req models.LoginRequest
	if !a.bind(w, r, &req) {
		return
	}

	acc, err := a.accounts.Authenticate(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}

	role := acc.Role()
	token, err := a.sessions.Issue(auth.Principal{AccountID: acc.ID, Email: acc.Email, Role: role})
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    token,
		Path:     "/",
		Expires:  time.Now().Add(a.sessions.TTL()),
		MaxAge:   int(a.sessions.TTL().Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	a.logger.Info("login", zap.Int64("account_id", acc.ID), zap.String("role", role))
	respondJSON(w, http.StatusOK, loginResponse{Message: "Login successful", Redirect: redirectFor(role), Role: role, Token: token})
}

// LogoutHandler handles GET /logout
func (a *App) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	respondMessage(w, http.StatusOK, "Logged out", "/login", nil)
}
