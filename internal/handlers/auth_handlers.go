package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/tourvia/backend/internal/domain"
)

// Signup handles account creation with email and password
func (h *Handlers) Signup(w http.ResponseWriter, r *http.Request) {
	var req domain.SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, domain.Validation("Invalid JSON format"))
		return
	}

	user, token, err := h.authService.Signup(r.Context(), &req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	h.createSendToken(w, http.StatusCreated, user, token)
}

// Login handles email and password authentication
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, domain.Validation("Invalid JSON format"))
		return
	}

	user, token, err := h.authService.Login(r.Context(), &req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	h.createSendToken(w, http.StatusOK, user, token)
}

// Logout overwrites the session cookie with a short-lived sentinel
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    loggedOutSentinel,
		Path:     "/",
		Expires:  time.Now().Add(10 * time.Second),
		HttpOnly: true,
		Secure:   h.config.IsProduction(),
		SameSite: http.SameSiteLaxMode,
	})

	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// GoogleLogin handles sign-in with a Google ID token, creating the account
// on first use
func (h *Handlers) GoogleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Credential string `json:"credential"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, domain.Validation("Invalid JSON format"))
		return
	}

	user, token, err := h.authService.GoogleLogin(r.Context(), req.Credential)
	if err != nil {
		writeError(w, r, err)
		return
	}

	h.createSendToken(w, http.StatusOK, user, token)
}

// ForgotPassword emails a password reset link
func (h *Handlers) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, domain.Validation("Invalid JSON format"))
		return
	}

	if err := h.authService.ForgotPassword(r.Context(), req.Email); err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": "Token sent to email!",
	})
}

// ResetPassword consumes an emailed reset token and sets a new password
func (h *Handlers) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req domain.ResetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, domain.Validation("Invalid JSON format"))
		return
	}

	user, token, err := h.authService.ResetPassword(r.Context(), chi.URLParam(r, "token"), &req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	h.createSendToken(w, http.StatusOK, user, token)
}

// UpdatePassword changes the password of the logged-in user and reissues
// the session
func (h *Handlers) UpdatePassword(w http.ResponseWriter, r *http.Request) {
	var req domain.UpdatePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, domain.Validation("Invalid JSON format"))
		return
	}

	user, token, err := h.authService.UpdatePassword(r.Context(), currentUser(r).ID, &req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	h.createSendToken(w, http.StatusOK, user, token)
}

// Session reports who is logged in so the frontend can restore its state on
// load. Runs behind IsLoggedIn, so anonymous visitors get a null user and
// never a 401.
func (h *Handlers) Session(w http.ResponseWriter, r *http.Request) {
	var user interface{}
	if u := currentUser(r); u != nil {
		user = u
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "success",
		"data":   map[string]interface{}{"user": user},
	})
}

// Me returns the logged-in user
func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "success",
		"data":   map[string]interface{}{"user": currentUser(r)},
	})
}
