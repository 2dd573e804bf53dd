package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/tourvia/backend/internal/domain"
)

// SendEmailCode emails a one-time login code
func (h *Handlers) SendEmailCode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, domain.Validation("Invalid JSON format"))
		return
	}

	if err := h.challengeService.SendEmailCode(r.Context(), req.Email); err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": "Login code sent!",
	})
}

// VerifyEmailCode exchanges an emailed login code for a session
func (h *Handlers) VerifyEmailCode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
		Code  string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, domain.Validation("Invalid JSON format"))
		return
	}

	user, token, err := h.challengeService.VerifyEmailCode(r.Context(), req.Email, req.Code)
	if err != nil {
		writeError(w, r, err)
		return
	}

	h.createSendToken(w, http.StatusOK, user, token)
}

// CheckPhone reports whether a phone number is free to claim
func (h *Handlers) CheckPhone(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Phone string `json:"phone"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, domain.Validation("Invalid JSON format"))
		return
	}

	unique, err := h.challengeService.CheckPhoneUnique(r.Context(), req.Phone)
	if err != nil {
		writeError(w, r, err)
		return
	}

	message := "Phone available"
	if !unique {
		message = "Phone already used"
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "success",
		"unique":  unique,
		"message": message,
	})
}

// SendLoginOTP texts a one-time passcode to a registered phone
func (h *Handlers) SendLoginOTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Phone string `json:"phone"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, domain.Validation("Invalid JSON format"))
		return
	}

	if err := h.challengeService.SendLoginOTP(r.Context(), req.Phone); err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": "OTP sent",
	})
}

// VerifyLoginOTP exchanges a texted passcode for a session
func (h *Handlers) VerifyLoginOTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Phone string `json:"phone"`
		Code  string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, domain.Validation("Invalid JSON format"))
		return
	}

	user, token, err := h.challengeService.VerifyLoginOTP(r.Context(), req.Phone, req.Code)
	if err != nil {
		writeError(w, r, err)
		return
	}

	h.createSendToken(w, http.StatusOK, user, token)
}

// SendPhoneVerificationOTP starts phone ownership verification for the
// logged-in user
func (h *Handlers) SendPhoneVerificationOTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Phone string `json:"phone"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, domain.Validation("Invalid JSON format"))
		return
	}

	if err := h.challengeService.SendPhoneVerificationOTP(r.Context(), currentUser(r).ID, req.Phone); err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": "OTP sent",
	})
}

// VerifyPhoneOTP confirms the pending phone number of the logged-in user
func (h *Handlers) VerifyPhoneOTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, domain.Validation("Invalid JSON format"))
		return
	}

	if err := h.challengeService.VerifyPhoneOTP(r.Context(), currentUser(r).ID, req.Code); err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": "Phone verified",
	})
}
