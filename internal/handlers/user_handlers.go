package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/tourvia/backend/internal/domain"
)

// UpdateMe handles profile updates for the logged-in user. Password fields
// are rejected here; password changes go through their own route.
func (h *Handlers) UpdateMe(w http.ResponseWriter, r *http.Request) {
	var raw map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeError(w, r, domain.Validation("Invalid JSON format"))
		return
	}
	if _, ok := raw["password"]; ok {
		writeError(w, r, domain.Validation("This route is not for password updates. Please use /updateMyPassword"))
		return
	}
	if _, ok := raw["passwordConfirm"]; ok {
		writeError(w, r, domain.Validation("This route is not for password updates. Please use /updateMyPassword"))
		return
	}

	var req domain.UpdateMeRequest
	if name, ok := raw["name"]; ok {
		if err := json.Unmarshal(name, &req.Name); err != nil {
			writeError(w, r, domain.Validation("Invalid JSON format"))
			return
		}
	}
	if photo, ok := raw["photo"]; ok {
		if err := json.Unmarshal(photo, &req.Photo); err != nil {
			writeError(w, r, domain.Validation("Invalid JSON format"))
			return
		}
	}

	user, err := h.authService.UpdateMe(r.Context(), currentUser(r).ID, &req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "success",
		"data":   map[string]interface{}{"user": user},
	})
}

// DeleteMe deactivates the logged-in user's account
func (h *Handlers) DeleteMe(w http.ResponseWriter, r *http.Request) {
	if err := h.authService.DeactivateMe(r.Context(), currentUser(r).ID); err != nil {
		writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Admin handlers

// ListUsers handles listing all users (admin only)
func (h *Handlers) ListUsers(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePagination(r)

	users, err := h.authService.ListUsers(r.Context(), limit, offset)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "success",
		"results": len(users),
		"data":    map[string]interface{}{"users": users},
	})
}

// GetUser handles getting a specific user (admin only)
func (h *Handlers) GetUser(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, r, domain.Validation("Invalid user ID"))
		return
	}

	user, err := h.authService.GetUser(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "success",
		"data":   map[string]interface{}{"user": user},
	})
}

// UpdateUser handles updating user information (admin only)
func (h *Handlers) UpdateUser(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, r, domain.Validation("Invalid user ID"))
		return
	}

	var req domain.UpdateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, domain.Validation("Invalid JSON format"))
		return
	}

	user, err := h.authService.UpdateUser(r.Context(), id, &req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "success",
		"data":   map[string]interface{}{"user": user},
	})
}

// DeleteUser handles permanently deleting a user (admin only)
func (h *Handlers) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, r, domain.Validation("Invalid user ID"))
		return
	}

	if err := h.authService.DeleteUser(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
