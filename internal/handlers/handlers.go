package handlers

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tourvia/backend/internal/domain"
	"github.com/tourvia/backend/internal/repository"
	"github.com/tourvia/backend/internal/service"
	"github.com/tourvia/backend/pkg/config"
	"github.com/tourvia/backend/pkg/logger"
)

const sessionCookie = "jwt"

// loggedOutSentinel is the cookie value set on logout. It parses as garbage,
// so a logged-out browser fails token verification instead of carrying a
// stale session.
const loggedOutSentinel = "loggedout"

type Handlers struct {
	authService      service.AuthService
	challengeService service.ChallengeService
	rateLimitRepo    repository.RateLimitRepository
	config           *config.Config
}

func New(
	authService service.AuthService,
	challengeService service.ChallengeService,
	rateLimitRepo repository.RateLimitRepository,
	config *config.Config,
) *Handlers {
	return &Handlers{
		authService:      authService,
		challengeService: challengeService,
		rateLimitRepo:    rateLimitRepo,
		config:           config,
	}
}

// createSendToken sets the session cookie and writes the standard success
// envelope with the token and the sanitized user.
func (h *Handlers) createSendToken(w http.ResponseWriter, statusCode int, user *domain.User, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		Expires:  time.Now().Add(h.config.Auth.CookieTTL),
		HttpOnly: true,
		Secure:   h.config.IsProduction(),
		SameSite: http.SameSiteLaxMode,
	})

	writeJSON(w, statusCode, map[string]interface{}{
		"status": "success",
		"token":  token,
		"data":   map[string]interface{}{"user": user},
	})
}

// Helper functions

func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// writeError maps domain errors onto the response envelope: "fail" for client
// faults, "error" for everything else. Unclassified errors never leak their
// message to the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	if domErr, ok := domain.AsError(err); ok {
		status := "fail"
		if domErr.HTTPStatus() >= http.StatusInternalServerError {
			status = "error"
			logger.ErrorContext(r.Context(), "Request failed", "error", err, "path", r.URL.Path)
		}
		writeJSON(w, domErr.HTTPStatus(), map[string]string{
			"status":  status,
			"message": domErr.Message,
		})
		return
	}

	logger.ErrorContext(r.Context(), "Request failed", "error", err, "path", r.URL.Path)
	writeJSON(w, http.StatusInternalServerError, map[string]string{
		"status":  "error",
		"message": "Something went wrong",
	})
}

func parsePagination(r *http.Request) (limit, offset int) {
	limit = 20
	offset = 0

	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	return limit, offset
}
