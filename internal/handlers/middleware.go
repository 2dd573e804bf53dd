package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/tourvia/backend/internal/domain"
	"github.com/tourvia/backend/pkg/logger"
)

type contextKey string

const userContextKey contextKey = "current_user"

// sessionToken pulls the raw token from the Authorization header or, failing
// that, the session cookie. The logout sentinel counts as no token.
func sessionToken(r *http.Request) string {
	if authHeader := r.Header.Get("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	if cookie, err := r.Cookie(sessionCookie); err == nil && cookie.Value != loggedOutSentinel {
		return cookie.Value
	}
	return ""
}

// Protect rejects requests without a live session and attaches the resolved
// user to the request context.
func (h *Handlers) Protect() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := sessionToken(r)
			if token == "" {
				writeError(w, r, domain.Auth("You are not logged in"))
				return
			}

			user, err := h.authService.Authenticate(r.Context(), token)
			if err != nil {
				writeError(w, r, err)
				return
			}

			ctx := context.WithValue(r.Context(), userContextKey, user)
			ctx = context.WithValue(ctx, logger.UserIDKey, user.ID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// IsLoggedIn is the soft variant of Protect: it attaches the user when the
// session checks out and passes the request through anonymously otherwise.
// Never errors.
func (h *Handlers) IsLoggedIn() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := sessionToken(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			user, err := h.authService.Authenticate(r.Context(), token)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			ctx := context.WithValue(r.Context(), userContextKey, user)
			ctx = context.WithValue(ctx, logger.UserIDKey, user.ID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RestrictTo gates a route to the given roles. Must run after Protect.
func (h *Handlers) RestrictTo(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := currentUser(r)
			if user == nil {
				writeError(w, r, domain.Auth("You are not logged in"))
				return
			}

			for _, role := range roles {
				if user.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}

			writeError(w, r, domain.Forbidden("You do not have permission to perform this action"))
		})
	}
}

// RateLimit throttles a route group per client IP. Fails open when the
// limiter backend is unreachable.
func (h *Handlers) RateLimit(name string, max int, window time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := name + ":" + getClientIP(r)

			allowed, err := h.rateLimitRepo.Allow(r.Context(), key, max, window)
			if err != nil {
				logger.ErrorContext(r.Context(), "Rate limit check failed", "error", err)
			} else if !allowed {
				writeJSON(w, http.StatusTooManyRequests, map[string]string{
					"status":  "fail",
					"message": "Too many requests. Please try again later.",
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func currentUser(r *http.Request) *domain.User {
	if user, ok := r.Context().Value(userContextKey).(*domain.User); ok {
		return user
	}
	return nil
}
