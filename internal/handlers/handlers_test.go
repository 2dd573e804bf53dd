package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tourvia/backend/internal/domain"
	"github.com/tourvia/backend/internal/handlers"
	"github.com/tourvia/backend/pkg/config"
)

// ---------- Mocks ----------

type mockAuthService struct {
	user    *domain.User
	token   string
	err     error
	authErr error
}

func (m *mockAuthService) Signup(context.Context, *domain.SignupRequest) (*domain.User, string, error) {
	return m.user, m.token, m.err
}

func (m *mockAuthService) Login(context.Context, *domain.LoginRequest) (*domain.User, string, error) {
	return m.user, m.token, m.err
}

func (m *mockAuthService) GoogleLogin(context.Context, string) (*domain.User, string, error) {
	return m.user, m.token, m.err
}

func (m *mockAuthService) Authenticate(context.Context, string) (*domain.User, error) {
	if m.authErr != nil {
		return nil, m.authErr
	}
	return m.user, nil
}

func (m *mockAuthService) ForgotPassword(context.Context, string) error { return m.err }

func (m *mockAuthService) ResetPassword(context.Context, string, *domain.ResetPasswordRequest) (*domain.User, string, error) {
	return m.user, m.token, m.err
}

func (m *mockAuthService) UpdatePassword(context.Context, int64, *domain.UpdatePasswordRequest) (*domain.User, string, error) {
	return m.user, m.token, m.err
}

func (m *mockAuthService) GetUser(context.Context, int64) (*domain.User, error) {
	return m.user, m.err
}

func (m *mockAuthService) UpdateMe(context.Context, int64, *domain.UpdateMeRequest) (*domain.User, error) {
	return m.user, m.err
}

func (m *mockAuthService) DeactivateMe(context.Context, int64) error { return m.err }

func (m *mockAuthService) ListUsers(context.Context, int, int) ([]domain.User, error) {
	if m.user != nil {
		return []domain.User{*m.user}, m.err
	}
	return nil, m.err
}

func (m *mockAuthService) UpdateUser(context.Context, int64, *domain.UpdateUserRequest) (*domain.User, error) {
	return m.user, m.err
}

func (m *mockAuthService) DeleteUser(context.Context, int64) error { return m.err }

type mockChallengeService struct {
	user   *domain.User
	token  string
	unique bool
	err    error
}

func (m *mockChallengeService) SendEmailCode(context.Context, string) error { return m.err }

func (m *mockChallengeService) VerifyEmailCode(context.Context, string, string) (*domain.User, string, error) {
	return m.user, m.token, m.err
}

func (m *mockChallengeService) CheckPhoneUnique(context.Context, string) (bool, error) {
	return m.unique, m.err
}

func (m *mockChallengeService) SendLoginOTP(context.Context, string) error { return m.err }

func (m *mockChallengeService) VerifyLoginOTP(context.Context, string, string) (*domain.User, string, error) {
	return m.user, m.token, m.err
}

func (m *mockChallengeService) SendPhoneVerificationOTP(context.Context, int64, string) error {
	return m.err
}

func (m *mockChallengeService) VerifyPhoneOTP(context.Context, int64, string) error { return m.err }

type mockLimiter struct {
	allowed bool
	err     error
}

func (m *mockLimiter) Allow(context.Context, string, int, time.Duration) (bool, error) {
	return m.allowed, m.err
}

// ---------- Test Setup ----------

func testUser() *domain.User {
	return &domain.User{
		ID:       1,
		Name:     "Alice Smith",
		Email:    "alice@example.com",
		Photo:    "default.jpg",
		Role:     domain.RoleUser,
		Provider: domain.ProviderEmail,
	}
}

func newTestRouter(authSvc *mockAuthService, chSvc *mockChallengeService, limiter *mockLimiter) http.Handler {
	cfg := &config.Config{
		App:  config.AppConfig{Env: "development"},
		Auth: config.AuthConfig{JWTSecret: "test-secret", SessionTTL: time.Hour, CookieTTL: time.Hour},
	}
	h := handlers.New(authSvc, chSvc, limiter, cfg)

	r := chi.NewRouter()
	r.Route("/api/v1/users", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(h.RateLimit("auth", 30, time.Minute))
			r.Post("/signup", h.Signup)
			r.Post("/login", h.Login)
			r.Get("/logout", h.Logout)
			r.Post("/send-email-code", h.SendEmailCode)
			r.Post("/check-phone", h.CheckPhone)
		})
		r.Group(func(r chi.Router) {
			r.Use(h.IsLoggedIn())
			r.Get("/is-logged-in", h.Session)
		})
		r.Group(func(r chi.Router) {
			r.Use(h.Protect())
			r.Get("/me", h.Me)
		})
		r.Group(func(r chi.Router) {
			r.Use(h.Protect())
			r.Use(h.RestrictTo("admin"))
			r.Get("/", h.ListUsers)
		})
	})
	return r
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return body
}

func findCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// ---------- Tests ----------

func TestSignupSetsSessionCookieAndEnvelope(t *testing.T) {
	router := newTestRouter(
		&mockAuthService{user: testUser(), token: "signed.jwt.token"},
		&mockChallengeService{},
		&mockLimiter{allowed: true},
	)

	payload := `{"name":"Alice Smith","email":"alice@example.com","password":"correct-horse","passwordConfirm":"correct-horse"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/users/signup", strings.NewReader(payload))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "password") {
		t.Error("response leaks password fields")
	}

	body := decodeBody(t, rec)
	if body["status"] != "success" {
		t.Errorf("expected status success, got %v", body["status"])
	}
	if body["token"] != "signed.jwt.token" {
		t.Errorf("expected token in envelope, got %v", body["token"])
	}

	cookie := findCookie(rec, "jwt")
	if cookie == nil {
		t.Fatal("session cookie not set")
	}
	if cookie.Value != "signed.jwt.token" {
		t.Errorf("cookie carries %q", cookie.Value)
	}
	if !cookie.HttpOnly {
		t.Error("session cookie not HttpOnly")
	}
}

func TestLoginFailureEnvelope(t *testing.T) {
	router := newTestRouter(
		&mockAuthService{err: domain.Auth("Invalid email or password")},
		&mockChallengeService{},
		&mockLimiter{allowed: true},
	)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/users/login",
		strings.NewReader(`{"email":"alice@example.com","password":"wrong"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["status"] != "fail" {
		t.Errorf("expected status fail, got %v", body["status"])
	}
	if body["message"] != "Invalid email or password" {
		t.Errorf("unexpected message %v", body["message"])
	}
	if findCookie(rec, "jwt") != nil {
		t.Error("session cookie set on failed login")
	}
}

func TestLogoutOverwritesCookie(t *testing.T) {
	router := newTestRouter(&mockAuthService{}, &mockChallengeService{}, &mockLimiter{allowed: true})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/users/logout", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	cookie := findCookie(rec, "jwt")
	if cookie == nil {
		t.Fatal("logout did not set a cookie")
	}
	if cookie.Value != "loggedout" {
		t.Errorf("expected sentinel cookie, got %q", cookie.Value)
	}
	if time.Until(cookie.Expires) > time.Minute {
		t.Error("logout cookie should expire almost immediately")
	}
}

func TestProtectWithoutToken(t *testing.T) {
	router := newTestRouter(&mockAuthService{user: testUser()}, &mockChallengeService{}, &mockLimiter{allowed: true})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/users/me", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["message"] != "You are not logged in" {
		t.Errorf("unexpected message %v", body["message"])
	}
}

func TestProtectRejectsLogoutSentinel(t *testing.T) {
	router := newTestRouter(&mockAuthService{user: testUser()}, &mockChallengeService{}, &mockLimiter{allowed: true})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/users/me", nil)
	req.AddCookie(&http.Cookie{Name: "jwt", Value: "loggedout"})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestProtectAcceptsBearerAndCookie(t *testing.T) {
	router := newTestRouter(&mockAuthService{user: testUser()}, &mockChallengeService{}, &mockLimiter{allowed: true})

	// Bearer header
	req := httptest.NewRequest(http.MethodGet, "/api/v1/users/me", nil)
	req.Header.Set("Authorization", "Bearer some.jwt.token")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("bearer: expected 200, got %d", rec.Code)
	}

	// Cookie
	req = httptest.NewRequest(http.MethodGet, "/api/v1/users/me", nil)
	req.AddCookie(&http.Cookie{Name: "jwt", Value: "some.jwt.token"})
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("cookie: expected 200, got %d", rec.Code)
	}

	body := decodeBody(t, rec)
	data := body["data"].(map[string]interface{})
	user := data["user"].(map[string]interface{})
	if user["email"] != "alice@example.com" {
		t.Errorf("unexpected user %v", user)
	}
}

func TestProtectStaleSession(t *testing.T) {
	router := newTestRouter(
		&mockAuthService{authErr: domain.Auth("Password recently changed. Login again")},
		&mockChallengeService{},
		&mockLimiter{allowed: true},
	)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/users/me", nil)
	req.Header.Set("Authorization", "Bearer stale.jwt.token")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["message"] != "Password recently changed. Login again" {
		t.Errorf("unexpected message %v", body["message"])
	}
}

func TestRestrictToBlocksNonAdmin(t *testing.T) {
	router := newTestRouter(&mockAuthService{user: testUser()}, &mockChallengeService{}, &mockLimiter{allowed: true})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/users/", nil)
	req.Header.Set("Authorization", "Bearer some.jwt.token")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["message"] != "You do not have permission to perform this action" {
		t.Errorf("unexpected message %v", body["message"])
	}
}

func TestRestrictToAllowsAdmin(t *testing.T) {
	admin := testUser()
	admin.Role = domain.RoleAdmin
	router := newTestRouter(&mockAuthService{user: admin}, &mockChallengeService{}, &mockLimiter{allowed: true})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/users/", nil)
	req.Header.Set("Authorization", "Bearer some.jwt.token")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestSessionRestoreWithValidToken(t *testing.T) {
	router := newTestRouter(&mockAuthService{user: testUser()}, &mockChallengeService{}, &mockLimiter{allowed: true})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/users/is-logged-in", nil)
	req.Header.Set("Authorization", "Bearer some.jwt.token")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	data := body["data"].(map[string]interface{})
	user, ok := data["user"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected a user object, got %v", data["user"])
	}
	if user["email"] != "alice@example.com" {
		t.Errorf("unexpected user %v", user)
	}
}

func TestSessionRestoreAnonymous(t *testing.T) {
	router := newTestRouter(&mockAuthService{user: testUser()}, &mockChallengeService{}, &mockLimiter{allowed: true})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/users/is-logged-in", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	data := body["data"].(map[string]interface{})
	if data["user"] != nil {
		t.Errorf("expected null user, got %v", data["user"])
	}
}

func TestSessionRestorePassesThroughSentinel(t *testing.T) {
	router := newTestRouter(&mockAuthService{user: testUser()}, &mockChallengeService{}, &mockLimiter{allowed: true})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/users/is-logged-in", nil)
	req.AddCookie(&http.Cookie{Name: "jwt", Value: "loggedout"})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	data := body["data"].(map[string]interface{})
	if data["user"] != nil {
		t.Errorf("sentinel cookie should stay anonymous, got %v", data["user"])
	}
}

func TestSessionRestorePassesThroughBadToken(t *testing.T) {
	router := newTestRouter(
		&mockAuthService{authErr: domain.Auth("You are not logged in")},
		&mockChallengeService{},
		&mockLimiter{allowed: true},
	)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/users/is-logged-in", nil)
	req.AddCookie(&http.Cookie{Name: "jwt", Value: "garbage.jwt.token"})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	data := body["data"].(map[string]interface{})
	if data["user"] != nil {
		t.Errorf("bad token should stay anonymous, got %v", data["user"])
	}
}

func TestSendEmailCodeMessage(t *testing.T) {
	router := newTestRouter(&mockAuthService{}, &mockChallengeService{}, &mockLimiter{allowed: true})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/users/send-email-code",
		strings.NewReader(`{"email":"alice@example.com"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["message"] != "Login code sent!" {
		t.Errorf("unexpected message %v", body["message"])
	}
}

func TestCheckPhoneMessages(t *testing.T) {
	router := newTestRouter(&mockAuthService{}, &mockChallengeService{unique: true}, &mockLimiter{allowed: true})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/users/check-phone",
		strings.NewReader(`{"phone":"0917 123 4567"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	body := decodeBody(t, rec)
	if body["unique"] != true || body["message"] != "Phone available" {
		t.Errorf("unexpected response %v", body)
	}

	router = newTestRouter(&mockAuthService{}, &mockChallengeService{unique: false}, &mockLimiter{allowed: true})
	req = httptest.NewRequest(http.MethodPost, "/api/v1/users/check-phone",
		strings.NewReader(`{"phone":"0917 123 4567"}`))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	body = decodeBody(t, rec)
	if body["unique"] != false || body["message"] != "Phone already used" {
		t.Errorf("unexpected response %v", body)
	}
}

func TestRateLimitExceeded(t *testing.T) {
	router := newTestRouter(&mockAuthService{user: testUser()}, &mockChallengeService{}, &mockLimiter{allowed: false})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/users/login",
		strings.NewReader(`{"email":"alice@example.com","password":"whatever"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
}
