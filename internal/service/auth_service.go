package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/jackc/pgx/v5"
	"github.com/tourvia/backend/internal/domain"
	"github.com/tourvia/backend/internal/identity"
	"github.com/tourvia/backend/internal/mailer"
	"github.com/tourvia/backend/internal/repository"
	"github.com/tourvia/backend/pkg/auth"
	"github.com/tourvia/backend/pkg/config"
	"github.com/tourvia/backend/pkg/events"
	"github.com/tourvia/backend/pkg/logger"
)

type AuthService interface {
	Signup(ctx context.Context, req *domain.SignupRequest) (*domain.User, string, error)
	Login(ctx context.Context, req *domain.LoginRequest) (*domain.User, string, error)
	GoogleLogin(ctx context.Context, credential string) (*domain.User, string, error)
	Authenticate(ctx context.Context, token string) (*domain.User, error)
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token string, req *domain.ResetPasswordRequest) (*domain.User, string, error)
	UpdatePassword(ctx context.Context, userID int64, req *domain.UpdatePasswordRequest) (*domain.User, string, error)
	GetUser(ctx context.Context, id int64) (*domain.User, error)
	UpdateMe(ctx context.Context, userID int64, req *domain.UpdateMeRequest) (*domain.User, error)
	DeactivateMe(ctx context.Context, userID int64) error
	ListUsers(ctx context.Context, limit, offset int) ([]domain.User, error)
	UpdateUser(ctx context.Context, id int64, req *domain.UpdateUserRequest) (*domain.User, error)
	DeleteUser(ctx context.Context, id int64) error
}

type authService struct {
	userRepo      repository.UserRepository
	challengeRepo repository.ChallengeRepository
	mailer        mailer.Service
	google        identity.TokenVerifier
	bus           events.Publisher
	config        *config.Config
}

func NewAuthService(
	userRepo repository.UserRepository,
	challengeRepo repository.ChallengeRepository,
	mailer mailer.Service,
	google identity.TokenVerifier,
	bus events.Publisher,
	config *config.Config,
) AuthService {
	return &authService{
		userRepo:      userRepo,
		challengeRepo: challengeRepo,
		mailer:        mailer,
		google:        google,
		bus:           bus,
		config:        config,
	}
}

func (s *authService) Signup(ctx context.Context, req *domain.SignupRequest) (*domain.User, string, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, "", err
	}

	existing, err := s.userRepo.FindByEmail(ctx, req.Email)
	if err != nil {
		return nil, "", fmt.Errorf("failed to check existing user: %w", err)
	}
	if existing != nil {
		return nil, "", domain.Validation("Email already in use")
	}

	passwordHash, err := argon2id.CreateHash(req.Password, argon2id.DefaultParams)
	if err != nil {
		return nil, "", fmt.Errorf("failed to hash password: %w", err)
	}

	user, err := s.userRepo.Create(ctx, req, passwordHash)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create user: %w", err)
	}

	accountURL := s.config.App.FrontendURL + "/me"
	if err := s.mailer.SendWelcome(user.Email, user.Name, accountURL); err != nil {
		logger.ErrorContext(ctx, "Failed to send welcome email", "error", err, "user_id", user.ID)
		// Signup still succeeds; the welcome mail is best effort
	}

	s.publish(ctx, events.UserSignedUp, events.UserSignedUpEvent{
		UserID:    user.ID,
		Email:     user.Email,
		Name:      user.Name,
		Provider:  user.Provider,
		CreatedAt: user.CreatedAt,
	})

	token, err := s.signSession(user.ID)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

func (s *authService) Login(ctx context.Context, req *domain.LoginRequest) (*domain.User, string, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, "", err
	}

	user, err := s.userRepo.FindByEmail(ctx, req.Email)
	if err != nil {
		return nil, "", fmt.Errorf("failed to find user: %w", err)
	}

	// Same rejection whether the user is absent, signed up through Google,
	// or typed the wrong password. No account enumeration.
	if user == nil || !user.IsEmailProvider() {
		return nil, "", domain.Auth("Invalid email or password")
	}

	valid, err := argon2id.ComparePasswordAndHash(req.Password, user.PasswordHash)
	if err != nil {
		return nil, "", fmt.Errorf("failed to verify password: %w", err)
	}
	if !valid {
		return nil, "", domain.Auth("Invalid email or password")
	}

	s.publish(ctx, events.UserLoggedIn, events.UserLoggedInEvent{
		UserID: user.ID, Method: "password", LoggedAt: time.Now(),
	})

	token, err := s.signSession(user.ID)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

func (s *authService) GoogleLogin(ctx context.Context, credential string) (*domain.User, string, error) {
	if credential == "" {
		return nil, "", domain.Validation("No Google credential")
	}

	profile, err := s.google.Verify(ctx, credential)
	if err != nil {
		return nil, "", domain.Validation("Invalid Google credential")
	}

	user, err := s.userRepo.FindByEmail(ctx, profile.Email)
	if err != nil {
		return nil, "", fmt.Errorf("failed to find user: %w", err)
	}

	if user == nil {
		user, err = s.userRepo.CreateGoogle(ctx, profile.Name, profile.Email, profile.Picture)
		if err != nil {
			return nil, "", fmt.Errorf("failed to create user: %w", err)
		}

		s.publish(ctx, events.UserSignedUp, events.UserSignedUpEvent{
			UserID:    user.ID,
			Email:     user.Email,
			Name:      user.Name,
			Provider:  user.Provider,
			CreatedAt: user.CreatedAt,
		})
	}

	s.publish(ctx, events.UserLoggedIn, events.UserLoggedInEvent{
		UserID: user.ID, Method: "google", LoggedAt: time.Now(),
	})

	token, err := s.signSession(user.ID)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

// Authenticate resolves a bearer token to a live user: signature and expiry
// through the token itself, then existence and password staleness against the
// store.
func (s *authService) Authenticate(ctx context.Context, token string) (*domain.User, error) {
	claims, err := auth.Parse(token, s.config.Auth.JWTSecret)
	if err != nil {
		return nil, domain.Auth("You are not logged in")
	}

	user, err := s.userRepo.FindByID(ctx, claims.Sub)
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if user == nil {
		return nil, domain.Auth("The user no longer exists")
	}

	if claims.IssuedAt != nil && user.ChangedPasswordAfter(claims.IssuedAt.Time) {
		return nil, domain.Auth("Password recently changed. Login again")
	}

	return user, nil
}

func (s *authService) ForgotPassword(ctx context.Context, email string) error {
	if email == "" {
		return domain.Validation("Email required")
	}

	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return domain.NotFound("User does not exist!")
	}
	if !user.IsEmailProvider() {
		return domain.Validation("This account uses Google sign-in")
	}

	// The plaintext token goes to the user once; only its digest is stored.
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return fmt.Errorf("failed to generate reset token: %w", err)
	}
	resetToken := hex.EncodeToString(raw)

	expiresAt := time.Now().Add(s.config.Auth.ResetTokenTTL)
	if err := s.challengeRepo.SetPasswordResetToken(ctx, user.ID, hashChallenge(resetToken), expiresAt); err != nil {
		return fmt.Errorf("failed to store reset token: %w", err)
	}

	resetURL := fmt.Sprintf("%s/resetPassword/%s", s.config.App.FrontendURL, resetToken)
	if err := s.mailer.SendPasswordReset(user.Email, user.Name, resetURL); err != nil {
		// Roll the challenge back so no undelivered token stays live.
		if clearErr := s.challengeRepo.ClearPasswordResetToken(ctx, user.ID); clearErr != nil {
			logger.ErrorContext(ctx, "Failed to clear reset token after delivery error", "error", clearErr, "user_id", user.ID)
		}
		return domain.Delivery("Error sending email", err)
	}

	return nil
}

func (s *authService) ResetPassword(ctx context.Context, token string, req *domain.ResetPasswordRequest) (*domain.User, string, error) {
	user, err := s.challengeRepo.FindByResetToken(ctx, hashChallenge(token))
	if err != nil {
		return nil, "", fmt.Errorf("failed to look up reset token: %w", err)
	}
	if user == nil {
		return nil, "", domain.Validation("Token invalid or expired")
	}

	if err := req.Validate(); err != nil {
		return nil, "", err
	}

	passwordHash, err := argon2id.CreateHash(req.Password, argon2id.DefaultParams)
	if err != nil {
		return nil, "", fmt.Errorf("failed to hash password: %w", err)
	}

	// Stores the new hash and clears the consumed reset challenge.
	if err := s.userRepo.UpdatePassword(ctx, user.ID, passwordHash); err != nil {
		return nil, "", fmt.Errorf("failed to update password: %w", err)
	}

	s.publish(ctx, events.UserPasswordChanged, events.UserPasswordChangedEvent{
		UserID: user.ID, ChangedAt: time.Now(),
	})

	sessionToken, err := s.signSession(user.ID)
	if err != nil {
		return nil, "", err
	}
	return user, sessionToken, nil
}

func (s *authService) UpdatePassword(ctx context.Context, userID int64, req *domain.UpdatePasswordRequest) (*domain.User, string, error) {
	if err := req.Validate(); err != nil {
		return nil, "", err
	}

	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, "", fmt.Errorf("failed to load user: %w", err)
	}
	if user == nil {
		return nil, "", domain.Auth("The user no longer exists")
	}
	if !user.IsEmailProvider() {
		return nil, "", domain.Validation("This account uses Google sign-in")
	}

	valid, err := argon2id.ComparePasswordAndHash(req.PasswordCurrent, user.PasswordHash)
	if err != nil {
		return nil, "", fmt.Errorf("failed to verify password: %w", err)
	}
	if !valid {
		return nil, "", domain.Auth("Incorrect password")
	}

	passwordHash, err := argon2id.CreateHash(req.Password, argon2id.DefaultParams)
	if err != nil {
		return nil, "", fmt.Errorf("failed to hash password: %w", err)
	}

	if err := s.userRepo.UpdatePassword(ctx, user.ID, passwordHash); err != nil {
		return nil, "", fmt.Errorf("failed to update password: %w", err)
	}

	s.publish(ctx, events.UserPasswordChanged, events.UserPasswordChangedEvent{
		UserID: user.ID, ChangedAt: time.Now(),
	})

	token, err := s.signSession(user.ID)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

func (s *authService) GetUser(ctx context.Context, id int64) (*domain.User, error) {
	user, err := s.userRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil {
		return nil, domain.NotFound("User not found")
	}
	return user, nil
}

func (s *authService) UpdateMe(ctx context.Context, userID int64, req *domain.UpdateMeRequest) (*domain.User, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	user, err := s.userRepo.UpdateProfile(ctx, userID, req)
	if err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}
	if user == nil {
		return nil, domain.NotFound("User not found")
	}
	return user, nil
}

func (s *authService) DeactivateMe(ctx context.Context, userID int64) error {
	if err := s.userRepo.Deactivate(ctx, userID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.NotFound("User not found")
		}
		return fmt.Errorf("failed to deactivate user: %w", err)
	}

	s.publish(ctx, events.UserDeactivated, events.UserDeactivatedEvent{
		UserID: userID, DeactivatedAt: time.Now(),
	})
	return nil
}

func (s *authService) ListUsers(ctx context.Context, limit, offset int) ([]domain.User, error) {
	users, err := s.userRepo.List(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

func (s *authService) UpdateUser(ctx context.Context, id int64, req *domain.UpdateUserRequest) (*domain.User, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	user, err := s.userRepo.Update(ctx, id, req)
	if err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	if user == nil {
		return nil, domain.NotFound("User not found")
	}
	return user, nil
}

func (s *authService) DeleteUser(ctx context.Context, id int64) error {
	err := s.userRepo.Delete(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.NotFound("User not found")
		}
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return nil
}

// Helper methods

func (s *authService) signSession(userID int64) (string, error) {
	token, err := auth.NewSessionToken(userID, s.config.Auth.JWTSecret, s.config.Auth.SessionTTL)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}
	return token, nil
}

func (s *authService) publish(ctx context.Context, subject string, data interface{}) {
	if err := s.bus.Publish(ctx, subject, data); err != nil {
		logger.WarnContext(ctx, "Failed to publish event", "subject", subject, "error", err)
	}
}

// hashChallenge digests a one-time secret for storage. These are short-lived,
// expiry-bounded secrets, so a fast digest is enough; the slow hash is
// reserved for passwords.
func hashChallenge(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}
