package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/tourvia/backend/internal/domain"
	"github.com/tourvia/backend/internal/mailer"
	"github.com/tourvia/backend/internal/repository"
	"github.com/tourvia/backend/internal/sms"
	"github.com/tourvia/backend/pkg/auth"
	"github.com/tourvia/backend/pkg/config"
	"github.com/tourvia/backend/pkg/events"
	"github.com/tourvia/backend/pkg/logger"
)

// ChallengeService drives the one-time-code login flows: email magic codes
// held in the credential store, and SMS passcodes delegated to the external
// verification service.
type ChallengeService interface {
	SendEmailCode(ctx context.Context, email string) error
	VerifyEmailCode(ctx context.Context, email, code string) (*domain.User, string, error)
	CheckPhoneUnique(ctx context.Context, phone string) (bool, error)
	SendLoginOTP(ctx context.Context, phone string) error
	VerifyLoginOTP(ctx context.Context, phone, code string) (*domain.User, string, error)
	SendPhoneVerificationOTP(ctx context.Context, userID int64, phone string) error
	VerifyPhoneOTP(ctx context.Context, userID int64, code string) error
}

type challengeService struct {
	userRepo      repository.UserRepository
	challengeRepo repository.ChallengeRepository
	mailer        mailer.Service
	verifier      sms.Verifier
	bus           events.Publisher
	config        *config.Config
}

func NewChallengeService(
	userRepo repository.UserRepository,
	challengeRepo repository.ChallengeRepository,
	mailer mailer.Service,
	verifier sms.Verifier,
	bus events.Publisher,
	config *config.Config,
) ChallengeService {
	return &challengeService{
		userRepo:      userRepo,
		challengeRepo: challengeRepo,
		mailer:        mailer,
		verifier:      verifier,
		bus:           bus,
		config:        config,
	}
}

func (s *challengeService) SendEmailCode(ctx context.Context, email string) error {
	if email == "" {
		return domain.Validation("Email required")
	}

	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return domain.NotFound("No user with that email")
	}

	code, err := generateCode()
	if err != nil {
		return fmt.Errorf("failed to generate login code: %w", err)
	}

	expiresAt := time.Now().Add(s.config.Auth.EmailCodeTTL)
	if err := s.challengeRepo.SetEmailLoginCode(ctx, user.ID, hashChallenge(code), expiresAt); err != nil {
		return fmt.Errorf("failed to store login code: %w", err)
	}

	// The challenge stays persisted on delivery failure; the user can retry
	// by asking for the code again, which overwrites it. Unlike a reset
	// token, an undelivered login code grants nothing by itself.
	if err := s.mailer.SendLoginCode(user.Email, user.Name, code); err != nil {
		return domain.Delivery("Error sending email", err)
	}

	return nil
}

func (s *challengeService) VerifyEmailCode(ctx context.Context, email, code string) (*domain.User, string, error) {
	if email == "" || code == "" {
		return nil, "", domain.Validation("Email & code required")
	}

	// One shot: the matching row is cleared in the same statement.
	user, err := s.challengeRepo.ConsumeEmailLoginCode(ctx, email, hashChallenge(code))
	if err != nil {
		return nil, "", fmt.Errorf("failed to verify login code: %w", err)
	}
	if user == nil {
		return nil, "", domain.Validation("Invalid or expired code")
	}

	s.publish(ctx, events.UserLoggedIn, events.UserLoggedInEvent{
		UserID: user.ID, Method: "email_code", LoggedAt: time.Now(),
	})

	token, err := s.signSession(user.ID)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

func (s *challengeService) CheckPhoneUnique(ctx context.Context, phone string) (bool, error) {
	if phone == "" {
		return false, domain.Validation("Phone required")
	}

	inUse, err := s.userRepo.PhoneInUse(ctx, domain.NormalizePhone(phone), 0)
	if err != nil {
		return false, fmt.Errorf("failed to check phone: %w", err)
	}
	return !inUse, nil
}

func (s *challengeService) SendLoginOTP(ctx context.Context, phone string) error {
	if phone == "" {
		return domain.Validation("Phone is required")
	}
	phone = domain.NormalizePhone(phone)

	user, err := s.userRepo.FindByPhone(ctx, phone)
	if err != nil {
		return fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return domain.NotFound("No user found")
	}

	if err := s.verifier.StartVerification(ctx, phone); err != nil {
		return domain.Delivery("Error sending OTP", err)
	}
	return nil
}

func (s *challengeService) VerifyLoginOTP(ctx context.Context, phone, code string) (*domain.User, string, error) {
	if phone == "" || code == "" {
		return nil, "", domain.Validation("Missing phone or code")
	}
	phone = domain.NormalizePhone(phone)

	approved, err := s.verifier.CheckVerification(ctx, phone, code)
	if err != nil {
		return nil, "", domain.Delivery("Error verifying OTP", err)
	}
	if !approved {
		return nil, "", domain.Validation("Invalid or expired OTP")
	}

	user, err := s.userRepo.FindByPhone(ctx, phone)
	if err != nil {
		return nil, "", fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, "", domain.NotFound("User not found")
	}

	s.publish(ctx, events.UserLoggedIn, events.UserLoggedInEvent{
		UserID: user.ID, Method: "sms_otp", LoggedAt: time.Now(),
	})

	token, err := s.signSession(user.ID)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

// SendPhoneVerificationOTP starts phone ownership verification from account
// settings. The number is parked on the user record unverified until the
// check comes back approved.
func (s *challengeService) SendPhoneVerificationOTP(ctx context.Context, userID int64, phone string) error {
	if phone == "" {
		return domain.Validation("Phone required")
	}
	phone = domain.NormalizePhone(phone)

	// Re-checked here even though the frontend calls check-phone first; two
	// sessions claiming the same number can still race between the checks.
	inUse, err := s.userRepo.PhoneInUse(ctx, phone, userID)
	if err != nil {
		return fmt.Errorf("failed to check phone: %w", err)
	}
	if inUse {
		return domain.Validation("Phone already taken")
	}

	if err := s.verifier.StartVerification(ctx, phone); err != nil {
		return domain.Delivery("Error sending OTP", err)
	}

	if err := s.userRepo.SetPhone(ctx, userID, phone); err != nil {
		return fmt.Errorf("failed to save phone: %w", err)
	}
	return nil
}

func (s *challengeService) VerifyPhoneOTP(ctx context.Context, userID int64, code string) error {
	if code == "" {
		return domain.Validation("OTP required")
	}

	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to load user: %w", err)
	}
	if user == nil {
		return domain.Auth("The user no longer exists")
	}
	if user.PhoneNumber == "" {
		return domain.Validation("No phone number pending verification")
	}

	approved, err := s.verifier.CheckVerification(ctx, user.PhoneNumber, code)
	if err != nil {
		return domain.Delivery("Error verifying OTP", err)
	}
	if !approved {
		return domain.Validation("Invalid or expired OTP")
	}

	if err := s.userRepo.MarkPhoneVerified(ctx, user.ID); err != nil {
		return fmt.Errorf("failed to mark phone verified: %w", err)
	}

	s.publish(ctx, events.UserPhoneVerified, events.UserPhoneVerifiedEvent{
		UserID: user.ID, Phone: user.PhoneNumber, VerifiedAt: time.Now(),
	})
	return nil
}

// Helper methods

func (s *challengeService) signSession(userID int64) (string, error) {
	token, err := auth.NewSessionToken(userID, s.config.Auth.JWTSecret, s.config.Auth.SessionTTL)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}
	return token, nil
}

func (s *challengeService) publish(ctx context.Context, subject string, data interface{}) {
	if err := s.bus.Publish(ctx, subject, data); err != nil {
		logger.WarnContext(ctx, "Failed to publish event", "subject", subject, "error", err)
	}
}

// generateCode draws a uniformly random 6-digit login code.
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}
