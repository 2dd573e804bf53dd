package service_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/tourvia/backend/internal/domain"
	"github.com/tourvia/backend/internal/service"
)

// ---------- Mocks ----------

type mockVerifier struct {
	started  []string
	approved bool
	startErr error
	checkErr error
}

func (m *mockVerifier) StartVerification(_ context.Context, phone string) error {
	if m.startErr != nil {
		return m.startErr
	}
	m.started = append(m.started, phone)
	return nil
}

func (m *mockVerifier) CheckVerification(_ context.Context, phone, code string) (bool, error) {
	if m.checkErr != nil {
		return false, m.checkErr
	}
	return m.approved, nil
}

// ---------- Test Setup ----------

type challengeFixture struct {
	users      *mockUserRepo
	challenges *mockChallengeRepo
	mailer     *mockMailer
	verifier   *mockVerifier
	bus        *mockBus
	svc        service.ChallengeService
}

func newChallengeFixture() *challengeFixture {
	users := newMockUserRepo()
	challenges := newMockChallengeRepo(users)
	ml := &mockMailer{}
	verifier := &mockVerifier{}
	bus := &mockBus{}

	return &challengeFixture{
		users:      users,
		challenges: challenges,
		mailer:     ml,
		verifier:   verifier,
		bus:        bus,
		svc:        service.NewChallengeService(users, challenges, ml, verifier, bus, testConfig()),
	}
}

// ---------- Tests ----------

func TestSendEmailCodeUnknownUser(t *testing.T) {
	f := newChallengeFixture()

	err := f.svc.SendEmailCode(context.Background(), "nobody@example.com")
	assertKind(t, err, domain.KindNotFound, "No user with that email")
}

func TestSendEmailCodeMailsSixDigits(t *testing.T) {
	f := newChallengeFixture()
	user := f.users.add(&domain.User{
		Name: "Alice", Email: "alice@example.com", Provider: domain.ProviderEmail,
	})

	if err := f.svc.SendEmailCode(context.Background(), "alice@example.com"); err != nil {
		t.Fatalf("send email code: %v", err)
	}

	if len(f.mailer.loginCodes) != 1 {
		t.Fatalf("expected 1 code email, got %d", len(f.mailer.loginCodes))
	}
	code := f.mailer.loginCodes[0]
	if len(code) != 6 {
		t.Errorf("expected a 6-digit code, got %q", code)
	}

	rec, ok := f.challenges.loginCodes[user.ID]
	if !ok {
		t.Fatal("no login code stored")
	}
	if rec.hash == code {
		t.Error("login code stored in plaintext")
	}
}

func TestVerifyEmailCodeIsOneShot(t *testing.T) {
	f := newChallengeFixture()
	f.users.add(&domain.User{
		Name: "Alice", Email: "alice@example.com", Provider: domain.ProviderEmail,
	})

	if err := f.svc.SendEmailCode(context.Background(), "alice@example.com"); err != nil {
		t.Fatalf("send email code: %v", err)
	}
	code := f.mailer.loginCodes[0]

	user, token, err := f.svc.VerifyEmailCode(context.Background(), "alice@example.com", code)
	if err != nil {
		t.Fatalf("verify email code: %v", err)
	}
	if user == nil || token == "" {
		t.Fatal("expected user and session token")
	}

	// Replaying the same code must fail.
	_, _, err = f.svc.VerifyEmailCode(context.Background(), "alice@example.com", code)
	assertKind(t, err, domain.KindValidation, "Invalid or expired code")
}

func TestVerifyEmailCodeWrongCode(t *testing.T) {
	f := newChallengeFixture()
	f.users.add(&domain.User{
		Name: "Alice", Email: "alice@example.com", Provider: domain.ProviderEmail,
	})

	if err := f.svc.SendEmailCode(context.Background(), "alice@example.com"); err != nil {
		t.Fatalf("send email code: %v", err)
	}

	_, _, err := f.svc.VerifyEmailCode(context.Background(), "alice@example.com", "000000")
	assertKind(t, err, domain.KindValidation, "Invalid or expired code")
}

func TestCheckPhoneUnique(t *testing.T) {
	f := newChallengeFixture()
	f.users.add(&domain.User{
		Name: "Alice", Email: "alice@example.com", Provider: domain.ProviderEmail,
		PhoneNumber: "+639171234567",
	})

	unique, err := f.svc.CheckPhoneUnique(context.Background(), "0917 123 4567")
	if err != nil {
		t.Fatalf("check phone: %v", err)
	}
	if unique {
		t.Error("expected taken phone to report not unique")
	}

	unique, err = f.svc.CheckPhoneUnique(context.Background(), "0917 999 8888")
	if err != nil {
		t.Fatalf("check phone: %v", err)
	}
	if !unique {
		t.Error("expected free phone to report unique")
	}
}

func TestSendLoginOTPUnknownPhone(t *testing.T) {
	f := newChallengeFixture()

	err := f.svc.SendLoginOTP(context.Background(), "0917 123 4567")
	assertKind(t, err, domain.KindNotFound, "No user found")
	if len(f.verifier.started) != 0 {
		t.Error("verification started for unknown phone")
	}
}

func TestVerifyLoginOTPNotApproved(t *testing.T) {
	f := newChallengeFixture()
	f.users.add(&domain.User{
		Name: "Alice", Email: "alice@example.com", Provider: domain.ProviderEmail,
		PhoneNumber: "+639171234567",
	})
	f.verifier.approved = false

	_, token, err := f.svc.VerifyLoginOTP(context.Background(), "0917 123 4567", "123456")
	assertKind(t, err, domain.KindValidation, "Invalid or expired OTP")
	if token != "" {
		t.Error("token issued for rejected OTP")
	}
}

func TestVerifyLoginOTPApproved(t *testing.T) {
	f := newChallengeFixture()
	f.users.add(&domain.User{
		Name: "Alice", Email: "alice@example.com", Provider: domain.ProviderEmail,
		PhoneNumber: "+639171234567",
	})
	f.verifier.approved = true

	user, token, err := f.svc.VerifyLoginOTP(context.Background(), "0917 123 4567", "123456")
	if err != nil {
		t.Fatalf("verify login otp: %v", err)
	}
	if user == nil || token == "" {
		t.Fatal("expected user and session token")
	}
}

func TestSendPhoneVerificationOTPTakenPhone(t *testing.T) {
	f := newChallengeFixture()
	f.users.add(&domain.User{
		Name: "Alice", Email: "alice@example.com", Provider: domain.ProviderEmail,
		PhoneNumber: "+639171234567",
	})
	me := f.users.add(&domain.User{
		Name: "Bob", Email: "bob@example.com", Provider: domain.ProviderEmail,
	})

	err := f.svc.SendPhoneVerificationOTP(context.Background(), me.ID, "0917 123 4567")
	assertKind(t, err, domain.KindValidation, "Phone already taken")
}

func TestSendPhoneVerificationOTPParksUnverifiedNumber(t *testing.T) {
	f := newChallengeFixture()
	me := f.users.add(&domain.User{
		Name: "Bob", Email: "bob@example.com", Provider: domain.ProviderEmail,
	})

	if err := f.svc.SendPhoneVerificationOTP(context.Background(), me.ID, "0917 999 8888"); err != nil {
		t.Fatalf("send phone verification otp: %v", err)
	}

	u := f.users.users[me.ID]
	if u.PhoneNumber != "+639179998888" {
		t.Errorf("phone not normalized and saved: %q", u.PhoneNumber)
	}
	if u.PhoneVerified {
		t.Error("phone marked verified before the OTP check")
	}
	if len(f.verifier.started) != 1 {
		t.Errorf("expected 1 verification start, got %d", len(f.verifier.started))
	}
}

func TestVerifyPhoneOTPMarksVerified(t *testing.T) {
	f := newChallengeFixture()
	me := f.users.add(&domain.User{
		Name: "Bob", Email: "bob@example.com", Provider: domain.ProviderEmail,
		PhoneNumber: "+639179998888",
	})
	f.verifier.approved = true

	if err := f.svc.VerifyPhoneOTP(context.Background(), me.ID, "123456"); err != nil {
		t.Fatalf("verify phone otp: %v", err)
	}
	if !f.users.users[me.ID].PhoneVerified {
		t.Error("phone not marked verified")
	}
}

func TestVerifyPhoneOTPDeliveryError(t *testing.T) {
	f := newChallengeFixture()
	me := f.users.add(&domain.User{
		Name: "Bob", Email: "bob@example.com", Provider: domain.ProviderEmail,
		PhoneNumber: "+639179998888",
	})
	f.verifier.checkErr = fmt.Errorf("twilio down")

	err := f.svc.VerifyPhoneOTP(context.Background(), me.ID, "123456")
	assertKind(t, err, domain.KindDelivery, "Error verifying OTP")
}
