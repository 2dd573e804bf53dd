package domain

import (
	"regexp"
	"strings"
	"time"
)

// Auth providers. The provider tag decides which credential fields are
// mandatory: email users carry a password hash, google users never do.
const (
	ProviderEmail  = "email"
	ProviderGoogle = "google"
)

// User roles
const (
	RoleUser      = "user"
	RoleGuide     = "guide"
	RoleLeadGuide = "lead-guide"
	RoleAdmin     = "admin"
)

var validRoles = map[string]bool{
	RoleUser:      true,
	RoleGuide:     true,
	RoleLeadGuide: true,
	RoleAdmin:     true,
}

const MinPasswordLength = 8

type User struct {
	ID                int64      `json:"id"`
	Name              string     `json:"name"`
	Email             string     `json:"email"`
	Photo             string     `json:"photo"`
	Role              string     `json:"role"`
	Provider          string     `json:"provider"`
	PhoneNumber       string     `json:"phoneNumber,omitempty"`
	PhoneVerified     bool       `json:"phoneVerified"`
	PasswordHash      string     `json:"-"`
	PasswordChangedAt *time.Time `json:"-"`
	Active            bool       `json:"-"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

// ChangedPasswordAfter reports whether the password was changed after the
// given token issuance time. Tokens minted before a password change are stale.
func (u *User) ChangedPasswordAfter(issuedAt time.Time) bool {
	if u.PasswordChangedAt == nil {
		return false
	}
	return issuedAt.Before(*u.PasswordChangedAt)
}

func (u *User) IsEmailProvider() bool {
	return u.Provider == ProviderEmail
}

type SignupRequest struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"passwordConfirm"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type ResetPasswordRequest struct {
	Password        string `json:"password"`
	PasswordConfirm string `json:"passwordConfirm"`
}

type UpdatePasswordRequest struct {
	PasswordCurrent string `json:"passwordCurrent"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"passwordConfirm"`
}

type UpdateMeRequest struct {
	Name  *string `json:"name,omitempty"`
	Photo *string `json:"photo,omitempty"`
}

type UpdateUserRequest struct {
	Name  *string `json:"name,omitempty"`
	Photo *string `json:"photo,omitempty"`
	Role  *string `json:"role,omitempty"`
}

func IsValidRole(role string) bool {
	return validRoles[role]
}

// Validation methods

func (r *SignupRequest) Validate() error {
	if r.Name == "" {
		return Validation("A user must have a name")
	}
	if len(r.Name) < 3 || len(r.Name) > 40 {
		return Validation("A user name must be between 3 and 40 characters")
	}
	if r.Email == "" {
		return Validation("A user must have an email")
	}
	if !isValidEmail(r.Email) {
		return Validation("A user email must be valid")
	}
	return validatePasswordPair(r.Password, r.PasswordConfirm)
}

func (r *LoginRequest) Validate() error {
	if r.Email == "" || r.Password == "" {
		return Validation("Email or password missing")
	}
	return nil
}

func (r *ResetPasswordRequest) Validate() error {
	return validatePasswordPair(r.Password, r.PasswordConfirm)
}

func (r *UpdatePasswordRequest) Validate() error {
	if r.PasswordCurrent == "" {
		return Validation("Current password is required")
	}
	return validatePasswordPair(r.Password, r.PasswordConfirm)
}

func (r *UpdateMeRequest) Validate() error {
	if r.Name != nil && (len(*r.Name) < 3 || len(*r.Name) > 40) {
		return Validation("A user name must be between 3 and 40 characters")
	}
	return nil
}

func (r *UpdateUserRequest) Validate() error {
	if r.Name != nil && (len(*r.Name) < 3 || len(*r.Name) > 40) {
		return Validation("A user name must be between 3 and 40 characters")
	}
	if r.Role != nil && !validRoles[*r.Role] {
		return Validation("Invalid role")
	}
	return nil
}

func validatePasswordPair(password, confirm string) error {
	if password == "" {
		return Validation("A user must have a password")
	}
	if len(password) < MinPasswordLength {
		return Validation("Password must be at least 8 characters")
	}
	if password != confirm {
		return Validation("Passwords must match")
	}
	return nil
}

// Normalize methods

func (r *SignupRequest) Normalize() {
	r.Name = strings.TrimSpace(r.Name)
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
}

func (r *LoginRequest) Normalize() {
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
}

// Helper functions

func isValidEmail(email string) bool {
	emailRegex := regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	return emailRegex.MatchString(email)
}

var nonDigits = regexp.MustCompile(`\D`)

// NormalizePhone strips formatting and prefixes the default country code,
// mirroring how the booking frontend submits numbers.
func NormalizePhone(phone string) string {
	n := nonDigits.ReplaceAllString(strings.TrimSpace(phone), "")
	if n == "" {
		return ""
	}
	if !strings.HasPrefix(n, "63") {
		n = "63" + strings.TrimLeft(n, "0")
	}
	return "+" + n
}
