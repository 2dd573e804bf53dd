package sms

import "context"

// Verifier delegates one-time passcode generation, delivery, and checking to
// an external verification service. The service owns the secret and its
// expiry; this system only learns whether a check was approved.
type Verifier interface {
	StartVerification(ctx context.Context, phone string) error
	CheckVerification(ctx context.Context, phone, code string) (bool, error)
}
