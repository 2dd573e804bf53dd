package sms

import (
	"context"
	"fmt"

	"github.com/twilio/twilio-go"
	verify "github.com/twilio/twilio-go/rest/verify/v2"
)

// TwilioVerifier sends and checks SMS one-time passcodes through the Twilio
// Verify v2 API.
type TwilioVerifier struct {
	client     *twilio.RestClient
	serviceSID string
}

func NewTwilioVerifier(accountSID, authToken, verifyServiceSID string) *TwilioVerifier {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})

	return &TwilioVerifier{
		client:     client,
		serviceSID: verifyServiceSID,
	}
}

func (t *TwilioVerifier) StartVerification(ctx context.Context, phone string) error {
	params := &verify.CreateVerificationParams{}
	params.SetTo(phone)
	params.SetChannel("sms")

	_, err := t.client.VerifyV2.CreateVerification(t.serviceSID, params)
	if err != nil {
		return fmt.Errorf("twilio verification create: %w", err)
	}
	return nil
}

// CheckVerification returns true only when Twilio reports the check approved.
// A wrong or expired code comes back with a different status, not an error.
func (t *TwilioVerifier) CheckVerification(ctx context.Context, phone, code string) (bool, error) {
	params := &verify.CreateVerificationCheckParams{}
	params.SetTo(phone)
	params.SetCode(code)

	resp, err := t.client.VerifyV2.CreateVerificationCheck(t.serviceSID, params)
	if err != nil {
		return false, fmt.Errorf("twilio verification check: %w", err)
	}

	return resp.Status != nil && *resp.Status == "approved", nil
}
