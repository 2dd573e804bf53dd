package mailer

import (
	"github.com/tourvia/backend/pkg/logger"
)

// DevMailer logs outgoing mail instead of sending it.
type DevMailer struct{}

func NewDevMailer() *DevMailer {
	return &DevMailer{}
}

func (d *DevMailer) SendWelcome(toEmail, toName, accountURL string) error {
	logger.Info("[DEV MAIL] Welcome email",
		"to", toEmail,
		"name", toName,
		"account_url", accountURL,
	)
	return nil
}

func (d *DevMailer) SendPasswordReset(toEmail, toName, resetURL string) error {
	logger.Info("[DEV MAIL] Password reset email",
		"to", toEmail,
		"name", toName,
		"reset_url", resetURL,
	)
	return nil
}

func (d *DevMailer) SendLoginCode(toEmail, toName, code string) error {
	logger.Info("[DEV MAIL] Login code email",
		"to", toEmail,
		"name", toName,
		"code", code,
	)
	return nil
}
