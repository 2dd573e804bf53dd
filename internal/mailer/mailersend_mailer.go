package mailer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mailersend/mailersend-go"
)

type MailerSendClient struct {
	client  *mailersend.Mailersend
	from    mailersend.From
	enabled bool
}

func NewMailerSend(apiKey, fromName, fromEmail string) *MailerSendClient {
	m := &MailerSendClient{
		enabled: apiKey != "" && fromEmail != "",
		from: mailersend.From{
			Name:  fromName,
			Email: fromEmail,
		},
	}

	if m.enabled {
		m.client = mailersend.NewMailersend(apiKey)
	}

	return m
}

func (m *MailerSendClient) SendWelcome(toEmail, toName, accountURL string) error {
	if !m.enabled {
		return fmt.Errorf("MailerSend not configured")
	}

	subject := "Welcome to Tourvia!"
	html := fmt.Sprintf(`
		<h2>Welcome aboard, %s!</h2>
		<p>Your account is ready. Browse our tours and start planning your next trip.</p>
		<p><a href="%s" style="background-color: #55c57a; color: white; padding: 10px 20px; text-decoration: none; border-radius: 5px;">Go to your account</a></p>
	`, toName, accountURL)

	text := fmt.Sprintf("Welcome aboard, %s! Your account is ready: %s", toName, accountURL)

	return m.sendEmail(toEmail, toName, subject, text, html)
}

func (m *MailerSendClient) SendPasswordReset(toEmail, toName, resetURL string) error {
	if !m.enabled {
		return fmt.Errorf("MailerSend not configured")
	}

	subject := "Your password reset token (valid for 10 minutes)"
	html := fmt.Sprintf(`
		<h2>Forgot your password?</h2>
		<p>Hi %s,</p>
		<p>Click the button below to choose a new password. The link expires in 10 minutes.</p>
		<p><a href="%s" style="background-color: #55c57a; color: white; padding: 10px 20px; text-decoration: none; border-radius: 5px;">Reset password</a></p>
		<p>If you didn't request a password reset, please ignore this email.</p>
	`, toName, resetURL)

	text := fmt.Sprintf("Forgot your password? Reset it here (valid for 10 minutes): %s", resetURL)

	return m.sendEmail(toEmail, toName, subject, text, html)
}

func (m *MailerSendClient) SendLoginCode(toEmail, toName, code string) error {
	if !m.enabled {
		return fmt.Errorf("MailerSend not configured")
	}

	subject := "Your Tourvia login code"
	html := fmt.Sprintf(`
		<h2>Your login code</h2>
		<p>Your one-time login code is: <strong style="font-size: 24px; color: #55c57a;">%s</strong></p>
		<p>This code expires in 10 minutes.</p>
		<p>If you didn't try to log in, please ignore this email.</p>
	`, code)

	text := fmt.Sprintf("Your one-time login code is: %s\n\nThis code expires in 10 minutes.", code)

	return m.sendEmail(toEmail, toName, subject, text, html)
}

func (m *MailerSendClient) sendEmail(toEmail, toName, subject, text, html string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	msg := m.client.Email.NewMessage()
	msg.SetFrom(m.from)
	msg.SetRecipients([]mailersend.Recipient{{Name: toName, Email: toEmail}})
	msg.SetSubject(subject)

	if strings.TrimSpace(text) != "" {
		msg.SetText(text)
	}
	if strings.TrimSpace(html) != "" {
		msg.SetHTML(html)
	}

	_, err := m.client.Email.Send(ctx, msg)
	return err
}
