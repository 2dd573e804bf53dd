package mailer

type Service interface {
	SendWelcome(toEmail, toName, accountURL string) error
	SendPasswordReset(toEmail, toName, resetURL string) error
	SendLoginCode(toEmail, toName, code string) error
}
