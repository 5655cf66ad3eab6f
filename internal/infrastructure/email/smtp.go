package email

import (
	"fmt"

	"gopkg.in/gomail.v2"

	"captionly/internal/shared/config"
)

// Sender delivers subscription lifecycle notifications. All sends are
// best-effort: callers fire them from a background goroutine and a failure
// never blocks the entitlement transition that triggered it.
type Sender interface {
	SendTrialStarted(to string, trialDays int) error
	SendPremiumActivated(to string) error
	SendPaymentFailed(to string) error
	SendSubscriptionCancelled(to string) error
}

// SMTPSender implements Sender over SMTP via gomail.
type SMTPSender struct {
	cfg    *config.EmailConfig
	dialer *gomail.Dialer
}

func NewSMTPSender(cfg *config.EmailConfig) *SMTPSender {
	return &SMTPSender{
		cfg:    cfg,
		dialer: gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword),
	}
}

func (s *SMTPSender) SendTrialStarted(to string, trialDays int) error {
	subject := "Your free trial has started"
	htmlBody := fmt.Sprintf(`
		<html>
		<body>
			<h2>Your trial is live!</h2>
			<p>You now have %d days of full access: 100 caption generations per month and captions for up to 3 platforms per request.</p>
			<p>We'll let you know before the trial ends.</p>
		</body>
		</html>
	`, trialDays)

	plainBody := fmt.Sprintf(`
Your trial is live!

You now have %d days of full access: 100 caption generations per month and captions for up to 3 platforms per request.

We'll let you know before the trial ends.
	`, trialDays)

	return s.send(to, subject, htmlBody, plainBody)
}

func (s *SMTPSender) SendPremiumActivated(to string) error {
	subject := "Welcome to Premium"
	htmlBody := `
		<html>
		<body>
			<h2>You're on Premium</h2>
			<p>Your subscription is active: 100 caption generations per month and captions for up to 3 platforms per request.</p>
			<p>Thanks for supporting us!</p>
		</body>
		</html>
	`

	plainBody := `
You're on Premium

Your subscription is active: 100 caption generations per month and captions for up to 3 platforms per request.

Thanks for supporting us!
	`

	return s.send(to, subject, htmlBody, plainBody)
}

func (s *SMTPSender) SendPaymentFailed(to string) error {
	subject := "Payment failed"
	htmlBody := `
		<html>
		<body>
			<h2>We couldn't process your payment</h2>
			<p>Your subscription stays active for now and the provider will retry automatically.</p>
			<p>Please check your payment method to avoid an interruption.</p>
		</body>
		</html>
	`

	plainBody := `
We couldn't process your payment

Your subscription stays active for now and the provider will retry automatically.

Please check your payment method to avoid an interruption.
	`

	return s.send(to, subject, htmlBody, plainBody)
}

func (s *SMTPSender) SendSubscriptionCancelled(to string) error {
	subject := "Your subscription has been cancelled"
	htmlBody := `
		<html>
		<body>
			<h2>Subscription cancelled</h2>
			<p>Your account is back on the free plan: 5 caption generations per month, one platform at a time.</p>
			<p>You can resubscribe at any time.</p>
		</body>
		</html>
	`

	plainBody := `
Subscription cancelled

Your account is back on the free plan: 5 caption generations per month, one platform at a time.

You can resubscribe at any time.
	`

	return s.send(to, subject, htmlBody, plainBody)
}

func (s *SMTPSender) send(to, subject, htmlBody, plainBody string) error {
	m := gomail.NewMessage()
	m.SetAddressHeader("From", s.cfg.FromAddress, s.cfg.FromName)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", plainBody)
	m.AddAlternative("text/html", htmlBody)

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	return nil
}

// NopSender discards every notification. Used when email is disabled.
type NopSender struct{}

func (NopSender) SendTrialStarted(string, int) error     { return nil }
func (NopSender) SendPremiumActivated(string) error      { return nil }
func (NopSender) SendPaymentFailed(string) error         { return nil }
func (NopSender) SendSubscriptionCancelled(string) error { return nil }
