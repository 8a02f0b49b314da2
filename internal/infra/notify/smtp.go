package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
)

// SMTPConfig holds the mail relay settings.
type SMTPConfig struct {
	Host     string
	Port     string
	From     string
	Password string
}

// SMTPNotifier sends reminder emails through a plain SMTP relay.
type SMTPNotifier struct {
	cfg SMTPConfig
}

func NewSMTPNotifier(cfg SMTPConfig) *SMTPNotifier {
	return &SMTPNotifier{cfg: cfg}
}

func (n *SMTPNotifier) SendReminder(ctx context.Context, r Reminder) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	auth := smtp.PlainAuth("", n.cfg.From, n.cfg.Password, n.cfg.Host)

	subject := fmt.Sprintf("Payment reminder: %s", r.Description)
	var body strings.Builder
	fmt.Fprintf(&body, "Hi %s,\n\n", r.ParticipantName)
	fmt.Fprintf(&body, "Your share of %s is %s and is due by %s.\n\n",
		r.Description, formatAmount(r.AmountDue, r.Currency), r.Deadline.Format("Mon, 02 Jan 2006 15:04 MST"))
	if r.PayURL != "" {
		fmt.Fprintf(&body, "Pay here:\n\n%s\n", r.PayURL)
	}

	message := []byte("Subject: " + subject + "\r\n" +
		"From: " + n.cfg.From + "\r\n" +
		"To: " + r.ParticipantEmail + "\r\n" +
		"Content-Type: text/plain; charset=UTF-8\r\n" +
		"\r\n" +
		body.String() + "\r\n")

	return smtp.SendMail(n.cfg.Host+":"+n.cfg.Port, auth, n.cfg.From, []string{r.ParticipantEmail}, message)
}

func formatAmount(minor int64, currency string) string {
	return fmt.Sprintf("%.2f %s", float64(minor)/100, strings.ToUpper(currency))
}
