package mailq

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
)

// SMTPMailer delivers rendered messages over plain SMTP. It satisfies
// [Mailer]; tests substitute a fake.
type SMTPMailer struct {
	Addr string
	From string
	Auth smtp.Auth
}

// Send describes the send operation and its observable behavior.
//
// Send may return an error when input validation, dependency calls, or security checks fail.
// Send does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (m *SMTPMailer) Send(_ context.Context, to, subject, body string) error {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", m.From)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(body)

	if err := smtp.SendMail(m.Addr, m.Auth, m.From, []string{to}, []byte(b.String())); err != nil {
		return fmt.Errorf("smtp send to %s: %w", to, err)
	}
	return nil
}
