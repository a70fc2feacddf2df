package email

import (
	"fmt"
	"net/smtp"
	"strings"
	"time"
)

type Sender interface {
	Send(to string, subject string, body string) error
}

// SMTPSender sends email via unauthenticated SMTP (Mailpit-compatible).
type SMTPSender struct {
	addr string
	from string
}

func NewSMTPSender(host string, port string, from string) *SMTPSender {
	host = strings.TrimSpace(host)
	port = strings.TrimSpace(port)
	from = strings.TrimSpace(from)
	if from == "" {
		from = "no-reply@slotly.local"
	}
	return &SMTPSender{
		addr: fmt.Sprintf("%s:%s", host, port),
		from: from,
	}
}

func (s *SMTPSender) Send(to string, subject string, body string) error {
	msg := buildMessage(s.from, to, subject, body)
	return smtp.SendMail(s.addr, nil, s.from, []string{to}, []byte(msg))
}

func buildMessage(from, to, subject, body string) string {
	// Minimal RFC 5322 message; enough for Mailpit and most SMTP relays.
	return fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s\r\n",
		from,
		to,
		subject,
		body,
	)
}

// ConfirmationCodeBody renders the email asking the customer to verify a
// pending booking with the code.
func ConfirmationCodeBody(name, code string, start time.Time) string {
	return fmt.Sprintf(
		"Hi %s,\n\nYour appointment on %s is almost booked.\nEnter this code to confirm it: %s\n\nThe code expires if the appointment is not verified soon.\n",
		name,
		start.Format("Monday, January 2 at 3:04 PM"),
		code,
	)
}

// BookedBody renders the email confirming a verified booking.
func BookedBody(name string, start time.Time) string {
	return fmt.Sprintf(
		"Hi %s,\n\nYour appointment is confirmed for %s.\nSee you then!\n",
		name,
		start.Format("Monday, January 2 at 3:04 PM"),
	)
}
