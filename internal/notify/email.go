package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/mail"
	"net/smtp"
	"os"
	"strings"
)

const defaultSubject = "Storefront layout published"

// Email sends publish events over SMTP. Server settings come from the
// SMTP_HOST, SMTP_PORT, SMTP_USER, SMTP_PASS and SMTP_FROM environment
// variables so credentials stay out of the config file.
type Email struct {
	to       string
	from     string
	subject  string
	host     string
	port     string
	username string
	password string
}

// NewEmail creates an email notifier from the SMTP_* environment.
func NewEmail(to, subject string) (*Email, error) {
	host := os.Getenv("SMTP_HOST")
	if host == "" {
		return nil, fmt.Errorf("SMTP_HOST environment variable not set")
	}
	from := os.Getenv("SMTP_FROM")
	if from == "" {
		return nil, fmt.Errorf("SMTP_FROM environment variable not set")
	}
	return newEmail(to, from, subject, host, os.Getenv("SMTP_PORT"), os.Getenv("SMTP_USER"), os.Getenv("SMTP_PASS"))
}

func newEmail(to, from, subject, host, port, username, password string) (*Email, error) {
	if to == "" {
		return nil, fmt.Errorf("email recipient (to) is required")
	}
	if _, err := mail.ParseAddress(to); err != nil {
		return nil, fmt.Errorf("invalid recipient %q: %w", to, err)
	}
	if _, err := mail.ParseAddress(from); err != nil {
		return nil, fmt.Errorf("invalid sender %q: %w", from, err)
	}
	if port == "" {
		port = "587"
	}
	if subject == "" {
		subject = defaultSubject
	}
	return &Email{
		to:       to,
		from:     from,
		subject:  headerValue(subject),
		host:     host,
		port:     port,
		username: username,
		password: password,
	}, nil
}

func (e *Email) Name() string { return "email" }

// Send delivers the event as a plain text email. STARTTLS is used when the
// server offers it, and credentials are only sent when configured.
func (e *Email) Send(ctx context.Context, ev Event) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(e.host, e.port))
	if err != nil {
		return fmt.Errorf("connect to SMTP server: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	c, err := smtp.NewClient(conn, e.host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: e.host}); err != nil {
			return fmt.Errorf("starttls: %w", err)
		}
	}
	if e.username != "" && e.password != "" {
		if err := c.Auth(smtp.PlainAuth("", e.username, e.password, e.host)); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}
	if err := c.Mail(e.from); err != nil {
		return fmt.Errorf("smtp MAIL: %w", err)
	}
	if err := c.Rcpt(e.to); err != nil {
		return fmt.Errorf("smtp RCPT: %w", err)
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtp DATA: %w", err)
	}
	if _, err := w.Write(e.message(ev)); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	return c.Quit()
}

func (e *Email) message(ev Event) []byte {
	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s\r\n", e.from)
	fmt.Fprintf(&msg, "To: %s\r\n", e.to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", e.subject)
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(ev.Message())
	msg.WriteString("\r\n")
	return msg.Bytes()
}

// headerValue drops line breaks so a value cannot start a new header.
func headerValue(s string) string {
	return strings.NewReplacer("\r", "", "\n", " ").Replace(s)
}
