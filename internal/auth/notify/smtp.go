package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"mime"
	"net"
	"net/mail"
	"net/smtp"
	"time"

	"github.com/aussiebroadwan/agencydesk/internal/auth/domain"
)

// SMTPSender relays codes through an SMTP server. STARTTLS is used whenever
// the server offers it; PLAIN auth only when Username is set.
type SMTPSender struct {
	Addr     string // host:port
	From     string
	Username string
	Password string
	Timeout  time.Duration // dial + session deadline, default 10s

	// TLSConfig overrides the STARTTLS config; nil verifies against the
	// host in Addr.
	TLSConfig *tls.Config
}

func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if msg.Channel != domain.ChannelEmail {
		return fmt.Errorf("%w: smtp cannot deliver channel %q", ErrDeliveryFailed, msg.Channel)
	}
	to, err := mail.ParseAddress(msg.To)
	if err != nil {
		return fmt.Errorf("%w: invalid recipient: %v", ErrDeliveryFailed, err)
	}
	if err := s.send(ctx, to.Address, msg); err != nil {
		return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}
	return nil
}

func (s *SMTPSender) send(ctx context.Context, to string, msg Message) error {
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	host, _, err := net.SplitHostPort(s.Addr)
	if err != nil {
		return err
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", s.Addr)
	if err != nil {
		return err
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	c, err := smtp.NewClient(conn, host)
	if err != nil {
		_ = conn.Close()
		return err
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		cfg := s.TLSConfig
		if cfg == nil {
			cfg = &tls.Config{ServerName: host, MinVersion: tls.VersionTLS12}
		}
		if err := c.StartTLS(cfg); err != nil {
			return fmt.Errorf("starttls: %w", err)
		}
	}
	if s.Username != "" {
		if err := c.Auth(smtp.PlainAuth("", s.Username, s.Password, host)); err != nil {
			return fmt.Errorf("auth: %w", err)
		}
	}

	if err := c.Mail(s.From); err != nil {
		return err
	}
	if err := c.Rcpt(to); err != nil {
		return err
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(renderEmail(s.From, to, msg)); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}

func renderEmail(from, to string, msg Message) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", "Your verification code"))
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().UTC().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	fmt.Fprintf(&b, "Your verification code is %s.\r\n\r\n", msg.Code)
	fmt.Fprintf(&b, "It expires at %s UTC. If you did not try to sign in, you can ignore this email.\r\n",
		msg.ExpiresAt.UTC().Format("15:04"))
	return b.Bytes()
}
