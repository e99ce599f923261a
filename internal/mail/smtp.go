package mail

import (
	"context"
	"crypto/tls"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strings"

	"github.com/collabspace/collab-api/internal/config"
)

// sendFunc matches smtp.SendMail and sendMailTLS
type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPMailer delivers messages through an SMTP relay
type SMTPMailer struct {
	cfg  config.SMTPConfig
	from string
	name string
	send sendFunc
}

// NewSMTPMailer creates an SMTPMailer from the notifications config
func NewSMTPMailer(cfg *config.NotificationsConfig) *SMTPMailer {
	m := &SMTPMailer{cfg: cfg.SMTP, from: cfg.From, name: cfg.FromName}
	if cfg.SMTP.UseTLS {
		host := cfg.SMTP.Host
		m.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
			return sendMailTLS(addr, host, a, from, to, msg)
		}
	} else {
		m.send = smtp.SendMail
	}
	return m
}

func (m *SMTPMailer) Provider() string { return "smtp" }

// Send delivers msg. net/smtp has no context support, so ctx is only checked before dialling.
func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)
	var a smtp.Auth
	if m.cfg.Username != "" {
		a = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}
	return m.send(addr, a, m.from, []string{msg.To}, m.render(msg))
}

// headerBreaks folds any line break in a header value into a space
var headerBreaks = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ")

func (m *SMTPMailer) render(msg Message) []byte {
	from := m.from
	if m.name != "" {
		from = fmt.Sprintf("%q <%s>", m.name, m.from)
	}
	subject := mime.QEncoding.Encode("utf-8", headerBreaks.Replace(msg.Subject))
	headers := fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n",
		from, headerBreaks.Replace(msg.To), subject,
	)
	return []byte(headers + msg.Body + "\r\n")
}

// sendMailTLS connects via implicit TLS (port 465 / SMTPS). If the TLS dial fails it
// retries in plain TCP and upgrades with STARTTLS (port 587); a server without STARTTLS
// is an error, so UseTLS=true never sends in cleartext.
func sendMailTLS(addr, host string, auth smtp.Auth, from string, to []string, msg []byte) error {
	tlsConfig := &tls.Config{
		ServerName: host,
		MinVersion: tls.VersionTLS12,
	}

	conn, err := tls.Dial("tcp", addr, tlsConfig)
	if err != nil {
		return sendMailStartTLS(addr, tlsConfig, auth, from, to, msg)
	}
	defer conn.Close()

	hostname, _, _ := net.SplitHostPort(addr)
	c, err := smtp.NewClient(conn, hostname)
	if err != nil {
		return fmt.Errorf("smtp new client: %w", err)
	}
	defer c.Quit() //nolint:errcheck
	return deliver(c, auth, from, to, msg)
}

func sendMailStartTLS(addr string, tlsConfig *tls.Config, auth smtp.Auth, from string, to []string, msg []byte) error {
	c, err := smtp.Dial(addr)
	if err != nil {
		return fmt.Errorf("smtp dial: %w", err)
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); !ok {
		return fmt.Errorf("smtp server %s does not offer STARTTLS", addr)
	}
	if err := c.StartTLS(tlsConfig); err != nil {
		return fmt.Errorf("smtp STARTTLS: %w", err)
	}
	if err := deliver(c, auth, from, to, msg); err != nil {
		return err
	}
	return c.Quit()
}

func deliver(c *smtp.Client, auth smtp.Auth, from string, to []string, msg []byte) error {
	if auth != nil {
		if err := c.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}
	if err := c.Mail(from); err != nil {
		return fmt.Errorf("smtp MAIL FROM: %w", err)
	}
	for _, rcpt := range to {
		if err := c.Rcpt(rcpt); err != nil {
			return fmt.Errorf("smtp RCPT TO %s: %w", rcpt, err)
		}
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtp DATA: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	return w.Close()
}
