// Package mail delivers the invitation email. A Mailer moves one composed Message through a
// provider (log, smtp or sendgrid); InvitationMailer composes the invitation text and the
// accept link and records delivery metrics.
package mail

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/collabspace/collab-api/internal/config"
	"github.com/collabspace/collab-api/internal/telemetry"
)

// Message is a composed plain-text email
type Message struct {
	To      string
	Subject string
	Body    string
}

// Mailer sends composed messages through one provider
type Mailer interface {
	Send(ctx context.Context, msg Message) error
	// Provider names the backend for logs and metrics
	Provider() string
}

// Invitation carries what the invitation email needs to say
type Invitation struct {
	To               string
	Token            string
	OrganizationName string
	InviterName      string
	Role             string
	ExpiresAt        time.Time
}

// New returns the Mailer selected by cfg.Provider
func New(cfg *config.NotificationsConfig) (Mailer, error) {
	switch cfg.Provider {
	case "", "log":
		return NewLogMailer(), nil
	case "smtp":
		return NewSMTPMailer(cfg), nil
	case "sendgrid":
		return NewSendGridMailer(cfg), nil
	default:
		return nil, fmt.Errorf("unknown mail provider %q", cfg.Provider)
	}
}

// InvitationMailer composes invitation emails and hands them to a Mailer
type InvitationMailer struct {
	mailer        Mailer
	acceptURLBase string
}

// NewInvitationMailer creates an InvitationMailer. acceptURLBase is the front-end URL the
// token is appended to, for example https://app.example.com/invitations.
func NewInvitationMailer(m Mailer, acceptURLBase string) *InvitationMailer {
	return &InvitationMailer{mailer: m, acceptURLBase: acceptURLBase}
}

// SendInvitation delivers the invitation email
func (m *InvitationMailer) SendInvitation(ctx context.Context, inv Invitation) error {
	msg := ComposeInvitation(inv, AcceptLink(m.acceptURLBase, inv.Token))
	err := m.mailer.Send(ctx, msg)
	if err != nil {
		telemetry.InvitationEmailsTotal.WithLabelValues(m.mailer.Provider(), "failed").Inc()
		return fmt.Errorf("failed to send invitation email via %s: %w", m.mailer.Provider(), err)
	}
	telemetry.InvitationEmailsTotal.WithLabelValues(m.mailer.Provider(), "sent").Inc()
	return nil
}

// AcceptLink joins the accept URL base and the token
func AcceptLink(base, token string) string {
	return strings.TrimRight(base, "/") + "/" + url.PathEscape(token)
}

// ComposeInvitation renders the subject and plain-text body of an invitation
func ComposeInvitation(inv Invitation, link string) Message {
	inviter := inv.InviterName
	if inviter == "" {
		inviter = "A member"
	}
	subject := fmt.Sprintf("You're invited to join %s", inv.OrganizationName)
	body := strings.Join([]string{
		"Hello,",
		"",
		fmt.Sprintf("%s has invited you to join %s as %s.", inviter, inv.OrganizationName, inv.Role),
		"",
		"Accept the invitation here:",
		"  " + link,
		"",
		fmt.Sprintf("The link expires on %s and can be used once.", inv.ExpiresAt.UTC().Format(time.RFC1123)),
		fmt.Sprintf("Sign in or register with %s to accept it.", inv.To),
		"",
		"If you were not expecting this email you can ignore it.",
	}, "\r\n")
	return Message{To: inv.To, Subject: subject, Body: body}
}

// LogMailer writes messages to the structured log instead of sending them.
// It is meant for local development, where the accept link is read from the log.
type LogMailer struct{}

// NewLogMailer creates a LogMailer
func NewLogMailer() *LogMailer { return &LogMailer{} }

func (*LogMailer) Provider() string { return "log" }

func (*LogMailer) Send(ctx context.Context, msg Message) error {
	slog.InfoContext(ctx, "email not sent (log provider)", "to", msg.To, "subject", msg.Subject, "body", msg.Body)
	return nil
}
