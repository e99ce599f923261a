package mail

import (
	"context"
	"fmt"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/collabspace/collab-api/internal/config"
)

// sendGridClient is the subset of *sendgrid.Client used here
type sendGridClient interface {
	SendWithContext(ctx context.Context, email *sgmail.SGMailV3) (*rest.Response, error)
}

// SendGridMailer delivers messages through the SendGrid v3 mail API
type SendGridMailer struct {
	client sendGridClient
	from   *sgmail.Email
}

// NewSendGridMailer creates a SendGridMailer from the notifications config
func NewSendGridMailer(cfg *config.NotificationsConfig) *SendGridMailer {
	return &SendGridMailer{
		client: sendgrid.NewSendClient(cfg.SendGrid.APIKey),
		from:   sgmail.NewEmail(cfg.FromName, cfg.From),
	}
}

func (m *SendGridMailer) Provider() string { return "sendgrid" }

func (m *SendGridMailer) Send(ctx context.Context, msg Message) error {
	to := sgmail.NewEmail("", msg.To)
	email := sgmail.NewSingleEmail(m.from, msg.Subject, to, msg.Body, "")
	resp, err := m.client.SendWithContext(ctx, email)
	if err != nil {
		return fmt.Errorf("sendgrid request: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("sendgrid returned status %d: %s", resp.StatusCode, resp.Body)
	}
	return nil
}
