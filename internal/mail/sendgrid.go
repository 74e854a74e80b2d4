package mail

import (
	"context"
	"fmt"
	"time"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/spec-kit/ticket-assist/internal/config"
)

// SendGridSender delivers through the SendGrid v3 API.
type SendGridSender struct {
	client *sendgrid.Client
	from   *sgmail.Email
}

// NewSendGridSender builds a SendGrid transport.
func NewSendGridSender(cfg config.MailConfig) *SendGridSender {
	return &SendGridSender{
		client: sendgrid.NewSendClient(cfg.SendGridAPIKey),
		from:   sgmail.NewEmail("", cfg.From),
	}
}

func (s *SendGridSender) Send(ctx context.Context, to, subject, body string) (*DeliveryInfo, error) {
	message := sgmail.NewSingleEmail(s.from, subject, sgmail.NewEmail("", to), body, "")
	resp, err := s.client.SendWithContext(ctx, message)
	if err != nil {
		return nil, fmt.Errorf("sendgrid send: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("sendgrid send: status %d: %s", resp.StatusCode, resp.Body)
	}
	var messageID string
	if ids := resp.Headers["X-Message-Id"]; len(ids) > 0 {
		messageID = ids[0]
	}
	return &DeliveryInfo{
		Transport: "sendgrid",
		MessageID: messageID,
		Accepted:  []string{to},
		SentAt:    time.Now().UTC(),
	}, nil
}
