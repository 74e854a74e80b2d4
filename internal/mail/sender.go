package mail

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-assist/internal/config"
)

// DeliveryInfo describes an accepted message.
type DeliveryInfo struct {
	Transport string
	MessageID string
	Accepted  []string
	SentAt    time.Time
}

// Sender delivers plain-text email.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) (*DeliveryInfo, error)
}

// NewSender selects SMTP when a host and credentials are configured, then
// SendGrid, and falls back to logging messages.
func NewSender(cfg config.MailConfig, logger *zap.Logger) Sender {
	switch {
	case cfg.SMTPHost != "" && cfg.SMTPUser != "" && cfg.SMTPPass != "":
		logger.Info("email transport: smtp", zap.String("host", cfg.SMTPHost))
		return NewSMTPSender(cfg)
	case cfg.SendGridAPIKey != "":
		logger.Info("email transport: sendgrid")
		return NewSendGridSender(cfg)
	default:
		logger.Warn("email transport: log only; configure SMTP_HOST/SMTP_USER/SMTP_PASS or SENDGRID_API_KEY to deliver mail")
		return NewLogSender(cfg.From, logger)
	}
}
