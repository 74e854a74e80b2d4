package mail

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/ticket-assist/internal/config"
)

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPSender delivers through an SMTP relay with PLAIN auth.
type SMTPSender struct {
	host     string
	addr     string
	from     string
	auth     smtp.Auth
	sendMail sendMailFunc
}

// NewSMTPSender builds an SMTP transport.
func NewSMTPSender(cfg config.MailConfig) *SMTPSender {
	port := cfg.SMTPPort
	if port == "" {
		port = "587"
	}
	return &SMTPSender{
		host:     cfg.SMTPHost,
		addr:     net.JoinHostPort(cfg.SMTPHost, port),
		from:     cfg.From,
		auth:     smtp.PlainAuth("", cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPHost),
		sendMail: smtp.SendMail,
	}
}

func (s *SMTPSender) Send(ctx context.Context, to, subject, body string) (*DeliveryInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	messageID := fmt.Sprintf("<%s@%s>", uuid.NewString(), s.host)
	msg := buildMessage(s.from, to, subject, body, messageID)

	done := make(chan error, 1)
	go func() {
		done <- s.sendMail(s.addr, s.auth, s.from, []string{to}, msg)
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case err := <-done:
		if err != nil {
			return nil, fmt.Errorf("smtp send: %w", err)
		}
	}
	return &DeliveryInfo{
		Transport: "smtp",
		MessageID: messageID,
		Accepted:  []string{to},
		SentAt:    time.Now().UTC(),
	}, nil
}

func buildMessage(from, to, subject, body, messageID string) []byte {
	var b strings.Builder
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	fmt.Fprintf(&b, "Message-ID: %s\r\n", messageID)
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n\r\n", subject)
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	return []byte(b.String())
}
