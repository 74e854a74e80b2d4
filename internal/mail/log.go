package mail

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const previewLen = 100

// LogSender records messages instead of delivering them.
type LogSender struct {
	from   string
	logger *zap.Logger

	mu   sync.Mutex
	sent []Message
}

// Message is a captured email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// NewLogSender returns a sender for development and tests.
func NewLogSender(from string, logger *zap.Logger) *LogSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSender{from: from, logger: logger}
}

func (s *LogSender) Send(_ context.Context, to, subject, body string) (*DeliveryInfo, error) {
	preview := body
	if len(preview) > previewLen {
		preview = preview[:previewLen] + "..."
	}
	s.logger.Info("email (log transport)",
		zap.String("from", s.from),
		zap.String("to", to),
		zap.String("subject", subject),
		zap.String("preview", preview),
	)

	s.mu.Lock()
	s.sent = append(s.sent, Message{To: to, Subject: subject, Body: body})
	s.mu.Unlock()

	return &DeliveryInfo{
		Transport: "log",
		MessageID: uuid.NewString(),
		Accepted:  []string{to},
		SentAt:    time.Now().UTC(),
	}, nil
}

// Sent returns the captured messages.
func (s *LogSender) Sent() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.sent...)
}
