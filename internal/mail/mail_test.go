package mail

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-assist/internal/config"
)

func TestNewSender_Selection(t *testing.T) {
	logger := zap.NewNop()

	assert.IsType(t, &LogSender{}, NewSender(config.MailConfig{From: "a@b.c"}, logger))
	assert.IsType(t, &SendGridSender{}, NewSender(config.MailConfig{SendGridAPIKey: "key"}, logger))
	assert.IsType(t, &SMTPSender{}, NewSender(config.MailConfig{
		SMTPHost: "smtp.example.com", SMTPUser: "u", SMTPPass: "p", SendGridAPIKey: "key",
	}, logger))
	assert.IsType(t, &LogSender{}, NewSender(config.MailConfig{SMTPHost: "smtp.example.com"}, logger),
		"smtp without credentials is not selected")
}

func TestLogSender_Captures(t *testing.T) {
	sender := NewLogSender("noreply@example.com", nil)
	info, err := sender.Send(context.Background(), "mod@example.com", "Subject", strings.Repeat("x", 300))
	require.NoError(t, err)

	assert.Equal(t, "log", info.Transport)
	assert.Equal(t, []string{"mod@example.com"}, info.Accepted)
	require.Len(t, sender.Sent(), 1)
	assert.Equal(t, "Subject", sender.Sent()[0].Subject)
}

func TestSMTPSender_Send(t *testing.T) {
	sender := NewSMTPSender(config.MailConfig{
		From: "noreply@example.com", SMTPHost: "smtp.example.com", SMTPUser: "u", SMTPPass: "p",
	})

	var gotAddr string
	var gotMsg []byte
	sender.sendMail = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr = addr
		gotMsg = msg
		assert.Equal(t, "noreply@example.com", from)
		assert.Equal(t, []string{"mod@example.com"}, to)
		return nil
	}

	info, err := sender.Send(context.Background(), "mod@example.com", "Ticket Assigned", "line one\nline two")
	require.NoError(t, err)
	assert.Equal(t, "smtp", info.Transport)
	assert.Equal(t, "smtp.example.com:587", gotAddr)
	assert.Contains(t, string(gotMsg), "Subject: Ticket Assigned\r\n")
	assert.Contains(t, string(gotMsg), "line one\r\nline two")

	sender.sendMail = func(string, smtp.Auth, string, []string, []byte) error {
		return errors.New("connection refused")
	}
	_, err = sender.Send(context.Background(), "mod@example.com", "s", "b")
	assert.ErrorContains(t, err, "connection refused")
}
