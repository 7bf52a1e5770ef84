package notification

import (
	"context"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"

	"github.com/insurai/compliance-engine/internal/config"
)

// Message is a rendered plain-text email ready for delivery
type Message struct {
	ToName    string
	ToAddress string
	Subject   string
	Body      string
}

// Mailer delivers rendered emails
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// NewMailer builds the mailer selected by the email provider setting
func NewMailer(cfg config.EmailConfig, logger *zap.Logger) (Mailer, error) {
	switch cfg.Provider {
	case "log":
		return NewLogMailer(logger), nil
	case "sendgrid":
		return NewSendGridMailer(cfg, logger), nil
	default:
		return nil, fmt.Errorf("unsupported email provider: %s", cfg.Provider)
	}
}

// LogMailer writes emails to the log instead of sending them
type LogMailer struct {
	logger *zap.Logger
}

// NewLogMailer creates a mailer for local development
func NewLogMailer(logger *zap.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

// Send logs the email
func (m *LogMailer) Send(_ context.Context, msg Message) error {
	m.logger.Info("Email notification",
		zap.String("to", msg.ToAddress),
		zap.String("subject", msg.Subject),
		zap.String("body", msg.Body),
	)
	return nil
}

// SendGridMailer delivers email through the SendGrid v3 API
type SendGridMailer struct {
	client *sendgrid.Client
	from   *mail.Email
	logger *zap.Logger
}

// NewSendGridMailer creates a SendGrid-backed mailer
func NewSendGridMailer(cfg config.EmailConfig, logger *zap.Logger) *SendGridMailer {
	return &SendGridMailer{
		client: sendgrid.NewSendClient(cfg.SendGridAPIKey),
		from:   mail.NewEmail(cfg.FromName, cfg.FromAddress),
		logger: logger,
	}
}

// Send delivers the email as a plain-text SendGrid message
func (m *SendGridMailer) Send(ctx context.Context, msg Message) error {
	to := mail.NewEmail(msg.ToName, msg.ToAddress)
	message := mail.NewSingleEmail(m.from, msg.Subject, to, msg.Body, "")

	response, err := m.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("failed to send email via SendGrid: %w", err)
	}
	if response.StatusCode >= 300 {
		return fmt.Errorf("sendgrid rejected email: status %d: %s", response.StatusCode, response.Body)
	}

	m.logger.Debug("Email sent via SendGrid",
		zap.String("to", msg.ToAddress),
		zap.Int("status", response.StatusCode),
	)
	return nil
}
