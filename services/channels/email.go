package channels

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"net/textproto"
	"strings"

	"tripnotify/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
	gomail "gopkg.in/mail.v2"
)

// Dialer is the part of *mail.Dialer the adapter needs.
type Dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPConfig configures the email adapter.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// EmailAdapter sends HTML mail over SMTP.
type EmailAdapter struct {
	from   string
	dialer Dialer
	logger *zap.Logger
}

func NewEmailAdapter(cfg SMTPConfig, logger *zap.Logger) *EmailAdapter {
	return NewEmailAdapterWithDialer(cfg.From, gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password), logger)
}

func NewEmailAdapterWithDialer(from string, dialer Dialer, logger *zap.Logger) *EmailAdapter {
	return &EmailAdapter{from: from, dialer: dialer, logger: logger}
}

func (a *EmailAdapter) Channel() models.Channel { return models.ChannelEmail }

func (a *EmailAdapter) Send(ctx context.Context, n *models.Notification, title, content string, recipient models.Recipient) (Receipt, error) {
	to := strings.TrimSpace(recipient.Email)
	if _, err := mail.ParseAddress(to); to == "" || err != nil {
		return Receipt{}, permanent(models.ChannelEmail, "invalid email address", err)
	}

	messageID := uuid.NewString()
	message := gomail.NewMessage()
	message.SetHeader("From", a.from)
	message.SetHeader("To", to)
	message.SetHeader("Subject", title)
	message.SetHeader("Message-ID", fmt.Sprintf("<%s@tripnotify>", messageID))
	message.SetBody("text/html", content)

	done := make(chan error, 1)
	go func() { done <- a.dialer.DialAndSend(message) }()

	select {
	case <-ctx.Done():
		return Receipt{}, transient(models.ChannelEmail, "send timed out", ctx.Err())
	case err := <-done:
		if err != nil {
			return Receipt{}, classifySMTPError(err)
		}
	}
	a.logger.Debug("Email sent", zap.String("notificationId", n.ID), zap.String("messageId", messageID))
	return Receipt{ExternalID: messageID, Provider: "smtp"}, nil
}

func classifySMTPError(err error) *DeliveryError {
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) {
		if tpErr.Code >= 500 {
			return permanent(models.ChannelEmail, fmt.Sprintf("smtp rejected with %d", tpErr.Code), err)
		}
		return transient(models.ChannelEmail, fmt.Sprintf("smtp deferred with %d", tpErr.Code), err)
	}
	return transient(models.ChannelEmail, "smtp connection failed", err)
}
