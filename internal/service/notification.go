package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/liquidweavergit/rmp-admin-site-sub000/internal/config"
	"github.com/liquidweavergit/rmp-admin-site-sub000/internal/observability"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"gopkg.in/gomail.v2"
)

// EmailSender and SMSSender are the single-channel halves of a NotificationGateway.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

type SMSSender interface {
	SendSMS(ctx context.Context, phone, code string) error
}

// LogNotificationGateway writes messages to the log instead of sending them.
// It prints codes, so config only allows it in local environments.
type LogNotificationGateway struct {
	logger *slog.Logger
}

func NewLogNotificationGateway(logger *slog.Logger) *LogNotificationGateway {
	return &LogNotificationGateway{logger: logger}
}

func (g *LogNotificationGateway) SendSMS(ctx context.Context, phone, code string) error {
	g.logger.InfoContext(ctx, "sms notification", "to", phone, "code", code)
	return nil
}

func (g *LogNotificationGateway) SendEmail(ctx context.Context, to, subject, body string) error {
	g.logger.InfoContext(ctx, "email notification", "to", to, "subject", subject, "body", body)
	return nil
}

// SMTPEmailSender delivers mail through one SMTP relay.
type SMTPEmailSender struct {
	dialer *gomail.Dialer
	from   string
}

func NewSMTPEmailSender(host string, port int, username, password, from string) *SMTPEmailSender {
	return &SMTPEmailSender{dialer: gomail.NewDialer(host, port, username, password), from: from}
}

// SendEmail gives up waiting when ctx ends. gomail has no context support, so
// the dial itself finishes in the background.
func (s *SMTPEmailSender) SendEmail(ctx context.Context, to, subject, body string) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", s.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)

	done := make(chan error, 1)
	go func() { done <- s.dialer.DialAndSend(msg) }()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("smtp send: %w", err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("smtp send: %w", ctx.Err())
	}
}

// WebhookSMSSender posts SMS requests as JSON to a provider-facing relay.
type WebhookSMSSender struct {
	url      string
	senderID string
	client   *http.Client
}

type smsWebhookRequest struct {
	To      string `json:"to"`
	From    string `json:"from"`
	Message string `json:"message"`
}

func NewWebhookSMSSender(url, senderID string, timeout time.Duration) *WebhookSMSSender {
	return &WebhookSMSSender{
		url:      url,
		senderID: senderID,
		client:   &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport), Timeout: timeout},
	}
}

func (s *WebhookSMSSender) SendSMS(ctx context.Context, phone, code string) error {
	payload, err := json.Marshal(smsWebhookRequest{
		To:      phone,
		From:    s.senderID,
		Message: fmt.Sprintf("Your %s verification code is %s", s.senderID, code),
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("sms webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("sms webhook status: %d", resp.StatusCode)
	}
	return nil
}

// CompositeNotificationGateway routes each channel to its own sender and
// records delivery metrics.
type CompositeNotificationGateway struct {
	email       EmailSender
	emailDriver string
	sms         SMSSender
	smsDriver   string
}

func NewCompositeNotificationGateway(email EmailSender, emailDriver string, sms SMSSender, smsDriver string) *CompositeNotificationGateway {
	return &CompositeNotificationGateway{email: email, emailDriver: emailDriver, sms: sms, smsDriver: smsDriver}
}

func (g *CompositeNotificationGateway) SendSMS(ctx context.Context, phone, code string) error {
	err := g.sms.SendSMS(ctx, phone, code)
	observability.RecordNotificationDelivery(ctx, "sms", g.smsDriver, deliveryOutcome(err))
	return err
}

func (g *CompositeNotificationGateway) SendEmail(ctx context.Context, to, subject, body string) error {
	err := g.email.SendEmail(ctx, to, subject, body)
	observability.RecordNotificationDelivery(ctx, "email", g.emailDriver, deliveryOutcome(err))
	return err
}

func deliveryOutcome(err error) string {
	if err != nil {
		return "error"
	}
	return "sent"
}

// NewNotificationGateway builds the gateway selected by NOTIFICATION_DRIVER
// and SMS_DRIVER.
func NewNotificationGateway(cfg *config.Config, logger *slog.Logger) (NotificationGateway, error) {
	logGateway := NewLogNotificationGateway(logger)

	var email EmailSender
	switch cfg.NotificationDriver {
	case "", "log":
		email = logGateway
	case "smtp":
		email = NewSMTPEmailSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPFrom)
	default:
		return nil, fmt.Errorf("unknown notification driver %q", cfg.NotificationDriver)
	}

	var sms SMSSender
	switch cfg.SMSDriver {
	case "", "log":
		sms = logGateway
	case "webhook":
		sms = NewWebhookSMSSender(cfg.SMSWebhookURL, cfg.SMSSenderID, cfg.AuthDeliveryTimeout)
	default:
		return nil, fmt.Errorf("unknown sms driver %q", cfg.SMSDriver)
	}

	return NewCompositeNotificationGateway(email, cfg.NotificationDriver, sms, cfg.SMSDriver), nil
}
