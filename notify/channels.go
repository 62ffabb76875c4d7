// Package notify delivers alerts for threats and incidents through the
// tenant's configured channels and records every delivery attempt.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/smtp"
	"strings"

	"blackwolf/core"

	"go.uber.org/zap"
)

// Message is one alert rendered for delivery. Payload carries the raw JSON
// body used by webhook channels; the text channels use Subject and Body.
type Message struct {
	Subject string
	Body    string
	Payload []byte
}

// Channel delivers a message to one destination. Implementations must be
// safe for concurrent use.
type Channel interface {
	Send(ctx context.Context, destination string, msg *Message) error
}

// SMTPConfig carries the mail relay settings for the email channel.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// EmailChannel sends plain-text mail through a configured SMTP relay. With
// no relay configured the channel degrades to a logged no-op so deployments
// without mail keep their email configs inert instead of erroring.
type EmailChannel struct {
	cfg    SMTPConfig
	logger *zap.SugaredLogger
}

// NewEmailChannel creates the email channel.
func NewEmailChannel(cfg SMTPConfig, logger *zap.SugaredLogger) *EmailChannel {
	return &EmailChannel{cfg: cfg, logger: logger}
}

// Send delivers the message to one recipient address.
func (c *EmailChannel) Send(_ context.Context, destination string, msg *Message) error {
	if c.cfg.Host == "" {
		c.logger.Debugw("SMTP not configured, skipping email alert", "destination", destination)
		return nil
	}

	var auth smtp.Auth
	if c.cfg.Username != "" {
		auth = smtp.PlainAuth("", c.cfg.Username, c.cfg.Password, c.cfg.Host)
	}

	body := fmt.Sprintf("Subject: %s\r\nFrom: %s\r\nTo: %s\r\n\r\n%s\r\n",
		msg.Subject, c.cfg.From, destination, msg.Body)
	addr := fmt.Sprintf("%s:%d", c.cfg.Host, c.cfg.Port)
	if err := smtp.SendMail(addr, auth, c.cfg.From, []string{destination}, []byte(body)); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

// SlackChannel posts the message text to a Slack incoming webhook.
type SlackChannel struct {
	client *http.Client
	logger *zap.SugaredLogger
}

// NewSlackChannel creates the Slack channel.
func NewSlackChannel(client *http.Client, logger *zap.SugaredLogger) *SlackChannel {
	return &SlackChannel{client: client, logger: logger}
}

// Send posts a {"text": ...} payload to the destination webhook URL.
func (c *SlackChannel) Send(ctx context.Context, destination string, msg *Message) error {
	text := msg.Subject
	if msg.Body != "" {
		text = msg.Subject + "\n" + msg.Body
	}
	payload, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return fmt.Errorf("failed to marshal slack payload: %w", err)
	}
	return postJSON(ctx, c.client, destination, payload)
}

// WebhookChannel posts the raw JSON payload to an arbitrary HTTP endpoint.
type WebhookChannel struct {
	client *http.Client
	logger *zap.SugaredLogger
}

// NewWebhookChannel creates the generic webhook channel.
func NewWebhookChannel(client *http.Client, logger *zap.SugaredLogger) *WebhookChannel {
	return &WebhookChannel{client: client, logger: logger}
}

// Send posts the message payload as-is.
func (c *WebhookChannel) Send(ctx context.Context, destination string, msg *Message) error {
	return postJSON(ctx, c.client, destination, msg.Payload)
}

// noopChannel backs alert types this build does not know; unknown configs
// stay inert rather than failing dispatch.
type noopChannel struct{}

func (noopChannel) Send(context.Context, string, *Message) error { return nil }

func postJSON(ctx context.Context, client *http.Client, url string, body []byte) error {
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return fmt.Errorf("%w: destination %q is not an HTTP URL", core.ErrInvalidRequest, url)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrExternalDependency, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: destination returned status %d", core.ErrExternalDependency, resp.StatusCode)
	}
	return nil
}

// NewHTTPClient builds the bounded client shared by the outbound channels.
func NewHTTPClient() *http.Client {
	return &http.Client{
		Timeout: core.HTTPClientTimeout,
		Transport: &http.Transport{
			MaxIdleConns:    core.HTTPClientMaxIdleConns,
			IdleConnTimeout: core.HTTPClientIdleConnTimeout,
		},
	}
}
