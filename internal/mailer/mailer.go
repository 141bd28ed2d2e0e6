package mailer

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/wneessen/go-mail"

	"toot2mail/internal/model"
)

// Bounded in-run delivery retry; a post failing all attempts is retried on
// the next cycle instead.
const (
	deliveryRetries = 2
	deliveryBackoff = 2 * time.Second
)

// Config holds the mail settings.
type Config struct {
	From             string
	Recipient        string
	Host             string
	Port             int
	MaxSubjectLength int
	Timeout          time.Duration
}

// Mailer composes and delivers notification emails.
type Mailer struct {
	cfg    Config
	client *mail.Client
	fqdn   string
}

// New creates a Mailer connected to the configured SMTP relay.
func New(cfg Config) (*Mailer, error) {
	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if cfg.Timeout > 0 {
		opts = append(opts, mail.WithTimeout(cfg.Timeout))
	}
	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("smtp client: %w", err)
	}

	fqdn, err := os.Hostname()
	if err != nil || fqdn == "" {
		fqdn = "localhost"
	}

	return &Mailer{cfg: cfg, client: client, fqdn: fqdn}, nil
}

// Notify composes and delivers the notification for one post. Returns an
// error only after all delivery attempts failed; the caller must not mark
// the post seen in that case.
func (m *Mailer) Notify(ctx context.Context, post *model.Post) error {
	msg, err := m.Compose(post)
	if err != nil {
		return fmt.Errorf("compose: %w", err)
	}
	return m.Deliver(ctx, msg)
}

// Deliver sends a message with bounded retry.
func (m *Mailer) Deliver(ctx context.Context, msg *mail.Msg) error {
	backoff := retry.WithMaxRetries(deliveryRetries, retry.NewConstant(deliveryBackoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := m.client.DialAndSendWithContext(ctx, msg); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("deliver: %w", err)
	}
	return nil
}
