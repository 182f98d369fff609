// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeSnip Contributors

// Package mail delivers account emails over SMTP.
package mail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
	gomail "github.com/wneessen/go-mail"

	"github.com/codesnip/codesnip/internal/auth"
)

// Defaults applied by NewSMTPNotifier.
const (
	DefaultPort       = 587
	DefaultTimeout    = 10 * time.Second
	DefaultMaxRetries = 3
	DefaultRetryBase  = 500 * time.Millisecond
)

// TLS policies accepted in Config.TLS.
const (
	TLSMandatory     = "mandatory"
	TLSOpportunistic = "opportunistic"
	TLSNone          = "none"
)

// Config holds SMTP settings.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	// BaseURL is the public web origin used to build links in emails.
	BaseURL string
	TLS     string
	Timeout time.Duration
	// MaxRetries bounds redelivery of transient failures.
	MaxRetries uint64
	RetryBase  time.Duration
	// VerificationTTL and ResetTTL are quoted in the email text. They should
	// match the token codec configuration.
	VerificationTTL time.Duration
	ResetTTL        time.Duration
}

// sender is satisfied by *gomail.Client.
type sender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*gomail.Msg) error
}

// SMTPNotifier implements auth.Notifier over SMTP.
type SMTPNotifier struct {
	client    sender
	from      string
	links     linkBuilder
	verifyTTL time.Duration
	resetTTL  time.Duration
	backoff   func() retry.Backoff
	logger    *slog.Logger
}

var _ auth.Notifier = (*SMTPNotifier)(nil)

// NewSMTPNotifier validates cfg and creates an SMTPNotifier.
func NewSMTPNotifier(cfg Config, logger *slog.Logger) (*SMTPNotifier, error) {
	cfg = withDefaults(cfg)
	links, err := newLinkBuilder(cfg.BaseURL)
	if err != nil {
		return nil, err
	}
	if cfg.Host == "" {
		return nil, oops.Code("MAIL_CONFIG_INVALID").With("field", "host").Errorf("smtp host is required")
	}
	if cfg.From == "" {
		return nil, oops.Code("MAIL_CONFIG_INVALID").With("field", "from").Errorf("sender address is required")
	}

	policy, err := tlsPolicy(cfg.TLS)
	if err != nil {
		return nil, err
	}
	opts := []gomail.Option{
		gomail.WithPort(cfg.Port),
		gomail.WithTLSPolicy(policy),
		gomail.WithTimeout(cfg.Timeout),
	}
	if cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(cfg.Username),
			gomail.WithPassword(cfg.Password),
		)
	}
	client, err := gomail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, oops.Code("MAIL_CONFIG_INVALID").With("host", cfg.Host).Wrap(err)
	}

	return newNotifier(client, cfg, links, logger), nil
}

func newNotifier(client sender, cfg Config, links linkBuilder, logger *slog.Logger) *SMTPNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	maxRetries, base := cfg.MaxRetries, cfg.RetryBase
	return &SMTPNotifier{
		client:    client,
		from:      cfg.From,
		links:     links,
		verifyTTL: cfg.VerificationTTL,
		resetTTL:  cfg.ResetTTL,
		backoff: func() retry.Backoff {
			return retry.WithMaxRetries(maxRetries, retry.NewExponential(base))
		},
		logger: logger,
	}
}

func withDefaults(cfg Config) Config {
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.TLS == "" {
		cfg.TLS = TLSMandatory
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = DefaultRetryBase
	}
	if cfg.VerificationTTL <= 0 {
		cfg.VerificationTTL = auth.DefaultVerificationTokenTTL
	}
	if cfg.ResetTTL <= 0 {
		cfg.ResetTTL = auth.DefaultResetTokenTTL
	}
	return cfg
}

func tlsPolicy(name string) (gomail.TLSPolicy, error) {
	switch name {
	case TLSMandatory:
		return gomail.TLSMandatory, nil
	case TLSOpportunistic:
		return gomail.TLSOpportunistic, nil
	case TLSNone:
		return gomail.NoTLS, nil
	default:
		return gomail.NoTLS, oops.Code("MAIL_CONFIG_INVALID").With("field", "tls").With("value", name).
			Errorf("tls must be one of %s, %s, %s", TLSMandatory, TLSOpportunistic, TLSNone)
	}
}

// SendVerificationEmail implements auth.Notifier.
func (n *SMTPNotifier) SendVerificationEmail(ctx context.Context, identity *auth.Identity, token string) error {
	body := fmt.Sprintf(verificationBody, identity.Username, n.links.verify(token), humanDuration(n.verifyTTL))
	return n.send(ctx, auth.EmailVerification, identity, "Verify your CodeSnip email address", body)
}

// SendPasswordResetEmail implements auth.Notifier.
func (n *SMTPNotifier) SendPasswordResetEmail(ctx context.Context, identity *auth.Identity, token string) error {
	body := fmt.Sprintf(resetBody, identity.Username, n.links.reset(token), humanDuration(n.resetTTL))
	return n.send(ctx, auth.EmailPasswordReset, identity, "Reset your CodeSnip password", body)
}

// SendWelcomeEmail implements auth.Notifier.
func (n *SMTPNotifier) SendWelcomeEmail(ctx context.Context, identity *auth.Identity) error {
	body := fmt.Sprintf(welcomeBody, identity.Username, n.links.base)
	return n.send(ctx, auth.EmailWelcome, identity, "Welcome to CodeSnip", body)
}

func (n *SMTPNotifier) send(ctx context.Context, kind string, identity *auth.Identity, subject, body string) error {
	msg, err := n.compose(identity.Email, subject, body)
	if err != nil {
		return oops.Code("MAIL_COMPOSE_FAILED").With("email_kind", kind).Wrap(err)
	}

	attempt := 0
	err = retry.Do(ctx, n.backoff(), func(ctx context.Context) error {
		attempt++
		sendErr := n.client.DialAndSendWithContext(ctx, msg)
		if sendErr == nil || permanent(sendErr) {
			return sendErr
		}
		n.logger.DebugContext(ctx, "smtp delivery attempt failed",
			"email_kind", kind, "attempt", attempt, "error", sendErr)
		return retry.RetryableError(sendErr)
	})
	if err != nil {
		return oops.Code("MAIL_SEND_FAILED").
			With("email_kind", kind).
			With("attempts", attempt).
			Wrap(err)
	}
	return nil
}

func (n *SMTPNotifier) compose(to, subject, body string) (*gomail.Msg, error) {
	msg := gomail.NewMsg(gomail.WithEncoding(gomail.NoEncoding))
	if err := msg.From(n.from); err != nil {
		return nil, err
	}
	if err := msg.To(to); err != nil {
		return nil, err
	}
	msg.Subject(subject)
	msg.SetBodyString(gomail.TypeTextPlain, body)
	return msg, nil
}

// permanent reports whether the server rejected the message outright (5xx).
// Dial and timeout failures are treated as transient.
func permanent(err error) bool {
	var sendErr *gomail.SendError
	return errors.As(err, &sendErr) && !sendErr.IsTemp()
}

// humanDuration renders whole hours or minutes, e.g. "24 hours" or "30 minutes".
func humanDuration(d time.Duration) string {
	unit, n := "minute", int(d/time.Minute)
	if d >= time.Hour && d%time.Hour == 0 {
		unit, n = "hour", int(d/time.Hour)
	}
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}

// linkBuilder turns tokens into links on the public web origin.
type linkBuilder struct {
	base string
}

func newLinkBuilder(baseURL string) (linkBuilder, error) {
	u, err := url.Parse(baseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return linkBuilder{}, oops.Code("MAIL_CONFIG_INVALID").With("field", "base_url").With("value", baseURL).
			Errorf("base url must be an absolute http(s) url")
	}
	return linkBuilder{base: strings.TrimRight(baseURL, "/")}, nil
}

func (b linkBuilder) verify(token string) string {
	return b.base + "/verify-email?token=" + url.QueryEscape(token)
}

func (b linkBuilder) reset(token string) string {
	return b.base + "/reset-password?token=" + url.QueryEscape(token)
}

const verificationBody = `Hi %s,

Confirm your email address to finish setting up your CodeSnip account:

%s

The link expires in %s. If you did not create an account, ignore this email.
`

const resetBody = `Hi %s,

Someone asked to reset the password for your CodeSnip account. To choose a new
password, open:

%s

The link expires in %s and can be used once. If you did not ask for a reset,
ignore this email; your password is unchanged.
`

const welcomeBody = `Hi %s,

Your email address is verified and your CodeSnip account is ready.

Sign in at %s
`
