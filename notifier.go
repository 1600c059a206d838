package registration

import (
	"bytes"
	"context"
	"io/fs"
	"net/http"
	"net/smtp"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/gofiber/template/django/v3"
)

const (
	// ActivationEmailSubjectTemplate is rendered and flattened into the subject line
	ActivationEmailSubjectTemplate = "registration/activation_email_subject"
	// ActivationEmailBodyTemplate is rendered into the message body
	ActivationEmailBodyTemplate = "registration/activation_email"
)

// Email is an outgoing plain text message
type Email struct {
	From    string
	To      []string
	Subject string
	Body    string
}

// Sender delivers an Email
type Sender interface {
	Send(ctx context.Context, email Email) error
}

// SenderFunc adapts a function to Sender
type SenderFunc func(ctx context.Context, email Email) error

// Send implements Sender
func (f SenderFunc) Send(ctx context.Context, email Email) error {
	return f(ctx, email)
}

// SMTPSender sends mail through an SMTP relay
type SMTPSender struct {
	Addr string
	Auth smtp.Auth
}

// Send implements Sender
func (s SMTPSender) Send(ctx context.Context, email Email) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	var msg bytes.Buffer
	msg.WriteString("From: " + email.From + "\r\n")
	msg.WriteString("To: " + strings.Join(email.To, ", ") + "\r\n")
	msg.WriteString("Subject: " + email.Subject + "\r\n")
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(email.Body)

	return smtp.SendMail(s.Addr, s.Auth, email.From, email.To, msg.Bytes())
}

// LogSender writes messages to the logger instead of delivering them
type LogSender struct {
	Logger Logger
}

// Send implements Sender
func (s LogSender) Send(ctx context.Context, email Email) error {
	logger := s.Logger
	if logger == nil {
		_, logger = ResolveLogger("registration.mail", nil, nil)
	}
	logger.Info("activation email",
		"from", email.From,
		"to", strings.Join(email.To, ","),
		"subject", email.Subject,
		"body", email.Body,
	)
	return nil
}

// EmailNotifier renders the activation email templates and hands the
// message to a Sender.
type EmailNotifier struct {
	engine         *django.Engine
	templates      fs.FS
	sender         Sender
	from           string
	activationDays int
	logger         Logger
	provider       LoggerProvider
}

// EmailNotifierOption customizes an EmailNotifier
type EmailNotifierOption func(*EmailNotifier)

// WithEmailTemplates overrides the embedded templates. The file system must
// contain registration/activation_email_subject.txt and
// registration/activation_email.txt at its root.
func WithEmailTemplates(templates fs.FS) EmailNotifierOption {
	return func(n *EmailNotifier) {
		if templates != nil {
			n.templates = templates
		}
	}
}

// WithEmailNotifierLogger overrides the logger
func WithEmailNotifierLogger(logger Logger) EmailNotifierOption {
	return func(n *EmailNotifier) {
		n.provider, n.logger = ResolveLogger("registration.notifier", n.provider, logger)
	}
}

// WithEmailNotifierLoggerProvider resolves a scoped logger from provider
func WithEmailNotifierLoggerProvider(provider LoggerProvider) EmailNotifierOption {
	return func(n *EmailNotifier) {
		n.provider, n.logger = ResolveLogger("registration.notifier", provider, nil)
	}
}

// NewEmailNotifier loads the templates and returns a notifier that sends from
// cfg.GetDefaultFromEmail.
func NewEmailNotifier(cfg Config, sender Sender, opts ...EmailNotifierOption) (*EmailNotifier, error) {
	n := &EmailNotifier{
		sender:         sender,
		from:           cfg.GetDefaultFromEmail(),
		activationDays: cfg.GetActivationDays(),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(n)
		}
	}

	if n.logger == nil {
		n.provider, n.logger = ResolveLogger("registration.notifier", n.provider, nil)
	}

	if n.sender == nil {
		n.sender = LogSender{Logger: n.logger}
	}

	if n.templates == nil {
		templates, err := fs.Sub(GetTemplatesFS(), "data/templates")
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to open embedded email templates")
		}
		n.templates = templates
	}

	n.engine = django.NewFileSystem(http.FS(n.templates), ".txt")
	if err := n.engine.Load(); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load email templates")
	}

	return n, nil
}

// Render returns the flattened subject and the body for profile
func (n *EmailNotifier) Render(profile *RegistrationProfile, site Site) (string, string, error) {
	bind := map[string]any{
		"activation_key":  profile.ActivationKey,
		"activation_url":  activationURL(site, profile.ActivationKey),
		"expiration_days": n.activationDays,
		"site":            site,
	}

	var subject bytes.Buffer
	if err := n.engine.Render(&subject, ActivationEmailSubjectTemplate, bind); err != nil {
		return "", "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to render activation email subject")
	}

	var body bytes.Buffer
	if err := n.engine.Render(&body, ActivationEmailBodyTemplate, bind); err != nil {
		return "", "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to render activation email body")
	}

	return FlattenSubject(subject.String()), body.String(), nil
}

// SendActivationEmail implements Notifier
func (n *EmailNotifier) SendActivationEmail(ctx context.Context, profile *RegistrationProfile, site Site) error {
	subject, body, err := n.Render(profile, site)
	if err != nil {
		return err
	}

	email := Email{
		From:    n.from,
		To:      []string{profile.Email},
		Subject: subject,
		Body:    body,
	}

	if err := n.sender.Send(ctx, email); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to send activation email").
			WithTextCode(textCodeNotificationFailed).
			WithMetadata(map[string]any{
				"profile_id": profile.ID.String(),
			})
	}

	n.logger.Debug("activation email sent", "profile_id", profile.ID.String())
	return nil
}

// FlattenSubject joins a rendered subject onto a single line, mail headers
// can not carry newlines.
func FlattenSubject(subject string) string {
	subject = strings.ReplaceAll(subject, "\r\n", "\n")
	return strings.TrimSpace(strings.Join(strings.Split(subject, "\n"), ""))
}
