// Package email delivers confirmed emails over SMTP.
package email

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"synapse/pkg/config"
	"synapse/pkg/tools"

	"github.com/wneessen/go-mail"
)

const op = "email"

// DefaultFromName is the display name of the sender.
const DefaultFromName = "Synapse Agent"

// Transport sends built messages. *mail.Client satisfies it.
type Transport interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

// Sender implements tools.EmailSender.
type Sender struct {
	From      string
	FromName  string
	Transport Transport
}

// New creates an SMTP sender from cfg. Missing host or credentials are not
// an error here: Send reports them as DeliveryFailed so the rest of the
// application still starts.
func New(cfg config.EmailConfig) *Sender {
	s := &Sender{From: cfg.Username, FromName: cfg.FromName}
	if cfg.Host == "" || cfg.Username == "" || cfg.Password == "" {
		return s
	}

	port := cfg.Port
	if port == 0 {
		port = 587
	}
	opts := []mail.Option{
		mail.WithPort(port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(cfg.Username),
		mail.WithPassword(cfg.Password),
		mail.WithTimeout(30 * time.Second),
	}
	if port == 465 {
		opts = append(opts, mail.WithSSLPort(false))
	} else {
		opts = append(opts, mail.WithTLSPortPolicy(mail.TLSOpportunistic))
	}

	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		slog.Warn("SMTP client disabled", "host", cfg.Host, "error", err)
		return s
	}
	s.Transport = client
	return s
}

// Configured reports whether Send can reach a relay.
func (s *Sender) Configured() bool {
	return s != nil && s.Transport != nil && s.From != ""
}

func (s *Sender) Send(ctx context.Context, e tools.Email) (*tools.Delivery, error) {
	if strings.TrimSpace(e.To) == "" || strings.TrimSpace(e.Subject) == "" || strings.TrimSpace(e.HTML) == "" {
		return nil, tools.Errorf(tools.KindMissingInput, op, "missing recipient, subject or body")
	}
	if !s.Configured() {
		return nil, tools.Errorf(tools.KindDeliveryFailed, op, "email service is not configured")
	}

	msg, err := s.build(e)
	if err != nil {
		return nil, tools.Wrap(tools.KindDeliveryFailed, op, err)
	}
	if err := s.Transport.DialAndSendWithContext(ctx, msg); err != nil {
		slog.ErrorContext(ctx, "Email delivery failed", "to", e.To, "error", err)
		return nil, &tools.Error{Kind: tools.KindDeliveryFailed, Op: op, Msg: "failed to send email", Err: err}
	}

	id := ""
	if ids := msg.GetGenHeader(mail.HeaderMessageID); len(ids) > 0 {
		id = ids[0]
	}
	slog.InfoContext(ctx, "Email sent", "to", e.To, "message_id", id)
	return &tools.Delivery{MessageID: id, Message: fmt.Sprintf("Email successfully sent to %s.", e.To)}, nil
}

func (s *Sender) build(e tools.Email) (*mail.Msg, error) {
	name := s.FromName
	if name == "" {
		name = DefaultFromName
	}
	msg := mail.NewMsg()
	if err := msg.FromFormat(name, s.From); err != nil {
		return nil, fmt.Errorf("invalid sender %q: %w", s.From, err)
	}
	if err := msg.To(strings.TrimSpace(e.To)); err != nil {
		return nil, fmt.Errorf("invalid recipient %q: %w", e.To, err)
	}
	msg.Subject(e.Subject)
	msg.SetMessageID()
	msg.SetDate()
	msg.SetBodyString(mail.TypeTextPlain, PlainText(e.HTML))
	msg.AddAlternativeString(mail.TypeTextHTML, e.HTML)
	return msg, nil
}

var (
	dropBlocks = regexp.MustCompile(`(?is)<(script|style|head)[^>]*>.*?</(script|style|head)>`)
	breaks     = regexp.MustCompile(`(?i)<\s*(br|/p|/div|/h[1-6]|/li|/tr)\s*/?>`)
	tags       = regexp.MustCompile(`<[^>]+>`)
	blankLines = regexp.MustCompile(`\n{3,}`)
)

// PlainText renders an HTML body as a readable text alternative.
func PlainText(body string) string {
	s := dropBlocks.ReplaceAllString(body, "")
	s = breaks.ReplaceAllString(s, "\n")
	s = tags.ReplaceAllString(s, "")
	s = html.UnescapeString(s)

	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	s = blankLines.ReplaceAllString(strings.Join(lines, "\n"), "\n\n")
	return strings.TrimSpace(s)
}
