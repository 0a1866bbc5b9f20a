// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SpeakDoc Contributors

// Package mail delivers account notifications over SMTP, or to the log
// during development.
package mail

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
	gomail "github.com/wneessen/go-mail"

	"github.com/speakdoc/speakdoc/internal/auth"
)

// Drivers.
const (
	DriverSMTP = "smtp"
	DriverLog  = "log"
)

// TLS policies.
const (
	TLSMandatory     = "mandatory"
	TLSOpportunistic = "opportunistic"
	TLSNone          = "none"
)

const (
	defaultTimeout   = 15 * time.Second
	sendRetries      = 2
	sendRetryBackoff = 250 * time.Millisecond
)

// Options configures a notifier.
type Options struct {
	Driver   string
	Host     string
	Port     int
	Username string
	Password string
	// From defaults to Username.
	From    string
	TLS     string
	Timeout time.Duration
}

// New returns the notifier selected by opts.Driver.
func New(opts Options, logger *slog.Logger) (auth.Notifier, error) {
	switch opts.Driver {
	case DriverLog:
		return NewLogNotifier(logger), nil
	case DriverSMTP, "":
		return NewSMTPNotifier(opts)
	default:
		return nil, oops.Code("MAIL_DRIVER_UNKNOWN").With("driver", opts.Driver).Errorf("unknown mail driver %q", opts.Driver)
	}
}

// sender is the part of *gomail.Client used to deliver messages.
type sender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*gomail.Msg) error
}

// dialer is the part of *gomail.Client used to check the relay.
type dialer interface {
	DialWithContext(ctx context.Context) error
	Close() error
}

// Pinger is a notifier that can check its relay without sending.
type Pinger interface {
	Ping(ctx context.Context) error
}

// SMTPNotifier sends plain-text mail through an SMTP relay.
type SMTPNotifier struct {
	client  sender
	from    string
	backoff func() retry.Backoff

	// probe is a second client so a health check never shares a connection
	// with a delivery in flight.
	probeMu sync.Mutex
	probe   dialer
}

var (
	_ auth.Notifier = (*SMTPNotifier)(nil)
	_ Pinger        = (*SMTPNotifier)(nil)
)

// NewSMTPNotifier builds an SMTP client from opts. No connection is made
// until the first Send.
func NewSMTPNotifier(opts Options) (*SMTPNotifier, error) {
	if opts.Host == "" {
		return nil, oops.Code("MAIL_CONFIG_INVALID").Errorf("mail host is required")
	}
	from := opts.From
	if from == "" {
		from = opts.Username
	}
	if from == "" {
		return nil, oops.Code("MAIL_CONFIG_INVALID").Errorf("mail sender is required")
	}

	policy, err := tlsPolicy(opts.TLS)
	if err != nil {
		return nil, err
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	clientOpts := []gomail.Option{
		gomail.WithTLSPolicy(policy),
		gomail.WithTimeout(timeout),
	}
	if opts.Port > 0 {
		clientOpts = append(clientOpts, gomail.WithPort(opts.Port))
	}
	if opts.Username != "" {
		clientOpts = append(clientOpts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(opts.Username),
			gomail.WithPassword(opts.Password),
		)
	}

	client, err := gomail.NewClient(opts.Host, clientOpts...)
	if err != nil {
		return nil, oops.Code("MAIL_CONFIG_INVALID").With("host", opts.Host).Wrap(err)
	}
	probe, err := gomail.NewClient(opts.Host, clientOpts...)
	if err != nil {
		return nil, oops.Code("MAIL_CONFIG_INVALID").With("host", opts.Host).Wrap(err)
	}
	return newSMTPNotifier(client, probe, from), nil
}

func newSMTPNotifier(client sender, probe dialer, from string) *SMTPNotifier {
	return &SMTPNotifier{
		client: client,
		probe:  probe,
		from:   from,
		backoff: func() retry.Backoff {
			return retry.WithMaxRetries(sendRetries, retry.NewExponential(sendRetryBackoff))
		},
	}
}

func tlsPolicy(name string) (gomail.TLSPolicy, error) {
	switch name {
	case TLSMandatory, "":
		return gomail.TLSMandatory, nil
	case TLSOpportunistic:
		return gomail.TLSOpportunistic, nil
	case TLSNone:
		return gomail.NoTLS, nil
	default:
		return gomail.TLSMandatory, oops.Code("MAIL_CONFIG_INVALID").With("tls", name).Errorf("unknown tls policy %q", name)
	}
}

// Send delivers msg, retrying transient failures a couple of times.
func (n *SMTPNotifier) Send(ctx context.Context, msg auth.Message) error {
	m, err := n.compose(msg)
	if err != nil {
		return err
	}

	err = retry.Do(ctx, n.backoff(), func(ctx context.Context) error {
		if err := n.client.DialAndSendWithContext(ctx, m); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return oops.Code("MAIL_SEND_FAILED").With("subject", msg.Subject).Wrap(err)
	}
	return nil
}

// Ping dials and greets the relay, then hangs up.
func (n *SMTPNotifier) Ping(ctx context.Context) error {
	n.probeMu.Lock()
	defer n.probeMu.Unlock()
	if err := n.probe.DialWithContext(ctx); err != nil {
		return oops.Code("MAIL_UNREACHABLE").Wrap(err)
	}
	if err := n.probe.Close(); err != nil {
		return oops.Code("MAIL_UNREACHABLE").With("operation", "close probe connection").Wrap(err)
	}
	return nil
}

func (n *SMTPNotifier) compose(msg auth.Message) (*gomail.Msg, error) {
	m := gomail.NewMsg()
	if err := m.From(n.from); err != nil {
		return nil, oops.Code("MAIL_COMPOSE_FAILED").With("from", n.from).Wrap(err)
	}
	if err := m.To(msg.To); err != nil {
		return nil, oops.Code("MAIL_COMPOSE_FAILED").Wrap(err)
	}
	m.Subject(msg.Subject)
	m.SetBodyString(gomail.TypeTextPlain, msg.Body)
	return m, nil
}

// LogNotifier writes messages to the log instead of sending them.
type LogNotifier struct {
	logger *slog.Logger
}

var _ auth.Notifier = (*LogNotifier)(nil)

// NewLogNotifier creates a LogNotifier. A nil logger uses slog.Default.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

// Send logs msg.
func (n *LogNotifier) Send(ctx context.Context, msg auth.Message) error {
	n.logger.InfoContext(ctx, "mail not sent (log driver)",
		"to", msg.To,
		"subject", msg.Subject,
		"body", msg.Body)
	return nil
}
