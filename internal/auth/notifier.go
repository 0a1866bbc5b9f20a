// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SpeakDoc Contributors

package auth

import (
	"context"
	"log/slog"
	"net/url"
	"strings"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/speakdoc/speakdoc/pkg/errutil"
)

// Message is an outbound notification.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Notifier delivers messages to users. Delivery is best effort: a failed
// send never undoes the challenge it announces.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// Purpose names the flow a challenge belongs to.
type Purpose string

// Challenge purposes.
const (
	PurposeVerification Purpose = "verification"
	PurposeReset        Purpose = "reset"
)

// Links builds the callback URLs embedded in notifications.
type Links struct {
	base string
}

// NewLinks parses the public base URL of the service.
func NewLinks(publicURL string) (*Links, error) {
	u, err := url.Parse(publicURL)
	if err != nil {
		return nil, oops.Code("LINKS_INVALID_URL").With("public_url", publicURL).Wrap(err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, oops.Code("LINKS_INVALID_URL").
			With("public_url", publicURL).
			Errorf("public URL must be absolute http(s), got scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, oops.Code("LINKS_INVALID_URL").With("public_url", publicURL).Errorf("public URL has no host")
	}
	return &Links{base: strings.TrimRight(u.String(), "/")}, nil
}

// Message composes the notification carrying token for the given purpose.
func (l *Links) Message(purpose Purpose, to, token string) Message {
	if purpose == PurposeReset {
		return Message{
			To:      to,
			Subject: "Change Your Password",
			Body:    "Please click the following link to change your password: " + l.base + "/change-password/" + token,
		}
	}
	return Message{
		To:      to,
		Subject: "Verify Your Email",
		Body:    "Please click the following link to verify your email: " + l.base + "/verify-email/" + token,
	}
}

// announcer sends challenge notifications once the challenge is committed.
type announcer struct {
	notifier Notifier
	links    *Links
	metrics  Recorder
	logger   *slog.Logger
}

// announce outlives the request: a client that hangs up after the commit
// still gets its mail.
func (a *announcer) announce(ctx context.Context, purpose Purpose, userID ulid.ULID, to, token string) {
	ctx = context.WithoutCancel(ctx)
	a.metrics.ChallengeIssued(string(purpose))
	if err := a.notifier.Send(ctx, a.links.Message(purpose, to, token)); err != nil {
		a.metrics.NotificationFailed(string(purpose))
		errutil.LogErrorContext(ctx, a.logger, "challenge notification failed", oops.Code("NOTIFY_FAILED").
			With("purpose", string(purpose)).
			With("user_id", userID.String()).
			Wrap(err))
	}
}
