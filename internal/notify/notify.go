// Package notify is the delivery port for owner reports. The scheduling core
// only renders and addresses a report; the transport (mail, chat, webhook)
// is plugged in by the surrounding application.
package notify

import (
	"context"

	"github.com/rs/zerolog"
)

// Notifier delivers a rendered report to a recipient.
type Notifier interface {
	Send(ctx context.Context, recipient, subject, body string) error
}

// LogNotifier writes reports to the log. Default sink when no transport is
// configured; useful in development and tests.
type LogNotifier struct {
	Log zerolog.Logger
}

func (n LogNotifier) Send(ctx context.Context, recipient, subject, body string) error {
	n.Log.Info().
		Str("recipient", recipient).
		Str("subject", subject).
		Int("bytes", len(body)).
		Msg("report dispatched")
	return nil
}
