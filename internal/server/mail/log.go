package mail

import (
	"context"

	"github.com/dmitrijs2005/slothauth/internal/logging"
)

// LogSender writes messages to the log instead of delivering them. It is used
// when no SMTP relay is configured.
type LogSender struct {
	logger logging.Logger
}

func NewLogSender(logger logging.Logger) *LogSender {
	return &LogSender{logger: logging.OrDiscard(logger).With("module", "mail")}
}

func (s *LogSender) Send(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	s.logger.Info(ctx, "mail not delivered, no smtp relay configured",
		"to", msg.To, "from", msg.From, "subject", msg.Subject, "text", msg.Text)
	return nil
}
