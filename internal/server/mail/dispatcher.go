package mail

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/slothauth/internal/logging"
)

const defaultSendTimeout = 30 * time.Second

// Dispatcher sends messages in the background. Delivery failures are logged
// and never reported to the caller.
type Dispatcher struct {
	sender  Sender
	logger  logging.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewDispatcher(sender Sender, logger logging.Logger) *Dispatcher {
	return &Dispatcher{
		sender:  sender,
		logger:  logging.OrDiscard(logger).With("module", "mail"),
		timeout: defaultSendTimeout,
	}
}

// Dispatch queues msg for delivery and returns immediately. The send outlives
// ctx's cancellation but keeps its values.
func (d *Dispatcher) Dispatch(ctx context.Context, msg Message) {
	if err := msg.Validate(); err != nil {
		d.logger.Error(ctx, "refusing to send mail", "to", msg.To, "subject", msg.Subject, "error", err)
		return
	}

	sendCtx := context.WithoutCancel(ctx)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		ctx, cancel := context.WithTimeout(sendCtx, d.timeout)
		defer cancel()

		if err := d.sender.Send(ctx, msg); err != nil {
			d.logger.Error(ctx, "mail delivery failed", "to", msg.To, "subject", msg.Subject, "error", err)
			return
		}
		d.logger.Debug(ctx, "mail delivered", "to", msg.To, "subject", msg.Subject)
	}()
}

// Wait blocks until every dispatched message has been handled.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
