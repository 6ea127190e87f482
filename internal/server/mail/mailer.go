package mail

import (
	"context"

	"github.com/dmitrijs2005/slothauth/internal/server/models"
)

// Mailer renders account mail and hands it to a Dispatcher.
type Mailer struct {
	renderer   *Renderer
	dispatcher *Dispatcher
}

func NewMailer(renderer *Renderer, dispatcher *Dispatcher) *Mailer {
	return &Mailer{renderer: renderer, dispatcher: dispatcher}
}

func (m *Mailer) SendPasswordReset(ctx context.Context, account *models.Account) error {
	msg, err := m.renderer.PasswordReset(account)
	if err != nil {
		return err
	}
	m.dispatcher.Dispatch(ctx, msg)
	return nil
}

func (m *Mailer) SendPasswordlessLogin(ctx context.Context, account *models.Account) error {
	msg, err := m.renderer.PasswordlessLogin(account)
	if err != nil {
		return err
	}
	m.dispatcher.Dispatch(ctx, msg)
	return nil
}

// Wait blocks until all dispatched mail has been handled.
func (m *Mailer) Wait() {
	m.dispatcher.Wait()
}
