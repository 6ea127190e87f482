// Package mail renders account emails and delivers them over SMTP.
package mail

import (
	"context"
	"errors"
)

var ErrEmptyBody = errors.New("either a text or an html body is required")

// Message is a single outgoing email. HTML is sent as an alternative part
// when set.
type Message struct {
	Subject string
	Text    string
	HTML    string
	From    string
	To      string
}

func (m Message) Validate() error {
	if m.Text == "" && m.HTML == "" {
		return ErrEmptyBody
	}
	if m.To == "" {
		return errors.New("recipient is required")
	}
	return nil
}

// Sender delivers a message synchronously.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}
