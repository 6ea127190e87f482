package models

import (
	"strings"
	"time"
)

// KeyField names one of the three random key columns of an account.
type KeyField string

const (
	PasswordlessKey          KeyField = "passwordless_key"
	OneTimeAuthenticationKey KeyField = "one_time_authentication_key"
	PasswordResetKey         KeyField = "password_reset_key"
)

// KeyFields lists every key column in generation order.
var KeyFields = []KeyField{PasswordlessKey, OneTimeAuthenticationKey, PasswordResetKey}

// Valid reports whether f is one of the known key columns.
func (f KeyField) Valid() bool {
	switch f {
	case PasswordlessKey, OneTimeAuthenticationKey, PasswordResetKey:
		return true
	}
	return false
}

// Account is an identity record. Email is stored lower-cased. An empty
// PasswordHash means the account has no usable password.
type Account struct {
	ID                       string
	Email                    string
	PasswordHash             string
	FirstName                string
	LastName                 string
	IsActive                 bool
	IsStaff                  bool
	PasswordlessKey          string
	OneTimeAuthenticationKey string
	PasswordResetKey         string
	DateJoined               time.Time
}

// HasUsablePassword reports whether a password hash is set.
func (a *Account) HasUsablePassword() bool {
	return a.PasswordHash != ""
}

// IsPasswordless is true only when a passwordless key is set and no password
// is. Setting a password makes the account a password account even if the
// passwordless key stays in place.
func (a *Account) IsPasswordless() bool {
	return a.PasswordlessKey != "" && !a.HasUsablePassword()
}

// Key returns the value held in field.
func (a *Account) Key(field KeyField) string {
	switch field {
	case PasswordlessKey:
		return a.PasswordlessKey
	case OneTimeAuthenticationKey:
		return a.OneTimeAuthenticationKey
	case PasswordResetKey:
		return a.PasswordResetKey
	}
	return ""
}

// SetKey stores value in field. Unknown fields are ignored.
func (a *Account) SetKey(field KeyField, value string) {
	switch field {
	case PasswordlessKey:
		a.PasswordlessKey = value
	case OneTimeAuthenticationKey:
		a.OneTimeAuthenticationKey = value
	case PasswordResetKey:
		a.PasswordResetKey = value
	}
}

// ShortName is the name used to greet the account holder.
func (a *Account) ShortName() string {
	return a.FirstName
}

// NormalizeEmail trims and lower-cases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
