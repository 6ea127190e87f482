// Package common contains shared constants and sentinel errors used across
// slothauth components.
package common

// AccessTokenHeaderName is the gRPC metadata key used to carry the
// access token on inbound requests.
const AccessTokenHeaderName = "access_token"

// Default metadata names for the key-based login links.
const (
	DefaultPasswordlessParam = "key"
	DefaultOneTimeKeyParam   = "otk"
)
