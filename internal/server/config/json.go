package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/slothauth/internal/timex"
)

// JsonConfig is the on-disk shape of Config. Durations accept "15m" or
// integer nanoseconds. Absent or zero fields leave the current value alone.
type JsonConfig struct {
	EndpointAddrGRPC             string         `json:"endpoint_addr_grpc"`
	DatabaseDSN                  string         `json:"database_dsn"`
	SecretKey                    string         `json:"secret_key"`
	AccessTokenValidityDuration  timex.Duration `json:"access_token_validity_duration"`
	RefreshTokenValidityDuration timex.Duration `json:"refresh_token_validity_duration"`
	SMTPHost                     string         `json:"smtp_host"`
	SMTPPort                     int            `json:"smtp_port"`
	SMTPUser                     string         `json:"smtp_user"`
	SMTPPassword                 string         `json:"smtp_password"`
	EmailFrom                    string         `json:"email_from"`
	EmailDomain                  string         `json:"email_domain"`
	EmailProtocol                string         `json:"email_protocol"`
	PasswordResetSubject         string         `json:"password_reset_subject"`
	PasswordlessLoginSubject     string         `json:"passwordless_login_subject"`
	KeyAlphabet                  string         `json:"key_alphabet"`
	KeyLength                    int            `json:"key_length"`
	PasswordlessParam            string         `json:"passwordless_param"`
	OneTimeKeyParam              string         `json:"one_time_key_param"`
}

// parseJson overlays the JSON file at path onto config. An empty path is a
// no-op. An unreadable file or invalid JSON panics: the server must not
// start on a half-applied configuration.
func parseJson(config *Config, path string) {
	if path == "" {
		return
	}

	file, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	setString(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	if c.AccessTokenValidityDuration.Duration > 0 {
		config.AccessTokenValidityDuration = c.AccessTokenValidityDuration.Duration
	}
	if c.RefreshTokenValidityDuration.Duration > 0 {
		config.RefreshTokenValidityDuration = c.RefreshTokenValidityDuration.Duration
	}
	setString(&config.SMTPHost, c.SMTPHost)
	setInt(&config.SMTPPort, c.SMTPPort)
	setString(&config.SMTPUser, c.SMTPUser)
	setString(&config.SMTPPassword, c.SMTPPassword)
	setString(&config.EmailFrom, c.EmailFrom)
	setString(&config.EmailDomain, c.EmailDomain)
	setString(&config.EmailProtocol, c.EmailProtocol)
	setString(&config.PasswordResetSubject, c.PasswordResetSubject)
	setString(&config.PasswordlessLoginSubject, c.PasswordlessLoginSubject)
	setString(&config.KeyAlphabet, c.KeyAlphabet)
	setInt(&config.KeyLength, c.KeyLength)
	setString(&config.PasswordlessParam, c.PasswordlessParam)
	setString(&config.OneTimeKeyParam, c.OneTimeKeyParam)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}
