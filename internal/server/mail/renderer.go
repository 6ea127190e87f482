package mail

import (
	"bytes"
	"embed"
	"fmt"
	htmltemplate "html/template"
	"net/url"
	texttemplate "text/template"

	"github.com/dmitrijs2005/slothauth/internal/server/models"
)

//go:embed templates/*
var templateFS embed.FS

const (
	tplPasswordReset     = "password_reset"
	tplPasswordlessLogin = "passwordless_login"
)

// Link paths, relative to the configured domain.
const (
	PasswordResetPath     = "/password_reset/"
	PasswordlessLoginPath = "/"
)

// RendererConfig carries the addressing and wording of rendered mail.
type RendererConfig struct {
	From                     string
	Domain                   string
	Protocol                 string
	PasswordResetSubject     string
	PasswordlessLoginSubject string
	// PasswordlessParam names the query parameter carrying the passwordless key.
	PasswordlessParam string
}

type templatePair struct {
	text *texttemplate.Template
	html *htmltemplate.Template
}

// Renderer turns account events into messages ready for dispatch.
type Renderer struct {
	cfg       RendererConfig
	templates map[string]templatePair
}

func NewRenderer(cfg RendererConfig) (*Renderer, error) {
	if cfg.Protocol == "" {
		cfg.Protocol = "http"
	}
	if cfg.PasswordlessParam == "" {
		cfg.PasswordlessParam = "key"
	}

	r := &Renderer{cfg: cfg, templates: make(map[string]templatePair)}
	for _, name := range []string{tplPasswordReset, tplPasswordlessLogin} {
		text, err := texttemplate.ParseFS(templateFS, "templates/"+name+".txt")
		if err != nil {
			return nil, fmt.Errorf("parse %s text template: %w", name, err)
		}
		html, err := htmltemplate.ParseFS(templateFS, "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("parse %s html template: %w", name, err)
		}
		r.templates[name] = templatePair{text: text, html: html}
	}
	return r, nil
}

type templateData struct {
	Name  string
	Email string
	Link  string
}

// PasswordReset renders the reset mail carrying account's reset key.
func (r *Renderer) PasswordReset(account *models.Account) (Message, error) {
	link := r.link(PasswordResetPath, "password_reset_key", account.PasswordResetKey)
	return r.render(tplPasswordReset, r.cfg.PasswordResetSubject, account, link)
}

// PasswordlessLogin renders the login-link mail carrying account's passwordless key.
func (r *Renderer) PasswordlessLogin(account *models.Account) (Message, error) {
	link := r.link(PasswordlessLoginPath, r.cfg.PasswordlessParam, account.PasswordlessKey)
	return r.render(tplPasswordlessLogin, r.cfg.PasswordlessLoginSubject, account, link)
}

func (r *Renderer) link(path, param, key string) string {
	u := url.URL{
		Scheme:   r.cfg.Protocol,
		Host:     r.cfg.Domain,
		Path:     path,
		RawQuery: url.Values{param: {key}}.Encode(),
	}
	return u.String()
}

func (r *Renderer) render(name, subject string, account *models.Account, link string) (Message, error) {
	tpl := r.templates[name]
	data := templateData{Name: account.ShortName(), Email: account.Email, Link: link}

	var text, html bytes.Buffer
	if err := tpl.text.Execute(&text, data); err != nil {
		return Message{}, fmt.Errorf("render %s: %w", name, err)
	}
	if err := tpl.html.Execute(&html, data); err != nil {
		return Message{}, fmt.Errorf("render %s: %w", name, err)
	}

	return Message{
		Subject: subject,
		Text:    text.String(),
		HTML:    html.String(),
		From:    r.cfg.From,
		To:      account.Email,
	}, nil
}
