// Package server assembles the authentication core from configuration and
// runs it behind the gRPC endpoint until the process is told to stop.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/slothauth/internal/logging"
	"github.com/dmitrijs2005/slothauth/internal/server/config"
	"github.com/dmitrijs2005/slothauth/internal/server/keygen"
	"github.com/dmitrijs2005/slothauth/internal/server/mail"
	"github.com/dmitrijs2005/slothauth/internal/server/models"
	"github.com/dmitrijs2005/slothauth/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/slothauth/internal/server/services"
	"golang.org/x/crypto/bcrypt"

	gs "github.com/dmitrijs2005/slothauth/internal/server/grpc"
)

// Core holds the wired services shared by the server and the admin tool.
type Core struct {
	Config   *config.Config
	Logger   logging.Logger
	Repos    repomanager.RepositoryManager
	Auth     *services.Authenticator
	Accounts *services.AccountService
	Sessions *services.SessionService
	Mailer   *mail.Mailer
}

// openRepositories is a seam for tests.
var openRepositories = func(ctx context.Context, cfg *config.Config) (repomanager.RepositoryManager, error) {
	if cfg.UsesMemoryStore() {
		return repomanager.NewMemoryRepositoryManager(), nil
	}

	db, err := repomanager.OpenPostgres(ctx, cfg.DatabaseDSN)
	if err != nil {
		return nil, err
	}
	m, err := repomanager.NewPostgresRepositoryManager(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	if err := m.RunMigrations(ctx); err != nil {
		m.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}
	return m, nil
}

func newSender(cfg *config.Config, logger logging.Logger) (mail.Sender, error) {
	if cfg.SMTPHost == "" {
		return mail.NewLogSender(logger), nil
	}
	sender, err := mail.NewSMTPSender(mail.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUser,
		Password: cfg.SMTPPassword,
	})
	if err != nil {
		return nil, err
	}
	return sender, nil
}

// NewCore opens storage and wires the services described by cfg.
func NewCore(ctx context.Context, cfg *config.Config, logger logging.Logger) (*Core, error) {
	logger = logging.OrDiscard(logger)

	sender, err := newSender(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("mail init error: %w", err)
	}
	renderer, err := mail.NewRenderer(mail.RendererConfig{
		From:                     cfg.EmailFrom,
		Domain:                   cfg.EmailDomain,
		Protocol:                 cfg.EmailProtocol,
		PasswordResetSubject:     cfg.PasswordResetSubject,
		PasswordlessLoginSubject: cfg.PasswordlessLoginSubject,
		PasswordlessParam:        cfg.PasswordlessParam,
	})
	if err != nil {
		return nil, fmt.Errorf("mail init error: %w", err)
	}
	mailer := mail.NewMailer(renderer, mail.NewDispatcher(sender, logger))

	repos, err := openRepositories(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	keys := keygen.New(cfg.KeyAlphabet, cfg.KeyLength, logger)
	hasher := services.NewBcryptHasher(bcrypt.DefaultCost)
	auth := services.NewAuthenticator(repos, keys, hasher, logger)

	core := &Core{
		Config:   cfg,
		Logger:   logger,
		Repos:    repos,
		Auth:     auth,
		Accounts: services.NewAccountService(repos, auth, keys, hasher, mailer, logger),
		Sessions: services.NewSessionService(repos, auth, cfg, logger),
		Mailer:   mailer,
	}
	core.Accounts.OnCreate(core.auditAccountCreated)
	return core, nil
}

func (c *Core) auditAccountCreated(ctx context.Context, account *models.Account) error {
	c.Logger.Info(ctx, "account registered",
		"account_id", account.ID, "passwordless", account.IsPasswordless(), "staff", account.IsStaff)
	return nil
}

// Close waits for queued mail and releases storage.
func (c *Core) Close() error {
	c.Mailer.Wait()
	return c.Repos.Close()
}

type App struct {
	core   *Core
	server *gs.GRPCServer
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	core, err := NewCore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	server := gs.NewGRPCServer(cfg.EndpointAddrGRPC, logger, core.Accounts, core.Sessions, core.Auth,
		gs.KeyParams{Passwordless: cfg.PasswordlessParam, OneTime: cfg.OneTimeKeyParam})

	return &App{core: core, server: server}, nil
}

// Run serves until ctx is cancelled or SIGINT/SIGTERM arrives, then drains
// pending mail and closes storage.
func (app *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := app.core.Logger
	logger.Info(ctx, "Starting app...")

	runErr := app.server.Run(ctx)
	if runErr != nil {
		logger.Error(ctx, "gRPC server failed", "error", runErr)
	}

	if err := app.core.Close(); err != nil {
		logger.Error(ctx, "shutdown error", "error", err)
		if runErr == nil {
			runErr = err
		}
	}
	logger.Info(ctx, "App stopped")
	return runErr
}
