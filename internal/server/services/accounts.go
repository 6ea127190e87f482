package services

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/dmitrijs2005/slothauth/internal/common"
	"github.com/dmitrijs2005/slothauth/internal/dbx"
	"github.com/dmitrijs2005/slothauth/internal/logging"
	"github.com/dmitrijs2005/slothauth/internal/server/keygen"
	"github.com/dmitrijs2005/slothauth/internal/server/models"
	"github.com/dmitrijs2005/slothauth/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/slothauth/internal/server/repositories/repomanager"
)

// emailPattern is the basic local@domain.tld shape.
var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

const (
	maxEmailLength    = 254
	maxNameLength     = 30
	maxPasswordLength = 72
)

// AccountMailer sends account mail without waiting for delivery.
type AccountMailer interface {
	SendPasswordReset(ctx context.Context, account *models.Account) error
	SendPasswordlessLogin(ctx context.Context, account *models.Account) error
}

// PostCreateHook runs after an account is created outside of bulk import.
type PostCreateHook func(ctx context.Context, account *models.Account) error

type SignupRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	IsStaff   bool   `json:"is_staff,omitempty"`
	// IsActive defaults to true.
	IsActive *bool `json:"is_active,omitempty"`
}

type LoginRequest struct {
	Email    string
	Username string
	Password string
	// PasswordlessKey is checked without force, so it only admits
	// passwordless accounts.
	PasswordlessKey string
}

type ChangeEmailRequest struct {
	Email           string
	ConfirmEmail    string
	CurrentPassword string
}

// PasswordProof authorizes a password change. Exactly one field is expected.
type PasswordProof struct {
	CurrentPassword string
	ResetKey        string
}

type ChangePasswordRequest struct {
	Password       string
	PasswordRepeat string
	Proof          PasswordProof
}

// SettingsUpdate changes only the fields that are non-nil.
type SettingsUpdate struct {
	FirstName *string
	LastName  *string
}

// AccountService implements signup and the account state transitions.
type AccountService struct {
	repos  repomanager.RepositoryManager
	auth   *Authenticator
	keys   *keygen.Generator
	hasher PasswordHasher
	mailer AccountMailer
	hooks  []PostCreateHook
	logger logging.Logger
}

func NewAccountService(repos repomanager.RepositoryManager, auth *Authenticator, keys *keygen.Generator,
	hasher PasswordHasher, mailer AccountMailer, logger logging.Logger) *AccountService {
	return &AccountService{
		repos:  repos,
		auth:   auth,
		keys:   keys,
		hasher: hasher,
		mailer: mailer,
		logger: logging.OrDiscard(logger).With("module", "accounts"),
	}
}

// OnCreate registers a hook run after every non-bulk account creation.
func (s *AccountService) OnCreate(hook PostCreateHook) {
	s.hooks = append(s.hooks, hook)
}

// Signup creates an account and returns it already authenticated: through its
// passwordless key when no password was given, by email and password
// otherwise.
func (s *AccountService) Signup(ctx context.Context, req SignupRequest) (*models.Account, error) {
	account, err := s.create(ctx, req, false)
	if err != nil {
		return nil, err
	}

	creds := Credentials{Email: account.Email, Password: req.Password}
	if req.Password == "" {
		creds = Credentials{PasswordlessKey: account.PasswordlessKey, Force: true}
	}

	authed, err := s.auth.Authenticate(ctx, creds)
	if err != nil {
		return nil, err
	}
	if authed == nil {
		return nil, common.ErrorUnauthorized
	}
	return authed, nil
}

// Import creates accounts in bulk mode: post-create hooks are not run. It stops
// at the first failure and returns the accounts created so far.
func (s *AccountService) Import(ctx context.Context, reqs []SignupRequest) ([]*models.Account, error) {
	created := make([]*models.Account, 0, len(reqs))
	for i, req := range reqs {
		account, err := s.create(ctx, req, true)
		if err != nil {
			return created, fmt.Errorf("record %d (%s): %w", i, req.Email, err)
		}
		created = append(created, account)
	}
	s.logger.Info(ctx, "accounts imported", "count", len(created))
	return created, nil
}

func (s *AccountService) create(ctx context.Context, req SignupRequest, bulk bool) (*models.Account, error) {
	email := models.NormalizeEmail(req.Email)
	if err := validateEmail(email); err != nil {
		return nil, common.NewFieldError("email", err)
	}
	if utf8.RuneCountInString(req.FirstName) > maxNameLength {
		return nil, common.NewFieldError("first_name", common.ErrValidation)
	}
	if utf8.RuneCountInString(req.LastName) > maxNameLength {
		return nil, common.NewFieldError("last_name", common.ErrValidation)
	}
	if len(req.Password) > maxPasswordLength {
		return nil, common.NewFieldError("password", common.ErrValidation)
	}

	repo := s.accounts(s.repos.Conn())

	if _, err := repo.FindByEmail(ctx, email); err == nil {
		return nil, common.ErrEmailTaken
	} else if !errors.Is(err, common.ErrorNotFound) {
		return nil, err
	}

	account := &models.Account{
		Email:     email,
		FirstName: strings.TrimSpace(req.FirstName),
		LastName:  strings.TrimSpace(req.LastName),
		IsActive:  req.IsActive == nil || *req.IsActive,
		IsStaff:   req.IsStaff,
	}
	if req.Password != "" {
		hash, err := s.hasher.Hash(req.Password)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
		account.PasswordHash = hash
	}
	if err := s.fillKeys(ctx, repo, account); err != nil {
		return nil, err
	}

	account, err := repo.Create(ctx, account)
	if err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "account created", "account_id", account.ID, "bulk", bulk)

	if !bulk {
		for _, hook := range s.hooks {
			if err := hook(ctx, account); err != nil {
				s.logger.Error(ctx, "post-create hook failed", "account_id", account.ID, "error", err)
			}
		}
	}
	return account, nil
}

// Login authenticates by email and password or passwordless key. When that
// fails and no password was supplied for an existing account, passwordless
// accounts are mailed a login link (common.ErrLoginEmailSent) and password
// accounts are asked for one (common.ErrPasswordRequired).
func (s *AccountService) Login(ctx context.Context, req LoginRequest) (*models.Account, error) {
	account, err := s.auth.Authenticate(ctx, Credentials{
		Email:           req.Email,
		Username:        req.Username,
		Password:        req.Password,
		PasswordlessKey: req.PasswordlessKey,
	})
	if err != nil {
		return nil, err
	}
	if account != nil {
		return account, nil
	}
	if req.Password != "" {
		return nil, common.ErrorUnauthorized
	}

	email := req.Email
	if req.Username != "" {
		email = req.Username
	}
	if strings.TrimSpace(email) == "" {
		return nil, common.ErrorUnauthorized
	}

	existing, err := found(s.accounts(s.repos.Conn()).FindByEmail(ctx, email))
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, common.ErrorUnauthorized
	}
	if !existing.IsPasswordless() {
		return nil, common.ErrPasswordRequired
	}
	if err := s.mailer.SendPasswordlessLogin(ctx, existing); err != nil {
		s.logger.Error(ctx, "login mail not sent", "account_id", existing.ID, "error", err)
	}
	return nil, common.ErrLoginEmailSent
}

// ChangeEmail checks, in order: all fields present, password correct, the two
// addresses equal ignoring case and surrounding space, address shape. The
// first failing check decides the error.
func (s *AccountService) ChangeEmail(ctx context.Context, account *models.Account, req ChangeEmailRequest) error {
	if req.Email == "" || req.ConfirmEmail == "" || req.CurrentPassword == "" {
		return common.ErrEmailMissing
	}
	if !s.hasher.Compare(account.PasswordHash, req.CurrentPassword) {
		return common.ErrBadPassword
	}
	email := models.NormalizeEmail(req.Email)
	if email != models.NormalizeEmail(req.ConfirmEmail) {
		return common.ErrEmailMismatch
	}
	if validateEmail(email) != nil {
		return common.ErrEmailInvalid
	}

	return s.update(ctx, s.accounts(s.repos.Conn()), account, accounts.Changes{Email: &email})
}

// ChangePassword checks required fields, then that the passwords match, then
// the proof. A reset key proof is rotated in the same transaction that stores
// the new password, so it cannot be used twice.
func (s *AccountService) ChangePassword(ctx context.Context, account *models.Account, req ChangePasswordRequest) error {
	if req.Password == "" || req.PasswordRepeat == "" ||
		(req.Proof.CurrentPassword == "" && req.Proof.ResetKey == "") {
		return common.ErrValidation
	}
	if req.Password != req.PasswordRepeat {
		return common.ErrPasswordMismatch
	}
	if len(req.Password) > maxPasswordLength {
		return common.NewFieldError("password", common.ErrValidation)
	}

	viaResetKey := req.Proof.CurrentPassword == ""
	if viaResetKey {
		if account.PasswordResetKey == "" ||
			subtle.ConstantTimeCompare([]byte(account.PasswordResetKey), []byte(req.Proof.ResetKey)) != 1 {
			return common.ErrBadPassword
		}
	} else if !s.hasher.Compare(account.PasswordHash, req.Proof.CurrentPassword) {
		return common.ErrBadPassword
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	if !viaResetKey {
		return s.update(ctx, s.accounts(s.repos.Conn()), account, accounts.Changes{PasswordHash: &hash})
	}

	err = s.repos.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.accounts(tx)

		next, err := s.keys.Key(ctx, string(models.PasswordResetKey), keyExists(repo, models.PasswordResetKey))
		if err != nil {
			if !errors.Is(err, common.ErrKeyGenerationExhausted) {
				return err
			}
			next = ""
		}

		won, err := repo.RotateKey(ctx, account.ID, models.PasswordResetKey, req.Proof.ResetKey, next)
		if err != nil {
			return err
		}
		if !won {
			return common.ErrBadPassword
		}

		return repo.Update(ctx, account.ID, accounts.Changes{PasswordHash: &hash})
	})
	if err != nil {
		return err
	}
	return s.reload(ctx, s.accounts(s.repos.Conn()), account)
}

// ResetPassword finds the account holding resetKey and changes its password
// with the key as proof. Unknown keys report common.ErrBadPassword.
func (s *AccountService) ResetPassword(ctx context.Context, resetKey string, req ChangePasswordRequest) (*models.Account, error) {
	if resetKey == "" || req.Password == "" || req.PasswordRepeat == "" {
		return nil, common.ErrValidation
	}
	if req.Password != req.PasswordRepeat {
		return nil, common.ErrPasswordMismatch
	}

	account, err := found(s.accounts(s.repos.Conn()).FindByKey(ctx, models.PasswordResetKey, resetKey))
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, common.ErrBadPassword
	}

	req.Proof = PasswordProof{ResetKey: resetKey}
	if err := s.ChangePassword(ctx, account, req); err != nil {
		return nil, err
	}
	return account, nil
}

// ChangeSettings updates the whitelisted profile fields.
func (s *AccountService) ChangeSettings(ctx context.Context, account *models.Account, upd SettingsUpdate) error {
	changes := accounts.Changes{FirstName: upd.FirstName, LastName: upd.LastName}
	return s.update(ctx, s.accounts(s.repos.Conn()), account, changes)
}

// RequestPasswordReset mails a reset link to the active account registered to
// email. Unknown or inactive addresses report common.ErrorNotFound.
func (s *AccountService) RequestPasswordReset(ctx context.Context, email string) error {
	repo := s.accounts(s.repos.Conn())

	account, err := repo.FindByEmail(ctx, email)
	if err != nil {
		return err
	}
	if !account.IsActive {
		return common.ErrorNotFound
	}

	if account.PasswordResetKey == "" {
		if err := s.installMissingKeys(ctx, repo, account.ID); err != nil {
			return err
		}
		if err := s.reload(ctx, repo, account); err != nil {
			return err
		}
		if account.PasswordResetKey == "" {
			return common.ErrKeyGenerationExhausted
		}
	}

	if err := s.mailer.SendPasswordReset(ctx, account); err != nil {
		s.logger.Error(ctx, "reset mail not sent", "account_id", account.ID, "error", err)
	}
	return nil
}

// RequestPasswordlessLogin mails a login link to passwordless accounts and
// does nothing for the rest.
func (s *AccountService) RequestPasswordlessLogin(ctx context.Context, account *models.Account) error {
	if !account.IsPasswordless() {
		return nil
	}
	if err := s.mailer.SendPasswordlessLogin(ctx, account); err != nil {
		s.logger.Error(ctx, "login mail not sent", "account_id", account.ID, "error", err)
	}
	return nil
}

// update writes changes for account, installs any missing key and refreshes
// account from storage. Only the named columns are written, so keys rotated
// since account was loaded stay rotated.
func (s *AccountService) update(ctx context.Context, repo accounts.Repository, account *models.Account, changes accounts.Changes) error {
	if err := repo.Update(ctx, account.ID, changes); err != nil {
		return err
	}
	if err := s.installMissingKeys(ctx, repo, account.ID); err != nil {
		return err
	}
	return s.reload(ctx, repo, account)
}

// installMissingKeys generates a key for every empty key column of the stored
// account. Each one goes in as a swap from empty; losing the swap means
// another writer already set it. Exhaustion leaves the column empty.
func (s *AccountService) installMissingKeys(ctx context.Context, repo accounts.Repository, id string) error {
	stored, err := repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	for _, field := range models.KeyFields {
		if stored.Key(field) != "" {
			continue
		}
		key, err := s.keys.Key(ctx, string(field), keyExists(repo, field))
		if err != nil {
			if errors.Is(err, common.ErrKeyGenerationExhausted) {
				continue
			}
			return err
		}
		if _, err := repo.RotateKey(ctx, id, field, "", key); err != nil {
			return err
		}
	}
	return nil
}

func (s *AccountService) reload(ctx context.Context, repo accounts.Repository, account *models.Account) error {
	fresh, err := repo.FindByID(ctx, account.ID)
	if err != nil {
		return err
	}
	*account = *fresh
	return nil
}

// fillKeys generates every empty key field of an account not yet stored.
// Exhaustion leaves the field empty.
func (s *AccountService) fillKeys(ctx context.Context, repo accounts.Repository, account *models.Account) error {
	for _, field := range models.KeyFields {
		if account.Key(field) != "" {
			continue
		}
		key, err := s.keys.Key(ctx, string(field), keyExists(repo, field))
		if err != nil {
			if errors.Is(err, common.ErrKeyGenerationExhausted) {
				continue
			}
			return err
		}
		account.SetKey(field, key)
	}
	return nil
}

func (s *AccountService) accounts(db dbx.DBTX) accounts.Repository {
	return s.repos.Accounts(db)
}

func validateEmail(email string) error {
	if email == "" || len(email) > maxEmailLength || !emailPattern.MatchString(email) {
		return common.ErrValidation
	}
	return nil
}
