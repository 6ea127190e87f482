// Package admin implements the operator commands of slothauth: creating a
// single account interactively and importing accounts in bulk.
package admin

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/dmitrijs2005/slothauth/internal/common"
	"github.com/dmitrijs2005/slothauth/internal/logging"
	"github.com/dmitrijs2005/slothauth/internal/server/models"
	"github.com/dmitrijs2005/slothauth/internal/server/services"
)

// Commands lists the sub-commands understood by Run.
var Commands = []string{"create", "import"}

var ErrUsage = errors.New("usage: admin create [-email addr] [-first name] [-last name] [-staff] [-passwordless] | admin import <file.json>")

// AccountCreator is the part of the account service used by the admin tool.
type AccountCreator interface {
	Signup(ctx context.Context, req services.SignupRequest) (*models.Account, error)
	Import(ctx context.Context, reqs []services.SignupRequest) ([]*models.Account, error)
}

type App struct {
	accounts AccountCreator
	reader   *bufio.Reader
	out      io.Writer
	logger   logging.Logger

	getPassword func(prompt string, w io.Writer) ([]byte, error)
}

func NewApp(accounts AccountCreator, in io.Reader, out io.Writer, logger logging.Logger) *App {
	return &App{
		accounts:    accounts,
		reader:      bufio.NewReader(in),
		out:         out,
		logger:      logging.OrDiscard(logger).With("module", "admin"),
		getPassword: GetPassword,
	}
}

// CommandArgs returns the part of args starting at the first known command,
// dropping the server configuration flags in front of it.
func CommandArgs(args []string) []string {
	for i, arg := range args {
		if slices.Contains(Commands, arg) {
			return args[i:]
		}
	}
	return nil
}

// Run executes the command named by args[0].
func (a *App) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return ErrUsage
	}

	switch args[0] {
	case "create":
		return a.Create(ctx, args[1:])
	case "import":
		if len(args) != 2 {
			return ErrUsage
		}
		return a.Import(ctx, args[1])
	default:
		return ErrUsage
	}
}

// Create registers one account. Missing details are prompted for; the
// password is read twice without echo unless -passwordless is given.
func (a *App) Create(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("create", flag.ContinueOnError)
	fs.SetOutput(a.out)

	req := services.SignupRequest{}
	fs.StringVar(&req.Email, "email", "", "account email")
	fs.StringVar(&req.FirstName, "first", "", "first name")
	fs.StringVar(&req.LastName, "last", "", "last name")
	fs.BoolVar(&req.IsStaff, "staff", false, "grant staff status")
	passwordless := fs.Bool("passwordless", false, "create without a password")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if req.Email == "" {
		email, err := GetSimpleText(a.reader, "Email", a.out)
		if err != nil {
			return err
		}
		req.Email = email
	}

	if !*passwordless {
		password, err := a.readNewPassword()
		if err != nil {
			return err
		}
		req.Password = password
	}

	account, err := a.accounts.Signup(ctx, req)
	if err != nil {
		return err
	}

	a.logger.Info(ctx, "account created", "account_id", account.ID, "staff", account.IsStaff)
	fmt.Fprintf(a.out, "Created account %s (%s)\n", account.Email, account.ID)
	return nil
}

func (a *App) readNewPassword() (string, error) {
	first, err := a.getPassword("Password", a.out)
	if err != nil {
		return "", err
	}
	defer common.WipeByteArray(first)

	second, err := a.getPassword("Password (again)", a.out)
	if err != nil {
		return "", err
	}
	defer common.WipeByteArray(second)

	if string(first) != string(second) {
		return "", common.ErrPasswordMismatch
	}
	if len(first) == 0 {
		return "", common.NewFieldError("password", common.ErrValidation)
	}
	return string(first), nil
}

// Import creates the accounts listed in a JSON array file without running
// post-create hooks. Accounts created before a failing record are kept.
func (a *App) Import(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var reqs []services.SignupRequest
	if err := json.Unmarshal(data, &reqs); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	created, err := a.accounts.Import(ctx, reqs)
	fmt.Fprintf(a.out, "Imported %d of %d accounts\n", len(created), len(reqs))
	if err != nil {
		return err
	}
	a.logger.Info(ctx, "import finished", "file", path, "count", len(created))
	return nil
}
