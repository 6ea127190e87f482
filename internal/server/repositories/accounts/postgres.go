package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/slothauth/internal/common"
	"github.com/dmitrijs2005/slothauth/internal/dbx"
	"github.com/dmitrijs2005/slothauth/internal/server/models"
	"github.com/google/uuid"
)

// emailConstraint is the unique index on lower(email).
const emailConstraint = "accounts_email_key"

const accountColumns = `id, email, password_hash, first_name, last_name, is_active, is_staff,
		passwordless_key, one_time_authentication_key, password_reset_key, date_joined`

// PostgresRepository implements Repository over dbx.DBTX
// (satisfied by *sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*models.Account, error) {
	a := &models.Account{}
	err := row.Scan(&a.ID, &a.Email, &a.PasswordHash, &a.FirstName, &a.LastName, &a.IsActive, &a.IsStaff,
		&a.PasswordlessKey, &a.OneTimeAuthenticationKey, &a.PasswordResetKey, &a.DateJoined)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return a, nil
}

func (r *PostgresRepository) Create(ctx context.Context, account *models.Account) (*models.Account, error) {
	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	if account.DateJoined.IsZero() {
		account.DateJoined = time.Now().UTC()
	}
	account.Email = models.NormalizeEmail(account.Email)

	query :=
		`INSERT INTO accounts (` + accountColumns + `)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := r.db.ExecContext(ctx, query,
		account.ID, account.Email, account.PasswordHash, account.FirstName, account.LastName,
		account.IsActive, account.IsStaff, account.PasswordlessKey, account.OneTimeAuthenticationKey,
		account.PasswordResetKey, account.DateJoined)
	if err != nil {
		if dbx.IsUniqueViolation(err, emailConstraint) {
			return nil, common.ErrEmailTaken
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return account, nil
}

func (r *PostgresRepository) FindByID(ctx context.Context, id string) (*models.Account, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, common.ErrorNotFound
	}

	query :=
		`SELECT ` + accountColumns + ` FROM accounts
		 WHERE id = $1`

	return scanAccount(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepository) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	query :=
		`SELECT ` + accountColumns + ` FROM accounts
		 WHERE lower(email) = $1
		 ORDER BY date_joined DESC, id DESC
		 LIMIT 1`

	return scanAccount(r.db.QueryRowContext(ctx, query, models.NormalizeEmail(email)))
}

func (r *PostgresRepository) FindByKey(ctx context.Context, field models.KeyField, value string) (*models.Account, error) {
	if !field.Valid() {
		return nil, fmt.Errorf("unknown key field %q", field)
	}
	if value == "" {
		return nil, common.ErrorNotFound
	}

	query := fmt.Sprintf(
		`SELECT `+accountColumns+` FROM accounts
		 WHERE %s = $1
		 ORDER BY date_joined DESC, id DESC
		 LIMIT 1`, field)

	return scanAccount(r.db.QueryRowContext(ctx, query, value))
}

func (r *PostgresRepository) KeyExists(ctx context.Context, field models.KeyField, value string) (bool, error) {
	if !field.Valid() {
		return false, fmt.Errorf("unknown key field %q", field)
	}

	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM accounts WHERE %s = $1)`, field)

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, value).Scan(&exists); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return exists, nil
}

func (r *PostgresRepository) Update(ctx context.Context, id string, changes Changes) error {
	if changes.Empty() {
		_, err := r.FindByID(ctx, id)
		return err
	}

	sets := make([]string, 0, 6)
	args := []any{id}
	set := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if changes.Email != nil {
		set("email", models.NormalizeEmail(*changes.Email))
	}
	if changes.PasswordHash != nil {
		set("password_hash", *changes.PasswordHash)
	}
	if changes.FirstName != nil {
		set("first_name", *changes.FirstName)
	}
	if changes.LastName != nil {
		set("last_name", *changes.LastName)
	}
	if changes.IsActive != nil {
		set("is_active", *changes.IsActive)
	}
	if changes.IsStaff != nil {
		set("is_staff", *changes.IsStaff)
	}

	query := `UPDATE accounts SET ` + strings.Join(sets, ", ") + ` WHERE id = $1`

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		if dbx.IsUniqueViolation(err, emailConstraint) {
			return common.ErrEmailTaken
		}
		return fmt.Errorf("db error: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) RotateKey(ctx context.Context, id string, field models.KeyField, oldValue, newValue string) (bool, error) {
	if !field.Valid() {
		return false, fmt.Errorf("unknown key field %q", field)
	}

	query := fmt.Sprintf(
		`UPDATE accounts SET %[1]s = $1
		 WHERE id = $2 AND %[1]s = $3`, field)

	res, err := r.db.ExecContext(ctx, query, newValue, id, oldValue)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return n == 1, nil
}
