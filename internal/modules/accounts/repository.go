// Package accounts provides storage for financial accounts tracked by the
// bookkeeper.
package accounts

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/bookkeeper/internal/domain"
)

// accountsColumns is the list of columns for the accounts table.
// Used to avoid SELECT * which can break when schema changes.
const accountsColumns = `id, user_id, provider, institution_id, account_type, currency, mask, display_name, is_active, created_at`

// Repository handles account database operations
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new account repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "accounts").Logger(),
	}
}

// Create inserts a new account. If no id is provided, one is generated.
func (r *Repository) Create(account domain.Account) (*domain.Account, error) {
	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO accounts
		(id, user_id, provider, institution_id, account_type, currency, mask, display_name, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.Exec(query,
		account.ID,
		account.UserID,
		account.Provider,
		account.InstitutionID,
		string(account.AccountType),
		string(account.Currency),
		account.Mask,
		account.DisplayName,
		boolToInt(account.IsActive),
		account.CreatedAt.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	r.log.Info().
		Str("account_id", account.ID).
		Str("account_type", string(account.AccountType)).
		Msg("Account created")

	return &account, nil
}

// GetByID retrieves an account by id. Returns a NotFoundError when the
// account does not exist.
func (r *Repository) GetByID(id string) (*domain.Account, error) {
	query := "SELECT " + accountsColumns + " FROM accounts WHERE id = ?"

	account, err := scanAccount(r.db.QueryRow(query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewNotFoundError("account", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	return account, nil
}

// ListActive returns all active accounts
func (r *Repository) ListActive() ([]domain.Account, error) {
	query := "SELECT " + accountsColumns + " FROM accounts WHERE is_active = 1 ORDER BY created_at"

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list active accounts: %w", err)
	}
	defer rows.Close()

	return collectAccounts(rows)
}

// ListWithActivitySince returns active accounts that have at least one
// canonical transaction posted at or after the given time. Used by the
// transfer-detection sweep to skip dormant accounts.
func (r *Repository) ListWithActivitySince(since time.Time) ([]domain.Account, error) {
	query := `
		SELECT ` + accountsColumns + `
		FROM accounts
		WHERE is_active = 1
		  AND EXISTS (
			SELECT 1 FROM canonical_transactions ct
			WHERE ct.account_id = accounts.id AND ct.posted_at >= ?
		  )
		ORDER BY created_at
	`

	rows, err := r.db.Query(query, since.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts with activity: %w", err)
	}
	defer rows.Close()

	return collectAccounts(rows)
}

// SetActive updates the active flag for an account
func (r *Repository) SetActive(id string, active bool) error {
	result, err := r.db.Exec("UPDATE accounts SET is_active = ? WHERE id = ?", boolToInt(active), id)
	if err != nil {
		return fmt.Errorf("failed to update account active flag: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if affected == 0 {
		return domain.NewNotFoundError("account", id)
	}

	return nil
}

// scanner abstracts *sql.Row and *sql.Rows for shared scan logic
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanAccount(s scanner) (*domain.Account, error) {
	var account domain.Account
	var accountType, currency string
	var isActive int
	var createdAt int64

	err := s.Scan(
		&account.ID,
		&account.UserID,
		&account.Provider,
		&account.InstitutionID,
		&accountType,
		&currency,
		&account.Mask,
		&account.DisplayName,
		&isActive,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}

	account.AccountType = domain.AccountType(accountType)
	account.Currency = domain.Currency(currency)
	account.IsActive = isActive != 0
	account.CreatedAt = time.Unix(createdAt, 0)

	return &account, nil
}

func collectAccounts(rows *sql.Rows) ([]domain.Account, error) {
	var accounts []domain.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, *account)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate accounts: %w", err)
	}
	return accounts, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
