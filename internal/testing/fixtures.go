package testing

import (
	"testing"
	"time"

	"github.com/aristath/bookkeeper/internal/database"
	"github.com/aristath/bookkeeper/internal/domain"
)

// SeedAccount inserts an account row directly, bypassing the repository.
// Use for tests that need an account to satisfy foreign keys without
// caring about repository behavior.
func SeedAccount(t *testing.T, db *database.DB, account domain.Account) domain.Account {
	t.Helper()

	if account.ID == "" {
		account.ID = "acc-" + account.DisplayName
	}
	if account.Provider == "" {
		account.Provider = "plaid"
	}
	if account.UserID == "" {
		account.UserID = "user-test"
	}
	if account.Currency == "" {
		account.Currency = domain.CurrencyUSD
	}
	if account.AccountType == "" {
		account.AccountType = domain.AccountTypeBankChecking
	}
	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now()
	}

	isActive := 0
	if account.IsActive {
		isActive = 1
	}

	_, err := db.Exec(`
		INSERT INTO accounts
		(id, user_id, provider, institution_id, account_type, currency, mask, display_name, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		account.ID,
		account.UserID,
		account.Provider,
		account.InstitutionID,
		string(account.AccountType),
		string(account.Currency),
		account.Mask,
		account.DisplayName,
		isActive,
		account.CreatedAt.Unix(),
	)
	if err != nil {
		t.Fatalf("Failed to seed account %s: %v", account.ID, err)
	}

	return account
}

// Date builds a UTC timestamp for test data without the time.Date noise.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 12, 0, 0, 0, time.UTC)
}
