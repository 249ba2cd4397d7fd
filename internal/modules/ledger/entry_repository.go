// Package ledger translates canonical transactions into double-entry
// postings against general-ledger account paths.
package ledger

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/bookkeeper/internal/database"
	"github.com/aristath/bookkeeper/internal/domain"
)

// EntryRepository handles ledger entry persistence
type EntryRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewEntryRepository creates a new ledger entry repository
func NewEntryRepository(db *sql.DB, log zerolog.Logger) *EntryRepository {
	return &EntryRepository{
		db:  db,
		log: log.With().Str("repo", "ledger_entries").Logger(),
	}
}

// ReplaceForTxn atomically swaps the entries for a transaction: existing
// rows are deleted and the new set inserted inside one transaction, so a
// reader never observes a partially posted state.
func (r *EntryRepository) ReplaceForTxn(txnID string, entries []domain.LedgerEntry) error {
	now := time.Now().Unix()

	err := database.WithTransaction(r.db, func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM ledger_entries WHERE txn_id = ?`, txnID); err != nil {
			return fmt.Errorf("failed to clear existing entries: %w", err)
		}
		for _, entry := range entries {
			_, err := tx.Exec(`
				INSERT INTO ledger_entries (txn_id, line_no, gl_account, amount, sign, created_at)
				VALUES (?, ?, ?, ?, ?, ?)`,
				txnID, entry.LineNo, entry.GLAccount, entry.Amount,
				string(entry.Sign), now)
			if err != nil {
				return fmt.Errorf("failed to insert entry line %d: %w", entry.LineNo, err)
			}
		}
		return nil
	})
	if err != nil {
		// The transaction rolled back, so no partial entries remain and a
		// retry is safe.
		return domain.NewTransientStoreError("ledger repost", err)
	}
	return nil
}

// ListForTxn returns the current entries for a transaction in line order
func (r *EntryRepository) ListForTxn(txnID string) ([]domain.LedgerEntry, error) {
	rows, err := r.db.Query(`
		SELECT id, txn_id, line_no, gl_account, amount, sign, created_at
		FROM ledger_entries
		WHERE txn_id = ?
		ORDER BY line_no ASC`, txnID)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.LedgerEntry
	for rows.Next() {
		var entry domain.LedgerEntry
		var sign string
		var createdAt int64
		err := rows.Scan(&entry.ID, &entry.TxnID, &entry.LineNo,
			&entry.GLAccount, &entry.Amount, &sign, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		entry.Sign = domain.EntrySign(sign)
		entry.CreatedAt = time.Unix(createdAt, 0)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate ledger entries: %w", err)
	}
	return entries, nil
}

// SignedSumForGL returns the signed balance of a GL account from entries
// posted up to asOf. Debits increase the balance, credits decrease it.
func (r *EntryRepository) SignedSumForGL(glAccount string, asOf time.Time) (float64, error) {
	var sum sql.NullFloat64
	err := r.db.QueryRow(`
		SELECT SUM(CASE WHEN sign = 'debit' THEN amount ELSE -amount END)
		FROM ledger_entries
		WHERE gl_account = ? AND created_at <= ?`,
		glAccount, asOf.Unix()).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("failed to sum GL %s: %w", glAccount, err)
	}
	return sum.Float64, nil
}
