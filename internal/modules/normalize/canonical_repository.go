package normalize

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/bookkeeper/internal/domain"
)

// canonicalColumns is the full column list for canonical transaction scans
const canonicalColumns = `id, group_key, account_id, posted_at, amount,
	description_norm, counterparty_norm, tx_type, status, raw_ids_json,
	created_at, updated_at`

// CanonicalRepository handles canonical transaction persistence
type CanonicalRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewCanonicalRepository creates a new canonical transaction repository
func NewCanonicalRepository(db *sql.DB, log zerolog.Logger) *CanonicalRepository {
	return &CanonicalRepository{
		db:  db,
		log: log.With().Str("repo", "canonical").Logger(),
	}
}

// Create inserts a new canonical transaction, assigning an id if unset
func (r *CanonicalRepository) Create(txn *domain.CanonicalTransaction) error {
	if txn.ID == "" {
		txn.ID = uuid.New().String()
	}
	now := time.Now()
	txn.CreatedAt = now
	txn.UpdatedAt = now

	rawIDs, err := json.Marshal(txn.RawIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal raw ids: %w", err)
	}

	_, err = r.db.Exec(`
		INSERT INTO canonical_transactions (`+canonicalColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		txn.ID, txn.GroupKey, txn.AccountID, txn.PostedAt.Unix(), txn.Amount,
		txn.DescriptionNorm, nullString(txn.CounterpartyNorm),
		string(txn.TxType), string(txn.Status), string(rawIDs),
		now.Unix(), now.Unix())
	if err != nil {
		return fmt.Errorf("failed to create canonical transaction: %w", err)
	}
	return nil
}

// Update rewrites the mutable fields of an existing canonical transaction
func (r *CanonicalRepository) Update(txn *domain.CanonicalTransaction) error {
	txn.UpdatedAt = time.Now()

	rawIDs, err := json.Marshal(txn.RawIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal raw ids: %w", err)
	}

	result, err := r.db.Exec(`
		UPDATE canonical_transactions
		SET posted_at = ?, amount = ?, description_norm = ?,
		    counterparty_norm = ?, tx_type = ?, status = ?,
		    raw_ids_json = ?, updated_at = ?
		WHERE id = ?`,
		txn.PostedAt.Unix(), txn.Amount, txn.DescriptionNorm,
		nullString(txn.CounterpartyNorm), string(txn.TxType),
		string(txn.Status), string(rawIDs), txn.UpdatedAt.Unix(), txn.ID)
	if err != nil {
		return fmt.Errorf("failed to update canonical transaction: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if rows == 0 {
		return domain.NewNotFoundError("canonical transaction", txn.ID)
	}
	return nil
}

// GetByID retrieves a canonical transaction by id
func (r *CanonicalRepository) GetByID(id string) (*domain.CanonicalTransaction, error) {
	row := r.db.QueryRow(`
		SELECT `+canonicalColumns+`
		FROM canonical_transactions
		WHERE id = ?`, id)

	txn, err := scanCanonical(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NewNotFoundError("canonical transaction", id)
		}
		return nil, fmt.Errorf("failed to get canonical transaction: %w", err)
	}
	return txn, nil
}

// FindMatch locates the canonical transaction a raw record resolves into:
// same account, group key and amount, posted within the window around the
// candidate time. Returns nil when no prior transaction matches.
func (r *CanonicalRepository) FindMatch(accountID, groupKey string, amount float64, postedAt time.Time, window time.Duration) (*domain.CanonicalTransaction, error) {
	row := r.db.QueryRow(`
		SELECT `+canonicalColumns+`
		FROM canonical_transactions
		WHERE account_id = ? AND group_key = ? AND amount = ?
		  AND posted_at BETWEEN ? AND ?
		ORDER BY posted_at ASC
		LIMIT 1`,
		accountID, groupKey, amount,
		postedAt.Add(-window).Unix(), postedAt.Add(window).Unix())

	txn, err := scanCanonical(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find matching transaction: %w", err)
	}
	return txn, nil
}

// FindPendingCandidates returns pending transactions on the same account with
// the same amount inside the window around postedAt, excluding excludeID.
// Used by the pending merger to find authorization-time duplicates.
func (r *CanonicalRepository) FindPendingCandidates(accountID string, amount float64, postedAt time.Time, window time.Duration, excludeID string) ([]domain.CanonicalTransaction, error) {
	rows, err := r.db.Query(`
		SELECT `+canonicalColumns+`
		FROM canonical_transactions
		WHERE account_id = ? AND status = ? AND amount = ?
		  AND posted_at BETWEEN ? AND ?
		  AND id != ?
		ORDER BY posted_at ASC`,
		accountID, string(domain.TxStatusPending), amount,
		postedAt.Add(-window).Unix(), postedAt.Add(window).Unix(), excludeID)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending candidates: %w", err)
	}
	defer rows.Close()

	return collectCanonical(rows)
}

// ListInWindow returns all transactions posted inside [start, end], across
// accounts, ordered by posted time then id for deterministic iteration.
func (r *CanonicalRepository) ListInWindow(start, end time.Time) ([]domain.CanonicalTransaction, error) {
	rows, err := r.db.Query(`
		SELECT `+canonicalColumns+`
		FROM canonical_transactions
		WHERE posted_at BETWEEN ? AND ?
		ORDER BY posted_at ASC, id ASC`,
		start.Unix(), end.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions in window: %w", err)
	}
	defer rows.Close()

	return collectCanonical(rows)
}

// ListByAccount returns the most recent transactions for an account
func (r *CanonicalRepository) ListByAccount(accountID string, limit int) ([]domain.CanonicalTransaction, error) {
	rows, err := r.db.Query(`
		SELECT `+canonicalColumns+`
		FROM canonical_transactions
		WHERE account_id = ?
		ORDER BY posted_at DESC, id DESC
		LIMIT ?`, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query account transactions: %w", err)
	}
	defer rows.Close()

	return collectCanonical(rows)
}

// ListUnclassified returns posted transactions with no classification row,
// or an unlocked classification below the confidence threshold. Capped at
// limit so periodic sweeps stay bounded.
func (r *CanonicalRepository) ListUnclassified(confidenceBelow float64, limit int) ([]domain.CanonicalTransaction, error) {
	rows, err := r.db.Query(`
		SELECT `+canonicalColumns+`
		FROM canonical_transactions
		WHERE status = ?
		  AND id NOT IN (
			SELECT txn_id FROM classifications
			WHERE locked_by_user = 1 OR confidence >= ?
		  )
		ORDER BY posted_at ASC
		LIMIT ?`,
		string(domain.TxStatusPosted), confidenceBelow, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query unclassified transactions: %w", err)
	}
	defer rows.Close()

	return collectCanonical(rows)
}

// Delete removes a canonical transaction. Only the pending-merge path uses
// this, after folding the row's raw ids into the surviving transaction.
func (r *CanonicalRepository) Delete(id string) error {
	_, err := r.db.Exec(`DELETE FROM canonical_transactions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete canonical transaction: %w", err)
	}
	return nil
}

// scanner abstracts over sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...any) error
}

func scanCanonical(s scanner) (*domain.CanonicalTransaction, error) {
	var txn domain.CanonicalTransaction
	var counterparty sql.NullString
	var txType, status, rawIDs string
	var postedAt, createdAt, updatedAt int64

	err := s.Scan(&txn.ID, &txn.GroupKey, &txn.AccountID, &postedAt,
		&txn.Amount, &txn.DescriptionNorm, &counterparty, &txType, &status,
		&rawIDs, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	txn.PostedAt = time.Unix(postedAt, 0)
	txn.CreatedAt = time.Unix(createdAt, 0)
	txn.UpdatedAt = time.Unix(updatedAt, 0)
	txn.CounterpartyNorm = counterparty.String
	txn.TxType = domain.TxType(txType)
	txn.Status = domain.TxStatus(status)

	if err := json.Unmarshal([]byte(rawIDs), &txn.RawIDs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal raw ids: %w", err)
	}
	return &txn, nil
}

func collectCanonical(rows *sql.Rows) ([]domain.CanonicalTransaction, error) {
	var txns []domain.CanonicalTransaction
	for rows.Next() {
		txn, err := scanCanonical(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan canonical transaction: %w", err)
		}
		txns = append(txns, *txn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate canonical transactions: %w", err)
	}
	return txns, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
