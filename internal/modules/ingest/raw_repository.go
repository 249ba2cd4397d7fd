package ingest

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

// rawColumns is the list of columns for the raw_transactions table.
// Column order must match scanRaw().
const rawColumns = `id, provider, account_id, hash, provider_tx_id, ts_posted, ts_auth, amount, currency, description_raw, counterparty_raw, balance_after, meta_json, created_at`

// RawRepository handles raw transaction database operations
type RawRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRawRepository creates a new raw transaction repository
func NewRawRepository(db *sql.DB, log zerolog.Logger) *RawRepository {
	return &RawRepository{
		db:  db,
		log: log.With().Str("repo", "raw_transactions").Logger(),
	}
}

// FindExisting looks up a raw transaction by either identity: the
// (provider, account, hash) triple, or the (provider, provider-native id)
// pair when the provider supplies its own id. Returns nil when no row
// matches.
func (r *RawRepository) FindExisting(provider, accountID, hash, providerTxID string) (*domain.RawTransaction, error) {
	query := "SELECT " + rawColumns + ` FROM raw_transactions
		WHERE (provider = ? AND account_id = ? AND hash = ?)`
	args := []interface{}{provider, accountID, hash}

	if providerTxID != "" {
		query += ` OR (provider = ? AND provider_tx_id = ?)`
		args = append(args, provider, providerTxID)
	}
	query += " LIMIT 1"

	raw, err := scanRaw(r.db.QueryRow(query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find raw transaction: %w", err)
	}

	return raw, nil
}

// Create inserts a new raw transaction. If no id is provided, one is
// generated.
func (r *RawRepository) Create(raw domain.RawTransaction) (*domain.RawTransaction, error) {
	if raw.ID == "" {
		raw.ID = uuid.NewString()
	}
	if raw.CreatedAt.IsZero() {
		raw.CreatedAt = time.Now()
	}

	metaJSON, err := json.Marshal(raw.Meta)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal raw transaction meta: %w", err)
	}
	if raw.Meta == nil {
		metaJSON = []byte("{}")
	}

	query := `
		INSERT INTO raw_transactions
		(id, provider, account_id, hash, provider_tx_id, ts_posted, ts_auth, amount, currency, description_raw, counterparty_raw, balance_after, meta_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.Exec(query,
		raw.ID,
		raw.Provider,
		raw.AccountID,
		raw.Hash,
		nullString(raw.ProviderTxID),
		nullTime(raw.TimestampPosted),
		nullTime(raw.TimestampAuth),
		raw.Amount,
		string(raw.Currency),
		raw.DescriptionRaw,
		nullString(raw.CounterpartyRaw),
		nullFloat64Ptr(raw.BalanceAfter),
		string(metaJSON),
		raw.CreatedAt.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create raw transaction: %w", err)
	}

	r.log.Debug().
		Str("raw_id", raw.ID).
		Str("account_id", raw.AccountID).
		Float64("amount", raw.Amount).
		Msg("Raw transaction created")

	return &raw, nil
}

// UpdateCorrections applies the only mutations a raw record ever receives:
// timestamp and post-balance corrections from re-delivery of the same
// record. Amount and description are immutable.
func (r *RawRepository) UpdateCorrections(id string, posted, auth *time.Time, balanceAfter *float64) (*domain.RawTransaction, error) {
	query := `
		UPDATE raw_transactions
		SET ts_posted     = COALESCE(?, ts_posted),
		    ts_auth       = COALESCE(?, ts_auth),
		    balance_after = COALESCE(?, balance_after)
		WHERE id = ?
	`

	_, err := r.db.Exec(query, nullTime(posted), nullTime(auth), nullFloat64Ptr(balanceAfter), id)
	if err != nil {
		return nil, fmt.Errorf("failed to update raw transaction corrections: %w", err)
	}

	return r.GetByID(id)
}

// GetByID retrieves a raw transaction by id
func (r *RawRepository) GetByID(id string) (*domain.RawTransaction, error) {
	query := "SELECT " + rawColumns + " FROM raw_transactions WHERE id = ?"

	raw, err := scanRaw(r.db.QueryRow(query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewNotFoundError("raw transaction", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get raw transaction: %w", err)
	}

	return raw, nil
}

// Delete removes a raw transaction. Raw records are otherwise immutable;
// only the pending-merge path is allowed to fold one away.
func (r *RawRepository) Delete(id string) error {
	if _, err := r.db.Exec("DELETE FROM raw_transactions WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete raw transaction: %w", err)
	}
	return nil
}

// LatestReportedBalance returns the most recent provider-reported
// post-balance for an account at or before asOf, or nil when the provider
// never reported one. The reconciler uses this as the institution balance.
func (r *RawRepository) LatestReportedBalance(accountID string, asOf time.Time) (*float64, error) {
	query := `
		SELECT balance_after FROM raw_transactions
		WHERE account_id = ?
		  AND balance_after IS NOT NULL
		  AND COALESCE(ts_posted, ts_auth, created_at) <= ?
		ORDER BY COALESCE(ts_posted, ts_auth, created_at) DESC
		LIMIT 1
	`

	var balance float64
	err := r.db.QueryRow(query, accountID, asOf.Unix()).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest reported balance: %w", err)
	}

	return &balance, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRaw(s scanner) (*domain.RawTransaction, error) {
	var raw domain.RawTransaction
	var providerTxID, counterparty sql.NullString
	var tsPosted, tsAuth sql.NullInt64
	var balanceAfter sql.NullFloat64
	var currency, metaJSON string
	var createdAt int64

	err := s.Scan(
		&raw.ID,
		&raw.Provider,
		&raw.AccountID,
		&raw.Hash,
		&providerTxID,
		&tsPosted,
		&tsAuth,
		&raw.Amount,
		&currency,
		&raw.DescriptionRaw,
		&counterparty,
		&balanceAfter,
		&metaJSON,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}

	raw.Currency = domain.Currency(currency)
	raw.ProviderTxID = providerTxID.String
	raw.CounterpartyRaw = counterparty.String
	raw.CreatedAt = time.Unix(createdAt, 0)

	if tsPosted.Valid {
		t := time.Unix(tsPosted.Int64, 0)
		raw.TimestampPosted = &t
	}
	if tsAuth.Valid {
		t := time.Unix(tsAuth.Int64, 0)
		raw.TimestampAuth = &t
	}
	if balanceAfter.Valid {
		b := balanceAfter.Float64
		raw.BalanceAfter = &b
	}

	if metaJSON != "" && metaJSON != "{}" {
		if err := json.Unmarshal([]byte(metaJSON), &raw.Meta); err != nil {
			return nil, fmt.Errorf("failed to unmarshal raw transaction meta: %w", err)
		}
	}

	return &raw, nil
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.Unix()
}

func nullFloat64Ptr(f *float64) interface{} {
	if f == nil {
		return nil
	}
	return *f
}
