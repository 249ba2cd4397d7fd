package classification

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/bookkeeper/internal/domain"
)

// Repository handles classification persistence. One row per canonical
// transaction, keyed by txn_id.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new classification repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "classifications").Logger(),
	}
}

// Upsert writes the classification for a transaction, replacing any prior row
func (r *Repository) Upsert(c *domain.Classification) error {
	c.UpdatedAt = time.Now()

	explanations, err := json.Marshal(c.Explanations)
	if err != nil {
		return fmt.Errorf("failed to marshal explanations: %w", err)
	}
	if c.Explanations == nil {
		explanations = []byte("{}")
	}

	_, err = r.db.Exec(`
		INSERT INTO classifications
		(txn_id, category_id, confidence, locked_by_user, explanations_json, model_version, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (txn_id) DO UPDATE SET
			category_id = excluded.category_id,
			confidence = excluded.confidence,
			locked_by_user = excluded.locked_by_user,
			explanations_json = excluded.explanations_json,
			model_version = excluded.model_version,
			updated_at = excluded.updated_at`,
		c.TxnID, c.CategoryID, c.Confidence, boolToInt(c.LockedByUser),
		string(explanations), c.ModelVersion, c.UpdatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to upsert classification: %w", err)
	}
	return nil
}

// GetByTxn retrieves the classification for a transaction
func (r *Repository) GetByTxn(txnID string) (*domain.Classification, error) {
	var c domain.Classification
	var locked int
	var explanations string
	var updatedAt int64

	err := r.db.QueryRow(`
		SELECT txn_id, category_id, confidence, locked_by_user,
		       explanations_json, model_version, updated_at
		FROM classifications
		WHERE txn_id = ?`, txnID).Scan(&c.TxnID, &c.CategoryID, &c.Confidence,
		&locked, &explanations, &c.ModelVersion, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NewNotFoundError("classification", txnID)
		}
		return nil, fmt.Errorf("failed to get classification: %w", err)
	}

	c.LockedByUser = locked != 0
	c.UpdatedAt = time.Unix(updatedAt, 0)
	if err := json.Unmarshal([]byte(explanations), &c.Explanations); err != nil {
		return nil, fmt.Errorf("failed to unmarshal explanations: %w", err)
	}
	return &c, nil
}

// CategoryNameForTxn returns the name of the category a transaction is
// classified into, or "" when it has no classification. Satisfies the
// ledger poster's category source.
func (r *Repository) CategoryNameForTxn(txnID string) (string, error) {
	var name string
	err := r.db.QueryRow(`
		SELECT cat.name
		FROM classifications c
		JOIN categories cat ON cat.id = c.category_id
		WHERE c.txn_id = ?`, txnID).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to resolve category for %s: %w", txnID, err)
	}
	return name, nil
}
