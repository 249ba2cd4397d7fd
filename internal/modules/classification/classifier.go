package classification

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/bookkeeper/internal/domain"
)

// model version tags distinguishing automatic runs from user overrides
const (
	ModelVersionRules  = "rules-v1"
	ModelVersionManual = "manual"
)

// TransactionSource loads canonical transactions by id
type TransactionSource interface {
	GetByID(id string) (*domain.CanonicalTransaction, error)
}

// Classifier assigns categories to canonical transactions
type Classifier struct {
	txns            TransactionSource
	classifications *Repository
	categories      *CategoryRepository
	log             zerolog.Logger
}

// NewClassifier creates a new classifier
func NewClassifier(txns TransactionSource, classifications *Repository, categories *CategoryRepository, log zerolog.Logger) *Classifier {
	return &Classifier{
		txns:            txns,
		classifications: classifications,
		categories:      categories,
		log:             log.With().Str("component", "classifier").Logger(),
	}
}

// Classify runs the rule list against a transaction and records the result.
// A classification the user has locked is never overwritten.
func (c *Classifier) Classify(txnID string) error {
	txn, err := c.txns.GetByID(txnID)
	if err != nil {
		return err
	}

	existing, err := c.classifications.GetByTxn(txnID)
	if err != nil && !domain.IsNotFound(err) {
		return err
	}
	if existing != nil && existing.LockedByUser {
		c.log.Debug().Str("txn_id", txnID).Msg("Classification locked by user, skipping")
		return nil
	}

	categoryName, confidence, explanation := evaluate(txn)

	category, err := c.categories.ResolveOrCreate(categoryName)
	if err != nil {
		return err
	}

	err = c.classifications.Upsert(&domain.Classification{
		TxnID:        txnID,
		CategoryID:   category.ID,
		Confidence:   confidence,
		ModelVersion: ModelVersionRules,
		Explanations: map[string]any{"rule": explanation},
	})
	if err != nil {
		return err
	}

	c.log.Debug().
		Str("txn_id", txnID).
		Str("category", categoryName).
		Float64("confidence", confidence).
		Msg("Classified transaction")
	return nil
}

// Override records a user-chosen category for a transaction and locks it
// against automatic reclassification.
func (c *Classifier) Override(txnID, categoryName string) error {
	if _, err := c.txns.GetByID(txnID); err != nil {
		return err
	}

	category, err := c.categories.ResolveOrCreate(categoryName)
	if err != nil {
		return err
	}

	err = c.classifications.Upsert(&domain.Classification{
		TxnID:        txnID,
		CategoryID:   category.ID,
		Confidence:   1.0,
		LockedByUser: true,
		ModelVersion: ModelVersionManual,
		Explanations: map[string]any{"rule": "user override"},
	})
	if err != nil {
		return err
	}

	c.log.Info().
		Str("txn_id", txnID).
		Str("category", categoryName).
		Msg("Classification overridden by user")
	return nil
}

// evaluate picks the category for a transaction: first matching rule wins,
// else the uncategorized fallback by amount sign.
func evaluate(txn *domain.CanonicalTransaction) (name string, confidence float64, explanation string) {
	if rule := match(txn.DescriptionNorm); rule != nil {
		return rule.CategoryName, rule.Confidence,
			fmt.Sprintf("matched pattern %s", rule.Pattern.String())
	}
	if txn.Amount < 0 {
		return fallbackExpense, fallbackConfidence, "no matching rules"
	}
	return fallbackIncome, fallbackConfidence, "no matching rules"
}
