package classification

import (
	"database/sql"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"

	"github.com/aristath/bookkeeper/internal/domain"
)

func setupTestDB(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)

	_, err = db.Exec(`
		CREATE TABLE categories (
			id          TEXT PRIMARY KEY,
			name        TEXT NOT NULL UNIQUE,
			gaap_map    TEXT,
			is_transfer INTEGER NOT NULL DEFAULT 0,
			is_payment  INTEGER NOT NULL DEFAULT 0
		);
		CREATE TABLE classifications (
			txn_id            TEXT PRIMARY KEY,
			category_id       TEXT NOT NULL,
			confidence        REAL NOT NULL,
			locked_by_user    INTEGER NOT NULL DEFAULT 0,
			explanations_json TEXT NOT NULL DEFAULT '{}',
			model_version     TEXT NOT NULL,
			updated_at        INTEGER NOT NULL
		);
	`)
	require.NoError(t, err)

	return db
}

type stubTxns map[string]*domain.CanonicalTransaction

func (s stubTxns) GetByID(id string) (*domain.CanonicalTransaction, error) {
	if txn, ok := s[id]; ok {
		return txn, nil
	}
	return nil, domain.NewNotFoundError("canonical transaction", id)
}

func newClassifierFixture(t *testing.T) (*Classifier, *Repository, *CategoryRepository, stubTxns, func()) {
	t.Helper()
	db := setupTestDB(t)
	log := zerolog.New(nil).Level(zerolog.Disabled)

	txns := stubTxns{}
	classifications := NewRepository(db, log)
	categories := NewCategoryRepository(db, log)
	classifier := NewClassifier(txns, classifications, categories, log)
	return classifier, classifications, categories, txns, func() { _ = db.Close() }
}

func TestClassifier_RuleMatch(t *testing.T) {
	classifier, classifications, categories, txns, cleanup := newClassifierFixture(t)
	defer cleanup()

	txns["txn-1"] = &domain.CanonicalTransaction{ID: "txn-1", DescriptionNorm: "Starbucks", Amount: -42.00}
	require.NoError(t, classifier.Classify("txn-1"))

	got, err := classifications.GetByTxn("txn-1")
	require.NoError(t, err)
	assert.Equal(t, 0.9, got.Confidence)
	assert.Equal(t, ModelVersionRules, got.ModelVersion)
	assert.False(t, got.LockedByUser)

	category, err := categories.GetByID(got.CategoryID)
	require.NoError(t, err)
	assert.Equal(t, "Meals & Entertainment", category.Name)
}

func TestClassifier_RuleOrdering(t *testing.T) {
	classifier, classifications, categories, txns, cleanup := newClassifierFixture(t)
	defer cleanup()

	// Matches both the fee rule and the interest rule; the fee rule is
	// earlier, so first-match-wins classifies it as a bank fee.
	txns["txn-1"] = &domain.CanonicalTransaction{ID: "txn-1", DescriptionNorm: "INTEREST CHARGE", Amount: -3.12}
	require.NoError(t, classifier.Classify("txn-1"))

	got, err := classifications.GetByTxn("txn-1")
	require.NoError(t, err)
	category, err := categories.GetByID(got.CategoryID)
	require.NoError(t, err)
	assert.Equal(t, "Bank Fees", category.Name)
}

func TestClassifier_FallbackByAmountSign(t *testing.T) {
	classifier, classifications, categories, txns, cleanup := newClassifierFixture(t)
	defer cleanup()

	txns["txn-out"] = &domain.CanonicalTransaction{ID: "txn-out", DescriptionNorm: "MYSTERY VENDOR", Amount: -10.00}
	txns["txn-in"] = &domain.CanonicalTransaction{ID: "txn-in", DescriptionNorm: "MYSTERY SOURCE", Amount: 10.00}

	require.NoError(t, classifier.Classify("txn-out"))
	require.NoError(t, classifier.Classify("txn-in"))

	out, err := classifications.GetByTxn("txn-out")
	require.NoError(t, err)
	assert.Equal(t, 0.1, out.Confidence)
	outCat, err := categories.GetByID(out.CategoryID)
	require.NoError(t, err)
	assert.Equal(t, "Uncategorized Expense", outCat.Name)

	in, err := classifications.GetByTxn("txn-in")
	require.NoError(t, err)
	inCat, err := categories.GetByID(in.CategoryID)
	require.NoError(t, err)
	assert.Equal(t, "Uncategorized Income", inCat.Name)
}

func TestClassifier_LockWinsOverRerun(t *testing.T) {
	classifier, classifications, categories, txns, cleanup := newClassifierFixture(t)
	defer cleanup()

	txns["txn-1"] = &domain.CanonicalTransaction{ID: "txn-1", DescriptionNorm: "Starbucks", Amount: -42.00}
	require.NoError(t, classifier.Override("txn-1", "Office Supplies"))

	// Automatic rerun must not disturb the user's choice
	require.NoError(t, classifier.Classify("txn-1"))

	got, err := classifications.GetByTxn("txn-1")
	require.NoError(t, err)
	assert.True(t, got.LockedByUser)
	assert.Equal(t, 1.0, got.Confidence)
	assert.Equal(t, ModelVersionManual, got.ModelVersion)

	category, err := categories.GetByID(got.CategoryID)
	require.NoError(t, err)
	assert.Equal(t, "Office Supplies", category.Name)
}

func TestClassifier_RerunUpdatesUnlocked(t *testing.T) {
	classifier, classifications, _, txns, cleanup := newClassifierFixture(t)
	defer cleanup()

	txns["txn-1"] = &domain.CanonicalTransaction{ID: "txn-1", DescriptionNorm: "MYSTERY", Amount: -10.00}
	require.NoError(t, classifier.Classify("txn-1"))

	// Better description after a correction pass
	txns["txn-1"].DescriptionNorm = "Uber"
	require.NoError(t, classifier.Classify("txn-1"))

	got, err := classifications.GetByTxn("txn-1")
	require.NoError(t, err)
	assert.Equal(t, 0.85, got.Confidence)
}

func TestCategoryRepository_EnsureDefaultsIdempotent(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	categories := NewCategoryRepository(db, zerolog.New(nil).Level(zerolog.Disabled))

	require.NoError(t, categories.EnsureDefaults())
	require.NoError(t, categories.EnsureDefaults())

	all, err := categories.List()
	require.NoError(t, err)
	assert.Len(t, all, 11)

	transfer, err := categories.GetByName("Transfer")
	require.NoError(t, err)
	assert.True(t, transfer.IsTransfer)
	assert.Equal(t, "Asset:Cash", transfer.GaapMap)

	payment, err := categories.GetByName("Payment")
	require.NoError(t, err)
	assert.True(t, payment.IsPayment)
}

func TestCategoryRepository_ResolveOrCreate(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	categories := NewCategoryRepository(db, zerolog.New(nil).Level(zerolog.Disabled))

	first, err := categories.ResolveOrCreate("Subscriptions")
	require.NoError(t, err)
	second, err := categories.ResolveOrCreate("Subscriptions")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}
