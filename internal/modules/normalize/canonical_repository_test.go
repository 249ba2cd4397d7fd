package normalize

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/bookkeeper/internal/database"
	"github.com/aristath/bookkeeper/internal/domain"
	testhelpers "github.com/aristath/bookkeeper/internal/testing"
)

func newCanonicalFixture(t *testing.T) (*CanonicalRepository, *database.DB, func()) {
	t.Helper()
	db, cleanup := testhelpers.NewTestDB(t)
	testhelpers.SeedAccount(t, db, domain.Account{ID: "acc-1", DisplayName: "Checking", IsActive: true})
	return NewCanonicalRepository(db.Conn(), zerolog.New(nil).Level(zerolog.Disabled)), db, cleanup
}

func TestCanonicalRepository_CreateAndGet(t *testing.T) {
	repo, _, cleanup := newCanonicalFixture(t)
	defer cleanup()

	txn := canonicalFixture(repo, t, "Starbucks", -42.00, domain.TxStatusPosted,
		testhelpers.Date(2024, 3, 10), "raw-1", "raw-2")

	got, err := repo.GetByID(txn.ID)
	require.NoError(t, err)
	assert.Equal(t, "Starbucks", got.DescriptionNorm)
	assert.Equal(t, []string{"raw-1", "raw-2"}, got.RawIDs)
	assert.Equal(t, txn.PostedAt.Unix(), got.PostedAt.Unix())
}

func TestCanonicalRepository_ListInWindow(t *testing.T) {
	repo, _, cleanup := newCanonicalFixture(t)
	defer cleanup()

	canonicalFixture(repo, t, "Early", -10.00, domain.TxStatusPosted, testhelpers.Date(2024, 3, 1), "raw-1")
	canonicalFixture(repo, t, "Inside", -20.00, domain.TxStatusPosted, testhelpers.Date(2024, 3, 10), "raw-2")
	canonicalFixture(repo, t, "Late", -30.00, domain.TxStatusPosted, testhelpers.Date(2024, 3, 25), "raw-3")

	txns, err := repo.ListInWindow(testhelpers.Date(2024, 3, 5), testhelpers.Date(2024, 3, 15))
	require.NoError(t, err)
	require.Len(t, txns, 1)
	assert.Equal(t, "Inside", txns[0].DescriptionNorm)
}

func TestCanonicalRepository_ListUnclassified(t *testing.T) {
	repo, db, cleanup := newCanonicalFixture(t)
	defer cleanup()

	unclassified := canonicalFixture(repo, t, "NoRow", -10.00, domain.TxStatusPosted, testhelpers.Date(2024, 3, 10), "raw-1")
	lowConf := canonicalFixture(repo, t, "LowConf", -20.00, domain.TxStatusPosted, testhelpers.Date(2024, 3, 11), "raw-2")
	locked := canonicalFixture(repo, t, "Locked", -30.00, domain.TxStatusPosted, testhelpers.Date(2024, 3, 12), "raw-3")
	canonicalFixture(repo, t, "Pending", -40.00, domain.TxStatusPending, testhelpers.Date(2024, 3, 13), "raw-4")

	_, err := db.Exec(`INSERT INTO categories (id, name) VALUES ('cat-1', 'Shopping')`)
	require.NoError(t, err)
	now := time.Now().Unix()
	_, err = db.Exec(`
		INSERT INTO classifications (txn_id, category_id, confidence, locked_by_user, model_version, updated_at)
		VALUES (?, 'cat-1', 0.1, 0, 'rules-v1', ?), (?, 'cat-1', 0.1, 1, 'manual', ?)`,
		lowConf.ID, now, locked.ID, now)
	require.NoError(t, err)

	txns, err := repo.ListUnclassified(0.6, 100)
	require.NoError(t, err)

	ids := make([]string, 0, len(txns))
	for _, txn := range txns {
		ids = append(ids, txn.ID)
	}
	// Low-confidence rows are revisited; locked and pending rows are not
	assert.ElementsMatch(t, []string{unclassified.ID, lowConf.ID}, ids)
}
