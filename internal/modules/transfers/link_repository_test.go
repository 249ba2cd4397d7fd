package transfers

import (
	"database/sql"
	"testing"
	"time"

	_ "modernc.org/sqlite"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/bookkeeper/internal/domain"
)

func newLinkRepo(t *testing.T) *LinkRepository {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
		CREATE TABLE transfer_links (
			id TEXT PRIMARY KEY,
			txn_out_id TEXT NOT NULL,
			txn_in_id TEXT NOT NULL,
			detection_method TEXT NOT NULL,
			confidence REAL NOT NULL,
			window_sec INTEGER NOT NULL,
			created_at INTEGER NOT NULL,
			UNIQUE (txn_out_id, txn_in_id)
		)
	`)
	require.NoError(t, err)

	return NewLinkRepository(db, zerolog.Nop())
}

func link(outID, inID string) *domain.TransferLink {
	return &domain.TransferLink{
		TxnOutID:        outID,
		TxnInID:         inID,
		DetectionMethod: "amount+time",
		Confidence:      0.9,
		WindowSec:       3 * 86400,
	}
}

func TestLinkRepository_CreateAndFind(t *testing.T) {
	repo := newLinkRepo(t)

	created, err := repo.Create(link("txn-out", "txn-in"))
	require.NoError(t, err)
	require.True(t, created)

	byOut, err := repo.FindByOutLeg("txn-out")
	require.NoError(t, err)
	require.NotNil(t, byOut)
	assert.Equal(t, "txn-in", byOut.TxnInID)
	assert.Equal(t, 0.9, byOut.Confidence)

	byIn, err := repo.FindByInLeg("txn-in")
	require.NoError(t, err)
	require.NotNil(t, byIn)
	assert.Equal(t, byOut.ID, byIn.ID)

	// Either leg resolves through FindForTxn
	forOut, err := repo.FindForTxn("txn-out")
	require.NoError(t, err)
	require.NotNil(t, forOut)
	forIn, err := repo.FindForTxn("txn-in")
	require.NoError(t, err)
	require.NotNil(t, forIn)
}

func TestLinkRepository_DuplicatePairIsNotAnError(t *testing.T) {
	repo := newLinkRepo(t)

	created, err := repo.Create(link("txn-out", "txn-in"))
	require.NoError(t, err)
	require.True(t, created)

	// Concurrent scans racing on the same pair both succeed; only one wins
	created, err = repo.Create(link("txn-out", "txn-in"))
	require.NoError(t, err)
	assert.False(t, created)

	exists, err := repo.ExistsForPair("txn-out", "txn-in")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestLinkRepository_FindMissesReturnNil(t *testing.T) {
	repo := newLinkRepo(t)

	found, err := repo.FindForTxn("txn-unknown")
	require.NoError(t, err)
	assert.Nil(t, found)

	exists, err := repo.ExistsForPair("a", "b")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestLinkRepository_ListRecent(t *testing.T) {
	repo := newLinkRepo(t)

	_, err := repo.Create(link("out-1", "in-1"))
	require.NoError(t, err)
	_, err = repo.Create(link("out-2", "in-2"))
	require.NoError(t, err)

	links, err := repo.ListRecent(time.Now().Add(-time.Hour), 10)
	require.NoError(t, err)
	assert.Len(t, links, 2)

	// A cutoff in the future excludes everything
	links, err = repo.ListRecent(time.Now().Add(time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, links)
}
