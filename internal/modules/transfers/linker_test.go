package transfers

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/bookkeeper/internal/domain"
	"github.com/aristath/bookkeeper/internal/modules/normalize"
	testhelpers "github.com/aristath/bookkeeper/internal/testing"
)

func newLinkerFixture(t *testing.T) (*Linker, *LinkRepository, *normalize.CanonicalRepository, func()) {
	t.Helper()
	db, cleanup := testhelpers.NewTestDB(t)
	log := zerolog.New(nil).Level(zerolog.Disabled)

	testhelpers.SeedAccount(t, db, domain.Account{ID: "acc-a", DisplayName: "Checking", IsActive: true})
	testhelpers.SeedAccount(t, db, domain.Account{ID: "acc-b", DisplayName: "Savings", IsActive: true})

	canonical := normalize.NewCanonicalRepository(db.Conn(), log)
	links := NewLinkRepository(db.Conn(), log)
	return NewLinker(canonical, links, log), links, canonical, cleanup
}

func seedTxn(t *testing.T, repo *normalize.CanonicalRepository, accountID string, amount float64, postedAt time.Time) *domain.CanonicalTransaction {
	t.Helper()
	txn := &domain.CanonicalTransaction{
		GroupKey:        accountID + postedAt.Format("2006-01-02"),
		AccountID:       accountID,
		PostedAt:        postedAt,
		Amount:          amount,
		DescriptionNorm: "TRANSFER",
		TxType:          domain.TxTypeDebit,
		Status:          domain.TxStatusPosted,
		RawIDs:          []string{"raw-" + accountID + postedAt.Format("0102")},
	}
	require.NoError(t, repo.Create(txn))
	return txn
}

func TestLinker_PairsAcrossAccounts(t *testing.T) {
	linker, links, canonical, cleanup := newLinkerFixture(t)
	defer cleanup()

	out := seedTxn(t, canonical, "acc-a", -500.00, testhelpers.Date(2024, 3, 10))
	in := seedTxn(t, canonical, "acc-b", 500.00, testhelpers.Date(2024, 3, 11))

	created, err := linker.LinkAround("acc-a", testhelpers.Date(2024, 3, 10), 3)
	require.NoError(t, err)
	assert.Equal(t, 1, created)

	link, err := links.FindForTxn(out.ID)
	require.NoError(t, err)
	require.NotNil(t, link)
	assert.Equal(t, out.ID, link.TxnOutID)
	assert.Equal(t, in.ID, link.TxnInID)
	assert.Equal(t, "amount+time", link.DetectionMethod)
	assert.Equal(t, 0.9, link.Confidence)
	assert.Equal(t, 3*86400, link.WindowSec)
}

func TestLinker_RerunCreatesNoDuplicates(t *testing.T) {
	linker, _, canonical, cleanup := newLinkerFixture(t)
	defer cleanup()

	seedTxn(t, canonical, "acc-a", -500.00, testhelpers.Date(2024, 3, 10))
	seedTxn(t, canonical, "acc-b", 500.00, testhelpers.Date(2024, 3, 11))

	created, err := linker.LinkAround("acc-a", testhelpers.Date(2024, 3, 10), 3)
	require.NoError(t, err)
	assert.Equal(t, 1, created)

	created, err = linker.LinkAround("acc-a", testhelpers.Date(2024, 3, 10), 3)
	require.NoError(t, err)
	assert.Zero(t, created)
}

func TestLinker_SkipsSameAccount(t *testing.T) {
	linker, _, canonical, cleanup := newLinkerFixture(t)
	defer cleanup()

	// A refund in the same account is not a transfer
	seedTxn(t, canonical, "acc-a", -75.00, testhelpers.Date(2024, 3, 10))
	seedTxn(t, canonical, "acc-a", 75.00, testhelpers.Date(2024, 3, 11))

	created, err := linker.LinkAround("acc-a", testhelpers.Date(2024, 3, 10), 3)
	require.NoError(t, err)
	assert.Zero(t, created)
}

func TestLinker_SkipsAmountMismatch(t *testing.T) {
	linker, _, canonical, cleanup := newLinkerFixture(t)
	defer cleanup()

	seedTxn(t, canonical, "acc-a", -500.00, testhelpers.Date(2024, 3, 10))
	seedTxn(t, canonical, "acc-b", 500.02, testhelpers.Date(2024, 3, 11))

	created, err := linker.LinkAround("acc-a", testhelpers.Date(2024, 3, 10), 3)
	require.NoError(t, err)
	assert.Zero(t, created)
}

func TestLinker_IgnoresTransactionsOutsideWindow(t *testing.T) {
	linker, _, canonical, cleanup := newLinkerFixture(t)
	defer cleanup()

	seedTxn(t, canonical, "acc-a", -500.00, testhelpers.Date(2024, 3, 10))
	seedTxn(t, canonical, "acc-b", 500.00, testhelpers.Date(2024, 3, 20))

	created, err := linker.LinkAround("acc-a", testhelpers.Date(2024, 3, 10), 3)
	require.NoError(t, err)
	assert.Zero(t, created)
}

func TestLinker_GreedyFirstMatch(t *testing.T) {
	linker, links, canonical, cleanup := newLinkerFixture(t)
	defer cleanup()

	// Two same-amount inflows; every outflow takes the earliest one.
	// Greedy by posted order, not optimal assignment.
	out1 := seedTxn(t, canonical, "acc-a", -100.00, testhelpers.Date(2024, 3, 10))
	in1 := seedTxn(t, canonical, "acc-b", 100.00, testhelpers.Date(2024, 3, 11))
	seedTxn(t, canonical, "acc-b", 100.00, testhelpers.Date(2024, 3, 12))
	out2 := seedTxn(t, canonical, "acc-a", -100.00, testhelpers.Date(2024, 3, 12))

	created, err := linker.LinkAround("acc-a", testhelpers.Date(2024, 3, 11), 3)
	require.NoError(t, err)
	assert.Equal(t, 2, created)

	link1, err := links.FindByOutLeg(out1.ID)
	require.NoError(t, err)
	require.NotNil(t, link1)
	assert.Equal(t, in1.ID, link1.TxnInID)

	link2, err := links.FindByOutLeg(out2.ID)
	require.NoError(t, err)
	require.NotNil(t, link2)
	assert.Equal(t, in1.ID, link2.TxnInID)
}

func TestLinker_SharedInflowLinksEveryOutflow(t *testing.T) {
	linker, links, canonical, cleanup := newLinkerFixture(t)
	defer cleanup()

	// A single inflow matching several outflows links to each of them;
	// inflows are never exhausted by an earlier match.
	out1 := seedTxn(t, canonical, "acc-a", -500.00, testhelpers.Date(2024, 3, 10))
	out2 := seedTxn(t, canonical, "acc-a", -500.00, testhelpers.Date(2024, 3, 11))
	in := seedTxn(t, canonical, "acc-b", 500.00, testhelpers.Date(2024, 3, 11))

	created, err := linker.LinkAround("acc-a", testhelpers.Date(2024, 3, 10), 3)
	require.NoError(t, err)
	assert.Equal(t, 2, created)

	for _, out := range []*domain.CanonicalTransaction{out1, out2} {
		link, err := links.FindByOutLeg(out.ID)
		require.NoError(t, err)
		require.NotNil(t, link)
		assert.Equal(t, in.ID, link.TxnInID)
	}

	// Rescanning the same window stays idempotent
	created, err = linker.LinkAround("acc-a", testhelpers.Date(2024, 3, 10), 3)
	require.NoError(t, err)
	assert.Zero(t, created)
}
