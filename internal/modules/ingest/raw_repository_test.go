package ingest

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/bookkeeper/internal/domain"
	testhelpers "github.com/aristath/bookkeeper/internal/testing"
)

func newRawFixture(t *testing.T) (*RawRepository, func()) {
	t.Helper()
	db, cleanup := testhelpers.NewTestDB(t)
	testhelpers.SeedAccount(t, db, domain.Account{ID: "acc-1", DisplayName: "Checking", IsActive: true})
	return NewRawRepository(db.Conn(), zerolog.New(nil).Level(zerolog.Disabled)), cleanup
}

func TestRawRepository_CreateAndGet(t *testing.T) {
	repo, cleanup := newRawFixture(t)
	defer cleanup()

	posted := testhelpers.Date(2024, 3, 10)
	created, err := repo.Create(domain.RawTransaction{
		Provider:        "plaid",
		AccountID:       "acc-1",
		Hash:            "hash-1",
		TimestampPosted: &posted,
		Amount:          -42.00,
		Currency:        domain.CurrencyUSD,
		DescriptionRaw:  "STARBUCKS #123",
		Meta:            map[string]any{"channel": "card"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)

	got, err := repo.GetByID(created.ID)
	require.NoError(t, err)
	assert.Equal(t, "STARBUCKS #123", got.DescriptionRaw)
	assert.Equal(t, "card", got.Meta["channel"])
	require.NotNil(t, got.TimestampPosted)
	assert.Equal(t, posted.Unix(), got.TimestampPosted.Unix())
	assert.Nil(t, got.BalanceAfter)
}

func TestRawRepository_FindExistingByHash(t *testing.T) {
	repo, cleanup := newRawFixture(t)
	defer cleanup()

	created, err := repo.Create(domain.RawTransaction{
		Provider: "plaid", AccountID: "acc-1", Hash: "hash-1",
		Amount: -42.00, Currency: domain.CurrencyUSD, DescriptionRaw: "X",
	})
	require.NoError(t, err)

	found, err := repo.FindExisting("plaid", "acc-1", "hash-1", "")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, created.ID, found.ID)

	missing, err := repo.FindExisting("plaid", "acc-1", "other-hash", "")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestRawRepository_FindExistingByProviderTxID(t *testing.T) {
	repo, cleanup := newRawFixture(t)
	defer cleanup()

	created, err := repo.Create(domain.RawTransaction{
		Provider: "plaid", AccountID: "acc-1", Hash: "hash-1", ProviderTxID: "ptx-9",
		Amount: -42.00, Currency: domain.CurrencyUSD, DescriptionRaw: "X",
	})
	require.NoError(t, err)

	// Amended description produces a different hash; the provider-native id
	// still identifies the record.
	found, err := repo.FindExisting("plaid", "acc-1", "different-hash", "ptx-9")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, created.ID, found.ID)
}

func TestRawRepository_UpdateCorrections(t *testing.T) {
	repo, cleanup := newRawFixture(t)
	defer cleanup()

	auth := testhelpers.Date(2024, 3, 9)
	created, err := repo.Create(domain.RawTransaction{
		Provider: "plaid", AccountID: "acc-1", Hash: "hash-1",
		TimestampAuth: &auth,
		Amount:        -42.00, Currency: domain.CurrencyUSD, DescriptionRaw: "X",
	})
	require.NoError(t, err)

	posted := testhelpers.Date(2024, 3, 10)
	balance := 100.50
	updated, err := repo.UpdateCorrections(created.ID, &posted, nil, &balance)
	require.NoError(t, err)

	require.NotNil(t, updated.TimestampPosted)
	assert.Equal(t, posted.Unix(), updated.TimestampPosted.Unix())
	require.NotNil(t, updated.TimestampAuth, "absent fields keep their prior values")
	assert.Equal(t, auth.Unix(), updated.TimestampAuth.Unix())
	require.NotNil(t, updated.BalanceAfter)
	assert.Equal(t, 100.50, *updated.BalanceAfter)
}

func TestRawRepository_LatestReportedBalance(t *testing.T) {
	repo, cleanup := newRawFixture(t)
	defer cleanup()

	day1 := testhelpers.Date(2024, 3, 1)
	day2 := testhelpers.Date(2024, 3, 5)
	b1, b2 := 900.00, 850.00

	_, err := repo.Create(domain.RawTransaction{
		Provider: "plaid", AccountID: "acc-1", Hash: "hash-1",
		TimestampPosted: &day1, BalanceAfter: &b1,
		Amount: -42.00, Currency: domain.CurrencyUSD, DescriptionRaw: "X",
	})
	require.NoError(t, err)
	_, err = repo.Create(domain.RawTransaction{
		Provider: "plaid", AccountID: "acc-1", Hash: "hash-2",
		TimestampPosted: &day2, BalanceAfter: &b2,
		Amount: -50.00, Currency: domain.CurrencyUSD, DescriptionRaw: "Y",
	})
	require.NoError(t, err)

	latest, err := repo.LatestReportedBalance("acc-1", testhelpers.Date(2024, 3, 10))
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, 850.00, *latest)

	// As-of before the second report
	earlier, err := repo.LatestReportedBalance("acc-1", testhelpers.Date(2024, 3, 2))
	require.NoError(t, err)
	require.NotNil(t, earlier)
	assert.Equal(t, 900.00, *earlier)

	none, err := repo.LatestReportedBalance("acc-other", testhelpers.Date(2024, 3, 10))
	require.NoError(t, err)
	assert.Nil(t, none)
}
