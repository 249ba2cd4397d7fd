package reconciliation

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/bookkeeper/internal/domain"
	"github.com/aristath/bookkeeper/internal/events"
	"github.com/aristath/bookkeeper/internal/utils"
)

// DriftThreshold is the largest absolute delta still considered reconciled
const DriftThreshold = 1.00

// AccountSource loads accounts by id
type AccountSource interface {
	GetByID(id string) (*domain.Account, error)
}

// LedgerSource supplies signed GL balances up to a cutoff
type LedgerSource interface {
	SignedSumForGL(glAccount string, asOf time.Time) (float64, error)
}

// Reconciler compares the ledger's view of an account's cash against the
// balance its institution last reported.
type Reconciler struct {
	accounts AccountSource
	ledger   LedgerSource
	balances BalanceSource
	runs     *RunRepository
	bus      *events.Bus
	log      zerolog.Logger
}

// NewReconciler creates a new reconciler
func NewReconciler(accounts AccountSource, ledger LedgerSource, balances BalanceSource, runs *RunRepository, bus *events.Bus, log zerolog.Logger) *Reconciler {
	return &Reconciler{
		accounts: accounts,
		ledger:   ledger,
		balances: balances,
		runs:     runs,
		bus:      bus,
		log:      log.With().Str("component", "reconciler").Logger(),
	}
}

// Reconcile computes the system balance for an account as of a date,
// compares it with the reported balance and upserts the day's run.
// Re-running for the same day replaces the prior result.
func (r *Reconciler) Reconcile(accountID string, asOf time.Time) (*domain.ReconciliationRun, error) {
	account, err := r.accounts.GetByID(accountID)
	if err != nil {
		return nil, err
	}

	cashGL := fmt.Sprintf("Asset:Cash:%s", account.GLName())
	systemBalance, err := r.ledger.SignedSumForGL(cashGL, asOf)
	if err != nil {
		return nil, err
	}

	reported, err := r.balances.LatestReportedBalance(accountID, asOf)
	if err != nil {
		return nil, err
	}
	// With no reported balance there is nothing to reconcile against, so
	// the run records the system balance on both sides.
	institutionBalance := systemBalance
	if reported != nil {
		institutionBalance = *reported
	}

	delta := utils.Round2(systemBalance - institutionBalance)
	status := domain.ReconStatusOK
	if !utils.WithinThreshold(delta, DriftThreshold) {
		status = domain.ReconStatusDrift
	}

	run := &domain.ReconciliationRun{
		AccountID:          accountID,
		AsOfDate:           asOf.UTC().Format("2006-01-02"),
		SystemBalance:      systemBalance,
		InstitutionBalance: institutionBalance,
		Delta:              delta,
		Status:             status,
	}
	if err := r.runs.Upsert(run); err != nil {
		return nil, err
	}

	if status == domain.ReconStatusDrift {
		r.log.Warn().
			Str("account_id", accountID).
			Str("as_of", run.AsOfDate).
			Float64("delta", delta).
			Msg("Reconciliation drift detected")
		if r.bus != nil {
			data := events.ReconciliationDriftData{
				AccountID: accountID,
				AsOfDate:  run.AsOfDate,
				Delta:     delta,
			}
			r.bus.Publish(events.ReconciliationDrift, data.ToMap())
		}
	} else {
		r.log.Info().
			Str("account_id", accountID).
			Str("as_of", run.AsOfDate).
			Msg("Account reconciled")
	}

	return run, nil
}
