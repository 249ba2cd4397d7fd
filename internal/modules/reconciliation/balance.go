package reconciliation

import "time"

// BalanceSource supplies the institution-reported balance for an account
// as of a point in time. Returns nil when no balance has been reported.
type BalanceSource interface {
	LatestReportedBalance(accountID string, asOf time.Time) (*float64, error)
}
