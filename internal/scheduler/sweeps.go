package scheduler

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/bookkeeper/internal/domain"
	"github.com/aristath/bookkeeper/internal/queue"
)

// Sweep schedules (seconds-first cron expressions)
const (
	ClassificationSweepSchedule = "0 0 * * * *"    // hourly
	TransferSweepSchedule       = "0 */15 * * * *" // every 15 minutes
	ReconciliationSchedule      = "0 0 2 * * *"    // nightly at 02:00
)

// Sweep bounds. The classification sweep re-examines transactions whose
// confidence never reached the ceiling; the transfer sweep only rescans
// accounts that have seen recent activity.
const (
	SweepConfidenceCeiling = 0.6
	SweepBatchLimit        = 1000
	TransferSweepLookback  = 7 * 24 * time.Hour
)

// JobSubmitter enqueues jobs on named queues
type JobSubmitter interface {
	Submit(name queue.QueueName, jobType string, payload map[string]any, delay time.Duration) (*queue.Job, error)
}

// TransactionSource lists transactions that still need classification work
type TransactionSource interface {
	ListUnclassified(confidenceBelow float64, limit int) ([]domain.CanonicalTransaction, error)
}

// AccountSource lists accounts eligible for sweeps
type AccountSource interface {
	ListActive() ([]domain.Account, error)
	ListWithActivitySince(since time.Time) ([]domain.Account, error)
}

// ClassificationSweep enqueues classification jobs for posted transactions
// that are unclassified, or classified below the confidence ceiling and
// not locked by a user.
type ClassificationSweep struct {
	txns      TransactionSource
	submitter JobSubmitter
	log       zerolog.Logger
}

// NewClassificationSweep creates the hourly classification sweep
func NewClassificationSweep(txns TransactionSource, submitter JobSubmitter, log zerolog.Logger) *ClassificationSweep {
	return &ClassificationSweep{
		txns:      txns,
		submitter: submitter,
		log:       log.With().Str("job", "classification_sweep").Logger(),
	}
}

// Name implements Job
func (j *ClassificationSweep) Name() string { return "classification-sweep" }

// Run implements Job
func (j *ClassificationSweep) Run() error {
	txns, err := j.txns.ListUnclassified(SweepConfidenceCeiling, SweepBatchLimit)
	if err != nil {
		return err
	}

	for _, txn := range txns {
		_, err := j.submitter.Submit(queue.QueueClassification, queue.JobClassify, map[string]any{
			"txn_id": txn.ID,
		}, 0)
		if err != nil {
			return err
		}
	}

	if len(txns) > 0 {
		j.log.Info().Int("count", len(txns)).Msg("Enqueued classification jobs")
	}
	return nil
}

// TransferSweep enqueues transfer-detection scans for accounts with
// recent activity. Catches pairs the per-ingest scan missed because the
// counterleg arrived outside its delay window.
type TransferSweep struct {
	accounts  AccountSource
	submitter JobSubmitter
	log       zerolog.Logger
	now       func() time.Time
}

// NewTransferSweep creates the 15-minute transfer sweep
func NewTransferSweep(accounts AccountSource, submitter JobSubmitter, log zerolog.Logger) *TransferSweep {
	return &TransferSweep{
		accounts:  accounts,
		submitter: submitter,
		log:       log.With().Str("job", "transfer_sweep").Logger(),
		now:       time.Now,
	}
}

// Name implements Job
func (j *TransferSweep) Name() string { return "transfer-sweep" }

// Run implements Job
func (j *TransferSweep) Run() error {
	now := j.now()
	accounts, err := j.accounts.ListWithActivitySince(now.Add(-TransferSweepLookback))
	if err != nil {
		return err
	}

	for _, account := range accounts {
		_, err := j.submitter.Submit(queue.QueueTransferDetection, queue.JobLinkTransfers, map[string]any{
			"account_id": account.ID,
			"posted_at":  now.Unix(),
		}, 0)
		if err != nil {
			return err
		}
	}

	if len(accounts) > 0 {
		j.log.Info().Int("accounts", len(accounts)).Msg("Enqueued transfer scans")
	}
	return nil
}

// ReconciliationSweep enqueues a nightly reconciliation run for every
// active account.
type ReconciliationSweep struct {
	accounts  AccountSource
	submitter JobSubmitter
	log       zerolog.Logger
	now       func() time.Time
}

// NewReconciliationSweep creates the nightly reconciliation sweep
func NewReconciliationSweep(accounts AccountSource, submitter JobSubmitter, log zerolog.Logger) *ReconciliationSweep {
	return &ReconciliationSweep{
		accounts:  accounts,
		submitter: submitter,
		log:       log.With().Str("job", "reconciliation_sweep").Logger(),
		now:       time.Now,
	}
}

// Name implements Job
func (j *ReconciliationSweep) Name() string { return "reconciliation-sweep" }

// Run implements Job
func (j *ReconciliationSweep) Run() error {
	accounts, err := j.accounts.ListActive()
	if err != nil {
		return err
	}

	asOf := j.now().Unix()
	for _, account := range accounts {
		_, err := j.submitter.Submit(queue.QueueReconciliation, queue.JobReconcile, map[string]any{
			"account_id": account.ID,
			"as_of":      asOf,
		}, 0)
		if err != nil {
			return err
		}
	}

	j.log.Info().Int("accounts", len(accounts)).Msg("Enqueued reconciliation runs")
	return nil
}

// RegisterSweeps wires the standing sweeps onto the scheduler
func RegisterSweeps(s *Scheduler, classification *ClassificationSweep, transfers *TransferSweep, reconciliation *ReconciliationSweep) error {
	if err := s.AddJob(ClassificationSweepSchedule, classification); err != nil {
		return err
	}
	if err := s.AddJob(TransferSweepSchedule, transfers); err != nil {
		return err
	}
	return s.AddJob(ReconciliationSchedule, reconciliation)
}
