// Package reconciliation compares ledger-derived cash balances against
// institution-reported balances and records the outcome per account per day.
package reconciliation

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/bookkeeper/internal/domain"
)

const runColumns = `id, account_id, as_of_date, system_balance,
	institution_balance, delta, status, created_at, updated_at`

// RunRepository handles reconciliation run persistence
type RunRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRunRepository creates a new reconciliation run repository
func NewRunRepository(db *sql.DB, log zerolog.Logger) *RunRepository {
	return &RunRepository{
		db:  db,
		log: log.With().Str("repo", "reconciliation_runs").Logger(),
	}
}

// Upsert writes the run for its (account, day) key, replacing any earlier
// result for that day.
func (r *RunRepository) Upsert(run *domain.ReconciliationRun) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	now := time.Now()
	run.UpdatedAt = now
	if run.CreatedAt.IsZero() {
		run.CreatedAt = now
	}

	_, err := r.db.Exec(`
		INSERT INTO reconciliation_runs (`+runColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (account_id, as_of_date) DO UPDATE SET
			system_balance = excluded.system_balance,
			institution_balance = excluded.institution_balance,
			delta = excluded.delta,
			status = excluded.status,
			updated_at = excluded.updated_at`,
		run.ID, run.AccountID, run.AsOfDate, run.SystemBalance,
		run.InstitutionBalance, run.Delta, string(run.Status),
		run.CreatedAt.Unix(), run.UpdatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to upsert reconciliation run: %w", err)
	}
	return nil
}

// GetForDay retrieves the run for an account on a YYYY-MM-DD date
func (r *RunRepository) GetForDay(accountID, asOfDate string) (*domain.ReconciliationRun, error) {
	row := r.db.QueryRow(`
		SELECT `+runColumns+`
		FROM reconciliation_runs
		WHERE account_id = ? AND as_of_date = ?`, accountID, asOfDate)

	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NewNotFoundError("reconciliation run", accountID+"@"+asOfDate)
		}
		return nil, fmt.Errorf("failed to get reconciliation run: %w", err)
	}
	return run, nil
}

// ListByAccount returns runs for an account, most recent day first
func (r *RunRepository) ListByAccount(accountID string, limit int) ([]domain.ReconciliationRun, error) {
	rows, err := r.db.Query(`
		SELECT `+runColumns+`
		FROM reconciliation_runs
		WHERE account_id = ?
		ORDER BY as_of_date DESC
		LIMIT ?`, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query reconciliation runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.ReconciliationRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reconciliation run: %w", err)
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate reconciliation runs: %w", err)
	}
	return runs, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*domain.ReconciliationRun, error) {
	var run domain.ReconciliationRun
	var status string
	var createdAt, updatedAt int64

	err := s.Scan(&run.ID, &run.AccountID, &run.AsOfDate, &run.SystemBalance,
		&run.InstitutionBalance, &run.Delta, &status, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	run.Status = domain.ReconStatus(status)
	run.CreatedAt = time.Unix(createdAt, 0)
	run.UpdatedAt = time.Unix(updatedAt, 0)
	return &run, nil
}
