// Package transfers detects and records money movement between accounts:
// an outgoing transaction in one account matched with an incoming one in
// another.
package transfers

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/bookkeeper/internal/domain"
)

const linkColumns = `id, txn_out_id, txn_in_id, detection_method, confidence,
	window_sec, created_at`

// LinkRepository handles transfer link persistence
type LinkRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewLinkRepository creates a new transfer link repository
func NewLinkRepository(db *sql.DB, log zerolog.Logger) *LinkRepository {
	return &LinkRepository{
		db:  db,
		log: log.With().Str("repo", "transfer_links").Logger(),
	}
}

// Create inserts a transfer link. Returns false without error when the
// (out, in) pair is already linked, so concurrent detection runs over the
// same window stay race-safe.
func (r *LinkRepository) Create(link *domain.TransferLink) (bool, error) {
	if link.ID == "" {
		link.ID = uuid.New().String()
	}
	link.CreatedAt = time.Now()

	_, err := r.db.Exec(`
		INSERT INTO transfer_links (`+linkColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		link.ID, link.TxnOutID, link.TxnInID, link.DetectionMethod,
		link.Confidence, link.WindowSec, link.CreatedAt.Unix())
	if err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to create transfer link: %w", err)
	}
	return true, nil
}

// ExistsForPair reports whether a link already exists for the exact pair
func (r *LinkRepository) ExistsForPair(txnOutID, txnInID string) (bool, error) {
	var one int
	err := r.db.QueryRow(`
		SELECT 1 FROM transfer_links
		WHERE txn_out_id = ? AND txn_in_id = ?`, txnOutID, txnInID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check transfer link: %w", err)
	}
	return true, nil
}

// FindForTxn returns the link in which the transaction participates as
// either leg, or nil when it is not part of a transfer.
func (r *LinkRepository) FindForTxn(txnID string) (*domain.TransferLink, error) {
	return r.findOne(`txn_out_id = ? OR txn_in_id = ?`, txnID, txnID)
}

// FindByOutLeg returns the link where the transaction is the outgoing leg
func (r *LinkRepository) FindByOutLeg(txnID string) (*domain.TransferLink, error) {
	return r.findOne(`txn_out_id = ?`, txnID)
}

// FindByInLeg returns the link where the transaction is the incoming leg
func (r *LinkRepository) FindByInLeg(txnID string) (*domain.TransferLink, error) {
	return r.findOne(`txn_in_id = ?`, txnID)
}

func (r *LinkRepository) findOne(where string, args ...any) (*domain.TransferLink, error) {
	row := r.db.QueryRow(`
		SELECT `+linkColumns+`
		FROM transfer_links
		WHERE `+where+`
		LIMIT 1`, args...)

	link, err := scanLink(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find transfer link: %w", err)
	}
	return link, nil
}

// ListRecent returns links created at or after since, newest first
func (r *LinkRepository) ListRecent(since time.Time, limit int) ([]domain.TransferLink, error) {
	rows, err := r.db.Query(`
		SELECT `+linkColumns+`
		FROM transfer_links
		WHERE created_at >= ?
		ORDER BY created_at DESC
		LIMIT ?`, since.Unix(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query transfer links: %w", err)
	}
	defer rows.Close()

	var links []domain.TransferLink
	for rows.Next() {
		link, err := scanLink(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transfer link: %w", err)
		}
		links = append(links, *link)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transfer links: %w", err)
	}
	return links, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanLink(s scanner) (*domain.TransferLink, error) {
	var link domain.TransferLink
	var createdAt int64

	err := s.Scan(&link.ID, &link.TxnOutID, &link.TxnInID,
		&link.DetectionMethod, &link.Confidence, &link.WindowSec, &createdAt)
	if err != nil {
		return nil, err
	}
	link.CreatedAt = time.Unix(createdAt, 0)
	return &link, nil
}

// isUniqueViolation matches the constraint error text both SQLite drivers
// produce for duplicate (txn_out_id, txn_in_id) pairs.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
