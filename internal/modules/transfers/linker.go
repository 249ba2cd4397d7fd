package transfers

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/bookkeeper/internal/domain"
	"github.com/aristath/bookkeeper/internal/utils"
)

// DefaultWindowDays is the detection window on either side of the anchor date
const DefaultWindowDays = 3

// detection parameters recorded on every link
const (
	detectionMethod     = "amount+time"
	detectionConfidence = 0.9
)

// TransactionSource supplies canonical transactions for a time window.
// Satisfied by normalize.CanonicalRepository.
type TransactionSource interface {
	ListInWindow(start, end time.Time) ([]domain.CanonicalTransaction, error)
}

// Linker pairs outgoing and incoming transactions across accounts.
//
// Matching is greedy first-match over transactions in ascending posted
// order, not an optimal bipartite assignment: every outgoing leg takes the
// earliest inflow with a matching amount, so one inflow can end up linked
// to several outflows.
type Linker struct {
	source TransactionSource
	links  *LinkRepository
	log    zerolog.Logger
}

// NewLinker creates a new transfer linker
func NewLinker(source TransactionSource, links *LinkRepository, log zerolog.Logger) *Linker {
	return &Linker{
		source: source,
		links:  links,
		log:    log.With().Str("component", "transfer_linker").Logger(),
	}
}

// LinkAround records a link for every transfer pair posted within windowDays
// of the anchor date and returns the number of links created. accountID
// identifies the account whose activity triggered the scan; the scan itself
// is global, since the matching leg always lives in another account.
// Re-running over the same window is a no-op.
func (l *Linker) LinkAround(accountID string, anchor time.Time, windowDays int) (int, error) {
	if windowDays <= 0 {
		windowDays = DefaultWindowDays
	}
	window := time.Duration(windowDays) * 24 * time.Hour

	txns, err := l.source.ListInWindow(anchor.Add(-window), anchor.Add(window))
	if err != nil {
		return 0, fmt.Errorf("failed to load transactions for transfer detection: %w", err)
	}

	var outgoing, incoming []domain.CanonicalTransaction
	for _, txn := range txns {
		switch {
		case txn.Amount < 0:
			outgoing = append(outgoing, txn)
		case txn.Amount > 0:
			incoming = append(incoming, txn)
		}
	}

	created := 0
	for _, out := range outgoing {
		match := l.findMatch(out, incoming)
		if match == nil {
			continue
		}

		exists, err := l.links.ExistsForPair(out.ID, match.ID)
		if err != nil {
			return created, err
		}
		if exists {
			continue
		}

		inserted, err := l.links.Create(&domain.TransferLink{
			TxnOutID:        out.ID,
			TxnInID:         match.ID,
			DetectionMethod: detectionMethod,
			Confidence:      detectionConfidence,
			WindowSec:       windowDays * 86400,
		})
		if err != nil {
			return created, err
		}
		if !inserted {
			continue
		}

		created++
		l.log.Info().
			Str("txn_out", out.ID).
			Str("txn_in", match.ID).
			Float64("amount", out.Amount).
			Msg("Linked transfer pair")
	}

	if created > 0 {
		l.log.Info().
			Int("links", created).
			Int("window_days", windowDays).
			Str("account", accountID).
			Time("anchor", anchor).
			Msg("Transfer detection completed")
	}
	return created, nil
}

// findMatch returns the first inflow in a different account with a matching
// absolute amount, or nil.
func (l *Linker) findMatch(out domain.CanonicalTransaction, incoming []domain.CanonicalTransaction) *domain.CanonicalTransaction {
	for i := range incoming {
		in := &incoming[i]
		if in.AccountID == out.AccountID {
			continue
		}
		if utils.AmountsMatch(-out.Amount, in.Amount) {
			return in
		}
	}
	return nil
}
