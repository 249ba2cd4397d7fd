package normalize

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/aristath/bookkeeper/internal/domain"
)

// MergeSimilarity is the minimum description similarity for folding a
// pending transaction into a posted one.
const MergeSimilarity = 0.8

// PendingMerger removes authorization-time duplicates: when a posted
// transaction arrives, pending transactions on the same account with the
// same amount inside the grouping window and a sufficiently similar
// description are folded into it.
type PendingMerger struct {
	canonical *CanonicalRepository
	log       zerolog.Logger
}

// NewPendingMerger creates a new pending merger
func NewPendingMerger(canonical *CanonicalRepository, log zerolog.Logger) *PendingMerger {
	return &PendingMerger{
		canonical: canonical,
		log:       log.With().Str("component", "pending_merger").Logger(),
	}
}

// MergeInto folds matching pending transactions into posted, returning the
// number of transactions merged away. No-op when posted is itself pending.
func (m *PendingMerger) MergeInto(posted *domain.CanonicalTransaction) (int, error) {
	if posted.Status != domain.TxStatusPosted {
		return 0, nil
	}

	candidates, err := m.canonical.FindPendingCandidates(
		posted.AccountID, posted.Amount, posted.PostedAt, GroupWindow, posted.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to find merge candidates for %s: %w", posted.ID, err)
	}

	merged := 0
	for _, candidate := range candidates {
		similarity := Similarity(
			strings.ToLower(posted.DescriptionNorm),
			strings.ToLower(candidate.DescriptionNorm))
		if similarity < MergeSimilarity {
			continue
		}

		for _, rawID := range candidate.RawIDs {
			posted.AppendRawID(rawID)
		}
		if err := m.canonical.Update(posted); err != nil {
			return merged, err
		}
		if err := m.canonical.Delete(candidate.ID); err != nil {
			return merged, err
		}

		m.log.Info().
			Str("posted_id", posted.ID).
			Str("pending_id", candidate.ID).
			Float64("similarity", similarity).
			Msg("Merged pending transaction into posted")
		merged++
	}
	return merged, nil
}
