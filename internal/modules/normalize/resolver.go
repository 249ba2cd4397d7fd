package normalize

import (
	"fmt"
	"regexp"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/bookkeeper/internal/domain"
	"github.com/aristath/bookkeeper/internal/utils"
)

// GroupWindow bounds how far apart two raw records may post and still
// resolve to the same canonical transaction.
const GroupWindow = 3 * 24 * time.Hour

var feePattern = regexp.MustCompile(`(?i)\b(fee|interest)\b`)

// Resolver folds raw transactions into canonical transactions. Several raw
// records from the same or different providers can describe one economic
// event; the resolver groups them by a stable key and a time window.
type Resolver struct {
	canonical *CanonicalRepository
	log       zerolog.Logger
}

// NewResolver creates a new canonical resolver
func NewResolver(canonical *CanonicalRepository, log zerolog.Logger) *Resolver {
	return &Resolver{
		canonical: canonical,
		log:       log.With().Str("component", "resolver").Logger(),
	}
}

// Resolve maps a raw transaction onto its canonical transaction, creating
// one when no existing transaction matches. The returned transaction always
// lists raw.ID among its raw ids.
func (r *Resolver) Resolve(raw *domain.RawTransaction) (*domain.CanonicalTransaction, error) {
	postedAt := effectiveTime(raw)
	merchant := NormalizeMerchant(raw.DescriptionRaw)
	groupKey := groupKeyFor(raw, merchant, postedAt)

	existing, err := r.canonical.FindMatch(raw.AccountID, groupKey, raw.Amount, postedAt, GroupWindow)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve raw transaction %s: %w", raw.ID, err)
	}

	if existing != nil {
		existing.AppendRawID(raw.ID)
		// The newest record wins: providers correct amounts, descriptions
		// and posting times between authorization and settlement.
		existing.PostedAt = postedAt
		existing.Amount = raw.Amount
		existing.DescriptionNorm = merchant.Name
		existing.CounterpartyNorm = merchant.Counterparty
		// A posted record settles a previously pending transaction.
		if raw.TimestampPosted != nil && existing.Status == domain.TxStatusPending {
			existing.Status = domain.TxStatusPosted
		}
		if err := r.canonical.Update(existing); err != nil {
			return nil, err
		}
		r.log.Debug().
			Str("txn_id", existing.ID).
			Str("raw_id", raw.ID).
			Int("raw_count", len(existing.RawIDs)).
			Msg("Raw transaction joined existing canonical group")
		return existing, nil
	}

	txn := &domain.CanonicalTransaction{
		GroupKey:         groupKey,
		AccountID:        raw.AccountID,
		PostedAt:         postedAt,
		Amount:           raw.Amount,
		DescriptionNorm:  merchant.Name,
		CounterpartyNorm: merchant.Counterparty,
		TxType:           inferType(raw),
		Status:           statusFor(raw),
		RawIDs:           []string{raw.ID},
	}
	if err := r.canonical.Create(txn); err != nil {
		return nil, err
	}

	r.log.Debug().
		Str("txn_id", txn.ID).
		Str("group_key", groupKey).
		Str("status", string(txn.Status)).
		Msg("Created canonical transaction")
	return txn, nil
}

// effectiveTime picks the best available timestamp for a raw record:
// posted time, then authorization time, then ingestion time.
func effectiveTime(raw *domain.RawTransaction) time.Time {
	switch {
	case raw.TimestampPosted != nil:
		return *raw.TimestampPosted
	case raw.TimestampAuth != nil:
		return *raw.TimestampAuth
	case !raw.CreatedAt.IsZero():
		return raw.CreatedAt
	default:
		return time.Now()
	}
}

// groupKeyFor derives the stable grouping key. A provider-native id is
// authoritative when present; otherwise the key combines the normalized
// merchant, calendar day and unsigned amount.
func groupKeyFor(raw *domain.RawTransaction, merchant Merchant, postedAt time.Time) string {
	if raw.ProviderTxID != "" {
		return raw.ProviderTxID
	}
	return fmt.Sprintf("%s|%s|%s",
		merchant.Name,
		postedAt.UTC().Format("2006-01-02"),
		utils.FormatAbs2(raw.Amount))
}

// inferType classifies direction from the signed amount, with fee and
// interest descriptions carved out into their own type.
func inferType(raw *domain.RawTransaction) domain.TxType {
	if feePattern.MatchString(raw.DescriptionRaw) {
		return domain.TxTypeFee
	}
	if raw.Amount < 0 {
		return domain.TxTypeDebit
	}
	return domain.TxTypeCredit
}

// statusFor marks authorization-only records pending until a posted record
// arrives for the same group.
func statusFor(raw *domain.RawTransaction) domain.TxStatus {
	if raw.TimestampPosted == nil && raw.TimestampAuth != nil {
		return domain.TxStatusPending
	}
	return domain.TxStatusPosted
}
