package ingest

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/bookkeeper/internal/domain"
	"github.com/aristath/bookkeeper/internal/events"
	"github.com/aristath/bookkeeper/internal/utils"
)

// Record is one provider transaction as submitted for ingestion
type Record struct {
	PostedAt     *time.Time     `json:"timestamp_posted,omitempty"`
	AuthAt       *time.Time     `json:"timestamp_auth,omitempty"`
	BalanceAfter *float64       `json:"balance_after,omitempty"`
	Meta         map[string]any `json:"meta_json,omitempty"`
	ProviderTxID string         `json:"provider_tx_id,omitempty"`
	Currency     string         `json:"currency,omitempty"`
	Description  string         `json:"description_raw"`
	Counterparty string         `json:"counterparty_raw,omitempty"`
	Amount       float64        `json:"amount"`
}

// Result reports the outcome of ingesting a single record
type Result struct {
	RawID       string `json:"raw_id,omitempty"`
	CanonicalID string `json:"canonical_id,omitempty"`
	Error       string `json:"error,omitempty"`
}

// AccountSource loads accounts by id
type AccountSource interface {
	GetByID(id string) (*domain.Account, error)
}

// Resolver folds a raw transaction into its canonical transaction
type Resolver interface {
	Resolve(raw *domain.RawTransaction) (*domain.CanonicalTransaction, error)
}

// PendingMerger folds pending duplicates into a posted transaction
type PendingMerger interface {
	MergeInto(posted *domain.CanonicalTransaction) (int, error)
}

// TransferLinker scans for transfer pairs around a date
type TransferLinker interface {
	LinkAround(accountID string, anchor time.Time, windowDays int) (int, error)
}

// LedgerPoster posts ledger entries for a canonical transaction
type LedgerPoster interface {
	Post(txnID string) error
}

// Classifier assigns a category to a canonical transaction
type Classifier interface {
	Classify(txnID string) error
}

// Service runs the ingestion pipeline: fingerprint, raw record identity,
// canonical resolution, pending merge, transfer linking, ledger posting and
// classification, in that order per record.
type Service struct {
	accounts   AccountSource
	raws       *RawRepository
	resolver   Resolver
	merger     PendingMerger
	linker     TransferLinker
	poster     LedgerPoster
	classifier Classifier
	bus        *events.Bus
	log        zerolog.Logger
}

// NewService creates a new ingestion service
func NewService(accounts AccountSource, raws *RawRepository, resolver Resolver, merger PendingMerger, linker TransferLinker, poster LedgerPoster, classifier Classifier, bus *events.Bus, log zerolog.Logger) *Service {
	return &Service{
		accounts:   accounts,
		raws:       raws,
		resolver:   resolver,
		merger:     merger,
		linker:     linker,
		poster:     poster,
		classifier: classifier,
		bus:        bus,
		log:        log.With().Str("component", "ingest").Logger(),
	}
}

// IngestOne runs the full pipeline for a single record and returns the ids
// of the raw and canonical rows it landed in.
func (s *Service) IngestOne(provider, accountID string, record Record) (Result, error) {
	if err := validate(provider, accountID, record); err != nil {
		return Result{Error: err.Error()}, err
	}
	account, err := s.accounts.GetByID(accountID)
	if err != nil {
		return Result{Error: err.Error()}, err
	}

	currency := record.Currency
	if currency == "" {
		currency = string(account.Currency)
	}

	raw, err := s.upsertRaw(provider, accountID, currency, record)
	if err != nil {
		return Result{Error: err.Error()}, err
	}

	canonical, err := s.resolver.Resolve(raw)
	if err != nil {
		return Result{RawID: raw.ID, Error: err.Error()}, err
	}

	// An authorization-only record stops here. The rest of the pipeline
	// runs once the posted record settles the transaction; pending rows
	// never reach the ledger, so merging one away leaves nothing behind.
	if canonical.Status == domain.TxStatusPending {
		s.log.Debug().
			Str("txn_id", canonical.ID).
			Msg("Transaction pending, deferring downstream processing")
		return Result{RawID: raw.ID, CanonicalID: canonical.ID}, nil
	}

	if _, err := s.merger.MergeInto(canonical); err != nil {
		return Result{RawID: raw.ID, CanonicalID: canonical.ID, Error: err.Error()}, err
	}
	if _, err := s.linker.LinkAround(canonical.AccountID, canonical.PostedAt, 0); err != nil {
		return Result{RawID: raw.ID, CanonicalID: canonical.ID, Error: err.Error()}, err
	}
	if err := s.poster.Post(canonical.ID); err != nil {
		return Result{RawID: raw.ID, CanonicalID: canonical.ID, Error: err.Error()}, err
	}
	if err := s.classifier.Classify(canonical.ID); err != nil {
		return Result{RawID: raw.ID, CanonicalID: canonical.ID, Error: err.Error()}, err
	}

	if s.bus != nil {
		data := events.TransactionIngestedData{
			RawID:       raw.ID,
			CanonicalID: canonical.ID,
			AccountID:   accountID,
			PostedAt:    canonical.PostedAt.Unix(),
			Amount:      canonical.Amount,
		}
		s.bus.Publish(events.TransactionIngested, data.ToMap())
	}

	return Result{RawID: raw.ID, CanonicalID: canonical.ID}, nil
}

// IngestBatch runs IngestOne per record, isolating failures: a rejected or
// failed record is reported in its result slot and the batch continues.
func (s *Service) IngestBatch(provider, accountID string, records []Record) ([]Result, int) {
	defer utils.OperationTimer("ingest_batch", s.log)()

	results := make([]Result, 0, len(records))
	failed := 0

	for i, record := range records {
		result, err := s.IngestOne(provider, accountID, record)
		if err != nil {
			failed++
			s.log.Warn().
				Err(err).
				Int("index", i).
				Str("provider", provider).
				Str("account_id", accountID).
				Msg("Record failed during batch ingestion")
		}
		results = append(results, result)
	}

	if s.bus != nil {
		data := events.BatchIngestedData{
			Provider:  provider,
			AccountID: accountID,
			Succeeded: len(records) - failed,
			Failed:    failed,
		}
		s.bus.Publish(events.BatchIngested, data.ToMap())
	}

	s.log.Info().
		Str("provider", provider).
		Str("account_id", accountID).
		Int("succeeded", len(records)-failed).
		Int("failed", failed).
		Msg("Ingestion batch completed")
	return results, failed
}

// upsertRaw finds the raw row for the record's identity, creating it on
// first sight or applying timestamp/balance corrections on a repeat.
func (s *Service) upsertRaw(provider, accountID, currency string, record Record) (*domain.RawTransaction, error) {
	hash := Fingerprint(FingerprintInput{
		Provider:    provider,
		AccountID:   accountID,
		DateISO:     recordDateISO(record),
		AmountCents: utils.Cents(record.Amount),
		Description: record.Description,
		Currency:    currency,
	})

	existing, err := s.raws.FindExisting(provider, accountID, hash, record.ProviderTxID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return s.raws.UpdateCorrections(existing.ID, record.PostedAt, record.AuthAt, record.BalanceAfter)
	}

	return s.raws.Create(domain.RawTransaction{
		Provider:        provider,
		AccountID:       accountID,
		Hash:            hash,
		ProviderTxID:    record.ProviderTxID,
		TimestampPosted: record.PostedAt,
		TimestampAuth:   record.AuthAt,
		Amount:          record.Amount,
		Currency:        domain.Currency(currency),
		DescriptionRaw:  record.Description,
		CounterpartyRaw: record.Counterparty,
		BalanceAfter:    record.BalanceAfter,
		Meta:            record.Meta,
	})
}

// recordDateISO picks the calendar day used in the fingerprint: posted,
// else authorized, else today.
func recordDateISO(record Record) string {
	switch {
	case record.PostedAt != nil:
		return record.PostedAt.UTC().Format("2006-01-02")
	case record.AuthAt != nil:
		return record.AuthAt.UTC().Format("2006-01-02")
	default:
		return time.Now().UTC().Format("2006-01-02")
	}
}

func validate(provider, accountID string, record Record) error {
	if provider == "" {
		return domain.NewValidationError("provider", "must not be empty")
	}
	if accountID == "" {
		return domain.NewValidationError("account_id", "must not be empty")
	}
	if record.Description == "" {
		return domain.NewValidationError("description_raw", "must not be empty")
	}
	return nil
}
