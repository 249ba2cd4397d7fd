// Package jobs binds queue jobs to the bookkeeping services. Each named
// queue gets one handler here; payload decoding and dispatch live in this
// package so the services stay unaware of the queue.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/bookkeeper/internal/domain"
	"github.com/aristath/bookkeeper/internal/modules/ingest"
	"github.com/aristath/bookkeeper/internal/queue"
)

// Default worker pool sizes. Classification is the chattiest queue, the
// rest are bursty but small.
const (
	DefaultPipelineWorkers = 1
	DefaultIngestWorkers   = 2
)

// TransferLinker scans for transfer pairs around an anchor time
type TransferLinker interface {
	LinkAround(accountID string, anchor time.Time, windowDays int) (int, error)
}

// Classifier assigns a category to a transaction
type Classifier interface {
	Classify(txnID string) error
}

// LedgerPoster derives ledger entries for a transaction
type LedgerPoster interface {
	Post(txnID string) error
}

// Reconciler compares ledger balances against reported balances
type Reconciler interface {
	Reconcile(accountID string, asOf time.Time) (*domain.ReconciliationRun, error)
}

// Ingestor runs ingestion batches
type Ingestor interface {
	IngestBatch(provider, accountID string, records []ingest.Record) ([]ingest.Result, int)
}

// Handlers owns the queue handlers and their service dependencies
type Handlers struct {
	linker     TransferLinker
	classifier Classifier
	poster     LedgerPoster
	reconciler Reconciler
	ingestor   Ingestor
	log        zerolog.Logger
}

// NewHandlers creates the queue handlers
func NewHandlers(linker TransferLinker, classifier Classifier, poster LedgerPoster, reconciler Reconciler, ingestor Ingestor, log zerolog.Logger) *Handlers {
	return &Handlers{
		linker:     linker,
		classifier: classifier,
		poster:     poster,
		reconciler: reconciler,
		ingestor:   ingestor,
		log:        log.With().Str("component", "jobs").Logger(),
	}
}

// Register declares every queue on the manager. Must run before the
// manager starts. Non-positive worker counts fall back to the defaults.
func (h *Handlers) Register(manager *queue.Manager, pipelineWorkers, ingestWorkers int) {
	if pipelineWorkers <= 0 {
		pipelineWorkers = DefaultPipelineWorkers
	}
	if ingestWorkers <= 0 {
		ingestWorkers = DefaultIngestWorkers
	}

	manager.Register(queue.QueueClassification, h.HandleClassification, pipelineWorkers, queue.DefaultMaxAttempts)
	manager.Register(queue.QueueTransferDetection, h.HandleTransferDetection, pipelineWorkers, queue.DefaultMaxAttempts)
	manager.Register(queue.QueueReconciliation, h.HandleReconciliation, pipelineWorkers, queue.DefaultMaxAttempts)
	manager.Register(queue.QueueIngestion, h.HandleIngestion, ingestWorkers, queue.IngestionMaxAttempts)
}

// HandleClassification classifies a transaction and reposts its ledger
// entries. Reposting after classification keeps the expense GL in step
// with the assigned category, including after a user override.
func (h *Handlers) HandleClassification(ctx context.Context, job *queue.Job) error {
	txnID, err := payloadString(job, "txn_id")
	if err != nil {
		return err
	}

	if err := h.classifier.Classify(txnID); err != nil {
		return err
	}
	return h.poster.Post(txnID)
}

// HandleTransferDetection scans for transfer pairs around the job's
// posted date.
func (h *Handlers) HandleTransferDetection(ctx context.Context, job *queue.Job) error {
	accountID, err := payloadString(job, "account_id")
	if err != nil {
		return err
	}
	anchor, err := payloadTime(job, "posted_at")
	if err != nil {
		return err
	}

	linked, err := h.linker.LinkAround(accountID, anchor, 0)
	if err != nil {
		return err
	}

	if linked > 0 {
		h.log.Info().
			Str("account_id", accountID).
			Time("anchor", anchor).
			Int("linked", linked).
			Msg("Transfer scan linked pairs")
	}
	return nil
}

// HandleReconciliation reconciles one account as of the job's timestamp
func (h *Handlers) HandleReconciliation(ctx context.Context, job *queue.Job) error {
	accountID, err := payloadString(job, "account_id")
	if err != nil {
		return err
	}
	asOf, err := payloadTime(job, "as_of")
	if err != nil {
		return err
	}

	_, err = h.reconciler.Reconcile(accountID, asOf)
	return err
}

// HandleIngestion runs a deferred ingestion batch. Per-record failures
// are isolated inside the batch and surfaced through results, so a batch
// with partial failures still completes; re-submitting it is safe because
// ingestion deduplicates on fingerprint.
func (h *Handlers) HandleIngestion(ctx context.Context, job *queue.Job) error {
	provider, err := payloadString(job, "provider")
	if err != nil {
		return err
	}
	accountID, err := payloadString(job, "account_id")
	if err != nil {
		return err
	}

	records, ok := job.Payload["records"].([]ingest.Record)
	if !ok {
		return domain.NewValidationError("records", "missing or malformed batch payload")
	}

	results, failed := h.ingestor.IngestBatch(provider, accountID, records)
	if failed > 0 {
		h.log.Warn().
			Str("account_id", accountID).
			Int("failed", failed).
			Int("total", len(results)).
			Msg("Ingestion batch completed with failures")
	}
	return nil
}

func payloadString(job *queue.Job, key string) (string, error) {
	value, ok := job.Payload[key].(string)
	if !ok || value == "" {
		return "", domain.NewValidationError(key, "is required")
	}
	return value, nil
}

// payloadTime reads a Unix-second timestamp. Listeners submit int64, but
// payloads that crossed a JSON boundary carry float64.
func payloadTime(job *queue.Job, key string) (time.Time, error) {
	switch v := job.Payload[key].(type) {
	case int64:
		return time.Unix(v, 0).UTC(), nil
	case int:
		return time.Unix(int64(v), 0).UTC(), nil
	case float64:
		return time.Unix(int64(v), 0).UTC(), nil
	default:
		return time.Time{}, domain.NewValidationError(key, fmt.Sprintf("expected unix timestamp, got %T", v))
	}
}
