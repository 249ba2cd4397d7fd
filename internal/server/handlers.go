package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/bookkeeper/internal/domain"
	"github.com/aristath/bookkeeper/internal/events"
	"github.com/aristath/bookkeeper/internal/modules/ingest"
	"github.com/aristath/bookkeeper/internal/queue"
)

// List defaults and caps
const (
	defaultListLimit   = 50
	maxListLimit       = 500
	defaultTransferDay = 7
)

// IngestService runs ingestion batches
type IngestService interface {
	IngestBatch(provider, accountID string, records []ingest.Record) ([]ingest.Result, int)
}

// TransactionLister lists canonical transactions per account
type TransactionLister interface {
	ListByAccount(accountID string, limit int) ([]domain.CanonicalTransaction, error)
}

// TransferLister lists detected transfer links
type TransferLister interface {
	ListRecent(since time.Time, limit int) ([]domain.TransferLink, error)
}

// ReconciliationRuns lists reconciliation runs per account
type ReconciliationRuns interface {
	ListByAccount(accountID string, limit int) ([]domain.ReconciliationRun, error)
}

// Reconciler runs one account reconciliation
type Reconciler interface {
	Reconcile(accountID string, asOf time.Time) (*domain.ReconciliationRun, error)
}

// ClassificationOverrider records a user-chosen category
type ClassificationOverrider interface {
	Override(txnID, categoryName string) error
}

// AccountLister lists accounts
type AccountLister interface {
	ListActive() ([]domain.Account, error)
}

// JobSubmitter enqueues deferred work
type JobSubmitter interface {
	Submit(name queue.QueueName, jobType string, payload map[string]any, delay time.Duration) (*queue.Job, error)
}

// Handlers provides the JSON API over the bookkeeping services
type Handlers struct {
	ingestor   IngestService
	txns       TransactionLister
	transfers  TransferLister
	runs       ReconciliationRuns
	reconciler Reconciler
	overrider  ClassificationOverrider
	accounts   AccountLister
	submitter  JobSubmitter
	bus        *events.Bus
	log        zerolog.Logger
}

// NewHandlers creates the API handlers
func NewHandlers(
	ingestor IngestService,
	txns TransactionLister,
	transfers TransferLister,
	runs ReconciliationRuns,
	reconciler Reconciler,
	overrider ClassificationOverrider,
	accounts AccountLister,
	submitter JobSubmitter,
	bus *events.Bus,
	log zerolog.Logger,
) *Handlers {
	return &Handlers{
		ingestor:   ingestor,
		txns:       txns,
		transfers:  transfers,
		runs:       runs,
		reconciler: reconciler,
		overrider:  overrider,
		accounts:   accounts,
		submitter:  submitter,
		bus:        bus,
		log:        log.With().Str("component", "api").Logger(),
	}
}

// RegisterRoutes registers all API routes
func (h *Handlers) RegisterRoutes(r chi.Router) {
	r.Post("/ingest/{providerID}/{accountID}/transactions", h.HandleIngest)

	r.Get("/accounts", h.HandleListAccounts)
	r.Get("/accounts/{accountID}/transactions", h.HandleListTransactions)
	r.Get("/accounts/{accountID}/reconciliation", h.HandleListReconciliationRuns)
	r.Post("/accounts/{accountID}/reconcile", h.HandleReconcile)

	r.Get("/transfers", h.HandleListTransfers)

	r.Post("/transactions/{txnID}/classification", h.HandleOverrideClassification)
}

// IngestRequest is the provider feed payload
type IngestRequest struct {
	Transactions []ingest.Record `json:"transactions"`
}

// IngestResponse reports per-record outcomes for a synchronous batch
type IngestResponse struct {
	Results []ingest.Result `json:"results"`
	Failed  int             `json:"failed"`
}

// HandleIngest accepts a batch of provider records for one account.
// With ?async=true the batch is queued and a 202 returned; otherwise the
// batch runs inline and per-record results come back.
func (h *Handlers) HandleIngest(w http.ResponseWriter, r *http.Request) {
	providerID := chi.URLParam(r, "providerID")
	accountID := chi.URLParam(r, "accountID")

	var req IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.Transactions) == 0 {
		http.Error(w, "No transactions in batch", http.StatusBadRequest)
		return
	}

	if r.URL.Query().Get("async") == "true" {
		job, err := h.submitter.Submit(queue.QueueIngestion, queue.JobIngestBatch, map[string]any{
			"provider":   providerID,
			"account_id": accountID,
			"records":    req.Transactions,
		}, 0)
		if err != nil {
			h.log.Error().Err(err).Msg("Failed to enqueue ingestion batch")
			http.Error(w, "Failed to queue batch", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]string{
			"status": "queued",
			"job_id": job.ID,
		})
		return
	}

	results, failed := h.ingestor.IngestBatch(providerID, accountID, req.Transactions)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(IngestResponse{Results: results, Failed: failed})
}

// HandleListAccounts returns all active accounts
func (h *Handlers) HandleListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.accounts.ListActive()
	if err != nil {
		h.writeError(w, err, "Failed to list accounts")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"accounts": accounts})
}

// HandleListTransactions returns canonical transactions for an account,
// newest first.
func (h *Handlers) HandleListTransactions(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")

	txns, err := h.txns.ListByAccount(accountID, queryLimit(r))
	if err != nil {
		h.writeError(w, err, "Failed to list transactions")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"transactions": txns})
}

// HandleListTransfers returns transfer links detected in the last N days
// (?days=, default 7).
func (h *Handlers) HandleListTransfers(w http.ResponseWriter, r *http.Request) {
	days := defaultTransferDay
	if daysStr := r.URL.Query().Get("days"); daysStr != "" {
		if d, err := strconv.Atoi(daysStr); err == nil && d > 0 {
			days = d
		}
	}

	since := time.Now().AddDate(0, 0, -days)
	links, err := h.transfers.ListRecent(since, queryLimit(r))
	if err != nil {
		h.writeError(w, err, "Failed to list transfers")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"transfers": links})
}

// HandleListReconciliationRuns returns reconciliation runs for an account,
// newest first.
func (h *Handlers) HandleListReconciliationRuns(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")

	runs, err := h.runs.ListByAccount(accountID, queryLimit(r))
	if err != nil {
		h.writeError(w, err, "Failed to list reconciliation runs")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"runs": runs})
}

// ReconcileRequest optionally pins the as-of time (Unix seconds)
type ReconcileRequest struct {
	AsOf *int64 `json:"as_of"`
}

// HandleReconcile runs reconciliation for an account immediately and
// returns the resulting run.
func (h *Handlers) HandleReconcile(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")

	asOf := time.Now()
	if r.ContentLength > 0 {
		var req ReconcileRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		if req.AsOf != nil {
			asOf = time.Unix(*req.AsOf, 0).UTC()
		}
	}

	run, err := h.reconciler.Reconcile(accountID, asOf)
	if err != nil {
		h.writeError(w, err, "Reconciliation failed")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(run)
}

// OverrideRequest carries the user-chosen category
type OverrideRequest struct {
	Category string `json:"category"`
}

// HandleOverrideClassification records a manual category for a
// transaction and announces the override so the ledger gets reposted.
func (h *Handlers) HandleOverrideClassification(w http.ResponseWriter, r *http.Request) {
	txnID := chi.URLParam(r, "txnID")

	var req OverrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Category == "" {
		http.Error(w, "Category is required", http.StatusBadRequest)
		return
	}

	if err := h.overrider.Override(txnID, req.Category); err != nil {
		h.writeError(w, err, "Failed to override classification")
		return
	}

	h.bus.Publish(events.ClassificationOverridden, map[string]any{
		"txn_id":   txnID,
		"category": req.Category,
	})

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status":   "ok",
		"txn_id":   txnID,
		"category": req.Category,
	})
}

// writeError maps domain errors to HTTP status codes
func (h *Handlers) writeError(w http.ResponseWriter, err error, msg string) {
	var validationErr *domain.ValidationError
	switch {
	case errors.As(err, &validationErr):
		http.Error(w, validationErr.Error(), http.StatusBadRequest)
	case domain.IsNotFound(err):
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		h.log.Error().Err(err).Msg(msg)
		http.Error(w, msg, http.StatusInternalServerError)
	}
}

func queryLimit(r *http.Request) int {
	limit := defaultListLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = l
		}
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return limit
}
