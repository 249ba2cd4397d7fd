// Package queue provides named in-process job queues with retry, backoff
// and bounded execution history. Each queue runs its own worker pool; jobs
// on different queues and different transactions have no ordering guarantee.
package queue

import (
	"context"
	"time"
)

// QueueName identifies a named job queue
type QueueName string

const (
	// QueueClassification runs classification jobs and sweeps
	QueueClassification QueueName = "classification"

	// QueueTransferDetection runs transfer-detection scans
	QueueTransferDetection QueueName = "transfer-detection"

	// QueueReconciliation runs per-account reconciliation
	QueueReconciliation QueueName = "reconciliation"

	// QueueIngestion runs ingestion batches
	QueueIngestion QueueName = "ingestion"
)

// Job types carried on the queues
const (
	JobClassify            = "classify"
	JobClassificationSweep = "classification-sweep"
	JobLinkTransfers       = "link-transfers"
	JobReconcile           = "reconcile"
	JobIngestBatch         = "ingest-batch"
)

// TransferBatchDelay holds transfer-detection jobs back briefly so both
// legs of a transfer ingested in the same burst are visible to the scan.
const TransferBatchDelay = 5 * time.Second

// Retry policy. Ingestion batches get extra attempts because they touch
// the most state per run.
const (
	DefaultMaxAttempts   = 3
	IngestionMaxAttempts = 5
	BackoffBase          = 2 * time.Second
)

// Job is one queued unit of work
type Job struct {
	AvailableAt time.Time
	CreatedAt   time.Time
	Payload     map[string]any
	ID          string
	Type        string
	Queue       QueueName
	Attempts    int
	MaxAttempts int
}

// Handler executes a job. A returned error marks the attempt failed; the
// job is retried with backoff unless the error is permanent or attempts
// are exhausted.
type Handler func(ctx context.Context, job *Job) error

// backoffDelay returns the wait before the next retry after the given
// number of failed attempts. Doubles per attempt.
func backoffDelay(attempts int) time.Duration {
	delay := BackoffBase
	for i := 1; i < attempts; i++ {
		delay *= 2
	}
	return delay
}
