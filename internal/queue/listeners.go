package queue

import (
	"github.com/rs/zerolog"

	"github.com/aristath/bookkeeper/internal/events"
)

// RegisterListeners connects bus events to queue submissions. The
// ingestion pipeline publishes events synchronously, so listeners only
// enqueue and return.
func RegisterListeners(bus *events.Bus, manager *Manager, log zerolog.Logger) {
	listenerLog := log.With().Str("component", "queue_listeners").Logger()

	// Every ingested transaction schedules a delayed transfer scan around
	// its posted date. The counterleg often arrives moments later from
	// another account's feed; the delay lets it land first.
	bus.Subscribe(events.TransactionIngested, func(event *events.Event) {
		payload := map[string]any{
			"account_id": event.Data["account_id"],
			"posted_at":  event.Data["posted_at"],
		}
		_, err := manager.Submit(QueueTransferDetection, JobLinkTransfers, payload, TransferBatchDelay)
		if err != nil {
			listenerLog.Error().Err(err).Msg("Failed to enqueue transfer detection")
		}
	})

	// A user override can change the expense GL, so the transaction is
	// reposted off the classification queue.
	bus.Subscribe(events.ClassificationOverridden, func(event *events.Event) {
		payload := map[string]any{
			"txn_id": event.Data["txn_id"],
		}
		_, err := manager.Submit(QueueClassification, JobClassify, payload, 0)
		if err != nil {
			listenerLog.Error().Err(err).Msg("Failed to enqueue reclassification")
		}
	})
}
