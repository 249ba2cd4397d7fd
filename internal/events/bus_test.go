package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_PublishDeliversToSubscribers(t *testing.T) {
	bus := NewBus()

	var received []*Event
	bus.Subscribe(TransactionIngested, func(event *Event) {
		received = append(received, event)
	})

	data := (&TransactionIngestedData{
		RawID:       "raw-1",
		CanonicalID: "txn-1",
		AccountID:   "acc-1",
		Amount:      -42.0,
	}).ToMap()

	bus.Publish(TransactionIngested, data)

	require.Len(t, received, 1)
	assert.Equal(t, TransactionIngested, received[0].Type)
	assert.Equal(t, "txn-1", received[0].Data["canonical_id"])
	assert.False(t, received[0].Timestamp.IsZero())
}

func TestBus_PublishOnlyMatchingType(t *testing.T) {
	bus := NewBus()

	calls := 0
	bus.Subscribe(BatchIngested, func(event *Event) {
		calls++
	})

	bus.Publish(TransactionIngested, nil)
	assert.Equal(t, 0, calls)

	bus.Publish(BatchIngested, nil)
	assert.Equal(t, 1, calls)
}

func TestBus_MultipleSubscribers(t *testing.T) {
	bus := NewBus()

	first, second := 0, 0
	bus.Subscribe(ReconciliationDrift, func(event *Event) { first++ })
	bus.Subscribe(ReconciliationDrift, func(event *Event) { second++ })

	assert.Equal(t, 2, bus.SubscriberCount(ReconciliationDrift))

	bus.Publish(ReconciliationDrift, (&ReconciliationDriftData{
		AccountID: "acc-1",
		AsOfDate:  "2024-01-05",
		Delta:     2.50,
	}).ToMap())

	assert.Equal(t, 1, first)
	assert.Equal(t, 1, second)
}
