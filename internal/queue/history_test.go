package queue

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistory_BoundsCompleted(t *testing.T) {
	history := NewHistory()

	for i := 0; i < CompletedHistorySize+5; i++ {
		history.RecordCompleted(&Job{
			ID:    fmt.Sprintf("job-%d", i),
			Queue: QueueClassification,
			Type:  JobClassify,
		})
	}

	completed := history.Completed()
	require.Len(t, completed, CompletedHistorySize)

	// Oldest records fell off the front
	assert.Equal(t, "job-5", completed[0].JobID)
	assert.Equal(t, fmt.Sprintf("job-%d", CompletedHistorySize+4), completed[len(completed)-1].JobID)
}

func TestHistory_BoundsFailed(t *testing.T) {
	history := NewHistory()

	for i := 0; i < FailedHistorySize+3; i++ {
		history.RecordFailed(&Job{
			ID:    fmt.Sprintf("job-%d", i),
			Queue: QueueReconciliation,
			Type:  JobReconcile,
		}, "boom")
	}

	failed := history.Failed()
	require.Len(t, failed, FailedHistorySize)
	assert.Equal(t, "job-3", failed[0].JobID)
	assert.Equal(t, "boom", failed[0].Error)
}

func TestHistory_PayloadIsSnapshotted(t *testing.T) {
	history := NewHistory()

	payload := map[string]any{"account_id": "acc-1"}
	history.RecordCompleted(&Job{
		ID:      "job-1",
		Queue:   QueueTransferDetection,
		Type:    JobLinkTransfers,
		Payload: payload,
	})

	// Mutating the live payload must not affect the recorded copy
	payload["account_id"] = "acc-2"

	completed := history.Completed()
	require.Len(t, completed, 1)

	decoded, err := completed[0].DecodePayload()
	require.NoError(t, err)
	assert.Equal(t, "acc-1", decoded["account_id"])
}

func TestHistory_DecodeEmptyPayload(t *testing.T) {
	record := Record{JobID: "job-1"}

	decoded, err := record.DecodePayload()
	require.NoError(t, err)
	assert.Nil(t, decoded)
}

func TestHistory_RecordsFinishTime(t *testing.T) {
	history := NewHistory()

	before := time.Now()
	history.RecordCompleted(&Job{ID: "job-1", Attempts: 2})

	completed := history.Completed()
	require.Len(t, completed, 1)
	assert.Equal(t, 2, completed[0].Attempts)
	assert.False(t, completed[0].FinishedAt.Before(before))
}

func TestBackoffDelay_DoublesPerAttempt(t *testing.T) {
	assert.Equal(t, BackoffBase, backoffDelay(1))
	assert.Equal(t, 2*BackoffBase, backoffDelay(2))
	assert.Equal(t, 4*BackoffBase, backoffDelay(3))
}
