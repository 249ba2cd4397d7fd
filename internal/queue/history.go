package queue

import (
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// History retention bounds. Old records fall off the front.
const (
	CompletedHistorySize = 100
	FailedHistorySize    = 200
)

// Record is the observability snapshot kept for a finished job. Payload is
// a msgpack-encoded copy taken at completion time, so later mutation of the
// live payload cannot change what history reports.
type Record struct {
	FinishedAt time.Time `json:"finished_at"`
	JobID      string    `json:"job_id"`
	Queue      QueueName `json:"queue"`
	Type       string    `json:"type"`
	Error      string    `json:"error,omitempty"`
	Payload    []byte    `json:"-"`
	Attempts   int       `json:"attempts"`
}

// DecodePayload returns the snapshotted payload map
func (r *Record) DecodePayload() (map[string]any, error) {
	if len(r.Payload) == 0 {
		return nil, nil
	}
	var payload map[string]any
	if err := msgpack.Unmarshal(r.Payload, &payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// History keeps a bounded, in-memory log of completed and failed jobs
type History struct {
	completed []Record
	failed    []Record
	mu        sync.RWMutex
}

// NewHistory creates an empty job history
func NewHistory() *History {
	return &History{}
}

// RecordCompleted appends a completion record, evicting the oldest past
// the retention bound.
func (h *History) RecordCompleted(job *Job) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.completed = appendBounded(h.completed, snapshot(job, ""), CompletedHistorySize)
}

// RecordFailed appends a terminal failure record
func (h *History) RecordFailed(job *Job, errMsg string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.failed = appendBounded(h.failed, snapshot(job, errMsg), FailedHistorySize)
}

// Completed returns the retained completion records, oldest first
func (h *History) Completed() []Record {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]Record, len(h.completed))
	copy(out, h.completed)
	return out
}

// Failed returns the retained failure records, oldest first
func (h *History) Failed() []Record {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]Record, len(h.failed))
	copy(out, h.failed)
	return out
}

func snapshot(job *Job, errMsg string) Record {
	// Encoding errors degrade to a record without payload rather than
	// dropping the record.
	payload, _ := msgpack.Marshal(job.Payload)

	return Record{
		FinishedAt: time.Now(),
		JobID:      job.ID,
		Queue:      job.Queue,
		Type:       job.Type,
		Error:      errMsg,
		Payload:    payload,
		Attempts:   job.Attempts,
	}
}

func appendBounded(records []Record, record Record, bound int) []Record {
	records = append(records, record)
	if len(records) > bound {
		records = records[len(records)-bound:]
	}
	return records
}
