package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/bookkeeper/internal/domain"
)

// queueState holds one named queue: its handler, its pending jobs and the
// trigger its workers block on.
type queueState struct {
	name        QueueName
	handler     Handler
	maxAttempts int
	workers     int

	mu      sync.Mutex
	pending []*Job
	trigger chan struct{}
}

// Manager owns the named queues and their worker pools
type Manager struct {
	history *History
	log     zerolog.Logger

	mu     sync.RWMutex
	queues map[QueueName]*queueState

	wg      sync.WaitGroup
	started bool
}

// NewManager creates a new queue manager
func NewManager(log zerolog.Logger) *Manager {
	return &Manager{
		history: NewHistory(),
		queues:  make(map[QueueName]*queueState),
		log:     log.With().Str("component", "queue").Logger(),
	}
}

// History exposes the bounded execution history
func (m *Manager) History() *History {
	return m.history
}

// Register declares a queue with its handler and worker pool size.
// Must be called before Start.
func (m *Manager) Register(name QueueName, handler Handler, workers, maxAttempts int) {
	if workers <= 0 {
		workers = 1
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.queues[name] = &queueState{
		name:        name,
		handler:     handler,
		maxAttempts: maxAttempts,
		workers:     workers,
		trigger:     make(chan struct{}, 1),
	}
}

// Submit enqueues a job on a named queue. A positive delay holds the job
// back before workers may pick it up.
func (m *Manager) Submit(name QueueName, jobType string, payload map[string]any, delay time.Duration) (*Job, error) {
	m.mu.RLock()
	q, ok := m.queues[name]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown queue: %s", name)
	}

	now := time.Now()
	job := &Job{
		ID:          uuid.New().String(),
		Queue:       name,
		Type:        jobType,
		Payload:     payload,
		MaxAttempts: q.maxAttempts,
		CreatedAt:   now,
		AvailableAt: now.Add(delay),
	}

	q.mu.Lock()
	q.pending = append(q.pending, job)
	q.mu.Unlock()
	wake(q)

	m.log.Debug().
		Str("queue", string(name)).
		Str("type", jobType).
		Str("job_id", job.ID).
		Dur("delay", delay).
		Msg("Job submitted")
	return job, nil
}

// Start launches the worker pools. Workers run until ctx is cancelled;
// Wait blocks until they have drained.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return
	}
	m.started = true

	for _, q := range m.queues {
		for i := 0; i < q.workers; i++ {
			m.wg.Add(1)
			go m.worker(ctx, q)
		}
		m.log.Info().
			Str("queue", string(q.name)).
			Int("workers", q.workers).
			Int("max_attempts", q.maxAttempts).
			Msg("Queue started")
	}
}

// Wait blocks until all workers have exited
func (m *Manager) Wait() {
	m.wg.Wait()
}

// PendingCount returns the number of jobs waiting on a queue
func (m *Manager) PendingCount(name QueueName) int {
	m.mu.RLock()
	q, ok := m.queues[name]
	m.mu.RUnlock()
	if !ok {
		return 0
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

func (m *Manager) worker(ctx context.Context, q *queueState) {
	defer m.wg.Done()

	for {
		job, wait := nextReady(q)
		if job != nil {
			m.run(ctx, q, job)
			continue
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-q.trigger:
			timer.Stop()
		case <-timer.C:
		}
	}
}

func (m *Manager) run(ctx context.Context, q *queueState, job *Job) {
	job.Attempts++

	err := q.handler(ctx, job)
	if err == nil {
		m.history.RecordCompleted(job)
		m.log.Debug().
			Str("queue", string(q.name)).
			Str("job_id", job.ID).
			Int("attempts", job.Attempts).
			Msg("Job completed")
		return
	}

	if ctx.Err() != nil {
		// Shutdown, not a job failure; leave no misleading history
		return
	}

	if domain.IsRetryable(err) && job.Attempts < job.MaxAttempts {
		job.AvailableAt = time.Now().Add(backoffDelay(job.Attempts))
		q.mu.Lock()
		q.pending = append(q.pending, job)
		q.mu.Unlock()
		wake(q)

		m.log.Warn().
			Err(err).
			Str("queue", string(q.name)).
			Str("job_id", job.ID).
			Int("attempts", job.Attempts).
			Time("retry_at", job.AvailableAt).
			Msg("Job failed, will retry")
		return
	}

	m.history.RecordFailed(job, err.Error())
	m.log.Error().
		Err(err).
		Str("queue", string(q.name)).
		Str("type", job.Type).
		Str("job_id", job.ID).
		Int("attempts", job.Attempts).
		Msg("Job failed terminally")
}

// nextReady pops the earliest available job, or returns how long to wait
// for the next one to become available.
func nextReady(q *queueState) (*Job, time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now()
	best := -1
	for i, job := range q.pending {
		if best == -1 || job.AvailableAt.Before(q.pending[best].AvailableAt) {
			best = i
		}
	}
	if best == -1 {
		return nil, time.Minute
	}

	job := q.pending[best]
	if job.AvailableAt.After(now) {
		return nil, job.AvailableAt.Sub(now)
	}

	q.pending = append(q.pending[:best], q.pending[best+1:]...)
	return job, 0
}

func wake(q *queueState) {
	select {
	case q.trigger <- struct{}{}:
	default:
	}
}
