package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/bookkeeper/internal/database"
	"github.com/aristath/bookkeeper/internal/queue"
)

// SystemHandlers serves process and host health
type SystemHandlers struct {
	db        *database.DB
	queues    *queue.Manager
	log       zerolog.Logger
	startedAt time.Time
}

// NewSystemHandlers creates the system handlers
func NewSystemHandlers(db *database.DB, queues *queue.Manager, log zerolog.Logger) *SystemHandlers {
	return &SystemHandlers{
		db:        db,
		queues:    queues,
		log:       log.With().Str("component", "system").Logger(),
		startedAt: time.Now(),
	}
}

// HealthResponse is the /health payload
type HealthResponse struct {
	Status        string         `json:"status"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	Database      string         `json:"database"`
	CPUPercent    float64        `json:"cpu_percent"`
	MemPercent    float64        `json:"mem_percent"`
	QueueDepths   map[string]int `json:"queue_depths"`
}

// HandleHealth reports database reachability, host stats and queue depth.
// Degrades to "degraded" rather than failing when the database ping fails.
func (h *SystemHandlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(h.startedAt).Seconds()),
		Database:      "ok",
	}

	if err := h.db.HealthCheck(r.Context()); err != nil {
		h.log.Warn().Err(err).Msg("Database health check failed")
		resp.Status = "degraded"
		resp.Database = "unreachable"
	}

	resp.CPUPercent, resp.MemPercent = h.hostStats()

	resp.QueueDepths = map[string]int{}
	for _, name := range []queue.QueueName{
		queue.QueueClassification,
		queue.QueueTransferDetection,
		queue.QueueReconciliation,
		queue.QueueIngestion,
	} {
		resp.QueueDepths[string(name)] = h.queues.PendingCount(name)
	}

	w.Header().Set("Content-Type", "application/json")
	if resp.Status != "ok" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(resp)
}

// hostStats samples CPU and RAM usage. The 100ms CPU window keeps the
// endpoint fast enough for aggressive poll intervals.
func (h *SystemHandlers) hostStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}
	return cpuAvg, memStat.UsedPercent
}
