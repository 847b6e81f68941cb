package server

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/dkaragian/verdict/internal/database"
	"github.com/dkaragian/verdict/internal/scheduler"
	"github.com/dkaragian/verdict/internal/version"
)

// FillStreamStatus reports the fill feed connection state
type FillStreamStatus interface {
	Connected() bool
}

// SystemHandlers handles system monitoring and job trigger endpoints
type SystemHandlers struct {
	log        zerolog.Logger
	dataDir    string
	ledgerDB   *database.DB
	configDB   *database.DB
	sched      *scheduler.Scheduler
	fillStream FillStreamStatus
	startedAt  time.Time

	// Jobs registered for manual triggering
	reconciliationJob scheduler.Job
	healthJob         scheduler.Job
	backupJob         scheduler.Job
	walCheckpointsJob scheduler.Job
}

// NewSystemHandlers creates new system handlers
func NewSystemHandlers(
	log zerolog.Logger,
	dataDir string,
	ledgerDB, configDB *database.DB,
	sched *scheduler.Scheduler,
	fillStream FillStreamStatus,
) *SystemHandlers {
	return &SystemHandlers{
		log:        log.With().Str("handler", "system").Logger(),
		dataDir:    dataDir,
		ledgerDB:   ledgerDB,
		configDB:   configDB,
		sched:      sched,
		fillStream: fillStream,
		startedAt:  time.Now(),
	}
}

// SetJobs registers job instances for manual triggering via API
func (h *SystemHandlers) SetJobs(reconciliation, health, backup, walCheckpoints scheduler.Job) {
	h.reconciliationJob = reconciliation
	h.healthJob = health
	h.backupJob = backup
	h.walCheckpointsJob = walCheckpoints
}

// HandleSystemStatus handles GET /api/system/status
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	cpuPercent, memPercent := h.systemStats()

	status := map[string]interface{}{
		"version":        version.Version,
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
		"cpu_percent":    cpuPercent,
		"memory_percent": memPercent,
		"data_dir_mb":    h.dirSize(h.dataDir),
	}

	if h.fillStream != nil {
		status["fill_stream_connected"] = h.fillStream.Connected()
	}

	if usage, err := disk.Usage(h.dataDir); err == nil {
		status["disk_used_percent"] = usage.UsedPercent
		status["disk_free_mb"] = float64(usage.Free) / 1024 / 1024
	}

	h.writeJSON(w, status)
}

// HandleDatabaseStats handles GET /api/system/database/stats
func (h *SystemHandlers) HandleDatabaseStats(w http.ResponseWriter, r *http.Request) {
	stats := make(map[string]interface{})

	for _, db := range []*database.DB{h.ledgerDB, h.configDB} {
		if db == nil {
			continue
		}

		dbStats := map[string]interface{}{
			"path":    db.Path(),
			"profile": string(db.Profile()),
		}

		if info, err := os.Stat(db.Path()); err == nil {
			dbStats["size_bytes"] = info.Size()
		}

		var pageCount, freePages int
		if err := db.Conn().QueryRow("PRAGMA page_count").Scan(&pageCount); err == nil {
			dbStats["page_count"] = pageCount
		}
		if err := db.Conn().QueryRow("PRAGMA freelist_count").Scan(&freePages); err == nil {
			dbStats["freelist_count"] = freePages
		}

		stats[db.Name()] = dbStats
	}

	h.writeJSON(w, stats)
}

// HandleTriggerReconciliation handles POST /api/system/jobs/reconciliation
func (h *SystemHandlers) HandleTriggerReconciliation(w http.ResponseWriter, r *http.Request) {
	h.triggerJob(w, h.reconciliationJob, "Reconciliation")
}

// HandleTriggerHealthEvaluation handles POST /api/system/jobs/health-evaluation
func (h *SystemHandlers) HandleTriggerHealthEvaluation(w http.ResponseWriter, r *http.Request) {
	h.triggerJob(w, h.healthJob, "Health evaluation")
}

// HandleTriggerBackup handles POST /api/system/jobs/backup
func (h *SystemHandlers) HandleTriggerBackup(w http.ResponseWriter, r *http.Request) {
	h.triggerJob(w, h.backupJob, "Backup")
}

// HandleTriggerWALCheckpoints handles POST /api/system/jobs/check-wal-checkpoints
func (h *SystemHandlers) HandleTriggerWALCheckpoints(w http.ResponseWriter, r *http.Request) {
	h.triggerJob(w, h.walCheckpointsJob, "WAL checkpoint check")
}

func (h *SystemHandlers) triggerJob(w http.ResponseWriter, job scheduler.Job, label string) {
	if job == nil {
		h.writeJSON(w, map[string]string{
			"status":  "error",
			"message": label + " job not registered",
		})
		return
	}

	h.log.Info().Str("job", job.Name()).Msg("Manual job trigger")

	if err := h.sched.RunNow(job); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, map[string]string{
		"status":  "success",
		"message": label + " triggered successfully",
	})
}

// systemStats returns CPU and RAM usage percentages. The CPU sample window
// is kept short so status polls stay fast.
func (h *SystemHandlers) systemStats() (float64, float64) {
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

// dirSize calculates total size of a directory in MB
func (h *SystemHandlers) dirSize(dirPath string) float64 {
	var totalSize int64

	err := filepath.Walk(dirPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			totalSize += info.Size()
		}
		return nil
	})
	if err != nil {
		h.log.Warn().Err(err).Str("dir", dirPath).Msg("Failed to calculate directory size")
		return 0
	}

	return float64(totalSize) / 1024 / 1024
}

func (h *SystemHandlers) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
