package services

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/isdelr/records-be/internal/models"
)

// DefaultJobHistoryLimit is the ring size used when none is configured.
const DefaultJobHistoryLimit = 50

// JobHistory is a bounded, most-recent-first log of backup job runs. It is
// an operational log, not an audit trail: the oldest run is evicted first.
type JobHistory struct {
	mu    sync.Mutex
	limit int
	runs  []models.JobRun // oldest first
	now   func() time.Time
}

// NewJobHistory creates an empty history holding at most limit runs.
func NewJobHistory(limit int) *JobHistory {
	if limit <= 0 {
		limit = DefaultJobHistoryLimit
	}
	return &JobHistory{limit: limit, now: time.Now}
}

// TryStart appends a running job unless the most recent run is still
// running. The check and the append happen under one lock.
func (h *JobHistory) TryStart(trigger string) (models.JobRun, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if n := len(h.runs); n > 0 && h.runs[n-1].Status == models.JobStatusRunning {
		return h.runs[n-1], false
	}

	run := models.JobRun{
		ID:        uuid.New().String(),
		StartedAt: h.now().UTC(),
		Trigger:   trigger,
		Status:    models.JobStatusRunning,
	}
	h.runs = append(h.runs, run)
	if len(h.runs) > h.limit {
		h.runs = append([]models.JobRun(nil), h.runs[len(h.runs)-h.limit:]...)
	}
	return run, true
}

// Finish moves a running job to success or error. It returns false if the
// run is unknown or already finished, so a run transitions exactly once.
func (h *JobHistory) Finish(id, backupID string, runErr error) (models.JobRun, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for i := len(h.runs) - 1; i >= 0; i-- {
		if h.runs[i].ID != id {
			continue
		}
		if h.runs[i].Status != models.JobStatusRunning {
			return h.runs[i], false
		}
		finished := h.now().UTC()
		h.runs[i].FinishedAt = &finished
		if runErr != nil {
			h.runs[i].Status = models.JobStatusError
			h.runs[i].Message = runErr.Error()
		} else {
			h.runs[i].Status = models.JobStatusSuccess
			h.runs[i].BackupID = backupID
		}
		return h.runs[i], true
	}
	return models.JobRun{}, false
}

// Latest returns the most recent run, if any.
func (h *JobHistory) Latest() (models.JobRun, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.runs) == 0 {
		return models.JobRun{}, false
	}
	return h.runs[len(h.runs)-1], true
}

// List returns the runs most recent first.
func (h *JobHistory) List() []models.JobRun {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]models.JobRun, len(h.runs))
	for i, run := range h.runs {
		out[len(h.runs)-1-i] = run
	}
	return out
}
