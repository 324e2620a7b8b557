package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/isdelr/records-be/internal/auth"
	"github.com/isdelr/records-be/internal/models"
	"github.com/isdelr/records-be/internal/monitoring"
	"github.com/isdelr/records-be/internal/services"
	"github.com/isdelr/records-be/internal/snapshots"
	"github.com/rs/zerolog/log"
)

// JobRunner starts captures through the job history and exposes it.
type JobRunner interface {
	RunNow(ctx context.Context, trigger string, actor *models.Actor) (models.JobRun, models.WriteResult, error)
	Jobs() []models.JobRun
}

// BackupHandler handles HTTP requests related to backups.
type BackupHandler struct {
	service services.BackupServiceProvider
	restore services.RestoreServiceProvider
	jobs    JobRunner
}

// NewBackupHandler creates a new BackupHandler.
func NewBackupHandler(service services.BackupServiceProvider, restore services.RestoreServiceProvider, jobs JobRunner) *BackupHandler {
	return &BackupHandler{service: service, restore: restore, jobs: jobs}
}

// RestorePayload is the expected JSON body for a restore. An inline
// snapshot takes precedence over backupId.
type RestorePayload struct {
	Snapshot *models.Snapshot `json:"snapshot,omitempty"`
	BackupID string           `json:"backupId,omitempty"`
	Mode     string           `json:"mode,omitempty"`
}

// GetAll lists stored snapshots, newest first.
func (h *BackupHandler) GetAll(w http.ResponseWriter, r *http.Request) {
	backups, err := h.service.ListBackups(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to list backups")
		http.Error(w, "Failed to retrieve backups", http.StatusInternalServerError)
		return
	}
	if backups == nil {
		backups = []models.SnapshotInfo{}
	}
	writeJSON(w, http.StatusOK, backups)
}

// Get returns one stored snapshot with its data.
func (h *BackupHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	snap, found, err := h.service.ReadBackup(r.Context(), id)
	if err != nil {
		log.Error().Err(err).Str("backup_id", id).Msg("Failed to read backup")
		http.Error(w, "Failed to read backup", http.StatusInternalServerError)
		return
	}
	if !found {
		http.Error(w, "Backup not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// Create captures a snapshot now. It answers once the snapshot is stored.
func (h *BackupHandler) Create(w http.ResponseWriter, r *http.Request) {
	var actor *models.Actor
	if claims, ok := auth.ClaimsFromContext(r.Context()); ok {
		actor = claims.Actor()
	}

	run, res, err := h.jobs.RunNow(r.Context(), models.TriggerAPI, actor)
	if err != nil {
		if errors.Is(err, monitoring.ErrJobRunning) {
			writeJSON(w, http.StatusConflict, map[string]string{
				"error": err.Error(),
				"jobId": run.ID,
			})
			return
		}
		http.Error(w, "Failed to create backup: "+err.Error(), statusFor(err))
		return
	}

	writeJSON(w, http.StatusCreated, res)
}

// Restore replays a stored or inline snapshot. Per-record failures are
// part of a 200 response; only request and storage problems fail it.
func (h *BackupHandler) Restore(w http.ResponseWriter, r *http.Request) {
	var payload RestorePayload
	if err := decodeJSON(w, r, &payload); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	mode, err := models.ParseRestoreMode(payload.Mode)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	summary, err := h.restore.Restore(r.Context(), services.RestoreRequest{
		Snapshot:   payload.Snapshot,
		SnapshotID: payload.BackupID,
		Mode:       mode,
	})
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, summary)
	case errors.Is(err, services.ErrValidation):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, snapshots.ErrCorrupt):
		log.Error().Err(err).Str("backup_id", payload.BackupID).Msg("Stored backup is corrupt")
		http.Error(w, "Stored backup is corrupt", http.StatusInternalServerError)
	default:
		log.Error().Err(err).Str("backup_id", payload.BackupID).Msg("Restore failed")
		http.Error(w, "Restore failed: "+err.Error(), statusFor(err))
	}
}

// Jobs returns the job history, most recent first.
func (h *BackupHandler) Jobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.jobs.Jobs())
}
