package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/isdelr/records-be/internal/metrics"
	"github.com/isdelr/records-be/internal/models"
	"github.com/isdelr/records-be/internal/snapshots"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// ErrCaptureFailed wraps the first enumeration error of a failed capture.
// Nothing is written when it is returned.
var ErrCaptureFailed = errors.New("capture failed")

// BackupServiceProvider defines the interface for backup services.
type BackupServiceProvider interface {
	Capture(ctx context.Context, trigger string, actor *models.Actor) (models.WriteResult, error)
	ListBackups(ctx context.Context) ([]models.SnapshotInfo, error)
	ReadBackup(ctx context.Context, id string) (models.Snapshot, bool, error)
}

// BackupService captures snapshots of every collection.
type BackupService struct {
	sources      []Lister
	store        snapshots.Store
	eventService EventServiceProvider
	now          func() time.Time
}

// NewBackupService creates a new BackupService. Source names must be unique
// because they key the snapshot's data sections.
func NewBackupService(sources []Lister, store snapshots.Store, eventService EventServiceProvider) (*BackupService, error) {
	seen := make(map[string]bool, len(sources))
	for _, src := range sources {
		if seen[src.Name()] {
			return nil, fmt.Errorf("duplicate collection source %q", src.Name())
		}
		seen[src.Name()] = true
	}
	return &BackupService{
		sources:      sources,
		store:        store,
		eventService: eventService,
		now:          time.Now,
	}, nil
}

// Capture enumerates every source concurrently and writes the result as one
// snapshot. If any source fails the whole capture fails and nothing is stored.
func (s *BackupService) Capture(ctx context.Context, trigger string, actor *models.Actor) (models.WriteResult, error) {
	// Everything below is attributed to this instant.
	timestamp := s.now().UTC()

	res, err := s.capture(ctx, timestamp, trigger, actor)
	metrics.CaptureDuration.Observe(time.Since(timestamp).Seconds())
	if err != nil {
		metrics.BackupCaptures.WithLabelValues(trigger, string(models.JobStatusError)).Inc()
		log.Error().Err(err).Str("trigger", trigger).Msg("Backup capture failed")
		recordEvent(ctx, s.eventService, "backup.create.fail", "error", fmt.Sprintf("Backup capture (%s) failed: %v", trigger, err), nil)
		return models.WriteResult{}, err
	}

	metrics.BackupCaptures.WithLabelValues(trigger, string(models.JobStatusSuccess)).Inc()
	log.Info().Str("backup_id", res.ID).Str("trigger", trigger).Int64("size_bytes", res.SizeBytes).Msg("Backup captured")
	recordEvent(ctx, s.eventService, "backup.create", "info", fmt.Sprintf("Backup '%s' captured (%s).", res.ID, trigger), &res.ID)
	return res, nil
}

func (s *BackupService) capture(ctx context.Context, timestamp time.Time, trigger string, actor *models.Actor) (models.WriteResult, error) {
	// Each branch owns one slot, so the fan-out shares no mutable state.
	results := make([][]models.Record, len(s.sources))

	g, gctx := errgroup.WithContext(ctx)
	for i, src := range s.sources {
		g.Go(func() error {
			records, err := src.List(gctx)
			if err != nil {
				return fmt.Errorf("%w: list %s: %w", ErrCaptureFailed, src.Name(), err)
			}
			if records == nil {
				records = []models.Record{}
			}
			results[i] = records
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return models.WriteResult{}, err
	}

	snap := models.Snapshot{
		Timestamp: timestamp,
		Kind:      models.KindCollections,
		Data:      make(map[string][]models.Record, len(s.sources)),
		Metadata:  &models.SnapshotMetadata{Trigger: trigger},
	}
	if actor != nil {
		snap.Metadata.ActorID = actor.ID
		snap.Metadata.ActorName = actor.Username
		snap.Metadata.Role = actor.Role
	}
	for i, src := range s.sources {
		snap.Data[src.Name()] = results[i]
	}

	res, err := s.store.Write(ctx, snap)
	if err != nil {
		return models.WriteResult{}, fmt.Errorf("write snapshot: %w", err)
	}
	return res, nil
}

// ListBackups returns the stored snapshots, newest first.
func (s *BackupService) ListBackups(ctx context.Context) ([]models.SnapshotInfo, error) {
	return s.store.List(ctx)
}

// ReadBackup returns a stored snapshot; found is false when the id is unknown.
func (s *BackupService) ReadBackup(ctx context.Context, id string) (models.Snapshot, bool, error) {
	return s.store.Read(ctx, id)
}
